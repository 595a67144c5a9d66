// Package ui is the terminal host of the issue explorer. It turns key
// presses into controller calls, runs the controller's commands as
// bubbletea commands and renders the issue list, the open issue and the
// bulk change dialog.
package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"github.com/vanderheijden86/issuescope/pkg/config"
	"github.com/vanderheijden86/issuescope/pkg/debug"
	"github.com/vanderheijden86/issuescope/pkg/explorer"
	"github.com/vanderheijden86/issuescope/pkg/model"
	"github.com/vanderheijden86/issuescope/pkg/query"
	"github.com/vanderheijden86/issuescope/pkg/selection"
	"github.com/vanderheijden86/issuescope/pkg/watcher"
)

const (
	defaultWidth  = 120
	defaultHeight = 40
)

// controllerMsg carries the result of a controller command.
type controllerMsg struct {
	msg explorer.Msg
}

// deadlineMsg fires when the controller's debounce deadline has passed.
type deadlineMsg struct {
	at time.Time
}

// ConfigChangedMsg is sent when the watched config file changed.
type ConfigChangedMsg struct{}

// Options configures the UI.
type Options struct {
	Config     config.Config
	ConfigPath string
	// ConfigWatcher, when set and started, reloads saved filters on change.
	ConfigWatcher *watcher.Watcher
	Keys          *KeyMap
	// History, when it is the controller's router, enables going back.
	History *History
	// Clipboard defaults to the system clipboard.
	Clipboard func(string) error
	Now       func() time.Time
}

// Model is the bubbletea model of the explorer.
type Model struct {
	ctx  context.Context
	ctrl *explorer.Controller
	keys KeyMap

	scope   scopeGuard
	cfg     config.Config
	cfgPath string
	watch   *watcher.Watcher
	filter  int // index of the last applied saved filter, -1 for none

	width, height int
	detail        viewport.Model
	spin          spinner.Model
	search        textinput.Model
	bulk          *bulkDialog
	// bulkErr is the controller error seen when the dialog was submitted.
	bulkErr error

	history *History
	// previewRule is the rule whose severity counts were last requested.
	previewRule string

	openKey   string
	status    string
	statusErr bool
	shownErr  error
	tickAt    time.Time

	copy func(string) error
	now  func() time.Time
}

// New returns the model for ctrl. ctx bounds every backend request.
func New(ctx context.Context, ctrl *explorer.Controller, opts Options) Model {
	keys := DefaultKeyMap
	if opts.Keys != nil {
		keys = *opts.Keys
	}
	if opts.Clipboard == nil {
		opts.Clipboard = clipboard.WriteAll
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = statusStyle

	ti := textinput.New()
	ti.Prompt = "/ "
	ti.Placeholder = "search messages"
	ti.CharLimit = 200

	m := Model{
		ctx:     ctx,
		ctrl:    ctrl,
		keys:    keys,
		cfg:     opts.Config,
		cfgPath: opts.ConfigPath,
		watch:   opts.ConfigWatcher,
		history: opts.History,
		filter:  -1,
		width:   defaultWidth,
		height:  defaultHeight,
		spin:    sp,
		search:  ti,
		copy:    opts.Clipboard,
		now:     opts.Now,
	}
	m.detail = viewport.New(defaultWidth/2, defaultHeight-3)
	m.resize()
	return m
}

// Controller returns the controller the model drives.
func (m Model) Controller() *explorer.Controller { return m.ctrl }

// Scope returns the active keyboard scope.
func (m Model) Scope() Scope { return m.scope.Active() }

// Status returns the status line.
func (m Model) Status() string { return m.status }

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.run(m.ctrl.Mount()), m.spin.Tick, m.waitForConfig())
}

// run wraps a controller command so its message comes back through Update.
func (m Model) run(cmd explorer.Cmd) tea.Cmd {
	return runCmd(m.ctx, cmd)
}

func runCmd(ctx context.Context, cmd explorer.Cmd) tea.Cmd {
	if cmd == nil {
		return nil
	}
	return func() tea.Msg {
		return controllerMsg{msg: cmd(ctx)}
	}
}

func (m Model) waitForConfig() tea.Cmd {
	if m.watch == nil || !m.watch.IsStarted() {
		return nil
	}
	w := m.watch
	return func() tea.Msg {
		<-w.Changed()
		return ConfigChangedMsg{}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()

	case controllerMsg:
		if preview, ok := msg.msg.(explorer.FacetPreviewMsg); ok {
			m.showPreview(preview)
			break
		}
		cmds = append(cmds, m.run(m.ctrl.Update(msg.msg)))
		cmds = append(cmds, m.afterController())

	case deadlineMsg:
		m.tickAt = time.Time{}
		cmds = append(cmds, m.run(m.ctrl.Tick(msg.at)))

	case ConfigChangedMsg:
		m.reloadConfig()
		cmds = append(cmds, m.waitForConfig())

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		cmds = append(cmds, cmd)

	case tea.KeyMsg:
		cmds = append(cmds, m.handleKey(msg))

	default:
		// huh and textinput exchange internal messages
		switch m.scope.Active() {
		case ScopeBulkChange:
			if m.bulk != nil {
				cmds = append(cmds, m.bulk.Update(msg), m.checkBulkForm())
			}
		case ScopeTextInput:
			var cmd tea.Cmd
			m.search, cmd = m.search.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	cmds = append(cmds, m.syncOpenIssue(), m.scheduleDeadline())
	return m, tea.Batch(cmds...)
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch m.scope.Active() {
	case ScopeBulkChange:
		if m.bulk == nil {
			m.scope.Pop(ScopeBulkChange)
			return nil
		}
		return tea.Batch(m.bulk.Update(msg), m.checkBulkForm())
	case ScopeTextInput:
		return m.handleSearchKeys(msg)
	}
	return m.handleIssueKeys(msg)
}

func (m *Model) handleIssueKeys(msg tea.KeyMsg) tea.Cmd {
	ctrl := m.ctrl
	if key.Matches(msg, m.keys.Quit) {
		ctrl.Unmount()
		return tea.Quit
	}

	nav := key.Matches(msg, m.keys.LocationUp, m.keys.LocationDown, m.keys.FlowPrev, m.keys.FlowNext)
	if ctrl.Selection().Navigator && !nav {
		ctrl.Handle(selection.CmdExitLocations)
		if key.Matches(msg, m.keys.Close) {
			return nil
		}
	}

	switch {
	case nav:
		if !ctrl.Selection().Navigator {
			return m.run(ctrl.Handle(selection.CmdEnterLocations))
		}
		switch {
		case key.Matches(msg, m.keys.LocationUp):
			return m.run(ctrl.Handle(selection.CmdPrevLocation))
		case key.Matches(msg, m.keys.LocationDown):
			return m.run(ctrl.Handle(selection.CmdNextLocation))
		case key.Matches(msg, m.keys.FlowPrev):
			return m.run(ctrl.Handle(selection.CmdPrevFlow))
		}
		return m.run(ctrl.Handle(selection.CmdNextFlow))

	case key.Matches(msg, m.keys.Up):
		return m.run(ctrl.Handle(selection.CmdPrev))
	case key.Matches(msg, m.keys.Down):
		return m.run(ctrl.Handle(selection.CmdNext))
	case key.Matches(msg, m.keys.Open):
		return m.run(ctrl.Handle(selection.CmdOpen))
	case key.Matches(msg, m.keys.Close):
		return m.run(ctrl.Handle(selection.CmdClose))

	case key.Matches(msg, m.keys.Digit):
		n := int(msg.String()[0] - '1')
		if _, open := ctrl.OpenedIssue(); open {
			ctrl.SelectFlow(n)
			return nil
		}
		return m.toggleFacet(n)
	case key.Matches(msg, m.keys.Primary):
		if cur, set := ctrl.Selection().Location.Get(); set && cur >= 0 {
			ctrl.SelectLocation(cur)
		}

	case key.Matches(msg, m.keys.Check):
		if issue, ok := ctrl.SelectedIssue(); ok {
			ctrl.ToggleChecked(issue.Key)
		}
	case key.Matches(msg, m.keys.CheckAll):
		ctrl.CheckAll(!ctrl.AllChecked())
	case key.Matches(msg, m.keys.Bulk):
		return m.openBulk()
	case key.Matches(msg, m.keys.Confirm):
		return m.confirmSelected()
	case key.Matches(msg, m.keys.Preview):
		return m.previewSelected()

	case key.Matches(msg, m.keys.MyIssues):
		on := !ctrl.Location().MyIssues
		cmd := ctrl.HandleMyIssuesChange(on)
		if ctrl.AuthRequired() && on {
			m.setStatus("Log in to see your issues (set the token environment variable)", true)
		}
		return m.run(cmd)
	case key.Matches(msg, m.keys.Filter):
		return m.cycleFilter()
	case key.Matches(msg, m.keys.Search):
		m.search.SetValue(ctrl.Location().Query.Text)
		m.search.CursorEnd()
		m.scope.Push(ScopeTextInput)
		return m.search.Focus()
	case key.Matches(msg, m.keys.Reset):
		m.filter = -1
		return m.run(ctrl.HandleReset())
	case key.Matches(msg, m.keys.Back):
		if m.history == nil {
			return nil
		}
		loc, ok := m.history.Back()
		if !ok {
			m.setStatus("Nothing to go back to", false)
			return nil
		}
		return m.run(ctrl.SetLocation(loc))
	case key.Matches(msg, m.keys.More):
		return m.run(ctrl.FetchMore())
	case key.Matches(msg, m.keys.Copy):
		m.copySelected()

	default:
		if _, open := ctrl.OpenedIssue(); open {
			var cmd tea.Cmd
			m.detail, cmd = m.detail.Update(msg)
			return cmd
		}
	}
	return nil
}

func (m *Model) handleSearchKeys(msg tea.KeyMsg) tea.Cmd {
	switch msg.Type {
	case tea.KeyEnter:
		text := strings.TrimSpace(m.search.Value())
		m.search.Blur()
		m.scope.Pop(ScopeTextInput)
		return m.run(m.ctrl.HandleFilterChange(query.Change(query.ParamText, text)))
	case tea.KeyEsc:
		m.search.Blur()
		m.scope.Pop(ScopeTextInput)
		return nil
	}
	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	return cmd
}

func (m *Model) openBulk() tea.Cmd {
	if !m.ctrl.OpenBulkChange() {
		m.setStatus("Check issues first (x, or X for all)", true)
		return nil
	}
	m.bulk = newBulkDialog(m.ctrl.BulkLabel(), nil, "")
	m.scope.Push(ScopeBulkChange)
	return m.bulk.Init()
}

func (m *Model) closeBulk() {
	m.ctrl.CloseBulkChange()
	m.bulk = nil
	m.scope.Pop(ScopeBulkChange)
}

// checkBulkForm reacts to the form being submitted or aborted.
func (m *Model) checkBulkForm() tea.Cmd {
	if m.bulk == nil {
		return nil
	}
	switch m.bulk.form.State {
	case huh.StateAborted:
		m.closeBulk()
		m.setStatus("Bulk change cancelled", false)
	case huh.StateCompleted:
		return m.submitBulk()
	}
	return nil
}

// submitBulk hands the dialog's changes to the controller.
func (m *Model) submitBulk() tea.Cmd {
	if m.bulk == nil || m.bulk.submitted {
		return nil
	}
	changes := m.bulk.values.Changes()
	if len(changes) == 0 {
		m.closeBulk()
		m.setStatus("Nothing to change", false)
		return nil
	}
	m.bulk.submitted = true
	m.bulkErr = m.ctrl.Err()
	m.setStatus("Applying: "+m.bulk.label, false)
	return m.run(m.ctrl.ExecuteBulkChange(changes, m.bulk.values.Notify))
}

// afterController updates the host state after a controller message.
func (m *Model) afterController() tea.Cmd {
	ctrl := m.ctrl
	var cmd tea.Cmd

	if m.bulk != nil && m.bulk.submitted {
		var fe *explorer.FetchError
		switch {
		case !ctrl.BulkOpen():
			m.bulk = nil
			m.scope.Pop(ScopeBulkChange)
			if sum := ctrl.LastBulkSummary(); sum != nil {
				m.setStatus(fmt.Sprintf("Bulk change done: %d changed, %d ignored, %d failed", sum.Success, sum.Ignored, sum.Failures), sum.Failures > 0)
			}
		case ctrl.Err() != m.bulkErr && errors.As(ctrl.Err(), &fe) && fe.Op == explorer.OpBulk:
			// keep the dialog open with the answers given
			m.bulk = newBulkDialog(m.bulk.label, m.bulk.values, fe.Err.Error())
			cmd = m.bulk.Init()
		}
	}

	if err := ctrl.Err(); err != nil && err != m.shownErr {
		m.shownErr = err
		if ctrl.AuthRequired() {
			m.setStatus("Authentication required: "+err.Error(), true)
		} else {
			m.setStatus(err.Error(), true)
		}
	}
	return cmd
}

// syncOpenIssue refreshes the detail pane and, when another issue was
// opened, loads the rest of its file.
func (m *Model) syncOpenIssue() tea.Cmd {
	issue, ok := m.ctrl.OpenedIssue()
	if !ok {
		m.openKey = ""
		return nil
	}
	var cmd tea.Cmd
	if issue.Key != m.openKey {
		m.openKey = issue.Key
		m.detail.GotoTop()
		to := issue.Line
		if issue.TextRange != nil {
			to = issue.TextRange.EndLine
		}
		_, more := m.ctrl.ComponentIssues(issue.Line, to)
		cmd = m.run(more)
	}
	m.detail.SetContent(m.detailContent(issue, m.ctrl.Selection()))
	return cmd
}

func (m *Model) scheduleDeadline() tea.Cmd {
	deadline, ok := m.ctrl.NextDeadline()
	if !ok || deadline.Equal(m.tickAt) {
		return nil
	}
	m.tickAt = deadline
	d := deadline.Sub(m.now())
	if d < 0 {
		d = 0
	}
	return tea.Tick(d, func(t time.Time) tea.Msg { return deadlineMsg{at: t} })
}

// cycleFilter applies the next saved filter from the config.
func (m *Model) cycleFilter() tea.Cmd {
	if len(m.cfg.Filters) == 0 {
		m.setStatus("No saved filters in the config", false)
		return nil
	}
	m.filter = (m.filter + 1) % len(m.cfg.Filters)
	f := m.cfg.Filters[m.filter]
	q, err := f.Parse()
	if err != nil {
		m.setStatus(err.Error(), true)
		return nil
	}
	m.setStatus("Filter: "+f.Name, false)
	return m.run(m.ctrl.HandleFilterChange(replaceQuery(m.ctrl.Location().Query, q)))
}

// replaceQuery returns the changes turning cur into next.
func replaceQuery(cur, next query.Query) query.Changes {
	changes := query.Changes{}
	for k := range query.Serialize(cur) {
		changes.Clear(k)
	}
	for k, v := range query.Serialize(next) {
		changes[k] = v
	}
	return changes
}

func (m *Model) reloadConfig() {
	if m.cfgPath == "" {
		return
	}
	cfg, err := config.LoadFrom(m.cfgPath)
	if err != nil {
		m.setStatus("Config reload failed: "+err.Error(), true)
		return
	}
	m.cfg.Filters = cfg.Filters
	m.filter = -1
	debug.Log("ui: config reloaded, %d saved filter(s)", len(cfg.Filters))
	m.setStatus(fmt.Sprintf("Config reloaded: %d saved filter(s)", len(cfg.Filters)), false)
}

// facetOrder lists the facets the digit keys toggle.
var facetOrder = []string{
	query.ParamSeverities,
	query.ParamTypes,
	query.ParamTags,
	query.ParamRules,
	query.ParamLanguages,
	query.FacetStandards,
}

func (m *Model) toggleFacet(i int) tea.Cmd {
	if i < 0 || i >= len(facetOrder) {
		return nil
	}
	return m.run(m.ctrl.ToggleFacet(facetOrder[i]))
}

// confirmSelected confirms the selected issue, or unconfirms it when that
// is the transition on offer.
func (m *Model) confirmSelected() tea.Cmd {
	issue, ok := m.ctrl.OpenedIssue()
	if !ok {
		issue, ok = m.ctrl.SelectedIssue()
	}
	if !ok {
		return nil
	}
	var transition string
	for _, t := range issue.Transitions {
		if t == model.TransitionConfirm || t == model.TransitionUnconfirm {
			transition = t
			break
		}
	}
	if transition == "" {
		m.setStatus(issue.Key+" cannot be confirmed", true)
		return nil
	}
	m.setStatus(transition+" "+issue.Key, false)
	return m.run(m.ctrl.ChangeIssue(issue.Key, model.IssueChange{Kind: model.ChangeTransition, Value: transition}))
}

// previewSelected asks how the current results of the selected issue's
// rule split by severity.
func (m *Model) previewSelected() tea.Cmd {
	issue, ok := m.ctrl.SelectedIssue()
	if !ok || issue.Rule == "" {
		return nil
	}
	m.previewRule = issue.Rule
	return m.run(m.ctrl.LoadSearchResultCount(query.ParamSeverities, query.Change(query.ParamRules, issue.Rule)))
}

func (m *Model) showPreview(msg explorer.FacetPreviewMsg) {
	label := m.ctrl.Refs().Label(query.ParamRules, m.previewRule)
	if msg.Err != nil {
		m.setStatus(label+": "+msg.Err.Error(), true)
		return
	}
	var parts []string
	for _, v := range msg.Facet {
		if v.Count > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", v.Count, v.Val))
		}
	}
	if len(parts) == 0 {
		parts = append(parts, "no issues")
	}
	m.setStatus(label+": "+strings.Join(parts, ", "), false)
}

func (m *Model) copySelected() {
	issue, ok := m.ctrl.OpenedIssue()
	if !ok {
		issue, ok = m.ctrl.SelectedIssue()
	}
	if !ok {
		return
	}
	if err := m.copy(issue.Key); err != nil {
		m.setStatus("Clipboard error: "+err.Error(), true)
		return
	}
	m.setStatus("Copied "+issue.Key+" to clipboard", false)
}

func (m *Model) setStatus(s string, isErr bool) {
	m.status = s
	m.statusErr = isErr
}

// listWidth is the width of the list pane; the rest shows the open issue.
func (m Model) listWidth() int {
	if _, open := m.ctrl.OpenedIssue(); !open {
		return m.width
	}
	ratio := m.cfg.UI.SplitRatio
	if ratio < 0.2 || ratio > 0.8 {
		ratio = 0.4
	}
	return int(float64(m.width) * ratio)
}

func (m Model) bodyHeight() int {
	h := m.height - 4 // header, facets, status, footer
	if h < 3 {
		h = 3
	}
	return h
}

func (m *Model) resize() {
	ratio := m.cfg.UI.SplitRatio
	if ratio < 0.2 || ratio > 0.8 {
		ratio = 0.4
	}
	detailWidth := m.width - int(float64(m.width)*ratio) - 2
	if detailWidth < 10 {
		detailWidth = 10
	}
	m.detail.Width = detailWidth
	m.detail.Height = m.bodyHeight() - 2
	m.search.Width = m.width - 4
}
