// Package explorer is the issue exploration controller. It owns the
// navigational context, the loaded issues, facets, selection and checked
// set, and turns user actions into backend requests.
//
// The controller is single-threaded: every method, including Update, must
// be called from the host's event loop. Network work is returned as Cmds
// for the host to run; their messages come back through Update, which
// drops them when the controller was unmounted or when the search they
// belong to was superseded.
package explorer

import (
	"context"
	"net/url"
	"time"

	"github.com/vanderheijden86/issuescope/pkg/bulk"
	"github.com/vanderheijden86/issuescope/pkg/debug"
	"github.com/vanderheijden86/issuescope/pkg/facets"
	"github.com/vanderheijden86/issuescope/pkg/model"
	"github.com/vanderheijden86/issuescope/pkg/paging"
	"github.com/vanderheijden86/issuescope/pkg/query"
	"github.com/vanderheijden86/issuescope/pkg/selection"
	"github.com/vanderheijden86/issuescope/pkg/watcher"
)

// Backend is the web API the controller talks to.
type Backend interface {
	SearchIssues(ctx context.Context, params url.Values) (*model.SearchResult, error)
	ChangeIssue(ctx context.Context, key string, change model.IssueChange) (*model.Issue, error)
	BulkChange(ctx context.Context, req model.BulkChangeRequest) (*model.BulkChangeSummary, error)
	BranchStatus(ctx context.Context, project string, branch model.BranchLike) error
	CurrentUser(ctx context.Context) (*model.CurrentUser, error)
}

// Router records navigational contexts. Push adds a history entry,
// Replace rewrites the current one.
type Router interface {
	Push(loc query.Location)
	Replace(loc query.Location)
}

// Preferences persists the "my issues" choice for unscoped searches.
type Preferences interface {
	MyIssues() bool
	SetMyIssues(on bool) error
}

// Options configures a Controller. Zero values select defaults.
type Options struct {
	PageSize          int
	Ceiling           int
	MaxBulk           int
	BranchStatusDelay time.Duration
	Router            Router
	Preferences       Preferences
	Now               func() time.Time
	BulkOptions       []bulk.Option
}

// DefaultBranchStatusDelay is the quiescence window before the branch
// status is refreshed after issue changes.
const DefaultBranchStatusDelay = time.Second

type nopRouter struct{}

func (nopRouter) Push(query.Location)    {}
func (nopRouter) Replace(query.Location) {}

// Controller is the issue exploration controller.
type Controller struct {
	backend  Backend
	pager    *paging.Pager
	loader   *facets.Loader
	executor *bulk.Executor
	router   Router
	prefs    Preferences
	now      func() time.Time
	pageSize int
	maxBulk  int

	mounted bool
	loc     query.Location
	user    *model.CurrentUser

	issues      *model.IssueSet
	paging      *model.Paging
	effortTotal int
	facets      *facets.Store
	refs        *facets.Refs
	sel         selection.Machine
	checked     bulk.Checked

	loading             bool
	loadingMore         bool
	loaded              bool
	bulkOpen            bool
	cannotShowOpenIssue bool
	authRequired        bool
	lastErr             error
	lastBulk            *model.BulkChangeSummary

	branchStatus *watcher.Window
}

// New returns an unmounted controller for the initial context loc.
func New(backend Backend, loc query.Location, opts Options) *Controller {
	if opts.PageSize <= 0 {
		opts.PageSize = paging.DefaultPageSize
	}
	if opts.MaxBulk <= 0 {
		opts.MaxBulk = bulk.DefaultMax
	}
	if opts.BranchStatusDelay <= 0 {
		opts.BranchStatusDelay = DefaultBranchStatusDelay
	}
	if opts.Router == nil {
		opts.Router = nopRouter{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	c := &Controller{
		backend:      backend,
		pager:        paging.New(backend, paging.WithCeiling(opts.Ceiling)),
		loader:       facets.NewLoader(backend),
		executor:     bulk.NewExecutor(backend, opts.BulkOptions...),
		router:       opts.Router,
		prefs:        opts.Preferences,
		now:          opts.Now,
		pageSize:     opts.PageSize,
		maxBulk:      opts.MaxBulk,
		loc:          loc,
		issues:       model.NewIssueSet(nil),
		facets:       facets.NewStore(facets.InitialOpen(loc.Query)),
		refs:         facets.NewRefs(),
		loading:      true,
		branchStatus: watcher.NewWindow(opts.BranchStatusDelay),
	}
	c.sel.Select(loc.Open)
	return c
}

// Mount starts the controller. An unscoped search picks up the remembered
// "my issues" preference. The current user is fetched first; the first
// page follows once it is known.
func (c *Controller) Mount() Cmd {
	c.mounted = true
	if !c.loc.MyIssues && c.loc.Project == "" && c.prefs != nil && c.prefs.MyIssues() {
		c.loc.MyIssues = true
		c.router.Replace(c.loc)
	}
	return func(ctx context.Context) Msg {
		user, err := c.backend.CurrentUser(ctx)
		return userMsg{user: user, err: err}
	}
}

// Unmount stops the controller. Results of requests still in flight are
// dropped and a pending branch status refresh is cancelled.
func (c *Controller) Unmount() {
	c.mounted = false
	c.branchStatus.Cancel()
}

// Mounted reports whether the controller applies results.
func (c *Controller) Mounted() bool { return c.mounted }

func (c *Controller) request() paging.Request {
	return paging.Request{
		Query:    c.loc.Query,
		Project:  c.loc.Project,
		Branch:   c.loc.Branch,
		MyIssues: c.loc.MyIssues,
		Facets:   c.facets.Requested(),
		PageSize: c.pageSize,
	}
}

// fetchFirst loads the first page, or, when an issue is open, pages until
// that issue shows up or the ceiling is reached.
func (c *Controller) fetchFirst() Cmd {
	key := c.loc.SearchKey()
	open := c.loc.Open
	req := c.request()
	c.loading = true
	c.loadingMore = false
	c.checked.Reset()
	c.facets.Invalidate()

	return func(ctx context.Context) Msg {
		if open != "" {
			res, found, err := c.pager.FindIssue(ctx, req, open)
			return firstPageMsg{key: key, open: open, res: res, found: found, err: err}
		}
		res, err := c.pager.FetchPage(ctx, req, 1)
		return firstPageMsg{key: key, res: res, err: err}
	}
}

// Update applies the message of a finished command and returns follow-up
// work, if any.
func (c *Controller) Update(msg Msg) Cmd {
	if !c.mounted {
		debug.Log("explorer: dropping %T, not mounted", msg)
		return nil
	}
	switch msg := msg.(type) {
	case userMsg:
		return c.applyUser(msg)
	case firstPageMsg:
		c.applyFirstPage(msg)
	case moreMsg:
		c.applyMore(msg)
	case componentMsg:
		c.applyComponent(msg)
	case facetMsg:
		c.applyFacet(msg)
	case changeMsg:
		if msg.err != nil {
			c.fail(OpChange, msg.err)
			return nil
		}
		c.HandleIssueChange(*msg.issue)
	case bulkDoneMsg:
		if msg.err != nil {
			c.fail(OpBulk, msg.err)
			return nil
		}
		c.lastBulk = msg.summary
		return c.BulkChangeDone()
	case branchStatusMsg:
		debug.LogIf(msg.err != nil, "explorer: branch status refresh failed: %v", msg.err)
	}
	return nil
}

func (c *Controller) fail(op string, err error) {
	c.lastErr = &FetchError{Op: op, Err: err}
	if IsAuthError(err) {
		c.authRequired = true
	}
	debug.Log("explorer: %v", c.lastErr)
}

func (c *Controller) stale(key string, what string) bool {
	if key == c.loc.SearchKey() {
		return false
	}
	debug.Log("explorer: discarding stale %s response", what)
	return true
}

func (c *Controller) applyUser(msg userMsg) Cmd {
	switch {
	case msg.err != nil && IsAuthError(msg.err):
		c.fail(OpUser, msg.err)
		c.loading = false
		return nil
	case msg.err != nil:
		debug.Log("explorer: current user unavailable, continuing anonymously: %v", msg.err)
		c.user = &model.CurrentUser{}
	default:
		c.user = msg.user
	}
	if c.loc.MyIssues && !c.isLoggedIn() {
		c.fail(OpUser, ErrAuthRequired)
		c.loading = false
		return nil
	}
	return c.fetchFirst()
}

func (c *Controller) applyFirstPage(msg firstPageMsg) {
	if c.stale(msg.key, "first page") {
		return
	}
	c.loading = false
	c.loaded = true
	if msg.err != nil {
		c.fail(OpFirst, msg.err)
		c.issues = model.NewIssueSet(nil)
		c.paging = nil
		c.sel.Repair(c.loc.Open, c.issues)
		return
	}
	c.lastErr = nil
	res := msg.res
	c.issues = model.NewIssueSet(res.Issues)
	p := res.Paging
	c.paging = &p
	c.effortTotal = res.EffortTotal
	c.facets.Replace(res.Facets)
	c.refs.Replace(&res.SearchResult)
	c.cannotShowOpenIssue = msg.open != "" && !msg.found

	c.sel.Repair(c.loc.Open, c.issues)
	c.sel.ResetLocations()
}

// FetchMore appends the next page. It does nothing while nothing is loaded
// or another load is running.
func (c *Controller) FetchMore() Cmd {
	if c.paging == nil || c.loading || c.loadingMore {
		return nil
	}
	if c.paging.Exhausted() {
		return nil
	}
	key := c.loc.SearchKey()
	req := c.request()
	current := *c.paging
	c.loadingMore = true
	c.checked.KeepKeys()

	return func(ctx context.Context) Msg {
		res, err := c.pager.FetchMore(ctx, req, &current)
		return moreMsg{key: key, res: res, err: err}
	}
}

func (c *Controller) applyMore(msg moreMsg) {
	if c.stale(msg.key, "more") {
		return
	}
	c.loadingMore = false
	if msg.err != nil {
		c.fail(OpMore, msg.err)
		return
	}
	c.issues = c.issues.Append(msg.res.Issues)
	p := msg.res.Paging
	c.paging = &p
	c.refs.Merge(&msg.res.SearchResult)
}

// ComponentIssues returns the loaded issues sharing the open issue's
// component. When they do not yet reach toLine, it also returns a Cmd that
// loads more pages; the list is complete once its message was applied.
func (c *Controller) ComponentIssues(fromLine, toLine int) ([]model.Issue, Cmd) {
	open, ok := c.OpenedIssue()
	if !ok || c.paging == nil {
		return nil, nil
	}
	loaded := c.issues.Issues()
	same := paging.SameComponent(loaded, open.Component)
	if paging.ComponentDone(open.Component, toLine)(loaded, *c.paging) {
		return same, nil
	}
	debug.Log("explorer: loading issues of %s for lines %d-%d", open.Component, fromLine, toLine)

	key := c.loc.SearchKey()
	req := c.request()
	current := *c.paging
	c.loading = true
	return same, func(ctx context.Context) Msg {
		res, err := c.pager.ForComponent(ctx, req, loaded, &current, open.Component, toLine)
		return componentMsg{key: key, res: res, err: err}
	}
}

func (c *Controller) applyComponent(msg componentMsg) {
	if c.stale(msg.key, "component") {
		return
	}
	c.loading = false
	if msg.err != nil {
		c.fail(OpComponent, msg.err)
		return
	}
	if msg.res == nil {
		return
	}
	c.issues = c.issues.Append(msg.res.Issues)
	p := msg.res.Paging
	c.paging = &p
	c.refs.Merge(&msg.res.SearchResult)
}

// ToggleFacet expands or collapses a facet, loading its counts when it
// opens for the first time.
func (c *Controller) ToggleFacet(property string) Cmd {
	load, ok := c.facets.Toggle(property, c.loc.Query)
	if !ok {
		return nil
	}
	key := c.loc.SearchKey()
	base := c.request()
	base.Facets = nil
	params := base.Params(1)
	return func(ctx context.Context) Msg {
		res, err := c.loader.Load(ctx, params, load)
		return facetMsg{key: key, property: load, res: res, err: err}
	}
}

func (c *Controller) applyFacet(msg facetMsg) {
	defer c.facets.FinishLoad(msg.property)
	if c.stale(msg.key, "facet "+msg.property) {
		return
	}
	if msg.err != nil {
		// counts stay absent; the facet can be toggled again
		debug.Log("explorer: facet %s failed: %v", msg.property, msg.err)
		return
	}
	c.facets.Merge(msg.res.Facets)
	c.refs.Merge(msg.res)
}

// FacetPreviewMsg carries the counts a facet would show after a change.
type FacetPreviewMsg struct {
	Property string
	Facet    model.Facet
	Err      error
}

// LoadSearchResultCount fetches the counts of property as they would be
// with changes applied to the current filters.
func (c *Controller) LoadSearchResultCount(property string, changes query.Changes) Cmd {
	req := c.request()
	req.Query = req.Query.Apply(changes)
	req.Facets = nil
	params := req.Params(1)
	return func(ctx context.Context) Msg {
		res, err := c.loader.Load(ctx, params, property)
		if err != nil {
			return FacetPreviewMsg{Property: property, Err: err}
		}
		f, _ := facets.FacetOf(res, property)
		return FacetPreviewMsg{Property: property, Facet: f}
	}
}

// navigate records loc with the router and applies it.
func (c *Controller) navigate(loc query.Location, push bool) Cmd {
	if push {
		c.router.Push(loc)
	} else {
		c.router.Replace(loc)
	}
	return c.SetLocation(loc)
}

// SetLocation applies a navigational context, for instance one restored
// from history. A different search reloads; otherwise only the open issue
// changes.
func (c *Controller) SetLocation(loc query.Location) Cmd {
	prev := c.loc
	c.loc = loc
	if loc.SearchKey() != prev.SearchKey() {
		c.cannotShowOpenIssue = false
		if loc.Open != "" {
			c.sel.Select(loc.Open)
		}
		if c.loc.MyIssues && c.user != nil && !c.isLoggedIn() {
			c.authRequired = true
			return nil
		}
		return c.fetchFirst()
	}
	c.sel.SetOpen(loc.Open, c.issues)
	return nil
}

// HandleFilterChange applies changes to the filters and closes the open
// issue.
func (c *Controller) HandleFilterChange(changes query.Changes) Cmd {
	c.facets.ApplyFilterChange(changes)
	loc := c.loc.WithQuery(c.loc.Query.Apply(changes)).WithOpen("")
	return c.navigate(loc, true)
}

// HandleMyIssuesChange switches between all issues and the user's own.
// Assignee filters are dropped since they conflict with it.
func (c *Controller) HandleMyIssuesChange(on bool) Cmd {
	if on && !c.isLoggedIn() {
		c.fail(OpUser, ErrAuthRequired)
		return nil
	}
	c.facets.Close(query.ParamAssignees)
	if c.loc.Project == "" && c.prefs != nil {
		if err := c.prefs.SetMyIssues(on); err != nil {
			debug.Log("explorer: saving my-issues preference: %v", err)
		}
	}
	q := c.loc.Query
	q.Unassigned = false
	q.Assignees = nil
	loc := c.loc.WithQuery(q).WithOpen("")
	loc.MyIssues = on
	return c.navigate(loc, true)
}

// HandleReset clears every filter.
func (c *Controller) HandleReset() Cmd {
	return c.navigate(c.loc.WithQuery(query.Default()).WithOpen(""), true)
}

// IsFiltered reports whether the filters differ from the default.
func (c *Controller) IsFiltered() bool {
	return c.loc.Query.IsFiltered()
}

func (c *Controller) singleIssue() bool {
	return len(c.loc.Query.Issues) == 1
}

// Handle applies a keyboard navigation command.
func (c *Controller) Handle(cmd selection.Command) Cmd {
	intent := c.sel.Handle(cmd, c.issues, c.singleIssue())
	switch intent.Kind {
	case selection.IntentOpen:
		return c.OpenIssue(intent.Key)
	case selection.IntentClose:
		return c.CloseIssue()
	}
	return nil
}

// OpenIssue opens key. Opening from the list adds a history entry;
// switching to another issue rewrites it; opening the issue already open
// returns to its primary location.
func (c *Controller) OpenIssue(key string) Cmd {
	switch c.loc.Open {
	case "":
		return c.navigate(c.loc.WithOpen(key), true)
	case key:
		c.sel.ResetLocations()
		return nil
	}
	return c.navigate(c.loc.WithOpen(key), false)
}

// CloseIssue returns to the list.
func (c *Controller) CloseIssue() Cmd {
	if c.loc.Open == "" {
		return nil
	}
	return c.navigate(c.loc.WithOpen(""), true)
}

// SelectLocation highlights location i of the open issue; selecting it
// again returns to the primary location.
func (c *Controller) SelectLocation(i int) {
	c.sel.SelectLocation(i, c.issues)
}

// SelectFlow highlights flow i of the open issue.
func (c *Controller) SelectFlow(i int) {
	c.sel.SelectFlow(i, c.issues)
}

// HandleIssueChange installs an issue changed on the server and schedules
// a branch status refresh.
func (c *Controller) HandleIssueChange(issue model.Issue) {
	if next, ok := c.issues.Replace(issue); ok {
		c.issues = next
	}
	c.scheduleBranchStatus()
}

// ChangeIssue applies a single change to one issue.
func (c *Controller) ChangeIssue(key string, change model.IssueChange) Cmd {
	return func(ctx context.Context) Msg {
		issue, err := c.backend.ChangeIssue(ctx, key, change)
		return changeMsg{key: key, issue: issue, err: err}
	}
}

func (c *Controller) scheduleBranchStatus() {
	if c.loc.Project == "" || !c.loc.Branch.IsPullRequest() {
		return
	}
	c.branchStatus.Schedule(c.now())
}

// NextDeadline returns when Tick has work to do.
func (c *Controller) NextDeadline() (time.Time, bool) {
	return c.branchStatus.Deadline()
}

// Tick runs deferred work that is due at now.
func (c *Controller) Tick(now time.Time) Cmd {
	if !c.mounted || !c.branchStatus.Due(now) {
		return nil
	}
	project, branch := c.loc.Project, c.loc.Branch
	return func(ctx context.Context) Msg {
		return branchStatusMsg{err: c.backend.BranchStatus(ctx, project, branch)}
	}
}

// ToggleChecked flips the checked state of key.
func (c *Controller) ToggleChecked(key string) {
	c.checked.Toggle(key)
}

// CheckAll checks every issue matching the filters, or unchecks all.
func (c *Controller) CheckAll(on bool) {
	c.checked.CheckAll(on, c.issues.Keys())
}

// BulkTargets resolves what a bulk change would apply to.
func (c *Controller) BulkTargets() bulk.Targets {
	req := c.request()
	req.Facets = nil
	return bulk.Resolve(&c.checked, req, c.issues.Get, c.maxBulk)
}

// BulkLabel is the text of the bulk action.
func (c *Controller) BulkLabel() string {
	total := 0
	if c.paging != nil {
		total = c.paging.Total
	}
	return bulk.Label(c.BulkTargets(), total)
}

// OpenBulkChange opens the bulk change dialog. It reports false when
// nothing is checked.
func (c *Controller) OpenBulkChange() bool {
	if c.checked.Len() == 0 {
		return false
	}
	c.bulkOpen = true
	return true
}

// CloseBulkChange closes the dialog.
func (c *Controller) CloseBulkChange() {
	c.bulkOpen = false
}

// ExecuteBulkChange applies changes to the checked issues.
func (c *Controller) ExecuteBulkChange(changes []model.IssueChange, notify bool) Cmd {
	targets := c.BulkTargets()
	return func(ctx context.Context) Msg {
		sum, err := c.executor.Execute(ctx, targets, changes, notify)
		return bulkDoneMsg{summary: sum, err: err}
	}
}

// BulkChangeDone reloads after a successful bulk change.
func (c *Controller) BulkChangeDone() Cmd {
	c.checked.CheckAll(false, nil)
	c.scheduleBranchStatus()
	c.CloseBulkChange()
	return c.fetchFirst()
}

func (c *Controller) isLoggedIn() bool {
	return c.user != nil && c.user.IsLoggedIn
}

// Location returns the current navigational context.
func (c *Controller) Location() query.Location { return c.loc }

// Issues returns the loaded issues.
func (c *Controller) Issues() *model.IssueSet { return c.issues }

// Paging returns the paging of the last page loaded, or nil.
func (c *Controller) Paging() *model.Paging { return c.paging }

// EffortTotal returns the total remediation effort of the search.
func (c *Controller) EffortTotal() int { return c.effortTotal }

// Selection returns the selection state.
func (c *Controller) Selection() selection.State { return c.sel.State() }

// Mode returns Viewing while an issue is open.
func (c *Controller) Mode() selection.Mode { return c.sel.Mode() }

// OpenedIssue returns the open issue.
func (c *Controller) OpenedIssue() (model.Issue, bool) {
	key := c.sel.State().Open
	if key == "" {
		return model.Issue{}, false
	}
	return c.issues.Get(key)
}

// SelectedIssue returns the selected issue.
func (c *Controller) SelectedIssue() (model.Issue, bool) {
	return c.issues.Get(c.sel.State().Selected)
}

// Facets returns the facet store.
func (c *Controller) Facets() *facets.Store { return c.facets }

// Refs returns the referenced entities.
func (c *Controller) Refs() *facets.Refs { return c.refs }

// IsChecked reports whether key is checked.
func (c *Controller) IsChecked(key string) bool { return c.checked.IsChecked(key) }

// CheckedCount returns the number of checked issues.
func (c *Controller) CheckedCount() int { return c.checked.Len() }

// AllChecked reports whether "check all" mode is on.
func (c *Controller) AllChecked() bool { return c.checked.All() }

// BulkOpen reports whether the bulk change dialog is open.
func (c *Controller) BulkOpen() bool { return c.bulkOpen }

// LastBulkSummary returns the outcome of the last bulk change.
func (c *Controller) LastBulkSummary() *model.BulkChangeSummary { return c.lastBulk }

// User returns the current user once known.
func (c *Controller) User() *model.CurrentUser { return c.user }

// Loading reports whether the first page or component pages are loading.
func (c *Controller) Loading() bool { return c.loading }

// LoadingMore reports whether FetchMore is running.
func (c *Controller) LoadingMore() bool { return c.loadingMore }

// Empty reports whether a search finished without results.
func (c *Controller) Empty() bool { return c.loaded && !c.loading && c.issues.Len() == 0 }

// CannotShowOpenIssue reports that the requested issue was not found within
// the fetch ceiling.
func (c *Controller) CannotShowOpenIssue() bool { return c.cannotShowOpenIssue }

// AuthRequired reports that the view needs the user to log in.
func (c *Controller) AuthRequired() bool { return c.authRequired }

// Err returns the last background failure.
func (c *Controller) Err() error { return c.lastErr }

type userMsg struct {
	user *model.CurrentUser
	err  error
}

type firstPageMsg struct {
	key   string
	open  string
	res   *paging.Result
	found bool
	err   error
}

type moreMsg struct {
	key string
	res *paging.Result
	err error
}

type componentMsg struct {
	key string
	res *paging.Result
	err error
}

type facetMsg struct {
	key      string
	property string
	res      *model.SearchResult
	err      error
}

type changeMsg struct {
	key   string
	issue *model.Issue
	err   error
}

type bulkDoneMsg struct {
	summary *model.BulkChangeSummary
	err     error
}

type branchStatusMsg struct {
	err error
}
