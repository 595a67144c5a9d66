package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/vanderheijden86/issuescope/pkg/metrics"
	"github.com/vanderheijden86/issuescope/pkg/model"
	"github.com/vanderheijden86/issuescope/pkg/paging"
	"github.com/vanderheijden86/issuescope/pkg/query"
	"github.com/vanderheijden86/issuescope/pkg/selection"
)

func (m Model) View() string {
	defer metrics.Timer(metrics.UIRender)()

	var body string
	switch {
	case m.bulk != nil:
		body = PanelStyle.Width(m.width - 2).Height(m.bodyHeight() - 2).Render(m.bulk.View())
	default:
		body = m.renderBody()
	}
	return lipgloss.JoinVertical(lipgloss.Left, m.renderHeader(), m.renderFacets(), body, m.renderStatus(), m.renderFooter())
}

// renderFacets shows the open facets of facetOrder on one line, numbered
// by their toggle key. The standards umbrella shows its security sub-facet.
func (m Model) renderFacets() string {
	store := m.ctrl.Facets()
	refs := m.ctrl.Refs()
	var parts []string
	for i, property := range facetOrder {
		if !store.IsOpen(property) {
			continue
		}
		counts := property
		if property == query.FacetStandards {
			counts = query.StandardSonarsourceSecurity
		}
		text := fmt.Sprintf("%d %s:", i+1, property)
		switch f, ok := store.Facet(counts); {
		case store.IsLoading(counts):
			text += " …"
		case !ok:
			text += mutedStyle.Render(" -")
		default:
			for j, v := range f {
				if j == 4 {
					text += mutedStyle.Render(" …")
					break
				}
				text += fmt.Sprintf(" %s %s", refs.Label(counts, v.Val), mutedStyle.Render(fmt.Sprint(v.Count)))
			}
		}
		parts = append(parts, text)
	}
	if len(parts) == 0 {
		return mutedStyle.Render("facets: 1-6 to open")
	}
	return lipgloss.NewStyle().MaxWidth(m.width).Render(strings.Join(parts, mutedStyle.Render(" │ ")))
}

func (m Model) renderHeader() string {
	ctrl := m.ctrl
	loc := ctrl.Location()

	parts := []string{headerStyle.Render("issuescope")}
	if loc.Project != "" {
		parts = append(parts, loc.Project)
	}
	parts = append(parts, loc.Branch.String())
	if loc.MyIssues {
		parts = append(parts, locationStyle.Render("my issues"))
	}
	if loc.Query.IsFiltered() {
		parts = append(parts, subtextStyle.Render("filtered: "+truncate(query.Serialize(loc.Query).Encode(), 40)))
	}
	if p := ctrl.Paging(); p != nil {
		parts = append(parts, fmt.Sprintf("%d issues", p.Total))
	}
	if effort := ctrl.EffortTotal(); effort > 0 {
		parts = append(parts, "effort "+formatEffort(effort))
	}
	if ctrl.CheckedCount() > 0 {
		parts = append(parts, checkStyle.Render(ctrl.BulkLabel()))
	}
	if ctrl.Loading() || ctrl.LoadingMore() {
		parts = append(parts, m.spin.View())
	}
	return lipgloss.NewStyle().MaxWidth(m.width).Render(strings.Join(parts, mutedStyle.Render(" │ ")))
}

func (m Model) renderBody() string {
	ctrl := m.ctrl
	height := m.bodyHeight()

	if ctrl.Empty() {
		msg := "No issues."
		if ctrl.Location().Query.IsFiltered() || ctrl.Location().MyIssues {
			msg = "No issues match the filters. Press r to reset."
		}
		return PanelStyle.Width(m.width - 2).Height(height - 2).Render(mutedStyle.Render(msg))
	}

	listWidth := m.listWidth()
	list := m.renderList(listWidth-2, height-2)
	issue, open := ctrl.OpenedIssue()
	if !open {
		return PanelStyle.Width(listWidth - 2).Height(height - 2).Render(list)
	}

	left := PanelStyle.Width(listWidth - 2).Height(height - 2).Render(list)
	right := FocusedPanelStyle.Width(m.width - listWidth - 2).Height(height - 2).Render(
		headerStyle.Render(truncate(issue.Key+" "+issue.Message, m.detail.Width)) + "\n" + m.detail.View())
	return lipgloss.JoinHorizontal(lipgloss.Top, left, right)
}

// renderList draws the visible window of the issue list around the
// selected issue.
func (m Model) renderList(width, height int) string {
	ctrl := m.ctrl
	issues := ctrl.Issues()
	n := issues.Len()
	if n == 0 {
		if ctrl.Loading() {
			return mutedStyle.Render("Loading…")
		}
		return ""
	}
	sel := ctrl.Selection()

	selected := issues.IndexOf(sel.Selected)
	if selected < 0 {
		selected = 0
	}
	start := 0
	if selected >= height {
		start = selected - height + 1
	}
	end := start + height
	if end > n {
		end = n
	}

	rows := make([]string, 0, end-start+1)
	for i := start; i < end; i++ {
		rows = append(rows, m.renderRow(issues.At(i), i == selected, width))
	}
	if p := ctrl.Paging(); p != nil && end == n && !p.Exhausted() {
		more := fmt.Sprintf("%d of %d loaded, n for more", n, p.Total)
		if ctrl.LoadingMore() {
			more = "loading more…"
		}
		rows = append(rows, mutedStyle.Render(more))
	}
	return strings.Join(rows, "\n")
}

func (m Model) renderRow(issue model.Issue, selected bool, width int) string {
	check := "  "
	if m.ctrl.IsChecked(issue.Key) {
		check = checkStyle.Render("✓ ")
	}
	where := shortFile(issue.Component)
	if issue.Line > 0 {
		where = fmt.Sprintf("%s:%d", where, issue.Line)
	}
	prefix := check + RenderSeverityBadge(issue.Severity) + " " + typeIcon(issue.Type) + " "
	msgWidth := width - lipgloss.Width(prefix) - len(where) - 1
	text := padRight(truncate(issue.Message, msgWidth), msgWidth) + " " + subtextStyle.Render(where)
	if selected {
		return prefix + selectedStyle.Render(text)
	}
	return prefix + text
}

// detailContent renders the open issue with its locations.
func (m Model) detailContent(issue model.Issue, sel selection.State) string {
	refs := m.ctrl.Refs()
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s  %s\n", RenderSeverityBadge(issue.Severity), string(issue.Type), string(issue.Status))
	if issue.Resolution != "" {
		fmt.Fprintf(&b, "resolution: %s\n", issue.Resolution)
	}
	fmt.Fprintf(&b, "rule:       %s\n", refs.Label(query.ParamRules, issue.Rule))
	fmt.Fprintf(&b, "file:       %s\n", issue.Component)
	if issue.Line > 0 {
		fmt.Fprintf(&b, "line:       %d\n", issue.Line)
	}
	assignee := "unassigned"
	if issue.Assignee != "" {
		assignee = refs.Label(query.ParamAssignees, issue.Assignee)
	}
	fmt.Fprintf(&b, "assignee:   %s\n", assignee)
	if issue.Effort != "" {
		fmt.Fprintf(&b, "effort:     %s\n", issue.Effort)
	}
	if len(issue.Tags) > 0 {
		fmt.Fprintf(&b, "tags:       %s\n", strings.Join(issue.Tags, ", "))
	}
	if issue.CreationDate != "" {
		fmt.Fprintf(&b, "created:    %s\n", issue.CreationDate)
	}
	b.WriteString("\n")
	b.WriteString(issue.Message)
	b.WriteString("\n")

	if issue.HasLocations() {
		b.WriteString("\n")
		flow, hasFlow := sel.Flow.Get()
		if len(issue.Flows) > 1 {
			fmt.Fprintf(&b, "%s\n", subtextStyle.Render(fmt.Sprintf("flow %d of %d", flow+1, len(issue.Flows))))
		}
		current, hasLoc := sel.Location.Get()
		for i, loc := range issue.LocationsOf(flow, hasFlow) {
			line := fmt.Sprintf("%2d. %s %s", i+1, locationLabel(loc), loc.Msg)
			if sel.Navigator && hasLoc && i == current {
				line = locationStyle.Render("▸" + line)
			} else {
				line = " " + line
			}
			b.WriteString(line + "\n")
		}
		if sel.Navigator && hasLoc && current == selection.PrimaryLocation {
			b.WriteString(locationStyle.Render("▸ primary location") + "\n")
		}
	}

	same := paging.SameComponent(m.ctrl.Issues().Issues(), issue.Component)
	if len(same) > 1 {
		fmt.Fprintf(&b, "\n%s\n", subtextStyle.Render(fmt.Sprintf("%d issues in this file", len(same))))
		for _, other := range same {
			if other.Key == issue.Key {
				continue
			}
			fmt.Fprintf(&b, "  %s %s\n", mutedStyle.Render(fmt.Sprintf("L%-4d", other.Line)), truncate(other.Message, m.detail.Width-8))
		}
	}
	return b.String()
}

func (m Model) renderStatus() string {
	if m.status == "" {
		return ""
	}
	if m.statusErr {
		return errorStyle.Render(truncate(m.status, m.width))
	}
	return statusStyle.Render(truncate(m.status, m.width))
}

func (m Model) renderFooter() string {
	if m.scope.Active() == ScopeTextInput {
		return m.search.View()
	}
	if m.ctrl.CannotShowOpenIssue() {
		return errorStyle.Render("The open issue is not part of the current results.")
	}
	var parts []string
	for _, b := range m.keys.ShortHelp() {
		h := b.Help()
		parts = append(parts, h.Key+" "+mutedStyle.Render(h.Desc))
	}
	return lipgloss.NewStyle().MaxWidth(m.width).Render(strings.Join(parts, "  "))
}
