package model

import "sort"

// FacetValue is one bucket of a facet.
type FacetValue struct {
	Val   string `json:"val"`
	Count int    `json:"count"`
}

// RawFacet is a facet as returned by the search endpoint.
type RawFacet struct {
	Property string       `json:"property"`
	Values   []FacetValue `json:"values"`
}

// Facet holds the value counts of one property, in display order.
type Facet []FacetValue

// Count returns the count for val and whether the value is present.
func (f Facet) Count(val string) (int, bool) {
	for _, v := range f {
		if v.Val == val {
			return v.Count, true
		}
	}
	return 0, false
}

// Component is a referenced project, directory or file.
type Component struct {
	Key       string `json:"key"`
	UUID      string `json:"uuid,omitempty"`
	Name      string `json:"name"`
	LongName  string `json:"longName,omitempty"`
	Path      string `json:"path,omitempty"`
	Qualifier string `json:"qualifier,omitempty"`
	Project   string `json:"project,omitempty"`
	Enabled   bool   `json:"enabled,omitempty"`
}

// Component qualifiers.
const (
	QualifierProject   = "TRK"
	QualifierDirectory = "DIR"
	QualifierFile      = "FIL"
	QualifierUnitTest  = "UTS"
)

// Rule is a referenced coding rule.
type Rule struct {
	Key      string `json:"key"`
	Name     string `json:"name"`
	Lang     string `json:"lang,omitempty"`
	LangName string `json:"langName,omitempty"`
}

// Language is a referenced language.
type Language struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// User is a referenced user.
type User struct {
	Login  string `json:"login"`
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
	Active bool   `json:"active"`
}

// RawIssue is an issue as returned by the search endpoint, before flows
// are split into flows and secondary locations.
type RawIssue struct {
	Key          string     `json:"key"`
	Rule         string     `json:"rule"`
	Severity     Severity   `json:"severity"`
	Type         IssueType  `json:"type"`
	Status       Status     `json:"status"`
	Resolution   string     `json:"resolution,omitempty"`
	Message      string     `json:"message"`
	Component    string     `json:"component"`
	Project      string     `json:"project"`
	Branch       string     `json:"branch,omitempty"`
	PullRequest  string     `json:"pullRequest,omitempty"`
	Line         int        `json:"line,omitempty"`
	TextRange    *TextRange `json:"textRange,omitempty"`
	Flows        []Flow     `json:"flows,omitempty"`
	Assignee     string     `json:"assignee,omitempty"`
	Author       string     `json:"author,omitempty"`
	Tags         []string   `json:"tags,omitempty"`
	Effort       string     `json:"effort,omitempty"`
	CreationDate string     `json:"creationDate,omitempty"`
	UpdateDate   string     `json:"updateDate,omitempty"`
	Transitions  []string   `json:"transitions,omitempty"`
	Actions      []string   `json:"actions,omitempty"`
}

// SearchResponse is the wire shape of the search endpoint.
type SearchResponse struct {
	Paging      Paging      `json:"paging"`
	EffortTotal int         `json:"effortTotal"`
	Issues      []RawIssue  `json:"issues"`
	Components  []Component `json:"components,omitempty"`
	Facets      []RawFacet  `json:"facets,omitempty"`
	Rules       []Rule      `json:"rules,omitempty"`
	Users       []User      `json:"users,omitempty"`
	Languages   []Language  `json:"languages,omitempty"`
}

// IssueResponse is the wire shape of the single-issue mutation endpoints.
type IssueResponse struct {
	Issue      RawIssue    `json:"issue"`
	Components []Component `json:"components,omitempty"`
	Rules      []Rule      `json:"rules,omitempty"`
	Users      []User      `json:"users,omitempty"`
}

// SearchResult is a parsed search response.
type SearchResult struct {
	Issues      []Issue
	Paging      Paging
	EffortTotal int
	Facets      []RawFacet
	Components  []Component
	Rules       []Rule
	Users       []User
	Languages   []Language
}

// ParseSearchResponse converts a wire response into a SearchResult.
func ParseSearchResponse(resp SearchResponse) SearchResult {
	byKey := make(map[string]Component, len(resp.Components))
	for _, c := range resp.Components {
		byKey[c.Key] = c
	}
	issues := make([]Issue, 0, len(resp.Issues))
	for _, raw := range resp.Issues {
		issues = append(issues, ParseIssue(raw, byKey))
	}
	return SearchResult{
		Issues:      issues,
		Paging:      resp.Paging,
		EffortTotal: resp.EffortTotal,
		Facets:      resp.Facets,
		Components:  resp.Components,
		Rules:       resp.Rules,
		Users:       resp.Users,
		Languages:   resp.Languages,
	}
}

// ParseIssue converts a wire issue, resolving component names from the
// referenced components.
//
// Flows made only of single locations become secondary locations ordered
// by position. Real flows are returned by the endpoint last step first and
// are reversed into reading order. Locations without a text range are dropped.
func ParseIssue(raw RawIssue, components map[string]Component) Issue {
	issue := Issue{
		Key:          raw.Key,
		Rule:         raw.Rule,
		Severity:     raw.Severity,
		Type:         raw.Type,
		Status:       raw.Status,
		Resolution:   raw.Resolution,
		Message:      raw.Message,
		Component:    raw.Component,
		Project:      raw.Project,
		Branch:       raw.Branch,
		PullRequest:  raw.PullRequest,
		Line:         raw.Line,
		TextRange:    raw.TextRange,
		Assignee:     raw.Assignee,
		Author:       raw.Author,
		Tags:         raw.Tags,
		Effort:       raw.Effort,
		CreationDate: raw.CreationDate,
		UpdateDate:   raw.UpdateDate,
		Transitions:  raw.Transitions,
		Actions:      raw.Actions,
	}
	if c, ok := components[raw.Component]; ok {
		issue.ComponentLongName = c.LongName
	}
	if c, ok := components[raw.Project]; ok {
		issue.ProjectName = c.Name
	}

	flows := make([][]Location, 0, len(raw.Flows))
	for _, f := range raw.Flows {
		if f.Locations == nil {
			continue
		}
		locs := make([]Location, 0, len(f.Locations))
		for _, loc := range f.Locations {
			if loc.TextRange == nil {
				continue
			}
			if c, ok := components[loc.Component]; ok {
				loc.ComponentName = c.LongName
			}
			locs = append(locs, loc)
		}
		flows = append(flows, locs)
	}

	onlySecondary := true
	for _, f := range flows {
		if len(f) != 1 {
			onlySecondary = false
			break
		}
	}
	if onlySecondary {
		for _, f := range flows {
			issue.SecondaryLocations = append(issue.SecondaryLocations, f...)
		}
		sort.SliceStable(issue.SecondaryLocations, func(a, b int) bool {
			ra, rb := issue.SecondaryLocations[a].TextRange, issue.SecondaryLocations[b].TextRange
			if ra.StartLine != rb.StartLine {
				return ra.StartLine < rb.StartLine
			}
			return ra.StartOffset < rb.StartOffset
		})
		return issue
	}

	issue.Flows = make([]Flow, len(flows))
	for idx, f := range flows {
		reversed := make([]Location, len(f))
		for j, loc := range f {
			reversed[len(f)-1-j] = loc
		}
		issue.Flows[idx] = Flow{Locations: reversed}
	}
	return issue
}

// ToRaw converts an issue back to its wire shape. Secondary locations are
// emitted as single-location flows.
func (i Issue) ToRaw() RawIssue {
	raw := RawIssue{
		Key:          i.Key,
		Rule:         i.Rule,
		Severity:     i.Severity,
		Type:         i.Type,
		Status:       i.Status,
		Resolution:   i.Resolution,
		Message:      i.Message,
		Component:    i.Component,
		Project:      i.Project,
		Branch:       i.Branch,
		PullRequest:  i.PullRequest,
		Line:         i.Line,
		TextRange:    i.TextRange,
		Assignee:     i.Assignee,
		Author:       i.Author,
		Tags:         i.Tags,
		Effort:       i.Effort,
		CreationDate: i.CreationDate,
		UpdateDate:   i.UpdateDate,
		Transitions:  i.Transitions,
		Actions:      i.Actions,
	}
	for _, f := range i.Flows {
		reversed := make([]Location, len(f.Locations))
		for j, loc := range f.Locations {
			reversed[len(f.Locations)-1-j] = loc
		}
		raw.Flows = append(raw.Flows, Flow{Locations: reversed})
	}
	for _, loc := range i.SecondaryLocations {
		raw.Flows = append(raw.Flows, Flow{Locations: []Location{loc}})
	}
	return raw
}
