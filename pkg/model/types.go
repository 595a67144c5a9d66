// Package model defines the issue, paging and facet types shared by the
// search client, the offline datasource and the exploration controller.
package model

import (
	"fmt"
	"strings"
)

// TextRange locates a span of source code. Lines are 1-based, offsets 0-based.
type TextRange struct {
	StartLine   int `json:"startLine"`
	EndLine     int `json:"endLine"`
	StartOffset int `json:"startOffset"`
	EndOffset   int `json:"endOffset"`
}

// Location is one step of a flow or a secondary location of an issue.
type Location struct {
	Component     string     `json:"component,omitempty"`
	ComponentName string     `json:"componentName,omitempty"`
	TextRange     *TextRange `json:"textRange,omitempty"`
	Msg           string     `json:"msg,omitempty"`
}

// Flow is an ordered sequence of locations explaining a multi-step finding.
type Flow struct {
	Locations []Location `json:"locations,omitempty"`
}

// Issue is a finding reported against a component.
//
// Issues are treated as immutable values once they are part of a result
// set: updates produce a new Issue that replaces the old one by key.
type Issue struct {
	Key                string     `json:"key"`
	Rule               string     `json:"rule"`
	Severity           Severity   `json:"severity"`
	Type               IssueType  `json:"type"`
	Status             Status     `json:"status"`
	Resolution         string     `json:"resolution,omitempty"`
	Message            string     `json:"message"`
	Component          string     `json:"component"`
	ComponentLongName  string     `json:"componentLongName,omitempty"`
	Project            string     `json:"project"`
	ProjectName        string     `json:"projectName,omitempty"`
	Branch             string     `json:"branch,omitempty"`
	PullRequest        string     `json:"pullRequest,omitempty"`
	Line               int        `json:"line,omitempty"`
	TextRange          *TextRange `json:"textRange,omitempty"`
	Flows              []Flow     `json:"flows,omitempty"`
	SecondaryLocations []Location `json:"secondaryLocations,omitempty"`
	Assignee           string     `json:"assignee,omitempty"`
	Author             string     `json:"author,omitempty"`
	Tags               []string   `json:"tags,omitempty"`
	Effort             string     `json:"effort,omitempty"`
	CreationDate       string     `json:"creationDate,omitempty"`
	UpdateDate         string     `json:"updateDate,omitempty"`
	Transitions        []string   `json:"transitions,omitempty"`
	Actions            []string   `json:"actions,omitempty"`
}

// Clone returns a deep copy of the issue.
func (i Issue) Clone() Issue {
	clone := i
	if i.TextRange != nil {
		v := *i.TextRange
		clone.TextRange = &v
	}
	if i.Flows != nil {
		clone.Flows = make([]Flow, len(i.Flows))
		for idx, f := range i.Flows {
			clone.Flows[idx] = Flow{Locations: cloneLocations(f.Locations)}
		}
	}
	clone.SecondaryLocations = cloneLocations(i.SecondaryLocations)
	clone.Tags = cloneStrings(i.Tags)
	clone.Transitions = cloneStrings(i.Transitions)
	clone.Actions = cloneStrings(i.Actions)
	return clone
}

// HasLocations reports whether the issue carries flows or secondary
// locations that a locations navigator could walk through.
func (i Issue) HasLocations() bool {
	return len(i.Flows) > 0 || len(i.SecondaryLocations) > 0
}

// LocationsOf returns the locations walked by the navigator: the selected
// flow's locations when flowIndex designates a flow, the secondary
// locations otherwise.
func (i Issue) LocationsOf(flowIndex int, hasFlow bool) []Location {
	if hasFlow && flowIndex >= 0 && flowIndex < len(i.Flows) {
		return i.Flows[flowIndex].Locations
	}
	return i.SecondaryLocations
}

// Validate checks if the issue data is logically valid.
func (i *Issue) Validate() error {
	if i.Key == "" {
		return fmt.Errorf("issue key cannot be empty")
	}
	if i.Component == "" {
		return fmt.Errorf("issue %s: component cannot be empty", i.Key)
	}
	if i.Severity != "" && !i.Severity.IsValid() {
		return fmt.Errorf("issue %s: invalid severity: %s", i.Key, i.Severity)
	}
	if i.Type != "" && !i.Type.IsValid() {
		return fmt.Errorf("issue %s: invalid type: %s", i.Key, i.Type)
	}
	if i.Status != "" && !i.Status.IsValid() {
		return fmt.Errorf("issue %s: invalid status: %s", i.Key, i.Status)
	}
	return nil
}

func cloneLocations(in []Location) []Location {
	if in == nil {
		return nil
	}
	out := make([]Location, len(in))
	for idx, loc := range in {
		out[idx] = loc
		if loc.TextRange != nil {
			v := *loc.TextRange
			out[idx].TextRange = &v
		}
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

// Severity of an issue.
type Severity string

const (
	SeverityBlocker  Severity = "BLOCKER"
	SeverityCritical Severity = "CRITICAL"
	SeverityMajor    Severity = "MAJOR"
	SeverityMinor    Severity = "MINOR"
	SeverityInfo     Severity = "INFO"
)

// Severities lists severities from most to least severe.
var Severities = []Severity{SeverityBlocker, SeverityCritical, SeverityMajor, SeverityMinor, SeverityInfo}

// IsValid returns true if the severity is a recognized value
func (s Severity) IsValid() bool {
	switch s {
	case SeverityBlocker, SeverityCritical, SeverityMajor, SeverityMinor, SeverityInfo:
		return true
	}
	return false
}

// IssueType classifies an issue.
type IssueType string

const (
	TypeBug             IssueType = "BUG"
	TypeVulnerability   IssueType = "VULNERABILITY"
	TypeCodeSmell       IssueType = "CODE_SMELL"
	TypeSecurityHotspot IssueType = "SECURITY_HOTSPOT"
)

// IssueTypes lists the recognized issue types.
var IssueTypes = []IssueType{TypeBug, TypeVulnerability, TypeCodeSmell, TypeSecurityHotspot}

// IsValid returns true if the issue type is a recognized value
func (t IssueType) IsValid() bool {
	switch t {
	case TypeBug, TypeVulnerability, TypeCodeSmell, TypeSecurityHotspot:
		return true
	}
	return false
}

// Status is the workflow state of an issue.
type Status string

const (
	StatusOpen      Status = "OPEN"
	StatusConfirmed Status = "CONFIRMED"
	StatusReopened  Status = "REOPENED"
	StatusResolved  Status = "RESOLVED"
	StatusClosed    Status = "CLOSED"
)

// IsValid returns true if the status is a recognized value
func (s Status) IsValid() bool {
	switch s {
	case StatusOpen, StatusConfirmed, StatusReopened, StatusResolved, StatusClosed:
		return true
	}
	return false
}

// IsResolved returns true if the status carries a resolution.
func (s Status) IsResolved() bool {
	return s == StatusResolved || s == StatusClosed
}

// Resolutions.
const (
	ResolutionFixed         = "FIXED"
	ResolutionFalsePositive = "FALSE-POSITIVE"
	ResolutionWontFix       = "WONTFIX"
	ResolutionRemoved       = "REMOVED"
)

// Workflow transitions accepted by the single-issue mutation endpoint.
const (
	TransitionConfirm       = "confirm"
	TransitionUnconfirm     = "unconfirm"
	TransitionReopen        = "reopen"
	TransitionResolve       = "resolve"
	TransitionFalsePositive = "falsepositive"
	TransitionWontFix       = "wontfix"
)

// Paging describes how much of a result set has been retrieved.
// PageIndex is 1-based.
type Paging struct {
	PageIndex int `json:"pageIndex"`
	PageSize  int `json:"pageSize"`
	Total     int `json:"total"`
}

// Fetched returns the number of issues covered by pages 1..PageIndex.
func (p Paging) Fetched() int {
	return p.PageIndex * p.PageSize
}

// Exhausted reports whether every issue of the result set has been covered.
func (p Paging) Exhausted() bool {
	return p.Total <= p.Fetched()
}

// BranchLike identifies the branch or pull request a search is scoped to.
// The zero value means the main branch.
type BranchLike struct {
	Branch      string `json:"branch,omitempty"`
	PullRequest string `json:"pullRequest,omitempty"`
}

// IsPullRequest reports whether the branch-like is a pull request.
func (b BranchLike) IsPullRequest() bool {
	return b.PullRequest != ""
}

// IsMain reports whether no branch or pull request is selected.
func (b BranchLike) IsMain() bool {
	return b.Branch == "" && b.PullRequest == ""
}

func (b BranchLike) String() string {
	switch {
	case b.PullRequest != "":
		return "pr:" + b.PullRequest
	case b.Branch != "":
		return "branch:" + b.Branch
	}
	return "main"
}

// CurrentUser is the identity the client is authenticated as.
type CurrentUser struct {
	Login      string `json:"login,omitempty"`
	Name       string `json:"name,omitempty"`
	IsLoggedIn bool   `json:"isLoggedIn"`
}

// ChangeKind selects which attribute an IssueChange modifies.
type ChangeKind string

const (
	ChangeTransition ChangeKind = "transition"
	ChangeAssign     ChangeKind = "assign"
	ChangeSeverity   ChangeKind = "severity"
	ChangeType       ChangeKind = "type"
	ChangeTags       ChangeKind = "tags"
)

// IssueChange is a single mutation applied to one or more issues.
// Value carries the transition, assignee, severity or type; Values carries tags.
type IssueChange struct {
	Kind   ChangeKind `json:"kind"`
	Value  string     `json:"value,omitempty"`
	Values []string   `json:"values,omitempty"`
}

func (c IssueChange) String() string {
	if c.Kind == ChangeTags {
		return fmt.Sprintf("%s=%s", c.Kind, strings.Join(c.Values, ","))
	}
	return fmt.Sprintf("%s=%s", c.Kind, c.Value)
}

// BulkChangeRequest applies Changes to every issue in Issues. Batches
// belonging to the same user action share an OperationID.
type BulkChangeRequest struct {
	OperationID       string        `json:"operationId,omitempty"`
	Issues            []string      `json:"issues"`
	Changes           []IssueChange `json:"changes"`
	SendNotifications bool          `json:"sendNotifications,omitempty"`
}

// BulkChangeSummary reports the outcome of a bulk change.
type BulkChangeSummary struct {
	Total    int `json:"total"`
	Success  int `json:"success"`
	Ignored  int `json:"ignored"`
	Failures int `json:"failures"`
}
