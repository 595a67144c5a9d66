package query

import (
	"net/url"

	"github.com/vanderheijden86/issuescope/pkg/model"
)

// Navigation parameters carried next to the filters.
const (
	ParamOpen        = "open"
	ParamMyIssues    = "myIssues"
	ParamProject     = "id"
	ParamBranch      = "branch"
	ParamPullRequest = "pullRequest"
)

// Location is the navigational context of the issue list: the filters,
// the open issue, the "my issues" flag and the project/branch scope.
type Location struct {
	Query    Query
	Open     string
	MyIssues bool
	Project  string
	Branch   model.BranchLike
}

// ParseLocation reads a navigational context from a parameter bag.
func ParseLocation(raw url.Values) Location {
	return Location{
		Query:    Parse(raw),
		Open:     raw.Get(ParamOpen),
		MyIssues: raw.Get(ParamMyIssues) == "true",
		Project:  raw.Get(ParamProject),
		Branch: model.BranchLike{
			Branch:      raw.Get(ParamBranch),
			PullRequest: raw.Get(ParamPullRequest),
		},
	}
}

// ParseLocationString parses an encoded parameter string.
func ParseLocationString(s string) (Location, error) {
	raw, err := url.ParseQuery(s)
	if err != nil {
		return Location{}, err
	}
	return ParseLocation(raw), nil
}

// Values serializes the location.
func (l Location) Values() url.Values {
	out := l.scopeValues()
	if l.Open != "" {
		out.Set(ParamOpen, l.Open)
	}
	return out
}

func (l Location) String() string {
	return l.Values().Encode()
}

// SearchKey identifies the result set the location designates. Two
// locations with the same key show the same issues; the open issue is not
// part of it.
func (l Location) SearchKey() string {
	return l.scopeValues().Encode()
}

func (l Location) scopeValues() url.Values {
	out := Serialize(l.Query)
	if l.MyIssues {
		out.Set(ParamMyIssues, "true")
	}
	if l.Project != "" {
		out.Set(ParamProject, l.Project)
	}
	if l.Branch.Branch != "" {
		out.Set(ParamBranch, l.Branch.Branch)
	}
	if l.Branch.PullRequest != "" {
		out.Set(ParamPullRequest, l.Branch.PullRequest)
	}
	return out
}

// WithOpen returns a copy of l with the given open issue ("" closes it).
func (l Location) WithOpen(key string) Location {
	l.Open = key
	return l
}

// WithQuery returns a copy of l with the given filters.
func (l Location) WithQuery(q Query) Location {
	l.Query = q
	return l
}
