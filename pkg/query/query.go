// Package query maps between the flat parameter bag used by navigation and
// the search endpoint and the structured Query value.
//
// The zero Query is the default query: unresolved issues, no other filter.
// Every field at its default is omitted from the serialized form, so each
// semantic query has exactly one canonical serialization.
package query

import (
	"net/url"
	"strings"
	"time"
)

// SortCreationDate is the only sort key a Query may carry.
const SortCreationDate = "CREATION_DATE"

// Parameter names.
const (
	ParamAssigned            = "assigned"
	ParamAssignees           = "assignees"
	ParamAuthor              = "author"
	ParamCreatedAfter        = "createdAfter"
	ParamCreatedAt           = "createdAt"
	ParamCreatedBefore       = "createdBefore"
	ParamCreatedInLast       = "createdInLast"
	ParamCWE                 = "cwe"
	ParamDirectories         = "directories"
	ParamFileUUIDs           = "fileUuids"
	ParamIssues              = "issues"
	ParamLanguages           = "languages"
	ParamModuleUUIDs         = "moduleUuids"
	ParamOwaspTop10          = "owaspTop10"
	ParamProjects            = "projects"
	ParamResolutions         = "resolutions"
	ParamResolved            = "resolved"
	ParamRules               = "rules"
	ParamSansTop25           = "sansTop25"
	ParamScopes              = "scopes"
	ParamSeverities          = "severities"
	ParamSinceLeakPeriod     = "sinceLeakPeriod"
	ParamSonarsourceSecurity = "sonarsourceSecurity"
	ParamSort                = "s"
	ParamAsc                 = "asc"
	ParamStatuses            = "statuses"
	ParamTags                = "tags"
	ParamText                = "q"
	ParamTypes               = "types"
)

// ResolvedState selects issues by resolution. The zero value keeps
// unresolved issues only.
type ResolvedState int

const (
	Unresolved ResolvedState = iota
	AllIssues
	ResolvedOnly
)

func (r ResolvedState) String() string {
	switch r {
	case AllIssues:
		return "any"
	case ResolvedOnly:
		return "true"
	}
	return "false"
}

// Query is the structured form of the issue filters.
type Query struct {
	Unassigned          bool
	Assignees           []string
	Authors             []string
	CreatedAfter        time.Time
	CreatedAt           string
	CreatedBefore       time.Time
	CreatedInLast       string
	CWE                 []string
	Directories         []string
	Files               []string
	Issues              []string
	Languages           []string
	Modules             []string
	OwaspTop10          []string
	Projects            []string
	Resolutions         []string
	Resolved            ResolvedState
	Rules               []string
	SansTop25           []string
	Scopes              []string
	Severities          []string
	SinceLeakPeriod     bool
	SonarsourceSecurity []string
	Sort                string
	Statuses            []string
	Tags                []string
	Text                string
	Types               []string
}

// Default returns the default query.
func Default() Query {
	return Query{}
}

type arrayField struct {
	param string
	facet string
	get   func(q *Query) *[]string
}

// arrayFields lists the comma-joined list fields. Author is absent: it is a
// repeated parameter.
var arrayFields = []arrayField{
	{ParamAssignees, ParamAssignees, func(q *Query) *[]string { return &q.Assignees }},
	{ParamCWE, ParamCWE, func(q *Query) *[]string { return &q.CWE }},
	{ParamDirectories, ParamDirectories, func(q *Query) *[]string { return &q.Directories }},
	{ParamFileUUIDs, FacetFiles, func(q *Query) *[]string { return &q.Files }},
	{ParamIssues, ParamIssues, func(q *Query) *[]string { return &q.Issues }},
	{ParamLanguages, ParamLanguages, func(q *Query) *[]string { return &q.Languages }},
	{ParamModuleUUIDs, FacetModules, func(q *Query) *[]string { return &q.Modules }},
	{ParamOwaspTop10, ParamOwaspTop10, func(q *Query) *[]string { return &q.OwaspTop10 }},
	{ParamProjects, ParamProjects, func(q *Query) *[]string { return &q.Projects }},
	{ParamResolutions, ParamResolutions, func(q *Query) *[]string { return &q.Resolutions }},
	{ParamRules, ParamRules, func(q *Query) *[]string { return &q.Rules }},
	{ParamSansTop25, ParamSansTop25, func(q *Query) *[]string { return &q.SansTop25 }},
	{ParamScopes, ParamScopes, func(q *Query) *[]string { return &q.Scopes }},
	{ParamSeverities, ParamSeverities, func(q *Query) *[]string { return &q.Severities }},
	{ParamSonarsourceSecurity, ParamSonarsourceSecurity, func(q *Query) *[]string { return &q.SonarsourceSecurity }},
	{ParamStatuses, ParamStatuses, func(q *Query) *[]string { return &q.Statuses }},
	{ParamTags, ParamTags, func(q *Query) *[]string { return &q.Tags }},
	{ParamTypes, ParamTypes, func(q *Query) *[]string { return &q.Types }},
}

// Parse builds a Query from a parameter bag. Unknown keys are ignored and
// missing or malformed values fall back to their defaults.
func Parse(raw url.Values) Query {
	var q Query
	for _, f := range arrayFields {
		*f.get(&q) = parseArray(raw[f.param])
	}
	q.Authors = parseRepeated(raw[ParamAuthor])
	q.Unassigned = raw.Get(ParamAssigned) == "false"
	q.Resolved = parseResolved(raw.Get(ParamResolved))
	q.SinceLeakPeriod = raw.Get(ParamSinceLeakPeriod) == "true"
	q.CreatedAfter = parseDate(raw.Get(ParamCreatedAfter))
	q.CreatedBefore = parseDate(raw.Get(ParamCreatedBefore))
	q.CreatedAt = strings.TrimSpace(raw.Get(ParamCreatedAt))
	q.CreatedInLast = strings.TrimSpace(raw.Get(ParamCreatedInLast))
	q.Text = strings.TrimSpace(raw.Get(ParamText))
	if raw.Get(ParamSort) == SortCreationDate {
		q.Sort = SortCreationDate
	}
	return q
}

// Serialize returns the canonical parameter bag for q. Default values are
// omitted. Values are trimmed and empty ones dropped, the way Parse reads
// them. A sorted query always carries asc=false.
func Serialize(q Query) url.Values {
	out := url.Values{}
	for _, f := range arrayFields {
		if v := parseArray(*f.get(&q)); len(v) > 0 {
			out.Set(f.param, strings.Join(v, ","))
		}
	}
	if authors := parseRepeated(q.Authors); len(authors) > 0 {
		out[ParamAuthor] = authors
	}
	if q.Unassigned {
		out.Set(ParamAssigned, "false")
	}
	if q.Resolved != Unresolved {
		out.Set(ParamResolved, q.Resolved.String())
	}
	if q.SinceLeakPeriod {
		out.Set(ParamSinceLeakPeriod, "true")
	}
	if !q.CreatedAfter.IsZero() {
		out.Set(ParamCreatedAfter, formatDate(q.CreatedAfter))
	}
	if !q.CreatedBefore.IsZero() {
		out.Set(ParamCreatedBefore, formatDate(q.CreatedBefore))
	}
	if v := strings.TrimSpace(q.CreatedAt); v != "" {
		out.Set(ParamCreatedAt, v)
	}
	if v := strings.TrimSpace(q.CreatedInLast); v != "" {
		out.Set(ParamCreatedInLast, v)
	}
	if v := strings.TrimSpace(q.Text); v != "" {
		out.Set(ParamText, v)
	}
	if q.Sort == SortCreationDate {
		out.Set(ParamSort, SortCreationDate)
		out.Set(ParamAsc, "false")
	}
	return out
}

// SearchParams returns the parameter bag sent to the search endpoint. It is
// the canonical form plus an explicit resolved flag, since the endpoint
// returns every issue when the flag is absent.
func SearchParams(q Query) url.Values {
	out := Serialize(q)
	switch q.Resolved {
	case Unresolved:
		out.Set(ParamResolved, "false")
	case AllIssues:
		out.Del(ParamResolved)
	}
	return out
}

// String returns the encoded canonical form.
func (q Query) String() string {
	return Serialize(q).Encode()
}

// Equal reports whether two queries have the same canonical form.
func Equal(a, b Query) bool {
	return a.String() == b.String()
}

// AreQueriesEqual compares two raw parameter bags by their parsed filters.
func AreQueriesEqual(a, b url.Values) bool {
	return Equal(Parse(a), Parse(b))
}

// IsFiltered reports whether q differs from the default query.
func (q Query) IsFiltered() bool {
	return !Equal(q, Default())
}

// Values returns the list filter for a facet property or parameter name.
func (q Query) Values(property string) []string {
	if property == ParamAuthor {
		return q.Authors
	}
	for _, f := range arrayFields {
		if f.param == property || f.facet == property {
			return *f.get(&q)
		}
	}
	return nil
}

// IsFilteredBy reports whether q filters on the given facet property.
func (q Query) IsFilteredBy(property string) bool {
	return len(q.Values(property)) > 0
}

// Changes is a partial update in serialized form. A key mapped to nothing
// or to a single empty string clears the field.
type Changes url.Values

// Change starts a Changes with one field.
func Change(key string, values ...string) Changes {
	return Changes{}.Set(key, values...)
}

// Set records a field update and returns c for chaining.
func (c Changes) Set(key string, values ...string) Changes {
	if key == ParamAuthor {
		c[key] = append([]string(nil), values...)
		return c
	}
	c[key] = []string{strings.Join(values, ",")}
	return c
}

// Clear records that a field returns to its default.
func (c Changes) Clear(key string) Changes {
	c[key] = nil
	return c
}

// Apply returns q with the changes applied.
func (q Query) Apply(changes Changes) Query {
	raw := Serialize(q)
	for key, values := range changes {
		if isEmpty(values) {
			raw.Del(key)
			continue
		}
		raw[key] = append([]string(nil), values...)
	}
	return Parse(raw)
}

// Touches reports whether the changes name the given property or its
// parameter.
func (c Changes) Touches(property string) bool {
	param := MapFacet(property)
	_, a := c[property]
	_, b := c[param]
	return a || b
}

func isEmpty(values []string) bool {
	for _, v := range values {
		if v != "" {
			return false
		}
	}
	return true
}

func parseArray(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func parseRepeated(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func parseResolved(v string) ResolvedState {
	switch v {
	case "true":
		return ResolvedOnly
	case "any":
		return AllIssues
	}
	return Unresolved
}

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02T15:04:05-0700"
)

func parseDate(v string) time.Time {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}
	}
	for _, layout := range []string{dateLayout, dateTimeLayout, time.RFC3339} {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	return time.Time{}
}

// formatDate keeps the time of day only when there is one.
func formatDate(t time.Time) string {
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
		return t.Format(dateLayout)
	}
	return t.Format(dateTimeLayout)
}
