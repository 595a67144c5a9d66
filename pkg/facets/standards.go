package facets

import "github.com/vanderheijden86/issuescope/pkg/query"

// The standards umbrella groups the security standard facets. Whether it
// and its sub-facets start open depends on the open flags and on which
// standards the query filters on. The rules below are evaluated both on
// the full query (initial state) and on the changed fields only (after a
// filter change).

// ShouldOpenStandardsFacet reports whether the umbrella should be open:
// it already is, or any security standard is filtered.
func ShouldOpenStandardsFacet(open map[string]bool, q query.Query) bool {
	if open[query.FacetStandards] {
		return true
	}
	for _, std := range query.SecurityStandards {
		if q.IsFilteredBy(std) {
			return true
		}
	}
	return false
}

// ShouldOpenStandardsChildFacet reports whether the std sub-facet should be
// open. A missing umbrella flag does not count as closed. CWE only opens
// when explicitly requested since its value list is large.
func ShouldOpenStandardsChildFacet(open map[string]bool, q query.Query, std string) bool {
	if v, ok := open[query.FacetStandards]; ok && !v {
		return false
	}
	if open[std] {
		return true
	}
	return std != query.StandardCWE && q.IsFilteredBy(std)
}

// ShouldOpenSonarSourceSecurityFacet reports whether the sonarsourceSecurity
// sub-facet should be open. Besides its own child rule it is the default
// sub-facet of an open umbrella when no other sub-facet is open.
func ShouldOpenSonarSourceSecurityFacet(open map[string]bool, q query.Query) bool {
	if ShouldOpenStandardsChildFacet(open, q, query.StandardSonarsourceSecurity) {
		return true
	}
	if !ShouldOpenStandardsFacet(open, q) {
		return false
	}
	for _, std := range []string{query.StandardOwaspTop10, query.StandardCWE, query.StandardSansTop25} {
		if ShouldOpenStandardsChildFacet(open, q, std) {
			return false
		}
	}
	return true
}

// InitialOpen returns the open flags for a freshly mounted list.
func InitialOpen(q query.Query) map[string]bool {
	none := map[string]bool{}
	return map[string]bool{
		query.ParamSeverities:             true,
		query.ParamTypes:                  true,
		query.StandardOwaspTop10:          ShouldOpenStandardsChildFacet(none, q, query.StandardOwaspTop10),
		query.StandardSansTop25:           ShouldOpenStandardsChildFacet(none, q, query.StandardSansTop25),
		query.StandardSonarsourceSecurity: ShouldOpenSonarSourceSecurityFacet(none, q),
		query.FacetStandards:              ShouldOpenStandardsFacet(none, q),
	}
}
