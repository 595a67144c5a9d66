// Package facets holds facet counts, open/loading flags and the referenced
// entities used to label facet values.
package facets

import (
	"net/url"
	"sort"

	"github.com/vanderheijden86/issuescope/pkg/model"
	"github.com/vanderheijden86/issuescope/pkg/query"
)

// ReversedFacets are displayed in reverse of the endpoint's order.
var ReversedFacets = map[string]bool{
	"coverage":     true,
	"new_coverage": true,
}

// Store tracks per-property counts and UI flags. A facet may be open
// without being loaded; it is loaded only once its counts arrived.
//
// Store is not safe for concurrent use. It is owned by the controller and
// mutated from its event handlers only.
type Store struct {
	counts  map[string]model.Facet
	open    map[string]bool
	loading map[string]bool
	// outdated holds counts kept on display while a new first page is
	// in flight. They no longer count as loaded.
	outdated map[string]bool
}

// NewStore returns a store with the given open flags.
func NewStore(open map[string]bool) *Store {
	s := &Store{
		counts:   make(map[string]model.Facet),
		open:     make(map[string]bool, len(open)),
		loading:  make(map[string]bool),
		outdated: make(map[string]bool),
	}
	for k, v := range open {
		s.open[k] = v
	}
	return s
}

// IsOpen reports whether the facet is expanded.
func (s *Store) IsOpen(property string) bool {
	return s.open[property]
}

// OpenFlags returns a copy of the open flags.
func (s *Store) OpenFlags() map[string]bool {
	out := make(map[string]bool, len(s.open))
	for k, v := range s.open {
		out[k] = v
	}
	return out
}

// IsLoading reports whether a facet-only fetch is in flight for property.
func (s *Store) IsLoading(property string) bool {
	return s.loading[property]
}

// Facet returns the loaded counts for property.
func (s *Store) Facet(property string) (model.Facet, bool) {
	f, ok := s.counts[property]
	return f, ok
}

// IsLoaded reports whether counts for property are present and belong to
// the current search.
func (s *Store) IsLoaded(property string) bool {
	_, ok := s.counts[property]
	return ok && !s.outdated[property]
}

// Toggle flips the open flag of property. It returns the property whose
// counts must be fetched, if any: opening an unloaded facet loads it, and
// opening the standards umbrella loads the sonarsourceSecurity sub-facet
// when that one opens along with it. The umbrella itself has no counts.
// Toggle marks the returned property as loading.
func (s *Store) Toggle(property string, q query.Query) (load string, ok bool) {
	willOpen := !s.open[property]
	s.open[property] = willOpen
	if !willOpen {
		return "", false
	}

	target := property
	if property == query.FacetStandards {
		sub := ShouldOpenSonarSourceSecurityFacet(s.open, q)
		s.open[query.StandardSonarsourceSecurity] = sub
		if !sub {
			return "", false
		}
		target = query.StandardSonarsourceSecurity
	}

	if s.IsLoaded(target) || s.loading[target] {
		return "", false
	}
	s.loading[target] = true
	return target, true
}

// Close collapses property.
func (s *Store) Close(property string) {
	s.open[property] = false
}

// ApplyFilterChange re-evaluates the standards flags against the changed
// fields only.
func (s *Store) ApplyFilterChange(changes query.Changes) {
	partial := query.Parse(url.Values(changes))
	flags := s.OpenFlags()
	s.open[query.StandardSonarsourceSecurity] = ShouldOpenSonarSourceSecurityFacet(flags, partial)
	s.open[query.FacetStandards] = ShouldOpenStandardsFacet(flags, partial)
}

// Requested returns the open facets whose counts a page fetch should
// request, as endpoint parameter names, sorted.
func (s *Store) Requested() []string {
	var out []string
	for k, v := range s.open {
		if v && k != query.FacetStandards {
			out = append(out, query.MapFacet(k))
		}
	}
	sort.Strings(out)
	return out
}

// Invalidate marks every loaded facet as belonging to a previous search.
// Called when a new first page is requested.
func (s *Store) Invalidate() {
	for property := range s.counts {
		s.outdated[property] = true
	}
}

// Replace installs the facets of a new first page. Counts loaded for the
// same search after the page was requested survive when the page did not
// carry them and the facet is still open; everything else is dropped.
func (s *Store) Replace(raw []model.RawFacet) {
	next := ParseFacets(raw)
	for property, f := range s.counts {
		if _, ok := next[property]; ok || !s.open[property] || s.outdated[property] {
			continue
		}
		next[property] = f
	}
	for property := range next {
		delete(s.loading, property)
	}
	s.counts = next
	s.outdated = make(map[string]bool)
}

// Merge adds the given facets and clears their loading flags.
func (s *Store) Merge(raw []model.RawFacet) {
	for property, f := range ParseFacets(raw) {
		s.counts[property] = f
		delete(s.loading, property)
		delete(s.outdated, property)
	}
}

// FinishLoad clears the loading flag of property without touching counts.
func (s *Store) FinishLoad(property string) {
	delete(s.loading, property)
}

// ParseFacets converts endpoint facets into client facets keyed by client
// property name.
func ParseFacets(raw []model.RawFacet) map[string]model.Facet {
	out := make(map[string]model.Facet, len(raw))
	for _, rf := range raw {
		property := query.UnmapFacet(rf.Property)
		values := make(model.Facet, len(rf.Values))
		copy(values, rf.Values)
		if ReversedFacets[property] {
			for i, j := 0, len(values)-1; i < j; i, j = i+1, j-1 {
				values[i], values[j] = values[j], values[i]
			}
		}
		out[property] = values
	}
	return out
}
