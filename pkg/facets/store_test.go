package facets

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"

	"github.com/vanderheijden86/issuescope/pkg/model"
	"github.com/vanderheijden86/issuescope/pkg/query"
)

func TestStore_ToggleLoadsOnlyWhenOpeningUnloaded(t *testing.T) {
	s := NewStore(InitialOpen(noFilter))

	if _, ok := s.Toggle(query.ParamSeverities, noFilter); ok {
		t.Error("closing a facet must not load it")
	}
	if s.IsOpen(query.ParamSeverities) {
		t.Error("severities should be closed")
	}

	load, ok := s.Toggle(query.ParamRules, noFilter)
	if !ok || load != query.ParamRules {
		t.Fatalf("expected rules load, got %q %v", load, ok)
	}
	if !s.IsLoading(query.ParamRules) {
		t.Error("rules should be loading")
	}

	// close and reopen while the first load is still in flight
	s.Toggle(query.ParamRules, noFilter)
	if _, ok := s.Toggle(query.ParamRules, noFilter); ok {
		t.Error("a facet already loading must not be requested twice")
	}

	s.Merge([]model.RawFacet{{Property: query.ParamRules, Values: []model.FacetValue{{Val: "go:S100", Count: 3}}}})
	if s.IsLoading(query.ParamRules) {
		t.Error("merge should clear the loading flag")
	}
	s.Toggle(query.ParamRules, noFilter)
	if _, ok := s.Toggle(query.ParamRules, noFilter); ok {
		t.Error("a loaded facet must not be requested again")
	}
}

func TestStore_ToggleStandardsLoadsSecuritySubFacet(t *testing.T) {
	s := NewStore(map[string]bool{})

	load, ok := s.Toggle(query.FacetStandards, noFilter)
	if !ok || load != query.StandardSonarsourceSecurity {
		t.Fatalf("expected sonarsourceSecurity load, got %q %v", load, ok)
	}
	if !s.IsOpen(query.StandardSonarsourceSecurity) {
		t.Error("sub-facet should open along with the umbrella")
	}
	if s.IsLoading(query.FacetStandards) {
		t.Error("the umbrella itself is never loaded")
	}
}

func TestStore_ToggleStandardsWithOtherChildOpen(t *testing.T) {
	s := NewStore(map[string]bool{query.StandardOwaspTop10: true})

	if load, ok := s.Toggle(query.FacetStandards, noFilter); ok {
		t.Errorf("expected no load, got %q", load)
	}
	if s.IsOpen(query.StandardSonarsourceSecurity) {
		t.Error("sonarsourceSecurity must stay closed when owasp is open")
	}
}

func TestStore_ApplyFilterChange(t *testing.T) {
	s := NewStore(InitialOpen(noFilter))

	s.ApplyFilterChange(query.Change(query.ParamOwaspTop10, "a1"))
	if !s.IsOpen(query.FacetStandards) {
		t.Error("filtering a standard should open the umbrella")
	}
	// the umbrella was explicitly closed, so owasp cannot claim the default slot
	if !s.IsOpen(query.StandardSonarsourceSecurity) {
		t.Error("expected sonarsourceSecurity open as the default sub-facet")
	}

	s = NewStore(map[string]bool{query.FacetStandards: true, query.StandardOwaspTop10: true})
	s.ApplyFilterChange(query.Change(query.ParamOwaspTop10, "a1"))
	if s.IsOpen(query.StandardSonarsourceSecurity) {
		t.Error("owasp open under an open umbrella keeps sonarsourceSecurity closed")
	}

	s = NewStore(InitialOpen(noFilter))
	s.ApplyFilterChange(query.Change(query.ParamSonarsourceSecurity, "xss"))
	if !s.IsOpen(query.StandardSonarsourceSecurity) || !s.IsOpen(query.FacetStandards) {
		t.Errorf("expected umbrella and sonarsourceSecurity open: %v", s.OpenFlags())
	}
}

func TestStore_RequestedSkipsUmbrellaAndMapsNames(t *testing.T) {
	s := NewStore(map[string]bool{
		query.FacetStandards:  true,
		query.FacetFiles:      true,
		query.ParamSeverities: true,
		query.ParamTags:       false,
	})
	got := s.Requested()
	want := []string{query.ParamFileUUIDs, query.ParamSeverities}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("expected %v, got %v", want, got)
		}
	}
}

func TestStore_ReplaceDropsFacetsOfPreviousQuery(t *testing.T) {
	s := NewStore(nil)
	s.Merge([]model.RawFacet{{Property: query.ParamTags}})
	s.Invalidate()
	if s.IsLoaded(query.ParamTags) {
		t.Error("counts of an invalidated search are not loaded")
	}
	if _, ok := s.Facet(query.ParamTags); !ok {
		t.Error("invalidated counts stay on display until replaced")
	}
	s.Replace([]model.RawFacet{{Property: query.ParamSeverities}})
	if _, ok := s.Facet(query.ParamTags); ok {
		t.Error("tags counts belong to the previous query")
	}
	if !s.IsLoaded(query.ParamSeverities) {
		t.Error("severities should be loaded")
	}
}

func TestStore_ReplaceKeepsFacetsLoadedForTheSameSearch(t *testing.T) {
	s := NewStore(nil)
	s.Merge([]model.RawFacet{{Property: query.ParamTags}})
	s.Invalidate()

	load, ok := s.Toggle(query.ParamRules, noFilter)
	if !ok || load != query.ParamRules {
		t.Fatalf("expected rules to load, got %q %v", load, ok)
	}
	s.Merge([]model.RawFacet{{Property: query.ParamRules, Values: []model.FacetValue{{Val: "go:S100", Count: 3}}}})

	s.Replace([]model.RawFacet{{Property: query.ParamSeverities}})
	if !s.IsLoaded(query.ParamRules) {
		t.Error("rules were loaded after the page was requested and must survive")
	}
	if s.IsLoading(query.ParamRules) {
		t.Error("rules are not loading anymore")
	}
	if s.IsLoaded(query.ParamTags) {
		t.Error("tags are closed and outdated")
	}
}

func TestStore_ToggleReloadsOutdatedFacet(t *testing.T) {
	s := NewStore(nil)
	s.Merge([]model.RawFacet{{Property: query.ParamRules}})
	s.Invalidate()
	if load, ok := s.Toggle(query.ParamRules, noFilter); !ok || load != query.ParamRules {
		t.Errorf("opening an outdated facet must load it, got %q %v", load, ok)
	}
}

func TestParseFacets_ReversesCoverageAndUnmapsNames(t *testing.T) {
	raw := []model.RawFacet{
		{Property: "coverage", Values: []model.FacetValue{{Val: "NO_DATA"}, {Val: "*-30.0"}, {Val: "80.0-*"}}},
		{Property: query.ParamFileUUIDs, Values: []model.FacetValue{{Val: "u1", Count: 2}}},
		{Property: query.ParamSeverities, Values: []model.FacetValue{{Val: "MAJOR"}, {Val: "MINOR"}}},
	}
	got := ParseFacets(raw)

	cov := got["coverage"]
	if cov[0].Val != "80.0-*" || cov[2].Val != "NO_DATA" {
		t.Errorf("coverage should be reversed, got %+v", cov)
	}
	if raw[0].Values[0].Val != "NO_DATA" {
		t.Error("input facet must not be modified")
	}
	if n, ok := got[query.FacetFiles].Count("u1"); !ok || n != 2 {
		t.Errorf("expected files facet keyed by client name, got %+v", got)
	}
	if got[query.ParamSeverities][0].Val != "MAJOR" {
		t.Error("other facets keep the endpoint order")
	}
}

type recordingSearcher struct {
	mu     sync.Mutex
	params []url.Values
	err    error
}

func (r *recordingSearcher) SearchIssues(ctx context.Context, params url.Values) (*model.SearchResult, error) {
	r.mu.Lock()
	r.params = append(r.params, params)
	r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	return &model.SearchResult{
		Facets: []model.RawFacet{{Property: params.Get("facets"), Values: []model.FacetValue{{Val: "v", Count: 1}}}},
		Rules:  []model.Rule{{Key: "go:S100", Name: "Function names"}},
	}, nil
}

func TestLoader_RequestsOneFacetWithMinimalPage(t *testing.T) {
	rs := &recordingSearcher{}
	l := NewLoader(rs)
	base := url.Values{"componentKeys": {"proj"}, "ps": {"100"}}

	res, err := l.Load(context.Background(), base, query.FacetFiles)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(rs.params) != 1 {
		t.Fatalf("expected 1 request, got %d", len(rs.params))
	}
	p := rs.params[0]
	if p.Get("ps") != "1" || p.Get("facets") != query.ParamFileUUIDs || p.Get("componentKeys") != "proj" {
		t.Errorf("unexpected params %v", p)
	}
	if base.Get("ps") != "100" {
		t.Error("base params must not be modified")
	}
	if f, ok := FacetOf(res, query.FacetFiles); !ok || len(f) != 1 {
		t.Errorf("expected files facet in result, got %+v", res.Facets)
	}

	refs := NewRefs()
	refs.Merge(res)
	if got := refs.Label(query.ParamRules, "go:S100"); got != "Function names" {
		t.Errorf("expected rule label, got %q", got)
	}
	if got := refs.Label(query.ParamRules, "unknown"); got != "unknown" {
		t.Errorf("expected fallback label, got %q", got)
	}
}

func TestLoader_PropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	l := NewLoader(&recordingSearcher{err: boom})
	if _, err := l.Load(context.Background(), url.Values{}, query.ParamTags); !errors.Is(err, boom) {
		t.Errorf("expected boom, got %v", err)
	}
}
