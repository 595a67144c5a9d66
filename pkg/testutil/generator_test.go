package testutil

import (
	"context"
	"net/url"
	"testing"
)

func TestIssues_DeterministicAndOrdered(t *testing.T) {
	a := NewDefault().Issues(25)
	b := NewDefault().Issues(25)

	if len(a) != 25 {
		t.Fatalf("expected 25 issues, got %d", len(a))
	}
	AssertNoDuplicateKeys(t, a)
	AssertFileLineOrder(t, a)
	for _, issue := range a {
		if err := issue.Validate(); err != nil {
			t.Errorf("%s invalid: %v", issue.Key, err)
		}
	}
	for i := range a {
		if a[i].Key != b[i].Key || a[i].Severity != b[i].Severity || a[i].Rule != b[i].Rule {
			t.Fatalf("issue %d differs between runs", i)
		}
	}
	if a[0].Key != "AX-0001" {
		t.Errorf("expected first key AX-0001, got %s", a[0].Key)
	}
	if a[9].Component != a[0].Component || a[10].Component == a[9].Component {
		t.Error("expected 10 issues per file")
	}
	if a[1].Line <= a[0].Line {
		t.Error("expected increasing lines within a file")
	}
}

func TestWithFlows(t *testing.T) {
	g := NewDefault()
	base := g.Issues(1)[0]
	issue := g.WithFlows(base, 2, 3)
	if len(issue.Flows) != 2 || len(issue.Flows[1].Locations) != 3 {
		t.Fatalf("unexpected flows %+v", issue.Flows)
	}
	if len(base.Flows) != 0 {
		t.Error("WithFlows must not modify its input")
	}
	if sec := g.WithSecondaryLocations(base, 4); len(sec.SecondaryLocations) != 4 {
		t.Errorf("expected 4 secondary locations, got %d", len(sec.SecondaryLocations))
	}
}

func TestFakeSearch_Pages(t *testing.T) {
	fs := NewFakeSearch(NewDefault().Issues(120))

	res, err := fs.SearchIssues(context.Background(), url.Values{"p": {"2"}, "ps": {"100"}, "facets": {"severities"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Issues) != 20 || res.Paging.Total != 120 || res.Paging.PageIndex != 2 {
		t.Errorf("unexpected page: %d issues, paging %+v", len(res.Issues), res.Paging)
	}
	if len(res.Facets) != 1 || res.Facets[0].Property != "severities" {
		t.Errorf("expected severities facet, got %+v", res.Facets)
	}
	if fs.Requests() != 1 || fs.LastCall().Get("p") != "2" {
		t.Error("call not recorded")
	}
}
