package testutil

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/vanderheijden86/issuescope/pkg/model"
)

// FakeSearch is an in-memory search endpoint. It serves Issues in order,
// honouring the p and ps parameters, and records every call.
type FakeSearch struct {
	mu     sync.Mutex
	issues []model.Issue
	facets map[string][]model.FacetValue
	calls  []url.Values
	err    error
	total  int
}

// NewFakeSearch returns an endpoint serving issues.
func NewFakeSearch(issues []model.Issue) *FakeSearch {
	return &FakeSearch{issues: issues, facets: make(map[string][]model.FacetValue), total: -1}
}

// SetFacet sets the counts returned when property is requested.
func (f *FakeSearch) SetFacet(property string, values ...model.FacetValue) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.facets[property] = values
}

// SetIssues replaces the served issues.
func (f *FakeSearch) SetIssues(issues []model.Issue) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.issues = issues
}

// SetTotal overrides the reported total. A negative value reports the
// number of served issues.
func (f *FakeSearch) SetTotal(total int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.total = total
}

// FailWith makes every subsequent call return err (nil restores success).
func (f *FakeSearch) FailWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// Requests returns the number of calls made so far.
func (f *FakeSearch) Requests() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// Calls returns the parameters of every call, in order.
func (f *FakeSearch) Calls() []url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]url.Values, len(f.calls))
	copy(out, f.calls)
	return out
}

// LastCall returns the parameters of the most recent call.
func (f *FakeSearch) LastCall() url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return nil
	}
	return f.calls[len(f.calls)-1]
}

// SearchIssues implements the search endpoint.
func (f *FakeSearch) SearchIssues(ctx context.Context, params url.Values) (*model.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, params)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}

	page := intParam(params, "p", 1)
	size := intParam(params, "ps", 100)
	total := len(f.issues)
	if f.total >= 0 {
		total = f.total
	}
	start := (page - 1) * size
	end := start + size
	if end > len(f.issues) {
		end = len(f.issues)
	}
	var issues []model.Issue
	if start < end {
		issues = append(issues, f.issues[start:end]...)
	}

	res := &model.SearchResult{
		Issues: issues,
		Paging: model.Paging{PageIndex: page, PageSize: size, Total: total},
	}
	if names := params.Get("facets"); names != "" {
		for _, name := range strings.Split(names, ",") {
			res.Facets = append(res.Facets, model.RawFacet{Property: name, Values: f.facets[name]})
		}
	}
	return res, nil
}

func intParam(params url.Values, key string, def int) int {
	n, err := strconv.Atoi(params.Get(key))
	if err != nil || n <= 0 {
		return def
	}
	return n
}
