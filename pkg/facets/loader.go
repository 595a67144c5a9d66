package facets

import (
	"context"
	"net/url"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/vanderheijden86/issuescope/pkg/debug"
	"github.com/vanderheijden86/issuescope/pkg/metrics"
	"github.com/vanderheijden86/issuescope/pkg/model"
	"github.com/vanderheijden86/issuescope/pkg/query"
)

// Searcher is the search endpoint.
type Searcher interface {
	SearchIssues(ctx context.Context, params url.Values) (*model.SearchResult, error)
}

// Loader fetches the counts of a single facet. The request asks for a
// one-issue page so the issues themselves are not transferred again.
// Concurrent loads of the same facet for the same request share one call.
type Loader struct {
	search Searcher
	group  singleflight.Group
}

// NewLoader returns a loader backed by search.
func NewLoader(search Searcher) *Loader {
	return &Loader{search: search}
}

// Load fetches the counts of property for the search described by base.
func (l *Loader) Load(ctx context.Context, base url.Values, property string) (*model.SearchResult, error) {
	params := cloneValues(base)
	params.Set("ps", "1")
	params.Set("p", "1")
	params.Set("facets", query.MapFacet(property))

	key := property + "?" + params.Encode()
	v, err, shared := l.group.Do(key, func() (any, error) {
		start := time.Now()
		defer func() { metrics.FacetLoad.Record(time.Since(start)) }()
		return l.search.SearchIssues(ctx, params)
	})
	debug.LogIf(shared, "facet load %s shared with an in-flight request", property)
	if err != nil {
		return nil, err
	}
	return v.(*model.SearchResult), nil
}

// FacetOf extracts the counts of property from a facet-only result.
func FacetOf(res *model.SearchResult, property string) (model.Facet, bool) {
	if res == nil {
		return nil, false
	}
	f, ok := ParseFacets(res.Facets)[property]
	return f, ok
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
}
