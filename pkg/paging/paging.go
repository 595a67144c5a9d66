// Package paging issues paged search requests: single pages, bounded
// fetch-until loops used to resolve deep links, and incremental loads.
package paging

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vanderheijden86/issuescope/pkg/debug"
	"github.com/vanderheijden86/issuescope/pkg/metrics"
	"github.com/vanderheijden86/issuescope/pkg/model"
	"github.com/vanderheijden86/issuescope/pkg/query"
)

const (
	// DefaultPageSize is the number of issues requested per page.
	DefaultPageSize = 100
	// DefaultCeiling bounds how many issues are fetched while looking for a
	// deep-linked issue.
	DefaultCeiling = 1000
	// MaxPageSize is the largest page the search endpoint serves.
	MaxPageSize = 500

	// DefaultSort orders unsorted results by file then line.
	DefaultSort = "FILE_LINE"
	// MeAssignee stands for the authenticated user.
	MeAssignee = "__me__"
)

// ErrNoPaging is returned by FetchMore when nothing has been loaded yet.
var ErrNoPaging = errors.New("no previous page to continue from")

// Searcher is the search endpoint.
type Searcher interface {
	SearchIssues(ctx context.Context, params url.Values) (*model.SearchResult, error)
}

// Request describes a search independent of the page being fetched.
type Request struct {
	Query    query.Query
	Project  string
	Branch   model.BranchLike
	MyIssues bool
	// Facets are endpoint facet names requested with the first page only.
	Facets   []string
	PageSize int
}

// Params builds the endpoint parameters for one page.
func (r Request) Params(page int) url.Values {
	p := query.SearchParams(r.Query)
	p.Set("additionalFields", "_all")
	if r.Query.Sort == "" {
		p.Set(query.ParamSort, DefaultSort)
	}
	if r.MyIssues {
		p.Set(query.ParamAssignees, MeAssignee)
	}
	if r.Project != "" {
		p.Set("componentKeys", r.Project)
	}
	if r.Branch.Branch != "" {
		p.Set("branch", r.Branch.Branch)
	}
	if r.Branch.PullRequest != "" {
		p.Set("pullRequest", r.Branch.PullRequest)
	}
	size := r.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	p.Set("ps", strconv.Itoa(size))
	p.Set("p", strconv.Itoa(page))
	if page == 1 && len(r.Facets) > 0 {
		p.Set("facets", strings.Join(r.Facets, ","))
	}
	return p
}

// Result is the outcome of one or more page requests. Issues are
// accumulated in order; Paging is the descriptor of the last page fetched.
type Result struct {
	model.SearchResult
	// Requests is the number of page requests performed.
	Requests int
}

// DoneFunc decides whether a fetch-until loop can stop, given the issues of
// the page just fetched and the cumulative paging.
type DoneFunc func(page []model.Issue, paging model.Paging) bool

// Pager performs paged searches.
type Pager struct {
	search  Searcher
	ceiling int
}

// Option configures a Pager.
type Option func(*Pager)

// WithCeiling sets the deep-link fetch ceiling.
func WithCeiling(n int) Option {
	return func(p *Pager) {
		if n > 0 {
			p.ceiling = n
		}
	}
}

// New returns a Pager backed by search.
func New(search Searcher, opts ...Option) *Pager {
	p := &Pager{search: search, ceiling: DefaultCeiling}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Ceiling returns the deep-link fetch ceiling.
func (p *Pager) Ceiling() int {
	return p.ceiling
}

// FetchPage fetches one page.
func (p *Pager) FetchPage(ctx context.Context, req Request, page int) (*Result, error) {
	res, err := p.search.SearchIssues(ctx, req.Params(page))
	if err != nil {
		return nil, fmt.Errorf("fetching page %d: %w", page, err)
	}
	return &Result{SearchResult: *res, Requests: 1}, nil
}

// FetchUntil fetches successive pages from start until done returns true,
// the total is covered, or the endpoint returns an empty page. Facets come
// from the first page fetched; referenced entities are accumulated.
func (p *Pager) FetchUntil(ctx context.Context, req Request, start int, done DoneFunc) (*Result, error) {
	begin := time.Now()
	defer func() { metrics.FetchUntil.Record(time.Since(begin)) }()

	acc := &Result{}
	for page := start; ; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := p.search.SearchIssues(ctx, req.Params(page))
		if err != nil {
			return nil, fmt.Errorf("fetching page %d: %w", page, err)
		}
		acc.Requests++
		if page == start {
			acc.Facets = res.Facets
		}
		acc.Issues = append(acc.Issues, res.Issues...)
		acc.Paging = res.Paging
		acc.EffortTotal = res.EffortTotal
		acc.Components = append(acc.Components, res.Components...)
		acc.Rules = append(acc.Rules, res.Rules...)
		acc.Users = append(acc.Users, res.Users...)
		acc.Languages = append(acc.Languages, res.Languages...)

		if len(res.Issues) == 0 || res.Paging.Exhausted() || done(res.Issues, res.Paging) {
			debug.Log("fetch until stopped after %d request(s) at page %d (total %d)", acc.Requests, page, res.Paging.Total)
			return acc, nil
		}
	}
}

// FindIssue fetches pages from the first one until key shows up or the
// next page would take the fetched count past the ceiling. The first page
// is always fetched. found reports whether key is among the fetched issues.
func (p *Pager) FindIssue(ctx context.Context, req Request, key string) (res *Result, found bool, err error) {
	done := func(page []model.Issue, paging model.Paging) bool {
		if paging.Fetched()+paging.PageSize > p.ceiling {
			return true
		}
		return containsKey(page, key)
	}
	res, err = p.FetchUntil(ctx, req, 1, done)
	if err != nil {
		return nil, false, err
	}
	return res, containsKey(res.Issues, key), nil
}

// FetchMore fetches the page following current.
func (p *Pager) FetchMore(ctx context.Context, req Request, current *model.Paging) (*Result, error) {
	if current == nil || current.PageIndex == 0 {
		return nil, ErrNoPaging
	}
	return p.FetchPage(ctx, req, current.PageIndex+1)
}

// ComponentDone stops once the total is covered, the last issue belongs to
// another component, or the last issue ends past toLine. An empty page is
// done.
func ComponentDone(component string, toLine int) DoneFunc {
	return func(page []model.Issue, paging model.Paging) bool {
		if paging.Exhausted() || len(page) == 0 {
			return true
		}
		last := page[len(page)-1]
		if last.Component != component {
			return true
		}
		return last.TextRange != nil && last.TextRange.EndLine > toLine
	}
}

// ForComponent makes sure enough issues of component are loaded to cover
// lines up to toLine. It returns nil when loaded already satisfies the
// predicate, otherwise the pages fetched after paging.
func (p *Pager) ForComponent(ctx context.Context, req Request, loaded []model.Issue, paging *model.Paging, component string, toLine int) (*Result, error) {
	if paging == nil {
		return nil, ErrNoPaging
	}
	done := ComponentDone(component, toLine)
	if done(loaded, *paging) {
		return nil, nil
	}
	return p.FetchUntil(ctx, req, paging.PageIndex+1, done)
}

// SameComponent returns the issues that belong to component, in order.
func SameComponent(issues []model.Issue, component string) []model.Issue {
	var out []model.Issue
	for _, issue := range issues {
		if issue.Component == component {
			out = append(out, issue)
		}
	}
	return out
}

func containsKey(issues []model.Issue, key string) bool {
	for _, issue := range issues {
		if issue.Key == key {
			return true
		}
	}
	return false
}
