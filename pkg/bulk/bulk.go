// Package bulk tracks which issues are checked for a bulk change and
// resolves and executes the change against the backend.
package bulk

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vanderheijden86/issuescope/pkg/debug"
	"github.com/vanderheijden86/issuescope/pkg/metrics"
	"github.com/vanderheijden86/issuescope/pkg/model"
	"github.com/vanderheijden86/issuescope/pkg/paging"
)

const (
	// DefaultMax caps how many issues a "check all" change may touch.
	DefaultMax = 500
	// DefaultBatchSize is the number of keys sent per bulk-change request.
	DefaultBatchSize = 100
)

// ErrNothingChecked is returned when a change is requested without targets.
var ErrNothingChecked = errors.New("no issues checked")

// Checked is the set of issues targeted by a bulk change. Either All is
// set, meaning every issue matching the current query, or the explicit keys
// are authoritative.
//
// The zero value is an empty set.
type Checked struct {
	order []string
	keys  map[string]struct{}
	all   bool
}

// Toggle flips key and leaves "check all" mode.
func (c *Checked) Toggle(key string) {
	c.all = false
	if c.keys == nil {
		c.keys = make(map[string]struct{})
	}
	if _, ok := c.keys[key]; ok {
		delete(c.keys, key)
		for i, k := range c.order {
			if k == key {
				c.order = append(c.order[:i], c.order[i+1:]...)
				break
			}
		}
		return
	}
	c.keys[key] = struct{}{}
	c.order = append(c.order, key)
}

// CheckAll enters "check all" mode, checking every loaded key for display,
// or clears everything when on is false.
func (c *Checked) CheckAll(on bool, loaded []string) {
	c.Reset()
	if !on {
		return
	}
	c.all = true
	c.keys = make(map[string]struct{}, len(loaded))
	for _, k := range loaded {
		if _, dup := c.keys[k]; dup {
			continue
		}
		c.keys[k] = struct{}{}
		c.order = append(c.order, k)
	}
}

// KeepKeys leaves "check all" mode, keeping the checked keys as the
// explicit selection.
func (c *Checked) KeepKeys() {
	c.all = false
}

// Reset unchecks everything.
func (c *Checked) Reset() {
	c.order = nil
	c.keys = nil
	c.all = false
}

// All reports whether "check all" mode is on.
func (c *Checked) All() bool { return c.all }

// IsChecked reports whether key is displayed as checked.
func (c *Checked) IsChecked(key string) bool {
	_, ok := c.keys[key]
	return ok
}

// Len returns the number of checked keys.
func (c *Checked) Len() int { return len(c.order) }

// Keys returns the checked keys in the order they were checked.
func (c *Checked) Keys() []string {
	return append([]string(nil), c.order...)
}

// Targets is the resolved set of issues a bulk change applies to.
type Targets struct {
	// All is set when the change applies to every issue matching Request,
	// capped at Max.
	All     bool
	Request paging.Request
	Max     int

	// Issues are the explicit targets when All is false, with a paging
	// descriptor sized to them.
	Issues []model.Issue
	Paging model.Paging
}

// Count returns the number of issues the change will touch given the
// total reported for the current query. Both modes are capped at Max.
func (t Targets) Count(total int) int {
	n := total
	if !t.All {
		n = len(t.Issues)
	}
	if t.Max > 0 && n > t.Max {
		return t.Max
	}
	return n
}

// Resolve returns the targets for the checked set. In "check all" mode the
// query described by req is re-run on execution; otherwise the checked keys
// that are present in loaded become the explicit targets, the first max of
// them in checking order.
func Resolve(c *Checked, req paging.Request, loaded func(key string) (model.Issue, bool), max int) Targets {
	if max <= 0 {
		max = DefaultMax
	}
	if c.All() {
		return Targets{All: true, Request: req, Max: max}
	}
	var issues []model.Issue
	for _, k := range c.order {
		if issue, ok := loaded(k); ok {
			issues = append(issues, issue)
		}
		if len(issues) == max {
			break
		}
	}
	n := len(issues)
	return Targets{
		Max:    max,
		Issues: issues,
		Paging: model.Paging{PageIndex: 1, PageSize: n, Total: n},
	}
}

// Label is the text of the bulk action button.
func Label(t Targets, total int) string {
	n := t.Count(total)
	if n == 0 {
		return "Bulk change"
	}
	if n == 1 {
		return "Bulk change 1 issue"
	}
	return "Bulk change " + strconv.Itoa(n) + " issues"
}

// Backend is what the executor needs from the web API.
type Backend interface {
	paging.Searcher
	BulkChange(ctx context.Context, req model.BulkChangeRequest) (*model.BulkChangeSummary, error)
}

// Executor applies bulk changes.
type Executor struct {
	backend     Backend
	batchSize   int
	concurrency int
	newID       func() string
}

// Option configures an Executor.
type Option func(*Executor)

// WithBatchSize sets how many keys are sent per request.
func WithBatchSize(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithConcurrency bounds the number of batches in flight.
func WithConcurrency(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithIDFunc replaces the operation id generator.
func WithIDFunc(f func() string) Option {
	return func(e *Executor) { e.newID = f }
}

// NewExecutor returns an executor backed by backend.
func NewExecutor(backend Backend, opts ...Option) *Executor {
	e := &Executor{
		backend:     backend,
		batchSize:   DefaultBatchSize,
		concurrency: 4,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Keys returns the issue keys the targets designate. "Check all" targets
// are resolved by searching for at most Max issues.
func (e *Executor) Keys(ctx context.Context, t Targets) ([]string, error) {
	if !t.All {
		issues := t.Issues
		if t.Max > 0 && len(issues) > t.Max {
			issues = issues[:t.Max]
		}
		keys := make([]string, len(issues))
		for i, issue := range issues {
			keys[i] = issue.Key
		}
		return keys, nil
	}
	req := t.Request
	req.Facets = nil
	req.PageSize = t.Max
	if req.PageSize > paging.MaxPageSize {
		req.PageSize = paging.MaxPageSize
	}
	res, err := e.backend.SearchIssues(ctx, req.Params(1))
	if err != nil {
		return nil, fmt.Errorf("resolving bulk targets: %w", err)
	}
	keys := make([]string, 0, len(res.Issues))
	for _, issue := range res.Issues {
		keys = append(keys, issue.Key)
	}
	return keys, nil
}

// Execute applies changes to the targets. Keys are sent in batches that
// run concurrently and share one operation id; the summaries are summed.
// A failed batch fails the whole call, but batches already applied are
// not rolled back.
func (e *Executor) Execute(ctx context.Context, t Targets, changes []model.IssueChange, notify bool) (*model.BulkChangeSummary, error) {
	start := time.Now()
	defer func() { metrics.BulkChange.Record(time.Since(start)) }()

	keys, err := e.Keys(ctx, t)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, ErrNothingChecked
	}

	id := e.newID()
	batches := chunk(keys, e.batchSize)
	summaries := make([]*model.BulkChangeSummary, len(batches))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, batch := range batches {
		g.Go(func() error {
			sum, err := e.backend.BulkChange(ctx, model.BulkChangeRequest{
				OperationID:       id,
				Issues:            batch,
				Changes:           changes,
				SendNotifications: notify,
			})
			if err != nil {
				return fmt.Errorf("bulk change batch %d: %w", i+1, err)
			}
			summaries[i] = sum
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := &model.BulkChangeSummary{}
	for _, s := range summaries {
		if s == nil {
			continue
		}
		total.Total += s.Total
		total.Success += s.Success
		total.Ignored += s.Ignored
		total.Failures += s.Failures
	}
	debug.Log("bulk change %s: %d batch(es), %d/%d succeeded", id, len(batches), total.Success, total.Total)
	return total, nil
}

func chunk(keys []string, size int) [][]string {
	var out [][]string
	for len(keys) > size {
		out = append(out, keys[:size:size])
		keys = keys[size:]
	}
	if len(keys) > 0 {
		out = append(out, keys)
	}
	return out
}
