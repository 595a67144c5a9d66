// Package metrics times the network and storage hot paths of iscope:
// search requests, fetch-until loops, facet loads, issue mutations, SQLite
// queries and UI renders.
//
// Recording is lock-free. It is on by default; ISCOPE_METRICS=0 turns it
// off.
//
//	func search() (err error) {
//	    start := time.Now()
//	    defer func() { metrics.SearchRequest.Done(start, err) }()
//	    ...
//	}
package metrics

import (
	"os"
	"sort"
	"sync/atomic"
	"time"
)

var enabled atomic.Bool

func init() {
	enabled.Store(os.Getenv("ISCOPE_METRICS") != "0")
}

// Enabled reports whether measurements are recorded.
func Enabled() bool { return enabled.Load() }

// SetEnabled turns recording on or off.
func SetEnabled(e bool) { enabled.Store(e) }

// Op accumulates the durations of one kind of operation.
type Op struct {
	name    string
	count   atomic.Int64
	failed  atomic.Int64
	totalNs atomic.Int64
	maxNs   atomic.Int64
	minNs   atomic.Int64 // 0 until the first measurement
}

func newOp(name string) *Op {
	return &Op{name: name}
}

// Name returns the operation name.
func (o *Op) Name() string { return o.name }

// Record adds one measurement.
func (o *Op) Record(d time.Duration) {
	if !enabled.Load() {
		return
	}
	ns := d.Nanoseconds()
	o.count.Add(1)
	o.totalNs.Add(ns)
	for {
		cur := o.maxNs.Load()
		if ns <= cur || o.maxNs.CompareAndSwap(cur, ns) {
			break
		}
	}
	for {
		cur := o.minNs.Load()
		if (cur != 0 && ns >= cur) || o.minNs.CompareAndSwap(cur, ns) {
			break
		}
	}
}

// Done records the time since start and counts a failure when err is set.
func (o *Op) Done(start time.Time, err error) {
	if !enabled.Load() {
		return
	}
	o.Record(time.Since(start))
	if err != nil {
		o.failed.Add(1)
	}
}

// Count returns the number of measurements.
func (o *Op) Count() int64 { return o.count.Load() }

// Failed returns how many measured operations failed.
func (o *Op) Failed() int64 { return o.failed.Load() }

// Stats is a snapshot of an Op.
type Stats struct {
	Name    string  `json:"name"`
	Count   int64   `json:"count"`
	Failed  int64   `json:"failed,omitempty"`
	TotalMs float64 `json:"total_ms"`
	AvgMs   float64 `json:"avg_ms"`
	MaxMs   float64 `json:"max_ms"`
	MinMs   float64 `json:"min_ms,omitempty"`
}

// Stats returns the current statistics.
func (o *Op) Stats() Stats {
	count := o.count.Load()
	total := o.totalNs.Load()
	s := Stats{
		Name:    o.name,
		Count:   count,
		Failed:  o.failed.Load(),
		TotalMs: ms(total),
		MaxMs:   ms(o.maxNs.Load()),
		MinMs:   ms(o.minNs.Load()),
	}
	if count > 0 {
		s.AvgMs = ms(total / count)
	}
	return s
}

func ms(ns int64) float64 { return float64(ns) / 1e6 }

// Reset clears the measurements.
func (o *Op) Reset() {
	o.count.Store(0)
	o.failed.Store(0)
	o.totalNs.Store(0)
	o.maxNs.Store(0)
	o.minNs.Store(0)
}

// Timer starts a measurement; call the result to record it.
//
//	defer metrics.Timer(metrics.UIRender)()
func Timer(o *Op) func() {
	if o == nil || !enabled.Load() {
		return func() {}
	}
	start := time.Now()
	return func() { o.Record(time.Since(start)) }
}

var (
	SearchRequest = newOp("search_request")
	FetchUntil    = newOp("fetch_until")
	FacetLoad     = newOp("facet_load")
	IssueChange   = newOp("issue_change")
	BulkChange    = newOp("bulk_change")
	SQLiteQuery   = newOp("sqlite_query")
	UIRender      = newOp("ui_render")
)

// All returns every operation.
func All() []*Op {
	return []*Op{SearchRequest, FetchUntil, FacetLoad, IssueChange, BulkChange, SQLiteQuery, UIRender}
}

// ResetAll clears every operation.
func ResetAll() {
	for _, o := range All() {
		o.Reset()
	}
}

// Snapshot returns the statistics of the operations measured so far,
// slowest total first.
func Snapshot() []Stats {
	var out []Stats
	for _, o := range All() {
		if o.Count() > 0 {
			out = append(out, o.Stats())
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TotalMs > out[j].TotalMs })
	return out
}
