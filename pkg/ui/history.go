package ui

import (
	"github.com/vanderheijden86/issuescope/pkg/explorer"
	"github.com/vanderheijden86/issuescope/pkg/query"
)

// History is a router that remembers pushed locations so the host can go
// back. Every call is forwarded to the wrapped router.
type History struct {
	inner   explorer.Router
	entries []query.Location
}

// NewHistory returns a history starting at initial. inner may be nil.
func NewHistory(inner explorer.Router, initial query.Location) *History {
	return &History{inner: inner, entries: []query.Location{initial}}
}

// Push adds loc as the newest entry.
func (h *History) Push(loc query.Location) {
	h.entries = append(h.entries, loc)
	if h.inner != nil {
		h.inner.Push(loc)
	}
}

// Replace overwrites the newest entry.
func (h *History) Replace(loc query.Location) {
	h.entries[len(h.entries)-1] = loc
	if h.inner != nil {
		h.inner.Replace(loc)
	}
}

// Len returns the number of entries.
func (h *History) Len() int { return len(h.entries) }

// Back drops the newest entry and returns the one before it. ok is false
// at the first entry.
func (h *History) Back() (loc query.Location, ok bool) {
	if len(h.entries) < 2 {
		return query.Location{}, false
	}
	h.entries = h.entries[:len(h.entries)-1]
	loc = h.entries[len(h.entries)-1]
	if h.inner != nil {
		h.inner.Replace(loc)
	}
	return loc, true
}
