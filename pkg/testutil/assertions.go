package testutil

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/vanderheijden86/issuescope/pkg/model"
)

// AssertNoDuplicateKeys fails when a key shows up twice, as it would
// after a page was appended twice.
func AssertNoDuplicateKeys(t *testing.T, issues []model.Issue) {
	t.Helper()
	seen := make(map[string]int, len(issues))
	for i, issue := range issues {
		if first, dup := seen[issue.Key]; dup {
			t.Errorf("issue %s at %d and %d", issue.Key, first, i)
		}
		seen[issue.Key] = i
	}
}

// AssertKeys compares the issue keys, in order.
func AssertKeys(t *testing.T, issues []model.Issue, keys ...string) {
	t.Helper()
	if diff := cmp.Diff(keys, Keys(issues)); diff != "" {
		t.Errorf("issue keys (-want +got):\n%s", diff)
	}
}

// AssertFileLineOrder fails when issues are not grouped by component with
// increasing lines, the default search order.
func AssertFileLineOrder(t *testing.T, issues []model.Issue) {
	t.Helper()
	for i := 1; i < len(issues); i++ {
		prev, cur := issues[i-1], issues[i]
		if prev.Component > cur.Component || (prev.Component == cur.Component && prev.Line > cur.Line) {
			t.Errorf("%s (%s:%d) sorts before %s (%s:%d)", cur.Key, cur.Component, cur.Line, prev.Key, prev.Component, prev.Line)
		}
	}
}

// Keys returns the keys of issues, in order.
func Keys(issues []model.Issue) []string {
	out := make([]string, len(issues))
	for i, issue := range issues {
		out[i] = issue.Key
	}
	return out
}
