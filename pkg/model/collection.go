package model

// IssueSet is an ordered collection of issues indexed by key.
//
// An IssueSet is never modified after construction: Append and Replace
// return new sets sharing no mutable state with the receiver, so readers
// holding an older set keep a consistent view.
type IssueSet struct {
	order []string
	byKey map[string]Issue
}

// NewIssueSet builds a set from issues, in order. Later duplicates of a key
// are ignored.
func NewIssueSet(issues []Issue) *IssueSet {
	s := &IssueSet{
		order: make([]string, 0, len(issues)),
		byKey: make(map[string]Issue, len(issues)),
	}
	s.add(issues)
	return s
}

func (s *IssueSet) add(issues []Issue) {
	for _, issue := range issues {
		if _, dup := s.byKey[issue.Key]; dup {
			continue
		}
		s.order = append(s.order, issue.Key)
		s.byKey[issue.Key] = issue
	}
}

func (s *IssueSet) clone(extra int) *IssueSet {
	out := &IssueSet{
		order: make([]string, len(s.order), len(s.order)+extra),
		byKey: make(map[string]Issue, len(s.byKey)+extra),
	}
	copy(out.order, s.order)
	for k, v := range s.byKey {
		out.byKey[k] = v
	}
	return out
}

// Len returns the number of issues.
func (s *IssueSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// KeyAt returns the key of the i-th issue.
func (s *IssueSet) KeyAt(i int) string {
	return s.order[i]
}

// At returns the i-th issue.
func (s *IssueSet) At(i int) Issue {
	return s.byKey[s.order[i]]
}

// IndexOf returns the position of key, or -1.
func (s *IssueSet) IndexOf(key string) int {
	if s == nil {
		return -1
	}
	if _, ok := s.byKey[key]; !ok {
		return -1
	}
	for i, k := range s.order {
		if k == key {
			return i
		}
	}
	return -1
}

// Get returns the issue with the given key.
func (s *IssueSet) Get(key string) (Issue, bool) {
	if s == nil {
		return Issue{}, false
	}
	issue, ok := s.byKey[key]
	return issue, ok
}

// Issues returns the issues in order.
func (s *IssueSet) Issues() []Issue {
	if s == nil {
		return nil
	}
	out := make([]Issue, len(s.order))
	for i, k := range s.order {
		out[i] = s.byKey[k]
	}
	return out
}

// Keys returns the keys in order.
func (s *IssueSet) Keys() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.order...)
}

// Append returns a new set with issues added after the existing ones.
func (s *IssueSet) Append(issues []Issue) *IssueSet {
	if s == nil {
		return NewIssueSet(issues)
	}
	out := s.clone(len(issues))
	out.add(issues)
	return out
}

// Replace returns a new set where the issue sharing issue.Key is replaced,
// keeping its position. ok is false when the key is unknown.
func (s *IssueSet) Replace(issue Issue) (*IssueSet, bool) {
	if s == nil {
		return s, false
	}
	if _, exists := s.byKey[issue.Key]; !exists {
		return s, false
	}
	out := s.clone(0)
	out.byKey[issue.Key] = issue
	return out, true
}
