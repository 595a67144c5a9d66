package ui

// Scope is a keyboard scope. Keys reach the handlers of the innermost
// active scope only.
type Scope int

const (
	ScopeIssues Scope = iota
	ScopeBulkChange
	ScopeTextInput
)

func (s Scope) String() string {
	switch s {
	case ScopeBulkChange:
		return "bulk-change"
	case ScopeTextInput:
		return "text-input"
	}
	return "issues"
}

// scopeGuard is a stack of keyboard scopes with the issue list at the
// bottom. The zero value is the issues scope.
type scopeGuard struct {
	stack []Scope
}

// Active returns the innermost scope.
func (g *scopeGuard) Active() Scope {
	if len(g.stack) == 0 {
		return ScopeIssues
	}
	return g.stack[len(g.stack)-1]
}

// Push enters s.
func (g *scopeGuard) Push(s Scope) {
	if s == ScopeIssues {
		return
	}
	g.stack = append(g.stack, s)
}

// Pop leaves s when it is the innermost scope. It reports whether it did.
func (g *scopeGuard) Pop(s Scope) bool {
	if len(g.stack) == 0 || g.stack[len(g.stack)-1] != s {
		return false
	}
	g.stack = g.stack[:len(g.stack)-1]
	return true
}

// Allows reports whether keys meant for s may be handled now.
func (g *scopeGuard) Allows(s Scope) bool {
	return g.Active() == s
}
