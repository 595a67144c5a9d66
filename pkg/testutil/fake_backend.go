package testutil

import (
	"context"
	"errors"

	"github.com/vanderheijden86/issuescope/pkg/model"
)

// ErrFakeNotFound is returned by FakeBackend for unknown issue keys.
var ErrFakeNotFound = errors.New("issue not found")

// FakeBackend extends FakeSearch with the mutation, branch status and user
// endpoints.
type FakeBackend struct {
	*FakeSearch

	user         model.CurrentUser
	userErr      error
	changeErr    error
	bulkErr      error
	bulkRequests []model.BulkChangeRequest
	branchCalls  []model.BranchLike
}

// NewFakeBackend returns a backend serving issues to a logged-in user.
func NewFakeBackend(issues []model.Issue) *FakeBackend {
	return &FakeBackend{
		FakeSearch: NewFakeSearch(issues),
		user:       model.CurrentUser{Login: "alice", Name: "Alice", IsLoggedIn: true},
	}
}

// SetUser sets the current user, or the error CurrentUser returns.
func (f *FakeBackend) SetUser(user model.CurrentUser, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.user, f.userErr = user, err
}

// FailChanges makes ChangeIssue and BulkChange fail with err.
func (f *FakeBackend) FailChanges(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changeErr, f.bulkErr = err, err
}

// CurrentUser implements the user endpoint.
func (f *FakeBackend) CurrentUser(ctx context.Context) (*model.CurrentUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.userErr != nil {
		return nil, f.userErr
	}
	u := f.user
	return &u, nil
}

// ChangeIssue applies change to the served issue.
func (f *FakeBackend) ChangeIssue(ctx context.Context, key string, change model.IssueChange) (*model.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.changeErr != nil {
		return nil, f.changeErr
	}
	for i := range f.issues {
		if f.issues[i].Key != key {
			continue
		}
		issue := f.issues[i].Clone()
		applyChange(&issue, change)
		f.issues[i] = issue
		out := issue.Clone()
		return &out, nil
	}
	return nil, ErrFakeNotFound
}

// BulkChange records the request and applies the changes.
func (f *FakeBackend) BulkChange(ctx context.Context, req model.BulkChangeRequest) (*model.BulkChangeSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.bulkErr != nil {
		return nil, f.bulkErr
	}
	f.bulkRequests = append(f.bulkRequests, req)
	sum := &model.BulkChangeSummary{Total: len(req.Issues)}
	wanted := make(map[string]bool, len(req.Issues))
	for _, k := range req.Issues {
		wanted[k] = true
	}
	for i := range f.issues {
		if !wanted[f.issues[i].Key] {
			continue
		}
		issue := f.issues[i].Clone()
		for _, c := range req.Changes {
			applyChange(&issue, c)
		}
		f.issues[i] = issue
		sum.Success++
	}
	sum.Failures = sum.Total - sum.Success
	return sum, nil
}

// BulkRequests returns the recorded bulk change requests.
func (f *FakeBackend) BulkRequests() []model.BulkChangeRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.BulkChangeRequest(nil), f.bulkRequests...)
}

// BranchStatus records the refresh.
func (f *FakeBackend) BranchStatus(ctx context.Context, project string, branch model.BranchLike) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.branchCalls = append(f.branchCalls, branch)
	return nil
}

// BranchStatusCalls returns the number of branch status refreshes.
func (f *FakeBackend) BranchStatusCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.branchCalls)
}

func applyChange(issue *model.Issue, c model.IssueChange) {
	switch c.Kind {
	case model.ChangeSeverity:
		issue.Severity = model.Severity(c.Value)
	case model.ChangeType:
		issue.Type = model.IssueType(c.Value)
	case model.ChangeAssign:
		issue.Assignee = c.Value
	case model.ChangeTags:
		issue.Tags = append([]string(nil), c.Values...)
	case model.ChangeTransition:
		switch c.Value {
		case model.TransitionConfirm:
			issue.Status = model.StatusConfirmed
		case model.TransitionReopen, model.TransitionUnconfirm:
			issue.Status = model.StatusReopened
			issue.Resolution = ""
		case model.TransitionResolve:
			issue.Status = model.StatusResolved
			issue.Resolution = model.ResolutionFixed
		case model.TransitionFalsePositive:
			issue.Status = model.StatusResolved
			issue.Resolution = model.ResolutionFalsePositive
		case model.TransitionWontFix:
			issue.Status = model.StatusResolved
			issue.Resolution = model.ResolutionWontFix
		}
	}
}
