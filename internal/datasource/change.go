package datasource

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/vanderheijden86/issuescope/pkg/debug"
	"github.com/vanderheijden86/issuescope/pkg/model"
)

const updateDateLayout = "2006-01-02T15:04:05-0700"

// transitionsFor lists the workflow transitions available from status.
func transitionsFor(status model.Status) []string {
	switch status {
	case model.StatusOpen, model.StatusReopened:
		return []string{model.TransitionConfirm, model.TransitionResolve, model.TransitionFalsePositive, model.TransitionWontFix}
	case model.StatusConfirmed:
		return []string{model.TransitionUnconfirm, model.TransitionResolve, model.TransitionFalsePositive, model.TransitionWontFix}
	case model.StatusResolved:
		return []string{model.TransitionReopen}
	}
	return nil
}

func actionsFor(status model.Status) []string {
	if status == model.StatusClosed {
		return nil
	}
	return []string{"assign", "set_tags", "set_type", "set_severity"}
}

// applyTransition returns the status and resolution after transition.
func applyTransition(status model.Status, transition string) (model.Status, string, error) {
	if !slices.Contains(transitionsFor(status), transition) {
		return "", "", fmt.Errorf("%w: %s from %s", ErrInvalidTransition, transition, status)
	}
	switch transition {
	case model.TransitionConfirm:
		return model.StatusConfirmed, "", nil
	case model.TransitionUnconfirm, model.TransitionReopen:
		return model.StatusReopened, "", nil
	case model.TransitionResolve:
		return model.StatusResolved, model.ResolutionFixed, nil
	case model.TransitionFalsePositive:
		return model.StatusResolved, model.ResolutionFalsePositive, nil
	case model.TransitionWontFix:
		return model.StatusResolved, model.ResolutionWontFix, nil
	}
	return "", "", fmt.Errorf("%w: %s", ErrInvalidTransition, transition)
}

// apply validates change against raw and returns the columns to update.
func apply(raw model.RawIssue, change model.IssueChange) (map[string]any, error) {
	switch change.Kind {
	case model.ChangeTransition:
		status, resolution, err := applyTransition(raw.Status, change.Value)
		if err != nil {
			return nil, err
		}
		return map[string]any{"status": string(status), "resolution": resolution}, nil
	case model.ChangeAssign:
		return map[string]any{"assignee": change.Value}, nil
	case model.ChangeSeverity:
		if !model.Severity(change.Value).IsValid() {
			return nil, fmt.Errorf("%w: severity %q", ErrInvalidParameter, change.Value)
		}
		return map[string]any{"severity": change.Value}, nil
	case model.ChangeType:
		if !model.IssueType(change.Value).IsValid() {
			return nil, fmt.Errorf("%w: type %q", ErrInvalidParameter, change.Value)
		}
		return map[string]any{"type": change.Value}, nil
	case model.ChangeTags:
		tags, err := marshalJSON(nonNil(change.Values))
		if err != nil {
			return nil, err
		}
		return map[string]any{"tags": tags}, nil
	}
	return nil, fmt.Errorf("%w: change kind %q", ErrInvalidParameter, change.Kind)
}

// columns are applied in a fixed order so statements are reproducible.
var changeColumns = []string{"status", "resolution", "assignee", "severity", "type", "tags"}

func (s *Store) update(ctx context.Context, q querier, key string, set map[string]any) error {
	stmt := "UPDATE issues SET update_date = ?"
	args := []any{s.now().Format(updateDateLayout)}
	for _, col := range changeColumns {
		if v, ok := set[col]; ok {
			stmt += ", " + col + " = ?"
			args = append(args, v)
		}
	}
	_, err := q.ExecContext(ctx, stmt+" WHERE key = ?", append(args, key)...)
	return err
}

// Change applies a single change and returns the updated issue in wire form.
func (s *Store) Change(ctx context.Context, key string, change model.IssueChange) (*model.IssueResponse, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	raw, err := s.getRaw(ctx, tx, key)
	if err != nil {
		return nil, err
	}
	set, err := apply(raw, change)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	if err := s.update(ctx, tx, key, set); err != nil {
		return nil, fmt.Errorf("updating %s: %w", key, err)
	}
	if raw, err = s.getRaw(ctx, tx, key); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	resp := &model.IssueResponse{Issue: raw}
	refs := []string{raw.Component, raw.Project}
	if resp.Components, err = s.loadComponents(ctx, refs, nil); err != nil {
		return nil, err
	}
	if resp.Rules, err = s.loadRules(ctx, []string{raw.Rule}); err != nil {
		return nil, err
	}
	return resp, nil
}

// ChangeIssue implements the single-issue mutation endpoints.
func (s *Store) ChangeIssue(ctx context.Context, key string, change model.IssueChange) (*model.Issue, error) {
	resp, err := s.Change(ctx, key, change)
	if err != nil {
		return nil, err
	}
	byKey := make(map[string]model.Component, len(resp.Components))
	for _, c := range resp.Components {
		byKey[c.Key] = c
	}
	issue := model.ParseIssue(resp.Issue, byKey)
	return &issue, nil
}

// BulkChange applies every change to each issue. An issue none of the
// changes apply to is ignored; an unknown key is a failure.
func (s *Store) BulkChange(ctx context.Context, req model.BulkChangeRequest) (*model.BulkChangeSummary, error) {
	start := time.Now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	sum := &model.BulkChangeSummary{Total: len(req.Issues)}
	for _, key := range req.Issues {
		raw, err := s.getRaw(ctx, tx, key)
		if errors.Is(err, ErrIssueNotFound) {
			sum.Failures++
			continue
		}
		if err != nil {
			return nil, err
		}
		set := map[string]any{}
		for _, change := range req.Changes {
			cols, err := apply(raw, change)
			if err != nil {
				debug.Log("datasource: bulk %s: %s: %v", req.OperationID, key, err)
				continue
			}
			for k, v := range cols {
				set[k] = v
			}
		}
		if len(set) == 0 {
			sum.Ignored++
			continue
		}
		if err := s.update(ctx, tx, key, set); err != nil {
			return nil, fmt.Errorf("updating %s: %w", key, err)
		}
		sum.Success++
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	debug.LogTiming("datasource bulk change "+req.OperationID, time.Since(start))
	return sum, nil
}
