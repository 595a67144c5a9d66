package main

import (
	"context"
	"fmt"
	"io"
	"time"

	json "github.com/goccy/go-json"

	"github.com/vanderheijden86/issuescope/pkg/explorer"
	"github.com/vanderheijden86/issuescope/pkg/metrics"
	"github.com/vanderheijden86/issuescope/pkg/model"
)

type robotOutput struct {
	GeneratedAt string              `json:"generated_at"`
	Location    string              `json:"location"`
	Paging      *model.Paging       `json:"paging,omitempty"`
	EffortTotal int                 `json:"effort_total"`
	User        *model.CurrentUser  `json:"user,omitempty"`
	Issues      []model.Issue       `json:"issues"`
	Open        *model.Issue        `json:"open,omitempty"`
	Facets      map[string][]string `json:"open_facets,omitempty"`
	Error       string              `json:"error,omitempty"`
	AuthNeeded  bool                `json:"auth_required,omitempty"`
}

// writeRobot loads the initial context without a terminal and prints it.
func writeRobot(ctx context.Context, ctrl *explorer.Controller, w io.Writer) error {
	explorer.Drain(ctx, ctrl, ctrl.Mount())
	defer ctrl.Unmount()

	out := robotOutput{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Location:    ctrl.Location().String(),
		Paging:      ctrl.Paging(),
		EffortTotal: ctrl.EffortTotal(),
		User:        ctrl.User(),
		Issues:      ctrl.Issues().Issues(),
		AuthNeeded:  ctrl.AuthRequired(),
	}
	if issue, ok := ctrl.OpenedIssue(); ok {
		out.Open = &issue
	}
	for property, open := range ctrl.Facets().OpenFlags() {
		if !open {
			continue
		}
		f, ok := ctrl.Facets().Facet(property)
		if !ok {
			continue
		}
		if out.Facets == nil {
			out.Facets = make(map[string][]string)
		}
		for _, v := range f {
			out.Facets[property] = append(out.Facets[property],
				fmt.Sprintf("%s=%d", ctrl.Refs().Label(property, v.Val), v.Count))
		}
	}
	if err := ctrl.Err(); err != nil {
		out.Error = err.Error()
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return err
	}
	if out.Error != "" {
		return fmt.Errorf("loading issues: %s", out.Error)
	}
	return nil
}

func writeMetrics(w io.Writer) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(map[string]any{"timings": metrics.Snapshot()})
}
