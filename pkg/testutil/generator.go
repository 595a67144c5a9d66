// Package testutil provides deterministic issue fixtures and an in-memory
// search endpoint for tests.
package testutil

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/vanderheijden86/issuescope/pkg/model"
)

// GeneratorConfig controls issue generation.
type GeneratorConfig struct {
	Seed          int64     // Random seed for determinism (0 = use current time)
	KeyPrefix     string    // Prefix for issue keys (default: "AX")
	Project       string    // Project key (default: "proj")
	IssuesPerFile int       // Issues per file before moving to the next one (default: 10)
	BaseTime      time.Time // Base time for creation dates (default: fixed time)
}

// DefaultConfig returns a config suitable for most tests.
func DefaultConfig() GeneratorConfig {
	return GeneratorConfig{
		Seed:          42,
		KeyPrefix:     "AX",
		Project:       "proj",
		IssuesPerFile: 10,
		BaseTime:      time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

// Generator creates issue fixtures.
type Generator struct {
	cfg GeneratorConfig
	rng *rand.Rand
}

// New creates a Generator with the given config.
func New(cfg GeneratorConfig) *Generator {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if cfg.BaseTime.IsZero() {
		cfg.BaseTime = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "AX"
	}
	if cfg.Project == "" {
		cfg.Project = "proj"
	}
	if cfg.IssuesPerFile <= 0 {
		cfg.IssuesPerFile = 10
	}
	return &Generator{cfg: cfg, rng: rand.New(rand.NewSource(seed))}
}

// NewDefault creates a Generator with default config.
func NewDefault() *Generator {
	return New(DefaultConfig())
}

// IssueKey returns the key of the i-th generated issue (0-based).
func (g *Generator) IssueKey(i int) string {
	return fmt.Sprintf("%s-%04d", g.cfg.KeyPrefix, i+1)
}

// FileKey returns the component key of the i-th file.
func (g *Generator) FileKey(i int) string {
	return fmt.Sprintf("%s:src/file%03d.go", g.cfg.Project, i)
}

// Issues generates n issues in file/line order: IssuesPerFile issues per
// file, with increasing lines inside each file.
func (g *Generator) Issues(n int) []model.Issue {
	issues := make([]model.Issue, n)
	for i := 0; i < n; i++ {
		file := i / g.cfg.IssuesPerFile
		line := (i%g.cfg.IssuesPerFile)*10 + 1
		created := g.cfg.BaseTime.Add(time.Duration(i) * time.Hour)
		issues[i] = model.Issue{
			Key:          g.IssueKey(i),
			Rule:         fmt.Sprintf("go:S%d", 100+g.rng.Intn(20)),
			Severity:     model.Severities[g.rng.Intn(len(model.Severities))],
			Type:         model.IssueTypes[g.rng.Intn(3)],
			Status:       model.StatusOpen,
			Message:      fmt.Sprintf("Issue number %d", i+1),
			Component:    g.FileKey(file),
			Project:      g.cfg.Project,
			Line:         line,
			TextRange:    &model.TextRange{StartLine: line, EndLine: line + 2, StartOffset: 0, EndOffset: 10},
			CreationDate: created.Format("2006-01-02T15:04:05-0700"),
			UpdateDate:   created.Format("2006-01-02T15:04:05-0700"),
			Transitions:  []string{model.TransitionConfirm, model.TransitionResolve, model.TransitionFalsePositive},
		}
	}
	return issues
}

// WithFlows returns a copy of issue carrying n flows of steps locations each.
func (g *Generator) WithFlows(issue model.Issue, n, steps int) model.Issue {
	issue = issue.Clone()
	issue.Flows = make([]model.Flow, n)
	for f := 0; f < n; f++ {
		locs := make([]model.Location, steps)
		for s := 0; s < steps; s++ {
			line := issue.Line + f*100 + s
			locs[s] = model.Location{
				Component: issue.Component,
				TextRange: &model.TextRange{StartLine: line, EndLine: line},
				Msg:       fmt.Sprintf("flow %d step %d", f, s),
			}
		}
		issue.Flows[f] = model.Flow{Locations: locs}
	}
	return issue
}

// WithSecondaryLocations returns a copy of issue carrying n secondary locations.
func (g *Generator) WithSecondaryLocations(issue model.Issue, n int) model.Issue {
	issue = issue.Clone()
	issue.SecondaryLocations = make([]model.Location, n)
	for i := 0; i < n; i++ {
		line := issue.Line + i + 1
		issue.SecondaryLocations[i] = model.Location{
			Component: issue.Component,
			TextRange: &model.TextRange{StartLine: line, EndLine: line},
			Msg:       fmt.Sprintf("secondary %d", i),
		}
	}
	return issue
}
