package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vanderheijden86/issuescope/pkg/config"
	"github.com/vanderheijden86/issuescope/pkg/model"
	"github.com/vanderheijden86/issuescope/pkg/query"
	"github.com/vanderheijden86/issuescope/pkg/testutil"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
		check   func(t *testing.T, o options)
	}{
		{
			name: "scope and filters",
			args: []string{"-p", "proj", "--branch", "dev", "-q", "types=BUG", "-m", "--open", "AX-0001"},
			check: func(t *testing.T, o options) {
				assert.Equal(t, "proj", o.project)
				assert.Equal(t, "dev", o.branch)
				assert.Equal(t, "types=BUG", o.query)
				assert.True(t, o.myIssues)
				assert.Equal(t, "AX-0001", o.open)
			},
		},
		{
			name: "offline",
			args: []string{"--db", "x.db", "--user", "alice", "--json"},
			check: func(t *testing.T, o options) {
				assert.Equal(t, "x.db", o.db)
				assert.Equal(t, "alice", o.user)
				assert.True(t, o.json)
			},
		},
		{name: "branch and pull request", args: []string{"--branch", "a", "--pull-request", "1"}, wantErr: "mutually exclusive"},
		{name: "import and serve", args: []string{"--import", "a", "--serve", ":0"}, wantErr: "mutually exclusive"},
		{name: "unknown flag", args: []string{"--nope"}, wantErr: "unknown flag"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, err := parseFlags(tt.args, io.Discard)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, o)
		})
	}
}

func TestInitialLocation(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Projects = []config.Project{{Name: "Backend", Key: "org:backend", PullRequest: "42"}}
	cfg.Filters = []config.Filter{{Name: "blockers", Query: "severities=BLOCKER"}}

	loc, err := initialLocation(cfg, options{project: "backend", query: "types=BUG", filter: "Blockers"})
	require.NoError(t, err)
	assert.Equal(t, "org:backend", loc.Project)
	assert.Equal(t, model.BranchLike{PullRequest: "42"}, loc.Branch)
	assert.Equal(t, []string{"BUG"}, loc.Query.Types)
	assert.Equal(t, []string{"BLOCKER"}, loc.Query.Severities)

	// an explicit branch wins over the pinned pull request
	loc, err = initialLocation(cfg, options{project: "backend", branch: "dev"})
	require.NoError(t, err)
	assert.Equal(t, model.BranchLike{Branch: "dev"}, loc.Branch)

	// unknown projects are taken as keys
	loc, err = initialLocation(cfg, options{project: "other"})
	require.NoError(t, err)
	assert.Equal(t, "other", loc.Project)

	// a link given as --query carries its scope and open issue
	loc, err = initialLocation(cfg, options{query: "id=org:backend&open=AX1&severities=MAJOR"})
	require.NoError(t, err)
	assert.Equal(t, "org:backend", loc.Project)
	assert.Equal(t, "AX1", loc.Open)
	assert.Equal(t, model.BranchLike{PullRequest: "42"}, loc.Branch)
	assert.Equal(t, []string{"MAJOR"}, loc.Query.Severities)

	loc, err = initialLocation(cfg, options{query: "id=org:backend&open=AX1", open: "AX2", branch: "dev"})
	require.NoError(t, err)
	assert.Equal(t, "AX2", loc.Open, "flags win over the link")
	assert.Equal(t, model.BranchLike{Branch: "dev"}, loc.Branch)

	_, err = initialLocation(cfg, options{filter: "missing"})
	assert.ErrorContains(t, err, "unknown filter")

	_, err = initialLocation(cfg, options{query: "%zz"})
	assert.ErrorContains(t, err, "--query")
}

func writeDump(t *testing.T, dir string, issues []model.Issue) string {
	t.Helper()
	resp := model.SearchResponse{
		Components: []model.Component{
			{Key: "proj", Name: "Project", Qualifier: model.QualifierProject},
			{Key: "proj:src/file000.go", UUID: "u0", Name: "file000.go", Path: "src/file000.go", Qualifier: model.QualifierFile},
			{Key: "proj:src/file001.go", UUID: "u1", Name: "file001.go", Path: "src/file001.go", Qualifier: model.QualifierFile},
		},
	}
	for _, issue := range issues {
		resp.Issues = append(resp.Issues, issue.ToRaw())
	}
	data, err := json.Marshal(resp)
	require.NoError(t, err)
	path := filepath.Join(dir, "dump.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestImportThenRobotOutput(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_STATE_HOME", filepath.Join(dir, "state"))
	gen := testutil.NewDefault()
	issues := gen.Issues(15)
	issues[3].Type = model.IssueTypes[0]
	dumpPath := writeDump(t, dir, issues)

	base := options{
		configPath: filepath.Join(dir, "missing.yaml"),
		db:         filepath.Join(dir, "issues.db"),
	}
	ctx := context.Background()

	var out bytes.Buffer
	imp := base
	imp.importPath = dumpPath
	require.NoError(t, run(ctx, imp, &out, io.Discard))
	assert.Contains(t, out.String(), "15 new")

	out.Reset()
	robot := base
	robot.json = true
	robot.open = gen.IssueKey(2)
	require.NoError(t, run(ctx, robot, &out, io.Discard))

	var got robotOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Len(t, got.Issues, 15)
	require.NotNil(t, got.Paging)
	assert.Equal(t, 15, got.Paging.Total)
	require.NotNil(t, got.Open)
	assert.Equal(t, gen.IssueKey(2), got.Open.Key)
	assert.Empty(t, got.Error)
	assert.True(t, strings.Contains(got.Location, "open="+gen.IssueKey(2)))
}

func TestRobotOutputWithQuery(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_STATE_HOME", filepath.Join(dir, "state"))
	gen := testutil.NewDefault()
	issues := gen.Issues(12)
	dumpPath := writeDump(t, dir, issues)
	db := filepath.Join(dir, "issues.db")
	cfgPath := filepath.Join(dir, "config.yaml")

	ctx := context.Background()
	require.NoError(t, run(ctx, options{configPath: cfgPath, db: db, importPath: dumpPath}, io.Discard, io.Discard))

	var out bytes.Buffer
	opts := options{configPath: cfgPath, db: db, json: true, query: query.ParamText + "=number+1"}
	require.NoError(t, run(ctx, opts, &out, io.Discard))

	var got robotOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	for _, issue := range got.Issues {
		assert.Contains(t, strings.ToLower(issue.Message), "number 1")
	}
	assert.NotEmpty(t, got.Issues)
}

func TestRunNeedsBackend(t *testing.T) {
	dir := t.TempDir()
	err := run(context.Background(), options{configPath: filepath.Join(dir, "none.yaml"), json: true}, io.Discard, io.Discard)
	assert.ErrorContains(t, err, "server.url or db")
}

func TestStateRouterRemembersProject(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	r := stateRouter{path: path}

	r.Push(query.Location{Project: "org:backend"})
	st, err := config.LoadState(path)
	require.NoError(t, err)
	assert.Equal(t, "org:backend", st.LastProject)

	r.Replace(query.Location{})
	st, err = config.LoadState(path)
	require.NoError(t, err)
	assert.Equal(t, "org:backend", st.LastProject, "unscoped locations keep the last project")
}

func TestWriteMetrics(t *testing.T) {
	var buf bytes.Buffer
	writeMetrics(&buf)
	assert.Contains(t, buf.String(), `"timings"`)
}
