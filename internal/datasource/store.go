// Package datasource is an offline issue store backed by SQLite. It serves
// the same endpoints as the web API (search with facets, issue changes,
// bulk changes, branch status and the current user) so the explorer can run
// against an imported dump without a server.
package datasource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	_ "modernc.org/sqlite"

	"github.com/vanderheijden86/issuescope/pkg/debug"
	"github.com/vanderheijden86/issuescope/pkg/model"
)

// Sentinel errors.
var (
	ErrIssueNotFound      = errors.New("issue not found")
	ErrInvalidTransition  = errors.New("transition not allowed")
	ErrInvalidParameter   = errors.New("invalid parameter")
	ErrUnsupportedPayload = errors.New("unsupported import payload")
)

// MaxPageSize is the largest page SearchIssues serves.
const MaxPageSize = 500

const schema = `
CREATE TABLE IF NOT EXISTS issues (
	seq            INTEGER PRIMARY KEY AUTOINCREMENT,
	key            TEXT NOT NULL UNIQUE,
	rule           TEXT NOT NULL DEFAULT '',
	severity       TEXT NOT NULL DEFAULT '',
	type           TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL DEFAULT '',
	resolution     TEXT NOT NULL DEFAULT '',
	message        TEXT NOT NULL DEFAULT '',
	component      TEXT NOT NULL,
	dir            TEXT NOT NULL DEFAULT '',
	project        TEXT NOT NULL DEFAULT '',
	branch         TEXT NOT NULL DEFAULT '',
	pull_request   TEXT NOT NULL DEFAULT '',
	line           INTEGER NOT NULL DEFAULT 0,
	text_range     TEXT,
	flows          TEXT,
	assignee       TEXT NOT NULL DEFAULT '',
	author         TEXT NOT NULL DEFAULT '',
	tags           TEXT NOT NULL DEFAULT '[]',
	effort         TEXT NOT NULL DEFAULT '',
	effort_minutes INTEGER NOT NULL DEFAULT 0,
	creation_date  TEXT NOT NULL DEFAULT '',
	created_unix   INTEGER NOT NULL DEFAULT 0,
	update_date    TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_issues_file_line ON issues(component, line, key);
CREATE INDEX IF NOT EXISTS idx_issues_created ON issues(created_unix);
CREATE TABLE IF NOT EXISTS components (
	key       TEXT PRIMARY KEY,
	uuid      TEXT NOT NULL DEFAULT '',
	name      TEXT NOT NULL DEFAULT '',
	long_name TEXT NOT NULL DEFAULT '',
	path      TEXT NOT NULL DEFAULT '',
	qualifier TEXT NOT NULL DEFAULT '',
	project   TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS rules (
	key       TEXT PRIMARY KEY,
	name      TEXT NOT NULL DEFAULT '',
	lang      TEXT NOT NULL DEFAULT '',
	lang_name TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS users (
	login  TEXT PRIMARY KEY,
	name   TEXT NOT NULL DEFAULT '',
	avatar TEXT NOT NULL DEFAULT '',
	active INTEGER NOT NULL DEFAULT 1
);
`

// Store is a SQLite-backed issue store. It is safe for concurrent use.
type Store struct {
	db   *sql.DB
	path string
	user model.CurrentUser
	now  func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithUser sets the identity CurrentUser reports and "__me__" resolves to.
// The default is an anonymous user.
func WithUser(u model.CurrentUser) Option {
	return func(s *Store) { s.user = u }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open opens or creates the store at path.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}
	// one writer; keeps WAL readers and the writer from tripping over each other
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA cache_size = -64000",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			debug.Log("datasource: %s: %v", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	s := &Store{db: db, path: path, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Path returns the database file.
func (s *Store) Path() string { return s.path }

// CountIssues returns the number of stored issues.
func (s *Store) CountIssues(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM issues").Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// CurrentUser returns the configured identity.
func (s *Store) CurrentUser(ctx context.Context) (*model.CurrentUser, error) {
	u := s.user
	return &u, nil
}

// BranchStatus has nothing to refresh offline.
func (s *Store) BranchStatus(ctx context.Context, project string, branch model.BranchLike) error {
	debug.Log("datasource: branch status of %s %s requested", project, branch)
	return nil
}

const issueColumns = `key, rule, severity, type, status, resolution, message, component,
	project, branch, pull_request, line, text_range, flows, assignee, author, tags,
	effort, creation_date, update_date`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIssue(row rowScanner) (model.RawIssue, error) {
	var raw model.RawIssue
	var textRange, flows sql.NullString
	var tags string
	err := row.Scan(
		&raw.Key, &raw.Rule, &raw.Severity, &raw.Type, &raw.Status, &raw.Resolution, &raw.Message, &raw.Component,
		&raw.Project, &raw.Branch, &raw.PullRequest, &raw.Line, &textRange, &flows, &raw.Assignee, &raw.Author, &tags,
		&raw.Effort, &raw.CreationDate, &raw.UpdateDate,
	)
	if err != nil {
		return raw, err
	}
	if textRange.Valid && textRange.String != "" {
		var tr model.TextRange
		if err := json.Unmarshal([]byte(textRange.String), &tr); err == nil {
			raw.TextRange = &tr
		}
	}
	if flows.Valid && flows.String != "" && flows.String != "null" {
		if err := json.Unmarshal([]byte(flows.String), &raw.Flows); err != nil {
			debug.Log("datasource: issue %s: bad flows: %v", raw.Key, err)
		}
	}
	raw.Tags = parseJSONStringArray(tags)
	raw.Transitions = transitionsFor(raw.Status)
	raw.Actions = actionsFor(raw.Status)
	return raw, nil
}

func (s *Store) getRaw(ctx context.Context, q querier, key string) (model.RawIssue, error) {
	row := q.QueryRowContext(ctx, "SELECT "+issueColumns+" FROM issues WHERE key = ?", key)
	raw, err := scanIssue(row)
	if errors.Is(err, sql.ErrNoRows) {
		return raw, fmt.Errorf("%s: %w", key, ErrIssueNotFound)
	}
	return raw, err
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// parseJSONStringArray parses a JSON array of strings.
func parseJSONStringArray(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || s == "null" || s == "[]" {
		return nil
	}
	var result []string
	if err := json.Unmarshal([]byte(s), &result); err != nil {
		// fallback for hand-edited rows
		s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
		for _, item := range strings.Split(s, ",") {
			item = strings.Trim(strings.TrimSpace(item), `"`)
			if item != "" {
				result = append(result, item)
			}
		}
	}
	return result
}

func marshalJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func stringArgs(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
