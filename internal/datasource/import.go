package datasource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/vanderheijden86/issuescope/pkg/debug"
	"github.com/vanderheijden86/issuescope/pkg/model"
)

// ImportReport summarizes an import.
type ImportReport struct {
	Documents int
	Added     []string
	Updated   []string
	// StatusChanged lists updated issues whose status or resolution differ
	// from the stored ones.
	StatusChanged []StatusDifference
}

// StatusDifference is a status change seen during import.
type StatusDifference struct {
	Key    string `json:"key"`
	Before string `json:"before"`
	After  string `json:"after"`
}

// Summary returns a human-readable summary of the report.
func (r ImportReport) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "imported %d document(s): %d new, %d updated issue(s)", r.Documents, len(r.Added), len(r.Updated))
	if n := len(r.StatusChanged); n > 0 {
		fmt.Fprintf(&b, ", %d status change(s)", n)
		if n <= 5 {
			for _, d := range r.StatusChanged {
				fmt.Fprintf(&b, "\n  - %s: %s -> %s", d.Key, d.Before, d.After)
			}
		}
	}
	return b.String()
}

// ImportFile imports a search-response dump from path.
func (s *Store) ImportFile(ctx context.Context, path string) (ImportReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return ImportReport{}, err
	}
	defer f.Close()
	return s.Import(ctx, f)
}

// Import reads one or more concatenated search responses (the body of the
// search endpoint, for instance saved page by page) and upserts their
// issues and referenced entities.
func (s *Store) Import(ctx context.Context, r io.Reader) (ImportReport, error) {
	var report ImportReport
	dec := json.NewDecoder(r)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return report, err
	}
	defer tx.Rollback()

	for {
		var doc model.SearchResponse
		if err := dec.Decode(&doc); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return report, fmt.Errorf("document %d: %w: %v", report.Documents+1, ErrUnsupportedPayload, err)
		}
		report.Documents++
		if err := s.importDoc(ctx, tx, doc, &report); err != nil {
			return report, fmt.Errorf("document %d: %w", report.Documents, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return report, err
	}
	debug.Log("datasource: %s", report.Summary())
	return report, nil
}

func (s *Store) importDoc(ctx context.Context, q querier, doc model.SearchResponse, report *ImportReport) error {
	for _, c := range doc.Components {
		_, err := q.ExecContext(ctx, `INSERT INTO components (key, uuid, name, long_name, path, qualifier, project)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET uuid=excluded.uuid, name=excluded.name, long_name=excluded.long_name,
				path=excluded.path, qualifier=excluded.qualifier, project=excluded.project`,
			c.Key, c.UUID, c.Name, c.LongName, c.Path, c.Qualifier, c.Project)
		if err != nil {
			return fmt.Errorf("component %s: %w", c.Key, err)
		}
	}
	for _, r := range doc.Rules {
		_, err := q.ExecContext(ctx, `INSERT INTO rules (key, name, lang, lang_name) VALUES (?, ?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET name=excluded.name, lang=excluded.lang, lang_name=excluded.lang_name`,
			r.Key, r.Name, r.Lang, r.LangName)
		if err != nil {
			return fmt.Errorf("rule %s: %w", r.Key, err)
		}
	}
	langNames := make(map[string]string, len(doc.Languages))
	for _, l := range doc.Languages {
		langNames[l.Key] = l.Name
	}
	if len(langNames) > 0 {
		for key, name := range langNames {
			if _, err := q.ExecContext(ctx, `UPDATE rules SET lang_name = ? WHERE lang = ? AND lang_name = ''`, name, key); err != nil {
				return err
			}
		}
	}
	for _, u := range doc.Users {
		_, err := q.ExecContext(ctx, `INSERT INTO users (login, name, avatar, active) VALUES (?, ?, ?, ?)
			ON CONFLICT(login) DO UPDATE SET name=excluded.name, avatar=excluded.avatar, active=excluded.active`,
			u.Login, u.Name, u.Avatar, u.Active)
		if err != nil {
			return fmt.Errorf("user %s: %w", u.Login, err)
		}
	}
	for _, raw := range doc.Issues {
		if err := s.upsertIssue(ctx, q, raw, report); err != nil {
			return fmt.Errorf("issue %s: %w", raw.Key, err)
		}
	}
	return nil
}

func (s *Store) upsertIssue(ctx context.Context, q querier, raw model.RawIssue, report *ImportReport) error {
	if raw.Key == "" || raw.Component == "" {
		return fmt.Errorf("%w: issue without key or component", ErrInvalidParameter)
	}
	var before, beforeRes string
	err := q.QueryRowContext(ctx, "SELECT status, resolution FROM issues WHERE key = ?", raw.Key).Scan(&before, &beforeRes)
	exists := err == nil

	textRange, err := marshalNullable(raw.TextRange)
	if err != nil {
		return err
	}
	flows, err := marshalNullable(raw.Flows)
	if err != nil {
		return err
	}
	tags, err := marshalJSON(nonNil(raw.Tags))
	if err != nil {
		return err
	}

	_, err = q.ExecContext(ctx, `INSERT INTO issues (key, rule, severity, type, status, resolution, message, component, dir,
			project, branch, pull_request, line, text_range, flows, assignee, author, tags, effort, effort_minutes,
			creation_date, created_unix, update_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET rule=excluded.rule, severity=excluded.severity, type=excluded.type,
			status=excluded.status, resolution=excluded.resolution, message=excluded.message,
			component=excluded.component, dir=excluded.dir, project=excluded.project, branch=excluded.branch,
			pull_request=excluded.pull_request, line=excluded.line, text_range=excluded.text_range,
			flows=excluded.flows, assignee=excluded.assignee, author=excluded.author, tags=excluded.tags,
			effort=excluded.effort, effort_minutes=excluded.effort_minutes, creation_date=excluded.creation_date,
			created_unix=excluded.created_unix, update_date=excluded.update_date`,
		raw.Key, raw.Rule, string(raw.Severity), string(raw.Type), string(raw.Status), raw.Resolution, raw.Message,
		raw.Component, componentDir(raw.Component), raw.Project, raw.Branch, raw.PullRequest, raw.Line, textRange, flows,
		raw.Assignee, raw.Author, tags, raw.Effort, parseEffort(raw.Effort), raw.CreationDate,
		parseTimestamp(raw.CreationDate).Unix(), raw.UpdateDate)
	if err != nil {
		return err
	}

	if !exists {
		report.Added = append(report.Added, raw.Key)
		return nil
	}
	report.Updated = append(report.Updated, raw.Key)
	after := statusLabel(string(raw.Status), raw.Resolution)
	if was := statusLabel(before, beforeRes); was != after {
		report.StatusChanged = append(report.StatusChanged, StatusDifference{Key: raw.Key, Before: was, After: after})
	}
	return nil
}

func statusLabel(status, resolution string) string {
	if resolution == "" {
		return status
	}
	return status + "/" + resolution
}

func marshalNullable(v any) (any, error) {
	switch x := v.(type) {
	case *model.TextRange:
		if x == nil {
			return nil, nil
		}
	case []model.Flow:
		if len(x) == 0 {
			return nil, nil
		}
	}
	return marshalJSON(v)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// componentDir returns the directory part of a file component key
// ("proj:src/a/b.go" -> "src/a").
func componentDir(component string) string {
	p := component
	if i := strings.Index(p, ":"); i >= 0 {
		p = p[i+1:]
	}
	dir := path.Dir(p)
	if dir == "." {
		return "/"
	}
	return dir
}

// parseEffort converts "2h 10min", "3d" or "45min" into minutes. A day is
// eight hours.
func parseEffort(effort string) int {
	total := 0
	for _, part := range strings.Fields(effort) {
		for _, unit := range []struct {
			suffix string
			mins   int
		}{{"min", 1}, {"h", 60}, {"d", 8 * 60}} {
			if n, ok := strings.CutSuffix(part, unit.suffix); ok {
				if v, err := strconv.Atoi(n); err == nil {
					total += v * unit.mins
				}
				break
			}
		}
	}
	return total
}

func parseTimestamp(v string) time.Time {
	for _, layout := range []string{"2006-01-02T15:04:05-0700", time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	return time.Unix(0, 0)
}
