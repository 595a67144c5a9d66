package datasource

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/vanderheijden86/issuescope/pkg/debug"
	"github.com/vanderheijden86/issuescope/pkg/metrics"
	"github.com/vanderheijden86/issuescope/pkg/model"
	"github.com/vanderheijden86/issuescope/pkg/query"
)

const (
	meAssignee     = "__me__"
	defaultPerPage = 100
)

// clause is one WHERE condition. facet names the facet whose own filter it
// is; that facet's counts are computed without it.
type clause struct {
	facet string
	sql   string
	args  []any
}

// facetColumns maps endpoint facet names to the expression they count.
var facetColumns = map[string]string{
	query.ParamSeverities:  "severity",
	query.ParamTypes:       "type",
	query.ParamStatuses:    "status",
	query.ParamResolutions: "NULLIF(resolution, '')",
	query.ParamRules:       "rule",
	query.ParamAssignees:   "NULLIF(assignee, '')",
	query.ParamAuthor:      "NULLIF(author, '')",
	query.ParamProjects:    "project",
	query.ParamDirectories: "dir",
	query.ParamFileUUIDs:   "(SELECT NULLIF(c.uuid, '') FROM components c WHERE c.key = issues.component)",
	query.ParamLanguages:   "(SELECT NULLIF(r.lang, '') FROM rules r WHERE r.key = issues.rule)",
}

// Search answers a search request in wire form.
func (s *Store) Search(ctx context.Context, params url.Values) (*model.SearchResponse, error) {
	start := time.Now()
	defer func() { metrics.SQLiteQuery.Record(time.Since(start)) }()

	page, err := intParam(params, "p", 1)
	if err != nil {
		return nil, err
	}
	size, err := intParam(params, "ps", defaultPerPage)
	if err != nil {
		return nil, err
	}
	if size > MaxPageSize {
		return nil, fmt.Errorf("%w: ps must not exceed %d", ErrInvalidParameter, MaxPageSize)
	}

	clauses := s.filters(params)
	where, args := whereSQL(clauses, "")

	resp := &model.SearchResponse{Paging: model.Paging{PageIndex: page, PageSize: size}}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*), COALESCE(SUM(effort_minutes), 0) FROM issues"+where, args...).
		Scan(&resp.Paging.Total, &resp.EffortTotal); err != nil {
		return nil, fmt.Errorf("counting issues: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+issueColumns+" FROM issues"+where+" ORDER BY "+orderBy(params)+" LIMIT ? OFFSET ?",
		append(args, size, (page-1)*size)...)
	if err != nil {
		return nil, fmt.Errorf("querying issues: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		raw, err := scanIssue(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning issue: %w", err)
		}
		resp.Issues = append(resp.Issues, raw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating issues: %w", err)
	}

	if names := params.Get("facets"); names != "" {
		for _, name := range strings.Split(names, ",") {
			f, err := s.facet(ctx, strings.TrimSpace(name), clauses)
			if err != nil {
				return nil, err
			}
			resp.Facets = append(resp.Facets, f)
		}
	}
	if err := s.references(ctx, resp); err != nil {
		return nil, err
	}
	debug.Log("datasource: search p=%d ps=%d matched %d", page, size, resp.Paging.Total)
	return resp, nil
}

// SearchIssues implements the search endpoint.
func (s *Store) SearchIssues(ctx context.Context, params url.Values) (*model.SearchResult, error) {
	resp, err := s.Search(ctx, params)
	if err != nil {
		return nil, err
	}
	res := model.ParseSearchResponse(*resp)
	return &res, nil
}

func intParam(params url.Values, key string, def int) (int, error) {
	v := params.Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidParameter, key, v)
	}
	return n, nil
}

func orderBy(params url.Values) string {
	if params.Get(query.ParamSort) == query.SortCreationDate {
		dir := "DESC"
		if params.Get(query.ParamAsc) == "true" {
			dir = "ASC"
		}
		return "created_unix " + dir + ", key"
	}
	return "component, line, key"
}

func whereSQL(clauses []clause, skipFacet string) (string, []any) {
	var parts []string
	var args []any
	for _, c := range clauses {
		if skipFacet != "" && c.facet == skipFacet {
			continue
		}
		parts = append(parts, c.sql)
		args = append(args, c.args...)
	}
	if len(parts) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(parts, " AND "), args
}

func in(facet, column string, values []string) clause {
	return clause{facet: facet, sql: column + " IN (" + placeholders(len(values)) + ")", args: stringArgs(values)}
}

// filters translates the endpoint parameters into WHERE clauses.
func (s *Store) filters(params url.Values) []clause {
	q := query.Parse(params)
	var out []clause

	lists := []struct {
		facet  string
		column string
		values []string
	}{
		{"", "key", q.Issues},
		{query.ParamSeverities, "severity", q.Severities},
		{query.ParamTypes, "type", q.Types},
		{query.ParamStatuses, "status", q.Statuses},
		{query.ParamResolutions, "resolution", q.Resolutions},
		{query.ParamRules, "rule", q.Rules},
		{query.ParamAuthor, "author", q.Authors},
		{query.ParamProjects, "project", q.Projects},
		{query.ParamDirectories, "dir", q.Directories},
	}
	for _, l := range lists {
		if len(l.values) > 0 {
			out = append(out, in(l.facet, l.column, l.values))
		}
	}

	if len(q.Assignees) > 0 {
		logins := make([]string, len(q.Assignees))
		for i, a := range q.Assignees {
			if a == meAssignee {
				a = s.user.Login
			}
			logins[i] = a
		}
		out = append(out, in(query.ParamAssignees, "assignee", logins))
	}
	if q.Unassigned {
		out = append(out, clause{facet: query.ParamAssignees, sql: "assignee = ''"})
	}
	if len(q.Tags) > 0 {
		out = append(out, clause{
			facet: query.ParamTags,
			sql:   "EXISTS (SELECT 1 FROM json_each(issues.tags) j WHERE j.value IN (" + placeholders(len(q.Tags)) + "))",
			args:  stringArgs(q.Tags),
		})
	}
	if len(q.Files) > 0 {
		out = append(out, clause{
			facet: query.ParamFileUUIDs,
			sql:   "component IN (SELECT key FROM components WHERE uuid IN (" + placeholders(len(q.Files)) + "))",
			args:  stringArgs(q.Files),
		})
	}
	if len(q.Languages) > 0 {
		out = append(out, clause{
			facet: query.ParamLanguages,
			sql:   "rule IN (SELECT key FROM rules WHERE lang IN (" + placeholders(len(q.Languages)) + "))",
			args:  stringArgs(q.Languages),
		})
	}

	// the endpoint returns every issue when resolved is absent
	switch params.Get(query.ParamResolved) {
	case "false":
		out = append(out, clause{sql: "resolution = ''"})
	case "true":
		out = append(out, clause{sql: "resolution <> ''"})
	}

	if q.Text != "" {
		like := "%" + escapeLike(q.Text) + "%"
		out = append(out, clause{sql: `(message LIKE ? ESCAPE '\' OR key = ?)`, args: []any{like, q.Text}})
	}
	if !q.CreatedAfter.IsZero() {
		out = append(out, clause{sql: "created_unix >= ?", args: []any{q.CreatedAfter.Unix()}})
	}
	if !q.CreatedBefore.IsZero() {
		out = append(out, clause{sql: "created_unix < ?", args: []any{q.CreatedBefore.Unix()}})
	}
	if q.CreatedAt != "" {
		if day := parseTimestamp(q.CreatedAt); day.Unix() > 0 {
			out = append(out, clause{sql: "created_unix >= ? AND created_unix < ?", args: []any{day.Unix(), day.Add(24 * time.Hour).Unix()}})
		}
	}
	if q.CreatedInLast != "" {
		if d, ok := parsePeriod(q.CreatedInLast); ok {
			out = append(out, clause{sql: "created_unix >= ?", args: []any{s.now().Add(-d).Unix()}})
		}
	}

	if key := params.Get("componentKeys"); key != "" {
		out = append(out, clause{sql: "(project = ? OR component = ?)", args: []any{key, key}})
	}
	out = append(out, clause{
		sql:  "branch = ? AND pull_request = ?",
		args: []any{params.Get("branch"), params.Get("pullRequest")},
	})

	for _, p := range []string{query.ParamCWE, query.ParamOwaspTop10, query.ParamSansTop25, query.ParamSonarsourceSecurity, query.ParamScopes, query.ParamModuleUUIDs, query.ParamSinceLeakPeriod} {
		debug.LogIf(params.Get(p) != "", "datasource: ignoring unsupported filter %s", p)
	}
	return out
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// parsePeriod reads createdInLast values such as "1w", "3m" or "1y".
func parsePeriod(v string) (time.Duration, bool) {
	if len(v) < 2 {
		return 0, false
	}
	n, err := strconv.Atoi(v[:len(v)-1])
	if err != nil || n <= 0 {
		return 0, false
	}
	day := 24 * time.Hour
	switch v[len(v)-1] {
	case 'd':
		return time.Duration(n) * day, true
	case 'w':
		return time.Duration(n) * 7 * day, true
	case 'm':
		return time.Duration(n) * 30 * day, true
	case 'y':
		return time.Duration(n) * 365 * day, true
	}
	return 0, false
}

// facet counts the values of name over the issues matching every filter
// except the facet's own one, most frequent first.
func (s *Store) facet(ctx context.Context, name string, clauses []clause) (model.RawFacet, error) {
	f := model.RawFacet{Property: name, Values: []model.FacetValue{}}
	where, args := whereSQL(clauses, name)

	var stmt string
	switch col, ok := facetColumns[name]; {
	case name == query.ParamTags:
		stmt = "SELECT j.value AS v, COUNT(*) FROM issues, json_each(issues.tags) j" + where + " GROUP BY v"
	case ok:
		stmt = "SELECT " + col + " AS v, COUNT(*) FROM issues" + where + " GROUP BY v"
	default:
		debug.Log("datasource: no counts for facet %s", name)
		return f, nil
	}

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return f, fmt.Errorf("facet %s: %w", name, err)
	}
	defer rows.Close()
	for rows.Next() {
		var v *string
		var n int
		if err := rows.Scan(&v, &n); err != nil {
			return f, fmt.Errorf("facet %s: %w", name, err)
		}
		if v == nil || *v == "" {
			continue
		}
		f.Values = append(f.Values, model.FacetValue{Val: *v, Count: n})
	}
	if err := rows.Err(); err != nil {
		return f, err
	}
	sort.SliceStable(f.Values, func(i, j int) bool {
		if f.Values[i].Count != f.Values[j].Count {
			return f.Values[i].Count > f.Values[j].Count
		}
		return f.Values[i].Val < f.Values[j].Val
	})
	return f, nil
}

// references fills the components, rules, users and languages referenced
// by the page and by the facet values.
func (s *Store) references(ctx context.Context, resp *model.SearchResponse) error {
	components := map[string]bool{}
	uuids := map[string]bool{}
	rules := map[string]bool{}
	users := map[string]bool{}
	for _, issue := range resp.Issues {
		components[issue.Component] = true
		components[issue.Project] = true
		rules[issue.Rule] = true
		if issue.Assignee != "" {
			users[issue.Assignee] = true
		}
		for _, f := range issue.Flows {
			for _, loc := range f.Locations {
				components[loc.Component] = true
			}
		}
	}
	for _, f := range resp.Facets {
		for _, v := range f.Values {
			switch f.Property {
			case query.ParamProjects:
				components[v.Val] = true
			case query.ParamFileUUIDs:
				uuids[v.Val] = true
			case query.ParamRules:
				rules[v.Val] = true
			case query.ParamAssignees, query.ParamAuthor:
				users[v.Val] = true
			}
		}
	}

	var err error
	if resp.Components, err = s.loadComponents(ctx, keys(components), keys(uuids)); err != nil {
		return err
	}
	if resp.Rules, err = s.loadRules(ctx, keys(rules)); err != nil {
		return err
	}
	if resp.Users, err = s.loadUsers(ctx, keys(users)); err != nil {
		return err
	}
	resp.Languages = languagesOf(resp.Rules)
	return nil
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		if k != "" {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func (s *Store) loadComponents(ctx context.Context, byKey, byUUID []string) ([]model.Component, error) {
	if len(byKey) == 0 && len(byUUID) == 0 {
		return nil, nil
	}
	stmt := "SELECT key, uuid, name, long_name, path, qualifier, project FROM components WHERE key IN (" +
		placeholders(len(byKey)) + ") OR uuid IN (" + placeholders(len(byUUID)) + ") ORDER BY key"
	if len(byKey) == 0 {
		stmt = strings.Replace(stmt, "key IN () OR ", "", 1)
	}
	if len(byUUID) == 0 {
		stmt = strings.Replace(stmt, " OR uuid IN ()", "", 1)
	}
	rows, err := s.db.QueryContext(ctx, stmt, append(stringArgs(byKey), stringArgs(byUUID)...)...)
	if err != nil {
		return nil, fmt.Errorf("loading components: %w", err)
	}
	defer rows.Close()
	var out []model.Component
	for rows.Next() {
		var c model.Component
		if err := rows.Scan(&c.Key, &c.UUID, &c.Name, &c.LongName, &c.Path, &c.Qualifier, &c.Project); err != nil {
			return nil, err
		}
		c.Enabled = true
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) loadRules(ctx context.Context, ruleKeys []string) ([]model.Rule, error) {
	if len(ruleKeys) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT key, name, lang, lang_name FROM rules WHERE key IN ("+placeholders(len(ruleKeys))+") ORDER BY key",
		stringArgs(ruleKeys)...)
	if err != nil {
		return nil, fmt.Errorf("loading rules: %w", err)
	}
	defer rows.Close()
	var out []model.Rule
	for rows.Next() {
		var r model.Rule
		if err := rows.Scan(&r.Key, &r.Name, &r.Lang, &r.LangName); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) loadUsers(ctx context.Context, logins []string) ([]model.User, error) {
	if len(logins) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT login, name, avatar, active FROM users WHERE login IN ("+placeholders(len(logins))+") ORDER BY login",
		stringArgs(logins)...)
	if err != nil {
		return nil, fmt.Errorf("loading users: %w", err)
	}
	defer rows.Close()
	var out []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.Login, &u.Name, &u.Avatar, &u.Active); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func languagesOf(rules []model.Rule) []model.Language {
	seen := map[string]bool{}
	var out []model.Language
	for _, r := range rules {
		if r.Lang == "" || seen[r.Lang] {
			continue
		}
		seen[r.Lang] = true
		out = append(out, model.Language{Key: r.Lang, Name: r.LangName})
	}
	return out
}
