package explorer

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/vanderheijden86/issuescope/pkg/bulk"
	"github.com/vanderheijden86/issuescope/pkg/model"
	"github.com/vanderheijden86/issuescope/pkg/query"
	"github.com/vanderheijden86/issuescope/pkg/selection"
	"github.com/vanderheijden86/issuescope/pkg/testutil"
)

type routeEntry struct {
	Push bool
	Loc  string
}

type recordingRouter struct {
	entries []routeEntry
}

func (r *recordingRouter) Push(loc query.Location) {
	r.entries = append(r.entries, routeEntry{Push: true, Loc: loc.String()})
}

func (r *recordingRouter) Replace(loc query.Location) {
	r.entries = append(r.entries, routeEntry{Push: false, Loc: loc.String()})
}

type memPrefs struct {
	on    bool
	saved []bool
}

func (p *memPrefs) MyIssues() bool { return p.on }

func (p *memPrefs) SetMyIssues(on bool) error {
	p.on = on
	p.saved = append(p.saved, on)
	return nil
}

type authErr struct{}

func (authErr) Error() string      { return "401 unauthorized" }
func (authErr) AuthRequired() bool { return true }

var epoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type harness struct {
	gen     *testutil.Generator
	backend *testutil.FakeBackend
	router  *recordingRouter
	c       *Controller
}

func newHarness(t *testing.T, n int, loc query.Location, opts Options) *harness {
	t.Helper()
	gen := testutil.NewDefault()
	h := &harness{
		gen:     gen,
		backend: testutil.NewFakeBackend(gen.Issues(n)),
		router:  &recordingRouter{},
	}
	if opts.Router == nil {
		opts.Router = h.router
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return epoch }
	}
	h.c = New(h.backend, loc, opts)
	return h
}

func (h *harness) run(cmd Cmd) []Msg {
	return Drain(context.Background(), h.c, cmd)
}

func (h *harness) mount(t *testing.T) {
	t.Helper()
	h.run(h.c.Mount())
}

func TestMount_LoadsUserThenFirstPage(t *testing.T) {
	h := newHarness(t, 120, query.Location{}, Options{})
	if !h.c.Loading() {
		t.Error("a fresh controller starts loading")
	}
	h.mount(t)

	if u := h.c.User(); u == nil || u.Login != "alice" {
		t.Fatalf("expected current user alice, got %+v", u)
	}
	if h.c.Loading() {
		t.Error("loading should be cleared after the first page")
	}
	if got := h.c.Issues().Len(); got != 100 {
		t.Errorf("expected 100 issues, got %d", got)
	}
	if p := h.c.Paging(); p == nil || p.Total != 120 || p.PageIndex != 1 {
		t.Errorf("unexpected paging %+v", p)
	}
	if got := h.c.Selection().Selected; got != h.gen.IssueKey(0) {
		t.Errorf("expected the first issue selected, got %q", got)
	}
	if h.c.Mode() != selection.Listing {
		t.Error("expected listing mode")
	}

	call := h.backend.LastCall()
	if got := call.Get("facets"); got != "severities,types" {
		t.Errorf("expected the open facets with the first page, got %q", got)
	}
	if got := call.Get("s"); got != "FILE_LINE" {
		t.Errorf("expected the default sort, got %q", got)
	}
	if _, ok := h.c.Facets().Facet("severities"); !ok {
		t.Error("expected severities counts installed from the first page")
	}
}

func TestFetchMore_AppendsUntilExhausted(t *testing.T) {
	h := newHarness(t, 120, query.Location{}, Options{})
	h.mount(t)

	more := h.c.FetchMore()
	if more == nil {
		t.Fatal("expected a fetch-more command")
	}
	if !h.c.LoadingMore() {
		t.Error("expected loadingMore while the page is in flight")
	}
	if again := h.c.FetchMore(); again != nil {
		t.Error("a second FetchMore while loading must be ignored")
	}
	h.run(more)

	if got := h.c.Issues().Len(); got != 120 {
		t.Fatalf("expected 120 issues, got %d", got)
	}
	if p := h.c.Paging(); p.PageIndex != 2 {
		t.Errorf("expected page 2, got %+v", p)
	}
	testutil.AssertNoDuplicateKeys(t, h.c.Issues().Issues())
	if h.c.FetchMore() != nil {
		t.Error("FetchMore on an exhausted result set must do nothing")
	}
	if h.backend.Requests() != 2 {
		t.Errorf("expected 2 requests, got %d", h.backend.Requests())
	}
}

func TestFetchMore_BeforeFirstPageIsIgnored(t *testing.T) {
	h := newHarness(t, 120, query.Location{}, Options{})
	if h.c.FetchMore() != nil {
		t.Error("nothing loaded yet, FetchMore must be a no-op")
	}
}

func TestDeepLink_FoundOnSecondPage(t *testing.T) {
	gen := testutil.NewDefault()
	loc := query.Location{Open: gen.IssueKey(149)}
	h := newHarness(t, 250, loc, Options{})
	h.mount(t)

	if h.backend.Requests() != 2 {
		t.Errorf("expected 2 page requests, got %d", h.backend.Requests())
	}
	issue, ok := h.c.OpenedIssue()
	if !ok || issue.Key != loc.Open {
		t.Fatalf("expected %s open, got %+v %v", loc.Open, issue.Key, ok)
	}
	if h.c.Mode() != selection.Viewing {
		t.Error("expected viewing mode")
	}
	if h.c.CannotShowOpenIssue() {
		t.Error("the issue was found")
	}
	if got := h.c.Issues().Len(); got != 200 {
		t.Errorf("expected both pages kept, got %d issues", got)
	}
	if p := h.c.Paging(); p.PageIndex != 2 {
		t.Errorf("paging should describe the last page fetched, got %+v", p)
	}
}

func TestDeepLink_NotFoundStopsAtCeiling(t *testing.T) {
	h := newHarness(t, 2000, query.Location{Open: "missing"}, Options{})
	h.mount(t)

	if h.backend.Requests() != 10 {
		t.Errorf("expected 10 requests before giving up, got %d", h.backend.Requests())
	}
	if !h.c.CannotShowOpenIssue() {
		t.Error("expected cannotShowOpenIssue")
	}
	if h.c.Mode() != selection.Listing {
		t.Error("a missing issue cannot be viewed")
	}
	if got := h.c.Issues().Len(); got != 1000 {
		t.Errorf("expected 1000 issues loaded, got %d", got)
	}
}

func TestStaleFirstPageIsDiscarded(t *testing.T) {
	h := newHarness(t, 50, query.Location{}, Options{})
	ctx := context.Background()

	userMsg := h.c.Mount()(ctx)
	oldFetch := h.c.Update(userMsg)
	if oldFetch == nil {
		t.Fatal("expected the first page request")
	}

	newFetch := h.c.HandleFilterChange(query.Change(query.ParamSeverities, "BLOCKER"))
	if follow := h.c.Update(oldFetch(ctx)); follow != nil {
		t.Error("a stale response must not lead to more work")
	}
	if h.c.Issues().Len() != 0 {
		t.Error("the stale page must not be installed")
	}
	if !h.c.Loading() {
		t.Error("still waiting for the current search")
	}

	h.backend.SetIssues(h.gen.Issues(3))
	h.run(newFetch)
	if got := h.c.Issues().Len(); got != 3 {
		t.Errorf("expected the current search's 3 issues, got %d", got)
	}
	if got := h.backend.LastCall().Get("severities"); got != "BLOCKER" {
		t.Errorf("expected the new filter in the request, got %q", got)
	}
}

func TestUnmount_DropsResults(t *testing.T) {
	h := newHarness(t, 50, query.Location{}, Options{})
	ctx := context.Background()
	msg := h.c.Mount()(ctx)
	h.c.Unmount()

	if cmd := h.c.Update(msg); cmd != nil {
		t.Error("an unmounted controller must not start work")
	}
	if h.c.User() != nil {
		t.Error("the user must not be applied after unmount")
	}
	if h.backend.Requests() != 0 {
		t.Errorf("expected no search, got %d", h.backend.Requests())
	}
}

func TestAuthErrors(t *testing.T) {
	t.Run("user lookup rejected", func(t *testing.T) {
		h := newHarness(t, 10, query.Location{}, Options{})
		h.backend.SetUser(model.CurrentUser{}, fmt.Errorf("users/current: %w", authErr{}))
		h.mount(t)

		if !h.c.AuthRequired() {
			t.Error("expected authRequired")
		}
		if !IsAuthError(h.c.Err()) {
			t.Errorf("expected an auth error, got %v", h.c.Err())
		}
		var fe *FetchError
		if !errors.As(h.c.Err(), &fe) || fe.Op != OpUser {
			t.Errorf("expected a user FetchError, got %v", h.c.Err())
		}
		if h.backend.Requests() != 0 {
			t.Error("no search without credentials")
		}
	})

	t.Run("my issues while anonymous", func(t *testing.T) {
		h := newHarness(t, 10, query.Location{MyIssues: true}, Options{})
		h.backend.SetUser(model.CurrentUser{}, nil)
		h.mount(t)

		if !h.c.AuthRequired() {
			t.Error("expected authRequired")
		}
		if h.c.Loading() {
			t.Error("loading must stop")
		}
		if !errors.Is(h.c.Err(), ErrAuthRequired) {
			t.Errorf("expected ErrAuthRequired, got %v", h.c.Err())
		}
		if h.backend.Requests() != 0 {
			t.Error("no search without a user")
		}
	})

	t.Run("switching to my issues while anonymous", func(t *testing.T) {
		h := newHarness(t, 10, query.Location{}, Options{})
		h.backend.SetUser(model.CurrentUser{}, nil)
		h.mount(t)
		before := h.backend.Requests()

		if cmd := h.c.HandleMyIssuesChange(true); cmd != nil {
			t.Fatal("nothing to fetch without a user")
		}
		if !h.c.AuthRequired() || !IsAuthError(h.c.Err()) {
			t.Errorf("expected an auth error, got %v", h.c.Err())
		}
		if h.c.Location().MyIssues || h.backend.Requests() != before {
			t.Error("the location must stay unchanged")
		}
	})

	t.Run("search rejected", func(t *testing.T) {
		h := newHarness(t, 10, query.Location{}, Options{})
		h.backend.FailWith(authErr{})
		h.mount(t)

		if !h.c.AuthRequired() {
			t.Error("expected authRequired")
		}
		if !h.c.Empty() {
			t.Error("a failed first page leaves an empty list")
		}
	})

	t.Run("user lookup fails otherwise", func(t *testing.T) {
		h := newHarness(t, 10, query.Location{}, Options{})
		h.backend.SetUser(model.CurrentUser{}, errors.New("connection reset"))
		h.mount(t)

		if h.c.AuthRequired() {
			t.Error("a transport error is not an auth error")
		}
		if h.c.Issues().Len() != 10 {
			t.Error("the list still loads anonymously")
		}
	})
}

func TestRouter_PushAndReplace(t *testing.T) {
	h := newHarness(t, 20, query.Location{}, Options{})
	h.mount(t)
	k0, k1 := h.gen.IssueKey(0), h.gen.IssueKey(1)

	h.run(h.c.OpenIssue(k0))
	h.run(h.c.OpenIssue(k1))
	h.c.SelectLocation(0)
	h.run(h.c.OpenIssue(k1))
	h.run(h.c.CloseIssue())

	want := []routeEntry{
		{Push: true, Loc: "open=" + k0},
		{Push: false, Loc: "open=" + k1},
		{Push: true, Loc: ""},
	}
	if diff := cmp.Diff(want, h.router.entries); diff != "" {
		t.Errorf("router entries mismatch (-want +got):\n%s", diff)
	}
	if h.backend.Requests() != 1 {
		t.Errorf("changing the open issue must not refetch, got %d requests", h.backend.Requests())
	}
	if h.c.Mode() != selection.Listing || h.c.Selection().Selected != k1 {
		t.Errorf("expected listing with %s selected, got %+v", k1, h.c.Selection())
	}
}

func TestKeyboardNavigation(t *testing.T) {
	h := newHarness(t, 20, query.Location{}, Options{})
	h.mount(t)

	h.run(h.c.Handle(selection.CmdNext))
	h.run(h.c.Handle(selection.CmdOpen))
	if issue, ok := h.c.OpenedIssue(); !ok || issue.Key != h.gen.IssueKey(1) {
		t.Fatalf("expected the second issue open, got %q", issue.Key)
	}
	h.run(h.c.Handle(selection.CmdNext))
	if h.c.Location().Open != h.gen.IssueKey(2) {
		t.Errorf("next while viewing opens the neighbour, got %q", h.c.Location().Open)
	}
	h.run(h.c.Handle(selection.CmdClose))
	if h.c.Mode() != selection.Listing {
		t.Error("expected close to return to the list")
	}
}

func TestCloseIgnoredForSingleIssueQuery(t *testing.T) {
	gen := testutil.NewDefault()
	key := gen.IssueKey(0)
	loc := query.Location{Query: query.Query{Issues: []string{key}}, Open: key}
	h := newHarness(t, 1, loc, Options{})
	h.mount(t)

	if cmd := h.c.Handle(selection.CmdClose); cmd != nil {
		t.Error("close must be ignored when the query designates one issue")
	}
	if h.c.Mode() != selection.Viewing {
		t.Error("expected to stay on the issue")
	}
}

func TestFilterChangeAndReset(t *testing.T) {
	h := newHarness(t, 20, query.Location{}, Options{})
	h.mount(t)
	h.run(h.c.OpenIssue(h.gen.IssueKey(3)))

	h.run(h.c.HandleFilterChange(query.Change(query.ParamTypes, "BUG")))
	loc := h.c.Location()
	if loc.Open != "" {
		t.Error("a filter change closes the open issue")
	}
	if !h.c.IsFiltered() {
		t.Error("expected the query to be filtered")
	}
	last := h.router.entries[len(h.router.entries)-1]
	if !last.Push || last.Loc != "types=BUG" {
		t.Errorf("expected a pushed filter entry, got %+v", last)
	}

	h.run(h.c.HandleReset())
	if h.c.IsFiltered() {
		t.Error("reset must clear every filter")
	}
	if h.backend.Requests() != 3 {
		t.Errorf("expected a fetch per search, got %d", h.backend.Requests())
	}
}

func TestHandleMyIssuesChange(t *testing.T) {
	prefs := &memPrefs{}
	loc := query.Location{Query: query.Query{Assignees: []string{"bob"}}}
	h := newHarness(t, 20, loc, Options{Preferences: prefs})
	h.mount(t)

	h.run(h.c.HandleMyIssuesChange(true))

	if diff := cmp.Diff([]bool{true}, prefs.saved); diff != "" {
		t.Errorf("preference not persisted (-want +got):\n%s", diff)
	}
	got := h.c.Location()
	if !got.MyIssues || len(got.Query.Assignees) != 0 {
		t.Errorf("expected my issues without assignee filter, got %+v", got)
	}
	if v := h.backend.LastCall().Get(query.ParamAssignees); v != "__me__" {
		t.Errorf("expected the current-user assignee, got %q", v)
	}
}

func TestMyIssuesPreferenceAppliedOnMount(t *testing.T) {
	prefs := &memPrefs{on: true}
	h := newHarness(t, 20, query.Location{}, Options{Preferences: prefs})
	h.mount(t)

	if !h.c.Location().MyIssues {
		t.Fatal("the saved preference should apply to an unscoped search")
	}
	want := []routeEntry{{Push: false, Loc: "myIssues=true"}}
	if diff := cmp.Diff(want, h.router.entries); diff != "" {
		t.Errorf("expected the context rewritten in place (-want +got):\n%s", diff)
	}

	scoped := newHarness(t, 20, query.Location{Project: "proj"}, Options{Preferences: prefs})
	scoped.mount(t)
	if scoped.c.Location().MyIssues {
		t.Error("the preference does not apply inside a project")
	}
}

func TestToggleFacet_LoadsOnce(t *testing.T) {
	h := newHarness(t, 20, query.Location{}, Options{})
	h.backend.SetFacet(query.ParamRules, model.FacetValue{Val: "go:S100", Count: 7})
	h.mount(t)

	cmd := h.c.ToggleFacet(query.ParamRules)
	if cmd == nil {
		t.Fatal("opening an unloaded facet should load it")
	}
	if !h.c.Facets().IsLoading(query.ParamRules) {
		t.Error("expected the facet loading")
	}
	h.run(cmd)

	if h.c.Facets().IsLoading(query.ParamRules) {
		t.Error("loading flag must be cleared")
	}
	f, ok := h.c.Facets().Facet(query.ParamRules)
	if !ok {
		t.Fatal("expected counts for rules")
	}
	if n, _ := f.Count("go:S100"); n != 7 {
		t.Errorf("expected 7, got %d", n)
	}
	call := h.backend.LastCall()
	if call.Get("ps") != "1" || call.Get("facets") != query.ParamRules {
		t.Errorf("expected a one-issue facet request, got %v", call)
	}

	if h.c.ToggleFacet(query.ParamRules) != nil {
		t.Error("closing must not load")
	}
	if h.c.ToggleFacet(query.ParamRules) != nil {
		t.Error("reopening a loaded facet must not load")
	}
}

func TestToggleFacet_StaleResponseIsDiscarded(t *testing.T) {
	h := newHarness(t, 20, query.Location{}, Options{})
	h.backend.SetFacet(query.ParamTags, model.FacetValue{Val: "old", Count: 1})
	h.mount(t)
	ctx := context.Background()

	msg := h.c.ToggleFacet(query.ParamTags)(ctx)
	h.backend.SetFacet(query.ParamTags, model.FacetValue{Val: "new", Count: 2})
	h.run(h.c.HandleFilterChange(query.Change(query.ParamTypes, "BUG")))
	h.c.Update(msg)

	if h.c.Facets().IsLoading(query.ParamTags) {
		t.Error("a stale facet response still ends the load")
	}
	f, _ := h.c.Facets().Facet(query.ParamTags)
	if _, ok := f.Count("old"); ok {
		t.Error("stale counts must not replace the current ones")
	}
	if n, _ := f.Count("new"); n != 2 {
		t.Errorf("expected the counts of the current search, got %v", f)
	}
}

func TestToggleFacet_CountsSurviveFirstPageArrivingLater(t *testing.T) {
	h := newHarness(t, 20, query.Location{}, Options{})
	h.backend.SetFacet(query.ParamRules, model.FacetValue{Val: "go:S100", Count: 5})
	ctx := context.Background()

	first := h.c.Update(h.c.Mount()(ctx))
	if first == nil {
		t.Fatal("expected the first page request")
	}
	load := h.c.ToggleFacet(query.ParamRules)
	if load == nil {
		t.Fatal("expected a facet load")
	}
	h.c.Update(load(ctx))
	h.c.Update(first(ctx))

	f := h.c.Facets()
	if !f.IsOpen(query.ParamRules) || !f.IsLoaded(query.ParamRules) || f.IsLoading(query.ParamRules) {
		t.Fatalf("open=%v loaded=%v loading=%v", f.IsOpen(query.ParamRules), f.IsLoaded(query.ParamRules), f.IsLoading(query.ParamRules))
	}
	counts, _ := f.Facet(query.ParamRules)
	if n, _ := counts.Count("go:S100"); n != 5 {
		t.Errorf("expected 5, got %v", counts)
	}
	if !f.IsLoaded(query.ParamSeverities) {
		t.Error("the first page still installs the facets it carried")
	}
}

func TestLoadSearchResultCount(t *testing.T) {
	h := newHarness(t, 20, query.Location{}, Options{})
	h.backend.SetFacet(query.ParamSeverities, model.FacetValue{Val: "MAJOR", Count: 4})
	h.mount(t)

	msg := h.c.LoadSearchResultCount(query.ParamSeverities, query.Change(query.ParamTypes, "BUG"))(context.Background())
	preview, ok := msg.(FacetPreviewMsg)
	if !ok || preview.Err != nil {
		t.Fatalf("unexpected message %#v", msg)
	}
	if n, _ := preview.Facet.Count("MAJOR"); n != 4 {
		t.Errorf("expected 4, got %d", n)
	}
	if got := h.backend.LastCall().Get(query.ParamTypes); got != "BUG" {
		t.Errorf("the preview must apply the changes, got %q", got)
	}
	if h.c.IsFiltered() {
		t.Error("a preview must not change the current filters")
	}
}

func TestComponentIssues(t *testing.T) {
	gen := testutil.New(testutil.GeneratorConfig{Seed: 7, IssuesPerFile: 150})
	issues := gen.Issues(300)
	backend := testutil.NewFakeBackend(issues)
	c := New(backend, query.Location{Open: gen.IssueKey(0)}, Options{})
	run := func(cmd Cmd) { Drain(context.Background(), c, cmd) }
	run(c.Mount())

	same, cmd := c.ComponentIssues(1, 50)
	if cmd != nil {
		t.Error("lines 1-50 are covered by the first page")
	}
	if len(same) != 100 {
		t.Errorf("expected 100 issues of the component, got %d", len(same))
	}

	_, cmd = c.ComponentIssues(1, 10_000)
	if cmd == nil {
		t.Fatal("expected more pages to be loaded")
	}
	run(cmd)
	if c.Loading() {
		t.Error("loading must be cleared")
	}
	same, cmd = c.ComponentIssues(1, 10_000)
	if cmd != nil {
		t.Error("all issues of the component are loaded")
	}
	if len(same) != 150 {
		t.Errorf("expected 150 issues of the component, got %d", len(same))
	}
}

func TestBranchStatus_DebouncedAfterChanges(t *testing.T) {
	loc := query.Location{Project: "proj", Branch: model.BranchLike{PullRequest: "42"}}
	h := newHarness(t, 20, loc, Options{BranchStatusDelay: time.Second})
	h.mount(t)
	key := h.gen.IssueKey(0)

	h.run(h.c.ChangeIssue(key, model.IssueChange{Kind: model.ChangeSeverity, Value: "BLOCKER"}))
	h.run(h.c.ChangeIssue(key, model.IssueChange{Kind: model.ChangeAssign, Value: "bob"}))

	issue, _ := h.c.Issues().Get(key)
	if issue.Severity != model.SeverityBlocker || issue.Assignee != "bob" {
		t.Errorf("expected the changes installed, got %+v", issue)
	}
	deadline, ok := h.c.NextDeadline()
	if !ok || !deadline.Equal(epoch.Add(time.Second)) {
		t.Fatalf("expected a deadline one second out, got %v %v", deadline, ok)
	}
	if h.c.Tick(epoch.Add(500*time.Millisecond)) != nil {
		t.Error("nothing is due before the window closes")
	}
	h.run(h.c.Tick(deadline))
	if got := h.backend.BranchStatusCalls(); got != 1 {
		t.Errorf("expected one refresh for the burst, got %d", got)
	}
	if h.c.Tick(deadline.Add(time.Hour)) != nil {
		t.Error("the burst fires once")
	}
}

func TestBranchStatus_OnlyForPullRequests(t *testing.T) {
	h := newHarness(t, 20, query.Location{Project: "proj", Branch: model.BranchLike{Branch: "feature"}}, Options{})
	h.mount(t)
	h.run(h.c.ChangeIssue(h.gen.IssueKey(0), model.IssueChange{Kind: model.ChangeType, Value: "BUG"}))

	if _, ok := h.c.NextDeadline(); ok {
		t.Error("branches do not refresh their status")
	}
}

func TestBranchStatus_UnmountCancels(t *testing.T) {
	loc := query.Location{Project: "proj", Branch: model.BranchLike{PullRequest: "42"}}
	h := newHarness(t, 20, loc, Options{})
	h.mount(t)
	h.c.HandleIssueChange(h.gen.Issues(1)[0])
	h.c.Unmount()

	if h.c.Tick(epoch.Add(time.Hour)) != nil {
		t.Error("no refresh after unmount")
	}
}

func TestChangeIssueFailure(t *testing.T) {
	h := newHarness(t, 5, query.Location{}, Options{})
	h.mount(t)
	h.backend.FailChanges(errors.New("boom"))

	h.run(h.c.ChangeIssue(h.gen.IssueKey(0), model.IssueChange{Kind: model.ChangeAssign, Value: "bob"}))
	var fe *FetchError
	if !errors.As(h.c.Err(), &fe) || fe.Op != OpChange {
		t.Errorf("expected a change FetchError, got %v", h.c.Err())
	}
}

func TestBulk_CheckAllExecutesAndReloads(t *testing.T) {
	h := newHarness(t, 120, query.Location{}, Options{
		BulkOptions: []bulk.Option{bulk.WithIDFunc(func() string { return "op-1" })},
	})
	h.mount(t)

	if h.c.OpenBulkChange() {
		t.Error("nothing is checked yet")
	}
	if got := h.c.BulkLabel(); got != "Bulk change" {
		t.Errorf("unexpected label %q", got)
	}

	h.c.CheckAll(true)
	if !h.c.AllChecked() || h.c.CheckedCount() != 100 {
		t.Errorf("expected every loaded issue checked, got %d", h.c.CheckedCount())
	}
	if got := h.c.BulkLabel(); got != "Bulk change 120 issues" {
		t.Errorf("unexpected label %q", got)
	}
	if !h.c.OpenBulkChange() {
		t.Fatal("expected the dialog to open")
	}

	before := h.backend.Requests()
	h.run(h.c.ExecuteBulkChange([]model.IssueChange{{Kind: model.ChangeAssign, Value: "bob"}}, false))

	reqs := h.backend.BulkRequests()
	if len(reqs) != 2 {
		t.Fatalf("expected 2 batches, got %d", len(reqs))
	}
	n := 0
	for _, r := range reqs {
		if r.OperationID != "op-1" {
			t.Errorf("batches must share the operation id, got %q", r.OperationID)
		}
		n += len(r.Issues)
	}
	if n != 120 {
		t.Errorf("expected 120 keys sent, got %d", n)
	}
	if sum := h.c.LastBulkSummary(); sum == nil || sum.Success != 120 {
		t.Errorf("unexpected summary %+v", sum)
	}
	if h.c.BulkOpen() || h.c.AllChecked() || h.c.CheckedCount() != 0 {
		t.Error("a finished bulk change closes the dialog and unchecks all")
	}
	// one search to resolve the targets, one reload
	if got := h.backend.Requests() - before; got != 2 {
		t.Errorf("expected 2 searches, got %d", got)
	}
	issue, _ := h.c.Issues().Get(h.gen.IssueKey(0))
	if issue.Assignee != "bob" {
		t.Error("the reloaded list shows the changed issues")
	}
}

func TestBulk_ExplicitSelection(t *testing.T) {
	h := newHarness(t, 120, query.Location{}, Options{})
	h.mount(t)

	h.c.CheckAll(true)
	h.run(h.c.FetchMore())
	if h.c.AllChecked() {
		t.Error("fetching more leaves check-all mode")
	}
	if h.c.CheckedCount() != 100 {
		t.Errorf("the checked keys are kept, got %d", h.c.CheckedCount())
	}

	h.c.ToggleChecked(h.gen.IssueKey(0))
	if got := h.c.BulkLabel(); got != "Bulk change 99 issues" {
		t.Errorf("unexpected label %q", got)
	}
	h.c.CheckAll(false)
	h.c.ToggleChecked(h.gen.IssueKey(5))
	if got := h.c.BulkLabel(); got != "Bulk change 1 issue" {
		t.Errorf("unexpected label %q", got)
	}

	h.run(h.c.ExecuteBulkChange([]model.IssueChange{{Kind: model.ChangeTags, Values: []string{"x"}}}, true))
	reqs := h.backend.BulkRequests()
	if len(reqs) != 1 || !reqs[0].SendNotifications {
		t.Fatalf("expected one notifying request, got %+v", reqs)
	}
	if diff := cmp.Diff([]string{h.gen.IssueKey(5)}, reqs[0].Issues); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
}

func TestBulk_FailureKeepsDialogOpen(t *testing.T) {
	h := newHarness(t, 10, query.Location{}, Options{})
	h.mount(t)
	h.c.ToggleChecked(h.gen.IssueKey(0))
	h.c.OpenBulkChange()
	h.backend.FailChanges(errors.New("rejected"))

	h.run(h.c.ExecuteBulkChange([]model.IssueChange{{Kind: model.ChangeAssign}}, false))
	if !h.c.BulkOpen() {
		t.Error("the dialog stays open on failure")
	}
	var fe *FetchError
	if !errors.As(h.c.Err(), &fe) || fe.Op != OpBulk {
		t.Errorf("expected a bulk FetchError, got %v", h.c.Err())
	}
}

func TestSetLocation_RestoresHistory(t *testing.T) {
	h := newHarness(t, 20, query.Location{}, Options{})
	h.mount(t)
	key := h.gen.IssueKey(4)

	if cmd := h.c.SetLocation(query.Location{Open: key}); cmd != nil {
		t.Error("only the open issue changed, no refetch expected")
	}
	if issue, ok := h.c.OpenedIssue(); !ok || issue.Key != key {
		t.Errorf("expected %s open", key)
	}
	if len(h.router.entries) != 0 {
		t.Error("restoring a location must not record history")
	}
}
