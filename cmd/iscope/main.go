// Command iscope explores the issues of a code quality server, or of an
// offline dump imported into SQLite.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/vanderheijden86/issuescope/internal/datasource"
	"github.com/vanderheijden86/issuescope/internal/server"
	"github.com/vanderheijden86/issuescope/pkg/client"
	"github.com/vanderheijden86/issuescope/pkg/config"
	"github.com/vanderheijden86/issuescope/pkg/debug"
	"github.com/vanderheijden86/issuescope/pkg/explorer"
	"github.com/vanderheijden86/issuescope/pkg/metrics"
	"github.com/vanderheijden86/issuescope/pkg/model"
	"github.com/vanderheijden86/issuescope/pkg/query"
	"github.com/vanderheijden86/issuescope/pkg/ui"
	"github.com/vanderheijden86/issuescope/pkg/version"
	"github.com/vanderheijden86/issuescope/pkg/watcher"
)

type options struct {
	configPath  string
	server      string
	tokenEnv    string
	project     string
	branch      string
	pullRequest string
	query       string
	open        string
	myIssues    bool
	filter      string
	db          string
	user        string
	importPath  string
	serve       string
	json        bool
	debug       bool
	metrics     bool
	version     bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := pflag.NewFlagSet("iscope", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVarP(&o.configPath, "config", "c", config.ConfigPath(), "Config file")
	fs.StringVar(&o.server, "server", "", "Server URL (overrides the config)")
	fs.StringVar(&o.tokenEnv, "token-env", "", "Environment variable holding the API token")
	fs.StringVarP(&o.project, "project", "p", "", "Project key, or the name of a configured project")
	fs.StringVar(&o.branch, "branch", "", "Branch to explore")
	fs.StringVar(&o.pullRequest, "pull-request", "", "Pull request to explore")
	fs.StringVarP(&o.query, "query", "q", "", `Filters or a whole link in parameter form, e.g. "severities=BLOCKER&id=proj&open=AX1"`)
	fs.StringVar(&o.filter, "filter", "", "Name of a saved filter from the config")
	fs.StringVar(&o.open, "open", "", "Key of the issue to open")
	fs.BoolVarP(&o.myIssues, "my-issues", "m", false, "Only issues assigned to me")
	fs.StringVar(&o.db, "db", "", "Explore an offline SQLite database instead of the server")
	fs.StringVar(&o.user, "user", "", "Login to act as against --db")
	fs.StringVar(&o.importPath, "import", "", "Import a search response dump into --db and exit")
	fs.StringVar(&o.serve, "serve", "", "Serve --db over the web API on this address and exit on interrupt")
	fs.BoolVar(&o.json, "json", false, "Print the first page as JSON instead of starting the TUI")
	fs.BoolVar(&o.debug, "debug", false, "Write debug logs (to a file in the state directory while the TUI runs)")
	fs.BoolVar(&o.metrics, "metrics", false, "Print timing metrics on exit")
	fs.BoolVar(&o.version, "version", false, "Show version")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: iscope [options]")
		fmt.Fprintln(stderr, "\nExplore, filter and bulk-change code quality issues.")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.branch != "" && o.pullRequest != "" {
		return o, errors.New("--branch and --pull-request are mutually exclusive")
	}
	if o.importPath != "" && o.serve != "" {
		return o, errors.New("--import and --serve are mutually exclusive")
	}
	return o, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if errors.Is(err, pflag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	if opts.version {
		fmt.Printf("iscope %s\n", version.Version)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, opts, os.Stdout, os.Stderr)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, stdout, stderr io.Writer) error {
	cfg, err := config.LoadFrom(opts.configPath)
	if err != nil {
		return err
	}
	if opts.server != "" {
		cfg.Server.URL = opts.server
	}
	if opts.tokenEnv != "" {
		cfg.Server.TokenEnv = opts.tokenEnv
	}
	if opts.db != "" {
		cfg.DB = opts.db
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	interactive := !opts.json && opts.importPath == "" && opts.serve == "" && isTerminal(stdout)
	if opts.debug {
		debug.SetEnabled(true)
		if interactive {
			closeLog, err := redirectDebug()
			if err != nil {
				return err
			}
			defer closeLog()
		}
	}
	if opts.metrics {
		metrics.SetEnabled(true)
		defer writeMetrics(stderr)
	}

	if opts.importPath != "" || opts.serve != "" {
		if cfg.DB == "" {
			return errors.New("--import and --serve need --db")
		}
		store, err := openStore(ctx, cfg.DB, opts.user)
		if err != nil {
			return err
		}
		defer store.Close()
		if opts.importPath != "" {
			return importDump(ctx, store, opts.importPath, stdout)
		}
		return serve(ctx, store, opts.serve, cfg.Token(), stdout)
	}

	backend, closeBackend, err := newBackend(ctx, cfg, opts.user)
	if err != nil {
		return err
	}
	defer closeBackend()

	loc, err := initialLocation(cfg, opts)
	if err != nil {
		return err
	}
	var router explorer.Router = stateRouter{path: config.StatePath()}
	var history *ui.History
	if interactive {
		history = ui.NewHistory(router, loc)
		router = history
	}
	ctrl := explorer.New(backend, loc, explorer.Options{
		PageSize:          cfg.Search.PageSize,
		Ceiling:           cfg.Search.MaxInitialFetch,
		MaxBulk:           cfg.Search.MaxBulk,
		BranchStatusDelay: cfg.Search.BranchStatusDelay,
		Router:            router,
		Preferences:       config.StateStore{Path: config.StatePath()},
	})

	if !interactive {
		return writeRobot(ctx, ctrl, stdout)
	}
	return runTUI(ctx, ctrl, history, cfg, opts.configPath)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// redirectDebug sends debug output to a log file so it does not corrupt
// the TUI.
func redirectDebug() (func(), error) {
	dir := config.StateDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating state dir: %w", err)
	}
	path := filepath.Join(dir, "debug.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening debug log: %w", err)
	}
	debug.SetOutput(f)
	return func() {
		debug.SetOutput(os.Stderr)
		f.Close()
	}, nil
}

func openStore(ctx context.Context, path, user string) (*datasource.Store, error) {
	var opts []datasource.Option
	if user != "" {
		opts = append(opts, datasource.WithUser(model.CurrentUser{Login: user, Name: user, IsLoggedIn: true}))
	}
	return datasource.Open(ctx, path, opts...)
}

// newBackend picks the offline store when a database is configured and the
// web API otherwise.
func newBackend(ctx context.Context, cfg config.Config, user string) (explorer.Backend, func(), error) {
	if cfg.DB != "" {
		store, err := openStore(ctx, cfg.DB, user)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	}
	if cfg.Server.URL == "" {
		return nil, nil, errors.New("no server configured: use --server, --db or the config file")
	}
	c, err := client.New(cfg.Server.URL,
		client.WithToken(cfg.Token()),
		client.WithTimeout(cfg.Server.Timeout),
		client.WithUserAgent("iscope/"+version.Version),
	)
	if err != nil {
		return nil, nil, err
	}
	return c, func() {}, nil
}

// initialLocation builds the navigational context from the flags.
func initialLocation(cfg config.Config, opts options) (query.Location, error) {
	loc, err := query.ParseLocationString(opts.query)
	if err != nil {
		return query.Location{}, fmt.Errorf("parsing --query: %w", err)
	}
	q := loc.Query
	if opts.filter != "" {
		f := cfg.FindFilter(opts.filter)
		if f == nil {
			return query.Location{}, fmt.Errorf("unknown filter %q", opts.filter)
		}
		saved, err := f.Parse()
		if err != nil {
			return query.Location{}, err
		}
		q = q.Apply(query.Changes(query.Serialize(saved)))
	}

	loc.Query = q
	if opts.open != "" {
		loc.Open = opts.open
	}
	if opts.myIssues {
		loc.MyIssues = true
	}
	if opts.project != "" {
		loc.Project = opts.project
	}
	if opts.branch != "" || opts.pullRequest != "" {
		loc.Branch = model.BranchLike{Branch: opts.branch, PullRequest: opts.pullRequest}
	}
	if p := cfg.FindProject(loc.Project); p != nil {
		loc.Project = p.Key
		if loc.Branch.IsMain() {
			loc.Branch = p.BranchLike()
		}
	}
	return loc, nil
}

// stateRouter remembers the last project explored.
type stateRouter struct {
	path string
}

func (r stateRouter) Push(loc query.Location) { r.Replace(loc) }

func (r stateRouter) Replace(loc query.Location) {
	debug.Log("route: %s", loc.String())
	if r.path == "" || loc.Project == "" {
		return
	}
	st, err := config.LoadState(r.path)
	if err != nil || st.LastProject == loc.Project {
		return
	}
	st.LastProject = loc.Project
	debug.LogIf(config.SaveState(r.path, st) != nil, "route: could not save state to %s", r.path)
}

func importDump(ctx context.Context, store *datasource.Store, path string, w io.Writer) error {
	rep, err := store.ImportFile(ctx, path)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, rep.Summary())
	n, err := store.CountIssues(ctx)
	if err == nil {
		fmt.Fprintf(w, "%s now holds %d issue(s)\n", store.Path(), n)
	}
	return nil
}

func serve(ctx context.Context, store *datasource.Store, addr, token string, w io.Writer) error {
	var opts []server.Option
	if token != "" {
		opts = append(opts, server.WithToken(token))
	}
	srv := server.New(store, opts...)
	return srv.ListenAndServe(ctx, addr, func(a net.Addr) {
		fmt.Fprintf(w, "Serving %s on http://%s\n", store.Path(), a.String())
	})
}

func runTUI(ctx context.Context, ctrl *explorer.Controller, history *ui.History, cfg config.Config, cfgPath string) error {
	var w *watcher.Watcher
	if cfgPath != "" {
		var err error
		w, err = watcher.New(cfgPath, watcher.WithDebounceDuration(200*time.Millisecond))
		if err == nil {
			err = w.Start()
		}
		if err != nil {
			debug.Log("config watch disabled: %v", err)
			w = nil
		} else {
			defer w.Stop()
		}
	}

	m := ui.New(ctx, ctrl, ui.Options{Config: cfg, ConfigPath: cfgPath, ConfigWatcher: w, History: history})
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	// Optional auto-quit for automated tests.
	if v := os.Getenv("ISCOPE_TUI_AUTOCLOSE_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			timer := time.AfterFunc(time.Duration(ms)*time.Millisecond, p.Quit)
			defer timer.Stop()
		}
	}

	_, err := p.Run()
	ctrl.Unmount()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
