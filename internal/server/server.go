// Package server exposes an offline issue store over the same web API the
// client speaks, so a dump can be explored by any compatible tool.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	json "github.com/goccy/go-json"

	"github.com/vanderheijden86/issuescope/internal/datasource"
	"github.com/vanderheijden86/issuescope/pkg/client"
	"github.com/vanderheijden86/issuescope/pkg/debug"
	"github.com/vanderheijden86/issuescope/pkg/model"
)

// Store is the backend the server answers from.
type Store interface {
	Search(ctx context.Context, params url.Values) (*model.SearchResponse, error)
	Change(ctx context.Context, key string, change model.IssueChange) (*model.IssueResponse, error)
	BulkChange(ctx context.Context, req model.BulkChangeRequest) (*model.BulkChangeSummary, error)
	BranchStatus(ctx context.Context, project string, branch model.BranchLike) error
	CurrentUser(ctx context.Context) (*model.CurrentUser, error)
}

// Server routes web API requests to a Store.
type Server struct {
	store  Store
	token  string
	router chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithToken requires every request to carry "Authorization: Bearer token".
func WithToken(token string) Option {
	return func(s *Server) { s.token = token }
}

// New builds the server and its routes.
func New(store Store, opts ...Option) *Server {
	s := &Server{store: store}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: debugPrinter{}, NoColor: true}))
	r.Use(middleware.Recoverer)
	r.Use(s.authenticate)

	r.Get(client.PathSearch, s.handleSearch)
	for _, path := range []string{client.PathDoTransition, client.PathAssign, client.PathSetSeverity, client.PathSetType, client.PathSetTags} {
		r.Post(path, s.handleChange)
	}
	r.Post(client.PathBulkChange, s.handleBulkChange)
	r.Get(client.PathProjectStatus, s.handleProjectStatus)
	r.Get(client.PathCurrentUser, s.handleCurrentUser)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "unknown url: "+r.URL.Path)
	})
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully. ready, when non-nil, receives the bound address.
func (s *Server) ListenAndServe(ctx context.Context, addr string, ready func(net.Addr)) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	srv := &http.Server{Handler: s, ReadHeaderTimeout: 10 * time.Second}
	if ready != nil {
		ready(ln.Addr())
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" && r.Header.Get("Authorization") != "Bearer "+s.token {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	resp, err := s.store.Search(r.Context(), r.URL.Query())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleChange(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	key, change, err := client.ParseChangeForm(r.URL.Path, r.PostForm)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp, err := s.store.Change(r.Context(), key, change)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	debug.Log("server: %s %s [%s]", key, change, middleware.GetReqID(r.Context()))
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBulkChange(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req, err := client.ParseBulkChangeForm(r.PostForm)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sum, err := s.store.BulkChange(r.Context(), req)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

type projectStatus struct {
	ProjectStatus struct {
		Status string `json:"status"`
	} `json:"projectStatus"`
}

func (s *Server) handleProjectStatus(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	project := q.Get("projectKey")
	if project == "" {
		writeError(w, http.StatusBadRequest, "missing \"projectKey\" parameter")
		return
	}
	branch := model.BranchLike{Branch: q.Get("branch"), PullRequest: q.Get("pullRequest")}
	if err := s.store.BranchStatus(r.Context(), project, branch); err != nil {
		writeStoreError(w, err)
		return
	}
	var resp projectStatus
	resp.ProjectStatus.Status = "NONE"
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.store.CurrentUser(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, datasource.ErrIssueNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, datasource.ErrInvalidParameter), errors.Is(err, datasource.ErrInvalidTransition):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		debug.Log("server: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

type errorMessage struct {
	Msg string `json:"msg"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string][]errorMessage{"errors": {{Msg: msg}}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		debug.Log("server: encoding response: %v", err)
	}
}

// debugPrinter sends request logs to the debug logger.
type debugPrinter struct{}

func (debugPrinter) Print(v ...any) {
	debug.Log("%s", fmt.Sprint(v...))
}
