// Package config handles loading and saving iscope configuration.
//
// Configuration follows the XDG Base Directory specification:
//   - Config:  ~/.config/iscope/config.yaml
//   - Data:    ~/.local/share/iscope/ (offline issue databases)
//   - State:   ~/.local/state/iscope/ (preferences remembered between runs, debug log)
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vanderheijden86/issuescope/pkg/model"
	"github.com/vanderheijden86/issuescope/pkg/query"
)

const appDir = "iscope"

// ServerConfig locates the web API.
type ServerConfig struct {
	URL string `yaml:"url,omitempty"`
	// TokenEnv names the environment variable holding the API token.
	TokenEnv string        `yaml:"token_env,omitempty"`
	Timeout  time.Duration `yaml:"timeout,omitempty"`
}

// SearchConfig tunes paging and bulk limits.
type SearchConfig struct {
	PageSize          int           `yaml:"page_size,omitempty"`
	MaxInitialFetch   int           `yaml:"max_initial_fetch,omitempty"` // deep-link fetch ceiling
	MaxBulk           int           `yaml:"max_bulk,omitempty"`
	BranchStatusDelay time.Duration `yaml:"branch_status_delay,omitempty"`
}

// Project is a project the user browses often.
type Project struct {
	Name        string `yaml:"name"`
	Key         string `yaml:"key"`
	Branch      string `yaml:"branch,omitempty"`
	PullRequest string `yaml:"pull_request,omitempty"`
}

// BranchLike returns the branch or pull request the project is pinned to.
func (p Project) BranchLike() model.BranchLike {
	return model.BranchLike{Branch: p.Branch, PullRequest: p.PullRequest}
}

// Filter is a saved query, stored in its parameter form
// (e.g. "severities=BLOCKER,CRITICAL&types=BUG").
type Filter struct {
	Name  string `yaml:"name"`
	Query string `yaml:"query"`
}

// Parse decodes the saved query.
func (f Filter) Parse() (query.Query, error) {
	raw, err := url.ParseQuery(f.Query)
	if err != nil {
		return query.Query{}, fmt.Errorf("filter %q: %w", f.Name, err)
	}
	return query.Parse(raw), nil
}

// UIConfig holds UI preference settings.
type UIConfig struct {
	SplitRatio float64 `yaml:"split_ratio,omitempty"` // list width share (0.2-0.8)
}

// Config is the top-level configuration.
type Config struct {
	Server   ServerConfig `yaml:"server,omitempty"`
	Search   SearchConfig `yaml:"search,omitempty"`
	Projects []Project    `yaml:"projects,omitempty"`
	Filters  []Filter     `yaml:"filters,omitempty"`
	UI       UIConfig     `yaml:"ui,omitempty"`
	// DB is an offline SQLite database used instead of the server.
	DB string `yaml:"db,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			TokenEnv: "ISCOPE_TOKEN",
			Timeout:  30 * time.Second,
		},
		Search: SearchConfig{
			PageSize:          100,
			MaxInitialFetch:   1000,
			MaxBulk:           500,
			BranchStatusDelay: time.Second,
		},
		UI: UIConfig{SplitRatio: 0.4},
	}
}

func xdgDir(env string, fallback ...string) string {
	if dir := os.Getenv(env); dir != "" {
		return filepath.Join(dir, appDir)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(append(append([]string{home}, fallback...), appDir)...)
}

// ConfigDir returns the XDG config directory.
func ConfigDir() string { return xdgDir("XDG_CONFIG_HOME", ".config") }

// DataDir returns the XDG data directory.
func DataDir() string { return xdgDir("XDG_DATA_HOME", ".local", "share") }

// StateDir returns the XDG state directory.
func StateDir() string { return xdgDir("XDG_STATE_HOME", ".local", "state") }

// ConfigPath returns the full path to config.yaml.
func ConfigPath() string {
	dir := ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.yaml")
}

// Load reads the config file from the XDG config directory.
// Returns DefaultConfig if the file doesn't exist.
func Load() (Config, error) {
	path := ConfigPath()
	if path == "" {
		return DefaultConfig(), nil
	}
	return LoadFrom(path)
}

// LoadFrom reads config from a specific path. Missing values keep their
// defaults; a missing file yields DefaultConfig.
func LoadFrom(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}
	cfg.DB = expandHome(cfg.DB)
	cfg.Server.URL = strings.TrimRight(cfg.Server.URL, "/")
	return cfg, nil
}

// Save writes the config to the XDG config directory.
func Save(cfg Config) error {
	path := ConfigPath()
	if path == "" {
		return fmt.Errorf("cannot determine config directory")
	}
	return SaveTo(cfg, path)
}

// SaveTo writes the config to a specific path.
func SaveTo(cfg Config, path string) error {
	return writeYAML(path, cfg)
}

func writeYAML(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	return nil
}

// Validate reports every problem found in the configuration.
func (c Config) Validate() error {
	var errs []error
	if c.Server.URL == "" && c.DB == "" {
		errs = append(errs, errors.New("either server.url or db must be set"))
	}
	if c.Server.URL != "" {
		if u, err := url.Parse(c.Server.URL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("server.url %q is not an absolute URL", c.Server.URL))
		}
	}
	if c.Search.PageSize < 1 || c.Search.PageSize > 500 {
		errs = append(errs, fmt.Errorf("search.page_size must be within 1..500, got %d", c.Search.PageSize))
	}
	if c.Search.MaxInitialFetch < c.Search.PageSize {
		errs = append(errs, fmt.Errorf("search.max_initial_fetch (%d) must be at least one page", c.Search.MaxInitialFetch))
	} else if c.Search.PageSize > 0 && c.Search.MaxInitialFetch%c.Search.PageSize != 0 {
		errs = append(errs, fmt.Errorf("search.max_initial_fetch (%d) must be a multiple of search.page_size (%d)", c.Search.MaxInitialFetch, c.Search.PageSize))
	}
	if c.Search.MaxBulk < 1 || c.Search.MaxBulk > 500 {
		errs = append(errs, fmt.Errorf("search.max_bulk must be within 1..500, got %d", c.Search.MaxBulk))
	}
	if c.UI.SplitRatio != 0 && (c.UI.SplitRatio < 0.2 || c.UI.SplitRatio > 0.8) {
		errs = append(errs, fmt.Errorf("ui.split_ratio must be within 0.2..0.8, got %g", c.UI.SplitRatio))
	}
	seen := make(map[string]bool)
	for _, p := range c.Projects {
		if p.Key == "" {
			errs = append(errs, fmt.Errorf("project %q has no key", p.Name))
		}
		if p.Branch != "" && p.PullRequest != "" {
			errs = append(errs, fmt.Errorf("project %q sets both branch and pull_request", p.Name))
		}
		if seen[strings.ToLower(p.Name)] {
			errs = append(errs, fmt.Errorf("duplicate project %q", p.Name))
		}
		seen[strings.ToLower(p.Name)] = true
	}
	for _, f := range c.Filters {
		if _, err := f.Parse(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FindProject returns the project with the given name or key, or nil.
func (c Config) FindProject(name string) *Project {
	for i := range c.Projects {
		if strings.EqualFold(c.Projects[i].Name, name) || c.Projects[i].Key == name {
			return &c.Projects[i]
		}
	}
	return nil
}

// FindFilter returns the saved filter with the given name, or nil.
func (c Config) FindFilter(name string) *Filter {
	for i := range c.Filters {
		if strings.EqualFold(c.Filters[i].Name, name) {
			return &c.Filters[i]
		}
	}
	return nil
}

// Token returns the API token from the configured environment variable.
func (c Config) Token() string {
	if c.Server.TokenEnv == "" {
		return ""
	}
	return os.Getenv(c.Server.TokenEnv)
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
