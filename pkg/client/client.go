// Package client talks to a SonarQube-compatible web API: issue search,
// single and bulk issue changes, branch quality gate status and the
// current user.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/vanderheijden86/issuescope/pkg/debug"
	"github.com/vanderheijden86/issuescope/pkg/metrics"
	"github.com/vanderheijden86/issuescope/pkg/model"
)

// DefaultTimeout bounds a single request when no HTTP client is supplied.
const DefaultTimeout = 30 * time.Second

// maxBody caps how much of a response is read.
const maxBody = 32 << 20

// Client is a web API client. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
	userAgent  string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithToken authenticates requests with a user token.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient = &http.Client{Timeout: d}
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// New returns a client for the server at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("server url %q: scheme must be http or https", baseURL)
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		userAgent:  "iscope",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the server root.
func (c *Client) BaseURL() string { return c.baseURL }

// SearchIssues runs an issue search.
func (c *Client) SearchIssues(ctx context.Context, params url.Values) (_ *model.SearchResult, err error) {
	start := time.Now()
	defer func() { metrics.SearchRequest.Done(start, err) }()

	var resp model.SearchResponse
	if err := c.get(ctx, PathSearch, params, &resp); err != nil {
		return nil, fmt.Errorf("searching issues: %w", err)
	}
	res := model.ParseSearchResponse(resp)
	return &res, nil
}

// ChangeIssue applies a single change and returns the updated issue.
func (c *Client) ChangeIssue(ctx context.Context, key string, change model.IssueChange) (_ *model.Issue, err error) {
	start := time.Now()
	defer func() { metrics.IssueChange.Done(start, err) }()

	path, form, err := ChangeForm(key, change)
	if err != nil {
		return nil, err
	}
	var resp model.IssueResponse
	if err := c.post(ctx, path, form, &resp); err != nil {
		return nil, fmt.Errorf("changing %s (%s): %w", key, change, err)
	}
	byKey := make(map[string]model.Component, len(resp.Components))
	for _, comp := range resp.Components {
		byKey[comp.Key] = comp
	}
	issue := model.ParseIssue(resp.Issue, byKey)
	return &issue, nil
}

// BulkChange applies changes to a batch of issues.
func (c *Client) BulkChange(ctx context.Context, req model.BulkChangeRequest) (*model.BulkChangeSummary, error) {
	var sum model.BulkChangeSummary
	if err := c.post(ctx, PathBulkChange, BulkChangeForm(req), &sum); err != nil {
		return nil, fmt.Errorf("bulk change of %d issue(s): %w", len(req.Issues), err)
	}
	return &sum, nil
}

// BranchStatus refreshes the quality gate status of a project branch.
func (c *Client) BranchStatus(ctx context.Context, project string, branch model.BranchLike) error {
	params := url.Values{"projectKey": {project}}
	if branch.Branch != "" {
		params.Set("branch", branch.Branch)
	}
	if branch.PullRequest != "" {
		params.Set("pullRequest", branch.PullRequest)
	}
	if err := c.get(ctx, PathProjectStatus, params, nil); err != nil {
		return fmt.Errorf("branch status of %s %s: %w", project, branch, err)
	}
	return nil
}

// CurrentUser returns the authenticated identity. Anonymous access yields
// a user with IsLoggedIn false.
func (c *Client) CurrentUser(ctx context.Context) (*model.CurrentUser, error) {
	var u model.CurrentUser
	if err := c.get(ctx, PathCurrentUser, nil, &u); err != nil {
		return nil, fmt.Errorf("current user: %w", err)
	}
	return &u, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	target := c.baseURL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	debug.Log("client: %s %s -> %d (%v)", req.Method, req.URL.Path, resp.StatusCode, time.Since(start))

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseAPIError(resp.StatusCode, body)
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func parseAPIError(status int, body []byte) error {
	apiErr := &APIError{Status: status}
	var eb errorBody
	if json.Unmarshal(body, &eb) == nil {
		for _, e := range eb.Errors {
			apiErr.Messages = append(apiErr.Messages, e.Msg)
		}
	}
	return apiErr
}
