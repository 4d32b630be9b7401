// Package rest provides a remote.Client that talks to the GitHub REST
// API directly, for environments without the gh CLI.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"specsync/internal/remote"
)

const (
	defaultBaseURL = "https://api.github.com"
	perPage        = 100

	// maxPages caps pagination so a misbehaving server cannot loop
	// List forever.
	maxPages = 50
)

// Client implements remote.Client over the REST API.
type Client struct {
	repo    string
	token   string
	baseURL string
	http    *http.Client

	// milestones caches title -> number for the duration of one
	// client, since the PATCH endpoint wants numbers, not titles.
	// One client is shared across dispatcher workers, so the cache
	// is guarded.
	milestonesMu sync.Mutex
	milestones   map[string]int
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a different API root (tests, GHE).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// New returns a REST client for the given owner/name repository.
// The token may be empty for public read-only use.
func New(repo, token string, opts ...Option) *Client {
	c := &Client{
		repo:    repo,
		token:   token,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// do issues one API request. Failures preserve the response body and
// any Retry-After header in CallError.Detail so the retry layer can
// classify them and honor the server's wait hint.
func (c *Client) do(ctx context.Context, op, method, path string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode %s payload: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &remote.CallError{Op: op, Detail: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &remote.CallError{Op: op, Detail: err.Error(), Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := fmt.Sprintf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			detail += fmt.Sprintf(" (Retry-After: %s)", ra)
		}
		return &remote.CallError{Op: op, Detail: detail}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return &remote.CallError{Op: op, Detail: fmt.Sprintf("invalid response body: %v", err), Err: err}
		}
	}
	return nil
}

// apiIssue is the REST shape for an issue.
type apiIssue struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	State  string `json:"state"`
	Labels []struct {
		Name string `json:"name"`
	} `json:"labels"`
	Milestone *struct {
		Title  string `json:"title"`
		Number int    `json:"number"`
	} `json:"milestone"`
	PullRequest *struct{} `json:"pull_request"`
}

// Create implements remote.Client.
func (c *Client) Create(ctx context.Context, title, body string, labels []string, milestone string) (int, error) {
	payload := map[string]any{
		"title": title,
		"body":  body,
	}
	if len(labels) > 0 {
		payload["labels"] = labels
	}
	if milestone != "" {
		num, err := c.milestoneNumber(ctx, milestone)
		if err != nil {
			return 0, err
		}
		payload["milestone"] = num
	}

	var created apiIssue
	if err := c.do(ctx, "create", http.MethodPost, c.issuesPath(""), payload, &created); err != nil {
		return 0, err
	}
	return created.Number, nil
}

// Update implements remote.Client.
func (c *Client) Update(ctx context.Context, number int, upd remote.Update) error {
	payload := map[string]any{}
	if upd.Body != nil {
		payload["body"] = *upd.Body
	}
	if upd.Labels != nil {
		payload["labels"] = upd.Labels
	}
	if upd.Milestone != nil {
		if *upd.Milestone == "" {
			payload["milestone"] = nil
		} else {
			num, err := c.milestoneNumber(ctx, *upd.Milestone)
			if err != nil {
				return err
			}
			payload["milestone"] = num
		}
	}
	if upd.State != nil {
		payload["state"] = strings.ToLower(*upd.State)
	}
	if len(payload) == 0 {
		return nil
	}
	return c.do(ctx, "update", http.MethodPatch, c.issuesPath(fmt.Sprintf("/%d", number)), payload, nil)
}

// Close implements remote.Client.
func (c *Client) Close(ctx context.Context, number int) error {
	payload := map[string]any{"state": "closed"}
	if err := c.do(ctx, "close", http.MethodPatch, c.issuesPath(fmt.Sprintf("/%d", number)), payload, nil); err != nil {
		return err
	}
	return nil
}

// List implements remote.Client. Pagination is followed until a short
// page; pull requests (which share the issues endpoint) are skipped.
func (c *Client) List(ctx context.Context) ([]remote.Record, error) {
	var records []remote.Record
	for page := 1; page <= maxPages; page++ {
		q := url.Values{}
		q.Set("state", "all")
		q.Set("per_page", fmt.Sprintf("%d", perPage))
		q.Set("page", fmt.Sprintf("%d", page))

		var issues []apiIssue
		if err := c.do(ctx, "list", http.MethodGet, c.issuesPath("?"+q.Encode()), nil, &issues); err != nil {
			return nil, err
		}

		for _, is := range issues {
			if is.PullRequest != nil {
				continue
			}
			rec := remote.Record{
				Number: is.Number,
				Title:  is.Title,
				Body:   is.Body,
				State:  strings.ToUpper(is.State),
			}
			for _, l := range is.Labels {
				rec.Labels = append(rec.Labels, l.Name)
			}
			if is.Milestone != nil {
				rec.Milestone = is.Milestone.Title
			}
			records = append(records, rec)
		}

		if len(issues) < perPage {
			break
		}
	}
	return records, nil
}

// milestoneNumber resolves a milestone title to its number, fetching
// the milestone list once per client.
func (c *Client) milestoneNumber(ctx context.Context, title string) (int, error) {
	c.milestonesMu.Lock()
	defer c.milestonesMu.Unlock()
	if c.milestones == nil {
		var ms []struct {
			Title  string `json:"title"`
			Number int    `json:"number"`
		}
		path := fmt.Sprintf("/repos/%s/milestones?state=all&per_page=%d", c.repo, perPage)
		if err := c.do(ctx, "update", http.MethodGet, path, nil, &ms); err != nil {
			return 0, err
		}
		c.milestones = make(map[string]int, len(ms))
		for _, m := range ms {
			c.milestones[m.Title] = m.Number
		}
	}
	num, ok := c.milestones[title]
	if !ok {
		return 0, &remote.CallError{Op: "update", Detail: fmt.Sprintf("milestone %q not found", title)}
	}
	return num, nil
}

func (c *Client) issuesPath(suffix string) string {
	return fmt.Sprintf("/repos/%s/issues%s", c.repo, suffix)
}
