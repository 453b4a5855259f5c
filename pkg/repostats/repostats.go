// Package repostats fetches repository statistics from a GitHub-style REST
// API. It is the canonical example of a flow body whose failures are worth
// retrying: a non-2xx response or transport error is returned as a plain
// error, so a flow wrapping Get picks it up through its retry policy.
package repostats

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultBaseURL points at the public GitHub API.
const DefaultBaseURL = "https://api.github.com"

// RepoInfo is the subset of the repository payload we care about.
type RepoInfo struct {
	Name            string `json:"name"`
	FullName        string `json:"full_name"`
	StargazersCount int    `json:"stargazers_count"`
	ForksCount      int    `json:"forks_count"`
}

// Client talks to a GitHub-style REST API.
// The zero value is usable and targets DefaultBaseURL.
type Client struct {
	// BaseURL is the API root, without a trailing slash.
	// Empty means DefaultBaseURL.
	BaseURL string

	// HTTPClient is the underlying HTTP client.
	// nil means a client with a 10 second timeout.
	HTTPClient *http.Client
}

func (c *Client) baseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return DefaultBaseURL
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}

// Get fetches the statistics of a single repository.
// Any non-2xx response is an error.
func (c *Client) Get(ctx context.Context, owner, repo string) (*RepoInfo, error) {
	if owner == "" || repo == "" {
		return nil, fmt.Errorf("repostats: owner and repo are required")
	}

	url := fmt.Sprintf("%s/repos/%s/%s", c.baseURL(), owner, repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("repostats: building request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("repostats: GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little of the body for the error message; API errors are
		// typically short JSON blobs.
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("repostats: GET %s: unexpected status %d: %s", url, resp.StatusCode, body)
	}

	var info RepoInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("repostats: decoding response: %w", err)
	}
	return &info, nil
}

// Params is the flow parameter type for FlowFn.
type Params struct {
	Owner string
	Repo  string
}

// FlowFn adapts the client to a flow function. Parameters must be a Params
// value (or pointer); the output is the *RepoInfo.
//
//	prefect.NewFlow("fetch-repo-stats", client.FlowFn()).
//	    WithRetries(3, 200*time.Millisecond)
func (c *Client) FlowFn() func(ctx context.Context, params any) (any, error) {
	return func(ctx context.Context, params any) (any, error) {
		var p Params
		switch v := params.(type) {
		case Params:
			p = v
		case *Params:
			p = *v
		default:
			return nil, fmt.Errorf("repostats: unexpected params type %T", params)
		}
		return c.Get(ctx, p.Owner, p.Repo)
	}
}
