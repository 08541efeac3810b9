package jira

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// ticketFields is the field list requested for every fetch and search.
// customfield_* pulls in all instance-specific extension fields so the
// contributor extractor can scan them.
const ticketFields = "summary,issuetype,status,assignee,reporter,customfield_*,subtasks,issuelinks,updated,created,priority,labels,components,fixVersions"

// DefaultMaxResults bounds a single search page.
const DefaultMaxResults = 1000

// Client talks to the Jira REST API. With an email address set it
// authenticates with basic auth (cloud); otherwise with a bearer token
// (server/data center).
type Client struct {
	baseURL    string
	token      string
	email      string
	maxResults int
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithMaxResults caps search result pages.
func WithMaxResults(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxResults = n
		}
	}
}

// WithTimeout overrides the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// NewClient creates a Jira client. Token and email fall back to the
// JIRA_API_TOKEN and JIRA_EMAIL environment variables; a missing token is
// an error before any network call is made.
func NewClient(baseURL, token, email string, logger *slog.Logger) (*Client, error) {
	return NewClientWithOptions(baseURL, token, email, logger)
}

// NewClientWithOptions is NewClient with extra configuration.
func NewClientWithOptions(baseURL, token, email string, logger *slog.Logger, opts ...Option) (*Client, error) {
	if token == "" {
		token = os.Getenv("JIRA_API_TOKEN")
	}
	if email == "" {
		email = os.Getenv("JIRA_EMAIL")
	}
	if token == "" {
		return nil, ErrMissingToken
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		email:      email,
		maxResults: DefaultMaxResults,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// GetTicket fetches a single ticket by key.
func (c *Client) GetTicket(ctx context.Context, key string) (*Ticket, error) {
	query := url.Values{
		"fields": {ticketFields},
		"expand": {"names"},
	}
	body, err := c.get(ctx, "/rest/api/2/issue/"+url.PathEscape(key), query)
	if err != nil {
		return nil, fmt.Errorf("fetching ticket %s: %w", key, err)
	}

	var ticket Ticket
	if err := json.Unmarshal(body, &ticket); err != nil {
		return nil, &AuthError{Reason: fmt.Sprintf("response for %s is not valid JSON", key)}
	}
	return &ticket, nil
}

// SearchProject searches a project for tickets of the given issue types,
// optionally filtered by resolution, ordered by rank ascending.
func (c *Client) SearchProject(ctx context.Context, projectKey string, issueTypes []string, resolution string) ([]*Ticket, error) {
	jql := []string{fmt.Sprintf("project = %s", projectKey)}
	if len(issueTypes) > 0 {
		quoted := make([]string, len(issueTypes))
		for i, t := range issueTypes {
			quoted[i] = strconv.Quote(t)
		}
		jql = append(jql, fmt.Sprintf("issuetype in (%s)", strings.Join(quoted, ", ")))
	}
	if resolution != "" {
		if strings.EqualFold(resolution, "unresolved") {
			jql = append(jql, "resolution = Unresolved")
		} else {
			jql = append(jql, fmt.Sprintf("resolution = %q", resolution))
		}
	}

	tickets, err := c.search(ctx, strings.Join(jql, " AND ")+" ORDER BY Rank ASC")
	if err != nil {
		return nil, fmt.Errorf("searching project %s: %w", projectKey, err)
	}
	return tickets, nil
}

// SearchEpicChildren returns the keys of tickets whose Epic Link points at
// the given epic, deduplicated in encounter order.
func (c *Client) SearchEpicChildren(ctx context.Context, epicKey string) ([]string, error) {
	keys, err := c.searchKeys(ctx, fmt.Sprintf("%q = %q", "Epic Link", epicKey))
	if err != nil {
		return nil, fmt.Errorf("searching epic children of %s: %w", epicKey, err)
	}
	return keys, nil
}

// SearchParentChildren returns the keys of tickets whose Parent Link points
// at the given ticket, deduplicated in encounter order.
func (c *Client) SearchParentChildren(ctx context.Context, parentKey string) ([]string, error) {
	keys, err := c.searchKeys(ctx, fmt.Sprintf("%q = %q", "Parent Link", parentKey))
	if err != nil {
		return nil, fmt.Errorf("searching parent-link children of %s: %w", parentKey, err)
	}
	return keys, nil
}

type searchResponse struct {
	StartAt    int       `json:"startAt"`
	MaxResults int       `json:"maxResults"`
	Total      int       `json:"total"`
	Issues     []*Ticket `json:"issues"`
}

func (c *Client) search(ctx context.Context, jql string) ([]*Ticket, error) {
	c.logger.Debug("searching tickets", "jql", jql)

	query := url.Values{
		"jql":        {jql},
		"maxResults": {strconv.Itoa(c.maxResults)},
		"fields":     {ticketFields},
		"expand":     {"names"},
	}
	body, err := c.get(ctx, "/rest/api/2/search", query)
	if err != nil {
		return nil, err
	}

	var result searchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &AuthError{Reason: "search response is not valid JSON"}
	}
	return result.Issues, nil
}

func (c *Client) searchKeys(ctx context.Context, jql string) ([]string, error) {
	tickets, err := c.search(ctx, jql)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(tickets))
	var keys []string
	for _, t := range tickets {
		if t.Key == "" || seen[t.Key] {
			continue
		}
		seen[t.Key] = true
		keys = append(keys, t.Key)
	}
	return keys, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.email != "" {
		req.SetBasicAuth(c.email, c.token)
	} else {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	// Jira answers unauthenticated requests with its HTML login page
	// rather than a JSON error document.
	if strings.Contains(resp.Header.Get("Content-Type"), "text/html") {
		return nil, &AuthError{Reason: "tracker returned HTML instead of JSON"}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &RequestError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
