package notes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Archiver is the subset of the API the archive coordinator depends on.
// It is implemented by *Client and can be faked in tests.
type Archiver interface {
	Archive(ctx context.Context, id string) (*Note, error)
	Unarchive(ctx context.Context, id string) (*Note, error)
}

// Lister fetches note pages for the list view.
type Lister interface {
	ListNotes(ctx context.Context, query ListQuery) (Page, error)
}

// Ensure Client implements the consumer interfaces at compile time.
var (
	_ Archiver = (*Client)(nil)
	_ Lister   = (*Client)(nil)
)

// Client talks to the note service HTTP API.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	userAgent string
	token     string
}

const (
	defaultBaseURL   = "http://localhost:8081"
	defaultUserAgent = "recall/0.1"
	requestTimeout   = 5 * time.Second
)

// Option customises a Client.
type Option func(*Client)

// WithToken sets the bearer token sent with every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = strings.TrimSpace(token) }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// NewClient builds a Client for the service at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	base, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	c := &Client{
		baseURL: base,
		http: &http.Client{
			Timeout: requestTimeout,
		},
		userAgent: defaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ListNotes retrieves one page of notes.
func (c *Client) ListNotes(ctx context.Context, query ListQuery) (Page, error) {
	if c == nil {
		return Page{}, fmt.Errorf("client is nil")
	}
	rel := &url.URL{Path: "/notes", RawQuery: query.values().Encode()}
	var payload Page
	if err := c.doURL(ctx, http.MethodGet, rel, &payload); err != nil {
		return Page{}, err
	}
	return payload, nil
}

// GetNote retrieves a single note.
func (c *Client) GetNote(ctx context.Context, id string) (*Note, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	var payload Note
	if err := c.do(ctx, http.MethodGet, "/notes/"+url.PathEscape(id), &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// Archive marks a note archived. Archiving an archived note succeeds.
func (c *Client) Archive(ctx context.Context, id string) (*Note, error) {
	return c.postNoteAction(ctx, id, "archive")
}

// Unarchive reverses Archive.
func (c *Client) Unarchive(ctx context.Context, id string) (*Note, error) {
	return c.postNoteAction(ctx, id, "unarchive")
}

// Ping checks that the service is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	return c.do(ctx, http.MethodGet, "/ping", nil)
}

func (c *Client) postNoteAction(ctx context.Context, id, action string) (*Note, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	var payload Note
	path := "/notes/" + url.PathEscape(id) + "/" + action
	if err := c.do(ctx, http.MethodPost, path, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

func (c *Client) do(ctx context.Context, method, path string, dest any) error {
	rel := &url.URL{Path: path}
	return c.doURL(ctx, method, rel, dest)
}

func (c *Client) doURL(ctx context.Context, method string, rel *url.URL, dest any) error {
	reqURL := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return newAPIError(rel.Path, resp)
	}
	if dest == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (q ListQuery) values() url.Values {
	values := url.Values{}
	if search := strings.TrimSpace(q.Search); search != "" {
		values.Set("search", search)
	}
	if sortBy := strings.TrimSpace(q.SortBy); sortBy != "" {
		values.Set("sort_by", sortBy)
	}
	if order := strings.TrimSpace(q.Order); order != "" {
		values.Set("order", order)
	}
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		values.Set("offset", strconv.Itoa(q.Offset))
	}
	if q.Archived != nil {
		values.Set("archived", strconv.FormatBool(*q.Archived))
	}
	return values
}

func parseBaseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		trimmed = defaultBaseURL
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse api_url %q: %w", raw, err)
	}
	u.Path = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
