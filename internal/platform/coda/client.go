package coda

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/phrazzld/coda-batch/internal/redact"
)

// DefaultBaseURL is the public API root.
const DefaultBaseURL = "https://coda.io/apis/v1"

// DefaultPageLimit is the page size requested by listings when none is configured.
const DefaultPageLimit = 25

const (
	maxErrorBody  = 64 << 10
	maxRetryAfter = time.Minute
)

// ClientConfig configures a Client.
type ClientConfig struct {
	BaseURL    string
	APIKey     string
	PageLimit  int
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
	// HTTPClient overrides the default client built from Timeout
	HTTPClient *http.Client
}

// Client talks to the document REST API. It is safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	pageLimit  int
	maxRetries int
	retryDelay time.Duration
	http       *http.Client
	logger     *slog.Logger
}

// NewClient creates a Client. The API key is registered with the redact
// package so it never shows up in logged errors.
func NewClient(cfg ClientConfig, logger *slog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("coda client: %w", ErrInvalidAPIKey)
	}

	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return nil, fmt.Errorf("coda client: invalid base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("coda client: base url %q must be absolute", base)
	}

	if logger == nil {
		logger = slog.Default()
	}

	limit := cfg.PageLimit
	if limit <= 0 {
		limit = DefaultPageLimit
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	redact.RegisterSecret(cfg.APIKey)

	return &Client{
		baseURL:    strings.TrimRight(u.String(), "/"),
		apiKey:     strings.TrimSpace(cfg.APIKey),
		pageLimit:  limit,
		maxRetries: max(cfg.MaxRetries, 0),
		retryDelay: cfg.RetryDelay,
		http:       httpClient,
		logger:     logger.With("component", "coda_client"),
	}, nil
}

// ListDocuments returns every document visible to the API key, following
// pagination. A workspace id narrows the listing.
func (c *Client) ListDocuments(ctx context.Context, opts ListDocumentsOptions) ([]Document, error) {
	query := url.Values{}
	if opts.WorkspaceID != "" {
		query.Set("workspaceId", opts.WorkspaceID)
	}
	docs, err := listAll[Document](ctx, c, "docs", query)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, nil
}

// GetDocument fetches a single document.
func (c *Client) GetDocument(ctx context.Context, docID string) (*Document, error) {
	var doc Document
	if err := c.do(ctx, http.MethodGet, c.endpoint("docs", docID), nil, &doc); err != nil {
		return nil, fmt.Errorf("failed to get document %s: %w", docID, err)
	}
	return &doc, nil
}

// ListPages returns every page of a document, nested pages included.
// Children are references only; use GetPage to expand them.
func (c *Client) ListPages(ctx context.Context, docID string) ([]Page, error) {
	pages, err := listAll[Page](ctx, c, "docs/"+url.PathEscape(docID)+"/pages", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list pages of %s: %w", docID, err)
	}
	return pages, nil
}

// GetPage fetches a single page with its children references.
func (c *Client) GetPage(ctx context.Context, docID, pageID string) (*Page, error) {
	var page Page
	if err := c.do(ctx, http.MethodGet, c.endpoint("docs", docID, "pages", pageID), nil, &page); err != nil {
		return nil, fmt.Errorf("failed to get page %s: %w", pageID, err)
	}
	return &page, nil
}

// UpdatePage changes page metadata. The API applies the change asynchronously
// and acknowledges it with a request id.
func (c *Client) UpdatePage(ctx context.Context, docID, pageID string, update PageUpdate) (*MutationStatus, error) {
	body, err := json.Marshal(update)
	if err != nil {
		return nil, fmt.Errorf("failed to encode page update: %w", err)
	}

	var status MutationStatus
	if err := c.do(ctx, http.MethodPut, c.endpoint("docs", docID, "pages", pageID), body, &status); err != nil {
		return nil, fmt.Errorf("failed to update page %s: %w", pageID, err)
	}
	return &status, nil
}

// listAll walks a paginated listing until the server stops returning a token.
func listAll[T any](ctx context.Context, c *Client, path string, query url.Values) ([]T, error) {
	var items []T
	token := ""
	for {
		q := url.Values{}
		for k, v := range query {
			q[k] = v
		}
		q.Set("limit", strconv.Itoa(c.pageLimit))
		if token != "" {
			q.Set("pageToken", token)
		}

		var page listResponse[T]
		if err := c.do(ctx, http.MethodGet, c.rawEndpoint(path, q), nil, &page); err != nil {
			return nil, err
		}
		items = append(items, page.Items...)

		if page.NextPageToken == "" || page.NextPageToken == token {
			return items, nil
		}
		token = page.NextPageToken
	}
}

// endpoint joins escaped path segments onto the base url.
func (c *Client) endpoint(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	return c.rawEndpoint(strings.Join(escaped, "/"), nil)
}

func (c *Client) rawEndpoint(path string, query url.Values) string {
	endpoint := c.baseURL + "/" + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	return endpoint
}

// do sends a request, retrying throttled and server-side failures with a
// linearly growing delay, and decodes a JSON response into out.
func (c *Client) do(ctx context.Context, method, endpoint string, body []byte, out any) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.retryDelay * time.Duration(attempt)
			var apiErr *APIError
			if errors.As(lastErr, &apiErr) && apiErr.retryAfter > 0 {
				delay = apiErr.retryAfter
			}
			c.logger.Debug("retrying request",
				"method", method,
				"attempt", attempt,
				"delay", delay,
				"error", redact.Error(lastErr))
			if err := sleep(ctx, delay); err != nil {
				return err
			}
		}

		err := c.once(ctx, method, endpoint, body, out)
		if err == nil {
			return nil
		}
		lastErr = err

		var apiErr *APIError
		if !errors.As(err, &apiErr) || !apiErr.Temporary() {
			return err
		}
	}
	return lastErr
}

func (c *Client) once(ctx context.Context, method, endpoint string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("api request",
		"method", method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrInvalidAPIKey
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(resp, method, req.URL.Path)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

func newAPIError(resp *http.Response, method, path string) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode, Method: method, Path: path}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var payload errorBody
	if json.Unmarshal(raw, &payload) == nil && payload.Message != "" {
		apiErr.Message = payload.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
	}

	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
		apiErr.retryAfter = min(time.Duration(secs)*time.Second, maxRetryAfter)
	}
	return apiErr
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
