package coda

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	// DefaultWebURL is the root of the web application.
	DefaultWebURL = "https://coda.io"

	headerTitleAttr  = "data-coda-ui-id"
	headerTitleValue = "coda-dashboard-header-title"
	maxDashboardBody = 4 << 20
)

// SessionNamer resolves workspace display names from the web dashboard.
// The API exposes workspace ids only, so names are read from the page title
// rendered for a signed-in browser session.
type SessionNamer struct {
	webURL string
	http   *http.Client
	logger *slog.Logger
}

// NewSessionNamer creates a SessionNamer. jar carries the session cookies;
// a nil jar yields a namer that always reports ErrSessionRequired once the
// dashboard redirects to sign-in.
func NewSessionNamer(webURL string, jar http.CookieJar, timeout time.Duration, logger *slog.Logger) (*SessionNamer, error) {
	if webURL == "" {
		webURL = DefaultWebURL
	}
	u, err := url.Parse(webURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("session namer: invalid web url %q", webURL)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionNamer{
		webURL: strings.TrimRight(u.String(), "/"),
		http:   &http.Client{Jar: jar, Timeout: timeout},
		logger: logger.With("component", "session_namer"),
	}, nil
}

// WorkspaceName returns the display name of a workspace.
func (n *SessionNamer) WorkspaceName(ctx context.Context, workspaceID string) (string, error) {
	dashboard := n.webURL + "/workspaces/" + url.PathEscape(workspaceID) + "/docs"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, dashboard, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build dashboard request: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := n.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to load dashboard of %s: %w", workspaceID, err)
	}
	defer resp.Body.Close()

	// Expired sessions are redirected to the sign-in page.
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden ||
		!strings.HasPrefix(resp.Request.URL.Path, "/workspaces") {
		n.logger.Debug("dashboard redirected away from workspaces",
			"workspace_id", workspaceID,
			"final_path", resp.Request.URL.Path,
			"status", resp.StatusCode)
		return "", ErrSessionRequired
	}
	if resp.StatusCode != http.StatusOK {
		return "", &APIError{StatusCode: resp.StatusCode, Method: http.MethodGet, Path: resp.Request.URL.Path}
	}

	name, err := headerTitle(io.LimitReader(resp.Body, maxDashboardBody))
	if err != nil {
		return "", fmt.Errorf("failed to read dashboard of %s: %w", workspaceID, err)
	}
	return name, nil
}

// headerTitle extracts the text of the dashboard header title element.
func headerTitle(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", err
	}

	var found *html.Node
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if found != nil {
			return
		}
		if node.Type == html.ElementNode && node.DataAtom == atom.H1 && hasAttr(node, headerTitleAttr, headerTitleValue) {
			found = node
			return
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)

	if found == nil {
		return "", ErrWorkspaceNameNotFound
	}
	name := strings.Join(strings.Fields(textContent(found)), " ")
	if name == "" {
		return "", ErrWorkspaceNameNotFound
	}
	return name, nil
}

func hasAttr(node *html.Node, key, value string) bool {
	for _, a := range node.Attr {
		if a.Key == key && a.Val == value {
			return true
		}
	}
	return false
}

func textContent(node *html.Node) string {
	var sb strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			collect(child)
		}
	}
	collect(node)
	return sb.String()
}
