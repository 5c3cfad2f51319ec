// Package codatest provides an in-memory fake of the document API and web
// dashboard for tests.
package codatest

import (
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/coda-batch/internal/platform/coda"
)

// APIPath is the mount point of the REST API on the fake server.
const APIPath = "/apis/v1"

// PageUpdateRecord is one page update received by the server.
type PageUpdateRecord struct {
	DocID  string
	PageID string
	Update coda.PageUpdate
}

type pageRecord struct {
	page     coda.Page
	parentID string
	children []string
}

type docRecord struct {
	doc   coda.Document
	order []string
	pages map[string]*pageRecord
}

// Server is a fake document service backed by httptest.Server.
type Server struct {
	*httptest.Server

	mu             sync.Mutex
	apiKey         string
	cookieName     string
	cookieValue    string
	docOrder       []string
	docs           map[string]*docRecord
	workspaceNames map[string]string
	updates        []PageUpdateRecord
	throttle       int
	failPages      map[string]int
	updateDelay    time.Duration
	inFlight       int
	maxInFlight    int
	requests       int
}

// New starts a fake server accepting apiKey as bearer token. The server is
// closed when the test ends.
func New(t testing.TB, apiKey string) *Server {
	t.Helper()

	s := &Server{
		apiKey:         apiKey,
		docs:           make(map[string]*docRecord),
		workspaceNames: make(map[string]string),
		failPages:      make(map[string]int),
	}
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

// APIURL returns the base url of the REST API.
func (s *Server) APIURL() string {
	return s.URL + APIPath
}

// WebURL returns the base url of the web dashboard.
func (s *Server) WebURL() string {
	return s.URL
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)

	r.Route(APIPath, func(r chi.Router) {
		r.Use(s.authenticate)
		r.Get("/docs", s.listDocs)
		r.Get("/docs/{docID}", s.getDoc)
		r.Get("/docs/{docID}/pages", s.listPages)
		r.Get("/docs/{docID}/pages/{pageID}", s.getPage)
		r.Put("/docs/{docID}/pages/{pageID}", s.updatePage)
	})

	r.Get("/workspaces/{workspaceID}/docs", s.dashboard)
	r.Get("/signin", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprint(w, "<html><body><h1>Sign in</h1></body></html>")
	})
	return r
}

// AddDocument registers a document.
func (s *Server) AddDocument(id, name, workspaceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[id]; !ok {
		s.docOrder = append(s.docOrder, id)
	}
	s.docs[id] = &docRecord{
		doc: coda.Document{
			ID:          id,
			Type:        "doc",
			Name:        name,
			WorkspaceID: workspaceID,
			Workspace:   coda.WorkspaceRef{ID: workspaceID, Type: "workspace"},
		},
		pages: make(map[string]*pageRecord),
	}
}

// AddPage registers a page under parentID, or at the root when parentID is empty.
// The document must exist.
func (s *Server) AddPage(docID, pageID, name, parentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.docs[docID]
	if !ok {
		panic("codatest: unknown document " + docID)
	}
	d.order = append(d.order, pageID)
	d.pages[pageID] = &pageRecord{
		page:     coda.Page{ID: pageID, Type: "page", Name: name},
		parentID: parentID,
	}
	if parentID != "" {
		parent, ok := d.pages[parentID]
		if !ok {
			panic("codatest: unknown parent page " + parentID)
		}
		parent.children = append(parent.children, pageID)
	}
}

// SetWorkspaceName sets the name rendered on a workspace dashboard.
func (s *Server) SetWorkspaceName(workspaceID, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workspaceNames[workspaceID] = name
}

// SetSessionCookie sets the cookie the dashboard requires. Without one the
// dashboard always redirects to sign-in.
func (s *Server) SetSessionCookie(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cookieName, s.cookieValue = name, value
}

// ThrottleNext makes the next n API requests fail with 429.
func (s *Server) ThrottleNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.throttle = n
}

// FailUpdates makes the next n updates of pageID fail with 500.
func (s *Server) FailUpdates(pageID string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failPages[pageID] = n
}

// SetUpdateDelay makes every page update take at least d.
func (s *Server) SetUpdateDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateDelay = d
}

// Updates returns the page updates applied so far.
func (s *Server) Updates() []PageUpdateRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PageUpdateRecord, len(s.updates))
	copy(out, s.updates)
	return out
}

// PageName returns the current name of a page.
func (s *Server) PageName(docID, pageID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.docs[docID]; ok {
		if p, ok := d.pages[pageID]; ok {
			return p.page.Name
		}
	}
	return ""
}

// MaxConcurrentUpdates returns the highest number of updates seen in flight at once.
func (s *Server) MaxConcurrentUpdates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxInFlight
}

// Requests returns the number of API requests received, throttled ones included.
func (s *Server) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests++
		throttled := s.throttle > 0
		if throttled {
			s.throttle--
		}
		s.mu.Unlock()

		if r.Header.Get("Authorization") != "Bearer "+s.apiKey {
			writeError(w, http.StatusUnauthorized, "The API token is invalid or has expired.")
			return
		}
		if throttled {
			writeError(w, http.StatusTooManyRequests, "Rate limit exceeded.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) listDocs(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.URL.Query().Get("workspaceId")

	s.mu.Lock()
	docs := make([]coda.Document, 0, len(s.docOrder))
	for _, id := range s.docOrder {
		d := s.docs[id].doc
		if workspaceID == "" || d.WorkspaceID == workspaceID {
			docs = append(docs, d)
		}
	}
	s.mu.Unlock()

	writePage(w, r, docs)
}

func (s *Server) getDoc(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	d, ok := s.docs[chi.URLParam(r, "docID")]
	var doc coda.Document
	if ok {
		doc = d.doc
	}
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "Doc not found.")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) listPages(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	d, ok := s.docs[chi.URLParam(r, "docID")]
	var pages []coda.Page
	if ok {
		pages = make([]coda.Page, 0, len(d.order))
		for _, id := range d.order {
			pages = append(pages, d.render(id))
		}
	}
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "Doc not found.")
		return
	}
	writePage(w, r, pages)
}

func (s *Server) getPage(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	page, ok := s.lookup(chi.URLParam(r, "docID"), chi.URLParam(r, "pageID"))
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "Page not found.")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) updatePage(w http.ResponseWriter, r *http.Request) {
	docID, pageID := chi.URLParam(r, "docID"), chi.URLParam(r, "pageID")

	var update coda.PageUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, "Malformed request body.")
		return
	}

	s.mu.Lock()
	s.inFlight++
	s.maxInFlight = max(s.maxInFlight, s.inFlight)
	delay := s.updateDelay
	s.mu.Unlock()

	time.Sleep(delay)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight--

	if n := s.failPages[pageID]; n > 0 {
		s.failPages[pageID] = n - 1
		writeError(w, http.StatusInternalServerError, "Internal error.")
		return
	}

	d, ok := s.docs[docID]
	if !ok {
		writeError(w, http.StatusNotFound, "Doc not found.")
		return
	}
	p, ok := d.pages[pageID]
	if !ok {
		writeError(w, http.StatusNotFound, "Page not found.")
		return
	}
	if update.Name != "" {
		p.page.Name = update.Name
	}
	if update.Subtitle != "" {
		p.page.Subtitle = update.Subtitle
	}
	s.updates = append(s.updates, PageUpdateRecord{DocID: docID, PageID: pageID, Update: update})

	writeJSON(w, http.StatusAccepted, coda.MutationStatus{
		RequestID: fmt.Sprintf("mutate:%d", len(s.updates)),
		ID:        pageID,
	})
}

func (s *Server) dashboard(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	cookieName, cookieValue := s.cookieName, s.cookieValue
	name, known := s.workspaceNames[chi.URLParam(r, "workspaceID")]
	s.mu.Unlock()

	c, err := r.Cookie(cookieName)
	if cookieName == "" || err != nil || c.Value != cookieValue {
		http.Redirect(w, r, "/signin", http.StatusFound)
		return
	}
	if !known {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = fmt.Fprintf(w, `<!DOCTYPE html><html><head><title>Docs</title></head><body>
<div class="dashboard"><h1 data-coda-ui-id="coda-dashboard-header-title"><span>%s</span></h1>
<h1>Other heading</h1></div></body></html>`, html.EscapeString(name))
}

// lookup renders a page; the caller holds s.mu.
func (s *Server) lookup(docID, pageID string) (coda.Page, bool) {
	d, ok := s.docs[docID]
	if !ok {
		return coda.Page{}, false
	}
	if _, ok := d.pages[pageID]; !ok {
		return coda.Page{}, false
	}
	return d.render(pageID), true
}

func (d *docRecord) render(pageID string) coda.Page {
	rec := d.pages[pageID]
	page := rec.page
	if rec.parentID != "" {
		parent := d.pages[rec.parentID]
		page.Parent = &coda.PageRef{ID: rec.parentID, Type: "page", Name: parent.page.Name}
	}
	page.Children = make([]coda.PageRef, 0, len(rec.children))
	for _, id := range rec.children {
		page.Children = append(page.Children, coda.PageRef{ID: id, Type: "page", Name: d.pages[id].page.Name})
	}
	return page
}

// writePage writes one page of items honouring limit and pageToken. The token
// is the offset of the next item.
func writePage[T any](w http.ResponseWriter, r *http.Request, items []T) {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = coda.DefaultPageLimit
	}
	offset := 0
	if token := r.URL.Query().Get("pageToken"); token != "" {
		offset, err = strconv.Atoi(token)
		if err != nil || offset < 0 || offset > len(items) {
			writeError(w, http.StatusBadRequest, "Invalid page token.")
			return
		}
	}

	end := min(offset+limit, len(items))
	body := map[string]any{"items": items[offset:end]}
	if end < len(items) {
		next := strconv.Itoa(end)
		body["nextPageToken"] = next
		body["nextPageLink"] = strings.TrimSuffix(r.URL.Path, "/") + "?pageToken=" + next
	}
	writeJSON(w, http.StatusOK, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"statusCode":    status,
		"statusMessage": http.StatusText(status),
		"message":       message,
	})
}
