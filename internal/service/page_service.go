package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/coda-batch/internal/platform/coda"
	"github.com/phrazzld/coda-batch/internal/platform/logger"
	"github.com/phrazzld/coda-batch/internal/redact"
)

// RenameTagPrefix starts the pool tag of every rename run.
const RenameTagPrefix = "rename-pages:"

// PageFailure describes a page that could not be renamed.
type PageFailure struct {
	PageID string `json:"page_id" yaml:"page_id"`
	Name   string `json:"name,omitempty" yaml:"name,omitempty"`
	Error  string `json:"error" yaml:"error"`
}

// RenameResult summarises a rename run.
type RenameResult struct {
	DocID    string        `json:"doc_id" yaml:"doc_id"`
	Prefix   string        `json:"prefix" yaml:"prefix"`
	Pages    int           `json:"pages" yaml:"pages"`
	Renamed  int           `json:"renamed" yaml:"renamed"`
	Failed   int           `json:"failed" yaml:"failed"`
	Skipped  int           `json:"skipped" yaml:"skipped"`
	Failures []PageFailure `json:"failures,omitempty" yaml:"failures,omitempty"`
}

// PageService provides page batch operations.
type PageService interface {
	// RenamePages prepends prefix to the name of every page of the document,
	// nested pages included. Each page is renamed at most once. Individual
	// page failures are reported in the result; the error is non-nil only
	// when the run could not start, was cancelled, or the API key was rejected.
	RenamePages(ctx context.Context, docID, prefix string) (*RenameResult, error)
}

type pageServiceImpl struct {
	api    PageAPI
	pool   TaskPool
	logger *slog.Logger
}

// NewPageService creates a PageService.
func NewPageService(api PageAPI, pool TaskPool, logger *slog.Logger) (PageService, error) {
	if api == nil {
		return nil, &OperationError{Operation: "create_service", Message: "api cannot be nil"}
	}
	if pool == nil {
		return nil, &OperationError{Operation: "create_service", Message: "pool cannot be nil"}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &pageServiceImpl{
		api:    api,
		pool:   pool,
		logger: logger.With("component", "page_service"),
	}, nil
}

// RenamePages implements PageService.
func (s *pageServiceImpl) RenamePages(ctx context.Context, docID, prefix string) (*RenameResult, error) {
	docID = strings.TrimSpace(docID)
	if docID == "" {
		return nil, ErrEmptyDocumentID
	}
	if prefix == "" {
		return nil, ErrEmptyPrefix
	}

	pages, err := s.api.ListPages(ctx, docID)
	if err != nil {
		return nil, NewOperationError("rename_pages", "failed to list pages", err)
	}

	run := &renameRun{
		svc:     s,
		callCtx: ctx,
		docID:   docID,
		prefix:  prefix,
		tag:     RenameTagPrefix + uuid.NewString(),
		visited: make(map[string]struct{}, len(pages)),
	}
	log := logger.FromContextOrDefault(ctx, s.logger).With("doc_id", docID, "tag", run.tag)
	run.log = log
	log.Info("renaming pages", "listed_pages", len(pages))

	for i := range pages {
		if !pages[i].IsRoot() {
			continue
		}
		page := pages[i]
		if err := run.visit(ctx, coda.PageRef{ID: page.ID, Name: page.Name}, &page); err != nil {
			break
		}
	}

	waitErr := s.pool.Wait(ctx, run.tag)
	if waitErr == nil {
		waitErr = ctx.Err()
	}
	result := run.result()
	log.Info("renaming finished",
		"pages", result.Pages,
		"renamed", result.Renamed,
		"failed", result.Failed)

	if fatal := run.fatalErr(); fatal != nil {
		return result, NewOperationError("rename_pages", "renaming aborted", fatal)
	}
	if waitErr != nil {
		return result, NewOperationError("rename_pages", "waiting for renames", waitErr)
	}
	return result, nil
}

// renameRun holds the state shared by the tasks of one rename run.
type renameRun struct {
	svc     *pageServiceImpl
	callCtx context.Context
	docID   string
	prefix  string
	tag     string
	log     *slog.Logger

	mu       sync.Mutex
	visited  map[string]struct{}
	renamed  int
	failures []PageFailure
	fatal    error
}

// visit submits the rename of a page unless it was already visited. page is
// nil for references that still have to be fetched.
func (r *renameRun) visit(ctx context.Context, ref coda.PageRef, page *coda.Page) error {
	r.mu.Lock()
	if _, seen := r.visited[ref.ID]; seen || r.fatal != nil {
		r.mu.Unlock()
		return nil
	}
	r.visited[ref.ID] = struct{}{}
	r.mu.Unlock()

	err := r.svc.pool.Submit(ctx, r.tag, func(taskCtx context.Context) error {
		return r.rename(taskCtx, ref, page)
	})
	if err != nil {
		r.fail(ref, err)
		return err
	}
	return nil
}

func (r *renameRun) rename(taskCtx context.Context, ref coda.PageRef, page *coda.Page) error {
	ctx, cancel := bindContext(taskCtx, r.callCtx)
	defer cancel()

	if r.aborted() {
		return r.fatalErr()
	}

	if page == nil {
		fetched, err := r.svc.api.GetPage(ctx, r.docID, ref.ID)
		if err != nil {
			r.fail(ref, err)
			return err
		}
		page = fetched
	}

	for _, child := range page.Children {
		// visit records its own failures.
		_ = r.visit(ctx, child, nil)
	}

	newName := r.prefix + page.Name
	if _, err := r.svc.api.UpdatePage(ctx, r.docID, page.ID, coda.PageUpdate{Name: newName}); err != nil {
		r.fail(coda.PageRef{ID: page.ID, Name: page.Name}, err)
		return fmt.Errorf("rename page %s: %w", page.ID, err)
	}

	r.mu.Lock()
	r.renamed++
	r.mu.Unlock()

	r.log.Debug("page renamed",
		"page_id", page.ID,
		"name", newName)
	return nil
}

func (r *renameRun) fail(ref coda.PageRef, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.failures = append(r.failures, PageFailure{PageID: ref.ID, Name: ref.Name, Error: redact.Error(err)})
	if r.fatal == nil && errors.Is(err, coda.ErrInvalidAPIKey) {
		r.fatal = err
	}
}

func (r *renameRun) aborted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fatal != nil
}

func (r *renameRun) fatalErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fatal
}

func (r *renameRun) result() *RenameResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	failures := make([]PageFailure, len(r.failures))
	copy(failures, r.failures)
	sort.Slice(failures, func(i, j int) bool { return failures[i].PageID < failures[j].PageID })

	return &RenameResult{
		DocID:    r.docID,
		Prefix:   r.prefix,
		Pages:    len(r.visited),
		Renamed:  r.renamed,
		Failed:   len(failures),
		Skipped:  len(r.visited) - r.renamed - len(failures),
		Failures: failures,
	}
}
