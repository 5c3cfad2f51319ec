package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/phrazzld/coda-batch/internal/platform/coda"
	"github.com/phrazzld/coda-batch/internal/platform/coda/codatest"
	"github.com/phrazzld/coda-batch/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testAPIKey = "service-test-key-42"

func newCodaClient(t *testing.T, srv *codatest.Server) *coda.Client {
	t.Helper()
	client, err := coda.NewClient(coda.ClientConfig{
		BaseURL:    srv.APIURL(),
		APIKey:     testAPIKey,
		PageLimit:  3,
		Timeout:    5 * time.Second,
		RetryDelay: time.Millisecond,
	}, discardLogger())
	require.NoError(t, err)
	return client
}

// seedTree adds a document with three root pages, two levels of children
// below the first root and one child below the last.
func seedTree(srv *codatest.Server) map[string]string {
	srv.AddDocument("doc-1", "Handbook", "ws-1")
	names := map[string]string{
		"r1": "Intro", "r2": "Policies", "r3": "Appendix",
		"c1": "Welcome", "c2": "History", "g1": "Founding",
		"c3": "Glossary",
	}
	srv.AddPage("doc-1", "r1", names["r1"], "")
	srv.AddPage("doc-1", "c1", names["c1"], "r1")
	srv.AddPage("doc-1", "c2", names["c2"], "r1")
	srv.AddPage("doc-1", "g1", names["g1"], "c2")
	srv.AddPage("doc-1", "r2", names["r2"], "")
	srv.AddPage("doc-1", "r3", names["r3"], "")
	srv.AddPage("doc-1", "c3", names["c3"], "r3")
	return names
}

func TestNewPageServiceValidation(t *testing.T) {
	pool := newTestPool(t, 1, 1)

	_, err := NewPageService(nil, pool, nil)
	var opErr *OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "create_service", opErr.Operation)

	_, err = NewPageService(&MockPageAPI{}, nil, nil)
	assert.Error(t, err)

	svc, err := NewPageService(&MockPageAPI{}, pool, nil)
	require.NoError(t, err)
	assert.NotNil(t, svc)
}

func TestRenamePagesRenamesEveryPageOnce(t *testing.T) {
	srv := codatest.New(t, testAPIKey)
	names := seedTree(srv)
	srv.SetUpdateDelay(5 * time.Millisecond)

	pool := newTestPool(t, 2, 1)
	svc, err := NewPageService(newCodaClient(t, srv), pool, discardLogger())
	require.NoError(t, err)

	result, err := svc.RenamePages(testContext(t), "doc-1", "v2 ")
	require.NoError(t, err)

	assert.Equal(t, "doc-1", result.DocID)
	assert.Equal(t, len(names), result.Pages)
	assert.Equal(t, len(names), result.Renamed)
	assert.Zero(t, result.Failed)
	assert.Zero(t, result.Skipped)
	assert.Empty(t, result.Failures)

	for id, name := range names {
		assert.Equal(t, "v2 "+name, srv.PageName("doc-1", id), "page %s", id)
	}

	updates := srv.Updates()
	assert.Len(t, updates, len(names), "no page may be renamed twice")
	assert.LessOrEqual(t, srv.MaxConcurrentUpdates(), 2)
	assert.Zero(t, pool.Running())
}

func TestRenamePagesReportsFailures(t *testing.T) {
	srv := codatest.New(t, testAPIKey)
	seedTree(srv)
	srv.FailUpdates("c2", 1)

	svc, err := NewPageService(newCodaClient(t, srv), newTestPool(t, 3, 3), discardLogger())
	require.NoError(t, err)

	result, err := svc.RenamePages(testContext(t), "doc-1", "X-")
	require.NoError(t, err, "single page failures do not fail the run")

	assert.Equal(t, 7, result.Pages)
	assert.Equal(t, 6, result.Renamed)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "c2", result.Failures[0].PageID)
	assert.Contains(t, result.Failures[0].Error, "500")

	// children of a failed page are still renamed
	assert.Equal(t, "X-Founding", srv.PageName("doc-1", "g1"))
	assert.Equal(t, "History", srv.PageName("doc-1", "c2"))
}

func TestRenamePagesArgumentValidation(t *testing.T) {
	svc, err := NewPageService(&MockPageAPI{}, newTestPool(t, 1, 1), discardLogger())
	require.NoError(t, err)

	_, err = svc.RenamePages(context.Background(), "  ", "p")
	assert.ErrorIs(t, err, ErrEmptyDocumentID)

	_, err = svc.RenamePages(context.Background(), "doc", "")
	assert.ErrorIs(t, err, ErrEmptyPrefix)
}

func TestRenamePagesListFailure(t *testing.T) {
	api := &MockPageAPI{}
	api.On("ListPages", mock.Anything, "doc-1").Return(nil, coda.ErrInvalidAPIKey)

	svc, err := NewPageService(api, newTestPool(t, 1, 1), discardLogger())
	require.NoError(t, err)

	result, err := svc.RenamePages(context.Background(), "doc-1", "p")
	assert.Nil(t, result)
	assert.ErrorIs(t, err, coda.ErrInvalidAPIKey)
	var opErr *OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "rename_pages", opErr.Operation)
	api.AssertExpectations(t)
}

func TestRenamePagesInvalidKeyAbortsRun(t *testing.T) {
	api := &MockPageAPI{}
	roots := make([]coda.Page, 0, 5)
	for i := range 5 {
		roots = append(roots, coda.Page{ID: fmt.Sprintf("p%d", i), Name: fmt.Sprintf("Page %d", i)})
	}
	api.On("ListPages", mock.Anything, "doc-1").Return(roots, nil)
	api.On("UpdatePage", mock.Anything, "doc-1", "p0", mock.Anything).Return(nil, coda.ErrInvalidAPIKey)
	api.On("UpdatePage", mock.Anything, "doc-1", mock.Anything, mock.Anything).
		Return(&coda.MutationStatus{}, nil).Maybe()

	// one executor so p0 fails before anything else runs
	svc, err := NewPageService(api, newTestPool(t, 1, 10), discardLogger())
	require.NoError(t, err)

	result, err := svc.RenamePages(testContext(t), "doc-1", "p")
	require.Error(t, err)
	assert.ErrorIs(t, err, coda.ErrInvalidAPIKey)
	require.NotNil(t, result)
	assert.Equal(t, 0, result.Renamed)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, result.Pages-1, result.Skipped)
	api.AssertNumberOfCalls(t, "UpdatePage", 1)
}

func TestRenamePagesFetchesChildren(t *testing.T) {
	api := &MockPageAPI{}
	root := coda.Page{ID: "root", Name: "Root", Children: []coda.PageRef{{ID: "kid", Name: "Kid"}}}
	// the listing repeats the child; it must still be renamed only once
	listed := []coda.Page{root, {ID: "kid", Name: "Kid", Parent: &coda.PageRef{ID: "root"}}}
	api.On("ListPages", mock.Anything, "doc-1").Return(listed, nil)
	api.On("GetPage", mock.Anything, "doc-1", "kid").Return(&coda.Page{ID: "kid", Name: "Kid"}, nil).Once()
	api.On("UpdatePage", mock.Anything, "doc-1", "root", coda.PageUpdate{Name: ">Root"}).
		Return(&coda.MutationStatus{ID: "root"}, nil).Once()
	api.On("UpdatePage", mock.Anything, "doc-1", "kid", coda.PageUpdate{Name: ">Kid"}).
		Return(&coda.MutationStatus{ID: "kid"}, nil).Once()

	svc, err := NewPageService(api, newTestPool(t, 2, 2), discardLogger())
	require.NoError(t, err)

	result, err := svc.RenamePages(testContext(t), "doc-1", ">")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Renamed)
	api.AssertExpectations(t)
}

func TestRenamePagesCancelled(t *testing.T) {
	api := &MockPageAPI{}
	api.On("ListPages", mock.Anything, "doc-1").Return([]coda.Page{{ID: "slow", Name: "Slow"}}, nil)
	api.On("UpdatePage", mock.Anything, "doc-1", "slow", mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, context.Canceled)

	svc, err := NewPageService(api, newTestPool(t, 1, 1), discardLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = svc.RenamePages(ctx, "doc-1", "p")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRenamePagesLogsThroughContextLogger(t *testing.T) {
	api := &MockPageAPI{}
	api.On("ListPages", mock.Anything, "doc-1").Return([]coda.Page{{ID: "only", Name: "Only"}}, nil)
	api.On("UpdatePage", mock.Anything, "doc-1", "only", coda.PageUpdate{Name: "x-Only"}).
		Return(&coda.MutationStatus{ID: "only"}, nil)

	svc, err := NewPageService(api, newTestPool(t, 1, 1), discardLogger())
	require.NoError(t, err)

	log, buf := logger.GetTestLogger(t)
	ctx := logger.WithLogger(testContext(t), log.With("command", "rename_pages"))

	_, err = svc.RenamePages(ctx, "doc-1", "x-")
	require.NoError(t, err)

	logger.AssertLogContains(t, buf, "renaming pages")
	logger.AssertLogContains(t, buf, "page renamed")
	logger.AssertLogField(t, buf, "command", "rename_pages")
	logger.AssertLogField(t, buf, "page_id", "only")
}
