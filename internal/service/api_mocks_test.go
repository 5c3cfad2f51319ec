package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/phrazzld/coda-batch/internal/platform/coda"
	"github.com/phrazzld/coda-batch/internal/task"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockPageAPI mocks the PageAPI interface
type MockPageAPI struct {
	mock.Mock
}

func (m *MockPageAPI) ListPages(ctx context.Context, docID string) ([]coda.Page, error) {
	args := m.Called(ctx, docID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]coda.Page), args.Error(1)
}

func (m *MockPageAPI) GetPage(ctx context.Context, docID, pageID string) (*coda.Page, error) {
	args := m.Called(ctx, docID, pageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*coda.Page), args.Error(1)
}

func (m *MockPageAPI) UpdatePage(
	ctx context.Context,
	docID, pageID string,
	update coda.PageUpdate,
) (*coda.MutationStatus, error) {
	args := m.Called(ctx, docID, pageID, update)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*coda.MutationStatus), args.Error(1)
}

// MockDocumentAPI mocks the DocumentAPI interface
type MockDocumentAPI struct {
	mock.Mock
}

func (m *MockDocumentAPI) ListDocuments(ctx context.Context, opts coda.ListDocumentsOptions) ([]coda.Document, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]coda.Document), args.Error(1)
}

// MockWorkspaceNamer mocks the WorkspaceNamer interface
type MockWorkspaceNamer struct {
	mock.Mock
}

func (m *MockWorkspaceNamer) WorkspaceName(ctx context.Context, workspaceID string) (string, error) {
	args := m.Called(ctx, workspaceID)
	return args.String(0), args.Error(1)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestPool returns a running pool that is stopped when the test ends.
func newTestPool(t *testing.T, concurrency, awaiting int) *task.Pool {
	t.Helper()
	pool := task.NewPool(task.PoolConfig{
		MaxConcurrency: concurrency,
		MaxAwaiting:    awaiting,
		Order:          task.OrderFIFO,
	}, discardLogger())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, pool.Stop(ctx, false))
	})
	return pool
}

// testContext returns a context that fails slow tests instead of hanging them.
func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}
