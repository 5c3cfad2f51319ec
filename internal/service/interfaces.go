package service

import (
	"context"

	"github.com/phrazzld/coda-batch/internal/platform/coda"
	"github.com/phrazzld/coda-batch/internal/task"
)

// DocumentAPI lists documents.
type DocumentAPI interface {
	ListDocuments(ctx context.Context, opts coda.ListDocumentsOptions) ([]coda.Document, error)
}

// PageAPI reads and updates the pages of a document.
type PageAPI interface {
	ListPages(ctx context.Context, docID string) ([]coda.Page, error)
	GetPage(ctx context.Context, docID, pageID string) (*coda.Page, error)
	UpdatePage(ctx context.Context, docID, pageID string, update coda.PageUpdate) (*coda.MutationStatus, error)
}

// WorkspaceNamer resolves workspace display names.
type WorkspaceNamer interface {
	WorkspaceName(ctx context.Context, workspaceID string) (string, error)
}

// TaskPool runs tagged work. *task.Pool implements it.
type TaskPool interface {
	// Submit enqueues work under tag, waiting while the queue is full.
	// Submitting with the context handed to a running task cannot deadlock
	// the pool.
	Submit(ctx context.Context, tag string, work task.Work) error

	// Wait blocks until no task with tag is queued or running.
	Wait(ctx context.Context, tag string) error
}

// bindContext derives a context from the task context that is also cancelled
// when the caller's context is. Values of the task context are kept so that
// nested submissions stay recognisable to the pool.
func bindContext(taskCtx, callerCtx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(taskCtx)
	stop := context.AfterFunc(callerCtx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
