package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/phrazzld/coda-batch/internal/platform/coda"
	"github.com/phrazzld/coda-batch/internal/platform/logger"
)

// WorkspaceTagPrefix starts the pool tag of every workspace listing.
const WorkspaceTagPrefix = "list-workspaces:"

// DocumentService lists documents and the workspaces they live in.
type DocumentService interface {
	// ListDocuments returns the documents visible to the API key, narrowed to
	// one workspace when workspaceID is not empty.
	ListDocuments(ctx context.Context, workspaceID string) ([]coda.Document, error)

	// ListWorkspaces returns the distinct workspaces of the visible documents
	// in the order they are first seen, with their display names.
	ListWorkspaces(ctx context.Context) ([]coda.Workspace, error)
}

type documentServiceImpl struct {
	api    DocumentAPI
	namer  WorkspaceNamer
	pool   TaskPool
	logger *slog.Logger
}

// NewDocumentService creates a DocumentService.
func NewDocumentService(api DocumentAPI, namer WorkspaceNamer, pool TaskPool, logger *slog.Logger) (DocumentService, error) {
	if api == nil {
		return nil, &OperationError{Operation: "create_service", Message: "api cannot be nil"}
	}
	if namer == nil {
		return nil, &OperationError{Operation: "create_service", Message: "namer cannot be nil"}
	}
	if pool == nil {
		return nil, &OperationError{Operation: "create_service", Message: "pool cannot be nil"}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &documentServiceImpl{
		api:    api,
		namer:  namer,
		pool:   pool,
		logger: logger.With("component", "document_service"),
	}, nil
}

// ListDocuments implements DocumentService.
func (s *documentServiceImpl) ListDocuments(ctx context.Context, workspaceID string) ([]coda.Document, error) {
	workspaceID = strings.TrimSpace(workspaceID)

	docs, err := s.api.ListDocuments(ctx, coda.ListDocumentsOptions{WorkspaceID: workspaceID})
	if err != nil {
		return nil, NewOperationError("list_documents", "failed to list documents", err)
	}
	log := logger.FromContextOrDefault(ctx, s.logger)
	if workspaceID == "" {
		log.Debug("documents listed", "documents", len(docs))
		return docs, nil
	}

	filtered := docs[:0]
	for _, d := range docs {
		if d.WorkspaceIDOrRef() == workspaceID {
			filtered = append(filtered, d)
		}
	}
	log.Debug("documents listed",
		"workspace_id", workspaceID,
		"listed", len(docs),
		"documents", len(filtered))
	return filtered, nil
}

// ListWorkspaces implements DocumentService.
func (s *documentServiceImpl) ListWorkspaces(ctx context.Context) ([]coda.Workspace, error) {
	docs, err := s.api.ListDocuments(ctx, coda.ListDocumentsOptions{})
	if err != nil {
		return nil, NewOperationError("list_workspaces", "failed to list documents", err)
	}

	var workspaces []coda.Workspace
	seen := make(map[string]struct{})
	for _, d := range docs {
		id := d.WorkspaceIDOrRef()
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		workspaces = append(workspaces, coda.Workspace{ID: id, Name: d.Workspace.Name})
	}

	tag := WorkspaceTagPrefix + uuid.NewString()
	errs := make([]error, len(workspaces))
	submitted := 0
	for i := range workspaces {
		if workspaces[i].Name != "" {
			continue
		}
		err := s.pool.Submit(ctx, tag, func(taskCtx context.Context) error {
			callCtx, cancel := bindContext(taskCtx, ctx)
			defer cancel()

			name, err := s.namer.WorkspaceName(callCtx, workspaces[i].ID)
			if err != nil {
				errs[i] = fmt.Errorf("workspace %s: %w", workspaces[i].ID, err)
				return errs[i]
			}
			workspaces[i].Name = name
			return nil
		})
		if err != nil {
			errs[i] = err
			break
		}
		submitted++
	}

	if err := s.pool.Wait(ctx, tag); err != nil {
		return nil, NewOperationError("list_workspaces", "waiting for workspace names", err)
	}
	logger.FromContextOrDefault(ctx, s.logger).Debug("workspaces resolved", "workspaces", len(workspaces), "lookups", submitted)

	if err := errors.Join(errs...); err != nil {
		return nil, NewOperationError("list_workspaces", "failed to resolve workspace names", err)
	}
	return workspaces, nil
}
