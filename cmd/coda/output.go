package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/phrazzld/coda-batch/internal/platform/coda"
	"github.com/phrazzld/coda-batch/internal/service"
	"gopkg.in/yaml.v3"
)

// printer renders command results on stdout.
type printer interface {
	Workspaces(workspaces []coda.Workspace) error
	Documents(docs []coda.Document) error
	RenameStarted() error
	// Progress is called once per finished page rename.
	Progress()
	RenameFinished(result *service.RenameResult) error
}

func newPrinter(format string, w io.Writer) (printer, error) {
	switch format {
	case "text", "":
		return &textPrinter{w: w}, nil
	case "json":
		return &encodingPrinter{w: w, encode: encodeJSON}, nil
	case "yaml":
		return &encodingPrinter{w: w, encode: encodeYAML}, nil
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}

// documentView is the structured rendering of a document.
type documentView struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	WorkspaceID string `json:"workspace_id" yaml:"workspace_id"`
}

func documentViews(docs []coda.Document) []documentView {
	views := make([]documentView, 0, len(docs))
	for _, d := range docs {
		views = append(views, documentView{ID: d.ID, Name: d.Name, WorkspaceID: d.WorkspaceIDOrRef()})
	}
	return views
}

// textPrinter mimics the line format users of the tool are used to.
type textPrinter struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *textPrinter) Workspaces(workspaces []coda.Workspace) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintln(p.w, "Workspaces:")
	for _, ws := range workspaces {
		fmt.Fprintf(p.w, "(%s) %s\n", ws.ID, ws.Name)
	}
	_, err := fmt.Fprintln(p.w, "--- Done!")
	return err
}

func (p *textPrinter) Documents(docs []coda.Document) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintln(p.w, "Documents:")
	for _, d := range docs {
		fmt.Fprintf(p.w, "(%s) %s\n", d.ID, d.Name)
	}
	_, err := fmt.Fprintln(p.w, "--- Done!")
	return err
}

func (p *textPrinter) RenameStarted() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := fmt.Fprintln(p.w, "Renaming")
	return err
}

func (p *textPrinter) Progress() {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprint(p.w, ".")
}

func (p *textPrinter) RenameFinished(result *service.RenameResult) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintln(p.w)
	for _, f := range result.Failures {
		fmt.Fprintf(p.w, "failed (%s) %s: %s\n", f.PageID, f.Name, f.Error)
	}
	_, err := fmt.Fprintln(p.w, "--- Done!")
	return err
}

// encodingPrinter writes each result as one JSON or YAML document and
// stays silent about progress.
type encodingPrinter struct {
	w      io.Writer
	encode func(io.Writer, any) error
}

func (p *encodingPrinter) Workspaces(workspaces []coda.Workspace) error {
	if workspaces == nil {
		workspaces = []coda.Workspace{}
	}
	return p.encode(p.w, map[string]any{"workspaces": workspaces})
}

func (p *encodingPrinter) Documents(docs []coda.Document) error {
	return p.encode(p.w, map[string]any{"documents": documentViews(docs)})
}

func (p *encodingPrinter) RenameStarted() error { return nil }

func (p *encodingPrinter) Progress() {}

func (p *encodingPrinter) RenameFinished(result *service.RenameResult) error {
	return p.encode(p.w, result)
}

func encodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func encodeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
