package coda

import "time"

// WorkspaceRef identifies the workspace a document belongs to.
type WorkspaceRef struct {
	ID             string `json:"id"`
	Type           string `json:"type,omitempty"`
	OrganizationID string `json:"organizationId,omitempty"`
	BrowserLink    string `json:"browserLink,omitempty"`
	Name           string `json:"name,omitempty"`
}

// Document is a Coda doc as returned by the docs endpoints.
type Document struct {
	ID          string       `json:"id"`
	Type        string       `json:"type,omitempty"`
	Href        string       `json:"href,omitempty"`
	BrowserLink string       `json:"browserLink,omitempty"`
	Name        string       `json:"name"`
	Owner       string       `json:"owner,omitempty"`
	OwnerName   string       `json:"ownerName,omitempty"`
	WorkspaceID string       `json:"workspaceId,omitempty"`
	Workspace   WorkspaceRef `json:"workspace"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// WorkspaceIDOrRef returns the workspace id, preferring the top-level field.
func (d Document) WorkspaceIDOrRef() string {
	if d.WorkspaceID != "" {
		return d.WorkspaceID
	}
	return d.Workspace.ID
}

// PageRef is a lightweight reference to a page, as found in parent and
// children fields. It carries no children of its own.
type PageRef struct {
	ID          string `json:"id"`
	Type        string `json:"type,omitempty"`
	Href        string `json:"href,omitempty"`
	BrowserLink string `json:"browserLink,omitempty"`
	Name        string `json:"name"`
}

// Page is a page (canvas) of a document.
type Page struct {
	ID          string    `json:"id"`
	Type        string    `json:"type,omitempty"`
	Href        string    `json:"href,omitempty"`
	BrowserLink string    `json:"browserLink,omitempty"`
	Name        string    `json:"name"`
	Subtitle    string    `json:"subtitle,omitempty"`
	IsHidden    bool      `json:"isHidden,omitempty"`
	Parent      *PageRef  `json:"parent,omitempty"`
	Children    []PageRef `json:"children"`
}

// IsRoot reports whether the page has no parent page.
func (p Page) IsRoot() bool {
	return p.Parent == nil || p.Parent.ID == ""
}

// PageUpdate holds the page fields to change. Empty fields are left untouched.
type PageUpdate struct {
	Name     string `json:"name,omitempty"`
	Subtitle string `json:"subtitle,omitempty"`
}

// MutationStatus is the acknowledgement returned by asynchronous writes.
type MutationStatus struct {
	RequestID string `json:"requestId"`
	ID        string `json:"id"`
}

// Workspace is a workspace with its display name.
type Workspace struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// ListDocumentsOptions filters document listings.
type ListDocumentsOptions struct {
	WorkspaceID string
}

type listResponse[T any] struct {
	Items         []T    `json:"items"`
	Href          string `json:"href,omitempty"`
	NextPageToken string `json:"nextPageToken,omitempty"`
	NextPageLink  string `json:"nextPageLink,omitempty"`
}
