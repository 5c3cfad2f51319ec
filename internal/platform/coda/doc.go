// Package coda is a client for the Coda document REST API.
//
// The Client covers the endpoints the batch commands need: listing and
// reading documents and pages, and updating page metadata. Listings follow
// the API's token pagination transparently. Workspace display names are not
// exposed by the API; SessionNamer reads them from the web dashboard using
// a persisted browser session.
package coda
