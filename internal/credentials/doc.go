// Package credentials persists the secrets the command line needs between
// runs: the API key and the browser session cookies used for dashboard reads.
package credentials
