// Package config handles configuration loading, parsing, and validation
// from various sources (environment variables, files). It provides type-safe
// access to the API, session, pool and logging settings while keeping
// configuration details separate from the command logic.
package config
