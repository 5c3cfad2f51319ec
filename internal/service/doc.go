// Package service contains the batch operations behind the command line.
//
// Services depend on small interfaces for the remote API and the task pool,
// never on concrete clients. Bulk operations fan out one pool task per item
// under a tag unique to the run and wait for that tag to drain, so several
// runs can share one pool without waiting on each other.
package service
