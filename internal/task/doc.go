// Package task runs units of work on a bounded pool of goroutines.
//
// A Pool caps the number of concurrently running tasks, bounds the number of
// tasks waiting to start, and keeps a live counter per caller-chosen tag.
// Callers fan work out under a tag and block on Wait until every task under
// that tag, including tasks submitted recursively by running tasks, has
// finished. Task failures are isolated: they are reported to an optional
// error handler, lifecycle events and metrics, and never reach the submitter.
package task
