// Package logger provides structured logging functionality for the application.
//
// It builds log/slog loggers in JSON or text format with configurable levels,
// carries loggers through a context, and ships helpers for capturing log
// output in tests.
package logger
