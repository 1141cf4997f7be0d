// Package logging assembles the slog loggers used across film.
//
// It owns the console and JSON handlers, routes output to stderr plus the
// configured log file, and exposes context helpers so resolution code tags
// every record with its request ID, content ID, and current strategy. A no-op
// logger is provided for tests and wiring code that cannot fail.
package logging
