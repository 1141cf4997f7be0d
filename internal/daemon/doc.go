// Package daemon runs the long-lived `film serve` process.
//
// It takes a flock-based lock so two servers never share a Telegram session
// file, then exposes the resolution pipeline, credential management, and
// cache maintenance over a small JSON HTTP API. Handlers only translate
// between HTTP and the packages that do the work; resolution logic stays in
// internal/resolution.
package daemon
