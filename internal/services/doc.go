// Package services defines shared utilities consumed by the resolution
// pipeline and its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp content IDs, resolution strategies, and
//     correlation identifiers for logging.
//   - Structured error markers, the AuthError type, and the Wrap helper that
//     let the orchestrator classify failures (transient, auth, not found,
//     login required) without string matching.
//
// Integrations live in subpackages (streamwide, telegram) and return errors
// tagged with these markers.
package services
