// Package resolution turns an IMDb content ID into StreamWide download items.
//
// The Orchestrator tries the playlist cache, then the catalog search (only
// when a title is known), then the Telegram bot. Every successful lookup is
// written back to the cache; failures never are. Callers get a Result whose
// Kind says what happened; errors are not returned.
package resolution
