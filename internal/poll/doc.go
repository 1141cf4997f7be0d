// Package poll provides the bounded retry loop used wherever film waits on an
// external party: the login code side channel and the bot reply history.
//
// A loop is parameterized by interval, attempt budget, and the caller's
// context, and ends with a typed Outcome (Found, Timeout, Cancelled) so
// callers can map exhaustion to a business result instead of an error.
package poll
