// Package media defines the value types handed back to callers of the
// resolution pipeline (download items and season references) together with
// the release file name parser that fills in their quality metadata.
package media
