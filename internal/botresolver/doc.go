// Package botresolver finds StreamWide playlist and season IDs by asking the
// StreamWide Telegram bot when the catalog search comes up empty.
package botresolver
