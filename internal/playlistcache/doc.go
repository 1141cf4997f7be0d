// Package playlistcache persists the content ID to StreamWide playlist and
// season mapping so repeated lookups skip the catalog and the bot.
//
// Entries expire after a TTL (seven days by default) and are validated before
// they are written: a movie needs a playlist ID and a series needs at least
// one season with an ID and number.
package playlistcache
