// Package streamwide talks to the StreamWide catalog API.
//
// TokenManager owns the access/refresh token pair: it hands out cached access
// tokens until they come within the lead time of expiry, refreshes them
// through /accounts/token/refresh/, and persists every new refresh token via a
// CredentialStore. Client searches playlists by title or exact IMDb ID,
// lists series seasons, and turns video manifests into media.DownloadItem
// values. Every Client request carries a bearer token from a TokenSource and
// is retried once with a fresh token when the API rejects it.
package streamwide
