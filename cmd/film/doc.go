// Package main hosts the film CLI entrypoint and command graph.
//
// Commands resolve content IDs to download links, manage catalog tokens and
// the Telegram bot session, inspect the resolution cache, and run the HTTP
// API server. Configuration and every service are built lazily by
// commandContext so that commands such as `config init` work before a config
// file exists.
package main
