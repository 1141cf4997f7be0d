// Package config loads, normalizes, and validates film configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment overrides such as
// STREAMWIDE_REFRESH_TOKEN and TELEGRAM_API_ID. Every file film persists
// (cache, refresh token, bot session, login code, lock) lives under
// paths.data_dir and is located through the path helpers on Config.
//
// Always obtain settings through this package so downstream code receives
// expanded paths, parsed durations, and clear validation errors.
package config
