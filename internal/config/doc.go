// Package config loads, normalizes, and validates gavel configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and applies GAVEL_* environment overrides on
// top of the file. The Config type centralizes every directory the control
// plane touches so the store, gate queues, artifact directories, and logs are
// discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
