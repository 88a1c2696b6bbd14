// Package config loads, normalizes, and validates layerforge configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// ANTHROPIC_API_KEY and MODEL_NAME. Providers declared only through their API
// key environment variable are turned into router routes here, so the router
// never reads the environment itself.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
