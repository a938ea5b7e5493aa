// Package config loads, normalizes, and validates meetingflow configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and overlays MEETINGFLOW_* environment
// variables (optionally sourced from a .env file) for secrets and endpoints.
// The Config type centralizes every knob the worker daemon and CLI need:
// store backend, blob bucket, worker counts, downstream endpoints.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
