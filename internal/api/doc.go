// Package api defines the wire-format types served by the daemon's status
// API and printed by `meetingflow ... --json`. It translates queue and
// workflow models into transport DTOs so consumers do not couple to internal
// types.
//
// DTOs use camelCase JSON tags. Statuses and events are exposed as their
// lowercase names and timestamps use RFC3339 with milliseconds.
package api
