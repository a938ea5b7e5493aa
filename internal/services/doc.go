// Package services defines shared utilities consumed by the workflow stage
// handlers, the stores, and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp meeting IDs, stage names, lanes, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper. Every layer classifies
//     failures with errors.Is against these markers, so the poll loop can tell
//     a transient store outage from a rejected transition.
//
// Use these helpers when wiring new stage logic so operational behaviour (error
// handling, observability, retries) stays uniform across the pipeline.
package services
