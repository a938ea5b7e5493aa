// Package daemon coordinates the long-running meetingflowd process.
//
// It wires configuration, the meeting store and the workflow manager into a
// single lifecycle with flock-based locking to prevent two daemons from
// sharing a data directory. When api.bind is set it also serves a read-only
// status API guarded by actor tokens.
//
// Keep orchestration logic here: stage work lives in the stage packages and
// status changes go through the workflow orchestrator.
package daemon
