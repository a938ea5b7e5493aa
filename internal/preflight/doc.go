// Package preflight provides readiness checks for the paths, binaries and
// services meetingflow depends on.
//
// The daemon runs RunAll once before it starts the worker lanes and refuses
// to start when a required check fails. The CLI "meetingflow health" command
// prints the same results.
package preflight
