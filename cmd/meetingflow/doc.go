// Package main hosts the meetingflow admin CLI.
//
// The Cobra command tree works directly against the configured store for
// meeting creation, inspection and manual transitions, and talks to a running
// daemon through its status API when one is bound. Heavy lifting lives in the
// internal packages; commands here only parse flags and render results.
package main
