// Package workflow moves meetings through the capture, transcription and
// report stages.
//
// The Orchestrator is the only writer of status changes outside a claim: it
// checks each event against the status graph, fires the downstream side
// effect, and commits the guarded status change with its transition record.
// A failed side effect lands the meeting in the event's failure status.
//
// The Manager runs one lane per stage. Each lane has a configurable number of
// worker slots that claim the oldest eligible meeting, hand it to the stage
// handler while a heartbeat keeps the claim fresh, and then wait for the poll
// interval, a wake-up from the notifications bus, or shutdown. The heartbeat
// monitor flags claims whose owner stopped heartbeating and can fail them,
// but never hands them back to pending.
package workflow
