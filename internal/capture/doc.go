// Package capture records live meetings.
//
// A claimed meeting is joined through a Recorder. Each audio chunk the
// recording yields is uploaded in the background through an upload.Tracker
// while the session polls the meeting status; once the status leaves
// capture_in_progress, or the recorder exits, the session stops, uploads the
// trace bundle, waits for every upload to settle and completes or fails the
// capture depending on the share of failed uploads.
package capture
