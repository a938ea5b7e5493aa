package capture

import (
	"context"
	"time"

	"meetingflow/internal/queue"
)

// Chunk is one finished piece of recorded audio.
type Chunk struct {
	Name string
	Data []byte
	At   time.Time
}

// Recorder joins meetings.
type Recorder interface {
	// Connect joins the meeting and starts recording. An error means the
	// recorder never joined.
	Connect(ctx context.Context, meeting *queue.Meeting) (Recording, error)
	// Ready reports why the recorder cannot run, or nil.
	Ready() error
}

// Recording is a live capture.
type Recording interface {
	// Chunks yields audio in recording order and is closed once the
	// recording has ended and every chunk was delivered.
	Chunks() <-chan Chunk
	// Stop asks the recording to end. It may be called more than once.
	Stop() error
	// Trace bundles the recorder's diagnostics for upload.
	Trace() ([]byte, error)
}
