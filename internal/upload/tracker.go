// Package upload tracks in-flight artifact uploads for a capture session.
//
// Submit starts an upload at once and never blocks the capture loop; the
// session later joins every upload still running with AwaitAllSettled and
// decides from the Report whether the capture succeeded.
package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sourcegraph/conc/panics"
	"golang.org/x/sync/semaphore"

	"meetingflow/internal/blob"
	"meetingflow/internal/logging"
	"meetingflow/internal/services"
)

// Func performs one upload and describes the stored object.
type Func func(ctx context.Context) (blob.Descriptor, error)

// Options bounds the tracker.
type Options struct {
	// MaxConcurrent caps uploads running at once. Zero or less means no cap.
	MaxConcurrent int
	// Timeout bounds each upload. Zero means no per-upload deadline.
	Timeout time.Duration
}

// Result is the settled outcome of one upload.
type Result struct {
	Name       string
	Descriptor blob.Descriptor
	Err        error
	Duration   time.Duration
}

// Report summarizes the uploads joined by AwaitAllSettled.
type Report struct {
	Succeeded []Result
	Failed    []Result
}

// Total is the number of uploads in the report.
func (r Report) Total() int { return len(r.Succeeded) + len(r.Failed) }

// FailureRatio is the share of failed uploads, 0 for an empty report.
func (r Report) FailureRatio() float64 {
	if r.Total() == 0 {
		return 0
	}
	return float64(len(r.Failed)) / float64(r.Total())
}

// Err joins every failure, or returns nil when all uploads succeeded.
func (r Report) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failed))
	for _, failed := range r.Failed {
		errs = append(errs, failed.Err)
	}
	return errors.Join(errs...)
}

type handle struct {
	name   string
	done   chan struct{}
	result Result
}

// Tracker owns the live set of uploads for one session.
type Tracker struct {
	base    context.Context
	logger  *slog.Logger
	sem     *semaphore.Weighted
	timeout time.Duration

	mu      sync.Mutex
	nextID  uint64
	live    map[uint64]*handle
	settled []Result
}

// NewTracker returns a tracker whose uploads run under base. Uploads are not
// cancelled when the submitting loop stops; cancel base to abandon them.
func NewTracker(base context.Context, logger *slog.Logger, opts Options) *Tracker {
	if base == nil {
		base = context.Background()
	}
	t := &Tracker{
		base:    base,
		logger:  logging.NewComponentLogger(logger, "upload"),
		timeout: opts.Timeout,
		live:    make(map[uint64]*handle),
	}
	if opts.MaxConcurrent > 0 {
		t.sem = semaphore.NewWeighted(int64(opts.MaxConcurrent))
	}
	return t
}

// Submit starts fn in the background and adds it to the live set. It never
// blocks and never fails; the outcome is reported when the upload settles.
func (t *Tracker) Submit(name string, fn Func) {
	h := &handle{name: name, done: make(chan struct{})}

	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.live[id] = h
	t.mu.Unlock()

	go t.run(id, h, fn)
}

func (t *Tracker) run(id uint64, h *handle, fn Func) {
	started := time.Now()
	desc, err := t.execute(fn)
	h.result = Result{Name: h.name, Descriptor: desc, Duration: time.Since(started)}
	if err != nil {
		h.result.Err = services.Wrap(services.ErrUploadFailed, "upload", h.name, "upload did not complete", err)
	}

	t.mu.Lock()
	delete(t.live, id)
	t.settled = append(t.settled, h.result)
	t.mu.Unlock()
	close(h.done)

	if h.result.Err != nil {
		logging.WarnWithContext(t.logger, "upload failed", "upload_failed",
			logging.String("upload", h.name),
			logging.Duration("elapsed", h.result.Duration),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the upload is counted against the capture's failure ratio"),
			logging.String(logging.FieldImpact, "artifact missing from object storage"),
		)
		return
	}
	t.logger.Debug("upload settled",
		logging.String("upload", h.name),
		logging.String("key", desc.Key),
		logging.Int64("size", desc.Size),
		logging.Duration("elapsed", h.result.Duration),
	)
}

func (t *Tracker) execute(fn Func) (desc blob.Descriptor, err error) {
	ctx := t.base
	if t.sem != nil {
		if err := t.sem.Acquire(ctx, 1); err != nil {
			return blob.Descriptor{}, fmt.Errorf("wait for upload slot: %w", err)
		}
		defer t.sem.Release(1)
	}
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	var catcher panics.Catcher
	catcher.Try(func() {
		desc, err = fn(ctx)
	})
	if recovered := catcher.Recovered(); recovered != nil {
		return blob.Descriptor{}, recovered.AsError()
	}
	return desc, err
}

// AwaitAllSettled waits for the uploads live at call time and returns a
// report over every upload the tracker has settled, including those that
// finished before the call. Uploads submitted afterwards are not joined. If
// ctx ends first, joined uploads still running are reported as failures.
func (t *Tracker) AwaitAllSettled(ctx context.Context) Report {
	t.mu.Lock()
	snapshot := make(map[uint64]*handle, len(t.live))
	for id, h := range t.live {
		snapshot[id] = h
	}
	t.mu.Unlock()

	for _, h := range snapshot {
		select {
		case <-h.done:
		case <-ctx.Done():
		}
	}

	t.mu.Lock()
	settled := make([]Result, len(t.settled))
	copy(settled, t.settled)
	var abandoned []string
	for id, h := range snapshot {
		if _, running := t.live[id]; running {
			abandoned = append(abandoned, h.name)
		}
	}
	t.mu.Unlock()

	report := summarize(settled)
	for _, name := range abandoned {
		report.Failed = append(report.Failed, Result{
			Name: name,
			Err:  services.Wrap(services.ErrUploadFailed, "upload", name, "still running when the wait ended", ctx.Err()),
		})
	}
	return report
}

// Pending reports how many uploads are still running.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.live)
}

// Results returns every upload settled so far in settle order.
func (t *Tracker) Results() []Result {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Result, len(t.settled))
	copy(out, t.settled)
	return out
}

// Summarize folds every settled upload into a Report.
func (t *Tracker) Summarize() Report {
	return summarize(t.Results())
}

func summarize(results []Result) Report {
	var report Report
	for _, result := range results {
		if result.Err != nil {
			report.Failed = append(report.Failed, result)
		} else {
			report.Succeeded = append(report.Succeeded, result)
		}
	}
	return report
}
