package queue_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"meetingflow/internal/queue"
	"meetingflow/internal/services"
	"meetingflow/internal/testsupport"
)

func TestCreateAssignsInitialStatus(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	live := testsupport.NewMeeting(t, store, "weekly")
	if live.ID == 0 || live.Status != queue.StatusCapturePending {
		t.Fatalf("unexpected meeting: %+v", live)
	}
	imported := testsupport.NewMeeting(t, store, "import", testsupport.AsImport())
	if imported.Status != queue.StatusImportPending {
		t.Fatalf("expected import_pending, got %s", imported.Status)
	}

	fetched, err := store.GetByID(context.Background(), live.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched.Name != "weekly" || fetched.OwnerID != live.OwnerID || fetched.URL == "" {
		t.Fatalf("unexpected fetched meeting: %+v", fetched)
	}
}

func TestCreateRejectsBothPlatformIdentities(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	_, err := store.Create(context.Background(), &queue.Meeting{
		Name:       "conflict",
		Platform:   queue.PlatformComu,
		URL:        "https://comu.example.org/x",
		PlatformID: "123",
		Password:   "secret",
		OwnerID:    uuid.New(),
	})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestGetByIDMissingReturnsNotFound(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	if _, err := store.GetByID(context.Background(), 999); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestClaimTakesOldestAndRecords(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	first := testsupport.NewMeeting(t, store, "first")
	testsupport.NewMeeting(t, store, "second")

	claimed, err := store.Claim(ctx, queue.StatusCapturePending, "capture-1")
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if claimed == nil || claimed.ID != first.ID {
		t.Fatalf("expected oldest meeting %d, got %+v", first.ID, claimed)
	}
	if claimed.Status != queue.StatusCaptureBotIsConnecting {
		t.Fatalf("expected claim target status, got %s", claimed.Status)
	}
	if claimed.LastHeartbeat == nil {
		t.Fatal("expected claim to set heartbeat")
	}

	record, err := store.CurrentTransition(ctx, claimed.ID)
	if err != nil {
		t.Fatalf("CurrentTransition failed: %v", err)
	}
	if record.Status != claimed.Status || record.Event != queue.EventClaimCapture || record.Actor != "capture-1" {
		t.Fatalf("unexpected record: %+v", record)
	}
}

func TestClaimEmptyReturnsNil(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	claimed, err := store.Claim(context.Background(), queue.StatusReportPending, "report-1")
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if claimed != nil {
		t.Fatalf("expected no claim, got %+v", claimed)
	}
}

func TestClaimRejectsUnclaimableStatus(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	meeting := testsupport.NewMeeting(t, store, "import", testsupport.AsImport())

	for _, status := range []queue.Status{queue.StatusImportPending, queue.StatusCaptureInProgress, queue.StatusReportDone} {
		if _, err := store.Claim(context.Background(), status, "w"); !errors.Is(err, services.ErrInvalidTransition) {
			t.Fatalf("Claim(%s) expected ErrInvalidTransition, got %v", status, err)
		}
	}
	fetched, err := store.GetByID(context.Background(), meeting.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched.Status != queue.StatusImportPending {
		t.Fatalf("expected import meeting untouched, got %s", fetched.Status)
	}
}

func TestConcurrentClaimersNeverShareAMeeting(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	const meetings = 12
	const claimers = 8
	for i := 0; i < meetings; i++ {
		testsupport.NewMeeting(t, store, fmt.Sprintf("m%d", i))
	}

	var (
		mu      sync.Mutex
		claimed = make(map[int64]int)
		wg      sync.WaitGroup
		errs    = make(chan error, claimers)
	)
	for w := 0; w < claimers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for attempt := 0; attempt < 100; attempt++ {
				meeting, err := store.Claim(context.Background(), queue.StatusCapturePending, fmt.Sprintf("capture-%d", worker))
				if errors.Is(err, services.ErrStoreUnavailable) {
					continue
				}
				if err != nil {
					errs <- err
					return
				}
				if meeting == nil {
					return
				}
				mu.Lock()
				claimed[meeting.ID]++
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("claim error: %v", err)
	}

	if len(claimed) != meetings {
		t.Fatalf("expected %d distinct claims, got %d", meetings, len(claimed))
	}
	for id, count := range claimed {
		if count != 1 {
			t.Fatalf("meeting %d claimed %d times", id, count)
		}
	}
}

func TestTransitionGuardsFromStatus(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	meeting := testsupport.NewMeeting(t, store, "guarded")

	_, _, err := store.Transition(ctx, queue.Transition{
		MeetingID: meeting.ID,
		From:      queue.StatusCaptureInProgress,
		To:        queue.StatusTranscriptionPending,
		Event:     queue.EventCompleteCapture,
	})
	if !errors.Is(err, services.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	_, _, err = store.Transition(ctx, queue.Transition{
		MeetingID: meeting.ID,
		From:      queue.StatusCapturePending,
		To:        queue.StatusTranscriptionPending,
		Event:     queue.EventCompleteCapture,
	})
	if !errors.Is(err, services.ErrInvalidTransition) {
		t.Fatalf("expected edge validation error, got %v", err)
	}

	fetched, err := store.GetByID(ctx, meeting.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched.Status != queue.StatusCapturePending {
		t.Fatalf("expected unchanged status, got %s", fetched.Status)
	}
	records, err := store.Transitions(ctx, meeting.ID)
	if err != nil {
		t.Fatalf("Transitions failed: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no records, got %d", len(records))
	}
}

func TestTransitionMissingMeeting(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	_, _, err := store.Transition(context.Background(), queue.Transition{
		MeetingID: 42,
		From:      queue.StatusCapturePending,
		To:        queue.StatusCaptureBotIsConnecting,
		Event:     queue.EventClaimCapture,
	})
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTransitionSetsMeetingFields(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	meeting := testsupport.NewMeeting(t, store, "fields")
	meeting = testsupport.MustTransition(t, store, meeting, queue.EventClaimCapture)

	started := time.Now().Add(-time.Minute).UTC()
	updated, record, err := store.Transition(ctx, queue.Transition{
		MeetingID: meeting.ID,
		From:      meeting.Status,
		To:        queue.StatusCaptureInProgress,
		Event:     queue.EventStartCapture,
		Actor:     "capture-1",
		Update:    queue.MeetingUpdate{StartDate: &started},
	})
	if err != nil {
		t.Fatalf("Transition failed: %v", err)
	}
	if updated.StartDate == nil || !updated.StartDate.Equal(started) {
		t.Fatalf("expected start date %v, got %v", started, updated.StartDate)
	}
	if record.Status != queue.StatusCaptureInProgress || record.MeetingID != meeting.ID {
		t.Fatalf("unexpected record: %+v", record)
	}
}

func TestCurrentTransitionStates(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	meeting := testsupport.NewMeeting(t, store, "history")

	if _, err := store.CurrentTransition(ctx, meeting.ID); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound before any transition, got %v", err)
	}

	meeting = testsupport.MustTransition(t, store, meeting, queue.EventClaimCapture)
	meeting = testsupport.MustTransition(t, store, meeting, queue.EventStartCapture)
	meeting = testsupport.MustTransition(t, store, meeting, queue.EventCompleteCapture)

	records, err := store.Transitions(ctx, meeting.ID)
	if err != nil {
		t.Fatalf("Transitions failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	for i := 1; i < len(records); i++ {
		if records[i].ID <= records[i-1].ID {
			t.Fatalf("records out of order: %+v", records)
		}
	}
	current, err := store.CurrentTransition(ctx, meeting.ID)
	if err != nil {
		t.Fatalf("CurrentTransition failed: %v", err)
	}
	if current.ID != records[2].ID || current.Status != queue.StatusTranscriptionPending {
		t.Fatalf("unexpected current record: %+v", current)
	}
}

func TestCountAheadAndStats(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	a := testsupport.NewMeeting(t, store, "a")
	b := testsupport.NewMeeting(t, store, "b")
	c := testsupport.NewMeeting(t, store, "c")
	testsupport.MustTransition(t, store, a, queue.EventClaimCapture)

	ahead, err := store.CountAhead(ctx, queue.StatusCapturePending, c.ID)
	if err != nil {
		t.Fatalf("CountAhead failed: %v", err)
	}
	if ahead != 1 {
		t.Fatalf("expected only %d ahead of %d, got %d", b.ID, c.ID, ahead)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats[queue.StatusCapturePending] != 2 || stats[queue.StatusCaptureBotIsConnecting] != 1 {
		t.Fatalf("unexpected stats: %v", stats)
	}
	summary := queue.Summarize(stats)
	if summary.Total != 3 || summary.Pending != 2 || summary.InProgress != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestStaleClaimsDetectsOldHeartbeats(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	meeting := testsupport.NewMeeting(t, store, "stale")
	claimed, err := store.Claim(ctx, queue.StatusCapturePending, "capture-1")
	if err != nil || claimed == nil {
		t.Fatalf("Claim failed: %v", err)
	}

	stale, err := store.StaleClaims(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("StaleClaims failed: %v", err)
	}
	if len(stale) != 0 {
		t.Fatalf("expected fresh claim to be ignored, got %d", len(stale))
	}

	stale, err = store.StaleClaims(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("StaleClaims failed: %v", err)
	}
	if len(stale) != 1 || stale[0].ID != meeting.ID {
		t.Fatalf("expected meeting %d to be stale, got %+v", meeting.ID, stale)
	}
	if stale[0].Status != queue.StatusCaptureBotIsConnecting {
		t.Fatalf("stale detection must not modify status, got %s", stale[0].Status)
	}
}

func TestRetryMovesFailedMeetingsToReentry(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	botFailed := testsupport.NewMeeting(t, store, "bot")
	botFailed = testsupport.MustTransition(t, store, botFailed, queue.EventClaimCapture)
	botFailed = testsupport.MustTransition(t, store, botFailed, queue.EventFailCaptureBot)

	captureFailed := testsupport.NewMeeting(t, store, "capture")
	captureFailed = testsupport.MustTransition(t, store, captureFailed, queue.EventClaimCapture)
	captureFailed = testsupport.MustTransition(t, store, captureFailed, queue.EventStartCapture)
	captureFailed = testsupport.MustTransition(t, store, captureFailed, queue.EventFailCapture)

	untouched := testsupport.NewMeeting(t, store, "pending")

	retried, err := store.Retry(ctx, "operator", botFailed.ID, captureFailed.ID, untouched.ID)
	if err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if len(retried) != 2 {
		t.Fatalf("expected 2 retried meetings, got %d", len(retried))
	}
	byID := map[int64]queue.Status{}
	for _, m := range retried {
		byID[m.ID] = m.Status
	}
	if byID[botFailed.ID] != queue.StatusCapturePending {
		t.Fatalf("bot failure should return to capture_pending, got %s", byID[botFailed.ID])
	}
	if byID[captureFailed.ID] != queue.StatusTranscriptionPending {
		t.Fatalf("capture failure should re-enter transcription, got %s", byID[captureFailed.ID])
	}

	current, err := store.CurrentTransition(ctx, captureFailed.ID)
	if err != nil {
		t.Fatalf("CurrentTransition failed: %v", err)
	}
	if current.Event != queue.EventInitTranscription || current.Actor != "operator" {
		t.Fatalf("unexpected retry record: %+v", current)
	}
}

func TestCheckHealthReportsCounts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	meeting := testsupport.NewMeeting(t, store, "health")
	testsupport.MustTransition(t, store, meeting, queue.EventClaimCapture)

	health, err := store.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("CheckHealth failed: %v", err)
	}
	if !health.DatabaseExists || !health.IntegrityCheck || len(health.MissingTables) != 0 {
		t.Fatalf("unexpected health: %+v", health)
	}
	if health.TotalMeetings != 1 || health.TotalRecords != 1 {
		t.Fatalf("unexpected counts: %+v", health)
	}
}

func TestTransitionRecordsAreAppendOnly(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	meeting := testsupport.NewMeeting(t, store, "append")
	testsupport.MustTransition(t, store, meeting, queue.EventClaimCapture)

	db, err := sql.Open("sqlite", store.Path())
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec(`UPDATE transition_records SET status = 'report_done'`); err == nil {
		t.Fatal("expected update of transition record to fail")
	}
	if _, err := db.Exec(`DELETE FROM transition_records`); err == nil {
		t.Fatal("expected delete of transition record to fail")
	}
	records, err := store.Transitions(context.Background(), meeting.ID)
	if err != nil {
		t.Fatalf("Transitions failed: %v", err)
	}
	if len(records) != 1 || records[0].Status != queue.StatusCaptureBotIsConnecting {
		t.Fatalf("records changed: %+v", records)
	}
}

func TestReopenKeepsData(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	meeting := testsupport.NewMeeting(t, store, "persist")
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened := testsupport.MustOpenStore(t, cfg)
	fetched, err := reopened.GetByID(context.Background(), meeting.ID)
	if err != nil {
		t.Fatalf("GetByID after reopen failed: %v", err)
	}
	if fetched.Name != "persist" {
		t.Fatalf("unexpected meeting after reopen: %+v", fetched)
	}
}

func TestOpenRejectsForeignSchemaVersion(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = store.Close()

	reopened, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("reopen with matching version: %v", err)
	}
	_ = reopened.Close()

	db, err := sql.Open("sqlite", cfg.SQLitePath())
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	if _, err := db.Exec("PRAGMA user_version = 99"); err != nil {
		t.Fatalf("stamp version: %v", err)
	}
	_ = db.Close()

	if _, err := queue.Open(cfg); !errors.Is(err, queue.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestLockedDatabaseFailsWithinAcquireTimeout(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Store.AcquireTimeout = 1
	store := testsupport.MustOpenStore(t, cfg)
	meeting := testsupport.NewMeeting(t, store, "locked")

	db, err := sql.Open("sqlite", store.Path())
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	conn, err := db.Conn(context.Background())
	if err != nil {
		t.Fatalf("Conn: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if _, err := conn.ExecContext(context.Background(), "BEGIN IMMEDIATE"); err != nil {
		t.Fatalf("take write lock: %v", err)
	}
	t.Cleanup(func() { _, _ = conn.ExecContext(context.Background(), "ROLLBACK") })

	start := time.Now()
	_, _, err = store.Transition(context.Background(), queue.Transition{
		MeetingID: meeting.ID,
		From:      queue.StatusCapturePending,
		To:        queue.StatusCaptureBotIsConnecting,
		Event:     queue.EventClaimCapture,
		Actor:     "worker",
	})
	elapsed := time.Since(start)
	if !errors.Is(err, services.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if elapsed > 3*time.Second {
		t.Fatalf("expected failure within the acquire timeout, took %v", elapsed)
	}
}
