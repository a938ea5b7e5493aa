package notifications_test

import (
	"context"
	"os"
	"testing"
	"time"

	"meetingflow/internal/config"
	"meetingflow/internal/logging"
	"meetingflow/internal/notifications"
)

func TestLocalBusDeliversToMatchingStage(t *testing.T) {
	bus := notifications.NewLocalBus()
	defer bus.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	transcription, err := bus.Subscribe(ctx, "transcription")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	report, err := bus.Subscribe(ctx, "report")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if err := bus.Publish(ctx, notifications.Wakeup{Stage: "transcription", MeetingID: 7, Status: "transcription_pending"}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case wakeup := <-transcription:
		if wakeup.MeetingID != 7 {
			t.Fatalf("unexpected wake-up: %+v", wakeup)
		}
	case <-time.After(time.Second):
		t.Fatal("transcription subscriber did not receive the wake-up")
	}
	select {
	case wakeup := <-report:
		t.Fatalf("report subscriber got %+v", wakeup)
	default:
	}
}

func TestLocalBusClosesOnContextEnd(t *testing.T) {
	bus := notifications.NewLocalBus()
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := bus.Subscribe(ctx, "capture")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("subscription not closed after cancel")
	}
}

func TestLocalBusDropsWhenSubscriberIsSlow(t *testing.T) {
	bus := notifications.NewLocalBus()
	defer bus.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if _, err := bus.Subscribe(ctx, "report"); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			_ = bus.Publish(ctx, notifications.Wakeup{Stage: "report", MeetingID: int64(i)})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
}

func TestNewBusWithoutRedisIsLocal(t *testing.T) {
	bus, err := notifications.NewBus(context.Background(), config.Notifications{}, logging.NewNop())
	if err != nil {
		t.Fatalf("NewBus failed: %v", err)
	}
	defer bus.Close()
	if _, ok := bus.(*notifications.LocalBus); !ok {
		t.Fatalf("expected *LocalBus, got %T", bus)
	}
}

func TestRedisBusRoundTrip(t *testing.T) {
	addr := os.Getenv("MEETINGFLOW_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("MEETINGFLOW_TEST_REDIS_ADDR not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	bus, err := notifications.NewRedisBus(ctx, config.Notifications{RedisAddr: addr, ChannelPrefix: "meetingflow-test"}, logging.NewNop())
	if err != nil {
		t.Fatalf("NewRedisBus failed: %v", err)
	}
	defer bus.Close()

	ch, err := bus.Subscribe(ctx, "capture")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if err := bus.Publish(ctx, notifications.Wakeup{Stage: "capture", MeetingID: 3, Status: "capture_pending"}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	select {
	case wakeup := <-ch:
		if wakeup.MeetingID != 3 || wakeup.Status != "capture_pending" {
			t.Fatalf("unexpected wake-up: %+v", wakeup)
		}
	case <-ctx.Done():
		t.Fatal("wake-up not received")
	}
}
