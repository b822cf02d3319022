package logging_test

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"warp-rally/netcode/logging"
	logsession "warp-rally/netcode/logging/session"
	"warp-rally/netcode/logging/sinks"
)

func newMemoryRouter(t *testing.T, cfg logging.Config, clock logging.Clock) (*logging.Router, *sinks.Memory) {
	t.Helper()
	mem := sinks.NewMemory(cfg.Memory.Capacity)
	router, err := logging.NewRouter(cfg, clock, log.New(io.Discard, "", 0), map[string]logging.Sink{
		"memory": mem,
	})
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	return router, mem
}

func closeRouter(t *testing.T, router *logging.Router) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := router.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestRouterDeliversToMemorySink(t *testing.T) {
	cfg := logging.DefaultConfig()
	cfg.EnabledSinks = []string{"memory"}
	stamp := time.Unix(1700, 0)
	router, mem := newMemoryRouter(t, cfg, logging.ClockFunc(func() time.Time { return stamp }))

	ctx := context.Background()
	router.Publish(ctx, logging.Event{
		Type:     logsession.EventPeerJoined,
		Severity: logging.SeverityInfo,
		Room:     "NOVA42",
	})
	explicit := time.Unix(900, 0)
	router.Publish(ctx, logging.Event{
		Type:     logsession.EventPeerLeft,
		Time:     explicit,
		Severity: logging.SeverityInfo,
		Room:     "NOVA42",
	})
	closeRouter(t, router)

	events := mem.Events()
	if len(events) != 2 {
		t.Fatalf("expected 2 events in memory sink, got %d", len(events))
	}
	if events[0].Type != logsession.EventPeerJoined || events[1].Type != logsession.EventPeerLeft {
		t.Fatalf("events out of order: %s, %s", events[0].Type, events[1].Type)
	}
	if !events[0].Time.Equal(stamp) {
		t.Fatalf("expected clock to stamp zero time, got %s", events[0].Time)
	}
	if !events[1].Time.Equal(explicit) {
		t.Fatalf("expected explicit time preserved, got %s", events[1].Time)
	}
	if stats := router.Stats(); stats.EventsTotal != 2 || stats.DroppedTotal != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	// Publishing after close is a no-op rather than a panic.
	router.Publish(ctx, logging.Event{Type: logsession.EventPeerJoined, Severity: logging.SeverityInfo})
	if got := len(mem.Events()); got != 2 {
		t.Fatalf("publish after close reached sink: %d events", got)
	}
}

func TestRouterFiltersBelowMinimumSeverity(t *testing.T) {
	cfg := logging.DefaultConfig()
	cfg.EnabledSinks = []string{"memory"}
	cfg.MinimumSeverity = logging.SeverityWarn
	router, mem := newMemoryRouter(t, cfg, nil)

	ctx := context.Background()
	router.Publish(ctx, logging.Event{Type: logsession.EventPeerJoined, Severity: logging.SeverityInfo})
	router.Publish(ctx, logging.Event{Type: logsession.EventHostMigrated, Severity: logging.SeverityError})
	router.Publish(ctx, logging.Event{Type: logsession.EventRoomSwept, Severity: logging.SeverityWarn})
	// Events without a type are ignored outright.
	router.Publish(ctx, logging.Event{Severity: logging.SeverityError})
	closeRouter(t, router)

	events := mem.Events()
	if len(events) != 2 {
		t.Fatalf("expected warn and error events, got %d", len(events))
	}
	if events[0].Type != logsession.EventHostMigrated || events[1].Type != logsession.EventRoomSwept {
		t.Fatalf("wrong events survived the floor: %s, %s", events[0].Type, events[1].Type)
	}
	if stats := router.Stats(); stats.EventsTotal != 2 {
		t.Fatalf("filtered events should not count, got %d", stats.EventsTotal)
	}
}

func TestRouterMergesConfigFields(t *testing.T) {
	cfg := logging.DefaultConfig()
	cfg.EnabledSinks = []string{"memory"}
	cfg.Fields = map[string]any{"build": "dev", "region": "eu"}
	router, mem := newMemoryRouter(t, cfg, nil)

	ctx := context.Background()
	router.Publish(ctx, logging.Event{
		Type:     logsession.EventRaceStarted,
		Severity: logging.SeverityInfo,
	})
	router.Publish(ctx, logging.Event{
		Type:     logsession.EventRaceOver,
		Severity: logging.SeverityInfo,
		Extra:    map[string]any{"build": "ci"},
	})
	closeRouter(t, router)

	events := mem.Events()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Extra["build"] != "dev" || events[0].Extra["region"] != "eu" {
		t.Fatalf("config fields missing from extra: %+v", events[0].Extra)
	}
	if events[1].Extra["build"] != "ci" {
		t.Fatalf("event extra should win over config fields, got %v", events[1].Extra["build"])
	}
	if events[1].Extra["region"] != "eu" {
		t.Fatalf("absent keys should still merge, got %+v", events[1].Extra)
	}
}
