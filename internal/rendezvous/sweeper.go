package rendezvous

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"

	"warp-rally/netcode/internal/telemetry"
	"warp-rally/netcode/logging"
	logsession "warp-rally/netcode/logging/session"
)

const (
	sweepInterval     = time.Minute
	occupancyInterval = 5 * time.Minute
)

// StartSweeper schedules the service's background jobs: destroying rooms
// that sat idle past ttl, and a periodic occupancy line so operators can see
// load without hitting the diagnostics endpoint. The returned scheduler is
// already running; callers shut it down on exit.
func StartSweeper(svc *Service, ttl time.Duration, logger telemetry.Logger, pub logging.Publisher, metrics telemetry.Metrics) (gocron.Scheduler, error) {
	if logger == nil {
		logger = telemetry.LoggerFunc(func(string, ...any) {})
	}
	if pub == nil {
		pub = logging.NopPublisher()
	}
	if metrics == nil {
		metrics = telemetry.NopMetrics()
	}

	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(sweepInterval),
		gocron.NewTask(func() {
			sweepOnce(svc, ttl, logger, pub, metrics)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("schedule room sweep: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(occupancyInterval),
		gocron.NewTask(func() {
			count := svc.Registry().RoomCount()
			metrics.Store("rendezvous.rooms_live", uint64(count))
			logger.Printf("rendezvous: %d rooms live", count)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("schedule occupancy log: %w", err)
	}

	sched.Start()
	return sched, nil
}

// sweepOnce destroys rooms idle past ttl and logs each teardown, reporting
// how many rooms went.
func sweepOnce(svc *Service, ttl time.Duration, logger telemetry.Logger, pub logging.Publisher, metrics telemetry.Metrics) int {
	swept := svc.Registry().SweepIdle(ttl)
	for _, code := range swept {
		logger.Printf("rendezvous: swept idle room %s", code)
		logsession.RoomSwept(context.Background(), pub, 0, code,
			logsession.RoomSweptPayload{IdleSeconds: int64(ttl.Seconds())}, nil)
	}
	if len(swept) > 0 {
		metrics.Add("rendezvous.rooms_swept", uint64(len(swept)))
	}
	return len(swept)
}
