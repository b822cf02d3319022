package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"warp-rally/netcode/internal/observability"
	"warp-rally/netcode/internal/rendezvous"
	"warp-rally/netcode/internal/telemetry"
	"warp-rally/netcode/logging"
	loggingSinks "warp-rally/netcode/logging/sinks"
)

const (
	defaultPort    = 3001
	defaultRoomTTL = 10 * time.Minute
)

type Config struct {
	Logger        telemetry.Logger
	Observability observability.Config
}

// Run boots the rendezvous service: logging router, room registry, sweeper
// jobs, and the HTTP surface. It blocks until ctx is cancelled or the
// listener fails.
func Run(ctx context.Context, cfg Config) error {
	telemetryLogger := cfg.Logger
	if telemetryLogger == nil {
		telemetryLogger = telemetry.WrapLogger(log.Default())
	}

	logConfig := logging.DefaultConfig()
	sinks := map[string]logging.Sink{
		"console": loggingSinks.NewConsole(os.Stdout, logConfig.Console),
	}
	if path := os.Getenv("REND_LOG_JSON"); path != "" {
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open json log %s: %w", path, err)
		}
		defer file.Close()
		sinks["json"] = loggingSinks.NewJSON(file, logConfig.JSON.FlushInterval)
		logConfig.EnabledSinks = append(logConfig.EnabledSinks, "json")
	}

	router, err := logging.NewRouter(logConfig, logging.ClockFunc(time.Now), log.Default(), sinks)
	if err != nil {
		return fmt.Errorf("construct logging router: %w", err)
	}
	defer func() {
		if cerr := router.Close(context.Background()); cerr != nil {
			telemetryLogger.Printf("failed to close logging router: %v", cerr)
		}
	}()

	port := defaultPort
	if raw := os.Getenv("REND_PORT"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil {
			port = value
		} else {
			telemetryLogger.Printf("invalid REND_PORT=%q: %v", raw, err)
		}
	}

	roomTTL := defaultRoomTTL
	if raw := os.Getenv("REND_ROOM_TTL"); raw != "" {
		if value, err := time.ParseDuration(raw); err == nil {
			roomTTL = value
		} else {
			telemetryLogger.Printf("invalid REND_ROOM_TTL=%q: %v", raw, err)
		}
	}

	var allowedOrigins []string
	if raw := os.Getenv("REND_ALLOWED_ORIGINS"); raw != "" {
		for _, origin := range strings.Split(raw, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				allowedOrigins = append(allowedOrigins, origin)
			}
		}
	}

	observabilityCfg := cfg.Observability
	if raw := os.Getenv("ENABLE_PPROF_TRACE"); raw != "" {
		if value, err := strconv.ParseBool(raw); err == nil {
			observabilityCfg.EnablePprofTrace = value
		} else {
			telemetryLogger.Printf("invalid ENABLE_PPROF_TRACE=%q: %v", raw, err)
		}
	}

	registry := rendezvous.NewRegistry(time.Now)
	svc := rendezvous.NewService(registry, telemetryLogger, router)

	sweeper, err := rendezvous.StartSweeper(svc, roomTTL, telemetryLogger, router,
		telemetry.WrapMetrics(router.Metrics()))
	if err != nil {
		return fmt.Errorf("start sweeper: %w", err)
	}
	defer func() {
		if serr := sweeper.Shutdown(); serr != nil {
			telemetryLogger.Printf("failed to stop sweeper: %v", serr)
		}
	}()

	handler := rendezvous.NewHTTPHandler(svc, rendezvous.HTTPHandlerConfig{
		AllowedOrigins: allowedOrigins,
		Logger:         telemetryLogger,
		Observability:  observabilityCfg,
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: handler}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if serr := srv.Shutdown(shutdownCtx); serr != nil {
			telemetryLogger.Printf("shutdown: %v", serr)
		}
	}()

	telemetryLogger.Printf("rendezvous listening on %s (room ttl %s)", srv.Addr, roomTTL)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("rendezvous server failed: %w", err)
	}
	return nil
}
