package rendezvous

import (
	"encoding/json"
	nethttp "net/http"
	"net/http/pprof"
	"time"

	"github.com/gorilla/websocket"

	"warp-rally/netcode/internal/observability"
	"warp-rally/netcode/internal/telemetry"
)

// HTTPHandlerConfig carries the knobs for the service's HTTP surface.
type HTTPHandlerConfig struct {
	// AllowedOrigins lists the browser origins accepted on the websocket
	// upgrade. Empty means any origin, which is only sane in development.
	AllowedOrigins []string
	Logger         telemetry.Logger
	Observability  observability.Config
}

type diagnosticsPayload struct {
	Status        string            `json:"status"`
	ServerTime    int64             `json:"serverTime"`
	UptimeSeconds int64             `json:"uptimeSeconds"`
	Rooms         []RoomDiagnostics `json:"rooms"`
	Relayed       uint64            `json:"relayed"`
	RelayDropped  uint64            `json:"relayDropped"`
}

// NewHTTPHandler exposes the service over HTTP: a liveness probe, a
// diagnostics snapshot, and the websocket endpoint clients speak the
// signaling protocol on.
func NewHTTPHandler(svc *Service, cfg HTTPHandlerConfig) nethttp.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.LoggerFunc(func(string, ...any) {})
	}

	mux := nethttp.NewServeMux()

	mux.HandleFunc("/health", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		payload := struct {
			Status string `json:"status"`
			Rooms  int    `json:"rooms"`
		}{Status: "ok", Rooms: svc.registry.RoomCount()}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			logger.Printf("rendezvous: failed to encode health payload: %v", err)
		}
	})

	mux.HandleFunc("/diagnostics", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		now := time.Now()
		payload := diagnosticsPayload{
			Status:        "ok",
			ServerTime:    now.UnixMilli(),
			UptimeSeconds: int64(now.Sub(svc.started).Seconds()),
			Rooms:         svc.registry.DiagnosticsSnapshot(),
			Relayed:       svc.relayed.Load(),
			RelayDropped:  svc.relayDropped.Load(),
		}

		data, err := json.Marshal(payload)
		if err != nil {
			nethttp.Error(w, "failed to encode", nethttp.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	})

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}

	mux.HandleFunc("/ws", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Printf("rendezvous: upgrade failed: %v", err)
			return
		}
		svc.ServeConn(conn)
	})

	if cfg.Observability.EnablePprofTrace {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	return mux
}

func originChecker(allowed []string) func(*nethttp.Request) bool {
	if len(allowed) == 0 {
		return func(*nethttp.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		set[origin] = struct{}{}
	}
	return func(r *nethttp.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
