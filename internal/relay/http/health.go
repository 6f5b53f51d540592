package http

import (
	"context"
	"net/http"
	"time"

	"github.com/aussiebroadwan/ltirelay/internal/relay/store"
	"github.com/aussiebroadwan/ltirelay/pkg/gradersdk"
	"github.com/aussiebroadwan/ltirelay/pkg/httpx"
)

// readyTimeout bounds the store ping behind /readyz.
const readyTimeout = 2 * time.Second

// HealthHandlers serve the liveness and readiness probes.
type HealthHandlers struct {
	StartTime time.Time
	Version   string
	Sessions  store.Sessions
}

func (h HealthHandlers) report(status string) gradersdk.HealthResponse {
	return gradersdk.HealthResponse{
		Status:  status,
		Uptime:  time.Since(h.StartTime).Round(time.Second).String(),
		Version: h.Version,
	}
}

// Live answers 200 while the process can serve requests at all.
func (h HealthHandlers) Live(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, h.report("ok"))
}

// Ready answers 503 while the session store does not respond.
func (h HealthHandlers) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	resp := h.report("ok")
	resp.Checks = &gradersdk.HealthChecks{Sessions: "ok"}
	code := http.StatusOK

	if err := h.Sessions.Ping(ctx); err != nil {
		resp.Status = "degraded"
		resp.Checks.Sessions = "error: " + err.Error()
		code = http.StatusServiceUnavailable
	}
	httpx.WriteJSON(w, code, resp)
}
