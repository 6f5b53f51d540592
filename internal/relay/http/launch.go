package http

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/aussiebroadwan/ltirelay/internal/relay/service"
	"github.com/aussiebroadwan/ltirelay/pkg/gradersdk"
	"github.com/aussiebroadwan/ltirelay/pkg/httpx"
	"github.com/aussiebroadwan/ltirelay/pkg/slogx"
)

// LaunchHandler receives LTI launches. OPTIONS preflights are answered by
// the CORS middleware in front of it.
type LaunchHandler struct {
	LaunchService *service.LaunchService
	Origins       httpx.OriginPolicy
}

func (h *LaunchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	switch r.Method {
	case http.MethodGet, http.MethodPost:
	default:
		w.Header().Set("Allow", "GET, POST, OPTIONS")
		httpx.WriteJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	// POSTs must come from an allow-listed LMS page.
	if r.Method == http.MethodPost && !h.Origins.AllowsRequest(r) {
		log.Warn("launch from disallowed origin",
			slog.String("origin", r.Header.Get("Origin")),
			slog.String("referer", r.Header.Get("Referer")),
		)
		httpx.NoCache(w)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, "403 Forbidden")
		return
	}

	// A bare GET is a liveness check from a human or a monitor.
	if r.Method == http.MethodGet && r.URL.RawQuery == "" {
		httpx.WriteJSON(w, http.StatusOK, gradersdk.LaunchInfo{
			Status: "active",
			Target: service.TargetURL(r.Host, "", h.LaunchService.DefaultPage),
		})
		return
	}

	values, err := httpx.MergedParams(w, r)
	if err != nil {
		log.Warn("unreadable launch parameters", slog.Any("error", err))
		httpx.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid launch parameters"})
		return
	}

	res := h.LaunchService.Launch(ctx, values, r.Host)

	if httpx.WantsJSON(r) {
		httpx.WriteJSON(w, http.StatusOK, gradersdk.LaunchResponse{
			Token:  res.Token,
			Mode:   string(res.Mode),
			Target: res.Target,
		})
		return
	}

	httpx.NoCache(w)
	http.Redirect(w, r, res.RedirectURL(), http.StatusSeeOther)
}
