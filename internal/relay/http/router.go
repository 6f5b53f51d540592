package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/ltirelay/internal/relay/metrics"
	"github.com/aussiebroadwan/ltirelay/internal/relay/service"
	"github.com/aussiebroadwan/ltirelay/internal/relay/store"
	"github.com/aussiebroadwan/ltirelay/pkg/httpx"
	"github.com/aussiebroadwan/ltirelay/pkg/slogx"
)

// Endpoint names accepted by Router.Endpoint.
const (
	EndpointLaunch = "launch"
	EndpointGrade  = "grade"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
	origins      httpx.OriginPolicy

	sessions       store.Sessions
	LaunchService  *service.LaunchService
	GradingService *service.GradingService
	Metrics        *metrics.Metrics // Optional: /metrics is only served when set
}

func NewRouter(
	buildVersion string,
	sessions store.Sessions,
	origins httpx.OriginPolicy,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
		origins:      origins,
		sessions:     sessions,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		httpx.Recover(http.StatusInternalServerError, map[string]string{"error": "internal error"}),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerLaunch()
	r.registerGrade()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

// Endpoint returns a single endpoint with the global middleware applied,
// whatever the request path. CGI deployments install one script per
// endpoint and use this instead of the mux.
func (r *Router) Endpoint(name string) (http.Handler, bool) {
	var h http.Handler
	switch name {
	case EndpointLaunch:
		h = r.launchHandler()
	case EndpointGrade:
		h = r.gradeHandler()
	default:
		return nil, false
	}
	return httpx.Chain(h, r.middlewares...), true
}

func (r *Router) launchHandler() http.Handler {
	h := &LaunchHandler{
		LaunchService: r.LaunchService,
		Origins:       r.origins,
	}

	// Launches create sessions - moderate rate limit by IP
	return httpx.Chain(h,
		httpx.CORS(r.origins.WithMethods(http.MethodGet, http.MethodPost, http.MethodOptions)),
		httpx.RateLimitByIP(httpx.ModerateLimit),
	)
}

func (r *Router) gradeHandler() http.Handler {
	h := &GradeHandler{GradingService: r.GradingService}

	// Every grade costs an AI call - strict rate limit by IP.
	// Grading never answers 5xx, so panics are recovered into a 200 here.
	return httpx.Chain(h,
		httpx.CORS(r.origins.WithMethods(http.MethodPost, http.MethodOptions)),
		httpx.Recover(http.StatusOK, gradeFailure(errInternal)),
		httpx.RateLimitByIP(httpx.StrictLimit),
	)
}

func (r *Router) registerLaunch() {
	launch := r.launchHandler()

	for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodOptions} {
		r.Mux.Handle(method+" /lti/launch", launch)
		r.Mux.Handle(method+" /{$}", launch)
	}
}

func (r *Router) registerGrade() {
	grade := r.gradeHandler()

	r.Mux.Handle("POST /grade", grade)
	r.Mux.Handle("OPTIONS /grade", grade)
}

func (r *Router) registerSystem() {
	health := HealthHandlers{
		StartTime: r.startTime,
		Version:   r.buildVersion,
		Sessions:  r.sessions,
	}

	// Probes and scrapes poll often - lenient rate limit by IP
	probe := httpx.RateLimitByIP(httpx.LenientLimit)
	r.Mux.Handle("GET /livez", probe(http.HandlerFunc(health.Live)))
	r.Mux.Handle("GET /readyz", probe(http.HandlerFunc(health.Ready)))

	if r.Metrics != nil {
		r.Mux.Handle("GET /metrics", probe(r.Metrics.Handler()))
	}
}
