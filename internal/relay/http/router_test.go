package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/aussiebroadwan/ltirelay/internal/relay/domain"
	"github.com/aussiebroadwan/ltirelay/internal/relay/grader"
	"github.com/aussiebroadwan/ltirelay/internal/relay/metrics"
	"github.com/aussiebroadwan/ltirelay/internal/relay/service"
	"github.com/aussiebroadwan/ltirelay/internal/relay/store/drivers/memory"
	"github.com/aussiebroadwan/ltirelay/pkg/gradersdk"
	"github.com/aussiebroadwan/ltirelay/pkg/httpx"
	"github.com/aussiebroadwan/ltirelay/pkg/slogx"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

const lmsOrigin = "https://lms.example.edu"

type testEnv struct {
	router   *Router
	sessions *memory.Store
	metrics  *metrics.Metrics
}

func newTestEnv(t *testing.T, evaluator grader.Evaluator) *testEnv {
	t.Helper()

	sessions := memory.NewStore(0)
	m := metrics.New()
	r := NewRouter("test", sessions, httpx.NewOriginPolicy(lmsOrigin), slogx.Discard())
	r.Metrics = m
	r.LaunchService = &service.LaunchService{
		Sessions:    sessions,
		DefaultPage: service.DefaultPage,
		Metrics:     m,
	}
	r.GradingService = &service.GradingService{
		Evaluator: evaluator,
		Sessions:  sessions,
		Metrics:   m,
	}
	r.ApplyRoutes()

	return &testEnv{router: r, sessions: sessions, metrics: m}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	req.RemoteAddr = "192.0.2.10:4711"
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func formRequest(target string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Host = "tools.example.edu"
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func ltiForm() url.Values {
	return url.Values{
		domain.ParamOutcomeServiceURL: {"https://lms.example.edu/mod/lti/service.php"},
		domain.ParamResultSourcedID:   {"src-post"},
		domain.ParamConsumerKey:       {"moodle_key"},
	}
}

func TestLaunchPreflight(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/lti/launch", nil)
	req.Header.Set("Origin", lmsOrigin)
	rec := env.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, rec.Body.String())
	require.Equal(t, lmsOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	require.Equal(t, "GET, POST, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
	require.Zero(t, env.sessions.Len())
}

func TestLaunchForbiddenOrigin(t *testing.T) {
	env := newTestEnv(t, nil)

	req := formRequest("/lti/launch", ltiForm())
	req.Header.Set("Origin", "https://evil.example.com")
	rec := env.do(req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "403 Forbidden", rec.Body.String())
	require.Zero(t, env.sessions.Len())
}

func TestLaunchRedirect(t *testing.T) {
	env := newTestEnv(t, nil)

	req := formRequest("/lti/launch?file=../../pages/essay.html&lis_result_sourcedid=src-get&context_id=42", ltiForm())
	req.Header.Set("Referer", lmsOrigin+"/mod/lti/launch.php?id=3")
	rec := env.do(req)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "https", loc.Scheme)
	require.Equal(t, "tools.example.edu", loc.Host)
	require.Equal(t, "/essay.html", loc.Path)
	require.Equal(t, "lti", loc.Query().Get("mode"))

	token := loc.Query().Get("token")
	require.Len(t, token, 32)

	sess, err := env.sessions.Lookup(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, "src-post", sess.Params.ResultSourcedID, "POST wins over GET")
	require.Equal(t, "42", sess.Params.Get("context_id"))
	require.Empty(t, sess.Params.Get("file"))
}

func TestLaunchJSON(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name     string
		req      func() *http.Request
		wantMode string
		token    bool
	}{
		{
			name: "lti",
			req: func() *http.Request {
				r := formRequest("/lti/launch", ltiForm())
				r.Header.Set("Origin", lmsOrigin)
				return r
			},
			wantMode: "lti",
			token:    true,
		},
		{
			name: "partial via get",
			req: func() *http.Request {
				return httptest.NewRequest(http.MethodGet, "/lti/launch?context_id=42", nil)
			},
			wantMode: "partial",
			token:    true,
		},
		{
			name: "standalone",
			req: func() *http.Request {
				return httptest.NewRequest(http.MethodGet, "/?file=essay.html", nil)
			},
			wantMode: "standalone",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req()
			req.Header.Set("Accept", "application/json")
			rec := env.do(req)
			require.Equal(t, http.StatusOK, rec.Code)

			var resp gradersdk.LaunchResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			require.Equal(t, tt.wantMode, resp.Mode)
			require.Equal(t, tt.token, resp.Token != "")
			require.True(t, strings.HasPrefix(resp.Target, "https://"))
		})
	}
	require.Equal(t, 1.0, testutil.ToFloat64(env.metrics.Launches.WithLabelValues("standalone")))
}

func TestLaunchInfo(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/lti/launch", nil)
	req.Host = "tools.example.edu"
	rec := env.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	var info gradersdk.LaunchInfo
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&info))
	require.Equal(t, "active", info.Status)
	require.Equal(t, "https://tools.example.edu/C1-writing-correction-LTI.html", info.Target)
	require.Zero(t, env.sessions.Len())
}

func postGrade(env *testEnv, body string) (*httptest.ResponseRecorder, map[string]any) {
	req := httptest.NewRequest(http.MethodPost, "/grade", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", lmsOrigin)
	rec := env.do(req)

	var out map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

func TestGradeEmptySubmission(t *testing.T) {
	env := newTestEnv(t, nil)

	rec, out := postGrade(env, `{"studentInput":"  Write here ","defaultValue":"Write  here","token":"abc"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{
		"success": true,
		"feedback": "Error: Empty submission",
		"score_info": {"score": 0, "max": 5},
		"lti_notified": false
	}`, rec.Body.String())
	require.Equal(t, true, out["success"])
	require.Equal(t, lmsOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestGradeScored(t *testing.T) {
	env := newTestEnv(t, grader.Func(func(context.Context, string) (string, error) {
		return "Clear structure.\nfinal_grade: 3.5/5", nil
	}))

	rec, _ := postGrade(env, `{"studentInput":"My essay","defaultValue":""}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{
		"success": true,
		"feedback": "Clear structure.\nfinal_grade: 3.5/5",
		"score_info": {"score": 3.5, "max": 5},
		"lti_notified": false
	}`, rec.Body.String())
}

func TestGradeNoScore(t *testing.T) {
	env := newTestEnv(t, grader.Func(func(context.Context, string) (string, error) {
		return "Nice essay.", nil
	}))

	rec, _ := postGrade(env, `{"studentInput":"My essay"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{
		"success": true,
		"feedback": "Nice essay.",
		"score_info": {"score": null, "max": null},
		"lti_notified": false
	}`, rec.Body.String())
}

func TestGradeNeverAnswers5xx(t *testing.T) {
	tests := []struct {
		name      string
		evaluator grader.Evaluator
		body      string
		wantCode  int
		wantError string
	}{
		{
			name:      "malformed json",
			body:      `{"studentInput":`,
			wantCode:  http.StatusBadRequest,
			wantError: "invalid request body",
		},
		{
			name: "evaluator failure",
			evaluator: grader.Func(func(context.Context, string) (string, error) {
				return "", errors.New("upstream unavailable")
			}),
			body:      `{"studentInput":"essay"}`,
			wantCode:  http.StatusOK,
			wantError: "upstream unavailable",
		},
		{
			name: "evaluator panic",
			evaluator: grader.Func(func(context.Context, string) (string, error) {
				panic("boom")
			}),
			body:      `{"studentInput":"essay"}`,
			wantCode:  http.StatusOK,
			wantError: "internal error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.evaluator)
			rec, out := postGrade(env, tt.body)

			require.Equal(t, tt.wantCode, rec.Code)
			require.Equal(t, false, out["success"])
			require.Contains(t, out["error"], tt.wantError)
		})
	}
}

func TestGradePreflight(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/grade", nil)
	req.Header.Set("Origin", "https://elsewhere.example.com")
	rec := env.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "null", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "POST, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
}

func TestSystemEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/livez", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var live gradersdk.HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&live))
	require.Equal(t, "ok", live.Status)
	require.Equal(t, "test", live.Version)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var ready gradersdk.HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&ready))
	require.Equal(t, "ok", ready.Checks.Sessions)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "go_goroutines")
	require.NotEmpty(t, rec.Header().Get(slogx.RequestIDHeader))
}

func TestEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	h, ok := env.router.Endpoint(EndpointGrade)
	require.True(t, ok)

	req := httptest.NewRequest(http.MethodPost, "/cgi-bin/aigrader", strings.NewReader(`{"studentInput":""}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Error: Empty submission")

	h, ok = env.router.Endpoint(EndpointLaunch)
	require.True(t, ok)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/cgi-bin/lti-receiver?context_id=1", nil))
	require.Equal(t, http.StatusSeeOther, rec.Code)

	_, ok = env.router.Endpoint("admin")
	require.False(t, ok)
}

type unreachableSessions struct {
	*memory.Store
}

func (unreachableSessions) Ping(context.Context) error { return errors.New("connection refused") }

func TestReadyzDegraded(t *testing.T) {
	r := NewRouter("test", unreachableSessions{memory.NewStore(0)}, httpx.NewOriginPolicy(""), slogx.Discard())
	r.ApplyRoutes()

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp gradersdk.HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, "degraded", resp.Status)
	require.Equal(t, "error: connection refused", resp.Checks.Sessions)

	// Without metrics configured the endpoint is not mounted.
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
