package httpx_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aussiebroadwan/ltirelay/pkg/httpx"
	"github.com/stretchr/testify/require"
)

func TestNewOriginPolicy(t *testing.T) {
	p := httpx.NewOriginPolicy(" https://lms.example.edu/ ,, https://moodle.example.org ")
	require.Equal(t, []string{"https://lms.example.edu", "https://moodle.example.org"}, p.Origins)
	require.Equal(t, []string{"Content-Type"}, p.Headers)

	require.Empty(t, httpx.NewOriginPolicy("").Origins)
}

func TestOriginPolicySetHeaders(t *testing.T) {
	tests := []struct {
		name            string
		origins         string
		origin          string
		wantOrigin      string
		wantCredentials string
	}{
		{
			name:            "listed origin echoed with credentials",
			origins:         "https://lms.example.edu",
			origin:          "https://lms.example.edu",
			wantOrigin:      "https://lms.example.edu",
			wantCredentials: "true",
		},
		{
			name:            "listed wins over wildcard",
			origins:         "*,https://lms.example.edu",
			origin:          "https://lms.example.edu",
			wantOrigin:      "https://lms.example.edu",
			wantCredentials: "true",
		},
		{
			name:       "wildcard without credentials",
			origins:    "*",
			origin:     "https://other.example.com",
			wantOrigin: "*",
		},
		{
			name:       "unlisted origin",
			origins:    "https://lms.example.edu",
			origin:     "https://evil.example.com",
			wantOrigin: "null",
		},
		{
			name:       "no origin header",
			origins:    "https://lms.example.edu",
			wantOrigin: "null",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := httpx.NewOriginPolicy(tt.origins).WithMethods(http.MethodGet, http.MethodPost, http.MethodOptions)
			req := httptest.NewRequest(http.MethodGet, "/lti/launch", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rec := httptest.NewRecorder()
			p.SetHeaders(rec, req)

			h := rec.Header()
			require.Equal(t, tt.wantOrigin, h.Get("Access-Control-Allow-Origin"))
			require.Equal(t, tt.wantCredentials, h.Get("Access-Control-Allow-Credentials"))
			require.Equal(t, "Origin", h.Get("Vary"))
			require.Equal(t, "GET, POST, OPTIONS", h.Get("Access-Control-Allow-Methods"))
			require.Equal(t, "Content-Type", h.Get("Access-Control-Allow-Headers"))
		})
	}
}

func TestOriginPolicyAllowsRequest(t *testing.T) {
	p := httpx.NewOriginPolicy("https://lms.example.edu")

	tests := []struct {
		name    string
		origin  string
		referer string
		want    bool
	}{
		{name: "allowed origin", origin: "https://lms.example.edu", want: true},
		{name: "allowed referer", referer: "https://lms.example.edu/mod/lti/launch.php?id=4", want: true},
		{name: "origin rejected referer allowed", origin: "https://evil.example.com", referer: "https://lms.example.edu/x", want: true},
		{name: "referer prefix trick", referer: "https://lms.example.edu.evil.com/x", want: false},
		{name: "disallowed origin", origin: "https://evil.example.com", want: false},
		{name: "neither header", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/lti/launch", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.referer != "" {
				req.Header.Set("Referer", tt.referer)
			}
			require.Equal(t, tt.want, p.AllowsRequest(req))
		})
	}
}

func TestRefererOrigin(t *testing.T) {
	origin, ok := httpx.RefererOrigin("https://lms.example.edu:8443/course/view.php?id=2")
	require.True(t, ok)
	require.Equal(t, "https://lms.example.edu:8443", origin)

	_, ok = httpx.RefererOrigin("/relative/path")
	require.False(t, ok)
}

func TestCORSMiddleware(t *testing.T) {
	called := false
	h := httpx.CORS(httpx.NewOriginPolicy("https://lms.example.edu"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusAccepted)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/grade", nil)
	req.Header.Set("Origin", "https://lms.example.edu")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, rec.Body.String())
	require.False(t, called)
	require.Equal(t, "https://lms.example.edu", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/grade", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.True(t, called)
	require.Equal(t, "null", rec.Header().Get("Access-Control-Allow-Origin"))
}
