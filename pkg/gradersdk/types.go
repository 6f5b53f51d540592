package gradersdk

// GradeRequest is the body of POST /grade.
type GradeRequest struct {
	// StudentInput is the submission text.
	StudentInput string `json:"studentInput"`

	// DefaultValue is the placeholder the activity page pre-fills. A
	// submission equal to it (ignoring whitespace) counts as empty.
	DefaultValue string `json:"defaultValue"`

	// EmptyErrorMsg replaces the default feedback for empty submissions.
	EmptyErrorMsg string `json:"emptyErrorMsg,omitempty"`

	// SessionToken ties the submission to a launch. Token is accepted as an
	// alias for older pages.
	SessionToken string `json:"session_token,omitempty"`
	Token        string `json:"token,omitempty"`
}

// ScoreInfo is the raw grade found in the feedback. Both fields are nil
// when the evaluator gave no grade.
type ScoreInfo struct {
	Score *float64 `json:"score"`
	Max   *float64 `json:"max"`
}

// GradeResponse is the body returned by POST /grade.
type GradeResponse struct {
	Success     bool       `json:"success"`
	Feedback    string     `json:"feedback,omitempty"`
	Error       string     `json:"error,omitempty"`
	ScoreInfo   *ScoreInfo `json:"score_info,omitempty"`
	LTINotified bool       `json:"lti_notified"`
}

// LaunchResponse is the JSON form of a launch, returned when the client
// asks for application/json instead of a redirect.
type LaunchResponse struct {
	Token  string `json:"token,omitempty"`
	Mode   string `json:"mode"`
	Target string `json:"target"`

	// Location is the redirect target when the relay answered with 303.
	Location string `json:"-"`
}

// LaunchInfo is returned by a bare GET on the launch endpoint.
type LaunchInfo struct {
	Status string `json:"status"`
	Target string `json:"target"`
}

// HealthResponse represents the response structure for health check endpoints.
// Used by both /livez and /readyz endpoints (readyz includes additional Checks field).
type HealthResponse struct {
	// Status indicates the overall health status (e.g., "ok")
	Status string `json:"status"`

	// Uptime is the service uptime duration as a string (e.g., "1h23m45s")
	Uptime string `json:"uptime,omitempty"`

	// Version is the service version string
	Version string `json:"version,omitempty"`

	// Checks contains readiness check results (only for /readyz)
	Checks *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks reports the state of the relay's dependencies.
type HealthChecks struct {
	// Sessions is the session store status.
	Sessions string `json:"sessions"`
}

// Float returns a pointer to v, for building ScoreInfo values.
func Float(v float64) *float64 { return &v }
