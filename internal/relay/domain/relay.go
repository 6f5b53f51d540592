package domain

// RelayState tracks an outcome report through validation, signing and
// delivery. Delivered, Rejected and Failed are terminal.
type RelayState string

const (
	RelayIdle       RelayState = "idle"
	RelayURLChecked RelayState = "url_checked"
	RelaySigned     RelayState = "signed"
	RelaySent       RelayState = "sent"
	RelayDelivered  RelayState = "delivered"
	RelayRejected   RelayState = "rejected"
	RelayFailed     RelayState = "failed"
)

// Terminal reports whether no further transition is possible.
func (s RelayState) Terminal() bool {
	switch s {
	case RelayDelivered, RelayRejected, RelayFailed:
		return true
	}
	return false
}

// RelayResult is the outcome of one report attempt. Err is nil only when
// State is RelayDelivered.
type RelayResult struct {
	State RelayState
	Err   error

	// StatusCode is the consumer's HTTP status when a response arrived.
	StatusCode int
}

// Delivered reports whether the LMS accepted the outcome.
func (r RelayResult) Delivered() bool { return r.State == RelayDelivered }
