package domain

import (
	"errors"

	"github.com/aussiebroadwan/ltirelay/pkg/ltix"
)

// Error kinds shared across the relay. Components wrap these with context
// and callers branch with errors.Is.
var (
	ErrInvalidURL       = ltix.ErrInvalidURL
	ErrUnknownConsumer  = errors.New("unknown consumer key")
	ErrSigningFailure   = errors.New("outcome signing failed")
	ErrDeliveryFailure  = errors.New("outcome delivery failed")
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionExpired   = errors.New("session expired")
	ErrSessionPersist   = errors.New("session could not be persisted")
	ErrMalformedGrade   = errors.New("no grade found in evaluator output")
	ErrMalformedRequest = errors.New("malformed request")
	ErrEvaluator        = errors.New("evaluator request failed")
)
