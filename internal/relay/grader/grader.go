// Package grader calls the AI provider that evaluates student submissions.
package grader

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	// ProviderOpenAI speaks the OpenAI chat completions API, or anything
	// compatible with it.
	ProviderOpenAI = "openai"

	// ProviderGoogle speaks the Gemini API.
	ProviderGoogle = "google"
)

// DefaultTemperature keeps feedback close to deterministic.
const DefaultTemperature = 0.2

// studentTextPrefix introduces the submission in the user turn.
const studentTextPrefix = "Student Text:\n"

var (
	ErrUnknownProvider = errors.New("unknown AI provider")
	ErrMissingAPIKey   = errors.New("AI API key is required")
	ErrEmptyResponse   = errors.New("AI provider returned no content")
)

// Evaluator produces free-form feedback for a submission. The feedback is
// expected to carry a grade line the extractor can find.
type Evaluator interface {
	Evaluate(ctx context.Context, studentInput string) (string, error)
}

// Config selects and configures an Evaluator.
type Config struct {
	Provider           string
	APIKey             string
	APIURL             string
	Model              string
	SystemInstructions string
	Temperature        float32
}

// New builds the Evaluator for cfg.Provider. An empty provider means OpenAI.
func New(ctx context.Context, cfg Config) (Evaluator, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderOpenAI:
		return NewOpenAI(cfg), nil
	case ProviderGoogle:
		return NewGemini(ctx, cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}

// Func adapts a plain function to Evaluator.
type Func func(ctx context.Context, studentInput string) (string, error)

func (f Func) Evaluate(ctx context.Context, studentInput string) (string, error) {
	return f(ctx, studentInput)
}
