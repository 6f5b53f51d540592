package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/aussiebroadwan/ltirelay/internal/relay/domain"
	"github.com/aussiebroadwan/ltirelay/internal/relay/grader"
	"github.com/aussiebroadwan/ltirelay/internal/relay/metrics"
	"github.com/aussiebroadwan/ltirelay/internal/relay/store"
	"github.com/aussiebroadwan/ltirelay/pkg/ltix"
	"github.com/aussiebroadwan/ltirelay/pkg/slogx"
)

const (
	// DefaultEvaluatorTimeout bounds a single AI call.
	DefaultEvaluatorTimeout = 120 * time.Second

	// DefaultEmptySubmissionMax is the maximum reported with an empty submission.
	DefaultEmptySubmissionMax = 5

	// DefaultEmptyFeedback is returned for an empty submission when the
	// page did not supply its own message.
	DefaultEmptyFeedback = "Error: Empty submission"
)

// Submission is one grading request from the activity page.
type Submission struct {
	StudentInput  string
	DefaultValue  string
	EmptyErrorMsg string
	SessionToken  string
}

// Grading is the result of grading a submission.
type Grading struct {
	Feedback string

	// Grade is only meaningful when Graded is true.
	Grade  ltix.GradeResult
	Graded bool

	// LTINotified is true only when the LMS accepted the outcome.
	LTINotified bool
}

type GradingService struct {
	Evaluator          grader.Evaluator
	Extractor          ltix.GradeExtractor
	Sessions           store.Sessions
	Outcomes           OutcomeSender
	SendGrade          bool
	EvaluatorTimeout   time.Duration
	EmptySubmissionMax float64
	Metrics            *metrics.Metrics
}

// Grade evaluates a submission and, when it carries a session token and a
// grade was found, reports the normalised score to the LMS. Only an
// evaluator failure is returned as an error; a missing session or a failed
// relay just leaves LTINotified false.
func (s *GradingService) Grade(ctx context.Context, sub Submission) (Grading, error) {
	log := slogx.FromContext(ctx)

	input := strings.TrimSpace(sub.StudentInput)
	def := strings.TrimSpace(sub.DefaultValue)

	// 1. Empty submissions and untouched templates are answered locally.
	if input == "" || stripSpace(input) == stripSpace(def) {
		s.Metrics.Grading(metrics.GradeEmpty)
		feedback := sub.EmptyErrorMsg
		if feedback == "" {
			feedback = DefaultEmptyFeedback
		}
		maxScore := s.EmptySubmissionMax
		if maxScore <= 0 {
			maxScore = DefaultEmptySubmissionMax
		}
		return Grading{
			Feedback: feedback,
			Grade:    ltix.GradeResult{Score: 0, Max: maxScore},
			Graded:   true,
		}, nil
	}

	// 2. Ask the evaluator.
	feedback, err := s.evaluate(ctx, input)
	if err != nil {
		s.Metrics.Grading(metrics.GradeEvalError)
		log.Error("evaluator failed", slog.Any("error", err))
		return Grading{}, fmt.Errorf("%w: %w", domain.ErrEvaluator, err)
	}

	out := Grading{Feedback: feedback}

	// 3. Find the grade line.
	grade, ok := s.extractor().Extract(feedback)
	if !ok {
		s.Metrics.Grading(metrics.GradeNoScore)
		log.Warn("no grade in evaluator output", slog.Any("error", domain.ErrMalformedGrade))
		return out, nil
	}
	s.Metrics.Grading(metrics.GradeScored)
	out.Grade, out.Graded = grade, true

	// 4. Report it when the submission belongs to a launch.
	if sub.SessionToken == "" || !s.SendGrade || s.Outcomes == nil {
		return out, nil
	}
	params, ok := s.lookup(ctx, sub.SessionToken)
	if !ok {
		return out, nil
	}

	// The report goes out even if the browser has already gone away.
	res := s.Outcomes.Send(context.WithoutCancel(ctx), params, grade.Normalized())
	out.LTINotified = res.Delivered()
	return out, nil
}

func (s *GradingService) evaluate(ctx context.Context, input string) (string, error) {
	if s.Evaluator == nil {
		return "", errors.New("no evaluator configured")
	}
	timeout := s.EvaluatorTimeout
	if timeout <= 0 {
		timeout = DefaultEvaluatorTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.Evaluator.Evaluate(ctx, input)
}

func (s *GradingService) extractor() ltix.GradeExtractor {
	if s.Extractor == (ltix.GradeExtractor{}) {
		return ltix.NewGradeExtractor(ltix.DefaultGradeIdentifier)
	}
	return s.Extractor
}

// lookup resolves a session token. Any failure means "no session".
func (s *GradingService) lookup(ctx context.Context, token string) (domain.LaunchParams, bool) {
	log := slogx.FromContext(ctx)

	if s.Sessions == nil {
		return domain.LaunchParams{}, false
	}
	sess, err := s.Sessions.Lookup(ctx, token)
	switch {
	case errors.Is(err, store.ErrExpired):
		log.Info("session expired, grade not reported")
		return domain.LaunchParams{}, false
	case errors.Is(err, store.ErrNotFound):
		log.Info("session not found, grade not reported")
		return domain.LaunchParams{}, false
	case err != nil:
		log.Warn("session lookup failed, grade not reported", slog.Any("error", err))
		return domain.LaunchParams{}, false
	}
	if sess.Params.IsEmpty() {
		log.Info("session has no launch parameters, grade not reported")
		return domain.LaunchParams{}, false
	}
	return sess.Params, true
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
