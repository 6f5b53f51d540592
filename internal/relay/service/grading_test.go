package service

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/ltirelay/internal/relay/domain"
	"github.com/aussiebroadwan/ltirelay/internal/relay/grader"
	"github.com/aussiebroadwan/ltirelay/internal/relay/metrics"
	"github.com/aussiebroadwan/ltirelay/internal/relay/store/drivers/memory"
	"github.com/aussiebroadwan/ltirelay/pkg/ltix"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

// recordingSender remembers every outcome it was asked to send.
type recordingSender struct {
	mu     sync.Mutex
	scores []float64
	params []domain.LaunchParams
	result domain.RelayResult
}

func (r *recordingSender) Send(_ context.Context, params domain.LaunchParams, score float64) domain.RelayResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scores = append(r.scores, score)
	r.params = append(r.params, params)
	return r.result
}

func fixedFeedback(feedback string) grader.Evaluator {
	return grader.Func(func(context.Context, string) (string, error) { return feedback, nil })
}

func validLaunch() domain.LaunchParams {
	return domain.LaunchParams{
		OutcomeServiceURL: "https://lms.example.edu/outcomes",
		ResultSourcedID:   "src-1",
		ConsumerKey:       testConsumerKey,
	}
}

func TestGradeEmptySubmission(t *testing.T) {
	tests := []struct {
		name string
		sub  Submission
		want string
	}{
		{name: "blank", sub: Submission{StudentInput: "   \n\t"}, want: DefaultEmptyFeedback},
		{
			name: "untouched template",
			sub:  Submission{StudentInput: "Write  your\nanswer here", DefaultValue: "Write your answer here "},
			want: DefaultEmptyFeedback,
		},
		{
			name: "custom message",
			sub:  Submission{StudentInput: "", EmptyErrorMsg: "Please write something first."},
			want: "Please write something first.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			sender := &recordingSender{}
			m := metrics.New()
			svc := &GradingService{
				Evaluator: grader.Func(func(context.Context, string) (string, error) {
					called = true
					return "", nil
				}),
				Outcomes:  sender,
				SendGrade: true,
				Metrics:   m,
			}

			tt.sub.SessionToken = "whatever"
			out, err := svc.Grade(context.Background(), tt.sub)
			require.NoError(t, err)
			require.Equal(t, tt.want, out.Feedback)
			require.True(t, out.Graded)
			require.Equal(t, ltix.GradeResult{Score: 0, Max: 5}, out.Grade)
			require.False(t, out.LTINotified)
			require.False(t, called, "evaluator must not be called")
			require.Empty(t, sender.scores, "no outcome for empty submissions")
			require.Equal(t, 1.0, testutil.ToFloat64(m.GradingRequests.WithLabelValues(metrics.GradeEmpty)))
		})
	}
}

func TestGradeEmptySubmissionMax(t *testing.T) {
	svc := &GradingService{EmptySubmissionMax: 10}
	out, err := svc.Grade(context.Background(), Submission{})
	require.NoError(t, err)
	require.Equal(t, 10.0, out.Grade.Max)
}

func TestGradeReportsOutcome(t *testing.T) {
	sessions := memory.NewStore(time.Hour)
	sess, err := sessions.Create(context.Background(), validLaunch())
	require.NoError(t, err)

	sender := &recordingSender{result: domain.RelayResult{State: domain.RelayDelivered, StatusCode: http.StatusOK}}
	svc := &GradingService{
		Evaluator: fixedFeedback("Strong argument.\nFINAL_GRADE: 4/5"),
		Extractor: ltix.NewGradeExtractor("FINAL_GRADE"),
		Sessions:  sessions,
		Outcomes:  sender,
		SendGrade: true,
	}

	out, err := svc.Grade(context.Background(), Submission{StudentInput: "My essay", SessionToken: sess.Token})
	require.NoError(t, err)
	require.True(t, out.Graded)
	require.Equal(t, ltix.GradeResult{Score: 4, Max: 5}, out.Grade)
	require.True(t, out.LTINotified)
	require.Equal(t, []float64{0.8}, sender.scores)
	require.Equal(t, "src-1", sender.params[0].ResultSourcedID)
}

func TestGradeRelayFailureIsNotAnError(t *testing.T) {
	sessions := memory.NewStore(time.Hour)
	sess, err := sessions.Create(context.Background(), validLaunch())
	require.NoError(t, err)

	sender := &recordingSender{result: domain.RelayResult{State: domain.RelayFailed, Err: domain.ErrDeliveryFailure, StatusCode: 500}}
	svc := &GradingService{
		Evaluator: fixedFeedback("FINAL_GRADE: 3/5"),
		Sessions:  sessions,
		Outcomes:  sender,
		SendGrade: true,
	}

	out, err := svc.Grade(context.Background(), Submission{StudentInput: "My essay", SessionToken: sess.Token})
	require.NoError(t, err)
	require.True(t, out.Graded)
	require.False(t, out.LTINotified)
	require.Len(t, sender.scores, 1)
}

func TestGradeWithoutRelay(t *testing.T) {
	sessions := memory.NewStore(time.Hour)
	sess, err := sessions.Create(context.Background(), validLaunch())
	require.NoError(t, err)

	empty, err := sessions.Create(context.Background(), domain.LaunchParams{})
	require.NoError(t, err)

	expiring := memory.NewStore(time.Hour)
	old, err := expiring.Create(context.Background(), validLaunch())
	require.NoError(t, err)
	expiring.Now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	tests := []struct {
		name      string
		feedback  string
		token     string
		sendGrade bool
		sessions  *memory.Store
		graded    bool
	}{
		{name: "no token", feedback: "FINAL_GRADE: 5/5", sendGrade: true, sessions: sessions, graded: true},
		{name: "sending disabled", feedback: "FINAL_GRADE: 5/5", token: sess.Token, sessions: sessions, graded: true},
		{name: "no grade in feedback", feedback: "Nice essay.", token: sess.Token, sendGrade: true, sessions: sessions},
		{name: "unknown token", feedback: "FINAL_GRADE: 5/5", token: "nope", sendGrade: true, sessions: sessions, graded: true},
		{name: "traversal token", feedback: "FINAL_GRADE: 5/5", token: "../../etc/passwd", sendGrade: true, sessions: sessions, graded: true},
		{name: "session without params", feedback: "FINAL_GRADE: 5/5", token: empty.Token, sendGrade: true, sessions: sessions, graded: true},
		{name: "expired session", feedback: "FINAL_GRADE: 5/5", token: old.Token, sendGrade: true, sessions: expiring, graded: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &recordingSender{result: domain.RelayResult{State: domain.RelayDelivered}}
			svc := &GradingService{
				Evaluator: fixedFeedback(tt.feedback),
				Sessions:  tt.sessions,
				Outcomes:  sender,
				SendGrade: tt.sendGrade,
			}

			out, err := svc.Grade(context.Background(), Submission{StudentInput: "essay", SessionToken: tt.token})
			require.NoError(t, err)
			require.Equal(t, tt.feedback, out.Feedback)
			require.Equal(t, tt.graded, out.Graded)
			require.False(t, out.LTINotified)
			require.Empty(t, sender.scores)
		})
	}
}

func TestGradeEvaluatorFailure(t *testing.T) {
	m := metrics.New()
	svc := &GradingService{
		Evaluator: grader.Func(func(context.Context, string) (string, error) {
			return "", errors.New("quota exceeded")
		}),
		Metrics: m,
	}

	_, err := svc.Grade(context.Background(), Submission{StudentInput: "essay"})
	require.ErrorIs(t, err, domain.ErrEvaluator)
	require.ErrorContains(t, err, "quota exceeded")
	require.Equal(t, 1.0, testutil.ToFloat64(m.GradingRequests.WithLabelValues(metrics.GradeEvalError)))
}

func TestGradeEvaluatorTimeout(t *testing.T) {
	svc := &GradingService{
		Evaluator: grader.Func(func(ctx context.Context, _ string) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		}),
		EvaluatorTimeout: 20 * time.Millisecond,
	}

	_, err := svc.Grade(context.Background(), Submission{StudentInput: "essay"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGradeEndToEndWithRelay(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		wantNotified bool
	}{
		{name: "lms accepts", status: http.StatusOK, wantNotified: true},
		{name: "lms errors", status: http.StatusInternalServerError, wantNotified: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lms := newFakeLMS(t, tt.status)
			relay := newTestRelay(t, lms)

			sessions := memory.NewStore(time.Hour)
			sess, err := sessions.Create(context.Background(), launchFor(lms.URL+"/outcomes"))
			require.NoError(t, err)

			svc := &GradingService{
				Evaluator: fixedFeedback("FINAL_GRADE: 7.5 / 10"),
				Sessions:  sessions,
				Outcomes:  relay,
				SendGrade: true,
			}

			out, err := svc.Grade(context.Background(), Submission{StudentInput: "essay", SessionToken: sess.Token})
			require.NoError(t, err)
			require.Equal(t, ltix.GradeResult{Score: 7.5, Max: 10}, out.Grade)
			require.Equal(t, tt.wantNotified, out.LTINotified)
			require.EqualValues(t, 1, lms.calls.Load())
		})
	}
}

func TestGradeEndToEndTimeout(t *testing.T) {
	lms := newBlockingLMS(t)
	relay := newTestRelay(t, lms)
	relay.Timeout = 50 * time.Millisecond

	sessions := memory.NewStore(time.Hour)
	sess, err := sessions.Create(context.Background(), launchFor(lms.URL+"/outcomes"))
	require.NoError(t, err)

	svc := &GradingService{
		Evaluator: fixedFeedback("FINAL_GRADE: 5/5"),
		Sessions:  sessions,
		Outcomes:  relay,
		SendGrade: true,
	}

	out, err := svc.Grade(context.Background(), Submission{StudentInput: "essay", SessionToken: sess.Token})
	require.NoError(t, err)
	require.True(t, out.Graded)
	require.False(t, out.LTINotified)
}
