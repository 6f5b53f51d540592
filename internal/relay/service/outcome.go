package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/ltirelay/internal/relay/domain"
	"github.com/aussiebroadwan/ltirelay/internal/relay/metrics"
	"github.com/aussiebroadwan/ltirelay/pkg/ltix"
	"github.com/aussiebroadwan/ltirelay/pkg/oauthx"
	"github.com/aussiebroadwan/ltirelay/pkg/slogx"
	"github.com/google/uuid"
)

// DefaultOutcomeTimeout bounds a single delivery to the LMS.
const DefaultOutcomeTimeout = 15 * time.Second

// maxOutcomeResponseBytes bounds how much of the LMS reply is read for logging.
const maxOutcomeResponseBytes = 64 << 10

// OutcomeSender reports a normalised score for a launch.
type OutcomeSender interface {
	Send(ctx context.Context, params domain.LaunchParams, score float64) domain.RelayResult
}

// OutcomeRelay validates, signs and delivers a replaceResult request. It
// makes exactly one delivery attempt.
type OutcomeRelay struct {
	Policy  ltix.URLPolicy
	Secrets map[string]string
	Client  *http.Client
	Timeout time.Duration
	Metrics *metrics.Metrics

	// Now, Nonce and MessageID default to the wall clock, a random nonce
	// and a random UUID.
	Now       func() time.Time
	Nonce     func() string
	MessageID func() string
}

var _ OutcomeSender = (*OutcomeRelay)(nil)

// NewOutcomeRelay builds a relay whose client does not follow redirects. A
// redirect from the LMS is reported as a failed delivery.
func NewOutcomeRelay(policy ltix.URLPolicy, secrets map[string]string, timeout time.Duration) *OutcomeRelay {
	if timeout <= 0 {
		timeout = DefaultOutcomeTimeout
	}
	return &OutcomeRelay{
		Policy:  policy,
		Secrets: secrets,
		Timeout: timeout,
		Client: &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Send walks Idle -> URLChecked -> Signed -> Sent and stops in Delivered,
// Rejected or Failed. Only an HTTP 200 counts as Delivered.
func (r *OutcomeRelay) Send(ctx context.Context, params domain.LaunchParams, score float64) (result domain.RelayResult) {
	log := slogx.FromContext(ctx).With(
		slog.String("consumer_key", params.ConsumerKey),
		slog.String("score", ltix.FormatScore(score)),
	)
	result.State = domain.RelayIdle

	defer func() {
		r.Metrics.Relay(string(result.State))
		attrs := []any{slog.String("state", string(result.State))}
		if result.StatusCode != 0 {
			attrs = append(attrs, slog.Int("status", result.StatusCode))
		}
		if result.Err != nil {
			attrs = append(attrs, slog.Any("error", result.Err))
			log.Warn("outcome not delivered", attrs...)
			return
		}
		log.Info("outcome delivered", attrs...)
	}()

	// 1. The callback URL must be https on an allow-listed domain.
	endpoint, err := r.Policy.Validate(params.OutcomeServiceURL)
	if err != nil {
		return reject(err)
	}
	result.State = domain.RelayURLChecked

	// 2. The consumer key must map to a known secret.
	secret := r.Secrets[params.ConsumerKey]
	if params.ConsumerKey == "" || secret == "" {
		return reject(fmt.Errorf("%w: %q", domain.ErrUnknownConsumer, params.ConsumerKey))
	}

	// 3. Build and sign the replaceResult request.
	body, err := ltix.NewReplaceResultRequest(r.messageID(), params.ResultSourcedID, score)
	if err != nil {
		return fail(fmt.Errorf("%w: %w", domain.ErrSigningFailure, err), 0)
	}
	signer := oauthx.Signer{
		ConsumerKey:    params.ConsumerKey,
		ConsumerSecret: secret,
		Now:            r.Now,
		Nonce:          r.Nonce,
	}
	auth, err := signer.Sign(http.MethodPost, endpoint, body)
	if err != nil {
		return fail(fmt.Errorf("%w: %w", domain.ErrSigningFailure, err), 0)
	}
	result.State = domain.RelaySigned

	// 4. Deliver once, within the timeout.
	status, err := r.deliver(ctx, endpoint, body, auth.Header(), log)
	if err != nil {
		return fail(fmt.Errorf("%w: %w", domain.ErrDeliveryFailure, err), status)
	}
	result.State = domain.RelaySent

	if status != http.StatusOK {
		return fail(fmt.Errorf("%w: status %d", domain.ErrDeliveryFailure, status), status)
	}
	return domain.RelayResult{State: domain.RelayDelivered, StatusCode: status}
}

func (r *OutcomeRelay) deliver(ctx context.Context, endpoint string, body []byte, authorization string, log *slog.Logger) (int, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultOutcomeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", ltix.ContentType)
	req.Header.Set("Authorization", authorization)

	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}

	start := time.Now()
	resp, err := client.Do(req)
	r.Metrics.ObserveDelivery(time.Since(start).Seconds())
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	// The imsx status is informational; the HTTP status decides.
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxOutcomeResponseBytes))
	if err == nil {
		if out, perr := ltix.ParseOutcomeResponse(raw); perr == nil {
			log.Debug("outcome response",
				slog.String("code_major", out.CodeMajor),
				slog.String("severity", out.Severity),
				slog.String("description", out.Description),
			)
		}
	}
	return resp.StatusCode, nil
}

func (r *OutcomeRelay) messageID() string {
	if r.MessageID != nil {
		return r.MessageID()
	}
	return uuid.NewString()
}

func reject(err error) domain.RelayResult {
	return domain.RelayResult{State: domain.RelayRejected, Err: err}
}

func fail(err error, status int) domain.RelayResult {
	return domain.RelayResult{State: domain.RelayFailed, Err: err, StatusCode: status}
}
