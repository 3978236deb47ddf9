// Package sender hands one-time codes to whatever delivers them to guardians.
package sender

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/go-resty/resty/v2"

	"compliance/internal/verification/models"
	"compliance/pkg/platform/privacy"
)

// LogSender is for development: it records that a code was issued without
// ever writing the code itself.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, d models.Delivery) error {
	s.logger.InfoContext(ctx, "verification code ready for delivery",
		"challenge_id", d.ChallengeID.String(),
		"channel", channelFor(d.Method),
		"destination", privacy.MaskDestination(d.Destination),
		"expires_at", d.ExpiresAt,
	)
	return nil
}

// WebhookConfig points at the external notification gateway.
type WebhookConfig struct {
	URL        string
	Token      string
	Timeout    time.Duration
	RetryCount int
}

// WebhookSender POSTs each delivery to the notification gateway, which owns
// the email and SMS transports. A request is retried only when the connection
// could not be established, so a code is never posted twice. Each request
// carries the challenge id as its Idempotency-Key.
type WebhookSender struct {
	client *resty.Client
	logger *slog.Logger
}

type webhookPayload struct {
	ChallengeID string    `json:"challenge_id"`
	Channel     string    `json:"channel"`
	Destination string    `json:"destination"`
	Code        string    `json:"code"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type webhookError struct {
	Error string `json:"error"`
}

func NewWebhookSender(cfg WebhookConfig, logger *slog.Logger) *WebhookSender {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	client := resty.New().
		SetBaseURL(cfg.URL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(_ *resty.Response, err error) bool {
			return notDelivered(err)
		}).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.Token != "" {
		client.SetAuthToken(cfg.Token)
	}
	return &WebhookSender{client: client, logger: logger}
}

func (s *WebhookSender) Send(ctx context.Context, d models.Delivery) error {
	var failure webhookError
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", d.ChallengeID.String()).
		SetBody(webhookPayload{
			ChallengeID: d.ChallengeID.String(),
			Channel:     channelFor(d.Method),
			Destination: d.Destination,
			Code:        d.Code,
			ExpiresAt:   d.ExpiresAt.UTC(),
		}).
		SetError(&failure).
		Post("")
	if err != nil {
		return fmt.Errorf("notification gateway request: %w", err)
	}
	if resp.IsError() {
		s.logger.WarnContext(ctx, "notification gateway rejected delivery",
			"status", resp.StatusCode(),
			"error", failure.Error,
			"challenge_id", d.ChallengeID.String(),
			"destination", privacy.MaskDestination(d.Destination),
		)
		return fmt.Errorf("notification gateway returned %d", resp.StatusCode())
	}
	return nil
}

// notDelivered reports whether err means the request never reached the
// gateway. Timeouts and server errors are ambiguous and never retried.
func notDelivered(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

func channelFor(m models.Method) string {
	switch m {
	case models.MethodEmailOTP:
		return "email"
	case models.MethodSMSOTP:
		return "sms"
	default:
		return "none"
	}
}
