package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"QuizMaster/internal/telemetry"
)

// Notifier delivers a free-text message to the quiz owner.
// Delivery is best effort: implementations never report failure.
type Notifier interface {
	Push(ctx context.Context, message string)
}

// Pushover sends notifications through the Pushover messages API.
type Pushover struct {
	endpoint   string
	token      string
	user       string
	httpClient *http.Client
	logger     *slog.Logger
	tel        telemetry.Providers
	failures   metric.Int64Counter
}

// NewPushover creates a Pushover notifier posting to endpoint.
func NewPushover(endpoint, token, user string, logger *slog.Logger, tel telemetry.Providers) (*Pushover, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if endpoint == "" {
		return nil, fmt.Errorf("pushover endpoint cannot be empty")
	}
	tel = tel.OrNoop()

	failures, err := tel.Meter.Int64Counter(
		"quiz.notifications.failed",
		metric.WithDescription("Notifications that could not be delivered"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create notification counter: %w", err)
	}

	return &Pushover{
		endpoint:   endpoint,
		token:      token,
		user:       user,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
		tel:        tel,
		failures:   failures,
	}, nil
}

// Push posts message to Pushover. Errors are logged and dropped.
func (p *Pushover) Push(ctx context.Context, message string) {
	ctx, span := p.tel.Tracer.Start(ctx, "notification")
	defer span.End()

	if err := p.send(ctx, message); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delivery failed")
		p.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("notifier", "pushover")))
		p.logger.Warn("notification not delivered", "error", err)
		return
	}
	p.logger.Info("notification sent", "length", len(message))
}

func (p *Pushover) send(ctx context.Context, message string) error {
	form := url.Values{
		"token":   {p.token},
		"user":    {p.user},
		"message": {message},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("content-type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("API error: %s - %s", resp.Status, string(body))
	}
	return nil
}
