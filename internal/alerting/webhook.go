package alerting

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/poolguard/internal/pool"
)

// Alert is the JSON payload posted for an unhealthy snapshot.
type Alert struct {
	ID       string        `json:"id"`
	Target   string        `json:"target"`
	Status   pool.Status   `json:"status"`
	Summary  string        `json:"summary"`
	Snapshot pool.Snapshot `json:"snapshot"`
	SentAt   time.Time     `json:"sent_at"`
}

// NewAlert builds the payload for snap.
func NewAlert(snap pool.Snapshot) Alert {
	return Alert{
		ID:       uuid.NewString(),
		Target:   snap.Target,
		Status:   snap.Status,
		Summary:  Summarize(snap),
		Snapshot: snap,
		SentAt:   time.Now().UTC(),
	}
}

// Summarize renders a one-line description of snap.
func Summarize(snap pool.Snapshot) string {
	if snap.StatsError != "" {
		return fmt.Sprintf("%s pool %s: stats unavailable: %s", snap.Target, snap.Status, snap.StatsError)
	}
	return fmt.Sprintf("%s pool %s: %.1f%% utilized (%d/%d), %d errors, %d timeouts",
		snap.Target, snap.Status, snap.UtilizationPct,
		snap.ActiveConnections, snap.PoolSize+snap.Overflow,
		snap.ErrorCount, snap.TimeoutCount)
}

// WebhookConfig configures a Webhook.
type WebhookConfig struct {
	URL          string
	Timeout      time.Duration
	MaxRetries   int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	Headers      map[string]string
}

// Webhook posts alerts as JSON. Transient failures (connection errors and
// 5xx responses) are retried by go-retryablehttp.
type Webhook struct {
	client *resty.Client
	url    string
	budget time.Duration
	logger *zap.Logger
}

// NewWebhook creates a webhook sender.
func NewWebhook(cfg WebhookConfig, logger *zap.Logger) *Webhook {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.RetryWaitMin <= 0 {
		cfg.RetryWaitMin = 500 * time.Millisecond
	}
	if cfg.RetryWaitMax < cfg.RetryWaitMin {
		cfg.RetryWaitMax = 10 * cfg.RetryWaitMin
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = max(cfg.MaxRetries, 0)
	retryClient.RetryWaitMin = cfg.RetryWaitMin
	retryClient.RetryWaitMax = cfg.RetryWaitMax
	retryClient.Logger = leveledLogger{logger.Sugar()}

	client := resty.NewWithClient(retryClient.StandardClient()).
		SetTimeout(cfg.Timeout).
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "poolguard-alert/1.0").
		SetHeaders(cfg.Headers)

	retries := time.Duration(retryClient.RetryMax)
	budget := cfg.Timeout*(retries+1) + cfg.RetryWaitMax*retries

	return &Webhook{client: client, url: cfg.URL, budget: budget, logger: logger}
}

// Budget is the longest a Send may take: every attempt timing out plus the
// longest wait between retries.
func (w *Webhook) Budget() time.Duration {
	return w.budget
}

// Send posts one alert for snap. The delivery runs under its own Budget
// deadline; ctx contributes values only, so a short-lived caller context
// does not cut retries short.
func (w *Webhook) Send(ctx context.Context, snap pool.Snapshot) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.budget)
	defer cancel()

	alert := NewAlert(snap)
	resp, err := w.client.R().
		SetContext(ctx).
		SetBody(alert).
		Post(w.url)
	if err != nil {
		return fmt.Errorf("failed to deliver alert %s: %w", alert.ID, err)
	}
	if resp.IsError() {
		return fmt.Errorf("alert %s rejected: %s", alert.ID, resp.Status())
	}

	w.logger.Debug("Alert delivered",
		zap.String("alert_id", alert.ID),
		zap.String("target", alert.Target),
		zap.Int("status_code", resp.StatusCode()),
	)
	return nil
}

// Sink adapts the webhook to pool.AlertSink. Delivery errors are logged.
func (w *Webhook) Sink() pool.AlertSink {
	return func(ctx context.Context, snap pool.Snapshot) {
		if err := w.Send(ctx, snap); err != nil {
			w.logger.Error("Failed to send alert", zap.String("target", snap.Target), zap.Error(err))
		}
	}
}

// leveledLogger adapts zap to retryablehttp.LeveledLogger.
type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, kv ...any) { l.s.Errorw(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...any)  { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...any) { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...any)  { l.s.Warnw(msg, kv...) }

var _ retryablehttp.LeveledLogger = leveledLogger{}
