package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/rryowa/botgate/internal/models"
	"github.com/rryowa/botgate/internal/util"
)

const (
	EventRefreshTokenReuse = "refresh_token_reuse"

	NotifierNone    = "none"
	NotifierWebhook = "webhook"
	NotifierKafka   = "kafka"

	defaultHTTPStatusThreshold = 300
	defaultNotifyTimeout       = 5 * time.Second
)

// SecurityNotifier publishes security events. Notify never blocks the caller on delivery.
type SecurityNotifier interface {
	Notify(ctx context.Context, event models.SecurityEvent)
}

// NewSecurityNotifier builds the notifier selected by cfg.Driver. The returned func releases its resources.
func NewSecurityNotifier(log *zap.SugaredLogger, cfg util.NotifierConfig) (SecurityNotifier, func(), error) {
	switch cfg.Driver {
	case "", NotifierNone:
		return NoopNotifier{}, func() {}, nil
	case NotifierWebhook:
		if cfg.WebhookURL == "" {
			return nil, nil, fmt.Errorf("%w: notifier.webhook_url is not set", util.ErrMissingConfig)
		}
		return NewWebhookNotifier(log, cfg.WebhookURL, cfg.Timeout), func() {}, nil
	case NotifierKafka:
		n := NewKafkaNotifier(log, cfg.KafkaBrokers, cfg.KafkaTopic, cfg.Timeout)
		return n, n.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown notifier driver %q", cfg.Driver)
	}
}

type NoopNotifier struct{}

func (NoopNotifier) Notify(context.Context, models.SecurityEvent) {}

type WebhookNotifier struct {
	client     *http.Client
	log        *zap.SugaredLogger
	webhookURL string
	timeout    time.Duration
}

func NewWebhookNotifier(log *zap.SugaredLogger, webhookURL string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = defaultNotifyTimeout
	}
	return &WebhookNotifier{
		client:     &http.Client{Timeout: timeout},
		log:        log,
		webhookURL: webhookURL,
		timeout:    timeout,
	}
}

func (s *WebhookNotifier) Notify(ctx context.Context, event models.SecurityEvent) {
	ctx = context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		payload, err := json.Marshal(event)
		if err != nil {
			s.log.Errorw("failed to marshal webhook payload", "error", err)
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewBuffer(payload))
		if err != nil {
			s.log.Errorw("failed to create webhook request", "error", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			s.log.Errorw("failed to send webhook", "error", err, "event", event.Type)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode >= defaultHTTPStatusThreshold {
			s.log.Warnw("webhook returned non-2xx status", "status", resp.StatusCode, "event", event.Type)
		}
	}()
}
