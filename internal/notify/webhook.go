// internal/notify/webhook.go
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/walletwatch/internal/alarm"
)

const (
	webhookTimeout     = 10 * time.Second
	webhookMaxAttempts = 3
)

// payload – тело POST-запроса вебхука.
type payload struct {
	ID                string  `json:"id"`
	UserID            string  `json:"userId"`
	Mint              string  `json:"mint"`
	Symbol            string  `json:"symbol,omitempty"`
	Type              string  `json:"type"`
	PercentChange     float64 `json:"percentChange"`
	WindowMinutes     int     `json:"windowMinutes"`
	ThresholdBreached float64 `json:"thresholdBreached"`
	Price             float64 `json:"price"`
	Message           string  `json:"message"`
	Timestamp         int64   `json:"timestamp"`
}

// WebhookDispatcher отправляет алерт JSON-POST'ом. 5xx и сетевые ошибки повторяются.
type WebhookDispatcher struct {
	url        string
	httpClient *http.Client
	retryDelay time.Duration
	logger     *zap.Logger
}

func NewWebhookDispatcher(url string, logger *zap.Logger) *WebhookDispatcher {
	return &WebhookDispatcher{
		url:        url,
		httpClient: &http.Client{Timeout: webhookTimeout},
		retryDelay: 500 * time.Millisecond,
		logger:     logger.Named("webhook"),
	}
}

func (d *WebhookDispatcher) Dispatch(ctx context.Context, event alarm.Event) error {
	body, err := json.Marshal(payload{
		ID:                event.ID,
		UserID:            event.UserID,
		Mint:              event.Mint.String(),
		Symbol:            event.Symbol,
		Type:              string(event.Type),
		PercentChange:     event.PercentChange,
		WindowMinutes:     event.WindowMinutes,
		ThresholdBreached: event.ThresholdBreached,
		Price:             event.Price,
		Message:           event.Message(),
		Timestamp:         event.Timestamp.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode alert: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.retryDelay
	b.RandomizationFactor = 0

	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, d.post(ctx, body)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(webhookMaxAttempts))
	if err != nil {
		d.logger.Warn("Webhook delivery failed",
			zap.String("alert_id", event.ID),
			zap.Error(err))
		return fmt.Errorf("webhook delivery failed: %w", err)
	}
	return nil
}

func (d *WebhookDispatcher) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	case resp.StatusCode >= 300:
		return backoff.Permanent(fmt.Errorf("webhook returned %d", resp.StatusCode))
	}
	return nil
}
