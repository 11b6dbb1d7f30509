package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chainsafe/evm-indexer/pkg/model"
)

// Notification is the payload handed to notification channels.
type Notification struct {
	AlertID     uuid.UUID      `json:"alert_id"`
	RuleName    string         `json:"rule_name"`
	Type        string         `json:"type"`
	Severity    model.Severity `json:"severity"`
	Title       string         `json:"title"`
	Message     string         `json:"message"`
	TxHash      string         `json:"tx_hash,omitempty"`
	BlockNumber *uint64        `json:"block_number,omitempty"`
	Address     string         `json:"address,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// NotificationFor builds the payload for an alert.
func NotificationFor(a *model.Alert) Notification {
	return Notification{
		AlertID:     a.ID,
		RuleName:    a.RuleName,
		Type:        a.Type,
		Severity:    a.Severity,
		Title:       a.Title,
		Message:     a.Message,
		TxHash:      a.TxHash,
		BlockNumber: a.BlockNumber,
		Address:     a.Address,
		Metadata:    a.Metadata,
		CreatedAt:   a.CreatedAt,
	}
}

// Notifier delivers one notification. A nil error means delivery was confirmed.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// WebhookNotifier POSTs notifications as JSON.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier creates a webhook channel.
func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	return &WebhookNotifier{url: url, client: &http.Client{Timeout: timeout}}
}

// Notify implements Notifier. Client errors other than 429 are not retried.
func (w *WebhookNotifier) Notify(ctx context.Context, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to encode notification: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to build webhook request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	err = fmt.Errorf("webhook returned status %d", resp.StatusCode)
	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		return backoff.Permanent(err)
	}
	return err
}

// LogNotifier writes notifications to the log.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a log channel.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Notify(_ context.Context, n Notification) error {
	l.logger.Info("Alert notification",
		zap.String("alert_id", n.AlertID.String()),
		zap.String("rule", n.RuleName),
		zap.String("severity", string(n.Severity)),
		zap.String("title", n.Title),
		zap.String("message", n.Message))
	return nil
}

// MultiNotifier delivers to every channel and succeeds only when all of them do.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, ch := range m {
		if err := ch.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
