package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/chrissnell/altiguard/internal/constants"
	"github.com/chrissnell/altiguard/internal/types"
)

// WebhookPayload is the JSON document POSTed for every alert.
type WebhookPayload struct {
	AlertType types.AlertType `json:"alert_type"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Timestamp time.Time       `json:"timestamp"`
}

// Webhook POSTs alerts to an HTTP endpoint. Any 2xx reply counts as delivered.
type Webhook struct {
	url    string
	client *http.Client
	logger *zap.SugaredLogger
	now    func() time.Time
}

// NewWebhook creates a Webhook notifier. timeout bounds each request.
func NewWebhook(url string, timeout time.Duration, logger *zap.SugaredLogger) *Webhook {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger,
		now:    time.Now,
	}
}

func (w *Webhook) SendAlertNotification(ctx context.Context, alertType types.AlertType, title, message string) bool {
	if err := w.send(ctx, WebhookPayload{
		AlertType: alertType,
		Title:     title,
		Message:   message,
		Timestamp: w.now().UTC(),
	}); err != nil {
		w.logger.Warnw("webhook alert failed", "url", w.url, "error", err)
		return false
	}
	return true
}

func (w *Webhook) send(ctx context.Context, p WebhookPayload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", constants.ProductName+"/"+constants.Version)

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return nil
}
