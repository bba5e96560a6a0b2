package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/turtacn/aegis/internal/domain/models"
	"github.com/turtacn/aegis/pkg/constants"
	"github.com/turtacn/aegis/pkg/logger"
)

// WebhookSink notifies an external endpoint of high-severity events. Delivery
// is best effort: a slow or down endpoint never backs up the dispatcher
// beyond the request timeout.
type WebhookSink struct {
	url    string
	client *http.Client
	log    logger.Logger
}

// NewWebhookSink creates a sink posting to the given URL.
func NewWebhookSink(url string, log logger.Logger) *WebhookSink {
	return &WebhookSink{
		url: url,
		client: &http.Client{
			Timeout: constants.DefaultWebhookTimeout,
		},
		log: log.WithComponent("audit_webhook"),
	}
}

// Write posts the event as JSON. Events below HIGH severity are skipped; the
// webhook is an alerting channel, not a mirror of the audit log.
func (s *WebhookSink) Write(ctx context.Context, event *models.AuditEvent) error {
	if event.Severity != constants.SeverityHigh && event.Severity != constants.SeverityCritical {
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Close is a no-op.
func (s *WebhookSink) Close() error {
	return nil
}
