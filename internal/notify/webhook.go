package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"agentwatch/internal/config"
	"agentwatch/internal/retry"
	"agentwatch/internal/version"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// WebhookNotifier represents webhook notifier
type WebhookNotifier struct {
	config *config.WebhookConfig
	logger *zap.Logger
	client *http.Client
}

// WebhookPayload represents the standard webhook payload structure
type WebhookPayload struct {
	EventType string         `json:"event_type"`
	EventID   string         `json:"event_id"`
	Timestamp time.Time      `json:"timestamp"`
	Summary   string         `json:"summary"`
	AgentID   string         `json:"agent_id,omitempty"`
	Hostname  string         `json:"hostname,omitempty"`
	Data      map[string]any `json:"data"`
}

// NewWebhookNotifier creates new webhook notifier
func NewWebhookNotifier(cfg *config.WebhookConfig, logger *zap.Logger) (*WebhookNotifier, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("webhook url is required")
	}

	client := &http.Client{
		Timeout: cfg.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			IdleConnTimeout:     90 * time.Second,
			MaxIdleConnsPerHost: 10,
		},
	}

	return &WebhookNotifier{
		config: cfg,
		logger: logger.Named("webhook"),
		client: client,
	}, nil
}

// Notify sends the event as a signed JSON payload
func (n *WebhookNotifier) Notify(ctx context.Context, event Event) error {
	hostname, _ := os.Hostname()

	data := map[string]any{
		"agent_name": event.AgentName,
		"framework":  event.Framework,
		"status":     event.Status,
	}
	if event.Cause != "" {
		data["cause"] = event.Cause
	}
	if event.Report != nil {
		data["report"] = event.Report
	}
	for k, v := range n.config.CommonData {
		data[k] = v
	}

	payload := WebhookPayload{
		EventType: string(event.Type),
		EventID:   uuid.NewString(),
		Timestamp: event.Timestamp,
		Summary:   event.Summary(),
		AgentID:   event.AgentID,
		Hostname:  hostname,
		Data:      data,
	}

	return n.sendWebhook(ctx, payload)
}

// sendWebhook posts the payload once; retries are handled by the manager
func (n *WebhookNotifier) sendWebhook(ctx context.Context, payload WebhookPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return retry.Permanent(fmt.Errorf("failed to marshal payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.config.URL, bytes.NewReader(data))
	if err != nil {
		return retry.Permanent(fmt.Errorf("failed to create request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent("webhook"))
	req.Header.Set("X-Agentwatch-Event", payload.EventType)
	req.Header.Set("X-Agentwatch-Delivery", payload.EventID)

	if n.config.Secret != "" {
		req.Header.Set("X-Agentwatch-Signature", calculateSignature(data, []byte(n.config.Secret)))
	}

	for k, v := range n.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}

	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			n.logger.Error("Failed to close response body", zap.Error(err))
		}
	}(resp.Body)

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("webhook request failed with status %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return retry.Permanent(fmt.Errorf("webhook request rejected with status %d", resp.StatusCode))
	}

	return nil
}

// calculateSignature calculates the hex HMAC-SHA256 of payload
func calculateSignature(payload []byte, secret []byte) string {
	h := hmac.New(sha256.New, secret)
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// Health checks the health of the notifier
func (n *WebhookNotifier) Health(_ context.Context) error {
	return nil
}
