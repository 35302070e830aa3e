package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"agentwatch/internal/config"
	"agentwatch/internal/retry"
	"agentwatch/internal/types"
	"agentwatch/internal/version"

	"go.uber.org/zap"
)

// SlackNotifier represents Slack notifier
type SlackNotifier struct {
	config *config.SlackConfig
	logger *zap.Logger
	client *http.Client
}

// SlackMessage represents Slack message
type SlackMessage struct {
	Channel     string            `json:"channel,omitempty"`
	Username    string            `json:"username,omitempty"`
	IconEmoji   string            `json:"icon_emoji,omitempty"`
	Text        string            `json:"text,omitempty"`
	Attachments []SlackAttachment `json:"attachments,omitempty"`
}

// SlackAttachment represents Slack attachment
type SlackAttachment struct {
	Color     string       `json:"color"`
	Title     string       `json:"title"`
	Text      string       `json:"text"`
	Fields    []SlackField `json:"fields,omitempty"`
	Footer    string       `json:"footer"`
	Timestamp int64        `json:"ts"`
}

// SlackField represents Slack field
type SlackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// NewSlackNotifier creates new SlackNotifier
func NewSlackNotifier(cfg *config.SlackConfig, logger *zap.Logger) (*SlackNotifier, error) {
	if cfg.WebhookURL == "" {
		return nil, fmt.Errorf("slack webhook URL is required")
	}

	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:    10,
			IdleConnTimeout: 30 * time.Second,
		},
	}

	return &SlackNotifier{
		config: cfg,
		logger: logger.Named("slack"),
		client: client,
	}, nil
}

// Notify sends event as a single attachment
func (n *SlackNotifier) Notify(ctx context.Context, event Event) error {
	return n.sendMessage(ctx, n.buildMessage(event))
}

func (n *SlackNotifier) buildMessage(event Event) SlackMessage {
	fields := []SlackField{
		{Title: "Agent", Value: event.AgentName, Short: true},
		{Title: "Status", Value: string(event.Status), Short: true},
	}
	if event.Framework != "" {
		fields = append(fields, SlackField{Title: "Framework", Value: event.Framework, Short: true})
	}
	if event.Cause != "" {
		fields = append(fields, SlackField{Title: "Cause", Value: event.Cause})
	}
	if r := event.Report; r != nil {
		fields = append(fields,
			SlackField{Title: "Test", Value: r.TestType, Short: true},
			SlackField{Title: "Duration", Value: fmt.Sprintf("%d ms", r.DurationMs), Short: true},
		)
	}

	return SlackMessage{
		Channel:   n.config.Channel,
		Username:  n.config.Username,
		IconEmoji: n.config.IconEmoji,
		Attachments: []SlackAttachment{{
			Color:     eventColor(event),
			Title:     string(event.Type),
			Text:      event.Summary(),
			Fields:    fields,
			Footer:    event.AgentID,
			Timestamp: event.Timestamp.Unix(),
		}},
	}
}

func eventColor(event Event) string {
	switch {
	case event.Type == EventAgentStopped:
		return "warning"
	case event.Status == types.AgentStatusError, event.Type == EventTestFailed:
		return "danger"
	}
	return "good"
}

// sendMessage sends message to Slack
func (n *SlackNotifier) sendMessage(ctx context.Context, msg SlackMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return retry.Permanent(fmt.Errorf("failed to marshal message: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.config.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return retry.Permanent(fmt.Errorf("failed to create request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent("slack"))

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			n.logger.Error("Failed to close response body", zap.Error(err))
		}
	}(resp.Body)

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack API error: status=%d, body=%s", resp.StatusCode, string(body))
	}

	return nil
}

// Health checks the health of the notifier
func (n *SlackNotifier) Health(_ context.Context) error {
	return nil
}
