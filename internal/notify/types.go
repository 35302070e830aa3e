package notify

import (
	"context"
	"time"

	"agentwatch/internal/types"
)

// NotifierType represents the type of notifier
type NotifierType string

const (
	NotifierSlack   NotifierType = "slack"
	NotifierWebhook NotifierType = "webhook"
)

// EventType identifies what an alert is about
type EventType string

const (
	EventAgentError   EventType = "agent.error"
	EventAgentStopped EventType = "agent.stopped"
	EventTestFailed   EventType = "test.failed"
)

// Event is one alert delivered to every enabled notifier
type Event struct {
	Type      EventType         `json:"type"`
	AgentID   string            `json:"agent_id"`
	AgentName string            `json:"agent_name"`
	Framework string            `json:"framework,omitempty"`
	Status    types.AgentStatus `json:"status"`
	Cause     string            `json:"cause,omitempty"`
	Report    *types.TestReport `json:"report,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Notifier represents notifier interface
type Notifier interface {
	// Notify delivers an event
	Notify(ctx context.Context, event Event) error

	// Health checks the health of the notifier
	Health(ctx context.Context) error
}

// Summary returns a one-line human readable description of the event
func (e Event) Summary() string {
	name := e.AgentName
	if name == "" {
		name = e.AgentID
	}
	switch e.Type {
	case EventAgentError:
		if e.Cause != "" {
			return "Agent " + name + " entered error state: " + e.Cause
		}
		return "Agent " + name + " entered error state"
	case EventAgentStopped:
		return "Agent " + name + " stopped"
	case EventTestFailed:
		if e.Report != nil {
			return "Agent " + name + " failed " + e.Report.TestType + " test"
		}
		return "Agent " + name + " failed a test"
	}
	return string(e.Type) + " for agent " + name
}
