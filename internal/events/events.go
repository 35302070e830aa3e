// Package events publishes coalesced monitor change notifications.
package events

import (
	"context"
	"time"
)

// TypeChanged signals that snapshots should be re-read
const TypeChanged = "changed"

// Change is the published payload. It carries no snapshot data.
type Change struct {
	Type string    `json:"type"`
	At   time.Time `json:"at"`
}

// Publisher delivers change notifications to external subscribers
type Publisher interface {
	Publish(ctx context.Context, change Change) error
	Close() error
}
