// Package store persists test report history.
package store

import (
	"context"
	"time"

	"agentwatch/internal/types"
)

// DefaultListLimit caps ListReports when no limit is given
const DefaultListLimit = 50

// Store persists TestReports
type Store interface {
	SaveReport(ctx context.Context, report *types.TestReport) error
	ListReports(ctx context.Context, agentID string, limit int) ([]*types.TestReport, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
	Close() error
}
