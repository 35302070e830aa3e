package logs

import (
	"testing"
	"time"

	"agentwatch/internal/types"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		raw       string
		wantLevel types.LogLevel
		wantMsg   string
		wantAgent string
		wantTime  time.Time
		wantMeta  bool
	}{
		{
			name:      "structured",
			raw:       `{"timestamp":"2024-04-30T08:00:00Z","level":"error","message":"boom","agent":"X","metadata":{"step":3}}`,
			wantLevel: types.LogLevelError,
			wantMsg:   "boom",
			wantAgent: "X",
			wantTime:  time.Date(2024, 4, 30, 8, 0, 0, 0, time.UTC),
			wantMeta:  true,
		},
		{
			name:      "structured without agent uses label",
			raw:       `{"level":"warning","message":"slow"}`,
			wantLevel: types.LogLevelWarn,
			wantMsg:   "slow",
			wantAgent: "worker",
			wantTime:  now,
		},
		{
			name:      "epoch millis",
			raw:       `{"timestamp":1714564800000,"level":"debug","message":"tick"}`,
			wantLevel: types.LogLevelDebug,
			wantMsg:   "tick",
			wantAgent: "worker",
			wantTime:  time.UnixMilli(1714564800000),
		},
		{
			name:      "plain text",
			raw:       "Starting crew kickoff\n",
			wantLevel: types.LogLevelInfo,
			wantMsg:   "Starting crew kickoff",
			wantAgent: "worker",
			wantTime:  now,
		},
		{
			name:      "broken json",
			raw:       `{"level":"error","message":`,
			wantLevel: types.LogLevelInfo,
			wantMsg:   `{"level":"error","message":`,
			wantAgent: "worker",
			wantTime:  now,
		},
		{
			name:      "json without log fields",
			raw:       `{"foo":"bar"}`,
			wantLevel: types.LogLevelInfo,
			wantMsg:   `{"foo":"bar"}`,
			wantAgent: "worker",
			wantTime:  now,
		},
		{
			name:      "unparseable timestamp",
			raw:       `{"timestamp":"yesterday","level":"fatal","message":"down"}`,
			wantLevel: types.LogLevelError,
			wantMsg:   "down",
			wantAgent: "worker",
			wantTime:  now,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := Parse(tt.raw, "worker", now)
			assert.Equal(t, tt.wantLevel, e.Level)
			assert.Equal(t, tt.wantMsg, e.Message)
			assert.Equal(t, tt.wantAgent, e.AgentName)
			assert.True(t, tt.wantTime.Equal(e.Timestamp), "got %s", e.Timestamp)
			if tt.wantMeta {
				assert.Equal(t, float64(3), e.Metadata["step"])
			}
		})
	}
}
