package logs

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"agentwatch/internal/types"
)

// structuredLine is the JSON shape agents are expected to log
type structuredLine struct {
	Timestamp json.RawMessage `json:"timestamp"`
	Level     string          `json:"level"`
	Message   string          `json:"message"`
	Metadata  map[string]any  `json:"metadata"`
	Agent     string          `json:"agent"`
}

// Parse turns a raw line into an entry. Lines that are not structured JSON
// become plain info entries attributed to the source label.
func Parse(raw, label string, now time.Time) types.LogEntry {
	line := strings.TrimRight(raw, "\r\n")

	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, "{") {
		var s structuredLine
		if err := json.Unmarshal([]byte(trimmed), &s); err == nil && (s.Message != "" || s.Level != "") {
			entry := types.LogEntry{
				Timestamp: parseTimestamp(s.Timestamp, now),
				Level:     types.ParseLogLevel(s.Level),
				Message:   s.Message,
				Metadata:  s.Metadata,
				AgentName: s.Agent,
			}
			if entry.AgentName == "" {
				entry.AgentName = label
			}
			return entry
		}
	}

	return types.LogEntry{
		Timestamp: now,
		Level:     types.LogLevelInfo,
		Message:   line,
		AgentName: label,
	}
}

// parseTimestamp accepts RFC3339 strings and unix seconds or milliseconds
func parseTimestamp(raw json.RawMessage, fallback time.Time) time.Time {
	if len(raw) == 0 || string(raw) == "null" {
		return fallback
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts
			}
		}
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			return fromEpoch(n)
		}
		return fallback
	}

	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return fromEpoch(n)
	}
	return fallback
}

func fromEpoch(n float64) time.Time {
	if n > 1e12 {
		return time.UnixMilli(int64(n))
	}
	sec := int64(n)
	return time.Unix(sec, int64((n-float64(sec))*1e9))
}
