package transport

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Channel is a duplex message channel to a monitored agent
type Channel interface {
	// Send writes one frame to the agent
	Send(data []byte) error
	// OnMessage installs the handler for inbound frames, replacing any previous one
	OnMessage(handler func(data []byte))
	// IsOpen reports whether the channel can still carry frames
	IsOpen() bool
	// Done is closed once the channel shuts down
	Done() <-chan struct{}
}

// Envelope is the wire frame exchanged with agents. Replies echo the request ID.
type Envelope struct {
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Raw is a payload written into the frame verbatim, without JSON encoding.
// It lets fault probes put bytes on the wire that a JSON encoder would sanitize.
type Raw []byte

// encodeFrame builds the outbound frame for a correlated request
func encodeFrame(id string, payload any) ([]byte, error) {
	idJSON, err := json.Marshal(id)
	if err != nil {
		return nil, err
	}

	var body []byte
	switch p := payload.(type) {
	case Raw:
		body = p
	case json.RawMessage:
		if !json.Valid(p) {
			return nil, fmt.Errorf("invalid raw json payload")
		}
		body = p
	default:
		body, err = json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("failed to encode payload: %w", err)
		}
	}

	var buf bytes.Buffer
	buf.Grow(len(idJSON) + len(body) + 32)
	buf.WriteString(`{"id":`)
	buf.Write(idJSON)
	buf.WriteString(`,"payload":`)
	if len(body) == 0 {
		buf.WriteString("null")
	} else {
		buf.Write(body)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// decodeEnvelope parses an inbound frame
func decodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return env, fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}
	if env.ID == "" {
		return env, fmt.Errorf("%w: missing id", ErrMalformedReply)
	}
	return env, nil
}
