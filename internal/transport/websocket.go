package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WebSocketConfig represents websocket channel settings
type WebSocketConfig struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	PingInterval     time.Duration
	MaxMessageSize   int64
	Header           http.Header
}

func (cfg WebSocketConfig) withDefaults() WebSocketConfig {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 4 << 20
	}
	return cfg
}

// WebSocketChannel is a Channel over a gorilla websocket connection
type WebSocketChannel struct {
	conn   *websocket.Conn
	cfg    WebSocketConfig
	logger *zap.Logger

	writeMu sync.Mutex

	handlerMu sync.RWMutex
	handler   func([]byte)

	done      chan struct{}
	closeOnce sync.Once
}

// DialWebSocket connects to an agent endpoint and starts the read pump
func DialWebSocket(ctx context.Context, url string, cfg WebSocketConfig, logger *zap.Logger) (*WebSocketChannel, error) {
	cfg = cfg.withDefaults()
	dialer := websocket.Dialer{
		HandshakeTimeout: cfg.HandshakeTimeout,
		Proxy:            http.ProxyFromEnvironment,
	}

	conn, _, err := dialer.DialContext(ctx, url, cfg.Header)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}

	return NewWebSocketChannel(conn, cfg, logger.With(zap.String("endpoint", url))), nil
}

// NewWebSocketChannel wraps an established connection
func NewWebSocketChannel(conn *websocket.Conn, cfg WebSocketConfig, logger *zap.Logger) *WebSocketChannel {
	cfg = cfg.withDefaults()
	ch := &WebSocketChannel{
		conn:   conn,
		cfg:    cfg,
		logger: logger.Named("websocket"),
		done:   make(chan struct{}),
	}
	conn.SetReadLimit(cfg.MaxMessageSize)

	go ch.readPump()
	go ch.pingLoop()
	return ch
}

// Send writes one text frame
func (c *WebSocketChannel) Send(data []byte) error {
	if !c.IsOpen() {
		return ErrTransportClosed
	}

	c.writeMu.Lock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	err := c.conn.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()

	if err != nil {
		c.Close()
		return err
	}
	return nil
}

// OnMessage installs the inbound frame handler
func (c *WebSocketChannel) OnMessage(handler func([]byte)) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.handler = handler
}

// IsOpen reports whether the connection is still usable
func (c *WebSocketChannel) IsOpen() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// Done is closed when the connection shuts down
func (c *WebSocketChannel) Done() <-chan struct{} {
	return c.done
}

// Close sends a close frame and tears down the connection
func (c *WebSocketChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		// WriteControl is safe to call concurrently with WriteMessage
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = c.conn.Close()
	})
	return err
}

// readPump delivers every inbound frame to the handler until the connection fails
func (c *WebSocketChannel) readPump() {
	defer c.Close()

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("WebSocket read failed", zap.Error(err))
			}
			return
		}

		c.handlerMu.RLock()
		handler := c.handler
		c.handlerMu.RUnlock()

		if handler != nil {
			handler(message)
		}
	}
}

func (c *WebSocketChannel) pingLoop() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout))
			if err != nil {
				c.logger.Debug("Ping failed", zap.Error(err))
				c.Close()
				return
			}
		}
	}
}
