package realtime

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const defaultDialTimeout = 15 * time.Second

// DialConfig carries everything needed to open a backend session.
type DialConfig struct {
	// URL is the full websocket endpoint including the model query parameter.
	URL    string
	APIKey string

	// HandshakeTimeout bounds the dial when the context has no deadline.
	HandshakeTimeout time.Duration
}

// Client is one websocket connection to the speech-model backend. Writes are
// serialized; reads are expected from a single goroutine.
type Client struct {
	conn *websocket.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// Dial opens the backend websocket with bearer auth and the realtime beta
// header.
func Dial(ctx context.Context, cfg DialConfig) (*Client, error) {
	headers := make(http.Header)
	headers.Set("Authorization", "Bearer "+cfg.APIKey)
	headers.Set("OpenAI-Beta", "realtime=v1")

	timeout := cfg.HandshakeTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}

	dialCtx := ctx
	var cancel context.CancelFunc
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		dialCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	dialer := websocket.DefaultDialer
	if dialer == nil {
		dialer = &websocket.Dialer{}
	}

	conn, resp, err := dialer.DialContext(dialCtx, cfg.URL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial realtime backend (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial realtime backend: %w", err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) ReadMessage() (int, []byte, error) {
	return c.conn.ReadMessage()
}

func (c *Client) WriteMessage(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(messageType, data)
}

func (c *Client) SetWriteDeadline(t time.Time) error {
	return c.conn.SetWriteDeadline(t)
}

// Close sends a close frame and tears down the connection. Safe to call more
// than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(2*time.Second))
		c.writeMu.Unlock()
		_ = c.conn.Close()
	})
	return nil
}
