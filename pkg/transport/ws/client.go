package ws

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/tinyland-inc/beamcast/pkg/logger"
	"github.com/tinyland-inc/beamcast/pkg/wire"
)

// Client is the viewer-side connection to the gateway hub. Incoming pushes
// are routed to per-channel handlers on a single goroutine, so handlers see
// messages in delivery order.
type Client struct {
	url      string
	peerID   string
	token    string
	conn     *websocket.Conn
	mu       sync.Mutex
	handlers map[string]func(env wire.Envelope)
}

// NewClient prepares a client for the given hub URL ("ws://host/ws") and
// peer identity. Call Handle before Run so no early push is missed.
func NewClient(url, peerID, token string) *Client {
	return &Client{
		url:      url,
		peerID:   peerID,
		token:    token,
		handlers: make(map[string]func(env wire.Envelope)),
	}
}

// Handle registers the handler for one push channel.
func (c *Client) Handle(channel string, handler func(env wire.Envelope)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[channel] = handler
}

// Run connects and processes pushes until the connection drops or ctx is
// cancelled. It does not reconnect; the caller owns retry policy, and each
// reconnect is answered by a fresh full-history sync from the hub.
func (c *Client) Run(ctx context.Context) error {
	header := http.Header{}
	if c.token != "" {
		header.Set("X-Beamcast-Token", c.token)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url+"?peer="+c.peerID, header)
	if err != nil {
		return fmt.Errorf("ws: connecting to %s: %w", c.url, err)
	}
	c.conn = conn
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		var env wire.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("ws: read: %w", err)
		}

		c.mu.Lock()
		handler := c.handlers[env.Channel]
		c.mu.Unlock()
		if handler == nil {
			logger.DebugCF("ws", "No handler for channel", map[string]any{"channel": env.Channel})
			continue
		}
		handler(env)
	}
}
