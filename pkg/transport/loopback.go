package transport

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tinyland-inc/beamcast/pkg/wire"
)

// Handler receives one framed push message.
type Handler func(env wire.Envelope)

// Loopback is an in-process transport connecting the owner's core to peer
// handlers in the same process. It backs tests and single-process
// deployments; handlers run synchronously on the sender's goroutine, which
// preserves per-peer send order.
type Loopback struct {
	mu       sync.Mutex
	handlers map[string]Handler
}

func NewLoopback() *Loopback {
	return &Loopback{handlers: make(map[string]Handler)}
}

// Register connects a peer. A nil handler registers a silent peer that is
// connected but ignores pushes.
func (l *Loopback) Register(peerID string, handler Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers[peerID] = handler
}

// Unregister disconnects a peer. Subsequent sends to it fail.
func (l *Loopback) Unregister(peerID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.handlers, peerID)
}

func (l *Loopback) Send(ctx context.Context, peerID, channel string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	env, err := wire.NewEnvelope(channel, payload)
	if err != nil {
		return err
	}

	l.mu.Lock()
	handler, ok := l.handlers[peerID]
	l.mu.Unlock()
	if !ok {
		return fmt.Errorf("loopback: peer %s not connected", peerID)
	}
	if handler != nil {
		handler(env)
	}
	return nil
}

func (l *Loopback) ConnectedPeers() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	peers := make([]string, 0, len(l.handlers))
	for id := range l.handlers {
		peers = append(peers, id)
	}
	sort.Strings(peers)
	return peers
}
