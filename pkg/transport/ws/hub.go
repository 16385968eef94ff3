// Package ws implements the peer messaging contract over websockets.
//
// The gateway mounts Hub as an http.Handler; each viewer (and the owner's
// own client) connects with its peer id and receives framed wire.Envelope
// pushes. A per-connection outbox goroutine keeps sends ordered without
// letting one slow peer stall the dispatch pipeline.
package ws

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tinyland-inc/beamcast/pkg/auth"
	"github.com/tinyland-inc/beamcast/pkg/logger"
	"github.com/tinyland-inc/beamcast/pkg/utils"
	"github.com/tinyland-inc/beamcast/pkg/wire"
)

const (
	writeTimeout = 10 * time.Second
	outboxDepth  = 64
)

// ConnectHook is invoked after a peer's connection is accepted, before any
// dispatch can target it. The history store uses it to send the mandatory
// full-history sync.
type ConnectHook func(peerID string)

type peerConn struct {
	id       string
	conn     *websocket.Conn
	outbox   chan wire.Envelope
	done     chan struct{}
	stopOnce sync.Once
}

// Hub accepts peer connections and implements transport.Sender and
// transport.Roster for the owner-side core.
type Hub struct {
	authToken string
	upgrader  websocket.Upgrader

	mu      sync.Mutex
	peers   map[string]*peerConn
	onConn  ConnectHook
	closing bool
}

// NewHub creates a hub. authToken, when non-empty, must be presented by
// connecting peers in the X-Beamcast-Token header.
func NewHub(authToken string) *Hub {
	return &Hub{
		authToken: authToken,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		peers: make(map[string]*peerConn),
	}
}

// OnConnect registers the hook run for every newly accepted peer.
func (h *Hub) OnConnect(hook ConnectHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onConn = hook
}

// ServeHTTP upgrades a peer connection. The peer identifies itself with the
// `peer` query parameter; duplicate connections replace the previous one.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !auth.Equal(r.Header.Get("X-Beamcast-Token"), h.authToken) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	peerID := r.URL.Query().Get("peer")
	if err := utils.ValidatePeerID(peerID); err != nil {
		http.Error(w, "invalid peer id", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WarnCF("ws", "Upgrade failed", map[string]any{"peer": peerID, "error": err.Error()})
		return
	}

	p := &peerConn{
		id:     peerID,
		conn:   conn,
		outbox: make(chan wire.Envelope, outboxDepth),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	if h.closing {
		h.mu.Unlock()
		conn.Close()
		return
	}
	if prev, ok := h.peers[peerID]; ok {
		prev.stop()
	}
	h.peers[peerID] = p
	hook := h.onConn
	h.mu.Unlock()

	logger.InfoCF("ws", "Peer connected", map[string]any{"peer": peerID})

	go p.writeLoop()
	go h.readLoop(p)

	if hook != nil {
		hook(peerID)
	}
}

// Send queues one push for a peer. It fails when the peer is not connected
// or its outbox is full; the caller treats either as a best-effort miss.
func (h *Hub) Send(ctx context.Context, peerID, channel string, payload any) error {
	env, err := wire.NewEnvelope(channel, payload)
	if err != nil {
		return err
	}

	h.mu.Lock()
	p, ok := h.peers[peerID]
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("ws: peer %s not connected", peerID)
	}

	select {
	case p.outbox <- env:
		return nil
	case <-p.done:
		return fmt.Errorf("ws: peer %s disconnected", peerID)
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("ws: peer %s outbox full", peerID)
	}
}

func (h *Hub) ConnectedPeers() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	peers := make([]string, 0, len(h.peers))
	for id := range h.peers {
		peers = append(peers, id)
	}
	sort.Strings(peers)
	return peers
}

// Close disconnects every peer and stops accepting new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closing = true
	peers := make([]*peerConn, 0, len(h.peers))
	for _, p := range h.peers {
		peers = append(peers, p)
	}
	h.peers = make(map[string]*peerConn)
	h.mu.Unlock()

	for _, p := range peers {
		p.stop()
	}
}

func (h *Hub) readLoop(p *peerConn) {
	defer h.drop(p)
	for {
		// Peers never send application messages; the read loop only
		// services control frames and detects disconnects.
		if _, _, err := p.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) drop(p *peerConn) {
	h.mu.Lock()
	if current, ok := h.peers[p.id]; ok && current == p {
		delete(h.peers, p.id)
	}
	h.mu.Unlock()
	p.stop()
	logger.InfoCF("ws", "Peer disconnected", map[string]any{"peer": p.id})
}

func (p *peerConn) writeLoop() {
	for {
		select {
		case env := <-p.outbox:
			p.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := p.conn.WriteJSON(env); err != nil {
				p.stop()
				return
			}
		case <-p.done:
			p.conn.Close()
			return
		}
	}
}

func (p *peerConn) stop() {
	p.stopOnce.Do(func() {
		close(p.done)
	})
}
