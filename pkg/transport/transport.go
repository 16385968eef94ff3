// Package transport defines the peer messaging contract consumed by the
// dispatch pipeline and the history store. Sends are fire-and-forget:
// delivery is assumed reliable and ordered per channel per peer while the
// peer is connected, and a disconnected peer converges on its next
// full-history sync instead of through retries.
package transport

import "context"

// Sender delivers one payload to one peer on a named channel.
type Sender interface {
	Send(ctx context.Context, peerID, channel string, payload any) error
}

// Roster enumerates currently-connected peers, the owner's own connection
// included. Callers that need only viewers filter the owner id themselves.
type Roster interface {
	ConnectedPeers() []string
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, peerID, channel string, payload any) error

func (f SenderFunc) Send(ctx context.Context, peerID, channel string, payload any) error {
	return f(ctx, peerID, channel, payload)
}

// RosterFunc adapts a function to the Roster interface.
type RosterFunc func() []string

func (f RosterFunc) ConnectedPeers() []string {
	return f()
}
