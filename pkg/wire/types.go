// Package wire defines the push-message channels and payload types exchanged
// between the owner's gateway and connected viewer peers. All payloads are
// JSON; delivery is fire-and-forget, ordered per channel per peer.
package wire

// Push channels. A peer subscribes to all of them; the owner is the only
// sender. History mutations and presentation commands travel on separate
// channels so a peer can mirror history without materializing anything.
const (
	ChannelHistoryAdd    = "history.add"
	ChannelHistoryRemove = "history.remove"
	ChannelHistoryFlush  = "history.flush"
	ChannelHistorySync   = "history.sync"
	ChannelMaterialize   = "media.show"
)

// Record is the wire representation of one shared-item history entry.
// The ID is the fingerprint of Source, so resharing the same source
// updates the existing record on every mirror.
type Record struct {
	ID         string          `json:"id"`
	Source     string          `json:"source"`
	Timestamp  int64           `json:"timestamp"` // unix milliseconds, last touched
	Recipients []string        `json:"recipients"`
	Flags      map[string]bool `json:"flags,omitempty"`
}

// AddRecord upserts one record into a peer's mirror.
type AddRecord struct {
	Record Record `json:"record"`
}

// RemoveRecord deletes one record from a peer's mirror. Animate hints the
// presentation layer to play a removal transition if the record is visible.
type RemoveRecord struct {
	ID      string `json:"id"`
	Animate bool   `json:"animate"`
}

// FlushHistory clears a peer's mirror and presentation surface.
type FlushHistory struct{}

// SyncHistory replaces a peer's mirror wholesale, oldest record first.
// Sent on connect so a fresh or stale mirror converges immediately.
type SyncHistory struct {
	Records []Record `json:"records"`
}

// Materialize instructs a peer to present a media source locally.
type Materialize struct {
	Source string          `json:"source"`
	Mode   string          `json:"mode"`
	Flags  map[string]bool `json:"flags,omitempty"`
	// SceneID anchors a backdrop-darkness coupling when the darken flag is set.
	SceneID string `json:"scene_id,omitempty"`
}
