// Package history maintains the authoritative map of shared-item records on
// the owner's side and the read-only mirrors peers keep consistent through
// push messages.
//
// The write path is owner-only by construction: stores built for non-owner
// processes turn every mutation into a silent no-op, and peers only ever
// consume pushes. Persistence happens before any push is sent, so a peer is
// never told about a history change that is not durably recorded.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tinyland-inc/beamcast/pkg/bus"
	"github.com/tinyland-inc/beamcast/pkg/logger"
	"github.com/tinyland-inc/beamcast/pkg/storage"
	"github.com/tinyland-inc/beamcast/pkg/transport"
	"github.com/tinyland-inc/beamcast/pkg/wire"
)

// ErrNotFound is returned when deleting a record id that does not exist.
var ErrNotFound = errors.New("history: record not found")

// PushError reports best-effort pushes that failed after the mutation was
// already durably persisted. Callers treat it as a logged warning, not a
// rejected operation: the affected peers converge on their next full sync.
type PushError struct {
	Errs []error
}

func (e *PushError) Error() string {
	return fmt.Sprintf("history: %d push(es) failed: %v", len(e.Errs), errors.Join(e.Errs...))
}

func (e *PushError) Unwrap() []error {
	return e.Errs
}

// DefaultStorageKey is the key the record map is persisted under.
const DefaultStorageKey = "history.records"

// StoreOptions configures a Store.
type StoreOptions struct {
	Backing storage.Store
	Sender  transport.Sender
	Roster  transport.Roster
	// Events is optional; when set, mutations are announced on the bus.
	Events *bus.EventBus
	// OwnerID is the privileged peer identity. The owner receives every
	// push so its own view renders through the same path as any peer's.
	OwnerID string
	// Owner marks this process as the authoritative writer. When false,
	// Record/Delete/Clear are silent no-ops.
	Owner bool
	// Key overrides DefaultStorageKey.
	Key string
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Store is the owner-authoritative shared-item history.
type Store struct {
	mu      sync.Mutex
	records map[string]wire.Record

	backing storage.Store
	sender  transport.Sender
	roster  transport.Roster
	events  *bus.EventBus
	ownerID string
	owner   bool
	key     string
	now     func() time.Time
}

// NewStore builds a store and loads any previously persisted record map.
func NewStore(opts StoreOptions) (*Store, error) {
	if opts.Key == "" {
		opts.Key = DefaultStorageKey
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Store{
		records: make(map[string]wire.Record),
		backing: opts.Backing,
		sender:  opts.Sender,
		roster:  opts.Roster,
		events:  opts.Events,
		ownerID: opts.OwnerID,
		owner:   opts.Owner,
		key:     opts.Key,
		now:     opts.Now,
	}

	data, ok, err := s.backing.Get(s.key)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	if ok {
		if err := json.Unmarshal(data, &s.records); err != nil {
			return nil, fmt.Errorf("parsing persisted history: %w", err)
		}
	}
	return s, nil
}

// Record upserts the record for source. Re-shares of the same source merge:
// the recipient set grows by union, flags are replaced wholesale, and the
// timestamp refreshes. The add push goes to the owner and every current
// recipient only after the map is durably persisted.
func (s *Store) Record(ctx context.Context, source string, recipients []string, flags map[string]bool) (wire.Record, error) {
	if !s.owner {
		return wire.Record{}, nil
	}
	if source == "" {
		return wire.Record{}, fmt.Errorf("history: empty source")
	}

	s.mu.Lock()
	id := Fingerprint(source)
	rec := wire.Record{
		ID:        id,
		Source:    source,
		Timestamp: s.now().UnixMilli(),
		Flags:     cloneFlags(flags),
	}
	if existing, ok := s.records[id]; ok {
		rec.Recipients = unionPeers(existing.Recipients, recipients, s.ownerID)
	} else {
		rec.Recipients = unionPeers(nil, recipients, s.ownerID)
	}

	next := s.cloneRecords()
	next[id] = rec
	if err := s.persist(next); err != nil {
		s.mu.Unlock()
		return wire.Record{}, err
	}
	s.records = next
	s.mu.Unlock()

	err := s.push(ctx, append([]string{s.ownerID}, rec.Recipients...), wire.ChannelHistoryAdd, wire.AddRecord{Record: rec})

	s.announce(bus.EventRecordAdded, map[string]any{"id": id, "source": source})
	return rec, err
}

// Delete removes a record and notifies the owner plus the peers that were
// recipients before the deletion, since the authoritative copy no longer
// carries them afterward.
func (s *Store) Delete(ctx context.Context, id string) error {
	if !s.owner {
		return nil
	}

	s.mu.Lock()
	existing, ok := s.records[id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	priorRecipients := existing.Recipients

	next := s.cloneRecords()
	delete(next, id)
	if err := s.persist(next); err != nil {
		s.mu.Unlock()
		return err
	}
	s.records = next
	s.mu.Unlock()

	err := s.push(ctx, append([]string{s.ownerID}, priorRecipients...), wire.ChannelHistoryRemove, wire.RemoveRecord{ID: id, Animate: true})

	s.announce(bus.EventRecordRemoved, map[string]any{"id": id})
	return err
}

// Clear empties the history and flushes every currently-connected peer,
// prior recipient or not.
func (s *Store) Clear(ctx context.Context) error {
	if !s.owner {
		return nil
	}

	s.mu.Lock()
	next := make(map[string]wire.Record)
	if err := s.persist(next); err != nil {
		s.mu.Unlock()
		return err
	}
	s.records = next
	s.mu.Unlock()

	targets := append([]string{s.ownerID}, s.roster.ConnectedPeers()...)
	err := s.push(ctx, targets, wire.ChannelHistoryFlush, wire.FlushHistory{})

	s.announce(bus.EventHistoryFlushed, nil)
	return err
}

// SyncPeer sends peerID the full snapshot it is entitled to see. The hub
// calls this for every fresh connection, which is what makes fire-and-forget
// pushes safe: a peer that missed pushes converges here.
func (s *Store) SyncPeer(ctx context.Context, peerID string) error {
	snapshot := s.SnapshotFor(peerID)
	return s.sender.Send(ctx, peerID, wire.ChannelHistorySync, wire.SyncHistory{Records: snapshot})
}

// SnapshotFor returns the records visible to peerID, oldest first. The
// owner sees everything; a peer sees only records it received.
func (s *Store) SnapshotFor(peerID string) []wire.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []wire.Record
	for _, rec := range s.records {
		if peerID == s.ownerID || containsPeer(rec.Recipients, peerID) {
			out = append(out, rec)
		}
	}
	sortRecords(out)
	return out
}

// Records returns every record, oldest first.
func (s *Store) Records() []wire.Record {
	return s.SnapshotFor(s.ownerID)
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// persist must be called with s.mu held.
func (s *Store) persist(records map[string]wire.Record) error {
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encoding history: %w", err)
	}
	if err := s.backing.Set(s.key, data); err != nil {
		return fmt.Errorf("persisting history: %w", err)
	}
	return nil
}

// push sends one message per target, deduplicated. Failed sends are
// collected rather than retried: a disconnected peer picks the change up
// from its next full sync.
func (s *Store) push(ctx context.Context, targets []string, channel string, payload any) error {
	seen := make(map[string]bool, len(targets))
	var errs []error
	for _, peerID := range targets {
		if peerID == "" || seen[peerID] {
			continue
		}
		seen[peerID] = true
		if err := s.sender.Send(ctx, peerID, channel, payload); err != nil {
			logger.WarnCF("history", "Push failed", map[string]any{
				"peer":    peerID,
				"channel": channel,
				"error":   err.Error(),
			})
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return &PushError{Errs: errs}
}

func (s *Store) announce(eventType string, fields map[string]any) {
	if s.events == nil {
		return
	}
	s.events.Publish(bus.Event{Type: eventType, Fields: fields})
}

// cloneRecords must be called with s.mu held.
func (s *Store) cloneRecords() map[string]wire.Record {
	next := make(map[string]wire.Record, len(s.records)+1)
	for id, rec := range s.records {
		next[id] = rec
	}
	return next
}

func cloneFlags(flags map[string]bool) map[string]bool {
	if len(flags) == 0 {
		return nil
	}
	cp := make(map[string]bool, len(flags))
	for k, v := range flags {
		cp[k] = v
	}
	return cp
}

// unionPeers merges two recipient lists, dropping the owner id and
// duplicates. History tracks non-owner recipients only.
func unionPeers(existing, added []string, ownerID string) []string {
	seen := make(map[string]bool, len(existing)+len(added))
	var out []string
	for _, id := range existing {
		if id == "" || id == ownerID || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	for _, id := range added {
		if id == "" || id == ownerID || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func containsPeer(peers []string, peerID string) bool {
	for _, id := range peers {
		if id == peerID {
			return true
		}
	}
	return false
}

func sortRecords(recs []wire.Record) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Timestamp != recs[j].Timestamp {
			return recs[i].Timestamp < recs[j].Timestamp
		}
		return recs[i].ID < recs[j].ID
	})
}
