package history

import (
	"sync"

	"github.com/tinyland-inc/beamcast/pkg/wire"
)

// Mirror is a peer-local, insertion-ordered replica of the history records
// the peer is entitled to see. It is never authoritative: it is rebuilt
// wholesale from a sync snapshot on connect and patched by pushes after.
type Mirror struct {
	mu    sync.Mutex
	order []string // record ids, oldest first
	byID  map[string]wire.Record
}

func NewMirror() *Mirror {
	return &Mirror{byID: make(map[string]wire.Record)}
}

// Upsert applies an add push. A record already mirrored moves to the newest
// position, matching the owner refreshing its timestamp on reshare.
func (m *Mirror) Upsert(rec wire.Record) (replaced bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byID[rec.ID]; ok {
		m.removeFromOrder(rec.ID)
		replaced = true
	}
	m.byID[rec.ID] = rec
	m.order = append(m.order, rec.ID)
	return replaced
}

// Remove applies a remove push. Removing an id that was never mirrored is
// not an error.
func (m *Mirror) Remove(id string) (wire.Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.byID[id]
	if !ok {
		return wire.Record{}, false
	}
	delete(m.byID, id)
	m.removeFromOrder(id)
	return rec, true
}

// Flush discards every record.
func (m *Mirror) Flush() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.order = nil
	m.byID = make(map[string]wire.Record)
}

// Reset rebuilds the mirror from a full snapshot, oldest record first.
func (m *Mirror) Reset(recs []wire.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.order = make([]string, 0, len(recs))
	m.byID = make(map[string]wire.Record, len(recs))
	for _, rec := range recs {
		if _, ok := m.byID[rec.ID]; ok {
			continue
		}
		m.order = append(m.order, rec.ID)
		m.byID[rec.ID] = rec
	}
}

func (m *Mirror) Get(id string) (wire.Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.byID[id]
	return rec, ok
}

func (m *Mirror) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.order)
}

// Records returns the mirrored records, oldest first.
func (m *Mirror) Records() []wire.Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]wire.Record, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.byID[id])
	}
	return out
}

// Page returns up to n records older than beforeID, oldest first within the
// page. An empty beforeID pages from the newest end; an unknown beforeID
// returns nothing, since the caller's cursor is stale and a sync is coming.
func (m *Mirror) Page(beforeID string, n int) []wire.Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n <= 0 {
		return nil
	}

	end := len(m.order)
	if beforeID != "" {
		end = -1
		for i, id := range m.order {
			if id == beforeID {
				end = i
				break
			}
		}
		if end < 0 {
			return nil
		}
	}

	start := end - n
	if start < 0 {
		start = 0
	}
	out := make([]wire.Record, 0, end-start)
	for _, id := range m.order[start:end] {
		out = append(out, m.byID[id])
	}
	return out
}

// removeFromOrder must be called with m.mu held.
func (m *Mirror) removeFromOrder(id string) {
	for i, existing := range m.order {
		if existing == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			return
		}
	}
}
