// Package render applies incoming history mutations and scrollback
// backfills to a peer's mirror and presentation surface without
// interleaving.
//
// Every operation funnels through a single-slot admission queue served by
// one worker goroutine: operations run strictly in arrival order, one at a
// time, so a remove can never race ahead of the add it follows. Backfills
// additionally coalesce through a boolean in-flight guard checked at
// request time, because the scroll side channel can fire many requests
// before the first completes.
package render

import (
	"sync"
	"sync/atomic"

	"github.com/tinyland-inc/beamcast/pkg/history"
	"github.com/tinyland-inc/beamcast/pkg/logger"
	"github.com/tinyland-inc/beamcast/pkg/wire"
)

const admissionDepth = 256

// SyncQueue serializes mutation and backfill application for one peer.
type SyncQueue struct {
	mirror  *history.Mirror
	surface Surface

	tasks chan func()
	quit  chan struct{}
	once  sync.Once

	backfilling atomic.Bool

	// Worker-owned state; touched only from the worker goroutine.
	rendered map[string]bool
	// lastRenderedID is the oldest record currently materialized in the
	// surface; it is the cursor backfills pull behind.
	lastRenderedID string
}

// NewSyncQueue starts the worker. Close releases it.
func NewSyncQueue(mirror *history.Mirror, surface Surface) *SyncQueue {
	if surface == nil {
		surface = NopSurface{}
	}
	q := &SyncQueue{
		mirror:   mirror,
		surface:  surface,
		tasks:    make(chan func(), admissionDepth),
		quit:     make(chan struct{}),
		rendered: make(map[string]bool),
	}
	go q.worker()
	return q
}

func (q *SyncQueue) worker() {
	for {
		select {
		case task := <-q.tasks:
			task()
		case <-q.quit:
			return
		}
	}
}

func (q *SyncQueue) enqueue(task func()) bool {
	select {
	case q.tasks <- task:
		return true
	case <-q.quit:
		return false
	}
}

// ApplyAdd upserts a record into the mirror and materializes it at the
// newest end. Re-adding an already-visible id replaces its element instead
// of duplicating it.
func (q *SyncQueue) ApplyAdd(rec wire.Record) {
	q.enqueue(func() {
		q.mirror.Upsert(rec)
		if q.rendered[rec.ID] {
			q.surface.Remove(rec.ID, false)
		}
		q.surface.Insert(rec)
		q.rendered[rec.ID] = true
		q.recomputeCursor()
	})
}

// ApplyRemove drops a record from the mirror and, if materialized, from the
// surface. An id never pulled into view is a pure mirror update.
func (q *SyncQueue) ApplyRemove(id string, animate bool) {
	q.enqueue(func() {
		q.mirror.Remove(id)
		if q.rendered[id] {
			q.surface.Remove(id, animate)
			delete(q.rendered, id)
		}
		q.recomputeCursor()
	})
}

// ApplyFlush clears mirror and surface unconditionally.
func (q *SyncQueue) ApplyFlush() {
	q.enqueue(func() {
		q.mirror.Flush()
		q.surface.Clear()
		q.rendered = make(map[string]bool)
		q.lastRenderedID = ""
	})
}

// ApplySync rebuilds the mirror from a full snapshot and empties the
// surface; the presentation layer re-materializes through a backfill.
func (q *SyncQueue) ApplySync(recs []wire.Record) {
	q.enqueue(func() {
		q.mirror.Reset(recs)
		q.surface.Clear()
		q.rendered = make(map[string]bool)
		q.lastRenderedID = ""
	})
}

// RequestBackfill pulls up to n older records behind the cursor and
// prepends them to the surface. A request arriving while another backfill
// is in flight coalesces into a no-op; the return value reports whether
// this request was admitted.
func (q *SyncQueue) RequestBackfill(n int) bool {
	if n <= 0 {
		return false
	}
	if !q.backfilling.CompareAndSwap(false, true) {
		return false
	}
	admitted := q.enqueue(func() {
		defer q.backfilling.Store(false)
		page := q.mirror.Page(q.lastRenderedID, n)
		if len(page) > 0 {
			q.surface.Prepend(page)
			for _, rec := range page {
				q.rendered[rec.ID] = true
			}
		}
		q.recomputeCursor()
		logger.DebugCF("render", "Backfill applied", map[string]any{"pulled": len(page)})
	})
	if !admitted {
		q.backfilling.Store(false)
	}
	return admitted
}

// Drain blocks until every previously admitted operation has completed.
func (q *SyncQueue) Drain() {
	done := make(chan struct{})
	if !q.enqueue(func() { close(done) }) {
		return
	}
	select {
	case <-done:
	case <-q.quit:
	}
}

// Close stops the worker. Pending operations may be discarded; the mirror
// is rebuilt from a fresh snapshot on reconnect anyway.
func (q *SyncQueue) Close() {
	q.once.Do(func() { close(q.quit) })
}

// recomputeCursor must run on the worker. The cursor is the oldest
// mirrored record that is materialized; it moves backward as backfills
// pull and forward implicitly as removals and reshuffles land.
func (q *SyncQueue) recomputeCursor() {
	q.lastRenderedID = ""
	for _, rec := range q.mirror.Records() {
		if q.rendered[rec.ID] {
			q.lastRenderedID = rec.ID
			return
		}
	}
}
