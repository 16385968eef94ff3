package render

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyland-inc/beamcast/pkg/history"
	"github.com/tinyland-inc/beamcast/pkg/wire"
)

type surfaceOp struct {
	kind string
	ids  []string
}

// fakeSurface records calls; an optional gate blocks Prepend so tests can
// hold a backfill in flight.
type fakeSurface struct {
	mu   sync.Mutex
	ops  []surfaceOp
	gate chan struct{}
}

func (s *fakeSurface) Insert(rec wire.Record) {
	s.record("insert", []string{rec.ID})
}

func (s *fakeSurface) Prepend(recs []wire.Record) {
	if s.gate != nil {
		<-s.gate
	}
	ids := make([]string, 0, len(recs))
	for _, rec := range recs {
		ids = append(ids, rec.ID)
	}
	s.record("prepend", ids)
}

func (s *fakeSurface) Remove(id string, animate bool) {
	s.record("remove", []string{id})
}

func (s *fakeSurface) Clear() {
	s.record("clear", nil)
}

func (s *fakeSurface) record(kind string, ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, surfaceOp{kind: kind, ids: ids})
}

func (s *fakeSurface) snapshot() []surfaceOp {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]surfaceOp(nil), s.ops...)
}

func rec(id string) wire.Record {
	return wire.Record{ID: id, Source: id + ".png"}
}

func newTestQueue(t *testing.T) (*SyncQueue, *history.Mirror, *fakeSurface) {
	t.Helper()
	mirror := history.NewMirror()
	surface := &fakeSurface{}
	q := NewSyncQueue(mirror, surface)
	t.Cleanup(q.Close)
	return q, mirror, surface
}

func TestQueue_AddMaterializes(t *testing.T) {
	q, mirror, surface := newTestQueue(t)

	q.ApplyAdd(rec("a"))
	q.Drain()

	assert.Equal(t, []surfaceOp{{kind: "insert", ids: []string{"a"}}}, surface.snapshot())
	assert.Equal(t, 1, mirror.Len())
}

func TestQueue_ReAddReplacesElement(t *testing.T) {
	q, mirror, surface := newTestQueue(t)

	q.ApplyAdd(rec("a"))
	q.ApplyAdd(rec("a"))
	q.Drain()

	// The second add removes the visible element before re-inserting it, so
	// the surface never holds two elements for one id.
	assert.Equal(t, []surfaceOp{
		{kind: "insert", ids: []string{"a"}},
		{kind: "remove", ids: []string{"a"}},
		{kind: "insert", ids: []string{"a"}},
	}, surface.snapshot())
	assert.Equal(t, 1, mirror.Len())
}

func TestQueue_RemoveUnmaterializedIsMirrorOnly(t *testing.T) {
	q, mirror, surface := newTestQueue(t)

	// The record is mirrored via a sync but never pulled into view.
	q.ApplySync([]wire.Record{rec("a")})
	q.ApplyRemove("a", true)
	q.Drain()

	assert.Equal(t, 0, mirror.Len())
	// Only the sync's clear touched the surface.
	assert.Equal(t, []surfaceOp{{kind: "clear"}}, surface.snapshot())
}

func TestQueue_OpsApplyInArrivalOrder(t *testing.T) {
	q, mirror, surface := newTestQueue(t)

	q.ApplyAdd(rec("a"))
	q.ApplyRemove("a", false)
	q.ApplyAdd(rec("b"))
	q.ApplyFlush()
	q.Drain()

	assert.Equal(t, []surfaceOp{
		{kind: "insert", ids: []string{"a"}},
		{kind: "remove", ids: []string{"a"}},
		{kind: "insert", ids: []string{"b"}},
		{kind: "clear"},
	}, surface.snapshot())
	assert.Equal(t, 0, mirror.Len())
}

func TestQueue_BackfillPullsBehindCursor(t *testing.T) {
	q, _, surface := newTestQueue(t)

	q.ApplySync([]wire.Record{rec("a"), rec("b"), rec("c"), rec("d"), rec("e")})

	// First backfill starts from the newest end.
	require.True(t, q.RequestBackfill(2))
	q.Drain()
	// The next one continues behind what is already in view.
	require.True(t, q.RequestBackfill(2))
	q.Drain()

	assert.Equal(t, []surfaceOp{
		{kind: "clear"},
		{kind: "prepend", ids: []string{"d", "e"}},
		{kind: "prepend", ids: []string{"b", "c"}},
	}, surface.snapshot())
}

func TestQueue_BackfillCoalesces(t *testing.T) {
	mirror := history.NewMirror()
	gate := make(chan struct{})
	surface := &fakeSurface{gate: gate}
	q := NewSyncQueue(mirror, surface)
	defer q.Close()

	q.ApplySync([]wire.Record{rec("a"), rec("b"), rec("c")})

	require.True(t, q.RequestBackfill(1))

	// While the first backfill is blocked in the surface, further requests
	// coalesce away instead of queueing up.
	assert.Eventually(t, func() bool {
		return !q.RequestBackfill(1)
	}, time.Second, time.Millisecond)
	assert.False(t, q.RequestBackfill(1))

	close(gate)
	q.Drain()

	// Completion re-arms the guard.
	assert.True(t, q.RequestBackfill(1))
	q.Drain()
}

func TestQueue_BackfillRejectsNonPositive(t *testing.T) {
	q, _, _ := newTestQueue(t)
	assert.False(t, q.RequestBackfill(0))
	assert.False(t, q.RequestBackfill(-3))
}

func TestQueue_SyncResetsView(t *testing.T) {
	q, mirror, surface := newTestQueue(t)

	q.ApplyAdd(rec("stale"))
	q.ApplySync([]wire.Record{rec("a"), rec("b")})
	q.Drain()

	assert.Equal(t, 2, mirror.Len())
	ops := surface.snapshot()
	require.NotEmpty(t, ops)
	assert.Equal(t, "clear", ops[len(ops)-1].kind)

	// Nothing is materialized after a sync until a backfill pulls.
	require.True(t, q.RequestBackfill(10))
	q.Drain()
	ops = surface.snapshot()
	assert.Equal(t, surfaceOp{kind: "prepend", ids: []string{"a", "b"}}, ops[len(ops)-1])
}

func TestQueue_CloseIsIdempotentAndUnblocksDrain(t *testing.T) {
	q, _, _ := newTestQueue(t)
	q.Close()
	q.Close()

	q.Drain() // must not hang with the worker gone
}
