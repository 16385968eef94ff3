package render

import "github.com/tinyland-inc/beamcast/pkg/wire"

// Surface is the presentation layer a SyncQueue drives. The compositor
// implements it; all calls arrive from the queue's single worker, so
// implementations need no locking of their own.
type Surface interface {
	// Insert appends one record at the newest end of the view.
	Insert(rec wire.Record)
	// Prepend inserts a batch of older records before the oldest visible
	// entry, oldest-first within the batch.
	Prepend(recs []wire.Record)
	// Remove drops a visible entry. Removing an id that is not visible
	// must be a no-op. Animate hints a short removal transition.
	Remove(id string, animate bool)
	// Clear empties the view.
	Clear()
}

// NopSurface discards all presentation calls, for peers that mirror
// history without a visible view.
type NopSurface struct{}

func (NopSurface) Insert(wire.Record)    {}
func (NopSurface) Prepend([]wire.Record) {}
func (NopSurface) Remove(string, bool)   {}
func (NopSurface) Clear()                {}
