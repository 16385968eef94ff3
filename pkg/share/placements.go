package share

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tinyland-inc/beamcast/pkg/storage"
)

// PlacementStorageKey is the key scene placement data is persisted under.
const PlacementStorageKey = "scene.placements"

// Placement is one scene-embedded share, keyed by its placement target.
// SortIndex is assigned once per target and increases monotonically across
// the life of the store, so the compositor can stack placements in the
// order they were first used.
type Placement struct {
	Target    string `json:"target"`
	Source    string `json:"source"`
	SceneID   string `json:"scene_id,omitempty"`
	SortIndex int    `json:"sort_index"`
	UpdatedAt int64  `json:"updated_at"`
}

type placementState struct {
	Entries   map[string]Placement `json:"entries"`
	NextIndex int                  `json:"next_index"`
}

// PlacementStore persists scene placement data through the scoped
// key-value store.
type PlacementStore struct {
	mu      sync.Mutex
	backing storage.Store
	state   placementState
	now     func() time.Time
}

func NewPlacementStore(backing storage.Store) (*PlacementStore, error) {
	p := &PlacementStore{
		backing: backing,
		state:   placementState{Entries: make(map[string]Placement)},
		now:     time.Now,
	}

	data, ok, err := backing.Get(PlacementStorageKey)
	if err != nil {
		return nil, fmt.Errorf("loading placements: %w", err)
	}
	if ok {
		if err := json.Unmarshal(data, &p.state); err != nil {
			return nil, fmt.Errorf("parsing persisted placements: %w", err)
		}
		if p.state.Entries == nil {
			p.state.Entries = make(map[string]Placement)
		}
	}
	return p, nil
}

// Put writes the placement for target. A target seen before keeps its sort
// index; a new target takes the next one.
func (p *PlacementStore) Put(target, source, sceneID string) (Placement, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry := Placement{
		Target:    target,
		Source:    source,
		SceneID:   sceneID,
		UpdatedAt: p.now().UnixMilli(),
	}

	prev, hadPrev := p.state.Entries[target]
	prevNext := p.state.NextIndex
	if hadPrev {
		entry.SortIndex = prev.SortIndex
	} else {
		entry.SortIndex = p.state.NextIndex
		p.state.NextIndex++
	}
	p.state.Entries[target] = entry

	if err := p.persist(); err != nil {
		p.state.NextIndex = prevNext
		if hadPrev {
			p.state.Entries[target] = prev
		} else {
			delete(p.state.Entries, target)
		}
		return Placement{}, err
	}
	return entry, nil
}

func (p *PlacementStore) Get(target string) (Placement, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.state.Entries[target]
	return entry, ok
}

// All returns every placement ordered by sort index.
func (p *PlacementStore) All() []Placement {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Placement, 0, len(p.state.Entries))
	for _, entry := range p.state.Entries {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SortIndex < out[j].SortIndex })
	return out
}

// persist must be called with p.mu held.
func (p *PlacementStore) persist() error {
	data, err := json.Marshal(p.state)
	if err != nil {
		return fmt.Errorf("encoding placements: %w", err)
	}
	if err := p.backing.Set(PlacementStorageKey, data); err != nil {
		return fmt.Errorf("persisting placements: %w", err)
	}
	return nil
}
