package share

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyland-inc/beamcast/pkg/history"
	"github.com/tinyland-inc/beamcast/pkg/picker"
	"github.com/tinyland-inc/beamcast/pkg/policy"
	"github.com/tinyland-inc/beamcast/pkg/storage"
	"github.com/tinyland-inc/beamcast/pkg/transport"
	"github.com/tinyland-inc/beamcast/pkg/wire"
)

type sentPush struct {
	peer    string
	channel string
	payload any
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sentPush
}

func (r *recordingSender) Send(_ context.Context, peerID, channel string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentPush{peer: peerID, channel: channel, payload: payload})
	return nil
}

func (r *recordingSender) peersOn(channel string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, p := range r.sent {
		if p.channel == channel {
			out = append(out, p.peer)
		}
	}
	return out
}

func (r *recordingSender) firstIndexOf(channel string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, p := range r.sent {
		if p.channel == channel {
			return i
		}
	}
	return -1
}

// fixture bundles a manager with the collaborators the tests inspect.
type fixture struct {
	manager    *Manager
	sender     *recordingSender
	store      *history.Store
	placements *PlacementStore
	warnings   []string
}

func newFixture(t *testing.T, mutate func(*ManagerOptions), connected ...string) *fixture {
	t.Helper()

	f := &fixture{sender: &recordingSender{}}

	backing := storage.NewMemoryStore()
	store, err := history.NewStore(history.StoreOptions{
		Backing: backing,
		Sender:  f.sender,
		Roster:  transport.RosterFunc(func() []string { return connected }),
		OwnerID: "owner",
		Owner:   true,
	})
	require.NoError(t, err)
	f.store = store

	f.placements, err = NewPlacementStore(backing)
	require.NoError(t, err)

	opts := ManagerOptions{
		Owner:      true,
		OwnerID:    "owner",
		Roster:     transport.RosterFunc(func() []string { return connected }),
		Sender:     f.sender,
		History:    store,
		Placements: f.placements,
		Notifier:   NotifierFunc(func(msg string) { f.warnings = append(f.warnings, msg) }),
	}
	if mutate != nil {
		mutate(&opts)
	}

	f.manager, err = NewManager(opts)
	require.NoError(t, err)
	return f
}

func windowAll(source string) Request {
	return Request{
		Source:      source,
		Mode:        ModeWindow,
		OptionName:  OptionUsers,
		OptionValue: UsersAll,
	}
}

func TestDispatch_RejectsUnregisteredTriple(t *testing.T) {
	f := newFixture(t, nil, "owner", "alice")

	req := Request{Source: "a.png", Mode: ModeWindow, OptionName: OptionUsers, OptionValue: "everyone"}
	ok, err := f.manager.Dispatch(context.Background(), req)

	assert.False(t, ok)
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	// Rejected before any side effect.
	assert.Empty(t, f.sender.sent)
	assert.Equal(t, 0, f.store.Len())
}

func TestDispatch_RejectsMissingSource(t *testing.T) {
	f := newFixture(t, nil, "owner", "alice")

	ok, err := f.manager.Dispatch(context.Background(), windowAll(""))

	assert.False(t, ok)
	var validationErr *ValidationError
	assert.ErrorAs(t, err, &validationErr)
}

func TestDispatch_DeniesNonOwner(t *testing.T) {
	f := newFixture(t, func(opts *ManagerOptions) { opts.Owner = false }, "owner", "alice")

	ok, err := f.manager.Dispatch(context.Background(), windowAll("a.png"))

	// Denial is a notice, not an error the caller must handle.
	assert.False(t, ok)
	assert.NoError(t, err)
	assert.NotEmpty(t, f.warnings)
	assert.Empty(t, f.sender.sent)
	assert.Equal(t, 0, f.store.Len())
}

func TestDispatch_AllStrategyReachesEveryViewer(t *testing.T) {
	f := newFixture(t, nil, "owner", "alice", "bob")

	ok, err := f.manager.Dispatch(context.Background(), windowAll("a.png"))
	require.NoError(t, err)
	require.True(t, ok)

	// Both viewers materialize; the owner does not (it is not a viewer).
	assert.ElementsMatch(t, []string{"alice", "bob"}, f.sender.peersOn(wire.ChannelMaterialize))
	// Everyone including the owner mirrors the history add.
	assert.ElementsMatch(t, []string{"owner", "alice", "bob"}, f.sender.peersOn(wire.ChannelHistoryAdd))

	recs := f.store.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, []string{"alice", "bob"}, recs[0].Recipients)
}

func TestDispatch_MaterializePrecedesHistoryPush(t *testing.T) {
	f := newFixture(t, nil, "owner", "alice")

	ok, err := f.manager.Dispatch(context.Background(), windowAll("a.png"))
	require.NoError(t, err)
	require.True(t, ok)

	// A recipient is told to materialize before it hears about the
	// history record.
	show := f.sender.firstIndexOf(wire.ChannelMaterialize)
	add := f.sender.firstIndexOf(wire.ChannelHistoryAdd)
	require.GreaterOrEqual(t, show, 0)
	require.GreaterOrEqual(t, add, 0)
	assert.Less(t, show, add)
}

func TestDispatch_SelectionStrategy(t *testing.T) {
	picked := false
	f := newFixture(t, func(opts *ManagerOptions) {
		opts.Recipients = picker.RecipientPickerFunc(func(_ context.Context, candidates []string) ([]string, bool, error) {
			picked = true
			assert.ElementsMatch(t, []string{"alice", "bob"}, candidates)
			return []string{"bob"}, true, nil
		})
	}, "owner", "alice", "bob")

	req := windowAll("a.png")
	req.OptionValue = UsersSelection

	ok, err := f.manager.Dispatch(context.Background(), req)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, picked)
	assert.Equal(t, []string{"bob"}, f.sender.peersOn(wire.ChannelMaterialize))
}

func TestDispatch_CancelledSelectionAborts(t *testing.T) {
	f := newFixture(t, func(opts *ManagerOptions) {
		opts.Recipients = picker.RecipientPickerFunc(func(context.Context, []string) ([]string, bool, error) {
			return nil, false, nil
		})
	}, "owner", "alice")

	req := windowAll("a.png")
	req.OptionValue = UsersSelection

	ok, err := f.manager.Dispatch(context.Background(), req)
	assert.False(t, ok)
	assert.NoError(t, err)
	assert.Empty(t, f.sender.sent)
	assert.Equal(t, 0, f.store.Len())
}

func TestDispatch_BlacklistFiltersRecipients(t *testing.T) {
	f := newFixture(t, func(opts *ManagerOptions) {
		opts.Blacklist = policy.NewStatic([]string{"bob"})
	}, "owner", "alice", "bob")

	ok, err := f.manager.Dispatch(context.Background(), windowAll("a.png"))
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, []string{"alice"}, f.sender.peersOn(wire.ChannelMaterialize))
	recs := f.store.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, []string{"alice"}, recs[0].Recipients)
}

func TestDispatch_FullyBlacklistedAborts(t *testing.T) {
	f := newFixture(t, func(opts *ManagerOptions) {
		opts.Blacklist = policy.NewStatic([]string{"alice", "bob"})
	}, "owner", "alice", "bob")

	ok, err := f.manager.Dispatch(context.Background(), windowAll("a.png"))
	assert.False(t, ok)
	assert.NoError(t, err)
	// Nothing left to notify, so nothing is persisted either.
	assert.Empty(t, f.sender.sent)
	assert.Equal(t, 0, f.store.Len())
}

func TestDispatch_FiltersInvisibleFlags(t *testing.T) {
	f := newFixture(t, nil, "owner", "alice")

	req := windowAll("a.png")
	// darken is not visible for window mode; loop is.
	req.Flags = map[string]bool{FlagDarken: true, FlagLoop: true}

	ok, err := f.manager.Dispatch(context.Background(), req)
	require.NoError(t, err)
	require.True(t, ok)

	recs := f.store.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, map[string]bool{FlagLoop: true}, recs[0].Flags)
}

func sceneRequest(source string) Request {
	return Request{
		Source:      source,
		Mode:        ModeScene,
		OptionName:  OptionPlacement,
		OptionValue: PlacementAuto,
	}
}

func TestDispatch_SceneAutoSelectsSoleTarget(t *testing.T) {
	f := newFixture(t, func(opts *ManagerOptions) {
		opts.Scenes = StaticScene{SceneID: "scene-1", Targets: []string{"frame-a"}}
	}, "owner", "alice", "bob")

	ok, err := f.manager.Dispatch(context.Background(), sceneRequest("mural.png"))
	require.NoError(t, err)
	require.True(t, ok)

	placement, found := f.placements.Get("frame-a")
	require.True(t, found)
	assert.Equal(t, "mural.png", placement.Source)
	assert.Equal(t, 0, placement.SortIndex)

	// Scene shares are unconditionally scoped: no per-peer materialize.
	assert.Empty(t, f.sender.peersOn(wire.ChannelMaterialize))
	recs := f.store.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, []string{"alice", "bob"}, recs[0].Recipients)
}

func TestDispatch_SceneSkipsBlacklistFilter(t *testing.T) {
	f := newFixture(t, func(opts *ManagerOptions) {
		opts.Scenes = StaticScene{SceneID: "scene-1", Targets: []string{"frame-a"}}
		opts.Blacklist = policy.NewStatic([]string{"alice", "bob"})
	}, "owner", "alice", "bob")

	ok, err := f.manager.Dispatch(context.Background(), sceneRequest("mural.png"))
	require.NoError(t, err)
	// A fully blacklisted roster still sees scene-embedded content.
	assert.True(t, ok)
	recs := f.store.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, []string{"alice", "bob"}, recs[0].Recipients)
}

func TestDispatch_SceneNoTargetsAborts(t *testing.T) {
	f := newFixture(t, func(opts *ManagerOptions) {
		opts.Scenes = StaticScene{SceneID: "scene-1"}
	}, "owner", "alice")

	ok, err := f.manager.Dispatch(context.Background(), sceneRequest("mural.png"))
	assert.False(t, ok)
	assert.NoError(t, err)
	assert.Equal(t, 0, f.store.Len())
}

func TestDispatch_ScenePlacementPicker(t *testing.T) {
	f := newFixture(t, func(opts *ManagerOptions) {
		opts.Scenes = StaticScene{SceneID: "scene-1", Targets: []string{"frame-a", "frame-b"}}
		opts.PlacementPicker = picker.PlacementPickerFunc(func(_ context.Context, candidates []string) (string, bool, error) {
			assert.Equal(t, []string{"frame-a", "frame-b"}, candidates)
			return "frame-b", true, nil
		})
	}, "owner", "alice")

	ok, err := f.manager.Dispatch(context.Background(), sceneRequest("mural.png"))
	require.NoError(t, err)
	require.True(t, ok)

	_, found := f.placements.Get("frame-b")
	assert.True(t, found)
}

func TestDispatch_SceneCancelledPickerAborts(t *testing.T) {
	f := newFixture(t, func(opts *ManagerOptions) {
		opts.Scenes = StaticScene{SceneID: "scene-1", Targets: []string{"frame-a", "frame-b"}}
		opts.PlacementPicker = picker.PlacementPickerFunc(func(context.Context, []string) (string, bool, error) {
			return "", false, nil
		})
	}, "owner", "alice")

	ok, err := f.manager.Dispatch(context.Background(), sceneRequest("mural.png"))
	assert.False(t, ok)
	assert.NoError(t, err)
	assert.Empty(t, f.placements.All())
	assert.Equal(t, 0, f.store.Len())
}

func TestDispatch_PresuppliedTargetArea(t *testing.T) {
	f := newFixture(t, func(opts *ManagerOptions) {
		opts.Scenes = StaticScene{SceneID: "scene-1", Targets: []string{"frame-a", "frame-b"}}
	}, "owner", "alice")

	req := sceneRequest("mural.png")
	req.TargetArea = "frame-b"

	ok, err := f.manager.Dispatch(context.Background(), req)
	require.NoError(t, err)
	require.True(t, ok)
	_, found := f.placements.Get("frame-b")
	assert.True(t, found)
}

func TestDispatch_UnknownTargetAreaRejected(t *testing.T) {
	f := newFixture(t, func(opts *ManagerOptions) {
		opts.Scenes = StaticScene{SceneID: "scene-1", Targets: []string{"frame-a"}}
	}, "owner", "alice")

	req := sceneRequest("mural.png")
	req.TargetArea = "frame-z"

	ok, err := f.manager.Dispatch(context.Background(), req)
	assert.False(t, ok)
	var validationErr *ValidationError
	assert.ErrorAs(t, err, &validationErr)
	assert.Empty(t, f.placements.All())
}

func TestDispatch_DarkenWithoutActiveSceneAborts(t *testing.T) {
	f := newFixture(t, func(opts *ManagerOptions) {
		// Targets exist but no scene is actively presented.
		opts.Scenes = StaticScene{Targets: []string{"frame-a"}}
	}, "owner", "alice")

	req := sceneRequest("mural.png")
	req.Flags = map[string]bool{FlagDarken: true}

	ok, err := f.manager.Dispatch(context.Background(), req)
	assert.False(t, ok)
	assert.NoError(t, err)
	// Ambient capture runs before placement persistence, so the abort
	// leaves no placement behind.
	assert.Empty(t, f.placements.All())
	assert.Equal(t, 0, f.store.Len())
}

func TestDispatch_DarkenCapturesActiveScene(t *testing.T) {
	f := newFixture(t, func(opts *ManagerOptions) {
		opts.Scenes = StaticScene{SceneID: "scene-7", Targets: []string{"frame-a"}}
	}, "owner", "alice")

	req := Request{
		Source:      "clip.webm",
		Mode:        ModeImmersive,
		OptionName:  OptionUsers,
		OptionValue: UsersAll,
		Flags:       map[string]bool{FlagDarken: true},
	}

	ok, err := f.manager.Dispatch(context.Background(), req)
	require.NoError(t, err)
	require.True(t, ok)

	pushes := f.sender.peersOn(wire.ChannelMaterialize)
	require.Equal(t, []string{"alice"}, pushes)
	f.sender.mu.Lock()
	defer f.sender.mu.Unlock()
	for _, p := range f.sender.sent {
		if p.channel == wire.ChannelMaterialize {
			payload, isMaterialize := p.payload.(wire.Materialize)
			require.True(t, isMaterialize)
			assert.Equal(t, "scene-7", payload.SceneID)
		}
	}
}
