package e2e

import (
	"context"
	"testing"

	"github.com/tinyland-inc/beamcast/pkg/history"
	"github.com/tinyland-inc/beamcast/pkg/picker"
	"github.com/tinyland-inc/beamcast/pkg/policy"
	"github.com/tinyland-inc/beamcast/pkg/render"
	"github.com/tinyland-inc/beamcast/pkg/share"
	"github.com/tinyland-inc/beamcast/pkg/storage"
	"github.com/tinyland-inc/beamcast/pkg/transport"
	"github.com/tinyland-inc/beamcast/pkg/wire"
)

// viewer is one connected peer: a mirror kept consistent by a render queue
// fed from the loopback transport.
type viewer struct {
	mirror *history.Mirror
	queue  *render.SyncQueue
}

func connectViewer(t *testing.T, lb *transport.Loopback, peerID string) *viewer {
	t.Helper()
	v := &viewer{mirror: history.NewMirror()}
	v.queue = render.NewSyncQueue(v.mirror, render.NopSurface{})
	t.Cleanup(v.queue.Close)

	lb.Register(peerID, func(env wire.Envelope) {
		if env.Channel == wire.ChannelMaterialize {
			return
		}
		if err := v.queue.HandlePush(env); err != nil {
			t.Errorf("viewer %s: %v", peerID, err)
		}
	})
	return v
}

func (v *viewer) sources() []string {
	v.queue.Drain()
	var out []string
	for _, rec := range v.mirror.Records() {
		out = append(out, rec.Source)
	}
	return out
}

type gateway struct {
	lb      *transport.Loopback
	store   *history.Store
	manager *share.Manager
}

func newGateway(t *testing.T, mutate func(*share.ManagerOptions)) *gateway {
	t.Helper()
	lb := transport.NewLoopback()
	lb.Register("owner", nil)

	store, err := history.NewStore(history.StoreOptions{
		Backing: storage.NewMemoryStore(),
		Sender:  lb,
		Roster:  lb,
		OwnerID: "owner",
		Owner:   true,
	})
	if err != nil {
		t.Fatalf("building store: %v", err)
	}

	opts := share.ManagerOptions{
		Owner:   true,
		OwnerID: "owner",
		Roster:  lb,
		Sender:  lb,
		History: store,
	}
	if mutate != nil {
		mutate(&opts)
	}
	manager, err := share.NewManager(opts)
	if err != nil {
		t.Fatalf("building manager: %v", err)
	}
	return &gateway{lb: lb, store: store, manager: manager}
}

func TestDispatchFlow_ShareDeleteClear(t *testing.T) {
	gw := newGateway(t, nil)
	alice := connectViewer(t, gw.lb, "alice")
	bob := connectViewer(t, gw.lb, "bob")

	ok, err := gw.manager.Dispatch(context.Background(), share.Request{
		Source:      "a.png",
		Mode:        share.ModeWindow,
		OptionName:  share.OptionUsers,
		OptionValue: share.UsersAll,
	})
	if err != nil || !ok {
		t.Fatalf("dispatch: ok=%v err=%v", ok, err)
	}

	// Both viewers mirror the new record.
	for _, v := range []*viewer{alice, bob} {
		got := v.sources()
		if len(got) != 1 || got[0] != "a.png" {
			t.Fatalf("expected [a.png], got %v", got)
		}
	}

	// Deleting removes it from every mirror.
	rec := gw.store.Records()[0]
	if err := gw.store.Delete(context.Background(), rec.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	for _, v := range []*viewer{alice, bob} {
		if got := v.sources(); len(got) != 0 {
			t.Fatalf("expected empty mirror after delete, got %v", got)
		}
	}

	// A second share followed by a clear flushes everyone.
	if ok, err := gw.manager.Dispatch(context.Background(), share.Request{
		Source:      "b.png",
		Mode:        share.ModeWindow,
		OptionName:  share.OptionUsers,
		OptionValue: share.UsersAll,
	}); err != nil || !ok {
		t.Fatalf("second dispatch: ok=%v err=%v", ok, err)
	}
	if err := gw.store.Clear(context.Background()); err != nil {
		t.Fatalf("clear: %v", err)
	}
	for _, v := range []*viewer{alice, bob} {
		if got := v.sources(); len(got) != 0 {
			t.Fatalf("expected empty mirror after clear, got %v", got)
		}
	}
}

func TestDispatchFlow_SelectionAndBlacklist(t *testing.T) {
	gw := newGateway(t, func(opts *share.ManagerOptions) {
		opts.Blacklist = policy.NewStatic([]string{"mallory"})
		opts.Recipients = picker.RecipientPickerFunc(func(_ context.Context, candidates []string) ([]string, bool, error) {
			return []string{"alice"}, true, nil
		})
	})
	alice := connectViewer(t, gw.lb, "alice")
	bob := connectViewer(t, gw.lb, "bob")
	mallory := connectViewer(t, gw.lb, "mallory")

	// Selection picks alice only.
	if ok, err := gw.manager.Dispatch(context.Background(), share.Request{
		Source:      "secret.png",
		Mode:        share.ModeWindow,
		OptionName:  share.OptionUsers,
		OptionValue: share.UsersSelection,
	}); err != nil || !ok {
		t.Fatalf("selection dispatch: ok=%v err=%v", ok, err)
	}
	if got := alice.sources(); len(got) != 1 {
		t.Fatalf("alice should mirror the selected share, got %v", got)
	}
	if got := bob.sources(); len(got) != 0 {
		t.Fatalf("bob was not selected, got %v", got)
	}

	// An all-share skips the blacklisted peer.
	if ok, err := gw.manager.Dispatch(context.Background(), share.Request{
		Source:      "open.png",
		Mode:        share.ModeWindow,
		OptionName:  share.OptionUsers,
		OptionValue: share.UsersAll,
	}); err != nil || !ok {
		t.Fatalf("all dispatch: ok=%v err=%v", ok, err)
	}
	if got := mallory.sources(); len(got) != 0 {
		t.Fatalf("mallory is blacklisted, got %v", got)
	}
	if got := bob.sources(); len(got) != 1 || got[0] != "open.png" {
		t.Fatalf("bob should mirror the open share, got %v", got)
	}
}
