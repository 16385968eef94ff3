package e2e

import (
	"context"
	"testing"

	"github.com/tinyland-inc/beamcast/pkg/share"
	"github.com/tinyland-inc/beamcast/pkg/wire"
)

// A peer that lost pushes converges through the full sync it receives on
// reconnect; fire-and-forget delivery depends on this.
func TestReconnect_FullSyncConverges(t *testing.T) {
	gw := newGateway(t, nil)
	connectViewer(t, gw.lb, "alice")

	// bob is connected but his client drops every push on the floor.
	gw.lb.Register("bob", func(wire.Envelope) {})

	for _, source := range []string{"a.png", "b.png"} {
		if ok, err := gw.manager.Dispatch(context.Background(), share.Request{
			Source:      source,
			Mode:        share.ModeWindow,
			OptionName:  share.OptionUsers,
			OptionValue: share.UsersAll,
		}); err != nil || !ok {
			t.Fatalf("dispatch %s: ok=%v err=%v", source, ok, err)
		}
	}

	// bob reconnects with a fresh mirror and gets the sync a gateway sends
	// every new connection.
	bob := connectViewer(t, gw.lb, "bob")
	if err := gw.store.SyncPeer(context.Background(), "bob"); err != nil {
		t.Fatalf("sync: %v", err)
	}

	got := bob.sources()
	seen := make(map[string]bool, len(got))
	for _, source := range got {
		seen[source] = true
	}
	if len(got) != 2 || !seen["a.png"] || !seen["b.png"] {
		t.Fatalf("expected a.png and b.png after sync, got %v", got)
	}
}

func TestReconnect_SyncIsScopedToRecipient(t *testing.T) {
	gw := newGateway(t, nil)
	connectViewer(t, gw.lb, "alice")

	// Shared while only alice is connected; bob is not a recipient.
	if ok, err := gw.manager.Dispatch(context.Background(), share.Request{
		Source:      "private.png",
		Mode:        share.ModeWindow,
		OptionName:  share.OptionUsers,
		OptionValue: share.UsersAll,
	}); err != nil || !ok {
		t.Fatalf("dispatch: ok=%v err=%v", ok, err)
	}

	bob := connectViewer(t, gw.lb, "bob")
	if err := gw.store.SyncPeer(context.Background(), "bob"); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if got := bob.sources(); len(got) != 0 {
		t.Fatalf("bob never received private.png, got %v", got)
	}

	// A later share to everyone does reach bob.
	if ok, err := gw.manager.Dispatch(context.Background(), share.Request{
		Source:      "shared.png",
		Mode:        share.ModeWindow,
		OptionName:  share.OptionUsers,
		OptionValue: share.UsersAll,
	}); err != nil || !ok {
		t.Fatalf("dispatch: ok=%v err=%v", ok, err)
	}
	if got := bob.sources(); len(got) != 1 || got[0] != "shared.png" {
		t.Fatalf("expected [shared.png], got %v", got)
	}
}
