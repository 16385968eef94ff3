// Package share implements the authorization-gated dispatch pipeline that
// turns a share request into peer pushes and a history write.
//
// The pipeline is a static registry of predicate+handler pairs. Per
// dispatch, the registry is filtered against the initial context into a
// concrete ordered step list; each active step may pass the context
// through, enrich it, or abort the whole dispatch. Aborts are
// non-compensating: effects of steps that already ran stay in place.
package share

import (
	"context"
	"errors"
	"fmt"

	"github.com/tinyland-inc/beamcast/pkg/bus"
	"github.com/tinyland-inc/beamcast/pkg/history"
	"github.com/tinyland-inc/beamcast/pkg/logger"
	"github.com/tinyland-inc/beamcast/pkg/picker"
	"github.com/tinyland-inc/beamcast/pkg/policy"
	"github.com/tinyland-inc/beamcast/pkg/transport"
	"github.com/tinyland-inc/beamcast/pkg/wire"
)

// StepFunc is one pipeline step. Returning a nil context aborts the
// dispatch without error; returning an error rejects it.
type StepFunc func(ctx context.Context, pc *Context) (*Context, error)

type step struct {
	name string
	// when is evaluated against the initial context to decide whether the
	// step joins this dispatch. Nil means always active.
	when func(pc *Context) bool
	run  StepFunc
}

// ManagerOptions configures a Manager. Roster, Sender and History are
// required; the rest activate optional steps and strategies.
type ManagerOptions struct {
	// Owner marks this process as the privileged operator. Dispatch from a
	// non-owner process is denied with a notice.
	Owner   bool
	OwnerID string

	Catalog *Catalog // defaults to DefaultCatalog
	Roster  transport.Roster
	Sender  transport.Sender
	History *history.Store

	// Blacklist is optional; nil means nobody is blacklisted.
	Blacklist policy.Blacklist
	// Recipients is required for the explicit-selection strategy.
	Recipients picker.RecipientPicker
	// PlacementPicker is required when several placement targets exist.
	PlacementPicker picker.PlacementPicker
	// Scenes is required for scene mode and darkness coupling.
	Scenes SceneService
	// Placements is required for scene mode.
	Placements *PlacementStore
	// Events is optional.
	Events *bus.EventBus
	// Notifier defaults to NopNotifier.
	Notifier Notifier
}

// Manager runs share requests through the dispatch pipeline.
type Manager struct {
	owner   bool
	ownerID string

	catalog         *Catalog
	roster          transport.Roster
	sender          transport.Sender
	history         *history.Store
	blacklist       policy.Blacklist
	recipients      picker.RecipientPicker
	placementPicker picker.PlacementPicker
	scenes          SceneService
	placements      *PlacementStore
	events          *bus.EventBus
	notifier        Notifier

	steps []step
}

func NewManager(opts ManagerOptions) (*Manager, error) {
	if opts.Roster == nil || opts.Sender == nil || opts.History == nil {
		return nil, fmt.Errorf("share: roster, sender and history are required")
	}
	if opts.Catalog == nil {
		opts.Catalog = DefaultCatalog()
	}
	if opts.Notifier == nil {
		opts.Notifier = NopNotifier{}
	}

	m := &Manager{
		owner:           opts.Owner,
		ownerID:         opts.OwnerID,
		catalog:         opts.Catalog,
		roster:          opts.Roster,
		sender:          opts.Sender,
		history:         opts.History,
		blacklist:       opts.Blacklist,
		recipients:      opts.Recipients,
		placementPicker: opts.PlacementPicker,
		scenes:          opts.Scenes,
		placements:      opts.Placements,
		events:          opts.Events,
		notifier:        opts.Notifier,
	}

	peerLimited := func(pc *Context) bool { return pc.Mode != ModeScene }
	sceneScoped := func(pc *Context) bool { return pc.Mode == ModeScene }
	darkened := func(pc *Context) bool { return pc.Flags[FlagDarken] }

	// Registry order is execution order: authorization before recipient
	// resolution, resolution before policy filtering, filtering before
	// placement and persistence, persistence before fan-out, and the
	// history write strictly last.
	m.steps = []step{
		{name: "authorize", run: m.stepAuthorize},
		{name: "resolve_recipients", run: m.stepResolveRecipients},
		{name: "filter_blacklist", when: peerLimited, run: m.stepFilterBlacklist},
		{name: "resolve_placement", when: sceneScoped, run: m.stepResolvePlacement},
		{name: "capture_ambient", when: darkened, run: m.stepCaptureAmbient},
		{name: "persist_placement", when: sceneScoped, run: m.stepPersistPlacement},
		{name: "notify_peers", when: peerLimited, run: m.stepNotifyPeers},
		{name: "record_history", run: m.stepRecordHistory},
	}

	return m, nil
}

// Dispatch validates the request and runs it through the active steps.
// It returns (false, *ValidationError) for malformed requests, (false, nil)
// when a step aborts (denied, cancelled pick, empty recipient set, no
// placement target), and (false, err) when persistence fails. A true result
// may still carry an error: best-effort push failures are reported to the
// caller for logging after the dispatch has fully taken effect.
func (m *Manager) Dispatch(ctx context.Context, req Request) (bool, error) {
	if err := m.catalog.Validate(req); err != nil {
		return false, err
	}

	pc := &Context{Request: req}
	pc.Flags = m.catalog.FilterFlags(req.Mode, req.Flags)

	active := make([]step, 0, len(m.steps))
	for _, st := range m.steps {
		if st.when == nil || st.when(pc) {
			active = append(active, st)
		}
	}

	for _, st := range active {
		next, err := st.run(ctx, pc)
		if err != nil {
			return false, err
		}
		if next == nil {
			logger.InfoCF("share", "Dispatch aborted", map[string]any{
				"step":   st.name,
				"source": req.Source,
			})
			return false, nil
		}
		pc = next
	}

	m.announce(bus.Event{Type: bus.EventDispatchCompleted, Fields: map[string]any{
		"source":     pc.Source,
		"mode":       string(pc.Mode),
		"recipients": len(pc.Recipients),
	}})
	logger.InfoCF("share", "Dispatch completed", map[string]any{
		"source":     pc.Source,
		"mode":       string(pc.Mode),
		"recipients": len(pc.Recipients),
	})

	return true, errors.Join(pc.pushErrs...)
}

func (m *Manager) stepAuthorize(_ context.Context, pc *Context) (*Context, error) {
	if !m.owner {
		m.notifier.Warn("Only the owner can share media.")
		return nil, nil
	}
	return pc, nil
}

func (m *Manager) stepResolveRecipients(ctx context.Context, pc *Context) (*Context, error) {
	if pc.OptionName == OptionUsers && pc.OptionValue == UsersSelection {
		if m.recipients == nil {
			return nil, fmt.Errorf("share: selection strategy requires a recipient picker")
		}
		selection, ok, err := m.recipients.PickRecipients(ctx, m.connectedViewers())
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		pc.Recipients = m.dropOwner(selection)
		return pc, nil
	}

	// Everything else shares to all currently-connected viewers, a closed
	// enumeration taken at dispatch time.
	pc.Recipients = m.connectedViewers()
	return pc, nil
}

func (m *Manager) stepFilterBlacklist(_ context.Context, pc *Context) (*Context, error) {
	if m.blacklist != nil {
		blocked := m.blacklist.Blacklisted()
		kept := pc.Recipients[:0]
		for _, id := range pc.Recipients {
			if !blocked[id] {
				kept = append(kept, id)
			}
		}
		pc.Recipients = kept
	}
	if len(pc.Recipients) == 0 {
		// Nothing left to notify; persisting would record a share nobody
		// received.
		return nil, nil
	}
	return pc, nil
}

func (m *Manager) stepResolvePlacement(ctx context.Context, pc *Context) (*Context, error) {
	var targets []string
	if m.scenes != nil {
		targets = m.scenes.PlacementTargets()
	}

	if pc.TargetArea != "" {
		if !containsTarget(targets, pc.TargetArea) {
			return nil, &ValidationError{Field: "target_area", Reason: "unknown placement target"}
		}
		pc.Placement = pc.TargetArea
		return pc, nil
	}

	switch len(targets) {
	case 0:
		return nil, nil
	case 1:
		pc.Placement = targets[0]
	default:
		if m.placementPicker == nil {
			return nil, fmt.Errorf("share: multiple placement targets require a placement picker")
		}
		target, ok, err := m.placementPicker.PickPlacement(ctx, targets)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		pc.Placement = target
	}
	return pc, nil
}

func (m *Manager) stepCaptureAmbient(_ context.Context, pc *Context) (*Context, error) {
	if m.scenes == nil {
		return nil, nil
	}
	sceneID, ok := m.scenes.ActiveScene()
	if !ok {
		// Darkness coupling needs an active presentation surface to anchor
		// the snapshot to.
		return nil, nil
	}
	pc.SceneID = sceneID
	return pc, nil
}

func (m *Manager) stepPersistPlacement(_ context.Context, pc *Context) (*Context, error) {
	if m.placements == nil {
		return nil, fmt.Errorf("share: scene mode requires a placement store")
	}
	if _, err := m.placements.Put(pc.Placement, pc.Source, pc.SceneID); err != nil {
		return nil, err
	}
	return pc, nil
}

func (m *Manager) stepNotifyPeers(ctx context.Context, pc *Context) (*Context, error) {
	payload := wire.Materialize{
		Source:  pc.Source,
		Mode:    string(pc.Mode),
		Flags:   pc.Flags,
		SceneID: pc.SceneID,
	}
	for _, peerID := range pc.Recipients {
		if err := m.sender.Send(ctx, peerID, wire.ChannelMaterialize, payload); err != nil {
			logger.WarnCF("share", "Materialize push failed", map[string]any{
				"peer":  peerID,
				"error": err.Error(),
			})
			pc.pushErrs = append(pc.pushErrs, err)
		}
	}
	return pc, nil
}

func (m *Manager) stepRecordHistory(ctx context.Context, pc *Context) (*Context, error) {
	if _, err := m.history.Record(ctx, pc.Source, pc.Recipients, pc.Flags); err != nil {
		var pushErr *history.PushError
		if errors.As(err, &pushErr) {
			pc.pushErrs = append(pc.pushErrs, err)
			return pc, nil
		}
		return nil, err
	}
	return pc, nil
}

func (m *Manager) connectedViewers() []string {
	return m.dropOwner(m.roster.ConnectedPeers())
}

func (m *Manager) dropOwner(peers []string) []string {
	seen := make(map[string]bool, len(peers))
	out := make([]string, 0, len(peers))
	for _, id := range peers {
		if id == "" || id == m.ownerID || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func (m *Manager) announce(event bus.Event) {
	if m.events == nil {
		return
	}
	m.events.Publish(event)
}

func containsTarget(targets []string, target string) bool {
	for _, t := range targets {
		if t == target {
			return true
		}
	}
	return false
}
