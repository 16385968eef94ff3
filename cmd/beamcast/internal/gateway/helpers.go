package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tinyland-inc/beamcast/cmd/beamcast/internal"
	"github.com/tinyland-inc/beamcast/pkg/auth"
	"github.com/tinyland-inc/beamcast/pkg/bus"
	"github.com/tinyland-inc/beamcast/pkg/history"
	"github.com/tinyland-inc/beamcast/pkg/logger"
	"github.com/tinyland-inc/beamcast/pkg/policy"
	"github.com/tinyland-inc/beamcast/pkg/prune"
	"github.com/tinyland-inc/beamcast/pkg/share"
	"github.com/tinyland-inc/beamcast/pkg/storage"
	"github.com/tinyland-inc/beamcast/pkg/transport/ws"
)

func gatewayCmd(debug bool) error {
	if debug {
		logger.SetLevel(logger.DEBUG)
	}

	cfg, err := internal.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	backing, err := storage.NewFileStore(cfg.DataDirPath())
	if err != nil {
		return fmt.Errorf("error opening data dir: %w", err)
	}

	events := bus.NewEventBus()
	defer events.Close()

	hub := ws.NewHub(cfg.Gateway.AuthToken)
	defer hub.Close()

	store, err := history.NewStore(history.StoreOptions{
		Backing: backing,
		Sender:  hub,
		Roster:  hub,
		Events:  events,
		OwnerID: cfg.Gateway.OwnerID,
		Owner:   true,
	})
	if err != nil {
		return fmt.Errorf("error loading history: %w", err)
	}

	placements, err := share.NewPlacementStore(backing)
	if err != nil {
		return fmt.Errorf("error loading placements: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var blacklist policy.Blacklist = policy.NewStatic(cfg.Policy.Blacklist)
	if cfg.Policy.RemoteURL != "" {
		remote, err := policy.NewRemote(policy.RemoteConfig{
			URL:             cfg.Policy.RemoteURL,
			Key:             cfg.Policy.RemoteKey,
			RefreshInterval: time.Duration(cfg.Policy.RefreshMinutes) * time.Minute,
		}, policy.NewStatic(cfg.Policy.Blacklist))
		if err != nil {
			return err
		}
		defer remote.Close()
		go remote.Run(ctx)
		blacklist = remote
	}

	manager, err := share.NewManager(share.ManagerOptions{
		Owner:      true,
		OwnerID:    cfg.Gateway.OwnerID,
		Roster:     hub,
		Sender:     hub,
		History:    store,
		Blacklist:  blacklist,
		Placements: placements,
		Events:     events,
		Notifier: share.NotifierFunc(func(msg string) {
			logger.WarnC("gateway", msg)
		}),
	})
	if err != nil {
		return err
	}

	// Every fresh connection gets the full snapshot it is entitled to;
	// this is what makes fire-and-forget pushes safe for reconnects.
	hub.OnConnect(func(peerID string) {
		if err := store.SyncPeer(ctx, peerID); err != nil {
			logger.WarnCF("gateway", "Initial sync failed", map[string]any{
				"peer":  peerID,
				"error": err.Error(),
			})
		}
	})

	if cfg.Prune.Enabled {
		pruner, err := prune.New(store, prune.Options{
			Schedule:   cfg.Prune.Schedule,
			MaxAge:     time.Duration(cfg.Prune.MaxAgeHours) * time.Hour,
			MaxRecords: cfg.Prune.MaxRecords,
		})
		if err != nil {
			return err
		}
		go pruner.Run(ctx)
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	mux.HandleFunc("/api/share", shareHandler(cfg.Gateway.AuthToken, cfg.Gateway.OwnerID, manager))
	mux.HandleFunc("/api/history/clear", clearHandler(cfg.Gateway.AuthToken, cfg.Gateway.OwnerID, store))

	server := &http.Server{
		Addr:    cfg.Gateway.ListenAddr,
		Handler: mux,
	}

	go func() {
		logger.InfoCF("gateway", "Listening", map[string]any{"addr": cfg.Gateway.ListenAddr})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorCF("gateway", "Server failed", map[string]any{"error": err.Error()})
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}

	logger.InfoC("gateway", "Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}

// authorized gates the owner-only HTTP surface. The owner's client presents
// the shared token and its peer identity; anything else is denied.
func authorized(r *http.Request, token, ownerID string) bool {
	if !auth.Equal(r.Header.Get("X-Beamcast-Token"), token) {
		return false
	}
	return r.Header.Get("X-Beamcast-Peer") == ownerID
}

func shareHandler(token, ownerID string, manager *share.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if !authorized(r, token, ownerID) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var req share.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		ok, err := manager.Dispatch(r.Context(), req)
		var validationErr *share.ValidationError
		switch {
		case errors.As(err, &validationErr):
			http.Error(w, validationErr.Error(), http.StatusBadRequest)
			return
		case err != nil && !ok:
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		case err != nil:
			// Dispatch took effect; push failures are logged, not fatal.
			logger.WarnCF("gateway", "Dispatch completed with push failures", map[string]any{
				"error": err.Error(),
			})
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"success": ok})
	}
}

func clearHandler(token, ownerID string, store *history.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if !authorized(r, token, ownerID) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		if err := store.Clear(r.Context()); err != nil {
			var pushErr *history.PushError
			if !errors.As(err, &pushErr) {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			logger.WarnCF("gateway", "Clear completed with push failures", map[string]any{
				"error": err.Error(),
			})
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"success": true})
	}
}
