package viewer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tinyland-inc/beamcast/pkg/auth"
	"github.com/tinyland-inc/beamcast/pkg/history"
	"github.com/tinyland-inc/beamcast/pkg/logger"
	"github.com/tinyland-inc/beamcast/pkg/render"
	"github.com/tinyland-inc/beamcast/pkg/transport/ws"
	"github.com/tinyland-inc/beamcast/pkg/utils"
	"github.com/tinyland-inc/beamcast/pkg/wire"
)

func NewViewerCommand() *cobra.Command {
	var url string
	var peerID string
	var token string
	var pasteToken bool

	cmd := &cobra.Command{
		Use:   "viewer",
		Short: "Connect to a gateway as a viewer peer",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if err := utils.ValidatePeerID(peerID); err != nil {
				return fmt.Errorf("--peer: %w", err)
			}
			if pasteToken {
				pasted, err := auth.ReadToken(os.Stdin)
				if err != nil {
					return err
				}
				token = pasted
			}
			return viewerCmd(url, peerID, token)
		},
	}

	cmd.Flags().StringVar(&url, "url", "ws://127.0.0.1:8793/ws", "Gateway websocket URL")
	cmd.Flags().StringVar(&peerID, "peer", "", "Peer identity to connect as")
	cmd.Flags().StringVar(&token, "token", "", "Gateway auth token")
	cmd.Flags().BoolVar(&pasteToken, "paste-token", false, "Prompt for the auth token on stdin")

	return cmd
}

func viewerCmd(url, peerID, token string) error {
	mirror := history.NewMirror()
	queue := render.NewSyncQueue(mirror, consoleSurface{})
	defer queue.Close()

	client := ws.NewClient(url, peerID, token)
	render.Bind(queue, client.Handle)
	client.Handle(wire.ChannelMaterialize, func(env wire.Envelope) {
		var msg wire.Materialize
		if err := env.Decode(&msg); err != nil {
			logger.WarnCF("viewer", "Dropping malformed materialize", map[string]any{"error": err.Error()})
			return
		}
		fmt.Printf("▶ presenting %s (%s)\n", msg.Source, msg.Mode)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()

	fmt.Printf("connecting to %s as %s\n", url, peerID)
	err := client.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// consoleSurface renders the shared-history view as log lines. It stands in
// for the canvas compositor when running headless.
type consoleSurface struct{}

func (consoleSurface) Insert(rec wire.Record) {
	fmt.Printf("+ %s\n", rec.Source)
}

func (consoleSurface) Prepend(recs []wire.Record) {
	for _, rec := range recs {
		fmt.Printf("^ %s\n", rec.Source)
	}
}

func (consoleSurface) Remove(id string, animate bool) {
	fmt.Printf("- %s\n", id)
}

func (consoleSurface) Clear() {
	fmt.Println("(history cleared)")
}
