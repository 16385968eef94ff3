// Beamcast - push media to connected viewers and keep shared history
// consistent, with the operator's gateway as the transient source of truth.

package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/tinyland-inc/beamcast/cmd/beamcast/internal/gateway"
	"github.com/tinyland-inc/beamcast/cmd/beamcast/internal/version"
	"github.com/tinyland-inc/beamcast/cmd/beamcast/internal/viewer"
)

func NewBeamcastCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "beamcast",
		Short:   "Share media with connected viewers",
		Example: "beamcast gateway",
	}

	cmd.AddCommand(
		gateway.NewGatewayCommand(),
		viewer.NewViewerCommand(),
		version.NewVersionCommand(),
	)

	return cmd
}

func main() {
	cmd := NewBeamcastCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
