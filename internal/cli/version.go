package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

const modulePath = "github.com/mesh-intelligence/carechain"

// Version is the release version, overridden at build time with
// -ldflags "-X github.com/mesh-intelligence/carechain/internal/cli.Version=...".
var Version = "0.1.0-dev"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the carechain version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "carechain v%s\nmodule: %s\n", Version, modulePath)
			return nil
		},
	}
}
