package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/carechain/internal/sqlite"
)

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration and event storage",
		Long:  "Create the configuration and data directories and seed the built-in event types.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(store *sqlite.Backend) error {
				ets, err := store.EventTypes(cmd.Context())
				if err != nil {
					return sysErrorf("list event types: %w", err)
				}
				if a.jsonMode {
					return writeJSON(cmd.OutOrStdout(), map[string]any{
						"configDir":  a.configDir,
						"eventTypes": len(ets),
					})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "carechain initialized (config: %s, %d event types)\n", a.configDir, len(ets))
				return nil
			})
		},
	}
}
