package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/charlesng35/linkcard/internal/cache"
)

func newPurgeCommand(opts *cliOptions) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Remove expired cache entries",
		Long:  "Removes expired entries from the configured cache. With --all every cached card payload is dropped as well, forcing a refetch on next view.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			set, err := openServices(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer set.Close()

			out := cmd.OutOrStdout()
			if purger, ok := set.store.(cache.Purger); ok {
				removed, err := purger.PurgeExpired(cmd.Context())
				if err != nil {
					return fmt.Errorf("purge expired entries: %w", err)
				}
				fmt.Fprintf(out, "removed %d expired cache entries\n", removed)
			}

			if all {
				removed, err := set.cards.PurgeCache(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "removed %d cached cards\n", removed)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Also drop unexpired card payloads")
	return cmd
}
