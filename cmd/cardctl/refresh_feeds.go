package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRefreshFeedsCommand(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh-feeds",
		Short: "Re-read every friend link feed into the cache",
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

			result, err := set.links.RefreshFeeds(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "refreshed %d feeds, %d failed\n", result.Refreshed, result.Failed)
			return nil
		},
	}
}
