package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/charlesng35/linkcard/internal/extract"
	"github.com/charlesng35/linkcard/internal/services"
)

type extractOutput struct {
	URL        string `json:"url"`
	StatusCode int    `json:"status_code"`
	Truncated  bool   `json:"truncated,omitempty"`
	extract.Metadata
}

func newExtractCommand(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "extract <url>",
		Short: "Fetch a page and print the card metadata it yields",
		Long:  "Fetches the page with the configured user agent and request filter, without touching the database or cache.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			normalized, err := services.NormalizeURL(args[0])
			if err != nil {
				return err
			}

			fetcher := newFetcher(cfg, cfg.SeedSettings())
			page, err := fetcher.Fetch(cmd.Context(), normalized)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", normalized, err)
			}

			out := extractOutput{
				URL:        page.URL,
				StatusCode: page.StatusCode,
				Truncated:  page.Truncated,
				Metadata:   extract.Extract(page.Text(), page.URL),
			}
			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(out)
		},
	}
}
