package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-report-cache/pkg/di"
)

func newInvalidateCmd(opts *rootOptions) *cobra.Command {
	var tags []string

	cmd := &cobra.Command{
		Use:   "invalidate",
		Short: "Evict cached entries by tag from a shared cache backend",
		Long:  "Evicts every entry filed under the given tags. Only useful with a shared backend such as redis; the memory backend belongs to the running server.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(tags) == 0 {
				return errors.New("at least one --tag is required")
			}
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			container, err := di.NewContainer(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer container.Close()

			evicted, err := container.Invalidate(cmd.Context(), tags...)
			if err != nil {
				return err
			}
			if opts.wantJSON() {
				return printJSON(cmd.OutOrStdout(), map[string]any{"tags": tags, "evicted": evicted})
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "evicted %d entries\n", evicted)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&tags, "tag", nil, "Tag to evict (repeatable), e.g. dataset:daily-sales")
	return cmd
}
