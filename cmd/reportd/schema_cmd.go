package main

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-report-cache/pkg/di"
	"github.com/goliatone/go-report-cache/schema"
)

type schemaRow struct {
	Dataset   string            `json:"dataset"`
	Available bool              `json:"available"`
	Table     string            `json:"table,omitempty"`
	Columns   map[string]string `json:"columns,omitempty"`
	Missing   []string          `json:"missing,omitempty"`
	Error     string            `json:"error,omitempty"`
}

func newSchemaCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schema [dataset...]",
		Short: "Show which physical table and columns each dataset resolves to",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			container, err := di.NewContainer(ctx, cfg)
			if err != nil {
				return err
			}
			defer container.Close()

			names := args
			if len(names) == 0 {
				for _, ds := range container.Datasets().Datasets() {
					names = append(names, ds.Name)
				}
			}

			rows := make([]schemaRow, 0, len(names))
			for _, name := range names {
				row := schemaRow{Dataset: name}
				resolved, err := container.Datasets().Resolve(ctx, name)
				switch {
				case errors.Is(err, schema.ErrUnknownDataset):
					return err
				case err != nil:
					row.Error = err.Error()
				default:
					row.Available = true
					row.Table = resolved.Table
					row.Columns = resolved.Columns()
					row.Missing = resolved.Missing()
				}
				rows = append(rows, row)
			}

			if opts.wantJSON() {
				return printJSON(cmd.OutOrStdout(), rows)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "DATASET\tTABLE\tMISSING")
			for _, row := range rows {
				table := row.Table
				if !row.Available {
					table = "(unavailable)"
				}
				missing := strings.Join(row.Missing, ",")
				if missing == "" {
					missing = "-"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", row.Dataset, table, missing)
			}
			return tw.Flush()
		},
	}
}
