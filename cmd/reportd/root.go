package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-report-cache/internal/config"
)

var (
	version = "dev"
	commit  = "none"
)

func execute(args []string) int {
	rootCmd := newRootCmd()
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

type rootOptions struct {
	configPath string
	output     string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "reportd",
		Short:         "Cached report service",
		Long:          "Serves report and filter queries scoped to an actor's hierarchy, with volatility-aware caching.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to config file (default ./reportd.yaml or /etc/reportd/reportd.yaml)")
	rootCmd.PersistentFlags().StringVarP(&opts.output, "output", "o", "text", "Output format (text, json)")

	rootCmd.AddCommand(
		newServeCmd(opts),
		newSchemaCmd(opts),
		newPlanCmd(opts),
		newInvalidateCmd(opts),
		newVersionCmd(opts),
	)
	return rootCmd
}

func (o *rootOptions) load() (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.Config{}, err
	}
	return *cfg, nil
}

func (o *rootOptions) wantJSON() bool {
	return o.output == "json"
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newVersionCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the reportd version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.wantJSON() {
				return printJSON(cmd.OutOrStdout(), map[string]string{
					"version": version,
					"commit":  commit,
				})
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "reportd version %s (commit: %s)\n", version, commit)
			return nil
		},
	}
}
