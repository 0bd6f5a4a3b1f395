package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-report-cache/strategy"
)

type planView struct {
	Range        string   `json:"range"`
	Start        string   `json:"start"`
	End          string   `json:"end"`
	Volatility   string   `json:"volatility"`
	TTLSeconds   int      `json:"ttl_seconds"`
	Tags         []string `json:"tags"`
	CacheControl string   `json:"cache_control"`
}

func newPlanCmd(opts *rootOptions) *cobra.Command {
	var (
		rangeName string
		startDate string
		endDate   string
		dataset   string
		endpoint  string
		at        string
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the caching decision for a date range",
		Long:  "Resolves a named range or a start/end pair and prints the TTL, tags and Cache-Control header the service would use.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}

			var strategyOpts []strategy.Option
			if at != "" {
				now, err := time.Parse(time.DateOnly, at)
				if err != nil {
					return fmt.Errorf("--at: %w", err)
				}
				strategyOpts = append(strategyOpts, strategy.WithClock(func() time.Time { return now.Add(12 * time.Hour) }))
			}
			strategist, err := strategy.New(cfg.Strategy, strategyOpts...)
			if err != nil {
				return err
			}

			desc, err := strategist.ParseRange(rangeName, startDate, endDate)
			if err != nil {
				return err
			}
			plan := strategist.Plan(endpoint, dataset, desc)
			view := planView{
				Range:        plan.Range,
				Start:        desc.Start.Format(time.DateOnly),
				End:          desc.End.Format(time.DateOnly),
				Volatility:   string(plan.Volatility),
				TTLSeconds:   plan.Seconds(),
				Tags:         plan.Tags,
				CacheControl: plan.CacheControl(),
			}

			if opts.wantJSON() {
				return printJSON(cmd.OutOrStdout(), view)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "range:          %s (%s to %s)\n", view.Range, view.Start, view.End)
			fmt.Fprintf(out, "volatility:     %s\n", view.Volatility)
			fmt.Fprintf(out, "ttl:            %ds\n", view.TTLSeconds)
			fmt.Fprintf(out, "tags:           %s\n", strings.Join(view.Tags, " "))
			fmt.Fprintf(out, "cache-control:  %s\n", view.CacheControl)
			return nil
		},
	}

	cmd.Flags().StringVar(&rangeName, "range", "", "Named range (today, yesterday, thisWeek, last7Days, thisMonth, ...)")
	cmd.Flags().StringVar(&startDate, "start", "", "Custom range start (YYYY-MM-DD)")
	cmd.Flags().StringVar(&endDate, "end", "", "Custom range end (YYYY-MM-DD)")
	cmd.Flags().StringVar(&dataset, "dataset", "", "Dataset the entry belongs to")
	cmd.Flags().StringVar(&endpoint, "endpoint", "reports", "Endpoint the entry belongs to")
	cmd.Flags().StringVar(&at, "at", "", "Evaluate as of this date (YYYY-MM-DD) instead of today")
	return cmd
}
