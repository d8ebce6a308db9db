package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/halcyonsec/scangate/api/schemas"
	"github.com/halcyonsec/scangate/internal/observability"
	"github.com/halcyonsec/scangate/internal/trends"
)

const dateLayout = "2006-01-02"

// newTrendCmd groups the trend reporting subcommands.
func newTrendCmd() *cobra.Command {
	trendCmd := &cobra.Command{
		Use:   "trend",
		Short: "Aggregates and compares finding trends over time",
	}
	trendCmd.AddCommand(newTrendAggregateCmd(), newTrendListCmd(), newTrendCompareCmd())
	return trendCmd
}

// withAggregator wires the stores and hands a trend aggregator to fn.
func withAggregator(cmd *cobra.Command, fn func(a *trends.Aggregator) error) error {
	ctx := cmd.Context()
	logger := observability.GetLogger()

	comps, err := initializeComponents(ctx, appConfig, logger, true)
	if err != nil {
		return err
	}
	defer comps.Shutdown()

	agg, err := trends.NewAggregator(comps.Store, comps.Store, logger)
	if err != nil {
		return err
	}
	return fn(agg)
}

func parseDate(cmd *cobra.Command, flag string) (time.Time, error) {
	raw, _ := cmd.Flags().GetString(flag)
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --%s %q: expected YYYY-MM-DD", flag, raw)
	}
	return t, nil
}

func newTrendAggregateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Folds one day of scans into a daily trend row",
		Long: `Aggregates all completed scans of a repository on the given date into a
single daily trend row. A day with no scans still produces a zero row, so
gaps stay visible in charts. Aggregating the same day again overwrites the
earlier row.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, _ := cmd.Flags().GetString("repo")
			date, err := parseDate(cmd, "date")
			if err != nil {
				return err
			}

			return withAggregator(cmd, func(a *trends.Aggregator) error {
				row, err := a.AggregateDaily(cmd.Context(), repo, date)
				if err != nil {
					return err
				}
				return printJSON(row)
			})
		},
	}
	cmd.Flags().String("repo", "", "Repository reference.")
	cmd.Flags().String("date", time.Now().UTC().Format(dateLayout), "Date to aggregate (YYYY-MM-DD).")
	_ = cmd.MarkFlagRequired("repo")
	return cmd
}

func newTrendListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Lists daily trend rows for a repository",
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, _ := cmd.Flags().GetString("repo")
			from, err := parseDate(cmd, "from")
			if err != nil {
				return err
			}
			to, err := parseDate(cmd, "to")
			if err != nil {
				return err
			}

			return withAggregator(cmd, func(a *trends.Aggregator) error {
				rows, err := a.ListRange(cmd.Context(), repo, from, to)
				if err != nil {
					return err
				}
				if rows == nil {
					rows = []schemas.DailyTrend{}
				}
				return printJSON(rows)
			})
		},
	}
	cmd.Flags().String("repo", "", "Repository reference.")
	cmd.Flags().String("from", "", "Range start (YYYY-MM-DD).")
	cmd.Flags().String("to", time.Now().UTC().Format(dateLayout), "Range end (YYYY-MM-DD).")
	_ = cmd.MarkFlagRequired("repo")
	_ = cmd.MarkFlagRequired("from")
	return cmd
}

func newTrendCompareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Compares finding averages between two date ranges",
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, _ := cmd.Flags().GetString("repo")

			var bounds [4]time.Time
			for i, flag := range []string{"period1-from", "period1-to", "period2-from", "period2-to"} {
				t, err := parseDate(cmd, flag)
				if err != nil {
					return err
				}
				bounds[i] = t
			}

			return withAggregator(cmd, func(a *trends.Aggregator) error {
				cmp, err := a.ComparePeriods(cmd.Context(), repo, bounds[0], bounds[1], bounds[2], bounds[3])
				if err != nil {
					return err
				}
				return printJSON(cmp)
			})
		},
	}
	cmd.Flags().String("repo", "", "Repository reference.")
	cmd.Flags().String("period1-from", "", "Baseline period start (YYYY-MM-DD).")
	cmd.Flags().String("period1-to", "", "Baseline period end (YYYY-MM-DD).")
	cmd.Flags().String("period2-from", "", "Comparison period start (YYYY-MM-DD).")
	cmd.Flags().String("period2-to", "", "Comparison period end (YYYY-MM-DD).")
	_ = cmd.MarkFlagRequired("repo")
	for _, f := range []string{"period1-from", "period1-to", "period2-from", "period2-to"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}
