package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/feedsync/internal/reconcile"
)

// newSyncCmd creates the 'sync' subcommand, which performs one reconciliation run.
func newSyncCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Runs one reconciliation pass against the site",
		Long: `Compares the store with the site's post sitemaps, crawls the RSS feed when the
store is behind, then backfills every sitemap URL still missing from the store.
Pushes metrics to the configured Pushgateway when the run ends.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			report, runErr := appInstance.Run(cmd.Context())

			if err := appInstance.PushMetrics(cmd.Context()); err != nil {
				appInstance.Logger().Warn("metrics push failed", zap.Error(err))
			}
			if asJSON {
				if err := writeReportJSON(cmd.OutOrStdout(), report); err != nil {
					return err
				}
			} else {
				renderReport(cmd.OutOrStdout(), report)
			}
			return runErr
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the run report as JSON")
	return cmd
}

func writeReportJSON(w io.Writer, report reconcile.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

func renderReport(w io.Writer, r reconcile.Report) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("sync run " + r.RunID)
	t.AppendHeader(table.Row{"Step", "Value"})
	t.AppendRows([]table.Row{
		{"states", joinStates(r.States)},
		{"sitemap articles", r.SitemapCount},
		{"stored before", r.StoreCountBefore},
		{"feed pages", fmt.Sprintf("%d of %d", r.Feed.Pages, r.Plan.PageBudget)},
		{"feed", formatTally(r.FeedOutcomes)},
		{"missing after feed", r.MissingURLs},
		{"backfill", formatTally(r.Backfill)},
		{"stored after", r.StoreCountAfter},
		{"duration", r.Duration().Round(time.Millisecond).String()},
	})
	if r.Failed() {
		t.AppendSeparator()
		t.AppendRow(table.Row{"failed in", string(r.FailedState)})
		t.AppendRow(table.Row{"error", r.Error})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()

	if len(r.TopCategories) > 0 {
		renderCategories(w, r.TopCategories)
	}
}

func joinStates(states []reconcile.State) string {
	parts := make([]string, len(states))
	for i, s := range states {
		parts[i] = string(s)
	}
	return strings.Join(parts, " > ")
}

func formatTally(t reconcile.Tally) string {
	out := fmt.Sprintf("%d stored, %d existing, %d skipped", t.Stored, t.Existing, t.Skipped)
	if len(t.Reasons) == 0 {
		return out
	}
	reasons := make([]string, 0, len(t.Reasons))
	for reason, n := range t.Reasons {
		reasons = append(reasons, fmt.Sprintf("%s=%d", reason, n))
	}
	sort.Strings(reasons)
	return out + " (" + strings.Join(reasons, ", ") + ")"
}
