package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/JakeFAU/feedsync/internal/reconcile"
)

// newStatsCmd creates the 'stats' subcommand, which reports on the stored articles.
func newStatsCmd() *cobra.Command {
	var categoryLimit, recentLimit int
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Prints totals, per-category counts and recent articles",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			store := appInstance.Store()
			ctx := cmd.Context()

			totals, err := store.Totals(ctx)
			if err != nil {
				return fmt.Errorf("load totals: %w", err)
			}
			categories, err := store.CategoryStats(ctx, categoryLimit)
			if err != nil {
				return fmt.Errorf("load category stats: %w", err)
			}
			recent, err := store.RecentArticles(ctx, recentLimit)
			if err != nil {
				return fmt.Errorf("load recent articles: %w", err)
			}

			out := cmd.OutOrStdout()
			renderTotals(out, totals)
			renderCategories(out, categories)
			renderRecent(out, recent)
			return nil
		},
	}
	cmd.Flags().IntVar(&categoryLimit, "categories", 10, "number of categories to list")
	cmd.Flags().IntVar(&recentLimit, "recent", 10, "number of recent articles to list")
	return cmd
}

func renderTotals(w io.Writer, totals reconcile.Totals) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Articles", "Creators", "Categories"})
	t.AppendRow(table.Row{totals.Articles, totals.Creators, totals.Categories})
	t.SetStyle(table.StyleRounded)
	t.Render()
}

func renderCategories(w io.Writer, categories []reconcile.CategoryCount) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Category", "Articles"})
	for _, c := range categories {
		t.AppendRow(table.Row{c.Name, c.Count})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
}

func renderRecent(w io.Writer, articles []reconcile.ArticleSummary) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"ID", "Published", "Title", "Creator", "Categories"})
	for _, a := range articles {
		t.AppendRow(table.Row{
			a.ID,
			a.PublishedAt.Format("2006-01-02 15:04"),
			a.Title,
			a.Creator,
			strings.Join(a.Categories, ", "),
		})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
}
