package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/fivetwenty-io/catalog-client/internal/client"
	"github.com/fivetwenty-io/catalog-client/internal/constants"
	"github.com/fivetwenty-io/catalog-client/pkg/catalog"
)

// RefreshReport is the output of the refresh command.
type RefreshReport struct {
	Categories []catalog.CategoryState `json:"categories" yaml:"categories"`
	Stats      catalog.CacheStats      `json:"stats"      yaml:"stats"`
}

// NewRefreshCommand creates the refresh command.
func NewRefreshCommand() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "refresh [CATEGORY...]",
		Short: "Reload name/id caches",
		Long: `Reload one or more categories from the tenant and report the result.

Categories: ` + categoryList(),
		RunE: func(cmd *cobra.Command, args []string) error {
			categories, err := parseCategories(args, all)
			if err != nil {
				return err
			}

			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				report := RefreshReport{Categories: make([]catalog.CategoryState, 0, len(categories))}

				for _, category := range categories {
					err := c.Cache().Refresh(ctx, category)
					if err != nil {
						return err
					}

					report.Categories = append(report.Categories, c.Cache().State(category))
				}

				report.Stats = c.Cache().Stats()

				return render(cmd.OutOrStdout(), report, func(w io.Writer) error {
					return displayRefreshTable(w, report)
				})
			})
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "refresh every category")

	return cmd
}

func displayRefreshTable(w io.Writer, report RefreshReport) error {
	rows := make([][]string, 0, len(report.Categories))

	for _, state := range report.Categories {
		loadedAt := constants.NotAvailable
		if !state.LoadedAt.IsZero() {
			loadedAt = state.LoadedAt.Format(time.RFC3339)
		}

		rows = append(rows, []string{
			state.Category.String(),
			fmt.Sprint(state.Entries),
			fmt.Sprint(state.Generation),
			loadedAt,
		})
	}

	err := renderTable(w, []string{"Category", "Entries", "Generation", "Loaded At"}, rows)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(w, "\nRefreshes: %d, failures: %d\n", report.Stats.Refreshes, report.Stats.RefreshFailures)

	return nil
}
