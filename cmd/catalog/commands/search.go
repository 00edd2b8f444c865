package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/fivetwenty-io/catalog-client/internal/client"
	"github.com/fivetwenty-io/catalog-client/pkg/catalog"
)

// SearchResult is the output of the search command.
type SearchResult struct {
	Total       int64           `json:"total"                  yaml:"total"`
	Assets      []catalog.Asset `json:"assets"                 yaml:"assets"`
	FailedPages int64           `json:"failed_pages,omitempty" yaml:"failed_pages,omitempty"`
}

type searchOptions struct {
	pageSize   int64
	limit      int
	parallel   int
	attributes []string
	types      []string
	countOnly  bool
}

// NewSearchCommand creates the search command.
func NewSearchCommand() *cobra.Command {
	opts := &searchOptions{}

	cmd := &cobra.Command{
		Use:   "search [QUERY_JSON]",
		Short: "Search catalog assets",
		Long: `Run an index search and print the matching assets.

QUERY_JSON is an Elasticsearch query object; use "-" to read it from stdin.
Without a query, --type selects active assets of the given types.
With --parallel N the result pages are fetched concurrently by N workers,
and assets arrive in no particular order.`,
		Example: `  catalog search --type Table --limit 20
  catalog search '{"term":{"__typeName.keyword":"Column"}}' --parallel 8`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			request, err := buildSearchRequest(cmd, args, opts)
			if err != nil {
				return err
			}

			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				result, err := runSearch(ctx, c.Search(), request, opts)
				if err != nil {
					return err
				}

				return render(cmd.OutOrStdout(), result, func(w io.Writer) error {
					return displaySearchTable(w, result, opts.countOnly)
				})
			})
		},
	}

	cmd.Flags().Int64Var(&opts.pageSize, "page-size", 0, "results per page (defaults to the tenant page size)")
	cmd.Flags().IntVar(&opts.limit, "limit", 0, "stop after this many assets (0 for all)")
	cmd.Flags().IntVar(&opts.parallel, "parallel", 0, "fetch pages with this many workers")
	cmd.Flags().StringSliceVar(&opts.attributes, "attributes", []string{"name", "qualifiedName"}, "attributes to return")
	cmd.Flags().StringSliceVar(&opts.types, "type", nil, "asset types to match when no query is given")
	cmd.Flags().BoolVar(&opts.countOnly, "count", false, "only print the approximate number of matches")

	return cmd
}

func buildSearchRequest(cmd *cobra.Command, args []string, opts *searchOptions) (catalog.SearchRequest, error) {
	request := catalog.SearchRequest{
		Attributes: opts.attributes,
		PageSize:   opts.pageSize,
	}

	if opts.pageSize < 0 {
		return request, catalog.ErrInvalidPageSize
	}

	if len(args) == 0 {
		if len(opts.types) == 0 {
			return request, catalog.ErrQueryRequired
		}

		request.Query = client.ActiveAssetsQuery(opts.types...)

		return request, nil
	}

	raw := args[0]

	if raw == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return request, fmt.Errorf("failed to read query: %w", err)
		}

		raw = string(data)
	}

	err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &request.Query)
	if err != nil {
		return request, fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}

	return request, nil
}

func runSearch(ctx context.Context, searcher *catalog.Searcher, request catalog.SearchRequest, opts *searchOptions) (*SearchResult, error) {
	if opts.countOnly {
		total, err := searcher.Count(ctx, request)
		if err != nil {
			return nil, err
		}

		return &SearchResult{Total: total, Assets: []catalog.Asset{}}, nil
	}

	if opts.parallel > 0 {
		return searchParallel(ctx, searcher, request, opts)
	}

	cursor, err := searcher.Search(ctx, request)
	if err != nil {
		return nil, err
	}

	result := &SearchResult{Total: cursor.Total(), Assets: []catalog.Asset{}}

	for asset, err := range cursor.Seq() {
		if err != nil {
			return nil, err
		}

		result.Assets = append(result.Assets, asset)

		if opts.limit > 0 && len(result.Assets) >= opts.limit {
			break
		}
	}

	return result, nil
}

func searchParallel(ctx context.Context, searcher *catalog.Searcher, request catalog.SearchRequest, opts *searchOptions) (*SearchResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu     sync.Mutex
		assets = []catalog.Asset{}
	)

	stats, err := searcher.SearchParallel(ctx, request, catalog.ParallelOptions{Workers: opts.parallel},
		func(asset catalog.Asset) error {
			mu.Lock()
			defer mu.Unlock()

			if opts.limit > 0 && len(assets) >= opts.limit {
				cancel()

				return nil
			}

			assets = append(assets, asset)

			return nil
		})
	if err != nil && (opts.limit == 0 || len(assets) < opts.limit) {
		return nil, err
	}

	result := &SearchResult{Total: int64(len(assets)), Assets: assets}

	// Pages abandoned after reaching --limit are not failures.
	if stats != nil && (opts.limit == 0 || len(assets) < opts.limit) {
		result.FailedPages = stats.FailedPages()

		if stats.FailedPages() > 0 {
			_, _ = fmt.Fprintf(os.Stderr, "Warning: %d result pages could not be fetched; results are incomplete\n", stats.FailedPages())
		}
	}

	return result, nil
}

func displaySearchTable(w io.Writer, result *SearchResult, countOnly bool) error {
	if countOnly {
		_, err := fmt.Fprintln(w, result.Total)

		return err
	}

	if len(result.Assets) == 0 {
		_, _ = io.WriteString(w, "No assets found\n")

		return nil
	}

	rows := make([][]string, 0, len(result.Assets))
	for _, asset := range result.Assets {
		rows = append(rows, []string{asset.GUID, asset.TypeName, orNA(asset.Name()), orNA(asset.QualifiedName())})
	}

	err := renderTable(w, []string{"GUID", "Type", "Name", "Qualified Name"}, rows)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(w, "\nShowing %d of %d assets\n", len(result.Assets), result.Total)

	return nil
}
