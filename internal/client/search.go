package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fivetwenty-io/catalog-client/internal/constants"
	"github.com/fivetwenty-io/catalog-client/internal/http"
	"github.com/fivetwenty-io/catalog-client/pkg/catalog"
)

// indexSearchRequest is the wire body of the index search endpoint.
type indexSearchRequest struct {
	DSL        indexSearchDSL `json:"dsl"`
	Attributes []string       `json:"attributes,omitempty"`
}

type indexSearchDSL struct {
	From  int64                    `json:"from"`
	Size  int64                    `json:"size"`
	Query map[string]interface{}   `json:"query"`
	Sort  []map[string]interface{} `json:"sort,omitempty"`
}

type indexSearchResponse struct {
	ApproximateCount int64           `json:"approximateCount"`
	Entities         []catalog.Asset `json:"entities"`
}

// IndexSearchFetcher fetches pages of assets from the index search endpoint.
type IndexSearchFetcher struct {
	httpClient *http.Client
}

// NewIndexSearchFetcher creates a fetcher over httpClient.
func NewIndexSearchFetcher(httpClient *http.Client) *IndexSearchFetcher {
	return &IndexSearchFetcher{httpClient: httpClient}
}

// FetchPage implements catalog.PageFetcher.
func (f *IndexSearchFetcher) FetchPage(ctx context.Context, request catalog.SearchRequest, offset, limit int64) (*catalog.Page[catalog.Asset], error) {
	body := indexSearchRequest{
		DSL: indexSearchDSL{
			From:  offset,
			Size:  limit,
			Query: request.Query,
			Sort:  sortClauses(request.Sort),
		},
		Attributes: request.Attributes,
	}

	resp, err := f.httpClient.Post(ctx, constants.APIPathIndexSearch, body)
	if err != nil {
		return nil, fmt.Errorf("searching assets from %d: %w", offset, err)
	}

	var result indexSearchResponse

	err = json.Unmarshal(resp.Body, &result)
	if err != nil {
		return nil, fmt.Errorf("parsing search response: %w", err)
	}

	return &catalog.Page[catalog.Asset]{
		Records:          result.Entities,
		ApproximateTotal: result.ApproximateCount,
	}, nil
}

func sortClauses(items []catalog.SortItem) []map[string]interface{} {
	if len(items) == 0 {
		return nil
	}

	clauses := make([]map[string]interface{}, 0, len(items))

	for _, item := range items {
		order := item.Order
		if order == "" {
			order = "asc"
		}

		clauses = append(clauses, map[string]interface{}{
			item.Field: map[string]interface{}{"order": order},
		})
	}

	return clauses
}

// TermsQuery matches assets whose field equals one of values.
func TermsQuery(field string, values ...string) map[string]interface{} {
	if len(values) == 1 {
		return map[string]interface{}{
			"term": map[string]interface{}{field: values[0]},
		}
	}

	return map[string]interface{}{
		"terms": map[string]interface{}{field: values},
	}
}

// ActiveAssetsQuery restricts a type query to assets that are not deleted.
func ActiveAssetsQuery(typeNames ...string) map[string]interface{} {
	return map[string]interface{}{
		"bool": map[string]interface{}{
			"filter": []interface{}{
				TermsQuery("__typeName.keyword", typeNames...),
				TermsQuery("__state", "ACTIVE"),
			},
		},
	}
}
