package client

import (
	"context"
	"fmt"

	"github.com/fivetwenty-io/catalog-client/internal/constants"
	"github.com/fivetwenty-io/catalog-client/pkg/catalog"
)

// SourceTagTypes are the asset types that mirror tags of source systems.
var SourceTagTypes = []string{
	"SnowflakeTag",
	"DbtTag",
	"DatabricksUnityCatalogTag",
	"BigqueryTag",
}

// AssetResolver lists categories backed by catalog assets: connections and
// source tags. Entries are keyed by qualifiedName and identified by GUID.
type AssetResolver struct {
	fetcher  catalog.PageFetcher[catalog.Asset]
	pageSize int64
}

// NewAssetResolver creates a resolver that drains index searches through fetcher.
func NewAssetResolver(fetcher catalog.PageFetcher[catalog.Asset], pageSize int64) *AssetResolver {
	if pageSize <= 0 {
		pageSize = constants.ListingPageSize
	}

	return &AssetResolver{fetcher: fetcher, pageSize: pageSize}
}

// ListAll implements catalog.Resolver for connections and source tags.
func (r *AssetResolver) ListAll(ctx context.Context, category catalog.Category) ([]catalog.Entry, error) {
	var typeNames []string

	switch category {
	case catalog.CategoryConnection:
		typeNames = []string{"Connection"}
	case catalog.CategorySourceTag:
		typeNames = SourceTagTypes
	default:
		return nil, fmt.Errorf("%w: %s", catalog.ErrNoResolver, category)
	}

	request := catalog.SearchRequest{
		Query:      ActiveAssetsQuery(typeNames...),
		Attributes: []string{"name", "qualifiedName", "connectorName", "connectionQualifiedName"},
		Sort:       []catalog.SortItem{{Field: "__guid", Order: "asc"}},
		PageSize:   r.pageSize,
	}

	first, err := r.fetcher.FetchPage(ctx, request, 0, r.pageSize)
	if err != nil {
		return nil, fmt.Errorf("listing %s assets: %w", category, err)
	}

	var entries []catalog.Entry

	cursor := catalog.NewSequentialCursor(ctx, r.fetcher, request, first)

	err = cursor.ForEach(func(asset catalog.Asset) error {
		entries = append(entries, assetEntry(asset))

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing %s assets: %w", category, err)
	}

	return entries, nil
}

func assetEntry(asset catalog.Asset) catalog.Entry {
	extra := map[string]interface{}{
		"typeName": asset.TypeName,
		"name":     asset.Name(),
	}

	for _, key := range []string{"connectorName", "connectionQualifiedName"} {
		if value, ok := asset.Attributes[key]; ok {
			extra[key] = value
		}
	}

	return catalog.Entry{
		ID:    asset.GUID,
		Name:  asset.QualifiedName(),
		Extra: extra,
	}
}
