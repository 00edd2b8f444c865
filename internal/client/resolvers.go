package client

import (
	"github.com/fivetwenty-io/catalog-client/internal/http"
	"github.com/fivetwenty-io/catalog-client/pkg/catalog"
)

// NewResolverTable maps every category to the endpoint that lists it.
func NewResolverTable(httpClient *http.Client, fetcher catalog.PageFetcher[catalog.Asset], pageSize int64) catalog.ResolverTable {
	typeDefs := NewTypeDefResolver(httpClient)
	directory := NewDirectoryResolver(httpClient, pageSize)
	assets := NewAssetResolver(fetcher, pageSize)

	return catalog.ResolverTable{
		catalog.CategoryTag:            typeDefs,
		catalog.CategoryCustomMetadata: typeDefs,
		catalog.CategoryEnum:           typeDefs,
		catalog.CategoryRole:           directory,
		catalog.CategoryUser:           directory,
		catalog.CategoryGroup:          directory,
		catalog.CategoryConnection:     assets,
		catalog.CategorySourceTag:      assets,
	}
}
