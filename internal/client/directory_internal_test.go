package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/fivetwenty-io/catalog-client/internal/constants"
	internalhttp "github.com/fivetwenty-io/catalog-client/internal/http"
	"github.com/fivetwenty-io/catalog-client/pkg/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListingFetcher_PathAndPaging(t *testing.T) {
	t.Parallel()

	var (
		mu      sync.Mutex
		paths   []string
		queries []url.Values
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		queries = append(queries, r.URL.Query())
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"totalRecord":7,"filterRecord":3,"records":[{"id":"g-1","alias":"Stewards"}]}`))
	}))
	t.Cleanup(server.Close)

	fetcher := &listingFetcher{httpClient: internalhttp.NewClient(server.URL, nil), path: constants.APIPathGroups}

	// The request template is ignored; the endpoint comes from the fetcher.
	page, err := fetcher.FetchPage(context.Background(), catalog.SearchRequest{Query: map[string]interface{}{"path": "/elsewhere"}}, 4, 2)
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	assert.Equal(t, int64(7), page.ApproximateTotal)

	_, err = fetcher.FetchPage(context.Background(), catalog.SearchRequest{}, 0, 0)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()

	assert.Equal(t, []string{constants.APIPathGroups, constants.APIPathGroups}, paths)
	assert.Equal(t, "2", queries[0].Get("limit"))
	assert.Equal(t, "4", queries[0].Get("offset"))
	assert.False(t, queries[1].Has("limit"))
	assert.False(t, queries[1].Has("offset"))
}
