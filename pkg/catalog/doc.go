// Package catalog provides types, interfaces, and helpers for working with a
// metadata catalog tenant.
//
// # Overview
//
// The catalog package defines the tenant-scoped building blocks of the
// client: TenantCache (name/id resolution for tags, custom metadata, enums,
// roles, users, groups, connections and source tags), SequentialCursor and
// RangeSpliterator (sequential and parallel traversal of paged searches), and
// WaitPolicy (the backoff schedule shared by the cache and the transport). A
// concrete client is provided by the catalogclient package, which wires
// configuration, transport, authentication, and the per-category listing
// endpoints.
//
// Getting a client
//
//	import (
//	  "context"
//	  "log"
//
//	  "github.com/fivetwenty-io/catalog-client/pkg/catalog"
//	  "github.com/fivetwenty-io/catalog-client/pkg/catalogclient"
//	)
//
//	func example() {
//	  ctx := context.Background()
//	  cli, err := catalogclient.New(ctx, &catalog.Config{
//	    APIEndpoint: "https://tenant.example.com",
//	    APIToken:    "...",
//	  })
//	  if err != nil { log.Fatal(err) }
//	  defer cli.Close()
//
//	  id, err := cli.Cache().GetIDForName(ctx, catalog.CategoryTag, "PII")
//	  if err != nil { log.Fatal(err) }
//	  _ = id
//	}
//
// # Caching
//
// Each category is loaded in full on first use and reloaded in full on a
// miss, so an entity created moments ago by another actor resolves on the
// next lookup. Only a miss that survives a successful reload is reported as
// NotFoundError; a failed reload returns the transport error and keeps the
// previous listing. Concurrent misses on one category share a single reload.
//
// # Searching
//
//	cursor, err := cli.Search().Search(ctx, catalog.SearchRequest{Query: query})
//	if err != nil { /* handle error */ }
//	for asset, err := range cursor.Seq() {
//	  if err != nil { break }
//	  _ = asset
//	}
//
// SearchParallel splits the result range into pages and drains them on a
// worker pool. Unlike the cursor it skips pages that fail to load; check
// TraversalStats.FailedPages when completeness matters.
package catalog
