// Package catalogclient is the entry point for constructing a metadata
// catalog client that implements the catalog.Client interface.
//
// It layers endpoint normalization, HTTP transport, authentication and the
// per-category listing endpoints on top of the caches and traversals defined
// in the catalog package.
//
// Quick start
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
//
//	  cli, err := catalogclient.New(ctx, &catalog.Config{
//	    APIEndpoint: "acme.example.com", // https:// is added
//	    APIToken:    "eyJhbGciOi...",
//	  })
//	  if err != nil { log.Fatal(err) }
//	  defer cli.Close()
//
//	  id, err := cli.Cache().GetIDForName(ctx, catalog.CategoryTag, "PII")
//	  if err != nil { log.Fatal(err) }
//	  _ = id
//	}
//
// # Helpers
//
// NewWithEndpoint, NewWithToken and NewWithClientCredentials wrap New with
// the matching configuration. Ping verifies credentials before first use.
package catalogclient
