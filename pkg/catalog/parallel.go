package catalog

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/fivetwenty-io/catalog-client/internal/constants"
)

// ParallelOptions tunes ForEachParallel.
type ParallelOptions struct {
	// Workers bounds concurrent leaves, defaults to 4
	Workers int

	// MinSplitSize stops splitting once a spliterator estimates this many
	// elements or fewer; 0 splits down to one page per leaf
	MinSplitSize int64
}

// ForEachParallel splits s recursively and drains the leaves on a bounded
// worker pool. fn is called concurrently and in no particular order. The
// first error returned by fn stops the remaining leaves.
func ForEachParallel[T any](ctx context.Context, s Spliterator[T], opts ParallelOptions, fn func(T) error) error {
	workers := opts.Workers
	if workers <= 0 {
		workers = constants.DefaultConcurrencyLimit
	}

	leaves := splitLeaves(s, opts.MinSplitSize)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(workers)

	for _, leaf := range leaves {
		if groupCtx.Err() != nil {
			break
		}

		group.Go(func() error {
			return drain(groupCtx, leaf, fn)
		})
	}

	err := group.Wait()
	if err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("parallel traversal: %w", err)
	}

	return nil
}

// splitLeaves splits until no part can split further or every part is at or
// below minSize. Splitting never fetches, so it runs on the caller's goroutine.
func splitLeaves[T any](root Spliterator[T], minSize int64) []Spliterator[T] {
	var leaves []Spliterator[T]

	pending := []Spliterator[T]{root}

	for len(pending) > 0 {
		current := pending[len(pending)-1]
		pending = pending[:len(pending)-1]

		// An in-memory page is already fetched; splitting it further only adds tasks.
		if _, inMemory := current.(*SliceSpliterator[T]); inMemory && minSize <= 0 {
			leaves = append(leaves, current)

			continue
		}

		for minSize <= 0 || current.EstimateSize() > minSize {
			prefix := current.TrySplit()
			if prefix == nil {
				break
			}

			pending = append(pending, prefix)
		}

		leaves = append(leaves, current)
	}

	return leaves
}

func drain[T any](ctx context.Context, leaf Spliterator[T], fn func(T) error) error {
	var fnErr error

	for ctx.Err() == nil {
		advanced := leaf.TryAdvance(func(record T) {
			fnErr = fn(record)
		})

		if fnErr != nil {
			return fnErr
		}

		if !advanced {
			return nil
		}
	}

	return nil
}
