package catalog

import (
	"context"
	"fmt"
	"iter"

	"github.com/fivetwenty-io/catalog-client/internal/constants"
)

// PageFetcher is the remote search primitive: one page of at most limit
// records starting at offset.
type PageFetcher[T any] interface {
	FetchPage(ctx context.Context, request SearchRequest, offset, limit int64) (*Page[T], error)
}

// PageFetcherFunc adapts a function to PageFetcher.
type PageFetcherFunc[T any] func(ctx context.Context, request SearchRequest, offset, limit int64) (*Page[T], error)

// FetchPage implements PageFetcher.
func (f PageFetcherFunc[T]) FetchPage(ctx context.Context, request SearchRequest, offset, limit int64) (*Page[T], error) {
	return f(ctx, request, offset, limit)
}

// SequentialCursor walks a paged search forward, fetching the next page when
// the current one is drained. It is single-consumer and cannot be restarted;
// fetch errors are returned, never retried.
type SequentialCursor[T any] struct {
	ctx       context.Context
	fetcher   PageFetcher[T]
	template  SearchRequest
	pageSize  int64
	records   []T
	index     int
	offset    int64
	total     int64
	exhausted bool
	err       error
}

// NewSequentialCursor creates a cursor. firstPage, when not nil, is the
// response of the initiating search and is served before any fetch.
func NewSequentialCursor[T any](ctx context.Context, fetcher PageFetcher[T], template SearchRequest, firstPage *Page[T]) *SequentialCursor[T] {
	cursor := &SequentialCursor[T]{
		ctx:      ctx,
		fetcher:  fetcher,
		template: template,
		pageSize: pageSizeOf(template),
	}

	if firstPage != nil {
		cursor.accept(firstPage, cursor.pageSize)
	}

	return cursor
}

// HasNext reports whether Next will return a record. When the current page is
// drained it fetches the next one; a failed fetch makes HasNext false and is
// reported by Err and Next.
func (c *SequentialCursor[T]) HasNext() bool {
	for c.index >= len(c.records) {
		if c.exhausted || c.err != nil {
			return false
		}

		page, err := c.fetcher.FetchPage(c.ctx, c.template, c.offset, c.pageSize)
		if err != nil {
			c.err = err

			return false
		}

		c.accept(page, c.pageSize)
	}

	return true
}

// Next returns the next record, ErrNoMoreItems once exhausted, or the fetch
// error that ended the traversal.
func (c *SequentialCursor[T]) Next() (T, error) {
	var zero T

	if !c.HasNext() {
		if c.err != nil {
			return zero, c.err
		}

		return zero, ErrNoMoreItems
	}

	record := c.records[c.index]
	c.index++

	return record, nil
}

// Err returns the fetch error that ended the traversal, if any.
func (c *SequentialCursor[T]) Err() error {
	return c.err
}

// Total returns the last total reported by the server.
func (c *SequentialCursor[T]) Total() int64 {
	return c.total
}

// All drains the cursor.
func (c *SequentialCursor[T]) All() ([]T, error) {
	var all []T

	for c.HasNext() {
		record, err := c.Next()
		if err != nil {
			return all, err
		}

		all = append(all, record)
	}

	return all, c.err
}

// ForEach calls fn for each remaining record until fn fails.
func (c *SequentialCursor[T]) ForEach(fn func(T) error) error {
	for c.HasNext() {
		record, err := c.Next()
		if err != nil {
			return err
		}

		err = fn(record)
		if err != nil {
			return err
		}
	}

	return c.err
}

// Seq returns the remaining records as a range-over-func sequence. A fetch
// failure is yielded once as the final element.
func (c *SequentialCursor[T]) Seq() iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for c.HasNext() {
			record, err := c.Next()
			if !yield(record, err) {
				return
			}
		}

		if c.err != nil {
			var zero T

			yield(zero, c.err)
		}
	}
}

// accept installs a page and decides whether another page may exist: the
// traversal ends on an empty page, at the server-reported total, or on a
// short page when no total is known.
func (c *SequentialCursor[T]) accept(page *Page[T], limit int64) {
	if page == nil {
		page = &Page[T]{}
	}

	c.records = page.Records
	c.index = 0
	c.offset += int64(len(page.Records))

	if page.ApproximateTotal > 0 {
		c.total = page.ApproximateTotal
	}

	switch {
	case len(page.Records) == 0:
		c.exhausted = true
	case c.total > 0 && c.offset >= c.total:
		c.exhausted = true
	case c.total <= 0 && int64(len(page.Records)) < limit:
		c.exhausted = true
	}
}

// PaginationOptions bounds FetchAll and StreamPages.
type PaginationOptions struct {
	// PageSize overrides the template's page size
	PageSize int64

	// MaxPages stops after this many pages, 0 means no limit
	MaxPages int
}

// PageResult is one element of StreamPages.
type PageResult[T any] struct {
	Page   *Page[T]
	Offset int64
	Err    error
}

// FetchAll collects every record of a search.
func FetchAll[T any](ctx context.Context, fetcher PageFetcher[T], template SearchRequest, opts *PaginationOptions) ([]T, error) {
	var all []T

	for result := range StreamPages(ctx, fetcher, template, opts) {
		if result.Err != nil {
			return all, result.Err
		}

		all = append(all, result.Page.Records...)
	}

	if err := ctx.Err(); err != nil {
		return all, fmt.Errorf("fetching pages: %w", err)
	}

	return all, nil
}

// StreamPages fetches pages in the background and delivers them in order.
// The channel is closed after the last page, after an error, or when ctx is
// done.
func StreamPages[T any](ctx context.Context, fetcher PageFetcher[T], template SearchRequest, opts *PaginationOptions) <-chan PageResult[T] {
	if opts != nil && opts.PageSize > 0 {
		template.PageSize = opts.PageSize
	}

	maxPages := 0
	if opts != nil {
		maxPages = opts.MaxPages
	}

	results := make(chan PageResult[T], constants.SmallBufferSize)

	go func() {
		defer close(results)

		pageSize := pageSizeOf(template)
		offset := int64(0)

		for pages := 0; maxPages <= 0 || pages < maxPages; pages++ {
			page, err := fetcher.FetchPage(ctx, template, offset, pageSize)
			if err == nil && page == nil {
				page = &Page[T]{}
			}

			select {
			case results <- PageResult[T]{Page: page, Offset: offset, Err: err}:
			case <-ctx.Done():
				return
			}

			if err != nil || len(page.Records) == 0 {
				return
			}

			offset += int64(len(page.Records))

			if page.ApproximateTotal > 0 && offset >= page.ApproximateTotal {
				return
			}

			if page.ApproximateTotal <= 0 && int64(len(page.Records)) < pageSize {
				return
			}
		}
	}()

	return results
}

func pageSizeOf(template SearchRequest) int64 {
	switch {
	case template.PageSize <= 0:
		return constants.DefaultPageSize
	case template.PageSize > constants.MaxPageSize:
		return constants.MaxPageSize
	default:
		return template.PageSize
	}
}
