package catalog

import (
	"context"
	"fmt"
)

// Searcher runs index searches for one tenant.
type Searcher struct {
	fetcher  PageFetcher[Asset]
	pageSize int64
	logger   Logger
}

// SearcherOption configures a Searcher.
type SearcherOption func(*Searcher)

// WithDefaultPageSize sets the page size used when a request leaves it unset.
func WithDefaultPageSize(pageSize int64) SearcherOption {
	return func(s *Searcher) {
		if pageSize > 0 {
			s.pageSize = pageSize
		}
	}
}

// WithSearchLogger sets the logger passed on to parallel traversals.
func WithSearchLogger(logger Logger) SearcherOption {
	return func(s *Searcher) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSearcher creates a Searcher on top of a page fetcher.
func NewSearcher(fetcher PageFetcher[Asset], opts ...SearcherOption) *Searcher {
	searcher := &Searcher{
		fetcher: fetcher,
		logger:  NopLogger{},
	}

	for _, opt := range opts {
		opt(searcher)
	}

	return searcher
}

// Search fetches the first page and returns a cursor over the whole result.
// An error fetching the first page is returned directly.
func (s *Searcher) Search(ctx context.Context, request SearchRequest) (*SequentialCursor[Asset], error) {
	request, first, err := s.first(ctx, request)
	if err != nil {
		return nil, err
	}

	return NewSequentialCursor(ctx, s.fetcher, request, first), nil
}

// Count returns the approximate number of matching records.
func (s *Searcher) Count(ctx context.Context, request SearchRequest) (int64, error) {
	request, err := s.prepare(request)
	if err != nil {
		return 0, err
	}

	page, err := s.fetcher.FetchPage(ctx, request, 0, 1)
	if err != nil {
		return 0, fmt.Errorf("counting search results: %w", err)
	}

	if page == nil {
		return 0, nil
	}

	return page.ApproximateTotal, nil
}

// Spliterator fetches the first page and returns a spliterator over
// [0, approximate total). The range end is fixed now; records that start
// matching later are not traversed.
func (s *Searcher) Spliterator(ctx context.Context, request SearchRequest) (*RangeSpliterator[Asset], error) {
	request, first, err := s.first(ctx, request)
	if err != nil {
		return nil, err
	}

	end := max(first.ApproximateTotal, int64(len(first.Records)))

	return NewRangeSpliterator(ctx, s.fetcher, request, 0, end, first,
		WithSpliteratorLogger(s.logger))
}

// SearchParallel traverses the whole result on several workers. Pages that
// fail to load are skipped and counted in the returned stats.
func (s *Searcher) SearchParallel(ctx context.Context, request SearchRequest, opts ParallelOptions, fn func(Asset) error) (*TraversalStats, error) {
	spliterator, err := s.Spliterator(ctx, request)
	if err != nil {
		return nil, err
	}

	err = ForEachParallel(ctx, spliterator, opts, fn)
	if err != nil {
		return spliterator.Stats(), err
	}

	if failed := spliterator.Stats().FailedPages(); failed > 0 {
		s.logger.Warn("parallel search skipped pages", map[string]interface{}{
			"failed_pages": failed,
		})
	}

	return spliterator.Stats(), nil
}

func (s *Searcher) first(ctx context.Context, request SearchRequest) (SearchRequest, *Page[Asset], error) {
	request, err := s.prepare(request)
	if err != nil {
		return request, nil, err
	}

	first, err := s.fetcher.FetchPage(ctx, request, 0, request.PageSize)
	if err != nil {
		return request, nil, fmt.Errorf("running search: %w", err)
	}

	if first == nil {
		first = &Page[Asset]{}
	}

	return request, first, nil
}

func (s *Searcher) prepare(request SearchRequest) (SearchRequest, error) {
	if len(request.Query) == 0 {
		return request, ErrQueryRequired
	}

	if request.PageSize < 0 {
		return request, fmt.Errorf("%w: %d", ErrInvalidPageSize, request.PageSize)
	}

	if request.PageSize == 0 {
		request.PageSize = s.pageSize
	}

	request.PageSize = pageSizeOf(request)

	return request, nil
}
