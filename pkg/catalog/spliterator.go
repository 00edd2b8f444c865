package catalog

import (
	"context"
	"fmt"
	"sync/atomic"
)

// Spliterator is a traversal that can hand a disjoint prefix of its remaining
// elements to another worker. A Spliterator is owned by one goroutine at a
// time; ownership of a split transfers to whoever receives it.
type Spliterator[T any] interface {
	// TryAdvance calls fn with the next element and reports whether one existed.
	TryAdvance(fn func(T)) bool

	// ForEachRemaining calls fn with every remaining element.
	ForEachRemaining(fn func(T))

	// TrySplit returns a spliterator covering a prefix of the remaining
	// elements, which this one no longer covers, or nil if it cannot split.
	TrySplit() Spliterator[T]

	// EstimateSize returns an estimate of the remaining element count.
	EstimateSize() int64
}

// Ranged is implemented by spliterators that know the result offsets they cover.
type Ranged interface {
	Range() (start, end int64)
}

// TraversalStats counts page fetches of one traversal and all of its splits.
type TraversalStats struct {
	fetchedPages atomic.Int64
	failedPages  atomic.Int64
	records      atomic.Int64
}

// FetchedPages returns the number of successful page fetches.
func (s *TraversalStats) FetchedPages() int64 {
	return s.fetchedPages.Load()
}

// FailedPages returns the number of page fetches that failed and were
// treated as empty. A non-zero value means the traversal under-reported.
func (s *TraversalStats) FailedPages() int64 {
	return s.failedPages.Load()
}

// Records returns the number of records fetched.
func (s *TraversalStats) Records() int64 {
	return s.records.Load()
}

type spliteratorConfig struct {
	pageSize int64
	stats    *TraversalStats
	logger   Logger
}

// SpliteratorOption configures a RangeSpliterator.
type SpliteratorOption func(*spliteratorConfig)

// WithPageSize overrides the page size taken from the request template.
func WithPageSize(pageSize int64) SpliteratorOption {
	return func(c *spliteratorConfig) {
		if pageSize > 0 {
			c.pageSize = pageSize
		}
	}
}

// WithTraversalStats shares the given counters with the traversal.
func WithTraversalStats(stats *TraversalStats) SpliteratorOption {
	return func(c *spliteratorConfig) {
		if stats != nil {
			c.stats = stats
		}
	}
}

// WithSpliteratorLogger sets the logger that records swallowed page failures.
func WithSpliteratorLogger(logger Logger) SpliteratorOption {
	return func(c *spliteratorConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// RangeSpliterator traverses the half-open result range [start, end) of a
// search, fetching only the pages it consumes.
//
// A page fetch that fails is logged, counted in TraversalStats.FailedPages
// and treated as an empty page, so one failing worker never aborts its
// siblings. The price is that a parallel traversal can silently return fewer
// results; callers that need completeness must check FailedPages.
type RangeSpliterator[T any] struct {
	ctx       context.Context
	fetcher   PageFetcher[T]
	template  SearchRequest
	start     int64
	end       int64
	pageSize  int64
	firstPage *Page[T]
	current   *SliceSpliterator[T]
	stats     *TraversalStats
	logger    Logger
}

// NewRangeSpliterator creates a spliterator over [start, end). firstPage, when
// not nil, holds the records at offset start and is consumed before any fetch.
func NewRangeSpliterator[T any](
	ctx context.Context,
	fetcher PageFetcher[T],
	template SearchRequest,
	start, end int64,
	firstPage *Page[T],
	opts ...SpliteratorOption,
) (*RangeSpliterator[T], error) {
	if start < 0 || end < start {
		return nil, fmt.Errorf("%w: [%d, %d)", ErrInvalidRange, start, end)
	}

	config := &spliteratorConfig{
		pageSize: pageSizeOf(template),
		stats:    &TraversalStats{},
		logger:   NopLogger{},
	}

	for _, opt := range opts {
		opt(config)
	}

	if firstPage != nil && len(firstPage.Records) == 0 {
		firstPage = nil
	}

	return &RangeSpliterator[T]{
		ctx:       ctx,
		fetcher:   fetcher,
		template:  template,
		start:     start,
		end:       end,
		pageSize:  config.pageSize,
		firstPage: firstPage,
		stats:     config.stats,
		logger:    config.logger,
	}, nil
}

// Range returns the offsets not yet fetched or handed off.
func (s *RangeSpliterator[T]) Range() (int64, int64) {
	return s.start, s.end
}

// Stats returns the counters shared with every split.
func (s *RangeSpliterator[T]) Stats() *TraversalStats {
	return s.stats
}

// TrySplit implements Spliterator. A held first page is handed off whole;
// otherwise the page being consumed splits in memory; otherwise the range is
// halved at a page boundary. Ranges of one page or less do not split.
func (s *RangeSpliterator[T]) TrySplit() Spliterator[T] {
	if s.firstPage != nil {
		prefix := newSliceSpliterator(s.firstPage.Records, s.start)
		s.start += int64(len(s.firstPage.Records))
		s.firstPage = nil

		return prefix
	}

	if s.current != nil {
		if prefix := s.current.TrySplit(); prefix != nil {
			return prefix
		}
	}

	remaining := s.end - s.start
	if remaining <= s.pageSize {
		return nil
	}

	mid := s.start + (remaining/2/s.pageSize)*s.pageSize
	if mid == s.start {
		mid = s.start + s.pageSize
	}

	prefix := &RangeSpliterator[T]{
		ctx:      s.ctx,
		fetcher:  s.fetcher,
		template: s.template,
		start:    s.start,
		end:      mid,
		pageSize: s.pageSize,
		stats:    s.stats,
		logger:   s.logger,
	}
	s.start = mid

	return prefix
}

// TryAdvance implements Spliterator.
func (s *RangeSpliterator[T]) TryAdvance(fn func(T)) bool {
	for {
		if s.current != nil {
			if s.current.TryAdvance(fn) {
				return true
			}

			s.current = nil
		}

		if s.firstPage != nil {
			s.current = newSliceSpliterator(s.firstPage.Records, s.start)
			s.start += int64(len(s.firstPage.Records))
			s.firstPage = nil

			continue
		}

		if s.start >= s.end {
			return false
		}

		s.fetch()
	}
}

// ForEachRemaining implements Spliterator.
func (s *RangeSpliterator[T]) ForEachRemaining(fn func(T)) {
	for s.TryAdvance(fn) {
	}
}

// EstimateSize implements Spliterator: the exact size of a held page, else
// the unconsumed range.
func (s *RangeSpliterator[T]) EstimateSize() int64 {
	if s.firstPage != nil {
		return int64(len(s.firstPage.Records))
	}

	if s.current != nil {
		return s.current.EstimateSize()
	}

	return s.end - s.start
}

// fetch loads the page at start and always moves start forward, never past end.
func (s *RangeSpliterator[T]) fetch() {
	limit := min(s.pageSize, s.end-s.start)

	if err := s.ctx.Err(); err != nil {
		s.fail(limit, err)
		s.start = s.end

		return
	}

	page, err := s.fetcher.FetchPage(s.ctx, s.template, s.start, limit)
	if err != nil {
		s.fail(limit, err)
		s.start = min(s.start+s.pageSize, s.end)

		return
	}

	s.stats.fetchedPages.Add(1)

	var records []T
	if page != nil {
		records = page.Records
	}

	if int64(len(records)) > limit {
		records = records[:limit]
	}

	if len(records) == 0 {
		s.start = min(s.start+s.pageSize, s.end)

		return
	}

	s.stats.records.Add(int64(len(records)))
	s.current = newSliceSpliterator(records, s.start)
	s.start += int64(len(records))
}

func (s *RangeSpliterator[T]) fail(limit int64, err error) {
	s.stats.failedPages.Add(1)
	s.logger.Warn("search page fetch failed, treating page as empty", map[string]interface{}{
		"offset": s.start,
		"limit":  limit,
		"error":  err.Error(),
	})
}

// SliceSpliterator traverses records already in memory.
type SliceSpliterator[T any] struct {
	records []T
	origin  int64
	index   int
	fence   int
}

// NewSliceSpliterator creates a spliterator over records.
func NewSliceSpliterator[T any](records []T) *SliceSpliterator[T] {
	return newSliceSpliterator(records, 0)
}

func newSliceSpliterator[T any](records []T, origin int64) *SliceSpliterator[T] {
	return &SliceSpliterator[T]{records: records, origin: origin, fence: len(records)}
}

// Range returns the result offsets of the remaining records.
func (s *SliceSpliterator[T]) Range() (int64, int64) {
	return s.origin + int64(s.index), s.origin + int64(s.fence)
}

// TryAdvance implements Spliterator.
func (s *SliceSpliterator[T]) TryAdvance(fn func(T)) bool {
	if s.index >= s.fence {
		return false
	}

	record := s.records[s.index]
	s.index++
	fn(record)

	return true
}

// ForEachRemaining implements Spliterator.
func (s *SliceSpliterator[T]) ForEachRemaining(fn func(T)) {
	for s.TryAdvance(fn) {
	}
}

// TrySplit implements Spliterator by halving the remaining records.
func (s *SliceSpliterator[T]) TrySplit() Spliterator[T] {
	prefix := s.trySplit()
	if prefix == nil {
		return nil
	}

	return prefix
}

// EstimateSize implements Spliterator; the count is exact.
func (s *SliceSpliterator[T]) EstimateSize() int64 {
	return int64(s.fence - s.index)
}

func (s *SliceSpliterator[T]) trySplit() *SliceSpliterator[T] {
	remaining := s.fence - s.index
	if remaining < 2 {
		return nil
	}

	mid := s.index + remaining/2
	prefix := &SliceSpliterator[T]{records: s.records, origin: s.origin, index: s.index, fence: mid}
	s.index = mid

	return prefix
}
