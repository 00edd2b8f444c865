package catalog_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fivetwenty-io/catalog-client/pkg/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingResolver serves a mutable listing and counts calls per category.
type countingResolver struct {
	mu      sync.Mutex
	entries map[catalog.Category][]catalog.Entry
	err     error
	delay   time.Duration
	calls   atomic.Int64
}

func newCountingResolver(entries map[catalog.Category][]catalog.Entry) *countingResolver {
	return &countingResolver{entries: entries}
}

func (r *countingResolver) ListAll(ctx context.Context, category catalog.Category) ([]catalog.Entry, error) {
	r.calls.Add(1)

	if r.delay > 0 {
		time.Sleep(r.delay)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return nil, r.err
	}

	return append([]catalog.Entry(nil), r.entries[category]...), nil
}

func (r *countingResolver) set(category catalog.Category, entries ...catalog.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[category] = entries
}

func (r *countingResolver) fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.err = err
}

func noWait() catalog.WaitPolicy {
	return catalog.WaitPolicyFunc(func(int) time.Duration { return 0 })
}

func TestTenantCache_ResolvesAfterOneRefresh(t *testing.T) {
	t.Parallel()

	resolver := newCountingResolver(map[catalog.Category][]catalog.Entry{
		catalog.CategoryTag: {{ID: "t1", Name: "PII"}},
	})
	cache := catalog.NewTenantCache(resolver)
	ctx := context.Background()

	id, err := cache.GetIDForName(ctx, catalog.CategoryTag, "PII")
	require.NoError(t, err)
	assert.Equal(t, "t1", id)
	assert.Equal(t, int64(1), resolver.calls.Load())

	// Second lookup is served from memory
	id, err = cache.GetIDForName(ctx, catalog.CategoryTag, "PII")
	require.NoError(t, err)
	assert.Equal(t, "t1", id)
	assert.Equal(t, int64(1), resolver.calls.Load())

	name, err := cache.GetNameForID(ctx, catalog.CategoryTag, "t1")
	require.NoError(t, err)
	assert.Equal(t, "PII", name)
	assert.Equal(t, int64(1), resolver.calls.Load())
}

func TestTenantCache_RoundTripsEveryCategory(t *testing.T) {
	t.Parallel()

	listing := make(map[catalog.Category][]catalog.Entry)
	for _, category := range catalog.AllCategories() {
		listing[category] = []catalog.Entry{
			{ID: string(category) + "-1", Name: "first"},
			{ID: string(category) + "-2", Name: "second"},
		}
	}

	resolver := newCountingResolver(listing)
	cache := catalog.NewTenantCache(resolver)
	ctx := context.Background()

	for category, entries := range listing {
		for _, entry := range entries {
			id, err := cache.GetIDForName(ctx, category, entry.Name)
			require.NoError(t, err)
			assert.Equal(t, entry.ID, id)

			name, err := cache.GetNameForID(ctx, category, entry.ID)
			require.NoError(t, err)
			assert.Equal(t, entry.Name, name)
		}
	}

	assert.Equal(t, int64(len(listing)), resolver.calls.Load())
}

func TestTenantCache_ConcurrentMissesShareOneRefresh(t *testing.T) {
	t.Parallel()

	resolver := newCountingResolver(map[catalog.Category][]catalog.Entry{
		catalog.CategoryTag: {{ID: "t1", Name: "PII"}},
	})
	resolver.delay = 50 * time.Millisecond

	cache := catalog.NewTenantCache(resolver)
	ctx := context.Background()

	const callers = 16

	var wg sync.WaitGroup

	ids := make([]string, callers)
	errs := make([]error, callers)

	for i := range callers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			ids[i], errs[i] = cache.GetIDForName(ctx, catalog.CategoryTag, "PII")
		}()
	}

	wg.Wait()

	for i := range callers {
		require.NoError(t, errs[i])
		assert.Equal(t, "t1", ids[i])
	}

	assert.Equal(t, int64(1), resolver.calls.Load())
}

func TestTenantCache_MissPicksUpNewEntity(t *testing.T) {
	t.Parallel()

	resolver := newCountingResolver(map[catalog.Category][]catalog.Entry{
		catalog.CategoryTag: {{ID: "t1", Name: "PII"}},
	})
	cache := catalog.NewTenantCache(resolver)
	ctx := context.Background()

	_, err := cache.GetIDForName(ctx, catalog.CategoryTag, "PII")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), cache.Generation(catalog.CategoryTag))

	// Another actor creates a tag
	resolver.set(catalog.CategoryTag,
		catalog.Entry{ID: "t1", Name: "PII"},
		catalog.Entry{ID: "t2", Name: "Confidential"},
	)

	id, err := cache.GetIDForName(ctx, catalog.CategoryTag, "Confidential")
	require.NoError(t, err)
	assert.Equal(t, "t2", id)
	assert.Equal(t, int64(2), resolver.calls.Load())
	assert.Equal(t, uint64(2), cache.Generation(catalog.CategoryTag))

	stats := cache.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(2), stats.Refreshes)
}

func TestTenantCache_NotFoundAfterRefresh(t *testing.T) {
	t.Parallel()

	resolver := newCountingResolver(map[catalog.Category][]catalog.Entry{
		catalog.CategoryRole: {{ID: "r1", Name: "admin"}},
	})
	cache := catalog.NewTenantCache(resolver)
	ctx := context.Background()

	_, err := cache.GetIDForName(ctx, catalog.CategoryRole, "nobody")
	require.Error(t, err)
	assert.True(t, catalog.IsNotFound(err))
	assert.False(t, catalog.IsTransient(err))
	require.ErrorIs(t, err, catalog.ErrNotFound)
	assert.Equal(t, `entity "nobody" not found in category "role"`, err.Error())

	// The first load was authoritative, no second reload
	assert.Equal(t, int64(1), resolver.calls.Load())

	// A later miss reloads again rather than trusting the negative result
	_, err = cache.GetNameForID(ctx, catalog.CategoryRole, "r9")
	require.Error(t, err)
	assert.True(t, catalog.IsNotFound(err))
	assert.Equal(t, int64(2), resolver.calls.Load())
}

func TestTenantCache_StaleOnFailure(t *testing.T) {
	t.Parallel()

	resolver := newCountingResolver(map[catalog.Category][]catalog.Entry{
		catalog.CategoryGroup: {{ID: "g1", Name: "stewards"}},
	})
	cache := catalog.NewTenantCache(resolver)
	ctx := context.Background()

	require.NoError(t, cache.Refresh(ctx, catalog.CategoryGroup))

	resolver.fail(catalog.ErrTransient)

	err := cache.Refresh(ctx, catalog.CategoryGroup)
	require.Error(t, err)
	require.ErrorIs(t, err, catalog.ErrTransient)
	assert.Equal(t, uint64(1), cache.Generation(catalog.CategoryGroup))

	// Old entries remain resolvable
	id, err := cache.GetIDForName(ctx, catalog.CategoryGroup, "stewards")
	require.NoError(t, err)
	assert.Equal(t, "g1", id)

	// A miss reports the refresh failure, not a not-found
	_, err = cache.GetIDForName(ctx, catalog.CategoryGroup, "owners")
	require.Error(t, err)
	assert.True(t, catalog.IsTransient(err))
	assert.False(t, catalog.IsNotFound(err))

	assert.Equal(t, int64(2), cache.Stats().RefreshFailures)
}

func TestTenantCache_ConcurrentFailureReachesEveryWaiter(t *testing.T) {
	t.Parallel()

	failure := errors.New("connection reset")
	resolver := newCountingResolver(map[catalog.Category][]catalog.Entry{})
	resolver.fail(failure)
	resolver.delay = 50 * time.Millisecond

	cache := catalog.NewTenantCache(resolver)
	ctx := context.Background()

	var wg sync.WaitGroup

	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, errs[i] = cache.GetIDForName(ctx, catalog.CategoryUser, "jdoe")
		}()
	}

	wg.Wait()

	for _, err := range errs {
		require.ErrorIs(t, err, failure)
	}

	assert.False(t, cache.State(catalog.CategoryUser).Loaded)
}

func TestTenantCache_DuplicateEntriesFirstWins(t *testing.T) {
	t.Parallel()

	resolver := newCountingResolver(map[catalog.Category][]catalog.Entry{
		catalog.CategoryEnum: {
			{ID: "e1", Name: "Colors"},
			{ID: "e2", Name: "Colors"},
			{ID: "e1", Name: "Shapes"},
			{ID: "e3", Name: "Sizes"},
		},
	})
	cache := catalog.NewTenantCache(resolver)
	ctx := context.Background()

	id, err := cache.GetIDForName(ctx, catalog.CategoryEnum, "Colors")
	require.NoError(t, err)
	assert.Equal(t, "e1", id)

	name, err := cache.GetNameForID(ctx, catalog.CategoryEnum, "e1")
	require.NoError(t, err)
	assert.Equal(t, "Colors", name)

	entries, err := cache.Entries(ctx, catalog.CategoryEnum)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Equal(t, 2, cache.State(catalog.CategoryEnum).Entries)
}

func TestTenantCache_Attributes(t *testing.T) {
	t.Parallel()

	resolver := newCountingResolver(map[catalog.Category][]catalog.Entry{
		catalog.CategoryCustomMetadata: {{
			ID:   "cm1",
			Name: "Governance",
			Attributes: []catalog.AttributeDef{
				{ID: "a1", Name: "Owner", Type: "string"},
				{ID: "a2", Name: "Reviewed", Type: "boolean"},
			},
		}},
	})
	cache := catalog.NewTenantCache(resolver)
	ctx := context.Background()

	attr, err := cache.GetAttributeDef(ctx, catalog.CategoryCustomMetadata, "Governance", "Reviewed")
	require.NoError(t, err)
	assert.Equal(t, "a2", attr.ID)
	assert.Equal(t, "boolean", attr.Type)

	id, err := cache.GetAttributeID(ctx, catalog.CategoryCustomMetadata, "Governance", "Owner")
	require.NoError(t, err)
	assert.Equal(t, "a1", id)

	name, err := cache.GetAttributeName(ctx, catalog.CategoryCustomMetadata, "cm1", "a2")
	require.NoError(t, err)
	assert.Equal(t, "Reviewed", name)
	assert.Equal(t, int64(1), resolver.calls.Load())

	// An attribute added later is found through the same miss path
	resolver.set(catalog.CategoryCustomMetadata, catalog.Entry{
		ID:   "cm1",
		Name: "Governance",
		Attributes: []catalog.AttributeDef{
			{ID: "a1", Name: "Owner"},
			{ID: "a2", Name: "Reviewed"},
			{ID: "a3", Name: "Expiry"},
		},
	})

	id, err = cache.GetAttributeID(ctx, catalog.CategoryCustomMetadata, "Governance", "Expiry")
	require.NoError(t, err)
	assert.Equal(t, "a3", id)
	assert.Equal(t, int64(2), resolver.calls.Load())

	_, err = cache.GetAttributeDef(ctx, catalog.CategoryCustomMetadata, "Governance", "Missing")
	require.Error(t, err)
	assert.True(t, catalog.IsNotFound(err))
	assert.Contains(t, err.Error(), "Governance.Missing")
}

func TestTenantCache_WaitForName(t *testing.T) {
	t.Parallel()

	resolver := newCountingResolver(map[catalog.Category][]catalog.Entry{})

	var listings atomic.Int64

	cache := catalog.NewTenantCache(catalog.ResolverFunc(func(ctx context.Context, category catalog.Category) ([]catalog.Entry, error) {
		// The connection becomes visible on the third listing
		if listings.Add(1) < 3 {
			return resolver.ListAll(ctx, category)
		}

		return []catalog.Entry{{ID: "c1", Name: "snowflake-prod"}}, nil
	}), catalog.WithWaitPolicy(noWait()), catalog.WithMaxAttempts(5))

	id, err := cache.WaitForName(context.Background(), catalog.CategoryConnection, "snowflake-prod")
	require.NoError(t, err)
	assert.Equal(t, "c1", id)
	assert.Equal(t, int64(3), listings.Load())
}

func TestTenantCache_WaitForNameGivesUp(t *testing.T) {
	t.Parallel()

	resolver := newCountingResolver(map[catalog.Category][]catalog.Entry{})
	cache := catalog.NewTenantCache(resolver,
		catalog.WithWaitPolicy(noWait()),
		catalog.WithMaxAttempts(3),
	)

	_, err := cache.WaitForName(context.Background(), catalog.CategorySourceTag, "missing")
	require.Error(t, err)
	assert.True(t, catalog.IsNotFound(err))
	assert.Equal(t, int64(3), resolver.calls.Load())
}

func TestTenantCache_WaitForNameStopsOnFailure(t *testing.T) {
	t.Parallel()

	resolver := newCountingResolver(map[catalog.Category][]catalog.Entry{})
	resolver.fail(&catalog.APIError{StatusCode: 401})

	cache := catalog.NewTenantCache(resolver, catalog.WithWaitPolicy(noWait()))

	_, err := cache.WaitForName(context.Background(), catalog.CategoryTag, "PII")
	require.Error(t, err)
	assert.True(t, catalog.IsUnauthorized(err))
	assert.Equal(t, int64(1), resolver.calls.Load())
}

func TestTenantCache_WarmStartFromSnapshotStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := catalog.NewMemorySnapshotStore()

	require.NoError(t, store.Save(ctx, "acme", catalog.CategoryTag, &catalog.Snapshot{
		Tenant:   "acme",
		Category: catalog.CategoryTag,
		LoadedAt: time.Now().Add(-time.Hour),
		Entries:  []catalog.Entry{{ID: "t1", Name: "PII"}},
	}))

	resolver := newCountingResolver(map[catalog.Category][]catalog.Entry{
		catalog.CategoryTag: {{ID: "t1", Name: "PII"}, {ID: "t2", Name: "GDPR"}},
	})
	cache := catalog.NewTenantCache(resolver,
		catalog.WithTenant("acme"),
		catalog.WithSnapshotStore(store),
	)

	id, err := cache.GetIDForName(ctx, catalog.CategoryTag, "PII")
	require.NoError(t, err)
	assert.Equal(t, "t1", id)
	assert.Equal(t, int64(0), resolver.calls.Load())

	// A miss on a warm snapshot still reloads from the resolver
	id, err = cache.GetIDForName(ctx, catalog.CategoryTag, "GDPR")
	require.NoError(t, err)
	assert.Equal(t, "t2", id)
	assert.Equal(t, int64(1), resolver.calls.Load())

	// The reload was written through
	stored, err := store.Load(ctx, "acme", catalog.CategoryTag)
	require.NoError(t, err)
	assert.Len(t, stored.Entries, 2)
	assert.Equal(t, uint64(2), stored.Generation)

	// A second cache sharing the store starts with the fresh listing
	other := catalog.NewTenantCache(newCountingResolver(map[catalog.Category][]catalog.Entry{}),
		catalog.WithTenant("acme"),
		catalog.WithSnapshotStore(store),
	)

	id, err = other.GetIDForName(ctx, catalog.CategoryTag, "GDPR")
	require.NoError(t, err)
	assert.Equal(t, "t2", id)
}

func TestTenantCache_EvictAndClose(t *testing.T) {
	t.Parallel()

	resolver := newCountingResolver(map[catalog.Category][]catalog.Entry{
		catalog.CategoryTag: {{ID: "t1", Name: "PII"}},
	})
	cache := catalog.NewTenantCache(resolver)
	ctx := context.Background()

	_, err := cache.GetIDForName(ctx, catalog.CategoryTag, "PII")
	require.NoError(t, err)

	state := cache.State(catalog.CategoryTag)
	assert.True(t, state.Loaded)
	assert.Equal(t, 1, state.Entries)
	assert.False(t, cache.LastLoaded(catalog.CategoryTag).IsZero())

	cache.Evict(catalog.CategoryTag)
	assert.False(t, cache.State(catalog.CategoryTag).Loaded)

	_, err = cache.GetIDForName(ctx, catalog.CategoryTag, "PII")
	require.NoError(t, err)
	assert.Equal(t, int64(2), resolver.calls.Load())
	assert.Equal(t, uint64(2), cache.Generation(catalog.CategoryTag))

	require.NoError(t, cache.Close())

	_, err = cache.GetIDForName(ctx, catalog.CategoryTag, "PII")
	require.ErrorIs(t, err, catalog.ErrCacheClosed)
}

func TestTenantCache_UnknownCategory(t *testing.T) {
	t.Parallel()

	cache := catalog.NewTenantCache(newCountingResolver(map[catalog.Category][]catalog.Entry{}),
		catalog.WithCategories(catalog.CategoryTag),
	)

	_, err := cache.GetIDForName(context.Background(), catalog.CategoryUser, "jdoe")
	require.ErrorIs(t, err, catalog.ErrUnknownCategory)

	_, err = cache.GetIDForName(context.Background(), catalog.Category("widgets"), "x")
	require.ErrorIs(t, err, catalog.ErrUnknownCategory)
}

func TestResolverTable_MissingResolver(t *testing.T) {
	t.Parallel()

	table := catalog.ResolverTable{
		catalog.CategoryTag: catalog.ResolverFunc(func(context.Context, catalog.Category) ([]catalog.Entry, error) {
			return []catalog.Entry{{ID: "t1", Name: "PII"}}, nil
		}),
	}

	cache := catalog.NewTenantCache(table)

	id, err := cache.GetIDForName(context.Background(), catalog.CategoryTag, "PII")
	require.NoError(t, err)
	assert.Equal(t, "t1", id)

	_, err = cache.GetIDForName(context.Background(), catalog.CategoryRole, "admin")
	require.ErrorIs(t, err, catalog.ErrNoResolver)
}

func TestCacheStats_GetHitRate(t *testing.T) {
	t.Parallel()

	stats := catalog.CacheStats{Hits: 3, Misses: 1}
	assert.InDelta(t, 0.75, stats.GetHitRate(), 0.0001)

	empty := catalog.CacheStats{}
	assert.Zero(t, empty.GetHitRate())
}
