package catalog

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/fivetwenty-io/catalog-client/internal/constants"
)

// Resolver fetches the authoritative full listing of one category.
type Resolver interface {
	ListAll(ctx context.Context, category Category) ([]Entry, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, category Category) ([]Entry, error)

// ListAll implements Resolver.
func (f ResolverFunc) ListAll(ctx context.Context, category Category) ([]Entry, error) {
	return f(ctx, category)
}

// ResolverTable dispatches each category to its own Resolver.
type ResolverTable map[Category]Resolver

// ListAll implements Resolver.
func (t ResolverTable) ListAll(ctx context.Context, category Category) ([]Entry, error) {
	resolver, ok := t[category]
	if !ok || resolver == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoResolver, category)
	}

	return resolver.ListAll(ctx, category)
}

// snapshot is an immutable view of one category. Readers load it through an
// atomic pointer and never observe a partially built snapshot.
type snapshot struct {
	entries     []Entry
	byID        map[string]*Entry
	byName      map[string]*Entry
	attrsByName map[string]map[string]AttributeDef
	attrsByID   map[string]map[string]AttributeDef
	generation  uint64
	loadedAt    time.Time
	warm        bool
}

type categoryCache struct {
	category   Category
	current    atomic.Pointer[snapshot]
	generation atomic.Uint64
}

// TenantCache maps human-readable names to service identifiers for every
// category of one tenant. Lookups are lock-free; a miss triggers one full
// reload of the category, shared by every concurrent caller of that category.
type TenantCache struct {
	tenant      string
	resolver    Resolver
	categories  map[Category]*categoryCache
	group       singleflight.Group
	store       SnapshotStore
	wait        WaitPolicy
	maxAttempts int
	logger      Logger
	closed      atomic.Bool

	hits      atomic.Int64
	misses    atomic.Int64
	refreshes atomic.Int64
	failures  atomic.Int64
}

// CacheOption configures a TenantCache.
type CacheOption func(*TenantCache)

// WithTenant names the tenant; used to namespace shared snapshots.
func WithTenant(tenant string) CacheOption {
	return func(c *TenantCache) {
		c.tenant = tenant
	}
}

// WithSnapshotStore enables warm starts from, and write-through to, a shared store.
func WithSnapshotStore(store SnapshotStore) CacheOption {
	return func(c *TenantCache) {
		c.store = store
	}
}

// WithWaitPolicy sets the policy used between WaitForName attempts.
func WithWaitPolicy(policy WaitPolicy) CacheOption {
	return func(c *TenantCache) {
		c.wait = policy
	}
}

// WithMaxAttempts bounds WaitForName.
func WithMaxAttempts(attempts int) CacheOption {
	return func(c *TenantCache) {
		if attempts > 0 {
			c.maxAttempts = attempts
		}
	}
}

// WithCacheLogger sets the logger.
func WithCacheLogger(logger Logger) CacheOption {
	return func(c *TenantCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithCategories restricts the cache to the given categories.
func WithCategories(categories ...Category) CacheOption {
	return func(c *TenantCache) {
		c.categories = make(map[Category]*categoryCache, len(categories))
		for _, category := range categories {
			c.categories[category] = &categoryCache{category: category}
		}
	}
}

// NewTenantCache creates an empty cache. Nothing is fetched until the first
// lookup or Refresh.
func NewTenantCache(resolver Resolver, opts ...CacheOption) *TenantCache {
	cache := &TenantCache{
		resolver:    resolver,
		wait:        DefaultWaitPolicy(),
		maxAttempts: constants.DefaultCacheMaxAttempts,
		logger:      NopLogger{},
	}

	WithCategories(AllCategories()...)(cache)

	for _, opt := range opts {
		opt(cache)
	}

	return cache
}

// GetIDForName returns the id of the named entity.
func (c *TenantCache) GetIDForName(ctx context.Context, category Category, name string) (string, error) {
	entry, err := c.GetEntryByName(ctx, category, name)
	if err != nil {
		return "", err
	}

	return entry.ID, nil
}

// GetNameForID returns the name of the identified entity.
func (c *TenantCache) GetNameForID(ctx context.Context, category Category, id string) (string, error) {
	entry, err := c.GetEntryByID(ctx, category, id)
	if err != nil {
		return "", err
	}

	return entry.Name, nil
}

// GetEntryByName returns the full entry of the named entity.
func (c *TenantCache) GetEntryByName(ctx context.Context, category Category, name string) (Entry, error) {
	return resolve(ctx, c, category, name, func(snap *snapshot) (Entry, bool) {
		entry, ok := snap.byName[name]
		if !ok {
			return Entry{}, false
		}

		return *entry, true
	})
}

// GetEntryByID returns the full entry of the identified entity.
func (c *TenantCache) GetEntryByID(ctx context.Context, category Category, id string) (Entry, error) {
	return resolve(ctx, c, category, id, func(snap *snapshot) (Entry, bool) {
		entry, ok := snap.byID[id]
		if !ok {
			return Entry{}, false
		}

		return *entry, true
	})
}

// Entries returns every entry of a category, loading it if needed.
func (c *TenantCache) Entries(ctx context.Context, category Category) ([]Entry, error) {
	cc, err := c.lookupCategory(category)
	if err != nil {
		return nil, err
	}

	snap := cc.current.Load()
	if snap == nil {
		err = c.load(ctx, cc, cc.generation.Load(), true)
		if err != nil {
			return nil, err
		}

		snap = cc.current.Load()
		if snap == nil {
			return nil, nil
		}
	}

	entries := make([]Entry, len(snap.entries))
	copy(entries, snap.entries)

	return entries, nil
}

// Refresh unconditionally reloads a category and swaps both maps at once.
// A concurrent refresh of the same category is joined rather than duplicated.
// On failure the previous snapshot stays in place.
func (c *TenantCache) Refresh(ctx context.Context, category Category) error {
	cc, err := c.lookupCategory(category)
	if err != nil {
		return err
	}

	return c.load(ctx, cc, cc.generation.Load(), false)
}

// WaitForName resolves a name that may not be visible yet, for example right
// after creating the entity. Every attempt reloads the category on a miss;
// attempts are spaced by the cache's WaitPolicy.
func (c *TenantCache) WaitForName(ctx context.Context, category Category, name string) (string, error) {
	var id string

	err := WaitUntil(ctx, c.wait, c.maxAttempts, func(ctx context.Context) (bool, error) {
		found, err := c.GetIDForName(ctx, category, name)
		if err == nil {
			id = found

			return true, nil
		}

		if IsNotFound(err) {
			c.logger.Debug("entity not visible yet", map[string]interface{}{
				"category": category.String(),
				"name":     name,
			})

			return false, nil
		}

		return false, err
	})
	if err != nil {
		if IsNotFound(err) || isWaitExhausted(err) {
			return "", &NotFoundError{Category: category, Key: name}
		}

		return "", err
	}

	return id, nil
}

// Evict drops the snapshot of a category. The next lookup reloads it.
func (c *TenantCache) Evict(category Category) {
	cc, err := c.lookupCategory(category)
	if err != nil {
		return
	}

	cc.current.Store(nil)
}

// Close clears every category. Later lookups fail with ErrCacheClosed.
func (c *TenantCache) Close() error {
	c.closed.Store(true)

	for _, cc := range c.categories {
		cc.current.Store(nil)
	}

	return nil
}

// Generation returns how many snapshots the category has installed.
func (c *TenantCache) Generation(category Category) uint64 {
	cc, err := c.lookupCategory(category)
	if err != nil {
		return 0
	}

	return cc.generation.Load()
}

// LastLoaded returns when the current snapshot of the category was built.
func (c *TenantCache) LastLoaded(category Category) time.Time {
	cc, err := c.lookupCategory(category)
	if err != nil {
		return time.Time{}
	}

	snap := cc.current.Load()
	if snap == nil {
		return time.Time{}
	}

	return snap.loadedAt
}

// State describes the loaded snapshot of a category.
func (c *TenantCache) State(category Category) CategoryState {
	state := CategoryState{Category: category, Generation: c.Generation(category)}

	cc, err := c.lookupCategory(category)
	if err != nil {
		return state
	}

	if snap := cc.current.Load(); snap != nil {
		state.Loaded = true
		state.Entries = len(snap.entries)
		state.LoadedAt = snap.loadedAt
	}

	return state
}

// Stats returns a copy of the lookup counters.
func (c *TenantCache) Stats() CacheStats {
	return CacheStats{
		Hits:            c.hits.Load(),
		Misses:          c.misses.Load(),
		Refreshes:       c.refreshes.Load(),
		RefreshFailures: c.failures.Load(),
	}
}

func (c *TenantCache) lookupCategory(category Category) (*categoryCache, error) {
	if c.closed.Load() {
		return nil, ErrCacheClosed
	}

	cc, ok := c.categories[category]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}

	return cc, nil
}

// resolve implements the miss -> refresh -> recheck -> not-found contract
// shared by every lookup.
func resolve[T any](ctx context.Context, c *TenantCache, category Category, key string, find func(*snapshot) (T, bool)) (T, error) {
	var zero T

	cc, err := c.lookupCategory(category)
	if err != nil {
		return zero, err
	}

	seen := cc.generation.Load()

	snap := cc.current.Load()
	if snap == nil {
		err = c.load(ctx, cc, seen, true)
		if err != nil {
			return zero, err
		}

		snap = cc.current.Load()
	}

	if snap != nil {
		if value, ok := find(snap); ok {
			c.hits.Add(1)

			return value, nil
		}
	}

	c.misses.Add(1)

	err = c.load(ctx, cc, seen, false)
	if err != nil {
		return zero, err
	}

	if snap = cc.current.Load(); snap != nil {
		if value, ok := find(snap); ok {
			return value, nil
		}
	}

	return zero, &NotFoundError{Category: category, Key: key}
}

// load reloads a category unless a snapshot was installed after the caller
// observed generation seen. Concurrent loads of one category share a single
// flight; each caller still honors its own context while waiting. A caller
// that joined a flight which only warmed the cache from the snapshot store
// starts one more flight of its own.
func (c *TenantCache) load(ctx context.Context, cc *categoryCache, seen uint64, allowStore bool) error {
	for range 2 {
		if c.satisfied(cc, seen, allowStore) {
			return nil
		}

		flight := c.group.DoChan(string(cc.category), func() (interface{}, error) {
			if c.satisfied(cc, seen, allowStore) {
				return nil, nil
			}

			loadCtx := context.WithoutCancel(ctx)

			if allowStore && c.store != nil && cc.current.Load() == nil {
				if c.warmStart(loadCtx, cc) {
					return nil, nil
				}
			}

			return nil, c.reload(loadCtx, cc)
		})

		select {
		case result := <-flight:
			if result.Err != nil {
				return result.Err
			}
		case <-ctx.Done():
			return fmt.Errorf("waiting for %s refresh: %w", cc.category, ctx.Err())
		}
	}

	return nil
}

// satisfied reports whether a snapshot newer than seen is installed. A miss
// is only satisfied by a snapshot that came from the Resolver.
func (c *TenantCache) satisfied(cc *categoryCache, seen uint64, allowStore bool) bool {
	snap := cc.current.Load()

	return snap != nil && snap.generation > seen && (allowStore || !snap.warm)
}

func (c *TenantCache) reload(ctx context.Context, cc *categoryCache) error {
	start := time.Now()

	entries, err := c.resolver.ListAll(ctx, cc.category)
	if err != nil {
		c.failures.Add(1)
		c.logger.Warn("cache refresh failed", map[string]interface{}{
			"tenant":   c.tenant,
			"category": cc.category.String(),
			"error":    err.Error(),
		})

		return fmt.Errorf("refreshing %s cache: %w", cc.category, err)
	}

	snap := c.install(cc, entries, time.Now(), false)
	c.refreshes.Add(1)

	c.logger.Debug("cache refreshed", map[string]interface{}{
		"tenant":     c.tenant,
		"category":   cc.category.String(),
		"entries":    len(snap.entries),
		"generation": snap.generation,
		"duration":   time.Since(start).String(),
	})

	if c.store != nil {
		saveErr := c.store.Save(ctx, c.tenant, cc.category, &Snapshot{
			Tenant:     c.tenant,
			Category:   cc.category,
			Generation: snap.generation,
			LoadedAt:   snap.loadedAt,
			Entries:    snap.entries,
		})
		if saveErr != nil {
			c.logger.Warn("failed to save cache snapshot", map[string]interface{}{
				"category": cc.category.String(),
				"error":    saveErr.Error(),
			})
		}
	}

	return nil
}

func (c *TenantCache) warmStart(ctx context.Context, cc *categoryCache) bool {
	stored, err := c.store.Load(ctx, c.tenant, cc.category)
	if err != nil {
		if !isSnapshotMissing(err) {
			c.logger.Warn("failed to load cache snapshot", map[string]interface{}{
				"category": cc.category.String(),
				"error":    err.Error(),
			})
		}

		return false
	}

	snap := c.install(cc, stored.Entries, stored.LoadedAt, true)

	c.logger.Debug("cache warmed from snapshot store", map[string]interface{}{
		"category":   cc.category.String(),
		"entries":    len(snap.entries),
		"generation": snap.generation,
	})

	return true
}

// install publishes a new snapshot, then bumps the generation so that a
// reader observing the new generation always finds the new snapshot.
func (c *TenantCache) install(cc *categoryCache, entries []Entry, loadedAt time.Time, warm bool) *snapshot {
	snap := buildSnapshot(entries, c.logger, cc.category)
	snap.loadedAt = loadedAt
	snap.warm = warm
	snap.generation = cc.generation.Load() + 1

	cc.current.Store(snap)
	cc.generation.Store(snap.generation)

	return snap
}

func buildSnapshot(entries []Entry, logger Logger, category Category) *snapshot {
	snap := &snapshot{
		entries:     make([]Entry, 0, len(entries)),
		byID:        make(map[string]*Entry, len(entries)),
		byName:      make(map[string]*Entry, len(entries)),
		attrsByName: make(map[string]map[string]AttributeDef),
		attrsByID:   make(map[string]map[string]AttributeDef),
	}

	seenID := make(map[string]struct{}, len(entries))
	seenName := make(map[string]struct{}, len(entries))

	for _, entry := range entries {
		_, dupID := seenID[entry.ID]
		_, dupName := seenName[entry.Name]

		if dupID || dupName {
			logger.Warn("dropping duplicate cache entry", map[string]interface{}{
				"category": category.String(),
				"id":       entry.ID,
				"name":     entry.Name,
			})

			continue
		}

		seenID[entry.ID] = struct{}{}
		seenName[entry.Name] = struct{}{}
		snap.entries = append(snap.entries, entry)
	}

	for i := range snap.entries {
		entry := &snap.entries[i]
		snap.byID[entry.ID] = entry
		snap.byName[entry.Name] = entry

		indexAttributes(snap, entry)
	}

	return snap
}
