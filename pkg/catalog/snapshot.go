package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Snapshot is the serializable form of one category listing.
type Snapshot struct {
	Tenant     string    `json:"tenant"`
	Category   Category  `json:"category"`
	Generation uint64    `json:"generation"`
	LoadedAt   time.Time `json:"loaded_at"`
	Entries    []Entry   `json:"entries"`
}

// SnapshotStore shares category listings between processes so that a fresh
// TenantCache can start warm. Load returns ErrSnapshotNotFound when nothing
// is stored.
type SnapshotStore interface {
	Load(ctx context.Context, tenant string, category Category) (*Snapshot, error)
	Save(ctx context.Context, tenant string, category Category, snapshot *Snapshot) error
}

// SnapshotStoreType represents the type of snapshot backend.
type SnapshotStoreType string

const (
	// SnapshotStoreMemory keeps snapshots in process memory.
	SnapshotStoreMemory SnapshotStoreType = "memory"

	// SnapshotStoreNATS keeps snapshots in a NATS JetStream key-value bucket.
	SnapshotStoreNATS SnapshotStoreType = "nats"

	// SnapshotStoreNone disables snapshots.
	SnapshotStoreNone SnapshotStoreType = "none"
)

// SnapshotStoreConfig configures a snapshot backend.
type SnapshotStoreConfig struct {
	// Type is the backend type
	Type SnapshotStoreType

	// NATS KV configuration, required for SnapshotStoreNATS
	NATS *NATSSnapshotConfig
}

// NewSnapshotStoreFromConfig creates a snapshot backend from configuration.
// A nil config disables snapshots.
func NewSnapshotStoreFromConfig(config *SnapshotStoreConfig) (SnapshotStore, error) {
	if config == nil {
		return NewNoOpSnapshotStore(), nil
	}

	switch config.Type {
	case SnapshotStoreMemory:
		return NewMemorySnapshotStore(), nil

	case SnapshotStoreNATS:
		if config.NATS == nil {
			return nil, ErrNATSConfigRequired
		}

		return NewNATSSnapshotStore(config.NATS)

	case SnapshotStoreNone, "":
		return NewNoOpSnapshotStore(), nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedStoreType, config.Type)
	}
}

// MemorySnapshotStore keeps snapshots in memory. Useful for tests and for
// sharing listings between several clients of one process.
type MemorySnapshotStore struct {
	mu        sync.RWMutex
	snapshots map[string]*Snapshot
}

// NewMemorySnapshotStore creates an empty memory store.
func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{
		snapshots: make(map[string]*Snapshot),
	}
}

// Load implements SnapshotStore.
func (s *MemorySnapshotStore) Load(ctx context.Context, tenant string, category Category) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.snapshots[snapshotKey(tenant, category)]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrSnapshotNotFound, tenant, category)
	}

	return copySnapshot(stored), nil
}

// Save implements SnapshotStore.
func (s *MemorySnapshotStore) Save(ctx context.Context, tenant string, category Category, snapshot *Snapshot) error {
	if snapshot == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshots[snapshotKey(tenant, category)] = copySnapshot(snapshot)

	return nil
}

// Len returns the number of stored snapshots.
func (s *MemorySnapshotStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.snapshots)
}

// NoOpSnapshotStore stores nothing.
type NoOpSnapshotStore struct{}

// NewNoOpSnapshotStore creates a new no-op store.
func NewNoOpSnapshotStore() *NoOpSnapshotStore {
	return &NoOpSnapshotStore{}
}

// Load always reports a missing snapshot.
func (s *NoOpSnapshotStore) Load(ctx context.Context, tenant string, category Category) (*Snapshot, error) {
	return nil, ErrSnapshotNotFound
}

// Save does nothing.
func (s *NoOpSnapshotStore) Save(ctx context.Context, tenant string, category Category, snapshot *Snapshot) error {
	return nil
}

func snapshotKey(tenant string, category Category) string {
	return tenant + "/" + string(category)
}

func copySnapshot(snapshot *Snapshot) *Snapshot {
	clone := *snapshot
	clone.Entries = make([]Entry, len(snapshot.Entries))
	copy(clone.Entries, snapshot.Entries)

	return &clone
}

func isSnapshotMissing(err error) bool {
	return errors.Is(err, ErrSnapshotNotFound)
}
