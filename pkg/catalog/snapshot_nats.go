package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/fivetwenty-io/catalog-client/internal/constants"
)

// NATSSnapshotConfig configures the NATS JetStream key-value snapshot store.
type NATSSnapshotConfig struct {
	// URL of the NATS server, defaults to nats.DefaultURL
	URL string

	// Bucket name, defaults to "catalog_cache_snapshots"
	Bucket string

	// TTL of stored snapshots, defaults to 24h
	TTL time.Duration

	// CredentialsFile is an optional NATS user credentials file
	CredentialsFile string

	// Token is an optional NATS auth token
	Token string

	// Conn reuses an existing connection instead of dialing URL.
	// The store does not close a connection it did not open.
	Conn *nats.Conn
}

// NATSSnapshotStore keeps category snapshots in a JetStream key-value bucket,
// one key per tenant and category.
type NATSSnapshotStore struct {
	conn     *nats.Conn
	ownsConn bool
	kv       jetstream.KeyValue
}

// NewNATSSnapshotStore connects to NATS and creates the bucket if needed.
func NewNATSSnapshotStore(config *NATSSnapshotConfig) (*NATSSnapshotStore, error) {
	if config == nil {
		return nil, ErrNATSConfigRequired
	}

	conn := config.Conn
	ownsConn := false

	if conn == nil {
		url := config.URL
		if url == "" {
			url = nats.DefaultURL
		}

		opts := []nats.Option{nats.Name("catalog-client")}
		if config.CredentialsFile != "" {
			opts = append(opts, nats.UserCredentials(config.CredentialsFile))
		}

		if config.Token != "" {
			opts = append(opts, nats.Token(config.Token))
		}

		var err error

		conn, err = nats.Connect(url, opts...)
		if err != nil {
			return nil, fmt.Errorf("connecting to NATS: %w", err)
		}

		ownsConn = true
	}

	js, err := jetstream.New(conn)
	if err != nil {
		if ownsConn {
			conn.Close()
		}

		return nil, fmt.Errorf("creating JetStream context: %w", err)
	}

	bucket := config.Bucket
	if bucket == "" {
		bucket = constants.DefaultSnapshotBucket
	}

	ttl := config.TTL
	if ttl == 0 {
		ttl = constants.DefaultSnapshotTTL
	}

	ctx, cancel := context.WithTimeout(context.Background(), constants.ShortHTTPTimeout)
	defer cancel()

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "catalog name/id cache snapshots",
		TTL:         ttl,
	})
	if err != nil {
		if ownsConn {
			conn.Close()
		}

		return nil, fmt.Errorf("creating key-value bucket %s: %w", bucket, err)
	}

	return &NATSSnapshotStore{conn: conn, ownsConn: ownsConn, kv: kv}, nil
}

// Load implements SnapshotStore.
func (s *NATSSnapshotStore) Load(ctx context.Context, tenant string, category Category) (*Snapshot, error) {
	key := natsSnapshotKey(tenant, category)

	entry, err := s.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, key)
		}

		return nil, fmt.Errorf("reading snapshot %s: %w", key, err)
	}

	var snapshot Snapshot

	err = json.Unmarshal(entry.Value(), &snapshot)
	if err != nil {
		return nil, fmt.Errorf("decoding snapshot %s: %w", key, err)
	}

	return &snapshot, nil
}

// Save implements SnapshotStore.
func (s *NATSSnapshotStore) Save(ctx context.Context, tenant string, category Category, snapshot *Snapshot) error {
	if snapshot == nil {
		return nil
	}

	key := natsSnapshotKey(tenant, category)

	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encoding snapshot %s: %w", key, err)
	}

	_, err = s.kv.Put(ctx, key, data)
	if err != nil {
		return fmt.Errorf("writing snapshot %s: %w", key, err)
	}

	return nil
}

// Close closes the NATS connection if the store opened it.
func (s *NATSSnapshotStore) Close() error {
	if s.ownsConn && s.conn != nil {
		s.conn.Close()
	}

	return nil
}

// natsSnapshotKey maps tenant and category onto the key alphabet JetStream
// accepts: letters, digits and "-_=./".
func natsSnapshotKey(tenant string, category Category) string {
	sanitize := func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-', r == '_', r == '=':
			return r
		default:
			return '_'
		}
	}

	if tenant == "" {
		tenant = "default"
	}

	return strings.Map(sanitize, tenant) + "." + strings.Map(sanitize, string(category))
}
