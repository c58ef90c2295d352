// Package docstore is a local bbolt-backed document store holding raw JSON
// items by collection. It stands in for the external store that feeds the
// decoder: items go in as written and come back in insertion order.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/mstrYoda/graphview"
)

var (
	// ErrWriteQueueFull is returned when the write semaphore is full and the
	// caller's context expires before a slot becomes available.
	ErrWriteQueueFull = errors.New("docstore: write queue full")

	// ErrCollectionNotFound is returned by Load and Count for unknown
	// collections.
	ErrCollectionNotFound = errors.New("docstore: collection not found")

	// ErrInvalidCollection is returned for an empty collection name.
	ErrInvalidCollection = errors.New("docstore: invalid collection name")
)

// Collections live in top-level buckets named with this prefix.
const collectionPrefix = "col:"

// Options configures a Store.
type Options struct {
	// NoSync disables fsync after each commit.
	NoSync bool
	// ReadOnly opens the store in read-only mode.
	ReadOnly bool
	// WriteQueueSize bounds goroutines waiting for bbolt's writer lock.
	// Default: 64.
	WriteQueueSize int
	// WriteTimeout is the max wait for a write slot when the caller's
	// context has no deadline. 0 = block until ctx is done.
	WriteTimeout time.Duration
	// Logger receives store logs. Default: slog.Default().
	Logger *slog.Logger
}

// Store is a bbolt file of item collections.
type Store struct {
	db           *bolt.DB
	path         string
	log          *slog.Logger
	writeSem     chan struct{}
	writeTimeout time.Duration
}

// Open opens or creates the store file at path.
func Open(path string, opts Options) (*Store, error) {
	dir := filepath.Dir(path)
	if !opts.ReadOnly {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("docstore: failed to create directory %s: %w", dir, err)
		}
	}

	boltOpts := *bolt.DefaultOptions
	boltOpts.NoSync = opts.NoSync
	boltOpts.ReadOnly = opts.ReadOnly
	boltOpts.Timeout = time.Second

	db, err := bolt.Open(path, 0600, &boltOpts)
	if err != nil {
		return nil, fmt.Errorf("docstore: failed to open bolt db at %s: %w", path, err)
	}

	queueSize := opts.WriteQueueSize
	if queueSize <= 0 {
		queueSize = 64
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{
		db:           db,
		path:         path,
		log:          logger,
		writeSem:     make(chan struct{}, queueSize),
		writeTimeout: opts.WriteTimeout,
	}
	s.log.Debug("docstore opened", "path", path, "read_only", opts.ReadOnly)
	return s, nil
}

// Close closes the underlying bbolt file.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the store file path.
func (s *Store) Path() string { return s.path }

func bucketName(collection string) ([]byte, error) {
	if collection == "" {
		return nil, ErrInvalidCollection
	}
	return []byte(collectionPrefix + collection), nil
}

// acquireWrite obtains a slot in the write semaphore, blocking until a slot
// is available, the context is cancelled, or the write timeout expires.
// The caller must call releaseWrite when done.
func (s *Store) acquireWrite(ctx context.Context) error {
	if s.writeTimeout > 0 {
		if _, hasDeadline := ctx.Deadline(); !hasDeadline {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.writeTimeout)
			defer cancel()
		}
	}

	select {
	case s.writeSem <- struct{}{}:
		return nil
	default:
		select {
		case s.writeSem <- struct{}{}:
			return nil
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrWriteQueueFull, ctx.Err())
		}
	}
}

func (s *Store) releaseWrite() {
	<-s.writeSem
}

// Put appends items to collection, creating it if needed. The write is one
// transaction: either every item is stored or none is.
func (s *Store) Put(ctx context.Context, collection string, items []graphview.Item) error {
	name, err := bucketName(collection)
	if err != nil {
		return err
	}
	if err := s.acquireWrite(ctx); err != nil {
		return err
	}
	defer s.releaseWrite()

	now := time.Now().UnixNano()
	err = s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(name)
		if err != nil {
			return fmt.Errorf("docstore: failed to create bucket %s: %w", name, err)
		}
		for _, it := range items {
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			val, err := encodeEnvelope(envelope{Raw: []byte(it.Raw()), StoredAt: now})
			if err != nil {
				return err
			}
			if err := b.Put(encodeUint64(seq), val); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.log.Debug("items stored", "collection", collection, "items", len(items))
	return nil
}

// Load returns every item of collection in insertion order.
func (s *Store) Load(ctx context.Context, collection string) ([]graphview.Item, error) {
	name, err := bucketName(collection)
	if err != nil {
		return nil, err
	}
	var items []graphview.Item
	err = s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(name)
		if b == nil {
			return fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
		}
		items = make([]graphview.Item, 0, b.Stats().KeyN)
		n := 0
		return b.ForEach(func(_, v []byte) error {
			n++
			if n%256 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			env, err := decodeEnvelope(v)
			if err != nil {
				return err
			}
			it, err := graphview.ParseItem(env.Raw)
			if err != nil {
				return err
			}
			items = append(items, it)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// Count returns the number of items in collection.
func (s *Store) Count(collection string) (int, error) {
	name, err := bucketName(collection)
	if err != nil {
		return 0, err
	}
	var n int
	err = s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(name)
		if b == nil {
			return fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
		}
		n = b.Stats().KeyN
		return nil
	})
	return n, err
}

// Collections returns the collection names in sorted order.
func (s *Store) Collections() ([]string, error) {
	var names []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			if n, ok := strings.CutPrefix(string(name), collectionPrefix); ok {
				names = append(names, n)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// Drop deletes collection and its items.
func (s *Store) Drop(ctx context.Context, collection string) error {
	name, err := bucketName(collection)
	if err != nil {
		return err
	}
	if err := s.acquireWrite(ctx); err != nil {
		return err
	}
	defer s.releaseWrite()
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(name); err != nil {
			if errors.Is(err, bolt.ErrBucketNotFound) {
				return fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
			}
			return err
		}
		return nil
	})
}
