// Package talsi is a namespaced key-value store on top of an embedded SQLite
// database.
//
// Values are stored under a (namespace, key) pair. Each value is serialized
// according to its shape, compressed, and written as a self-describing frame,
// so data written with one configuration stays readable under another.
// Entries may carry an expiry; expired entries are invisible to every read
// even before they are physically removed.
//
//	s, err := talsi.Open("data.db", talsi.DefaultOptions())
//	if err != nil {
//		return err
//	}
//	defer s.Close()
//
//	err = s.Set(ctx, "users", "user:1", map[string]any{"name": "ada"})
//	v, found, err := s.Get(ctx, "users", "user:1")
package talsi

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/akx/talsi/internal/codec"
	"github.com/akx/talsi/internal/core/kv"
	"github.com/akx/talsi/internal/core/logging"
	"github.com/akx/talsi/internal/core/validate"
	"github.com/akx/talsi/internal/data/db"
	"github.com/akx/talsi/internal/data/stores"
	"github.com/akx/talsi/internal/sweep"
)

// DefaultCompression is the compression used when Options leaves it empty.
const DefaultCompression = "snappy"

// Options configures Open.
type Options struct {
	// Compression is "none", "snappy", "zstd" or "zstd:<1-22>". It applies to
	// new writes only; every stored frame records its own compression.
	Compression string
	// AllowGob enables the gob serializer for values outside the JSON subset
	// (structs, pointers, maps with non-string keys). Decoding gob data can
	// instantiate any registered type, so only enable it for trusted files.
	// Gob does not preserve shared references: a value reachable twice is
	// decoded as two copies, and cyclic values fail with ErrSerialization.
	AllowGob bool

	// BusyTimeout is how long SQLite waits on a lock before reporting busy.
	// MaxRetries and RetryWait bound the backoff applied on top of it to busy
	// transactions. Zero values take the defaults; a negative MaxRetries
	// disables retrying.
	BusyTimeout time.Duration
	MaxRetries  int
	RetryWait   time.Duration

	// SweepInterval, when positive, starts a background goroutine that
	// removes expired entries at this interval until Close.
	SweepInterval time.Duration

	// Logger receives structured logs. Nil disables logging.
	Logger *zerolog.Logger
	// Clock overrides time.Now for expiry decisions.
	Clock func() time.Time
}

// DefaultOptions returns snappy compression, gob disabled and no sweeper.
func DefaultOptions() Options {
	dbOpts := db.DefaultOpenOptions()
	return Options{
		Compression: DefaultCompression,
		BusyTimeout: dbOpts.BusyTimeout,
		MaxRetries:  dbOpts.MaxRetries,
		RetryWait:   dbOpts.RetryWait,
	}
}

// Stats summarises the stored entries.
type Stats = stores.Stats

// Entry is a decoded value together with its metadata and frame details.
type Entry struct {
	Namespace string
	Key       string
	Value     any
	Meta
	// Format is the serializer used: utf8, bytes, json or gob.
	Format string
	// Compression is the compression recorded in the frame.
	Compression string
	// Size is the stored frame size in bytes.
	Size int
}

// Storage is a handle on one database file. It owns a single connection and
// is safe for concurrent use; operations are serialized internally. Several
// handles, in one process or many, may share a file.
type Storage struct {
	db    *db.DB
	store *stores.KVStore
	codec *codec.Codec
	log   zerolog.Logger

	stopSweep context.CancelFunc
	sweepDone chan struct{}
	stopOnce  sync.Once
}

var _ kv.KV = (*Storage)(nil)

// Open opens or creates the database at path.
func Open(path string, opts Options) (*Storage, error) {
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = logging.Component(*opts.Logger, "talsi")
	}

	if opts.Compression == "" {
		opts.Compression = DefaultCompression
	}
	compression, err := codec.ParseCompression(opts.Compression)
	if err != nil {
		return nil, err
	}

	cdc, err := codec.New(codec.Options{Compression: compression, AllowGob: opts.AllowGob})
	if err != nil {
		return nil, err
	}

	dbOpts := db.DefaultOpenOptions()
	dbOpts.Logger = log
	dbOpts.OnBusy = func(int) { busyRetries.Inc() }
	if opts.BusyTimeout > 0 {
		dbOpts.BusyTimeout = opts.BusyTimeout
	}
	if opts.MaxRetries != 0 {
		dbOpts.MaxRetries = opts.MaxRetries
	}
	if opts.RetryWait > 0 {
		dbOpts.RetryWait = opts.RetryWait
	}

	database, err := db.Open(path, dbOpts)
	if err != nil {
		err = stores.Classify(err)
		if errors.Is(err, ErrCorruption) {
			log.Error().Err(err).Str("path", path).Msg("database file is corrupt")
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	s := &Storage{
		db:    database,
		store: stores.NewKVStore(database, stores.NewPolicy(opts.Clock)),
		codec: cdc,
		log:   log,
	}

	if opts.SweepInterval > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		s.stopSweep = cancel
		s.sweepDone = make(chan struct{})
		go func() {
			defer close(s.sweepDone)
			sweep.Start(logging.WithOperation(ctx, "background_sweep"), sweepCounter{s.store}, opts.SweepInterval, log)
		}()
	}

	log.Info().
		Str("path", path).
		Str("compression", compression.String()).
		Bool("allow_gob", opts.AllowGob).
		Str("json", codec.DefaultJSONBackend().Name()).
		Msg("storage opened")

	return s, nil
}

// Path returns the database file path.
func (s *Storage) Path() string {
	return s.db.Path()
}

// Compression returns the compression applied to new writes.
func (s *Storage) Compression() string {
	return s.codec.Compression().String()
}

// Close stops the sweeper and releases the connection. Operations started
// before Close finish first; later ones fail with ErrClosed. Close may be
// called more than once, from any goroutine.
func (s *Storage) Close() error {
	s.stopOnce.Do(func() {
		if s.stopSweep != nil {
			s.stopSweep()
			<-s.sweepDone
		}
	})
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("%w: close: %w", ErrStorage, err)
	}
	s.log.Info().Msg("storage closed")
	return nil
}

// Set stores value under key with no expiry, replacing any previous value
// and clearing any previous expiry.
func (s *Storage) Set(ctx context.Context, namespace, key string, value any) error {
	_, err := s.put(ctx, "set", namespace, map[string]any{key: value}, nil)
	return err
}

// SetTTL stores value under key for ttl. A ttl of zero or less stores an
// entry that is already expired.
func (s *Storage) SetTTL(ctx context.Context, namespace, key string, value any, ttl time.Duration) error {
	_, err := s.put(ctx, "set", namespace, map[string]any{key: value}, &ttl)
	return err
}

// SetMany stores every value in one transaction and returns how many were
// written. If any value fails to encode nothing is written.
func (s *Storage) SetMany(ctx context.Context, namespace string, values map[string]any) (int, error) {
	return s.put(ctx, "set_many", namespace, values, nil)
}

// SetManyTTL is SetMany with a shared ttl.
func (s *Storage) SetManyTTL(ctx context.Context, namespace string, values map[string]any, ttl time.Duration) (int, error) {
	return s.put(ctx, "set_many", namespace, values, &ttl)
}

func (s *Storage) put(ctx context.Context, op, namespace string, values map[string]any, ttl *time.Duration) (int, error) {
	ctx = opContext(ctx, op, namespace)
	frames, err := s.encode(namespace, values)
	if err != nil {
		return 0, s.done(op, err)
	}
	n, err := s.store.Put(ctx, namespace, frames, ttl)
	return n, s.done(op, err)
}

func (s *Storage) encode(namespace string, values map[string]any) (map[string][]byte, error) {
	if err := validate.Name("namespace", namespace); err != nil {
		return nil, err
	}

	frames := make(map[string][]byte, len(values))
	for _, key := range slices.Sorted(maps.Keys(values)) {
		if err := validate.Name("key", key); err != nil {
			return nil, err
		}
		frame, err := s.codec.Encode(values[key])
		if err != nil {
			return nil, fmt.Errorf("encode %q: %w", key, err)
		}
		payloadBytes.Update(float64(len(frame)))
		frames[key] = frame
	}
	return frames, nil
}

// Get returns the value stored under key. found is false when the key is
// missing or expired.
func (s *Storage) Get(ctx context.Context, namespace, key string) (any, bool, error) {
	rec, found, err := s.lookup(ctx, namespace, key)
	if err != nil || !found {
		return nil, false, s.done("get", err)
	}

	value, err := s.codec.Decode(rec.Payload)
	if err != nil {
		return nil, false, s.done("get", fmt.Errorf("decode %q: %w", key, err))
	}
	return value, true, s.done("get", nil)
}

// GetInto decodes the value stored under key into dest, which must be a
// non-nil pointer. JSON values decode like json.Unmarshal.
func (s *Storage) GetInto(ctx context.Context, namespace, key string, dest any) (bool, error) {
	rec, found, err := s.lookup(ctx, namespace, key)
	if err != nil || !found {
		return false, s.done("get", err)
	}

	if err := s.codec.DecodeInto(rec.Payload, dest); err != nil {
		return false, s.done("get", fmt.Errorf("decode %q: %w", key, err))
	}
	return true, s.done("get", nil)
}

// GetEntry returns the decoded value of key with its metadata and frame
// details.
func (s *Storage) GetEntry(ctx context.Context, namespace, key string) (Entry, bool, error) {
	rec, found, err := s.lookup(ctx, namespace, key)
	if err != nil || !found {
		return Entry{}, false, s.done("get_entry", err)
	}

	h, err := codec.Inspect(rec.Payload)
	if err != nil {
		return Entry{}, false, s.done("get_entry", fmt.Errorf("decode %q: %w", key, err))
	}
	value, err := s.codec.Decode(rec.Payload)
	if err != nil {
		return Entry{}, false, s.done("get_entry", fmt.Errorf("decode %q: %w", key, err))
	}

	return Entry{
		Namespace:   namespace,
		Key:         key,
		Value:       value,
		Meta:        rec.Meta,
		Format:      h.Format.String(),
		Compression: h.Compression.String(),
		Size:        len(rec.Payload),
	}, true, s.done("get_entry", nil)
}

func (s *Storage) lookup(ctx context.Context, namespace, key string) (stores.Record, bool, error) {
	if err := validate.Names(namespace, key); err != nil {
		return stores.Record{}, false, err
	}
	return s.store.Get(ctx, namespace, key)
}

// GetMany returns the live values among keys. Missing and expired keys are
// absent from the result.
func (s *Storage) GetMany(ctx context.Context, namespace string, keys []string) (map[string]any, error) {
	if err := validate.Names(namespace, keys...); err != nil {
		return nil, s.done("get_many", err)
	}

	records, err := s.store.GetMany(ctx, namespace, keys)
	if err != nil {
		return nil, s.done("get_many", err)
	}

	values := make(map[string]any, len(records))
	for _, rec := range records {
		v, err := s.codec.Decode(rec.Payload)
		if err != nil {
			return nil, s.done("get_many", fmt.Errorf("decode %q: %w", rec.Key, err))
		}
		values[rec.Key] = v
	}
	return values, s.done("get_many", nil)
}

// Has reports whether key holds a live entry.
func (s *Storage) Has(ctx context.Context, namespace, key string) (bool, error) {
	if err := validate.Names(namespace, key); err != nil {
		return false, s.done("has", err)
	}
	found, err := s.store.Existing(ctx, namespace, []string{key})
	return len(found) > 0, s.done("has", err)
}

// HasMany returns the sorted set of keys that hold live entries.
func (s *Storage) HasMany(ctx context.Context, namespace string, keys []string) ([]string, error) {
	if err := validate.Names(namespace, keys...); err != nil {
		return nil, s.done("has_many", err)
	}
	found, err := s.store.Existing(ctx, namespace, keys)
	return found, s.done("has_many", err)
}

// ListKeys returns the live keys of namespace in sorted order.
func (s *Storage) ListKeys(ctx context.Context, namespace string) ([]string, error) {
	if err := validate.Name("namespace", namespace); err != nil {
		return nil, s.done("list_keys", err)
	}
	keys, err := s.store.ListKeys(ctx, namespace)
	return keys, s.done("list_keys", err)
}

// ListKeysLike returns the live keys matching a SQL LIKE pattern, in sorted
// order. % matches any run of characters, _ exactly one; ASCII letters match
// case-insensitively.
func (s *Storage) ListKeysLike(ctx context.Context, namespace, pattern string) ([]string, error) {
	if err := validate.Names(namespace, pattern); err != nil {
		return nil, s.done("list_keys", err)
	}
	keys, err := s.store.ListKeysLike(ctx, namespace, pattern)
	return keys, s.done("list_keys", err)
}

// ListNamespaces returns, sorted, the namespaces holding at least one live
// entry.
func (s *Storage) ListNamespaces(ctx context.Context) ([]string, error) {
	namespaces, err := s.store.ListNamespaces(ctx)
	return namespaces, s.done("list_namespaces", err)
}

// Rename moves entries from old to new keys in one transaction and returns
// how many pairs were renamed. See RenameOptions for how missing sources and
// occupied destinations are treated.
func (s *Storage) Rename(ctx context.Context, namespace string, pairs map[string]string, opts RenameOptions) (int, error) {
	if err := validate.Name("namespace", namespace); err != nil {
		return 0, s.done("rename", err)
	}
	for from, to := range pairs {
		if err := validate.Names(namespace, from, to); err != nil {
			return 0, s.done("rename", err)
		}
	}
	n, err := s.store.Rename(opContext(ctx, "rename", namespace), namespace, pairs, opts)
	return n, s.done("rename", err)
}

// RenameKey renames a single key and reports whether it was renamed.
func (s *Storage) RenameKey(ctx context.Context, namespace, from, to string, opts RenameOptions) (bool, error) {
	n, err := s.Rename(ctx, namespace, map[string]string{from: to}, opts)
	return n == 1, err
}

// Delete removes key and returns 1 if a live entry was removed, else 0.
func (s *Storage) Delete(ctx context.Context, namespace, key string) (int, error) {
	return s.delete(ctx, "delete", namespace, []string{key})
}

// DeleteMany removes keys in one transaction and returns how many live
// entries were removed.
func (s *Storage) DeleteMany(ctx context.Context, namespace string, keys []string) (int, error) {
	return s.delete(ctx, "delete_many", namespace, keys)
}

func (s *Storage) delete(ctx context.Context, op, namespace string, keys []string) (int, error) {
	ctx = opContext(ctx, op, namespace)
	if err := validate.Names(namespace, keys...); err != nil {
		return 0, s.done(op, err)
	}
	n, err := s.store.Delete(ctx, namespace, keys)
	return n, s.done(op, err)
}

// Sweep physically removes expired entries and returns how many went. Expired
// entries are already invisible, so sweeping only reclaims space.
func (s *Storage) Sweep(ctx context.Context) (int64, error) {
	ctx = logging.WithOperation(ctx, "sweep")
	n, err := sweepCounter{s.store}.SweepExpired(ctx)
	if err == nil {
		s.log.Debug().Ctx(ctx).Int64("removed", n).Msg("sweep")
	}
	return n, s.done("sweep", err)
}

// Stats counts live and expired entries.
func (s *Storage) Stats(ctx context.Context) (Stats, error) {
	st, err := s.store.Stats(ctx)
	return st, s.done("stats", err)
}

// done records metrics for op and logs corruption.
func (s *Storage) done(op string, err error) error {
	countOperation(op)
	if err == nil {
		return nil
	}

	countError(op, err)
	if errors.Is(err, ErrCorruption) {
		s.log.Error().Err(err).Str("op", op).Msg("corrupt data")
	}
	return err
}

// sweepCounter feeds swept row counts into the metrics.
type sweepCounter struct {
	store *stores.KVStore
}

func (c sweepCounter) SweepExpired(ctx context.Context) (int64, error) {
	n, err := c.store.SweepExpired(ctx)
	if n > 0 {
		sweptEntries.Add(int(n))
	}
	return n, err
}

// opContext tags ctx so log events from the write path carry op and namespace.
func opContext(ctx context.Context, op, namespace string) context.Context {
	return logging.WithOperation(logging.WithNamespace(ctx, namespace), op)
}
