package stores

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/akx/talsi/internal/core/kv"
	"github.com/akx/talsi/internal/data/db"
)

// Record is a live entry as stored: the encoded frame plus its metadata.
type Record struct {
	Key     string
	Payload []byte
	Meta    kv.Meta
}

// Stats summarises the entry table.
type Stats struct {
	LiveEntries    int64
	ExpiredEntries int64
	Namespaces     int64
	PayloadBytes   int64
}

// KVStore runs namespaced entry operations over already-encoded frames. Each
// method is one transaction, so a batch is either fully applied or not at all.
// Transactions may be retried on lock contention; the closures below keep no
// state between attempts.
type KVStore struct {
	db     *db.DB
	policy Policy
}

// NewKVStore creates a new SQLite-backed entry store.
func NewKVStore(database *db.DB, policy Policy) *KVStore {
	return &KVStore{db: database, policy: policy}
}

// Put upserts every frame in one transaction and returns how many were
// written. A nil ttl stores entries without expiry.
func (s *KVStore) Put(ctx context.Context, namespace string, frames map[string][]byte, ttl *time.Duration) (int, error) {
	if len(frames) == 0 {
		return 0, nil
	}
	keys := slices.Sorted(maps.Keys(frames))

	err := s.db.WithTx(ctx, func(q *db.Queries) error {
		now := s.policy.Now()
		expiresAt := s.policy.ExpiresAt(now, ttl)
		for _, key := range keys {
			err := q.UpsertEntry(ctx, db.UpsertEntryParams{
				Namespace: namespace,
				Key:       key,
				Payload:   frames[key],
				ExpiresAt: expiresAt,
				Now:       now,
			})
			if err != nil {
				return fmt.Errorf("key %q: %w", key, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, wrap("put", err)
	}
	return len(keys), nil
}

// Get returns the live record for key.
func (s *KVStore) Get(ctx context.Context, namespace, key string) (Record, bool, error) {
	var (
		rec   Record
		found bool
	)
	err := s.db.WithReadTx(ctx, func(q *db.Queries) error {
		row, err := q.GetEntry(ctx, namespace, key, s.policy.Now())
		if IsNotFoundError(err) {
			found = false
			return nil
		}
		if err != nil {
			return err
		}
		rec, found = toRecord(row), true
		return nil
	})
	if err != nil {
		return Record{}, false, wrap("get", err)
	}
	return rec, found, nil
}

// GetMany returns the live records among keys. Missing and expired keys are
// left out.
func (s *KVStore) GetMany(ctx context.Context, namespace string, keys []string) ([]Record, error) {
	var records []Record
	err := s.db.WithReadTx(ctx, func(q *db.Queries) error {
		rows, err := q.GetEntries(ctx, namespace, uniq(keys), s.policy.Now())
		if err != nil {
			return err
		}
		records = make([]Record, 0, len(rows))
		for _, row := range rows {
			records = append(records, toRecord(row))
		}
		return nil
	})
	if err != nil {
		return nil, wrap("get many", err)
	}
	return records, nil
}

// Existing returns the sorted set of live keys among keys.
func (s *KVStore) Existing(ctx context.Context, namespace string, keys []string) ([]string, error) {
	var found []string
	err := s.db.WithReadTx(ctx, func(q *db.Queries) error {
		var err error
		found, err = q.ExistingKeys(ctx, namespace, uniq(keys), s.policy.Now())
		return err
	})
	if err != nil {
		return nil, wrap("has many", err)
	}
	slices.Sort(found)
	return nonNil(found), nil
}

// ListKeys returns every live key of the namespace, sorted.
func (s *KVStore) ListKeys(ctx context.Context, namespace string) ([]string, error) {
	var keys []string
	err := s.db.WithReadTx(ctx, func(q *db.Queries) error {
		var err error
		keys, err = q.ListKeys(ctx, namespace, s.policy.Now())
		return err
	})
	if err != nil {
		return nil, wrap("list keys", err)
	}
	return nonNil(keys), nil
}

// ListKeysLike returns the live keys matching a LIKE pattern, sorted.
func (s *KVStore) ListKeysLike(ctx context.Context, namespace, pattern string) ([]string, error) {
	var keys []string
	err := s.db.WithReadTx(ctx, func(q *db.Queries) error {
		var err error
		keys, err = q.ListKeysLike(ctx, namespace, pattern, s.policy.Now())
		return err
	})
	if err != nil {
		return nil, wrap("list keys", err)
	}
	return nonNil(keys), nil
}

// ListNamespaces returns the namespaces with at least one live entry, sorted.
func (s *KVStore) ListNamespaces(ctx context.Context) ([]string, error) {
	var namespaces []string
	err := s.db.WithReadTx(ctx, func(q *db.Queries) error {
		var err error
		namespaces, err = q.ListNamespaces(ctx, s.policy.Now())
		return err
	})
	if err != nil {
		return nil, wrap("list namespaces", err)
	}
	return nonNil(namespaces), nil
}

// Delete removes keys in one transaction and returns how many live entries
// went away. Expired rows for the same keys are removed without being counted.
func (s *KVStore) Delete(ctx context.Context, namespace string, keys []string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	var removed int64
	err := s.db.WithTx(ctx, func(q *db.Queries) error {
		var err error
		removed, err = q.DeleteEntries(ctx, namespace, uniq(keys), s.policy.Now())
		return err
	})
	if err != nil {
		return 0, wrap("delete", err)
	}
	return int(removed), nil
}

// Rename moves entries from old to new keys in one transaction, visiting the
// pairs in source-key order, and returns how many pairs were renamed.
//
//	MustExist  Overwrite  missing source       live destination
//	true       true       abort ErrKeyNotFound replace
//	true       false      abort ErrKeyNotFound abort ErrKeyExists
//	false      true       skip                 replace
//	false      false      skip                 skip
//
// Expired rows are absent on both sides. Renaming a live key onto itself
// counts as a rename and changes nothing.
func (s *KVStore) Rename(ctx context.Context, namespace string, pairs map[string]string, opts kv.RenameOptions) (int, error) {
	if len(pairs) == 0 {
		return 0, nil
	}
	sources := slices.Sorted(maps.Keys(pairs))

	var renamed int
	err := s.db.WithTx(ctx, func(q *db.Queries) error {
		renamed = 0
		now := s.policy.Now()

		for _, from := range sources {
			to := pairs[from]

			_, err := q.GetEntry(ctx, namespace, from, now)
			if IsNotFoundError(err) {
				if opts.MustExist {
					return fmt.Errorf("source key %q: %w", from, kv.ErrKeyNotFound)
				}
				continue
			}
			if err != nil {
				return err
			}

			if from == to {
				renamed++
				continue
			}

			_, err = q.GetEntry(ctx, namespace, to, now)
			switch {
			case err == nil:
				if !opts.Overwrite {
					if opts.MustExist {
						return fmt.Errorf("destination key %q: %w", to, kv.ErrKeyExists)
					}
					continue
				}
			case !IsNotFoundError(err):
				return err
			}

			if err := q.MoveEntry(ctx, namespace, from, to, now); err != nil {
				return err
			}
			renamed++
		}
		return nil
	})
	if err != nil {
		return 0, wrap("rename", err)
	}
	return renamed, nil
}

// SweepExpired physically removes expired rows.
func (s *KVStore) SweepExpired(ctx context.Context) (int64, error) {
	var swept int64
	err := s.db.WithTx(ctx, func(q *db.Queries) error {
		var err error
		swept, err = q.SweepExpired(ctx, s.policy.Now())
		return err
	})
	if err != nil {
		return 0, wrap("sweep expired", err)
	}
	return swept, nil
}

// Stats counts live and expired entries.
func (s *KVStore) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := s.db.WithReadTx(ctx, func(q *db.Queries) error {
		row, err := q.CountEntries(ctx, s.policy.Now())
		if err != nil {
			return err
		}
		stats = Stats{
			LiveEntries:    row.Live,
			ExpiredEntries: row.Total - row.Live,
			Namespaces:     row.Namespaces,
			PayloadBytes:   row.PayloadBytes,
		}
		return nil
	})
	if err != nil {
		return Stats{}, wrap("stats", err)
	}
	return stats, nil
}

func toRecord(row db.Entry) Record {
	return Record{Key: row.Key, Payload: row.Payload, Meta: toMeta(row)}
}

func uniq(keys []string) []string {
	if len(keys) < 2 {
		return keys
	}
	out := slices.Clone(keys)
	slices.Sort(out)
	return slices.Compact(out)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
