package db

import (
	"context"
	"database/sql"
	"strings"
)

// DBTX is the subset of database/sql that Queries needs.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// New returns Queries bound to db.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// Queries holds the entry table statements. Every read takes the current time
// in unix nanoseconds and only sees rows that are live at that instant.
type Queries struct {
	db DBTX
}

// Entry is one row of the entries table.
type Entry struct {
	Namespace string
	Key       string
	Payload   []byte
	ExpiresAt sql.NullInt64
	CreatedAt int64
	UpdatedAt int64
}

// maxBindKeys bounds the number of keys bound into a single IN (...) list.
const maxBindKeys = 500

// live is the visibility predicate; its one parameter is "now".
const live = `(expires_at IS NULL OR expires_at > ?)`

const upsertEntry = `
INSERT INTO entries (namespace, key, payload, expires_at, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (namespace, key) DO UPDATE SET
    payload    = excluded.payload,
    expires_at = excluded.expires_at,
    created_at = CASE
        WHEN entries.expires_at IS NOT NULL AND entries.expires_at <= excluded.updated_at
        THEN excluded.created_at
        ELSE entries.created_at
    END,
    updated_at = excluded.updated_at`

type UpsertEntryParams struct {
	Namespace string
	Key       string
	Payload   []byte
	ExpiresAt sql.NullInt64
	Now       int64
}

// UpsertEntry inserts or overwrites a row. created_at survives an overwrite
// unless the previous row had already expired.
func (q *Queries) UpsertEntry(ctx context.Context, arg UpsertEntryParams) error {
	_, err := q.db.ExecContext(ctx, upsertEntry,
		arg.Namespace, arg.Key, arg.Payload, arg.ExpiresAt, arg.Now, arg.Now,
	)
	return err
}

const getEntry = `
SELECT namespace, key, payload, expires_at, created_at, updated_at
FROM entries
WHERE namespace = ? AND key = ? AND ` + live

// GetEntry returns sql.ErrNoRows when the key is missing or expired.
func (q *Queries) GetEntry(ctx context.Context, namespace, key string, now int64) (Entry, error) {
	row := q.db.QueryRowContext(ctx, getEntry, namespace, key, now)
	var e Entry
	err := row.Scan(&e.Namespace, &e.Key, &e.Payload, &e.ExpiresAt, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

// GetEntries returns the live rows among keys, in key order.
func (q *Queries) GetEntries(ctx context.Context, namespace string, keys []string, now int64) ([]Entry, error) {
	var items []Entry
	for _, chunk := range chunkKeys(keys) {
		query := `
SELECT namespace, key, payload, expires_at, created_at, updated_at
FROM entries
WHERE namespace = ? AND key IN (` + placeholders(len(chunk)) + `) AND ` + live + `
ORDER BY key`

		rows, err := q.db.QueryContext(ctx, query, keyArgs(namespace, chunk, now)...)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var e Entry
			if err := rows.Scan(&e.Namespace, &e.Key, &e.Payload, &e.ExpiresAt, &e.CreatedAt, &e.UpdatedAt); err != nil {
				_ = rows.Close()
				return nil, err
			}
			items = append(items, e)
		}
		if err := rows.Close(); err != nil {
			return nil, err
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}
	return items, nil
}

// ExistingKeys returns the live keys among keys.
func (q *Queries) ExistingKeys(ctx context.Context, namespace string, keys []string, now int64) ([]string, error) {
	var out []string
	for _, chunk := range chunkKeys(keys) {
		query := `SELECT key FROM entries WHERE namespace = ? AND key IN (` + placeholders(len(chunk)) + `) AND ` + live
		found, err := q.strings(ctx, query, keyArgs(namespace, chunk, now)...)
		if err != nil {
			return nil, err
		}
		out = append(out, found...)
	}
	return out, nil
}

const listKeys = `SELECT key FROM entries WHERE namespace = ? AND ` + live + ` ORDER BY key`

// ListKeys returns every live key of a namespace, sorted.
func (q *Queries) ListKeys(ctx context.Context, namespace string, now int64) ([]string, error) {
	return q.strings(ctx, listKeys, namespace, now)
}

const listKeysLike = `SELECT key FROM entries WHERE namespace = ? AND key LIKE ? AND ` + live + ` ORDER BY key`

// ListKeysLike filters keys with SQLite's LIKE operator.
func (q *Queries) ListKeysLike(ctx context.Context, namespace, pattern string, now int64) ([]string, error) {
	return q.strings(ctx, listKeysLike, namespace, pattern, now)
}

const listNamespaces = `SELECT DISTINCT namespace FROM entries WHERE ` + live + ` ORDER BY namespace`

// ListNamespaces returns the namespaces holding at least one live entry.
func (q *Queries) ListNamespaces(ctx context.Context, now int64) ([]string, error) {
	return q.strings(ctx, listNamespaces, now)
}

// DeleteEntries removes the rows for keys, expired ones included, and returns
// how many of them were live.
func (q *Queries) DeleteEntries(ctx context.Context, namespace string, keys []string, now int64) (int64, error) {
	var removed int64
	for _, chunk := range chunkKeys(keys) {
		in := placeholders(len(chunk))

		var n int64
		countQuery := `SELECT COUNT(*) FROM entries WHERE namespace = ? AND key IN (` + in + `) AND ` + live
		if err := q.db.QueryRowContext(ctx, countQuery, keyArgs(namespace, chunk, now)...).Scan(&n); err != nil {
			return 0, err
		}

		args := make([]any, 0, len(chunk)+1)
		args = append(args, namespace)
		for _, k := range chunk {
			args = append(args, k)
		}
		if _, err := q.db.ExecContext(ctx, `DELETE FROM entries WHERE namespace = ? AND key IN (`+in+`)`, args...); err != nil {
			return 0, err
		}
		removed += n
	}
	return removed, nil
}

const moveEntry = `
INSERT OR REPLACE INTO entries (namespace, key, payload, expires_at, created_at, updated_at)
SELECT namespace, ?, payload, expires_at, created_at, ?
FROM entries
WHERE namespace = ? AND key = ?`

const deleteEntry = `DELETE FROM entries WHERE namespace = ? AND key = ?`

// MoveEntry copies the row at from onto to, replacing whatever row was there,
// then deletes from. Payload, expiry and created_at travel with the row.
// Callers run it inside a transaction.
func (q *Queries) MoveEntry(ctx context.Context, namespace, from, to string, now int64) error {
	if _, err := q.db.ExecContext(ctx, moveEntry, to, now, namespace, from); err != nil {
		return err
	}
	_, err := q.db.ExecContext(ctx, deleteEntry, namespace, from)
	return err
}

const sweepExpired = `DELETE FROM entries WHERE expires_at IS NOT NULL AND expires_at <= ?`

// SweepExpired physically removes expired rows and returns how many went.
func (q *Queries) SweepExpired(ctx context.Context, now int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, sweepExpired, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const countEntries = `
SELECT
    COALESCE(SUM(CASE WHEN ` + live + ` THEN 1 ELSE 0 END), 0),
    COUNT(*),
    COUNT(DISTINCT CASE WHEN ` + live + ` THEN namespace END),
    COALESCE(SUM(length(payload)), 0)
FROM entries`

// CountEntriesRow summarises the table.
type CountEntriesRow struct {
	Live         int64
	Total        int64
	Namespaces   int64
	PayloadBytes int64
}

func (q *Queries) CountEntries(ctx context.Context, now int64) (CountEntriesRow, error) {
	var r CountEntriesRow
	err := q.db.QueryRowContext(ctx, countEntries, now, now).Scan(&r.Live, &r.Total, &r.Namespaces, &r.PayloadBytes)
	return r, err
}

func (q *Queries) strings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var items []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	return items, rows.Err()
}

func chunkKeys(keys []string) [][]string {
	var chunks [][]string
	for len(keys) > maxBindKeys {
		chunks = append(chunks, keys[:maxBindKeys])
		keys = keys[maxBindKeys:]
	}
	if len(keys) > 0 {
		chunks = append(chunks, keys)
	}
	return chunks
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// keyArgs lays out (namespace, keys..., now) to match "namespace = ? AND key
// IN (...) AND live".
func keyArgs(namespace string, keys []string, now int64) []any {
	args := make([]any, 0, len(keys)+2)
	args = append(args, namespace)
	for _, k := range keys {
		args = append(args, k)
	}
	return append(args, now)
}
