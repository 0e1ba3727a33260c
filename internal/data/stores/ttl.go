package stores

import (
	"database/sql"
	"math"
	"time"

	"github.com/akx/talsi/internal/core/kv"
	"github.com/akx/talsi/internal/data/db"
)

// Policy owns the clock and the expiry arithmetic. Every statement of a
// transaction is given the same instant from it; the queries then apply
// expires_at IS NULL OR expires_at > now.
type Policy struct {
	clock func() time.Time
}

// NewPolicy returns a Policy reading time from clock, or time.Now when nil.
func NewPolicy(clock func() time.Time) Policy {
	if clock == nil {
		clock = time.Now
	}
	return Policy{clock: clock}
}

// Now returns the current instant in unix nanoseconds.
func (p Policy) Now() int64 {
	return p.clock().UnixNano()
}

// ExpiresAt computes the stored expiry for a write at now. A nil ttl means
// the entry never expires; a non-positive ttl yields an entry that is already
// invisible. Expiries past the int64 range saturate at the far future.
func (p Policy) ExpiresAt(now int64, ttl *time.Duration) sql.NullInt64 {
	if ttl == nil {
		return sql.NullInt64{}
	}
	if *ttl > 0 && now > math.MaxInt64-int64(*ttl) {
		return sql.NullInt64{Int64: math.MaxInt64, Valid: true}
	}
	return sql.NullInt64{Int64: now + int64(*ttl), Valid: true}
}

func toMeta(e db.Entry) kv.Meta {
	m := kv.Meta{
		CreatedAt: time.Unix(0, e.CreatedAt),
		UpdatedAt: time.Unix(0, e.UpdatedAt),
	}
	if e.ExpiresAt.Valid {
		t := time.Unix(0, e.ExpiresAt.Int64)
		m.ExpiresAt = &t
	}
	return m
}
