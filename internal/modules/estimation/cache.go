package estimation

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"github.com/aristath/frontier/internal/modules/marketdata"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// Cache memoises estimates in the cache database, keyed by the exact
// prices they were computed from.
type Cache struct {
	db  *sql.DB
	ttl time.Duration
	log zerolog.Logger
}

// NewCache creates a new estimates cache
func NewCache(db *sql.DB, ttl time.Duration, log zerolog.Logger) *Cache {
	return &Cache{
		db:  db,
		ttl: ttl,
		log: log.With().Str("component", "estimates_cache").Logger(),
	}
}

// Key hashes the prices together with the estimator settings.
func Key(prices marketdata.PriceTable, frequency int, method Method) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|", method, frequency)
	for _, c := range prices.Columns {
		fmt.Fprintf(h, "%s\x00", c)
	}
	buf := make([]byte, 8)
	for i, d := range prices.Dates {
		binary.LittleEndian.PutUint64(buf, uint64(d.Unix()))
		h.Write(buf)
		for _, v := range prices.Values[i] {
			binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
			h.Write(buf)
		}
	}
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:16])
}

// Get returns cached estimates that have not expired.
func (c *Cache) Get(ctx context.Context, key string) (*Estimates, bool) {
	var payload []byte
	err := c.db.QueryRowContext(ctx,
		"SELECT payload FROM estimates WHERE key = ? AND expires_at > ?",
		key, time.Now().Unix(),
	).Scan(&payload)
	if err != nil {
		if err != sql.ErrNoRows {
			c.log.Warn().Err(err).Msg("Failed to read cached estimates")
		}
		return nil, false
	}

	var est Estimates
	if err := msgpack.Unmarshal(payload, &est); err != nil {
		c.log.Warn().Err(err).Msg("Failed to decode cached estimates, recalculating")
		return nil, false
	}
	if err := est.Validate(); err != nil {
		c.log.Warn().Err(err).Msg("Cached estimates are malformed, recalculating")
		return nil, false
	}
	return &est, true
}

// Set stores estimates for the configured TTL.
func (c *Cache) Set(ctx context.Context, key string, est *Estimates) error {
	payload, err := msgpack.Marshal(est)
	if err != nil {
		return fmt.Errorf("failed to encode estimates: %w", err)
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO estimates (key, payload, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET payload = excluded.payload, expires_at = excluded.expires_at
	`, key, payload, time.Now().Add(c.ttl).Unix())
	if err != nil {
		return fmt.Errorf("failed to store estimates: %w", err)
	}
	return nil
}

// Purge deletes expired entries.
func (c *Cache) Purge(ctx context.Context) (int64, error) {
	res, err := c.db.ExecContext(ctx, "DELETE FROM estimates WHERE expires_at <= ?", time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to purge estimates: %w", err)
	}
	return res.RowsAffected()
}
