package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/openfolio/marketd/internal/domain"
)

// snapshotTTL keeps last-known prices around long enough to bridge provider
// outages without letting abandoned symbols accumulate forever.
const snapshotTTL = 7 * 24 * time.Hour

// SnapshotStore implements domain.SnapshotStore using Redis hashes. Each
// price is stored at "snapshot:{cacheKey}" with one field per MarketPrice
// attribute.
type SnapshotStore struct {
	rdb *redis.Client
}

// NewSnapshotStore creates a SnapshotStore backed by the given Client.
func NewSnapshotStore(c *Client) *SnapshotStore {
	return &SnapshotStore{rdb: c.Underlying()}
}

func snapshotKey(cacheKey string) string {
	return "snapshot:" + cacheKey
}

// SetSnapshot stores the last known price under the given cache key.
func (s *SnapshotStore) SetSnapshot(ctx context.Context, key string, p domain.MarketPrice) error {
	k := snapshotKey(key)
	fields := map[string]interface{}{
		"symbol":         p.Symbol,
		"price":          strconv.FormatFloat(p.Price, 'f', -1, 64),
		"change":         strconv.FormatFloat(p.Change, 'f', -1, 64),
		"change_percent": strconv.FormatFloat(p.ChangePercent, 'f', -1, 64),
		"as_of":          strconv.FormatInt(p.AsOf.UnixNano(), 10),
		"source":         string(p.Source),
	}

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, k, fields)
	pipe.Expire(ctx, k, snapshotTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set snapshot %s: %w", key, err)
	}
	return nil
}

// GetSnapshot retrieves the last known price for the given cache key. It
// returns domain.ErrNotFound when no snapshot exists.
func (s *SnapshotStore) GetSnapshot(ctx context.Context, key string) (domain.MarketPrice, error) {
	vals, err := s.rdb.HGetAll(ctx, snapshotKey(key)).Result()
	if err != nil {
		return domain.MarketPrice{}, fmt.Errorf("redis: get snapshot %s: %w", key, err)
	}
	if len(vals) == 0 {
		return domain.MarketPrice{}, domain.ErrNotFound
	}

	price, err := strconv.ParseFloat(vals["price"], 64)
	if err != nil {
		return domain.MarketPrice{}, fmt.Errorf("redis: parse snapshot price %s: %w", key, err)
	}
	change, err := strconv.ParseFloat(vals["change"], 64)
	if err != nil {
		return domain.MarketPrice{}, fmt.Errorf("redis: parse snapshot change %s: %w", key, err)
	}
	changePct, err := strconv.ParseFloat(vals["change_percent"], 64)
	if err != nil {
		return domain.MarketPrice{}, fmt.Errorf("redis: parse snapshot change_percent %s: %w", key, err)
	}
	asOfNano, err := strconv.ParseInt(vals["as_of"], 10, 64)
	if err != nil {
		return domain.MarketPrice{}, fmt.Errorf("redis: parse snapshot as_of %s: %w", key, err)
	}

	return domain.MarketPrice{
		Symbol:        vals["symbol"],
		Price:         price,
		Change:        change,
		ChangePercent: changePct,
		AsOf:          time.Unix(0, asOfNano),
		Source:        domain.PriceSource(vals["source"]),
	}, nil
}

// Compile-time interface check.
var _ domain.SnapshotStore = (*SnapshotStore)(nil)
