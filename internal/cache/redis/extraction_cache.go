package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/surebet/internal/domain"
)

// ExtractionCache implements domain.ExtractionCache with one JSON string key
// per slip image:
//
//	surebet:extract:{sha256} - OCRData JSON, expires after ttl
type ExtractionCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewExtractionCache creates an ExtractionCache; ttl <= 0 keeps entries
// without expiry.
func NewExtractionCache(c *Client, ttl time.Duration) *ExtractionCache {
	return &ExtractionCache{rdb: c.Underlying(), ttl: ttl}
}

func extractionKey(digest string) string {
	return keyPrefix + "extract:" + digest
}

// Get returns the cached extraction for digest or domain.ErrNotFound.
func (ec *ExtractionCache) Get(ctx context.Context, digest string) (domain.OCRData, error) {
	data, err := ec.rdb.Get(ctx, extractionKey(digest)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.OCRData{}, domain.ErrNotFound
		}
		return domain.OCRData{}, fmt.Errorf("redis: get extraction %s: %w", digest, err)
	}

	var out domain.OCRData
	if err := json.Unmarshal(data, &out); err != nil {
		return domain.OCRData{}, fmt.Errorf("redis: unmarshal extraction %s: %w", digest, err)
	}
	return out, nil
}

// Set stores the extraction for digest.
func (ec *ExtractionCache) Set(ctx context.Context, digest string, data domain.OCRData) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("redis: marshal extraction %s: %w", digest, err)
	}
	ttl := ec.ttl
	if ttl < 0 {
		ttl = 0
	}
	if err := ec.rdb.Set(ctx, extractionKey(digest), payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set extraction %s: %w", digest, err)
	}
	return nil
}

var _ domain.ExtractionCache = (*ExtractionCache)(nil)
