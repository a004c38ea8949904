package domain

import (
	"context"
	"time"
)

// ExtractionCache remembers extractor output keyed by the slip image digest,
// so re-uploading the same screenshot does not hit the extractor again.
type ExtractionCache interface {
	Get(ctx context.Context, digest string) (OCRData, error)
	Set(ctx context.Context, digest string, data OCRData) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus provides pub/sub messaging.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
