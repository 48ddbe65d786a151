package domain

import (
	"context"
	"time"
)

type RateLimitDecision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RateLimiter counts hits per key inside a fixed window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (RateLimitDecision, error)
}

// SigningRateLimitKey scopes signing quotas to one device.
func SigningRateLimitKey(deviceID string) string {
	return "device:" + deviceID + ":transactions"
}
