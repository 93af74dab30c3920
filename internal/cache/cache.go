package cache

import (
	"context"
	"time"
)

// RateCache stores a full base-currency rate table under a single key so a
// lookup failure upstream can be bridged by the last good snapshot.
type RateCache interface {
	GetRates(ctx context.Context, key string) (map[string]float64, bool, error)
	SetRates(ctx context.Context, key string, rates map[string]float64, ttl time.Duration) error
}

type NoopRateCache struct{}

func (NoopRateCache) GetRates(_ context.Context, _ string) (map[string]float64, bool, error) {
	return nil, false, nil
}

func (NoopRateCache) SetRates(_ context.Context, _ string, _ map[string]float64, _ time.Duration) error {
	return nil
}
