package cache

import (
	"context"
	"strings"
	"time"

	"rekapin/backend/internal/domain"
)

const recapKeyPrefix = "rekap:"

// RecapCache stores rendered recap reports. Invalidate drops every report
// cached for a business date, whatever its location scope.
type RecapCache interface {
	Get(ctx context.Context, key string) (*domain.RecapReport, bool, error)
	Set(ctx context.Context, key string, value *domain.RecapReport, ttl time.Duration) error
	Invalidate(ctx context.Context, date string) error
}

// RecapKey builds the cache key for a date and an optional location scope.
func RecapKey(date string, location string) string {
	scope := strings.ToLower(strings.Join(strings.Fields(location), "_"))
	if scope == "" {
		scope = "all"
	}
	return recapKeyPrefix + date + ":" + scope
}

func recapDatePattern(date string) string {
	return recapKeyPrefix + date + ":*"
}

type NoopRecapCache struct{}

func (NoopRecapCache) Get(_ context.Context, _ string) (*domain.RecapReport, bool, error) {
	return nil, false, nil
}

func (NoopRecapCache) Set(_ context.Context, _ string, _ *domain.RecapReport, _ time.Duration) error {
	return nil
}

func (NoopRecapCache) Invalidate(_ context.Context, _ string) error {
	return nil
}
