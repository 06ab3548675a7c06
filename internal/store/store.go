// Package store persists the registry cache and the two-tier learned-mapping
// tables behind a single interface with SQLite and Postgres backends.
package store

import (
	"context"
	"time"

	"github.com/sells-group/snf-deal-cli/internal/model"
)

// Store defines the persistence contract for the matching engine.
//
// All writes are single-statement upsert-or-skip operations: concurrent
// resolutions racing on the same cache key or the same global mapping key
// must converge without a distributed lock, and cancelling an in-flight
// batch can never leave a half-written row.
type Store interface {
	// Registry cache. A miss and an expired entry look the same to callers:
	// (nil, false, nil).
	GetCachedRegistry(ctx context.Context, key string) ([]byte, bool, error)
	SetCachedRegistry(ctx context.Context, key string, payload []byte, ttl time.Duration) error
	DeleteExpiredRegistry(ctx context.Context) (int, error)

	// Deal-scoped learned mappings, keyed on (deal_id, source_label).
	UpsertDealMapping(ctx context.Context, m model.LearnedMapping) error
	ListDealMappings(ctx context.Context, dealID string) ([]model.LearnedMapping, error)
	TouchDealMapping(ctx context.Context, dealID, sourceLabel string) error

	// Global learned mappings, keyed on normalized_label. Insert skips on
	// conflict (first writer wins) and reports whether the row was created.
	InsertGlobalMapping(ctx context.Context, m model.LearnedMapping) (bool, error)
	GetGlobalMapping(ctx context.Context, normalizedLabel string) (*model.LearnedMapping, error)
	ListGlobalMappings(ctx context.Context) ([]model.LearnedMapping, error)
	BoostGlobalMapping(ctx context.Context, normalizedLabel string, factor, cap float64) error
	OverrideGlobalMapping(ctx context.Context, m model.LearnedMapping) error
	TouchGlobalMapping(ctx context.Context, normalizedLabel string) error

	// CountDisagreeingDeals reports how many distinct deals have a deal-scoped
	// mapping of normalizedLabel to coaCode. Drives the quorum override policy.
	CountDisagreeingDeals(ctx context.Context, normalizedLabel, coaCode string) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
