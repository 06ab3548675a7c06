// Package regcache is a read-through TTL cache in front of the rate-limited
// provider registry. The persistent layer is always consulted before any
// outbound call; upstream failure degrades to an empty result for the single
// item that triggered it.
package regcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/snf-deal-cli/internal/model"
	"github.com/sells-group/snf-deal-cli/internal/normalize"
	"github.com/sells-group/snf-deal-cli/internal/resilience"
	"github.com/sells-group/snf-deal-cli/internal/store"
	"github.com/sells-group/snf-deal-cli/pkg/registry"
)

// Cache wraps a registry client with persistent TTL caching. A circuit
// breaker sits in front of the upstream so a dead registry is not hammered
// once per item for an entire batch.
type Cache struct {
	client  registry.Client
	store   store.Store
	ttl     time.Duration
	retry   resilience.RetryConfig
	breaker *resilience.CircuitBreaker
}

// New creates a read-through cache with the given TTL.
func New(client registry.Client, st store.Store, ttl time.Duration) *Cache {
	retry := resilience.DefaultRetryConfig()
	retry.ShouldRetry = shouldRetry
	retry.OnRetry = resilience.RetryLogger("registry", "fetch")

	breakerCfg := resilience.DefaultCircuitBreakerConfig()
	breakerCfg.ShouldTrip = shouldRetry
	breakerCfg.OnStateChange = func(from, to resilience.CircuitState) {
		zap.L().Warn("registry circuit state changed",
			zap.Stringer("from", from), zap.Stringer("to", to))
	}

	return &Cache{
		client:  client,
		store:   st,
		ttl:     ttl,
		retry:   retry,
		breaker: resilience.NewCircuitBreaker(breakerCfg),
	}
}

// fetch runs one upstream call through the breaker and the retry policy.
func fetch[T any](ctx context.Context, c *Cache, fn func(ctx context.Context) (T, error)) (T, error) {
	return resilience.ExecuteVal(ctx, c.breaker, func(ctx context.Context) (T, error) {
		return resilience.DoVal(ctx, c.retry, fn)
	})
}

// shouldRetry treats upstream 5xx/429 and network-level failures as
// transient. A 4xx is permanent and a not-found never reaches here.
func shouldRetry(err error) bool {
	var httpErr *registry.HTTPError
	if errors.As(err, &httpErr) {
		return resilience.IsTransientHTTPStatus(httpErr.StatusCode)
	}
	return resilience.IsTransient(err)
}

// Search resolves a provider search through the cache. The name is normalized
// before it is used, both as the cache key and in the upstream request, so
// cosmetic variants of one facility share a single entry. Upstream failure is
// logged and returns an empty slice; the caller degrades to "no match" for
// that one facility.
func (c *Cache) Search(ctx context.Context, name, state string, limit int) ([]model.CanonicalProvider, error) {
	searchName := normalize.Name(name)
	if searchName == "" {
		searchName = strings.ToLower(strings.TrimSpace(name))
	}
	state = strings.ToUpper(strings.TrimSpace(state))
	key := cacheKey("search", searchName, state, fmt.Sprint(limit))

	var cached []registry.Provider
	if hit := c.read(ctx, key, &cached); hit {
		return toCanonical(cached), nil
	}

	providers, err := fetch(ctx, c, func(ctx context.Context) ([]registry.Provider, error) {
		return c.client.Search(ctx, searchName, state, limit)
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		zap.L().Warn("registry search failed, degrading to empty result",
			zap.String("name", name), zap.String("state", state), zap.Error(err))
		return nil, nil
	}

	c.write(ctx, key, providers)
	return toCanonical(providers), nil
}

// FetchByID resolves a provider by CCN through the cache. Returns nil when
// the registry has no record, which is a normal outcome.
func (c *Cache) FetchByID(ctx context.Context, ccn string) (*model.CanonicalProvider, error) {
	key := cacheKey("provider", ccn)

	var cached *registry.Provider
	if hit := c.read(ctx, key, &cached); hit {
		if cached == nil {
			return nil, nil
		}
		p := providerToCanonical(*cached)
		return &p, nil
	}

	provider, err := fetch(ctx, c, func(ctx context.Context) (*registry.Provider, error) {
		return c.client.FetchByID(ctx, ccn)
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		zap.L().Warn("registry fetch failed, degrading to absent",
			zap.String("ccn", ccn), zap.Error(err))
		return nil, nil
	}

	c.write(ctx, key, provider)
	if provider == nil {
		return nil, nil
	}
	p := providerToCanonical(*provider)
	return &p, nil
}

// FetchPenalties resolves penalty records for a CCN through the cache.
func (c *Cache) FetchPenalties(ctx context.Context, ccn string) ([]registry.Penalty, error) {
	key := cacheKey("penalties", ccn)

	var cached []registry.Penalty
	if hit := c.read(ctx, key, &cached); hit {
		return cached, nil
	}

	penalties, err := fetch(ctx, c, func(ctx context.Context) ([]registry.Penalty, error) {
		return c.client.FetchPenalties(ctx, ccn)
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		zap.L().Warn("registry penalties fetch failed", zap.String("ccn", ccn), zap.Error(err))
		return nil, nil
	}

	c.write(ctx, key, penalties)
	return penalties, nil
}

// FetchDeficiencies resolves deficiency records for a CCN through the cache.
func (c *Cache) FetchDeficiencies(ctx context.Context, ccn string) ([]registry.Deficiency, error) {
	key := cacheKey("deficiencies", ccn)

	var cached []registry.Deficiency
	if hit := c.read(ctx, key, &cached); hit {
		return cached, nil
	}

	defs, err := fetch(ctx, c, func(ctx context.Context) ([]registry.Deficiency, error) {
		return c.client.FetchDeficiencies(ctx, ccn)
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		zap.L().Warn("registry deficiencies fetch failed", zap.String("ccn", ccn), zap.Error(err))
		return nil, nil
	}

	c.write(ctx, key, defs)
	return defs, nil
}

// PurgeExpired removes expired cache rows and returns the count.
func (c *Cache) PurgeExpired(ctx context.Context) (int, error) {
	return c.store.DeleteExpiredRegistry(ctx)
}

// read checks the persistent cache. A store failure is logged and treated
// as a miss so a flaky cache never takes down a resolution.
func (c *Cache) read(ctx context.Context, key string, out any) bool {
	payload, ok, err := c.store.GetCachedRegistry(ctx, key)
	if err != nil {
		zap.L().Warn("registry cache read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(payload, out); err != nil {
		zap.L().Warn("registry cache entry corrupt", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// write persists a fetched payload best-effort. Failures are logged and
// swallowed; they never fail the read that triggered them.
func (c *Cache) write(ctx context.Context, key string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		zap.L().Warn("registry cache marshal failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.store.SetCachedRegistry(ctx, key, payload, c.ttl); err != nil {
		zap.L().Warn("registry cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// cacheKey builds a stable key from the operation and normalized parameters.
func cacheKey(op string, params ...string) string {
	return op + "|" + strings.Join(params, "|")
}

func toCanonical(providers []registry.Provider) []model.CanonicalProvider {
	if len(providers) == 0 {
		return nil
	}
	out := make([]model.CanonicalProvider, len(providers))
	for i, p := range providers {
		out[i] = providerToCanonical(p)
	}
	return out
}

func providerToCanonical(p registry.Provider) model.CanonicalProvider {
	return model.CanonicalProvider{
		CCN:            p.CCN,
		Name:           p.Name,
		Address:        p.Address,
		City:           p.City,
		State:          p.State,
		ZipCode:        p.ZipCode,
		BedCount:       p.CertifiedBeds,
		OverallRating:  p.OverallRating,
		QualityRating:  p.QualityRating,
		StaffingRating: p.StaffingRating,
		TotalFines:     p.TotalFines,
		TotalPenalties: p.TotalPenalties,
		SpecialFocus:   p.SpecialFocus,
		SFFCandidate:   p.SFFCandidate,
		AbuseIcon:      p.AbuseIcon,
		OwnershipType:  p.OwnershipType,
		FetchedAt:      time.Now().UTC(),
	}
}
