package regcache

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/snf-deal-cli/internal/resilience"
	"github.com/sells-group/snf-deal-cli/internal/store"
	"github.com/sells-group/snf-deal-cli/pkg/registry"
)

// fakeRegistry counts upstream calls and serves canned responses.
type fakeRegistry struct {
	searchCalls int
	fetchCalls  int
	providers   []registry.Provider
	provider    *registry.Provider
	err         error
}

func (f *fakeRegistry) Search(ctx context.Context, name, state string, limit int) ([]registry.Provider, error) {
	f.searchCalls++
	return f.providers, f.err
}

func (f *fakeRegistry) FetchByID(ctx context.Context, ccn string) (*registry.Provider, error) {
	f.fetchCalls++
	return f.provider, f.err
}

func (f *fakeRegistry) FetchPenalties(ctx context.Context, ccn string) ([]registry.Penalty, error) {
	return nil, f.err
}

func (f *fakeRegistry) FetchDeficiencies(ctx context.Context, ccn string) ([]registry.Deficiency, error) {
	return nil, f.err
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSearch_CachesUpstreamResult(t *testing.T) {
	fake := &fakeRegistry{providers: []registry.Provider{
		{CCN: "455678", Name: "Valley Grande Manor", City: "Weslaco", State: "TX", CertifiedBeds: 147},
	}}
	cache := New(fake, newTestStore(t), 7*24*time.Hour)
	ctx := context.Background()

	first, err := cache.Search(ctx, "Valley Grande Manor", "TX", 10)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, 147, first[0].BedCount)

	second, err := cache.Search(ctx, "Valley Grande Manor", "TX", 10)
	require.NoError(t, err)
	require.Len(t, second, 1)

	// Second resolution must be served from the persistent layer.
	assert.Equal(t, 1, fake.searchCalls)
}

func TestSearch_KeyNormalization(t *testing.T) {
	fake := &fakeRegistry{providers: []registry.Provider{{CCN: "1"}}}
	cache := New(fake, newTestStore(t), time.Hour)
	ctx := context.Background()

	_, err := cache.Search(ctx, "Valley Grande Manor, LLC", "tx", 10)
	require.NoError(t, err)
	_, err = cache.Search(ctx, "valley grande manor", "TX", 10)
	require.NoError(t, err)

	// Cosmetic differences in name and state casing share one cache entry.
	assert.Equal(t, 1, fake.searchCalls)
}

func TestSearch_ExpiredEntryRefetched(t *testing.T) {
	fake := &fakeRegistry{providers: []registry.Provider{{CCN: "1"}}}
	cache := New(fake, newTestStore(t), -time.Minute) // already expired on write
	ctx := context.Background()

	_, err := cache.Search(ctx, "anything", "TX", 10)
	require.NoError(t, err)
	_, err = cache.Search(ctx, "anything", "TX", 10)
	require.NoError(t, err)

	assert.Equal(t, 2, fake.searchCalls)
}

func TestSearch_UpstreamFailureDegradesToEmpty(t *testing.T) {
	fake := &fakeRegistry{err: &registry.HTTPError{StatusCode: 400}}
	cache := New(fake, newTestStore(t), time.Hour)

	providers, err := cache.Search(context.Background(), "x", "TX", 10)
	require.NoError(t, err)
	assert.Empty(t, providers)
}

func TestFetchByID_NotFoundCached(t *testing.T) {
	fake := &fakeRegistry{provider: nil}
	cache := New(fake, newTestStore(t), time.Hour)
	ctx := context.Background()

	p, err := cache.FetchByID(ctx, "000000")
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = cache.FetchByID(ctx, "000000")
	require.NoError(t, err)
	assert.Nil(t, p)

	// Absence is a normal, cacheable outcome.
	assert.Equal(t, 1, fake.fetchCalls)
}

func TestFetchByID_Found(t *testing.T) {
	fake := &fakeRegistry{provider: &registry.Provider{CCN: "455678", Name: "Valley Grande Manor", SpecialFocus: true}}
	cache := New(fake, newTestStore(t), time.Hour)

	p, err := cache.FetchByID(context.Background(), "455678")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.True(t, p.SpecialFocus)
	assert.Equal(t, "455678", p.CCN)
}

func TestSearch_BreakerStopsHammeringDeadUpstream(t *testing.T) {
	fake := &fakeRegistry{err: &registry.HTTPError{StatusCode: 503}}
	cache := New(fake, newTestStore(t), time.Hour)
	cache.retry.MaxAttempts = 1

	breakerCfg := resilience.DefaultCircuitBreakerConfig()
	breakerCfg.FailureThreshold = 2
	breakerCfg.ResetTimeout = time.Hour
	breakerCfg.ShouldTrip = shouldRetry
	cache.breaker = resilience.NewCircuitBreaker(breakerCfg)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		providers, err := cache.Search(ctx, fmt.Sprintf("facility %d", i), "TX", 10)
		require.NoError(t, err)
		assert.Empty(t, providers)
	}

	// Two failures tripped the breaker; the rest never reached upstream.
	assert.Equal(t, 2, fake.searchCalls)
}

func TestPurgeExpired(t *testing.T) {
	fake := &fakeRegistry{providers: []registry.Provider{{CCN: "1"}}}
	st := newTestStore(t)
	cache := New(fake, st, -time.Minute)
	ctx := context.Background()

	_, err := cache.Search(ctx, "a", "TX", 10)
	require.NoError(t, err)

	n, err := cache.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
