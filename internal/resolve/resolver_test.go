package resolve

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/snf-deal-cli/internal/config"
	"github.com/sells-group/snf-deal-cli/internal/model"
	"github.com/sells-group/snf-deal-cli/internal/regcache"
	"github.com/sells-group/snf-deal-cli/internal/store"
	"github.com/sells-group/snf-deal-cli/pkg/registry"
)

// fakeClient serves search results keyed by the searched name.
type fakeClient struct {
	byName      map[string][]registry.Provider
	searchCalls int
}

func (f *fakeClient) Search(ctx context.Context, name, state string, limit int) ([]registry.Provider, error) {
	f.searchCalls++
	return f.byName[name], nil
}

func (f *fakeClient) FetchByID(ctx context.Context, ccn string) (*registry.Provider, error) {
	return nil, nil
}

func (f *fakeClient) FetchPenalties(ctx context.Context, ccn string) ([]registry.Penalty, error) {
	return nil, nil
}

func (f *fakeClient) FetchDeficiencies(ctx context.Context, ccn string) ([]registry.Deficiency, error) {
	return nil, nil
}

func newTestResolver(t *testing.T, client registry.Client) *Resolver {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	cache := regcache.New(client, st, time.Hour)
	return NewResolver(cache, NewRanker(config.DefaultThresholds()), 10)
}

func TestResolve_Matched(t *testing.T) {
	client := &fakeClient{byName: map[string][]registry.Provider{
		"valley grande manor": {
			{CCN: "455678", Name: "Valley Grande Manor", City: "Weslaco", State: "TX", CertifiedBeds: 147},
		},
	}}
	r := newTestResolver(t, client)

	res, err := r.Resolve(context.Background(), model.ExtractedFacility{
		Name: "Valley Grande Manor", City: "Weslaco", State: "TX", Beds: 147,
	})
	require.NoError(t, err)
	assert.Equal(t, model.MatchStatusMatched, res.Status)
	assert.True(t, res.AutoVerified)
	require.NotNil(t, res.Provider)
	assert.Equal(t, "455678", res.Provider.CCN)
}

func TestResolve_SearchesWithNormalizedName(t *testing.T) {
	// Upstream only knows the normalized form; the raw extracted name carries
	// a suffix that the cache layer strips before searching.
	client := &fakeClient{byName: map[string][]registry.Provider{
		"valley grande manor": {
			{CCN: "455678", Name: "Valley Grande Manor", City: "Weslaco", CertifiedBeds: 147},
		},
	}}
	r := newTestResolver(t, client)

	res, err := r.Resolve(context.Background(), model.ExtractedFacility{
		Name: "Valley Grande Manor, LLC", City: "Weslaco", Beds: 147,
	})
	require.NoError(t, err)
	assert.Equal(t, model.MatchStatusMatched, res.Status)
	assert.Equal(t, 1, client.searchCalls)
}

func TestResolve_NoCandidatesIsNoMatch(t *testing.T) {
	r := newTestResolver(t, &fakeClient{})

	res, err := r.Resolve(context.Background(), model.ExtractedFacility{Name: "ghost facility"})
	require.NoError(t, err)
	assert.Equal(t, model.MatchStatusNoMatch, res.Status)
	assert.Nil(t, res.Provider)
}

func TestResolveBatch_PreservesOrder(t *testing.T) {
	client := &fakeClient{byName: map[string][]registry.Provider{
		"alpha care center": {{CCN: "1", Name: "Alpha Care Center", City: "Austin", CertifiedBeds: 100}},
		"beta care center":  {{CCN: "2", Name: "Beta Care Center", City: "Dallas", CertifiedBeds: 80}},
	}}
	r := newTestResolver(t, client)

	facilities := []model.ExtractedFacility{
		{Name: "Alpha Care Center", City: "Austin", Beds: 100},
		{Name: "Beta Care Center", City: "Dallas", Beds: 80},
		{Name: "ghost facility"},
	}
	results, err := r.ResolveBatch(context.Background(), facilities, 2)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "1", results[0].Provider.CCN)
	assert.Equal(t, "2", results[1].Provider.CCN)
	assert.Equal(t, model.MatchStatusNoMatch, results[2].Status)
}
