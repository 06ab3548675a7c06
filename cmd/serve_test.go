package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/snf-deal-cli/internal/classify"
	"github.com/sells-group/snf-deal-cli/internal/coa"
	"github.com/sells-group/snf-deal-cli/internal/config"
	"github.com/sells-group/snf-deal-cli/internal/learn"
	"github.com/sells-group/snf-deal-cli/internal/model"
	"github.com/sells-group/snf-deal-cli/internal/regcache"
	"github.com/sells-group/snf-deal-cli/internal/resolve"
	"github.com/sells-group/snf-deal-cli/internal/store"
	"github.com/sells-group/snf-deal-cli/pkg/registry"
)

type stubRegistry struct {
	providers []registry.Provider
}

func (s *stubRegistry) Search(ctx context.Context, name, state string, limit int) ([]registry.Provider, error) {
	return s.providers, nil
}

func (s *stubRegistry) FetchByID(ctx context.Context, ccn string) (*registry.Provider, error) {
	return nil, nil
}

func (s *stubRegistry) FetchPenalties(ctx context.Context, ccn string) ([]registry.Penalty, error) {
	return nil, nil
}

func (s *stubRegistry) FetchDeficiencies(ctx context.Context, ccn string) ([]registry.Deficiency, error) {
	return nil, nil
}

func newTestEnv(t *testing.T, providers []registry.Provider) *env {
	t.Helper()

	cfg = &config.Config{
		Matching: config.DefaultThresholds(),
		Learning: config.DefaultLearning(),
		Batch:    config.BatchConfig{MaxConcurrent: 4},
	}

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "deal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	chart, err := coa.LoadChart()
	require.NoError(t, err)

	cache := regcache.New(&stubRegistry{providers: providers}, st, time.Hour)
	learner := learn.New(st, chart, cfg.Learning)
	return &env{
		Store:      st,
		Cache:      cache,
		Resolver:   resolve.NewResolver(cache, resolve.NewRanker(cfg.Matching), 10),
		Learner:    learner,
		Classifier: classify.New(learner, coa.NewMatcher(chart, cfg.Matching), cfg.Matching),
	}
}

func doRequest(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestServe_Health(t *testing.T) {
	router := newRouter(newTestEnv(t, nil))

	rec := doRequest(t, router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServe_Match(t *testing.T) {
	router := newRouter(newTestEnv(t, []registry.Provider{
		{CCN: "455678", Name: "Valley Grande Manor", City: "Weslaco", State: "TX", CertifiedBeds: 147},
	}))

	rec := doRequest(t, router, http.MethodPost, "/api/match", map[string]any{
		"name": "Valley Grande Manor", "city": "Weslaco", "state": "TX", "beds": 147,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var result model.MatchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, model.MatchStatusMatched, result.Status)
	assert.True(t, result.AutoVerified)
	require.NotNil(t, result.Provider)
	assert.Equal(t, "455678", result.Provider.CCN)
}

func TestServe_MatchRequiresName(t *testing.T) {
	router := newRouter(newTestEnv(t, nil))

	rec := doRequest(t, router, http.MethodPost, "/api/match", map[string]any{"city": "Weslaco"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServe_Classify(t *testing.T) {
	router := newRouter(newTestEnv(t, nil))

	rec := doRequest(t, router, http.MethodPost, "/api/classify", map[string]any{
		"items": []map[string]any{
			{"label": "Medicaid Room & Board Revenue", "confidence": 1},
			{"label": "zzz mystery", "confidence": 1},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var result classify.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Len(t, result.Mappings, 2)
	assert.Equal(t, "4110", result.Mappings[0].Account.Code)
	assert.True(t, result.Mappings[1].NeedsReview)
	assert.Equal(t, 1, result.Stats.Unmapped)
}

func TestServe_ConfirmThenSuggestAndStats(t *testing.T) {
	router := newRouter(newTestEnv(t, nil))

	rec := doRequest(t, router, http.MethodPost, "/api/mappings/confirm", map[string]any{
		"label": "MCAID RM&B", "coa_code": "4110", "deal_id": "D1", "reviewed_by": "analyst",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/api/mappings/suggest?label=MCAID+RM%26B&deal=D1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var suggestions []model.Suggestion
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &suggestions))
	require.NotEmpty(t, suggestions)
	assert.Equal(t, "4110", suggestions[0].COACode)

	rec = doRequest(t, router, http.MethodGet, "/api/deals/D1/mappings/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats model.MappingStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Manual)
}

func TestServe_ConfirmRejectsUnknownCode(t *testing.T) {
	router := newRouter(newTestEnv(t, nil))

	rec := doRequest(t, router, http.MethodPost, "/api/mappings/confirm", map[string]any{
		"label": "Rent", "coa_code": "0000",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestServe_SuggestRequiresLabel(t *testing.T) {
	router := newRouter(newTestEnv(t, nil))

	rec := doRequest(t, router, http.MethodGet, "/api/mappings/suggest", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
