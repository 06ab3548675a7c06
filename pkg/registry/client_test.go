package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, WithRateLimit(1000))
}

func TestSearch_ReturnsProviders(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/providers", r.URL.Path)
		assert.Equal(t, "valley grande", r.URL.Query().Get("name"))
		assert.Equal(t, "TX", r.URL.Query().Get("state"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results":[
			{"ccn":"455678","provider_name":"Valley Grande Manor","city":"Weslaco","state":"TX","certified_beds":147}
		]}`))
	})

	providers, err := c.Search(context.Background(), "valley grande", "TX", 10)
	require.NoError(t, err)
	require.Len(t, providers, 1)
	assert.Equal(t, "455678", providers[0].CCN)
	assert.Equal(t, 147, providers[0].CertifiedBeds)
}

func TestSearch_EmptyResultIsNormal(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[]}`))
	})

	providers, err := c.Search(context.Background(), "no such place", "TX", 10)
	require.NoError(t, err)
	assert.Empty(t, providers)
}

func TestFetchByID_NotFoundIsNil(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	p, err := c.FetchByID(context.Background(), "000000")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestFetchByID_Found(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/providers/455678", r.URL.Path)
		w.Write([]byte(`{"ccn":"455678","provider_name":"Valley Grande Manor","special_focus":true}`))
	})

	p, err := c.FetchByID(context.Background(), "455678")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.True(t, p.SpecialFocus)
}

func TestFetchPenalties(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/providers/455678/penalties", r.URL.Path)
		w.Write([]byte(`{"results":[{"ccn":"455678","penalty_type":"fine","fine_amount":65000}]}`))
	})

	penalties, err := c.FetchPenalties(context.Background(), "455678")
	require.NoError(t, err)
	require.Len(t, penalties, 1)
	assert.Equal(t, 65000.0, penalties[0].FineAmount)
}

func TestGet_UpstreamErrorIsHTTPError(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.Search(context.Background(), "x", "TX", 5)
	require.Error(t, err)
	httpErr, ok := err.(*HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusServiceUnavailable, httpErr.StatusCode)
}

func TestFetchDeficiencies(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[{"ccn":"455678","deficiency_tag":"F689","scope_severity":"G","corrected":false}]}`))
	})

	defs, err := c.FetchDeficiencies(context.Background(), "455678")
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "F689", defs[0].Tag)
}
