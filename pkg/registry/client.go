// Package registry provides a rate-limited client for the external certified
// provider registry. "Not found" is a normal outcome for every operation,
// never an error.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Client defines the provider-registry operations consumed by the resolver.
type Client interface {
	// Search finds providers by name within a state. An empty result is a
	// normal outcome.
	Search(ctx context.Context, name, state string, limit int) ([]Provider, error)

	// FetchByID returns the provider for a CCN, or nil when absent.
	FetchByID(ctx context.Context, ccn string) (*Provider, error)

	// FetchPenalties returns penalty records for a CCN.
	FetchPenalties(ctx context.Context, ccn string) ([]Penalty, error)

	// FetchDeficiencies returns survey deficiency records for a CCN.
	FetchDeficiencies(ctx context.Context, ccn string) ([]Deficiency, error)
}

// Provider is the registry's wire-level provider record.
type Provider struct {
	CCN            string  `json:"ccn"`
	Name           string  `json:"provider_name"`
	Address        string  `json:"address"`
	City           string  `json:"city"`
	State          string  `json:"state"`
	ZipCode        string  `json:"zip_code"`
	CertifiedBeds  int     `json:"certified_beds"`
	OverallRating  int     `json:"overall_rating"`
	QualityRating  int     `json:"quality_rating"`
	StaffingRating int     `json:"staffing_rating"`
	TotalFines     float64 `json:"total_fines"`
	TotalPenalties int     `json:"total_penalties"`
	SpecialFocus   bool    `json:"special_focus"`
	SFFCandidate   bool    `json:"sff_candidate"`
	AbuseIcon      bool    `json:"abuse_icon"`
	OwnershipType  string  `json:"ownership_type"`
}

// Penalty is a civil monetary penalty or payment denial on a provider record.
type Penalty struct {
	CCN         string    `json:"ccn"`
	Date        time.Time `json:"penalty_date"`
	Type        string    `json:"penalty_type"`
	FineAmount  float64   `json:"fine_amount"`
	PaymentDays int       `json:"payment_denial_days"`
}

// Deficiency is a health or fire-safety survey finding.
type Deficiency struct {
	CCN           string    `json:"ccn"`
	SurveyDate    time.Time `json:"survey_date"`
	Tag           string    `json:"deficiency_tag"`
	Description   string    `json:"description"`
	ScopeSeverity string    `json:"scope_severity"`
	Corrected     bool      `json:"corrected"`
}

// HTTPError reports a non-2xx registry response. Callers can inspect the
// status code to classify the failure as transient or permanent.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("registry: upstream status %d", e.StatusCode)
}

// Option configures the registry client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) { c.baseURL = u }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithRateLimit sets the outbound requests-per-second limit.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), int(rps)+1)
	}
}

type httpClient struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a registry client.
func NewClient(baseURL string, opts ...Option) Client {
	c := &httpClient{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(5, 6),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Search(ctx context.Context, name, state string, limit int) ([]Provider, error) {
	q := url.Values{}
	q.Set("name", name)
	if state != "" {
		q.Set("state", state)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var resp struct {
		Results []Provider `json:"results"`
	}
	found, err := c.get(ctx, "/providers?"+q.Encode(), &resp)
	if err != nil || !found {
		return nil, err
	}
	return resp.Results, nil
}

func (c *httpClient) FetchByID(ctx context.Context, ccn string) (*Provider, error) {
	var p Provider
	found, err := c.get(ctx, "/providers/"+url.PathEscape(ccn), &p)
	if err != nil || !found {
		return nil, err
	}
	return &p, nil
}

func (c *httpClient) FetchPenalties(ctx context.Context, ccn string) ([]Penalty, error) {
	var resp struct {
		Results []Penalty `json:"results"`
	}
	found, err := c.get(ctx, "/providers/"+url.PathEscape(ccn)+"/penalties", &resp)
	if err != nil || !found {
		return nil, err
	}
	return resp.Results, nil
}

func (c *httpClient) FetchDeficiencies(ctx context.Context, ccn string) ([]Deficiency, error) {
	var resp struct {
		Results []Deficiency `json:"results"`
	}
	found, err := c.get(ctx, "/providers/"+url.PathEscape(ccn)+"/deficiencies", &resp)
	if err != nil || !found {
		return nil, err
	}
	return resp.Results, nil
}

// get performs a rate-limited GET and decodes the JSON body into out.
// A 404 returns (false, nil): absence is a normal registry outcome.
func (c *httpClient) get(ctx context.Context, path string, out any) (bool, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return false, eris.Wrap(err, "registry: rate limit wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return false, eris.Wrap(err, "registry: build request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return false, eris.Wrap(err, "registry: request")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return false, &HTTPError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, eris.Wrap(err, "registry: decode response")
	}
	return true, nil
}
