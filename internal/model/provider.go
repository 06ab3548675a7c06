package model

import "time"

// MatchStatus classifies the outcome of a facility resolution.
type MatchStatus string

const (
	MatchStatusMatched  MatchStatus = "matched"
	MatchStatusPossible MatchStatus = "possible"
	MatchStatusNoMatch  MatchStatus = "no_match"
)

// CanonicalProvider is an immutable snapshot of a registry record for a
// certified facility, keyed by CCN. Refreshed only when the cache entry expires.
type CanonicalProvider struct {
	CCN             string    `json:"ccn"`
	Name            string    `json:"name"`
	Address         string    `json:"address,omitempty"`
	City            string    `json:"city,omitempty"`
	State           string    `json:"state,omitempty"`
	ZipCode         string    `json:"zip_code,omitempty"`
	BedCount        int       `json:"bed_count,omitempty"`
	OverallRating   int       `json:"overall_rating,omitempty"`
	QualityRating   int       `json:"quality_rating,omitempty"`
	StaffingRating  int       `json:"staffing_rating,omitempty"`
	TotalFines      float64   `json:"total_fines,omitempty"`
	TotalPenalties  int       `json:"total_penalties,omitempty"`
	SpecialFocus    bool      `json:"special_focus,omitempty"`
	SFFCandidate    bool      `json:"sff_candidate,omitempty"`
	AbuseIcon       bool      `json:"abuse_icon,omitempty"`
	OwnershipType   string    `json:"ownership_type,omitempty"`
	CertifiedSince  time.Time `json:"certified_since,omitempty"`
	FetchedAt       time.Time `json:"fetched_at,omitempty"`
}

// ExtractedFacility is a facility description pulled from uploaded deal
// documents. Name is required; everything else is optional and possibly wrong.
type ExtractedFacility struct {
	Name  string `json:"name"`
	City  string `json:"city,omitempty"`
	State string `json:"state,omitempty"`
	Beds  int    `json:"beds,omitempty"`
}

// MatchCandidate pairs an extracted facility with one registry provider and
// carries the componentwise scores that went into the blended score.
type MatchCandidate struct {
	Provider       CanonicalProvider `json:"provider"`
	NameSimilarity float64           `json:"name_similarity"`
	CityMatch      bool              `json:"city_match"`
	BedSimilarity  float64           `json:"bed_similarity"`
	Score          float64           `json:"score"`
}

// MatchResult is the resolution decision for one extracted facility.
// Provider is nil when no candidate cleared the acceptance floor.
type MatchResult struct {
	Provider     *CanonicalProvider `json:"provider,omitempty"`
	Status       MatchStatus        `json:"status"`
	Confidence   float64            `json:"confidence"`
	AutoVerified bool               `json:"auto_verified"`
	Alternatives []MatchCandidate   `json:"alternatives,omitempty"`
	Reason       string             `json:"reason"`
}
