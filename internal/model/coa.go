package model

import "time"

// MappingMethod records how a line item was assigned its COA code.
type MappingMethod string

const (
	MethodExact   MappingMethod = "exact"
	MethodFuzzy   MappingMethod = "fuzzy"
	MethodLearned MappingMethod = "learned"
	MethodManual  MappingMethod = "manual"
)

// MappingScope distinguishes deal-scoped learned mappings from global ones.
type MappingScope string

const (
	ScopeDeal   MappingScope = "deal"
	ScopeGlobal MappingScope = "global"
)

// COAAccount is one entry in the canonical chart of accounts. Codes are
// hierarchical numeric strings ("4000" revenue header, "4110" Medicaid R&B).
type COAAccount struct {
	Code           string `json:"code" yaml:"code"`
	Name           string `json:"name" yaml:"name"`
	Category       string `json:"category" yaml:"category"`
	IsHeader       bool   `json:"is_header,omitempty" yaml:"header,omitempty"`
	IsTotal        bool   `json:"is_total,omitempty" yaml:"total,omitempty"`
	PPDEligible    bool   `json:"ppd_eligible,omitempty" yaml:"ppd_eligible,omitempty"`
	PPDDenominator string `json:"ppd_denominator,omitempty" yaml:"ppd_denominator,omitempty"`
}

// ExtractedLineItem is a raw financial statement line produced by the
// extraction step. Confidence is the extractor's own certainty about the
// label/value pairing; this engine combines it but never re-derives it.
type ExtractedLineItem struct {
	Label        string             `json:"label"`
	Monthly      map[string]float64 `json:"monthly,omitempty"`
	CategoryHint string             `json:"category_hint,omitempty"`
	Confidence   float64            `json:"confidence"`
}

// LearnedMapping is a persisted (label -> COA code) association created by a
// human correction. Deal-scoped rows key on the exact source label within one
// deal; global rows key on the normalized label across all deals.
type LearnedMapping struct {
	ID              string        `json:"id"`
	Scope           MappingScope  `json:"scope"`
	DealID          string        `json:"deal_id,omitempty"`
	SourceLabel     string        `json:"source_label"`
	NormalizedLabel string        `json:"normalized_label"`
	COACode         string        `json:"coa_code"`
	COAName         string        `json:"coa_name"`
	Method          MappingMethod `json:"method"`
	Confidence      float64       `json:"confidence"`
	UseCount        int           `json:"use_count"`
	FacilityID      string        `json:"facility_id,omitempty"`
	DocumentID      string        `json:"document_id,omitempty"`
	ReviewedBy      string        `json:"reviewed_by,omitempty"`
	LastReviewedAt  time.Time     `json:"last_reviewed_at"`
	CreatedAt       time.Time     `json:"created_at"`
}

// Suggestion is one ranked guess for an unmapped label.
type Suggestion struct {
	COACode string  `json:"coa_code"`
	COAName string  `json:"coa_name"`
	Score   float64 `json:"score"`
	Source  string  `json:"source,omitempty"`
}

// MappingResult is the final classification decision for one line item.
// Account is nil when the item landed in the unmapped bucket.
type MappingResult struct {
	Item        ExtractedLineItem `json:"item"`
	Account     *COAAccount       `json:"account,omitempty"`
	Method      MappingMethod     `json:"method,omitempty"`
	Confidence  float64           `json:"confidence"`
	NeedsReview bool              `json:"needs_review"`
	Suggestions []Suggestion      `json:"suggestions,omitempty"`
}

// MappingStats summarizes classification coverage for one deal.
type MappingStats struct {
	Total    int `json:"total"`
	Mapped   int `json:"mapped"`
	Manual   int `json:"manual"`
	Auto     int `json:"auto"`
	Unmapped int `json:"unmapped"`
}

// Correction is a confirmed human mapping fed back into the learning store.
type Correction struct {
	Label      string `json:"label"`
	COACode    string `json:"coa_code"`
	COAName    string `json:"coa_name"`
	DealID     string `json:"deal_id,omitempty"`
	FacilityID string `json:"facility_id,omitempty"`
	DocumentID string `json:"document_id,omitempty"`
	ReviewedBy string `json:"reviewed_by,omitempty"`
}
