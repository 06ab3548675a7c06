// Package learn is the two-tier learned-mapping store: deal-scoped
// corrections keyed on the exact source label, and global knowledge keyed on
// the normalized label. Every record here originates from an explicit human
// confirmation; classification only reads.
package learn

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/snf-deal-cli/internal/coa"
	"github.com/sells-group/snf-deal-cli/internal/config"
	"github.com/sells-group/snf-deal-cli/internal/model"
	"github.com/sells-group/snf-deal-cli/internal/normalize"
	"github.com/sells-group/snf-deal-cli/internal/store"
)

// globalSeedConfidence is the confidence a global mapping starts at from a
// single deal's correction. Corroboration from other deals boosts it toward
// the configured cap; it never starts at the deal tier's manual 1.0.
const globalSeedConfidence = 0.90

// minContainmentLen mirrors the static matcher's guard against trivial
// substring hits.
const minContainmentLen = 4

// Learner coordinates confirmations and lookups across both tiers.
type Learner struct {
	store store.Store
	chart *coa.Chart
	cfg   config.LearningConfig
}

// New creates a Learner.
func New(st store.Store, chart *coa.Chart, cfg config.LearningConfig) *Learner {
	return &Learner{store: st, chart: chart, cfg: cfg}
}

// Confirm records a human correction: an atomic upsert of the deal-scoped
// record plus a skip-on-conflict insert of the global record. When the global
// row already exists, agreement boosts its confidence; disagreement defers to
// the configured override policy. Each write is a single statement, so a
// cancelled batch can never leave a half-applied correction.
func (l *Learner) Confirm(ctx context.Context, c model.Correction) error {
	if strings.TrimSpace(c.Label) == "" {
		return eris.New("learn: correction label is empty")
	}
	account, ok := l.chart.ByCode(c.COACode)
	if !ok {
		return eris.Errorf("learn: unknown COA code %s", c.COACode)
	}
	coaName := c.COAName
	if coaName == "" {
		coaName = account.Name
	}

	now := time.Now().UTC()
	normalized := normalize.Label(c.Label)

	if c.DealID != "" {
		deal := model.LearnedMapping{
			ID:              uuid.NewString(),
			Scope:           model.ScopeDeal,
			DealID:          c.DealID,
			SourceLabel:     c.Label,
			NormalizedLabel: normalized,
			COACode:         c.COACode,
			COAName:         coaName,
			Method:          model.MethodManual,
			Confidence:      1.0,
			UseCount:        1,
			FacilityID:      c.FacilityID,
			DocumentID:      c.DocumentID,
			ReviewedBy:      c.ReviewedBy,
			LastReviewedAt:  now,
			CreatedAt:       now,
		}
		if err := l.store.UpsertDealMapping(ctx, deal); err != nil {
			return eris.Wrap(err, "learn: upsert deal mapping")
		}
	}

	global := model.LearnedMapping{
		ID:              uuid.NewString(),
		Scope:           model.ScopeGlobal,
		SourceLabel:     c.Label,
		NormalizedLabel: normalized,
		COACode:         c.COACode,
		COAName:         coaName,
		Method:          model.MethodManual,
		Confidence:      globalSeedConfidence,
		UseCount:        1,
		ReviewedBy:      c.ReviewedBy,
		LastReviewedAt:  now,
		CreatedAt:       now,
	}
	created, err := l.store.InsertGlobalMapping(ctx, global)
	if err != nil {
		return eris.Wrap(err, "learn: insert global mapping")
	}
	if created {
		return nil
	}
	return l.reinforce(ctx, normalized, global)
}

// reinforce handles a correction whose normalized label already has a global
// row: agreement multiplies confidence toward the cap, disagreement is
// dropped unless the quorum override policy is enabled and met.
func (l *Learner) reinforce(ctx context.Context, normalized string, incoming model.LearnedMapping) error {
	existing, err := l.store.GetGlobalMapping(ctx, normalized)
	if err != nil {
		return eris.Wrap(err, "learn: load global mapping")
	}
	if existing == nil {
		// Row vanished between insert and read; a concurrent purge. Nothing
		// to reinforce.
		return nil
	}

	if existing.COACode == incoming.COACode {
		if err := l.store.BoostGlobalMapping(ctx, normalized, l.cfg.BoostFactor, l.cfg.ConfidenceCap); err != nil {
			return eris.Wrap(err, "learn: boost global mapping")
		}
		return nil
	}

	if l.cfg.OverridePolicy != "quorum" {
		zap.L().Info("global mapping disagreement kept first writer",
			zap.String("label", normalized),
			zap.String("existing", existing.COACode),
			zap.String("proposed", incoming.COACode))
		return nil
	}

	n, err := l.store.CountDisagreeingDeals(ctx, normalized, incoming.COACode)
	if err != nil {
		return eris.Wrap(err, "learn: count disagreeing deals")
	}
	if n < l.cfg.OverrideQuorum {
		zap.L().Info("global mapping disagreement below quorum",
			zap.String("label", normalized),
			zap.Int("deals", n),
			zap.Int("quorum", l.cfg.OverrideQuorum))
		return nil
	}

	zap.L().Info("global mapping overridden by quorum",
		zap.String("label", normalized),
		zap.String("from", existing.COACode),
		zap.String("to", incoming.COACode),
		zap.Int("deals", n))
	if err := l.store.OverrideGlobalMapping(ctx, incoming); err != nil {
		return eris.Wrap(err, "learn: override global mapping")
	}
	return nil
}

// hit is one tier probe result, carrying its ranking features.
type hit struct {
	mapping model.LearnedMapping
	exact   bool
	deal    bool
}

// Lookup finds the best learned mapping for a label. Deal-scoped records are
// consulted only when a deal id is supplied. Exact-normalized hits outrank
// substring hits; at equal rank, higher confidence wins, and the deal tier
// beats the global tier. A hit bumps the record's usage counter best-effort.
func (l *Learner) Lookup(ctx context.Context, label, dealID string) (*model.LearnedMapping, error) {
	hits, err := l.probe(ctx, label, dealID)
	if err != nil || len(hits) == 0 {
		return nil, err
	}

	best := hits[0]
	l.touch(ctx, best)
	m := best.mapping
	return &m, nil
}

// Suggest returns up to topK ranked learned suggestions for a label,
// deduplicated by COA code. Substring hits are discounted relative to exact
// ones so a reviewer sees the sharper evidence first.
func (l *Learner) Suggest(ctx context.Context, label, dealID string, topK int) ([]model.Suggestion, error) {
	hits, err := l.probe(ctx, label, dealID)
	if err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = 5
	}

	out := make([]model.Suggestion, 0, len(hits))
	seen := make(map[string]bool)
	for _, h := range hits {
		if seen[h.mapping.COACode] {
			continue
		}
		seen[h.mapping.COACode] = true

		score := h.mapping.Confidence
		if !h.exact {
			score *= 0.8
		}
		source := "learned:global"
		if h.deal {
			source = "learned:deal"
		}
		out = append(out, model.Suggestion{
			COACode: h.mapping.COACode,
			COAName: h.mapping.COAName,
			Score:   score,
			Source:  source,
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

// Stats summarizes the persisted mappings for one deal.
func (l *Learner) Stats(ctx context.Context, dealID string) (model.MappingStats, error) {
	mappings, err := l.store.ListDealMappings(ctx, dealID)
	if err != nil {
		return model.MappingStats{}, eris.Wrap(err, "learn: list deal mappings")
	}

	stats := model.MappingStats{Total: len(mappings)}
	for _, m := range mappings {
		switch m.Method {
		case model.MethodManual:
			stats.Manual++
			stats.Mapped++
		case "":
			stats.Unmapped++
		default:
			stats.Auto++
			stats.Mapped++
		}
	}
	return stats, nil
}

// ListDeal returns the persisted deal-scoped mappings.
func (l *Learner) ListDeal(ctx context.Context, dealID string) ([]model.LearnedMapping, error) {
	return l.store.ListDealMappings(ctx, dealID)
}

// ListGlobal returns the persisted global mappings.
func (l *Learner) ListGlobal(ctx context.Context) ([]model.LearnedMapping, error) {
	return l.store.ListGlobalMappings(ctx)
}

// probe generates the label's normalized variations and matches them against
// both tiers, returning hits in rank order.
func (l *Learner) probe(ctx context.Context, label, dealID string) ([]hit, error) {
	variations := normalize.LabelVariations(normalize.Label(label))
	if len(variations) == 0 {
		return nil, nil
	}

	var hits []hit

	if dealID != "" {
		dealMappings, err := l.store.ListDealMappings(ctx, dealID)
		if err != nil {
			return nil, eris.Wrap(err, "learn: list deal mappings")
		}
		for _, m := range dealMappings {
			if exact, ok := matchVariations(variations, m.NormalizedLabel); ok {
				hits = append(hits, hit{mapping: m, exact: exact, deal: true})
			}
		}
	}

	globalMappings, err := l.store.ListGlobalMappings(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "learn: list global mappings")
	}
	for _, m := range globalMappings {
		if exact, ok := matchVariations(variations, m.NormalizedLabel); ok {
			hits = append(hits, hit{mapping: m, exact: exact})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].exact != hits[j].exact {
			return hits[i].exact
		}
		if hits[i].mapping.Confidence != hits[j].mapping.Confidence {
			return hits[i].mapping.Confidence > hits[j].mapping.Confidence
		}
		if hits[i].deal != hits[j].deal {
			return hits[i].deal
		}
		return hits[i].mapping.COACode < hits[j].mapping.COACode
	})
	return hits, nil
}

// matchVariations reports whether any variation matches the stored normalized
// label, and whether that match was exact rather than containment.
func matchVariations(variations []string, stored string) (exact, ok bool) {
	if stored == "" {
		return false, false
	}
	for _, v := range variations {
		if v == stored {
			return true, true
		}
	}
	if len(stored) < minContainmentLen {
		return false, false
	}
	for _, v := range variations {
		if len(v) < minContainmentLen {
			continue
		}
		if strings.Contains(v, stored) || strings.Contains(stored, v) {
			return false, true
		}
	}
	return false, false
}

// touch bumps usage counters best-effort; a failed bump never fails the
// lookup that produced it.
func (l *Learner) touch(ctx context.Context, h hit) {
	var err error
	if h.deal {
		err = l.store.TouchDealMapping(ctx, h.mapping.DealID, h.mapping.SourceLabel)
	} else {
		err = l.store.TouchGlobalMapping(ctx, h.mapping.NormalizedLabel)
	}
	if err != nil {
		zap.L().Warn("mapping usage bump failed",
			zap.String("label", h.mapping.NormalizedLabel), zap.Error(err))
	}
}
