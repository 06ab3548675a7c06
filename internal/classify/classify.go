// Package classify orchestrates line-item classification: learned mappings
// first, the static taxonomy ladder second, and an unmapped bucket with
// ranked guesses for everything neither path can place.
package classify

import (
	"context"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/snf-deal-cli/internal/coa"
	"github.com/sells-group/snf-deal-cli/internal/config"
	"github.com/sells-group/snf-deal-cli/internal/learn"
	"github.com/sells-group/snf-deal-cli/internal/model"
)

// Classifier assigns COA accounts to extracted line items.
type Classifier struct {
	learner *learn.Learner
	matcher *coa.Matcher
	th      config.Thresholds
}

// New creates a Classifier.
func New(learner *learn.Learner, matcher *coa.Matcher, th config.Thresholds) *Classifier {
	return &Classifier{learner: learner, matcher: matcher, th: th}
}

// Classify maps one line item. The learned store is consulted only when a
// deal id is supplied; a learned hit below the gate falls through to the
// static ladder rather than blocking it. The accepted confidence is the
// method confidence multiplied by the item's extraction confidence, so
// upstream uncertainty propagates into the final number.
func (c *Classifier) Classify(ctx context.Context, item model.ExtractedLineItem, dealID string) (model.MappingResult, error) {
	extraction := extractionConfidence(item)

	if dealID != "" {
		learned, err := c.learner.Lookup(ctx, item.Label, dealID)
		if err != nil {
			if ctx.Err() != nil {
				return model.MappingResult{}, ctx.Err()
			}
			// A flaky store must not block the static path.
			zap.L().Warn("learned lookup failed, falling back to static rules",
				zap.String("label", item.Label), zap.Error(err))
		} else if learned != nil && learned.Confidence >= c.th.LearnedGate {
			account, ok := c.matcher.Chart().ByCode(learned.COACode)
			if !ok {
				zap.L().Warn("learned mapping references unknown account",
					zap.String("label", item.Label), zap.String("code", learned.COACode))
			} else {
				return model.MappingResult{
					Item:       item,
					Account:    &account,
					Method:     model.MethodLearned,
					Confidence: learned.Confidence * extraction,
				}, nil
			}
		}
	}

	if m := c.matcher.Match(item.Label, item.CategoryHint); m != nil && m.Confidence >= c.th.StaticAcceptFloor {
		method := model.MethodFuzzy
		if m.Rule.Exact() {
			method = model.MethodExact
		}
		account := m.Account
		return model.MappingResult{
			Item:       item,
			Account:    &account,
			Method:     method,
			Confidence: m.Confidence * extraction,
		}, nil
	}

	return model.MappingResult{
		Item:        item,
		NeedsReview: true,
		Suggestions: c.suggestions(ctx, item.Label, dealID),
	}, nil
}

// Result is the outcome of a batch classification.
type Result struct {
	Mappings []model.MappingResult `json:"mappings"`
	Stats    model.MappingStats    `json:"stats"`
}

// ClassifyBatch classifies items concurrently, bounded by maxConcurrent,
// preserving input order. Scoring itself is pure; only store lookups block.
func (c *Classifier) ClassifyBatch(ctx context.Context, items []model.ExtractedLineItem, dealID string, maxConcurrent int) (*Result, error) {
	if maxConcurrent <= 0 {
		maxConcurrent = 8
	}

	mappings := make([]model.MappingResult, len(items))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)

	for i, item := range items {
		g.Go(func() error {
			res, err := c.Classify(ctx, item, dealID)
			if err != nil {
				return err
			}
			mappings[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats := model.MappingStats{Total: len(mappings)}
	for _, m := range mappings {
		switch {
		case m.Account == nil:
			stats.Unmapped++
		case m.Method == model.MethodManual:
			stats.Manual++
			stats.Mapped++
		default:
			stats.Auto++
			stats.Mapped++
		}
	}

	return &Result{Mappings: mappings, Stats: stats}, nil
}

// suggestions merges learned and static guesses for an unmapped label,
// deduplicated by COA code, best score first, capped at top-K.
func (c *Classifier) suggestions(ctx context.Context, label, dealID string) []model.Suggestion {
	var merged []model.Suggestion

	if dealID != "" {
		learned, err := c.learner.Suggest(ctx, label, dealID, c.th.TopK)
		if err != nil {
			zap.L().Warn("learned suggestions failed", zap.String("label", label), zap.Error(err))
		} else {
			merged = append(merged, learned...)
		}
	}
	merged = append(merged, c.matcher.Guesses(label, c.th.TopK)...)

	seen := make(map[string]bool, len(merged))
	out := merged[:0]
	for _, s := range merged {
		if seen[s.COACode] {
			continue
		}
		seen[s.COACode] = true
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > c.th.TopK {
		out = out[:c.th.TopK]
	}
	return out
}

// extractionConfidence returns the item's extraction confidence, defaulting
// to 1 when the extractor did not attach one.
func extractionConfidence(item model.ExtractedLineItem) float64 {
	if item.Confidence <= 0 || item.Confidence > 1 {
		return 1
	}
	return item.Confidence
}
