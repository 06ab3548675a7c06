package classify

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/snf-deal-cli/internal/coa"
	"github.com/sells-group/snf-deal-cli/internal/config"
	"github.com/sells-group/snf-deal-cli/internal/learn"
	"github.com/sells-group/snf-deal-cli/internal/model"
	"github.com/sells-group/snf-deal-cli/internal/store"
)

type fixture struct {
	classifier *Classifier
	learner    *learn.Learner
	store      store.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "deal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	chart, err := coa.LoadChart()
	require.NoError(t, err)

	th := config.DefaultThresholds()
	learner := learn.New(st, chart, config.DefaultLearning())
	return &fixture{
		classifier: New(learner, coa.NewMatcher(chart, th), th),
		learner:    learner,
		store:      st,
	}
}

func TestClassify_LearnedMappingWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.learner.Confirm(ctx, model.Correction{
		Label: "MCAID RM&B", COACode: "4110", DealID: "D1",
	}))

	res, err := f.classifier.Classify(ctx, model.ExtractedLineItem{
		Label: "MCAID RM&B", Confidence: 0.9,
	}, "D1")
	require.NoError(t, err)
	require.NotNil(t, res.Account)
	assert.Equal(t, "4110", res.Account.Code)
	assert.Equal(t, model.MethodLearned, res.Method)
	// Method confidence 1.0 x extraction confidence 0.9.
	assert.InDelta(t, 0.9, res.Confidence, 1e-9)
	assert.False(t, res.NeedsReview)
}

func TestClassify_NoDealIDNeverConsultsLearned(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// A deal correction that would misdirect this label if leaked.
	require.NoError(t, f.learner.Confirm(ctx, model.Correction{
		Label: "Medicaid Room & Board Revenue", COACode: "7100", DealID: "D1",
	}))

	res, err := f.classifier.Classify(ctx, model.ExtractedLineItem{
		Label: "Medicaid Room & Board Revenue", Confidence: 1,
	}, "")
	require.NoError(t, err)
	require.NotNil(t, res.Account)
	// Static canonical hit, untouched by any deal's corrections.
	assert.Equal(t, "4110", res.Account.Code)
	assert.Equal(t, model.MethodExact, res.Method)
	assert.InDelta(t, 0.95, res.Confidence, 1e-9)
}

func TestClassify_StaticFuzzy(t *testing.T) {
	f := newFixture(t)

	res, err := f.classifier.Classify(context.Background(), model.ExtractedLineItem{
		Label: "Monthly Rent Expense 2024", Confidence: 1,
	}, "")
	require.NoError(t, err)
	require.NotNil(t, res.Account)
	assert.Equal(t, "7100", res.Account.Code)
	assert.Equal(t, model.MethodFuzzy, res.Method)
	assert.InDelta(t, 0.75, res.Confidence, 1e-9)
}

func TestClassify_ExtractionConfidencePropagates(t *testing.T) {
	f := newFixture(t)

	res, err := f.classifier.Classify(context.Background(), model.ExtractedLineItem{
		Label: "Medicaid Room & Board Revenue", Confidence: 0.8,
	}, "")
	require.NoError(t, err)
	assert.InDelta(t, 0.95*0.8, res.Confidence, 1e-9)
}

func TestClassify_LearnedBelowGateFallsThrough(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Seed a weak global mapping directly; Confirm never produces one this low.
	now := time.Now().UTC()
	_, err := f.store.InsertGlobalMapping(ctx, model.LearnedMapping{
		ID: "weak", Scope: model.ScopeGlobal,
		SourceLabel: "Rent Expense", NormalizedLabel: "rent_expense",
		COACode: "6800", COAName: "Management Fees",
		Method: model.MethodManual, Confidence: 0.4, UseCount: 1,
		LastReviewedAt: now, CreatedAt: now,
	})
	require.NoError(t, err)

	res, err := f.classifier.Classify(ctx, model.ExtractedLineItem{
		Label: "Rent Expense", Confidence: 1,
	}, "D1")
	require.NoError(t, err)
	require.NotNil(t, res.Account)
	// The 0.4 learned hit is under the gate; the canonical rule takes over.
	assert.Equal(t, "7100", res.Account.Code)
	assert.Equal(t, model.MethodExact, res.Method)
}

func TestClassify_UnmappedBucket(t *testing.T) {
	f := newFixture(t)

	res, err := f.classifier.Classify(context.Background(), model.ExtractedLineItem{
		Label: "zzz nursing related mystery", Confidence: 1,
	}, "")
	require.NoError(t, err)
	assert.Nil(t, res.Account)
	assert.True(t, res.NeedsReview)
	assert.Equal(t, 0.0, res.Confidence)
	require.NotEmpty(t, res.Suggestions)
	assert.LessOrEqual(t, len(res.Suggestions), 5)
}

func TestClassify_CategoryFallbackStaysUnderFloor(t *testing.T) {
	f := newFixture(t)

	// Category fallback scores 0.50, below the 0.70 accept floor.
	res, err := f.classifier.Classify(context.Background(), model.ExtractedLineItem{
		Label: "zzz mystery item", CategoryHint: "revenue", Confidence: 1,
	}, "")
	require.NoError(t, err)
	assert.Nil(t, res.Account)
	assert.True(t, res.NeedsReview)
}

func TestClassifyBatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.learner.Confirm(ctx, model.Correction{
		Label: "MCAID RM&B", COACode: "4110", DealID: "D1",
	}))

	items := []model.ExtractedLineItem{
		{Label: "MCAID RM&B", Confidence: 1},
		{Label: "Monthly Rent Expense 2024", Confidence: 1},
		{Label: "zzz total mystery", Confidence: 1},
	}
	res, err := f.classifier.ClassifyBatch(ctx, items, "D1", 2)
	require.NoError(t, err)
	require.Len(t, res.Mappings, 3)

	assert.Equal(t, model.MethodLearned, res.Mappings[0].Method)
	assert.Equal(t, model.MethodFuzzy, res.Mappings[1].Method)
	assert.True(t, res.Mappings[2].NeedsReview)

	assert.Equal(t, model.MappingStats{Total: 3, Mapped: 2, Auto: 2, Unmapped: 1}, res.Stats)
}
