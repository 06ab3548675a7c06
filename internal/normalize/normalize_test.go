package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestName_Empty(t *testing.T) {
	assert.Equal(t, "", Name(""))
	assert.Equal(t, "", Name("   "))
}

func TestName_CaseAndPunctuationInsensitive(t *testing.T) {
	assert.Equal(t,
		Name("Sunrise Healthcare Center, LLC"),
		Name("sunrise healthcare center llc"),
	)
}

func TestName_StripsCorporateSuffixes(t *testing.T) {
	assert.Equal(t, "valley grande manor", Name("Valley Grande Manor, LLC"))
	assert.Equal(t, "valley grande manor", Name("Valley Grande Manor Inc."))
	assert.Equal(t, "oak hill", Name("Oak Hill Corporation"))
}

func TestName_StripsFacilityBoilerplate(t *testing.T) {
	assert.Equal(t, "lakeview", Name("Lakeview Skilled Nursing"))
	assert.Equal(t, "lakeview", Name("Lakeview Rehabilitation"))
	assert.Equal(t, "pine grove", Name("The Pine Grove Nursing Home"))
}

func TestName_Idempotent(t *testing.T) {
	inputs := []string{
		"Sunrise Healthcare Center, LLC",
		"Valley Grande Manor",
		"St. Mary's Rehab & Care Co.",
		"  Weird   spacing   Inc  ",
		"Valley Manor LLC LLC",
		"Oak Hill Co Co Co",
	}
	for _, in := range inputs {
		once := Name(in)
		assert.Equal(t, once, Name(once), "input %q", in)
	}
}

func TestName_StripsConsecutiveRepeatedTerms(t *testing.T) {
	assert.Equal(t, "valley manor", Name("Valley Manor LLC LLC"))
	assert.Equal(t, "oak hill", Name("Oak Hill Co Co Co"))
}

func TestName_FoldsDiacritics(t *testing.T) {
	assert.Equal(t, Name("Château Care"), Name("Chateau Care"))
}

func TestName_CollapsesWhitespace(t *testing.T) {
	assert.Equal(t, "green acres", Name("  Green    Acres  "))
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "medicaid_room_board_revenue", Label("Medicaid Room & Board Revenue"))
	assert.Equal(t, "mcaid_rm_b", Label("MCAID RM&B"))
	assert.Equal(t, "", Label("  "))
}

func TestLabel_Idempotent(t *testing.T) {
	l := Label("Total Nursing — Salaries & Wages")
	assert.Equal(t, l, Label(l))
}

func TestLabelVariations_OriginalFirst(t *testing.T) {
	vars := LabelVariations("total_nursing_expenses")
	assert.Equal(t, "total_nursing_expenses", vars[0])
	assert.Contains(t, vars, "nursing_expenses")
	assert.Contains(t, vars, "total_nursing")
	assert.Contains(t, vars, "nursing")
}

func TestLabelVariations_RevenueStrip(t *testing.T) {
	vars := LabelVariations("medicaid_revenue")
	assert.Contains(t, vars, "medicaid")
}

func TestLabelVariations_Depluralize(t *testing.T) {
	vars := LabelVariations("supplies")
	assert.Contains(t, vars, "supply")

	vars = LabelVariations("wages")
	assert.Contains(t, vars, "wage")
}

func TestLabelVariations_Empty(t *testing.T) {
	assert.Nil(t, LabelVariations(""))
}

func TestLabelVariations_DropsGenericResidue(t *testing.T) {
	vars := LabelVariations("total_revenue")
	assert.Equal(t, "total_revenue", vars[0])
	assert.NotContains(t, vars, "total")
	assert.NotContains(t, vars, "revenue")

	vars = LabelVariations("total_expenses")
	assert.NotContains(t, vars, "total")
	assert.NotContains(t, vars, "expense")
	assert.NotContains(t, vars, "expenses")
}

func TestLabelVariations_Deduplicated(t *testing.T) {
	vars := LabelVariations("rent")
	seen := map[string]int{}
	for _, v := range vars {
		seen[v]++
	}
	for v, n := range seen {
		assert.Equal(t, 1, n, "duplicate variation %q", v)
	}
}
