package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScore_IdenticalNonEmpty(t *testing.T) {
	assert.Equal(t, 1.0, Score("valley grande manor", "valley grande manor"))
	assert.Equal(t, 1.0, Score("x", "x"))
}

func TestScore_BothEmpty(t *testing.T) {
	// Two empty strings carry no evidence, defined as zero rather than 0/0.
	assert.Equal(t, 0.0, Score("", ""))
}

func TestScore_OneEmpty(t *testing.T) {
	assert.Equal(t, 0.0, Score("", "abc"))
	assert.Equal(t, 0.0, Score("abc", ""))
}

func TestScore_Symmetric(t *testing.T) {
	pairs := [][2]string{
		{"sunrise", "sunset"},
		{"medicaid revenue", "medicare revenue"},
		{"a", "ab"},
	}
	for _, p := range pairs {
		assert.Equal(t, Score(p[0], p[1]), Score(p[1], p[0]), "pair %v", p)
	}
}

func TestScore_Bounded(t *testing.T) {
	s := Score("completely different", "xyz")
	assert.GreaterOrEqual(t, s, 0.0)
	assert.LessOrEqual(t, s, 1.0)
}

func TestScore_SingleEdit(t *testing.T) {
	// One substitution over four characters: 1 - 1/4.
	assert.InDelta(t, 0.75, Score("beds", "bedz"), 1e-9)
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"abc", "", 3},
		{"kitten", "sitting", 3},
		{"flaw", "lawn", 2},
		{"manor", "manor", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Levenshtein([]rune(tt.a), []rune(tt.b)), "%q vs %q", tt.a, tt.b)
	}
}
