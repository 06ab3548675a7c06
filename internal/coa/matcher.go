package coa

import (
	"sort"
	"strings"

	"github.com/sells-group/snf-deal-cli/internal/config"
	"github.com/sells-group/snf-deal-cli/internal/model"
	"github.com/sells-group/snf-deal-cli/internal/normalize"
)

// Rule identifies which rung of the static ladder produced a match.
type Rule string

const (
	RuleCanonical Rule = "canonical"
	RuleSynonym   Rule = "synonym"
	RuleSubstring Rule = "substring"
	RuleCategory  Rule = "category"
)

// Exact reports whether the rule is an exact table hit rather than a
// fuzzy/fallback one.
func (r Rule) Exact() bool {
	return r == RuleCanonical || r == RuleSynonym
}

// Match is one static classification outcome.
type Match struct {
	Account    model.COAAccount
	Confidence float64
	Rule       Rule
}

// minSubstringLen guards containment matching against trivial hits like a
// lone "rent" inside "current assets".
const minSubstringLen = 4

// Matcher classifies labels against the chart with a fixed rule ladder:
// canonical-name exact, synonym exact, substring containment, category
// fallback to the category's aggregate total. Deterministic and
// side-effect-free.
type Matcher struct {
	chart *Chart
	th    config.Thresholds
}

// NewMatcher creates a Matcher over the chart with the given thresholds.
func NewMatcher(chart *Chart, th config.Thresholds) *Matcher {
	return &Matcher{chart: chart, th: th}
}

// Chart returns the chart this matcher classifies against.
func (m *Matcher) Chart() *Chart {
	return m.chart
}

// Match classifies a raw label, optionally hinted with a category name.
// Returns nil when no rung of the ladder applies.
func (m *Matcher) Match(label, category string) *Match {
	normalized := normalize.Label(label)
	if normalized == "" {
		return nil
	}

	if code, ok := m.chart.canonical[normalized]; ok {
		return m.match(code, m.th.ExactKeyConfidence, RuleCanonical)
	}
	if code, ok := m.chart.synonyms[normalized]; ok {
		return m.match(code, m.th.SynonymConfidence, RuleSynonym)
	}
	if code, ok := m.containment(normalized); ok {
		return m.match(code, m.th.SubstringConfidence, RuleSubstring)
	}
	if category != "" {
		if code, ok := m.chart.categoryTotals[normalize.Label(category)]; ok {
			return m.match(code, m.th.CategoryConfidence, RuleCategory)
		}
	}
	return nil
}

func (m *Matcher) match(code string, confidence float64, rule Rule) *Match {
	account, ok := m.chart.ByCode(code)
	if !ok {
		return nil
	}
	return &Match{Account: account, Confidence: confidence, Rule: rule}
}

// containment probes canonical names and synonyms for substring overlap in
// either direction. The longest matching key wins; ties break on the lower
// account code so results are stable across runs.
func (m *Matcher) containment(normalized string) (string, bool) {
	if len(normalized) < minSubstringLen {
		return "", false
	}

	bestCode, bestLen := "", 0
	consider := func(key, code string) {
		if len(key) < minSubstringLen {
			return
		}
		if !strings.Contains(normalized, key) && !strings.Contains(key, normalized) {
			return
		}
		if len(key) > bestLen || (len(key) == bestLen && code < bestCode) {
			bestCode, bestLen = code, len(key)
		}
	}

	for key, code := range m.chart.canonical {
		consider(key, code)
	}
	for key, code := range m.chart.synonyms {
		consider(key, code)
	}
	return bestCode, bestCode != ""
}

// Guesses ranks every non-header account by word overlap with the label,
// considering the account name and each of its synonyms, and returns the top
// K deduplicated suggestions. Used to give a reviewer a starting point for
// labels the ladder could not place.
func (m *Matcher) Guesses(label string, topK int) []model.Suggestion {
	words := labelWords(label)
	if len(words) == 0 || topK <= 0 {
		return nil
	}

	best := make(map[string]float64)
	for _, a := range m.chart.accounts {
		if a.IsHeader {
			continue
		}
		if s := wordOverlap(words, labelWords(a.Name)); s > best[a.Code] {
			best[a.Code] = s
		}
	}
	for key, code := range m.chart.synonyms {
		if a, ok := m.chart.ByCode(code); !ok || a.IsHeader {
			continue
		}
		if s := wordOverlap(words, strings.Split(key, "_")); s > best[code] {
			best[code] = s
		}
	}

	suggestions := make([]model.Suggestion, 0, len(best))
	for code, score := range best {
		if score <= 0 {
			continue
		}
		account, _ := m.chart.ByCode(code)
		suggestions = append(suggestions, model.Suggestion{
			COACode: code,
			COAName: account.Name,
			Score:   score,
			Source:  "static",
		})
	}
	sort.Slice(suggestions, func(i, j int) bool {
		if suggestions[i].Score != suggestions[j].Score {
			return suggestions[i].Score > suggestions[j].Score
		}
		return suggestions[i].COACode < suggestions[j].COACode
	})
	if len(suggestions) > topK {
		suggestions = suggestions[:topK]
	}
	return suggestions
}

func labelWords(s string) []string {
	normalized := normalize.Label(s)
	if normalized == "" {
		return nil
	}
	return strings.Split(normalized, "_")
}

// wordOverlap is the Jaccard index of two word sets.
func wordOverlap(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	setA := make(map[string]bool, len(a))
	for _, w := range a {
		setA[w] = true
	}
	setB := make(map[string]bool, len(b))
	for _, w := range b {
		setB[w] = true
	}

	intersection := 0
	for w := range setA {
		if setB[w] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}
