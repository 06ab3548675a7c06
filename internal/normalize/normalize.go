// Package normalize canonicalizes free-text facility names and financial
// line-item labels ahead of similarity comparison and store lookups.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// genericTerms are corporate suffixes and facility boilerplate removed as
// whole words so "Sunrise Healthcare Center, LLC" and "sunrise healthcare
// center" compare equal. Multi-word phrases are checked before single words.
var genericTerms = []string{
	"skilled nursing facility",
	"skilled nursing",
	"nursing home",
	"rehabilitation center",
	"rehabilitation",
	"rehab",
	"senior living",
	"health care center",
	"llc", "inc", "incorporated", "ltd", "limited",
	"corp", "corporation", "co", "company",
	"lp", "llp", "pllc", "pc",
	"dba",
	"the",
}

var (
	nonAlnumRe   = regexp.MustCompile(`[^a-z0-9]+`)
	multiSpaceRe = regexp.MustCompile(`\s{2,}`)

	foldAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
)

// Name canonicalizes a facility or entity name for comparison:
// lowercase, diacritics folded to ASCII, generic/corporate terms removed at
// word boundaries, non-alphanumerics stripped, whitespace collapsed.
// Idempotent and side-effect-free.
func Name(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}

	if folded, _, err := transform.String(foldAccents, s); err == nil {
		s = folded
	}

	s = nonAlnumRe.ReplaceAllString(s, " ")
	for _, term := range genericTerms {
		s = removeWord(s, term)
	}
	s = multiSpaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// removeWord strips whole-word occurrences of term from s. The input has
// already been lowercased and punctuation-stripped, so a padded substring
// check is sufficient. ReplaceAll does not revisit replaced text, so
// consecutive occurrences ("manor llc llc") need another pass; repeat until
// the string stops changing to keep Name idempotent.
func removeWord(s, term string) string {
	padded := " " + s + " "
	target := " " + term + " "
	for {
		next := strings.ReplaceAll(padded, target, " ")
		if next == padded {
			return strings.TrimSpace(next)
		}
		padded = next
	}
}

// Label canonicalizes a financial line-item label into a snake_case key:
// lowercase, diacritics folded, non-alphanumeric runs collapsed to single
// underscores. "Medicaid Room & Board Revenue" -> "medicaid_room_board_revenue".
func Label(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	if folded, _, err := transform.String(foldAccents, s); err == nil {
		s = folded
	}
	s = nonAlnumRe.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}

// stripTokens are the generic words LabelVariations peels off. A variation
// left with nothing but these words carries no signal and would
// containment-match almost any stored label, so such residue is discarded.
var stripTokens = map[string]bool{
	"total": true, "expense": true, "expenses": true,
	"revenue": true, "income": true,
}

// LabelVariations expands a normalized label into the lookup variations the
// learning store probes: the label itself, total_/_total strips,
// _expense(s)/_revenue/_income strips, and simple de-pluralization.
// The original label is always first; the result is deduplicated, and
// variations consisting only of stripped generic words are dropped.
func LabelVariations(normalized string) []string {
	if normalized == "" {
		return nil
	}

	seen := map[string]bool{normalized: true}
	out := []string{normalized}

	add := func(v string) {
		v = strings.Trim(v, "_")
		if v != "" && !seen[v] && !allGeneric(v) {
			seen[v] = true
			out = append(out, v)
		}
	}

	for _, v := range append([]string{}, out...) {
		add(strings.TrimPrefix(v, "total_"))
		add(strings.TrimSuffix(v, "_total"))
	}
	for _, v := range append([]string{}, out...) {
		add(strings.TrimSuffix(v, "_expenses"))
		add(strings.TrimSuffix(v, "_expense"))
		add(strings.TrimSuffix(v, "_revenue"))
		add(strings.TrimSuffix(v, "_income"))
	}
	for _, v := range append([]string{}, out...) {
		if strings.HasSuffix(v, "ies") {
			add(strings.TrimSuffix(v, "ies") + "y")
		} else if strings.HasSuffix(v, "s") && !strings.HasSuffix(v, "ss") {
			add(strings.TrimSuffix(v, "s"))
		}
	}

	return out
}

// allGeneric reports whether every underscore-separated token of v is one of
// the generic strip words.
func allGeneric(v string) bool {
	for _, tok := range strings.Split(v, "_") {
		if !stripTokens[tok] {
			return false
		}
	}
	return true
}
