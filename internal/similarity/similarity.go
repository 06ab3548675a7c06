// Package similarity provides the edit-distance string similarity primitive
// shared by facility resolution and line-item classification.
package similarity

// Score returns a similarity in [0,1] between two strings:
// 1 - editDistance/maxLen. Identical non-empty strings score 1; two empty
// strings score 0 by definition (no evidence is not a match). Symmetric.
func Score(a, b string) float64 {
	if a == "" && b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	ra, rb := []rune(a), []rune(b)
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}

	dist := Levenshtein(ra, rb)
	return 1 - float64(dist)/float64(maxLen)
}

// Levenshtein computes the edit distance between two rune slices using the
// two-row dynamic programming formulation.
func Levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}

	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
