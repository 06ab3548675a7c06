// Package resolve matches extracted facility descriptions against canonical
// provider registry records using multi-factor blended scoring.
package resolve

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/sells-group/snf-deal-cli/internal/config"
	"github.com/sells-group/snf-deal-cli/internal/model"
	"github.com/sells-group/snf-deal-cli/internal/normalize"
	"github.com/sells-group/snf-deal-cli/internal/similarity"
)

// Ranker scores and ranks provider candidates for an extracted facility.
// Scoring is pure and deterministic: the same inputs and thresholds always
// produce the same blended score.
type Ranker struct {
	th config.Thresholds
}

// NewRanker creates a Ranker with the given thresholds.
func NewRanker(th config.Thresholds) *Ranker {
	return &Ranker{th: th}
}

// Score computes the componentwise and blended scores for one candidate pair.
func (r *Ranker) Score(f model.ExtractedFacility, p model.CanonicalProvider) model.MatchCandidate {
	nameSim := similarity.Score(normalize.Name(f.Name), normalize.Name(p.Name))

	cityMatch := false
	if f.City != "" && p.City != "" {
		citySim := similarity.Score(
			strings.ToLower(strings.TrimSpace(f.City)),
			strings.ToLower(strings.TrimSpace(p.City)),
		)
		cityMatch = citySim > r.th.CityMatchScore
	}

	bedSim := bedSimilarity(f.Beds, p.BedCount)

	cityScore := 0.0
	if cityMatch {
		cityScore = 1.0
	}
	blended := r.th.NameWeight*nameSim + r.th.CityWeight*cityScore + r.th.BedWeight*bedSim

	return model.MatchCandidate{
		Provider:       p,
		NameSimilarity: nameSim,
		CityMatch:      cityMatch,
		BedSimilarity:  bedSim,
		Score:          blended,
	}
}

// bedSimilarity is 1 - |a-b|/max(a,b) when both counts are present and
// nonzero, else 0. A missing or malformed bed count contributes nothing
// rather than failing the comparison.
func bedSimilarity(a, b int) float64 {
	if a <= 0 || b <= 0 {
		return 0
	}
	maxBeds := float64(a)
	if float64(b) > maxBeds {
		maxBeds = float64(b)
	}
	return 1 - math.Abs(float64(a-b))/maxBeds
}

// Rank scores every candidate and sorts descending by blended score,
// breaking ties by CCN for a stable order.
func (r *Ranker) Rank(f model.ExtractedFacility, candidates []model.CanonicalProvider) []model.MatchCandidate {
	scored := make([]model.MatchCandidate, 0, len(candidates))
	for _, p := range candidates {
		scored = append(scored, r.Score(f, p))
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Provider.CCN < scored[j].Provider.CCN
	})
	return scored
}

// Decide applies the acceptance ladder to ranked candidates and builds the
// final MatchResult. Falling below the floor is a normal, reportable outcome.
func (r *Ranker) Decide(f model.ExtractedFacility, candidates []model.CanonicalProvider) model.MatchResult {
	ranked := r.Rank(f, candidates)
	if len(ranked) == 0 {
		return model.MatchResult{
			Status: model.MatchStatusNoMatch,
			Reason: "no registry candidates returned",
		}
	}

	best := ranked[0]
	topK := r.th.TopK
	if topK > len(ranked) {
		topK = len(ranked)
	}

	switch {
	case best.Score > r.th.AcceptScore:
		provider := best.Provider
		return model.MatchResult{
			Provider:     &provider,
			Status:       model.MatchStatusMatched,
			Confidence:   best.Score,
			AutoVerified: best.Score > r.th.AutoVerifyScore,
			Alternatives: ranked[1:topK],
			Reason:       describeCandidate("matched", best),
		}
	case best.Score >= r.th.PossibleScore:
		// Not auto-accepted: the boundary at AcceptScore is exclusive.
		return model.MatchResult{
			Status:       model.MatchStatusPossible,
			Confidence:   best.Score,
			Alternatives: ranked[:topK],
			Reason:       describeCandidate("possible match, needs review", best),
		}
	default:
		return model.MatchResult{
			Status:       model.MatchStatusNoMatch,
			Confidence:   best.Score,
			Alternatives: ranked[:topK],
			Reason:       describeCandidate("below match floor", best),
		}
	}
}

func describeCandidate(verdict string, c model.MatchCandidate) string {
	city := "no city match"
	if c.CityMatch {
		city = "city match"
	}
	return fmt.Sprintf("%s: %q scored %.2f (name %.2f, %s, beds %.2f)",
		verdict, c.Provider.Name, c.Score, c.NameSimilarity, city, c.BedSimilarity)
}
