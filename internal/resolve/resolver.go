package resolve

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/snf-deal-cli/internal/model"
	"github.com/sells-group/snf-deal-cli/internal/regcache"
)

// Resolver runs full facility resolutions against the cached registry.
type Resolver struct {
	cache       *regcache.Cache
	ranker      *Ranker
	searchLimit int
}

// NewResolver creates a Resolver.
func NewResolver(cache *regcache.Cache, ranker *Ranker, searchLimit int) *Resolver {
	if searchLimit <= 0 {
		searchLimit = 25
	}
	return &Resolver{cache: cache, ranker: ranker, searchLimit: searchLimit}
}

// Resolve matches one extracted facility against registry search candidates.
// The cache layer normalizes the search name, so callers pass the raw
// extracted name. Registry unavailability yields a no-match result for this
// facility only.
func (r *Resolver) Resolve(ctx context.Context, f model.ExtractedFacility) (model.MatchResult, error) {
	candidates, err := r.cache.Search(ctx, f.Name, f.State, r.searchLimit)
	if err != nil {
		return model.MatchResult{}, err
	}

	result := r.ranker.Decide(f, candidates)
	zap.L().Debug("facility resolved",
		zap.String("facility", f.Name),
		zap.String("status", string(result.Status)),
		zap.Float64("confidence", result.Confidence),
	)
	return result, nil
}

// ResolveBatch resolves facilities concurrently, bounded by maxConcurrent.
// One facility's failure does not stop the batch; its slot carries a
// no-match result.
func (r *Resolver) ResolveBatch(ctx context.Context, facilities []model.ExtractedFacility, maxConcurrent int) ([]model.MatchResult, error) {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}

	results := make([]model.MatchResult, len(facilities))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)

	for i, f := range facilities {
		g.Go(func() error {
			res, err := r.Resolve(ctx, f)
			if err != nil {
				if ctx.Err() != nil {
					return err
				}
				zap.L().Warn("facility resolution failed",
					zap.String("facility", f.Name), zap.Error(err))
				res = model.MatchResult{
					Status: model.MatchStatusNoMatch,
					Reason: "resolution error: " + err.Error(),
				}
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
