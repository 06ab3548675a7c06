package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"

	"github.com/sells-group/snf-deal-cli/internal/classify"
	"github.com/sells-group/snf-deal-cli/internal/coa"
	"github.com/sells-group/snf-deal-cli/internal/learn"
	"github.com/sells-group/snf-deal-cli/internal/regcache"
	"github.com/sells-group/snf-deal-cli/internal/resolve"
	"github.com/sells-group/snf-deal-cli/internal/store"
	"github.com/sells-group/snf-deal-cli/pkg/registry"
)

// env wires the store-backed components every command shares.
type env struct {
	Store      store.Store
	Cache      *regcache.Cache
	Resolver   *resolve.Resolver
	Learner    *learn.Learner
	Classifier *classify.Classifier
}

func initEnv(ctx context.Context) (*env, error) {
	var st store.Store
	var err error
	switch cfg.Store.Driver {
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	case "sqlite", "":
		st, err = store.NewSQLite(cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate store")
	}

	chart, err := coa.LoadChart()
	if err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}

	client := registry.NewClient(cfg.Registry.BaseURL,
		registry.WithRateLimit(cfg.Registry.RatePerSec))
	cache := regcache.New(client, st, cfg.Registry.CacheTTL())

	ranker := resolve.NewRanker(cfg.Matching)
	learner := learn.New(st, chart, cfg.Learning)
	matcher := coa.NewMatcher(chart, cfg.Matching)

	return &env{
		Store:      st,
		Cache:      cache,
		Resolver:   resolve.NewResolver(cache, ranker, cfg.Registry.SearchLimit),
		Learner:    learner,
		Classifier: classify.New(learner, matcher, cfg.Matching),
	}, nil
}

func (e *env) Close() {
	if e.Store != nil {
		e.Store.Close() //nolint:errcheck
	}
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
