package fedridge

import (
	"context"
	"log/slog"

	"github.com/absmach/fedridge/aggregator"
	"github.com/absmach/fedridge/coordinator"
	"github.com/absmach/fedridge/pkg/fl"
	"github.com/absmach/fedridge/pkg/storage"
	"github.com/absmach/fedridge/site"
)

// Simulate runs cfg in process: every configured site steps locally and
// svc aggregates. A nil svc uses an in-memory aggregator.
func Simulate(ctx context.Context, cfg *Config, svc aggregator.Service, logger *slog.Logger) (aggregator.Run, fl.Result, error) {
	if err := cfg.Validate(); err != nil {
		return aggregator.Run{}, fl.Result{}, err
	}
	if svc == nil {
		svc = aggregator.NewService(storage.NewInMemoryStorage[aggregator.Run](), logger)
	}

	sites := make([]coordinator.Site, 0, len(cfg.Sites))
	for _, s := range cfg.Sites {
		r, err := site.NewRunner(s.ID, s.Source(), s.Config())
		if err != nil {
			return aggregator.Run{}, fl.Result{}, err
		}
		sites = append(sites, r)
	}

	run, err := svc.CreateRun(ctx, aggregator.RunConfig{
		Name:   cfg.Run.Name,
		Config: cfg.Run.Aggregator(),
		Sites:  cfg.SiteIDs(),
	})
	if err != nil {
		return aggregator.Run{}, fl.Result{}, err
	}

	var opts []coordinator.Option
	if cfg.Run.MaxDeferrals > 0 {
		opts = append(opts, coordinator.WithMaxDeferrals(cfg.Run.MaxDeferrals))
	}

	res, err := coordinator.New(svc, sites, logger, opts...).Run(ctx, run.ID)
	if err != nil {
		return run, fl.Result{}, err
	}

	run, err = svc.GetRun(ctx, run.ID)
	if err != nil {
		return aggregator.Run{}, fl.Result{}, err
	}

	return run, res, nil
}
