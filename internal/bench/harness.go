package bench

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jaxxstorm/dnstiming/internal/lookup"
	"github.com/jaxxstorm/dnstiming/internal/model"
	"github.com/jaxxstorm/dnstiming/internal/stats"
	"go.uber.org/zap"
)

var (
	ErrNoStrategies = errors.New("no lookup strategies configured")
	ErrNoHost       = errors.New("no host configured")
)

type Config struct {
	Host    string
	Trials  int
	Options lookup.Options
	// Per-strategy options override Options, keyed by strategy name.
	StrategyOptions map[string]lookup.Options
	// MinMillis is the histogram drop threshold; see stats.Histogram.
	MinMillis int64
	Logger    *zap.Logger
	Now       func() time.Time
	OnTrial   func(model.TrialRecord)
	Metrics   *Metrics
}

type strategyState struct {
	strategy lookup.Strategy
	opts     lookup.Options
	hist     *stats.Histogram
	trials   int
	failures int
}

// Run executes cfg.Trials paired trials. Within a trial every strategy is
// invoked once, in the given order, and each call settles before the next
// begins. A failed lookup is logged and contributes no sample.
func Run(ctx context.Context, cfg Config, strategies ...lookup.Strategy) (model.BenchReport, error) {
	if len(strategies) == 0 {
		return model.BenchReport{}, ErrNoStrategies
	}
	if cfg.Host == "" {
		return model.BenchReport{}, ErrNoHost
	}
	if cfg.Trials < 0 {
		return model.BenchReport{}, fmt.Errorf("invalid trial count: %d", cfg.Trials)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	states := make([]*strategyState, 0, len(strategies))
	for _, s := range strategies {
		opts := cfg.Options
		if override, ok := cfg.StrategyOptions[s.Name()]; ok {
			opts = override
		}
		states = append(states, &strategyState{strategy: s, opts: opts, hist: stats.NewHistogram(cfg.MinMillis)})
	}

	began := cfg.Now()
	var runErr error
	for i := 0; i < cfg.Trials; i++ {
		// A started trial always runs every strategy so counts stay paired.
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		for _, st := range states {
			rec := runTrial(ctx, cfg, st, i)
			if cfg.OnTrial != nil {
				cfg.OnTrial(rec)
			}
		}
	}

	report := model.BenchReport{
		Host:    cfg.Host,
		Trials:  cfg.Trials,
		All:     cfg.Options.All,
		Family:  int(cfg.Options.Family),
		Elapsed: cfg.Now().Sub(began).String(),
	}
	for _, st := range states {
		report.Strategies = append(report.Strategies, model.StrategyReport{
			Name:     st.strategy.Name(),
			Trials:   st.trials,
			Samples:  st.hist.Count(),
			Failures: st.failures,
			Dropped:  st.hist.Dropped(),
			Summary:  st.hist.Summary(),
		})
	}
	return report, runErr
}

func runTrial(ctx context.Context, cfg Config, st *strategyState, index int) model.TrialRecord {
	name := st.strategy.Name()
	rec := model.TrialRecord{Strategy: name, Index: index, Start: cfg.Now()}
	addrs, err := st.strategy.Lookup(ctx, cfg.Host, st.opts)
	rec.End = cfg.Now()
	rec.Duration = rec.End.Sub(rec.Start)
	st.trials++

	if err != nil {
		st.failures++
		rec.Error = err.Error()
		cfg.Metrics.fail(name)
		cfg.Logger.Warn("lookup failed",
			zap.String("strategy", name),
			zap.Int("trial", index),
			zap.String("host", cfg.Host),
			zap.Error(err),
		)
		return rec
	}

	rec.Addresses = lookup.ToModel(addrs)
	rec.Recorded = st.hist.Record(rec.Duration)
	if rec.Recorded {
		cfg.Metrics.observe(name, rec.Duration.Seconds())
	} else {
		cfg.Metrics.drop(name)
	}
	cfg.Logger.Debug("lookup trial",
		zap.String("strategy", name),
		zap.Int("trial", index),
		zap.Duration("duration", rec.Duration),
		zap.Bool("recorded", rec.Recorded),
	)
	return rec
}
