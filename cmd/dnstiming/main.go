package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/alecthomas/kong"
	"github.com/jaxxstorm/dnstiming/internal/analyze"
	"github.com/jaxxstorm/dnstiming/internal/bench"
	"github.com/jaxxstorm/dnstiming/internal/dnsclient"
	"github.com/jaxxstorm/dnstiming/internal/lookup"
	"github.com/jaxxstorm/dnstiming/internal/model"
	"github.com/jaxxstorm/dnstiming/internal/output"
	"github.com/jaxxstorm/dnstiming/internal/phase"
	"go.uber.org/zap"
)

var Version = "dev"

type CLI struct {
	Bench   BenchCmd   `cmd:"" default:"withargs" help:"Benchmark the platform resolver against the wire resolver (default)."`
	Phases  PhasesCmd  `cmd:"phases" help:"Time the DNS, TCP, TLS and total phases of one HTTPS request."`
	Version VersionCmd `cmd:"version" help:"Print version."`
}

type ResolverFlags struct {
	Resolvers  []string      `name:"resolver" env:"DNSTIMING_RESOLVERS" help:"Resolver IPs for the binding strategy (repeatable). If not set, uses system resolvers then public ones."`
	Transport  string        `enum:"udp,tcp,auto" default:"auto" env:"DNSTIMING_TRANSPORT" help:"Transport for binding strategy queries."`
	DNSTimeout time.Duration `name:"dns-timeout" default:"2s" help:"Per-server query timeout for the binding strategy."`
}

type BenchCmd struct {
	Host        string `arg:"" name:"host" optional:"" default:"google.com." help:"Host name to resolve."`
	Trials      int    `default:"1000" env:"DNSTIMING_TRIALS" help:"Number of paired trials."`
	All         bool   `help:"Request all addresses instead of the first."`
	Family      int    `default:"4" help:"Address family hint for the binding strategy (0, 4 or 6)."`
	MinMs       int64  `name:"min-ms" default:"0" help:"Drop samples whose rounded duration is at or below this many milliseconds."`
	Quiet       bool   `help:"Do not print per-trial result lines."`
	Output      string `enum:"pretty,json" default:"pretty" help:"Output format."`
	MetricsFile string `name:"metrics-file" type:"path" env:"DNSTIMING_METRICS_FILE" help:"Write Prometheus textfile metrics to this path."`

	ResolverFlags `embed:""`

	Verbose bool `help:"Enable verbose logging."`
	Debug   bool `help:"Enable debug logging (includes raw DNS messages)."`
}

type PhasesCmd struct {
	URL      string        `arg:"" name:"url" optional:"" default:"https://www.google.com/" help:"URL to request."`
	Strategy string        `enum:"platform,binding" default:"binding" env:"DNSTIMING_STRATEGY" help:"Lookup strategy used to resolve the host."`
	All      bool          `help:"Request all addresses and try them in order."`
	Family   int           `default:"0" help:"Address family hint (0, 4 or 6)."`
	Timeout  time.Duration `default:"30s" help:"Request timeout."`
	Output   string        `enum:"pretty,json" default:"pretty" help:"Output format."`

	ResolverFlags `embed:""`

	Verbose bool `help:"Enable verbose logging."`
	Debug   bool `help:"Enable debug logging (includes raw DNS messages)."`
}

type VersionCmd struct{}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("dnstiming"),
		kong.Description("Benchmark name resolution and time HTTPS request phases."),
	)

	if ctx.Selected() != nil && ctx.Selected().Name == "version" {
		fmt.Println(Version)
		return
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)

	var code int
	if ctx.Selected() != nil && ctx.Selected().Name == "phases" {
		logger, err := newLogger(cli.Phases.Verbose, cli.Phases.Debug)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		code = runPhases(runCtx, cli.Phases, logger)
		_ = logger.Sync()
	} else {
		logger, err := newLogger(cli.Bench.Verbose, cli.Bench.Debug)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		code = runBench(runCtx, cli.Bench, logger)
		_ = logger.Sync()
	}
	stop()
	os.Exit(code)
}

func runBench(ctx context.Context, cmd BenchCmd, logger *zap.Logger) int {
	family, err := lookup.ParseFamily(cmd.Family)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	binding, err := newBinding(cmd.ResolverFlags, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	platform := lookup.NewPlatform(nil, logger)

	cfg := bench.Config{
		Host:    cmd.Host,
		Trials:  cmd.Trials,
		Options: lookup.Options{All: cmd.All},
		StrategyOptions: map[string]lookup.Options{
			lookup.BindingName: {All: cmd.All, Family: family},
		},
		MinMillis: cmd.MinMs,
		Logger:    logger,
	}
	if !cmd.Quiet && cmd.Output == "pretty" {
		cfg.OnTrial = func(rec model.TrialRecord) {
			fmt.Println(output.RenderTrialLine(rec))
		}
	}
	if cmd.MetricsFile != "" {
		cfg.Metrics = bench.NewMetrics()
	}

	report, runErr := bench.Run(ctx, cfg, platform, binding)
	if runErr != nil && report.Strategies == nil {
		fmt.Fprintln(os.Stderr, runErr)
		return 1
	}
	if runErr != nil {
		logger.Warn("benchmark interrupted", zap.Error(runErr))
	}

	if cfg.Metrics != nil {
		if err := cfg.Metrics.WriteTextfile(cmd.MetricsFile); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
	}

	var rendered string
	if cmd.Output == "json" {
		rendered, err = output.RenderJSON(report)
	} else {
		rendered = output.RenderBenchPretty(report)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	fmt.Println()
	fmt.Println(rendered)
	return 0
}

func runPhases(ctx context.Context, cmd PhasesCmd, logger *zap.Logger) int {
	family, err := lookup.ParseFamily(cmd.Family)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	var strategy lookup.Strategy
	if cmd.Strategy == lookup.PlatformName {
		strategy = lookup.NewPlatform(nil, logger)
	} else {
		strategy, err = newBinding(cmd.ResolverFlags, logger)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
	}

	timer := phase.NewTimer(strategy, phase.Config{
		Timeout: cmd.Timeout,
		Options: lookup.Options{All: cmd.All, Family: family},
		Logger:  logger,
	})
	report, reqErr := timer.Do(ctx, cmd.URL)

	var rendered string
	if cmd.Output == "json" {
		rendered, err = output.RenderJSON(report)
	} else {
		rendered = output.RenderPhasesPretty(report)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	fmt.Println(rendered)
	if analyze.Failed(report.Failure) {
		logger.Debug("request failed", zap.Error(reqErr))
		return 2
	}
	return 0
}

func newBinding(flags ResolverFlags, logger *zap.Logger) (*lookup.Binding, error) {
	resolvers := flags.Resolvers
	if len(resolvers) == 0 {
		loaded, err := lookup.DefaultResolverChain()
		if err != nil {
			return nil, err
		}
		resolvers = loaded
	}

	client := dnsclient.New(dnsclient.Options{
		Mode:    dnsclient.Mode(flags.Transport),
		Timeout: flags.DNSTimeout,
		Retries: 1,
		Logger:  logger,
	})
	return lookup.NewBinding(client, lookup.BindingConfig{Servers: resolvers, Logger: logger}), nil
}

func newLogger(verbose bool, debug bool) (*zap.Logger, error) {
	if debug {
		cfg := zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		return cfg.Build()
	}
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	} else {
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	return cfg.Build()
}
