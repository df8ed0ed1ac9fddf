package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/alejandrodnm/delphibot/config"
	"github.com/alejandrodnm/delphibot/internal/adapters/delphi"
	"github.com/alejandrodnm/delphibot/internal/adapters/httpapi"
	"github.com/alejandrodnm/delphibot/internal/adapters/metrics"
	"github.com/alejandrodnm/delphibot/internal/adapters/notify"
	"github.com/alejandrodnm/delphibot/internal/analysis"
	"github.com/alejandrodnm/delphibot/internal/dashboard"
	"github.com/alejandrodnm/delphibot/internal/detector"
	"github.com/alejandrodnm/delphibot/internal/prediction"
	"github.com/alejandrodnm/delphibot/internal/registry"
	"github.com/alejandrodnm/delphibot/internal/resolver"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	report := flag.Bool("report", false, "run the historical analysis once, print it and exit")
	detailed := flag.Bool("detailed", false, "with -report, print per-market rankings")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	reg, err := registry.Load(cfg.Registry.Path)
	if err != nil {
		slog.Error("failed to load market registry", "err", err, "path", cfg.Registry.Path)
		os.Exit(1)
	}

	slog.Info("delphibot starting",
		"config", *configPath,
		"delphi", cfg.API.DelphiBase,
		"registry_version", reg.Version(),
		"markets", len(reg.Markets()),
		"report", *report,
	)

	prom := metrics.New(func() int { return len(reg.Ghosts()) })

	client := delphi.NewClient(cfg.API.DelphiBase,
		delphi.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout()}),
		delphi.WithRateLimit(cfg.API.RatePerSec, cfg.API.Burst),
		delphi.WithObserver(prom),
	)
	// El human belief corta cada fetch de evals a los 9s; el histórico no tiene deadline.
	beliefClient := client.WithEvalDeadline(cfg.BeliefEvalDeadline())
	slog.Info("delphi client ready",
		"rate_per_sec", cfg.API.RatePerSec,
		"http_timeout", cfg.HTTPTimeout(),
		"belief_deadline", beliefClient.EvalDeadline(),
	)

	det := detector.New(detector.Config{
		OngoingLimit: cfg.Detector.OngoingLimit,
		ProbeCeiling: cfg.Detector.ProbeCeiling,
	}, client, client, reg)

	res := resolver.Default(reg, client, client)
	analyzer := analysis.NewAnalyzer(reg, prediction.New(client), res, cfg.Analysis.Workers).
		WithUpstream(analysis.Upstream{Markets: client, Entries: det, Limit: cfg.Analysis.ClosedLimit})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *report {
		runReport(ctx, analyzer, *detailed)
		return
	}

	svc := dashboard.New(dashboard.Config{
		ChartTTL:       config.TTL(cfg.Cache.ChartTTLSeconds),
		HumanBeliefTTL: config.TTL(cfg.Cache.HumanBeliefTTLSeconds),
		HistoricalTTL:  config.TTL(cfg.Cache.HistoricalTTLSeconds),
		LiveMarketTTL:  config.TTL(cfg.Cache.LiveMarketTTLSeconds),
		GapThreshold:   cfg.Signal.GapThreshold,
		BeliefDeadline: beliefClient.EvalDeadline(),
	}, dashboard.Deps{
		Registry:     reg,
		Detector:     det,
		Charts:       client,
		BeliefEngine: prediction.New(beliefClient),
		Analyzer:     analyzer,
		Resolver:     res,
		Observer:     prom,
	})

	server := httpapi.NewServer(httpapi.Config{
		Addr:           cfg.Server.Addr,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, svc, prom.Handler())

	if err := server.Run(ctx); err != nil {
		slog.Error("server exited with error", "err", err)
		os.Exit(1)
	}

	slog.Info("delphibot stopped cleanly", "ghosts", svc.Ghosts())
}

func runReport(ctx context.Context, analyzer *analysis.Analyzer, detailed bool) {
	slog.Info("=== REPORT MODE: historical analysis of settled markets ===")
	r := analyzer.Run(ctx)
	notify.NewConsole(detailed).PrintHistorical(r)
	slog.Info("report complete", "markets", r.TotalMarkets, "win_rate", r.WinRate)
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
