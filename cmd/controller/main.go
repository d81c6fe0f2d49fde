package main

// #region imports
import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"github.com/danielpatrickdp/regen-loop/internal/config"
	"github.com/danielpatrickdp/regen-loop/internal/cycle"
	"github.com/danielpatrickdp/regen-loop/internal/entropy"
	"github.com/danielpatrickdp/regen-loop/internal/executor"
	"github.com/danielpatrickdp/regen-loop/internal/httpapi"
	"github.com/danielpatrickdp/regen-loop/internal/monitor"
	"github.com/danielpatrickdp/regen-loop/internal/plan"
	"github.com/danielpatrickdp/regen-loop/internal/probe"
	"github.com/danielpatrickdp/regen-loop/internal/store"
	"github.com/danielpatrickdp/regen-loop/internal/strategy"
	"github.com/danielpatrickdp/regen-loop/internal/telemetry"
)

// #endregion

// #region main
func main() {
	configPath := flag.String("config", envOr("REGEN_CONFIG", ""), "path to YAML config")
	flag.Parse()

	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: time.Kitchen,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("config load failed", "err", err)
		os.Exit(1)
	}

	st, err := store.NewStore(cfg.DBPath)
	if err != nil {
		logger.Error("store open failed", "db", cfg.DBPath, "err", err)
		os.Exit(1)
	}
	defer st.Close()

	probeClient := probe.NewClient(probe.ClientConfig{
		BaseURL: cfg.ProbeBaseURL,
		Timeout: cfg.MeasureTimeout.Std(),
		Retries: 2,
	})

	evaluator := entropy.NewEvaluator(entropy.EvaluatorConfig{
		DimensionWeights: cfg.DimensionWeights(),
		ScoreWeights: entropy.Weights{
			Error:   cfg.ScoreWeights.Error,
			Quality: cfg.ScoreWeights.Quality,
			Trend:   cfg.ScoreWeights.Trend,
		},
		Bands:       entropy.DefaultBands(),
		TrendWindow: cfg.TrendWindow,
	})

	cycleCfg := cycle.DefaultConfig(cfg.Thresholds())
	cycleCfg.AcceptanceFloor = cfg.AcceptanceFloor
	cycleCfg.MaxDevelopRetries = cfg.MaxDevelopRetries
	cycleCfg.MeasureTimeout = cfg.MeasureTimeout.Std()
	cycleCfg.DevelopTimeout = cfg.DevelopTimeout.Std()
	cycleCfg.AdaptThresholds = cfg.AdaptThresholds

	orch := cycle.New(cycleCfg,
		evaluator,
		strategy.NewExplorer(st),
		plan.NewDeveloper(plan.DefaultDeveloperConfig()),
		executor.New(probeClient, cfg.ImplementTimeout.Std()),
		monitor.New(monitor.Config{
			ObservationWindow:   cfg.ObservationWindow.Std(),
			DivergenceTolerance: cfg.DivergenceTolerance,
		}),
		st, probeClient, probeClient,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Periodic sampling drives cycles when operators don't.
	sampler := telemetry.NewSampler(cfg.SamplerInterval.Std(), cfg.Systems,
		func(ctx context.Context, systemID string) error {
			_, err := orch.TriggerCycle(ctx, systemID, "sampler")
			if errors.Is(err, cycle.ErrCycleActive) {
				return nil
			}
			return err
		})
	go sampler.Run(ctx)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: httpapi.NewServer(orch).Router(),
	}
	go func() {
		logger.Info("controller listening", "addr", cfg.ListenAddr,
			"probe", cfg.ProbeBaseURL, "db", cfg.DBPath, "systems", cfg.Systems)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown incomplete", "err", err)
	}
}

// #endregion main

// #region helpers
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion helpers
