// Command talkdub-worker drains the job queue and runs the dubbing pipeline:
// download, separation, transcription, translation, synthesis, mixing, and
// final manifest assembly for each queued job.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/redis/go-redis/v9"

	"github.com/talkdub-lab/talkdub/internal/config"
	"github.com/talkdub-lab/talkdub/internal/job"
	"github.com/talkdub-lab/talkdub/internal/media"
	"github.com/talkdub-lab/talkdub/internal/notify"
	"github.com/talkdub-lab/talkdub/internal/observe"
	"github.com/talkdub-lab/talkdub/internal/pipeline"
	"github.com/talkdub-lab/talkdub/internal/pipeline/phases"
	"github.com/talkdub-lab/talkdub/internal/resilience"
	"github.com/talkdub-lab/talkdub/internal/translate"
	"github.com/talkdub-lab/talkdub/pkg/provider/llm/anyllm"
)

// acquireTimeout bounds how long a translation chunk waits for a rate-limiter
// token before giving up on the attempt.
const acquireTimeout = 2 * time.Minute

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// .env is optional; the YAML loader expands ${VAR} references itself.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "talkdub-worker: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "talkdub-worker: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("talkdub-worker starting",
		"config", *configPath,
		"provider", cfg.LLM.Provider,
		"model", cfg.LLM.Model,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOtel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "talkdub-worker"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOtel(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		slog.Error("invalid redis url", "err", err)
		return 1
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	store, err := job.NewStore(cfg.Data)
	if err != nil {
		slog.Error("failed to open job store", "err", err)
		return 1
	}

	var provOpts []anyllmlib.Option
	if cfg.LLM.APIKey != "" {
		provOpts = append(provOpts, anyllmlib.WithAPIKey(cfg.LLM.APIKey))
	}
	if cfg.LLM.BaseURL != "" {
		provOpts = append(provOpts, anyllmlib.WithBaseURL(cfg.LLM.BaseURL))
	}
	provider, err := anyllm.New(cfg.LLM.Provider, cfg.LLM.Model, provOpts...)
	if err != nil {
		slog.Error("failed to construct LLM provider", "provider", cfg.LLM.Provider, "err", err)
		return 1
	}
	guarded := resilience.Guard(provider, resilience.BreakerConfig{Name: cfg.LLM.Provider}, logger)

	client := translate.NewClient(guarded, cfg.LLM.Provider)
	client.Temperature = cfg.LLM.Temperature
	translator := translate.NewPipeline(
		client,
		translate.NewCache(rdb, cfg.LLM.CacheTTL, logger),
		translate.NewRateLimiter(rdb, cfg.LLM.RPMLimit, cfg.LLM.RPMBuffer, logger),
		translate.Options{
			CharLimit:      cfg.Pipeline.ChunkCharLimit,
			SegLimit:       cfg.Pipeline.ChunkSegLimit,
			MaxRetries:     cfg.Pipeline.MaxRetries,
			BackoffBase:    cfg.Pipeline.BackoffBase,
			AcquireTimeout: acquireTimeout,
		},
		logger,
	)

	runner := media.NewRunner(logger)
	set := phases.Set{
		Runner:     runner,
		FFmpeg:     media.NewFFmpeg(runner, cfg.Engines),
		Engines:    cfg.Engines,
		Params:     cfg.Pipeline,
		Translator: translator,
		Client:     client,
	}

	worker := pipeline.NewWorker(pipeline.WorkerConfig{
		Store: store,
		Queue: job.NewQueue(rdb),
		Orchestrator: pipeline.NewOrchestrator(
			pipeline.NewRunner(store, cfg.Pipeline.MaxRetries, cfg.Pipeline.BackoffBase, logger),
			set.All(),
			true,
			logger,
		),
		Notifier:   notify.FromConfig(cfg.Email, logger),
		PublicURL:  cfg.Server.PublicURL,
		JobTimeout: cfg.Pipeline.JobTimeout,
		Retention:  cfg.Retention.Delivery,
		Logger:     logger,
	})

	slog.Info("worker ready — waiting for jobs")
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("worker stopped", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
