// Command talkdubd is the TalkDub API server: job submission, status, and
// PIN-gated delivery download.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/talkdub-lab/talkdub/internal/cleanup"
	"github.com/talkdub-lab/talkdub/internal/config"
	"github.com/talkdub-lab/talkdub/internal/delivery"
	"github.com/talkdub-lab/talkdub/internal/health"
	"github.com/talkdub-lab/talkdub/internal/httpapi"
	"github.com/talkdub-lab/talkdub/internal/job"
	"github.com/talkdub-lab/talkdub/internal/notify"
	"github.com/talkdub-lab/talkdub/internal/observe"
	"github.com/talkdub-lab/talkdub/internal/pin"
)

// sweepInterval is how often the retention sweeper runs.
const sweepInterval = time.Hour

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
			fmt.Fprintf(os.Stderr, "talkdubd: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "talkdubd: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("talkdubd starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOtel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "talkdubd"})
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

	pins := pin.NewStore(rdb, cfg.Retention.PIN, cfg.Limits.MaxPINAttempts)
	notifier := notify.FromConfig(cfg.Email, logger)

	server := httpapi.NewServer(httpapi.ServerConfig{
		Store:       store,
		Queue:       job.NewQueue(rdb),
		Pins:        pins,
		Gate:        delivery.NewGate(store, pins, cfg.Limits.MaxDownloads, logger),
		Notifier:    notifier,
		Limiter:     httpapi.NewIPLimiter(rdb, logger),
		Limits:      cfg.Limits,
		PublicURL:   cfg.Server.PublicURL,
		CORSOrigins: cfg.Server.CORSOrigins,
		Logger:      logger,
	})

	httpSrv := &http.Server{
		Addr: cfg.Server.ListenAddr,
		Handler: server.Router(
			health.RedisChecker(rdb),
			health.DataDirChecker(cfg.Data),
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sweeper := cleanup.NewSweeper(store, pins, cfg.Data, cfg.Retention, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server ready — press Ctrl+C to shut down")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := sweeper.Run(gctx, sweepInterval); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("cleanup sweeper: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		slog.Info("shutdown signal received, stopping…")
		return httpSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("run error", "err", err)
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
