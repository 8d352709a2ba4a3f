package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/example/dispute-engine/internal/config"
	"github.com/example/dispute-engine/internal/disputes"
	"github.com/example/dispute-engine/pkg/audit"
)

const leaderLockKey = "dispute_deadlined:leader"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load(os.Getenv)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create postgres pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
	}

	w := &watcher{
		store:    disputes.NewPostgresStore(pool),
		redis:    redisClient,
		auditor:  audit.NewChainLogger(),
		logger:   logger,
		interval: time.Duration(cfg.ScanInterval) * time.Second,
		batch:    cfg.ScanBatchSize,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("deadline watcher started", "interval_s", cfg.ScanInterval, "batch", cfg.ScanBatchSize)
	w.run(ctx)
	logger.Info("deadline watcher stopped")
}

type watcher struct {
	store    *disputes.PostgresStore
	redis    *redis.Client
	auditor  *audit.ChainLogger
	logger   *slog.Logger
	interval time.Duration
	batch    int
}

func (w *watcher) run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !w.acquireLeaderLock(ctx) {
				continue
			}
			if err := w.scan(ctx); err != nil {
				w.logger.Error("deadline scan failed", "error", err)
			}
		}
	}
}

// acquireLeaderLock takes a short-lived redis lock so only one replica
// scans per tick. Without redis the watcher assumes a single instance.
func (w *watcher) acquireLeaderLock(ctx context.Context) bool {
	if w.redis == nil {
		return true
	}
	ok, err := w.redis.SetNX(ctx, leaderLockKey, "1", w.interval-time.Second).Result()
	if err != nil {
		w.logger.Error("leader lock unavailable", "error", err)
		return false
	}
	return ok
}

func (w *watcher) scan(ctx context.Context) error {
	now := time.Now().Unix()

	ids, err := w.store.ListPastDue(ctx, now, w.batch)
	if err != nil {
		return err
	}

	for _, id := range ids {
		if err := w.store.MarkPastDue(ctx, id); err != nil {
			w.logger.Error("failed to mark past due", "dispute_id", id, "error", err)
			continue
		}
		w.auditor.AppendEvent(audit.Event{
			Kind:      "dispute.past_due",
			DisputeID: id,
			Actor:     "deadlined",
		})
		w.logger.Info("dispute past due", "dispute_id", id)
	}

	if len(ids) > 0 {
		w.logger.Info("deadline scan complete", "marked", len(ids))
	}
	return nil
}
