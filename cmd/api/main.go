package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"

	"github.com/example/dispute-engine/internal/api"
	"github.com/example/dispute-engine/internal/auth"
	"github.com/example/dispute-engine/internal/config"
	"github.com/example/dispute-engine/internal/disputes"
	"github.com/example/dispute-engine/internal/ledger"
	"github.com/example/dispute-engine/internal/security"
	"github.com/example/dispute-engine/internal/vault"
	"github.com/example/dispute-engine/pkg/audit"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load(os.Getenv)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	allowlist, err := security.ParseCIDRAllowlist(cfg.IPAllowlist)
	if err != nil {
		logger.Error("invalid IP_ALLOWLIST", "error", err)
		os.Exit(1)
	}

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create postgres pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	tokenDB, err := sql.Open("sqlite3", cfg.TokenDBPath)
	if err != nil {
		logger.Error("failed to open token registry", "error", err)
		os.Exit(1)
	}
	defer tokenDB.Close()

	tokens := vault.NewTokenStore(tokenDB)
	if err := tokens.Migrate(context.Background()); err != nil {
		logger.Error("failed to migrate token registry", "error", err)
		os.Exit(1)
	}

	keySet, err := auth.NewKeySet()
	if err != nil {
		logger.Error("failed to create keyset", "error", err)
		os.Exit(1)
	}

	oauthServer := &auth.OAuthServer{
		Store:          &auth.PostgresClientStore{Pool: pool},
		Keys:           keySet,
		Issuer:         cfg.Issuer,
		AccessTokenTTL: 15 * time.Minute,
	}
	jwtValidator := &auth.JWTValidator{KeySet: keySet, Issuer: cfg.Issuer}

	var rateLimiter *security.RedisTokenBucket
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		rateLimiter = &security.RedisTokenBucket{
			Redis:      redisClient,
			Prefix:     "dispute_api",
			Capacity:   getenvInt("RATE_LIMIT_CAPACITY", 20),
			RefillRate: float64(getenvInt("RATE_LIMIT_REFILL_PER_SEC", 10)),
		}
	}

	router, err := api.NewRouter(api.Dependencies{
		Logger:       logger,
		OAuth:        oauthServer,
		JWTValidator: jwtValidator,
		Store:        disputes.NewPostgresStore(pool),
		Ledger:       ledger.NewPostgresLedger(pool),
		Tokens:       tokens,
		Auditor:      audit.NewChainLogger(),
		RateLimiter:  rateLimiter,
		IPAllowlist:  allowlist,
		MaxBodyBytes: cfg.MaxBodyBytes,
	})
	if err != nil {
		logger.Error("failed to build router", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		logger.Error("failed to listen", "error", err)
		os.Exit(1)
	}

	if cfg.TLSCertFile != "" && cfg.TLSKeyFile != "" {
		tlsCfg, err := security.LoadServerTLSConfig(security.TLSConfig{
			CertFile: cfg.TLSCertFile,
			KeyFile:  cfg.TLSKeyFile,
			CAFile:   os.Getenv("TLS_CA_FILE"),
		})
		if err != nil {
			logger.Error("failed to load TLS config", "error", err)
			os.Exit(1)
		}
		srv.TLSConfig = tlsCfg
		ln = tls.NewListener(ln, tlsCfg)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()

	logger.Info("dispute api listening", "addr", cfg.Addr, "env", cfg.Environment)
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}
