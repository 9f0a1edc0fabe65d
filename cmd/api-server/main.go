package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-booking-agent/internal/agent"
	"github.com/hackgods/clinic-booking-agent/internal/api"
	"github.com/hackgods/clinic-booking-agent/internal/appointment"
	"github.com/hackgods/clinic-booking-agent/internal/config"
	"github.com/hackgods/clinic-booking-agent/internal/db"
	"github.com/hackgods/clinic-booking-agent/internal/llm"
	"github.com/hackgods/clinic-booking-agent/internal/observability"
	"github.com/hackgods/clinic-booking-agent/internal/procedure"
	redisclient "github.com/hackgods/clinic-booking-agent/internal/redis"
	"github.com/hackgods/clinic-booking-agent/internal/registry"
	"github.com/hackgods/clinic-booking-agent/internal/session"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger("clinic-api", cfg.Env, cfg.LogLevel)
	logger.Info().
		Str("env", cfg.Env).
		Str("http_port", cfg.HTTPPort).
		Str("session_backend", cfg.SessionBackend).
		Str("llm_provider", cfg.LLMProvider).
		Str("timezone", cfg.Location.String()).
		Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(rootCtx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("api-server stopped with error")
	}
	logger.Info().Msg("api-server shut down")
}

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(promReg)

	var pgPool *pgxpool.Pool
	if cfg.PostgresDSN != "" {
		pgCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		pool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{})
		cancel()
		if err != nil {
			return fmt.Errorf("postgres connection: %w", err)
		}
		defer pool.Close()
		pgPool = pool
		logger.Info().Msg("connected to Postgres")
	}

	var rdb *redis.Client
	if cfg.RedisEnabled {
		var client *redis.Client
		var err error
		if cfg.RedisURL != "" {
			client, err = redisclient.NewRedisClientFromURL(ctx, cfg.RedisURL)
		} else {
			client, err = redisclient.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		}
		if err != nil {
			return fmt.Errorf("redis connection: %w", err)
		}
		defer func() {
			if err := client.Close(); err != nil {
				logger.Warn().Err(err).Msg("error closing redis")
			}
		}()
		rdb = client
		logger.Info().Str("addr", cfg.RedisAddr).Msg("connected to Redis")
	}

	now := func() time.Time { return time.Now().In(cfg.Location) }

	// Roster
	var reg interface {
		registry.Registry
		Doctors() []registry.Doctor
	}
	if pgPool != nil {
		loaded, err := registry.LoadFromPostgres(ctx, pgPool)
		if err != nil {
			return fmt.Errorf("load roster: %w", err)
		}
		reg = loaded
	} else {
		rolling, err := registry.NewRollingRegistry(registry.DefaultRoster, now)
		if err != nil {
			return fmt.Errorf("build roster: %w", err)
		}
		go rolling.Run(ctx, cfg.RosterRefresh, func(err error) {
			logger.Error().Err(err).Msg("roster refresh failed")
		})
		reg = rolling
	}
	logger.Info().Int("doctors", len(reg.Doctors())).Msg("roster loaded")

	// Ledger
	var repo appointment.Repository = appointment.NewMemoryRepository()
	if pgPool != nil {
		repo = appointment.NewPgRepository(pgPool)
	}
	var locker appointment.Locker = appointment.NewLocalSlotLocker()
	if rdb != nil {
		locker = redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)
	}
	ledger := appointment.NewService(repo, reg, locker,
		appointment.WithLocation(cfg.Location),
		appointment.WithLogger(logger.With().Str("component", "ledger").Logger()),
		appointment.WithMetrics(metrics),
	)

	// Classifier
	var authLog procedure.AuthorizationLog = procedure.NewMemoryLog()
	if pgPool != nil {
		authLog = procedure.NewPgLog(pgPool)
	}
	classifier := procedure.NewClassifier(
		procedure.WithLog(authLog),
		procedure.WithLocation(cfg.Location),
		procedure.WithLogger(logger.With().Str("component", "classifier").Logger()),
		procedure.WithMetrics(metrics),
	)

	// Sessions
	sessionOpts := []session.Option{
		session.WithTTL(cfg.SessionTTL),
		session.WithMaxSessions(cfg.SessionMax),
		session.WithMaxContextTurns(cfg.MaxContextTurns),
		session.WithLogger(logger.With().Str("component", "sessions").Logger()),
		session.WithMetrics(metrics),
	}
	var sessions session.Store
	if cfg.SessionBackend == config.SessionBackendRedis {
		sessions = session.NewRedisStore(rdb, sessionOpts...)
	} else {
		mem := session.NewMemoryStore(sessionOpts...)
		go mem.Run(ctx, cfg.SessionSweepInterval)
		sessions = mem
	}

	// Language model
	client, closeLLM, err := buildLLM(ctx, cfg, logger, metrics)
	if err != nil {
		return fmt.Errorf("language model: %w", err)
	}
	defer closeLLM()

	executor := agent.NewExecutor(reg, ledger, classifier, logger.With().Str("component", "executor").Logger(), metrics)
	orchestrator := agent.NewOrchestrator(client, sessions, executor,
		agent.WithTimeout(cfg.LLMTimeout),
		agent.WithMaxToolRounds(cfg.LLMMaxToolRounds),
		agent.WithMaxTokens(int32(cfg.LLMMaxTokens)),
		agent.WithClock(now, cfg.Location),
		agent.WithLogger(logger.With().Str("component", "orchestrator").Logger()),
		agent.WithMetrics(metrics),
	)

	router := api.NewRouter(api.RouterConfig{
		Chat:           orchestrator,
		Sessions:       sessions,
		Registry:       reg,
		Ledger:         ledger,
		Authorizations: classifier,
		PgPool:         pgPool,
		Redis:          rdb,
		Logger:         logger,
		Metrics:        metrics,
		Gatherer:       promReg,
		Env:            cfg.Env,
		Version:        version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.LLMTimeout + 15*time.Second,
		IdleTimeout:       time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info().Dur("timeout", cfg.ShutdownTimeout).Msg("shutting down api-server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// buildLLM constructs the configured provider, optionally backed by a
// fallback provider, and wraps each in request metrics.
func buildLLM(ctx context.Context, cfg config.Config, logger zerolog.Logger, metrics *observability.Metrics) (llm.Client, func(), error) {
	var closers []io.Closer
	closeAll := func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}

	provider := func(name string) (llm.Client, error) {
		switch name {
		case config.ProviderBedrock:
			return llm.NewBedrockClientFromRegion(ctx, cfg.AWSRegion, cfg.BedrockModelID)
		case config.ProviderGemini:
			c, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
			if err != nil {
				return nil, err
			}
			closers = append(closers, c)
			return c, nil
		default:
			return nil, fmt.Errorf("unknown provider %q", name)
		}
	}

	primary, err := provider(cfg.LLMProvider)
	if err != nil {
		return nil, closeAll, fmt.Errorf("%s: %w", cfg.LLMProvider, err)
	}
	var client llm.Client = llm.NewInstrumentedClient(primary, metrics)

	if cfg.LLMFallbackProvider != "" {
		fallback, err := provider(cfg.LLMFallbackProvider)
		if err != nil {
			closeAll()
			return nil, func() {}, fmt.Errorf("%s: %w", cfg.LLMFallbackProvider, err)
		}
		client = llm.NewFallbackClient(client, llm.NewInstrumentedClient(fallback, metrics),
			logger.With().Str("component", "llm").Logger())
	}

	logger.Info().
		Str("provider", cfg.LLMProvider).
		Str("fallback", cfg.LLMFallbackProvider).
		Msg("language model ready")
	return client, closeAll, nil
}
