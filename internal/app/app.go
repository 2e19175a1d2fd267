package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/gokatarajesh/codearena/internal/auth/jwt"
	"github.com/gokatarajesh/codearena/internal/config"
	"github.com/gokatarajesh/codearena/internal/db/queries"
	"github.com/gokatarajesh/codearena/internal/db/repository"
	"github.com/gokatarajesh/codearena/internal/execution"
	"github.com/gokatarajesh/codearena/internal/history"
	"github.com/gokatarajesh/codearena/internal/leaderboard"
	"github.com/gokatarajesh/codearena/internal/logging"
	"github.com/gokatarajesh/codearena/internal/match"
	"github.com/gokatarajesh/codearena/internal/match/events"
	"github.com/gokatarajesh/codearena/internal/practice"
	"github.com/gokatarajesh/codearena/internal/question"
	"github.com/gokatarajesh/codearena/internal/question/generator"
	"github.com/gokatarajesh/codearena/internal/server"
	ws "github.com/gokatarajesh/codearena/pkg/http/ws"
)

// worker is a background loop that runs until its context ends.
type worker interface {
	Run(ctx context.Context) error
}

// Application aggregates shared infrastructure (DB, cache, HTTP server).
type Application struct {
	cfg    *config.App
	logger zerolog.Logger

	pool  *pgxpool.Pool
	redis *redis.Client
	http  *http.Server
	coord *match.Coordinator

	// history drains after the other workers stop so rounds ended during
	// shutdown still reach storage
	history *history.Worker
	workers map[string]worker
}

// New bootstraps logger, Postgres, Redis, the coordinator and the HTTP server.
func New(ctx context.Context, cfg *config.App) (*Application, error) {
	logger := logging.New(cfg.Name, cfg.Env, logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	logger.Info().Msg("starting application bootstrap")

	pool, err := pgxpool.New(ctx, cfg.Postgres.DSN())
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})

	q := queries.New(pool)
	questionRepo := repository.NewQuestionRepository(q)
	gameRepo := repository.NewPostgresGameRepository(pool)
	snapshotRepo := repository.NewSnapshotRepository(q)

	tokens := jwt.NewManager(jwt.TokenConfig{
		Secret: []byte(cfg.Security.JWTSecret),
		Issuer: cfg.Security.JWTIssuer,
	})

	// Questions
	var gen question.Generator
	if cfg.Generator.URL != "" {
		gen = generator.NewClient(generator.Config{
			URL:     cfg.Generator.URL,
			APIKey:  cfg.Generator.APIKey,
			Timeout: cfg.Generator.Timeout,
		}, logger)
	} else {
		logger.Warn().Msg("problem generator not configured; rounds rely on stored questions only")
	}
	questionSvc := question.NewService(
		questionRepo,
		question.NewCache(redisClient, cfg.Runtime.QuestionCacheTTL),
		gen,
		question.ServiceOptions{PoolLimit: cfg.Runtime.QuestionFetchLimit, LowWater: 3},
		logger,
	)
	warmer := question.NewWarmWorker(questionSvc, gen, cfg.Runtime.QuestionCacheTTL, cfg.Generator.Timeout, logger)

	// Sandbox
	sandbox := execution.NewClient(execution.Config{
		BaseURL:        cfg.Sandbox.BaseURL,
		APIKey:         cfg.Sandbox.APIKey,
		APIHost:        cfg.Sandbox.APIHost,
		RequestTimeout: cfg.Sandbox.RequestTimeout,
		PollAttempts:   cfg.Sandbox.PollAttempts,
		PollInterval:   cfg.Sandbox.PollInterval,
		RatePerSecond:  cfg.Sandbox.RatePerSecond,
		RateBurst:      cfg.Sandbox.RateBurst,
		CPUTimeLimit:   cfg.Sandbox.CPUTimeLimit,
		MemoryLimitKB:  cfg.Sandbox.MemoryLimitKB,
	}, nil, logger)

	// History sinks
	leaderboardSvc := leaderboard.NewService(redisClient, logger, leaderboard.ServiceOptions{
		TopN:           cfg.Leaderboard.SnapshotTopN,
		PubSubChannel:  cfg.Leaderboard.Channel,
		HostEndPenalty: cfg.Leaderboard.HostEndPenalty,
	})
	sinks := []history.Sink{gameRepo, leaderboardSvc}
	if cfg.Archive.Endpoint != "" {
		archive, err := history.NewMinioArchive(ctx, history.ArchiveConfig{
			Endpoint:  cfg.Archive.Endpoint,
			AccessKey: cfg.Archive.AccessKey,
			SecretKey: cfg.Archive.SecretKey,
			Bucket:    cfg.Archive.Bucket,
			UseSSL:    cfg.Archive.UseSSL,
		})
		if err != nil {
			pool.Close()
			_ = redisClient.Close()
			return nil, fmt.Errorf("replay archive: %w", err)
		}
		sinks = append(sinks, archive)
	}
	historyWorker := history.NewWorker(cfg.Runtime.HistoryQueueSize, logger, sinks...)

	// Rooms
	stateMgr := match.NewStateManager(redisClient, cfg.Runtime.RoomSnapshotTTL, logger)
	mirror := match.NewMirror(stateMgr, logger)
	coord := match.NewCoordinator(match.Deps{
		Executor:  sandbox,
		Questions: questionSvc,
		Recorder:  historyWorker,
		Events:    events.NewBroadcaster(cfg.Runtime.EventHistorySize, logger),
		Store:     stateMgr,
		Mirror:    mirror,
	}, match.Options{
		DefaultDuration:   cfg.Runtime.DefaultDuration,
		DefaultDifficulty: cfg.Runtime.DefaultDifficulty,
		DefaultTier:       cfg.Runtime.DefaultTier,
		DefaultMaxPlayers: cfg.Runtime.DefaultMaxPlayers,
		ExecutionTimeout:  cfg.Runtime.ExecutionTimeout,
	}, logger)

	wsHub := ws.NewHub(logger)
	workers := map[string]worker{
		"room mirror":         mirror,
		"question warmer":     warmer,
		"leaderboard fan-out": leaderboard.NewFanout(redisClient, wsHub, cfg.Leaderboard.Channel, logger),
	}
	if interval := cfg.Leaderboard.SnapshotInterval; interval > 0 {
		workers["leaderboard snapshots"] = leaderboard.NewSnapshotWorker(
			leaderboardSvc, snapshotRepo, interval, cfg.Leaderboard.SnapshotTopN, logger)
	}

	apiServer := server.NewHTTPServer(cfg, logger, tokens, server.Handlers{
		Rooms:       match.NewHTTPHandlers(coord, logger),
		RoomSocket:  match.NewHandler(coord, wsHub, tokens, logger),
		Games:       history.NewHTTPHandlers(gameRepo, logger),
		Questions:   question.NewHTTPHandlers(questionSvc, logger),
		Practice:    practice.NewHTTPHandlers(practice.NewService(sandbox, questionSvc, cfg.Runtime.ExecutionTimeout, logger), logger),
		Leaderboard: leaderboard.NewHTTPHandler(leaderboardSvc, snapshotRepo, logger),
	}, pool, server.RedisPinger(redisClient))

	return &Application{
		cfg:     cfg,
		logger:  logger,
		pool:    pool,
		redis:   redisClient,
		http:    apiServer,
		coord:   coord,
		history: historyWorker,
		workers: workers,
	}, nil
}

// Run starts the HTTP server and background workers, then waits for a
// termination signal.
func (a *Application) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	g, gctx := errgroup.WithContext(workerCtx)
	for name, w := range a.workers {
		g.Go(func() error {
			if err := w.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Warn().Err(err).Str("worker", name).Msg("background worker stopped")
			}
			return nil
		})
	}

	historyCtx, cancelHistory := context.WithCancel(context.Background())
	historyDone := make(chan struct{})
	go func() {
		defer close(historyDone)
		_ = a.history.Run(historyCtx)
	}()

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info().Str("addr", a.cfg.HTTPAddr).Msg("http server listening")
		if err := a.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		runErr = fmt.Errorf("http server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.GracefulShutdownTimeout)
	defer cancel()

	if err := a.http.Shutdown(shutdownCtx); err != nil {
		a.logger.Error().Err(err).Msg("http shutdown error")
	}

	a.coord.Shutdown()
	cancelWorkers()
	_ = g.Wait()

	cancelHistory()
	select {
	case <-historyDone:
	case <-shutdownCtx.Done():
		a.logger.Warn().Msg("history drain timed out")
	}

	a.pool.Close()
	if err := a.redis.Close(); err != nil {
		a.logger.Error().Err(err).Msg("redis shutdown error")
	}

	a.logger.Info().Msg("shutdown complete")
	return runErr
}
