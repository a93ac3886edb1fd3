package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ascendly-scoring/internal/app"
	"ascendly-scoring/internal/config"
	"ascendly-scoring/internal/domain"
	"ascendly-scoring/internal/infra/failover"
	"ascendly-scoring/internal/infra/memory"
	"ascendly-scoring/internal/infra/postgres"
	redisinfra "ascendly-scoring/internal/infra/redis"
	"ascendly-scoring/internal/infra/sqlite"
	"ascendly-scoring/internal/logger"
	"ascendly-scoring/internal/metrics"
	transport "ascendly-scoring/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the scoring server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
			return err
		}
	}

	finalPort := resolvePort(portFlag, cfg.Server.Port)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	store, closeStore, err := buildStore(ctx, cfg, pool, log, m)
	if err != nil {
		return err
	}
	defer closeStore()

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes()...)
	if pool != nil {
		loader = postgres.NewQuizLoader(pool)
	} else if err := seedDemoAccounts(ctx, store); err != nil {
		return err
	}

	var quizRepo app.QuizRepository
	var board app.Leaderboard
	if redisClient != nil {
		quizRepo = redisinfra.NewQuizRepository(redisClient, loader, config.TTLDuration(cfg.Redis.TTL, 10*time.Minute))
		board = redisinfra.NewLeaderboard(redisClient)
	} else {
		quizRepo = memory.NewQuizRepository(loader, config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute))
		board = memory.NewLeaderboard()
	}

	service := app.NewQuizService(store, quizRepo,
		app.WithLeaderboard(board),
		app.WithLogger(log),
		app.WithMetrics(m),
	)

	mux := http.NewServeMux()
	transport.Routes(mux, service, quizRepo, log, config.IntOr(cfg.Leaderboard.Size, 10))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info("starting scoring service", zap.String("port", finalPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("failed to start server", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// buildStore picks the local tier (SQLite, else memory) and wraps it behind
// Postgres with failover when a remote is configured.
func buildStore(ctx context.Context, cfg config.Config, pool *pgxpool.Pool, log *zap.Logger, m *metrics.Collectors) (app.Store, func(), error) {
	var local app.Store = memory.NewStore()
	closeLocal := func() {}
	if cfg.SQLite.Path != "" {
		db, err := sqlite.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, nil, err
		}
		local = db
		closeLocal = func() { _ = db.Close() }
	}
	if pool == nil {
		log.Info("no remote store configured, using local store only", zap.String("sqlite", cfg.SQLite.Path))
		return local, closeLocal, nil
	}

	breaker := failover.NewBreaker(
		config.IntOr(cfg.Failover.FailureThreshold, 3),
		config.TTLDuration(cfg.Failover.Cooldown, 30*time.Second),
		time.Now,
	)
	return failover.NewStore(postgres.NewStore(pool), local, breaker, log, m), closeLocal, nil
}

// seedDemoAccounts creates the sample accounts when they are missing.
func seedDemoAccounts(ctx context.Context, store app.AccountStore) error {
	for _, acct := range demoAccounts() {
		_, err := store.GetAccount(ctx, acct.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, domain.ErrAccountNotFound) {
			return err
		}
		if err := store.UpdateAccountScoreAndDailyPoints(ctx, acct); err != nil {
			return err
		}
	}
	return nil
}

func demoAccounts() []domain.Account {
	return []domain.Account{
		{ID: "student-1", Role: domain.RoleStudent, Classes: []string{"algebra"}},
		{ID: "student-2", Role: domain.RoleStudent, Classes: []string{"algebra"}},
	}
}

// sampleQuizzes is the content served when no Postgres is configured.
func sampleQuizzes() []domain.Quiz {
	return []domain.Quiz{
		{
			Class: "algebra",
			Unit:  "unit-1",
			Questions: []domain.Question{
				{
					ID:     "alg-1-q1",
					Prompt: "Solve x + 3 = 7",
					Options: []domain.Option{
						{ID: "a", Text: "3"},
						{ID: "b", Text: "4", Correct: true},
						{ID: "c", Text: "10"},
					},
				},
				{
					ID:     "alg-1-q2",
					Prompt: "Solve 2x = 12",
					Options: []domain.Option{
						{ID: "a", Text: "6", Correct: true},
						{ID: "b", Text: "10"},
						{ID: "c", Text: "24"},
					},
				},
				{
					ID:     "alg-1-q3",
					Prompt: "Solve x / 5 = 2",
					Options: []domain.Option{
						{ID: "a", Text: "2.5"},
						{ID: "b", Text: "7"},
						{ID: "c", Text: "10", Correct: true},
					},
				},
			},
		},
	}
}

// resolvePort prefers the flag or PORT, then server.port, then 8080.
func resolvePort(flagPort, configPort string) string {
	if flagPort != "" {
		return flagPort
	}
	if configPort != "" {
		return configPort
	}
	return "8080"
}
