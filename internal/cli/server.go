package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"quiz-battle-service/internal/battle"
	"quiz-battle-service/internal/config"
	"quiz-battle-service/internal/domain"
	"quiz-battle-service/internal/infra/memory"
	infrapg "quiz-battle-service/internal/infra/postgres"
	infraredis "quiz-battle-service/internal/infra/redis"
	"quiz-battle-service/internal/invite"
	"quiz-battle-service/internal/lobby"
	"quiz-battle-service/internal/logger"
	"quiz-battle-service/internal/notify"
	"quiz-battle-service/internal/result"
	"quiz-battle-service/internal/store"
	transport "quiz-battle-service/internal/transport/http"
)

// NewServeCmd builds the CLI subcommand to start the coordinator server.
func NewServeCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the battle coordinator",
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
	log, err := logger.New(cfg.Env)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if cfg.Postgres.URL != "" {
		if err := runMigrations(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	timings := cfg.Battle.Timings()
	category := cfg.Questions.DefaultCategory
	if category == "" {
		category = "general"
	}
	difficulty := cfg.Questions.DefaultDifficulty
	if difficulty == "" {
		difficulty = "easy"
	}

	var redisClient *goredis.Client
	if cfg.Redis.Addr != "" {
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	redisTTL := config.Duration(cfg.Redis.TTL, 0)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	// Question bank: postgres behind the redis cache in production, the
	// static sample bank otherwise.
	questionTTL := config.Duration(cfg.Questions.TTL, 10*time.Minute)
	staticBank := memory.NewQuestionSource(sampleQuestions(category, difficulty))
	var questions lobby.QuestionSource = staticBank
	if redisClient != nil {
		var loader infraredis.QuestionLoader = staticBank
		if pool != nil {
			loader = infrapg.NewQuestionSource(pool)
		}
		questions = infraredis.NewQuestionRepository(redisClient, loader, questionTTL)
	}

	var sessions store.SessionStore
	var presence presenceStore
	var invitations invite.Store
	if redisClient != nil {
		sessions = infraredis.NewSessionStore(redisClient, redisTTL)
		presence = infraredis.NewPresenceStore(redisClient, timings.PresenceStaleness)
		invitations = infraredis.NewInvitationStore(redisClient, 24*time.Hour)
	} else {
		sessions = store.NewMemory()
		presence = memory.NewPresenceStore(timings.PresenceStaleness)
		invitations = memory.NewInvitationStore()
	}

	memScores := memory.NewScoreStore()
	var scores result.ScoreStore = memScores
	var achievements result.AchievementStore = memScores
	if pool != nil {
		pgScores := infrapg.NewScoreStore(pool)
		scores = pgScores
		achievements = pgScores
	}
	if redisClient != nil {
		scores = &mirroredScores{primary: scores, board: infraredis.NewLeaderboard(redisClient), log: log}
	}

	finalizer := result.NewFinalizer(sessions, scores, achievements, log)
	coordinator := battle.NewCoordinator(sessions, presence, finalizer, timings, log)
	defer coordinator.Stop()

	matcher := lobby.NewMatcher(sessions, questions, presence, coordinator, timings, category, difficulty, log)
	inviter := invite.NewManager(invitations, sessions, questions, coordinator, timings, category, difficulty, log)
	bridge := notify.NewBridge(sessions, log)
	wsHandler := transport.NewWSHandler(matcher, inviter, coordinator, bridge, presence, log)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info("starting battle service", zap.String("port", finalPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server stopped", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down")
	case <-ctx.Done():
		log.Info("context canceled, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// presenceStore is the union of the presence capabilities the wiring needs.
type presenceStore interface {
	SetOnline(ctx context.Context, userID, displayName string, online bool) error
	Heartbeat(ctx context.Context, userID string) error
	Get(ctx context.Context, userID string) (domain.Presence, error)
	ListOnline(ctx context.Context) ([]domain.Presence, error)
}

// mirroredScores writes results to the authoritative store and mirrors points
// into the redis leaderboard; the mirror is best-effort.
type mirroredScores struct {
	primary result.ScoreStore
	board   *infraredis.Leaderboard
	log     *zap.Logger
}

func (m *mirroredScores) ApplyResult(ctx context.Context, userID string, points int, won bool) error {
	if err := m.primary.ApplyResult(ctx, userID, points, won); err != nil {
		return err
	}
	if err := m.board.Add(ctx, userID, points); err != nil {
		m.log.Warn("leaderboard mirror", zap.String("user", userID), zap.Error(err))
	}
	return nil
}

// sampleQuestions provides a minimal bank for redis-less demo runs; swap in
// the postgres bank in production.
func sampleQuestions(category, difficulty string) []domain.Question {
	prompts := []struct {
		id, prompt, wrong, right string
	}{
		{"q1", "What is 2 + 2?", "3", "4"},
		{"q2", "What is 3 * 3?", "6", "9"},
		{"q3", "What is 10 - 4?", "5", "6"},
		{"q4", "What is 12 / 4?", "4", "3"},
		{"q5", "What is 5 + 6?", "10", "11"},
		{"q6", "What is 7 * 2?", "12", "14"},
	}
	questions := make([]domain.Question, 0, len(prompts))
	for _, p := range prompts {
		questions = append(questions, domain.Question{
			ID:         p.id,
			Prompt:     p.prompt,
			Category:   category,
			Difficulty: difficulty,
			Options: []domain.Option{
				{ID: "o1", Text: p.wrong, Correct: false},
				{ID: "o2", Text: p.right, Correct: true},
			},
		})
	}
	return questions
}
