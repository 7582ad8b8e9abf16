package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"scenarioflow/internal/dispatch"
	"scenarioflow/internal/graph"
	"scenarioflow/internal/push"
	"scenarioflow/internal/schedule"
	"scenarioflow/internal/state"
	"scenarioflow/internal/storage"
	"scenarioflow/pkg/api/handlers"
	"scenarioflow/pkg/api/middleware"
)

const version = "0.1.0"

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	if os.Getenv("ENV") != "production" {
		log.SetLevel(logrus.DebugLevel)
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	log.WithField("version", version).Info("starting scenarioflow server")

	// Database
	dbCfg := storage.DefaultConfig()
	if err := storage.RunMigrations(dbCfg, os.Getenv("MIGRATIONS_PATH")); err != nil {
		log.WithError(err).Fatal("failed to run migrations")
	}
	db, err := storage.NewDB(dbCfg)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()

	scenarioRepo := storage.NewScenarioRepository(db.DB)
	taskRepo := storage.NewTaskHistoryRepository(db.DB)
	notifRepo := storage.NewNotificationRepository(db.DB)

	// Redis, for push event fan-out
	redisClient := redis.NewClient(&redis.Options{
		Addr: envOr("REDIS_ADDR", "localhost:6379"),
	})
	defer redisClient.Close()
	publisher := state.NewRedisPublisher(redisClient)

	// NATS, for step dispatch
	nc, err := nats.Connect(envOr("NATS_URL", nats.DefaultURL),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to NATS")
	}
	defer nc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Dispatcher and its result feed
	dispatcher := dispatch.NewDispatcher(dispatch.NewNATSStepQueue(nc), taskRepo, notifRepo, publisher, log, nil)
	results := dispatch.NewResultConsumer(nc, dispatcher, log)
	if err := results.Start(ctx); err != nil {
		log.WithError(err).Fatal("failed to start result consumer")
	}
	defer results.Stop()

	// Cron scheduler driving scheduled runs
	scheduler := schedule.NewScheduler(time.Local, func(scenarioID string, firedAt time.Time) {
		s, err := scenarioRepo.Get(ctx, scenarioID)
		if err != nil {
			log.WithField("scenario", scenarioID).WithError(err).Error("failed to load scheduled scenario")
			return
		}
		if !s.IsActive {
			return
		}
		if err := dispatcher.RunScenario(ctx, s); err != nil {
			log.WithField("scenario", scenarioID).WithError(err).Warn("scheduled run not started")
		}
	}, log)
	registerActiveScenarios(ctx, scenarioRepo, scheduler, log)
	scheduler.Start()
	defer scheduler.Stop()

	if seedDir := os.Getenv("SEED_DIR"); seedDir != "" {
		seedScenarios(ctx, seedDir, scenarioRepo, scheduler, log)
	}

	// Websocket push gateway
	jwtCfg := middleware.DefaultJWTConfig()
	gateway := push.NewGateway(middleware.VerifyToken(jwtCfg), log)
	go func() {
		if err := gateway.Run(ctx, publisher); err != nil && ctx.Err() == nil {
			log.WithError(err).Error("push gateway stopped")
		}
	}()
	defer gateway.CloseAll()

	router := buildRouter(log, jwtCfg, gateway, scenarioRepo, taskRepo, notifRepo, scheduler, dispatcher)

	srv := &http.Server{
		Addr:    ":" + envOr("PORT", "8080"),
		Handler: router,
	}
	go func() {
		log.WithField("addr", srv.Addr).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("forced shutdown")
	}
}

func buildRouter(
	log *logrus.Logger,
	jwtCfg *middleware.JWTConfig,
	gateway *push.Gateway,
	scenarioRepo storage.ScenarioRepository,
	taskRepo storage.TaskHistoryRepository,
	notifRepo storage.NotificationRepository,
	scheduler *schedule.Scheduler,
	dispatcher *dispatch.Dispatcher,
) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(log))
	router.Use(middleware.ErrorHandler())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "version": version})
	})
	router.GET("/ws", gin.WrapF(gateway.HandleWebSocket))

	scenarioHandler := handlers.NewScenarioHandler(scenarioRepo, scheduler, log)
	taskHandler := handlers.NewTaskHandler(taskRepo, scenarioRepo, dispatcher)
	notifHandler := handlers.NewNotificationHandler(notifRepo)

	rl := middleware.NewRateLimiter(10, 20)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.JWTAuth(jwtCfg))
	v1.Use(rl.RateLimit())
	{
		v1.GET("/scenarios", scenarioHandler.ListScenarios)
		v1.POST("/scenarios", scenarioHandler.CreateScenario)
		v1.GET("/scenarios/:id", scenarioHandler.GetScenario)
		v1.PUT("/scenarios/:id", scenarioHandler.ReplaceScenario)
		v1.DELETE("/scenarios/:id", scenarioHandler.DeleteScenario)
		v1.POST("/scenarios/:id/active", scenarioHandler.SetActive)
		v1.POST("/scenarios/:id/run", taskHandler.RunScenario)

		v1.GET("/tasks", taskHandler.ListTaskHistory)
		v1.POST("/tasks", taskHandler.LaunchAction)
		v1.POST("/tasks/:id/cancel", taskHandler.CancelTask)
		v1.POST("/tasks/:id/retry", taskHandler.RetryTask)

		v1.GET("/notifications", notifHandler.ListNotifications)
		v1.POST("/notifications/read", notifHandler.MarkAllRead)
	}

	return router
}

// registerActiveScenarios restores cron registrations after a restart
func registerActiveScenarios(ctx context.Context, repo storage.ScenarioRepository, scheduler *schedule.Scheduler, log *logrus.Logger) {
	active := true
	scenarios, err := repo.List(ctx, storage.ScenarioFilters{IsActive: &active})
	if err != nil {
		log.WithError(err).Error("failed to list active scenarios")
		return
	}
	for _, s := range scenarios {
		if err := scheduler.Register(s); err != nil {
			log.WithField("scenario", s.ID).WithError(err).Warn("failed to register scenario")
		}
	}
	log.WithField("count", len(scenarios)).Info("restored scenario schedules")
}

// seedScenarios loads scenario definition files from a directory,
// skipping any that already exist by name for the seed owner.
func seedScenarios(ctx context.Context, dir string, repo storage.ScenarioRepository, scheduler *schedule.Scheduler, log *logrus.Logger) {
	parser := graph.NewParser()
	owner := envOr("SEED_OWNER", "seed")

	existing, err := repo.List(ctx, storage.ScenarioFilters{OwnerID: owner})
	if err != nil {
		log.WithError(err).Error("failed to list seed scenarios")
		return
	}
	byName := make(map[string]bool, len(existing))
	for _, s := range existing {
		byName[s.Name] = true
	}

	paths, _ := filepath.Glob(filepath.Join(dir, "*.yaml"))
	jsonPaths, _ := filepath.Glob(filepath.Join(dir, "*.json"))
	paths = append(paths, jsonPaths...)

	for _, path := range paths {
		s, err := parser.ParseFile(path)
		if err != nil {
			log.WithField("file", path).WithError(err).Warn("skipping invalid scenario file")
			continue
		}
		if byName[s.Name] {
			continue
		}
		s.OwnerID = owner
		if err := repo.Create(ctx, s); err != nil {
			log.WithField("file", path).WithError(err).Warn("failed to seed scenario")
			continue
		}
		if err := scheduler.Register(s); err != nil {
			log.WithField("scenario", s.ID).WithError(err).Warn("failed to register seeded scenario")
		}
		log.WithFields(logrus.Fields{"file": path, "name": s.Name}).Info("seeded scenario")
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
