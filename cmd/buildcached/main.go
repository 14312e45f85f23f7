package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/buildless/buildcached/internal/application/cache"
	"github.com/buildless/buildcached/internal/application/policy"
	"github.com/buildless/buildcached/internal/application/ports"
	"github.com/buildless/buildcached/internal/application/project"
	"github.com/buildless/buildcached/internal/config"
	infraauth "github.com/buildless/buildcached/internal/infrastructure/auth"
	"github.com/buildless/buildcached/internal/infrastructure/blob"
	httprouter "github.com/buildless/buildcached/internal/infrastructure/http"
	"github.com/buildless/buildcached/internal/infrastructure/http/handlers"
	"github.com/buildless/buildcached/internal/infrastructure/http/middleware"
	"github.com/buildless/buildcached/internal/infrastructure/locks"
	"github.com/buildless/buildcached/internal/infrastructure/persistence/db"
	"github.com/buildless/buildcached/internal/infrastructure/persistence/postgres"
	"github.com/buildless/buildcached/internal/infrastructure/queue"
	"github.com/buildless/buildcached/internal/infrastructure/security"
	"github.com/buildless/buildcached/internal/infrastructure/tagstore"
)

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("connect to database")
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("ping database")
	}

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		opt, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatal().Err(err).Msg("parse REDIS_URL")
		}
		redisClient = redis.NewClient(opt)
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Msg("redis ping failed; continuing without redis")
			redisClient = nil
		}
	}

	blobs, err := blob.NewMinioStore(ctx, blob.MinioConfig{
		Endpoint:  cfg.Blob.Endpoint,
		Bucket:    cfg.Blob.Bucket,
		AccessKey: cfg.Blob.AccessKey,
		SecretKey: cfg.Blob.SecretKey,
		UseSSL:    cfg.Blob.UseSSL,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("connect to blob store")
	}

	var tags ports.TagStore
	if redisClient != nil {
		tags = tagstore.NewRedisStore(redisClient)
	} else {
		log.Warn().Msg("redis unavailable; tag index is in-memory and non-durable")
		tags = tagstore.NewMemoryStore()
	}

	queries := db.New(pool)
	projectRepo := postgres.NewProjectRepository(queries)

	hasher := security.NewAPIKeyHasher(security.DefaultAPIKeyParams())
	tokenIssuer := infraauth.NewTokenIssuer([]byte(cfg.Auth.JWTSecret), cfg.Auth.Issuer, cfg.Auth.Audience)

	engine := policy.NewEngine()
	writeLocks := locks.NewMemoryLocker()

	var taskEnqueuer ports.TaskEnqueuer
	var asynqOpt asynq.RedisClientOpt
	if redisClient != nil {
		redisOpt, _ := redis.ParseURL(cfg.Redis.URL)
		asynqOpt = asynq.RedisClientOpt{Addr: redisOpt.Addr, Password: redisOpt.Password, DB: redisOpt.DB}
		asynqEnq, err := queue.NewAsynqEnqueuer(asynqOpt, log)
		if err != nil {
			log.Fatal().Err(err).Msg("create asynq enqueuer")
		}
		defer asynqEnq.Close()
		taskEnqueuer = asynqEnq
	} else {
		taskEnqueuer = queue.NewNoopEnqueuer()
	}

	manager := cache.NewManager(blobs, tags, engine, writeLocks, taskEnqueuer, log, cache.Config{
		LockWait:      time.Duration(cfg.Cache.LockWaitMS) * time.Millisecond,
		MaxObjectSize: cfg.Cache.MaxObjectBytes,
	})

	var asynqWorker *queue.Worker
	if redisClient != nil {
		asynqWorker = queue.NewWorker(asynqOpt, manager, blobs, tags, projectRepo, redisClient, log)
		go func() {
			if err := asynqWorker.Run(); err != nil {
				log.Warn().Err(err).Msg("asynq worker stopped")
			}
		}()
	}

	createProjectUC := project.NewCreateProject(projectRepo, hasher)
	updateSettingsUC := project.NewUpdateSettings(projectRepo)
	archiveUC := project.NewArchive(projectRepo)
	scheduleDeleteUC := project.NewScheduleDelete(projectRepo, taskEnqueuer)
	rotateKeyUC := project.NewRotateProjectKey(projectRepo, hasher)

	cacheHandler := handlers.NewCacheHandler(manager, projectRepo)
	projectsHandler := handlers.NewProjectsHandler(projectRepo, createProjectUC, updateSettingsUC, archiveUC, scheduleDeleteUC, rotateKeyUC)
	healthHandler := handlers.NewHealthHandler(pool, redisClient)

	principal := middleware.NewPrincipalResolver(tokenIssuer, projectRepo, hasher)
	requireAdmin := middleware.RequireAdminSecret(cfg.Auth.AdminSecret)

	ipLimit, err := middleware.NewIPRateLimiter(cfg.RateLimit.PerIP)
	if err != nil {
		log.Fatal().Err(err).Msg("create IP rate limiter")
	}
	projectLimit, err := middleware.NewProjectRateLimiter(cfg.RateLimit.PerProject)
	if err != nil {
		log.Fatal().Err(err).Msg("create project rate limiter")
	}
	secureMiddleware := middleware.NewSecure(middleware.SecureOptions(false))

	router := httprouter.NewRouter(httprouter.RouterConfig{
		CacheHandler:     cacheHandler,
		ProjectsHandler:  projectsHandler,
		HealthHandler:    healthHandler,
		Principal:        principal,
		RequireAdmin:     requireAdmin,
		Log:              log,
		Secure:           secureMiddleware,
		IPRateLimit:      ipLimit,
		ProjectRateLimit: projectLimit,
		Metrics:          true,
		AllowedOrigins:   cfg.Server.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
		// Long read/write timeouts: cache bodies can be large and slow links
		// are common in CI.
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 5 * time.Minute,
	}

	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
	if asynqWorker != nil {
		asynqWorker.Shutdown()
	}
	log.Info().Msg("server stopped")
}
