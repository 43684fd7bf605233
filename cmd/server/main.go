// Package main runs the voting HTTP server with WebSocket, inline workers and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/yansimam/backend/config"
	"github.com/yansimam/backend/internal/auth"
	"github.com/yansimam/backend/internal/identity"
	"github.com/yansimam/backend/internal/middleware"
	"github.com/yansimam/backend/internal/realtime"
	"github.com/yansimam/backend/internal/sessions"
	"github.com/yansimam/backend/internal/votes"
	"github.com/yansimam/backend/internal/voting"
	"github.com/yansimam/backend/internal/worker"
	"github.com/yansimam/backend/pkg/database"
	"github.com/yansimam/backend/pkg/metrics"
	"github.com/yansimam/backend/pkg/monitoring"
	"github.com/yansimam/backend/pkg/queue"
	"github.com/yansimam/backend/pkg/redis"
	"github.com/yansimam/backend/pkg/response"
	"github.com/yansimam/backend/pkg/storage"
)

// submitLockTTL bounds how long one in-flight submission holds its device lock.
const submitLockTTL = 10 * time.Second

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	if err := monitoring.Init(cfg.Sentry.DSN, cfg.Sentry.Environment, logger); err != nil {
		logger.Warn("sentry disabled", zap.Error(err))
	}
	defer monitoring.Flush()

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.URL, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	// Photo upload stays off without a bucket; sessions then rely on the owner's profile photo.
	var (
		sessionPhotos sessions.PhotoStore
		profilePhotos auth.PhotoUploader
	)
	if cfg.AWS.PhotosBucket != "" {
		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:          cfg.AWS.Region,
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
			PhotosBucket:    cfg.AWS.PhotosBucket,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		} else {
			sessionPhotos, profilePhotos = s3Client, s3Client
		}
	}

	m := metrics.New()
	m.RegisterRedis(rdb.Client)

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	locker := redis.NewLocker(rdb.Client, submitLockTTL, logger)

	// Auth
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, profilePhotos, logger)

	// Sessions (owner side) and lookup (voter side)
	sessionRepo := sessions.NewRepository(pool)
	sessionHandler := sessions.NewHandler(sessionRepo, authRepo, sessionPhotos, cfg.Server.PublicBaseURL, logger)
	var lookupStore sessions.Store = sessionRepo
	var sessionCache *sessions.RedisCache
	if cfg.Voting.SessionCacheSec > 0 {
		sessionCache = sessions.NewRedisCache(sessionRepo, rdb.Client, time.Duration(cfg.Voting.SessionCacheSec)*time.Second, logger)
		lookupStore = sessionCache
	}
	lookup := sessions.NewLookup(lookupStore, time.Now, m)

	// Voting
	voteRepo := votes.NewRepository(pool)
	deriver := identity.NewDeriver(identity.NewHasher(cfg.Voting.HashSalt), logger)
	votingService := voting.NewService(lookup, voteRepo, locker, jobQueue, m, logger)
	votingHandler := voting.NewHandler(votingService, deriver, m, logger)
	submitLimit := middleware.RateLimit(middleware.NewRateLimiter(cfg.Voting.SubmitRatePerMin))

	validateToken := func(token string) (uuid.UUID, error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return uuid.Nil, err
		}
		return claims.UserID, nil
	}
	ownerOf := func(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
		s, err := sessionRepo.GetByID(ctx, id)
		if err != nil {
			return uuid.Nil, err
		}
		return s.UserID, nil
	}

	router := gin.New()
	if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		logger.Fatal("trusted proxies", zap.Error(err))
	}
	router.Use(monitoring.Recovery(logger))
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))
	router.SetHTMLTemplate(voting.Templates())

	// Health and metrics
	router.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(ctx); err != nil {
			response.ServiceUnavailable(c, "database unavailable")
			return
		}
		if err := rdb.Healthy(ctx); err != nil {
			response.ServiceUnavailable(c, "redis unavailable")
			return
		}
		response.OK(c, gin.H{"status": "ok"})
	})
	router.GET("/metrics", m.Handler())

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	// Voter-facing API and pages (anonymous)
	router.GET("/api/dimensions", votingHandler.Dimensions)
	router.GET("/api/vote/:token", votingHandler.Open)
	router.POST("/api/vote/:token", submitLimit, votingHandler.Submit)
	router.GET(voting.ThankYouPath, votingHandler.ThankYou)
	router.GET("/vote/:token", votingHandler.Page)
	router.POST("/vote/:token", submitLimit, votingHandler.SubmitForm)

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		api.GET("/me", authHandler.Me)
		api.POST("/me/photo", authHandler.UploadPhoto)

		api.POST("/sessions", sessionHandler.Create)
		api.GET("/sessions", sessionHandler.List)
		api.GET("/sessions/:id/results", sessionHandler.Results)
	}

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws", realtime.ServeWs(hub, validateToken, ownerOf, logger))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Background work (aggregation and expiry sweep) unless a separate worker runs it
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	var workers sync.WaitGroup
	if cfg.Worker.Inline {
		processor := worker.NewAggregationProcessor(jobQueue, voteRepo, sessionRepo, hub, m, logger)
		sweeper := worker.NewExpirySweeper(sessionRepo, invalidator(sessionCache), time.Duration(cfg.Worker.SweepIntervalSec)*time.Second, logger)
		workers.Add(2)
		go func() {
			defer workers.Done()
			processor.Run(workerCtx)
		}()
		go func() {
			defer workers.Done()
			sweeper.Run(workerCtx)
		}()
		logger.Info("inline worker started")
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	workers.Wait()
	logger.Info("server stopped")
}

// invalidator keeps a nil cache from becoming a non-nil interface.
func invalidator(c *sessions.RedisCache) worker.Invalidator {
	if c == nil {
		return nil
	}
	return c
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
