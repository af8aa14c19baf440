package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/spark-ai/internal/config"
	"github.com/example/spark-ai/internal/grpcclient"
	"github.com/example/spark-ai/internal/handlers"
	"github.com/example/spark-ai/internal/imageprocessor"
	"github.com/example/spark-ai/internal/logging"
	"github.com/example/spark-ai/internal/repository"
	"github.com/example/spark-ai/internal/stats"
	"github.com/example/spark-ai/internal/usecase"
)

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	logger, err := logging.NewLogger()
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	var (
		enhancer  imageprocessor.Enhancer
		generator imageprocessor.ContentGenerator
	)
	if cfg.Processor.BackendAddr != "" {
		backend, err := grpcclient.DialBackend(ctx, cfg.Processor.BackendAddr, logger)
		if err != nil {
			logger.Fatal("failed to connect to inference backend", zap.Error(err))
		}
		defer backend.Close()
		enhancer, generator = backend, backend
		logger.Info("using remote inference backend", zap.String("addr", cfg.Processor.BackendAddr))
	} else {
		sim := imageprocessor.NewSimulator(cfg.Processor.Delay, logger)
		enhancer, generator = sim, sim
		logger.Info("using simulated inference", zap.Duration("delay", cfg.Processor.Delay))
	}

	opts := []usecase.Option{
		usecase.WithMaxUploadSize(cfg.Processor.MaxUploadSize),
		usecase.WithResultTTL(cfg.Store.ResultTTL),
	}
	var (
		cache usecase.Cache
		repo  usecase.RecordRepository
	)
	if cfg.Store.RedisAddr != "" {
		redisCtx, redisCancel := context.WithTimeout(ctx, 5*time.Second)
		defer redisCancel()
		redisClient := initRedis(redisCtx, cfg.Store.RedisAddr, logger)
		defer redisClient.Close()
		cache = usecase.NewRedisCache(redisClient)
	}
	if cfg.Store.DatabaseDSN != "" {
		db := initDatabase(ctx, cfg.Store.DatabaseDSN, logger)
		processingRepo := repository.NewProcessingRepository(db, logger)
		if err := processingRepo.AutoMigrate(ctx); err != nil {
			logger.Fatal("auto migrate failed", zap.Error(err))
		}
		repo = processingRepo
	}
	if cache != nil || repo != nil {
		opts = append(opts, usecase.WithResultStore(cache, repo))
	}

	uc := usecase.NewSparkUseCase(enhancer, generator, stats.New(), logger, opts...)

	r := gin.New()
	r.Use(gin.Recovery(), logging.RequestLogger(logger))
	r.MaxMultipartMemory = cfg.Processor.MaxUploadSize
	handlers.RegisterRoutes(r, uc)

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: withCORS(r, cfg.Server.AllowedOrigins),
	}

	logger.Info("Spark AI service listening", zap.String("addr", cfg.Server.Addr))
	if err := serveHTTPServer(server, cfg.Server.ShutdownTimeout, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

// withCORS admits browser calls from the configured front-end origins only.
func withCORS(next http.Handler, allowedOrigins []string) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{logging.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	})(next)
}

func initDatabase(ctx context.Context, dsn string, zapLogger *zap.Logger) *gorm.DB {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		zapLogger.Fatal("failed to connect to database", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		zapLogger.Fatal("failed to access db handle", zap.Error(err))
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		zapLogger.Fatal("database ping failed", zap.Error(err))
	}

	return db
}

func initRedis(ctx context.Context, addr string, zapLogger *zap.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		zapLogger.Fatal("redis connection failed", zap.Error(err))
	}
	return client
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	var (
		sigCh       <-chan os.Signal
		stopSignals func()
	)

	if signalCh != nil {
		sigCh = signalCh
		stopSignals = func() {}
	} else {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		sigCh = ch
		stopSignals = func() {
			signal.Stop(ch)
		}
	}
	defer stopSignals()

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
