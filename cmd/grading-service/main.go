package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"autograde/internal/common/cache"
	"autograde/internal/common/db"
	commonmw "autograde/internal/common/http/middleware"
	"autograde/internal/common/mq"
	"autograde/internal/common/storage"
	"autograde/internal/grading/controller"
	"autograde/internal/grading/executor"
	"autograde/internal/grading/observer"
	"autograde/internal/grading/repository"
	"autograde/internal/grading/service"
	"autograde/pkg/utils/logger"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/grading_service.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	envFile := flag.String("env", ".env", "Path to env file")
	issueToken := flag.String("issue-token", "", "Print a JWT for role:subject and exit")
	issueTTL := flag.Duration("issue-ttl", 24*time.Hour, "Lifetime of an issued token")
	flag.Parse()

	if err := loadEnvFile(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return
	}
	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		return
	}
	auth := commonmw.NewAuthenticator(appCfg.Auth.JWTSecret, appCfg.Auth.Issuer)

	if *issueToken != "" {
		role, subject, err := parseIssueTarget(*issueToken)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(2)
		}
		token, err := auth.Issue(subject, role, *issueTTL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "issue token failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		return
	}
	defer func() {
		_ = logger.Sync()
	}()
	ctx := context.Background()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	var metrics observer.MetricsRecorder = observer.Nop{}
	if appCfg.Metrics.Enabled {
		prom, err := observer.NewPrometheus(registry)
		if err != nil {
			logger.Error(ctx, "init metrics failed", zap.Error(err))
			return
		}
		metrics = prom
	}

	judge0, err := executor.NewJudge0Client(appCfg.Executor.toExecutorConfig(), metrics)
	if err != nil {
		logger.Error(ctx, "init executor failed", zap.Error(err))
		return
	}
	grader, err := service.NewGrader(service.GraderConfig{
		Executor:       judge0,
		Metrics:        metrics,
		MaxParallel:    appCfg.Grading.MaxParallel,
		CallTimeoutPad: appCfg.Grading.CallTimeoutPad,
		MinCallTimeout: appCfg.Grading.MinCallTimeout,
	})
	if err != nil {
		logger.Error(ctx, "init grader failed", zap.Error(err))
		return
	}

	var resultCache cache.Cache
	if appCfg.Redis.Addr != "" {
		redisCache, err := cache.NewRedisCacheWithConfig(&appCfg.Redis)
		if err != nil {
			logger.Error(ctx, "init redis failed", zap.Error(err))
			return
		}
		defer func() {
			_ = redisCache.Close()
		}()
		resultCache = redisCache
	}

	var (
		mysqlDB     db.Database
		resultStore *repository.ResultStore
	)
	if appCfg.Database.DSN != "" {
		mysqlDB, err = db.NewMySQLWithConfig(&appCfg.Database)
		if err != nil {
			logger.Error(ctx, "init database failed", zap.Error(err))
			return
		}
		defer func() {
			_ = mysqlDB.Close()
		}()
		resultStore = repository.NewResultStore(mysqlDB)
		if err := resultStore.EnsureSchema(ctx); err != nil {
			logger.Error(ctx, "init result schema failed", zap.Error(err))
			return
		}
	}
	results := repository.NewResultRepository(resultCache, resultStore, appCfg.Grading.ResultTTL, appCfg.Grading.EmptyResultTTL)

	var packs service.TestPackStore
	if appCfg.MinIO.Endpoint != "" {
		objStorage, err := storage.NewMinIOStorage(appCfg.MinIO)
		if err != nil {
			logger.Error(ctx, "init minio failed", zap.Error(err))
			return
		}
		if err := objStorage.EnsureBucket(ctx, appCfg.TestPack.Bucket); err != nil {
			logger.Error(ctx, "init test pack bucket failed", zap.Error(err))
			return
		}
		packs = service.NewTestPackLoader(objStorage, appCfg.TestPack.Bucket, appCfg.TestPack.Timeout, appCfg.TestPack.MaxBytes)
	}

	var (
		queue  *mq.KafkaQueue
		events service.EventPublisher
	)
	if len(appCfg.Kafka.Brokers) > 0 {
		queue, err = mq.NewKafkaQueue(appCfg.Kafka.toMQConfig())
		if err != nil {
			logger.Error(ctx, "init kafka failed", zap.Error(err))
			return
		}
		defer func() {
			_ = queue.Close()
		}()
		events = repository.NewMQResultEventPublisher(queue, appCfg.Kafka.ResultTopic)
	}

	svcCfg := service.Config{
		Grader:            grader,
		Results:           results,
		Events:            events,
		Packs:             packs,
		Metrics:           metrics,
		JobTopic:          appCfg.Kafka.JobTopic,
		MaxConcurrentJobs: appCfg.Grading.MaxConcurrentJobs,
		SlotTimeout:       appCfg.Grading.SlotTimeout,
		StatusTimeout:     appCfg.Grading.StatusTimeout,
	}
	if queue != nil {
		svcCfg.Producer = queue
	}
	gradingSvc, err := service.NewService(svcCfg)
	if err != nil {
		logger.Error(ctx, "init grading service failed", zap.Error(err))
		return
	}

	if queue != nil {
		if err := queue.Subscribe(ctx, appCfg.Kafka.JobTopic, gradingSvc.HandleMessage, appCfg.Kafka.subscribeOptions()); err != nil {
			logger.Error(ctx, "subscribe kafka failed", zap.Error(err))
			return
		}
		if err := queue.Start(); err != nil {
			logger.Error(ctx, "start kafka consumer failed", zap.Error(err))
			return
		}
		logger.Info(ctx, "grading job consumer started", zap.String("topic", appCfg.Kafka.JobTopic))
	}

	httpServer := buildHTTPServer(appCfg, gradingSvc, auth, registry, healthChecks(resultCache, mysqlDB, queue))
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		logger.Error(ctx, "init http listener failed", zap.Error(err))
		return
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "grading http server started", zap.String("addr", appCfg.Server.Addr))
		errCh <- httpServer.Serve(listener)
	}()

	shutdownCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "http server stopped", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Info(ctx, "shutdown signal received")
	}

	drainCtx, cancel := context.WithTimeout(ctx, defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(drainCtx); err != nil {
		logger.Error(ctx, "http server shutdown failed", zap.Error(err))
	}
	if queue != nil {
		_ = queue.Stop()
	}
}

type healthCheck func(ctx context.Context) error

func healthChecks(resultCache cache.Cache, database db.Database, queue *mq.KafkaQueue) map[string]healthCheck {
	checks := make(map[string]healthCheck)
	if resultCache != nil {
		checks["redis"] = resultCache.Ping
	}
	if database != nil {
		checks["mysql"] = database.Ping
	}
	if queue != nil {
		checks["kafka"] = queue.Ping
	}
	return checks
}

func buildHTTPServer(cfg *AppConfig, svc controller.GradingService, auth *commonmw.Authenticator, registry *prometheus.Registry, checks map[string]healthCheck) *http.Server {
	zl := logger.GetLogger().Zap()
	router := gin.New()
	router.Use(ginzap.Ginzap(zl, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(zl, true))
	router.Use(commonmw.TraceContextMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		status := gin.H{}
		code := http.StatusOK
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status[name] = err.Error()
				code = http.StatusServiceUnavailable
				continue
			}
			status[name] = "ok"
		}
		c.JSON(code, status)
	})
	if cfg.Metrics.Enabled {
		router.GET(cfg.Metrics.Path, gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})))
	}

	api := router.Group("/api/v1/grading")
	controller.NewGradingController(svc).RegisterRoutes(api, auth)

	return &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}
