package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/bryanwahyu/solidity-sentinel/internal/application"
	appanalysis "github.com/bryanwahyu/solidity-sentinel/internal/application/analysis"
	"github.com/bryanwahyu/solidity-sentinel/internal/config"
	domai "github.com/bryanwahyu/solidity-sentinel/internal/domain/ai"
	domanalysis "github.com/bryanwahyu/solidity-sentinel/internal/domain/analysis"
	domcontracts "github.com/bryanwahyu/solidity-sentinel/internal/domain/contracts"
	"github.com/bryanwahyu/solidity-sentinel/internal/infra/ai/ollama"
	aiopenai "github.com/bryanwahyu/solidity-sentinel/internal/infra/ai/openai"
	mysqlp "github.com/bryanwahyu/solidity-sentinel/internal/infra/db/mysql"
	postgresp "github.com/bryanwahyu/solidity-sentinel/internal/infra/db/postgres"
	"github.com/bryanwahyu/solidity-sentinel/internal/infra/httpserver"
	minioStore "github.com/bryanwahyu/solidity-sentinel/internal/infra/storage"
	"github.com/bryanwahyu/solidity-sentinel/internal/middleware"
)

func main() {
	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()

	// connect database (driver from config)
	var db *sql.DB
	switch cfg.Database.Driver {
	case "postgres":
		db, err = postgresp.Connect(ctx, cfg.PostgresDSN())
	default:
		db, err = mysqlp.Connect(ctx, cfg.MySQLDSN())
	}
	if err != nil {
		logger.Fatal("database connect error", zap.Error(err))
	}
	defer db.Close()

	// init repositories
	var (
		contractRepo = anyContractRepo(cfg.Database.Driver, db)
		runRepo      = anyAnalysisRepo(cfg.Database.Driver, db)
	)

	// init model client (provider from config)
	var aiClient domai.Client
	switch cfg.AI.Provider {
	case "openai":
		aiClient = aiopenai.NewClient(cfg.AI.BaseURL, cfg.AI.APIKey)
	default:
		aiClient = ollama.NewClient(cfg.Ollama.Host, logger)
	}

	// init report store (optional)
	var artifacts appanalysis.ArtifactStore
	if cfg.Minio.Enabled {
		store, err := minioStore.New(ctx,
			cfg.Minio.Endpoint,
			cfg.Minio.Region,
			cfg.Minio.BucketName,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.UseSSL,
		)
		if err != nil {
			logger.Fatal("minio init error", zap.Error(err))
		}
		artifacts = store
	}

	// init orchestrator service
	svc := &appanalysis.Service{
		Contracts:        contractRepo,
		Runs:             runRepo,
		AI:               aiClient,
		Artifacts:        artifacts,
		Clock:            application.SystemClock{},
		Log:              logger,
		DetectionModel:   cfg.Ollama.DetectionModel,
		ExplanationModel: cfg.Ollama.ExplanationModel,
		ExplainWorkers:   cfg.Analysis.ExplainWorkers,
	}

	checkers := map[string]middleware.HealthChecker{
		"database": &middleware.DatabaseHealthChecker{DB: db},
		"model":    &middleware.ModelServiceHealthChecker{Client: aiClient},
	}

	mux := chi.NewRouter()
	mux.Mount("/", httpserver.NewRouter(svc, logger, cfg.Analysis.MaxCodeSizeKB, checkers))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 320 * time.Second, // analyses run synchronously and may wait on the model
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	logger.Info("shutting down server")

	ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}
}

func anyContractRepo(driver string, db *sql.DB) domcontracts.Repository {
	if driver == "postgres" {
		return postgresp.NewContractRepository(db)
	}
	return mysqlp.NewContractRepository(db)
}

func anyAnalysisRepo(driver string, db *sql.DB) domanalysis.Repository {
	if driver == "postgres" {
		return postgresp.NewAnalysisRepository(db)
	}
	return mysqlp.NewAnalysisRepository(db)
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Logging.Development {
		return zap.NewDevelopment()
	}
	zcfg := zap.NewProductionConfig()
	if cfg.Logging.Level != "" {
		lvl, err := zap.ParseAtomicLevel(cfg.Logging.Level)
		if err != nil {
			return nil, err
		}
		zcfg.Level = lvl
	}
	return zcfg.Build()
}
