package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cv-evaluation-service/internal/config"
	"cv-evaluation-service/internal/domain/ports/adapter"
	llmAdapters "cv-evaluation-service/internal/infra/adapters/llm"
	pg "cv-evaluation-service/internal/infra/db/postgres"
	"cv-evaluation-service/internal/infra/logging"
	"cv-evaluation-service/internal/infra/metrics"
	red "cv-evaluation-service/internal/infra/redis"
	"cv-evaluation-service/internal/infra/retrieval"
	"cv-evaluation-service/internal/infra/sched"
	"cv-evaluation-service/internal/infra/security"
	"cv-evaluation-service/internal/infra/storage"
	"cv-evaluation-service/internal/infra/web"
	"cv-evaluation-service/internal/infra/worker"
	"cv-evaluation-service/internal/usecase"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logging, relaxed validation)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 10)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				st := pool.Stat()
				metrics.SetDBPoolStats(st.TotalConns(), st.IdleConns(), st.AcquiredConns())
			}
		}
	}()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	locker := red.NewLocker(redisClient)

	// ---- Repositories ----
	tm := pg.NewTxManager(pool)
	jobRepo := pg.NewJobRepo(pool, tm)
	docRepo := pg.NewDocumentRepo(pool)

	// ---- LLM provider ----
	var llm adapter.LLMClient
	var embedder adapter.Embedder
	switch cfg.LLM.Provider {
	case "gemini":
		client, err := llmAdapters.NewGeminiClient(ctx, cfg.LLM.GeminiKey, cfg.LLM.Model, cfg.LLM.EmbeddingModel)
		if err != nil {
			logger.Fatal().Err(err).Msg("gemini client")
		}
		llm, embedder = client, client
	case "openai":
		client, err := llmAdapters.NewOpenAIClient(cfg.LLM.OpenAIKey, cfg.LLM.OpenAIBaseURL, cfg.LLM.Model, cfg.LLM.EmbeddingModel)
		if err != nil {
			logger.Fatal().Err(err).Msg("openai client")
		}
		llm, embedder = client, client
	default:
		logger.Fatal().Str("provider", cfg.LLM.Provider).Msg("unknown llm provider")
	}
	logger.Info().Str("provider", cfg.LLM.Provider).Str("model", cfg.LLM.Model).Msg("llm provider configured")
	retryLLM := llmAdapters.NewRetryClient(llm, cfg.LLM.Provider, cfg.LLM.Model, cfg.Retry.MaxAttempts, cfg.Retry.BaseDelay, cfg.Retry.MaxDelay, logger)

	// ---- Retrieval ----
	retriever, err := retrieval.NewQdrantRetriever(cfg.Qdrant, embedder)
	if err != nil {
		logger.Fatal().Err(err).Msg("qdrant")
	}

	// ---- Storage ----
	var cipher storage.TextCipher
	if cfg.Security.EncryptionKey != "" {
		enc, err := security.NewEncryptionService(cfg.Security.EncryptionKey)
		if err != nil {
			logger.Fatal().Err(err).Msg("encryption key")
		}
		cipher = enc
		logger.Info().Msg("at-rest encryption of parsed documents enabled")
	}
	docService, err := storage.NewDocumentService(docRepo, storage.NewPDFExtractor(), cipher, cfg.Server.UploadDir, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("document storage")
	}

	// ---- Pipeline ----
	prompts := usecase.NewPromptBuilder(cfg.LLM.PromptTokenBudget)
	cvStage := usecase.NewCVStage(retryLLM, retriever, prompts, cfg, logger)
	projectStage := usecase.NewProjectStage(retryLLM, retriever, prompts, cfg, logger)
	summaryStage := usecase.NewSummaryStage(retryLLM, prompts, cfg, logger)
	orchestrator := usecase.NewOrchestrator(jobRepo, docService, cvStage, projectStage, summaryStage, logger)
	evalUC := usecase.NewEvaluationUseCase(jobRepo, docRepo, logger)

	// ---- Workers ----
	pool2 := worker.NewPool(cfg.Pipeline.Workers, logger)
	pool2.Start(ctx)
	processor := worker.NewJobProcessor(jobRepo, orchestrator, locker,
		cfg.Redis.LockTTL, cfg.Pipeline.JobTimeout, cfg.Pipeline.PollInterval, logger)
	go processor.Start(ctx, pool2)

	requeue := sched.NewRequeueWorker(time.Minute, cfg.Pipeline.StaleAfter, jobRepo, logger)
	go requeue.Run(ctx)

	// ---- Public API ----
	apiServer := web.NewServer(docService, evalUC, logger)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("api listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("api server error")
		}
	}()

	// ---- Admin: metrics ----
	adminMux := http.NewServeMux()
	adminMux.Handle("/metrics", promhttp.Handler())
	adminServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.AdminPort),
		Handler:           adminMux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", adminServer.Addr).Msg("admin listening")
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("admin server error")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)
	_ = adminServer.Shutdown(shutdownCtx)
	cancel()
	pool2.Stop()
}
