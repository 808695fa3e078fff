package main

import (
	"context"
	"flag"
	"log"
	"strings"

	"cv-evaluation-service/internal/config"
	"cv-evaluation-service/internal/domain/model"
	pg "cv-evaluation-service/internal/infra/db/postgres"
	"cv-evaluation-service/internal/infra/logging"
	"cv-evaluation-service/internal/infra/redis"
	"cv-evaluation-service/internal/infra/storage"
)

const sampleCV = `John Carter
Backend Engineer, 6 years of experience.

Skills: Go, Python, PostgreSQL, Redis, Docker, Kubernetes.
Built an event ingestion pipeline handling 40k msg/s. Led a team of 3.
Experience integrating OpenAI and Gemini APIs, prompt design, embeddings.
`

const sampleReport = `Project Report: Resume Screening Service

Implemented an asynchronous evaluation API with a queued job model.
Chained three LLM calls, injected retrieved rubric context into prompts,
added exponential backoff around provider errors and a re-prompt loop for
malformed JSON. Includes structured logging and integration tests.
`

// Resets Postgres and Redis to a clean state and seeds two parsed sample
// documents, so a manual end-to-end run can go straight to POST /evaluate.
func main() {
	ctx := context.Background()

	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	seed := flag.Bool("seed", true, "seed sample documents after wiping")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}
	logger := logging.New(cfg.Log, true)

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 5)
	if err != nil {
		log.Fatalf("postgres connection failed: %v", err)
	}
	defer pool.Close()

	redisClient, err := redis.NewClient(ctx, &cfg.Redis)
	if err != nil {
		log.Fatalf("redis connection failed: %v", err)
	}
	defer redisClient.Close()

	log.Println("--- Starting E2E Environment Setup ---")

	log.Println("[1/3] Wiping Redis...")
	if err := redisClient.FlushDB(ctx); err != nil {
		log.Fatalf("failed to flush redis: %v", err)
	}

	log.Println("[2/3] Wiping evaluation tables...")
	if _, err := pool.Exec(ctx, `TRUNCATE evaluation_jobs, documents RESTART IDENTITY CASCADE;`); err != nil {
		log.Fatalf("failed to truncate tables: %v", err)
	}

	if !*seed {
		log.Println("[3/3] Skipping seed (-seed=false)")
		log.Println("--- E2E Environment Setup Complete ---")
		return
	}

	log.Println("[3/3] Seeding sample documents...")
	docRepo := pg.NewDocumentRepo(pool)
	docService, err := storage.NewDocumentService(docRepo, storage.NewPDFExtractor(), nil, cfg.Server.UploadDir, logger)
	if err != nil {
		log.Fatalf("document storage: %v", err)
	}

	cv, err := docService.Upload(ctx, model.DocumentKindCV, "sample_cv.txt", strings.NewReader(sampleCV))
	if err != nil {
		log.Fatalf("seed cv: %v", err)
	}
	report, err := docService.Upload(ctx, model.DocumentKindProjectReport, "sample_report.txt", strings.NewReader(sampleReport))
	if err != nil {
		log.Fatalf("seed project report: %v", err)
	}

	log.Printf("cv_id:             %s", cv.ID)
	log.Printf("project_report_id: %s", report.ID)
	log.Println("--- E2E Environment Setup Complete ---")
}
