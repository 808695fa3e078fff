// Command ingest loads reference documents (job description, case study,
// scoring rubrics) into the vector index. Run it once before starting the
// service, and again whenever the reference material changes.
//
//	ingest -config config.yaml -type job_description -file ./docs/jd.pdf
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"cv-evaluation-service/internal/config"
	"cv-evaluation-service/internal/domain/ports/adapter"
	llmAdapters "cv-evaluation-service/internal/infra/adapters/llm"
	"cv-evaluation-service/internal/infra/logging"
	"cv-evaluation-service/internal/infra/retrieval"
	"cv-evaluation-service/internal/infra/storage"
)

var validDocTypes = map[string]bool{
	adapter.DocTypeJobDescription: true,
	adapter.DocTypeCaseStudy:      true,
	adapter.DocTypeCVRubric:       true,
	adapter.DocTypeProjectRubric:  true,
}

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	docType := flag.String("type", "", "document type: job_description | case_study | cv_rubric | project_rubric")
	filePath := flag.String("file", "", "path to the PDF or text file to ingest")
	flag.Parse()

	if !validDocTypes[*docType] {
		log.Fatalf("invalid -type %q", *docType)
	}
	if *filePath == "" {
		log.Fatal("missing -file")
	}

	cfg, err := config.LoadConfig(*cfgPath, false)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, true)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	var embedder adapter.Embedder
	switch cfg.LLM.Provider {
	case "gemini":
		client, err := llmAdapters.NewGeminiClient(ctx, cfg.LLM.GeminiKey, cfg.LLM.Model, cfg.LLM.EmbeddingModel)
		if err != nil {
			logger.Fatal().Err(err).Msg("gemini client")
		}
		embedder = client
	case "openai":
		client, err := llmAdapters.NewOpenAIClient(cfg.LLM.OpenAIKey, cfg.LLM.OpenAIBaseURL, cfg.LLM.Model, cfg.LLM.EmbeddingModel)
		if err != nil {
			logger.Fatal().Err(err).Msg("openai client")
		}
		embedder = client
	default:
		logger.Fatal().Str("provider", cfg.LLM.Provider).Msg("unknown llm provider")
	}

	retriever, err := retrieval.NewQdrantRetriever(cfg.Qdrant, embedder)
	if err != nil {
		logger.Fatal().Err(err).Msg("qdrant")
	}
	if err := retriever.EnsureCollection(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ensure collection")
	}

	text, err := extractText(*filePath)
	if err != nil {
		logger.Fatal().Err(err).Str("file", *filePath).Msg("extract text")
	}

	chunks := retrieval.ChunkText(text, cfg.Pipeline.ChunkSize, cfg.Pipeline.ChunkOverlap)
	docID := uuid.NewString()
	for i, chunk := range chunks {
		embedding, err := embedder.Embed(ctx, chunk)
		if err != nil {
			logger.Fatal().Err(err).Int("chunk", i).Msg("embed chunk")
		}
		if err := retriever.UpsertChunk(ctx, fmt.Sprintf("%s_chunk_%d", docID, i), *docType, chunk, embedding); err != nil {
			logger.Fatal().Err(err).Int("chunk", i).Msg("upsert chunk")
		}
	}

	logger.Info().
		Str("doc_type", *docType).
		Str("file", *filePath).
		Int("chunks", len(chunks)).
		Msg("document ingested")
}

func extractText(path string) (string, error) {
	if strings.ToLower(filepath.Ext(path)) == ".txt" {
		b, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	return storage.NewPDFExtractor().ExtractText(path)
}
