package usecase

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"cv-evaluation-service/internal/config"
	"cv-evaluation-service/internal/domain"
	"cv-evaluation-service/internal/domain/model"
	"cv-evaluation-service/internal/domain/ports/adapter"
	"cv-evaluation-service/internal/infra/logging"
)

// SummaryStage synthesizes the final recommendation from the two scored
// stage outputs. It performs no retrieval: both inputs are already grounded.
type SummaryStage struct {
	llm     adapter.LLMClient
	prompts *PromptBuilder

	temperature     float32
	maxOutputTokens int
	maxReprompts    int

	log *zerolog.Logger
}

func NewSummaryStage(llm adapter.LLMClient, prompts *PromptBuilder, cfg *config.Config, log *zerolog.Logger) *SummaryStage {
	return &SummaryStage{
		llm:             llm,
		prompts:         prompts,
		temperature:     cfg.LLM.SummaryTemp,
		maxOutputTokens: cfg.LLM.MaxOutputTokens,
		maxReprompts:    cfg.Pipeline.MaxReprompts,
		log:             log,
	}
}

// Run produces the overall summary text. An empty response counts as a
// schema violation and is re-prompted like a malformed scoring response.
func (s *SummaryStage) Run(ctx context.Context, jobTitle string, cv model.CVEvaluation, project model.ProjectEvaluation) (string, error) {
	log := logging.With(ctx, s.log)

	prompt := s.prompts.BuildSummaryPrompt(jobTitle, cv, project)
	opts := adapter.CompleteOptions{Temperature: s.temperature, MaxOutputTokens: s.maxOutputTokens}

	var lastErr error
	for attempt := 0; attempt <= s.maxReprompts; attempt++ {
		resp, err := s.llm.Complete(ctx, prompt, opts)
		if err != nil {
			return "", err
		}
		summary := strings.TrimSpace(resp)
		if summary != "" {
			log.Debug().Int("chars", len(summary)).Msg("summary stage produced text")
			return summary, nil
		}
		lastErr = &domain.SchemaValidationError{Field: "summary", Reason: "is empty"}
		log.Warn().Int("attempt", attempt+1).Msg("empty summary response, re-prompting")
	}
	return "", lastErr
}
