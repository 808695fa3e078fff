package usecase

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"cv-evaluation-service/internal/config"
	"cv-evaluation-service/internal/domain"
	"cv-evaluation-service/internal/domain/model"
	"cv-evaluation-service/internal/domain/ports/adapter"
	"cv-evaluation-service/internal/infra/logging"
)

// projectContextQuery steers retrieval toward the case study brief and the
// scoring rubric rather than the report body itself.
const projectContextQuery = "project requirements evaluation criteria"

// ProjectStage scores a project report against the case study brief and
// project rubric retrieved from the reference index.
type ProjectStage struct {
	llm       adapter.LLMClient
	retriever adapter.ContextRetriever
	prompts   *PromptBuilder

	temperature     float32
	maxOutputTokens int
	topK            int
	maxReprompts    int

	log *zerolog.Logger
}

func NewProjectStage(llm adapter.LLMClient, retriever adapter.ContextRetriever, prompts *PromptBuilder, cfg *config.Config, log *zerolog.Logger) *ProjectStage {
	return &ProjectStage{
		llm:             llm,
		retriever:       retriever,
		prompts:         prompts,
		temperature:     cfg.LLM.ScoringTemp,
		maxOutputTokens: cfg.LLM.MaxOutputTokens,
		topK:            cfg.Pipeline.TopK,
		maxReprompts:    cfg.Pipeline.MaxReprompts,
		log:             log,
	}
}

type projectResponse struct {
	Correctness   float64 `json:"correctness"`
	CodeQuality   float64 `json:"code_quality"`
	Resilience    float64 `json:"resilience"`
	Documentation float64 `json:"documentation"`
	Creativity    float64 `json:"creativity"`
	OverallScore  float64 `json:"overall_score"`
	Feedback      string  `json:"feedback"`
}

func (r projectResponse) toEvaluation() model.ProjectEvaluation {
	return model.ProjectEvaluation{
		DetailedScores: model.ProjectDetailedScores{
			Correctness:   r.Correctness,
			CodeQuality:   r.CodeQuality,
			Resilience:    r.Resilience,
			Documentation: r.Documentation,
			Creativity:    r.Creativity,
		},
		Score:    r.OverallScore,
		Feedback: r.Feedback,
	}
}

// Run retrieves grounding context, prompts the model and validates the
// scored output, re-prompting on schema violations up to the configured
// bound.
func (s *ProjectStage) Run(ctx context.Context, projectText string) (model.ProjectEvaluation, error) {
	log := logging.With(ctx, s.log)

	passages, err := s.retriever.Retrieve(ctx, projectContextQuery,
		[]string{adapter.DocTypeCaseStudy, adapter.DocTypeProjectRubric}, s.topK)
	if err != nil {
		return model.ProjectEvaluation{}, err
	}

	prompt := s.prompts.BuildProjectPrompt(projectText, passages)
	opts := adapter.CompleteOptions{Temperature: s.temperature, MaxOutputTokens: s.maxOutputTokens}

	var lastErr error
	for attempt := 0; attempt <= s.maxReprompts; attempt++ {
		resp, err := s.llm.Complete(ctx, prompt, opts)
		if err != nil {
			return model.ProjectEvaluation{}, err
		}

		var parsed projectResponse
		if err := decodeResponse(resp, &parsed); err != nil {
			lastErr = err
		} else {
			ev := parsed.toEvaluation()
			if err := ev.Validate(); err != nil {
				lastErr = err
			} else {
				log.Debug().Float64("score", ev.Score).Msg("project stage scored")
				return ev, nil
			}
		}

		var sve *domain.SchemaValidationError
		if errors.As(lastErr, &sve) {
			log.Warn().Int("attempt", attempt+1).Str("field", sve.Field).Msg("project response failed validation, re-prompting")
		}
		prompt.User = s.prompts.BuildProjectPrompt(projectText, passages).User + repromptSuffix
	}
	return model.ProjectEvaluation{}, lastErr
}
