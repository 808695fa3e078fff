package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"cv-evaluation-service/internal/config"
	"cv-evaluation-service/internal/domain"
	"cv-evaluation-service/internal/domain/model"
	"cv-evaluation-service/internal/domain/ports/adapter"
	"cv-evaluation-service/internal/infra/logging"
)

// CVStage scores a candidate CV against the job description and CV rubric
// retrieved from the reference index.
type CVStage struct {
	llm       adapter.LLMClient
	retriever adapter.ContextRetriever
	prompts   *PromptBuilder

	temperature     float32
	maxOutputTokens int
	topK            int
	maxReprompts    int

	log *zerolog.Logger
}

func NewCVStage(llm adapter.LLMClient, retriever adapter.ContextRetriever, prompts *PromptBuilder, cfg *config.Config, log *zerolog.Logger) *CVStage {
	return &CVStage{
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

// cvResponse is the wire shape the model is asked to produce.
type cvResponse struct {
	TechnicalSkillsMatch float64 `json:"technical_skills_match"`
	ExperienceLevel      float64 `json:"experience_level"`
	RelevantAchievements float64 `json:"relevant_achievements"`
	CulturalFit          float64 `json:"cultural_fit"`
	MatchRate            float64 `json:"match_rate"`
	Feedback             string  `json:"feedback"`
}

func (r cvResponse) toEvaluation() model.CVEvaluation {
	return model.CVEvaluation{
		DetailedScores: model.CVDetailedScores{
			TechnicalSkillsMatch: r.TechnicalSkillsMatch,
			ExperienceLevel:      r.ExperienceLevel,
			RelevantAchievements: r.RelevantAchievements,
			CulturalFit:          r.CulturalFit,
		},
		MatchRate: r.MatchRate,
		Feedback:  r.Feedback,
	}
}

// Run retrieves grounding context, prompts the model and validates the
// scored output. Schema violations are re-prompted up to the configured
// bound; retrieval and provider failures are returned as-is.
func (s *CVStage) Run(ctx context.Context, cvText, jobTitle string) (model.CVEvaluation, error) {
	log := logging.With(ctx, s.log)

	query := fmt.Sprintf("%s requirements and qualifications", jobTitle)
	passages, err := s.retriever.Retrieve(ctx, query,
		[]string{adapter.DocTypeJobDescription, adapter.DocTypeCVRubric}, s.topK)
	if err != nil {
		return model.CVEvaluation{}, err
	}

	prompt := s.prompts.BuildCVPrompt(jobTitle, cvText, passages)
	opts := adapter.CompleteOptions{Temperature: s.temperature, MaxOutputTokens: s.maxOutputTokens}

	var lastErr error
	for attempt := 0; attempt <= s.maxReprompts; attempt++ {
		resp, err := s.llm.Complete(ctx, prompt, opts)
		if err != nil {
			return model.CVEvaluation{}, err
		}

		var parsed cvResponse
		if err := decodeResponse(resp, &parsed); err != nil {
			lastErr = err
		} else {
			ev := parsed.toEvaluation()
			if err := ev.Validate(); err != nil {
				lastErr = err
			} else {
				log.Debug().Float64("match_rate", ev.MatchRate).Msg("cv stage scored")
				return ev, nil
			}
		}

		var sve *domain.SchemaValidationError
		if errors.As(lastErr, &sve) {
			log.Warn().Int("attempt", attempt+1).Str("field", sve.Field).Msg("cv response failed validation, re-prompting")
		}
		prompt.User = s.prompts.BuildCVPrompt(jobTitle, cvText, passages).User + repromptSuffix
	}
	return model.CVEvaluation{}, lastErr
}
