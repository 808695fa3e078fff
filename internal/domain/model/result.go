package model

import (
	"fmt"

	"cv-evaluation-service/internal/domain"
)

// Rubric weights, fixed by the evaluation brief.
const (
	WeightTechnicalSkills = 0.40
	WeightExperience      = 0.25
	WeightAchievements    = 0.20
	WeightCulturalFit     = 0.15

	WeightCorrectness   = 0.30
	WeightCodeQuality   = 0.25
	WeightResilience    = 0.20
	WeightDocumentation = 0.15
	WeightCreativity    = 0.10
)

// CVDetailedScores holds the four fixed CV rubric dimensions, each in [1,5].
type CVDetailedScores struct {
	TechnicalSkillsMatch float64 `json:"technical_skills_match"`
	ExperienceLevel      float64 `json:"experience_level"`
	RelevantAchievements float64 `json:"relevant_achievements"`
	CulturalFit          float64 `json:"cultural_fit"`
}

// ProjectDetailedScores holds the five fixed project rubric dimensions,
// each in [1,5].
type ProjectDetailedScores struct {
	Correctness   float64 `json:"correctness"`
	CodeQuality   float64 `json:"code_quality"`
	Resilience    float64 `json:"resilience"`
	Documentation float64 `json:"documentation"`
	Creativity    float64 `json:"creativity"`
}

// CVEvaluation is the typed output of the CV stage.
type CVEvaluation struct {
	DetailedScores CVDetailedScores `json:"detailed_scores"`
	MatchRate      float64          `json:"match_rate"`
	Feedback       string           `json:"feedback"`
}

// ProjectEvaluation is the typed output of the project stage.
type ProjectEvaluation struct {
	DetailedScores ProjectDetailedScores `json:"detailed_scores"`
	Score          float64               `json:"score"`
	Feedback       string                `json:"feedback"`
}

// EvaluationResult is populated incrementally, one block per completed
// stage, and becomes immutable once the job completes.
type EvaluationResult struct {
	CVMatchRate           *float64               `json:"cv_match_rate,omitempty"`
	CVFeedback            *string                `json:"cv_feedback,omitempty"`
	CVDetailedScores      *CVDetailedScores      `json:"cv_detailed_scores,omitempty"`
	ProjectScore          *float64               `json:"project_score,omitempty"`
	ProjectFeedback       *string                `json:"project_feedback,omitempty"`
	ProjectDetailedScores *ProjectDetailedScores `json:"project_detailed_scores,omitempty"`
	OverallSummary        *string                `json:"overall_summary,omitempty"`
}

// SetCVEvaluation writes the CV stage block onto the result.
func (r *EvaluationResult) SetCVEvaluation(ev CVEvaluation) {
	rate := ev.MatchRate
	fb := ev.Feedback
	scores := ev.DetailedScores
	r.CVMatchRate = &rate
	r.CVFeedback = &fb
	r.CVDetailedScores = &scores
}

// SetProjectEvaluation writes the project stage block onto the result.
func (r *EvaluationResult) SetProjectEvaluation(ev ProjectEvaluation) {
	score := ev.Score
	fb := ev.Feedback
	scores := ev.DetailedScores
	r.ProjectScore = &score
	r.ProjectFeedback = &fb
	r.ProjectDetailedScores = &scores
}

// SetOverallSummary writes the summary stage block onto the result.
func (r *EvaluationResult) SetOverallSummary(summary string) {
	r.OverallSummary = &summary
}

func scoreInRange(name string, v, lo, hi float64) error {
	if v < lo || v > hi {
		return &domain.SchemaValidationError{
			Field:  name,
			Reason: fmt.Sprintf("%.2f outside [%g,%g]", v, lo, hi),
		}
	}
	return nil
}

// Validate enforces the declared ranges: match rate in [0,1], every
// detailed score in [1,5], non-empty feedback.
func (ev CVEvaluation) Validate() error {
	if err := scoreInRange("match_rate", ev.MatchRate, 0, 1); err != nil {
		return err
	}
	checks := []struct {
		name string
		v    float64
	}{
		{"technical_skills_match", ev.DetailedScores.TechnicalSkillsMatch},
		{"experience_level", ev.DetailedScores.ExperienceLevel},
		{"relevant_achievements", ev.DetailedScores.RelevantAchievements},
		{"cultural_fit", ev.DetailedScores.CulturalFit},
	}
	for _, c := range checks {
		if err := scoreInRange(c.name, c.v, 1, 5); err != nil {
			return err
		}
	}
	if ev.Feedback == "" {
		return &domain.SchemaValidationError{Field: "feedback", Reason: "is empty"}
	}
	return nil
}

// Validate enforces the declared ranges: overall score and every detailed
// score in [1,5], non-empty feedback.
func (ev ProjectEvaluation) Validate() error {
	if err := scoreInRange("overall_score", ev.Score, 1, 5); err != nil {
		return err
	}
	checks := []struct {
		name string
		v    float64
	}{
		{"correctness", ev.DetailedScores.Correctness},
		{"code_quality", ev.DetailedScores.CodeQuality},
		{"resilience", ev.DetailedScores.Resilience},
		{"documentation", ev.DetailedScores.Documentation},
		{"creativity", ev.DetailedScores.Creativity},
	}
	for _, c := range checks {
		if err := scoreInRange(c.name, c.v, 1, 5); err != nil {
			return err
		}
	}
	if ev.Feedback == "" {
		return &domain.SchemaValidationError{Field: "feedback", Reason: "is empty"}
	}
	return nil
}
