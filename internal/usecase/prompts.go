package usecase

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"cv-evaluation-service/internal/domain/model"
	"cv-evaluation-service/internal/domain/ports/adapter"
)

// System instructions per stage. Scoring stages demand a bare JSON object so
// the response parser has a fixed contract to validate against.
const (
	cvSystemPrompt = `You are an expert technical recruiter specializing in backend engineering and AI/ML roles.
Your task is to evaluate candidate CVs objectively and provide structured feedback.
You must respond ONLY with valid JSON format, no additional text or markdown.`

	projectSystemPrompt = `You are an expert technical evaluator specializing in backend systems, AI/LLM integration, and RAG implementations.
Your task is to evaluate project implementations objectively against requirements and best practices.
You must respond ONLY with valid JSON format, no additional text or markdown.`

	summarySystemPrompt = `You are an expert hiring manager providing final recommendations on candidates.
Be concise, balanced, and actionable in your summary.`
)

// repromptSuffix is appended to the user turn when a previous response failed
// schema validation.
const repromptSuffix = "\n\nIMPORTANT: your previous response was not a valid JSON object in the required format. Respond again with ONLY the JSON object, all fields present, all scores inside their declared ranges."

// PromptBuilder assembles stage prompts and keeps candidate text inside the
// provider's context window. Token counting uses the cl100k_base encoding;
// when the encoding cannot be loaded (offline environments) a conservative
// characters-per-token estimate is used instead.
type PromptBuilder struct {
	enc         *tiktoken.Tiktoken
	tokenBudget int
}

func NewPromptBuilder(tokenBudget int) *PromptBuilder {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		enc = nil
	}
	return &PromptBuilder{enc: enc, tokenBudget: tokenBudget}
}

// truncate trims text to at most the configured token budget. The head of the
// document is kept; CVs and reports front-load the signal.
func (pb *PromptBuilder) truncate(text string) string {
	if pb.tokenBudget <= 0 {
		return text
	}
	if pb.enc != nil {
		tokens := pb.enc.Encode(text, nil, nil)
		if len(tokens) <= pb.tokenBudget {
			return text
		}
		return pb.enc.Decode(tokens[:pb.tokenBudget])
	}
	// ~4 characters per token for English prose
	limit := pb.tokenBudget * 4
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}

// formatContext renders retrieved passages as two titled sections, primary
// material (job description or case study) first, rubric second.
func formatContext(title, primaryType, primaryHeading, rubricType, rubricHeading string, passages []adapter.Passage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n## %s:\n", title, primaryHeading)
	for _, p := range passages {
		if p.DocType == primaryType {
			b.WriteString(p.Text)
			b.WriteString("\n\n")
		}
	}
	fmt.Fprintf(&b, "\n## %s:\n", rubricHeading)
	for _, p := range passages {
		if p.DocType == rubricType {
			b.WriteString(p.Text)
			b.WriteString("\n\n")
		}
	}
	return b.String()
}

// BuildCVPrompt builds the CV stage prompt from retrieved context and the
// candidate's CV text.
func (pb *PromptBuilder) BuildCVPrompt(jobTitle, cvText string, passages []adapter.Passage) adapter.Prompt {
	context := formatContext(
		"Reference Context for CV Evaluation",
		adapter.DocTypeJobDescription, "Job Requirements and Qualifications",
		adapter.DocTypeCVRubric, "CV Evaluation Rubric",
		passages,
	)
	user := fmt.Sprintf(`%s

# CANDIDATE CV TO EVALUATE:
%s

# EVALUATION TASK:
Evaluate this CV for the position of %q based on the job requirements and rubric provided above.

Score each parameter on a scale of 1-5:
1. Technical Skills Match (Weight: %.0f%%)
2. Experience Level (Weight: %.0f%%)
3. Relevant Achievements (Weight: %.0f%%)
4. Cultural/Collaboration Fit (Weight: %.0f%%)

Calculate the weighted average and convert to a match_rate (0-1 scale by multiplying by 0.2).

Respond with ONLY valid JSON in this exact format:
{
    "technical_skills_match": <score 1-5>,
    "experience_level": <score 1-5>,
    "relevant_achievements": <score 1-5>,
    "cultural_fit": <score 1-5>,
    "match_rate": <decimal 0-1>,
    "feedback": "<2-3 sentences explaining strengths and gaps>"
}

DO NOT include any text outside the JSON object.`,
		context, pb.truncate(cvText), jobTitle,
		model.WeightTechnicalSkills*100, model.WeightExperience*100,
		model.WeightAchievements*100, model.WeightCulturalFit*100,
	)
	return adapter.Prompt{System: cvSystemPrompt, User: user}
}

// BuildProjectPrompt builds the project stage prompt from retrieved context
// and the candidate's project report text.
func (pb *PromptBuilder) BuildProjectPrompt(projectText string, passages []adapter.Passage) adapter.Prompt {
	context := formatContext(
		"Reference Context for Project Evaluation",
		adapter.DocTypeCaseStudy, "Case Study Requirements",
		adapter.DocTypeProjectRubric, "Project Evaluation Rubric",
		passages,
	)
	user := fmt.Sprintf(`%s

# PROJECT REPORT TO EVALUATE:
%s

# EVALUATION TASK:
Evaluate this project report based on the case study requirements and rubric provided above.

Score each parameter on a scale of 1-5:
1. Correctness (Prompt & Chaining) (Weight: %.0f%%)
2. Code Quality & Structure (Weight: %.0f%%)
3. Resilience & Error Handling (Weight: %.0f%%)
4. Documentation & Explanation (Weight: %.0f%%)
5. Creativity / Bonus (Weight: %.0f%%)

Calculate the weighted average for the overall score (1-5 scale).

Respond with ONLY valid JSON in this exact format:
{
    "correctness": <score 1-5>,
    "code_quality": <score 1-5>,
    "resilience": <score 1-5>,
    "documentation": <score 1-5>,
    "creativity": <score 1-5>,
    "overall_score": <decimal 1-5>,
    "feedback": "<2-3 sentences explaining what was done well and what needs improvement>"
}

DO NOT include any text outside the JSON object.`,
		context, pb.truncate(projectText),
		model.WeightCorrectness*100, model.WeightCodeQuality*100,
		model.WeightResilience*100, model.WeightDocumentation*100,
		model.WeightCreativity*100,
	)
	return adapter.Prompt{System: projectSystemPrompt, User: user}
}

// BuildSummaryPrompt builds the final synthesis prompt. The structured
// outputs of both prior stages are embedded verbatim so the model reasons
// over exactly what was persisted, not a paraphrase.
func (pb *PromptBuilder) BuildSummaryPrompt(jobTitle string, cv model.CVEvaluation, project model.ProjectEvaluation) adapter.Prompt {
	user := fmt.Sprintf(`Based on the following evaluation results, provide a concise overall summary (3-5 sentences) about the candidate's fit for the %s position.

CV Evaluation:
- Match Rate: %.2f
- Detailed Scores: technical_skills_match=%.1f, experience_level=%.1f, relevant_achievements=%.1f, cultural_fit=%.1f
- Feedback: %s

Project Evaluation:
- Score: %.2f/5
- Detailed Scores: correctness=%.1f, code_quality=%.1f, resilience=%.1f, documentation=%.1f, creativity=%.1f
- Feedback: %s

Provide a balanced summary that:
1. Highlights the candidate's key strengths
2. Identifies any gaps or areas for improvement
3. Provides a clear recommendation

Respond with ONLY the summary text, no JSON or additional formatting.`,
		jobTitle,
		cv.MatchRate,
		cv.DetailedScores.TechnicalSkillsMatch, cv.DetailedScores.ExperienceLevel,
		cv.DetailedScores.RelevantAchievements, cv.DetailedScores.CulturalFit,
		cv.Feedback,
		project.Score,
		project.DetailedScores.Correctness, project.DetailedScores.CodeQuality,
		project.DetailedScores.Resilience, project.DetailedScores.Documentation,
		project.DetailedScores.Creativity,
		project.Feedback,
	)
	return adapter.Prompt{System: summarySystemPrompt, User: user}
}
