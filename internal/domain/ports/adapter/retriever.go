package adapter

import "context"

// Reference corpus document types.
const (
	DocTypeJobDescription = "job_description"
	DocTypeCaseStudy      = "case_study"
	DocTypeCVRubric       = "cv_rubric"
	DocTypeProjectRubric  = "project_rubric"
)

// Passage is one retrieved reference chunk with its relevance score.
type Passage struct {
	Text    string
	Score   float32
	DocType string
}

// ContextRetriever returns the top-k reference passages for a query,
// ordered by descending relevance, filtered to the given document types
// (job_description, case_study, cv_rubric, project_rubric).
//
// An empty or unreachable index fails with domain.ErrRetrievalUnavailable;
// callers must treat that as a stage failure rather than evaluate without
// grounding context. Reads are side-effect free: the index is only written
// by offline ingestion.
type ContextRetriever interface {
	Retrieve(ctx context.Context, query string, docTypes []string, k int) ([]Passage, error)
}
