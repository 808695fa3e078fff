package model

import (
	"time"

	"github.com/google/uuid"

	"cv-evaluation-service/internal/domain"
)

type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Stage identifies one step of the evaluation chain. Stages always run in
// the order CV -> Project -> Summary.
type Stage string

const (
	StageCV      Stage = "cv"
	StageProject Stage = "project"
	StageSummary Stage = "summary"
)

// Stages lists the pipeline stages in execution order.
func Stages() []Stage { return []Stage{StageCV, StageProject, StageSummary} }

// JobError is the structured failure detail recorded on a failed job.
type JobError struct {
	Stage   string `json:"stage,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// EvaluationJob is one unit of screening work: a CV plus a project report
// evaluated against a job title. All mutable state lives here and is
// persisted by the job repository; the orchestrator holds nothing across
// invocations.
type EvaluationJob struct {
	ID                string
	JobTitle          string
	CVDocumentID      string
	ProjectDocumentID string
	Status            JobStatus
	StageProgress     []Stage
	Result            EvaluationResult
	ErrorDetail       *JobError
	CreatedAt         time.Time
	StartedAt         *time.Time
	CompletedAt       *time.Time
	UpdatedAt         time.Time
}

func NewEvaluationJob(jobTitle, cvDocumentID, projectDocumentID string) (*EvaluationJob, error) {
	if jobTitle == "" || cvDocumentID == "" || projectDocumentID == "" {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &EvaluationJob{
		ID:                uuid.NewString(),
		JobTitle:          jobTitle,
		CVDocumentID:      cvDocumentID,
		ProjectDocumentID: projectDocumentID,
		Status:            JobStatusQueued,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// Terminal reports whether the job has reached a final state. Terminal jobs
// must never be re-entered; redelivery of their execution request is a no-op.
func (j *EvaluationJob) Terminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// MarkProcessing moves queued -> processing. Any other starting state is a
// transition violation.
func (j *EvaluationJob) MarkProcessing(at time.Time) error {
	if j.Terminal() {
		return domain.ErrJobTerminal
	}
	if j.Status != JobStatusQueued {
		return domain.ErrInvalidTransition
	}
	j.Status = JobStatusProcessing
	j.StartedAt = &at
	j.UpdatedAt = at
	return nil
}

// MarkStageDone records a completed stage. Stages must complete in pipeline
// order; recording a stage twice or out of order is a transition violation.
func (j *EvaluationJob) MarkStageDone(stage Stage) error {
	if j.Status != JobStatusProcessing {
		return domain.ErrInvalidTransition
	}
	expected := Stages()
	if len(j.StageProgress) >= len(expected) || expected[len(j.StageProgress)] != stage {
		return domain.ErrInvalidTransition
	}
	j.StageProgress = append(j.StageProgress, stage)
	j.UpdatedAt = time.Now()
	return nil
}

// StageDone reports whether the given stage already produced output.
func (j *EvaluationJob) StageDone(stage Stage) bool {
	for _, s := range j.StageProgress {
		if s == stage {
			return true
		}
	}
	return false
}

// Complete moves processing -> completed. All three stages must have
// produced output first.
func (j *EvaluationJob) Complete(at time.Time) error {
	if j.Terminal() {
		return domain.ErrJobTerminal
	}
	if j.Status != JobStatusProcessing || len(j.StageProgress) != len(Stages()) {
		return domain.ErrInvalidTransition
	}
	j.Status = JobStatusCompleted
	j.CompletedAt = &at
	j.ErrorDetail = nil
	j.UpdatedAt = at
	return nil
}

// Fail moves the job to failed with a structured error detail. Results
// persisted for earlier stages are kept; only forward transitions are
// allowed.
func (j *EvaluationJob) Fail(detail JobError, at time.Time) error {
	if j.Terminal() {
		return domain.ErrJobTerminal
	}
	j.Status = JobStatusFailed
	j.ErrorDetail = &detail
	j.CompletedAt = &at
	j.UpdatedAt = at
	return nil
}
