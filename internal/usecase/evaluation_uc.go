package usecase

import (
	"context"

	"github.com/rs/zerolog"

	"cv-evaluation-service/internal/domain"
	"cv-evaluation-service/internal/domain/model"
	"cv-evaluation-service/internal/domain/ports/repository"
)

// EvaluationUseCase is the submission-side API: enqueue evaluation jobs and
// read their state. Processing happens asynchronously in the worker pool.
type EvaluationUseCase struct {
	jobs repository.JobRepository
	docs repository.DocumentRepository
	log  *zerolog.Logger
}

func NewEvaluationUseCase(jobs repository.JobRepository, docs repository.DocumentRepository, log *zerolog.Logger) *EvaluationUseCase {
	return &EvaluationUseCase{jobs: jobs, docs: docs, log: log}
}

// Enqueue validates both document references and persists a queued job.
// The call returns as soon as the job row is durable; it never waits for
// evaluation to run.
func (uc *EvaluationUseCase) Enqueue(ctx context.Context, jobTitle, cvDocumentID, projectDocumentID string) (*model.EvaluationJob, error) {
	cvDoc, err := uc.docs.FindByID(ctx, nil, cvDocumentID)
	if err != nil {
		return nil, err
	}
	projectDoc, err := uc.docs.FindByID(ctx, nil, projectDocumentID)
	if err != nil {
		return nil, err
	}
	if cvDoc.Kind != model.DocumentKindCV || projectDoc.Kind != model.DocumentKindProjectReport {
		return nil, domain.ErrInvalidArgument
	}

	job, err := model.NewEvaluationJob(jobTitle, cvDocumentID, projectDocumentID)
	if err != nil {
		return nil, err
	}
	if err := uc.jobs.Save(ctx, nil, job); err != nil {
		return nil, err
	}
	uc.log.Info().Str("job_id", job.ID).Str("job_title", jobTitle).Msg("evaluation job enqueued")
	return job, nil
}

// GetJob returns the current state of a job, whatever phase it is in.
func (uc *EvaluationUseCase) GetJob(ctx context.Context, id string) (*model.EvaluationJob, error) {
	return uc.jobs.FindByID(ctx, nil, id)
}

// QueueDepth reports the number of jobs per status, used by the health
// endpoint and the stats gauge loop.
func (uc *EvaluationUseCase) QueueDepth(ctx context.Context) (map[model.JobStatus]int, error) {
	return uc.jobs.CountByStatus(ctx, nil)
}
