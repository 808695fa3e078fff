package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"cv-evaluation-service/internal/domain"
	"cv-evaluation-service/internal/domain/model"
	"cv-evaluation-service/internal/domain/ports/repository"
	"cv-evaluation-service/internal/infra/logging"
	"cv-evaluation-service/internal/infra/metrics"
)

// Stage executor contracts, satisfied by CVStage, ProjectStage and
// SummaryStage. Narrow on purpose so tests can swap a single stage.
type cvRunner interface {
	Run(ctx context.Context, cvText, jobTitle string) (model.CVEvaluation, error)
}

type projectRunner interface {
	Run(ctx context.Context, projectText string) (model.ProjectEvaluation, error)
}

type summaryRunner interface {
	Run(ctx context.Context, jobTitle string, cv model.CVEvaluation, project model.ProjectEvaluation) (string, error)
}

var (
	_ cvRunner      = (*CVStage)(nil)
	_ projectRunner = (*ProjectStage)(nil)
	_ summaryRunner = (*SummaryStage)(nil)
)

// Orchestrator drives one claimed job through the stage chain. Every stage
// output is persisted before the next stage starts, so a failed job keeps
// the results of the stages that did finish. The orchestrator holds no
// per-job state of its own; everything lives on the job row.
type Orchestrator struct {
	jobs repository.JobRepository
	docs repository.DocumentStore

	cv      cvRunner
	project projectRunner
	summary summaryRunner

	log *zerolog.Logger
}

func NewOrchestrator(jobs repository.JobRepository, docs repository.DocumentStore, cv cvRunner, project projectRunner, summary summaryRunner, log *zerolog.Logger) *Orchestrator {
	return &Orchestrator{jobs: jobs, docs: docs, cv: cv, project: project, summary: summary, log: log}
}

// Process runs the evaluation chain for a job already moved to processing.
// Redelivery of a terminal job is a no-op.
func (o *Orchestrator) Process(ctx context.Context, job *model.EvaluationJob) error {
	if job.Terminal() {
		return nil
	}
	ctx = logging.WithJobID(ctx, job.ID)
	log := logging.With(ctx, o.log)
	defer logging.TraceDuration(log, "Orchestrator.Process")()
	start := time.Now()

	cvText, err := o.docs.GetParsedText(ctx, job.CVDocumentID)
	if err != nil {
		return o.failJob(ctx, job, model.StageCV, err)
	}
	projectText, err := o.docs.GetParsedText(ctx, job.ProjectDocumentID)
	if err != nil {
		return o.failJob(ctx, job, model.StageProject, err)
	}

	var cvEval model.CVEvaluation
	if job.StageDone(model.StageCV) {
		cvEval = cvEvalFromResult(job.Result)
	} else {
		stageStart := time.Now()
		cvEval, err = o.cv.Run(logging.WithStage(ctx, string(model.StageCV)), cvText, job.JobTitle)
		if err != nil {
			return o.failJob(ctx, job, model.StageCV, err)
		}
		job.Result.SetCVEvaluation(cvEval)
		if err := o.advance(ctx, job, model.StageCV); err != nil {
			return err
		}
		metrics.ObserveStageLatency(string(model.StageCV), time.Since(stageStart).Seconds())
	}

	var projectEval model.ProjectEvaluation
	if job.StageDone(model.StageProject) {
		projectEval = projectEvalFromResult(job.Result)
	} else {
		stageStart := time.Now()
		projectEval, err = o.project.Run(logging.WithStage(ctx, string(model.StageProject)), projectText)
		if err != nil {
			return o.failJob(ctx, job, model.StageProject, err)
		}
		job.Result.SetProjectEvaluation(projectEval)
		if err := o.advance(ctx, job, model.StageProject); err != nil {
			return err
		}
		metrics.ObserveStageLatency(string(model.StageProject), time.Since(stageStart).Seconds())
	}

	if !job.StageDone(model.StageSummary) {
		stageStart := time.Now()
		summary, err := o.summary.Run(logging.WithStage(ctx, string(model.StageSummary)), job.JobTitle, cvEval, projectEval)
		if err != nil {
			return o.failJob(ctx, job, model.StageSummary, err)
		}
		job.Result.SetOverallSummary(summary)
		if err := o.advance(ctx, job, model.StageSummary); err != nil {
			return err
		}
		metrics.ObserveStageLatency(string(model.StageSummary), time.Since(stageStart).Seconds())
	}

	if err := job.Complete(time.Now()); err != nil {
		return err
	}
	if err := o.jobs.Save(ctx, nil, job); err != nil {
		return err
	}
	metrics.IncJobProcessed(string(model.JobStatusCompleted))
	metrics.ObserveJobDuration(time.Since(start).Seconds())
	log.Info().Dur("took", time.Since(start)).Msg("evaluation job completed")
	return nil
}

// advance records the finished stage and persists the job so a later failure
// cannot lose this stage's output.
func (o *Orchestrator) advance(ctx context.Context, job *model.EvaluationJob, stage model.Stage) error {
	if err := job.MarkStageDone(stage); err != nil {
		return err
	}
	return o.jobs.Save(ctx, nil, job)
}

// failJob records the terminal failure with its originating stage. The save
// uses a fresh context: the job context may already be past its deadline,
// and the failure must still be persisted.
func (o *Orchestrator) failJob(ctx context.Context, job *model.EvaluationJob, stage model.Stage, cause error) error {
	code := errorCode(cause)
	metrics.IncStageFailure(string(stage), code)
	metrics.IncJobProcessed(string(model.JobStatusFailed))

	detail := model.JobError{Stage: string(stage), Code: code, Message: cause.Error()}
	if err := job.Fail(detail, time.Now()); err != nil {
		return err
	}

	saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := o.jobs.Save(saveCtx, nil, job); err != nil {
		logging.With(ctx, o.log).Error().Err(err).Str("job_id", job.ID).Msg("failed to persist job failure")
		return err
	}
	logging.With(ctx, o.log).Warn().
		Str("stage", string(stage)).Str("code", code).Err(cause).
		Msg("evaluation job failed")
	return &domain.StageError{Stage: string(stage), Err: cause}
}

// errorCode maps a stage failure onto the stable code surfaced in the job's
// error detail and metrics labels. The deadline check comes first: an
// exhaustion error whose last attempt died on the job deadline is a
// timeout, not a provider failure.
func errorCode(err error) string {
	var exhausted *domain.LLMExhaustedError
	var schema *domain.SchemaValidationError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.As(err, &exhausted):
		return "llm_exhausted"
	case errors.As(err, &schema):
		return "schema_validation"
	case errors.Is(err, domain.ErrRetrievalUnavailable):
		return "retrieval_unavailable"
	case errors.Is(err, domain.ErrDocumentNotFound):
		return "document_not_found"
	case errors.Is(err, domain.ErrParseFailure):
		return "parse_failure"
	default:
		return "internal"
	}
}

func cvEvalFromResult(r model.EvaluationResult) model.CVEvaluation {
	var ev model.CVEvaluation
	if r.CVDetailedScores != nil {
		ev.DetailedScores = *r.CVDetailedScores
	}
	if r.CVMatchRate != nil {
		ev.MatchRate = *r.CVMatchRate
	}
	if r.CVFeedback != nil {
		ev.Feedback = *r.CVFeedback
	}
	return ev
}

func projectEvalFromResult(r model.EvaluationResult) model.ProjectEvaluation {
	var ev model.ProjectEvaluation
	if r.ProjectDetailedScores != nil {
		ev.DetailedScores = *r.ProjectDetailedScores
	}
	if r.ProjectScore != nil {
		ev.Score = *r.ProjectScore
	}
	if r.ProjectFeedback != nil {
		ev.Feedback = *r.ProjectFeedback
	}
	return ev
}
