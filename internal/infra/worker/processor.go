package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"cv-evaluation-service/internal/domain"
	"cv-evaluation-service/internal/domain/model"
	"cv-evaluation-service/internal/domain/ports/repository"
	"cv-evaluation-service/internal/infra/logging"
	red "cv-evaluation-service/internal/infra/redis"
)

// jobRunner is the pipeline entry point the processor hands claimed jobs to.
type jobRunner interface {
	Process(ctx context.Context, job *model.EvaluationJob) error
}

// JobProcessor polls for queued evaluation jobs and runs them on the pool.
// Claim exclusivity comes from the repository's FetchAndMarkProcessing; the
// redis lock is a second fence so a job is never executed twice even if a
// claim is replayed.
type JobProcessor struct {
	jobs         repository.JobRepository
	runner       jobRunner
	locker       red.Locker
	lockTTL      time.Duration
	jobTimeout   time.Duration
	pollInterval time.Duration
	log          *zerolog.Logger
}

func NewJobProcessor(jobs repository.JobRepository, runner jobRunner, locker red.Locker, lockTTL, jobTimeout, pollInterval time.Duration, log *zerolog.Logger) *JobProcessor {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &JobProcessor{
		jobs:         jobs,
		runner:       runner,
		locker:       locker,
		lockTTL:      lockTTL,
		jobTimeout:   jobTimeout,
		pollInterval: pollInterval,
		log:          log,
	}
}

// Start runs the poll loop until the context is cancelled. Run it in a
// goroutine; each tick submits at most one claim attempt to the pool.
func (p *JobProcessor) Start(ctx context.Context, pool *Pool) {
	p.log.Info().Dur("poll_interval", p.pollInterval).Msg("job processor started")
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info().Msg("job processor stopping")
			return
		case <-ticker.C:
			_ = pool.Submit(func(ctx context.Context) error {
				p.processOne(ctx)
				return nil
			})
		}
	}
}

func (p *JobProcessor) processOne(ctx context.Context) {
	job, err := p.jobs.FetchAndMarkProcessing(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			p.log.Error().Err(err).Msg("failed to claim evaluation job")
		}
		return
	}

	ctx = logging.WithJobID(ctx, job.ID)
	log := logging.With(ctx, p.log)

	token, err := p.locker.TryLock(ctx, lockKey(job.ID), p.lockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrJobLocked) {
			log.Warn().Msg("job already fenced by another worker, skipping")
		} else {
			log.Error().Err(err).Msg("lock acquisition failed, skipping job")
		}
		return
	}
	defer func() {
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.locker.Unlock(unlockCtx, lockKey(job.ID), token); err != nil {
			log.Warn().Err(err).Msg("failed to release job fence")
		}
	}()

	runCtx := ctx
	if p.jobTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, p.jobTimeout)
		defer cancel()
	}

	log.Info().Str("job_title", job.JobTitle).Msg("processing evaluation job")
	if err := p.runner.Process(runCtx, job); err != nil {
		log.Warn().Err(err).Msg("evaluation job did not complete")
	}
}

func lockKey(jobID string) string { return "evaljob:lock:" + jobID }
