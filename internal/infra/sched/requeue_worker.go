package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"cv-evaluation-service/internal/domain/ports/repository"
	"cv-evaluation-service/internal/infra/metrics"
)

// RequeueWorker periodically hands abandoned processing jobs back to the
// queue. A worker crash leaves its claimed job in processing with no owner;
// once the job's redis fence and timeout have long expired, requeueing is
// safe and the per-stage persistence means no finished work is redone.
type RequeueWorker struct {
	interval   time.Duration
	staleAfter time.Duration
	jobs       repository.JobRepository
	log        *zerolog.Logger
}

func NewRequeueWorker(interval, staleAfter time.Duration, jobs repository.JobRepository, logger *zerolog.Logger) *RequeueWorker {
	l := logger.With().Str("component", "RequeueWorker").Logger()
	if interval <= 0 {
		interval = time.Minute
	}
	return &RequeueWorker{interval: interval, staleAfter: staleAfter, jobs: jobs, log: &l}
}

func (w *RequeueWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("stale_after", w.staleAfter).Msg("starting requeue worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("stopping requeue worker")
			return ctx.Err()
		case <-ticker.C:
			n, err := w.jobs.RequeueStale(ctx, w.staleAfter)
			if err != nil {
				w.log.Error().Err(err).Msg("requeue pass failed")
				continue
			}
			if n > 0 {
				metrics.IncJobsRequeued(n)
				w.log.Warn().Int("count", n).Msg("requeued abandoned jobs")
			}
		}
	}
}
