package repository

import (
	"context"
	"time"

	"cv-evaluation-service/internal/domain/model"
)

// JobRepository persists evaluation jobs. A job row is only ever mutated by
// the single worker that claimed it; claim exclusivity comes from
// FetchAndMarkProcessing, not from callers coordinating.
type JobRepository interface {
	Save(ctx context.Context, tx Tx, job *model.EvaluationJob) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.EvaluationJob, error)
	// FetchAndMarkProcessing atomically claims the oldest queued job and
	// moves it to processing so no other worker picks it up. Returns
	// domain.ErrNotFound when no job is queued.
	FetchAndMarkProcessing(ctx context.Context) (*model.EvaluationJob, error)
	// RequeueStale moves processing jobs whose last update is older than
	// olderThan back to queued, keeping their stage progress. Returns the
	// number of jobs requeued.
	RequeueStale(ctx context.Context, olderThan time.Duration) (int, error)
	CountByStatus(ctx context.Context, tx Tx) (map[model.JobStatus]int, error)
}
