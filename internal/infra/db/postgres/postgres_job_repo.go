package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"cv-evaluation-service/internal/domain"
	"cv-evaluation-service/internal/domain/model"
	"cv-evaluation-service/internal/domain/ports/repository"
)

var _ repository.JobRepository = (*jobRepo)(nil)

type jobRepo struct {
	pool *pgxpool.Pool
	tm   repository.TransactionManager
}

func NewJobRepo(pool *pgxpool.Pool, tm repository.TransactionManager) *jobRepo {
	return &jobRepo{pool: pool, tm: tm}
}

const jobColumns = `id, job_title, cv_document_id, project_document_id, status,
stage_progress, result, error_detail, created_at, started_at, completed_at, updated_at`

func (r *jobRepo) Save(ctx context.Context, tx repository.Tx, job *model.EvaluationJob) error {
	job.UpdatedAt = time.Now()

	progress, err := json.Marshal(job.StageProgress)
	if err != nil {
		return fmt.Errorf("marshal stage progress: %w", err)
	}
	result, err := json.Marshal(job.Result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	var errDetail []byte
	if job.ErrorDetail != nil {
		if errDetail, err = json.Marshal(job.ErrorDetail); err != nil {
			return fmt.Errorf("marshal error detail: %w", err)
		}
	}

	const q = `
INSERT INTO evaluation_jobs
  (id, job_title, cv_document_id, project_document_id, status, stage_progress,
   result, error_detail, created_at, started_at, completed_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (id) DO UPDATE SET
  status = EXCLUDED.status,
  stage_progress = EXCLUDED.stage_progress,
  result = EXCLUDED.result,
  error_detail = EXCLUDED.error_detail,
  started_at = EXCLUDED.started_at,
  completed_at = EXCLUDED.completed_at,
  updated_at = EXCLUDED.updated_at;`

	_, err = execSQL(ctx, r.pool, tx, q,
		job.ID, job.JobTitle, job.CVDocumentID, job.ProjectDocumentID, string(job.Status),
		progress, result, errDetail, job.CreatedAt, job.StartedAt, job.CompletedAt, job.UpdatedAt)
	return err
}

func (r *jobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.EvaluationJob, error) {
	row, err := pickRow(ctx, r.pool, tx,
		`SELECT `+jobColumns+` FROM evaluation_jobs WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	return scanJob(row)
}

// FetchAndMarkProcessing claims the oldest queued job inside a transaction.
// FOR UPDATE SKIP LOCKED keeps concurrent workers from claiming the same
// row, which is the queue-level exclusivity the pipeline relies on.
func (r *jobRepo) FetchAndMarkProcessing(ctx context.Context) (*model.EvaluationJob, error) {
	var claimed *model.EvaluationJob

	err := r.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		row, err := pickRow(ctx, r.pool, tx, `
SELECT `+jobColumns+`
FROM evaluation_jobs
WHERE status = 'queued'
ORDER BY created_at
LIMIT 1
FOR UPDATE SKIP LOCKED;`)
		if err != nil {
			return err
		}

		job, err := scanJob(row)
		if err != nil {
			return err
		}
		if err := job.MarkProcessing(time.Now()); err != nil {
			return err
		}
		if err := r.Save(ctx, tx, job); err != nil {
			return err
		}
		claimed = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// RequeueStale hands abandoned processing jobs back to the queue. A job is
// abandoned when its worker died without failing it, so updated_at stopped
// moving. Stage progress is kept; the next worker resumes where the dead one
// stopped.
func (r *jobRepo) RequeueStale(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)
	tag, err := execSQL(ctx, r.pool, nil, `
UPDATE evaluation_jobs
SET status = 'queued', started_at = NULL, updated_at = now()
WHERE status = 'processing' AND updated_at < $1;`, cutoff)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *jobRepo) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.JobStatus]int, error) {
	rows, err := pickRows(ctx, r.pool, tx,
		`SELECT status, COUNT(*) FROM evaluation_jobs GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[model.JobStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		counts[model.JobStatus(status)] = n
	}
	return counts, rows.Err()
}

func scanJob(row pgx.Row) (*model.EvaluationJob, error) {
	var (
		job       model.EvaluationJob
		status    string
		progress  []byte
		result    []byte
		errDetail []byte
	)
	err := row.Scan(
		&job.ID, &job.JobTitle, &job.CVDocumentID, &job.ProjectDocumentID, &status,
		&progress, &result, &errDetail, &job.CreatedAt, &job.StartedAt, &job.CompletedAt, &job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	job.Status = model.JobStatus(status)
	if len(progress) > 0 {
		if err := json.Unmarshal(progress, &job.StageProgress); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
	}
	if len(result) > 0 {
		if err := json.Unmarshal(result, &job.Result); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
	}
	if len(errDetail) > 0 {
		job.ErrorDetail = &model.JobError{}
		if err := json.Unmarshal(errDetail, job.ErrorDetail); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
	}
	return &job, nil
}
