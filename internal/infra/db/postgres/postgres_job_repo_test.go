//go:build integration

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"cv-evaluation-service/internal/domain"
	"cv-evaluation-service/internal/domain/model"
)

func saveTestDocuments(t *testing.T, ctx context.Context) (cvID, projectID string) {
	t.Helper()
	docRepo := NewDocumentRepo(testPool)
	cv, _ := model.NewDocument(model.DocumentKindCV, "cv.pdf", "/tmp/cv.pdf")
	cv.ParsedText = "experienced backend engineer"
	project, _ := model.NewDocument(model.DocumentKindProjectReport, "report.pdf", "/tmp/report.pdf")
	project.ParsedText = "take-home project report"
	if err := docRepo.Save(ctx, nil, cv); err != nil {
		t.Fatalf("failed to save cv document: %v", err)
	}
	if err := docRepo.Save(ctx, nil, project); err != nil {
		t.Fatalf("failed to save project document: %v", err)
	}
	return cv.ID, project.ID
}

func TestJobRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}

	ctx := context.Background()
	tm := NewTxManager(testPool)
	repo := NewJobRepo(testPool, tm)

	t.Run("should save and reload a job with partial results", func(t *testing.T) {
		cleanup(t)
		cvID, projectID := saveTestDocuments(t, ctx)

		job, err := model.NewEvaluationJob("Backend Engineer", cvID, projectID)
		if err != nil {
			t.Fatalf("failed to build job: %v", err)
		}
		if err := repo.Save(ctx, nil, job); err != nil {
			t.Fatalf("failed to save new job: %v", err)
		}

		if err := job.MarkProcessing(time.Now()); err != nil {
			t.Fatalf("MarkProcessing: %v", err)
		}
		job.Result.SetCVEvaluation(model.CVEvaluation{
			DetailedScores: model.CVDetailedScores{TechnicalSkillsMatch: 4, ExperienceLevel: 4, RelevantAchievements: 3, CulturalFit: 4},
			MatchRate:      0.78,
			Feedback:       "solid backend profile",
		})
		if err := job.MarkStageDone(model.StageCV); err != nil {
			t.Fatalf("MarkStageDone: %v", err)
		}
		if err := repo.Save(ctx, nil, job); err != nil {
			t.Fatalf("failed to update job: %v", err)
		}

		loaded, err := repo.FindByID(ctx, nil, job.ID)
		if err != nil {
			t.Fatalf("failed to load job: %v", err)
		}
		if loaded.Status != model.JobStatusProcessing {
			t.Errorf("expected processing, got %s", loaded.Status)
		}
		if !loaded.StageDone(model.StageCV) {
			t.Error("expected cv stage progress to survive a round trip")
		}
		if loaded.Result.CVMatchRate == nil || *loaded.Result.CVMatchRate != 0.78 {
			t.Error("expected cv match rate to survive a round trip")
		}
		if loaded.Result.ProjectScore != nil {
			t.Error("unset stage fields must stay nil")
		}
	})

	t.Run("FetchAndMarkProcessing claims the oldest queued job exactly once", func(t *testing.T) {
		cleanup(t)
		cvID, projectID := saveTestDocuments(t, ctx)

		first, _ := model.NewEvaluationJob("Backend Engineer", cvID, projectID)
		first.CreatedAt = time.Now().Add(-time.Minute)
		second, _ := model.NewEvaluationJob("Backend Engineer", cvID, projectID)
		for _, j := range []*model.EvaluationJob{first, second} {
			if err := repo.Save(ctx, nil, j); err != nil {
				t.Fatalf("failed to save job: %v", err)
			}
		}

		claimed, err := repo.FetchAndMarkProcessing(ctx)
		if err != nil {
			t.Fatalf("failed to claim job: %v", err)
		}
		if claimed.ID != first.ID {
			t.Errorf("expected oldest job %s, got %s", first.ID, claimed.ID)
		}
		if claimed.Status != model.JobStatusProcessing {
			t.Errorf("expected claimed job to be processing, got %s", claimed.Status)
		}
		if claimed.StartedAt == nil {
			t.Error("expected StartedAt to be set on claim")
		}

		// Only one queued job remains; a second claim must return it, a third none.
		next, err := repo.FetchAndMarkProcessing(ctx)
		if err != nil {
			t.Fatalf("failed to claim second job: %v", err)
		}
		if next.ID != second.ID {
			t.Errorf("expected job %s, got %s", second.ID, next.ID)
		}
		if _, err := repo.FetchAndMarkProcessing(ctx); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound when queue is drained, got %v", err)
		}
	})

	t.Run("failed job keeps error detail and earlier results", func(t *testing.T) {
		cleanup(t)
		cvID, projectID := saveTestDocuments(t, ctx)

		job, _ := model.NewEvaluationJob("Backend Engineer", cvID, projectID)
		if err := repo.Save(ctx, nil, job); err != nil {
			t.Fatalf("failed to save job: %v", err)
		}
		_ = job.MarkProcessing(time.Now())
		job.Result.SetCVEvaluation(model.CVEvaluation{
			DetailedScores: model.CVDetailedScores{TechnicalSkillsMatch: 4, ExperienceLevel: 3, RelevantAchievements: 3, CulturalFit: 4},
			MatchRate:      0.7,
			Feedback:       "ok",
		})
		_ = job.MarkStageDone(model.StageCV)
		_ = job.Fail(model.JobError{Stage: "project", Code: "llm_exhausted", Message: "gave up"}, time.Now())
		if err := repo.Save(ctx, nil, job); err != nil {
			t.Fatalf("failed to save failed job: %v", err)
		}

		loaded, err := repo.FindByID(ctx, nil, job.ID)
		if err != nil {
			t.Fatalf("failed to load job: %v", err)
		}
		if loaded.Status != model.JobStatusFailed {
			t.Errorf("expected failed, got %s", loaded.Status)
		}
		if loaded.ErrorDetail == nil || loaded.ErrorDetail.Stage != "project" {
			t.Errorf("expected project stage error detail, got %+v", loaded.ErrorDetail)
		}
		if loaded.Result.CVMatchRate == nil {
			t.Error("cv result must remain readable after a later-stage failure")
		}
	})

	t.Run("RequeueStale returns abandoned processing jobs to the queue", func(t *testing.T) {
		cleanup(t)
		cvID, projectID := saveTestDocuments(t, ctx)

		stale, _ := model.NewEvaluationJob("Backend Engineer", cvID, projectID)
		fresh, _ := model.NewEvaluationJob("Backend Engineer", cvID, projectID)
		for _, j := range []*model.EvaluationJob{stale, fresh} {
			_ = j.MarkProcessing(time.Now())
			if err := repo.Save(ctx, nil, j); err != nil {
				t.Fatalf("failed to save job: %v", err)
			}
		}
		// backdate only the stale job's last update
		if _, err := testPool.Exec(ctx,
			`UPDATE evaluation_jobs SET updated_at = now() - interval '1 hour' WHERE id = $1`, stale.ID); err != nil {
			t.Fatalf("failed to backdate job: %v", err)
		}

		n, err := repo.RequeueStale(ctx, 30*time.Minute)
		if err != nil {
			t.Fatalf("RequeueStale: %v", err)
		}
		if n != 1 {
			t.Fatalf("expected 1 requeued job, got %d", n)
		}
		loaded, err := repo.FindByID(ctx, nil, stale.ID)
		if err != nil {
			t.Fatalf("failed to load requeued job: %v", err)
		}
		if loaded.Status != model.JobStatusQueued {
			t.Errorf("expected queued, got %s", loaded.Status)
		}
		if loaded.StartedAt != nil {
			t.Error("expected StartedAt to be cleared on requeue")
		}
		untouched, _ := repo.FindByID(ctx, nil, fresh.ID)
		if untouched.Status != model.JobStatusProcessing {
			t.Errorf("fresh processing job must not be requeued, got %s", untouched.Status)
		}
	})

	t.Run("counts jobs by status", func(t *testing.T) {
		cleanup(t)
		cvID, projectID := saveTestDocuments(t, ctx)

		for i := 0; i < 3; i++ {
			job, _ := model.NewEvaluationJob("Backend Engineer", cvID, projectID)
			if err := repo.Save(ctx, nil, job); err != nil {
				t.Fatalf("failed to save job: %v", err)
			}
		}
		counts, err := repo.CountByStatus(ctx, nil)
		if err != nil {
			t.Fatalf("CountByStatus: %v", err)
		}
		if counts[model.JobStatusQueued] != 3 {
			t.Errorf("expected 3 queued jobs, got %d", counts[model.JobStatusQueued])
		}
	})
}
