//go:build !integration

package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"cv-evaluation-service/internal/domain"
	"cv-evaluation-service/internal/domain/model"
)

type fakeUploader struct {
	err  error
	docs []*model.Document
}

func (f *fakeUploader) Upload(ctx context.Context, kind model.DocumentKind, originalName string, r io.Reader) (*model.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	doc, err := model.NewDocument(kind, originalName, "/tmp/"+originalName)
	if err != nil {
		return nil, err
	}
	doc.ParsedText = "extracted"
	f.docs = append(f.docs, doc)
	return doc, nil
}

type fakeEvals struct {
	jobs       map[string]*model.EvaluationJob
	enqueueErr error
}

func newFakeEvals() *fakeEvals { return &fakeEvals{jobs: make(map[string]*model.EvaluationJob)} }

func (f *fakeEvals) Enqueue(ctx context.Context, jobTitle, cvDocumentID, projectDocumentID string) (*model.EvaluationJob, error) {
	if f.enqueueErr != nil {
		return nil, f.enqueueErr
	}
	job, err := model.NewEvaluationJob(jobTitle, cvDocumentID, projectDocumentID)
	if err != nil {
		return nil, err
	}
	f.jobs[job.ID] = job
	return job, nil
}

func (f *fakeEvals) GetJob(ctx context.Context, id string) (*model.EvaluationJob, error) {
	job, ok := f.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return job, nil
}

func (f *fakeEvals) QueueDepth(ctx context.Context) (map[model.JobStatus]int, error) {
	out := make(map[model.JobStatus]int)
	for _, j := range f.jobs {
		out[j.Status]++
	}
	return out, nil
}

func testServer(uploads documentUploader, evals evaluationAPI) *Server {
	log := zerolog.Nop()
	return NewServer(uploads, evals, &log)
}

func multipartBody(t *testing.T, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for field, filename := range fields {
		fw, err := mw.CreateFormFile(field, filename)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := fw.Write([]byte("file content")); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func TestUploadBothDocuments(t *testing.T) {
	uploads := &fakeUploader{}
	srv := testServer(uploads, newFakeEvals())

	body, contentType := multipartBody(t, map[string]string{
		"cv":             "cv.pdf",
		"project_report": "report.pdf",
	})
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp uploadResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.CV.ID == "" || resp.ProjectReport.ID == "" {
		t.Fatalf("missing document ids: %+v", resp)
	}
	if resp.CV.DocumentType != "cv" || resp.ProjectReport.DocumentType != "project_report" {
		t.Fatalf("wrong document types: %+v", resp)
	}
	if len(uploads.docs) != 2 {
		t.Fatalf("uploader calls = %d, want 2", len(uploads.docs))
	}
}

func TestUploadMissingPart(t *testing.T) {
	srv := testServer(&fakeUploader{}, newFakeEvals())

	body, contentType := multipartBody(t, map[string]string{"cv": "cv.pdf"})
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestEvaluateEnqueuesJob(t *testing.T) {
	evals := newFakeEvals()
	srv := testServer(&fakeUploader{}, evals)

	req := httptest.NewRequest(http.MethodPost, "/evaluate",
		strings.NewReader(`{"job_title":"Backend Engineer","cv_id":"cv-1","project_report_id":"pr-1"}`))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp evaluateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "queued" || resp.ID == "" {
		t.Fatalf("response = %+v", resp)
	}
}

func TestEvaluateUnknownDocument(t *testing.T) {
	evals := newFakeEvals()
	evals.enqueueErr = domain.ErrNotFound
	srv := testServer(&fakeUploader{}, evals)

	req := httptest.NewRequest(http.MethodPost, "/evaluate",
		strings.NewReader(`{"job_title":"Backend Engineer","cv_id":"nope","project_report_id":"nope"}`))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestEvaluateEmptyJobTitle(t *testing.T) {
	evals := newFakeEvals()
	evals.enqueueErr = domain.ErrInvalidArgument
	srv := testServer(&fakeUploader{}, evals)

	req := httptest.NewRequest(http.MethodPost, "/evaluate",
		strings.NewReader(`{"job_title":"","cv_id":"cv-1","project_report_id":"pr-1"}`))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestResultQueuedHidesResultBlock(t *testing.T) {
	evals := newFakeEvals()
	srv := testServer(&fakeUploader{}, evals)
	job, _ := evals.Enqueue(context.Background(), "Backend Engineer", "cv-1", "pr-1")

	req := httptest.NewRequest(http.MethodGet, "/result/"+job.ID, nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := raw["result"]; ok {
		t.Fatal("queued job must not expose a result block")
	}
	if _, ok := raw["error"]; ok {
		t.Fatal("queued job must not expose an error block")
	}
	if _, ok := raw["stage_progress"]; !ok {
		t.Fatal("stage_progress must always be present")
	}
}

func TestResultCompletedJob(t *testing.T) {
	evals := newFakeEvals()
	srv := testServer(&fakeUploader{}, evals)
	job, _ := evals.Enqueue(context.Background(), "Backend Engineer", "cv-1", "pr-1")
	_ = job.MarkProcessing(time.Now())
	job.Result.SetCVEvaluation(model.CVEvaluation{
		DetailedScores: model.CVDetailedScores{TechnicalSkillsMatch: 4, ExperienceLevel: 3, RelevantAchievements: 4, CulturalFit: 5},
		MatchRate:      0.76, Feedback: "solid",
	})
	_ = job.MarkStageDone(model.StageCV)
	job.Result.SetProjectEvaluation(model.ProjectEvaluation{
		DetailedScores: model.ProjectDetailedScores{Correctness: 4, CodeQuality: 4, Resilience: 3, Documentation: 4, Creativity: 5},
		Score:          3.9, Feedback: "good",
	})
	_ = job.MarkStageDone(model.StageProject)
	job.Result.SetOverallSummary("Recommended.")
	_ = job.MarkStageDone(model.StageSummary)
	_ = job.Complete(time.Now())

	req := httptest.NewRequest(http.MethodGet, "/result/"+job.ID, nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	var resp resultResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "completed" || resp.Result == nil {
		t.Fatalf("response = %+v", resp)
	}
	if resp.Result.CVMatchRate == nil || *resp.Result.CVMatchRate != 0.76 {
		t.Fatalf("cv_match_rate = %+v", resp.Result.CVMatchRate)
	}
	if resp.Result.OverallSummary == nil || *resp.Result.OverallSummary != "Recommended." {
		t.Fatalf("overall_summary missing")
	}
	if resp.CompletedAt == nil {
		t.Fatal("completed_at missing")
	}
}

func TestResultFailedJobExposesErrorDetail(t *testing.T) {
	evals := newFakeEvals()
	srv := testServer(&fakeUploader{}, evals)
	job, _ := evals.Enqueue(context.Background(), "Backend Engineer", "cv-1", "pr-1")
	_ = job.MarkProcessing(time.Now())
	_ = job.Fail(model.JobError{Stage: "cv", Code: "llm_exhausted", Message: "rate limited"}, time.Now())

	req := httptest.NewRequest(http.MethodGet, "/result/"+job.ID, nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	var resp resultResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "failed" || resp.Error == nil {
		t.Fatalf("response = %+v", resp)
	}
	if resp.Error.Code != "llm_exhausted" || resp.Error.Stage != "cv" {
		t.Fatalf("error detail = %+v", resp.Error)
	}
	if resp.Result != nil {
		t.Fatal("job that failed before producing any stage output must not expose a result block")
	}
	if len(resp.StageProgress) != 0 {
		t.Fatalf("stage_progress = %v, want empty", resp.StageProgress)
	}
}

func TestResultFailedJobExposesPartialResult(t *testing.T) {
	evals := newFakeEvals()
	srv := testServer(&fakeUploader{}, evals)
	job, _ := evals.Enqueue(context.Background(), "Backend Engineer", "cv-1", "pr-1")
	_ = job.MarkProcessing(time.Now())
	job.Result.SetCVEvaluation(model.CVEvaluation{
		DetailedScores: model.CVDetailedScores{TechnicalSkillsMatch: 4, ExperienceLevel: 3, RelevantAchievements: 4, CulturalFit: 5},
		MatchRate:      0.76, Feedback: "solid",
	})
	_ = job.MarkStageDone(model.StageCV)
	_ = job.Fail(model.JobError{Stage: "project", Code: "llm_exhausted", Message: "rate limited"}, time.Now())

	req := httptest.NewRequest(http.MethodGet, "/result/"+job.ID, nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	var resp resultResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "failed" || resp.Error == nil {
		t.Fatalf("response = %+v", resp)
	}
	if resp.Result == nil {
		t.Fatal("persisted cv output must stay visible after a later-stage failure")
	}
	if resp.Result.CVMatchRate == nil || *resp.Result.CVMatchRate != 0.76 {
		t.Fatalf("cv_match_rate = %+v", resp.Result.CVMatchRate)
	}
	if resp.Result.ProjectScore != nil {
		t.Fatal("unfinished project stage must not appear in the result")
	}
	if len(resp.StageProgress) != 1 || resp.StageProgress[0] != "cv" {
		t.Fatalf("stage_progress = %v, want [cv]", resp.StageProgress)
	}
}

func TestResultUnknownJob(t *testing.T) {
	srv := testServer(&fakeUploader{}, newFakeEvals())
	req := httptest.NewRequest(http.MethodGet, "/result/does-not-exist", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestHealthzReportsQueueDepth(t *testing.T) {
	evals := newFakeEvals()
	_, _ = evals.Enqueue(context.Background(), "Backend Engineer", "cv-1", "pr-1")
	srv := testServer(&fakeUploader{}, evals)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"queued":1`) {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestRequestIDEchoedBack(t *testing.T) {
	srv := testServer(&fakeUploader{}, newFakeEvals())
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "trace-123")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-Id"); got != "trace-123" {
		t.Fatalf("X-Request-Id = %q", got)
	}
}
