package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"cv-evaluation-service/internal/domain"
	"cv-evaluation-service/internal/domain/model"
	"cv-evaluation-service/internal/infra/logging"
)

type uploadedDocument struct {
	ID           string    `json:"id"`
	Filename     string    `json:"filename"`
	DocumentType string    `json:"document_type"`
	UploadedAt   time.Time `json:"uploaded_at"`
	ParseError   string    `json:"parse_error,omitempty"`
}

type uploadResponse struct {
	CV            uploadedDocument `json:"cv"`
	ProjectReport uploadedDocument `json:"project_report"`
}

// handleUpload accepts a multipart form with a "cv" part and a
// "project_report" part and stores both documents.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	log := logging.With(r.Context(), s.log)
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
	if err := r.ParseMultipartForm(s.maxBody); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	var resp uploadResponse
	for _, part := range []struct {
		field string
		kind  model.DocumentKind
		dst   *uploadedDocument
	}{
		{"cv", model.DocumentKindCV, &resp.CV},
		{"project_report", model.DocumentKindProjectReport, &resp.ProjectReport},
	} {
		file, header, err := r.FormFile(part.field)
		if err != nil {
			writeError(w, http.StatusBadRequest, "missing file field "+part.field)
			return
		}
		doc, err := s.uploads.Upload(r.Context(), part.kind, header.Filename, file)
		file.Close()
		if err != nil {
			if errors.Is(err, domain.ErrInvalidArgument) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			log.Error().Err(err).Str("field", part.field).Msg("document upload failed")
			writeError(w, http.StatusInternalServerError, "failed to store document")
			return
		}
		*part.dst = uploadedDocument{
			ID:           doc.ID,
			Filename:     doc.OriginalName,
			DocumentType: string(doc.Kind),
			UploadedAt:   doc.UploadedAt,
			ParseError:   doc.ParseError,
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

type evaluateRequest struct {
	JobTitle        string `json:"job_title"`
	CVID            string `json:"cv_id"`
	ProjectReportID string `json:"project_report_id"`
}

type evaluateResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// handleEvaluate enqueues an evaluation job and returns immediately with
// its id; results arrive asynchronously through /result/{id}.
func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	log := logging.With(r.Context(), s.log)

	var req evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	job, err := s.evals.Enqueue(r.Context(), req.JobTitle, req.CVID, req.ProjectReportID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrDocumentNotFound):
			writeError(w, http.StatusNotFound, "document not found")
		case errors.Is(err, domain.ErrInvalidArgument):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			log.Error().Err(err).Msg("failed to enqueue evaluation")
			writeError(w, http.StatusInternalServerError, "failed to enqueue evaluation")
		}
		return
	}

	writeJSON(w, http.StatusOK, evaluateResponse{ID: job.ID, Status: string(job.Status)})
}

type resultResponse struct {
	ID            string                  `json:"id"`
	Status        string                  `json:"status"`
	StageProgress []string                `json:"stage_progress"`
	Result        *model.EvaluationResult `json:"result,omitempty"`
	Error         *model.JobError         `json:"error,omitempty"`
	CreatedAt     time.Time               `json:"created_at"`
	CompletedAt   *time.Time              `json:"completed_at,omitempty"`
}

// handleResult returns the job's current status. The result block carries
// whatever stage outputs have been persisted so far, so a failed job still
// exposes the stages that did finish; the error block appears only once the
// job failed.
func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	job, err := s.evals.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		logging.With(r.Context(), s.log).Error().Err(err).Msg("failed to load job")
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}

	progress := make([]string, 0, len(job.StageProgress))
	for _, stage := range job.StageProgress {
		progress = append(progress, string(stage))
	}
	resp := resultResponse{
		ID:            job.ID,
		Status:        string(job.Status),
		StageProgress: progress,
		CreatedAt:     job.CreatedAt,
		CompletedAt:   job.CompletedAt,
	}
	if len(job.StageProgress) > 0 {
		result := job.Result
		resp.Result = &result
	}
	if job.Status == model.JobStatusFailed {
		resp.Error = job.ErrorDetail
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleHealthz reports liveness plus queue depth per status.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	depth, err := s.evals.QueueDepth(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "degraded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "jobs": depth})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
