package web

import (
	"context"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"cv-evaluation-service/internal/domain/model"
	"cv-evaluation-service/internal/infra/logging"
)

// documentUploader is what the upload handler needs from the storage layer.
type documentUploader interface {
	Upload(ctx context.Context, kind model.DocumentKind, originalName string, r io.Reader) (*model.Document, error)
}

// evaluationAPI is the submission-side use case surface.
type evaluationAPI interface {
	Enqueue(ctx context.Context, jobTitle, cvDocumentID, projectDocumentID string) (*model.EvaluationJob, error)
	GetJob(ctx context.Context, id string) (*model.EvaluationJob, error)
	QueueDepth(ctx context.Context) (map[model.JobStatus]int, error)
}

// Server exposes the candidate-facing HTTP API: upload documents, enqueue an
// evaluation, poll for its result.
type Server struct {
	uploads documentUploader
	evals   evaluationAPI
	maxBody int64
	log     *zerolog.Logger
}

func NewServer(uploads documentUploader, evals evaluationAPI, log *zerolog.Logger) *Server {
	return &Server{uploads: uploads, evals: evals, maxBody: 10 << 20, log: log}
}

// Router builds the chi router with request scoping middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.traceMiddleware)

	r.Post("/upload", s.handleUpload)
	r.Post("/evaluate", s.handleEvaluate)
	r.Get("/result/{jobID}", s.handleResult)
	r.Get("/healthz", s.handleHealthz)
	return r
}

// traceMiddleware stamps every request with a trace id carried through logs
// and returned to the caller.
func (s *Server) traceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get("X-Request-Id")
		if traceID == "" {
			traceID = uuid.NewString()
		}
		ctx := logging.WithTraceID(r.Context(), traceID)
		w.Header().Set("X-Request-Id", traceID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
