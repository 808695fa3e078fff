package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"cv-evaluation-service/internal/config"
	"cv-evaluation-service/internal/domain"
	"cv-evaluation-service/internal/domain/model"
	"cv-evaluation-service/internal/domain/ports/adapter"
	"cv-evaluation-service/internal/domain/ports/repository"
)

func testConfig() *config.Config {
	return &config.Config{
		LLM: config.LLMConfig{
			ScoringTemp:     0.2,
			SummaryTemp:     0.4,
			MaxOutputTokens: 1024,
		},
		Pipeline: config.PipelineConfig{
			TopK:         3,
			MaxReprompts: 2,
		},
	}
}

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// memJobRepo is a small in-memory job repository used by unit tests.
type memJobRepo struct {
	mu      sync.Mutex
	store   map[string]*model.EvaluationJob
	saves   int
	saveErr error
}

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{store: make(map[string]*model.EvaluationJob)}
}

func (m *memJobRepo) Save(ctx context.Context, tx repository.Tx, job *model.EvaluationJob) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	cp.StageProgress = append([]model.Stage(nil), job.StageProgress...)
	m.store[job.ID] = &cp
	m.saves++
	return nil
}

func (m *memJobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.EvaluationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *j
	cp.StageProgress = append([]model.Stage(nil), j.StageProgress...)
	return &cp, nil
}

func (m *memJobRepo) FetchAndMarkProcessing(ctx context.Context) (*model.EvaluationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var oldest *model.EvaluationJob
	for _, j := range m.store {
		if j.Status != model.JobStatusQueued {
			continue
		}
		if oldest == nil || j.CreatedAt.Before(oldest.CreatedAt) {
			oldest = j
		}
	}
	if oldest == nil {
		return nil, domain.ErrNotFound
	}
	if err := oldest.MarkProcessing(time.Now()); err != nil {
		return nil, err
	}
	cp := *oldest
	return &cp, nil
}

func (m *memJobRepo) RequeueStale(ctx context.Context, olderThan time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	cutoff := time.Now().Add(-olderThan)
	for _, j := range m.store {
		if j.Status == model.JobStatusProcessing && j.UpdatedAt.Before(cutoff) {
			j.Status = model.JobStatusQueued
			j.StartedAt = nil
			n++
		}
	}
	return n, nil
}

func (m *memJobRepo) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.JobStatus]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[model.JobStatus]int)
	for _, j := range m.store {
		out[j.Status]++
	}
	return out, nil
}

// memDocRepo backs EvaluationUseCase tests.
type memDocRepo struct {
	mu    sync.Mutex
	store map[string]*model.Document
}

func newMemDocRepo() *memDocRepo {
	return &memDocRepo{store: make(map[string]*model.Document)}
}

func (m *memDocRepo) Save(ctx context.Context, tx repository.Tx, doc *model.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *doc
	m.store[doc.ID] = &cp
	return nil
}

func (m *memDocRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

// memDocStore maps document id -> parsed text; errs simulate missing or
// unparseable documents.
type memDocStore struct {
	texts map[string]string
	errs  map[string]error
}

func newMemDocStore() *memDocStore {
	return &memDocStore{texts: make(map[string]string), errs: make(map[string]error)}
}

func (m *memDocStore) GetParsedText(ctx context.Context, documentID string) (string, error) {
	if err, ok := m.errs[documentID]; ok {
		return "", err
	}
	text, ok := m.texts[documentID]
	if !ok {
		return "", domain.ErrDocumentNotFound
	}
	return text, nil
}

// scriptedLLM returns queued responses in order; calls beyond the script
// return the final entry. A nil error script means all calls succeed.
type scriptedLLM struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	calls     int
	prompts   []adapter.Prompt
}

func (s *scriptedLLM) Complete(ctx context.Context, prompt adapter.Prompt, opts adapter.CompleteOptions) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	s.prompts = append(s.prompts, prompt)
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if len(s.responses) == 0 {
		return "", &domain.LLMExhaustedError{Attempts: 1, LastErr: domain.ErrInvalidArgument}
	}
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	return s.responses[i], nil
}

// stubRetriever returns fixed passages or a fixed error.
type stubRetriever struct {
	passages []adapter.Passage
	err      error
	calls    int
	lastDocs []string
}

func (s *stubRetriever) Retrieve(ctx context.Context, query string, docTypes []string, k int) ([]adapter.Passage, error) {
	s.calls++
	s.lastDocs = docTypes
	if s.err != nil {
		return nil, s.err
	}
	return s.passages, nil
}

func rubricPassages() []adapter.Passage {
	return []adapter.Passage{
		{Text: "Backend engineer with strong Go and LLM integration experience.", Score: 0.92, DocType: adapter.DocTypeJobDescription},
		{Text: "Score technical skills 1-5 weighted 40%.", Score: 0.88, DocType: adapter.DocTypeCVRubric},
		{Text: "Build an evaluation pipeline with retries and RAG context.", Score: 0.9, DocType: adapter.DocTypeCaseStudy},
		{Text: "Score correctness 1-5 weighted 30%.", Score: 0.85, DocType: adapter.DocTypeProjectRubric},
	}
}

const validCVJSON = `{
    "technical_skills_match": 4,
    "experience_level": 3,
    "relevant_achievements": 4,
    "cultural_fit": 5,
    "match_rate": 0.76,
    "feedback": "Strong backend background with relevant AI exposure."
}`

const validProjectJSON = `{
    "correctness": 4,
    "code_quality": 4,
    "resilience": 3,
    "documentation": 4,
    "creativity": 5,
    "overall_score": 3.9,
    "feedback": "Solid chaining design, error handling could go further."
}`

const validSummary = "The candidate shows a strong match for the role. The project demonstrates sound engineering. Recommended for the next round."

// fakeCVStage / fakeProjectStage / fakeSummaryStage let orchestrator tests
// fail an exact stage without scripting LLM responses.
type fakeCVStage struct {
	ev    model.CVEvaluation
	err   error
	calls int
}

func (f *fakeCVStage) Run(ctx context.Context, cvText, jobTitle string) (model.CVEvaluation, error) {
	f.calls++
	return f.ev, f.err
}

type fakeProjectStage struct {
	ev    model.ProjectEvaluation
	err   error
	calls int
}

func (f *fakeProjectStage) Run(ctx context.Context, projectText string) (model.ProjectEvaluation, error) {
	f.calls++
	return f.ev, f.err
}

type fakeSummaryStage struct {
	summary string
	err     error
	calls   int
}

func (f *fakeSummaryStage) Run(ctx context.Context, jobTitle string, cv model.CVEvaluation, project model.ProjectEvaluation) (string, error) {
	f.calls++
	return f.summary, f.err
}

func goodCVEval() model.CVEvaluation {
	return model.CVEvaluation{
		DetailedScores: model.CVDetailedScores{TechnicalSkillsMatch: 4, ExperienceLevel: 3, RelevantAchievements: 4, CulturalFit: 5},
		MatchRate:      0.76,
		Feedback:       "Strong backend background.",
	}
}

func goodProjectEval() model.ProjectEvaluation {
	return model.ProjectEvaluation{
		DetailedScores: model.ProjectDetailedScores{Correctness: 4, CodeQuality: 4, Resilience: 3, Documentation: 4, Creativity: 5},
		Score:          3.9,
		Feedback:       "Solid chaining design.",
	}
}
