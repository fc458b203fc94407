package evaluation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
)

type transition struct {
	status Status
	stage  Stage
}

type resultRow struct {
	raw map[string]json.RawMessage

	cvMatchRate     *float64
	cvFeedback      *string
	projectScore    *float64
	projectFeedback *string
	overallSummary  *string
}

type memRepo struct {
	mu       sync.Mutex
	jobs     map[string]*Job
	results  map[string]*resultRow
	history  map[string][]transition
	creates  int
	getCalls int

	// hooks
	getJob    func(call int, id string) (job Job, handled bool, err error)
	createErr error
}

func newMemRepo() *memRepo {
	return &memRepo{
		jobs:    map[string]*Job{},
		results: map[string]*resultRow{},
		history: map[string][]transition{},
	}
}

func (m *memRepo) CreateJob(_ context.Context, job Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.creates++
	if m.createErr != nil {
		return m.createErr
	}
	if _, ok := m.jobs[job.ID]; ok {
		return ErrDuplicateJob
	}
	j := job
	m.jobs[job.ID] = &j
	m.history[job.ID] = append(m.history[job.ID], transition{status: job.Status, stage: job.Stage})
	return nil
}

func (m *memRepo) GetJob(_ context.Context, id string) (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.getCalls++
	if m.getJob != nil {
		if job, handled, err := m.getJob(m.getCalls, id); handled {
			return job, err
		}
	}
	job, ok := m.jobs[id]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	return *job, nil
}

func (m *memRepo) UpdateJob(_ context.Context, id string, patch JobPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if job.Status.Terminal() {
		return fmt.Errorf("job %s is already %s: %w", id, job.Status, ErrJobFinalized)
	}

	if patch.Status.IsSet() {
		job.Status, _ = patch.Status.Get()
	}
	if patch.Stage.IsSet() {
		job.Stage, _ = patch.Stage.Get()
	}
	if patch.ErrorMessage.IsSet() {
		job.ErrorMessage, _ = patch.ErrorMessage.Get()
	}
	m.history[id] = append(m.history[id], transition{status: job.Status, stage: job.Stage})
	return nil
}

func (m *memRepo) CreateResult(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.results[jobID]; !ok {
		m.results[jobID] = &resultRow{raw: map[string]json.RawMessage{}}
	}
	return nil
}

func (m *memRepo) UpdateResult(_ context.Context, jobID string, patch ResultPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.results[jobID]
	if !ok {
		return errors.New("result row missing")
	}

	setRaw := func(name string, f Field[json.RawMessage]) {
		if v, ok := f.Get(); f.IsSet() && ok {
			row.raw[name] = v
		}
	}
	setRaw("cv", patch.RawCV)
	setRaw("project", patch.RawProject)
	setRaw("cv_score", patch.RawCVScore)
	setRaw("project_score", patch.RawProjectScore)

	if v, ok := patch.CVMatchRate.Get(); patch.CVMatchRate.IsSet() && ok {
		row.cvMatchRate = &v
	}
	if v, ok := patch.CVFeedback.Get(); patch.CVFeedback.IsSet() && ok {
		row.cvFeedback = &v
	}
	if v, ok := patch.ProjectScore.Get(); patch.ProjectScore.IsSet() && ok {
		row.projectScore = &v
	}
	if v, ok := patch.ProjectFeedback.Get(); patch.ProjectFeedback.IsSet() && ok {
		row.projectFeedback = &v
	}
	if v, ok := patch.OverallSummary.Get(); patch.OverallSummary.IsSet() && ok {
		row.overallSummary = &v
	}
	return nil
}

func (m *memRepo) GetView(_ context.Context, id string) (View, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return View{}, ErrJobNotFound
	}
	view := View{ID: id, Status: job.Status, Stage: job.Stage, ErrorMessage: job.ErrorMessage}

	row := m.results[id]
	if row != nil && (row.cvMatchRate != nil || row.cvFeedback != nil || row.projectScore != nil ||
		row.projectFeedback != nil || row.overallSummary != nil) {
		res := &Result{}
		if row.cvMatchRate != nil {
			res.CVMatchRate = *row.cvMatchRate
		}
		if row.cvFeedback != nil {
			res.CVFeedback = *row.cvFeedback
		}
		if row.projectScore != nil {
			res.ProjectScore = *row.projectScore
		}
		if row.projectFeedback != nil {
			res.ProjectFeedback = *row.projectFeedback
		}
		if row.overallSummary != nil {
			res.OverallSummary = *row.overallSummary
		}
		view.Result = res
	}
	return view, nil
}

func (m *memRepo) transitions(id string) []transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]transition(nil), m.history[id]...)
}

func (m *memRepo) raw(id, name string) (json.RawMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.results[id]
	if !ok {
		return nil, false
	}
	v, ok := row.raw[name]
	return v, ok
}

type memDocs map[string][]byte

func (d memDocs) Exists(_ context.Context, id string) (bool, error) {
	_, ok := d[id]
	return ok, nil
}

func (d memDocs) Open(_ context.Context, id string) ([]byte, error) {
	data, ok := d[id]
	if !ok {
		return nil, errors.New("document not found")
	}
	return data, nil
}

type plainExtractor struct{}

func (plainExtractor) Extract(_ context.Context, data []byte) (string, error) {
	return string(data), nil
}

type stubParser struct {
	resume func(ctx context.Context, text string) (map[string]any, error)
	report func(ctx context.Context, text string) (map[string]any, error)
}

func (s stubParser) ParseResume(ctx context.Context, text string) (map[string]any, error) {
	if s.resume != nil {
		return s.resume(ctx, text)
	}
	return map[string]any{"candidate": map[string]any{"full_name": "Ada"}, "summary": text}, nil
}

func (s stubParser) ParseProjectReport(ctx context.Context, text string) (map[string]any, error) {
	if s.report != nil {
		return s.report(ctx, text)
	}
	return map[string]any{"title": "Evaluator", "summary": text}, nil
}

type stubScorer struct {
	mu     sync.Mutex
	inputs []ScoreInput

	// resume replaces the default résumé scoring when set
	resume map[string]any
}

func (s *stubScorer) ScoreResume(_ context.Context, in ScoreInput) (map[string]any, error) {
	s.mu.Lock()
	s.inputs = append(s.inputs, in)
	s.mu.Unlock()

	if s.resume != nil {
		return s.resume, nil
	}
	return map[string]any{
		"technical_skills_match": 5, "technical_skills_weight": 25,
		"experience_level": 5, "experience_level_weight": 25,
		"relevant_achievements": 5, "relevant_achievements_weight": 25,
		"cultural_collaboration_fit": 5, "cultural_collaboration_fit_weight": 25,
		"cv_feedback": "Strong match.",
	}, nil
}

func (s *stubScorer) ScoreProjectReport(_ context.Context, in ScoreInput) (map[string]any, error) {
	s.mu.Lock()
	s.inputs = append(s.inputs, in)
	s.mu.Unlock()

	return map[string]any{
		"correctness": 4, "correctness_weight": 50,
		"code_quality_structure": 3, "code_quality_structure_weight": 50,
		"project_feedback": "Works, needs tests.",
	}, nil
}

type stubRetriever struct {
	mu      sync.Mutex
	queries []string
}

func (s *stubRetriever) Query(_ context.Context, query string, topK int) ([]Snippet, error) {
	s.mu.Lock()
	s.queries = append(s.queries, fmt.Sprintf("%s|%d", query, topK))
	s.mu.Unlock()

	return []Snippet{
		{ChunkID: "a", Text: "first: " + query},
		{ChunkID: "b", Text: "second"},
	}, nil
}

type stubSummarizer struct{}

func (stubSummarizer) Summarize(_ context.Context, cv, report map[string]any) (string, error) {
	return fmt.Sprintf("cv %v, project %v", cv["cv_match_rate"], report["project_score"]), nil
}

type recordingQueue struct {
	mu    sync.Mutex
	tasks []Task
	err   error
}

func (q *recordingQueue) Enqueue(_ context.Context, task Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.tasks = append(q.tasks, task)
	return nil
}

type errTransientRemote struct{ msg string }

func (e errTransientRemote) Error() string { return e.msg }

func isTransient(err error) bool {
	var t errTransientRemote
	return errors.As(err, &t)
}

func containsAll(s string, parts ...string) bool {
	for _, p := range parts {
		if !strings.Contains(s, p) {
			return false
		}
	}
	return true
}
