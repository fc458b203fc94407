package evaluation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spigell/cv-evaluator/internal/logger"
	"github.com/spigell/cv-evaluator/internal/retry"
	"github.com/spigell/cv-evaluator/internal/scoring"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultJobTimeout    = 10 * time.Minute
	DefaultRetrievalTopK = 2

	// finalizeTimeout bounds the failure write that runs after the job context is gone.
	finalizeTimeout = 15 * time.Second
)

const (
	cvRubricQuery     = "Scoring rubric for CV Match Evaluation"
	reportRubricQuery = "Scoring rubric for Project Deliverable Evaluation"
)

var (
	errEmptyCVText     = errors.New("Unable to extract text from CV PDF.")
	errEmptyReportText = errors.New("Unable to extract text from Report Project PDF.")
)

type RunnerConfig struct {
	// JobTimeout is the deadline for one pipeline run. Zero means DefaultJobTimeout.
	JobTimeout time.Duration
	// CVScale multiplies the CV weighted average. Zero means scoring.DefaultCVScale.
	CVScale float64
	// ParallelBranches runs the CV and report branches concurrently.
	ParallelBranches bool
	// RetrievalTopK is the number of snippets fetched per context query.
	RetrievalTopK int
}

type RunnerDeps struct {
	Jobs       JobRepository
	Results    ResultRepository
	Documents  DocumentStore
	Extractor  TextExtractor
	Parser     Parser
	Scorer     Scorer
	Retriever  Retriever
	Summarizer Summarizer
	Retrier    *retry.Retrier
	Logger     *zap.Logger
	Observer   Observer
}

// Runner drives one admitted job through every stage to a terminal status.
// It keeps no state between runs.
type Runner struct {
	cfg  RunnerConfig
	deps RunnerDeps
}

func NewRunner(cfg RunnerConfig, deps RunnerDeps) *Runner {
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = DefaultJobTimeout
	}
	if cfg.CVScale == 0 {
		cfg.CVScale = scoring.DefaultCVScale
	}
	if cfg.RetrievalTopK <= 0 {
		cfg.RetrievalTopK = DefaultRetrievalTopK
	}
	deps.Logger = logger.WithFields(deps.Logger)
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}
	if deps.Retrier == nil {
		// a single attempt never fails validation
		deps.Retrier, _ = retry.New(retry.Policy{Attempts: 1}, nil, deps.Logger)
	}
	return &Runner{cfg: cfg, deps: deps}
}

// Run executes the pipeline for task. A failure is recorded on the job and
// also returned; the returned error is always an *Error.
func (r *Runner) Run(ctx context.Context, task Task) error {
	jobCtx, cancel := context.WithTimeout(ctx, r.cfg.JobTimeout)
	defer cancel()

	p := &pipeline{
		runner:    r,
		task:      task,
		log:       logger.WithJob(r.deps.Logger, task.JobID),
		lastStage: -1,
	}

	r.deps.Observer.JobStarted()
	p.log.Info("evaluation started", zap.String("job_title", task.Request.JobTitle))

	err := p.execute(jobCtx)
	p.finishStage()

	if err == nil {
		r.deps.Observer.JobFinished(StatusCompleted, "")
		p.log.Info("evaluation completed")
		return nil
	}

	failure := p.classify(ctx, jobCtx, err)
	p.log.Error("evaluation failed",
		zap.String(logger.FieldStage, string(failure.Stage)),
		zap.String("kind", string(failure.Kind)),
		zap.Error(failure),
	)

	// The job context may already be expired; the failure must still land.
	finalCtx, finalCancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer finalCancel()

	if uerr := r.deps.Jobs.UpdateJob(finalCtx, task.JobID, JobPatch{
		Status:       Set(StatusFailed),
		Stage:        Null[Stage](),
		ErrorMessage: Set(failure.Error()),
	}); errors.Is(uerr, ErrJobFinalized) {
		p.log.Warn("job finished before its failure was recorded", zap.Error(uerr))
	} else if uerr != nil {
		p.log.Error("recording job failure", zap.Error(uerr))
	}

	r.deps.Observer.JobFinished(StatusFailed, failure.Kind)
	return failure
}

type pipeline struct {
	runner *Runner
	task   Task
	log    *zap.Logger

	mu         sync.Mutex
	lastStage  int
	stage      Stage
	stageStart time.Time
}

func (p *pipeline) execute(ctx context.Context) error {
	deps := p.runner.deps

	p.mu.Lock()
	p.lastStage = StageCVIngest.Index()
	p.stage = StageCVIngest
	p.stageStart = time.Now()
	p.mu.Unlock()

	if err := deps.Jobs.UpdateJob(ctx, p.task.JobID, JobPatch{
		Status:       Set(StatusProcessing),
		Stage:        Set(StageCVIngest),
		ErrorMessage: Null[string](),
	}); err != nil {
		return p.persistenceError("start job", err)
	}

	if err := deps.Results.CreateResult(ctx, p.task.JobID); err != nil {
		return p.persistenceError("create result", err)
	}

	scoredCV, scoredReport, err := p.runBranches(ctx)
	if err != nil {
		return err
	}

	summary, err := retry.Do(ctx, deps.Retrier, "summarize", func(ctx context.Context) (string, error) {
		return deps.Summarizer.Summarize(ctx, scoredCV, scoredReport)
	})
	if err != nil {
		return p.adapterError("summarize", err)
	}

	cv, err := scoring.DecodeCV(scoredCV)
	if err != nil {
		return newError(KindAdapter, p.currentStage(), err)
	}
	project, err := scoring.DecodeProject(scoredReport)
	if err != nil {
		return newError(KindAdapter, p.currentStage(), err)
	}

	if err := deps.Results.UpdateResult(ctx, p.task.JobID, ResultPatch{
		CVMatchRate:     Set(cv.MatchRate),
		CVFeedback:      Set(cv.Feedback),
		ProjectScore:    Set(project.Score),
		ProjectFeedback: Set(project.Feedback),
		OverallSummary:  Set(summary),
	}); err != nil {
		return p.persistenceError("persist final result", err)
	}

	if err := deps.Jobs.UpdateJob(ctx, p.task.JobID, JobPatch{
		Status: Set(StatusCompleted),
		Stage:  Null[Stage](),
	}); err != nil {
		return p.persistenceError("complete job", err)
	}

	return nil
}

func (p *pipeline) runBranches(ctx context.Context) (map[string]any, map[string]any, error) {
	if !p.runner.cfg.ParallelBranches {
		scoredCV, err := p.cvBranch(ctx)
		if err != nil {
			return nil, nil, err
		}
		scoredReport, err := p.reportBranch(ctx)
		if err != nil {
			return nil, nil, err
		}
		return scoredCV, scoredReport, nil
	}

	var scoredCV, scoredReport map[string]any
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		scoredCV, err = p.cvBranch(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		scoredReport, err = p.reportBranch(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return scoredCV, scoredReport, nil
}

func (p *pipeline) cvBranch(ctx context.Context) (map[string]any, error) {
	deps := p.runner.deps
	req := p.task.Request

	text, err := p.extractText(ctx, req.CVID, errEmptyCVText)
	if err != nil {
		return nil, err
	}

	if err := p.advance(ctx, StageCVExtract); err != nil {
		return nil, err
	}

	structured, err := retry.Do(ctx, deps.Retrier, "parse resume", func(ctx context.Context) (map[string]any, error) {
		return deps.Parser.ParseResume(ctx, text)
	})
	if err != nil {
		return nil, p.adapterError("parse resume", err)
	}

	if err := p.persistSnapshot(ctx, "cv", structured, func(raw json.RawMessage) ResultPatch {
		return ResultPatch{RawCV: Set(raw)}
	}); err != nil {
		return nil, err
	}

	if err := p.advance(ctx, StageCVScoring); err != nil {
		return nil, err
	}

	rubric, err := p.retrieve(ctx, cvRubricQuery)
	if err != nil {
		return nil, err
	}
	description, err := p.retrieve(ctx, "Job description for role: "+req.JobTitle)
	if err != nil {
		return nil, err
	}

	scored, err := retry.Do(ctx, deps.Retrier, "score resume", func(ctx context.Context) (map[string]any, error) {
		return deps.Scorer.ScoreResume(ctx, ScoreInput{
			JobTitle:  req.JobTitle,
			Rubric:    rubric,
			Reference: description,
			Document:  structured,
		})
	})
	if err != nil {
		return nil, p.adapterError("score resume", err)
	}
	if scored == nil {
		scored = map[string]any{}
	}

	scored["cv_match_rate"] = scoring.CVMatchRate(scored, p.runner.cfg.CVScale)

	if err := p.persistSnapshot(ctx, "cv score", scored, func(raw json.RawMessage) ResultPatch {
		return ResultPatch{RawCVScore: Set(raw)}
	}); err != nil {
		return nil, err
	}

	return scored, nil
}

func (p *pipeline) reportBranch(ctx context.Context) (map[string]any, error) {
	deps := p.runner.deps
	req := p.task.Request

	text, err := p.extractText(ctx, req.ReportID, errEmptyReportText)
	if err != nil {
		return nil, err
	}

	if err := p.advance(ctx, StageReportExtract); err != nil {
		return nil, err
	}

	structured, err := retry.Do(ctx, deps.Retrier, "parse project report", func(ctx context.Context) (map[string]any, error) {
		return deps.Parser.ParseProjectReport(ctx, text)
	})
	if err != nil {
		return nil, p.adapterError("parse project report", err)
	}

	if err := p.persistSnapshot(ctx, "project report", structured, func(raw json.RawMessage) ResultPatch {
		return ResultPatch{RawProject: Set(raw)}
	}); err != nil {
		return nil, err
	}

	if err := p.advance(ctx, StageReportScoring); err != nil {
		return nil, err
	}

	rubric, err := p.retrieve(ctx, reportRubricQuery)
	if err != nil {
		return nil, err
	}
	brief, err := p.retrieve(ctx, "Case study brief for role: "+req.JobTitle)
	if err != nil {
		return nil, err
	}

	scored, err := retry.Do(ctx, deps.Retrier, "score project report", func(ctx context.Context) (map[string]any, error) {
		return deps.Scorer.ScoreProjectReport(ctx, ScoreInput{
			JobTitle:  req.JobTitle,
			Rubric:    rubric,
			Reference: brief,
			Document:  structured,
		})
	})
	if err != nil {
		return nil, p.adapterError("score project report", err)
	}
	if scored == nil {
		scored = map[string]any{}
	}

	scored["project_score"] = scoring.ProjectScore(scored)

	if err := p.persistSnapshot(ctx, "project score", scored, func(raw json.RawMessage) ResultPatch {
		return ResultPatch{RawProjectScore: Set(raw)}
	}); err != nil {
		return nil, err
	}

	return scored, nil
}

func (p *pipeline) extractText(ctx context.Context, docID string, emptyErr error) (string, error) {
	deps := p.runner.deps

	data, err := deps.Documents.Open(ctx, docID)
	if err != nil {
		return "", p.persistenceError("open document "+docID, err)
	}

	text, err := deps.Extractor.Extract(ctx, data)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		p.log.Warn("text extraction failed", zap.String("document_id", docID), zap.Error(err))
		text = ""
	}

	if strings.TrimSpace(text) == "" {
		return "", newError(KindExtraction, p.currentStage(), emptyErr)
	}

	return text, nil
}

func (p *pipeline) retrieve(ctx context.Context, query string) (string, error) {
	deps := p.runner.deps

	snippets, err := retry.Do(ctx, deps.Retrier, "retrieve context", func(ctx context.Context) ([]Snippet, error) {
		return deps.Retriever.Query(ctx, query, p.runner.cfg.RetrievalTopK)
	})
	if err != nil {
		return "", p.adapterError("retrieve context", err)
	}

	texts := make([]string, 0, len(snippets))
	for _, s := range snippets {
		texts = append(texts, s.Text)
	}

	p.log.Debug("retrieved context", zap.String("query", query), zap.Int("snippets", len(snippets)))
	return strings.Join(texts, "\n"), nil
}

func (p *pipeline) persistSnapshot(ctx context.Context, name string, doc map[string]any, patch func(json.RawMessage) ResultPatch) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return newError(KindAdapter, p.currentStage(), fmt.Errorf("encode %s snapshot: %w", name, err))
	}

	if err := p.runner.deps.Results.UpdateResult(ctx, p.task.JobID, patch(raw)); err != nil {
		return p.persistenceError("persist "+name+" snapshot", err)
	}
	return nil
}

// advance records a later stage. Stages never move backwards, so with
// parallel branches the slower branch's earlier labels are skipped.
func (p *pipeline) advance(ctx context.Context, stage Stage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if stage.Index() <= p.lastStage {
		return nil
	}

	if err := p.runner.deps.Jobs.UpdateJob(ctx, p.task.JobID, JobPatch{Stage: Set(stage)}); err != nil {
		return newError(KindPersistence, p.stage, fmt.Errorf("advance to %s: %w", stage, err))
	}

	p.observeLocked()
	p.lastStage = stage.Index()
	p.stage = stage
	p.stageStart = time.Now()

	p.log.Debug("stage advanced", zap.String(logger.FieldStage, string(stage)))
	return nil
}

func (p *pipeline) finishStage() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observeLocked()
	p.stage = StageNone
}

func (p *pipeline) observeLocked() {
	if p.stage != StageNone && !p.stageStart.IsZero() {
		p.runner.deps.Observer.StageFinished(p.stage, time.Since(p.stageStart))
	}
}

func (p *pipeline) currentStage() Stage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stage
}

func (p *pipeline) persistenceError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return newError(KindPersistence, p.currentStage(), fmt.Errorf("%s: %w", op, err))
}

// adapterError classifies a collaborator failure that survived the retrier.
func (p *pipeline) adapterError(op string, err error) error {
	var classified *Error
	if errors.As(err, &classified) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}

	kind := KindAdapter
	if p.runner.deps.Retrier.ShouldRetry(err) {
		kind = KindTransientRemote
	}

	p.log.Debug("collaborator call failed", zap.String("operation", op), zap.String("kind", string(kind)))
	return newError(kind, p.currentStage(), err)
}

// classify turns the error that stopped the pipeline into an *Error, mapping
// an expired job deadline to KindTimeout.
func (p *pipeline) classify(parent, jobCtx context.Context, err error) *Error {
	// stage is cleared by finishStage, so use the last written label.
	stage := StageNone
	if p.lastStage >= 0 {
		stage = stageOrder[p.lastStage]
	}

	if errors.Is(jobCtx.Err(), context.DeadlineExceeded) && parent.Err() == nil {
		return errorf(KindTimeout, stage, "evaluation deadline of %s exceeded at stage %s", p.runner.cfg.JobTimeout, stage)
	}

	if parent.Err() != nil {
		return errorf(KindCanceled, stage, "evaluation canceled at stage %s: %v", stage, parent.Err())
	}

	var classified *Error
	if errors.As(err, &classified) {
		if classified.Stage == StageNone {
			classified.Stage = stage
		}
		return classified
	}

	return newError(KindAdapter, stage, err)
}
