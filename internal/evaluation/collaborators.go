package evaluation

import (
	"context"
	"time"
)

type JobRepository interface {
	// CreateJob returns ErrDuplicateJob when the id is taken.
	CreateJob(ctx context.Context, job Job) error
	// GetJob returns ErrJobNotFound for unknown ids.
	GetJob(ctx context.Context, id string) (Job, error)
	UpdateJob(ctx context.Context, id string, patch JobPatch) error
}

type ResultRepository interface {
	CreateResult(ctx context.Context, jobID string) error
	UpdateResult(ctx context.Context, jobID string, patch ResultPatch) error
}

type ViewSource interface {
	// GetView returns ErrJobNotFound for unknown ids.
	GetView(ctx context.Context, id string) (View, error)
}

type DocumentStore interface {
	Exists(ctx context.Context, id string) (bool, error)
	Open(ctx context.Context, id string) ([]byte, error)
}

type TextExtractor interface {
	Extract(ctx context.Context, data []byte) (string, error)
}

type Parser interface {
	ParseResume(ctx context.Context, text string) (map[string]any, error)
	ParseProjectReport(ctx context.Context, text string) (map[string]any, error)
}

// ScoreInput is what a scorer needs to rate one structured document.
type ScoreInput struct {
	JobTitle  string
	Rubric    string
	Reference string
	Document  map[string]any
}

type Scorer interface {
	ScoreResume(ctx context.Context, in ScoreInput) (map[string]any, error)
	ScoreProjectReport(ctx context.Context, in ScoreInput) (map[string]any, error)
}

// Snippet is one ranked retrieval hit.
type Snippet struct {
	ChunkID  string            `json:"chunk_id"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Score    float64           `json:"score"`
}

type Retriever interface {
	Query(ctx context.Context, query string, topK int) ([]Snippet, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, scoredCV, scoredReport map[string]any) (string, error)
}

// Submitter hands tasks to the worker pool without waiting for them to run.
type Submitter interface {
	Enqueue(ctx context.Context, task Task) error
}

// StatusCache stores terminal views.
type StatusCache interface {
	Get(ctx context.Context, id string) (View, bool, error)
	Set(ctx context.Context, view View) error
}

// Observer receives pipeline events for metrics.
type Observer interface {
	Admitted(outcome string)
	JobStarted()
	JobFinished(status Status, kind Kind)
	StageFinished(stage Stage, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) Admitted(string)                    {}
func (nopObserver) JobStarted()                        {}
func (nopObserver) JobFinished(Status, Kind)           {}
func (nopObserver) StageFinished(Stage, time.Duration) {}
