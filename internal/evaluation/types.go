// Package evaluation admits CV/report evaluation jobs, drives them through the
// staged pipeline, and answers status queries over the persisted state.
package evaluation

import (
	"strings"
	"time"
)

type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transition may follow s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Stage names a sub-step of a processing job.
type Stage string

const (
	StageNone          Stage = ""
	StageCVIngest      Stage = "cv_ingest"
	StageCVExtract     Stage = "cv_extract"
	StageCVScoring     Stage = "cv_scoring"
	StageReportExtract Stage = "report_extract"
	StageReportScoring Stage = "report_scoring"
)

var stageOrder = []Stage{
	StageCVIngest,
	StageCVExtract,
	StageCVScoring,
	StageReportExtract,
	StageReportScoring,
}

// Index is the position of s in the pipeline, or -1 for StageNone and unknown labels.
func (s Stage) Index() int {
	for i, stage := range stageOrder {
		if stage == s {
			return i
		}
	}
	return -1
}

// Stages returns the pipeline stages in execution order.
func Stages() []Stage {
	out := make([]Stage, len(stageOrder))
	copy(out, stageOrder)
	return out
}

// Request is what a caller submits for evaluation.
type Request struct {
	JobTitle string `json:"job_title"`
	CVID     string `json:"cv_id"`
	ReportID string `json:"report_id"`
}

func (r Request) normalized() Request {
	return Request{
		JobTitle: strings.TrimSpace(r.JobTitle),
		CVID:     strings.TrimSpace(r.CVID),
		ReportID: strings.TrimSpace(r.ReportID),
	}
}

// Task is the unit handed from admission to the worker pool.
type Task struct {
	JobID   string
	Request Request
}

type Job struct {
	ID           string
	JobTitle     string
	CVID         string
	ReportID     string
	Status       Status
	Stage        Stage
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Admission is the synchronous answer to a submission.
type Admission struct {
	ID     string `json:"id"`
	Status Status `json:"status"`
}

// Result holds the final aggregated fields of an evaluation.
type Result struct {
	CVMatchRate     float64 `json:"cv_match_rate"`
	CVFeedback      string  `json:"cv_feedback"`
	ProjectScore    float64 `json:"project_score"`
	ProjectFeedback string  `json:"project_feedback"`
	OverallSummary  string  `json:"overall_summary"`
}

// UnknownJobMessage marks the synthetic view returned for ids that were never admitted.
const UnknownJobMessage = "Unknown job id"

// View is a point-in-time picture of a job. Result is nil until the final
// fields have been written.
type View struct {
	ID           string  `json:"id"`
	Status       Status  `json:"status"`
	Stage        Stage   `json:"stage,omitempty"`
	ErrorMessage string  `json:"error_message,omitempty"`
	Result       *Result `json:"result,omitempty"`
}

func UnknownView(id string) View {
	return View{ID: id, Status: StatusFailed, ErrorMessage: UnknownJobMessage}
}

// IsUnknown reports whether v is the not-found sentinel.
func (v View) IsUnknown() bool {
	return v.Status == StatusFailed && v.ErrorMessage == UnknownJobMessage && v.Result == nil
}
