package evaluation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spigell/cv-evaluator/internal/logger"

	"go.uber.org/zap"
)

const (
	AdmittedQueued   = "queued"
	AdmittedExisting = "existing"
	AdmittedInvalid  = "invalid"
	AdmittedError    = "error"
)

type AdmitterDeps struct {
	Jobs      JobRepository
	Documents DocumentStore
	Queue     Submitter
	Logger    *zap.Logger
	Observer  Observer
	Now       func() time.Time
}

// Admitter creates jobs exactly once per identity and hands them to the pool.
type Admitter struct {
	jobs     JobRepository
	docs     DocumentStore
	queue    Submitter
	logger   *zap.Logger
	observer Observer
	now      func() time.Time
}

func NewAdmitter(deps AdmitterDeps) *Admitter {
	a := &Admitter{
		jobs:     deps.Jobs,
		docs:     deps.Documents,
		queue:    deps.Queue,
		logger:   logger.WithFields(deps.Logger),
		observer: deps.Observer,
		now:      deps.Now,
	}
	if a.observer == nil {
		a.observer = nopObserver{}
	}
	if a.now == nil {
		a.now = time.Now
	}
	return a
}

// Admit returns the identity and status of the job for req, creating and
// enqueuing it when it does not exist yet. Missing documents yield a
// validation error and no job.
func (a *Admitter) Admit(ctx context.Context, req Request) (Admission, error) {
	req = req.normalized()
	if req.JobTitle == "" || req.CVID == "" || req.ReportID == "" {
		a.observer.Admitted(AdmittedInvalid)
		return Admission{Status: StatusFailed}, errorf(KindValidation, StageNone, "job_title, cv_id and report_id are required")
	}

	id := Identity(req)
	log := logger.WithJob(a.logger, id)

	existing, err := a.jobs.GetJob(ctx, id)
	switch {
	case err == nil:
		log.Info("job already admitted", zap.String(logger.FieldStatus, string(existing.Status)))
		a.observer.Admitted(AdmittedExisting)
		return Admission{ID: id, Status: existing.Status}, nil
	case !errors.Is(err, ErrJobNotFound):
		a.observer.Admitted(AdmittedError)
		return Admission{}, newError(KindPersistence, StageNone, fmt.Errorf("look up job: %w", err))
	}

	if err := a.checkDocuments(ctx, req); err != nil {
		if IsKind(err, KindValidation) {
			a.observer.Admitted(AdmittedInvalid)
			log.Warn("rejecting evaluation request", zap.Error(err),
				zap.String("cv_id", req.CVID), zap.String("report_id", req.ReportID))
			return Admission{Status: StatusFailed}, err
		}
		a.observer.Admitted(AdmittedError)
		return Admission{}, err
	}

	now := a.now().UTC()
	err = a.jobs.CreateJob(ctx, Job{
		ID:        id,
		JobTitle:  req.JobTitle,
		CVID:      req.CVID,
		ReportID:  req.ReportID,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		if !errors.Is(err, ErrDuplicateJob) {
			a.observer.Admitted(AdmittedError)
			return Admission{}, newError(KindPersistence, StageNone, fmt.Errorf("create job: %w", err))
		}

		// Lost the insert race to an identical submission.
		existing, lookupErr := a.jobs.GetJob(ctx, id)
		if lookupErr != nil {
			a.observer.Admitted(AdmittedError)
			return Admission{}, newError(KindPersistence, StageNone, fmt.Errorf("create job: %w", err))
		}
		log.Info("concurrent submission won the insert", zap.String(logger.FieldStatus, string(existing.Status)))
		a.observer.Admitted(AdmittedExisting)
		return Admission{ID: id, Status: existing.Status}, nil
	}

	if err := a.queue.Enqueue(ctx, Task{JobID: id, Request: req}); err != nil {
		a.observer.Admitted(AdmittedError)
		msg := fmt.Sprintf("enqueue job: %v", err)
		// the caller's context may already be gone
		if uerr := a.jobs.UpdateJob(context.WithoutCancel(ctx), id, JobPatch{
			Status:       Set(StatusFailed),
			Stage:        Null[Stage](),
			ErrorMessage: Set(msg),
		}); uerr != nil {
			log.Error("marking unqueued job as failed", zap.Error(uerr))
		}
		return Admission{ID: id, Status: StatusFailed}, fmt.Errorf("enqueue job %s: %w", id, err)
	}

	log.Info("job admitted", zap.String("job_title", req.JobTitle))
	a.observer.Admitted(AdmittedQueued)
	return Admission{ID: id, Status: StatusQueued}, nil
}

func (a *Admitter) checkDocuments(ctx context.Context, req Request) error {
	for _, ref := range []string{req.CVID, req.ReportID} {
		ok, err := a.docs.Exists(ctx, ref)
		if err != nil {
			return newError(KindPersistence, StageNone, fmt.Errorf("check document %s: %w", ref, err))
		}
		if !ok {
			return newError(KindValidation, StageNone, ErrInvalidDocuments)
		}
	}
	return nil
}
