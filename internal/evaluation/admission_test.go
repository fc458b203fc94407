package evaluation

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/spigell/cv-evaluator/internal/queue"
)

func newTestAdmitter(repo *memRepo, docs memDocs, queue *recordingQueue) *Admitter {
	return NewAdmitter(AdmitterDeps{Jobs: repo, Documents: docs, Queue: queue})
}

var testDocs = memDocs{"cv-1": []byte("cv text"), "report-1": []byte("report text")}

func TestAdmitCreatesQueuedJobAndEnqueues(t *testing.T) {
	repo := newMemRepo()
	queue := &recordingQueue{}

	got, err := newTestAdmitter(repo, testDocs, queue).Admit(context.Background(), Request{
		JobTitle: " Backend Engineer ",
		CVID:     "cv-1",
		ReportID: "report-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.Status != StatusQueued {
		t.Fatalf("expected queued, got %s", got.Status)
	}
	if got.ID != Identity(Request{JobTitle: "Backend Engineer", CVID: "cv-1", ReportID: "report-1"}) {
		t.Fatalf("unexpected id %s", got.ID)
	}

	job, err := repo.GetJob(context.Background(), got.ID)
	if err != nil {
		t.Fatalf("job not stored: %v", err)
	}
	if job.Status != StatusQueued || job.JobTitle != "Backend Engineer" {
		t.Fatalf("unexpected stored job: %+v", job)
	}

	if len(queue.tasks) != 1 || queue.tasks[0].JobID != got.ID {
		t.Fatalf("expected one task for %s, got %+v", got.ID, queue.tasks)
	}
}

func TestAdmitIsIdempotent(t *testing.T) {
	repo := newMemRepo()
	queue := &recordingQueue{}
	admitter := newTestAdmitter(repo, testDocs, queue)

	first, err := admitter.Admit(context.Background(), Request{JobTitle: "Backend Engineer", CVID: "cv-1", ReportID: "report-1"})
	if err != nil {
		t.Fatalf("first admit: %v", err)
	}

	if err := repo.UpdateJob(context.Background(), first.ID, JobPatch{Status: Set(StatusProcessing), Stage: Set(StageCVExtract)}); err != nil {
		t.Fatalf("update: %v", err)
	}

	second, err := admitter.Admit(context.Background(), Request{JobTitle: "Backend Engineer  ", CVID: "cv-1", ReportID: "report-1"})
	if err != nil {
		t.Fatalf("second admit: %v", err)
	}

	if second.ID != first.ID {
		t.Fatalf("expected same identity, got %s and %s", first.ID, second.ID)
	}
	if second.Status != StatusProcessing {
		t.Fatalf("expected current status processing, got %s", second.Status)
	}
	if repo.creates != 1 {
		t.Fatalf("expected a single insert, got %d", repo.creates)
	}
	if len(queue.tasks) != 1 {
		t.Fatalf("expected a single enqueue, got %d", len(queue.tasks))
	}
}

func TestAdmitRejectsMissingDocuments(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{name: "missing cv", req: Request{JobTitle: "Backend", CVID: "nope", ReportID: "report-1"}},
		{name: "missing report", req: Request{JobTitle: "Backend", CVID: "cv-1", ReportID: "nope"}},
		{name: "blank title", req: Request{JobTitle: "   ", CVID: "cv-1", ReportID: "report-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMemRepo()
			queue := &recordingQueue{}

			got, err := newTestAdmitter(repo, testDocs, queue).Admit(context.Background(), tt.req)
			if !IsKind(err, KindValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if got.Status != StatusFailed || got.ID != "" {
				t.Fatalf("expected failed admission without id, got %+v", got)
			}
			if repo.creates != 0 || len(queue.tasks) != 0 {
				t.Fatalf("no job may be created: creates=%d tasks=%d", repo.creates, len(queue.tasks))
			}
		})
	}
}

func TestAdmitMissingDocumentMessage(t *testing.T) {
	_, err := newTestAdmitter(newMemRepo(), testDocs, &recordingQueue{}).Admit(context.Background(),
		Request{JobTitle: "Backend", CVID: "cv-1", ReportID: "missing"})

	if !errors.Is(err, ErrInvalidDocuments) {
		t.Fatalf("expected ErrInvalidDocuments, got %v", err)
	}
	if err.Error() != "CV ID or Report ID not valid" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestAdmitResolvesInsertRace(t *testing.T) {
	repo := newMemRepo()
	repo.createErr = ErrDuplicateJob
	repo.getJob = func(call int, id string) (Job, bool, error) {
		if call == 1 {
			return Job{}, true, ErrJobNotFound
		}
		return Job{ID: id, Status: StatusProcessing}, true, nil
	}
	queue := &recordingQueue{}

	got, err := newTestAdmitter(repo, testDocs, queue).Admit(context.Background(), Request{JobTitle: "Backend", CVID: "cv-1", ReportID: "report-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != StatusProcessing {
		t.Fatalf("expected the winner's status, got %s", got.Status)
	}
	if len(queue.tasks) != 0 {
		t.Fatalf("the losing submission must not enqueue")
	}
}

func TestAdmitPropagatesDuplicateWhenRowStillMissing(t *testing.T) {
	repo := newMemRepo()
	repo.createErr = ErrDuplicateJob

	_, err := newTestAdmitter(repo, testDocs, &recordingQueue{}).Admit(context.Background(), Request{JobTitle: "Backend", CVID: "cv-1", ReportID: "report-1"})
	if !IsKind(err, KindPersistence) || !errors.Is(err, ErrDuplicateJob) {
		t.Fatalf("expected persistence error wrapping ErrDuplicateJob, got %v", err)
	}
}

func TestAdmitMarksJobFailedWhenQueueRejects(t *testing.T) {
	repo := newMemRepo()
	queue := &recordingQueue{err: errors.New("queue is shutting down")}

	got, err := newTestAdmitter(repo, testDocs, queue).Admit(context.Background(), Request{JobTitle: "Backend", CVID: "cv-1", ReportID: "report-1"})
	if err == nil {
		t.Fatalf("expected error")
	}

	job, gerr := repo.GetJob(context.Background(), got.ID)
	if gerr != nil {
		t.Fatalf("job should exist: %v", gerr)
	}
	if job.Status != StatusFailed || !containsAll(job.ErrorMessage, "enqueue job", "shutting down") {
		t.Fatalf("unexpected job after failed enqueue: %+v", job)
	}
}

func TestAdmitDoesNotWaitForBusyWorkers(t *testing.T) {
	repo := newMemRepo()
	release := make(chan struct{})
	pool := queue.New[Task](func(context.Context, Task) error {
		<-release
		return nil
	}, nil, nil, queue.WithWorkers(1), queue.WithQueueSize(1))
	admitter := NewAdmitter(AdmitterDeps{Jobs: repo, Documents: testDocs, Queue: pool})

	// more jobs than workers plus backlog size
	for i := 0; i < 5; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		begin := time.Now()
		got, err := admitter.Admit(ctx, Request{JobTitle: fmt.Sprintf("Backend %d", i), CVID: "cv-1", ReportID: "report-1"})
		elapsed := time.Since(begin)
		cancel()

		if err != nil {
			t.Fatalf("admit %d: %v", i, err)
		}
		if got.Status != StatusQueued {
			t.Fatalf("admit %d: expected queued, got %s", i, got.Status)
		}
		if elapsed >= 200*time.Millisecond {
			t.Fatalf("admit %d blocked for %s", i, elapsed)
		}
		job, _ := repo.GetJob(context.Background(), got.ID)
		if job.Status != StatusQueued {
			t.Fatalf("admit %d: stored status %s", i, job.Status)
		}
	}

	close(release)
	if err := pool.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
