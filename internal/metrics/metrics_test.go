package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/spigell/cv-evaluator/internal/evaluation"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.Admitted(evaluation.AdmittedQueued)
	r.Admitted(evaluation.AdmittedQueued)
	r.Admitted(evaluation.AdmittedExisting)

	r.JobStarted()
	r.JobStarted()
	assert.Equal(t, 2.0, testutil.ToFloat64(r.jobsActive))

	r.StageFinished(evaluation.StageCVExtract, 150*time.Millisecond)
	r.JobFinished(evaluation.StatusCompleted, "")
	r.JobFinished(evaluation.StatusFailed, evaluation.KindTimeout)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.admissions.WithLabelValues("queued")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.admissions.WithLabelValues("existing")))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.jobsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.jobsFinished.WithLabelValues("failed", "timeout")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.stageDuration))

	expected := `
# HELP cv_evaluator_jobs_finished_total Evaluation jobs that reached a terminal status.
# TYPE cv_evaluator_jobs_finished_total counter
cv_evaluator_jobs_finished_total{kind="",status="completed"} 1
cv_evaluator_jobs_finished_total{kind="timeout",status="failed"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "cv_evaluator_jobs_finished_total"))
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg).Admitted(evaluation.AdmittedInvalid)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `cv_evaluator_admissions_total{outcome="invalid"} 1`)
}

func TestNewPanicsOnDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
