package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spigell/cv-evaluator/internal/evaluation"
)

// Jobs implements the job, result and view repositories of the evaluation package.
type Jobs struct {
	db *DB
}

func (db *DB) Jobs() *Jobs {
	return &Jobs{db: db}
}

var (
	_ evaluation.JobRepository    = (*Jobs)(nil)
	_ evaluation.ResultRepository = (*Jobs)(nil)
	_ evaluation.ViewSource       = (*Jobs)(nil)
)

func (r *Jobs) CreateJob(ctx context.Context, job evaluation.Job) error {
	now := r.db.now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = job.CreatedAt
	}

	_, err := r.db.sql.ExecContext(ctx, `
		INSERT INTO jobs (id, job_title, cv_file_id, report_file_id, status, stage, error_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		job.ID, job.JobTitle, job.CVID, job.ReportID, string(job.Status),
		nullString(string(job.Stage)), nullString(job.ErrorMessage),
		job.CreatedAt.UTC(), job.UpdatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return evaluation.ErrDuplicateJob
		}
		return fmt.Errorf("insert job %s: %w", job.ID, err)
	}
	return nil
}

func (r *Jobs) GetJob(ctx context.Context, id string) (evaluation.Job, error) {
	var (
		job          evaluation.Job
		status       string
		stage        sql.NullString
		errorMessage sql.NullString
	)

	err := r.db.sql.QueryRowContext(ctx, `
		SELECT id, job_title, cv_file_id, report_file_id, status, stage, error_message, created_at, updated_at
		FROM jobs WHERE id = $1`, id,
	).Scan(&job.ID, &job.JobTitle, &job.CVID, &job.ReportID, &status, &stage, &errorMessage, &job.CreatedAt, &job.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return evaluation.Job{}, evaluation.ErrJobNotFound
	}
	if err != nil {
		return evaluation.Job{}, fmt.Errorf("select job %s: %w", id, err)
	}

	job.Status = evaluation.Status(status)
	job.Stage = evaluation.Stage(stage.String)
	job.ErrorMessage = errorMessage.String
	return job, nil
}

// UpdateJob applies the set fields of patch and always bumps updated_at.
// Completed and failed jobs are frozen: updating one returns ErrJobFinalized.
func (r *Jobs) UpdateJob(ctx context.Context, id string, patch evaluation.JobPatch) error {
	u := &update{}
	if patch.Status.IsSet() {
		v, ok := patch.Status.Get()
		u.set("status", nullString(string(v)), ok)
	}
	if patch.Stage.IsSet() {
		v, ok := patch.Stage.Get()
		u.set("stage", nullString(string(v)), ok)
	}
	if patch.ErrorMessage.IsSet() {
		v, ok := patch.ErrorMessage.Get()
		u.set("error_message", nullString(v), ok)
	}
	u.set("updated_at", r.db.now().UTC(), true)
	u.where(fmt.Sprintf("status NOT IN ('%s', '%s')", evaluation.StatusCompleted, evaluation.StatusFailed))

	err := r.exec(ctx, "jobs", "id", id, u)
	if !errors.Is(err, evaluation.ErrJobNotFound) {
		return err
	}

	var exists bool
	if qerr := r.db.sql.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM jobs WHERE id = $1)`, id).Scan(&exists); qerr != nil {
		return fmt.Errorf("check job %s: %w", id, qerr)
	}
	if exists {
		return evaluation.ErrJobFinalized
	}
	return err
}

// CreateResult inserts an empty result row; an existing row is left as is.
func (r *Jobs) CreateResult(ctx context.Context, jobID string) error {
	_, err := r.db.sql.ExecContext(ctx,
		`INSERT INTO evaluation_results (job_id) VALUES ($1) ON CONFLICT (job_id) DO NOTHING`, jobID)
	if err != nil {
		return fmt.Errorf("insert result for job %s: %w", jobID, err)
	}
	return nil
}

func (r *Jobs) UpdateResult(ctx context.Context, jobID string, patch evaluation.ResultPatch) error {
	if patch.Empty() {
		return nil
	}

	u := &update{}
	u.raw("raw_cv_json", patch.RawCV)
	u.raw("raw_project_json", patch.RawProject)
	u.raw("raw_resume_score_json", patch.RawCVScore)
	u.raw("raw_project_score_json", patch.RawProjectScore)
	u.float("cv_match_rate", patch.CVMatchRate)
	u.float("project_score", patch.ProjectScore)
	u.text("cv_feedback", patch.CVFeedback)
	u.text("project_feedback", patch.ProjectFeedback)
	u.text("overall_summary", patch.OverallSummary)

	return r.exec(ctx, "evaluation_results", "job_id", jobID, u)
}

// GetView joins a job with its result. Result is populated only when at
// least one final field has been written.
func (r *Jobs) GetView(ctx context.Context, id string) (evaluation.View, error) {
	var (
		view            evaluation.View
		status          string
		stage           sql.NullString
		errorMessage    sql.NullString
		cvMatchRate     sql.NullFloat64
		cvFeedback      sql.NullString
		projectScore    sql.NullFloat64
		projectFeedback sql.NullString
		overallSummary  sql.NullString
	)

	err := r.db.sql.QueryRowContext(ctx, `
		SELECT j.id, j.status, j.stage, j.error_message,
		       r.cv_match_rate, r.cv_feedback, r.project_score, r.project_feedback, r.overall_summary
		FROM jobs j
		LEFT JOIN evaluation_results r ON r.job_id = j.id
		WHERE j.id = $1`, id,
	).Scan(&view.ID, &status, &stage, &errorMessage,
		&cvMatchRate, &cvFeedback, &projectScore, &projectFeedback, &overallSummary)
	if errors.Is(err, sql.ErrNoRows) {
		return evaluation.View{}, evaluation.ErrJobNotFound
	}
	if err != nil {
		return evaluation.View{}, fmt.Errorf("select view %s: %w", id, err)
	}

	view.Status = evaluation.Status(status)
	view.Stage = evaluation.Stage(stage.String)
	view.ErrorMessage = errorMessage.String

	if cvMatchRate.Valid || cvFeedback.Valid || projectScore.Valid || projectFeedback.Valid || overallSummary.Valid {
		view.Result = &evaluation.Result{
			CVMatchRate:     cvMatchRate.Float64,
			CVFeedback:      cvFeedback.String,
			ProjectScore:    projectScore.Float64,
			ProjectFeedback: projectFeedback.String,
			OverallSummary:  overallSummary.String,
		}
	}
	return view, nil
}

// RawResult returns the stored structured payloads of a job, keyed by column name.
// Columns that are still NULL are omitted.
func (r *Jobs) RawResult(ctx context.Context, jobID string) (map[string]json.RawMessage, error) {
	var cols [4]sql.NullString
	err := r.db.sql.QueryRowContext(ctx, `
		SELECT raw_cv_json, raw_project_json, raw_resume_score_json, raw_project_score_json
		FROM evaluation_results WHERE job_id = $1`, jobID,
	).Scan(&cols[0], &cols[1], &cols[2], &cols[3])
	if errors.Is(err, sql.ErrNoRows) {
		return nil, evaluation.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select raw result %s: %w", jobID, err)
	}

	out := make(map[string]json.RawMessage, len(cols))
	for i, name := range []string{"raw_cv_json", "raw_project_json", "raw_resume_score_json", "raw_project_score_json"} {
		if cols[i].Valid {
			out[name] = json.RawMessage(cols[i].String)
		}
	}
	return out, nil
}

func (r *Jobs) exec(ctx context.Context, table, key, id string, u *update) error {
	args := append(u.args, id)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d",
		table, strings.Join(u.columns, ", "), key, len(args))
	for _, cond := range u.conds {
		query += " AND " + cond
	}

	res, err := r.db.sql.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update %s %s: %w", table, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s %s: %w", table, id, err)
	}
	if n == 0 {
		return evaluation.ErrJobNotFound
	}
	return nil
}

// update collects "column = $N" assignments in order, plus extra
// conditions ANDed to the key match.
type update struct {
	columns []string
	args    []any
	conds   []string
}

func (u *update) where(cond string) {
	u.conds = append(u.conds, cond)
}

func (u *update) set(column string, value any, ok bool) {
	if !ok {
		value = nil
	}
	u.args = append(u.args, value)
	u.columns = append(u.columns, fmt.Sprintf("%s = $%d", column, len(u.args)))
}

func (u *update) raw(column string, f evaluation.Field[json.RawMessage]) {
	if !f.IsSet() {
		return
	}
	v, ok := f.Get()
	u.set(column, string(v), ok && len(v) > 0)
}

func (u *update) float(column string, f evaluation.Field[float64]) {
	if !f.IsSet() {
		return
	}
	v, ok := f.Get()
	u.set(column, v, ok)
}

func (u *update) text(column string, f evaluation.Field[string]) {
	if !f.IsSet() {
		return
	}
	v, ok := f.Get()
	u.set(column, v, ok)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
