package store

import (
	"context"
	"fmt"
	"strings"
)

type dialect struct {
	name      string
	timestamp string
	float     string
	json      string
}

var (
	sqliteDialect   = dialect{name: DriverSQLite, timestamp: "TIMESTAMP", float: "REAL", json: "TEXT"}
	postgresDialect = dialect{name: DriverPostgres, timestamp: "TIMESTAMPTZ", float: "DOUBLE PRECISION", json: "JSONB"}
)

const schemaTemplate = `
CREATE TABLE IF NOT EXISTS jobs (
	id             VARCHAR(32) PRIMARY KEY,
	job_title      TEXT NOT NULL,
	cv_file_id     VARCHAR(64) NOT NULL,
	report_file_id VARCHAR(64) NOT NULL,
	status         VARCHAR(16) NOT NULL,
	stage          VARCHAR(32),
	error_message  TEXT,
	created_at     {{timestamp}} NOT NULL,
	updated_at     {{timestamp}} NOT NULL
);

CREATE TABLE IF NOT EXISTS evaluation_results (
	job_id                 VARCHAR(32) PRIMARY KEY REFERENCES jobs(id) ON DELETE CASCADE,
	cv_match_rate          {{float}},
	cv_feedback            TEXT,
	project_score          {{float}},
	project_feedback       TEXT,
	overall_summary        TEXT,
	raw_cv_json            {{json}},
	raw_project_json       {{json}},
	raw_resume_score_json  {{json}},
	raw_project_score_json {{json}}
);

CREATE TABLE IF NOT EXISTS knowledge_chunks (
	id         VARCHAR(64) PRIMARY KEY,
	doc_id     TEXT NOT NULL,
	position   INTEGER NOT NULL,
	text       TEXT NOT NULL,
	metadata   TEXT NOT NULL,
	embedding  TEXT NOT NULL,
	created_at {{timestamp}} NOT NULL
);

CREATE INDEX IF NOT EXISTS knowledge_chunks_doc_id_idx ON knowledge_chunks (doc_id);
`

func (d dialect) schema() []string {
	ddl := strings.NewReplacer(
		"{{timestamp}}", d.timestamp,
		"{{float}}", d.float,
		"{{json}}", d.json,
	).Replace(schemaTemplate)

	var statements []string
	for _, stmt := range strings.Split(ddl, ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			statements = append(statements, stmt)
		}
	}
	return statements
}

// Migrate creates the tables when they are missing.
func (db *DB) Migrate(ctx context.Context) error {
	for _, stmt := range db.dialect.schema() {
		if _, err := db.sql.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s schema: %w", db.dialect.name, err)
		}
	}
	db.logger.Debug("schema is up to date")
	return nil
}
