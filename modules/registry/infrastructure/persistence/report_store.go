package persistence

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/iota-uz/sar/modules/registry/domain/issue"
	"github.com/iota-uz/sar/modules/registry/services"
)

const reportSchema = `
CREATE TABLE IF NOT EXISTS sar_runs (
	run_id        UUID PRIMARY KEY,
	generated_at  TIMESTAMPTZ NOT NULL,
	errors        INTEGER NOT NULL,
	warnings      INTEGER NOT NULL,
	infos         INTEGER NOT NULL,
	issues_total  INTEGER NOT NULL,
	view_rows     INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS sar_issues (
	run_id        UUID NOT NULL REFERENCES sar_runs (run_id) ON DELETE CASCADE,
	issue_id      TEXT NOT NULL,
	severity      TEXT NOT NULL,
	level         TEXT NOT NULL,
	human_id      TEXT NOT NULL,
	parent_ref    TEXT NOT NULL,
	issue_type    TEXT NOT NULL,
	message       TEXT NOT NULL,
	suggested_fix TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS sar_issues_run_idx ON sar_issues (run_id);
`

const (
	insertRunSQL = `INSERT INTO sar_runs (run_id, generated_at, errors, warnings, infos, issues_total, view_rows)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

	insertIssueSQL = `INSERT INTO sar_issues (run_id, issue_id, severity, level, human_id, parent_ref, issue_type, message, suggested_fix)
VALUES (:run_id, :issue_id, :severity, :level, :human_id, :parent_ref, :issue_type, :message, :suggested_fix)`

	listRunsSQL = `SELECT run_id, generated_at, errors, warnings, infos, issues_total, view_rows
FROM sar_runs ORDER BY generated_at DESC LIMIT $1`
)

// RunRecord is one row of sar_runs.
type RunRecord struct {
	RunID       string    `db:"run_id" json:"run_id"`
	GeneratedAt time.Time `db:"generated_at" json:"generated_at"`
	Errors      int       `db:"errors" json:"errors"`
	Warnings    int       `db:"warnings" json:"warnings"`
	Infos       int       `db:"infos" json:"infos"`
	IssuesTotal int       `db:"issues_total" json:"issues_total"`
	ViewRows    int       `db:"view_rows" json:"view_rows"`
}

type issueRow struct {
	RunID string `db:"run_id"`
	issue.Issue
}

// ReportStore keeps the history of compute runs and their issues in SQL.
type ReportStore struct {
	db *sqlx.DB
}

func NewReportStore(db *sqlx.DB) *ReportStore {
	return &ReportStore{db: db}
}

// OpenReportStore connects and makes sure the report tables exist.
func OpenReportStore(ctx context.Context, driver, dsn string) (*ReportStore, error) {
	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "connect report database")
	}
	s := NewReportStore(db)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *ReportStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, reportSchema)
	return errors.Wrap(err, "migrate report schema")
}

func (s *ReportStore) Close() error { return s.db.Close() }

func (s *ReportStore) SaveRun(ctx context.Context, run *services.Run) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin run report")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	runID := run.ID.String()
	if _, err = tx.ExecContext(ctx, insertRunSQL,
		runID, run.GeneratedAt, run.Summary.Errors, run.Summary.Warnings,
		run.Summary.Infos, run.Summary.IssuesTotal, len(run.View.Rows),
	); err != nil {
		return errors.Wrapf(err, "insert run %s", runID)
	}
	for _, iss := range run.Issues {
		if _, err = tx.NamedExecContext(ctx, insertIssueSQL, issueRow{RunID: runID, Issue: iss}); err != nil {
			return errors.Wrapf(err, "insert issue %s", iss.ID)
		}
	}
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "commit run report")
	}
	return nil
}

// ListRuns returns the most recent runs first.
func (s *ReportStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []RunRecord
	if err := s.db.SelectContext(ctx, &out, listRunsSQL, limit); err != nil {
		return nil, errors.Wrap(err, "list runs")
	}
	return out, nil
}
