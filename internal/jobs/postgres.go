package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/pandora-run/pandora/pkg/models"
)

// PostgresStore is a durable Store backend for multi-process deployments
// where job records must survive a gateway restart. It follows the same
// sql.DB-wrapping-struct shape used elsewhere in this codebase for Postgres
// persistence.
type PostgresStore struct {
	db *sql.DB
}

func OpenPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open jobs store: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping jobs store: %w", err)
	}
	const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	job_id      TEXT PRIMARY KEY,
	trace_id    TEXT NOT NULL,
	profile     TEXT NOT NULL,
	status      TEXT NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ,
	result      TEXT,
	error       TEXT
);`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate jobs store: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error { return s.db.Close() }

func (s *PostgresStore) Create(ctx context.Context, job *models.Job) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (job_id, trace_id, profile, status, started_at, finished_at, result, error)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (job_id) DO NOTHING`,
		job.JobID, job.TraceID, job.Profile, job.Status, job.StartedAt,
		job.FinishedAt, job.Result, job.Error)
	return err
}

func (s *PostgresStore) Update(ctx context.Context, job *models.Job) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status=$2, finished_at=$3, result=$4, error=$5
		WHERE job_id=$1`,
		job.JobID, job.Status, job.FinishedAt, job.Result, job.Error)
	return err
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*models.Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT job_id, trace_id, profile, status, started_at, finished_at, result, error
		FROM jobs WHERE job_id=$1`, id)
	job := &models.Job{}
	err := row.Scan(&job.JobID, &job.TraceID, &job.Profile, &job.Status,
		&job.StartedAt, &job.FinishedAt, &job.Result, &job.Error)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

func (s *PostgresStore) List(ctx context.Context, limit, offset int) ([]*models.Job, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT job_id, trace_id, profile, status, started_at, finished_at, result, error
		FROM jobs ORDER BY started_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	var out []*models.Job
	for rows.Next() {
		job := &models.Job{}
		if err := rows.Scan(&job.JobID, &job.TraceID, &job.Profile, &job.Status,
			&job.StartedAt, &job.FinishedAt, &job.Result, &job.Error); err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM jobs WHERE finished_at IS NOT NULL AND finished_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune jobs: %w", err)
	}
	return res.RowsAffected()
}
