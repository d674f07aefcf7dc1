// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// JobState is the lifecycle state of an asynchronous job.
type JobState string

const (
	JobQueued    JobState = "queued"
	JobRunning   JobState = "running"
	JobSucceeded JobState = "succeeded"
	JobFailed    JobState = "failed"
)

// Job records an asynchronous geoprocessing run over stored datasets.
type Job struct {
	ID           string
	Operation    string
	State        JobState
	Params       string // JSON-encoded operation parameters
	DatasetA     string
	DatasetB     string // empty for single-layer operations
	ResultKey    string // blob key of the result, set on success
	FeatureCount int
	Error        string
	CreatedAt    time.Time
	StartedAt    time.Time
	FinishedAt   time.Time
}

// InsertJob stores a new job in the queued state.
func (s *Store) InsertJob(ctx context.Context, j Job) error {
	query := `
	INSERT INTO jobs (id, operation, state, params, dataset_a, dataset_b, created_at)
	VALUES (?, ?, ?, ?, ?, NULLIF(?, ''), ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		j.ID, j.Operation, string(JobQueued), j.Params, j.DatasetA, j.DatasetB,
		formatTime(j.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// MarkJobRunning transitions a job to running and records the start time.
func (s *Store) MarkJobRunning(ctx context.Context, id string, at time.Time) error {
	return s.transition(ctx, `
	UPDATE jobs SET state = ?, started_at = ? WHERE id = ?`,
		string(JobRunning), formatTime(at), id)
}

// MarkJobSucceeded finishes a job with its result reference.
func (s *Store) MarkJobSucceeded(ctx context.Context, id, resultKey string, featureCount int, at time.Time) error {
	return s.transition(ctx, `
	UPDATE jobs SET state = ?, result_key = ?, feature_count = ?, finished_at = ? WHERE id = ?`,
		string(JobSucceeded), resultKey, featureCount, formatTime(at), id)
}

// MarkJobFailed finishes a job with an error message.
func (s *Store) MarkJobFailed(ctx context.Context, id, errMsg string, at time.Time) error {
	return s.transition(ctx, `
	UPDATE jobs SET state = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(JobFailed), errMsg, formatTime(at), id)
}

func (s *Store) transition(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetJob retrieves a job by id.
func (s *Store) GetJob(ctx context.Context, id string) (Job, error) {
	query := `
	SELECT id, operation, state, params, dataset_a, dataset_b, result_key,
	       feature_count, error, created_at, started_at, finished_at
	FROM jobs WHERE id = ?
	`
	j, err := scanJob(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, ErrNotFound
	}
	return j, err
}

// ListJobs returns jobs ordered by creation time, newest first. An empty
// state lists all jobs.
func (s *Store) ListJobs(ctx context.Context, state JobState, limit int) ([]Job, error) {
	query := `
	SELECT id, operation, state, params, dataset_a, dataset_b, result_key,
	       feature_count, error, created_at, started_at, finished_at
	FROM jobs
	WHERE (? = '' OR state = ?)
	ORDER BY created_at DESC
	LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, string(state), string(state), limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// ListQueuedJobs returns queued jobs oldest first, for re-enqueueing after
// a daemon restart.
func (s *Store) ListQueuedJobs(ctx context.Context) ([]Job, error) {
	query := `
	SELECT id, operation, state, params, dataset_a, dataset_b, result_key,
	       feature_count, error, created_at, started_at, finished_at
	FROM jobs WHERE state = ? ORDER BY created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, string(JobQueued))
	if err != nil {
		return nil, fmt.Errorf("list queued jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// FailRunningJobs marks all running jobs as failed. Called on startup so
// jobs orphaned by a crash do not appear stuck forever.
func (s *Store) FailRunningJobs(ctx context.Context, reason string, at time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
	UPDATE jobs SET state = ?, error = ?, finished_at = ? WHERE state = ?`,
		string(JobFailed), reason, formatTime(at), string(JobRunning))
	if err != nil {
		return 0, fmt.Errorf("fail running jobs: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (Job, error) {
	var j Job
	var state, createdAt string
	var datasetB, resultKey, errMsg, startedAt, finishedAt sql.NullString

	err := row.Scan(&j.ID, &j.Operation, &state, &j.Params, &j.DatasetA, &datasetB,
		&resultKey, &j.FeatureCount, &errMsg, &createdAt, &startedAt, &finishedAt)
	if err != nil {
		return Job{}, err
	}

	j.State = JobState(state)
	j.DatasetB = datasetB.String
	j.ResultKey = resultKey.String
	j.Error = errMsg.String

	if j.CreatedAt, err = parseTime(createdAt); err != nil {
		return Job{}, fmt.Errorf("parse created_at: %w", err)
	}
	if startedAt.Valid {
		if j.StartedAt, err = parseTime(startedAt.String); err != nil {
			return Job{}, fmt.Errorf("parse started_at: %w", err)
		}
	}
	if finishedAt.Valid {
		if j.FinishedAt, err = parseTime(finishedAt.String); err != nil {
			return Job{}, fmt.Errorf("parse finished_at: %w", err)
		}
	}
	return j, nil
}
