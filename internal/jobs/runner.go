// SPDX-License-Identifier: MIT

// Package jobs runs asynchronous geoprocessing over stored datasets on a
// bounded worker pool. Job state is persisted so queued work survives a
// daemon restart.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/terralab/geoproc/internal/blob"
	"github.com/terralab/geoproc/internal/geo"
	"github.com/terralab/geoproc/internal/log"
	"github.com/terralab/geoproc/internal/metrics"
	"github.com/terralab/geoproc/internal/store"
)

// ErrQueueFull signals a submission against a saturated queue.
var ErrQueueFull = errors.New("job queue is full")

// ErrDatasetMissing signals a job referencing an unknown dataset.
var ErrDatasetMissing = errors.New("referenced dataset does not exist")

// Params describes one job submission.
type Params struct {
	Operation      string  `json:"operation"`
	DatasetA       string  `json:"dataset_a"`
	DatasetB       string  `json:"dataset_b,omitempty"`
	BufferDistance float64 `json:"buffer_distance,omitempty"`
	BufferSegments int     `json:"buffer_segments,omitempty"`
}

// Config tunes the worker pool.
type Config struct {
	Workers   int
	QueueSize int
	ResultTTL time.Duration
}

// Runner owns the worker pool and the persistent job queue.
type Runner struct {
	store  *store.Store
	blobs  *blob.Store
	cfg    Config
	logger zerolog.Logger

	queue  chan string
	group  *errgroup.Group
	cancel context.CancelFunc

	startOnce sync.Once
	stopOnce  sync.Once
}

// New creates a Runner. Call Start before submitting jobs.
func New(st *store.Store, blobs *blob.Store, cfg Config) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}

	return &Runner{
		store:  st,
		blobs:  blobs,
		cfg:    cfg,
		logger: log.WithComponent("jobs"),
		queue:  make(chan string, cfg.QueueSize),
	}
}

// Start recovers persisted state and launches the workers. Jobs left in
// the running state by a crash are failed, queued jobs are re-enqueued.
func (r *Runner) Start(ctx context.Context) error {
	var startErr error
	r.startOnce.Do(func() {
		orphaned, err := r.store.FailRunningJobs(ctx, "daemon restarted while job was running", time.Now())
		if err != nil {
			startErr = fmt.Errorf("recover running jobs: %w", err)
			return
		}
		if orphaned > 0 {
			r.logger.Warn().
				Str("event", "jobs.recover.orphaned").
				Int64("count", orphaned).
				Msg("failed jobs orphaned by previous shutdown")
		}

		queued, err := r.store.ListQueuedJobs(ctx)
		if err != nil {
			startErr = fmt.Errorf("load queued jobs: %w", err)
			return
		}

		poolCtx, cancel := context.WithCancel(context.Background())
		r.cancel = cancel
		r.group, poolCtx = errgroup.WithContext(poolCtx)

		for i := 0; i < r.cfg.Workers; i++ {
			r.group.Go(func() error {
				for {
					select {
					case <-poolCtx.Done():
						return nil
					case id, ok := <-r.queue:
						if !ok {
							return nil
						}
						r.execute(poolCtx, id)
					}
				}
			})
		}

		for _, j := range queued {
			select {
			case r.queue <- j.ID:
			default:
				r.logger.Warn().
					Str("event", "jobs.recover.overflow").
					Str(log.FieldJobID, j.ID).
					Msg("queued job does not fit into the queue, left for next restart")
			}
		}
		metrics.SetJobsQueued(len(r.queue))

		r.logger.Info().
			Str("event", "jobs.pool.started").
			Int("workers", r.cfg.Workers).
			Int("requeued", len(queued)).
			Msg("job worker pool started")
	})
	return startErr
}

// Stop drains the pool. In-flight jobs are cancelled and marked failed by
// their workers before Stop returns.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() {
		if r.cancel != nil {
			r.cancel()
		}
		close(r.queue)
		if r.group != nil {
			_ = r.group.Wait()
		}
		r.logger.Info().Str("event", "jobs.pool.stopped").Msg("job worker pool stopped")
	})
}

// Submit validates the params, persists the job and enqueues it.
func (r *Runner) Submit(ctx context.Context, p Params) (store.Job, error) {
	if err := r.validate(ctx, &p); err != nil {
		return store.Job{}, err
	}

	encoded, err := json.Marshal(p)
	if err != nil {
		return store.Job{}, fmt.Errorf("encode params: %w", err)
	}

	j := store.Job{
		ID:        uuid.New().String(),
		Operation: p.Operation,
		Params:    string(encoded),
		DatasetA:  p.DatasetA,
		DatasetB:  p.DatasetB,
		CreatedAt: time.Now(),
	}
	if err := r.store.InsertJob(ctx, j); err != nil {
		return store.Job{}, err
	}

	select {
	case r.queue <- j.ID:
	default:
		_ = r.store.MarkJobFailed(ctx, j.ID, ErrQueueFull.Error(), time.Now())
		return store.Job{}, ErrQueueFull
	}

	metrics.SetJobsQueued(len(r.queue))
	j.State = store.JobQueued
	return j, nil
}

func (r *Runner) validate(ctx context.Context, p *Params) error {
	if p.Operation == string(geo.OpBuffer) {
		if p.DatasetB != "" {
			return fmt.Errorf("%w: buffer takes a single dataset", geo.ErrUnknownOperation)
		}
	} else {
		op, err := geo.ParseOperation(p.Operation)
		if err != nil {
			return err
		}
		if op.RequiresSecondLayer() && p.DatasetB == "" {
			return geo.ErrSecondInputRequired
		}
	}

	if _, err := r.store.GetDataset(ctx, p.DatasetA); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrDatasetMissing, p.DatasetA)
		}
		return err
	}
	if p.DatasetB != "" {
		if _, err := r.store.GetDataset(ctx, p.DatasetB); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("%w: %s", ErrDatasetMissing, p.DatasetB)
			}
			return err
		}
	}
	return nil
}

func (r *Runner) execute(ctx context.Context, jobID string) {
	logger := r.logger.With().Str(log.FieldJobID, jobID).Logger()
	start := time.Now()

	// State transitions must land even when the pool is shutting down,
	// otherwise a cancelled in-flight job stays "running" until the next
	// boot. Only the pipeline itself remains cancellable.
	termCtx := context.WithoutCancel(ctx)

	if err := r.store.MarkJobRunning(termCtx, jobID, start); err != nil {
		logger.Error().Err(err).Str("event", "jobs.run.transition").Msg("cannot mark job running")
		return
	}
	metrics.SetJobsQueued(len(r.queue))
	metrics.IncJobsRunning()
	defer metrics.DecJobsRunning()

	job, err := r.store.GetJob(termCtx, jobID)
	if err != nil {
		logger.Error().Err(err).Str("event", "jobs.run.load").Msg("cannot load job")
		return
	}

	result, featureCount, err := r.run(ctx, job)
	if err != nil {
		r.fail(termCtx, logger, job, err)
		return
	}

	resultKey := blob.ResultPrefix + job.ID
	if err := r.blobs.PutTTL(resultKey, result, r.cfg.ResultTTL); err != nil {
		r.fail(termCtx, logger, job, fmt.Errorf("store result: %w", err))
		return
	}
	if err := r.store.MarkJobSucceeded(termCtx, job.ID, resultKey, featureCount, time.Now()); err != nil {
		logger.Error().Err(err).Str("event", "jobs.run.transition").Msg("cannot mark job succeeded")
		return
	}

	metrics.IncJobCompleted("succeeded")
	logger.Info().
		Str("event", "jobs.run.succeeded").
		Str(log.FieldOperation, job.Operation).
		Int(log.FieldFeatures, featureCount).
		Dur("duration", time.Since(start)).
		Msg("job finished")
}

func (r *Runner) fail(ctx context.Context, logger zerolog.Logger, job store.Job, cause error) {
	if err := r.store.MarkJobFailed(ctx, job.ID, cause.Error(), time.Now()); err != nil {
		logger.Error().Err(err).Str("event", "jobs.run.transition").Msg("cannot mark job failed")
	}
	metrics.IncJobCompleted("failed")
	logger.Error().Err(cause).
		Str("event", "jobs.run.failed").
		Str(log.FieldOperation, job.Operation).
		Msg("job failed")
}

// run loads the inputs and executes the geometry pipeline.
func (r *Runner) run(ctx context.Context, job store.Job) ([]byte, int, error) {
	var p Params
	if err := json.Unmarshal([]byte(job.Params), &p); err != nil {
		return nil, 0, fmt.Errorf("decode params: %w", err)
	}

	a, err := r.loadCollection(ctx, job.DatasetA)
	if err != nil {
		return nil, 0, err
	}

	var out *geojson.FeatureCollection
	if p.Operation == string(geo.OpBuffer) {
		buffered, err := geo.RunBuffer(a, p.BufferDistance, p.BufferSegments)
		if err != nil {
			return nil, 0, err
		}
		out = buffered.Collection
	} else {
		op, err := geo.ParseOperation(p.Operation)
		if err != nil {
			return nil, 0, err
		}

		var b *geojson.FeatureCollection
		if job.DatasetB != "" {
			if b, err = r.loadCollection(ctx, job.DatasetB); err != nil {
				return nil, 0, err
			}
		}

		if out, err = geo.RunOverlay(op, a, b); err != nil {
			return nil, 0, err
		}
	}

	encoded, err := geo.EncodeCollection(out)
	if err != nil {
		return nil, 0, err
	}
	return encoded, len(out.Features), nil
}

func (r *Runner) loadCollection(ctx context.Context, datasetID string) (*geojson.FeatureCollection, error) {
	d, err := r.store.GetDataset(ctx, datasetID)
	if err != nil {
		return nil, fmt.Errorf("load dataset %s: %w", datasetID, err)
	}
	payload, err := r.blobs.Get(d.BlobKey)
	if err != nil {
		return nil, fmt.Errorf("load dataset payload %s: %w", datasetID, err)
	}
	fc, err := geo.DecodeCollection(payload)
	if err != nil {
		return nil, fmt.Errorf("decode dataset %s: %w", datasetID, err)
	}
	return fc, nil
}
