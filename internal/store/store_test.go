// SPDX-License-Identifier: MIT

package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "geoproc.db"), DefaultConfig())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testDataset(id string) Dataset {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return Dataset{
		ID:           id,
		Name:         "parcels",
		Format:       FormatGeoJSON,
		BlobKey:      "dataset/" + id,
		SizeBytes:    2048,
		FeatureCount: 12,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestDatasetCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	d := testDataset("ds-1")
	if err := s.InsertDataset(ctx, d); err != nil {
		t.Fatalf("InsertDataset() error = %v", err)
	}

	got, err := s.GetDataset(ctx, "ds-1")
	if err != nil {
		t.Fatalf("GetDataset() error = %v", err)
	}
	if got.Name != d.Name || got.Format != d.Format || got.FeatureCount != d.FeatureCount {
		t.Errorf("GetDataset() = %+v, want %+v", got, d)
	}
	if !got.CreatedAt.Equal(d.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, d.CreatedAt)
	}

	d.Name = "parcels-v2"
	d.FeatureCount = 15
	d.UpdatedAt = d.UpdatedAt.Add(time.Minute)
	if err := s.UpdateDataset(ctx, d); err != nil {
		t.Fatalf("UpdateDataset() error = %v", err)
	}

	got, err = s.GetDataset(ctx, "ds-1")
	if err != nil {
		t.Fatalf("GetDataset() after update error = %v", err)
	}
	if got.Name != "parcels-v2" || got.FeatureCount != 15 {
		t.Errorf("update not applied: %+v", got)
	}

	if err := s.DeleteDataset(ctx, "ds-1"); err != nil {
		t.Fatalf("DeleteDataset() error = %v", err)
	}
	if _, err := s.GetDataset(ctx, "ds-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetDataset() after delete error = %v, want ErrNotFound", err)
	}
}

func TestDatasetNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	if _, err := s.GetDataset(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetDataset error = %v, want ErrNotFound", err)
	}
	if err := s.DeleteDataset(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteDataset error = %v, want ErrNotFound", err)
	}
	if err := s.UpdateDataset(ctx, testDataset("missing")); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateDataset error = %v, want ErrNotFound", err)
	}
}

func TestListAndCountDatasets(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	first := testDataset("ds-a")
	second := testDataset("ds-b")
	second.CreatedAt = first.CreatedAt.Add(time.Second)
	second.UpdatedAt = second.CreatedAt

	if err := s.InsertDataset(ctx, first); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertDataset(ctx, second); err != nil {
		t.Fatal(err)
	}

	list, err := s.ListDatasets(ctx)
	if err != nil {
		t.Fatalf("ListDatasets() error = %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("datasets = %d, want 2", len(list))
	}
	if list[0].ID != "ds-b" {
		t.Errorf("newest first ordering violated: %s", list[0].ID)
	}

	count, err := s.CountDatasets(ctx)
	if err != nil {
		t.Fatalf("CountDatasets() error = %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
}

func TestJobLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	now := time.Now().UTC().Truncate(time.Millisecond)

	j := Job{
		ID:        "job-1",
		Operation: "clip",
		Params:    `{"crs":"EPSG:3395"}`,
		DatasetA:  "ds-a",
		DatasetB:  "ds-b",
		CreatedAt: now,
	}
	if err := s.InsertJob(ctx, j); err != nil {
		t.Fatalf("InsertJob() error = %v", err)
	}

	got, err := s.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if got.State != JobQueued || got.DatasetB != "ds-b" {
		t.Errorf("queued job = %+v", got)
	}

	if err := s.MarkJobRunning(ctx, "job-1", now.Add(time.Second)); err != nil {
		t.Fatalf("MarkJobRunning() error = %v", err)
	}
	if err := s.MarkJobSucceeded(ctx, "job-1", "result/job-1", 7, now.Add(2*time.Second)); err != nil {
		t.Fatalf("MarkJobSucceeded() error = %v", err)
	}

	got, err = s.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if got.State != JobSucceeded || got.ResultKey != "result/job-1" || got.FeatureCount != 7 {
		t.Errorf("succeeded job = %+v", got)
	}
	if got.StartedAt.IsZero() || got.FinishedAt.IsZero() {
		t.Error("timestamps not recorded")
	}
}

func TestJobFailure(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	now := time.Now().UTC()

	j := Job{ID: "job-2", Operation: "dissolve", Params: "{}", DatasetA: "ds-a", CreatedAt: now}
	if err := s.InsertJob(ctx, j); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkJobFailed(ctx, "job-2", "empty result", now.Add(time.Second)); err != nil {
		t.Fatalf("MarkJobFailed() error = %v", err)
	}

	got, err := s.GetJob(ctx, "job-2")
	if err != nil {
		t.Fatal(err)
	}
	if got.State != JobFailed || got.Error != "empty result" {
		t.Errorf("failed job = %+v", got)
	}
	if got.DatasetB != "" {
		t.Errorf("DatasetB = %q, want empty", got.DatasetB)
	}
}

func TestListQueuedJobsOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	now := time.Now().UTC()

	for i, id := range []string{"job-old", "job-new"} {
		j := Job{
			ID:        id,
			Operation: "union",
			Params:    "{}",
			DatasetA:  "ds-a",
			DatasetB:  "ds-b",
			CreatedAt: now.Add(time.Duration(i) * time.Second),
		}
		if err := s.InsertJob(ctx, j); err != nil {
			t.Fatal(err)
		}
	}

	queued, err := s.ListQueuedJobs(ctx)
	if err != nil {
		t.Fatalf("ListQueuedJobs() error = %v", err)
	}
	if len(queued) != 2 || queued[0].ID != "job-old" {
		t.Errorf("queued order = %v", queued)
	}
}

func TestFailRunningJobs(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	now := time.Now().UTC()

	j := Job{ID: "job-3", Operation: "merge", Params: "{}", DatasetA: "ds-a", DatasetB: "ds-b", CreatedAt: now}
	if err := s.InsertJob(ctx, j); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkJobRunning(ctx, "job-3", now); err != nil {
		t.Fatal(err)
	}

	n, err := s.FailRunningJobs(ctx, "daemon restarted", now.Add(time.Minute))
	if err != nil {
		t.Fatalf("FailRunningJobs() error = %v", err)
	}
	if n != 1 {
		t.Errorf("failed %d jobs, want 1", n)
	}

	got, err := s.GetJob(ctx, "job-3")
	if err != nil {
		t.Fatal(err)
	}
	if got.State != JobFailed {
		t.Errorf("state = %s, want failed", got.State)
	}
}

func TestListJobsFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	now := time.Now().UTC()

	for i, id := range []string{"j1", "j2", "j3"} {
		j := Job{ID: id, Operation: "clip", Params: "{}", DatasetA: "a", DatasetB: "b",
			CreatedAt: now.Add(time.Duration(i) * time.Second)}
		if err := s.InsertJob(ctx, j); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.MarkJobRunning(ctx, "j2", now); err != nil {
		t.Fatal(err)
	}

	queued, err := s.ListJobs(ctx, JobQueued, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(queued) != 2 {
		t.Errorf("queued jobs = %d, want 2", len(queued))
	}

	all, err := s.ListJobs(ctx, "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("all jobs = %d, want 3", len(all))
	}
	if all[0].ID != "j3" {
		t.Errorf("newest first ordering violated: %s", all[0].ID)
	}
}
