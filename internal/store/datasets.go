// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// DatasetFormat names the source format of a stored dataset.
type DatasetFormat string

const (
	FormatGeoJSON   DatasetFormat = "geojson"
	FormatShapefile DatasetFormat = "shapefile"
)

// Dataset describes a stored feature collection. The GeoJSON payload
// itself lives in the blob store under BlobKey.
type Dataset struct {
	ID           string
	Name         string
	Format       DatasetFormat
	BlobKey      string
	SizeBytes    int64
	FeatureCount int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// InsertDataset stores dataset metadata.
func (s *Store) InsertDataset(ctx context.Context, d Dataset) error {
	query := `
	INSERT INTO datasets (id, name, format, blob_key, size_bytes, feature_count, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		d.ID, d.Name, string(d.Format), d.BlobKey, d.SizeBytes, d.FeatureCount,
		formatTime(d.CreatedAt), formatTime(d.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert dataset: %w", err)
	}
	return nil
}

// UpdateDataset replaces the payload metadata of an existing dataset.
func (s *Store) UpdateDataset(ctx context.Context, d Dataset) error {
	query := `
	UPDATE datasets
	SET name = ?, format = ?, blob_key = ?, size_bytes = ?, feature_count = ?, updated_at = ?
	WHERE id = ?
	`
	res, err := s.db.ExecContext(ctx, query,
		d.Name, string(d.Format), d.BlobKey, d.SizeBytes, d.FeatureCount,
		formatTime(d.UpdatedAt), d.ID)
	if err != nil {
		return fmt.Errorf("update dataset: %w", err)
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

// GetDataset retrieves a dataset by id.
func (s *Store) GetDataset(ctx context.Context, id string) (Dataset, error) {
	query := `
	SELECT id, name, format, blob_key, size_bytes, feature_count, created_at, updated_at
	FROM datasets WHERE id = ?
	`
	var d Dataset
	var format, createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&d.ID, &d.Name, &format, &d.BlobKey, &d.SizeBytes, &d.FeatureCount, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Dataset{}, ErrNotFound
	}
	if err != nil {
		return Dataset{}, fmt.Errorf("get dataset: %w", err)
	}

	d.Format = DatasetFormat(format)
	if d.CreatedAt, err = parseTime(createdAt); err != nil {
		return Dataset{}, fmt.Errorf("parse created_at: %w", err)
	}
	if d.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return Dataset{}, fmt.Errorf("parse updated_at: %w", err)
	}
	return d, nil
}

// ListDatasets returns all datasets ordered by creation time, newest first.
func (s *Store) ListDatasets(ctx context.Context) ([]Dataset, error) {
	query := `
	SELECT id, name, format, blob_key, size_bytes, feature_count, created_at, updated_at
	FROM datasets ORDER BY created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var datasets []Dataset
	for rows.Next() {
		var d Dataset
		var format, createdAt, updatedAt string
		if err := rows.Scan(&d.ID, &d.Name, &format, &d.BlobKey, &d.SizeBytes,
			&d.FeatureCount, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		d.Format = DatasetFormat(format)
		if d.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		if d.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, fmt.Errorf("parse updated_at: %w", err)
		}
		datasets = append(datasets, d)
	}
	return datasets, rows.Err()
}

// DeleteDataset removes dataset metadata. The caller deletes the blob.
func (s *Store) DeleteDataset(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM datasets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete dataset: %w", err)
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

// CountDatasets returns the number of stored datasets.
func (s *Store) CountDatasets(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM datasets`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count datasets: %w", err)
	}
	return count, nil
}
