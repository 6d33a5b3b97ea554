package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ayusman/abhyasa/internal/motion"
)

// AnalysisStatus represents the lifecycle state of a registered analysis.
type AnalysisStatus string

const (
	AnalysisPending    AnalysisStatus = "pending"
	AnalysisProcessing AnalysisStatus = "processing"
	AnalysisCompleted  AnalysisStatus = "completed"
	AnalysisFailed     AnalysisStatus = "failed"
)

// Analysis is the tracking output registered for one video: the raw frames
// and the tracker's quality annotation. A comparison consumes two completed
// analyses.
type Analysis struct {
	ID        string
	Label     string
	Status    AnalysisStatus
	Frames    []motion.RawFrame
	Quality   motion.QualityAnnotation
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AnalysisRepository provides CRUD operations for analyses.
type AnalysisRepository struct {
	db *sql.DB
}

// Analyses returns the analysis repository for this store.
func (s *Store) Analyses() *AnalysisRepository {
	return &AnalysisRepository{db: s.db}
}

// Create inserts a new analysis into the database.
func (r *AnalysisRepository) Create(a *Analysis) error {
	now := time.Now()
	a.CreatedAt = now
	a.UpdatedAt = now

	frames, err := json.Marshal(a.Frames)
	if err != nil {
		return fmt.Errorf("failed to encode frames: %w", err)
	}
	quality, err := json.Marshal(a.Quality)
	if err != nil {
		return fmt.Errorf("failed to encode quality: %w", err)
	}

	_, err = r.db.Exec(
		`INSERT INTO analyses (id, label, status, frames, quality, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Label, string(a.Status), string(frames), string(quality), a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return err
	}

	return nil
}

// GetByID retrieves an analysis by its ID, including its frames and quality
// annotation.
func (r *AnalysisRepository) GetByID(id string) (*Analysis, error) {
	a := &Analysis{}
	var status, frames, quality string

	err := r.db.QueryRow(
		`SELECT id, label, status, frames, quality, created_at, updated_at
		 FROM analyses WHERE id = ?`,
		id,
	).Scan(&a.ID, &a.Label, &status, &frames, &quality, &a.CreatedAt, &a.UpdatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	a.Status = AnalysisStatus(status)
	if err := json.Unmarshal([]byte(frames), &a.Frames); err != nil {
		return nil, fmt.Errorf("failed to decode frames for %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(quality), &a.Quality); err != nil {
		return nil, fmt.Errorf("failed to decode quality for %s: %w", id, err)
	}

	return a, nil
}

// List retrieves all analyses without their frame payloads.
func (r *AnalysisRepository) List() ([]*Analysis, error) {
	rows, err := r.db.Query(
		`SELECT id, label, status, created_at, updated_at
		 FROM analyses ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var analyses []*Analysis
	for rows.Next() {
		a := &Analysis{}
		var status string

		if err := rows.Scan(&a.ID, &a.Label, &status, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}

		a.Status = AnalysisStatus(status)
		analyses = append(analyses, a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return analyses, nil
}

// UpdateStatus updates the lifecycle state of an analysis.
func (r *AnalysisRepository) UpdateStatus(id string, status AnalysisStatus) error {
	result, err := r.db.Exec(
		`UPDATE analyses SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now(), id,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// Delete removes an analysis from the database by its ID.
func (r *AnalysisRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM analyses WHERE id = ?`, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}
