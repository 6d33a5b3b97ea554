package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ayusman/abhyasa/internal/align"
	"github.com/ayusman/abhyasa/internal/feedback"
	"github.com/ayusman/abhyasa/internal/score"
)

// ComparisonStatus represents the lifecycle state of a comparison run.
type ComparisonStatus string

const (
	ComparisonPending    ComparisonStatus = "pending"
	ComparisonProcessing ComparisonStatus = "processing"
	ComparisonCompleted  ComparisonStatus = "completed"
	ComparisonFailed     ComparisonStatus = "failed"
)

// Comparison is one learner-vs-reference scoring run and its persisted
// result.
type Comparison struct {
	ID                  string
	LearnerAnalysisID   string
	ReferenceAnalysisID string
	ReferenceModelID    string
	EntityID            string
	Status              ComparisonStatus
	Progress            float64
	OverallScore        float64
	Components          score.Components
	DTWDistance         float64
	Alignment           []align.Pair
	Feedback            *feedback.List
	Metrics             *score.MetricsComparison
	ErrorMessage        string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// ComparisonResult is the all-or-nothing payload written when a run
// completes successfully.
type ComparisonResult struct {
	OverallScore float64
	Components   score.Components
	DTWDistance  float64
	Alignment    []align.Pair
	Feedback     *feedback.List
	Metrics      *score.MetricsComparison
}

// ComparisonRepository provides CRUD and run-state operations for
// comparisons. Write failures during a run are wrapped in PersistenceError.
type ComparisonRepository struct {
	db *sql.DB
}

// Comparisons returns the comparison repository for this store.
func (s *Store) Comparisons() *ComparisonRepository {
	return &ComparisonRepository{db: s.db}
}

// Create inserts a new comparison in pending state.
func (r *ComparisonRepository) Create(c *Comparison) error {
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now
	if c.Status == "" {
		c.Status = ComparisonPending
	}

	_, err := r.db.Exec(
		`INSERT INTO comparisons
		 (id, learner_analysis_id, reference_analysis_id, reference_model_id, entity_id, status, progress, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.LearnerAnalysisID, c.ReferenceAnalysisID, nullable(c.ReferenceModelID), c.EntityID,
		string(c.Status), c.Progress, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return err
	}

	return nil
}

// GetByID retrieves a comparison by its ID, including the persisted result
// payloads.
func (r *ComparisonRepository) GetByID(id string) (*Comparison, error) {
	c := &Comparison{}
	var status, alignJSON, feedbackJSON, metricsJSON string
	var refModel sql.NullString

	err := r.db.QueryRow(
		`SELECT id, learner_analysis_id, reference_analysis_id, reference_model_id, entity_id,
		        status, progress, overall_score, speed_score, smoothness_score, stability_score, efficiency_score,
		        dtw_distance, alignment, feedback, metrics, error_message, created_at, updated_at
		 FROM comparisons WHERE id = ?`,
		id,
	).Scan(&c.ID, &c.LearnerAnalysisID, &c.ReferenceAnalysisID, &refModel, &c.EntityID,
		&status, &c.Progress, &c.OverallScore,
		&c.Components.Speed, &c.Components.Smoothness, &c.Components.Stability, &c.Components.Efficiency,
		&c.DTWDistance, &alignJSON, &feedbackJSON, &metricsJSON, &c.ErrorMessage,
		&c.CreatedAt, &c.UpdatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	c.Status = ComparisonStatus(status)
	c.ReferenceModelID = refModel.String

	if alignJSON != "" && alignJSON != "[]" {
		if err := json.Unmarshal([]byte(alignJSON), &c.Alignment); err != nil {
			return nil, fmt.Errorf("failed to decode alignment for %s: %w", id, err)
		}
	}
	if feedbackJSON != "" && feedbackJSON != "{}" {
		c.Feedback = &feedback.List{}
		if err := json.Unmarshal([]byte(feedbackJSON), c.Feedback); err != nil {
			return nil, fmt.Errorf("failed to decode feedback for %s: %w", id, err)
		}
	}
	if metricsJSON != "" && metricsJSON != "{}" {
		c.Metrics = &score.MetricsComparison{}
		if err := json.Unmarshal([]byte(metricsJSON), c.Metrics); err != nil {
			return nil, fmt.Errorf("failed to decode metrics for %s: %w", id, err)
		}
	}

	return c, nil
}

// List retrieves all comparisons without their result payloads.
func (r *ComparisonRepository) List() ([]*Comparison, error) {
	rows, err := r.db.Query(
		`SELECT id, learner_analysis_id, reference_analysis_id, reference_model_id, entity_id,
		        status, progress, overall_score, error_message, created_at, updated_at
		 FROM comparisons ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var comparisons []*Comparison
	for rows.Next() {
		c := &Comparison{}
		var status string
		var refModel sql.NullString

		err := rows.Scan(&c.ID, &c.LearnerAnalysisID, &c.ReferenceAnalysisID, &refModel, &c.EntityID,
			&status, &c.Progress, &c.OverallScore, &c.ErrorMessage, &c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			return nil, err
		}

		c.Status = ComparisonStatus(status)
		c.ReferenceModelID = refModel.String
		comparisons = append(comparisons, c)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return comparisons, nil
}

// SetProcessing moves a comparison into processing state and resets its
// progress and any previous error.
func (r *ComparisonRepository) SetProcessing(id string) error {
	return r.exec("set processing",
		`UPDATE comparisons SET status = ?, progress = 0, error_message = '', updated_at = ? WHERE id = ?`,
		string(ComparisonProcessing), time.Now(), id)
}

// SetProgress updates the progress percentage of a running comparison.
func (r *ComparisonRepository) SetProgress(id string, progress float64) error {
	return r.exec("set progress",
		`UPDATE comparisons SET progress = ?, updated_at = ? WHERE id = ?`,
		progress, time.Now(), id)
}

// SetFailed records the error message and moves the comparison to failed
// state. The failed record stays queryable.
func (r *ComparisonRepository) SetFailed(id, errorMessage string) error {
	return r.exec("set failed",
		`UPDATE comparisons SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		string(ComparisonFailed), errorMessage, time.Now(), id)
}

// SaveResult writes the full result and marks the comparison completed in a
// single statement, so a partially-computed result is never exposed as
// successful.
func (r *ComparisonRepository) SaveResult(id string, res *ComparisonResult) error {
	alignJSON, err := json.Marshal(res.Alignment)
	if err != nil {
		return &PersistenceError{Op: "encode alignment", Err: err}
	}
	feedbackJSON, err := json.Marshal(res.Feedback)
	if err != nil {
		return &PersistenceError{Op: "encode feedback", Err: err}
	}
	metricsJSON, err := json.Marshal(res.Metrics)
	if err != nil {
		return &PersistenceError{Op: "encode metrics", Err: err}
	}

	return r.exec("save result",
		`UPDATE comparisons
		 SET status = ?, progress = 100,
		     overall_score = ?, speed_score = ?, smoothness_score = ?, stability_score = ?, efficiency_score = ?,
		     dtw_distance = ?, alignment = ?, feedback = ?, metrics = ?, error_message = '', updated_at = ?
		 WHERE id = ?`,
		string(ComparisonCompleted),
		res.OverallScore, res.Components.Speed, res.Components.Smoothness, res.Components.Stability, res.Components.Efficiency,
		res.DTWDistance, string(alignJSON), string(feedbackJSON), string(metricsJSON), time.Now(), id)
}

// Delete removes a comparison from the database by its ID.
func (r *ComparisonRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM comparisons WHERE id = ?`, id)
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

// exec runs a run-state write, wrapping failures in PersistenceError.
func (r *ComparisonRepository) exec(op, query string, args ...any) error {
	result, err := r.db.Exec(query, args...)
	if err != nil {
		return &PersistenceError{Op: op, Err: err}
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return &PersistenceError{Op: op, Err: err}
	}

	if rowsAffected == 0 {
		return &PersistenceError{Op: op, Err: ErrNotFound}
	}

	return nil
}

// nullable maps an empty string to NULL for optional foreign keys.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
