package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/ayusman/abhyasa/internal/score"
)

// ReferenceKind represents how a reference model was produced.
type ReferenceKind string

const (
	// ReferenceExpert is a recording of an expert performer.
	ReferenceExpert ReferenceKind = "expert"
	// ReferenceStandard is a curated standard exemplar.
	ReferenceStandard ReferenceKind = "standard"
	// ReferenceCustom is a user-registered exemplar.
	ReferenceCustom ReferenceKind = "custom"
)

// ReferenceModel is a stored exemplar motion with its score weight vector.
type ReferenceModel struct {
	ID        string
	Name      string
	Kind      ReferenceKind
	Weights   score.Weights
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ReferenceRepository provides CRUD operations for reference models.
type ReferenceRepository struct {
	db *sql.DB
}

// References returns the reference model repository for this store.
func (s *Store) References() *ReferenceRepository {
	return &ReferenceRepository{db: s.db}
}

// Create inserts a new reference model into the database.
func (r *ReferenceRepository) Create(m *ReferenceModel) error {
	now := time.Now()
	m.CreatedAt = now
	m.UpdatedAt = now

	_, err := r.db.Exec(
		`INSERT INTO reference_models
		 (id, name, kind, weight_speed, weight_smoothness, weight_stability, weight_efficiency, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Name, string(m.Kind),
		m.Weights.Speed, m.Weights.Smoothness, m.Weights.Stability, m.Weights.Efficiency,
		m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return err
	}

	return nil
}

// GetByID retrieves a reference model by its ID.
func (r *ReferenceRepository) GetByID(id string) (*ReferenceModel, error) {
	m := &ReferenceModel{}
	var kind string

	err := r.db.QueryRow(
		`SELECT id, name, kind, weight_speed, weight_smoothness, weight_stability, weight_efficiency, created_at, updated_at
		 FROM reference_models WHERE id = ?`,
		id,
	).Scan(&m.ID, &m.Name, &kind,
		&m.Weights.Speed, &m.Weights.Smoothness, &m.Weights.Stability, &m.Weights.Efficiency,
		&m.CreatedAt, &m.UpdatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	m.Kind = ReferenceKind(kind)
	return m, nil
}

// List retrieves all reference models from the database.
func (r *ReferenceRepository) List() ([]*ReferenceModel, error) {
	rows, err := r.db.Query(
		`SELECT id, name, kind, weight_speed, weight_smoothness, weight_stability, weight_efficiency, created_at, updated_at
		 FROM reference_models ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var models []*ReferenceModel
	for rows.Next() {
		m := &ReferenceModel{}
		var kind string

		err := rows.Scan(&m.ID, &m.Name, &kind,
			&m.Weights.Speed, &m.Weights.Smoothness, &m.Weights.Stability, &m.Weights.Efficiency,
			&m.CreatedAt, &m.UpdatedAt)
		if err != nil {
			return nil, err
		}

		m.Kind = ReferenceKind(kind)
		models = append(models, m)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return models, nil
}

// Update updates an existing reference model in the database.
func (r *ReferenceRepository) Update(m *ReferenceModel) error {
	m.UpdatedAt = time.Now()

	result, err := r.db.Exec(
		`UPDATE reference_models
		 SET name = ?, kind = ?, weight_speed = ?, weight_smoothness = ?, weight_stability = ?, weight_efficiency = ?, updated_at = ?
		 WHERE id = ?`,
		m.Name, string(m.Kind),
		m.Weights.Speed, m.Weights.Smoothness, m.Weights.Stability, m.Weights.Efficiency,
		m.UpdatedAt, m.ID,
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

// Delete removes a reference model from the database by its ID.
func (r *ReferenceRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM reference_models WHERE id = ?`, id)
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
