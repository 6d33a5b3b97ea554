package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Analyses table - registered tracking output for one video
		`CREATE TABLE IF NOT EXISTS analyses (
			id TEXT PRIMARY KEY,
			label TEXT NOT NULL,
			status TEXT NOT NULL CHECK(status IN ('pending', 'processing', 'completed', 'failed')),
			frames TEXT NOT NULL,
			quality TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Reference models table - stored exemplar motions with score weights
		`CREATE TABLE IF NOT EXISTS reference_models (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			kind TEXT NOT NULL CHECK(kind IN ('expert', 'standard', 'custom')),
			weight_speed REAL NOT NULL DEFAULT 0.25,
			weight_smoothness REAL NOT NULL DEFAULT 0.25,
			weight_stability REAL NOT NULL DEFAULT 0.25,
			weight_efficiency REAL NOT NULL DEFAULT 0.25,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Comparisons table - one learner-vs-reference scoring run
		`CREATE TABLE IF NOT EXISTS comparisons (
			id TEXT PRIMARY KEY,
			learner_analysis_id TEXT NOT NULL REFERENCES analyses(id) ON DELETE CASCADE,
			reference_analysis_id TEXT NOT NULL REFERENCES analyses(id) ON DELETE CASCADE,
			reference_model_id TEXT REFERENCES reference_models(id) ON DELETE SET NULL,
			entity_id TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL CHECK(status IN ('pending', 'processing', 'completed', 'failed')),
			progress REAL NOT NULL DEFAULT 0,
			overall_score REAL NOT NULL DEFAULT 0,
			speed_score REAL NOT NULL DEFAULT 0,
			smoothness_score REAL NOT NULL DEFAULT 0,
			stability_score REAL NOT NULL DEFAULT 0,
			efficiency_score REAL NOT NULL DEFAULT 0,
			dtw_distance REAL NOT NULL DEFAULT 0,
			alignment TEXT NOT NULL DEFAULT '[]',
			feedback TEXT NOT NULL DEFAULT '{}',
			metrics TEXT NOT NULL DEFAULT '{}',
			error_message TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Indexes for better query performance
		`CREATE INDEX IF NOT EXISTS idx_comparisons_learner ON comparisons(learner_analysis_id)`,
		`CREATE INDEX IF NOT EXISTS idx_comparisons_reference ON comparisons(reference_analysis_id)`,
		`CREATE INDEX IF NOT EXISTS idx_comparisons_status ON comparisons(status)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
