package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Sessions table - one row per measurement session with its latest BPM
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			bpm REAL NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			closed_at DATETIME
		)`,

		// BPM readings table - every reported estimate, for history and charts
		`CREATE TABLE IF NOT EXISTS bpm_readings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			bpm REAL NOT NULL,
			recorded_at DATETIME NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_bpm_readings_session_id ON bpm_readings(session_id, recorded_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
