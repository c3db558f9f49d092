package store

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a requested resource does not exist.
	ErrNotFound = errors.New("not found")

	// ErrSessionClosed is returned when writing to a closed session.
	ErrSessionClosed = errors.New("session closed")
)

// Session is one measurement session and its latest BPM.
type Session struct {
	ID        string
	BPM       float64
	CreatedAt time.Time
	UpdatedAt time.Time
	ClosedAt  *time.Time
}

// Open reports whether the session still accepts readings.
func (s *Session) Open() bool {
	return s.ClosedAt == nil
}

// Reading is one reported BPM value.
type Reading struct {
	BPM        float64
	RecordedAt time.Time
}

// SessionRepository provides operations on sessions and their readings.
type SessionRepository struct {
	db  *sql.DB
	now func() time.Time
}

// Sessions returns the session repository for this store.
func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{db: s.db, now: time.Now}
}

// Open creates a new session with a fresh token.
func (r *SessionRepository) Open() (*Session, error) {
	now := r.now().UTC()
	sess := &Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := r.db.Exec(
		`INSERT INTO sessions (id, bpm, created_at, updated_at) VALUES (?, 0, ?, ?)`,
		sess.ID, sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return sess, nil
}

// Get retrieves a session by its token.
func (r *SessionRepository) Get(id string) (*Session, error) {
	sess := &Session{}
	var closedAt sql.NullTime

	err := r.db.QueryRow(
		`SELECT id, bpm, created_at, updated_at, closed_at FROM sessions WHERE id = ?`,
		id,
	).Scan(&sess.ID, &sess.BPM, &sess.CreatedAt, &sess.UpdatedAt, &closedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if closedAt.Valid {
		t := closedAt.Time
		sess.ClosedAt = &t
	}
	return sess, nil
}

// List retrieves all sessions, newest first.
func (r *SessionRepository) List() ([]*Session, error) {
	rows, err := r.db.Query(
		`SELECT id, bpm, created_at, updated_at, closed_at FROM sessions ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess := &Session{}
		var closedAt sql.NullTime
		if err := rows.Scan(&sess.ID, &sess.BPM, &sess.CreatedAt, &sess.UpdatedAt, &closedAt); err != nil {
			return nil, err
		}
		if closedAt.Valid {
			t := closedAt.Time
			sess.ClosedAt = &t
		}
		sessions = append(sessions, sess)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sessions, nil
}

// PutBPM records bpm as the session's latest value and appends it to the
// session history.
func (r *SessionRepository) PutBPM(id string, bpm float64) error {
	if math.IsNaN(bpm) || math.IsInf(bpm, 0) || bpm < 0 {
		return fmt.Errorf("invalid bpm %v", bpm)
	}

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var closedAt sql.NullTime
	err = tx.QueryRow(`SELECT closed_at FROM sessions WHERE id = ?`, id).Scan(&closedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if closedAt.Valid {
		return ErrSessionClosed
	}

	now := r.now().UTC()
	if _, err := tx.Exec(
		`UPDATE sessions SET bpm = ?, updated_at = ? WHERE id = ?`,
		bpm, now, id,
	); err != nil {
		return err
	}
	if _, err := tx.Exec(
		`INSERT INTO bpm_readings (session_id, bpm, recorded_at) VALUES (?, ?, ?)`,
		id, bpm, now,
	); err != nil {
		return err
	}

	return tx.Commit()
}

// GetBPM returns the latest BPM of a session, 0 when nothing has been
// reported yet.
func (r *SessionRepository) GetBPM(id string) (float64, error) {
	sess, err := r.Get(id)
	if err != nil {
		return 0, err
	}
	return sess.BPM, nil
}

// Close marks a session as closed. Closing a closed session is a no-op.
func (r *SessionRepository) Close(id string) error {
	result, err := r.db.Exec(
		`UPDATE sessions SET closed_at = COALESCE(closed_at, ?) WHERE id = ?`,
		r.now().UTC(), id,
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

// Delete removes a session and its readings.
func (r *SessionRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
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

// Readings returns the session history in recording order. A positive limit
// keeps only the most recent readings.
func (r *SessionRepository) Readings(id string, limit int) ([]Reading, error) {
	if _, err := r.Get(id); err != nil {
		return nil, err
	}

	query := `SELECT bpm, recorded_at FROM (
			SELECT id, bpm, recorded_at FROM bpm_readings WHERE session_id = ?
			ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`
	if limit <= 0 {
		limit = -1
	}

	rows, err := r.db.Query(query, id, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var readings []Reading
	for rows.Next() {
		var rd Reading
		if err := rows.Scan(&rd.BPM, &rd.RecordedAt); err != nil {
			return nil, err
		}
		readings = append(readings, rd)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return readings, nil
}
