package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewStore_CreatesDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "test.db")

	if _, err := os.Stat(dbPath); !os.IsNotExist(err) {
		t.Fatal("database file should not exist before creating store")
	}

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Fatal("database file should exist after creating store")
	}
	if s.Path() != dbPath {
		t.Errorf("Path() = %q, want %q", s.Path(), dbPath)
	}
}

func TestNewStore_RunsMigrations(t *testing.T) {
	s := newTestStore(t)

	for _, table := range []string{"sessions", "bpm_readings"} {
		var name string
		err := s.DB().QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q should exist after migrations: %v", table, err)
		}
	}

	var idx string
	err := s.DB().QueryRow(
		"SELECT name FROM sqlite_master WHERE type='index' AND name=?",
		"idx_bpm_readings_session_id",
	).Scan(&idx)
	if err != nil {
		t.Errorf("index should exist after migrations: %v", err)
	}
}

func TestNewStore_ReopenKeepsData(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	sess, err := s.Sessions().Open()
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	s.Close()

	s, err = New(dbPath)
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	defer s.Close()

	if _, err := s.Sessions().Get(sess.ID); err != nil {
		t.Errorf("session should survive reopen: %v", err)
	}
}

func TestStore_Close(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Errorf("close should not return error: %v", err)
	}

	if _, err := s.DB().Exec("SELECT 1"); err == nil {
		t.Error("DB operations should fail after close")
	}
}

func TestStore_ForeignKeysEnabled(t *testing.T) {
	s := newTestStore(t)

	var fkEnabled int
	if err := s.DB().QueryRow("PRAGMA foreign_keys").Scan(&fkEnabled); err != nil {
		t.Fatalf("failed to check foreign keys pragma: %v", err)
	}
	if fkEnabled != 1 {
		t.Error("foreign keys should be enabled")
	}
}

func TestSessions_OpenGet(t *testing.T) {
	repo := newTestStore(t).Sessions()

	a, err := repo.Open()
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	b, err := repo.Open()
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if a.ID == "" || a.ID == b.ID {
		t.Errorf("tokens should be unique and non-empty: %q %q", a.ID, b.ID)
	}

	got, err := repo.Get(a.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.BPM != 0 || !got.Open() {
		t.Errorf("new session = %+v, want open with bpm 0", got)
	}

	if _, err := repo.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}

	list, err := repo.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 2 {
		t.Errorf("List() returned %d sessions, want 2", len(list))
	}
}

func TestSessions_PutGetBPM(t *testing.T) {
	repo := newTestStore(t).Sessions()

	sess, _ := repo.Open()

	for _, bpm := range []float64{71.2, 73.5, 72.0} {
		if err := repo.PutBPM(sess.ID, bpm); err != nil {
			t.Fatalf("PutBPM(%v) error = %v", bpm, err)
		}
	}

	bpm, err := repo.GetBPM(sess.ID)
	if err != nil {
		t.Fatalf("GetBPM() error = %v", err)
	}
	if bpm != 72.0 {
		t.Errorf("GetBPM() = %v, want latest 72", bpm)
	}

	readings, err := repo.Readings(sess.ID, 0)
	if err != nil {
		t.Fatalf("Readings() error = %v", err)
	}
	want := []float64{71.2, 73.5, 72.0}
	if len(readings) != len(want) {
		t.Fatalf("Readings() returned %d, want %d", len(readings), len(want))
	}
	for i, r := range readings {
		if r.BPM != want[i] {
			t.Errorf("reading %d = %v, want %v", i, r.BPM, want[i])
		}
	}

	recent, err := repo.Readings(sess.ID, 2)
	if err != nil {
		t.Fatalf("Readings(limit) error = %v", err)
	}
	if len(recent) != 2 || recent[0].BPM != 73.5 || recent[1].BPM != 72.0 {
		t.Errorf("Readings(limit 2) = %+v, want the last two in order", recent)
	}
}

func TestSessions_PutBPMErrors(t *testing.T) {
	repo := newTestStore(t).Sessions()

	if err := repo.PutBPM("missing", 70); !errors.Is(err, ErrNotFound) {
		t.Errorf("PutBPM(missing) error = %v, want ErrNotFound", err)
	}

	sess, _ := repo.Open()
	if err := repo.PutBPM(sess.ID, -1); err == nil {
		t.Error("PutBPM should reject negative values")
	}

	if err := repo.Close(sess.ID); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := repo.PutBPM(sess.ID, 70); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("PutBPM(closed) error = %v, want ErrSessionClosed", err)
	}
}

func TestSessions_Close(t *testing.T) {
	s := newTestStore(t)
	repo := s.Sessions()
	fixed := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	repo.now = func() time.Time { return fixed }

	sess, _ := repo.Open()
	if err := repo.Close(sess.ID); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	repo.now = func() time.Time { return fixed.Add(time.Hour) }
	if err := repo.Close(sess.ID); err != nil {
		t.Errorf("second Close() error = %v, want nil", err)
	}

	got, err := repo.Get(sess.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Open() {
		t.Fatal("session should be closed")
	}
	if !got.ClosedAt.Equal(fixed) {
		t.Errorf("ClosedAt = %v, want first close time %v", got.ClosedAt, fixed)
	}

	if err := repo.Close("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Close(missing) error = %v, want ErrNotFound", err)
	}
}

func TestSessions_DeleteCascades(t *testing.T) {
	s := newTestStore(t)
	repo := s.Sessions()

	sess, _ := repo.Open()
	repo.PutBPM(sess.ID, 80)
	repo.PutBPM(sess.ID, 81)

	if err := repo.Delete(sess.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	var n int
	if err := s.DB().QueryRow(`SELECT COUNT(*) FROM bpm_readings`).Scan(&n); err != nil {
		t.Fatalf("count readings: %v", err)
	}
	if n != 0 {
		t.Errorf("readings left after delete = %d, want 0", n)
	}

	if _, err := repo.Readings(sess.ID, 0); !errors.Is(err, ErrNotFound) {
		t.Errorf("Readings(deleted) error = %v, want ErrNotFound", err)
	}
	if err := repo.Delete(sess.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}
