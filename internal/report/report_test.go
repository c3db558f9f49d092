package report

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ayusman/heartbeat/internal/store"
)

func TestMulti(t *testing.T) {
	var mu sync.Mutex
	var got []string
	record := func(name string) Reporter {
		return Func(func(ctx context.Context, token string, bpm float64) error {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, name)
			return nil
		})
	}
	boom := errors.New("collector down")
	failing := Func(func(ctx context.Context, token string, bpm float64) error {
		return boom
	})

	m := Multi{record("a"), failing, nil, record("b")}
	err := m.Report(context.Background(), "tok", 72)

	if !errors.Is(err, boom) {
		t.Errorf("Report() error = %v, want %v", err, boom)
	}
	if diff := cmp.Diff([]string{"a", "b"}, got); diff != "" {
		t.Errorf("reporters called (-want +got):\n%s", diff)
	}

	if err := (Multi{}).Report(context.Background(), "tok", 72); err != nil {
		t.Errorf("empty Multi should succeed, got %v", err)
	}
}

func TestStoreReporter(t *testing.T) {
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer s.Close()

	sess, err := s.Sessions().Open()
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	r := NewStoreReporter(s.Sessions())
	if err := r.Report(context.Background(), sess.ID, 66.5); err != nil {
		t.Fatalf("Report() error = %v", err)
	}

	bpm, err := s.Sessions().GetBPM(sess.ID)
	if err != nil {
		t.Fatalf("GetBPM() error = %v", err)
	}
	if bpm != 66.5 {
		t.Errorf("GetBPM() = %v, want 66.5", bpm)
	}

	if err := r.Report(context.Background(), "unknown", 70); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Report(unknown) error = %v, want ErrNotFound", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.Report(ctx, sess.ID, 70); !errors.Is(err, context.Canceled) {
		t.Errorf("Report(cancelled) error = %v, want context.Canceled", err)
	}
}

func TestHTTPReporter(t *testing.T) {
	var (
		gotPath   string
		gotMethod string
		gotType   string
		gotBody   BPMRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		gotType = r.Header.Get("Content-Type")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`"All good"`))
	}))
	defer srv.Close()

	r := NewHTTPReporter(srv.URL+"/api/", time.Second)
	if err := r.Report(context.Background(), "abc-123", 81.4); err != nil {
		t.Fatalf("Report() error = %v", err)
	}

	if gotMethod != http.MethodPost {
		t.Errorf("method = %s, want POST", gotMethod)
	}
	if gotPath != "/api/send_bpm/abc-123" {
		t.Errorf("path = %s, want /api/send_bpm/abc-123", gotPath)
	}
	if gotType != "application/json" {
		t.Errorf("content type = %q, want application/json", gotType)
	}
	if gotBody.BPM != 81.4 {
		t.Errorf("bpm = %v, want 81.4", gotBody.BPM)
	}
}

func TestHTTPReporter_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Not found", http.StatusNotFound)
	}))
	defer srv.Close()

	err := NewHTTPReporter(srv.URL, time.Second).Report(context.Background(), "tok", 70)
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
	if !strings.Contains(err.Error(), "404") || !strings.Contains(err.Error(), "Not found") {
		t.Errorf("error should carry status and body, got: %v", err)
	}
}

func TestHTTPReporter_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	if err := NewHTTPReporter(url, 200*time.Millisecond).Report(context.Background(), "tok", 70); err == nil {
		t.Error("expected error for unreachable collector")
	}
}

func writeHook(t *testing.T, name, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return path
}

func TestExecReporter_PassesRequestOnStdin(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}

	out := filepath.Join(t.TempDir(), "received.json")
	hook := writeHook(t, "hook.sh", "#!/bin/sh\ncat > "+out+"\n")

	r := NewExecReporter(hook, 5*time.Second)
	fixed := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return fixed }

	if err := r.Report(context.Background(), "sess-1", 64.2); err != nil {
		t.Fatalf("Report() error = %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("hook did not write its input: %v", err)
	}
	var got HookRequest
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("hook input is not JSON: %v (%s)", err, data)
	}
	want := HookRequest{Session: "sess-1", BPM: 64.2, At: fixed}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("hook request mismatch (-want +got):\n%s", diff)
	}
}

func TestExecReporter_Failure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}

	hook := writeHook(t, "fail.sh", "#!/bin/sh\necho 'collector rejected' >&2\nexit 3\n")

	err := NewExecReporter(hook, 5*time.Second).Report(context.Background(), "tok", 70)
	if err == nil {
		t.Fatal("expected error from failing hook")
	}
	if !strings.Contains(err.Error(), "collector rejected") {
		t.Errorf("error should include stderr, got: %v", err)
	}
}

func TestExecReporter_Timeout(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}

	hook := writeHook(t, "slow.sh", "#!/bin/sh\nexec sleep 10\n")

	start := time.Now()
	err := NewExecReporter(hook, 100*time.Millisecond).Report(context.Background(), "tok", 70)
	if err == nil {
		t.Fatal("expected timeout error, got nil")
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Errorf("expected timeout error, got: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("timeout took %s", elapsed)
	}
}
