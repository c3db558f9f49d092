package report

import (
	"context"

	"github.com/ayusman/heartbeat/internal/store"
)

// StoreReporter records estimates in the local session store.
type StoreReporter struct {
	sessions *store.SessionRepository
}

// NewStoreReporter creates a StoreReporter writing to sessions.
func NewStoreReporter(sessions *store.SessionRepository) *StoreReporter {
	return &StoreReporter{sessions: sessions}
}

// Report implements Reporter.
func (r *StoreReporter) Report(ctx context.Context, token string, bpm float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.sessions.PutBPM(token, bpm)
}
