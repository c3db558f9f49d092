// Package report delivers BPM estimates to session collectors.
package report

import (
	"context"
	"errors"
)

// Reporter delivers one BPM value for a session.
type Reporter interface {
	Report(ctx context.Context, token string, bpm float64) error
}

// Func adapts a function to the Reporter interface.
type Func func(ctx context.Context, token string, bpm float64) error

// Report calls f.
func (f Func) Report(ctx context.Context, token string, bpm float64) error {
	return f(ctx, token, bpm)
}

// Multi fans a report out to every reporter. All reporters run even when
// some fail; the failures are joined.
type Multi []Reporter

// Report implements Reporter.
func (m Multi) Report(ctx context.Context, token string, bpm float64) error {
	var errs []error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.Report(ctx, token, bpm); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
