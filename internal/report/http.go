package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout bounds a single report when the caller's context has no
// deadline.
const DefaultTimeout = 5 * time.Second

// BPMRequest is the body posted to a collector.
type BPMRequest struct {
	BPM float64 `json:"bpm"`
}

// HTTPReporter posts estimates to a remote session collector at
// {baseURL}/send_bpm/{token}.
type HTTPReporter struct {
	baseURL string
	client  *http.Client
}

// NewHTTPReporter creates an HTTPReporter for the collector at baseURL.
func NewHTTPReporter(baseURL string, timeout time.Duration) *HTTPReporter {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPReporter{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Report implements Reporter.
func (r *HTTPReporter) Report(ctx context.Context, token string, bpm float64) error {
	body, err := json.Marshal(BPMRequest{BPM: bpm})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := r.baseURL + "/send_bpm/" + url.PathEscape(token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("send bpm: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("send bpm: collector returned %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	return nil
}
