// Package scorer talks to the external ML scoring service. The scorer is an
// untrusted collaborator: every call has a bounded timeout and any non-2xx
// status or malformed body is reported as an error for the caller to absorb.
package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 5 * time.Second

// Result is the scorer's verdict for one record.
type Result struct {
	IsAnomaly    bool    `json:"is_anomaly"`
	AnomalyType  string  `json:"anomaly_type"`
	AnomalyScore float64 `json:"anomaly_score"`
}

// Client is an HTTP client for the scoring endpoint.
type Client struct {
	base string
	http *http.Client
}

// New builds a client for the given base URL. A non-positive timeout falls
// back to 5 seconds; a hanging scorer must not stall the scan.
func New(base string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: timeout},
	}
}

// Score submits a flat measurement payload and returns the verdict.
func (c *Client) Score(ctx context.Context, payload map[string]any) (Result, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{}, fmt.Errorf("scorer: encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/detect-anomaly", bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("scorer: call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, fmt.Errorf("scorer: unexpected status %d", resp.StatusCode)
	}
	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Result{}, fmt.Errorf("scorer: decode response: %w", err)
	}
	return result, nil
}
