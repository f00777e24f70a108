// Package nlu talks to the external natural-language understanding service.
// Like the scorer, it is a fallible collaborator: bounded timeout, and any
// transport or decoding failure surfaces as an error for the router to
// degrade on.
package nlu

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

// Response is one reply object from the NLU webhook. Metadata is optional;
// free-text answers carry only Text.
type Response struct {
	Text     string    `json:"text"`
	Metadata *Metadata `json:"metadata,omitempty"`
}

// Metadata carries the interpreted intent and extracted entities.
type Metadata struct {
	Intent   string         `json:"intent"`
	Entities map[string]any `json:"entities"`
}

// Client is an HTTP client for the NLU webhook.
type Client struct {
	base string
	http *http.Client
}

func New(base string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: timeout},
	}
}

// Interpret submits a user message and returns the NLU's reply objects.
func (c *Client) Interpret(ctx context.Context, sender, message string, extra map[string]any) ([]Response, error) {
	payload := map[string]any{
		"sender":  sender,
		"message": message,
	}
	if len(extra) > 0 {
		payload["context"] = extra
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("nlu: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/webhook/rest/webhook", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("nlu: call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("nlu: unexpected status %d", resp.StatusCode)
	}
	var out struct {
		Responses []Response `json:"responses"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("nlu: decode response: %w", err)
	}
	return out.Responses, nil
}
