// Package moderation provides the client for the external content scoring
// service. Every outgoing message part (text or image) is submitted for a
// verdict before the message may be persisted or delivered.
package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind identifies which part of a message a check applies to.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
)

// ErrUnavailable is returned when the scoring service cannot produce a
// verdict (unreachable, timed out, or responded with a non-success status).
// A send must never proceed unmoderated, so callers treat this as a hard
// failure of the whole send attempt.
var ErrUnavailable = errors.New("moderation: scoring service unavailable")

// Verdict is the scoring service's judgment on a single content unit.
type Verdict struct {
	Inappropriate bool
	Confidence    float64 // always within [0,1]
	Categories    []string
}

// Client calls the scoring service over HTTP. Checks are synchronous and
// independent: no caching, no retries.
type Client struct {
	url  string
	http *http.Client
}

// NewClient creates a Client for the given scorer endpoint. The timeout
// bounds each check; a timed-out check surfaces as ErrUnavailable.
func NewClient(url string, timeout time.Duration) *Client {
	return &Client{
		url:  url,
		http: &http.Client{Timeout: timeout},
	}
}

type checkRequest struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

type checkResponse struct {
	Inappropriate bool     `json:"is_inappropriate"`
	Confidence    float64  `json:"confidence"`
	Categories    []string `json:"flagged_categories"`
}

// Evaluate submits one content unit for scoring and blocks until a verdict
// or failure is returned.
func (c *Client) Evaluate(ctx context.Context, kind Kind, content string) (Verdict, error) {
	body, err := json.Marshal(checkRequest{Type: string(kind), Content: content})
	if err != nil {
		return Verdict{}, fmt.Errorf("moderation: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Verdict{}, fmt.Errorf("moderation: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Verdict{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Verdict{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var out checkResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Verdict{}, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}

	return Verdict{
		Inappropriate: out.Inappropriate,
		Confidence:    clamp01(out.Confidence),
		Categories:    out.Categories,
	}, nil
}

// clamp01 forces a confidence score into [0,1]. The scorer contract
// promises this range, but a stray value must not corrupt the block
// threshold comparison.
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
