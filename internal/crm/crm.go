// Package crm delivers finalized call records to the automation webhook.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Lead statuses.
const (
	StatusCompleted = "completed"
	StatusPartial   = "partial"
)

// ErrDisabled is returned by Deliver when no webhook URL is configured.
var ErrDisabled = errors.New("crm: webhook url not configured")

// Payload is the one record posted per finished call.
type Payload struct {
	EventID           string    `json:"event_id"`
	CallID            string    `json:"call_id"`
	StreamID          string    `json:"stream_id,omitempty"`
	CallerNumber      string    `json:"caller_number,omitempty"`
	CalledNumber      string    `json:"called_number,omitempty"`
	CallerLocal       string    `json:"caller_local,omitempty"`
	FirstName         string    `json:"first_name"`
	LastName          string    `json:"last_name"`
	PhoneNumber       string    `json:"phone_number"`
	StudyTrack        string    `json:"study_track,omitempty"`
	Consent           string    `json:"consent"`
	Status            string    `json:"status"`
	Reason            string    `json:"reason"`
	RecordingSID      string    `json:"recording_sid,omitempty"`
	RecordingURL      string    `json:"recording_url,omitempty"`
	RecordingProxyURL string    `json:"recording_proxy_url,omitempty"`
	StartedAt         time.Time `json:"started_at"`
	EndedAt           time.Time `json:"ended_at"`
	DurationSeconds   int       `json:"duration_seconds"`
	Remarks           string    `json:"remarks,omitempty"`
}

// Client posts payloads as JSON.
type Client struct {
	URL        string
	HTTPClient *http.Client
}

// NewClient returns a client with a bounded timeout. An empty url makes
// Deliver return ErrDisabled.
func NewClient(url string) *Client {
	return &Client{URL: url, HTTPClient: &http.Client{Timeout: 15 * time.Second}}
}

// Deliver posts p once. A missing EventID is filled with a random UUID and
// also sent as Idempotency-Key.
func (c *Client) Deliver(ctx context.Context, p Payload) error {
	if c.URL == "" {
		return ErrDisabled
	}
	if p.EventID == "" {
		p.EventID = uuid.NewString()
	}
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("crm: marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("crm: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", p.EventID)

	hc := c.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("crm: post: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		preview, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("crm: webhook status %d: %s", resp.StatusCode, string(preview))
	}
	return nil
}
