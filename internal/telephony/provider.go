// Package telephony is the boundary to the telephony provider: its REST
// API (recordings, speech into live calls) and the webhooks it calls.
package telephony

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"contact-automation/internal/faults"
	"contact-automation/internal/voicemail"
)

// Client talks to the provider REST API.
//
// Rules:
// - No provider payload types leak outside this package.
// - Every call is bounded by the client timeout.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// recording is the provider's listing entry.
type recording struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	Duration  int    `json:"duration"`
	CreatedAt string `json:"created_at"`
}

type recordingsResponse struct {
	Recordings []recording `json:"recordings"`
}

// ListRecordings returns the recordings made for a correlation token in
// the provider's order (oldest first).
func (c *Client) ListRecordings(ctx context.Context, token string) ([]voicemail.RecordingRef, error) {
	const op = "list recordings"
	var out recordingsResponse
	if err := c.do(ctx, op, http.MethodGet, "/recordings?entry_id="+url.QueryEscape(token), nil, &out); err != nil {
		return nil, err
	}
	refs := make([]voicemail.RecordingRef, 0, len(out.Recordings))
	for _, r := range out.Recordings {
		if r.URL == "" {
			continue
		}
		ref := voicemail.RecordingRef{ID: r.ID, URL: r.URL, DurationSeconds: r.Duration}
		if t, err := time.Parse(time.RFC3339, r.CreatedAt); err == nil {
			ref.CreatedAt = t
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// Say plays text into a live call using the provider's speech synthesis.
func (c *Client) Say(ctx context.Context, callID, text string) error {
	body := map[string]string{"text": text, "language": "ru-RU"}
	return c.do(ctx, "say", http.MethodPost, "/calls/"+url.PathEscape(callID)+"/say", body, nil)
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	if c.BaseURL == "" || c.APIKey == "" {
		return fmt.Errorf("%s: %w", op, faults.ErrNotConfigured)
	}

	var body *bytes.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode: %w", op, err)
		}
		body = bytes.NewReader(b)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return faults.Transport(op, err)
	}
	defer resp.Body.Close()

	if err := faults.Status(op, resp.StatusCode); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return faults.Malformed(op, err)
	}
	return nil
}
