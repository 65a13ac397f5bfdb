package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"contact-automation/internal/faults"
)

// Adapter sends one system+user prompt pair and returns the reply text.
type Adapter interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// HTTPAdapter talks to an OpenAI-compatible chat completions endpoint.
type HTTPAdapter struct {
	BaseURL string
	APIKey  string
	Model   string
	Client  *http.Client
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (h HTTPAdapter) Complete(ctx context.Context, system, user string) (string, error) {
	const op = "chat completion"
	if h.BaseURL == "" || h.APIKey == "" {
		return "", faults.ErrNotConfigured
	}
	if h.Client == nil {
		h.Client = &http.Client{Timeout: 30 * time.Second}
	}
	model := h.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	b, _ := json.Marshal(chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	})
	endpoint := strings.TrimRight(h.BaseURL, "/") + "/v1/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+h.APIKey)

	resp, err := h.Client.Do(req)
	if err != nil {
		return "", faults.Transport(op, err)
	}
	defer resp.Body.Close()
	if err := faults.Status(op, resp.StatusCode); err != nil {
		return "", err
	}

	var r chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return "", faults.Malformed(op, err)
	}
	if len(r.Choices) == 0 {
		return "", faults.Malformed(op, errors.New("no choices"))
	}
	return r.Choices[0].Message.Content, nil
}
