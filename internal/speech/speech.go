// Package speech re-transcribes audio attachments when a transcription
// email carries a recording but no usable text.
package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"contact-automation/internal/faults"
)

// Transcriber converts audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, filename string, audio []byte) (string, error)
}

// OpenAITranscriber calls an OpenAI-compatible /v1/audio/transcriptions.
type OpenAITranscriber struct {
	BaseURL  string
	APIKey   string
	Model    string
	Language string
	Client   *http.Client
}

func NewOpenAITranscriber(baseURL, apiKey, model string, timeout time.Duration) *OpenAITranscriber {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenAITranscriber{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		APIKey:   apiKey,
		Model:    model,
		Language: "ru",
		Client:   &http.Client{Timeout: timeout},
	}
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

func (t *OpenAITranscriber) Transcribe(ctx context.Context, filename string, audio []byte) (string, error) {
	const op = "speech transcription"
	if t.BaseURL == "" || t.APIKey == "" {
		return "", faults.ErrNotConfigured
	}
	model := t.Model
	if model == "" {
		model = "whisper-1"
	}
	if strings.TrimSpace(filename) == "" {
		filename = "audio.mp3"
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	_ = w.WriteField("model", model)
	_ = w.WriteField("response_format", "json")
	if t.Language != "" {
		_ = w.WriteField("language", t.Language)
	}
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(audio); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.BaseURL+"/v1/audio/transcriptions", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+t.APIKey)
	req.Header.Set("Content-Type", w.FormDataContentType())

	client := t.Client
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", faults.Transport(op, err)
	}
	defer resp.Body.Close()
	if err := faults.Status(op, resp.StatusCode); err != nil {
		return "", err
	}

	var out transcriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", faults.Malformed(op, err)
	}
	return strings.TrimSpace(out.Text), nil
}
