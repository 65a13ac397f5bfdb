package speech

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contact-automation/internal/faults"
)

func TestOpenAITranscriber_Transcribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/transcriptions", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		assert.Equal(t, "ru", r.FormValue("language"))
		f, h, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		b, _ := io.ReadAll(f)
		assert.Equal(t, "voice.wav", h.Filename)
		assert.Equal(t, "RIFF", string(b))
		_, _ = w.Write([]byte(`{"text":" хочу подключить интернет "}`))
	}))
	defer srv.Close()

	tr := NewOpenAITranscriber(srv.URL, "k", "", time.Second)
	got, err := tr.Transcribe(context.Background(), "voice.wav", []byte("RIFF"))
	require.NoError(t, err)
	assert.Equal(t, "хочу подключить интернет", got)
}

func TestOpenAITranscriber_NotConfigured(t *testing.T) {
	_, err := NewOpenAITranscriber("", "", "", 0).Transcribe(context.Background(), "a.mp3", nil)
	assert.ErrorIs(t, err, faults.ErrNotConfigured)
}
