package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contact-automation/internal/faults"
)

type stubAdapter struct {
	reply string
	err   error
	calls int
}

func (s *stubAdapter) Complete(context.Context, string, string) (string, error) {
	s.calls++
	return s.reply, s.err
}

func TestParseReply(t *testing.T) {
	cases := []struct {
		name  string
		reply string
		want  Result
	}{
		{
			name:  "connection with full address",
			reply: `{"intent":"connection_request","address":"Волгоград, улица Мира, дом 10","issue":"подключение","confidence":"high"}`,
			want:  Result{Intent: IntentConnection, Address: "Волгоград, улица Мира, дом 10", Issue: "подключение", Confidence: ConfidenceHigh},
		},
		{
			name:  "no house number forces low",
			reply: `{"intent":"connection_request","address":"Волгоград, Ленина","confidence":"high"}`,
			want:  Result{Intent: IntentConnection, Address: "Волгоград, Ленина", Confidence: ConfidenceLow},
		},
		{
			name:  "spelled out house number counts",
			reply: `{"intent":"connection_request","address":"Волгоград, Пятидесятая улица, дом двенадцать","confidence":"high"}`,
			want:  Result{Intent: IntentConnection, Address: "Волгоград, Пятидесятая улица, дом двенадцать", Confidence: ConfidenceHigh},
		},
		{
			name:  "fenced support",
			reply: "Sure:\n```json\n{\"intent\":\"support-request\",\"address\":null,\"issue\":\"нет интернета\",\"confidence\":\"low\"}\n```",
			want:  Result{Intent: IntentSupport, Issue: "нет интернета", Confidence: ConfidenceLow},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseReply(tc.reply)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseReply_Malformed(t *testing.T) {
	for _, reply := range []string{"", "I cannot help", `{"intent":`, `{"intent":"billing"}`} {
		got, err := ParseReply(reply)
		assert.ErrorIs(t, err, ErrMalformed, reply)
		assert.Equal(t, Default(), got, reply)
	}
}

func TestClassify_DegradesOnTransport(t *testing.T) {
	c := New(&stubAdapter{err: faults.Transport("chat", errors.New("timeout"))}, nil)
	got, err := c.Classify(context.Background(), "хочу подключить интернет", "+79000000001")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, Default(), got)
}

func TestClassify_NotConfigured(t *testing.T) {
	c := New(HTTPAdapter{}, nil)
	got, err := c.Classify(context.Background(), "хочу подключить интернет", "")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, faults.ErrNotConfigured)
	assert.Equal(t, Default(), got)
}

func TestClassify_EmptyTextSkipsService(t *testing.T) {
	a := &stubAdapter{}
	got, err := New(a, nil).Classify(context.Background(), "   ", "")
	require.NoError(t, err)
	assert.Equal(t, Default(), got)
	assert.Zero(t, a.calls)
}

func TestClassify_WithMockAdapter(t *testing.T) {
	c := New(MockAdapter{}, nil)

	got, err := c.Classify(context.Background(), "у меня не работает интернет второй день", "")
	require.NoError(t, err)
	assert.Equal(t, IntentSupport, got.Intent)

	got, err = c.Classify(context.Background(), "Волгоград, улица Мира, дом 10, хочу подключить интернет", "")
	require.NoError(t, err)
	assert.Equal(t, IntentConnection, got.Intent)
	assert.Equal(t, ConfidenceHigh, got.Confidence)

	got, err = c.Classify(context.Background(), "Волгоград, Ленина, хочу подключиться", "")
	require.NoError(t, err)
	assert.Equal(t, ConfidenceLow, got.Confidence)
}

func TestHTTPAdapter_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Len(t, req.Messages, 2)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`))
	}))
	defer srv.Close()

	got, err := HTTPAdapter{BaseURL: srv.URL, APIKey: "k"}.Complete(context.Background(), "s", "u")
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
}

func TestHTTPAdapter_StatusMapping(t *testing.T) {
	status := http.StatusBadGateway
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()
	a := HTTPAdapter{BaseURL: srv.URL, APIKey: "k"}

	_, err := a.Complete(context.Background(), "s", "u")
	assert.True(t, faults.IsTransport(err))

	status = http.StatusBadRequest
	_, err = a.Complete(context.Background(), "s", "u")
	assert.ErrorIs(t, err, faults.ErrMalformed)
}

func TestSummarizer_Subject(t *testing.T) {
	s := NewSummarizer(&stubAdapter{reply: "\"Не работает интернет\"\nextra"})
	got, err := s.Subject(context.Background(), "у меня не работает интернет")
	require.NoError(t, err)
	assert.Equal(t, "Не работает интернет", got)

	s = NewSummarizer(&stubAdapter{err: errors.New("boom")})
	got, err = s.Subject(context.Background(), "у меня не работает интернет")
	assert.Error(t, err)
	assert.Equal(t, GenericSubject, got)
}
