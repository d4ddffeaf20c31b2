package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float32 `json:"temperature"`
}

func newTestServer(t *testing.T, status int, body string, got *capturedRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		if got != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(got))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIClient_Complete(t *testing.T) {
	var got capturedRequest
	srv := newTestServer(t, http.StatusOK, `{
		"id": "chatcmpl-1",
		"object": "chat.completion",
		"choices": [{"index": 0, "message": {"role": "assistant", "content": "  Здравствуйте! Как вас зовут?  "}, "finish_reason": "stop"}],
		"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
	}`, &got)

	c, err := NewOpenAIClient("test-key", "gpt-4o-mini", srv.URL+"/v1")
	require.NoError(t, err)

	out, err := c.Complete(context.Background(), Request{
		System:      "persona",
		Messages:    []Message{{Role: RoleUser, Text: "Привет"}},
		Temperature: 0.7,
		MaxTokens:   300,
	})
	require.NoError(t, err)
	assert.Equal(t, "Здравствуйте! Как вас зовут?", out)

	assert.Equal(t, "gpt-4o-mini", got.Model)
	assert.Equal(t, 300, got.MaxTokens)
	assert.InDelta(t, 0.7, got.Temperature, 0.001)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "persona", got.Messages[0].Content)
	assert.Equal(t, "user", got.Messages[1].Role)
}

func TestOpenAIClient_ServerErrorIsProviderError(t *testing.T) {
	srv := newTestServer(t, http.StatusInternalServerError,
		`{"error": {"message": "boom", "type": "server_error"}}`, nil)

	c, err := NewOpenAIClient("test-key", "", srv.URL+"/v1")
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Text: "hi"}}})
	require.Error(t, err)

	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "chat completion", perr.Op)
}

func TestOpenAIClient_EmptyChoices(t *testing.T) {
	srv := newTestServer(t, http.StatusOK, `{"id": "x", "object": "chat.completion", "choices": []}`, nil)

	c, err := NewOpenAIClient("test-key", "", srv.URL+"/v1")
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), Request{})
	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.ErrorIs(t, err, errEmptyChoices)
}

func TestNewOpenAIClient_RequiresKey(t *testing.T) {
	_, err := NewOpenAIClient(" ", "", "")
	require.Error(t, err)
}
