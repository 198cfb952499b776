package extractor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOpenAI_RequiresSettings(t *testing.T) {
	_, err := NewOpenAI(Config{Enabled: true, Model: "gpt-4o-mini"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api key is required")

	_, err = NewOpenAI(Config{Enabled: true, APIKey: "key"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model is required")
}

func TestOpenAI_Complete(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "gpt-4o-mini",
			"choices": [{
				"index": 0,
				"message": {"role": "assistant", "content": "{\"name\":\"Netflix\",\"price\":29.9}"},
				"finish_reason": "stop"
			}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 10, "total_tokens": 20}
		}`))
	}))
	defer server.Close()

	llm, err := NewOpenAI(Config{Enabled: true, BaseURL: server.URL, Model: "gpt-4o-mini", APIKey: "test-key"})
	require.NoError(t, err)

	out, err := llm.Complete(context.Background(), "extract this")
	require.NoError(t, err)

	assert.Equal(t, `{"name":"Netflix","price":29.9}`, out)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "gpt-4o-mini", gotBody["model"])
}

func TestOpenAI_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid api key","type":"invalid_request_error"}}`))
	}))
	defer server.Close()

	llm, err := NewOpenAI(Config{Enabled: true, BaseURL: server.URL, Model: "gpt-4o-mini", APIKey: "bad"})
	require.NoError(t, err)

	_, err = llm.Complete(context.Background(), "extract this")
	require.Error(t, err)
}
