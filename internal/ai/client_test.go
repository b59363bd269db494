package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChat_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req chatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "test-model", req.Model)
		require.NotEmpty(t, req.Messages)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": "Pandas love bamboo!"}},
			},
			"usage": map[string]int{
				"prompt_tokens":     12,
				"completion_tokens": 5,
				"total_tokens":      17,
			},
		})
	}))
	defer srv.Close()

	cli := New("sk-test", "test-model", WithBaseURL(srv.URL))
	res, err := cli.Chat(context.Background(), []Message{
		{Role: RoleUser, Content: "Tell me about pandas"},
	})
	require.NoError(t, err)
	require.Equal(t, "Pandas love bamboo!", res.Text)
	require.Equal(t, 17, res.Usage.TotalTokens)
}

func TestChat_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"message": "rate limit exceeded", "type": "rate_limit"},
		})
	}))
	defer srv.Close()

	cli := New("sk-test", "test-model", WithBaseURL(srv.URL))
	_, err := cli.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "429")
	require.Contains(t, err.Error(), "rate limit exceeded")
}

func TestChat_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer srv.Close()

	cli := New("sk-test", "test-model", WithBaseURL(srv.URL))
	_, err := cli.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "empty choices")
}
