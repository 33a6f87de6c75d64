package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Chat(t *testing.T) {
	t.Run("returns first choice", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

			var req completionRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "llama-3.3-70b-versatile", req.Model)
			assert.Equal(t, 512, req.MaxTokens)
			require.Len(t, req.Messages, 2)
			assert.Equal(t, "user", req.Messages[1].Role)

			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"model":"llama-3.3-70b-versatile","choices":[{"message":{"role":"assistant","content":"Olá!"}}]}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "test-key", 5*time.Second, 512)
		resp, err := c.Chat(context.Background(), ChatRequest{
			Model: "llama-3.3-70b-versatile",
			Messages: []Message{
				{Role: "assistant", Content: "hi"},
				{Role: "user", Content: "hello"},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, "Olá!", resp.Content)
		assert.Equal(t, "llama-3.3-70b-versatile", resp.Model)
	})

	t.Run("api error message", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":{"message":"rate limited"}}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "k", 5*time.Second, 0)
		_, err := c.Chat(context.Background(), ChatRequest{Model: "m"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "rate limited")
		assert.Contains(t, err.Error(), "429")
	})

	t.Run("no choices", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"choices":[]}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "k", 5*time.Second, 0)
		_, err := c.Chat(context.Background(), ChatRequest{Model: "m"})
		assert.ErrorIs(t, err, ErrEmptyReply)
	})
}
