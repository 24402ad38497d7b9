package assistant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completionServer(t *testing.T, status int, answer string, seen *openai.ChatCompletionRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		if seen != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"choices": []map[string]any{{"index": 0, "message": map[string]string{"role": "assistant", "content": answer}}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestReply(t *testing.T) {
	var seen openai.ChatCompletionRequest
	srv := completionServer(t, http.StatusOK, "  We ship in 2-4 days.  ", &seen)
	a := New(Config{APIKey: "sk-test", BaseURL: srv.URL + "/v1/", Model: "test-model", HistoryTurns: 2}, nil)

	history := []Turn{
		{FromUser: true, Text: "hello"},
		{Text: "Hi! How can I help?"},
		{FromUser: true, Text: " "},
		{FromUser: true, Text: "I have a question"},
	}
	got, err := a.Reply(context.Background(), history, "how long is shipping?")
	require.NoError(t, err)
	assert.Equal(t, "We ship in 2-4 days.", got)

	assert.Equal(t, "test-model", seen.Model)
	require.Len(t, seen.Messages, 3)
	assert.Equal(t, openai.ChatMessageRoleSystem, seen.Messages[0].Role)
	assert.Equal(t, "I have a question", seen.Messages[1].Content)
	assert.Equal(t, openai.ChatMessageRoleUser, seen.Messages[2].Role)
	assert.Equal(t, "how long is shipping?", seen.Messages[2].Content)
}

func TestReplyUpstreamError(t *testing.T) {
	srv := completionServer(t, http.StatusServiceUnavailable, "", nil)
	a := New(Config{APIKey: "sk-test", BaseURL: srv.URL + "/v1"}, nil)

	_, err := a.Reply(context.Background(), nil, "hi")
	assert.Error(t, err)
}

func TestReplyEmptyAnswer(t *testing.T) {
	srv := completionServer(t, http.StatusOK, "   ", nil)
	a := New(Config{APIKey: "sk-test", BaseURL: srv.URL + "/v1"}, nil)

	_, err := a.Reply(context.Background(), nil, "hi")
	assert.Error(t, err)
}

func TestDisabled(t *testing.T) {
	a := New(Config{}, nil)
	assert.False(t, a.Enabled())

	_, err := a.Reply(context.Background(), nil, "hi")
	assert.ErrorIs(t, err, ErrDisabled)

	var nilAssistant *Assistant
	assert.False(t, nilAssistant.Enabled())
}
