package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deepchat/internal/chat"
	"deepchat/internal/deepseek"
	"deepchat/internal/prompt"
	"deepchat/internal/store"
	"deepchat/internal/types"
)

// stubClient fakes the completion service for handler tests.
type stubClient struct {
	reply       string
	fragments   []string
	completeErr error
}

func (c *stubClient) Complete(ctx context.Context, messages []types.Message, opts deepseek.Options) (*deepseek.Completion, error) {
	if c.completeErr != nil {
		return nil, c.completeErr
	}
	return &deepseek.Completion{Text: c.reply}, nil
}

func (c *stubClient) CompleteStreaming(ctx context.Context, messages []types.Message, opts deepseek.Options) (<-chan string, <-chan error) {
	contentCh := make(chan string, len(c.fragments))
	errCh := make(chan error, 1)
	for _, f := range c.fragments {
		contentCh <- f
	}
	close(contentCh)
	close(errCh)
	return contentCh, errCh
}

func newTestServer(client chat.CompletionClient) (*Server, *chat.Service) {
	registry := prompt.NewRegistry()
	engine := chat.NewService(store.New(), registry, client, chat.DefaultConfig(), nil, nil)
	return NewServer(DefaultConfig(), engine, registry, nil), engine
}

func doJSON(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var envelope map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope
}

func TestSendMessageEndpoint(t *testing.T) {
	server, _ := newTestServer(&stubClient{reply: "pong"})
	routes := server.Routes()

	t.Run("success envelope", func(t *testing.T) {
		rec := doJSON(t, routes, "POST", "/api/chat/message", `{"message":"ping"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		envelope := decodeEnvelope(t, rec)
		assert.Equal(t, true, envelope["success"])

		data := envelope["data"].(map[string]interface{})
		assert.Equal(t, "pong", data["message"])
		assert.NotEmpty(t, data["sessionId"])
	})

	t.Run("empty message rejected", func(t *testing.T) {
		rec := doJSON(t, routes, "POST", "/api/chat/message", `{"message":"   "}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "MISSING_MESSAGE", decodeEnvelope(t, rec)["code"])
	})

	t.Run("malformed body rejected", func(t *testing.T) {
		rec := doJSON(t, routes, "POST", "/api/chat/message", `{"message":`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "INVALID_BODY", decodeEnvelope(t, rec)["code"])
	})
}

func TestSendMessageUpstreamError(t *testing.T) {
	server, _ := newTestServer(&stubClient{
		completeErr: types.NewError(types.KindUpstream, "service unavailable"),
	})

	rec := doJSON(t, server.Routes(), "POST", "/api/chat/message", `{"message":"hi"}`)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "UPSTREAM_ERROR", decodeEnvelope(t, rec)["code"])
}

func TestStreamEndpoint(t *testing.T) {
	server, _ := newTestServer(&stubClient{fragments: []string{"Hel", "lo"}})

	rec := doJSON(t, server.Routes(), "POST", "/api/chat/stream", `{"message":"greet me"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	var events []chat.Event
	for _, line := range strings.Split(rec.Body.String(), "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev chat.Event
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		events = append(events, ev)
	}

	require.Len(t, events, 3)
	assert.Equal(t, chat.EventChunk, events[0].Type)
	assert.Equal(t, "Hel", events[0].Content)
	assert.Equal(t, "lo", events[1].Content)
	assert.Equal(t, chat.EventDone, events[2].Type)
	assert.NotEmpty(t, events[2].SessionID)
}

func TestConversationEndpoints(t *testing.T) {
	server, engine := newTestServer(&stubClient{reply: "ok"})
	routes := server.Routes()

	t.Run("new conversation", func(t *testing.T) {
		rec := doJSON(t, routes, "POST", "/api/chat/conversation/new", `{"promptId":"philosopher"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		data := decodeEnvelope(t, rec)["data"].(map[string]interface{})
		assert.Equal(t, "philosopher", data["promptId"])
		assert.Equal(t, "New Conversation", data["title"])
	})

	conv := engine.CreateSession("", nil)
	_, err := engine.SendMessage(context.Background(), conv.SessionID, "hello", chat.SendOptions{})
	require.NoError(t, err)

	t.Run("get conversation", func(t *testing.T) {
		rec := doJSON(t, routes, "GET", "/api/chat/conversation/"+conv.SessionID, "")
		require.Equal(t, http.StatusOK, rec.Code)

		data := decodeEnvelope(t, rec)["data"].(map[string]interface{})
		messages := data["messages"].([]interface{})
		assert.Len(t, messages, 2)
	})

	t.Run("get unknown conversation", func(t *testing.T) {
		rec := doJSON(t, routes, "GET", "/api/chat/conversation/missing", "")
		require.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "CONVERSATION_NOT_FOUND", decodeEnvelope(t, rec)["code"])
	})

	t.Run("list conversations", func(t *testing.T) {
		rec := doJSON(t, routes, "GET", "/api/chat/conversations?limit=10", "")
		require.Equal(t, http.StatusOK, rec.Code)

		data := decodeEnvelope(t, rec)["data"].([]interface{})
		assert.NotEmpty(t, data)
	})

	t.Run("rename conversation", func(t *testing.T) {
		rec := doJSON(t, routes, "PUT", "/api/chat/conversation/"+conv.SessionID+"/title", `{"title":"Renamed"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		data := decodeEnvelope(t, rec)["data"].(map[string]interface{})
		assert.Equal(t, "Renamed", data["title"])
	})

	t.Run("rename with empty title rejected", func(t *testing.T) {
		rec := doJSON(t, routes, "PUT", "/api/chat/conversation/"+conv.SessionID+"/title", `{"title":" "}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "MISSING_TITLE", decodeEnvelope(t, rec)["code"])
	})

	t.Run("rename unknown conversation", func(t *testing.T) {
		rec := doJSON(t, routes, "PUT", "/api/chat/conversation/missing/title", `{"title":"x"}`)
		require.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "NOT_FOUND", decodeEnvelope(t, rec)["code"])
	})

	t.Run("delete conversation twice", func(t *testing.T) {
		rec := doJSON(t, routes, "DELETE", "/api/chat/conversation/"+conv.SessionID, "")
		require.Equal(t, http.StatusOK, rec.Code)

		rec = doJSON(t, routes, "DELETE", "/api/chat/conversation/"+conv.SessionID, "")
		require.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestPromptEndpoints(t *testing.T) {
	server, _ := newTestServer(&stubClient{})
	routes := server.Routes()

	t.Run("list includes builtins", func(t *testing.T) {
		rec := doJSON(t, routes, "GET", "/api/chat/prompts", "")
		require.Equal(t, http.StatusOK, rec.Code)

		data := decodeEnvelope(t, rec)["data"].([]interface{})
		require.NotEmpty(t, data)
		first := data[0].(map[string]interface{})
		assert.Equal(t, "helpful-assistant", first["id"])
	})

	t.Run("create custom", func(t *testing.T) {
		rec := doJSON(t, routes, "POST", "/api/chat/prompts/custom",
			`{"id":"pirate","name":"Pirate","prompt":"Talk like a pirate."}`)
		require.Equal(t, http.StatusOK, rec.Code)

		data := decodeEnvelope(t, rec)["data"].(map[string]interface{})
		assert.Equal(t, "pirate", data["id"])
	})

	t.Run("create missing fields rejected", func(t *testing.T) {
		rec := doJSON(t, routes, "POST", "/api/chat/prompts/custom", `{"id":"x"}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "MISSING_REQUIRED_FIELDS", decodeEnvelope(t, rec)["code"])
	})

	t.Run("builtin collision conflicts", func(t *testing.T) {
		rec := doJSON(t, routes, "POST", "/api/chat/prompts/custom",
			`{"id":"helpful-assistant","name":"Shadow","prompt":"x"}`)
		require.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "DUPLICATE_BUILTIN", decodeEnvelope(t, rec)["code"])
	})

	t.Run("update custom", func(t *testing.T) {
		rec := doJSON(t, routes, "PUT", "/api/chat/prompts/custom/pirate", `{"name":"Captain"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		data := decodeEnvelope(t, rec)["data"].(map[string]interface{})
		assert.Equal(t, "Captain", data["name"])
	})

	t.Run("update unknown custom", func(t *testing.T) {
		rec := doJSON(t, routes, "PUT", "/api/chat/prompts/custom/ghost", `{"name":"x"}`)
		require.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("delete builtin conflicts", func(t *testing.T) {
		rec := doJSON(t, routes, "DELETE", "/api/chat/prompts/custom/philosopher", "")
		require.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "IMMUTABLE_BUILTIN", decodeEnvelope(t, rec)["code"])
	})

	t.Run("delete custom", func(t *testing.T) {
		rec := doJSON(t, routes, "DELETE", "/api/chat/prompts/custom/pirate", "")
		require.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := newTestServer(&stubClient{})

	rec := doJSON(t, server.Routes(), "GET", "/api/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}
