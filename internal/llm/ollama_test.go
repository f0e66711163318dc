package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/B-A-M-N/NERVA/internal/jsonx"
	"github.com/B-A-M-N/NERVA/internal/nerrors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*OllamaClient, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	router := NewNodeRouter("", []string{server.URL}, nil)
	return NewOllamaClient(router, "test-model", nil), server
}

func TestChatReturnsAssistantContent(t *testing.T) {
	var gotReq chatRequest
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, jsonx.NewDecoder(r.Body).Decode(&gotReq))
		w.Write([]byte(`{"message": {"role": "assistant", "content": "hi there"}}`))
	})

	reply, err := client.Chat(context.Background(), []Message{User("hello")}, nil)
	require.NoError(t, err)
	assert.Equal(t, "hi there", reply)
	assert.Equal(t, "test-model", gotReq.Model)
	assert.False(t, gotReq.Stream)
}

func TestChatOptionsOverrideModel(t *testing.T) {
	var gotReq chatRequest
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, jsonx.NewDecoder(r.Body).Decode(&gotReq))
		w.Write([]byte(`{"message": {"content": "ok"}}`))
	})

	_, err := client.Chat(context.Background(), []Message{User("hi")}, &Options{
		Model:       "bigger-model",
		Temperature: 0.2,
		MaxTokens:   64,
	})
	require.NoError(t, err)
	assert.Equal(t, "bigger-model", gotReq.Model)
	assert.EqualValues(t, 0.2, gotReq.Options["temperature"])
	assert.EqualValues(t, 64, gotReq.Options["num_predict"])
}

func TestAnalyzeAttachesImage(t *testing.T) {
	var gotReq chatRequest
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, jsonx.NewDecoder(r.Body).Decode(&gotReq))
		w.Write([]byte(`{"message": {"content": "a cat"}}`))
	})

	reply, err := client.Analyze(context.Background(), []byte{1, 2, 3}, "what is this", nil)
	require.NoError(t, err)
	assert.Equal(t, "a cat", reply)
	require.Len(t, gotReq.Messages, 1)
	require.Len(t, gotReq.Messages[0].Images, 1)
	assert.Equal(t, "AQID", gotReq.Messages[0].Images[0])
}

func TestServerErrorIsUnavailable(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusInternalServerError)
	})
	_, err := client.Chat(context.Background(), []Message{User("hi")}, nil)
	require.Error(t, err)
	assert.True(t, nerrors.Is(err, nerrors.KindUnavailable))
}

func TestGatewayTimeoutIsTimeout(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGatewayTimeout)
	})
	_, err := client.Chat(context.Background(), []Message{User("hi")}, nil)
	require.Error(t, err)
	assert.True(t, nerrors.Is(err, nerrors.KindTimeout))
}

func TestClientErrorIsBadResponse(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad model", http.StatusBadRequest)
	})
	_, err := client.Chat(context.Background(), []Message{User("hi")}, nil)
	require.Error(t, err)
	assert.True(t, nerrors.Is(err, nerrors.KindBadResponse))
}

func TestInlineErrorFieldIsBadResponse(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error": "model not found"}`))
	})
	_, err := client.Chat(context.Background(), []Message{User("hi")}, nil)
	require.Error(t, err)
	assert.True(t, nerrors.Is(err, nerrors.KindBadResponse))
}

func TestFailedNodeGoesOnCooldown(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer down.Close()
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message": {"content": "ok"}}`))
	}))
	defer up.Close()

	router := NewNodeRouter("", []string{down.URL, up.URL}, nil)
	client := NewOllamaClient(router, "test-model", nil)

	// First call may land on the down node and fail; it gets cooled down.
	first, ferr := client.Chat(context.Background(), []Message{User("hi")}, nil)
	second, serr := client.Chat(context.Background(), []Message{User("hi")}, nil)
	if ferr != nil {
		require.NoError(t, serr)
		assert.Equal(t, "ok", second)
	} else {
		assert.Equal(t, "ok", first)
	}
}
