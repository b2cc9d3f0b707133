package conversation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmirchev92/server-maystorfix-sub010/internal/config"
	"github.com/dmirchev92/server-maystorfix-sub010/pkg/errors"
	"github.com/dmirchev92/server-maystorfix-sub010/pkg/logger"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &config.ConversationConfig{BaseURL: srv.URL, Timeout: 2 * time.Second}
	return NewClient(cfg, logger.NewNoop()).(*Client)
}

func TestClient_CreateConversation(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/conversations", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "provider-1", body["provider_id"])

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"conversation_id": "conv-42"})
	}))

	id, err := client.CreateConversation(context.Background(), "provider-1")
	require.NoError(t, err)
	assert.Equal(t, "conv-42", id)
}

func TestClient_CreateConversation_RetriesOnce(t *testing.T) {
	var calls int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"conversation_id": "conv-7"})
	}))

	id, err := client.CreateConversation(context.Background(), "provider-1")
	require.NoError(t, err)
	assert.Equal(t, "conv-7", id)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestClient_CreateConversation_UnavailableAfterRetry(t *testing.T) {
	var calls int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := client.CreateConversation(context.Background(), "provider-1")
	require.Error(t, err)
	assert.Equal(t, errors.CodeConversationUnavailable, errors.CodeOf(err))
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestClient_ConversationExists(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodHead, r.Method)
		switch r.URL.Path {
		case "/v1/conversations/conv-1":
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	exists, err := client.ConversationExists(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = client.ConversationExists(context.Background(), "conv-2")
	require.NoError(t, err)
	assert.False(t, exists)
}
