package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/markis/convstream/internal/config"
	"github.com/markis/convstream/internal/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type result struct {
	data []string
	ends int
	errs []error
}

func (r *result) handler() stream.Handler {
	return stream.Handler{
		OnData:  func(p string) { r.data = append(r.data, p) },
		OnEnd:   func() { r.ends++ },
		OnError: func(err error) { r.errs = append(r.errs, err) },
	}
}

func newTestClient(t *testing.T, url string, mutate ...func(*config.Config)) *Client {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.BaseURL = url
	for _, m := range mutate {
		m(cfg)
	}
	c, err := New(*cfg, zap.NewNop())
	require.NoError(t, err)
	return c
}

func int64Ptr(v int64) *int64 { return &v }

func TestCreateConversation_Streams(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/conversation/", r.URL.Path)
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NotEmpty(t, r.Header.Get("X-Request-Id"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "user", body["role"])
		assert.Equal(t, "hello there", body["content"])
		assert.EqualValues(t, 3, body["scene"])
		assert.EqualValues(t, 7, body["sender_character"])
		assert.NotContains(t, body, "parent")

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		flusher := w.(http.Flusher)

		frame := stream.EncodeData("月光")
		// Split inside the first character of the payload.
		for _, part := range [][]byte{frame[:7], frame[7:], stream.EncodeData("下"), stream.EncodeEnd()} {
			_, _ = w.Write(part)
			flusher.Flush()
		}
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	res := &result{}
	c.CreateConversation(context.Background(), CreateConversationRequest{
		Role:            "user",
		SenderCharacter: int64Ptr(7),
		Content:         "hello there",
		Scene:           3,
	}, res.handler())

	assert.Equal(t, []string{"月光", "下"}, res.data)
	assert.Equal(t, 2, res.ends)
	assert.Empty(t, res.errs)
}

func TestCreateConversation_NonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"scene not found"}`, http.StatusNotFound)
	}))
	defer server.Close()

	res := &result{}
	newTestClient(t, server.URL).CreateConversation(context.Background(), CreateConversationRequest{Scene: 1}, res.handler())

	assert.Empty(t, res.data)
	assert.Zero(t, res.ends)
	require.Len(t, res.errs, 1)

	var te *stream.TransportError
	require.ErrorAs(t, res.errs[0], &te)
	assert.Equal(t, http.StatusNotFound, te.StatusCode)
	assert.Contains(t, te.Body, "scene not found")
	assert.Equal(t, "requested resource does not exist", te.Message())
}

func TestCreateConversation_MissingBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	res := &result{}
	newTestClient(t, server.URL).CreateConversation(context.Background(), CreateConversationRequest{Scene: 1}, res.handler())

	require.Len(t, res.errs, 1)
	assert.ErrorIs(t, res.errs[0], stream.ErrMissingBody)
	assert.Zero(t, res.ends)
}

func TestCreateConversation_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	res := &result{}
	newTestClient(t, url).CreateConversation(context.Background(), CreateConversationRequest{Scene: 1}, res.handler())

	require.Len(t, res.errs, 1)
	var te *stream.TransportError
	require.ErrorAs(t, res.errs[0], &te)
	assert.Zero(t, te.StatusCode)
}

func TestCreateConversation_StreamCutMidway(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: partial\n\ndata: lost"))
		w.(http.Flusher).Flush()
	}))
	defer server.Close()

	res := &result{}
	newTestClient(t, server.URL).CreateConversation(context.Background(), CreateConversationRequest{Scene: 1}, res.handler())

	assert.Equal(t, []string{"partial"}, res.data)
	assert.Equal(t, 1, res.ends)
	assert.Empty(t, res.errs)
}

func TestListConversations(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/conversation/42", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"code": 200,
			"message": "ok",
			"data": [
				{"conversation_id": 1, "role": "user", "content": "hi", "scene": 42,
				 "create_time": "2025-03-01T10:20:30.123456"},
				{"conversation_id": 2, "role": "assistant", "content": "hello", "scene": 42,
				 "parent": 1, "create_time": null}
			]
		}`))
	}))
	defer server.Close()

	convs, err := newTestClient(t, server.URL+"/").ListConversations(context.Background(), 42)
	require.NoError(t, err)
	require.Len(t, convs, 2)

	assert.Equal(t, int64(1), convs[0].ConversationID)
	assert.Equal(t, time.Date(2025, 3, 1, 10, 20, 30, 123456000, time.UTC), convs[0].CreateTime.Time)
	require.NotNil(t, convs[1].Parent)
	assert.Equal(t, int64(1), *convs[1].Parent)
	assert.True(t, convs[1].CreateTime.IsZero())
}

func TestListConversations_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code": 400, "message": "scene id invalid"}`))
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL).ListConversations(context.Background(), 9)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 400, apiErr.Code)
	assert.Equal(t, "api error 400: scene id invalid", apiErr.Error())
}

func TestListConversations_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	c := newTestClient(t, server.URL, func(cfg *config.Config) { cfg.Timeout = 50 * time.Millisecond })
	_, err := c.ListConversations(context.Background(), 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestRateLimiterHonorsContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code": 200, "message": "ok", "data": []}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, func(cfg *config.Config) { cfg.RequestsPerSecond = 0.01 })
	_, err := c.ListConversations(context.Background(), 1)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.ListConversations(ctx, 1)
	assert.ErrorContains(t, err, "rate limiter")
}

func TestNew_UnknownEncoding(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.Encoding = "no-such-charset"
	_, err := New(*cfg, nil)
	assert.Error(t, err)
}

func TestTimestamp_MarshalRoundTrip(t *testing.T) {
	ts := Timestamp{Time: time.Date(2024, 12, 24, 8, 0, 0, 0, time.UTC)}
	data, err := json.Marshal(ts)
	require.NoError(t, err)
	assert.Equal(t, `"2024-12-24T08:00:00Z"`, string(data))

	var bad Timestamp
	assert.Error(t, json.Unmarshal([]byte(`"yesterday"`), &bad))
}
