package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/markis/convstream/internal/stream"
	"go.uber.org/zap"
)

const conversationPath = "/api/conversation/"

// codeSuccess is the ResponseModel code for a successful call.
const codeSuccess = 200

// CreateConversationRequest is one conversation turn sent to the backend.
type CreateConversationRequest struct {
	Role              string `json:"role"`
	SenderCharacter   *int64 `json:"sender_character,omitempty"`
	ReceiverCharacter *int64 `json:"receiver_character,omitempty"`
	Content           string `json:"content"`
	Parent            *int64 `json:"parent,omitempty"`
	Scene             int64  `json:"scene"`
}

// Conversation is a stored conversation turn.
type Conversation struct {
	ConversationID    int64     `json:"conversation_id"`
	Role              string    `json:"role"`
	SenderCharacter   *int64    `json:"sender_character,omitempty"`
	ReceiverCharacter *int64    `json:"receiver_character,omitempty"`
	Content           string    `json:"content"`
	Parent            *int64    `json:"parent,omitempty"`
	Scene             int64     `json:"scene"`
	CreateTime        Timestamp `json:"create_time"`
}

// ResponseModel is the envelope every JSON endpoint answers with.
type ResponseModel[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

// APIError is a well-formed envelope whose code is not a success.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: code %d", e.Code)
	}
	return fmt.Sprintf("api error %d: %s", e.Code, e.Message)
}

// Timestamp accepts RFC 3339 times as well as the zone-less ISO times the
// backend emits.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Format(time.RFC3339Nano))
}

// OpenConversation posts req and returns the event-stream body. Failures
// before the stream starts are *stream.TransportError.
func (c *Client) OpenConversation(ctx context.Context, req CreateConversationRequest) (io.ReadCloser, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	httpReq, err := c.newRequest(ctx, http.MethodPost, conversationPath, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "text/event-stream") {
		c.logger.Debug("unexpected content type for stream", zap.String("content_type", ct))
	}
	return resp.Body, nil
}

// CreateConversation posts req and streams the generated text to h.
// Errors raised before the stream opens reach h.OnError and no read starts.
func (c *Client) CreateConversation(ctx context.Context, req CreateConversationRequest, h stream.Handler) {
	body, err := c.OpenConversation(ctx, req)
	if err != nil {
		h.Fail(err)
		return
	}
	defer c.closeBody(body)

	reader := stream.NewFrameReader(
		stream.WithLogger(c.logger),
		stream.WithEncoding(c.encoding),
	)
	reader.Read(ctx, stream.NewReaderSource(body, c.chunkSize), h)
}

// ListConversations returns the conversation turns recorded for a scene.
func (c *Client) ListConversations(ctx context.Context, sceneID int64) ([]Conversation, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := c.newRequest(ctx, http.MethodGet, conversationPath+strconv.FormatInt(sceneID, 10), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer c.closeBody(resp.Body)

	var envelope ResponseModel[[]Conversation]
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if envelope.Code != codeSuccess {
		return nil, &APIError{Code: envelope.Code, Message: envelope.Message}
	}
	return envelope.Data, nil
}
