package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-go-golems/shopwire/pkg/security"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sseBody = `event: message_start
data: {"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","content":[],"model":"claude-3-5-sonnet","usage":{"input_tokens":12,"output_tokens":1}}}

event: ping
data: {"type": "ping"}

: keep-alive comment

event: content_block_start
data: {"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}

event: content_block_delta
data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hi"}}

event: message_delta
data: {"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":3}}

event: message_stop
data: {"type":"message_stop"}
`

func TestStreamMessage(t *testing.T) {
	var gotReq MessageRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, sseBody)
	}))
	defer server.Close()

	client := NewClient("test-key", server.URL+"/v1", WithOutboundURLOptions(security.InsecureOptions()))
	stream, err := client.StreamMessage(context.Background(), &MessageRequest{
		Model:     "claude-3-5-sonnet",
		MaxTokens: 100,
		Messages:  []Message{{Role: "user", Content: []Content{NewTextContent("hello")}}},
	})
	require.NoError(t, err)
	defer func() {
		_ = stream.Close()
	}()

	var types []StreamingEventType
	var last StreamingEvent
	for {
		ev, err := stream.Recv()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		types = append(types, ev.Type)
		last = ev
		if ev.Type == MessageDeltaType {
			require.NotNil(t, ev.Delta)
			assert.Equal(t, "end_turn", ev.Delta.StopReason)
			require.NotNil(t, ev.Usage)
			assert.Equal(t, 3, ev.Usage.OutputTokens)
		}
	}

	assert.Equal(t, []StreamingEventType{
		MessageStartType,
		PingType,
		ContentBlockStartType,
		ContentBlockDeltaType,
		MessageDeltaType,
		MessageStopType,
	}, types)
	assert.Equal(t, MessageStopType, last.Type)

	assert.True(t, gotReq.Stream)
	require.Len(t, gotReq.Messages, 1)
	assert.Equal(t, "user", gotReq.Messages[0].Role)
}

func TestStreamMessageAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`)
	}))
	defer server.Close()

	client := NewClient("bad", server.URL, WithOutboundURLOptions(security.InsecureOptions()))
	_, err := client.StreamMessage(context.Background(), &MessageRequest{Model: "m", MaxTokens: 1})
	require.Error(t, err)

	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "authentication_error", apiErr.Type)
	assert.Equal(t, "invalid x-api-key", apiErr.Message)
}

func TestStreamMessageRejectsLocalURLByDefault(t *testing.T) {
	client := NewClient("k", "http://127.0.0.1:1234")
	_, err := client.StreamMessage(context.Background(), &MessageRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid claude base URL")
}

func TestMessageStreamLastEventWithoutTrailingBlankLine(t *testing.T) {
	stream := NewMessageStream(io.NopCloser(strings.NewReader("data: {\"type\":\"message_stop\"}")))
	ev, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, MessageStopType, ev.Type)

	_, err = stream.Recv()
	assert.Equal(t, io.EOF, err)
}

func TestMessageStreamWarnsOnUnparseableEvent(t *testing.T) {
	var logs bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&logs)
	defer func() {
		log.Logger = prev
	}()

	body := "event: content_block_start\n" +
		"data: {\"type\":\"content_block_start\",\"index\":0,\n\n" +
		"event: message_stop\n" +
		"data: {\"type\":\"message_stop\"}\n\n"
	stream := NewMessageStream(io.NopCloser(strings.NewReader(body)))

	ev, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, MessageStopType, ev.Type)
	assert.Contains(t, logs.String(), `"level":"warn"`)
	assert.Contains(t, logs.String(), `"raw_len":`)
	assert.Contains(t, logs.String(), "Dropping unparseable SSE event")
}
