package claude

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/go-go-golems/shopwire/pkg/conversation"
	"github.com/go-go-golems/shopwire/pkg/events"
	"github.com/go-go-golems/shopwire/pkg/inference/engine"
	"github.com/go-go-golems/shopwire/pkg/steps/ai/claude/api"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStreamer struct {
	events []api.StreamingEvent
	err    error
	req    *api.MessageRequest
}

func (f *fakeStreamer) StreamMessage(ctx context.Context, req *api.MessageRequest) (*api.MessageStream, error) {
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	sb := &strings.Builder{}
	for _, e := range f.events {
		b, err := json.Marshal(e)
		if err != nil {
			return nil, err
		}
		sb.WriteString("event: " + string(e.Type) + "\n")
		sb.WriteString("data: " + string(b) + "\n\n")
	}
	return api.NewMessageStream(io.NopCloser(strings.NewReader(sb.String()))), nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingSink) PublishEvent(event events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingSink) types() []events.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	ret := []events.EventType{}
	for _, e := range r.events {
		ret = append(ret, e.Type())
	}
	return ret
}

func toolTurnEvents() []api.StreamingEvent {
	return []api.StreamingEvent{
		messageStart(),
		textBlockStart(0),
		textDelta(0, "Checking "),
		textDelta(0, "stock."),
		blockStop(0),
		toolUseStart(1, "toolu_1", "search"),
		jsonDelta(1, `{"q":"ball"}`),
		blockStop(1),
		toolUseStart(2, "toolu_2", "lookup"),
		jsonDelta(2, `{"sku":"B-2"}`),
		blockStop(2),
		messageDelta("tool_use", 30),
		messageStop(),
	}
}

func TestClaudeEngineRunTurn(t *testing.T) {
	streamer := &fakeStreamer{events: toolTurnEvents()}
	sink := &recordingSink{}
	e, err := NewClaudeEngineWithStreamer(newTestSettings(), streamer, engine.WithSink(sink))
	require.NoError(t, err)

	var calls []string
	var text strings.Builder
	var finalMsg *conversation.Message
	handlers := engine.Handlers{
		OnText: func(delta string) {
			text.WriteString(delta)
		},
		OnMessage: func(msg *conversation.Message) {
			assert.Empty(t, calls, "message must be delivered before tools run")
			finalMsg = msg
		},
		OnToolUse: func(ctx context.Context, inv conversation.ToolInvocation) error {
			calls = append(calls, inv.ID)
			return nil
		},
	}

	history := conversation.Conversation{conversation.NewTextMessage(conversation.RoleUser, "Any balls?")}
	res, err := e.RunTurn(context.Background(), engine.Turn{History: history, SystemInstruction: "Be brief."}, handlers)
	require.NoError(t, err)

	assert.Equal(t, "Be brief.", streamer.req.System)
	assert.Equal(t, "Checking stock.", text.String())
	assert.Equal(t, []string{"toolu_1", "toolu_2"}, calls)
	assert.Same(t, finalMsg, res.Message)
	assert.Equal(t, engine.FinishReasonToolInvocationPending, res.FinishReason.Kind)
	require.NotNil(t, res.Usage)
	assert.Equal(t, 30, res.Usage.OutputTokens)

	require.Len(t, res.Message.Blocks, 3)
	assert.Equal(t, conversation.Text{Value: "Checking stock."}, res.Message.Blocks[0])

	assert.Equal(t, []events.EventType{
		events.EventTypeStart,
		events.EventTypePartialCompletion,
		events.EventTypePartialCompletion,
		events.EventTypeFinal,
		events.EventTypeToolCall,
		events.EventTypeToolCall,
	}, sink.types())

	final, ok := sink.events[3].(*events.EventFinal)
	require.True(t, ok)
	assert.Equal(t, "Checking stock.", final.Text)
	assert.Len(t, final.ToolCalls, 2)
	require.NotNil(t, final.Metadata().StopReason)
	assert.Equal(t, "tool_use", *final.Metadata().StopReason)
}

func TestClaudeEngineToolHandlerErrorKeepsMessage(t *testing.T) {
	e, err := NewClaudeEngineWithStreamer(newTestSettings(), &fakeStreamer{events: toolTurnEvents()})
	require.NoError(t, err)

	var calls []string
	res, err := e.RunTurn(context.Background(), engine.Turn{}, engine.Handlers{
		OnToolUse: func(ctx context.Context, inv conversation.ToolInvocation) error {
			calls = append(calls, inv.ID)
			return errors.New("inventory offline")
		},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inventory offline")
	require.NotNil(t, res)
	assert.Len(t, res.Message.ToolInvocations(), 2)
	assert.Equal(t, []string{"toolu_1"}, calls)
}

func TestClaudeEngineProviderError(t *testing.T) {
	streamer := &fakeStreamer{err: &api.APIError{StatusCode: 401, Type: "authentication_error", Message: "invalid x-api-key"}}
	sink := &recordingSink{}
	e, err := NewClaudeEngineWithStreamer(newTestSettings(), streamer, engine.WithSink(sink))
	require.NoError(t, err)

	res, err := e.RunTurn(context.Background(), engine.Turn{}, engine.Handlers{})
	assert.Nil(t, res)
	pe, ok := engine.AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, 401, pe.StatusCode)
	assert.True(t, pe.IsAuthentication())
	assert.Equal(t, []events.EventType{events.EventTypeError}, sink.types())
}

func TestClaudeEngineStreamErrorEvent(t *testing.T) {
	streamer := &fakeStreamer{events: []api.StreamingEvent{
		messageStart(),
		textBlockStart(0),
		textDelta(0, "partial"),
		{Type: api.ErrorType, Error: &api.Error{Type: "overloaded_error", Message: "Overloaded"}},
	}}
	e, err := NewClaudeEngineWithStreamer(newTestSettings(), streamer)
	require.NoError(t, err)

	var gotMessage bool
	res, err := e.RunTurn(context.Background(), engine.Turn{}, engine.Handlers{
		OnMessage: func(msg *conversation.Message) { gotMessage = true },
	})
	assert.Nil(t, res)
	assert.False(t, gotMessage)
	pe, ok := engine.AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, "overloaded_error", pe.Type)
}

func TestClaudeEngineCancelled(t *testing.T) {
	sink := &recordingSink{}
	e, err := NewClaudeEngineWithStreamer(newTestSettings(), &fakeStreamer{events: toolTurnEvents()}, engine.WithSink(sink))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	var gotMessage bool
	res, err := e.RunTurn(ctx, engine.Turn{}, engine.Handlers{
		OnText: func(delta string) {
			cancel()
		},
		OnMessage: func(msg *conversation.Message) { gotMessage = true },
	})
	assert.Nil(t, res)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, gotMessage)

	types := sink.types()
	require.NotEmpty(t, types)
	assert.Equal(t, events.EventTypeInterrupt, types[len(types)-1])
	interrupt := sink.events[len(sink.events)-1].(*events.EventInterrupt)
	assert.Equal(t, "Checking ", interrupt.Text)
}
