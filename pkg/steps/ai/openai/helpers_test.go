package openai

import (
	"encoding/json"
	"testing"

	"github.com/go-go-golems/shopwire/pkg/conversation"
	"github.com/go-go-golems/shopwire/pkg/helpers"
	"github.com/go-go-golems/shopwire/pkg/inference/engine"
	"github.com/go-go-golems/shopwire/pkg/steps"
	aisettings "github.com/go-go-golems/shopwire/pkg/steps/ai/settings"
	ai_types "github.com/go-go-golems/shopwire/pkg/steps/ai/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSettings(engine_ string) *aisettings.StepSettings {
	st := aisettings.NewStepSettings()
	st.Chat.Engine = helpers.Pointer(engine_)
	return st
}

func assistantWithCalls(text string, ids ...string) *conversation.Message {
	blocks := []conversation.ContentBlock{}
	if text != "" {
		blocks = append(blocks, conversation.Text{Value: text})
	}
	for _, id := range ids {
		blocks = append(blocks, conversation.ToolInvocation{ID: id, Name: "search", Arguments: map[string]any{"q": id}})
	}
	return conversation.NewBlocksMessage(conversation.RoleAssistant, blocks)
}

func toolResults(ids ...string) *conversation.Message {
	blocks := []conversation.ContentBlock{}
	for _, id := range ids {
		blocks = append(blocks, conversation.ToolResult{InvocationID: id, Payload: "result " + id})
	}
	return conversation.NewBlocksMessage(conversation.RoleTool, blocks)
}

func TestMakeCompletionRequestTextOnly(t *testing.T) {
	history := conversation.Conversation{
		conversation.NewTextMessage(conversation.RoleUser, "Do you sell balls?"),
		conversation.NewTextMessage(conversation.RoleAssistant, "We do."),
		conversation.NewTextMessage(conversation.RoleUser, "Red ones?"),
	}

	req, err := MakeCompletionRequest(newTestSettings("gpt-4o-mini"), history, "You are a shop assistant.", nil)
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o-mini", req.Model)
	assert.True(t, req.Stream)
	require.NotNil(t, req.StreamOptions)
	assert.True(t, req.StreamOptions.IncludeUsage)
	assert.Nil(t, req.Tools)

	require.Len(t, req.Messages, 4)
	expected := []struct {
		role    string
		content string
	}{
		{"system", "You are a shop assistant."},
		{"user", "Do you sell balls?"},
		{"assistant", "We do."},
		{"user", "Red ones?"},
	}
	for i, e := range expected {
		assert.Equal(t, e.role, req.Messages[i].Role)
		assert.Equal(t, e.content, req.Messages[i].Content)
	}
}

func TestMakeCompletionRequestHoistsSystemMessages(t *testing.T) {
	history := conversation.Conversation{
		conversation.NewTextMessage(conversation.RoleUser, "hi"),
		conversation.NewTextMessage(conversation.RoleSystem, "From history."),
	}

	req, err := MakeCompletionRequest(newTestSettings("gpt-4o"), history, "From instruction.", nil)
	require.NoError(t, err)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Equal(t, "From history.", req.Messages[0].Content)
	assert.Equal(t, "user", req.Messages[1].Role)
}

func TestMakeCompletionRequestToolRepliesFollowAssistant(t *testing.T) {
	history := conversation.Conversation{
		conversation.NewTextMessage(conversation.RoleUser, "Find balls"),
		assistantWithCalls("", "c1", "c2", "c3"),
		// results arrive out of order and split over two messages
		toolResults("c3"),
		toolResults("c1", "c2"),
		conversation.NewTextMessage(conversation.RoleUser, "thanks"),
	}

	req, err := MakeCompletionRequest(newTestSettings("gpt-4o"), history, "", nil)
	require.NoError(t, err)
	require.Len(t, req.Messages, 6)

	assistant := req.Messages[1]
	assert.Equal(t, "assistant", assistant.Role)
	assert.Equal(t, "", assistant.Content)
	require.Len(t, assistant.ToolCalls, 3)
	assert.Equal(t, "c1", assistant.ToolCalls[0].ID)
	assert.Equal(t, "search", assistant.ToolCalls[0].Function.Name)
	assert.JSONEq(t, `{"q":"c1"}`, assistant.ToolCalls[0].Function.Arguments)

	for i, id := range []string{"c1", "c2", "c3"} {
		m := req.Messages[2+i]
		assert.Equal(t, "tool", m.Role)
		assert.Equal(t, id, m.ToolCallID)
		assert.Equal(t, "result "+id, m.Content)
	}
	assert.Equal(t, "user", req.Messages[5].Role)
	assert.Equal(t, "thanks", req.Messages[5].Content)
}

func TestMakeCompletionRequestToolCallContentIsNullOnTheWire(t *testing.T) {
	history := conversation.Conversation{
		conversation.NewTextMessage(conversation.RoleUser, "Find balls"),
		assistantWithCalls("", "c1"),
		toolResults("c1"),
		assistantWithCalls("Let me also check mugs.", "c2"),
		toolResults("c2"),
	}

	req, err := MakeCompletionRequest(newTestSettings("gpt-4o"), history, "", nil)
	require.NoError(t, err)
	body, err := json.Marshal(req)
	require.NoError(t, err)

	rewritten, err := NullToolCallContent(body)
	require.NoError(t, err)

	var wire struct {
		Model    string                       `json:"model"`
		Stream   bool                         `json:"stream"`
		Messages []map[string]json.RawMessage `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rewritten, &wire))
	assert.Equal(t, "gpt-4o", wire.Model)
	assert.True(t, wire.Stream)
	require.Len(t, wire.Messages, 5)

	assert.JSONEq(t, `"Find balls"`, string(wire.Messages[0]["content"]))
	assert.Equal(t, "null", string(wire.Messages[1]["content"]))
	assert.Contains(t, wire.Messages[1], "tool_calls")
	assert.JSONEq(t, `"result c1"`, string(wire.Messages[2]["content"]))
	assert.JSONEq(t, `"Let me also check mugs."`, string(wire.Messages[3]["content"]))
}

func TestNullToolCallContentLeavesOtherRequestsAlone(t *testing.T) {
	body := []byte(`{"model":"gpt-4o","messages":[{"role":"assistant","content":""}]}`)
	rewritten, err := NullToolCallContent(body)
	require.NoError(t, err)
	assert.Equal(t, body, rewritten)

	_, err = NullToolCallContent([]byte("not json"))
	assert.Error(t, err)
}

func TestMakeCompletionRequestMissingResultsGetEmptyReplies(t *testing.T) {
	history := conversation.Conversation{
		assistantWithCalls("Let me check.", "c1", "c2"),
		toolResults("c2"),
	}

	req, err := MakeCompletionRequest(newTestSettings("gpt-4o"), history, "", nil)
	require.NoError(t, err)
	require.Len(t, req.Messages, 3)

	assert.Equal(t, "Let me check.", req.Messages[0].Content)
	assert.Equal(t, "c1", req.Messages[1].ToolCallID)
	assert.Equal(t, "", req.Messages[1].Content)
	assert.Equal(t, "c2", req.Messages[2].ToolCallID)
	assert.Equal(t, "result c2", req.Messages[2].Content)
}

func TestMakeCompletionRequestLeftoverAndOrphans(t *testing.T) {
	history := conversation.Conversation{
		toolResults("stray"),
		assistantWithCalls("", "c1"),
		conversation.NewBlocksMessage(conversation.RoleTool, []conversation.ContentBlock{
			conversation.ToolResult{InvocationID: "c1", Payload: map[string]any{"count": 2}},
			conversation.ToolResult{InvocationID: "zz", Payload: "unmatched"},
			conversation.Text{Value: "also, any discounts?"},
		}),
	}

	req, err := MakeCompletionRequest(newTestSettings("gpt-4o"), history, "", nil)
	require.NoError(t, err)
	require.Len(t, req.Messages, 5)

	assert.Equal(t, "tool", req.Messages[0].Role)
	assert.Equal(t, "stray", req.Messages[0].ToolCallID)

	assert.Len(t, req.Messages[1].ToolCalls, 1)

	assert.Equal(t, "c1", req.Messages[2].ToolCallID)
	assert.Equal(t, `{"count":2}`, req.Messages[2].Content)

	assert.Equal(t, "zz", req.Messages[3].ToolCallID)

	assert.Equal(t, "user", req.Messages[4].Role)
	assert.Equal(t, "also, any discounts?", req.Messages[4].Content)
}

func TestMakeCompletionRequestImagesAndTools(t *testing.T) {
	history := conversation.Conversation{
		conversation.NewBlocksMessage(conversation.RoleUser, []conversation.ContentBlock{
			conversation.Text{Value: "What is this?"},
			conversation.ImageReference{URL: "https://example.com/ball.png"},
		}),
	}
	tools := []engine.ToolDeclaration{{
		Name:        "search",
		Description: "Search the catalog",
		InputSchema: map[string]any{"type": "object"},
	}}

	req, err := MakeCompletionRequest(newTestSettings("gpt-4o"), history, "", tools)
	require.NoError(t, err)

	require.Len(t, req.Messages, 1)
	parts := req.Messages[0].MultiContent
	require.Len(t, parts, 2)
	assert.Equal(t, "What is this?", parts[0].Text)
	assert.Equal(t, "https://example.com/ball.png", parts[1].ImageURL.URL)

	require.Len(t, req.Tools, 1)
	assert.Equal(t, "function", string(req.Tools[0].Type))
	assert.Equal(t, "search", req.Tools[0].Function.Name)

	b, err := json.Marshal(req)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"parameters":{"type":"object"}`)
}

func TestMakeCompletionRequestReasoningModel(t *testing.T) {
	st := newTestSettings("o3-mini")
	st.Chat.MaxResponseTokens = helpers.Pointer(500)
	st.Chat.Temperature = helpers.Float64Pointer(0.7)

	req, err := MakeCompletionRequest(st, nil, "", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, req.MaxTokens)
	assert.Equal(t, 500, req.MaxCompletionTokens)
	assert.Equal(t, float32(0), req.Temperature)
}

func TestMakeCompletionRequestMistralHasNoStreamOptions(t *testing.T) {
	st := newTestSettings("mistral-large-latest")
	apiType := ai_types.ApiTypeMistral
	st.Chat.ApiType = &apiType

	req, err := MakeCompletionRequest(st, nil, "", nil)
	require.NoError(t, err)
	assert.Nil(t, req.StreamOptions)
}

func TestMakeCompletionRequestRequiresEngine(t *testing.T) {
	_, err := MakeCompletionRequest(aisettings.NewStepSettings(), nil, "", nil)
	assert.ErrorIs(t, err, steps.ErrMissingEngine)
}

func TestNormalizeFinishReason(t *testing.T) {
	tests := []struct {
		code     string
		expected engine.FinishReasonKind
	}{
		{"stop", engine.FinishReasonEndOfTurn},
		{"length", engine.FinishReasonMaxTokensReached},
		{"tool_calls", engine.FinishReasonToolInvocationPending},
		{"function_call", engine.FinishReasonToolInvocationPending},
		{"content_filter", engine.FinishReasonProviderSpecific},
		{"", engine.FinishReasonUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeFinishReason(tt.code).Kind)
		})
	}
}

func TestParseLogitBias(t *testing.T) {
	assert.Nil(t, parseLogitBias(nil))
	assert.Equal(t, map[string]int{"50256": -100}, parseLogitBias(map[string]string{
		"50256": "-100",
		"42":    "lots",
	}))
}
