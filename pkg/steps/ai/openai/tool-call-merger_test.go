package openai

import (
	"context"
	"testing"

	"github.com/go-go-golems/shopwire/pkg/conversation"
	"github.com/go-go-golems/shopwire/pkg/helpers"
	"github.com/go-go-golems/shopwire/pkg/inference/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	go_openai "github.com/sashabaranov/go-openai"
)

func textChunk(text string) go_openai.ChatCompletionStreamResponse {
	return go_openai.ChatCompletionStreamResponse{
		ID:    "chatcmpl-1",
		Model: "gpt-4o-2024-08-06",
		Choices: []go_openai.ChatCompletionStreamChoice{{
			Index: 0,
			Delta: go_openai.ChatCompletionStreamChoiceDelta{Content: text},
		}},
	}
}

func toolChunk(index int, id, name, args string) go_openai.ChatCompletionStreamResponse {
	return go_openai.ChatCompletionStreamResponse{
		ID: "chatcmpl-1",
		Choices: []go_openai.ChatCompletionStreamChoice{{
			Index: 0,
			Delta: go_openai.ChatCompletionStreamChoiceDelta{
				ToolCalls: []go_openai.ToolCall{{
					Index: helpers.Pointer(index),
					ID:    id,
					Type:  go_openai.ToolTypeFunction,
					Function: go_openai.FunctionCall{
						Name:      name,
						Arguments: args,
					},
				}},
			},
		}},
	}
}

func finishChunk(reason go_openai.FinishReason) go_openai.ChatCompletionStreamResponse {
	return go_openai.ChatCompletionStreamResponse{
		Choices: []go_openai.ChatCompletionStreamChoice{{Index: 0, FinishReason: reason}},
	}
}

func usageChunk(prompt, completion int) go_openai.ChatCompletionStreamResponse {
	return go_openai.ChatCompletionStreamResponse{
		Usage: &go_openai.Usage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: prompt + completion},
	}
}

func TestToolCallMerger(t *testing.T) {
	tests := []struct {
		name           string
		chunks         []go_openai.ChatCompletionStreamResponse
		expectedDeltas []string
		expectedBlocks []conversation.ContentBlock
		expectedCode   string
	}{
		{
			name:           "empty stream",
			expectedBlocks: []conversation.ContentBlock{},
		},
		{
			name:           "text deltas",
			chunks:         []go_openai.ChatCompletionStreamResponse{textChunk("Hel"), textChunk(""), textChunk("lo"), finishChunk(go_openai.FinishReasonStop)},
			expectedDeltas: []string{"Hel", "lo"},
			expectedBlocks: []conversation.ContentBlock{conversation.Text{Value: "Hello"}},
			expectedCode:   "stop",
		},
		{
			name: "fragmented tool call",
			chunks: []go_openai.ChatCompletionStreamResponse{
				toolChunk(0, "call_1", "search", ""),
				toolChunk(0, "", "", `{"q":`),
				toolChunk(0, "", "", `"ball"}`),
				finishChunk(go_openai.FinishReasonToolCalls),
			},
			expectedBlocks: []conversation.ContentBlock{
				conversation.ToolInvocation{ID: "call_1", Name: "search", Arguments: map[string]any{"q": "ball"}},
			},
			expectedCode: "tool_calls",
		},
		{
			name: "interleaved parallel tool calls, broken one dropped",
			chunks: []go_openai.ChatCompletionStreamResponse{
				textChunk("Looking."),
				toolChunk(1, "call_b", "lookup", `{"sku":`),
				toolChunk(0, "call_a", "search", `{"q": "ba`),
				toolChunk(1, "", "", `"A-1"}`),
				toolChunk(2, "call_c", "list_categories", "  "),
				finishChunk(go_openai.FinishReasonToolCalls),
			},
			expectedDeltas: []string{"Looking."},
			expectedBlocks: []conversation.ContentBlock{
				conversation.Text{Value: "Looking."},
				conversation.ToolInvocation{ID: "call_b", Name: "lookup", Arguments: map[string]any{"sku": "A-1"}},
				conversation.ToolInvocation{ID: "call_c", Name: "list_categories", Arguments: map[string]any{}},
			},
			expectedCode: "tool_calls",
		},
		{
			name: "other choices are ignored",
			chunks: []go_openai.ChatCompletionStreamResponse{{
				Choices: []go_openai.ChatCompletionStreamChoice{
					{Index: 1, Delta: go_openai.ChatCompletionStreamChoiceDelta{Content: "second"}},
					{Index: 0, Delta: go_openai.ChatCompletionStreamChoiceDelta{Content: "first"}},
				},
			}},
			expectedDeltas: []string{"first"},
			expectedBlocks: []conversation.ContentBlock{conversation.Text{Value: "first"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var deltas []string
			acc := engine.NewAccumulator(engine.Handlers{
				OnText: func(delta string) {
					deltas = append(deltas, delta)
				},
			})
			merger := NewToolCallMerger(acc)
			for _, chunk := range tt.chunks {
				merger.Add(chunk)
			}

			assert.Equal(t, tt.expectedDeltas, deltas)

			msg, code, err := acc.Finalize(context.Background(), nil)
			require.NoError(t, err)
			assert.Equal(t, tt.expectedBlocks, msg.Blocks)
			assert.Equal(t, tt.expectedCode, code)
		})
	}
}

func TestToolCallMergerUsage(t *testing.T) {
	merger := NewToolCallMerger(engine.NewAccumulator(engine.Handlers{}))
	merger.Add(textChunk("hi"))
	assert.Nil(t, merger.Usage())

	merger.Add(usageChunk(12, 3))
	usage := merger.Usage()
	require.NotNil(t, usage)
	assert.Equal(t, 12, usage.InputTokens)
	assert.Equal(t, 3, usage.OutputTokens)
	assert.Equal(t, "chatcmpl-1", merger.ResponseID())
	assert.Equal(t, "gpt-4o-2024-08-06", merger.Model())
	assert.Equal(t, 2, merger.Chunks())
}
