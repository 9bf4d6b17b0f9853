package openai

import (
	"github.com/go-go-golems/shopwire/pkg/events"
	"github.com/go-go-golems/shopwire/pkg/inference/engine"
	"github.com/rs/zerolog/log"
	go_openai "github.com/sashabaranov/go-openai"
)

// ToolCallMerger feeds streamed chat completion chunks into an
// engine.Accumulator. Only the choice with index 0 is read.
//
// Tool call fragments are keyed by the index the provider attaches to each
// delta; fragments without an index are merged into slot 0.
type ToolCallMerger struct {
	acc *engine.Accumulator

	responseID string
	model      string
	usage      *events.Usage
	chunks     int
}

func NewToolCallMerger(acc *engine.Accumulator) *ToolCallMerger {
	return &ToolCallMerger{acc: acc}
}

func (tcm *ToolCallMerger) Add(response go_openai.ChatCompletionStreamResponse) {
	tcm.chunks++
	if tcm.responseID == "" {
		tcm.responseID = response.ID
	}
	if response.Model != "" {
		tcm.model = response.Model
	}
	if response.Usage != nil {
		tcm.usage = &events.Usage{
			InputTokens:  response.Usage.PromptTokens,
			OutputTokens: response.Usage.CompletionTokens,
		}
		if response.Usage.PromptTokensDetails != nil {
			tcm.usage.CachedTokens = response.Usage.PromptTokensDetails.CachedTokens
		}
	}

	for _, choice := range response.Choices {
		if choice.Index != 0 {
			continue
		}

		tcm.acc.AppendText(choice.Delta.Content)

		for _, tc := range choice.Delta.ToolCalls {
			index := 0
			if tc.Index != nil {
				index = *tc.Index
			}
			log.Trace().
				Int("chunk", tcm.chunks).
				Int("index", index).
				Str("tool_id", tc.ID).
				Str("name", tc.Function.Name).
				Int("arguments_delta_len", len(tc.Function.Arguments)).
				Msg("OpenAI received tool_call delta")
			tcm.acc.AppendToolCallFragment(index, tc.ID, tc.Function.Name, tc.Function.Arguments)
		}

		tcm.acc.SetFinishCode(string(choice.FinishReason))
	}
}

// Text returns the text accumulated so far.
func (tcm *ToolCallMerger) Text() string {
	return tcm.acc.Text()
}

func (tcm *ToolCallMerger) ResponseID() string {
	return tcm.responseID
}

func (tcm *ToolCallMerger) Model() string {
	return tcm.model
}

// Usage returns the usage chunk, which is only sent when include_usage is set.
func (tcm *ToolCallMerger) Usage() *events.Usage {
	return tcm.usage
}

func (tcm *ToolCallMerger) Chunks() int {
	return tcm.chunks
}
