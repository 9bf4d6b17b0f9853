package openai

import (
	"strconv"
	"strings"

	"github.com/go-go-golems/shopwire/pkg/conversation"
	"github.com/go-go-golems/shopwire/pkg/inference/engine"
	"github.com/go-go-golems/shopwire/pkg/steps"
	"github.com/go-go-golems/shopwire/pkg/steps/ai/settings"
	ai_types "github.com/go-go-golems/shopwire/pkg/steps/ai/types"
	"github.com/rs/zerolog/log"
	go_openai "github.com/sashabaranov/go-openai"
)

const (
	roleSystem    = "system"
	roleUser      = "user"
	roleAssistant = "assistant"
	roleTool      = "tool"
)

var NormalizeFinishReason = engine.NewFinishReasonNormalizer(map[string]engine.FinishReasonKind{
	"stop":          engine.FinishReasonEndOfTurn,
	"length":        engine.FinishReasonMaxTokensReached,
	"tool_calls":    engine.FinishReasonToolInvocationPending,
	"function_call": engine.FinishReasonToolInvocationPending,
})

func IsOpenAiEngine(engine string) bool {
	if strings.HasPrefix(engine, "gpt") {
		return true
	}
	if strings.HasPrefix(engine, "text-") {
		return true
	}

	return false
}

func isReasoningModel(engine string) bool {
	m := strings.ToLower(strings.TrimSpace(engine))
	return strings.HasPrefix(m, "o1") ||
		strings.HasPrefix(m, "o3") ||
		strings.HasPrefix(m, "o4") ||
		strings.HasPrefix(m, "gpt-5")
}

// MakeCompletionRequest builds a streaming chat completion request from a
// conversation.
//
// System messages are hoisted to the front; systemInstruction is only used
// when the history has none. Every assistant message carrying tool calls is
// followed by exactly one tool message per call, in call order, filled from
// the tool results of the messages right after it.
func MakeCompletionRequest(
	s *settings.StepSettings,
	messages conversation.Conversation,
	systemInstruction string,
	tools []engine.ToolDeclaration,
) (*go_openai.ChatCompletionRequest, error) {
	if s == nil || s.Chat == nil || s.Chat.Engine == nil || *s.Chat.Engine == "" {
		return nil, steps.ErrMissingEngine
	}
	chatSettings := s.Chat
	engine_ := *chatSettings.Engine

	msgs_ := []go_openai.ChatCompletionMessage{}
	rest := conversation.Conversation{}
	for _, m := range messages {
		if m == nil {
			continue
		}
		if m.Role == conversation.RoleSystem {
			msgs_ = append(msgs_, go_openai.ChatCompletionMessage{Role: roleSystem, Content: m.TextContent()})
			continue
		}
		rest = append(rest, m)
	}
	if len(msgs_) == 0 && systemInstruction != "" {
		msgs_ = append(msgs_, go_openai.ChatCompletionMessage{Role: roleSystem, Content: systemInstruction})
	}

	for i := 0; i < len(rest); {
		m := rest[i]
		invocations := m.ToolInvocations()
		if len(invocations) == 0 {
			msgs_ = append(msgs_, messageToOpenAIMessages(m)...)
			i++
			continue
		}

		msgs_ = append(msgs_, assistantToolCallMessage(m, invocations))

		j := i + 1
		batch := conversation.Conversation{}
		for j < len(rest) && rest[j].Role != conversation.RoleAssistant && conversation.HasToolResult(rest[j].ContentBlocks()) {
			batch = append(batch, rest[j])
			j++
		}
		msgs_ = append(msgs_, toolReplies(invocations, batch)...)
		i = j
	}

	checkToolCallAdjacency(msgs_)

	maxTokens := 0
	if chatSettings.MaxResponseTokens != nil {
		maxTokens = *chatSettings.MaxResponseTokens
	}
	maxCompletionTokens := 0
	temperature := 0.0
	if chatSettings.Temperature != nil {
		temperature = *chatSettings.Temperature
	}
	topP := 0.0
	if chatSettings.TopP != nil {
		topP = *chatSettings.TopP
	}
	n := 1
	presencePenalty := 0.0
	frequencyPenalty := 0.0
	var logitBias map[string]int
	if s.OpenAI != nil {
		if s.OpenAI.N != nil {
			n = *s.OpenAI.N
		}
		if s.OpenAI.PresencePenalty != nil {
			presencePenalty = *s.OpenAI.PresencePenalty
		}
		if s.OpenAI.FrequencyPenalty != nil {
			frequencyPenalty = *s.OpenAI.FrequencyPenalty
		}
		logitBias = parseLogitBias(s.OpenAI.LogitBias)
	}

	if isReasoningModel(engine_) {
		maxCompletionTokens = maxTokens
		maxTokens = 0
		temperature = 0
		topP = 0
		n = 1
		presencePenalty = 0
		frequencyPenalty = 0
	}

	var streamOptions *go_openai.StreamOptions
	if chatSettings.GetApiType() != ai_types.ApiTypeMistral && !strings.Contains(engine_, "mistral") {
		streamOptions = &go_openai.StreamOptions{IncludeUsage: true}
	}

	req := go_openai.ChatCompletionRequest{
		Model:               engine_,
		Messages:            msgs_,
		MaxTokens:           maxTokens,
		MaxCompletionTokens: maxCompletionTokens,
		Temperature:         float32(temperature),
		TopP:                float32(topP),
		N:                   n,
		Stream:              true,
		Stop:                chatSettings.Stop,
		StreamOptions:       streamOptions,
		PresencePenalty:     float32(presencePenalty),
		FrequencyPenalty:    float32(frequencyPenalty),
		LogitBias:           logitBias,
	}

	for _, tool := range tools {
		req.Tools = append(req.Tools, go_openai.Tool{
			Type: go_openai.ToolTypeFunction,
			Function: &go_openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.InputSchema,
			},
		})
	}

	log.Debug().
		Str("model", engine_).
		Int("max_tokens", maxTokens).
		Int("max_completion_tokens", maxCompletionTokens).
		Float64("temperature", temperature).
		Float64("top_p", topP).
		Int("n", n).
		Strs("stop", req.Stop).
		Int("messages", len(msgs_)).
		Int("tools", len(req.Tools)).
		Msg("Making request to openai")

	for i, m := range msgs_ {
		var toolIDs []string
		for _, tc := range m.ToolCalls {
			toolIDs = append(toolIDs, tc.ID)
		}
		log.Trace().
			Int("idx", i).
			Str("role", m.Role).
			Strs("tool_call_ids", toolIDs).
			Str("tool_call_id", m.ToolCallID).
			Int("content_len", len(m.Content)).
			Int("parts", len(m.MultiContent)).
			Msg("OpenAI request message")
	}

	return &req, nil
}

// messageToOpenAIMessages converts a message that carries no tool calls.
// Tool results outside of a tool call batch are forwarded as tool messages
// and the provider gets to reject them.
func messageToOpenAIMessages(m *conversation.Message) []go_openai.ChatCompletionMessage {
	if m.IsText() {
		if m.Text == "" {
			log.Debug().Str("role", string(m.Role)).Msg("OpenAI request: skipping empty text message")
			return nil
		}
		return []go_openai.ChatCompletionMessage{{Role: chatRole(m.Role), Content: m.Text}}
	}

	ret := []go_openai.ChatCompletionMessage{}
	other := []conversation.ContentBlock{}
	for _, b := range m.Blocks {
		if r, ok := b.(conversation.ToolResult); ok {
			log.Debug().Str("tool_call_id", r.InvocationID).Msg("OpenAI request: forwarding tool result without preceding tool call")
			ret = append(ret, go_openai.ChatCompletionMessage{
				Role:       roleTool,
				Content:    r.PayloadString(),
				ToolCallID: r.InvocationID,
			})
			continue
		}
		other = append(other, b)
	}

	role := chatRole(m.Role)
	if len(ret) > 0 && role == roleTool {
		role = roleUser
	}
	if msg, ok := blocksToMessage(role, other); ok {
		ret = append(ret, msg)
	}
	return ret
}

func assistantToolCallMessage(m *conversation.Message, invocations []conversation.ToolInvocation) go_openai.ChatCompletionMessage {
	toolCalls := make([]go_openai.ToolCall, 0, len(invocations))
	for _, inv := range invocations {
		toolCalls = append(toolCalls, go_openai.ToolCall{
			ID:   inv.ID,
			Type: go_openai.ToolTypeFunction,
			Function: go_openai.FunctionCall{
				Name:      inv.Name,
				Arguments: inv.ArgumentsJSON(),
			},
		})
	}
	return go_openai.ChatCompletionMessage{
		Role:      roleAssistant,
		Content:   m.TextContent(),
		ToolCalls: toolCalls,
	}
}

// toolReplies emits one tool message per invocation, filled from the results
// found in batch (empty when missing). Results that match no invocation are
// forwarded afterwards, and any other content of the batch ends up in one
// trailing user message.
func toolReplies(invocations []conversation.ToolInvocation, batch conversation.Conversation) []go_openai.ChatCompletionMessage {
	expected := map[string]bool{}
	for _, inv := range invocations {
		expected[inv.ID] = true
	}

	results := map[string]conversation.ToolResult{}
	orphans := []conversation.ToolResult{}
	leftover := []conversation.ContentBlock{}
	for _, m := range batch {
		for _, b := range m.ContentBlocks() {
			r, ok := b.(conversation.ToolResult)
			if !ok {
				leftover = append(leftover, b)
				continue
			}
			if _, seen := results[r.InvocationID]; expected[r.InvocationID] && !seen {
				results[r.InvocationID] = r
				continue
			}
			orphans = append(orphans, r)
		}
	}

	ret := make([]go_openai.ChatCompletionMessage, 0, len(invocations)+len(orphans)+1)
	for _, inv := range invocations {
		content := ""
		if r, ok := results[inv.ID]; ok {
			content = r.PayloadString()
		} else {
			log.Warn().Str("tool_call_id", inv.ID).Str("name", inv.Name).Msg("OpenAI request: no tool result for tool call, sending empty reply")
		}
		ret = append(ret, go_openai.ChatCompletionMessage{
			Role:       roleTool,
			Content:    content,
			ToolCallID: inv.ID,
		})
	}
	for _, r := range orphans {
		log.Debug().Str("tool_call_id", r.InvocationID).Msg("OpenAI request: forwarding unmatched tool result")
		ret = append(ret, go_openai.ChatCompletionMessage{
			Role:       roleTool,
			Content:    r.PayloadString(),
			ToolCallID: r.InvocationID,
		})
	}
	if msg, ok := blocksToMessage(roleUser, leftover); ok {
		ret = append(ret, msg)
	}
	return ret
}

// blocksToMessage renders text and image blocks. Images switch the message
// to multi-part content.
func blocksToMessage(role string, blocks []conversation.ContentBlock) (go_openai.ChatCompletionMessage, bool) {
	texts := []string{}
	parts := []go_openai.ChatMessagePart{}
	hasImage := false
	for _, b := range blocks {
		switch v := b.(type) {
		case conversation.Text:
			if v.Value == "" {
				continue
			}
			texts = append(texts, v.Value)
			parts = append(parts, go_openai.ChatMessagePart{Type: go_openai.ChatMessagePartTypeText, Text: v.Value})
		case conversation.ImageReference:
			hasImage = true
			parts = append(parts, go_openai.ChatMessagePart{
				Type: go_openai.ChatMessagePartTypeImageURL,
				ImageURL: &go_openai.ChatMessageImageURL{
					URL:    v.URL,
					Detail: go_openai.ImageURLDetailAuto,
				},
			})
		case conversation.ToolInvocation, conversation.ToolResult:
			// handled by the caller
		default:
			log.Warn().Str("content_type", string(b.ContentType())).Msg("OpenAI request: skipping unknown content block")
		}
	}

	if hasImage {
		return go_openai.ChatCompletionMessage{Role: role, MultiContent: parts}, true
	}
	if len(texts) == 0 {
		return go_openai.ChatCompletionMessage{}, false
	}
	return go_openai.ChatCompletionMessage{Role: role, Content: strings.Join(texts, "\n")}, true
}

func chatRole(role conversation.Role) string {
	switch role {
	case conversation.RoleAssistant:
		return roleAssistant
	case conversation.RoleSystem:
		return roleSystem
	case conversation.RoleUser:
		return roleUser
	default:
		// a tool message without results has nothing to answer
		return roleUser
	}
}

// checkToolCallAdjacency warns when an assistant tool_calls entry is not
// directly followed by a tool message for each of its ids.
func checkToolCallAdjacency(msgs []go_openai.ChatCompletionMessage) {
	for i, m := range msgs {
		if len(m.ToolCalls) == 0 {
			continue
		}
		idset := map[string]bool{}
		for _, tc := range m.ToolCalls {
			idset[tc.ID] = false
		}
		for j := i + 1; j < len(msgs) && msgs[j].Role == roleTool; j++ {
			if _, ok := idset[msgs[j].ToolCallID]; ok {
				idset[msgs[j].ToolCallID] = true
			}
		}
		missing := []string{}
		for id, ok := range idset {
			if !ok {
				missing = append(missing, id)
			}
		}
		if len(missing) > 0 {
			log.Warn().
				Int("assistant_idx", i).
				Strs("missing_tool_result_ids", missing).
				Msg("OpenAI request: assistant tool_calls missing immediate tool results in following messages")
		}
	}
}

func parseLogitBias(bias map[string]string) map[string]int {
	if len(bias) == 0 {
		return nil
	}
	ret := map[string]int{}
	for token, value := range bias {
		v, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			log.Warn().Str("token", token).Str("value", value).Msg("Ignoring invalid logit bias")
			continue
		}
		ret[token] = v
	}
	return ret
}
