package claude

import (
	"encoding/json"
	"strings"

	"github.com/go-go-golems/shopwire/pkg/conversation"
	"github.com/go-go-golems/shopwire/pkg/inference/engine"
	"github.com/go-go-golems/shopwire/pkg/steps"
	"github.com/go-go-golems/shopwire/pkg/steps/ai/claude/api"
	"github.com/go-go-golems/shopwire/pkg/steps/ai/settings"
	"github.com/rs/zerolog/log"
)

const defaultMaxTokens = 1024

// The messages API only knows user and assistant turns; tool results travel
// in user messages.
const (
	roleUser      = "user"
	roleAssistant = "assistant"
)

var NormalizeStopReason = engine.NewFinishReasonNormalizer(map[string]engine.FinishReasonKind{
	"end_turn":      engine.FinishReasonEndOfTurn,
	"stop_sequence": engine.FinishReasonEndOfTurn,
	"max_tokens":    engine.FinishReasonMaxTokensReached,
	"tool_use":      engine.FinishReasonToolInvocationPending,
})

// MakeMessageRequest builds a streaming messages request from a conversation.
//
// System messages in the history take precedence over systemInstruction and
// are joined, in order, into the top-level system field.
// Messages holding only tool results are split into one user message per
// result. Content shape problems never cause an error.
func MakeMessageRequest(
	s *settings.StepSettings,
	messages conversation.Conversation,
	systemInstruction string,
	tools []engine.ToolDeclaration,
) (*api.MessageRequest, error) {
	if s == nil || s.Chat == nil || s.Chat.Engine == nil || *s.Chat.Engine == "" {
		return nil, steps.ErrMissingEngine
	}
	chatSettings := s.Chat

	systemTexts := []string{}
	for _, m := range messages {
		if m != nil && m.Role == conversation.RoleSystem {
			if text := m.TextContent(); text != "" {
				systemTexts = append(systemTexts, text)
			}
		}
	}
	systemPrompt := systemInstruction
	if len(systemTexts) > 0 {
		systemPrompt = strings.Join(systemTexts, "\n\n")
	}

	msgs := []api.Message{}
	for _, m := range messages {
		if m == nil || m.Role == conversation.RoleSystem {
			continue
		}
		msgs = append(msgs, messageToClaudeMessages(m)...)
	}

	maxTokens := defaultMaxTokens
	if chatSettings.MaxResponseTokens != nil && *chatSettings.MaxResponseTokens > 0 {
		maxTokens = *chatSettings.MaxResponseTokens
	}

	req := &api.MessageRequest{
		Model:         *chatSettings.Engine,
		Messages:      msgs,
		MaxTokens:     maxTokens,
		StopSequences: chatSettings.Stop,
		Stream:        true,
		System:        systemPrompt,
		Temperature:   chatSettings.Temperature,
		TopP:          chatSettings.TopP,
	}
	if s.Claude != nil {
		req.TopK = s.Claude.TopK
		if s.Claude.UserID != nil && *s.Claude.UserID != "" {
			req.Metadata = &api.Metadata{UserID: *s.Claude.UserID}
		}
	}

	for _, tool := range tools {
		req.Tools = append(req.Tools, api.Tool{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.InputSchema,
		})
		log.Trace().
			Str("tool_name", tool.Name).
			Interface("tool_input_schema", tool.InputSchema).
			Msg("Converted tool to claude format")
	}

	log.Debug().
		Str("model", req.Model).
		Int("messages", len(req.Messages)).
		Int("tools", len(req.Tools)).
		Bool("system", req.System != "").
		Msg("Built claude message request")

	return req, nil
}

// messageToClaudeMessages converts one canonical message into zero or more
// wire messages.
func messageToClaudeMessages(msg *conversation.Message) []api.Message {
	blocks := msg.ContentBlocks()

	if conversation.IsToolResultOnly(blocks) {
		ret := make([]api.Message, 0, len(blocks))
		for _, r := range msg.ToolResults() {
			ret = append(ret, api.Message{
				Role:    roleUser,
				Content: []api.Content{api.NewToolResultContent(r.InvocationID, r.PayloadString())},
			})
		}
		return ret
	}

	content := make([]api.Content, 0, len(blocks))
	for _, b := range blocks {
		switch v := b.(type) {
		case conversation.Text:
			if v.Value == "" {
				continue
			}
			content = append(content, api.NewTextContent(v.Value))
		case conversation.ToolInvocation:
			content = append(content, api.NewToolUseContent(v.ID, v.Name, json.RawMessage(v.ArgumentsJSON())))
		case conversation.ToolResult:
			content = append(content, api.NewToolResultContent(v.InvocationID, v.PayloadString()))
		case conversation.ImageReference:
			content = append(content, api.NewImageURLContent(v.URL))
		default:
			log.Warn().Str("content_type", string(b.ContentType())).Msg("Skipping unknown content block")
		}
	}

	if len(content) == 0 {
		log.Debug().Str("role", string(msg.Role)).Msg("Skipping message without content")
		return nil
	}

	role := roleUser
	if msg.Role == conversation.RoleAssistant {
		role = roleAssistant
	}
	return []api.Message{{Role: role, Content: content}}
}
