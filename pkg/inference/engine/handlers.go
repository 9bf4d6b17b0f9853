package engine

import (
	"context"
	"strings"

	"github.com/go-go-golems/shopwire/pkg/conversation"
	"github.com/go-go-golems/shopwire/pkg/events"
)

// WrapHandlers returns handlers that publish partial, final and tool-call
// events before calling through to handlers. metadata is read at publish
// time, so usage and stop reason filled in before Finalize reach the final
// event.
func (c *Config) WrapHandlers(ctx context.Context, metadata *events.EventMetadata, handlers Handlers) Handlers {
	completion := &strings.Builder{}
	return Handlers{
		OnText: func(delta string) {
			completion.WriteString(delta)
			c.PublishEvent(ctx, events.NewPartialCompletionEvent(*metadata, delta, completion.String()))
			if handlers.OnText != nil {
				handlers.OnText(delta)
			}
		},
		OnContentBlock: handlers.OnContentBlock,
		OnMessage: func(msg *conversation.Message) {
			c.PublishEvent(ctx, events.NewFinalEvent(*metadata, msg.TextContent(), ToolCallsFromMessage(msg)...))
			if handlers.OnMessage != nil {
				handlers.OnMessage(msg)
			}
		},
		OnToolUse: func(ctx context.Context, inv conversation.ToolInvocation) error {
			c.PublishEvent(ctx, events.NewToolCallEvent(*metadata, toolCallFromInvocation(inv)))
			if handlers.OnToolUse != nil {
				return handlers.OnToolUse(ctx, inv)
			}
			return nil
		},
	}
}

// ToolCallsFromMessage lists the message's invocations in event form.
func ToolCallsFromMessage(msg *conversation.Message) []events.ToolCall {
	invocations := msg.ToolInvocations()
	ret := make([]events.ToolCall, 0, len(invocations))
	for _, inv := range invocations {
		ret = append(ret, toolCallFromInvocation(inv))
	}
	return ret
}

func toolCallFromInvocation(inv conversation.ToolInvocation) events.ToolCall {
	return events.ToolCall{ID: inv.ID, Name: inv.Name, Input: inv.ArgumentsJSON()}
}
