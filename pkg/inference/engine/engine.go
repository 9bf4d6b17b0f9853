package engine

import (
	"context"

	"github.com/go-go-golems/shopwire/pkg/conversation"
	"github.com/go-go-golems/shopwire/pkg/events"
)

// Engine runs one conversation turn against a provider.
//
// RunTurn translates the history into the provider request, consumes the
// response stream while firing the handlers, and returns the assembled
// assistant message together with the normalized finish reason.
//
// When a tool handler fails, RunTurn returns both the result and the error,
// since the assistant message is complete at that point. When ctx is
// cancelled, RunTurn returns ctx.Err() and no result.
type Engine interface {
	RunTurn(ctx context.Context, turn Turn, handlers Handlers) (*Result, error)
}

// Turn is the input of a single provider call.
type Turn struct {
	History           conversation.Conversation
	SystemInstruction string
	Tools             []ToolDeclaration
}

type Result struct {
	Message      *conversation.Message
	FinishReason FinishReason
	Usage        *events.Usage
}

// Handlers are invoked synchronously while a turn is processed. Nil handlers
// are skipped.
type Handlers struct {
	// OnText receives each non-empty text delta, in arrival order
	OnText func(delta string)
	// OnContentBlock receives each streamed text delta wrapped as a text block
	OnContentBlock func(block conversation.ContentBlock)
	// OnMessage receives the final assistant message, exactly once
	OnMessage func(msg *conversation.Message)
	// OnToolUse is called once per kept tool invocation, in index order, after OnMessage
	OnToolUse func(ctx context.Context, invocation conversation.ToolInvocation) error
}
