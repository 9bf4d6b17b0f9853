package session

import (
	"context"

	"github.com/go-go-golems/shopwire/pkg/conversation"
	"github.com/go-go-golems/shopwire/pkg/inference/engine"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ToolExecutor turns an invocation into its result. toolbox.Toolbox
// implements it.
type ToolExecutor interface {
	Execute(ctx context.Context, invocation conversation.ToolInvocation) conversation.ToolResult
}

const DefaultMaxIterations = 5

// RunToolLoop runs turns until the model stops asking for tools. After each
// turn the assistant message and one tool message with the results are
// appended to the history, which is returned together with the last result.
func (s *Session) RunToolLoop(
	ctx context.Context,
	req TurnRequest,
	executor ToolExecutor,
	handlers engine.Handlers,
	maxIterations int,
) (conversation.Conversation, *engine.Result, error) {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}

	history := make(conversation.Conversation, len(req.History))
	copy(history, req.History)

	var last *engine.Result
	for i := 0; i < maxIterations; i++ {
		var results []conversation.ContentBlock
		h := handlers
		h.OnToolUse = func(ctx context.Context, inv conversation.ToolInvocation) error {
			if handlers.OnToolUse != nil {
				if err := handlers.OnToolUse(ctx, inv); err != nil {
					return err
				}
			}
			results = append(results, executor.Execute(ctx, inv))
			return nil
		}

		res, err := s.RunTurn(ctx, TurnRequest{
			History:         history,
			SystemPromptKey: req.SystemPromptKey,
			Tools:           req.Tools,
		}, h)
		if res != nil {
			last = res
			if res.Message != nil {
				history = append(history, res.Message)
			}
		}
		if err != nil {
			return history, last, err
		}

		if len(results) == 0 {
			return history, last, nil
		}
		history = append(history, conversation.NewBlocksMessage(conversation.RoleTool, results))
		log.Debug().Int("iteration", i).Int("num_results", len(results)).Msg("tool results appended")
	}

	return history, last, errors.Errorf("model still requested tools after %d iterations", maxIterations)
}
