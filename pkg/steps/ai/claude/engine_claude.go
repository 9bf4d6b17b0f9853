package claude

import (
	"context"
	"io"
	"time"

	"github.com/go-go-golems/shopwire/pkg/events"
	"github.com/go-go-golems/shopwire/pkg/helpers"
	"github.com/go-go-golems/shopwire/pkg/inference/engine"
	"github.com/go-go-golems/shopwire/pkg/steps"
	"github.com/go-go-golems/shopwire/pkg/steps/ai/claude/api"
	"github.com/go-go-golems/shopwire/pkg/steps/ai/settings"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// MessageStreamer opens a streaming messages call. *api.Client implements it.
type MessageStreamer interface {
	StreamMessage(ctx context.Context, req *api.MessageRequest) (*api.MessageStream, error)
}

var _ MessageStreamer = (*api.Client)(nil)

// ClaudeEngine implements engine.Engine for the Anthropic messages API.
type ClaudeEngine struct {
	settings *settings.StepSettings
	config   *engine.Config
	streamer MessageStreamer
}

// NewClaudeEngine creates an engine talking to the configured messages endpoint.
func NewClaudeEngine(s *settings.StepSettings, options ...engine.Option) (*ClaudeEngine, error) {
	if s == nil || s.Client == nil {
		return nil, steps.ErrMissingClientSettings
	}
	if s.Claude == nil {
		return nil, errors.Wrap(steps.ErrMissingProviderSettings, "no claude settings")
	}
	apiKey := s.Claude.GetAPIKey()
	if apiKey == "" {
		return nil, errors.Wrap(steps.ErrMissingClientAPIKey, "no claude api key")
	}

	client := api.NewClient(apiKey, s.Claude.GetBaseURL(),
		api.WithHTTPClient(s.Client.GetHTTPClient()),
		api.WithAPIVersion(s.Claude.GetAPIVersion()),
		api.WithUserAgent(s.Client.GetUserAgent()),
		api.WithOutboundURLOptions(s.Client.OutboundURLOptions()),
	)

	return NewClaudeEngineWithStreamer(s, client, options...)
}

// NewClaudeEngineWithStreamer creates an engine on top of an existing transport.
func NewClaudeEngineWithStreamer(s *settings.StepSettings, streamer MessageStreamer, options ...engine.Option) (*ClaudeEngine, error) {
	config := engine.NewConfig()
	if err := engine.ApplyOptions(config, options...); err != nil {
		return nil, err
	}
	return &ClaudeEngine{
		settings: s,
		config:   config,
		streamer: streamer,
	}, nil
}

// RunTurn sends the conversation and aggregates the streamed answer.
func (e *ClaudeEngine) RunTurn(ctx context.Context, turn engine.Turn, handlers engine.Handlers) (*engine.Result, error) {
	log.Debug().Int("num_messages", len(turn.History)).Int("num_tools", len(turn.Tools)).Msg("Claude RunTurn started")

	req, err := MakeMessageRequest(e.settings, turn.History, turn.SystemInstruction, turn.Tools)
	if err != nil {
		return nil, err
	}

	metadata := events.EventMetadata{
		ID:       uuid.New(),
		TurnID:   helpers.TurnIDFromContext(ctx),
		Provider: providerName,
		LLMInferenceData: events.LLMInferenceData{
			Model:       req.Model,
			Temperature: req.Temperature,
			TopP:        req.TopP,
			MaxTokens:   helpers.Pointer(req.MaxTokens),
		},
	}
	startTime := time.Now()

	stream, err := e.streamer.StreamMessage(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			e.config.PublishEvent(ctx, events.NewInterruptEvent(metadata, ""))
			return nil, ctx.Err()
		}
		err = toProviderError(err)
		log.Error().Err(err).Msg("Claude streaming request failed")
		e.config.PublishEvent(ctx, events.NewErrorEvent(metadata, err))
		return nil, err
	}
	defer func() {
		_ = stream.Close()
	}()

	e.config.PublishEvent(ctx, events.NewStartEvent(metadata))

	acc := engine.NewAccumulator(e.config.WrapHandlers(ctx, &metadata, handlers))
	merger := NewContentBlockMerger(acc)

	eventCount := 0
	for {
		if ctx.Err() != nil {
			log.Debug().Msg("Claude streaming cancelled by context")
			e.config.PublishEvent(ctx, events.NewInterruptEvent(metadata, merger.Text()))
			return nil, ctx.Err()
		}

		event, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			log.Debug().Int("total_events", eventCount).Msg("Claude stream finished")
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				e.config.PublishEvent(ctx, events.NewInterruptEvent(metadata, merger.Text()))
				return nil, ctx.Err()
			}
			err = &engine.ProviderError{Provider: providerName, Message: "stream read failed", Err: err}
			e.config.PublishEvent(ctx, events.NewErrorEvent(metadata, err))
			return nil, err
		}

		eventCount++
		log.Debug().Int("event_count", eventCount).Object("event", event).Msg("Claude processing streaming event")

		if err := merger.Add(event); err != nil {
			log.Error().Err(err).Int("event_count", eventCount).Msg("Claude ContentBlockMerger.Add failed")
			e.config.PublishEvent(ctx, events.NewErrorEvent(metadata, err))
			return nil, err
		}
	}

	if !merger.Stopped() {
		log.Warn().Int("total_events", eventCount).Msg("Claude stream ended without message_stop")
	}

	return e.finalize(ctx, &metadata, startTime, acc, merger)
}

func (e *ClaudeEngine) finalize(
	ctx context.Context,
	metadata *events.EventMetadata,
	startTime time.Time,
	acc *engine.Accumulator,
	merger *ContentBlockMerger,
) (*engine.Result, error) {
	usage := merger.Usage()
	metadata.Usage = usage
	if model := merger.Model(); model != "" {
		metadata.Model = model
	}
	if code := acc.FinishCode(); code != "" {
		metadata.StopReason = helpers.Pointer(code)
	}
	metadata.DurationMs = helpers.Pointer(time.Since(startTime).Milliseconds())

	// OnMessage publishes the final event before any tool is dispatched
	var result *engine.Result
	msg, code, err := acc.Finalize(ctx, nil)
	if msg != nil {
		result = &engine.Result{
			Message:      msg,
			FinishReason: NormalizeStopReason(code),
			Usage:        usage,
		}
	}
	if err != nil {
		if ctx.Err() != nil {
			e.config.PublishEvent(ctx, events.NewInterruptEvent(*metadata, merger.Text()))
			return nil, ctx.Err()
		}
		e.config.PublishEvent(ctx, events.NewErrorEvent(*metadata, err))
		return result, err
	}

	log.Debug().
		Str("message_id", merger.MessageID()).
		Str("finish_reason", result.FinishReason.String()).
		Msg("Claude RunTurn completed")
	return result, nil
}

func toProviderError(err error) error {
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		return &engine.ProviderError{
			Provider:   providerName,
			StatusCode: apiErr.StatusCode,
			Type:       apiErr.Type,
			Message:    apiErr.Message,
			Err:        err,
		}
	}
	return &engine.ProviderError{Provider: providerName, Message: "request failed", Err: err}
}

var _ engine.Engine = (*ClaudeEngine)(nil)
