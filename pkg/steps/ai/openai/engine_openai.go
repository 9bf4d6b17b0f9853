package openai

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/go-go-golems/shopwire/pkg/events"
	"github.com/go-go-golems/shopwire/pkg/helpers"
	"github.com/go-go-golems/shopwire/pkg/inference/engine"
	"github.com/go-go-golems/shopwire/pkg/steps/ai/settings"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	go_openai "github.com/sashabaranov/go-openai"
)

// OpenAIEngine implements engine.Engine for chat completion compatible APIs.
type OpenAIEngine struct {
	settings *settings.StepSettings
	config   *engine.Config
	streamer ChatStreamer
}

// NewOpenAIEngine creates an engine with a go-openai client built from settings.
func NewOpenAIEngine(s *settings.StepSettings, options ...engine.Option) (*OpenAIEngine, error) {
	client, err := MakeClient(s)
	if err != nil {
		return nil, err
	}
	return NewOpenAIEngineWithStreamer(s, &ClientStreamer{Client: client}, options...)
}

// NewOpenAIEngineWithStreamer creates an engine on top of an existing transport.
func NewOpenAIEngineWithStreamer(s *settings.StepSettings, streamer ChatStreamer, options ...engine.Option) (*OpenAIEngine, error) {
	config := engine.NewConfig()
	if err := engine.ApplyOptions(config, options...); err != nil {
		return nil, err
	}
	return &OpenAIEngine{
		settings: s,
		config:   config,
		streamer: streamer,
	}, nil
}

func (e *OpenAIEngine) providerName() string {
	return string(e.settings.Chat.GetApiType())
}

// RunTurn sends the conversation and aggregates the streamed answer.
func (e *OpenAIEngine) RunTurn(ctx context.Context, turn engine.Turn, handlers engine.Handlers) (*engine.Result, error) {
	log.Debug().Int("num_messages", len(turn.History)).Int("num_tools", len(turn.Tools)).Msg("OpenAI RunTurn started")

	req, err := MakeCompletionRequest(e.settings, turn.History, turn.SystemInstruction, turn.Tools)
	if err != nil {
		return nil, err
	}

	metadata := events.EventMetadata{
		ID:       uuid.New(),
		TurnID:   helpers.TurnIDFromContext(ctx),
		Provider: e.providerName(),
		LLMInferenceData: events.LLMInferenceData{
			Model:       req.Model,
			Temperature: e.settings.Chat.Temperature,
			TopP:        e.settings.Chat.TopP,
			MaxTokens:   e.settings.Chat.MaxResponseTokens,
		},
	}
	startTime := time.Now()

	stream, err := e.streamer.CreateChatCompletionStream(ctx, *req)
	if err != nil {
		if ctx.Err() != nil {
			e.config.PublishEvent(ctx, events.NewInterruptEvent(metadata, ""))
			return nil, ctx.Err()
		}
		err = e.toProviderError(err)
		log.Error().Err(err).Msg("OpenAI streaming request failed")
		e.config.PublishEvent(ctx, events.NewErrorEvent(metadata, err))
		return nil, err
	}
	defer func() {
		if err := stream.Close(); err != nil {
			log.Debug().Err(err).Msg("Failed to close openai stream")
		}
	}()

	e.config.PublishEvent(ctx, events.NewStartEvent(metadata))

	acc := engine.NewAccumulator(e.config.WrapHandlers(ctx, &metadata, handlers))
	merger := NewToolCallMerger(acc)

	for {
		if ctx.Err() != nil {
			log.Debug().Msg("OpenAI streaming cancelled by context")
			e.config.PublishEvent(ctx, events.NewInterruptEvent(metadata, merger.Text()))
			return nil, ctx.Err()
		}

		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			log.Debug().Int("chunks_received", merger.Chunks()).Msg("OpenAI stream completed")
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				e.config.PublishEvent(ctx, events.NewInterruptEvent(metadata, merger.Text()))
				return nil, ctx.Err()
			}
			err = e.toProviderError(err)
			log.Error().Err(err).Int("chunks_received", merger.Chunks()).Msg("OpenAI stream receive failed")
			e.config.PublishEvent(ctx, events.NewErrorEvent(metadata, err))
			return nil, err
		}

		merger.Add(response)
	}

	usage := merger.Usage()
	metadata.Usage = usage
	if model := merger.Model(); model != "" {
		metadata.Model = model
	}
	if code := acc.FinishCode(); code != "" {
		metadata.StopReason = helpers.Pointer(code)
	}
	metadata.DurationMs = helpers.Pointer(time.Since(startTime).Milliseconds())

	var result *engine.Result
	msg, code, err := acc.Finalize(ctx, nil)
	if msg != nil {
		result = &engine.Result{
			Message:      msg,
			FinishReason: NormalizeFinishReason(code),
			Usage:        usage,
		}
	}
	if err != nil {
		if ctx.Err() != nil {
			e.config.PublishEvent(ctx, events.NewInterruptEvent(metadata, merger.Text()))
			return nil, ctx.Err()
		}
		e.config.PublishEvent(ctx, events.NewErrorEvent(metadata, err))
		return result, err
	}

	log.Debug().
		Str("response_id", merger.ResponseID()).
		Str("finish_reason", result.FinishReason.String()).
		Int("final_text_length", len(merger.Text())).
		Msg("OpenAI RunTurn completed")
	return result, nil
}

// toProviderError converts go-openai errors. HTTP failures without a JSON
// error body come back as RequestError.
func (e *OpenAIEngine) toProviderError(err error) error {
	provider := e.providerName()

	var apiErr *go_openai.APIError
	if errors.As(err, &apiErr) {
		type_ := ""
		if apiErr.Code != nil {
			if code, ok := apiErr.Code.(string); ok {
				type_ = code
			}
		}
		if type_ == "" {
			type_ = apiErr.Type
		}
		return &engine.ProviderError{
			Provider:   provider,
			StatusCode: apiErr.HTTPStatusCode,
			Type:       type_,
			Message:    apiErr.Message,
			Err:        err,
		}
	}

	var reqErr *go_openai.RequestError
	if errors.As(err, &reqErr) {
		msg := http.StatusText(reqErr.HTTPStatusCode)
		if reqErr.Err != nil {
			msg = reqErr.Err.Error()
		}
		return &engine.ProviderError{
			Provider:   provider,
			StatusCode: reqErr.HTTPStatusCode,
			Message:    msg,
			Err:        err,
		}
	}

	return &engine.ProviderError{Provider: provider, Message: "request failed", Err: err}
}

var _ engine.Engine = (*OpenAIEngine)(nil)
