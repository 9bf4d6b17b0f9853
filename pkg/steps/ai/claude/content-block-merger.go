package claude

import (
	"fmt"
	"strings"

	"github.com/go-go-golems/shopwire/pkg/conversation"
	"github.com/go-go-golems/shopwire/pkg/events"
	"github.com/go-go-golems/shopwire/pkg/inference/engine"
	"github.com/go-go-golems/shopwire/pkg/steps/ai/claude/api"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const providerName = "claude"

// ContentBlockMerger feeds the events of a streaming messages response into
// an engine.Accumulator.
//
// Content blocks are tracked by their index. Text deltas go straight to the
// accumulator, tool_use input is buffered until content_block_stop and then
// stored as a complete invocation. Message level metadata (id, model, usage)
// is kept on the merger itself.
//
// Usage:
//  1. Create a new merger with NewContentBlockMerger(acc)
//  2. For each streaming event, call Add()
//  3. Finalize the accumulator once the stream is exhausted
type ContentBlockMerger struct {
	acc *engine.Accumulator

	messageID string
	model     string
	usage     api.Usage
	started   bool
	stopped   bool

	contentBlocks map[int]*contentBlockState
}

type contentBlockState struct {
	block       api.ContentBlock
	partialJSON strings.Builder
	done        bool
}

func NewContentBlockMerger(acc *engine.Accumulator) *ContentBlockMerger {
	return &ContentBlockMerger{
		acc:           acc,
		contentBlocks: make(map[int]*contentBlockState),
	}
}

// Text returns the text accumulated so far.
func (cbm *ContentBlockMerger) Text() string {
	return cbm.acc.Text()
}

func (cbm *ContentBlockMerger) MessageID() string {
	return cbm.messageID
}

func (cbm *ContentBlockMerger) Model() string {
	return cbm.model
}

// Stopped reports whether message_stop has been seen.
func (cbm *ContentBlockMerger) Stopped() bool {
	return cbm.stopped
}

// Usage returns the token usage reported so far, or nil before message_start.
func (cbm *ContentBlockMerger) Usage() *events.Usage {
	if !cbm.started {
		return nil
	}
	return &events.Usage{
		InputTokens:  cbm.usage.InputTokens,
		OutputTokens: cbm.usage.OutputTokens,
	}
}

// Add processes one streaming event. Protocol violations and stream error
// events are returned as errors; unparseable tool input is logged and the
// invocation dropped.
func (cbm *ContentBlockMerger) Add(event api.StreamingEvent) error {
	switch event.Type {
	case api.PingType:
		return nil

	case api.MessageStartType:
		if event.Message == nil {
			return errors.New("message_start event must have a message")
		}
		cbm.started = true
		cbm.messageID = event.Message.ID
		cbm.model = event.Message.Model
		cbm.usage = event.Message.Usage
		return nil

	case api.ContentBlockStartType:
		if event.ContentBlock == nil {
			return errors.New("content_block_start event must have a content block")
		}
		if event.Index < 0 {
			return errors.Errorf("content_block_start event has negative index %d", event.Index)
		}
		if _, exists := cbm.contentBlocks[event.Index]; exists {
			return errors.Errorf("content_block_start event with index %d already exists", event.Index)
		}
		cbm.contentBlocks[event.Index] = &contentBlockState{block: *event.ContentBlock}
		if event.ContentBlock.Text != "" {
			cbm.acc.AppendText(event.ContentBlock.Text)
		}
		return nil

	case api.ContentBlockDeltaType:
		if event.Delta == nil {
			return errors.New("content_block_delta event must have a delta")
		}
		cb, exists := cbm.contentBlocks[event.Index]
		if !exists {
			return errors.Errorf("content_block_delta event with index %d does not exist", event.Index)
		}
		switch event.Delta.Type {
		case api.TextDeltaType:
			cbm.acc.AppendText(event.Delta.Text)
		case api.InputJSONDeltaType:
			cb.partialJSON.WriteString(event.Delta.PartialJSON)
		default:
			log.Debug().Str("delta_type", string(event.Delta.Type)).Msg("Ignoring unknown delta type")
		}
		return nil

	case api.ContentBlockStopType:
		cb, exists := cbm.contentBlocks[event.Index]
		if !exists {
			return errors.Errorf("content_block_stop event with index %d does not exist", event.Index)
		}
		if cb.done {
			return errors.Errorf("content_block_stop event with index %d received twice", event.Index)
		}
		cb.done = true
		if cb.block.Type == api.ContentTypeToolUse {
			cbm.completeToolUse(event.Index, cb)
		}
		return nil

	case api.MessageDeltaType:
		if event.Delta != nil {
			cbm.acc.SetFinishCode(event.Delta.StopReason)
		}
		if event.Usage != nil {
			cbm.usage.OutputTokens = event.Usage.OutputTokens
			if event.Usage.InputTokens > 0 {
				cbm.usage.InputTokens = event.Usage.InputTokens
			}
		}
		return nil

	case api.MessageStopType:
		cbm.stopped = true
		return nil

	case api.ErrorType:
		pe := &engine.ProviderError{Provider: providerName}
		if event.Error != nil {
			pe.Type = event.Error.Type
			pe.Message = event.Error.Message
		} else {
			pe.Message = "stream error event without details"
		}
		return pe

	default:
		log.Debug().Str("event_type", string(event.Type)).Msg("Ignoring unknown streaming event")
		return nil
	}
}

func (cbm *ContentBlockMerger) completeToolUse(index int, cb *contentBlockState) {
	raw := cb.partialJSON.String()
	if strings.TrimSpace(raw) == "" {
		raw = string(cb.block.Input)
	}

	args, err := engine.ParseToolArguments(raw)
	if err != nil || cb.block.Name == "" {
		if err == nil {
			err = errors.New("tool use has no name")
		}
		log.Warn().
			Err(err).
			Int("index", index).
			Str("id", cb.block.ID).
			Str("name", cb.block.Name).
			Msg("dropping tool use with unparseable input")
		return
	}

	id := cb.block.ID
	if id == "" {
		id = fmt.Sprintf("call_%d", index)
	}
	cbm.acc.PutToolInvocation(index, conversation.ToolInvocation{
		ID:        id,
		Name:      cb.block.Name,
		Arguments: args,
	})
}
