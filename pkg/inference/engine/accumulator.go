package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/go-go-golems/shopwire/pkg/conversation"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ToolCallSlot collects the fragments of one streamed tool call. Name and
// Arguments only ever grow.
type ToolCallSlot struct {
	ID        string
	Name      string
	Arguments strings.Builder
}

// Accumulator rebuilds one assistant message from a provider stream.
//
// Provider front-ends feed it text deltas, tool call fragments (keyed by the
// provider's call index) or complete invocations, and the latest finish code.
// Finalize assembles the message and dispatches tool invocations. An
// Accumulator belongs to a single turn and is not safe for concurrent use.
type Accumulator struct {
	handlers Handlers

	text        strings.Builder
	slots       map[int]*ToolCallSlot
	invocations map[int]conversation.ToolInvocation
	finishCode  string
	finalized   bool
}

func NewAccumulator(handlers Handlers) *Accumulator {
	return &Accumulator{
		handlers:    handlers,
		slots:       map[int]*ToolCallSlot{},
		invocations: map[int]conversation.ToolInvocation{},
	}
}

// AppendText adds a text fragment. Non-empty fragments are forwarded to
// OnText and OnContentBlock before AppendText returns.
func (a *Accumulator) AppendText(fragment string) {
	if fragment == "" {
		return
	}
	a.text.WriteString(fragment)
	if a.handlers.OnText != nil {
		a.handlers.OnText(fragment)
	}
	if a.handlers.OnContentBlock != nil {
		a.handlers.OnContentBlock(conversation.Text{Value: fragment})
	}
}

// Text returns the text accumulated so far.
func (a *Accumulator) Text() string {
	return a.text.String()
}

// AppendToolCallFragment merges a partial tool call into the slot for index.
// The first fragment for an index opens the slot. Later fragments append to
// the name and arguments; the id is taken from the first fragment carrying one.
func (a *Accumulator) AppendToolCallFragment(index int, id string, name string, arguments string) {
	slot, ok := a.slots[index]
	if !ok {
		slot = &ToolCallSlot{}
		a.slots[index] = slot
		log.Trace().Int("index", index).Str("id", id).Str("name", name).Msg("opened tool call slot")
	}
	if slot.ID == "" && id != "" {
		slot.ID = id
	}
	slot.Name += name
	slot.Arguments.WriteString(arguments)
}

// PutToolInvocation records an invocation whose arguments are already parsed.
func (a *Accumulator) PutToolInvocation(index int, invocation conversation.ToolInvocation) {
	a.invocations[index] = invocation
}

// SetFinishCode records the provider's finish code. Empty codes are ignored,
// so the last non-empty code wins.
func (a *Accumulator) SetFinishCode(code string) {
	if code == "" {
		return
	}
	a.finishCode = code
}

func (a *Accumulator) FinishCode() string {
	return a.finishCode
}

// Finalize assembles the assistant message: at most one text block followed
// by the tool invocations in ascending index order. overrideCode, when set,
// replaces the recorded finish code.
//
// Tool calls whose arguments are not a JSON object are logged and dropped.
// OnMessage fires once, then OnToolUse once per invocation, each call awaited
// before the next. The first OnToolUse error stops the dispatch and is
// returned together with the message.
func (a *Accumulator) Finalize(ctx context.Context, overrideCode *string) (*conversation.Message, string, error) {
	if a.finalized {
		return nil, "", errors.New("accumulator already finalized")
	}
	a.finalized = true

	code := a.finishCode
	if overrideCode != nil {
		code = *overrideCode
	}

	blocks := []conversation.ContentBlock{}
	if text := a.text.String(); text != "" {
		blocks = append(blocks, conversation.Text{Value: text})
	}

	invocations := a.collectInvocations()
	for _, inv := range invocations {
		blocks = append(blocks, inv)
	}

	msg := conversation.NewBlocksMessage(conversation.RoleAssistant, blocks)
	log.Debug().
		Object("message", msg).
		Str("finish_code", code).
		Int("dropped_tool_calls", len(a.slots)+len(a.invocations)-len(invocations)).
		Msg("finalized assistant message")

	if a.handlers.OnMessage != nil {
		a.handlers.OnMessage(msg)
	}

	if a.handlers.OnToolUse != nil {
		for _, inv := range invocations {
			if err := ctx.Err(); err != nil {
				return msg, code, err
			}
			if err := a.handlers.OnToolUse(ctx, inv); err != nil {
				return msg, code, errors.Wrapf(err, "tool handler failed for %s (%s)", inv.Name, inv.ID)
			}
		}
	}

	return msg, code, nil
}

func (a *Accumulator) collectInvocations() []conversation.ToolInvocation {
	indices := make([]int, 0, len(a.slots)+len(a.invocations))
	for idx := range a.slots {
		indices = append(indices, idx)
	}
	for idx := range a.invocations {
		if _, ok := a.slots[idx]; !ok {
			indices = append(indices, idx)
		}
	}
	sort.Ints(indices)

	ret := make([]conversation.ToolInvocation, 0, len(indices))
	for _, idx := range indices {
		if inv, ok := a.invocations[idx]; ok {
			ret = append(ret, inv)
			continue
		}
		inv, err := a.slots[idx].toInvocation(idx)
		if err != nil {
			log.Warn().
				Err(err).
				Int("index", idx).
				Str("name", a.slots[idx].Name).
				Msg("dropping tool call with unparseable arguments")
			continue
		}
		ret = append(ret, inv)
	}
	return ret
}

func (s *ToolCallSlot) toInvocation(index int) (conversation.ToolInvocation, error) {
	if s.Name == "" {
		return conversation.ToolInvocation{}, errors.New("tool call has no name")
	}
	args, err := ParseToolArguments(s.Arguments.String())
	if err != nil {
		return conversation.ToolInvocation{}, err
	}
	id := s.ID
	if id == "" {
		id = fmt.Sprintf("call_%d", index)
	}
	return conversation.ToolInvocation{ID: id, Name: s.Name, Arguments: args}, nil
}

// ParseToolArguments parses raw tool arguments into a JSON object.
// Whitespace-only input is the empty object.
func ParseToolArguments(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, errors.Wrap(err, "tool arguments are not a JSON object")
	}
	if args == nil {
		return nil, errors.New("tool arguments are null")
	}
	return args, nil
}
