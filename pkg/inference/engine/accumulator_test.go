package engine

import (
	"context"
	"testing"

	"github.com/go-go-golems/shopwire/pkg/conversation"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccumulatorJoinsTextDeltas(t *testing.T) {
	var deltas []string
	var blocks []conversation.ContentBlock
	acc := NewAccumulator(Handlers{
		OnText:         func(d string) { deltas = append(deltas, d) },
		OnContentBlock: func(b conversation.ContentBlock) { blocks = append(blocks, b) },
	})

	acc.AppendText("Hel")
	acc.AppendText("")
	acc.AppendText("lo")
	acc.SetFinishCode("stop")

	msg, code, err := acc.Finalize(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "stop", code)
	assert.Equal(t, conversation.RoleAssistant, msg.Role)
	assert.Equal(t, []conversation.ContentBlock{conversation.Text{Value: "Hello"}}, msg.Blocks)
	assert.Equal(t, []string{"Hel", "lo"}, deltas)
	assert.Equal(t, []conversation.ContentBlock{
		conversation.Text{Value: "Hel"},
		conversation.Text{Value: "lo"},
	}, blocks)
}

func TestAccumulatorMergesToolCallFragments(t *testing.T) {
	acc := NewAccumulator(Handlers{})
	acc.AppendToolCallFragment(0, "call_1", "search", "")
	acc.AppendToolCallFragment(0, "", "", `{"q":`)
	acc.AppendToolCallFragment(0, "", "", `"ball"}`)

	msg, _, err := acc.Finalize(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, msg.Blocks, 1)
	assert.Equal(t, conversation.ToolInvocation{
		ID:        "call_1",
		Name:      "search",
		Arguments: map[string]any{"q": "ball"},
	}, msg.Blocks[0])
}

func TestAccumulatorDropsBrokenArgumentsKeepsSiblings(t *testing.T) {
	acc := NewAccumulator(Handlers{})
	acc.AppendToolCallFragment(1, "b", "lookup", `{"sku":"A-1"}`)
	acc.AppendToolCallFragment(0, "a", "search", `{"q":`)
	acc.AppendText("checking")

	msg, _, err := acc.Finalize(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, msg.Blocks, 2)
	assert.Equal(t, conversation.Text{Value: "checking"}, msg.Blocks[0])
	inv, ok := msg.Blocks[1].(conversation.ToolInvocation)
	require.True(t, ok)
	assert.Equal(t, "lookup", inv.Name)
}

func TestAccumulatorWhitespaceArgumentsAreEmptyObject(t *testing.T) {
	acc := NewAccumulator(Handlers{})
	acc.AppendToolCallFragment(0, "a", "list_categories", "  \n")

	msg, _, err := acc.Finalize(context.Background(), nil)
	require.NoError(t, err)
	invs := msg.ToolInvocations()
	require.Len(t, invs, 1)
	assert.Equal(t, map[string]any{}, invs[0].Arguments)
}

func TestAccumulatorNonObjectArgumentsDropped(t *testing.T) {
	acc := NewAccumulator(Handlers{})
	acc.AppendToolCallFragment(0, "a", "search", `["q"]`)
	acc.AppendToolCallFragment(1, "b", "search", `null`)

	msg, _, err := acc.Finalize(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, msg.Blocks)
}

func TestAccumulatorDispatchesToolUseInIndexOrder(t *testing.T) {
	var order []string
	var messages int
	acc := NewAccumulator(Handlers{
		OnMessage: func(msg *conversation.Message) {
			messages++
			assert.Empty(t, order, "OnMessage must fire before tool dispatch")
		},
		OnToolUse: func(ctx context.Context, inv conversation.ToolInvocation) error {
			order = append(order, inv.ID)
			return nil
		},
	})
	acc.PutToolInvocation(2, conversation.ToolInvocation{ID: "c", Name: "x", Arguments: map[string]any{}})
	acc.AppendToolCallFragment(0, "a", "x", "{}")
	acc.AppendToolCallFragment(1, "b", "x", "{}")

	_, _, err := acc.Finalize(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.Equal(t, 1, messages)
}

func TestAccumulatorToolUseErrorStopsDispatch(t *testing.T) {
	var calls []string
	acc := NewAccumulator(Handlers{
		OnToolUse: func(ctx context.Context, inv conversation.ToolInvocation) error {
			calls = append(calls, inv.ID)
			if inv.ID == "a" {
				return errors.New("executor down")
			}
			return nil
		},
	})
	acc.AppendToolCallFragment(0, "a", "x", "{}")
	acc.AppendToolCallFragment(1, "b", "x", "{}")

	msg, _, err := acc.Finalize(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "executor down")
	require.NotNil(t, msg)
	assert.Len(t, msg.ToolInvocations(), 2)
	assert.Equal(t, []string{"a"}, calls)
}

func TestAccumulatorEmptyStream(t *testing.T) {
	acc := NewAccumulator(Handlers{})
	msg, code, err := acc.Finalize(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "", code)
	assert.Empty(t, msg.Blocks)
	assert.Equal(t, "", msg.TextContent())
}

func TestAccumulatorFinishCodeLastNonEmptyWinsAndOverride(t *testing.T) {
	acc := NewAccumulator(Handlers{})
	acc.SetFinishCode("tool_calls")
	acc.SetFinishCode("")
	assert.Equal(t, "tool_calls", acc.FinishCode())

	override := "length"
	_, code, err := acc.Finalize(context.Background(), &override)
	require.NoError(t, err)
	assert.Equal(t, "length", code)
}

func TestAccumulatorFinalizeTwiceFails(t *testing.T) {
	acc := NewAccumulator(Handlers{})
	_, _, err := acc.Finalize(context.Background(), nil)
	require.NoError(t, err)
	_, _, err = acc.Finalize(context.Background(), nil)
	require.Error(t, err)
}

func TestAccumulatorMissingIDIsDerivedFromIndex(t *testing.T) {
	acc := NewAccumulator(Handlers{})
	acc.AppendToolCallFragment(3, "", "search", `{"q":"x"}`)
	msg, _, err := acc.Finalize(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "call_3", msg.ToolInvocations()[0].ID)
}
