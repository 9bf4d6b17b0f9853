package conversation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
	RoleTool      Role = "tool"
)

// Message is one entry of a provider-neutral conversation.
//
// Content is either plain text (Blocks == nil) or an ordered list of blocks.
// Messages are treated as immutable once built; adapters only read them.
type Message struct {
	ID     uuid.UUID
	Role   Role
	Text   string
	Blocks []ContentBlock
}

type MessageOption func(*Message)

func WithID(id uuid.UUID) MessageOption {
	return func(m *Message) {
		m.ID = id
	}
}

func NewTextMessage(role Role, text string, options ...MessageOption) *Message {
	ret := &Message{
		ID:   uuid.New(),
		Role: role,
		Text: text,
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

func NewBlocksMessage(role Role, blocks []ContentBlock, options ...MessageOption) *Message {
	if blocks == nil {
		blocks = []ContentBlock{}
	}
	ret := &Message{
		ID:     uuid.New(),
		Role:   role,
		Blocks: blocks,
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// IsText reports whether the message carries plain text rather than blocks.
func (m *Message) IsText() bool {
	return m.Blocks == nil
}

// ContentBlocks returns the message content as a block sequence. Plain text
// yields a single text block, or nothing when the text is empty.
func (m *Message) ContentBlocks() []ContentBlock {
	if m.Blocks != nil {
		return m.Blocks
	}
	if m.Text == "" {
		return []ContentBlock{}
	}
	return []ContentBlock{Text{Value: m.Text}}
}

// TextContent concatenates all text blocks, separated by newlines.
func (m *Message) TextContent() string {
	if m.Blocks == nil {
		return m.Text
	}
	parts := []string{}
	for _, b := range m.Blocks {
		if t, ok := b.(Text); ok && t.Value != "" {
			parts = append(parts, t.Value)
		}
	}
	return strings.Join(parts, "\n")
}

func (m *Message) ToolInvocations() []ToolInvocation {
	ret := []ToolInvocation{}
	for _, b := range m.Blocks {
		if inv, ok := b.(ToolInvocation); ok {
			ret = append(ret, inv)
		}
	}
	return ret
}

func (m *Message) ToolResults() []ToolResult {
	ret := []ToolResult{}
	for _, b := range m.Blocks {
		if r, ok := b.(ToolResult); ok {
			ret = append(ret, r)
		}
	}
	return ret
}

func (m *Message) Images() []ImageReference {
	ret := []ImageReference{}
	for _, b := range m.Blocks {
		if img, ok := b.(ImageReference); ok {
			ret = append(ret, img)
		}
	}
	return ret
}

func (m *Message) String() string {
	if m.Blocks == nil {
		return fmt.Sprintf("[%s]: %s", m.Role, m.Text)
	}
	parts := make([]string, 0, len(m.Blocks))
	for _, b := range m.Blocks {
		parts = append(parts, b.String())
	}
	return fmt.Sprintf("[%s]: %s", m.Role, strings.Join(parts, " "))
}

func (m *Message) MarshalZerologObject(e *zerolog.Event) {
	e.Str("role", string(m.Role))
	if m.Blocks == nil {
		e.Int("text_len", len(m.Text))
		return
	}
	e.Int("blocks", len(m.Blocks))
	e.Int("tool_invocations", len(m.ToolInvocations()))
	e.Int("tool_results", len(m.ToolResults()))
}

type messageJSON struct {
	Role    Role            `json:"role"`
	Content json.RawMessage `json:"content"`
}

func (m *Message) MarshalJSON() ([]byte, error) {
	var content []byte
	var err error
	if m.Blocks == nil {
		content, err = json.Marshal(m.Text)
	} else {
		content, err = json.Marshal(m.Blocks)
	}
	if err != nil {
		return nil, errors.Wrap(err, "could not marshal message content")
	}
	return json.Marshal(messageJSON{Role: m.Role, Content: content})
}

// UnmarshalJSON accepts content as a string or as anything NormalizeContent
// understands. Malformed content degrades to text instead of failing.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw messageJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.Wrap(err, "could not unmarshal message")
	}
	m.Role = raw.Role
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}

	var text string
	if err := json.Unmarshal(raw.Content, &text); err == nil {
		m.Text = text
		m.Blocks = nil
		return nil
	}
	m.Text = ""
	m.Blocks = NormalizeContent(raw.Content)
	return nil
}

type Conversation []*Message

// Transcript renders the conversation as "[role]: text" lines. Tool
// invocations and results are summarized by their String form.
func (messages Conversation) Transcript() string {
	var sb strings.Builder
	for _, message := range messages {
		if message == nil {
			continue
		}
		text := message.TextContent()
		for _, b := range message.ContentBlocks() {
			switch b.(type) {
			case ToolInvocation, ToolResult:
				if text != "" {
					text += " "
				}
				text += b.String()
			}
		}
		_, _ = fmt.Fprintf(&sb, "[%s]: %s\n", message.Role, text)
	}
	return sb.String()
}
