package conversation

import (
	"encoding/json"
	"fmt"
)

type ContentType string

const (
	ContentTypeText       ContentType = "text"
	ContentTypeToolUse    ContentType = "tool_use"
	ContentTypeToolResult ContentType = "tool_result"
	ContentTypeImage      ContentType = "image"
)

// ContentBlock is one unit of a message's structured content.
//
// The set of implementations is closed: Text, ToolInvocation, ToolResult and
// ImageReference. Code switching over blocks should always handle all four.
type ContentBlock interface {
	ContentType() ContentType
	String() string
	isContentBlock()
}

type Text struct {
	Value string
}

func (t Text) ContentType() ContentType { return ContentTypeText }
func (t Text) String() string           { return t.Value }
func (Text) isContentBlock()            {}

func (t Text) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type ContentType `json:"type"`
		Text string      `json:"text"`
	}{ContentTypeText, t.Value})
}

// ToolInvocation is an assistant's request to call a named tool.
type ToolInvocation struct {
	ID        string
	Name      string
	Arguments map[string]any
}

func (t ToolInvocation) ContentType() ContentType { return ContentTypeToolUse }

func (t ToolInvocation) String() string {
	return fmt.Sprintf("ToolInvocation{ID: %s, Name: %s, Arguments: %s}", t.ID, t.Name, t.ArgumentsJSON())
}

func (ToolInvocation) isContentBlock() {}

// ArgumentsJSON renders the arguments as a JSON object string. Nil arguments
// render as "{}".
func (t ToolInvocation) ArgumentsJSON() string {
	if t.Arguments == nil {
		return "{}"
	}
	b, err := json.Marshal(t.Arguments)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func (t ToolInvocation) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type  ContentType     `json:"type"`
		ID    string          `json:"id"`
		Name  string          `json:"name"`
		Input json.RawMessage `json:"input"`
	}{ContentTypeToolUse, t.ID, t.Name, json.RawMessage(t.ArgumentsJSON())})
}

// ToolResult carries the outcome of a tool invocation. Payload is either a
// string or any JSON-encodable value.
type ToolResult struct {
	InvocationID string
	Payload      any
}

func (t ToolResult) ContentType() ContentType { return ContentTypeToolResult }

func (t ToolResult) String() string {
	return fmt.Sprintf("ToolResult{InvocationID: %s, Payload: %s}", t.InvocationID, t.PayloadString())
}

func (ToolResult) isContentBlock() {}

// PayloadString returns string payloads unchanged and JSON-encodes anything else.
func (t ToolResult) PayloadString() string {
	switch v := t.Payload.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case json.RawMessage:
		return string(v)
	default:
		return stringify(v)
	}
}

func (t ToolResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type      ContentType `json:"type"`
		ToolUseID string      `json:"tool_use_id"`
		Content   any         `json:"content"`
	}{ContentTypeToolResult, t.InvocationID, t.Payload})
}

type ImageReference struct {
	URL string
}

func (i ImageReference) ContentType() ContentType { return ContentTypeImage }
func (i ImageReference) String() string           { return fmt.Sprintf("ImageReference{URL: %s}", i.URL) }
func (ImageReference) isContentBlock()            {}

func (i ImageReference) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type ContentType `json:"type"`
		URL  string      `json:"url"`
	}{ContentTypeImage, i.URL})
}

var (
	_ ContentBlock = Text{}
	_ ContentBlock = ToolInvocation{}
	_ ContentBlock = ToolResult{}
	_ ContentBlock = ImageReference{}
)
