package api

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// MessageRequest represents the Messages API request payload.
type MessageRequest struct {
	Model         string    `json:"model"`
	Messages      []Message `json:"messages"`
	MaxTokens     int       `json:"max_tokens"`
	Metadata      *Metadata `json:"metadata,omitempty"`
	StopSequences []string  `json:"stop_sequences,omitempty"`
	Stream        bool      `json:"stream"`
	System        string    `json:"system,omitempty"`
	Temperature   *float64  `json:"temperature,omitempty"`
	Tools         []Tool    `json:"tools,omitempty"`
	TopK          *int      `json:"top_k,omitempty"`
	TopP          *float64  `json:"top_p,omitempty"`
}

type Metadata struct {
	UserID string `json:"user_id,omitempty"`
}

type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

type Message struct {
	Role    string    `json:"role"`
	Content []Content `json:"content"`
}

func (m *Message) UnmarshalJSON(b []byte) error {
	var raw struct {
		Role    string            `json:"role"`
		Content []json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return errors.Wrap(err, "could not unmarshal message")
	}
	m.Role = raw.Role
	m.Content = make([]Content, 0, len(raw.Content))
	for _, rc := range raw.Content {
		c, err := unmarshalContent(rc)
		if err != nil {
			return err
		}
		m.Content = append(m.Content, c)
	}
	return nil
}

func (m Message) MarshalZerologObject(e *zerolog.Event) {
	e.Str("role", m.Role)
	e.Int("content_blocks", len(m.Content))
	types := make([]string, 0, len(m.Content))
	for _, c := range m.Content {
		types = append(types, string(c.Type()))
	}
	e.Strs("content_types", types)
}

// MessageResponse is the message object carried by message_start.
type MessageResponse struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Role         string         `json:"role"`
	Content      []ContentBlock `json:"content"`
	Model        string         `json:"model"`
	StopReason   string         `json:"stop_reason,omitempty"`
	StopSequence string         `json:"stop_sequence,omitempty"`
	Usage        Usage          `json:"usage"`
}

func (m MessageResponse) MarshalZerologObject(e *zerolog.Event) {
	e.Str("id", m.ID)
	e.Str("model", m.Model)
	if m.StopReason != "" {
		e.Str("stop_reason", m.StopReason)
	}
	e.Object("usage", m.Usage)
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

func (u Usage) MarshalZerologObject(e *zerolog.Event) {
	e.Int("input_tokens", u.InputTokens)
	e.Int("output_tokens", u.OutputTokens)
}

// ErrorResponse is the body of a non-200 response.
type ErrorResponse struct {
	Type  string `json:"type"`
	Error Error  `json:"error"`
}
