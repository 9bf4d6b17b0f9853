package api

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type StreamingEventType string

const (
	PingType              StreamingEventType = "ping"
	MessageStartType      StreamingEventType = "message_start"
	ContentBlockStartType StreamingEventType = "content_block_start"
	ContentBlockDeltaType StreamingEventType = "content_block_delta"
	ContentBlockStopType  StreamingEventType = "content_block_stop"
	MessageDeltaType      StreamingEventType = "message_delta"
	MessageStopType       StreamingEventType = "message_stop"
	ErrorType             StreamingEventType = "error"
)

type StreamingDeltaType string

const (
	TextDeltaType      StreamingDeltaType = "text_delta"
	InputJSONDeltaType StreamingDeltaType = "input_json_delta"
)

type StreamingEvent struct {
	Type         StreamingEventType `json:"type"`
	Message      *MessageResponse   `json:"message,omitempty"`
	Delta        *Delta             `json:"delta,omitempty"`
	Error        *Error             `json:"error,omitempty"`
	Index        int                `json:"index,omitempty"`
	Usage        *Usage             `json:"usage,omitempty"`
	ContentBlock *ContentBlock      `json:"content_block,omitempty"`
}

func (s StreamingEvent) MarshalZerologObject(e *zerolog.Event) {
	e.Str("type", string(s.Type))

	if s.Message != nil {
		e.Object("message", s.Message)
	}
	if s.Delta != nil {
		e.Object("delta", s.Delta)
	}
	if s.Error != nil {
		e.Object("error", s.Error)
	}
	e.Int("index", s.Index)
	if s.Usage != nil {
		e.Object("usage", s.Usage)
	}
	if s.ContentBlock != nil {
		e.Object("content_block", s.ContentBlock)
	}
}

var _ zerolog.LogObjectMarshaler = StreamingEvent{}

// ContentBlock is the block announced by content_block_start. Input is only
// set for tool_use blocks and is usually empty, the real input arriving as
// input_json_delta fragments.
type ContentBlock struct {
	Type  ContentType     `json:"type"`
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
	Text  string          `json:"text,omitempty"`
}

type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type Delta struct {
	Type         StreamingDeltaType `json:"type"`
	Text         string             `json:"text,omitempty"`
	PartialJSON  string             `json:"partial_json,omitempty"`
	StopReason   string             `json:"stop_reason,omitempty"`
	StopSequence string             `json:"stop_sequence,omitempty"`
}

func (cb ContentBlock) MarshalZerologObject(e *zerolog.Event) {
	e.Str("type", string(cb.Type))
	if cb.ID != "" {
		e.Str("id", cb.ID)
	}
	if cb.Name != "" {
		e.Str("name", cb.Name)
	}
	if len(cb.Input) > 0 {
		e.RawJSON("input", cb.Input)
	}
	if cb.Text != "" {
		e.Str("text", cb.Text)
	}
}

func (err Error) MarshalZerologObject(e *zerolog.Event) {
	e.Str("type", err.Type)
	e.Str("message", err.Message)
}

func (d Delta) MarshalZerologObject(e *zerolog.Event) {
	if d.Type != "" {
		e.Str("type", string(d.Type))
	}
	if d.Text != "" {
		e.Str("text", d.Text)
	}
	if d.PartialJSON != "" {
		e.Str("partial_json", d.PartialJSON)
	}
	if d.StopReason != "" {
		e.Str("stop_reason", d.StopReason)
	}
	if d.StopSequence != "" {
		e.Str("stop_sequence", d.StopSequence)
	}
}

// MessageStream reads server-sent events from a Messages API response body.
type MessageStream struct {
	body       io.ReadCloser
	reader     *bufio.Reader
	eventCount int
}

func NewMessageStream(body io.ReadCloser) *MessageStream {
	return &MessageStream{
		body:   body,
		reader: bufio.NewReader(body),
	}
}

// Recv returns the next event. It returns io.EOF once the body is exhausted.
// Read errors (including context cancellation of the request) are returned
// as they are.
func (s *MessageStream) Recv() (StreamingEvent, error) {
	var eventLines [][]byte
	for {
		line, err := s.reader.ReadBytes('\n')
		if err != nil && err != io.EOF {
			return StreamingEvent{}, err
		}
		atEOF := err == io.EOF

		if len(line) > 0 && len(bytes.TrimSpace(line)) > 0 {
			eventLines = append(eventLines, line)
		}

		blank := len(bytes.TrimSpace(line)) == 0
		if (blank || atEOF) && len(eventLines) > 0 {
			var event StreamingEvent
			ok, parseErr := parseSSEEvent(eventLines, &event)
			if parseErr != nil {
				// a dropped content_block_start surfaces later as an unknown block index
				rawLen := 0
				for _, l := range eventLines {
					rawLen += len(l)
				}
				log.Warn().
					Err(parseErr).
					Int("raw_len", rawLen).
					Int("event_number", s.eventCount+1).
					Msg("Dropping unparseable SSE event")
			}
			eventLines = eventLines[:0]
			if parseErr == nil && ok {
				s.eventCount++
				log.Trace().
					Object("event", event).
					Int("event_number", s.eventCount).
					Msg("Parsed streaming event")
				return event, nil
			}
		}

		if atEOF {
			log.Debug().Int("total_events_processed", s.eventCount).Msg("Streaming reader finished")
			return StreamingEvent{}, io.EOF
		}
	}
}

func (s *MessageStream) Close() error {
	return s.body.Close()
}

// parseSSEEvent decodes the data lines of one SSE event. Events without data
// (comments, bare event lines) report ok == false.
func parseSSEEvent(lines [][]byte, event *StreamingEvent) (bool, error) {
	eventData := ""
	for _, line := range lines {
		line = bytes.TrimRight(line, "\r\n")

		field, value, found := bytes.Cut(line, []byte(":"))
		if !found {
			continue
		}
		value = bytes.TrimPrefix(value, []byte(" "))
		if string(field) == "data" {
			eventData += string(value) + "\n"
		}
	}

	eventData = strings.TrimSuffix(eventData, "\n")
	if eventData == "" {
		return false, nil
	}

	if err := json.Unmarshal([]byte(eventData), event); err != nil {
		return false, errors.Wrap(err, "could not unmarshal streaming event")
	}

	return true, nil
}
