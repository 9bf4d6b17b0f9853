package api

import (
	"encoding/json"

	"github.com/pkg/errors"
)

type ContentType string

const (
	ContentTypeText       ContentType = "text"
	ContentTypeImage      ContentType = "image"
	ContentTypeToolUse    ContentType = "tool_use"
	ContentTypeToolResult ContentType = "tool_result"
)

type Content interface {
	Type() ContentType
}

type BaseContent struct {
	Type_ ContentType `json:"type"`
}

type TextContent struct {
	BaseContent
	Text string `json:"text"`
}

func (t TextContent) Type() ContentType {
	return ContentTypeText
}

type ImageContent struct {
	BaseContent
	Source ImageSource `json:"source"`
}

func (i ImageContent) Type() ContentType {
	return ContentTypeImage
}

// ImageSource is either {"type":"url","url":...} or
// {"type":"base64","media_type":...,"data":...}.
type ImageSource struct {
	Type      string `json:"type"`
	URL       string `json:"url,omitempty"`
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
}

type ToolUseContent struct {
	BaseContent
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

func (t ToolUseContent) Type() ContentType {
	return ContentTypeToolUse
}

type ToolResultContent struct {
	BaseContent
	ToolUseID string `json:"tool_use_id"`
	Content   string `json:"content"`
}

func (t ToolResultContent) Type() ContentType {
	return ContentTypeToolResult
}

func NewTextContent(text string) Content {
	return TextContent{BaseContent: BaseContent{Type_: ContentTypeText}, Text: text}
}

func NewImageURLContent(url string) Content {
	return ImageContent{
		BaseContent: BaseContent{Type_: ContentTypeImage},
		Source: ImageSource{
			Type: "url",
			URL:  url,
		},
	}
}

func NewImageContent(mediaType, base64Data string) Content {
	return ImageContent{
		BaseContent: BaseContent{Type_: ContentTypeImage},
		Source: ImageSource{
			Type:      "base64",
			MediaType: mediaType,
			Data:      base64Data,
		},
	}
}

func NewToolUseContent(toolID, toolName string, toolInput json.RawMessage) Content {
	return ToolUseContent{
		BaseContent: BaseContent{Type_: ContentTypeToolUse},
		ID:          toolID,
		Name:        toolName,
		Input:       toolInput,
	}
}

func NewToolResultContent(toolUseID, content string) Content {
	return ToolResultContent{
		BaseContent: BaseContent{Type_: ContentTypeToolResult},
		ToolUseID:   toolUseID,
		Content:     content,
	}
}

func unmarshalContent(b []byte) (Content, error) {
	var base BaseContent
	if err := json.Unmarshal(b, &base); err != nil {
		return nil, errors.Wrap(err, "could not read content type")
	}

	switch base.Type_ {
	case ContentTypeText:
		var c TextContent
		err := json.Unmarshal(b, &c)
		return c, err
	case ContentTypeImage:
		var c ImageContent
		err := json.Unmarshal(b, &c)
		return c, err
	case ContentTypeToolUse:
		var c ToolUseContent
		err := json.Unmarshal(b, &c)
		return c, err
	case ContentTypeToolResult:
		var c ToolResultContent
		err := json.Unmarshal(b, &c)
		return c, err
	default:
		return nil, errors.Errorf("unknown content type %q", base.Type_)
	}
}
