package conversation

import (
	"encoding/json"
	"fmt"
	"strings"
)

// NormalizeContent turns any content value into a block sequence.
//
// Strings, single blocks and block slices are taken as they are. Raw JSON and
// decoded JSON/YAML values (maps and slices) are matched against the known
// block shapes. Anything that cannot be recognized ends up as a text block
// holding its JSON rendering, so the result is never nil and never an error.
func NormalizeContent(raw any) []ContentBlock {
	switch v := raw.(type) {
	case nil:
		return []ContentBlock{}
	case string:
		return []ContentBlock{Text{Value: v}}
	case *string:
		if v == nil {
			return []ContentBlock{}
		}
		return []ContentBlock{Text{Value: *v}}
	case ContentBlock:
		return []ContentBlock{v}
	case []ContentBlock:
		out := make([]ContentBlock, 0, len(v))
		for _, b := range v {
			if b != nil {
				out = append(out, b)
			}
		}
		return out
	case json.RawMessage:
		return normalizeJSON(v)
	case []byte:
		return normalizeJSON(v)
	case map[string]any:
		if b, ok := blockFromMap(v); ok {
			return []ContentBlock{b}
		}
		return []ContentBlock{Text{Value: stringify(v)}}
	case []map[string]any:
		out := make([]ContentBlock, 0, len(v))
		for _, m := range v {
			out = append(out, normalizeElement(m))
		}
		return out
	case []any:
		out := make([]ContentBlock, 0, len(v))
		for _, e := range v {
			out = append(out, normalizeElement(e))
		}
		return out
	default:
		return []ContentBlock{Text{Value: stringify(v)}}
	}
}

// IsToolResultOnly reports whether blocks is non-empty and holds nothing but
// tool results.
func IsToolResultOnly(blocks []ContentBlock) bool {
	if len(blocks) == 0 {
		return false
	}
	for _, b := range blocks {
		if _, ok := b.(ToolResult); !ok {
			return false
		}
	}
	return true
}

// HasToolResult reports whether at least one block is a tool result.
func HasToolResult(blocks []ContentBlock) bool {
	for _, b := range blocks {
		if _, ok := b.(ToolResult); ok {
			return true
		}
	}
	return false
}

func normalizeElement(e any) ContentBlock {
	switch v := e.(type) {
	case string:
		return Text{Value: v}
	case ContentBlock:
		return v
	case map[string]any:
		if b, ok := blockFromMap(v); ok {
			return b
		}
	}
	return Text{Value: stringify(e)}
}

func normalizeJSON(b []byte) []ContentBlock {
	if len(strings.TrimSpace(string(b))) == 0 {
		return []ContentBlock{}
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return []ContentBlock{Text{Value: string(b)}}
	}
	return NormalizeContent(v)
}

func blockFromMap(m map[string]any) (ContentBlock, bool) {
	typ, _ := m["type"].(string)
	switch typ {
	case "text":
		text, ok := m["text"].(string)
		if !ok {
			return nil, false
		}
		return Text{Value: text}, true

	case "tool_use", "tool_invocation", "tool_call", "function":
		id := stringField(m, "id")
		name := stringField(m, "name")
		args, hasArgs := m["input"]
		if !hasArgs {
			args, hasArgs = m["arguments"]
		}
		// chat-completion shape: {"type":"function","function":{"name":..,"arguments":".."}}
		if fn, ok := m["function"].(map[string]any); ok {
			if name == "" {
				name = stringField(fn, "name")
			}
			if !hasArgs {
				args = fn["arguments"]
			}
		}
		if name == "" {
			return nil, false
		}
		return ToolInvocation{ID: id, Name: name, Arguments: argumentsFromAny(args)}, true

	case "tool_result":
		id := stringField(m, "tool_use_id")
		if id == "" {
			id = stringField(m, "invocation_id")
		}
		if id == "" {
			id = stringField(m, "tool_call_id")
		}
		payload, ok := m["content"]
		if !ok {
			payload = m["payload"]
		}
		return ToolResult{InvocationID: id, Payload: payload}, true

	case "image", "image_url", "image_reference":
		url := stringField(m, "url")
		if url == "" {
			switch iu := m["image_url"].(type) {
			case string:
				url = iu
			case map[string]any:
				url = stringField(iu, "url")
			}
		}
		if url == "" {
			if src, ok := m["source"].(map[string]any); ok {
				url = stringField(src, "url")
			}
		}
		if url == "" {
			return nil, false
		}
		return ImageReference{URL: url}, true
	}

	return nil, false
}

// argumentsFromAny coerces tool arguments into a JSON object. Strings are parsed
// as JSON; values that are not objects are kept under the "input" key.
func argumentsFromAny(v any) map[string]any {
	switch tv := v.(type) {
	case nil:
		return map[string]any{}
	case map[string]any:
		return tv
	case string:
		if strings.TrimSpace(tv) == "" {
			return map[string]any{}
		}
		var obj map[string]any
		if err := json.Unmarshal([]byte(tv), &obj); err == nil && obj != nil {
			return obj
		}
		return map[string]any{"input": tv}
	case json.RawMessage:
		return argumentsFromAny(string(tv))
	case []byte:
		return argumentsFromAny(string(tv))
	default:
		return map[string]any{"input": tv}
	}
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

func stringify(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
