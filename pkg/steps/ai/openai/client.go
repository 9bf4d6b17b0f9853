package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-go-golems/shopwire/pkg/security"
	"github.com/go-go-golems/shopwire/pkg/steps"
	"github.com/go-go-golems/shopwire/pkg/steps/ai/settings"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	go_openai "github.com/sashabaranov/go-openai"
)

// ChatStream yields streamed chunks until io.EOF.
type ChatStream interface {
	Recv() (go_openai.ChatCompletionStreamResponse, error)
	Close() error
}

// ChatStreamer opens a streaming chat completion call.
type ChatStreamer interface {
	CreateChatCompletionStream(ctx context.Context, req go_openai.ChatCompletionRequest) (ChatStream, error)
}

// ClientStreamer adapts *go_openai.Client to ChatStreamer.
type ClientStreamer struct {
	Client *go_openai.Client
}

func (c *ClientStreamer) CreateChatCompletionStream(ctx context.Context, req go_openai.ChatCompletionRequest) (ChatStream, error) {
	stream, err := c.Client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, err
	}
	return stream, nil
}

var _ ChatStreamer = (*ClientStreamer)(nil)

// MakeClient builds a go-openai client for the configured api type. The key
// comes from the openai settings or the "<api-type>-api-key" config value.
func MakeClient(s *settings.StepSettings) (*go_openai.Client, error) {
	if s == nil || s.Client == nil {
		return nil, steps.ErrMissingClientSettings
	}
	if s.OpenAI == nil {
		return nil, errors.Wrap(steps.ErrMissingProviderSettings, "no openai settings")
	}
	apiType := s.Chat.GetApiType()
	if !apiType.IsOpenAICompatible() {
		return nil, errors.Errorf("api type %s does not speak the chat completion protocol", apiType)
	}

	apiKey := s.OpenAI.GetAPIKey(string(apiType))
	if apiKey == "" {
		return nil, errors.Wrapf(steps.ErrMissingClientAPIKey, "no API key for %s", apiType)
	}

	config := go_openai.DefaultConfig(apiKey)
	baseURL := s.OpenAI.GetBaseURL()
	if baseURL == "" {
		baseURL = security.DefaultBaseURL(apiType)
	}
	if baseURL != "" {
		if err := security.ValidateProviderBaseURL(apiType, baseURL, s.Client.OutboundURLOptions()); err != nil {
			return nil, errors.Wrap(err, "invalid openai base url")
		}
		config.BaseURL = baseURL
	}
	if s.Client.Organization != nil {
		config.OrgID = *s.Client.Organization
	}
	httpClient := *s.Client.GetHTTPClient()
	base := httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	httpClient.Transport = &toolCallContentTransport{base: base}
	config.HTTPClient = &httpClient

	return go_openai.NewClientWithConfig(config), nil
}

// toolCallContentTransport sends "content": null for assistant messages that
// only carry tool calls. go-openai always encodes the content string, and some
// compatible servers reject an empty one next to tool_calls.
type toolCallContentTransport struct {
	base http.RoundTripper
}

func (t *toolCallContentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodPost || req.Body == nil || !strings.HasSuffix(req.URL.Path, "/chat/completions") {
		return t.base.RoundTrip(req)
	}

	body, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, errors.Wrap(err, "could not read chat completion request")
	}
	rewritten, err := NullToolCallContent(body)
	if err != nil {
		log.Warn().Err(err).Int("body_len", len(body)).Msg("could not rewrite tool call content, sending request as is")
		rewritten = body
	}

	out := req.Clone(req.Context())
	out.Body = io.NopCloser(bytes.NewReader(rewritten))
	out.ContentLength = int64(len(rewritten))
	out.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(rewritten)), nil
	}
	return t.base.RoundTrip(out)
}

// NullToolCallContent rewrites an encoded chat completion request so that
// assistant messages with tool_calls and empty content carry "content": null.
// Other messages are left untouched.
func NullToolCallContent(body []byte) ([]byte, error) {
	var req map[string]json.RawMessage
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, errors.Wrap(err, "could not decode chat completion request")
	}
	raw, ok := req["messages"]
	if !ok {
		return body, nil
	}
	var messages []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &messages); err != nil {
		return nil, errors.Wrap(err, "could not decode chat completion messages")
	}

	changed := false
	for _, m := range messages {
		if string(m["role"]) != `"assistant"` {
			continue
		}
		if _, ok := m["tool_calls"]; !ok {
			continue
		}
		if content, ok := m["content"]; ok && string(content) != `""` {
			continue
		}
		m["content"] = json.RawMessage("null")
		changed = true
	}
	if !changed {
		return body, nil
	}

	encoded, err := json.Marshal(messages)
	if err != nil {
		return nil, err
	}
	req["messages"] = encoded
	return json.Marshal(req)
}
