package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-go-golems/shopwire/pkg/security"
	"github.com/go-go-golems/shopwire/pkg/steps/ai/types"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const defaultAPIVersion = "2023-06-01"

// Client talks to the Messages API.
type Client struct {
	httpClient *http.Client
	apiKey     string
	APIVersion string
	BaseURL    string
	UserAgent  string
	urlOptions security.OutboundURLOptions
}

type ClientOption func(*Client)

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

func WithAPIVersion(version string) ClientOption {
	return func(c *Client) {
		if version != "" {
			c.APIVersion = version
		}
	}
}

func WithUserAgent(userAgent string) ClientOption {
	return func(c *Client) {
		c.UserAgent = userAgent
	}
}

func WithOutboundURLOptions(opts security.OutboundURLOptions) ClientOption {
	return func(c *Client) {
		c.urlOptions = opts
	}
}

func NewClient(apiKey string, baseURL string, options ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = security.DefaultBaseURL(types.ApiTypeClaude)
	}
	c := &Client{
		httpClient: &http.Client{},
		apiKey:     apiKey,
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIVersion: defaultAPIVersion,
	}
	for _, o := range options {
		o(c)
	}
	return c
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", c.APIVersion)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
}

// APIError is a non-200 answer from the Messages API.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("claude api error, status %d (%s): %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("claude api error, status %d: %s", e.StatusCode, e.Message)
}

// StreamMessage posts req with streaming enabled and returns the open event
// stream. The caller must Close it. Cancelling ctx aborts the body read.
func (c *Client) StreamMessage(ctx context.Context, req *MessageRequest) (*MessageStream, error) {
	if err := security.ValidateProviderBaseURL(types.ApiTypeClaude, c.BaseURL, c.urlOptions); err != nil {
		return nil, errors.Wrap(err, "invalid claude base URL")
	}

	req.Stream = true
	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "could not marshal message request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/messages", bytes.NewBuffer(body))
	if err != nil {
		return nil, errors.Wrap(err, "could not create request")
	}
	c.setHeaders(httpReq)

	log.Debug().
		Str("url", httpReq.URL.String()).
		Str("model", req.Model).
		Int("messages", len(req.Messages)).
		Int("tools", len(req.Tools)).
		Msg("Sending claude message request")

	// #nosec G107 -- URL is validated above with ValidateProviderBaseURL.
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		defer func(Body io.ReadCloser) {
			_ = Body.Close()
		}(resp.Body)
		return nil, readAPIError(resp)
	}

	return NewMessageStream(resp.Body), nil
}

func readAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		apiErr.Message = err.Error()
		return apiErr
	}
	var errorResp ErrorResponse
	if unmarshalErr := json.Unmarshal(respBody, &errorResp); unmarshalErr != nil || errorResp.Error.Message == "" {
		apiErr.Message = strings.TrimSpace(string(respBody))
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	apiErr.Type = errorResp.Error.Type
	apiErr.Message = errorResp.Error.Message
	return apiErr
}
