package security

import (
	"testing"

	"github.com/go-go-golems/shopwire/pkg/steps/ai/types"
	"github.com/stretchr/testify/assert"
)

func TestValidateProviderBaseURL(t *testing.T) {
	tests := []struct {
		name    string
		apiType types.ApiType
		url     string
		opts    OutboundURLOptions
		wantErr string
	}{
		{name: "claude public api", apiType: types.ApiTypeClaude, url: "https://api.anthropic.com/v1"},
		{name: "openai public api", apiType: types.ApiTypeOpenAI, url: "https://api.openai.com/v1"},
		{name: "custom gateway", apiType: types.ApiTypeOpenAI, url: "https://llm-gateway.example.com/v1"},
		{name: "plain http to provider", apiType: types.ApiTypeOpenAI, url: "http://api.openai.com/v1", wantErr: "plain http"},
		{name: "plain http allowed", apiType: types.ApiTypeOpenAI, url: "http://api.openai.com/v1", opts: OutboundURLOptions{AllowHTTP: true}},
		{name: "unsupported scheme", apiType: types.ApiTypeMistral, url: "ftp://api.mistral.ai", wantErr: "unsupported scheme"},
		{name: "missing host", apiType: types.ApiTypeClaude, url: "https:///v1", wantErr: "no host"},
		{name: "local proxy rejected", apiType: types.ApiTypeOpenAI, url: "https://localhost:8080/v1", wantErr: "local host"},
		{name: "loopback rejected", apiType: types.ApiTypeClaude, url: "https://127.0.0.1:8080", wantErr: "local network"},
		{name: "private rejected", apiType: types.ApiTypeFireworks, url: "https://10.1.2.3/v1", wantErr: "local network"},
		{name: "local proxy allowed", apiType: types.ApiTypeOpenAI, url: "http://127.0.0.1:8080/v1", opts: InsecureOptions()},
		{name: "unspecified always rejected", apiType: types.ApiTypeOpenAI, url: "http://0.0.0.0", opts: InsecureOptions(), wantErr: "can not be a provider endpoint"},
		{name: "zoned ipv6 rejected", apiType: types.ApiTypeOpenAI, url: "https://[fe80::1%25eth0]/", wantErr: "zoned"},
		{name: "zoned ipv6 allowed with local networks", apiType: types.ApiTypeOpenAI, url: "https://[fe80::1%25eth0]/", opts: OutboundURLOptions{AllowLocalNetworks: true}},
		{name: "provider hosts only accepts provider", apiType: types.ApiTypeClaude, url: "https://api.anthropic.com/v1", opts: OutboundURLOptions{ProviderHostsOnly: true}},
		{name: "provider hosts only rejects gateway", apiType: types.ApiTypeClaude, url: "https://llm-gateway.example.com", opts: OutboundURLOptions{ProviderHostsOnly: true}, wantErr: "not an API host of claude"},
		{name: "other provider host is custom", apiType: types.ApiTypeClaude, url: "https://api.openai.com/v1", opts: OutboundURLOptions{ProviderHostsOnly: true}, wantErr: "not an API host of claude"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateProviderBaseURL(tt.apiType, tt.url, tt.opts)
			if tt.wantErr != "" {
				if assert.Error(t, err) {
					assert.Contains(t, err.Error(), tt.wantErr)
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestProviderEndpoints(t *testing.T) {
	assert.Equal(t, "https://api.anthropic.com/v1", DefaultBaseURL(types.ApiTypeClaude))
	assert.Equal(t, "https://api.fireworks.ai/inference/v1", DefaultBaseURL(types.ApiTypeFireworks))
	assert.Equal(t, "", DefaultBaseURL(types.ApiType("gemini")))

	assert.True(t, IsProviderHost(types.ApiTypeMistral, "API.Mistral.ai"))
	assert.True(t, IsProviderHost(types.ApiTypeOpenAI, "eu.api.openai.com"))
	assert.False(t, IsProviderHost(types.ApiTypeOpenAI, "notapi.openai.com.evil.io"))
	assert.False(t, IsProviderHost(types.ApiTypeOpenAI, "api.anthropic.com"))
}
