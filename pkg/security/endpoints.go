package security

import (
	"strings"

	"github.com/go-go-golems/shopwire/pkg/steps/ai/types"
)

// ProviderEndpoint is the public API location of a provider.
type ProviderEndpoint struct {
	BaseURL string
	Hosts   []string
}

var providerEndpoints = map[types.ApiType]ProviderEndpoint{
	types.ApiTypeClaude:    {BaseURL: "https://api.anthropic.com/v1", Hosts: []string{"api.anthropic.com"}},
	types.ApiTypeOpenAI:    {BaseURL: "https://api.openai.com/v1", Hosts: []string{"api.openai.com"}},
	types.ApiTypeAnyScale:  {BaseURL: "https://api.endpoints.anyscale.com/v1", Hosts: []string{"api.endpoints.anyscale.com"}},
	types.ApiTypeFireworks: {BaseURL: "https://api.fireworks.ai/inference/v1", Hosts: []string{"api.fireworks.ai"}},
	types.ApiTypeMistral:   {BaseURL: "https://api.mistral.ai/v1", Hosts: []string{"api.mistral.ai"}},
}

// DefaultBaseURL returns the public base url of apiType, or "" when unknown.
func DefaultBaseURL(apiType types.ApiType) string {
	return providerEndpoints[apiType].BaseURL
}

// IsProviderHost reports whether host is (a subdomain of) one of the public
// API hosts of apiType.
func IsProviderHost(apiType types.ApiType, host string) bool {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	for _, h := range providerEndpoints[apiType].Hosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}
