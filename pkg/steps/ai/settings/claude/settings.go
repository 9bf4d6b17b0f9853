package claude

import (
	"github.com/go-go-golems/shopwire/pkg/security"
	"github.com/go-go-golems/shopwire/pkg/steps/ai/types"
	"github.com/huandu/go-clone"
	"github.com/spf13/viper"
)

const DefaultAPIVersion = "2023-06-01"

type Settings struct {
	TopK       *int    `yaml:"top_k,omitempty"`
	UserID     *string `yaml:"user_id,omitempty"`
	BaseURL    *string `yaml:"base_url,omitempty"`
	APIKey     *string `yaml:"api_key,omitempty"`
	APIVersion *string `yaml:"api_version,omitempty"`
}

func NewSettings() *Settings {
	return &Settings{
		TopK:   nil,
		UserID: nil,
	}
}

func (s *Settings) Clone() *Settings {
	return clone.Clone(s).(*Settings)
}

// GetAPIKey returns the configured key, falling back to the "claude-api-key"
// viper value (SHOPWIRE_CLAUDE_API_KEY when env binding is enabled).
func (s *Settings) GetAPIKey() string {
	if s != nil && s.APIKey != nil && *s.APIKey != "" {
		return *s.APIKey
	}
	return viper.GetString("claude-api-key")
}

func (s *Settings) GetBaseURL() string {
	if s != nil && s.BaseURL != nil && *s.BaseURL != "" {
		return *s.BaseURL
	}
	return security.DefaultBaseURL(types.ApiTypeClaude)
}

func (s *Settings) GetAPIVersion() string {
	if s != nil && s.APIVersion != nil && *s.APIVersion != "" {
		return *s.APIVersion
	}
	return DefaultAPIVersion
}
