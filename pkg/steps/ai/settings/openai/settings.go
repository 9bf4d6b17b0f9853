package openai

import (
	"github.com/huandu/go-clone"
	"github.com/spf13/viper"
)

type Settings struct {
	// How many choice to create for each prompt
	N *int `yaml:"n"`
	// PresencePenalty to use
	PresencePenalty *float64 `yaml:"presence_penalty,omitempty"`
	// FrequencyPenalty to use
	FrequencyPenalty *float64 `yaml:"frequency_penalty,omitempty"`
	// LogitBias maps token ids to a bias between -100 and 100
	LogitBias map[string]string `yaml:"logit_bias,omitempty"`
	BaseURL   *string           `yaml:"base_url,omitempty"`
	APIKey    *string           `yaml:"api_key,omitempty"`
}

func NewSettings() *Settings {
	return &Settings{
		N:                nil,
		PresencePenalty:  nil,
		FrequencyPenalty: nil,
		LogitBias:        map[string]string{},
	}
}

func (s *Settings) Clone() *Settings {
	return clone.Clone(s).(*Settings)
}

// GetAPIKey returns the configured key, falling back to the "<apiType>-api-key"
// viper value.
func (s *Settings) GetAPIKey(apiType string) string {
	if s != nil && s.APIKey != nil && *s.APIKey != "" {
		return *s.APIKey
	}
	return viper.GetString(apiType + "-api-key")
}

// GetBaseURL returns the configured base url or "" for the library default.
func (s *Settings) GetBaseURL() string {
	if s != nil && s.BaseURL != nil {
		return *s.BaseURL
	}
	return ""
}
