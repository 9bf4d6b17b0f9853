package settings

import (
	"github.com/go-go-golems/shopwire/pkg/steps/ai/types"
	"github.com/huandu/go-clone"
)

type ChatSettings struct {
	Engine            *string        `yaml:"engine,omitempty"`
	ApiType           *types.ApiType `yaml:"api_type,omitempty"`
	MaxResponseTokens *int           `yaml:"max_response_tokens,omitempty"`
	TopP              *float64       `yaml:"top_p,omitempty"`
	Temperature       *float64       `yaml:"temperature,omitempty"`
	Stop              []string       `yaml:"stop,omitempty"`
	Stream            bool           `yaml:"stream,omitempty"`
}

func NewChatSettings() *ChatSettings {
	return &ChatSettings{
		Engine:            nil,
		ApiType:           nil,
		MaxResponseTokens: nil,
		TopP:              nil,
		Temperature:       nil,
		Stop:              []string{},
		Stream:            true,
	}
}

func (s *ChatSettings) Clone() *ChatSettings {
	return clone.Clone(s).(*ChatSettings)
}

// GetApiType returns the configured api type, defaulting to openai.
func (s *ChatSettings) GetApiType() types.ApiType {
	if s == nil || s.ApiType == nil || *s.ApiType == "" {
		return types.ApiTypeOpenAI
	}
	return *s.ApiType
}
