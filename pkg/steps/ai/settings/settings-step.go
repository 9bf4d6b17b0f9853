package settings

import (
	"io"
	"os"

	"github.com/go-go-golems/shopwire/pkg/steps/ai/settings/claude"
	"github.com/go-go-golems/shopwire/pkg/steps/ai/settings/openai"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type factoryConfigFileWrapper struct {
	Factories *StepSettings `yaml:"factories"`
}

type StepSettings struct {
	Chat   *ChatSettings    `yaml:"chat,omitempty"`
	OpenAI *openai.Settings `yaml:"openai,omitempty"`
	Client *ClientSettings  `yaml:"client,omitempty"`
	Claude *claude.Settings `yaml:"claude,omitempty"`
}

func NewStepSettings() *StepSettings {
	return &StepSettings{
		Chat:   NewChatSettings(),
		OpenAI: openai.NewSettings(),
		Client: NewClientSettings(),
		Claude: claude.NewSettings(),
	}
}

// NewStepSettingsFromYAML decodes settings nested under a top-level
// "factories" key. Sections that are absent keep their defaults.
func NewStepSettingsFromYAML(s io.Reader) (*StepSettings, error) {
	settings_ := factoryConfigFileWrapper{
		Factories: NewStepSettings(),
	}
	if err := yaml.NewDecoder(s).Decode(&settings_); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "could not decode step settings")
	}
	if settings_.Factories == nil {
		return NewStepSettings(), nil
	}
	settings_.Factories.fillDefaults()

	return settings_.Factories, nil
}

func NewStepSettingsFromFile(path string) (*StepSettings, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open settings file %s", path)
	}
	defer func() {
		_ = f.Close()
	}()
	return NewStepSettingsFromYAML(f)
}

func (ss *StepSettings) fillDefaults() {
	if ss.Chat == nil {
		ss.Chat = NewChatSettings()
	}
	if ss.OpenAI == nil {
		ss.OpenAI = openai.NewSettings()
	}
	if ss.Client == nil {
		ss.Client = NewClientSettings()
	}
	if ss.Claude == nil {
		ss.Claude = claude.NewSettings()
	}
}

func (ss *StepSettings) GetMetadata() map[string]interface{} {
	metadata := make(map[string]interface{})

	if ss.Chat != nil {
		if ss.Chat.Engine != nil {
			metadata["ai-engine"] = *ss.Chat.Engine
		}
		metadata["ai-api-type"] = string(ss.Chat.GetApiType())
		if ss.Chat.MaxResponseTokens != nil {
			metadata["ai-max-response-tokens"] = *ss.Chat.MaxResponseTokens
		}
		if ss.Chat.TopP != nil && *ss.Chat.TopP != 1 {
			metadata["ai-top-p"] = *ss.Chat.TopP
		}
		if ss.Chat.Temperature != nil {
			metadata["ai-temperature"] = *ss.Chat.Temperature
		}
		if len(ss.Chat.Stop) > 0 {
			metadata["ai-stop"] = ss.Chat.Stop
		}
		metadata["ai-stream"] = ss.Chat.Stream
	}

	if ss.OpenAI != nil {
		if ss.OpenAI.N != nil && *ss.OpenAI.N != 1 {
			metadata["openai-n"] = *ss.OpenAI.N
		}
		if ss.OpenAI.PresencePenalty != nil && *ss.OpenAI.PresencePenalty != 0 {
			metadata["openai-presence-penalty"] = *ss.OpenAI.PresencePenalty
		}
		if ss.OpenAI.FrequencyPenalty != nil && *ss.OpenAI.FrequencyPenalty != 0 {
			metadata["openai-frequency-penalty"] = *ss.OpenAI.FrequencyPenalty
		}
		if ss.OpenAI.BaseURL != nil {
			metadata["openai-base-url"] = *ss.OpenAI.BaseURL
		}
	}

	if ss.Client != nil {
		if ss.Client.Timeout != nil {
			metadata["timeout"] = ss.Client.Timeout.String()
		}
		if ss.Client.Organization != nil && *ss.Client.Organization != "" {
			metadata["organization"] = *ss.Client.Organization
		}
		if ss.Client.UserAgent != nil {
			metadata["user-agent"] = *ss.Client.UserAgent
		}
	}

	if ss.Claude != nil {
		if ss.Claude.TopK != nil && *ss.Claude.TopK != 1 {
			metadata["claude-top-k"] = *ss.Claude.TopK
		}
		if ss.Claude.UserID != nil && *ss.Claude.UserID != "" {
			metadata["claude-user-id"] = *ss.Claude.UserID
		}
		if ss.Claude.BaseURL != nil {
			metadata["claude-base-url"] = *ss.Claude.BaseURL
		}
	}

	return metadata
}

func (ss *StepSettings) Clone() *StepSettings {
	ret := &StepSettings{}
	if ss.Chat != nil {
		ret.Chat = ss.Chat.Clone()
	}
	if ss.OpenAI != nil {
		ret.OpenAI = ss.OpenAI.Clone()
	}
	if ss.Client != nil {
		ret.Client = ss.Client.Clone()
	}
	if ss.Claude != nil {
		ret.Claude = ss.Claude.Clone()
	}
	return ret
}
