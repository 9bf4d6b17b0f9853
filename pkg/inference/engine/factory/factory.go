package factory

import (
	"sort"
	"strings"

	"github.com/go-go-golems/shopwire/pkg/inference/engine"
	"github.com/go-go-golems/shopwire/pkg/steps"
	"github.com/go-go-golems/shopwire/pkg/steps/ai/claude"
	"github.com/go-go-golems/shopwire/pkg/steps/ai/openai"
	"github.com/go-go-golems/shopwire/pkg/steps/ai/settings"
	"github.com/go-go-golems/shopwire/pkg/steps/ai/types"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// EngineFactory creates inference engines from step settings, so that callers
// never depend on a specific provider package.
type EngineFactory interface {
	// CreateEngine picks the provider from settings.Chat.ApiType.
	CreateEngine(settings *settings.StepSettings, options ...engine.Option) (engine.Engine, error)

	SupportedProviders() []string

	// DefaultProvider is used when settings.Chat.ApiType is not set.
	DefaultProvider() string
}

// StandardEngineFactory builds block protocol engines for claude and delta
// protocol engines for every chat completion compatible api type.
type StandardEngineFactory struct{}

func NewStandardEngineFactory() *StandardEngineFactory {
	return &StandardEngineFactory{}
}

// anthropic is accepted as an alias for claude.
const anthropicAlias = "anthropic"

func (f *StandardEngineFactory) CreateEngine(s *settings.StepSettings, options ...engine.Option) (engine.Engine, error) {
	if s == nil {
		return nil, errors.New("settings cannot be nil")
	}
	if s.Chat == nil {
		return nil, errors.New("chat settings cannot be nil")
	}
	if s.Client == nil {
		return nil, steps.ErrMissingClientSettings
	}

	provider := f.DefaultProvider()
	if s.Chat.ApiType != nil {
		provider = strings.ToLower(string(*s.Chat.ApiType))
	}
	log.Debug().Str("provider", provider).Msg("creating engine")

	switch {
	case provider == string(types.ApiTypeClaude) || provider == anthropicAlias:
		return claude.NewClaudeEngine(s, options...)

	case types.ApiType(provider).IsOpenAICompatible():
		return openai.NewOpenAIEngine(s, options...)

	default:
		return nil, errors.Errorf("unsupported provider %s. Supported providers: %s",
			provider, strings.Join(f.SupportedProviders(), ", "))
	}
}

func (f *StandardEngineFactory) SupportedProviders() []string {
	ret := []string{
		string(types.ApiTypeOpenAI),
		string(types.ApiTypeAnyScale),
		string(types.ApiTypeFireworks),
		string(types.ApiTypeMistral),
		string(types.ApiTypeClaude),
		anthropicAlias,
	}
	sort.Strings(ret)
	return ret
}

func (f *StandardEngineFactory) DefaultProvider() string {
	return string(types.ApiTypeOpenAI)
}

var _ EngineFactory = (*StandardEngineFactory)(nil)
