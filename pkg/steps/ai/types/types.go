package types

type ApiType string

const (
	ApiTypeOpenAI    ApiType = "openai"
	ApiTypeAnyScale  ApiType = "anyscale"
	ApiTypeFireworks ApiType = "fireworks"
	ApiTypeMistral   ApiType = "mistral"
	ApiTypeClaude    ApiType = "claude"
)

// IsOpenAICompatible reports whether the api type speaks the chat-completion
// delta protocol.
func (a ApiType) IsOpenAICompatible() bool {
	switch a {
	case ApiTypeOpenAI, ApiTypeAnyScale, ApiTypeFireworks, ApiTypeMistral:
		return true
	default:
		return false
	}
}
