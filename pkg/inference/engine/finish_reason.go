package engine

import "fmt"

type FinishReasonKind string

const (
	FinishReasonEndOfTurn             FinishReasonKind = "end_of_turn"
	FinishReasonMaxTokensReached      FinishReasonKind = "max_tokens_reached"
	FinishReasonToolInvocationPending FinishReasonKind = "tool_invocation_pending"
	FinishReasonProviderSpecific      FinishReasonKind = "provider_specific"
	FinishReasonUnknown               FinishReasonKind = "unknown"
)

// FinishReason is the provider-neutral reason a turn ended. Code keeps the
// raw provider value.
type FinishReason struct {
	Kind FinishReasonKind `json:"kind"`
	Code string           `json:"code,omitempty"`
}

func (f FinishReason) String() string {
	if f.Kind == FinishReasonProviderSpecific {
		return fmt.Sprintf("%s(%s)", f.Kind, f.Code)
	}
	return string(f.Kind)
}

type FinishReasonNormalizer func(code string) FinishReason

// NewFinishReasonNormalizer maps known codes through table. An empty code is
// unknown, any other unlisted code is provider specific.
func NewFinishReasonNormalizer(table map[string]FinishReasonKind) FinishReasonNormalizer {
	return func(code string) FinishReason {
		if code == "" {
			return FinishReason{Kind: FinishReasonUnknown}
		}
		if kind, ok := table[code]; ok {
			return FinishReason{Kind: kind, Code: code}
		}
		return FinishReason{Kind: FinishReasonProviderSpecific, Code: code}
	}
}
