package engine

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// ProviderError reports a failed provider call, either an HTTP error before
// the stream starts or an error event inside the stream.
type ProviderError struct {
	Provider   string
	StatusCode int
	Type       string
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	switch {
	case e.StatusCode != 0 && e.Type != "":
		return fmt.Sprintf("%s error, status %d (%s): %s", e.Provider, e.StatusCode, e.Type, msg)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s error, status %d: %s", e.Provider, e.StatusCode, msg)
	case e.Type != "":
		return fmt.Sprintf("%s error (%s): %s", e.Provider, e.Type, msg)
	default:
		return fmt.Sprintf("%s error: %s", e.Provider, msg)
	}
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func (e *ProviderError) IsAuthentication() bool {
	return e.StatusCode == http.StatusUnauthorized ||
		e.StatusCode == http.StatusForbidden ||
		e.Type == "authentication_error" ||
		e.Type == "permission_error" ||
		e.Type == "invalid_api_key"
}

func (e *ProviderError) IsRateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests ||
		e.Type == "rate_limit_error" ||
		e.Type == "rate_limit_exceeded"
}

// AsProviderError finds a ProviderError in err's chain.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
