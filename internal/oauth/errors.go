package oauth

import (
	"errors"
	"fmt"
	"regexp"
)

var (
	ErrUnauthenticated       = errors.New("unauthenticated")
	ErrInvalidProvider       = errors.New("invalid provider")
	ErrProviderNotConfigured = errors.New("provider not configured")
	ErrInvalidState          = errors.New("invalid or expired state")
	ErrTokenExchange         = errors.New("token exchange failed")
	ErrUserInfo              = errors.New("user info retrieval failed")
)

// Redirect error codes.
const (
	CodeInvalidState          = "invalid_state"
	CodeTokenExchangeFailed   = "token_exchange_failed"
	CodeUserInfoFailed        = "user_info_failed"
	CodeServerError           = "server_error"
	CodeProviderNotConfigured = "provider_not_configured"
	codeProviderError         = "provider_error"
)

// ProviderDeniedError carries the error code the provider put on the callback.
type ProviderDeniedError struct {
	Code string
}

func (e *ProviderDeniedError) Error() string {
	return fmt.Sprintf("provider returned error %q", e.Code)
}

var providerCodePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,64}$`)

// sanitizeProviderCode keeps short machine codes and replaces anything else.
func sanitizeProviderCode(code string) string {
	if providerCodePattern.MatchString(code) {
		return code
	}
	return codeProviderError
}

// ErrorCode maps a Complete or Begin error to the code put on the redirect.
func ErrorCode(err error) string {
	var denied *ProviderDeniedError
	switch {
	case errors.As(err, &denied):
		return denied.Code
	case errors.Is(err, ErrInvalidState):
		return CodeInvalidState
	case errors.Is(err, ErrTokenExchange):
		return CodeTokenExchangeFailed
	case errors.Is(err, ErrUserInfo):
		return CodeUserInfoFailed
	case errors.Is(err, ErrProviderNotConfigured):
		return CodeProviderNotConfigured
	default:
		return CodeServerError
	}
}
