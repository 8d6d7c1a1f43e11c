package teamauth

import (
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeValidation         = "VALIDATION_ERROR"
	TextCodeProvider           = "PROVIDER_ERROR"
	TextCodeNoSession          = "NO_SESSION"
	TextCodeBackend            = "BACKEND_ERROR"
	TextCodeUnexpectedResponse = "UNEXPECTED_RESPONSE_SHAPE"
	TextCodeMissingToken       = "NO_TOKEN_RETURNED"
	TextCodeInvalidTransition  = "INVALID_FLOW_TRANSITION"
	TextCodeFlowInProgress     = "FLOW_IN_PROGRESS"
	TextCodeNotAuthenticated   = "NOT_AUTHENTICATED"
	TextCodeTokenMalformed     = "TOKEN_MALFORMED"
)

// ErrValidation is returned for bad local input. It never reaches the wire.
var ErrValidation = goerrors.New("invalid input", goerrors.CategoryValidation).
	WithTextCode(TextCodeValidation).
	WithCode(goerrors.CodeBadRequest)

// ErrProvider is returned when the identity provider rejects an operation.
var ErrProvider = goerrors.New("identity provider rejected the request", goerrors.CategoryAuth).
	WithTextCode(TextCodeProvider).
	WithCode(goerrors.CodeUnauthorized)

// ErrNoSession is returned when the provider reports success without a session.
var ErrNoSession = goerrors.New("no access token was issued", goerrors.CategoryAuth).
	WithTextCode(TextCodeNoSession).
	WithCode(goerrors.CodeUnauthorized)

// ErrBackend covers unreachable hosts, non-2xx replies and malformed JSON.
var ErrBackend = goerrors.New("backend request failed", goerrors.CategoryOperation).
	WithTextCode(TextCodeBackend).
	WithCode(goerrors.CodeInternal)

// ErrUnexpectedResponse is returned when a backend reply matches no known shape.
var ErrUnexpectedResponse = goerrors.New("unexpected response format", goerrors.CategoryOperation).
	WithTextCode(TextCodeUnexpectedResponse).
	WithCode(goerrors.CodeInternal)

// ErrMissingToken is returned when onboarding succeeds without an application token.
var ErrMissingToken = goerrors.New("no token was returned", goerrors.CategoryOperation).
	WithTextCode(TextCodeMissingToken).
	WithCode(goerrors.CodeInternal)

// ErrInvalidTransition is returned when a flow is asked to move along an edge it does not have.
var ErrInvalidTransition = goerrors.New("invalid flow state transition", goerrors.CategoryConflict).
	WithTextCode(TextCodeInvalidTransition).
	WithCode(goerrors.CodeConflict)

// ErrFlowInProgress is returned when an entry point is invoked while another run is in flight.
var ErrFlowInProgress = goerrors.New("another sign-in flow is in progress", goerrors.CategoryConflict).
	WithTextCode(TextCodeFlowInProgress).
	WithCode(goerrors.CodeConflict)

// ErrNotAuthenticated is returned by authorized calls made without an application token.
var ErrNotAuthenticated = goerrors.New("not signed in", goerrors.CategoryAuth).
	WithTextCode(TextCodeNotAuthenticated).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenMalformed is returned when the stored application token cannot be decoded.
var ErrTokenMalformed = goerrors.New("application token is malformed", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(goerrors.CodeUnauthorized)

// derive clones a sentinel so per-call metadata never leaks into the shared value.
func derive(base *goerrors.Error, message string, source error, meta map[string]any) *goerrors.Error {
	clone := base.Clone()
	if clone == nil {
		clone = base
	}
	if message != "" {
		clone.Message = message
	}
	if source != nil {
		clone.Source = source
	}
	if len(meta) > 0 {
		clone.WithMetadata(meta)
	}
	return clone
}

// IsTextCode reports whether err carries the given go-errors text code.
func IsTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && rich != nil {
		return rich.TextCode == code
	}
	return false
}

// UserMessage extracts the message suitable for display.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && rich != nil && rich.Message != "" {
		return rich.Message
	}
	return strings.TrimSpace(err.Error())
}

func metadataValue(err error, key string) any {
	var rich *goerrors.Error
	if err == nil || !goerrors.As(err, &rich) || rich == nil {
		return nil
	}
	return rich.Metadata[key]
}
