package session

import (
	goerrors "github.com/goliatone/go-errors"
)

const (
	textCodeNotAuthenticated   = "NOT_AUTHENTICATED"
	textCodeSessionInvalidated = "SESSION_INVALIDATED"
	textCodeInvalidStage       = "INVALID_FLOW_STAGE"
	textCodeMissingResetToken  = "MISSING_RESET_TOKEN"
	textCodeCredentialStore    = "CREDENTIAL_STORE"
	textCodeAPIRejected        = "API_REJECTED"
	textCodeAPITransport       = "API_TRANSPORT"
)

// ErrNotAuthenticated is returned when an operation needs a session token and
// none is present.
var ErrNotAuthenticated = goerrors.New("not authenticated", goerrors.CategoryAuth).
	WithTextCode(textCodeNotAuthenticated).
	WithCode(goerrors.CodeUnauthorized)

// ErrSessionInvalidated is returned when a stored token failed the profile
// fetch and the session was torn down.
var ErrSessionInvalidated = goerrors.New("session is no longer valid", goerrors.CategoryAuth).
	WithTextCode(textCodeSessionInvalidated).
	WithCode(goerrors.CodeUnauthorized)

// ErrInvalidStage is returned when a flow operation is invoked out of stage
// order. No network call is made.
var ErrInvalidStage = goerrors.New("invalid flow stage transition", goerrors.CategoryValidation).
	WithTextCode(textCodeInvalidStage).
	WithCode(goerrors.CodeBadRequest)

// ErrMissingResetToken is returned when the reset-password stage runs without
// a verification token from the verify stage.
var ErrMissingResetToken = goerrors.New("reset verification token missing", goerrors.CategoryValidation).
	WithTextCode(textCodeMissingResetToken).
	WithCode(goerrors.CodeBadRequest)

// ErrCredentialStore wraps failures of the durable credential store.
var ErrCredentialStore = goerrors.New("credential store failure", goerrors.CategoryInternal).
	WithTextCode(textCodeCredentialStore)

// IsAPIRejection reports whether err is an explicit success=false response
// from the remote API.
func IsAPIRejection(err error) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == textCodeAPIRejected
}

// IsTransportError reports whether err is a network-level failure (timeout,
// unreachable host) rather than a server decision.
func IsTransportError(err error) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == textCodeAPITransport
}

// IsStageError reports whether err is a local flow-ordering rejection.
func IsStageError(err error) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == textCodeInvalidStage || richErr.TextCode == textCodeMissingResetToken
}

// UserMessage extracts the human-readable reason out of a gateway error.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.Message != "" {
		return richErr.Message
	}
	return err.Error()
}
