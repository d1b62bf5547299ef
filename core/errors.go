package core

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// ErrorKind is the text code carried by every error this module returns.
type ErrorKind string

const (
	ErrorInvalidHandle       ErrorKind = "ACCOUNTS_INVALID_HANDLE"
	ErrorUnauthorized        ErrorKind = "ACCOUNTS_UNAUTHORIZED"
	ErrorOAuthStateMismatch  ErrorKind = "ACCOUNTS_OAUTH_STATE_MISMATCH"
	ErrorFlowAlreadyConsumed ErrorKind = "ACCOUNTS_OAUTH_FLOW_ALREADY_CONSUMED"
	ErrorInvalidCredentials  ErrorKind = "ACCOUNTS_INVALID_CREDENTIALS"
	ErrorNetwork             ErrorKind = "ACCOUNTS_NETWORK_ERROR"
	ErrorServer              ErrorKind = "ACCOUNTS_SERVER_ERROR"
	ErrorSyncFailed          ErrorKind = "ACCOUNTS_SYNC_FAILED"
	ErrorNotFound            ErrorKind = "ACCOUNTS_NOT_FOUND"
	ErrorBadInput            ErrorKind = "ACCOUNTS_BAD_INPUT"
	ErrorInternal            ErrorKind = "ACCOUNTS_INTERNAL_ERROR"
)

const metadataReauthRequired = "reauth_required"

func (k ErrorKind) String() string {
	return string(k)
}

// Category returns the go-errors category used for the kind.
func (k ErrorKind) Category() goerrors.Category {
	switch k {
	case ErrorInvalidHandle, ErrorOAuthStateMismatch, ErrorBadInput:
		return goerrors.CategoryBadInput
	case ErrorUnauthorized:
		return goerrors.CategoryAuth
	case ErrorFlowAlreadyConsumed:
		return goerrors.CategoryConflict
	case ErrorInvalidCredentials:
		return goerrors.CategoryValidation
	case ErrorNetwork:
		return goerrors.CategoryExternal
	case ErrorServer, ErrorSyncFailed:
		return goerrors.CategoryOperation
	case ErrorNotFound:
		return goerrors.CategoryNotFound
	default:
		return goerrors.CategoryInternal
	}
}

// NewError builds a rich error for kind.
func NewError(kind ErrorKind, message string) *goerrors.Error {
	return ensureErrorEnvelope(
		goerrors.New(message, kind.Category()).
			WithTextCode(kind.String()),
	)
}

// WrapError wraps source as kind, keeping source reachable through errors.Unwrap.
func WrapError(source error, kind ErrorKind, message string) *goerrors.Error {
	if source == nil {
		return NewError(kind, message)
	}
	return ensureErrorEnvelope(
		goerrors.Wrap(source, kind.Category(), message).
			WithTextCode(kind.String()),
	)
}

// NewFieldError reports one invalid message field. The error carries the
// field in its validation list and the ErrorBadInput text code.
func NewFieldError(scope, field, message string) *goerrors.Error {
	return goerrors.NewValidation(strings.TrimSpace(scope)+": validation failed", goerrors.FieldError{
		Field:   field,
		Message: message,
	}).
		WithCode(http.StatusBadRequest).
		WithTextCode(ErrorBadInput.String()).
		WithSeverity(goerrors.SeverityError)
}

// KindOf reports the kind of err. Plain errors map to ErrorInternal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		code := ErrorKind(strings.TrimSpace(richErr.TextCode))
		if isKnownKind(code) {
			return code
		}
		return kindFromCategory(richErr.Category)
	}
	return KindOf(defaultErrorMapper(err))
}

func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// IsTransient reports whether retrying the same call may succeed.
func IsTransient(err error) bool {
	return IsKind(err, ErrorNetwork)
}

// IsTerminal reports whether the failure requires the user to authenticate again.
func IsTerminal(err error) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		if reauth, ok := richErr.Metadata[metadataReauthRequired].(bool); ok && reauth {
			return true
		}
		if ErrorKind(richErr.TextCode) == ErrorUnauthorized {
			return true
		}
	}
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(msg, "invalid_grant") ||
		strings.Contains(msg, "invalid refresh token") ||
		strings.Contains(msg, "token revoked") ||
		strings.Contains(msg, "reauthorization required")
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureErrorEnvelope(richErr)
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return WrapError(err, ErrorNetwork, err.Error())
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "handle") && (strings.Contains(msg, "released") || strings.Contains(msg, "moved")):
		return WrapError(err, ErrorInvalidHandle, err.Error())
	case strings.Contains(msg, "oauth state"):
		return WrapError(err, ErrorOAuthStateMismatch, err.Error())
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "no such host"), strings.Contains(msg, "timeout"):
		return WrapError(err, ErrorNetwork, err.Error())
	case strings.Contains(msg, "invalid_grant"), strings.Contains(msg, "unauthorized"):
		return WrapError(err, ErrorUnauthorized, err.Error())
	case strings.Contains(msg, "not found"):
		return WrapError(err, ErrorNotFound, err.Error())
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "mismatch"):
		return WrapError(err, ErrorBadInput, err.Error())
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureErrorEnvelope(mapped)
}

func ensureErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = errorHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = kindFromCategory(err.Category).String()
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func kindFromCategory(category goerrors.Category) ErrorKind {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ErrorBadInput
	case goerrors.CategoryNotFound:
		return ErrorNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return ErrorUnauthorized
	case goerrors.CategoryExternal:
		return ErrorNetwork
	case goerrors.CategoryOperation:
		return ErrorServer
	default:
		return ErrorInternal
	}
}

func isKnownKind(kind ErrorKind) bool {
	switch kind {
	case ErrorInvalidHandle, ErrorUnauthorized, ErrorOAuthStateMismatch, ErrorFlowAlreadyConsumed,
		ErrorInvalidCredentials, ErrorNetwork, ErrorServer, ErrorSyncFailed, ErrorNotFound,
		ErrorBadInput, ErrorInternal:
		return true
	}
	return false
}

func errorHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// MarkReauthRequired flags err as terminal for the refresh policy.
func MarkReauthRequired(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	metadata := copyAnyMap(err.Metadata)
	metadata[metadataReauthRequired] = true
	return err.WithMetadata(metadata)
}
