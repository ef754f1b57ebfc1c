package core

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	PushErrorBadInput           = "PUSH_BAD_INPUT"
	PushErrorCredentialNotFound = "PUSH_CREDENTIAL_NOT_FOUND"
	PushErrorReauthRequired     = "PUSH_REAUTH_REQUIRED"
	PushErrorProviderTransient  = "PUSH_PROVIDER_TRANSIENT"
	PushErrorSubscriptionFailed = "PUSH_SUBSCRIPTION_FAILED"
	PushErrorEncryptionFailed   = "PUSH_ENCRYPTION_FAILED"
	PushErrorInternal           = "PUSH_INTERNAL_ERROR"
)

// NewValidationError rejects malformed input before any network call.
func NewValidationError(message string) *goerrors.Error {
	return ensurePushErrorEnvelope(
		goerrors.New(message, goerrors.CategoryBadInput).
			WithTextCode(PushErrorBadInput),
	)
}

func NewCredentialNotFoundError(message string) *goerrors.Error {
	return ensurePushErrorEnvelope(
		goerrors.Wrap(ErrCredentialNotFound, goerrors.CategoryNotFound, message).
			WithTextCode(PushErrorCredentialNotFound),
	)
}

// NewReauthenticationRequiredError marks a refresh secret the provider
// rejected outright. TokenGuard purges the credential and its subscriptions
// before surfacing this.
func NewReauthenticationRequiredError(message string) *goerrors.Error {
	return ensurePushErrorEnvelope(
		goerrors.New(message, goerrors.CategoryAuth).
			WithTextCode(PushErrorReauthRequired),
	)
}

// NewProviderTransientError covers network failures, timeouts and 5xx
// responses. Retry-safe; never grounds for deleting local state.
func NewProviderTransientError(message string) *goerrors.Error {
	return ensurePushErrorEnvelope(
		goerrors.New(message, goerrors.CategoryOperation).
			WithTextCode(PushErrorProviderTransient),
	)
}

func NewSubscriptionError(message string) *goerrors.Error {
	return ensurePushErrorEnvelope(
		goerrors.New(message, goerrors.CategoryOperation).
			WithTextCode(PushErrorSubscriptionFailed),
	)
}

// NewEncryptionError marks authenticated decryption failure; always fatal for
// the record it concerns, never silently substituted.
func NewEncryptionError(message string) *goerrors.Error {
	return ensurePushErrorEnvelope(
		goerrors.New(message, goerrors.CategoryInternal).
			WithTextCode(PushErrorEncryptionFailed),
	)
}

func IsCredentialNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCredentialNotFound) {
		return true
	}
	return hasTextCode(err, PushErrorCredentialNotFound)
}

func IsReauthenticationRequired(err error) bool {
	return hasTextCode(err, PushErrorReauthRequired)
}

func IsTransient(err error) bool {
	return hasTextCode(err, PushErrorProviderTransient)
}

func IsSubscriptionError(err error) bool {
	return hasTextCode(err, PushErrorSubscriptionFailed)
}

func IsEncryptionError(err error) bool {
	return hasTextCode(err, PushErrorEncryptionFailed)
}

func isNotFoundErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrSubscriptionNotFound) || errors.Is(err, ErrCredentialNotFound) {
		return true
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.Category == goerrors.CategoryNotFound
	}
	return false
}

func hasTextCode(err error, textCode string) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(richErr.TextCode), textCode)
}

func pushErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensurePushErrorEnvelope(richErr)
	}

	if errors.Is(err, ErrCredentialNotFound) {
		return ensurePushErrorEnvelope(
			goerrors.Wrap(err, goerrors.CategoryNotFound, err.Error()).
				WithTextCode(PushErrorCredentialNotFound),
		)
	}
	if errors.Is(err, ErrSubscriptionNotFound) || errors.Is(err, ErrProviderNotRegistered) {
		return ensurePushErrorEnvelope(
			goerrors.Wrap(err, goerrors.CategoryNotFound, err.Error()),
		)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "decrypt"), strings.Contains(msg, "cipher"):
		return NewEncryptionError(err.Error())
	case strings.Contains(msg, "invalid_grant"), strings.Contains(msg, "invalid refresh"):
		return NewReauthenticationRequiredError(err.Error())
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "connection refused"):
		return NewProviderTransientError(err.Error())
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "empty"):
		return NewValidationError(err.Error())
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensurePushErrorEnvelope(mapped)
}

func ensurePushErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = pushHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultPushTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultPushTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return PushErrorBadInput
	case goerrors.CategoryNotFound:
		return PushErrorCredentialNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return PushErrorReauthRequired
	case goerrors.CategoryOperation:
		return PushErrorProviderTransient
	default:
		return PushErrorInternal
	}
}

func pushHTTPStatus(category goerrors.Category) int {
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
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
