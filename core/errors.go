package core

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorSignatureInvalid       = "SIGNATURE_INVALID"
	ErrorUnknownTenant          = "UNKNOWN_TENANT"
	ErrorMalformedPayload       = "MALFORMED_PAYLOAD"
	ErrorExternalAPI            = "EXTERNAL_API_ERROR"
	ErrorCorrelationUnavailable = "CORRELATION_UNAVAILABLE"
	ErrorBadInput               = "BAD_INPUT"
	ErrorConflict               = "CONFLICT"
	ErrorInternal               = "INTERNAL_ERROR"
)

var (
	ErrCredentialNotFound = errors.New("core: credential not found")
	ErrCorrelationMissing = errors.New("core: correlation token not found")
)

func newError(message string, category goerrors.Category, code int, textCode string, metadata map[string]any) *goerrors.Error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func wrapError(
	source error,
	category goerrors.Category,
	message string,
	code int,
	textCode string,
	metadata map[string]any,
) *goerrors.Error {
	if source == nil {
		return newError(message, category, code, textCode, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(textCode)
	err.Category = category
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

// SignatureInvalid rejects a request before any routing happens.
func SignatureInvalid(source error, metadata map[string]any) error {
	return wrapError(source, goerrors.CategoryAuth, "request signature verification failed",
		http.StatusUnauthorized, ErrorSignatureInvalid, metadata)
}

// UnknownTenant is acknowledged upstream; the caller logs and drops.
func UnknownTenant(tenantID string) error {
	return newError("no credential stored for tenant", goerrors.CategoryNotFound,
		http.StatusOK, ErrorUnknownTenant, map[string]any{"tenant_id": tenantID})
}

func MalformedPayload(source error, message string, metadata map[string]any) error {
	if strings.TrimSpace(message) == "" {
		message = "malformed payload"
	}
	return wrapError(source, goerrors.CategoryBadInput, message,
		http.StatusBadRequest, ErrorMalformedPayload, metadata)
}

func ExternalAPIError(source error, service string, metadata map[string]any) error {
	fields := cloneFields(metadata)
	fields["service"] = service
	return wrapError(source, goerrors.CategoryExternal, service+" call failed",
		http.StatusBadGateway, ErrorExternalAPI, fields)
}

func CorrelationUnavailable(token string) error {
	return wrapError(ErrCorrelationMissing, goerrors.CategoryConflict, "correlation token expired or already consumed",
		http.StatusOK, ErrorCorrelationUnavailable, map[string]any{"correlation_token": token})
}

func BadInput(message string, metadata map[string]any) error {
	return newError(message, goerrors.CategoryBadInput, http.StatusBadRequest, ErrorBadInput, metadata)
}

// FieldInvalid is a validation failure on one message field.
func FieldInvalid(scope string, field string, message string) error {
	return goerrors.NewValidation(scope+": validation failed", goerrors.FieldError{
		Field:   field,
		Message: message,
	}).
		WithCode(http.StatusBadRequest).
		WithTextCode(ErrorBadInput).
		WithSeverity(goerrors.SeverityError)
}

func Internal(message string, metadata map[string]any) error {
	return newError(message, goerrors.CategoryInternal, http.StatusInternalServerError, ErrorInternal, metadata)
}

func IsSignatureInvalid(err error) bool { return hasTextCode(err, ErrorSignatureInvalid) }

func IsUnknownTenant(err error) bool { return hasTextCode(err, ErrorUnknownTenant) }

func IsMalformedPayload(err error) bool { return hasTextCode(err, ErrorMalformedPayload) }

func IsExternalAPIError(err error) bool { return hasTextCode(err, ErrorExternalAPI) }

func IsCorrelationUnavailable(err error) bool { return hasTextCode(err, ErrorCorrelationUnavailable) }

func hasTextCode(err error, textCode string) bool {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return false
	}
	return rich.TextCode == textCode
}

// MapError normalizes any error into the service envelope.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return ensureErrorEnvelope(rich)
	}
	switch {
	case errors.Is(err, ErrCredentialNotFound):
		return ensureErrorEnvelope(goerrors.Wrap(err, goerrors.CategoryNotFound, "credential not found").
			WithTextCode(ErrorUnknownTenant).WithCode(http.StatusOK))
	case errors.Is(err, ErrCorrelationMissing):
		return ensureErrorEnvelope(goerrors.Wrap(err, goerrors.CategoryConflict, "correlation unavailable").
			WithTextCode(ErrorCorrelationUnavailable).WithCode(http.StatusOK))
	}
	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureErrorEnvelope(mapped)
}

// HTTPStatus returns the response status an inbound request should get for err.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	mapped := MapError(err)
	if mapped == nil || mapped.Code == 0 {
		return http.StatusInternalServerError
	}
	return mapped.Code
}

func ensureErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = categoryHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ErrorBadInput
	case goerrors.CategoryAuth:
		return ErrorSignatureInvalid
	case goerrors.CategoryNotFound:
		return ErrorUnknownTenant
	case goerrors.CategoryConflict:
		return ErrorConflict
	case goerrors.CategoryExternal:
		return ErrorExternalAPI
	default:
		return ErrorInternal
	}
}

func categoryHTTPStatus(category goerrors.Category) int {
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
