// Package apperr defines the closed set of error variants handlers and the
// data layer return. The error middleware is the only consumer that turns
// them into HTTP responses.
package apperr

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
)

type Kind string

const (
	KindBadRequest      Kind = "BadRequest"
	KindUnauthenticated Kind = "Unauthenticated"
	KindForbidden       Kind = "Forbidden"
	KindNotFound        Kind = "NotFound"
	KindConflict        Kind = "Conflict"
	KindTooManyRequests Kind = "TooManyRequests"
	KindInternal        Kind = "Internal"

	// Raised only by the framework: oversized bodies and wrong verbs.
	KindPayloadTooLarge  Kind = "PayloadTooLarge"
	KindMethodNotAllowed Kind = "MethodNotAllowed"
)

const internalMessage = "something went wrong, please try again later"

// Status returns the HTTP status code the kind is reported with.
func (k Kind) Status() int {
	switch k {
	case KindBadRequest:
		return fiber.StatusBadRequest
	case KindUnauthenticated:
		return fiber.StatusUnauthorized
	case KindForbidden:
		return fiber.StatusForbidden
	case KindNotFound:
		return fiber.StatusNotFound
	case KindConflict:
		return fiber.StatusConflict
	case KindTooManyRequests:
		return fiber.StatusTooManyRequests
	case KindPayloadTooLarge:
		return fiber.StatusRequestEntityTooLarge
	case KindMethodNotAllowed:
		return fiber.StatusMethodNotAllowed
	default:
		return fiber.StatusInternalServerError
	}
}

// Error is a domain error raised explicitly by a handler or middleware.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func BadRequest(message string) *Error      { return New(KindBadRequest, message) }
func Unauthenticated(message string) *Error { return New(KindUnauthenticated, message) }
func Forbidden(message string) *Error       { return New(KindForbidden, message) }
func NotFound(message string) *Error        { return New(KindNotFound, message) }
func Conflict(message string) *Error        { return New(KindConflict, message) }

// Internal keeps the cause for logging; only message reaches the client.
func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// Wrap attaches a cause to a new error of the given kind.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError reports every field of a request that failed its rules.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	messages := make([]string, 0, len(e.Fields))
	for _, field := range e.Fields {
		messages = append(messages, field.Message)
	}
	return strings.Join(messages, ", ")
}

func Validation(fields ...FieldError) *ValidationError {
	return &ValidationError{Fields: fields}
}

// InvalidIDError is returned when a path, query or body reference is not a
// well-formed record identifier.
type InvalidIDError struct {
	Field string
	Value string
}

func (e *InvalidIDError) Error() string {
	return fmt.Sprintf("invalid value for %s: %s", e.Field, e.Value)
}

func InvalidID(field, value string) *InvalidIDError {
	return &InvalidIDError{Field: field, Value: value}
}

// DuplicateError is returned when a write violates a unique index.
type DuplicateError struct {
	Fields []string
}

func (e *DuplicateError) Error() string {
	if len(e.Fields) == 0 {
		return "duplicate field value entered"
	}
	return "duplicate field value entered for " + strings.Join(e.Fields, ", ")
}

func Duplicate(fields ...string) *DuplicateError {
	return &DuplicateError{Fields: fields}
}

// Classify maps any error to a status, kind and client-facing message.
// The first matching rule wins.
func Classify(err error) (int, Kind, string) {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return fiber.StatusBadRequest, KindBadRequest, validationErr.Error()
	}

	var invalidIDErr *InvalidIDError
	if errors.As(err, &invalidIDErr) {
		return fiber.StatusBadRequest, KindBadRequest, invalidIDErr.Error()
	}

	var duplicateErr *DuplicateError
	if errors.As(err, &duplicateErr) {
		return fiber.StatusBadRequest, KindBadRequest, duplicateErr.Error()
	}

	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind.Status(), appErr.Kind, appErr.Message
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		kind := kindForStatus(fiberErr.Code)
		if kind == KindInternal {
			return fiber.StatusInternalServerError, kind, internalMessage
		}
		return kind.Status(), kind, fiberErr.Message
	}

	return fiber.StatusInternalServerError, KindInternal, internalMessage
}

func kindForStatus(status int) Kind {
	switch status {
	case fiber.StatusBadRequest, fiber.StatusUnprocessableEntity:
		return KindBadRequest
	case fiber.StatusRequestEntityTooLarge:
		return KindPayloadTooLarge
	case fiber.StatusMethodNotAllowed:
		return KindMethodNotAllowed
	case fiber.StatusUnauthorized:
		return KindUnauthenticated
	case fiber.StatusForbidden:
		return KindForbidden
	case fiber.StatusNotFound:
		return KindNotFound
	case fiber.StatusConflict:
		return KindConflict
	case fiber.StatusTooManyRequests:
		return KindTooManyRequests
	default:
		return KindInternal
	}
}
