// Package apperr defines the error kinds shared by services and handlers.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for propagation and for the HTTP status it maps to.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuth
	KindConflict
	KindNotFound
	KindUpstream
	KindTimeout
	// KindMisconfigured is a server-side setup problem whose message is safe to show.
	KindMisconfigured
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindUpstream:
		return "upstream"
	case KindTimeout:
		return "timeout"
	case KindMisconfigured:
		return "misconfigured"
	default:
		return "internal"
	}
}

// Error is a classified error. Message is safe to show to clients; Err is not.
type Error struct {
	Kind    Kind
	Message string
	// Status is the upstream HTTP status for KindUpstream, zero otherwise.
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(msg string) *Error { return &Error{Kind: KindValidation, Message: msg} }

func Auth(msg string) *Error { return &Error{Kind: KindAuth, Message: msg} }

func Conflict(msg string) *Error { return &Error{Kind: KindConflict, Message: msg} }

func NotFound(msg string) *Error { return &Error{Kind: KindNotFound, Message: msg} }

// Upstream wraps a failure of a third-party API. status may be zero for
// transport-level failures.
func Upstream(status int, msg string, err error) *Error {
	return &Error{Kind: KindUpstream, Status: status, Message: msg, Err: err}
}

func Timeout(msg string, err error) *Error {
	return &Error{Kind: KindTimeout, Message: msg, Err: err}
}

func Misconfigured(msg string) *Error { return &Error{Kind: KindMisconfigured, Message: msg} }

func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "Internal server error", Err: err}
}

// KindOf returns the kind of err, or KindInternal when err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps err to the status a handler should answer with.
func HTTPStatus(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindUpstream:
		if e.Status >= 400 && e.Status <= 599 {
			return e.Status
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the client-visible message for err. Unclassified
// errors never leak their text.
func PublicMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) || e.Kind == KindInternal || e.Message == "" {
		return "Internal server error"
	}
	return e.Message
}
