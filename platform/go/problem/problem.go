// Package problem carries the error taxonomy shared by the data-access layers and renders
// RFC 7807 problem documents at the HTTP boundary.
package problem

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// GenericMessage is the only detail exposed to clients for unclassified failures.
const GenericMessage = "Something went wrong! Kindly try again or contact support."

const (
	TypeValidation = "https://appraisal.app/problems/validation-error"
	TypeNotFound   = "https://appraisal.app/problems/not-found"
	TypeConflict   = "https://appraisal.app/problems/conflict"
	TypeInternal   = "https://appraisal.app/problems/internal-error"
)

// Kind classifies an Error.
type Kind int

const (
	KindInternal Kind = iota
	KindBadRequest
	KindNotFound
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Status maps the kind onto an HTTP status code.
func (k Kind) Status() int {
	switch k {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified failure. Detail is safe to show to clients; Err is kept for logs only.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// BadRequest reports a client error whose detail is returned verbatim.
func BadRequest(format string, args ...any) *Error {
	return &Error{Kind: KindBadRequest, Detail: fmt.Sprintf(format, args...)}
}

// NotFound reports a missing resource.
func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Detail: fmt.Sprintf(format, args...)}
}

// Conflict reports a uniqueness or state conflict.
func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Detail: fmt.Sprintf(format, args...)}
}

// Internal wraps err behind the generic client message.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Detail: GenericMessage, Err: err}
}

// As extracts the classified Error from err. Unclassified errors come back as Internal.
func As(err error) *Error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	return Internal(err)
}

// KindOf returns the kind of err; nil and unclassified errors are KindInternal.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInternal
}

// Details is the problem+json document written to clients.
type Details struct {
	Type   string              `json:"type,omitempty"`
	Title  string              `json:"title"`
	Status int                 `json:"status"`
	Detail string              `json:"detail,omitempty"`
	Errors map[string][]string `json:"errors,omitempty"`
}

// FromError builds the client-facing document for err.
func FromError(err error) Details {
	pe := As(err)
	d := Details{Status: pe.Kind.Status(), Detail: pe.Detail}
	switch pe.Kind {
	case KindBadRequest:
		d.Type, d.Title = TypeValidation, "Bad request"
	case KindNotFound:
		d.Type, d.Title = TypeNotFound, "Resource not found"
	case KindConflict:
		d.Type, d.Title = TypeConflict, "Conflict"
	default:
		d.Type, d.Title, d.Detail = TypeInternal, "Internal server error", GenericMessage
	}
	return d
}

// Write renders d as application/problem+json.
func Write(w http.ResponseWriter, d Details) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(d.Status)
	_ = json.NewEncoder(w).Encode(d)
}
