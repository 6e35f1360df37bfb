package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies failures so callers branch on the kind instead of on messages.
type Kind string

const (
	KindDisabled               Kind = "pipeline_disabled"
	KindNotFound               Kind = "not_found"
	KindInvalidArgument        Kind = "invalid_argument"
	KindVectorStoreUnavailable Kind = "vector_store_unavailable"
	KindInternal               Kind = "internal"
)

type Error struct {
	Status int
	Code   string
	Kind   Kind
	Err    error
}

var (
	ErrPipelineDisabled       = &Error{Status: http.StatusServiceUnavailable, Code: string(KindDisabled), Kind: KindDisabled}
	ErrNotFound               = &Error{Status: http.StatusNotFound, Code: string(KindNotFound), Kind: KindNotFound}
	ErrInvalidArgument        = &Error{Status: http.StatusBadRequest, Code: string(KindInvalidArgument), Kind: KindInvalidArgument}
	ErrVectorStoreUnavailable = &Error{Status: http.StatusServiceUnavailable, Code: string(KindVectorStoreUnavailable), Kind: KindVectorStoreUnavailable}
)

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		if e.Code != "" {
			return e.Code + ": " + e.Err.Error()
		}
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound) works for wrapped
// instances carrying their own cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return t.Kind != "" && t.Kind == e.Kind
}

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Kind: KindInternal, Err: err}
}

// Wrap attaches a cause to the sentinel of kind.
func Wrap(kind Kind, err error) *Error {
	base := sentinel(kind)
	return &Error{Status: base.Status, Code: base.Code, Kind: base.Kind, Err: err}
}

func Disabled() error { return Wrap(KindDisabled, errors.New("content pipeline is disabled")) }

func NotFound(format string, args ...any) error {
	return Wrap(KindNotFound, fmt.Errorf(format, args...))
}

func InvalidArgument(format string, args ...any) error {
	return Wrap(KindInvalidArgument, fmt.Errorf(format, args...))
}

func VectorStoreUnavailable(cause error) error {
	return Wrap(KindVectorStoreUnavailable, cause)
}

// KindOf returns the kind of the first *Error in err's chain, KindInternal otherwise.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Kind != "" {
		return e.Kind
	}
	return KindInternal
}

// StatusOf maps err to an HTTP status.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) && e.Status != 0 {
		return e.Status
	}
	return http.StatusInternalServerError
}

func sentinel(kind Kind) *Error {
	switch kind {
	case KindDisabled:
		return ErrPipelineDisabled
	case KindNotFound:
		return ErrNotFound
	case KindInvalidArgument:
		return ErrInvalidArgument
	case KindVectorStoreUnavailable:
		return ErrVectorStoreUnavailable
	default:
		return &Error{Status: http.StatusInternalServerError, Code: string(KindInternal), Kind: KindInternal}
	}
}
