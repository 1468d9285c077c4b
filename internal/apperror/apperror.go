// Package apperror classifies domain errors into a small set of kinds that
// callers (CLI, HTTP) can branch on without knowing every sentinel.
package apperror

import "errors"

type Kind string

const (
	KindValidation        Kind = "validation"
	KindNotFound          Kind = "not_found"
	KindInsufficientStock Kind = "insufficient_stock"
	KindFxUnavailable     Kind = "fx_unavailable"
	KindAuthorization     Kind = "authorization"
	KindMigration         Kind = "migration"
	KindInternal          Kind = "internal"
)

// Error is a classified error. A bare Error with only Kind set acts as a
// kind matcher for errors.Is.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return e.Msg + ": " + e.Err.Error()
	case e.Msg != "":
		return e.Msg
	case e.Err != nil:
		return e.Err.Error()
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Msg == "" && t.Err == nil {
		return e.Kind == t.Kind
	}
	return false
}

var (
	ErrValidation        = &Error{Kind: KindValidation}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrInsufficientStock = &Error{Kind: KindInsufficientStock}
	ErrFxUnavailable     = &Error{Kind: KindFxUnavailable}
	ErrAuthorization     = &Error{Kind: KindAuthorization}
	ErrMigration         = &Error{Kind: KindMigration}
)

func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

func Wrap(kind Kind, msg string, err error) error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

func Validation(msg string) error { return New(KindValidation, msg) }

func NotFound(msg string) error { return New(KindNotFound, msg) }

// KindOf reports the kind of the outermost classified error in err's chain.
// Unclassified errors are KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		switch v := e.(type) {
		case *Error:
			return v.Kind
		case interface{ Kind() Kind }:
			return v.Kind()
		}
	}
	return KindInternal
}
