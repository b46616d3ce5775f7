package apperr

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can translate it into a user-facing
// message without parsing error strings.
type Kind string

const (
	KindInsufficientStock      Kind = "insufficient_stock"
	KindInvalidTransition      Kind = "invalid_transition"
	KindInvalidAdjustment      Kind = "invalid_adjustment"
	KindEmptyCart              Kind = "empty_cart"
	KindConcurrentModification Kind = "concurrent_modification"
	KindNotFound               Kind = "not_found"
	KindInvalidInput           Kind = "invalid_input"
	KindForbidden              Kind = "forbidden"
)

// Error is a typed failure carrying a kind and a human-readable detail.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Detail != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	case e.Detail != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the package sentinels work with
// errors.Is regardless of detail.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrInsufficientStock      = &Error{Kind: KindInsufficientStock}
	ErrInvalidTransition      = &Error{Kind: KindInvalidTransition}
	ErrInvalidAdjustment      = &Error{Kind: KindInvalidAdjustment}
	ErrEmptyCart              = &Error{Kind: KindEmptyCart}
	ErrConcurrentModification = &Error{Kind: KindConcurrentModification}
	ErrNotFound               = &Error{Kind: KindNotFound}
	ErrInvalidInput           = &Error{Kind: KindInvalidInput}
	ErrForbidden              = &Error{Kind: KindForbidden}
)

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "" when err
// is not typed.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Detail returns the human-readable detail of the first *Error in err's chain.
func Detail(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Detail != "" {
		return e.Detail
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

// RetryOnConflict runs fn up to attempts times while it fails with
// ErrConcurrentModification. onRetry, when set, is invoked before each retry.
func RetryOnConflict(ctx context.Context, attempts int, fn func() error, onRetry func(attempt int, err error)) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 1; i <= attempts; i++ {
		if err = fn(); err == nil || !errors.Is(err, ErrConcurrentModification) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return err
		}
		if i < attempts && onRetry != nil {
			onRetry(i, err)
		}
	}
	return err
}
