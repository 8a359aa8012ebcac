package errors

import (
	"errors"
	"fmt"
)

var (
	ErrInternal         = NewError("INTERNAL_ERROR", "internal error")
	ErrConfig           = NewError("CONFIG_ERROR", "invalid configuration")
	ErrDelivery         = NewError("DELIVERY_FAILED", "notification delivery failed")
	ErrThrottled        = NewError("THROTTLED", "notification dropped by hourly limit")
	ErrStoreUnavailable = NewError("STORE_UNAVAILABLE", "rate limit store unavailable")
)

// Error is a coded application error. Values returned by the With* methods
// are copies; the package-level sentinels are never mutated.
type Error struct {
	Code    string
	Message string
	Details map[string]interface{}
	Cause   error
}

func NewError(code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error with the same code, so errors.Is(err, ErrDelivery)
// holds for wrapped copies.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func (e *Error) WithCause(cause error) *Error {
	err := *e
	err.Cause = cause
	return &err
}

func (e *Error) WithDetail(key string, value interface{}) *Error {
	err := *e
	details := make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	err.Details = details
	return &err
}

func Wrap(err error, appErr *Error) error {
	if err == nil {
		return nil
	}
	return appErr.WithCause(err)
}

func Code(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}
