package errors

import (
	"context"
	"errors"
	"fmt"
)

type ErrorCode string

const (
	CodeNotFound        ErrorCode = "NOT_FOUND"
	CodeValidationError ErrorCode = "VALIDATION_ERROR"
	CodeParse           ErrorCode = "PARSE_ERROR"
	CodeNoNamespace     ErrorCode = "NO_NAMESPACE"
	CodeMalformedTree   ErrorCode = "MALFORMED_TREE"
	CodeAmbiguous       ErrorCode = "AMBIGUOUS"
	CodeInternal        ErrorCode = "INTERNAL_ERROR"
	CodeNotSupported    ErrorCode = "NOT_SUPPORTED"
)

type DomainError struct {
	Code    ErrorCode
	Message string
	Err     error
	Context map[string]interface{}
}

const (
	CtxPath      = "path"
	CtxOperation = "operation"
	CtxNamespace = "namespace"
	CtxSymbol    = "symbol"
	CtxLine      = "line"
)

func (e *DomainError) WithContext(key string, value interface{}) *DomainError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

func (e *DomainError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if len(e.Context) > 0 {
		msg += fmt.Sprintf(" %v", e.Context)
	}
	return msg
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

func New(code ErrorCode, msg string) error {
	return &DomainError{Code: code, Message: msg}
}

// Wrap attaches a code to err. Cancellation passes through untouched so
// callers can always match it with errors.Is.
func Wrap(err error, code ErrorCode, msg string) error {
	if err == nil {
		return nil
	}
	if IsCancellation(err) {
		return err
	}
	return &DomainError{Code: code, Message: msg, Err: err}
}

// AddContext annotates the DomainError in err's chain, wrapping plain errors
// as internal ones.
func AddContext(err error, key string, value interface{}) error {
	if IsCancellation(err) {
		return err
	}
	var de *DomainError
	if errors.As(err, &de) {
		de.WithContext(key, value)
		return de
	}
	return &DomainError{
		Code:    CodeInternal,
		Message: "wrapped error",
		Err:     err,
		Context: map[string]interface{}{key: value},
	}
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code ErrorCode) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// IsCancellation reports whether err carries a context cancellation or deadline.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
