package educhain

import (
	"errors"
	"fmt"
)

// Error codes. Every failure surfaced by the gateway or coordinator carries
// exactly one of these so callers can render a specific, actionable message.
const (
	ErrCodeValidation          = "VALIDATION"
	ErrCodeSubmissionRejected  = "SUBMISSION_REJECTED"
	ErrCodeLedgerRejected      = "LEDGER_REJECTED"
	ErrCodeAlreadyEnrolled     = "ALREADY_ENROLLED"
	ErrCodeAlreadyCompleted    = "ALREADY_COMPLETED"
	ErrCodeAlreadyIssued       = "ALREADY_ISSUED"
	ErrCodeNotEligible         = "NOT_ELIGIBLE"
	ErrCodeConfirmationTimeout = "CONFIRMATION_TIMEOUT"
	ErrCodeTransport           = "TRANSPORT"
	ErrCodeDecode              = "DECODE"
	ErrCodeIDRecovery          = "ID_RECOVERY"
	ErrCodeAccountChanged      = "ACCOUNT_CHANGED"
	ErrCodeOperationInProgress = "OPERATION_IN_PROGRESS"
)

// Error is a classified client error. Code is one of the ErrCode constants;
// Err carries the underlying cause when there is one.
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError creates a classified error without an underlying cause.
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError creates a classified error wrapping an underlying cause.
func WrapError(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf returns the classification code of err, or "" when err is not a
// classified client error.
func CodeOf(err error) string {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// IsCode reports whether err carries the given classification code.
func IsCode(err error, code string) bool {
	return CodeOf(err) == code
}

// Recoverable reports whether err is an "already done" classification: the
// requested transition already holds on the ledger and the caller should
// treat the outcome as no-op success.
func Recoverable(err error) bool {
	switch CodeOf(err) {
	case ErrCodeAlreadyEnrolled, ErrCodeAlreadyCompleted, ErrCodeAlreadyIssued:
		return true
	}
	return false
}
