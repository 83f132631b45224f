package lifecycle

import (
	"errors"
	"fmt"
	"net/http"
)

// Codes the handlers expose so clients can branch without parsing messages.
const (
	CodeNoSubscription   = "NO_SUBSCRIPTION"
	CodeNoBillingID      = "NO_BILLING_SUBSCRIPTION"
	CodeNoCustomer       = "NO_BILLING_CUSTOMER"
	CodeCannotCancel     = "CANNOT_CANCEL"
	CodeAlreadyCanceled  = "SUBSCRIPTION_ALREADY_CANCELED"
	CodeCannotReactivate = "CANNOT_REACTIVATE"
	CodeBillingError     = "BILLING_ERROR"
	CodeConcurrentUpdate = "CONCURRENT_UPDATE"
	CodeDuplicate        = "DUPLICATE_SUBSCRIPTION"
	CodeInternal         = "INTERNAL_ERROR"
)

// AppError is a user-facing failure with an HTTP status, a stable code and a
// Spanish message. Err carries the technical cause for logs and debug output.
type AppError struct {
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return e.Code + ": " + e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

func newAppError(status int, code, msg string, err error) *AppError {
	return &AppError{Status: status, Code: code, Message: msg, Err: err}
}

func errNoSubscription(msg string) *AppError {
	return newAppError(http.StatusNotFound, CodeNoSubscription, msg, nil)
}

func errBilling(msg string, err error) *AppError {
	return newAppError(http.StatusInternalServerError, CodeBillingError, msg, err)
}

func errInternal(err error) *AppError {
	return newAppError(http.StatusInternalServerError, CodeInternal, "Ocurrió un error inesperado. Inténtalo de nuevo.", err)
}

// AsAppError extracts an AppError from an error chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
