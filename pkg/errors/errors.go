package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Custom error types for better error handling
var (
	// Session errors
	ErrAuthFailure      = errors.New("authentication failed")
	ErrNotAuthenticated = errors.New("not logged in")
	ErrSessionClosed    = errors.New("session manager is closed")

	// Transport errors
	ErrNetwork           = errors.New("could not reach server")
	ErrMalformedResponse = errors.New("could not parse server response")
	ErrRejected          = errors.New("request rejected by server")

	// Booking errors
	ErrBookingRejected     = errors.New("booking rejected")
	ErrPaymentRejected     = errors.New("payment rejected")
	ErrDuplicateSubmission = errors.New("a submission for this car is already in progress")
	ErrCancellationPending = errors.New("the booking from this attempt is still being cancelled")

	// Validation errors
	ErrInvalidInput       = errors.New("invalid input")
	ErrWeakPassword       = errors.New("password does not meet requirements")
	ErrInvalidEmail       = errors.New("invalid email format")
	ErrInvalidUsername    = errors.New("invalid username format")
	ErrInvalidPhone       = errors.New("phone number must look like +998XXXXXXXXX")
	ErrInvalidCardNumber  = errors.New("card number must have 16 digits")
	ErrInvalidCardExpiry  = errors.New("card expiry must be MM/YY")
	ErrInvalidCVV         = errors.New("CVV must have 3 digits")
	ErrInvalidDateRange   = errors.New("rental must last at least one day")
	ErrMissingCardHolder  = errors.New("card holder name is required")
	ErrInvalidBookingData = errors.New("invalid booking data")

	// Storage errors
	ErrDatabaseConnection = errors.New("database connection failed")
	ErrTransactionFailed  = errors.New("transaction failed")
	ErrRecordNotFound     = errors.New("record not found")

	// Encryption errors
	ErrEncryptionFailed = errors.New("encryption failed")
	ErrDecryptionFailed = errors.New("decryption failed")
	ErrInvalidKey       = errors.New("invalid encryption key")

	// Rate limiting errors
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// Archive errors
	ErrArchiveFailed    = errors.New("contract archive operation failed")
	ErrChecksumMismatch = errors.New("checksum mismatch")
)

// AppError wraps errors with additional context. Code carries the HTTP
// status when the error came from the server, 0 otherwise.
type AppError struct {
	Err     error
	Message string
	Code    int
}

func (e *AppError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Err.Error()
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new application error
func NewAppError(err error, message string, code int) *AppError {
	return &AppError{
		Err:     err,
		Message: message,
		Code:    code,
	}
}

// IsAuthFailure reports whether err is the result of a 401 response.
func IsAuthFailure(err error) bool {
	if errors.Is(err, ErrAuthFailure) {
		return true
	}
	return StatusCode(err) == http.StatusUnauthorized
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return 0
}

// UserMessage returns the text that should be shown to the user for err:
// the server-provided message when there is one, otherwise the error text.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return err.Error()
}

// Is and As are re-exported so callers importing this package under its
// own name do not also need the standard errors package.
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }
