package payment

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Stable validation codes.
const (
	CodeInvalidAmount         = "invalid_amount"
	CodeCurrencyMismatch      = "currency_mismatch"
	CodeInvalidPaymentMethod  = "invalid_payment_method"
	CodeInvalidCard           = "invalid_card"
	CodePaymentMethodRequired = "payment_method_required"
	CodeUnknownTransaction    = "unknown_transaction"
	CodeNotRefundable         = "not_refundable"
	CodeNotCapturable         = "not_capturable"
	CodeExceedsRemainder      = "exceeds_remainder"
	CodeNothingRemaining      = "nothing_remaining"
	CodeCanceled              = "canceled"
)

// ValidationError rejects input before any record is created or any provider call is made.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed (%s): %s", e.Code, e.Message)
}

func invalid(code, format string, args ...any) *ValidationError {
	return &ValidationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// PaymentError is a terminal failure recorded on the transaction. Message is the provider's
// wording, kept for audit and not meant for end users.
type PaymentError struct {
	Code          string
	Message       string
	TransactionID uuid.UUID
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("transaction %s failed: %s", e.TransactionID, e.Code)
}

// ErrProviderPending is the cause of a TimeoutError when the provider accepted the submission
// but had not settled it by the last attempt.
var ErrProviderPending = errors.New("provider has not settled the operation")

// TimeoutError means no outcome was recorded in time, either because the operation deadline
// passed or because the provider had not settled. The transaction stays pending and must be
// re-driven under the same id.
type TimeoutError struct {
	TransactionID uuid.UUID
	// ProviderTransactionID is set when the provider already holds the operation.
	ProviderTransactionID string
	Err                   error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("transaction %s still pending: %v", e.TransactionID, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }
