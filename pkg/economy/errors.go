package economy

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the economy service.
var (
	ErrInsufficientFunds       = errors.New("insufficient funds")
	ErrUnsupportedPair         = errors.New("unsupported currency pair")
	ErrBelowMinimum            = errors.New("amount below one exchange unit")
	ErrDailyLimitExceeded      = errors.New("daily limit exceeded")
	ErrResourceExhausted       = errors.New("resource exhausted")
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
	ErrAlreadyApplied          = errors.New("already applied to drop")
	ErrSelfSettlement          = errors.New("settlement requires two distinct users")
	ErrUserNotFound            = errors.New("user not found")
	ErrEntryNotFound           = errors.New("ledger entry not found")
	ErrContentNotFound         = errors.New("content not found")
	ErrDropNotFound            = errors.New("drop not found")
	ErrApplicationNotFound     = errors.New("drop application not found")
	ErrProjectNotFound         = errors.New("funding project not found")
	ErrPaymentNotFound         = errors.New("payment not found")
	ErrContentUnavailable      = errors.New("content not available")
	ErrDropClosed              = errors.New("drop closed")
	ErrProjectClosed           = errors.New("funding project closed")
	ErrApplicationClosed       = errors.New("drop application already reviewed")
	ErrStakeClosed             = errors.New("stake already completed")
	ErrPaymentClosed           = errors.New("payment already settled")
	ErrEntryNotReversible      = errors.New("ledger entry cannot be reversed")
	ErrUnknownStakeChannel     = errors.New("unknown stake channel")
	ErrBelowMinimumWithdrawal  = errors.New("withdrawal below minimum")
	ErrInvalidUserID           = errors.New("invalid user id")
	ErrInvalidIdempotencyKey   = errors.New("invalid idempotency key")
	ErrInvalidReference        = errors.New("invalid reference json")
	ErrInvalidAmount           = errors.New("invalid amount")
	ErrInvalidCurrency         = errors.New("invalid currency")
	ErrInvalidEntryType        = errors.New("invalid entry type")
	ErrInvalidTier             = errors.New("invalid tier")
	ErrInvalidRules            = errors.New("invalid rules")
	ErrInvalidIdentity         = errors.New("invalid identity")
	ErrInvalidServiceConfig    = errors.New("invalid service config")
	ErrInvalidBalance          = errors.New("invalid balance")
)

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}
