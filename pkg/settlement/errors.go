package settlement

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the settlement service.
var (
	ErrUserNotFound             = errors.New("user not found")
	ErrClusterNotFound          = errors.New("cluster not found")
	ErrOfferNotFound            = errors.New("offer not found")
	ErrScheduleNotFound         = errors.New("schedule not found")
	ErrMobileMoneyNotFound      = errors.New("mobile money transaction not found")
	ErrInsufficientBalance      = errors.New("insufficient balance")
	ErrInsufficientAvailability = errors.New("insufficient cluster availability")
	ErrSelfTrade                = errors.New("buyer and seller must differ")
	ErrPriceMismatch            = errors.New("price does not match cluster rate")
	ErrOfferNotPending          = errors.New("offer is not pending")
	ErrOfferExpired             = errors.New("offer has expired")
	ErrScheduleNotPending       = errors.New("schedule is not pending")
	ErrForbidden                = errors.New("requester is not a participant")
	ErrInvalidScheduleTime      = errors.New("invalid schedule time")
	ErrBatchTooLarge            = errors.New("batch exceeds item limit")
	ErrDuplicateIdempotencyKey  = errors.New("duplicate idempotency key")
	ErrWebhookAlreadyProcessed  = errors.New("webhook already processed")
	ErrMobileMoneyNotPending    = errors.New("mobile money transaction is not pending")
	ErrAmountMismatch           = errors.New("confirmed amount does not match initiated amount")

	ErrInvalidUserID            = errors.New("invalid user id")
	ErrInvalidClusterID         = errors.New("invalid cluster id")
	ErrInvalidOfferID           = errors.New("invalid offer id")
	ErrInvalidScheduleID        = errors.New("invalid schedule id")
	ErrInvalidTransactionID     = errors.New("invalid transaction id")
	ErrInvalidReference         = errors.New("invalid reference")
	ErrInvalidIdempotencyKey    = errors.New("invalid idempotency key")
	ErrInvalidWebhookID         = errors.New("invalid webhook id")
	ErrInvalidMetadataJSON      = errors.New("invalid metadata json")
	ErrInvalidAmount            = errors.New("invalid amount")
	ErrInvalidTransactionType   = errors.New("invalid transaction type")
	ErrInvalidTradeType         = errors.New("invalid trade type")
	ErrInvalidOfferStatus       = errors.New("invalid offer status")
	ErrInvalidScheduleStatus    = errors.New("invalid schedule status")
	ErrInvalidEntryType         = errors.New("invalid entry type")
	ErrInvalidMobileMoneyType   = errors.New("invalid mobile money type")
	ErrInvalidMobileMoneyStatus = errors.New("invalid mobile money status")
	ErrInvalidServiceConfig     = errors.New("invalid service config")
)

// BalanceDimension names which balance a shortfall refers to.
type BalanceDimension string

const (
	DimensionCurrency BalanceDimension = "currency"
	DimensionEnergy   BalanceDimension = "energy"
)

// ShortfallError reports a rejected debit with the concrete figures, so
// callers can render "required 120.00, available 87.50" style messages.
type ShortfallError struct {
	Dimension BalanceDimension
	Required  int64
	Available int64
}

// Error returns the formatted shortfall message.
func (shortfall ShortfallError) Error() string {
	return fmt.Sprintf("insufficient %s: required %d, available %d", shortfall.Dimension, shortfall.Required, shortfall.Available)
}

// Unwrap ties the shortfall to ErrInsufficientBalance for errors.Is checks.
func (shortfall ShortfallError) Unwrap() error {
	return ErrInsufficientBalance
}

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
