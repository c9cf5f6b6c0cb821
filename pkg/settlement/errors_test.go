package settlement

import (
	"errors"
	"testing"
)

func TestOperationErrorFormatsSegments(test *testing.T) {
	test.Parallel()
	underlying := errors.New("row locked")
	wrapped := WrapError("store", "offer", "update", underlying)

	var operationError OperationError
	if !errors.As(wrapped, &operationError) {
		test.Fatalf("expected OperationError, got %T", wrapped)
	}
	if operationError.Operation() != "store" || operationError.Subject() != "offer" || operationError.Code() != "update" {
		test.Fatalf("unexpected segments: %s %s %s", operationError.Operation(), operationError.Subject(), operationError.Code())
	}
	if wrapped.Error() != "store.offer.update: row locked" {
		test.Fatalf("unexpected message: %s", wrapped.Error())
	}
	if !errors.Is(wrapped, underlying) {
		test.Fatalf("wrapped error must unwrap to the underlying error")
	}
}

func TestWrapErrorPassesNilThrough(test *testing.T) {
	test.Parallel()
	if WrapError("store", "offer", "update", nil) != nil {
		test.Fatalf("wrapping nil must stay nil")
	}
}

func TestShortfallErrorCarriesFigures(test *testing.T) {
	test.Parallel()
	shortfall := ShortfallError{Dimension: DimensionCurrency, Required: 1200, Available: 870}
	if shortfall.Error() != "insufficient currency: required 1200, available 870" {
		test.Fatalf("unexpected message: %s", shortfall.Error())
	}
	if !errors.Is(shortfall, ErrInsufficientBalance) {
		test.Fatalf("shortfall must unwrap to ErrInsufficientBalance")
	}
}
