package utils

import (
	"errors"
	"fmt"
)

var (
	ErrorRecordNotFound   = errors.New("record not found")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrProductNotInStock  = errors.New("product not found in inventory")
	ErrInvalidDateRange   = errors.New("invalid date range")
	ErrNoOrdersFound      = errors.New("no orders found for this distributor")
	ErrPriceNotResolvable = errors.New("no price found for order line")
)

// ValidationError is a client-facing input error (HTTP 400).
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func ErrorPanic(err error) {
	if err != nil {
		panic(err)
	}
}
