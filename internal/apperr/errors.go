package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrOutOfStock        = errors.New("out of stock")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidOperation  = errors.New("invalid operation")
	// ErrConflict: row berubah di antara read dan write (optimistic lock).
	ErrConflict = errors.New("concurrent modification")
)

func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func InvalidOperation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidOperation, fmt.Sprintf(format, args...))
}

func NotFound(what string, id int64) error {
	return fmt.Errorf("%w: %s %d", ErrNotFound, what, id)
}

// OutOfStockError carries the shortfall so callers can report it.
type OutOfStockError struct {
	Target    string
	Required  int
	Available int
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("out of stock: %s required=%d available=%d", e.Target, e.Required, e.Available)
}

func (e *OutOfStockError) Is(target error) bool { return target == ErrOutOfStock }

func OutOfStock(target string, required, available int) error {
	return &OutOfStockError{Target: target, Required: required, Available: available}
}
