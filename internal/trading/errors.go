package trading

import "fmt"

// ValidationError marks a terminal, non-retryable problem with the request
// or the computed order: unknown asset, bad percent, non-positive price,
// insufficient balance, size too small. Its Reason is user-facing.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func validationErrorf(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// ExchangeError wraps a failed venue call or a venue-reported order error.
// Detail carries the raw venue payload when present.
type ExchangeError struct {
	Op     string
	Detail string
	Err    error
}

func (e *ExchangeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Detail)
}

func (e *ExchangeError) Unwrap() error { return e.Err }
