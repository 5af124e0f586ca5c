package rpcpool

import (
	"errors"
	"fmt"
)

// ErrInvalidConfiguration indicates a client or pool was constructed with
// bad inputs (e.g. an empty endpoint list). Never retried.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// ErrInvalidAddress indicates a caller-supplied address failed validation
// before any network call was issued. Never retried.
var ErrInvalidAddress = errors.New("invalid address")

// ExhaustedError is returned after all retry attempts have been consumed.
// It wraps the last underlying error so callers can inspect it with
// errors.Is / errors.As.
type ExhaustedError struct {
	Attempts int
	Endpoint string // endpoint of the final attempt
	LastErr  error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("rpc exhausted after %d attempts (last endpoint %s): %v",
		e.Attempts, e.Endpoint, e.LastErr)
}

func (e *ExhaustedError) Unwrap() error {
	return e.LastErr
}
