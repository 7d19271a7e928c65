package solana

import (
	"errors"
	"fmt"
)

// Static errors for request validation
var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrAddressRequired     = errors.New("address is required")
	ErrSignatureRequired   = errors.New("signature is required")
)

// TransientEndpointError marks a failure scoped to one endpoint: the
// same request may succeed elsewhere, so the pool rotates and retries.
type TransientEndpointError struct {
	Endpoint string
	Err      error
}

func (e *TransientEndpointError) Error() string {
	return fmt.Sprintf("transient failure on %s: %v", e.Endpoint, e.Err)
}

func (e *TransientEndpointError) Unwrap() error { return e.Err }

// FatalRequestError marks a request no endpoint can serve (malformed
// input, auth failure, unknown method). The pool fails fast without
// rotating.
type FatalRequestError struct {
	Method string
	Err    error
}

func (e *FatalRequestError) Error() string {
	return fmt.Sprintf("fatal request failure for %s: %v", e.Method, e.Err)
}

func (e *FatalRequestError) Unwrap() error { return e.Err }

// ExhaustedError is returned when the attempt budget for one logical
// call ran out without any endpoint succeeding.
type ExhaustedError struct {
	Method string
	// Attempts maps endpoint URL to the number of attempts it received
	// during this call.
	Attempts map[string]int
	LastErr  error
}

func (e *ExhaustedError) Error() string {
	total := 0
	for _, n := range e.Attempts {
		total += n
	}

	return fmt.Sprintf("all endpoints exhausted for %s after %d attempts: %v", e.Method, total, e.LastErr)
}

func (e *ExhaustedError) Unwrap() error { return e.LastErr }

// IsTransient reports whether err is a retriable endpoint failure.
func IsTransient(err error) bool {
	var te *TransientEndpointError
	return errors.As(err, &te)
}

// IsFatal reports whether err is a non-retriable request failure.
func IsFatal(err error) bool {
	var fe *FatalRequestError
	return errors.As(err, &fe)
}

// IsExhausted reports whether err is an endpoint exhaustion.
func IsExhausted(err error) bool {
	var ee *ExhaustedError
	return errors.As(err, &ee)
}
