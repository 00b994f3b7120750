package domain

import (
	"errors"
	"fmt"
)

// DeliveryError describes a batch that could not be delivered to the collector.
// It is logged when the batch is dropped and never surfaced to producers.
type DeliveryError struct {
	// Endpoint is the collector path the batch was sent to
	Endpoint string

	// Attempts is the number of requests made, including the first one
	Attempts int

	// StatusCode is the last HTTP status received, or 0 on transport failure
	StatusCode int

	// Items is the number of records in the dropped batch
	Items int

	Err error
}

// Error implements the error interface.
func (e *DeliveryError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("delivery to %s failed after %d attempt(s) (status %d): %v", e.Endpoint, e.Attempts, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("delivery to %s failed after %d attempt(s): %v", e.Endpoint, e.Attempts, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// PluginError describes a hook that failed or panicked.
type PluginError struct {
	Plugin string
	Hook   string
	Err    error
}

// Error implements the error interface.
func (e *PluginError) Error() string {
	return fmt.Sprintf("plugin %s.%s: %v", e.Plugin, e.Hook, e.Err)
}

func (e *PluginError) Unwrap() error {
	return e.Err
}

// ErrPanic wraps a value recovered from a panic.
var ErrPanic = errors.New("panic")

// PanicError converts a recovered value into an error wrapping ErrPanic.
func PanicError(v any) error {
	if err, ok := v.(error); ok {
		return fmt.Errorf("%w: %w", ErrPanic, err)
	}
	return fmt.Errorf("%w: %v", ErrPanic, v)
}

// IsDeliveryError reports whether err is a DeliveryError.
func IsDeliveryError(err error) bool {
	var de *DeliveryError
	return errors.As(err, &de)
}
