package errors

import (
	sterrors "errors"
	"fmt"
)

var (
	ErrMediatorRequired       = sterrors.New("nether: mediator is required")
	ErrComponentRequired      = sterrors.New("nether: component is required")
	ErrComponentNotRegistered = sterrors.New("nether: component is not registered")
	ErrComponentNotComparable = sterrors.New("nether: component must be comparable, register a pointer")
	ErrMessageRequired        = sterrors.New("nether: message is required")
	ErrContextClosed          = sterrors.New("nether: context is closed")
	ErrStreamStopped          = sterrors.New("nether: stream is stopped")
	ErrInvalidPath            = sterrors.New("nether: path must start with `/` or be empty")
	ErrHandlerRequired        = sterrors.New("nether: handler is required")
	ErrServerRunning          = sterrors.New("nether: server is already running")
	ErrServerNotRunning       = sterrors.New("nether: server is not running")
	ErrInvalidPort            = sterrors.New("nether: port must be a positive number")
	ErrPoolNotInitialized     = sterrors.New("nether: pool is not initialized")
	ErrScopeFinished          = sterrors.New("nether: transaction has already been finished")
	ErrConfigRequired         = sterrors.New("nether: configuration is required")
	ErrLoggerRequired         = sterrors.New("nether: logger is required")
	ErrPublisherRequired      = sterrors.New("nether: publisher is required")
	ErrTopicRequired          = sterrors.New("nether: topic is required")
)

// ConfigValidationError wraps every problem found while validating a Config.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	return fmt.Sprintf("nether: invalid configuration: %v", e.Err)
}

func (e ConfigValidationError) Unwrap() error {
	return e.Err
}

// PanicError carries a value recovered from a panicking handler.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("nether: panic recovered: %v", e.Value)
}
