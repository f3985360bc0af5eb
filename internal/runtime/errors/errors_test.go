package errors

import (
	"errors"
	"testing"
)

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{"ErrMediatorRequired", ErrMediatorRequired, "nether: mediator is required"},
		{"ErrComponentNotRegistered", ErrComponentNotRegistered, "nether: component is not registered"},
		{"ErrComponentNotComparable", ErrComponentNotComparable, "nether: component must be comparable, register a pointer"},
		{"ErrMessageRequired", ErrMessageRequired, "nether: message is required"},
		{"ErrContextClosed", ErrContextClosed, "nether: context is closed"},
		{"ErrStreamStopped", ErrStreamStopped, "nether: stream is stopped"},
		{"ErrInvalidPath", ErrInvalidPath, "nether: path must start with `/` or be empty"},
		{"ErrServerRunning", ErrServerRunning, "nether: server is already running"},
		{"ErrServerNotRunning", ErrServerNotRunning, "nether: server is not running"},
		{"ErrPoolNotInitialized", ErrPoolNotInitialized, "nether: pool is not initialized"},
		{"ErrScopeFinished", ErrScopeFinished, "nether: transaction has already been finished"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestConfigValidationError(t *testing.T) {
	inner := errors.New("invalid port")
	err := ConfigValidationError{Err: inner}

	if got := err.Error(); got != "nether: invalid configuration: invalid port" {
		t.Fatalf("unexpected message %q", got)
	}
	if !errors.Is(err, inner) {
		t.Fatal("expected ConfigValidationError to unwrap to inner error")
	}
}

func TestPanicError(t *testing.T) {
	err := &PanicError{Value: "boom"}
	if got := err.Error(); got != "nether: panic recovered: boom" {
		t.Fatalf("unexpected message %q", got)
	}
}
