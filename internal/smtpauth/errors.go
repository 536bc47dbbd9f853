package smtpauth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
)

// ErrEngineUsed is returned when Run is called more than once on an Engine.
var ErrEngineUsed = errors.New("engine already ran")

var errSessionCancelled = errors.New("session cancelled")

// TransportError describes why an attempt could not reach a verdict.
type TransportError struct {
	// Op is the failing operation: "dial", "handshake", "read" or "write".
	Op   string
	Addr string

	// Errno is the OS error number when one is available, otherwise 0.
	Errno   int
	Message string
	Err     error
}

func newTransportError(op, addr string, err error) *TransportError {
	te := &TransportError{Op: op, Addr: addr, Message: err.Error(), Err: err}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		te.Errno = int(errno)
	}
	return te
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Op, e.Addr, e.Message)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the failure was a timeout or a cancelled context.
func (e *TransportError) Timeout() bool {
	return isTimeout(e.Err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
