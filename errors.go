package serial

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is the cause of a WriteError when Send is called
	// while the device has no open port.
	ErrNotConnected = errors.New("serial: not connected")
	// ErrPortClosed is returned by Port operations after Close.
	ErrPortClosed = errors.New("serial: port closed")
	// ErrConnectAborted is returned by Connect when Close abandoned the
	// attempt it was waiting on.
	ErrConnectAborted = errors.New("serial: connect aborted by close")
	// ErrInvalidConfig wraps every Config validation failure.
	ErrInvalidConfig = errors.New("serial: invalid config")
)

// OpenError reports that the port could not be opened. A reconnect has
// already been scheduled when a caller sees it.
type OpenError struct {
	Device string
	Err    error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("open %s: %v", e.Device, e.Err)
}

func (e *OpenError) Unwrap() error { return e.Err }

// RuntimeError reports a read failure on a connected port.
type RuntimeError struct {
	Device string
	Err    error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("read %s: %v", e.Device, e.Err)
}

func (e *RuntimeError) Unwrap() error { return e.Err }

// AbnormalDisconnect reports that the port went away without a Close call
// (EOF or hang-up).
type AbnormalDisconnect struct {
	Device string
	Err    error
}

func (e *AbnormalDisconnect) Error() string {
	return fmt.Sprintf("%s disconnected: %v", e.Device, e.Err)
}

func (e *AbnormalDisconnect) Unwrap() error { return e.Err }

// WriteError is returned by Send. It carries the payload that was not
// written so the caller can decide whether to retry it.
type WriteError struct {
	Payload []byte
	Err     error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("error sending data %q: %v", e.Payload, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
