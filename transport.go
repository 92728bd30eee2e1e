package serial

import (
	"context"
	"io"
)

// Port is one open byte stream to the device. Read blocks until data
// arrives and fails once the port is closed or the device hangs up;
// Close must unblock a pending Read.
type Port interface {
	io.ReadWriteCloser
}

// Opener opens a fresh Port for cfg. A Device calls it once per connect
// attempt and never reuses the returned Port after closing it. ctx bounds
// the open only; it is cancelled once the attempt resolves.
type Opener func(ctx context.Context, cfg Config) (Port, error)
