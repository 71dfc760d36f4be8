package session

import (
	"context"
	"fmt"
)

// CaptureDevice is a live connection to an audio capture source. The device
// delivers incremental audio fragments on Chunks until capture ends, then
// closes the channel. Close stops capture and releases the underlying
// hardware; it must be safe to call more than once and concurrently with
// delivery.
type CaptureDevice interface {
	// Chunks delivers captured audio fragments in order. The channel is
	// closed once the device has confirmed the capture ended and all
	// buffered fragments were delivered.
	Chunks() <-chan []byte

	// MimeType declares the encoding of the delivered audio.
	MimeType() string

	// Err reports why the stream ended, if it ended abnormally. Only
	// meaningful after Chunks has been closed.
	Err() error

	// Close stops capture and releases the hardware. Idempotent.
	Close() error
}

// DeviceOpener acquires a capture device. Open may block (permission
// prompt, hardware warm-up) and honors ctx cancellation.
type DeviceOpener interface {
	Open(ctx context.Context) (CaptureDevice, error)
}

// DeviceAccessError reports a failed device acquisition: permission denied,
// no device present, hardware busy. Recoverable; the caller may retry.
type DeviceAccessError struct {
	Reason string
	Err    error
}

func (e *DeviceAccessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("device access failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("device access failed: %s", e.Reason)
}

func (e *DeviceAccessError) Unwrap() error { return e.Err }

// AssemblyError reports that a capture ended abnormally before its chunks
// could be assembled into a payload. Recoverable; the session returns to
// Idle and a new capture may be started.
type AssemblyError struct {
	Err error
}

func (e *AssemblyError) Error() string {
	return fmt.Sprintf("payload assembly failed: %v", e.Err)
}

func (e *AssemblyError) Unwrap() error { return e.Err }
