package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"voice-archive/pkg/models"
)

// State is the recording session's lifecycle state.
type State int

const (
	StateIdle State = iota
	StatePreparing
	StateRecording
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePreparing:
		return "preparing"
	case StateRecording:
		return "recording"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// ErrInvalidFileType is reported when an uploaded file's declared content
// type is not an audio type.
var ErrInvalidFileType = errors.New("uploaded file is not audio")

// Session mediates between a capture device and the rest of the
// application. It guarantees at most one open device handle and at most one
// in-flight stop sequence at a time, and emits exactly one payload per
// completed capture or accepted upload.
//
// Every Start increments a generation counter. Asynchronous results (device
// acquisition, chunk delivery, ticks) carry the generation they were started
// under and are discarded if a newer Start or Dispose has superseded them; a
// superseded acquisition's device handle is closed, never adopted.
type Session struct {
	opener DeviceOpener
	logger *zap.Logger

	onPayload func(models.Payload)
	onError   func(error)

	tickInterval time.Duration
	newTicker    func(time.Duration) (<-chan time.Time, func())

	mu       sync.Mutex
	state    State
	gen      uint64
	device   CaptureDevice
	chunks   [][]byte
	elapsed  int
	tickStop chan struct{}
	disposed bool
}

// Option configures a Session.
type Option func(*Session)

// WithTickInterval overrides the elapsed-time tick interval (default 1s).
func WithTickInterval(d time.Duration) Option {
	return func(s *Session) { s.tickInterval = d }
}

// WithTickerFactory overrides the tick source. The returned stop function
// releases the ticker's resources.
func WithTickerFactory(f func(time.Duration) (<-chan time.Time, func())) Option {
	return func(s *Session) { s.newTicker = f }
}

// OnPayload registers the payload-ready callback. Invoked exactly once per
// completed capture or accepted upload, off the session lock.
func OnPayload(fn func(models.Payload)) Option {
	return func(s *Session) { s.onPayload = fn }
}

// OnError registers the error callback for device access and assembly
// failures. All reported errors are recoverable.
func OnError(fn func(error)) Option {
	return func(s *Session) { s.onError = fn }
}

// New creates an idle session backed by the given device opener.
func New(opener DeviceOpener, logger *zap.Logger, opts ...Option) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Session{
		opener:       opener,
		logger:       logger,
		tickInterval: time.Second,
		newTicker: func(d time.Duration) (<-chan time.Time, func()) {
			t := time.NewTicker(d)
			return t.C, t.Stop
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Elapsed returns the whole seconds of capture so far. Frozen at the moment
// Stop is called.
func (s *Session) Elapsed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsed
}

// Start begins a new capture. Any device held from a previous capture is
// force-released first, and any in-flight acquisition is superseded. Device
// acquisition runs asynchronously; failure transitions back to Idle and is
// reported through the error callback.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.gen++
	gen := s.gen
	old := s.device
	s.device = nil
	s.chunks = nil
	s.elapsed = 0
	s.stopTickingLocked()
	s.state = StatePreparing
	s.mu.Unlock()

	if old != nil {
		old.Close()
	}
	s.logger.Debug("session preparing", zap.Uint64("gen", gen))

	go s.acquire(ctx, gen)
}

func (s *Session) acquire(ctx context.Context, gen uint64) {
	dev, err := s.opener.Open(ctx)

	s.mu.Lock()
	if s.gen != gen || s.disposed {
		s.mu.Unlock()
		// Superseded or disposed while the request was in flight: the
		// handle is released unused, never adopted.
		if dev != nil {
			dev.Close()
		}
		return
	}
	if err != nil {
		s.state = StateIdle
		cb := s.onError
		s.mu.Unlock()
		s.logger.Warn("device access failed", zap.Error(err))
		if cb != nil {
			cb(&DeviceAccessError{Reason: "microphone unavailable", Err: err})
		}
		return
	}

	s.device = dev
	s.state = StateRecording
	s.tickStop = make(chan struct{})
	tickStop := s.tickStop
	s.mu.Unlock()

	s.logger.Debug("session recording", zap.Uint64("gen", gen))
	go s.tickLoop(gen, tickStop)
	go s.drain(dev, gen)
}

// tickLoop advances the elapsed counter once per interval. Liveness is
// re-checked on every tick so a tick scheduled before Stop but delivered
// after it is a silent no-op.
func (s *Session) tickLoop(gen uint64, stop <-chan struct{}) {
	ch, cancel := s.newTicker(s.tickInterval)
	defer cancel()
	for {
		select {
		case <-stop:
			return
		case <-ch:
			s.mu.Lock()
			if s.gen != gen || s.state != StateRecording {
				s.mu.Unlock()
				return
			}
			s.elapsed++
			s.mu.Unlock()
		}
	}
}

// drain accumulates chunks until the device confirms the capture ended,
// then assembles and emits the payload.
func (s *Session) drain(dev CaptureDevice, gen uint64) {
	for data := range dev.Chunks() {
		if len(data) == 0 {
			continue
		}
		s.mu.Lock()
		if s.gen != gen || s.disposed {
			s.mu.Unlock()
			return
		}
		// Copy to avoid caller mutations.
		buf := make([]byte, len(data))
		copy(buf, data)
		s.chunks = append(s.chunks, buf)
		s.mu.Unlock()
	}

	// Channel closed: the device confirmed the capture ended.
	s.mu.Lock()
	if s.gen != gen || s.disposed {
		s.mu.Unlock()
		return
	}
	s.stopTickingLocked()

	if devErr := dev.Err(); devErr != nil {
		s.state = StateIdle
		s.device = nil
		s.chunks = nil
		cb := s.onError
		s.mu.Unlock()
		dev.Close()
		s.logger.Warn("capture ended abnormally", zap.Error(devErr))
		if cb != nil {
			cb(&AssemblyError{Err: devErr})
		}
		return
	}

	s.state = StateStopped
	s.device = nil
	chunks := s.chunks
	s.chunks = nil
	elapsed := s.elapsed
	cb := s.onPayload
	s.mu.Unlock()

	// Release the hardware before the payload leaves the session.
	dev.Close()

	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	payload := make([]byte, 0, total)
	for _, c := range chunks {
		payload = append(payload, c...)
	}

	s.logger.Info("capture complete",
		zap.Int("bytes", total),
		zap.Int("elapsed_seconds", elapsed),
		zap.String("mime_type", dev.MimeType()))

	if cb != nil {
		cb(models.Payload{
			Data:            payload,
			MimeType:        dev.MimeType(),
			DurationSeconds: elapsed,
			Live:            true,
		})
	}
}

// Stop ends the active capture. The elapsed counter halts synchronously
// with this call; payload assembly completes asynchronously once the device
// confirms the capture ended. A Stop with no active capture, or while a
// stop is already in progress, is a no-op.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.state != StateRecording {
		s.mu.Unlock()
		return
	}
	s.state = StateStopped
	s.stopTickingLocked()
	dev := s.device
	s.mu.Unlock()

	s.logger.Debug("session stopping")
	if dev != nil {
		// Asks the device to wind down; drain finishes once the chunk
		// channel closes.
		dev.Close()
	}
}

// AcceptUpload treats an already-recorded file as a finished payload. The
// declared content type must be an audio type; otherwise ErrInvalidFileType
// is returned and no payload is emitted. The session state is not altered.
func (s *Session) AcceptUpload(mimeType string, data []byte) error {
	if !strings.HasPrefix(mimeType, "audio/") {
		return fmt.Errorf("%w: %q", ErrInvalidFileType, mimeType)
	}

	buf := make([]byte, len(data))
	copy(buf, data)

	s.mu.Lock()
	cb := s.onPayload
	s.mu.Unlock()

	s.logger.Info("upload accepted", zap.String("mime_type", mimeType), zap.Int("bytes", len(buf)))
	if cb != nil {
		cb(models.Payload{Data: buf, MimeType: mimeType})
	}
	return nil
}

// Dispose releases any held device handle and invalidates all in-flight
// asynchronous work. Idempotent.
func (s *Session) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	s.gen++
	s.stopTickingLocked()
	dev := s.device
	s.device = nil
	s.chunks = nil
	s.state = StateIdle
	s.mu.Unlock()

	if dev != nil {
		dev.Close()
	}
	s.logger.Debug("session disposed")
}

// stopTickingLocked halts the tick loop. Caller holds s.mu.
func (s *Session) stopTickingLocked() {
	if s.tickStop != nil {
		close(s.tickStop)
		s.tickStop = nil
	}
}
