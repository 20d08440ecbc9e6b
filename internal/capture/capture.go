package capture

import (
	"errors"
	"image"
	"time"

	"github.com/bryanchriswhite/captain/internal/region"
)

var (
	ErrNoFrame        = errors.New("no frame has been acquired")
	ErrFrameLocked    = errors.New("frame is locked")
	ErrFrameNotLocked = errors.New("frame is not locked")
	ErrClosed         = errors.New("capture device is closed")
	ErrNoBackend      = errors.New("no capture backend available")
)

// Frame is a single captured image
type Frame struct {
	Image *image.RGBA
	// Timestamp is relative to the first frame acquired by the device
	Timestamp time.Duration
}

// Device is a frame source bound to one screen rectangle.
//
// A capture cycle is AcquireFrame, LockFrame, UnlockFrame, ReleaseFrame. A
// locked frame must not be read after it has been unlocked.
type Device interface {
	// AcquireFrame grabs the current contents of the capture rectangle
	AcquireFrame() error

	// LockFrame exposes the acquired frame for reading
	LockFrame() (*Frame, error)

	// UnlockFrame ends read access to a frame returned by LockFrame
	UnlockFrame(frame *Frame) error

	// ReleaseFrame discards the acquired frame
	ReleaseFrame() error

	// Bounds is the captured rectangle
	Bounds() region.Rect

	// Size is the captured frame size
	Size() region.Size

	// Name returns a human-readable name for the backend
	Name() string

	Close() error
}

// Relocatable is implemented by devices whose capture origin can move while
// the frame size stays fixed
type Relocatable interface {
	SetLocation(p region.Point) error
}

// GPUDevice identifies a graphics adapter context a device captures through
type GPUDevice struct {
	Adapter string
	ID      uint64
}

// GPUDeviceLister is implemented by devices backed by one or more GPU contexts
type GPUDeviceLister interface {
	GPUDevices() []GPUDevice
}

// grabFunc captures rect into a new image
type grabFunc func(rect region.Rect) (*image.RGBA, error)

// frameSlot enforces the acquire/lock/unlock/release protocol shared by all
// backends. It is not safe for concurrent use; a device is driven by one
// goroutine at a time.
type frameSlot struct {
	rect    region.Rect
	grab    grabFunc
	start   time.Time
	current *Frame
	locked  bool
	closed  bool
}

func newFrameSlot(rect region.Rect, grab grabFunc) *frameSlot {
	return &frameSlot{rect: rect, grab: grab}
}

func (s *frameSlot) acquire() error {
	if s.closed {
		return ErrClosed
	}
	if s.locked {
		return ErrFrameLocked
	}

	img, err := s.grab(s.rect)
	if err != nil {
		return err
	}

	now := time.Now()
	if s.start.IsZero() {
		s.start = now
	}
	s.current = &Frame{Image: img, Timestamp: now.Sub(s.start)}
	return nil
}

func (s *frameSlot) lock() (*Frame, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if s.current == nil {
		return nil, ErrNoFrame
	}
	if s.locked {
		return nil, ErrFrameLocked
	}
	s.locked = true
	return s.current, nil
}

func (s *frameSlot) unlock(frame *Frame) error {
	if !s.locked || frame != s.current {
		return ErrFrameNotLocked
	}
	s.locked = false
	return nil
}

func (s *frameSlot) release() error {
	if s.locked {
		return ErrFrameLocked
	}
	s.current = nil
	return nil
}

func (s *frameSlot) move(p region.Point) error {
	if s.closed {
		return ErrClosed
	}
	if s.locked {
		return ErrFrameLocked
	}
	s.rect.Location = p
	return nil
}

func (s *frameSlot) close() {
	s.closed = true
	s.current = nil
	s.locked = false
}
