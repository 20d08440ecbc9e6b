// Package codec defines the encoder contract consumed by workflows and the
// built-in still image and motion encoders.
package codec

import (
	"errors"
	"fmt"
	"io"

	"github.com/bryanchriswhite/captain/internal/capture"
	"github.com/bryanchriswhite/captain/internal/extension"
)

var (
	ErrNotStarted     = errors.New("codec has not been started")
	ErrAlreadyStarted = errors.New("codec has already been started")
	ErrClosed         = errors.New("codec is closed")
	ErrSingleFrame    = errors.New("codec accepts a single frame")
	ErrNilFrame       = errors.New("nil frame")
	ErrInvalidSize    = errors.New("invalid frame size")
)

// Codec consumes frames and writes encoded bytes to its destination
type Codec interface {
	// Start begins an encoding context
	Start() error

	// Feed encodes one frame
	Feed(frame *capture.Frame) error

	// Close finalises the output. Safe to call more than once.
	Close() error
}

// VideoCodec is a codec able to encode more than one frame
type VideoCodec interface {
	Codec
	MultiFrame() bool
}

// MediaType is the output media type of a codec
type MediaType struct {
	Type      string `json:"type"`
	Extension string `json:"extension"`
}

// MediaTyper is implemented by codecs that declare their output media type
type MediaTyper interface {
	MediaType() MediaType
}

// GPUDeviceBinder is implemented by codecs that can encode on the same GPU
// context the capture device acquires frames on
type GPUDeviceBinder interface {
	BindDevice(device capture.GPUDevice) error
}

// MediaTypeOf returns the declared media type of c, if any
func MediaTypeOf(c Codec) (MediaType, bool) {
	if mt, ok := c.(MediaTyper); ok {
		return mt.MediaType(), true
	}
	return MediaType{}, false
}

// IsMultiFrame reports whether c accepts multiple frames
func IsMultiFrame(c Codec) bool {
	vc, ok := c.(VideoCodec)
	return ok && vc.MultiFrame()
}

// Factory constructs a codec writing width x height frames to dst
type Factory func(width, height int, dst io.Writer, opts extension.Options) (Codec, error)

// Registry maps codec type names to factories
type Registry = extension.Registry[Factory]

// lifecycle tracks the start/close state shared by the built-in codecs
type lifecycle struct {
	started bool
	closed  bool
}

func (l *lifecycle) start() error {
	if l.closed {
		return ErrClosed
	}
	if l.started {
		return ErrAlreadyStarted
	}
	l.started = true
	return nil
}

func (l *lifecycle) checkFeed(frame *capture.Frame, width, height int) error {
	if l.closed {
		return ErrClosed
	}
	if !l.started {
		return ErrNotStarted
	}
	if frame == nil || frame.Image == nil {
		return ErrNilFrame
	}
	if b := frame.Image.Bounds(); b.Dx() != width || b.Dy() != height {
		return fmt.Errorf("%w: got %dx%d, want %dx%d", ErrInvalidSize, b.Dx(), b.Dy(), width, height)
	}
	return nil
}

func validateSize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}
	return nil
}
