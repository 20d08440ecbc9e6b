package capture

import (
	"fmt"
	"strings"

	"github.com/bryanchriswhite/captain/internal/logger"
	"github.com/bryanchriswhite/captain/internal/region"
)

// Backend names accepted by NewFactory
const (
	BackendAuto       = "auto"
	BackendX11        = "x11"
	BackendScreenshot = "screenshot"
)

// Factory creates a capture device bound to a rectangle
type Factory func(rect region.Rect) (Device, error)

// NewFactory returns a factory for the named backend. The auto backend
// prefers X11 and falls back to the portable screenshot backend.
func NewFactory(backend string) (Factory, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendAuto:
		return autoDevice, nil
	case BackendX11:
		return func(rect region.Rect) (Device, error) { return NewX11Device(rect) }, nil
	case BackendScreenshot:
		return func(rect region.Rect) (Device, error) { return NewScreenshotDevice(rect) }, nil
	default:
		return nil, fmt.Errorf("unknown capture backend %q (use auto, x11 or screenshot)", backend)
	}
}

func autoDevice(rect region.Rect) (Device, error) {
	log := logger.WithComponent("capture-router")

	x11, err := NewX11Device(rect)
	if err == nil {
		log.Debug().Msg("Using X11 capture device")
		return x11, nil
	}
	log.Debug().Err(err).Msg("X11 capture not available, falling back to screenshot backend")

	shot, serr := NewScreenshotDevice(rect)
	if serr != nil {
		return nil, fmt.Errorf("%w: x11: %v; screenshot: %v", ErrNoBackend, err, serr)
	}
	return shot, nil
}
