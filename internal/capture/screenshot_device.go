package capture

import (
	"fmt"
	"image"

	"github.com/bryanchriswhite/captain/internal/logger"
	"github.com/bryanchriswhite/captain/internal/region"
	"github.com/kbinani/screenshot"
)

// ScreenshotDevice captures through the platform screenshot APIs (GDI on
// Windows, CoreGraphics on macOS, XShm on X11)
type ScreenshotDevice struct {
	*frameSlot
}

// NewScreenshotDevice creates a device for rect
func NewScreenshotDevice(rect region.Rect) (*ScreenshotDevice, error) {
	if screenshot.NumActiveDisplays() == 0 {
		return nil, fmt.Errorf("%w: no active displays", ErrNoBackend)
	}

	logger.WithComponent("screenshot-capture").Debug().
		Str("rect", rect.String()).
		Msg("Creating capture device")

	return &ScreenshotDevice{frameSlot: newFrameSlot(rect, grabScreenshot)}, nil
}

func grabScreenshot(rect region.Rect) (*image.RGBA, error) {
	img, err := screenshot.CaptureRect(rect.Image())
	if err != nil {
		return nil, fmt.Errorf("failed to capture screen: %w", err)
	}
	// normalise origin so frames always start at (0, 0)
	img.Rect = image.Rect(0, 0, rect.Size.Width, rect.Size.Height)
	return img, nil
}

func (d *ScreenshotDevice) AcquireFrame() error              { return d.acquire() }
func (d *ScreenshotDevice) LockFrame() (*Frame, error)       { return d.lock() }
func (d *ScreenshotDevice) UnlockFrame(frame *Frame) error   { return d.unlock(frame) }
func (d *ScreenshotDevice) ReleaseFrame() error              { return d.release() }
func (d *ScreenshotDevice) Bounds() region.Rect              { return d.rect }
func (d *ScreenshotDevice) Size() region.Size                { return d.rect.Size }
func (d *ScreenshotDevice) Name() string                     { return "screenshot" }
func (d *ScreenshotDevice) SetLocation(p region.Point) error { return d.move(p) }

func (d *ScreenshotDevice) Close() error {
	d.close()
	return nil
}
