package capture

import (
	"fmt"
	"image"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/captain/internal/logger"
	"github.com/bryanchriswhite/captain/internal/region"
)

// X11Device captures a region of the X11 root window
type X11Device struct {
	*frameSlot
	conn   *xgb.Conn
	root   xproto.Window
	screen *xproto.ScreenInfo
	mu     sync.Mutex
}

// NewX11Device connects to the X server and binds a device to rect
func NewX11Device(rect region.Rect) (*X11Device, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	setup := xproto.Setup(conn)
	screen := setup.DefaultScreen(conn)

	d := &X11Device{
		conn:   conn,
		root:   screen.Root,
		screen: screen,
	}
	d.frameSlot = newFrameSlot(rect, d.captureRegion)

	logger.WithComponent("x11-capture").Debug().
		Str("rect", rect.String()).
		Uint8("depth", screen.RootDepth).
		Msg("Creating capture device")

	return d, nil
}

// captureRegion reads rect from the root window
func (d *X11Device) captureRegion(rect region.Rect) (*image.RGBA, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	reply, err := xproto.GetImage(
		d.conn,
		xproto.ImageFormatZPixmap,
		xproto.Drawable(d.root),
		int16(rect.Location.X), int16(rect.Location.Y),
		uint16(rect.Size.Width), uint16(rect.Size.Height),
		0xffffffff,
	).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get image: %w", err)
	}

	return convertImageData(reply.Data, int(d.screen.RootDepth), rect.Size.Width, rect.Size.Height)
}

// convertImageData converts 24/32-bit ZPixmap BGRX data to RGBA
func convertImageData(data []byte, depth, width, height int) (*image.RGBA, error) {
	if depth != 24 && depth != 32 {
		return nil, fmt.Errorf("unsupported root depth %d", depth)
	}
	if len(data) < width*height*4 {
		return nil, fmt.Errorf("short image reply: got %d bytes for %dx%d", len(data), width, height)
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < width*height*4; i += 4 {
		img.Pix[i+0] = data[i+2]
		img.Pix[i+1] = data[i+1]
		img.Pix[i+2] = data[i]
		img.Pix[i+3] = 255
	}
	return img, nil
}

func (d *X11Device) AcquireFrame() error              { return d.acquire() }
func (d *X11Device) LockFrame() (*Frame, error)       { return d.lock() }
func (d *X11Device) UnlockFrame(frame *Frame) error   { return d.unlock(frame) }
func (d *X11Device) ReleaseFrame() error              { return d.release() }
func (d *X11Device) Bounds() region.Rect              { return d.rect }
func (d *X11Device) Size() region.Size                { return d.rect.Size }
func (d *X11Device) Name() string                     { return "x11" }
func (d *X11Device) SetLocation(p region.Point) error { return d.move(p) }

// Close closes the X11 connection
func (d *X11Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.close()
	if d.conn != nil {
		d.conn.Close()
		d.conn = nil
	}
	return nil
}
