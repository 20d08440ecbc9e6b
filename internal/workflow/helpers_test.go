package workflow

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/bryanchriswhite/captain/internal/capture"
	"github.com/bryanchriswhite/captain/internal/codec"
	"github.com/bryanchriswhite/captain/internal/config"
	"github.com/bryanchriswhite/captain/internal/extension"
	"github.com/bryanchriswhite/captain/internal/handler"
	"github.com/bryanchriswhite/captain/internal/logger"
	"github.com/bryanchriswhite/captain/internal/region"
	"github.com/spf13/afero"
)

type fakeDevice struct {
	mu       sync.Mutex
	rect     region.Rect
	frame    *capture.Frame
	acquired int
	locked   int
	unlocked int
	released int
	closed   bool
	gpus     []capture.GPUDevice
}

func (d *fakeDevice) AcquireFrame() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return capture.ErrClosed
	}
	img := image.NewRGBA(image.Rect(0, 0, d.rect.Size.Width, d.rect.Size.Height))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+3] = 255, 255
	}
	d.frame = &capture.Frame{Image: img, Timestamp: time.Duration(d.acquired) * time.Millisecond}
	d.acquired++
	return nil
}

func (d *fakeDevice) LockFrame() (*capture.Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.frame == nil {
		return nil, capture.ErrNoFrame
	}
	d.locked++
	return d.frame, nil
}

func (d *fakeDevice) UnlockFrame(*capture.Frame) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.unlocked++
	return nil
}

func (d *fakeDevice) ReleaseFrame() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frame = nil
	d.released++
	return nil
}

// cycles returns the acquire, lock, unlock and release counts
func (d *fakeDevice) cycles() [4]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return [4]int{d.acquired, d.locked, d.unlocked, d.released}
}

func (d *fakeDevice) Bounds() region.Rect { return d.rect }
func (d *fakeDevice) Size() region.Size   { return d.rect.Size }
func (d *fakeDevice) Name() string        { return "fake" }

func (d *fakeDevice) SetLocation(p region.Point) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rect.Location = p
	return nil
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *fakeDevice) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

type gpuDevice struct {
	*fakeDevice
}

func (d gpuDevice) GPUDevices() []capture.GPUDevice { return d.gpus }

// deviceFactory records every device it creates
type deviceFactory struct {
	mu      sync.Mutex
	devices []*fakeDevice
	gpus    []capture.GPUDevice
}

func (f *deviceFactory) create(rect region.Rect) (capture.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := &fakeDevice{rect: rect, gpus: f.gpus}
	f.devices = append(f.devices, d)
	if f.gpus != nil {
		return gpuDevice{d}, nil
	}
	return d, nil
}

func (f *deviceFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.devices)
}

// mutableSelector answers with whatever area it currently holds
type mutableSelector struct {
	mu   sync.Mutex
	area region.Rect
	err  error
}

func (s *mutableSelector) set(w, h int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.area = region.Rect{Size: region.Size{Width: w, Height: h}}
}

func (s *mutableSelector) move(x, y int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.area.Location = region.Point{X: x, Y: y}
}

func (s *mutableSelector) Select(ctx context.Context, container string) (region.Selection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return region.StaticSelector{Area: s.area}.Select(ctx, container)
}

// bindingCodec is a video codec that records GPU binding
type bindingCodec struct {
	bound []capture.GPUDevice
	fed   int
}

func (c *bindingCodec) Start() error              { return nil }
func (c *bindingCodec) Feed(*capture.Frame) error { c.fed++; return nil }
func (c *bindingCodec) Close() error              { return nil }
func (c *bindingCodec) MultiFrame() bool          { return true }
func (c *bindingCodec) BindDevice(d capture.GPUDevice) error {
	c.bound = append(c.bound, d)
	return nil
}

// recordingHandler records its lifecycle calls
type recordingHandler struct {
	name    string
	fail    error
	calls   *[]string
	handled bool
	closed  bool
}

func (h *recordingHandler) Handle() error {
	*h.calls = append(*h.calls, "handle "+h.name)
	h.handled = true
	return h.fail
}

func (h *recordingHandler) Close() error {
	*h.calls = append(*h.calls, "close "+h.name)
	h.closed = true
	return nil
}

// gatedSelector blocks until released, then hands out a selection whose
// Close fails
type gatedSelector struct {
	entered chan struct{}
	release chan struct{}
	closed  chan struct{}
}

func newGatedSelector() *gatedSelector {
	return &gatedSelector{
		entered: make(chan struct{}),
		release: make(chan struct{}),
		closed:  make(chan struct{}, 1),
	}
}

func (s *gatedSelector) Select(ctx context.Context, container string) (region.Selection, error) {
	close(s.entered)
	<-s.release
	return failingSelection{closed: s.closed}, nil
}

type failingSelection struct {
	closed chan struct{}
}

func (s failingSelection) Rect() region.Rect {
	return region.Rect{Size: region.Size{Width: 16, Height: 12}}
}

func (s failingSelection) Close() error {
	s.closed <- struct{}{}
	return errBoom
}

// recordingCodec is a still codec that records its lifecycle calls
type recordingCodec struct {
	calls *[]string
}

func (c *recordingCodec) Start() error {
	*c.calls = append(*c.calls, "start codec")
	return nil
}

func (c *recordingCodec) Feed(*capture.Frame) error {
	*c.calls = append(*c.calls, "feed codec")
	return nil
}

func (c *recordingCodec) Close() error {
	*c.calls = append(*c.calls, "close codec")
	return nil
}

func stillRegistry(name string, f codec.Factory) *codec.Registry {
	r := extension.NewRegistry[codec.Factory]("still codec")
	r.MustRegister(name, name, f)
	return r
}

type testEnv struct {
	Environment
	fs       afero.Fs
	devices  *deviceFactory
	selector *mutableSelector
	events   *EventLog
	toolbars chan *ChannelToolbar
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	te := &testEnv{
		fs:       afero.NewMemMapFs(),
		devices:  &deviceFactory{},
		selector: &mutableSelector{},
		events:   &EventLog{},
		toolbars: make(chan *ChannelToolbar, 4),
	}
	te.selector.set(16, 12)
	te.Environment = Environment{
		Logger:   logger.Nop(),
		Devices:  te.devices.create,
		Selector: te.selector,
		Fs:       te.fs,
		Events:   te.events,
		Toolbars: func(config.Workflow) (Toolbar, error) {
			tb := NewChannelToolbar()
			te.toolbars <- tb
			return tb, nil
		},
	}
	return te
}

func stillWorkflow(path string) config.Workflow {
	return config.Workflow{
		Name:     "still",
		Type:     config.Still,
		Region:   region.Region{Type: region.Manual},
		Codec:    config.ExtensionRef{Type: "png"},
		Handlers: []config.ExtensionRef{{Type: "file", Options: extension.Options{"path_template": path}}},
	}
}

func motionWorkflow(path string) config.Workflow {
	return config.Workflow{
		Name:     "motion",
		Type:     config.Motion,
		Region:   region.Region{Type: region.Manual},
		Codec:    config.ExtensionRef{Type: "mjpeg"},
		Handlers: []config.ExtensionRef{{Type: "file", Options: extension.Options{"path_template": path}}},
	}
}

func videoRegistry(name string, f codec.Factory) *codec.Registry {
	r := extension.NewRegistry[codec.Factory]("video codec")
	r.MustRegister(name, name, f)
	return r
}

func handlerRegistry(handlers ...*recordingHandler) *handler.Registry {
	r := extension.NewRegistry[handler.Factory]("handler")
	for _, h := range handlers {
		h := h
		r.MustRegister(h.name, h.name, func(handler.Params) (handler.Handler, error) { return h, nil })
	}
	return r
}

var errBoom = errors.New("boom")
