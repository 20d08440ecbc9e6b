package codec

import (
	"image"
	"image/color/palette"
	"image/draw"
	"image/gif"
	"io"
	"time"

	"github.com/bryanchriswhite/captain/internal/capture"
	"github.com/bryanchriswhite/captain/internal/extension"
)

// GIFCodec encodes an animated GIF. Frames are quantised to the Plan 9
// palette as they arrive and the file is written on Close.
type GIFCodec struct {
	lifecycle
	width, height int
	dst           io.Writer
	fixedDelay    int
	dither        bool

	frames []*image.Paletted
	delays []int
	last   time.Duration
}

// NewGIF creates an animated GIF codec. Options: frame_delay_ms forces a
// constant delay instead of deriving it from frame timestamps; dither enables
// Floyd-Steinberg error diffusion.
func NewGIF(width, height int, dst io.Writer, opts extension.Options) (Codec, error) {
	if err := validateSize(width, height); err != nil {
		return nil, err
	}
	o := struct {
		FrameDelayMS int  `mapstructure:"frame_delay_ms"`
		Dither       bool `mapstructure:"dither"`
	}{Dither: true}
	if err := opts.Decode(&o); err != nil {
		return nil, err
	}

	return &GIFCodec{
		width:      width,
		height:     height,
		dst:        dst,
		fixedDelay: o.FrameDelayMS / 10,
		dither:     o.Dither,
	}, nil
}

func (c *GIFCodec) Start() error {
	return c.start()
}

func (c *GIFCodec) Feed(frame *capture.Frame) error {
	if err := c.checkFeed(frame, c.width, c.height); err != nil {
		return err
	}

	bounds := frame.Image.Bounds()
	p := image.NewPaletted(image.Rect(0, 0, bounds.Dx(), bounds.Dy()), palette.Plan9)
	if c.dither {
		draw.FloydSteinberg.Draw(p, p.Rect, frame.Image, bounds.Min)
	} else {
		draw.Draw(p, p.Rect, frame.Image, bounds.Min, draw.Src)
	}

	// the delay of a frame is only known once the next one arrives
	if n := len(c.delays); n > 0 && c.fixedDelay == 0 {
		c.delays[n-1] = centiseconds(frame.Timestamp - c.last)
	}
	c.last = frame.Timestamp

	c.frames = append(c.frames, p)
	c.delays = append(c.delays, c.defaultDelay())
	return nil
}

func (c *GIFCodec) defaultDelay() int {
	if c.fixedDelay > 0 {
		return c.fixedDelay
	}
	return 10
}

func centiseconds(d time.Duration) int {
	cs := int(d / (10 * time.Millisecond))
	if cs < 2 {
		// most decoders clamp lower delays to 10cs
		return 2
	}
	return cs
}

// Close writes the animation. A codec that never received a frame writes nothing.
func (c *GIFCodec) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if !c.started || len(c.frames) == 0 {
		return nil
	}

	anim := &gif.GIF{
		Image:     c.frames,
		Delay:     c.delays,
		LoopCount: 0,
		Config: image.Config{
			ColorModel: c.frames[0].Palette,
			Width:      c.width,
			Height:     c.height,
		},
	}
	c.frames, c.delays = nil, nil
	return gif.EncodeAll(c.dst, anim)
}

func (c *GIFCodec) MultiFrame() bool {
	return true
}

func (c *GIFCodec) MediaType() MediaType {
	return MediaType{Type: "image/gif", Extension: "gif"}
}
