package codec

import (
	"image"
	"image/jpeg"
	"image/png"
	"io"

	"github.com/bryanchriswhite/captain/internal/capture"
	"github.com/bryanchriswhite/captain/internal/extension"
	"golang.org/x/image/bmp"
)

type encodeFunc func(w io.Writer, img image.Image) error

// StillImageCodec encodes exactly one frame
type StillImageCodec struct {
	lifecycle
	width, height int
	dst           io.Writer
	media         MediaType
	encode        encodeFunc
	fed           bool
}

func newStill(width, height int, dst io.Writer, media MediaType, encode encodeFunc) (*StillImageCodec, error) {
	if err := validateSize(width, height); err != nil {
		return nil, err
	}
	return &StillImageCodec{
		width:  width,
		height: height,
		dst:    dst,
		media:  media,
		encode: encode,
	}, nil
}

func (c *StillImageCodec) Start() error {
	return c.start()
}

func (c *StillImageCodec) Feed(frame *capture.Frame) error {
	if err := c.checkFeed(frame, c.width, c.height); err != nil {
		return err
	}
	if c.fed {
		return ErrSingleFrame
	}
	c.fed = true
	return c.encode(c.dst, frame.Image)
}

func (c *StillImageCodec) Close() error {
	c.closed = true
	return nil
}

func (c *StillImageCodec) MediaType() MediaType {
	return c.media
}

// NewPNG creates a PNG still image codec
func NewPNG(width, height int, dst io.Writer, opts extension.Options) (Codec, error) {
	var o struct {
		Compression string `mapstructure:"compression"`
	}
	if err := opts.Decode(&o); err != nil {
		return nil, err
	}

	enc := &png.Encoder{CompressionLevel: pngCompression(o.Compression)}
	return newStill(width, height, dst, MediaType{Type: "image/png", Extension: "png"}, enc.Encode)
}

func pngCompression(level string) png.CompressionLevel {
	switch level {
	case "none":
		return png.NoCompression
	case "fast":
		return png.BestSpeed
	case "best":
		return png.BestCompression
	default:
		return png.DefaultCompression
	}
}

// NewJPEG creates a JPEG still image codec. Option quality ranges 1-100.
func NewJPEG(width, height int, dst io.Writer, opts extension.Options) (Codec, error) {
	quality, err := jpegQuality(opts)
	if err != nil {
		return nil, err
	}
	encode := func(w io.Writer, img image.Image) error {
		return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
	}
	return newStill(width, height, dst, MediaType{Type: "image/jpeg", Extension: "jpg"}, encode)
}

// NewBMP creates a BMP still image codec
func NewBMP(width, height int, dst io.Writer, _ extension.Options) (Codec, error) {
	return newStill(width, height, dst, MediaType{Type: "image/bmp", Extension: "bmp"}, bmp.Encode)
}

func jpegQuality(opts extension.Options) (int, error) {
	o := struct {
		Quality int `mapstructure:"quality"`
	}{Quality: 90}
	if err := opts.Decode(&o); err != nil {
		return 0, err
	}
	if o.Quality < 1 {
		o.Quality = 1
	}
	if o.Quality > 100 {
		o.Quality = 100
	}
	return o.Quality, nil
}
