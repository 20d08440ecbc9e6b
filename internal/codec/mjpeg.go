package codec

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"io"

	"github.com/bryanchriswhite/captain/internal/capture"
	"github.com/bryanchriswhite/captain/internal/extension"
)

const defaultBoundary = "frame"

// MJPEGCodec writes Motion JPEG as a multipart/x-mixed-replace stream, one
// JPEG part per frame. Browsers play the file directly.
type MJPEGCodec struct {
	lifecycle
	width, height int
	dst           io.Writer
	quality       int
	boundary      string
	buf           bytes.Buffer
	frameCount    uint64
}

// NewMJPEG creates a Motion JPEG codec. Options: quality (1-100), boundary.
func NewMJPEG(width, height int, dst io.Writer, opts extension.Options) (Codec, error) {
	if err := validateSize(width, height); err != nil {
		return nil, err
	}
	quality, err := jpegQuality(opts)
	if err != nil {
		return nil, err
	}
	o := struct {
		Boundary string `mapstructure:"boundary"`
	}{Boundary: defaultBoundary}
	if err := opts.Decode(&o); err != nil {
		return nil, err
	}

	return &MJPEGCodec{
		width:    width,
		height:   height,
		dst:      dst,
		quality:  quality,
		boundary: o.Boundary,
	}, nil
}

func (c *MJPEGCodec) Start() error {
	return c.start()
}

// Feed encodes the frame as JPEG and writes it as one multipart part
func (c *MJPEGCodec) Feed(frame *capture.Frame) error {
	if err := c.checkFeed(frame, c.width, c.height); err != nil {
		return err
	}

	c.buf.Reset()
	if err := jpeg.Encode(&c.buf, frame.Image, &jpeg.Options{Quality: c.quality}); err != nil {
		return fmt.Errorf("failed to encode JPEG: %w", err)
	}

	if _, err := fmt.Fprintf(c.dst, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\nX-Timestamp: %d\r\n\r\n",
		c.boundary, c.buf.Len(), frame.Timestamp.Milliseconds()); err != nil {
		return err
	}
	if _, err := c.dst.Write(c.buf.Bytes()); err != nil {
		return err
	}
	if _, err := io.WriteString(c.dst, "\r\n"); err != nil {
		return err
	}

	c.frameCount++
	return nil
}

// Close writes the closing boundary if any frame was written
func (c *MJPEGCodec) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if c.frameCount == 0 {
		return nil
	}
	_, err := fmt.Fprintf(c.dst, "--%s--\r\n", c.boundary)
	return err
}

// Frames returns the number of frames written
func (c *MJPEGCodec) Frames() uint64 {
	return c.frameCount
}

func (c *MJPEGCodec) MultiFrame() bool {
	return true
}

func (c *MJPEGCodec) MediaType() MediaType {
	return MediaType{Type: "multipart/x-mixed-replace", Extension: "mjpeg"}
}
