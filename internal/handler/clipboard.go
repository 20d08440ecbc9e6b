package handler

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"runtime"
	"sync"

	"github.com/bryanchriswhite/captain/internal/codec"
	"github.com/bryanchriswhite/captain/internal/stream"
	"github.com/rs/zerolog"
	"github.com/spf13/afero/mem"
	"golang.design/x/clipboard"
	_ "golang.org/x/image/bmp"
)

var clipboardMediaTypes = map[string]bool{
	"image/png":           true,
	"image/gif":           true,
	"image/jpeg":          true,
	"image/pjpeg":         true,
	"image/bmp":           true,
	"image/x-windows-bmp": true,
}

// ClipboardWriter places PNG image data on the clipboard
type ClipboardWriter interface {
	WriteImage(png []byte) error
}

// SystemClipboard writes to the desktop clipboard
type SystemClipboard struct {
	once sync.Once
	err  error
}

func (c *SystemClipboard) WriteImage(data []byte) error {
	c.once.Do(func() { c.err = clipboard.Init() })
	if c.err != nil {
		return fmt.Errorf("clipboard unavailable: %w", c.err)
	}
	clipboard.Write(clipboard.FmtImage, data)
	return nil
}

var systemClipboard = &SystemClipboard{}

// Clipboard copies the encoded image to the clipboard
type Clipboard struct {
	sink   *mem.File
	media  codec.MediaType
	writer ClipboardWriter
	log    zerolog.Logger
}

// NewClipboard builds a clipboard handler writing to the system clipboard
func NewClipboard(p Params) (Handler, error) {
	return NewClipboardWith(systemClipboard)(p)
}

// NewClipboardWith returns a clipboard factory writing through w
func NewClipboardWith(w ClipboardWriter) Factory {
	return func(p Params) (Handler, error) {
		mt, ok := codec.MediaTypeOf(p.Codec)
		if !ok || !clipboardMediaTypes[mt.Type] {
			return nil, fmt.Errorf("%w: %q cannot be copied to the clipboard", ErrUnsupportedMediaType, mt.Type)
		}
		return &Clipboard{
			sink:   mem.NewFileHandle(mem.CreateFile("clipboard")),
			media:  mt,
			writer: w,
			log:    p.Logger.With().Str("handler", "clipboard").Logger(),
		}, nil
	}
}

func (h *Clipboard) OutputStream() stream.Sink {
	return h.sink
}

// Handle rewinds the buffered output and publishes it as PNG
func (h *Clipboard) Handle() error {
	if _, err := h.sink.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind clipboard buffer: %w", err)
	}
	data, err := io.ReadAll(h.sink)
	if err != nil {
		return fmt.Errorf("failed to read clipboard buffer: %w", err)
	}
	if len(data) == 0 {
		h.log.Debug().Msg("Nothing to copy")
		return nil
	}

	if h.media.Type != "image/png" {
		if data, err = toPNG(data); err != nil {
			return err
		}
	}

	// some clipboard backends require the owning OS thread to stay fixed
	done := make(chan error, 1)
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		done <- h.writer.WriteImage(data)
	}()
	if err := <-done; err != nil {
		return err
	}

	h.log.Info().Int("bytes", len(data)).Msg("Copied to clipboard")
	return nil
}

func (h *Clipboard) Close() error {
	return h.sink.Close()
}

func toPNG(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image for clipboard: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode clipboard image: %w", err)
	}
	return buf.Bytes(), nil
}
