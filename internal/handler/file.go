package handler

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/bryanchriswhite/captain/internal/codec"
	"github.com/bryanchriswhite/captain/internal/config"
	"github.com/bryanchriswhite/captain/internal/pathtemplate"
	"github.com/bryanchriswhite/captain/internal/stream"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// DefaultPathTemplate saves under the pictures directory, named by capture
// type and timestamp
const DefaultPathTemplate = "{10}/Captain/{7} {0}-{2}-{3} {4}.{5}.{6}.{8}"

// File saves the encoded output to a new file
type File struct {
	fs      afero.Fs
	file    afero.File
	path    string
	log     zerolog.Logger
	closed  bool
	removed bool
}

// NewFile resolves the path template and creates the output file. The file
// must not already exist.
func NewFile(p Params) (Handler, error) {
	var o struct {
		PathTemplate string `mapstructure:"path_template"`
	}
	if err := p.Options.Decode(&o); err != nil {
		return nil, err
	}
	if o.PathTemplate == "" {
		o.PathTemplate = DefaultPathTemplate
	}

	path := ResolvePath(o.PathTemplate, p)
	fs := p.fs()

	if err := fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	f, err := fs.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrFileExists, path)
		}
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}

	log := p.Logger.With().Str("handler", "file").Str("path", path).Logger()
	log.Debug().Msg("Output file created")

	return &File{fs: fs, file: f, path: path, log: log}, nil
}

// ResolvePath expands a path template for the workflow and codec in p
func ResolvePath(template string, p Params) string {
	kind := "Screenshot"
	if p.Workflow.Type == config.Motion {
		kind = "Recording"
	}
	ext := "bin"
	if mt, ok := codec.MediaTypeOf(p.Codec); ok {
		ext = mt.Extension
	}

	values := pathtemplate.Defaults(p.now()).
		With(pathtemplate.Type, kind).
		With(pathtemplate.Extension, ext)

	path := pathtemplate.Expand(pathtemplate.Normalize(template), values)
	return filepath.Clean(os.ExpandEnv(path))
}

func (h *File) OutputStream() stream.Sink {
	return h.file
}

// URI locates the saved file. It is nil once an empty or discarded file has
// been removed.
func (h *File) URI() *url.URL {
	if h.removed {
		return nil
	}
	abs, err := filepath.Abs(h.path)
	if err != nil {
		abs = h.path
	}
	return &url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
}

// Path returns the output file path
func (h *File) Path() string {
	return h.path
}

// Handle closes the file, removing it when nothing was written
func (h *File) Handle() error {
	if h.closed {
		return nil
	}

	size, sizeErr := stream.Length(h.file)
	if sizeErr != nil {
		h.log.Warn().Err(sizeErr).Msg("Failed to determine output size")
	}

	if err := h.close(); err != nil {
		return err
	}

	if sizeErr == nil && size == 0 {
		if rmErr := h.fs.Remove(h.path); rmErr != nil {
			h.log.Warn().Err(rmErr).Msg("Failed to delete empty output file")
		} else {
			h.removed = true
			h.log.Debug().Msg("Deleted empty output file")
		}
		return nil
	}

	h.log.Info().Int64("bytes", size).Msg("Capture saved")
	return nil
}

// Discard closes and removes the output file
func (h *File) Discard() error {
	if err := h.close(); err != nil {
		return err
	}
	if err := h.fs.Remove(h.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove output file: %w", err)
	}
	h.removed = true
	return nil
}

func (h *File) Close() error {
	return h.close()
}

func (h *File) close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	if err := h.file.Close(); err != nil {
		return fmt.Errorf("failed to close output file: %w", err)
	}
	return nil
}
