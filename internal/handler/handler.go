// Package handler implements the post-capture steps of a workflow. Handlers
// may contribute a sink to the workflow's output stream before encoding and
// run their Handle step after the codec has been closed.
package handler

import (
	"errors"
	"net/url"
	"time"

	"github.com/bryanchriswhite/captain/internal/codec"
	"github.com/bryanchriswhite/captain/internal/config"
	"github.com/bryanchriswhite/captain/internal/extension"
	"github.com/bryanchriswhite/captain/internal/stream"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

var (
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrFileExists           = errors.New("output file already exists")
)

// Handler is a post-capture step
type Handler interface {
	Handle() error
	Close() error
}

// StreamContributor is implemented by handlers that add a sink to the
// workflow's output stream
type StreamContributor interface {
	OutputStream() stream.Sink
}

// URIProvider is implemented by handlers whose result has a location
type URIProvider interface {
	URI() *url.URL
}

// Discarder is implemented by handlers that leave something behind on Close
// which must be removed when a capture is abandoned
type Discarder interface {
	Discard() error
}

// Params carries everything a handler constructor may inspect
type Params struct {
	Workflow config.Workflow
	Codec    codec.Codec
	Stream   *stream.MultiStream
	Options  extension.Options
	Fs       afero.Fs
	Logger   zerolog.Logger
	Now      func() time.Time
}

// Factory validates applicability and builds a handler
type Factory func(p Params) (Handler, error)

// Registry maps handler names to factories
type Registry = extension.Registry[Factory]

// Defaults returns a registry with the built-in handlers
func Defaults() *Registry {
	r := extension.NewRegistry[Factory]("handler")
	r.MustRegister("file", "Save to file", NewFile)
	r.MustRegister("clipboard", "Copy to clipboard", NewClipboard)
	return r
}

func (p Params) fs() afero.Fs {
	if p.Fs == nil {
		return afero.NewOsFs()
	}
	return p.Fs
}

func (p Params) now() func() time.Time {
	if p.Now == nil {
		return time.Now
	}
	return p.Now
}
