package workflow

import (
	"time"

	"github.com/bryanchriswhite/captain/internal/capture"
	"github.com/bryanchriswhite/captain/internal/codec"
	"github.com/bryanchriswhite/captain/internal/config"
	"github.com/bryanchriswhite/captain/internal/handler"
	"github.com/bryanchriswhite/captain/internal/region"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// ToolbarFactory creates the recording toolbar for a motion workflow
type ToolbarFactory func(w config.Workflow) (Toolbar, error)

// Environment carries the services a workflow depends on. Nil registries and
// factories fall back to the built-in defaults.
type Environment struct {
	Logger zerolog.Logger

	// Options, when set, is consulted on every Start so that edits to the
	// workflow made since construction take effect
	Options *config.Manager

	StillCodecs *codec.Registry
	VideoCodecs *codec.Registry
	Handlers    *handler.Registry

	Devices  capture.Factory
	Screen   region.Screen
	Selector region.Selector
	Toolbars ToolbarFactory

	// OptionsWindow is invoked for generic option requests from the toolbar
	OptionsWindow func(w config.Workflow)

	Fs     afero.Fs
	Events EventSink
	Now    func() time.Time

	// FrameInterval paces recording sessions; zero records as fast as the
	// device allows
	FrameInterval time.Duration
}

func (e *Environment) withDefaults() {
	if e.StillCodecs == nil {
		e.StillCodecs = codec.StillCodecs()
	}
	if e.VideoCodecs == nil {
		e.VideoCodecs = codec.VideoCodecs()
	}
	if e.Handlers == nil {
		e.Handlers = handler.Defaults()
	}
	if e.Fs == nil {
		e.Fs = afero.NewOsFs()
	}
	if e.Now == nil {
		e.Now = time.Now
	}
	if e.Toolbars == nil {
		e.Toolbars = func(config.Workflow) (Toolbar, error) { return NewChannelToolbar(), nil }
	}
}
