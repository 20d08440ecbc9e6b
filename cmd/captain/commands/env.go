package commands

import (
	"context"
	"time"

	"github.com/bryanchriswhite/captain/internal/capture"
	"github.com/bryanchriswhite/captain/internal/codec"
	"github.com/bryanchriswhite/captain/internal/config"
	"github.com/bryanchriswhite/captain/internal/display"
	"github.com/bryanchriswhite/captain/internal/handler"
	"github.com/bryanchriswhite/captain/internal/logger"
	"github.com/bryanchriswhite/captain/internal/region"
	"github.com/bryanchriswhite/captain/internal/workflow"
	"github.com/spf13/afero"
)

// defaultFPS caps motion workflows started from the CLI or the API
const defaultFPS = 15

// newEnvironment wires the workflow services for the local desktop. Motion
// sessions are capped at fps frames per second; fps <= 0 leaves them
// unthrottled. The returned display must be closed by the caller.
func newEnvironment(configMgr *config.Manager, events workflow.EventSink, fps int) (workflow.Environment, *display.System, error) {
	devices, err := capture.NewFactory(effectiveBackend(configMgr.Get()))
	if err != nil {
		return workflow.Environment{}, nil, err
	}

	screen := display.NewSystem()
	env := workflow.Environment{
		Logger:      *logger.WithComponent("workflow"),
		Options:     configMgr,
		StillCodecs: codec.StillCodecs(),
		VideoCodecs: codec.VideoCodecs(),
		Handlers:    handler.Defaults(),
		Devices:     devices,
		Screen:      screen,
		// there is no on-screen clipper; manual regions come from --region
		// or the request body and otherwise cover the whole desktop
		Selector: region.ContextSelector{Fallback: desktopSelector{screen: screen}},
		Fs:       afero.NewOsFs(),
		Events:   events,

		FrameInterval: frameInterval(fps),
	}
	return env, screen, nil
}

func frameInterval(fps int) time.Duration {
	if fps <= 0 {
		return 0
	}
	return time.Second / time.Duration(fps)
}

// desktopSelector selects the full virtual desktop
type desktopSelector struct {
	screen region.Screen
}

func (s desktopSelector) Select(ctx context.Context, container string) (region.Selection, error) {
	area, err := desktopRect(s.screen)
	if err != nil {
		return nil, err
	}
	return region.StaticSelector{Area: area}.Select(ctx, container)
}

// desktopRect is the union of all monitors
func desktopRect(screen region.Screen) (region.Rect, error) {
	monitors, err := screen.Monitors()
	if err != nil {
		return region.Rect{}, err
	}
	if len(monitors) == 0 {
		return region.Rect{}, region.ErrNoMonitors
	}
	return region.RectFromImage(region.VirtualScreen(monitors)), nil
}
