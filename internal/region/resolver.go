package region

import (
	"context"
	"fmt"
	"image"

	"github.com/rs/zerolog"
)

// Screen reports monitor layout and pointer location
type Screen interface {
	Monitors() ([]image.Rectangle, error)
	Pointer() (image.Point, error)
}

// Selection is the result of an interactive selection gesture. The selection
// UI stays alive until Close so a recording toolbar can be attached to it.
type Selection interface {
	Rect() Rect
	Close() error
}

// Selector runs an interactive region-selection gesture. Implementations must
// return ErrSelectionCanceled when the user dismisses the gesture and honour
// ctx cancellation.
type Selector interface {
	Select(ctx context.Context, container string) (Selection, error)
}

// Resolver turns a region request into a concrete rectangle
type Resolver struct {
	Screen   Screen
	Selector Selector
	Logger   zerolog.Logger
}

// Resolve computes the rectangle for r. Manual regions return the live
// selection, which the caller owns and must close.
func (res *Resolver) Resolve(ctx context.Context, r Region, container string) (Rect, Selection, error) {
	switch r.Type {
	case Manual:
		if res.Selector == nil {
			return Rect{}, nil, ErrNoSelector
		}
		sel, err := res.Selector.Select(ctx, container)
		if err != nil {
			return Rect{}, nil, err
		}
		return sel.Rect(), sel, nil

	case ActiveMonitor:
		monitors, err := res.monitors()
		if err != nil {
			return Rect{}, nil, err
		}
		pointer, err := res.Screen.Pointer()
		if err != nil {
			res.Logger.Debug().Err(err).Msg("pointer unavailable, using primary monitor")
			return RectFromImage(monitors[0]), nil, nil
		}
		for _, m := range monitors {
			if pointer.In(m) {
				return RectFromImage(m), nil, nil
			}
		}
		return RectFromImage(monitors[0]), nil, nil

	case ActiveWindow:
		return Rect{}, nil, fmt.Errorf("%w: %s", ErrNotImplemented, r.Type)

	case Fixed:
		return r.Rect, nil, nil

	case FullDesktop:
		monitors, err := res.monitors()
		if err != nil {
			return Rect{}, nil, err
		}
		return RectFromImage(VirtualScreen(monitors)), nil, nil

	default:
		return Rect{}, nil, fmt.Errorf("%w: %q", ErrUnknownType, r.Type)
	}
}

func (res *Resolver) monitors() ([]image.Rectangle, error) {
	if res.Screen == nil {
		return nil, ErrNoMonitors
	}
	monitors, err := res.Screen.Monitors()
	if err != nil {
		return nil, err
	}
	if len(monitors) == 0 {
		return nil, ErrNoMonitors
	}
	return monitors, nil
}

// VirtualScreen is the bounding box of every monitor
func VirtualScreen(monitors []image.Rectangle) image.Rectangle {
	var union image.Rectangle
	for _, m := range monitors {
		union = union.Union(m)
	}
	return union
}

// StaticSelector answers every selection request with a fixed rectangle.
// Headless front ends (CLI, HTTP API) use it in place of the on-screen clipper.
type StaticSelector struct {
	Area Rect
}

func (s StaticSelector) Select(ctx context.Context, _ string) (Selection, error) {
	if err := ctx.Err(); err != nil {
		return nil, ErrSelectionCanceled
	}
	return staticSelection(s.Area), nil
}

type staticSelection Rect

func (s staticSelection) Rect() Rect   { return Rect(s) }
func (s staticSelection) Close() error { return nil }

type areaKey struct{}

// WithArea attaches a selection rectangle to ctx for ContextSelector
func WithArea(ctx context.Context, area Rect) context.Context {
	return context.WithValue(ctx, areaKey{}, area)
}

// ContextSelector answers with the rectangle attached by WithArea, or defers
// to Fallback when there is none. Without a fallback the selection is
// canceled.
type ContextSelector struct {
	Fallback Selector
}

func (s ContextSelector) Select(ctx context.Context, container string) (Selection, error) {
	if area, ok := ctx.Value(areaKey{}).(Rect); ok {
		return StaticSelector{Area: area}.Select(ctx, container)
	}
	if s.Fallback != nil {
		return s.Fallback.Select(ctx, container)
	}
	return nil, ErrSelectionCanceled
}
