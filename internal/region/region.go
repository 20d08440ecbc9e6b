// Package region describes the screen rectangle a workflow captures and the
// strategies used to resolve it when a workflow starts.
package region

import (
	"errors"
	"fmt"
	"image"
	"strings"
)

// Capturable regions must be strictly larger than these dimensions.
const (
	MinimumWidth  = 4
	MinimumHeight = 4
)

var (
	ErrSelectionCanceled = errors.New("region selection was canceled")
	ErrNotImplemented    = errors.New("region type is not implemented")
	ErrNoSelector        = errors.New("no interactive region selector available")
	ErrNoMonitors        = errors.New("no active monitors found")
	ErrUnknownType       = errors.New("unknown region type")
)

// Type selects how a region is resolved
type Type string

const (
	Manual        Type = "manual"
	ActiveMonitor Type = "active-monitor"
	ActiveWindow  Type = "active-window"
	Fixed         Type = "fixed"
	FullDesktop   Type = "full-desktop"
)

// ParseType validates a region type name
func ParseType(s string) (Type, error) {
	switch t := Type(strings.ToLower(strings.TrimSpace(s))); t {
	case Manual, ActiveMonitor, ActiveWindow, Fixed, FullDesktop:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
	}
}

// Point is a screen location in virtual desktop coordinates
type Point struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
}

// Size is a width/height pair
type Size struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// Capturable reports whether the size exceeds the minimum capture dimensions
func (s Size) Capturable() bool {
	return s.Width > MinimumWidth && s.Height > MinimumHeight
}

// Rect is a resolved location and size
type Rect struct {
	Location Point `json:"location" yaml:"location"`
	Size     Size  `json:"size" yaml:"size"`
}

// RectFromImage converts an image rectangle
func RectFromImage(r image.Rectangle) Rect {
	return Rect{
		Location: Point{X: r.Min.X, Y: r.Min.Y},
		Size:     Size{Width: r.Dx(), Height: r.Dy()},
	}
}

// Image converts the rect to an image rectangle
func (r Rect) Image() image.Rectangle {
	return image.Rect(r.Location.X, r.Location.Y, r.Location.X+r.Size.Width, r.Location.Y+r.Size.Height)
}

func (r Rect) String() string {
	return fmt.Sprintf("%s at (%d, %d)", r.Size, r.Location.X, r.Location.Y)
}

// ParseRect parses "x,y,w,h"
func ParseRect(s string) (Rect, error) {
	var r Rect
	if _, err := fmt.Sscanf(s, "%d,%d,%d,%d", &r.Location.X, &r.Location.Y, &r.Size.Width, &r.Size.Height); err != nil {
		return Rect{}, fmt.Errorf("invalid region %q (want x,y,width,height): %w", s, err)
	}
	return r, nil
}

// Region is a capture rectangle request. Rect holds the configured rectangle
// for Fixed regions and the most recently resolved rectangle otherwise.
type Region struct {
	Type Type `json:"type" yaml:"type"`
	Rect `yaml:",inline"`
}
