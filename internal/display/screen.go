// Package display reports the monitor layout and pointer position used to
// resolve ActiveMonitor and FullDesktop regions.
package display

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/captain/internal/logger"
	"github.com/kbinani/screenshot"
)

var ErrNoPointer = errors.New("pointer position unavailable")

// System queries the local display. Monitor bounds come from the portable
// screenshot backend; the pointer is read over X11 when a server is reachable.
type System struct {
	mu   sync.Mutex
	conn *xgb.Conn
	root xproto.Window
	// dialed is set after the first X11 connection attempt
	dialed bool
}

// NewSystem creates a display query helper. The X11 connection is opened lazily.
func NewSystem() *System {
	return &System{}
}

// Monitors returns the bounds of every active display
func (s *System) Monitors() ([]image.Rectangle, error) {
	n := screenshot.NumActiveDisplays()
	if n <= 0 {
		return nil, fmt.Errorf("no active displays found")
	}

	monitors := make([]image.Rectangle, 0, n)
	for i := 0; i < n; i++ {
		monitors = append(monitors, screenshot.GetDisplayBounds(i))
	}
	return monitors, nil
}

// Pointer returns the pointer location in root window coordinates
func (s *System) Pointer() (image.Point, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dialed {
		s.dialed = true
		conn, err := xgb.NewConn()
		if err != nil {
			logger.WithComponent("display").Debug().Err(err).Msg("X11 unavailable for pointer queries")
		} else {
			s.conn = conn
			s.root = xproto.Setup(conn).DefaultScreen(conn).Root
		}
	}
	if s.conn == nil {
		return image.Point{}, ErrNoPointer
	}

	reply, err := xproto.QueryPointer(s.conn, s.root).Reply()
	if err != nil {
		return image.Point{}, fmt.Errorf("failed to query pointer: %w", err)
	}
	return image.Pt(int(reply.RootX), int(reply.RootY)), nil
}

// Close releases the X11 connection if one was opened
func (s *System) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	return nil
}
