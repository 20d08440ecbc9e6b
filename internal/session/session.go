// Package session runs the acquire/encode loop of a recording on a dedicated
// worker goroutine.
package session

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/bryanchriswhite/captain/internal/capture"
	"github.com/bryanchriswhite/captain/internal/codec"
	"github.com/rs/zerolog"
)

// State of a motion capture session
type State int

const (
	Idle State = iota
	Recording
	Paused
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Paused:
		return "paused"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Option configures a session
type Option func(*Session)

// WithFrameInterval paces the loop so that frames are acquired at most once
// per interval. Zero captures as fast as the device allows.
func WithFrameInterval(d time.Duration) Option {
	return func(s *Session) { s.interval = d }
}

// WithFrameHook registers a function called on the worker after each frame
// has been fed to the codec
func WithFrameHook(fn func(n uint64)) Option {
	return func(s *Session) { s.onFrame = fn }
}

// Session feeds frames from a device into a codec until closed.
//
// Only the worker goroutine touches the device and the codec. Controllers
// change the state and join.
type Session struct {
	codec    codec.Codec
	device   capture.Device
	log      zerolog.Logger
	interval time.Duration
	onFrame  func(n uint64)

	mu       sync.Mutex
	cond     *sync.Cond
	state    State
	frames   uint64
	err      error
	disposed bool

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New starts recording from device into c on a new worker goroutine. The
// worker starts the codec before its first frame.
func New(c codec.Codec, device capture.Device, log zerolog.Logger, opts ...Option) *Session {
	s := &Session{
		codec:  c,
		device: device,
		log:    log.With().Str("component", "session").Logger(),
		state:  Recording,
	}
	s.cond = sync.NewCond(&s.mu)
	for _, opt := range opts {
		opt(s)
	}

	s.log.Info().Str("device", device.Name()).Msg("Starting encoder worker")
	s.wg.Add(1)
	go s.run()
	return s
}

func (s *Session) run() {
	defer s.wg.Done()

	// capture backends may bind per-thread resources
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := s.codec.Start(); err != nil {
		s.fail(fmt.Errorf("failed to start codec: %w", err))
		return
	}
	s.log.Debug().Msg("Encoder worker started")

	for {
		s.mu.Lock()
		for s.state == Paused {
			s.cond.Wait()
			s.log.Trace().Msg("Encoder worker woken")
		}
		state := s.state
		s.mu.Unlock()

		if state == Idle {
			break
		}

		started := time.Now()
		if err := s.captureFrame(); err != nil {
			s.fail(err)
			return
		}

		if s.interval > 0 {
			if rest := s.interval - time.Since(started); rest > 0 {
				time.Sleep(rest)
			}
		}
	}

	s.log.Debug().Uint64("frames", s.Frames()).Msg("Encoder worker exited")
}

func (s *Session) captureFrame() error {
	if err := s.device.AcquireFrame(); err != nil {
		return fmt.Errorf("failed to acquire frame: %w", err)
	}

	frame, err := s.device.LockFrame()
	if err != nil {
		return fmt.Errorf("failed to lock frame: %w", err)
	}

	feedErr := s.codec.Feed(frame)
	if err := s.device.UnlockFrame(frame); err != nil && feedErr == nil {
		feedErr = fmt.Errorf("failed to unlock frame: %w", err)
	}
	if err := s.device.ReleaseFrame(); err != nil && feedErr == nil {
		feedErr = fmt.Errorf("failed to release frame: %w", err)
	}
	if feedErr != nil {
		return fmt.Errorf("failed to encode frame: %w", feedErr)
	}

	s.mu.Lock()
	s.frames++
	n := s.frames
	s.mu.Unlock()

	if s.onFrame != nil {
		s.onFrame(n)
	}
	return nil
}

func (s *Session) fail(err error) {
	s.log.Error().Err(err).Msg("Encoder worker stopped")
	s.mu.Lock()
	s.err = err
	s.state = Idle
	s.mu.Unlock()
}

// Pause suspends acquisition. It has no effect unless recording.
func (s *Session) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Recording {
		s.state = Paused
	}
}

// Resume continues a paused session
func (s *Session) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Paused {
		s.state = Recording
		s.cond.Broadcast()
	}
}

// Wake interrupts a parked worker without changing state
func (s *Session) Wake() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cond.Broadcast()
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Frames is the number of frames fed to the codec so far
func (s *Session) Frames() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Disposed reports whether Close has completed
func (s *Session) Disposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

// Err returns the error that stopped the worker, if any
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close stops the worker and waits for it to exit. No frame is fed after
// Close returns. The codec and device are left open for the caller.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = Idle
		s.cond.Broadcast()
		s.mu.Unlock()

		s.log.Debug().Msg("Waiting for encoder worker to join")
		s.wg.Wait()

		s.mu.Lock()
		s.disposed = true
		s.mu.Unlock()
	})
	return s.Err()
}
