// Package preview streams a live Motion JPEG view of the desktop over HTTP so
// a region can be framed in a browser before a workflow runs.
package preview

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"net/http"
	"sync"
	"time"

	"github.com/bryanchriswhite/captain/internal/capture"
	"github.com/rs/zerolog"
)

const boundary = "frame"

// ErrStopped is returned by Run after Stop has been called
var ErrStopped = errors.New("preview stopped")

// OpenFunc opens the device frames are pumped from
type OpenFunc func() (capture.Device, error)

// Config controls the preview stream
type Config struct {
	FPS     int
	Quality int
}

// DefaultConfig is a low-rate preview good enough for framing
func DefaultConfig() Config {
	return Config{FPS: 5, Quality: 70}
}

// Broadcaster encodes frames once and fans them out to every connected HTTP
// client. Frames are only captured while at least one client is connected.
type Broadcaster struct {
	config Config
	log    zerolog.Logger

	mu      sync.Mutex
	clients map[chan []byte]struct{}
	stopped bool

	// wake is signaled when the first client connects
	wake chan struct{}
	done chan struct{}

	frames uint64
}

// New creates a broadcaster. Zero fields in config take their defaults.
func New(config Config, log zerolog.Logger) *Broadcaster {
	def := DefaultConfig()
	if config.FPS <= 0 {
		config.FPS = def.FPS
	}
	if config.Quality <= 0 || config.Quality > 100 {
		config.Quality = def.Quality
	}
	return &Broadcaster{
		config:  config,
		log:     log,
		clients: make(map[chan []byte]struct{}),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Clients returns the number of connected viewers
func (b *Broadcaster) Clients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Frames returns the number of frames broadcast so far
func (b *Broadcaster) Frames() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.frames
}

// WriteFrame sends a frame to all connected clients. Slow clients skip frames.
func (b *Broadcaster) WriteFrame(frame image.Image) error {
	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, frame, &jpeg.Options{Quality: b.config.Quality}); err != nil {
		return fmt.Errorf("failed to encode JPEG: %w", err)
	}
	data := buf.Bytes()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.frames++
	for ch := range b.clients {
		select {
		case ch <- data:
		default:
		}
	}
	return nil
}

// Run pumps frames from a device opened with open while clients are connected
// and closes the device when the last one leaves. It returns when ctx is done
// or Stop is called.
func (b *Broadcaster) Run(ctx context.Context, open OpenFunc) error {
	interval := time.Second / time.Duration(b.config.FPS)
	for {
		if b.Clients() == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-b.done:
				return ErrStopped
			case <-b.wake:
				continue
			}
		}

		device, err := open()
		if err != nil {
			b.log.Warn().Err(err).Msg("Failed to open preview device")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-b.done:
				return ErrStopped
			case <-time.After(time.Second):
			}
			continue
		}

		err = b.pump(ctx, device, interval)
		if closeErr := device.Close(); closeErr != nil {
			b.log.Warn().Err(closeErr).Msg("Failed to close preview device")
		}
		if err != nil {
			return err
		}
	}
}

// pump captures until no clients remain. It returns nil when the last client
// leaves so the device can be closed until someone reconnects.
func (b *Broadcaster) pump(ctx context.Context, device capture.Device, interval time.Duration) error {
	b.log.Debug().Str("device", device.Name()).Msg("Preview started")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for b.Clients() > 0 {
		if err := b.captureOne(device); err != nil {
			b.log.Warn().Err(err).Msg("Preview frame failed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.done:
			return ErrStopped
		case <-ticker.C:
		}
	}
	b.log.Debug().Msg("Preview idle")
	return nil
}

func (b *Broadcaster) captureOne(device capture.Device) error {
	if err := device.AcquireFrame(); err != nil {
		return err
	}
	defer device.ReleaseFrame()

	frame, err := device.LockFrame()
	if err != nil {
		return err
	}
	err = b.WriteFrame(frame.Image)
	if unlockErr := device.UnlockFrame(frame); err == nil {
		err = unlockErr
	}
	return err
}

// Stop disconnects every client and makes Run return
func (b *Broadcaster) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}
	b.stopped = true
	close(b.done)
	for ch := range b.clients {
		close(ch)
		delete(b.clients, ch)
	}
}

func (b *Broadcaster) subscribe() (chan []byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return nil, false
	}
	ch := make(chan []byte, 2)
	b.clients[ch] = struct{}{}
	if len(b.clients) == 1 {
		select {
		case b.wake <- struct{}{}:
		default:
		}
	}
	b.log.Info().Int("clients", len(b.clients)).Msg("Preview client connected")
	return ch, true
}

func (b *Broadcaster) unsubscribe(ch chan []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[ch]; !ok {
		return
	}
	delete(b.clients, ch)
	b.log.Info().Int("clients", len(b.clients)).Msg("Preview client disconnected")
}

// ServeHTTP streams frames as multipart/x-mixed-replace until the client
// disconnects or the broadcaster is stopped.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ch, ok := b.subscribe()
	if !ok {
		http.Error(w, ErrStopped.Error(), http.StatusServiceUnavailable)
		return
	}
	defer b.unsubscribe(ch)

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+boundary)
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case data, ok := <-ch:
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", boundary, len(data)); err != nil {
				return
			}
			if _, err := w.Write(data); err != nil {
				return
			}
			if _, err := w.Write([]byte("\r\n")); err != nil {
				return
			}
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
		}
	}
}
