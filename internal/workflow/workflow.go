// Package workflow orchestrates a capture: region resolution, device and
// codec setup, the still or motion capture path, and the handler pipeline.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/bryanchriswhite/captain/internal/capture"
	"github.com/bryanchriswhite/captain/internal/codec"
	"github.com/bryanchriswhite/captain/internal/config"
	"github.com/bryanchriswhite/captain/internal/handler"
	"github.com/bryanchriswhite/captain/internal/metrics"
	"github.com/bryanchriswhite/captain/internal/region"
	"github.com/bryanchriswhite/captain/internal/session"
	"github.com/bryanchriswhite/captain/internal/stream"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/afero/mem"
)

var (
	ErrBusy               = errors.New("workflow is already running")
	ErrClosed             = errors.New("workflow is closed")
	ErrSessionActive      = errors.New("a previous recording session has not been closed")
	ErrNotMultiFrame      = errors.New("codec does not accept multiple frames")
	ErrNoSession          = errors.New("no recording session")
	ErrNotRecording       = errors.New("workflow is not awaiting recording intents")
	ErrUnsupportedRequest = errors.New("unsupported option request")
)

// Phase is the lifecycle position of a workflow run
type Phase int

const (
	Uninitialized Phase = iota
	RegionAcquired
	DeviceReady
	StreamAndCodecReady
	Encoding
	AwaitingStartIntent
	Recording
	Finalizing
	Idle
)

var phaseNames = [...]string{
	Uninitialized:       "uninitialized",
	RegionAcquired:      "region-acquired",
	DeviceReady:         "device-ready",
	StreamAndCodecReady: "stream-and-codec-ready",
	Encoding:            "encoding",
	AwaitingStartIntent: "awaiting-start-intent",
	Recording:           "recording",
	Finalizing:          "finalizing",
	Idle:                "idle",
}

func (p Phase) String() string {
	if int(p) >= 0 && int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// Workflow runs one configured capture workflow. A workflow may be started
// again once a run has finished; the capture device is kept between runs
// while the region size stays the same.
type Workflow struct {
	env  Environment
	base config.Workflow
	log  zerolog.Logger

	mu        sync.Mutex
	phase     Phase
	starting  bool
	closed    bool
	current   config.Workflow
	runID     string
	startedAt time.Time
	rect      region.Rect

	selection    region.Selection
	device       capture.Device
	stream       *stream.MultiStream
	codec        codec.Codec
	handlers     []handler.Handler
	handlerNames []string
	toolbar      Toolbar
	session      *session.Session
	outputs      []*url.URL

	stop      chan struct{}
	listeners sync.WaitGroup
}

// New creates a workflow from its persisted description
func New(base config.Workflow, env Environment) *Workflow {
	env.withDefaults()
	return &Workflow{
		env:     env,
		base:    base.Clone(),
		current: base.Clone(),
		log:     env.Logger.With().Str("workflow", base.Name).Logger(),
	}
}

// Name returns the workflow name
func (w *Workflow) Name() string {
	return w.base.Name
}

// Config returns the description used by the latest run
func (w *Workflow) Config() config.Workflow {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current.Clone()
}

func (w *Workflow) Phase() Phase {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.phase
}

// Device returns the retained capture device, if any
func (w *Workflow) Device() capture.Device {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.device
}

// Session returns the active recording session, if any
func (w *Workflow) Session() *session.Session {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.session
}

// Toolbar returns the toolbar of a motion run awaiting intents, if any
func (w *Workflow) Toolbar() Toolbar {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.toolbar
}

// Outputs returns the locations produced by the latest finished run
func (w *Workflow) Outputs() []*url.URL {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]*url.URL(nil), w.outputs...)
}

// RunID identifies the latest run
func (w *Workflow) RunID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.runID
}

// Start runs the workflow. Still workflows capture, encode and finish before
// Start returns. Motion workflows return once the toolbar is waiting for a
// start intent. A dismissed selection or a region below the minimum size
// ends the run silently.
func (w *Workflow) Start(ctx context.Context, container string) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	if w.starting || (w.phase != Uninitialized && w.phase != Idle) {
		w.mu.Unlock()
		return ErrBusy
	}
	w.starting = true
	w.current = w.refresh()
	w.runID = uuid.NewString()
	w.startedAt = w.env.Now()
	w.outputs = nil
	current := w.current.Clone()
	w.publish(Event{Type: EventStarted})
	metrics.RecordStart(string(current.Type))
	w.log.Info().
		Str("run_id", w.runID).
		Str("type", string(current.Type)).
		Str("container", container).
		Msg("Starting workflow")
	w.mu.Unlock()

	resolver := region.Resolver{Screen: w.env.Screen, Selector: w.env.Selector, Logger: w.log}
	rect, sel, err := resolver.Resolve(ctx, current.Region, container)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.starting = false

	if w.closed {
		if sel != nil {
			if err := sel.Close(); err != nil {
				w.log.Warn().Err(err).Msg("Failed to close selection")
			}
		}
		return ErrClosed
	}
	if err != nil {
		if errors.Is(err, region.ErrSelectionCanceled) || errors.Is(err, context.Canceled) {
			w.abortLocked("selection canceled")
			return nil
		}
		return w.failLocked(fmt.Errorf("failed to acquire region: %w", err))
	}

	w.selection = sel
	w.rect = rect
	w.current.Region.Rect = rect
	w.phase = RegionAcquired
	w.log.Debug().Str("region", rect.String()).Msg("Region acquired")

	if !rect.Size.Capturable() {
		w.log.Trace().Msg("Capture dismissed")
		w.abortLocked("region too small")
		return nil
	}

	if err := w.prepareDeviceLocked(rect); err != nil {
		return w.failLocked(err)
	}
	w.phase = DeviceReady

	if err := w.prepareOutputLocked(current); err != nil {
		return w.failLocked(err)
	}
	w.phase = StreamAndCodecReady

	if current.Type == config.Still {
		return w.captureStillLocked()
	}
	return w.awaitIntentsLocked(current)
}

// refresh returns the latest persisted version of the workflow
func (w *Workflow) refresh() config.Workflow {
	if w.env.Options == nil {
		return w.base.Clone()
	}
	latest, err := w.env.Options.Workflow(w.base.Name)
	if err != nil {
		return w.base.Clone()
	}
	return latest
}

// prepareDeviceLocked reuses the capture device when the size is unchanged
func (w *Workflow) prepareDeviceLocked(rect region.Rect) error {
	if w.device != nil && w.device.Size() == rect.Size {
		if w.device.Bounds().Location == rect.Location {
			w.log.Debug().Str("device", w.device.Name()).Msg("Reusing capture device")
			return nil
		}
		if mover, ok := w.device.(capture.Relocatable); ok {
			if err := mover.SetLocation(rect.Location); err != nil {
				return fmt.Errorf("failed to move capture device: %w", err)
			}
			w.log.Debug().Str("device", w.device.Name()).Str("region", rect.String()).Msg("Reusing capture device at new location")
			return nil
		}
	}

	if w.device != nil {
		if err := w.device.Close(); err != nil {
			w.log.Warn().Err(err).Msg("Failed to close previous capture device")
		}
		w.device = nil
	}

	if w.env.Devices == nil {
		return capture.ErrNoBackend
	}

	w.log.Debug().Str("region", rect.String()).Msg("Creating capture device")
	dev, err := w.env.Devices(rect)
	if err != nil {
		return fmt.Errorf("failed to create capture device: %w", err)
	}
	w.device = dev
	return nil
}

func (w *Workflow) prepareOutputLocked(wf config.Workflow) error {
	w.stream = stream.New()

	codecs := w.env.StillCodecs
	if wf.Type == config.Motion {
		codecs = w.env.VideoCodecs
	}
	factory, err := codecs.Lookup(wf.Codec.Type)
	if err != nil {
		return err
	}

	size := w.rect.Size
	c, err := factory(size.Width, size.Height, w.stream, wf.Codec.Options)
	if err != nil {
		return fmt.Errorf("failed to create codec %q: %w", wf.Codec.Type, err)
	}
	w.codec = c

	for _, ref := range wf.Handlers {
		hf, err := w.env.Handlers.Lookup(ref.Type)
		if err != nil {
			return err
		}
		h, err := hf(handler.Params{
			Workflow: wf,
			Codec:    c,
			Stream:   w.stream,
			Options:  ref.Options,
			Fs:       w.env.Fs,
			Logger:   w.log,
			Now:      w.env.Now,
		})
		if err != nil {
			return fmt.Errorf("failed to create handler %q: %w", ref.Type, err)
		}
		w.handlers = append(w.handlers, h)
		w.handlerNames = append(w.handlerNames, ref.Type)

		if sc, ok := h.(handler.StreamContributor); ok {
			if err := w.stream.Add(sc.OutputStream()); err != nil {
				return err
			}
			w.log.Trace().Str("handler", ref.Type).Msg("Added handler output stream")
		}
	}
	return nil
}

func (w *Workflow) captureStillLocked() error {
	w.phase = Encoding
	if err := w.stream.Add(mem.NewFileHandle(mem.CreateFile(w.runID))); err != nil {
		return w.failLocked(err)
	}

	w.log.Info().Msg("Capturing screen")
	if err := w.device.AcquireFrame(); err != nil {
		return w.failLocked(fmt.Errorf("failed to acquire frame: %w", err))
	}
	frame, err := w.device.LockFrame()
	if err != nil {
		_ = w.device.ReleaseFrame()
		return w.failLocked(fmt.Errorf("failed to lock frame: %w", err))
	}

	w.log.Info().Msg("Encoding capture")
	encErr := w.encodeStill(frame)

	if err := w.device.UnlockFrame(frame); err != nil && encErr == nil {
		encErr = fmt.Errorf("failed to unlock frame: %w", err)
	}
	if err := w.device.ReleaseFrame(); err != nil && encErr == nil {
		encErr = fmt.Errorf("failed to release frame: %w", err)
	}
	if encErr != nil {
		return w.failLocked(encErr)
	}
	metrics.FramesEncodedTotal.Inc()

	return w.finishLocked(nil)
}

func (w *Workflow) encodeStill(frame *capture.Frame) error {
	if err := w.codec.Start(); err != nil {
		return fmt.Errorf("failed to start codec: %w", err)
	}
	if err := w.codec.Feed(frame); err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}
	err := w.codec.Close()
	w.codec = nil
	if err != nil {
		return fmt.Errorf("failed to finalize codec: %w", err)
	}
	return nil
}

func (w *Workflow) awaitIntentsLocked(wf config.Workflow) error {
	t, err := w.env.Toolbars(wf)
	if err != nil {
		return w.failLocked(fmt.Errorf("failed to create toolbar: %w", err))
	}
	w.toolbar = t

	if a, ok := w.selection.(ToolbarAttacher); ok {
		if err := a.AttachToolbar(t); err != nil {
			w.log.Warn().Err(err).Msg("Failed to attach toolbar to selection")
		}
	}

	w.stop = make(chan struct{})
	w.listeners.Add(1)
	go w.listen(t, w.stop)

	w.phase = AwaitingStartIntent
	w.log.Info().Msg("Waiting for recording intent")
	return nil
}

func (w *Workflow) listen(t Toolbar, stop <-chan struct{}) {
	defer w.listeners.Done()
	for {
		select {
		case <-stop:
			return
		case intent, ok := <-t.Intents():
			if !ok {
				return
			}
			if err := w.HandleIntent(intent); err != nil {
				w.log.Error().Err(err).Stringer("intent", intent).Msg("Failed to handle recording intent")
			}
		case req, ok := <-t.OptionRequests():
			if !ok {
				return
			}
			if err := w.HandleOptionRequest(req); err != nil {
				w.log.Error().Err(err).Msg("Failed to handle option request")
			}
		}
	}
}

// Finish closes the codec, runs every handler in order and releases the
// run's resources. The first handler failure stops the remaining handlers
// and is returned. Calling Finish on a workflow that is not running is a
// no-op.
func (w *Workflow) Finish() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.finishLocked(nil)
}

func (w *Workflow) finishLocked(prior error) error {
	if w.phase == Uninitialized || w.phase == Idle || w.phase == Finalizing {
		return nil
	}
	w.phase = Finalizing
	w.log.Info().Msg("Finalizing capture")

	errs := []error{prior}
	if err := w.closeSessionLocked(); err != nil {
		errs = append(errs, err)
	}

	if w.codec != nil {
		if err := w.codec.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to finalize codec: %w", err))
		}
		w.codec = nil
	}

	handleErr := w.runHandlersLocked()
	errs = append(errs, handleErr)

	if err := w.releaseLocked(false); err != nil {
		w.log.Warn().Err(err).Msg("Failed to release workflow resources")
	}
	w.phase = Idle

	err := errors.Join(errs...)
	if err != nil {
		w.publish(Event{Type: EventFailed, Error: err.Error(), URIs: w.outputStrings()})
		metrics.RecordOutcome(string(w.current.Type), metrics.OutcomeFailed, 0)
		return err
	}

	w.publish(Event{Type: EventFinished, URIs: w.outputStrings()})
	metrics.RecordOutcome(string(w.current.Type), metrics.OutcomeFinished, w.env.Now().Sub(w.startedAt).Seconds())
	w.log.Info().Int("outputs", len(w.outputs)).Msg("Workflow is done")
	return nil
}

func (w *Workflow) runHandlersLocked() error {
	if len(w.handlers) > 0 {
		w.log.Info().Msg("Triggering handlers")
	}
	for i, h := range w.handlers {
		if err := h.Handle(); err != nil {
			metrics.IncHandlerFailure(w.handlerNames[i])
			return fmt.Errorf("handler %q: %w", w.handlerNames[i], err)
		}
		if p, ok := h.(handler.URIProvider); ok {
			if u := p.URI(); u != nil {
				w.outputs = append(w.outputs, u)
			}
		}
	}
	return nil
}

func (w *Workflow) closeSessionLocked() error {
	if w.session == nil {
		return nil
	}
	err := w.session.Close()
	w.session = nil
	metrics.ActiveSessions.Dec()
	if err != nil {
		return fmt.Errorf("recording session failed: %w", err)
	}
	return nil
}

// releaseLocked frees everything a run allocated except the capture device.
// Discarded runs remove handler artifacts.
func (w *Workflow) releaseLocked(discard bool) error {
	var errs []error

	if err := w.closeSessionLocked(); err != nil {
		errs = append(errs, err)
	}
	if w.codec != nil {
		if err := w.codec.Close(); err != nil {
			errs = append(errs, err)
		}
		w.codec = nil
	}
	if w.stop != nil {
		close(w.stop)
		w.stop = nil
	}
	if w.toolbar != nil {
		if err := w.toolbar.Close(); err != nil {
			errs = append(errs, err)
		}
		w.toolbar = nil
	}
	if w.selection != nil {
		if err := w.selection.Close(); err != nil {
			errs = append(errs, err)
		}
		w.selection = nil
	}
	if w.stream != nil {
		// sinks belong to the handlers that contributed them
		w.stream.Clear()
		w.stream = nil
	}
	for _, h := range w.handlers {
		var err error
		if d, ok := h.(handler.Discarder); ok && discard {
			err = d.Discard()
		} else {
			err = h.Close()
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	w.handlers = nil
	w.handlerNames = nil

	return errors.Join(errs...)
}

func (w *Workflow) abortLocked(reason string) {
	if err := w.releaseLocked(true); err != nil {
		w.log.Warn().Err(err).Msg("Failed to release workflow resources")
	}
	w.phase = Idle
	w.publish(Event{Type: EventAborted, Reason: reason})
	metrics.RecordOutcome(string(w.current.Type), metrics.OutcomeAborted, 0)
	w.log.Info().Str("reason", reason).Msg("Workflow aborted")
}

func (w *Workflow) failLocked(err error) error {
	if relErr := w.releaseLocked(true); relErr != nil {
		w.log.Warn().Err(relErr).Msg("Failed to release workflow resources")
	}
	w.phase = Idle
	w.publish(Event{Type: EventFailed, Error: err.Error()})
	metrics.RecordOutcome(string(w.current.Type), metrics.OutcomeFailed, 0)
	w.log.Error().Err(err).Msg("Workflow failed")
	return err
}

// Close abandons any run in progress without running handlers, releases the
// capture device and waits for the intent listener to exit
func (w *Workflow) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true

	var errs []error
	if w.phase != Uninitialized && w.phase != Idle {
		if err := w.releaseLocked(true); err != nil {
			errs = append(errs, err)
		}
		w.phase = Idle
		w.publish(Event{Type: EventAborted, Reason: "workflow closed"})
		metrics.RecordOutcome(string(w.current.Type), metrics.OutcomeAborted, 0)
	}
	if w.device != nil {
		if err := w.device.Close(); err != nil {
			errs = append(errs, err)
		}
		w.device = nil
	}
	w.mu.Unlock()

	w.listeners.Wait()
	return errors.Join(errs...)
}

func (w *Workflow) publish(e Event) {
	if w.env.Events == nil {
		return
	}
	e.RunID = w.runID
	e.Workflow = w.base.Name
	e.Time = w.env.Now()
	w.env.Events.Publish(e)
}

func (w *Workflow) outputStrings() []string {
	if len(w.outputs) == 0 {
		return nil
	}
	out := make([]string, len(w.outputs))
	for i, u := range w.outputs {
		out[i] = u.String()
	}
	return out
}
