package workflow

import (
	"fmt"

	"github.com/bryanchriswhite/captain/internal/capture"
	"github.com/bryanchriswhite/captain/internal/codec"
	"github.com/bryanchriswhite/captain/internal/metrics"
	"github.com/bryanchriswhite/captain/internal/session"
)

// HandleIntent applies a recording control intent. The toolbar's primary
// button is disabled while the intent is processed.
func (w *Workflow) HandleIntent(intent Intent) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if w.phase != AwaitingStartIntent && w.phase != Recording {
		return fmt.Errorf("%w: %s", ErrNotRecording, w.phase)
	}

	w.log.Info().Stringer("intent", intent).Msg("Received recording control intent")
	if w.toolbar != nil {
		w.toolbar.SetPrimaryButtonEnabled(false)
		defer func() {
			// the toolbar is gone once the run has finished
			if w.toolbar != nil {
				w.toolbar.SetPrimaryButtonEnabled(true)
			}
		}()
	}

	switch intent {
	case IntentStart:
		return w.startRecordingLocked()

	case IntentStop:
		err := w.closeSessionLocked()
		return w.finishLocked(err)

	case IntentPause:
		if w.session == nil {
			return ErrNoSession
		}
		w.session.Pause()
		return nil

	case IntentResume:
		if w.session == nil {
			return ErrNoSession
		}
		w.session.Resume()
		return nil

	default:
		return fmt.Errorf("unknown intent %s", intent)
	}
}

func (w *Workflow) startRecordingLocked() error {
	if w.session != nil && !w.session.Disposed() {
		return ErrSessionActive
	}

	vc, ok := w.codec.(codec.VideoCodec)
	if !ok || !vc.MultiFrame() {
		return ErrNotMultiFrame
	}

	if err := w.bindGPUDeviceLocked(); err != nil {
		return err
	}

	w.session = session.New(vc, w.device, w.log,
		session.WithFrameInterval(w.env.FrameInterval),
		session.WithFrameHook(func(uint64) { metrics.FramesEncodedTotal.Inc() }),
	)
	metrics.ActiveSessions.Inc()

	if w.toolbar != nil {
		w.toolbar.SetPrimaryButtonIntent(IntentStop)
	}
	w.phase = Recording
	w.publish(Event{Type: EventRecordingStarted})
	return nil
}

// bindGPUDeviceLocked hands the device's GPU context to the codec when every
// context the device captures through is the same one
func (w *Workflow) bindGPUDeviceLocked() error {
	lister, ok := w.device.(capture.GPUDeviceLister)
	if !ok {
		return nil
	}
	binder, ok := w.codec.(codec.GPUDeviceBinder)
	if !ok {
		return nil
	}

	devices := lister.GPUDevices()
	if len(devices) == 0 {
		return nil
	}
	first := devices[0]
	for _, d := range devices[1:] {
		if d != first {
			w.log.Debug().Int("devices", len(devices)).Msg("Capture spans several GPU devices, not binding")
			return nil
		}
	}

	if err := binder.BindDevice(first); err != nil {
		return fmt.Errorf("failed to bind GPU device: %w", err)
	}
	w.log.Info().Str("adapter", first.Adapter).Msg("Bound GPU device to codec")
	return nil
}

// HandleOptionRequest serves a settings request from the toolbar
func (w *Workflow) HandleOptionRequest(req OptionRequest) error {
	switch req {
	case GenericOptions:
		if w.env.OptionsWindow != nil {
			w.env.OptionsWindow(w.Config())
		}
		return nil
	default:
		return fmt.Errorf("%w: %d", ErrUnsupportedRequest, int(req))
	}
}
