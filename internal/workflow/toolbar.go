package workflow

import (
	"fmt"
	"strings"
	"sync"
)

// Intent is a recording control request
type Intent int

const (
	IntentStart Intent = iota
	IntentStop
	IntentPause
	IntentResume
)

var intentNames = map[Intent]string{
	IntentStart:  "start",
	IntentStop:   "stop",
	IntentPause:  "pause",
	IntentResume: "resume",
}

func (i Intent) String() string {
	if name, ok := intentNames[i]; ok {
		return name
	}
	return fmt.Sprintf("Intent(%d)", int(i))
}

// ParseIntent parses an intent name
func ParseIntent(s string) (Intent, error) {
	for i, name := range intentNames {
		if strings.EqualFold(s, name) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown intent %q", s)
}

// OptionRequest is a request from the toolbar to show settings
type OptionRequest int

const (
	GenericOptions OptionRequest = iota
)

// Toolbar is the recording control surface of a motion workflow
type Toolbar interface {
	Intents() <-chan Intent
	OptionRequests() <-chan OptionRequest
	SetPrimaryButtonEnabled(enabled bool)
	SetPrimaryButtonIntent(intent Intent)
	Close() error
}

// ToolbarAttacher is implemented by selections that can host a toolbar
type ToolbarAttacher interface {
	AttachToolbar(t Toolbar) error
}

// ChannelToolbar is a headless toolbar driven through buffered channels
type ChannelToolbar struct {
	intents  chan Intent
	requests chan OptionRequest
	done     chan struct{}

	mu            sync.Mutex
	enabled       bool
	primaryIntent Intent
	closeOnce     sync.Once
}

// NewChannelToolbar creates a toolbar whose primary button starts recording
func NewChannelToolbar() *ChannelToolbar {
	return &ChannelToolbar{
		intents:       make(chan Intent, 8),
		requests:      make(chan OptionRequest, 8),
		done:          make(chan struct{}),
		enabled:       true,
		primaryIntent: IntentStart,
	}
}

func (t *ChannelToolbar) Intents() <-chan Intent               { return t.intents }
func (t *ChannelToolbar) OptionRequests() <-chan OptionRequest { return t.requests }

// Send queues an intent. It returns false once the toolbar is closed or when
// the queue is full.
func (t *ChannelToolbar) Send(i Intent) bool {
	select {
	case <-t.done:
		return false
	default:
	}
	select {
	case t.intents <- i:
		return true
	case <-t.done:
		return false
	default:
		return false
	}
}

// RequestOptions queues an option request
func (t *ChannelToolbar) RequestOptions(r OptionRequest) bool {
	select {
	case <-t.done:
		return false
	default:
	}
	select {
	case t.requests <- r:
		return true
	default:
		return false
	}
}

// Press sends the intent currently bound to the primary button, if enabled
func (t *ChannelToolbar) Press() bool {
	t.mu.Lock()
	enabled, intent := t.enabled, t.primaryIntent
	t.mu.Unlock()
	if !enabled {
		return false
	}
	return t.Send(intent)
}

func (t *ChannelToolbar) SetPrimaryButtonEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
}

func (t *ChannelToolbar) SetPrimaryButtonIntent(intent Intent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.primaryIntent = intent
}

// PrimaryButton reports the primary button state
func (t *ChannelToolbar) PrimaryButton() (enabled bool, intent Intent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled, t.primaryIntent
}

// Done is closed when the toolbar is closed
func (t *ChannelToolbar) Done() <-chan struct{} {
	return t.done
}

func (t *ChannelToolbar) Close() error {
	t.closeOnce.Do(func() { close(t.done) })
	return nil
}
