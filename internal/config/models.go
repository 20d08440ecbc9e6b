package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bryanchriswhite/captain/internal/extension"
	"github.com/bryanchriswhite/captain/internal/region"
)

var (
	ErrWorkflowNotFound = errors.New("workflow not found")
	ErrInvalidWorkflow  = errors.New("invalid workflow")
)

// WorkflowType distinguishes single-frame captures from recordings
type WorkflowType string

const (
	Still  WorkflowType = "still"
	Motion WorkflowType = "motion"
)

// ExtensionRef names a registered codec or handler and carries its options
type ExtensionRef struct {
	Type    string            `json:"type" yaml:"type" mapstructure:"type"`
	Options extension.Options `json:"options,omitempty" yaml:"options,omitempty" mapstructure:"options"`
}

// Workflow is the persisted description of a capture workflow
type Workflow struct {
	Name              string         `json:"name" yaml:"name" mapstructure:"name"`
	Type              WorkflowType   `json:"type" yaml:"type" mapstructure:"type"`
	Region            region.Region  `json:"region" yaml:"region" mapstructure:"region"`
	Codec             ExtensionRef   `json:"codec" yaml:"codec" mapstructure:"codec"`
	Handlers          []ExtensionRef `json:"handlers" yaml:"handlers" mapstructure:"handlers"`
	Hotkey            string         `json:"hotkey,omitempty" yaml:"hotkey,omitempty" mapstructure:"hotkey"`
	ShowInTrayMenu    bool           `json:"show_in_tray_menu" yaml:"show_in_tray_menu" mapstructure:"show_in_tray_menu"`
	ShowInContextMenu bool           `json:"show_in_context_menu" yaml:"show_in_context_menu" mapstructure:"show_in_context_menu"`
}

// Validate checks the fields a workflow needs to start
func (w Workflow) Validate() error {
	if strings.TrimSpace(w.Name) == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidWorkflow)
	}
	if w.Type != Still && w.Type != Motion {
		return fmt.Errorf("%w: %s: unknown type %q", ErrInvalidWorkflow, w.Name, w.Type)
	}
	if _, err := region.ParseType(string(w.Region.Type)); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidWorkflow, w.Name, err)
	}
	if w.Codec.Type == "" {
		return fmt.Errorf("%w: %s: missing codec", ErrInvalidWorkflow, w.Name)
	}
	for i, h := range w.Handlers {
		if h.Type == "" {
			return fmt.Errorf("%w: %s: handler %d has no type", ErrInvalidWorkflow, w.Name, i)
		}
	}
	return nil
}

// Clone returns a deep copy of the workflow's slices and option maps
func (w Workflow) Clone() Workflow {
	out := w
	out.Codec = w.Codec.clone()
	out.Handlers = make([]ExtensionRef, len(w.Handlers))
	for i, h := range w.Handlers {
		out.Handlers[i] = h.clone()
	}
	return out
}

func (r ExtensionRef) clone() ExtensionRef {
	if r.Options == nil {
		return r
	}
	opts := make(extension.Options, len(r.Options))
	for k, v := range r.Options {
		opts[k] = v
	}
	return ExtensionRef{Type: r.Type, Options: opts}
}

// Options represents the application configuration
type Options struct {
	LogLevel           string     `json:"log_level" yaml:"log_level"`
	ServerPort         int        `json:"server_port" yaml:"server_port"`
	CaptureBackend     string     `json:"capture_backend" yaml:"capture_backend"`
	EnableStatusPopups bool       `json:"enable_status_popups" yaml:"enable_status_popups"`
	Workflows          []Workflow `json:"workflows" yaml:"workflows"`
}

// Defaults returns the options written on first run
func Defaults() *Options {
	return &Options{
		LogLevel:           "info",
		ServerPort:         8080,
		CaptureBackend:     "auto",
		EnableStatusPopups: true,
		Workflows: []Workflow{
			{
				Name:   "Screenshot",
				Type:   Still,
				Region: region.Region{Type: region.Manual},
				Codec:  ExtensionRef{Type: "png"},
				Handlers: []ExtensionRef{
					{Type: "file"},
					{Type: "clipboard"},
				},
				Hotkey:         "PrintScreen",
				ShowInTrayMenu: true,
			},
			{
				Name:   "Recording",
				Type:   Motion,
				Region: region.Region{Type: region.Manual},
				Codec:  ExtensionRef{Type: "mjpeg", Options: extension.Options{"quality": 85}},
				Handlers: []ExtensionRef{
					{Type: "file"},
				},
				Hotkey:         "Shift+PrintScreen",
				ShowInTrayMenu: true,
			},
		},
	}
}

func (o *Options) clone() *Options {
	out := *o
	out.Workflows = make([]Workflow, len(o.Workflows))
	for i, w := range o.Workflows {
		out.Workflows[i] = w.Clone()
	}
	return &out
}
