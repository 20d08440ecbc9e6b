package workflow

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/bryanchriswhite/captain/internal/config"
)

// Set keeps one Workflow per configured workflow name so that capture
// devices are reused across runs
type Set struct {
	env Environment

	mu        sync.Mutex
	workflows map[string]*Workflow
}

// NewSet creates an empty set. env.Options must be set.
func NewSet(env Environment) *Set {
	env.withDefaults()
	return &Set{env: env, workflows: make(map[string]*Workflow)}
}

// Get returns the workflow for name, creating it on first use
func (s *Set) Get(name string) (*Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if w, ok := s.workflows[name]; ok {
		return w, nil
	}
	if s.env.Options == nil {
		return nil, fmt.Errorf("%w: %q", config.ErrWorkflowNotFound, name)
	}
	wf, err := s.env.Options.Workflow(name)
	if err != nil {
		return nil, err
	}
	w := New(wf, s.env)
	s.workflows[name] = w
	return w, nil
}

// Active returns the names of workflows that have been used, sorted
func (s *Set) Active() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.workflows))
	for name := range s.workflows {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Phase reports the phase of a used workflow, or Uninitialized
func (s *Set) Phase(name string) Phase {
	s.mu.Lock()
	w, ok := s.workflows[name]
	s.mu.Unlock()
	if !ok {
		return Uninitialized
	}
	return w.Phase()
}

// Sync closes idle workflows that are no longer configured
func (s *Set) Sync(opts *config.Options) {
	configured := make(map[string]bool, len(opts.Workflows))
	for _, wf := range opts.Workflows {
		configured[wf.Name] = true
	}

	s.mu.Lock()
	var stale []*Workflow
	for name, w := range s.workflows {
		if configured[name] {
			continue
		}
		if p := w.Phase(); p != Idle && p != Uninitialized {
			continue
		}
		stale = append(stale, w)
		delete(s.workflows, name)
	}
	s.mu.Unlock()

	for _, w := range stale {
		if err := w.Close(); err != nil {
			s.env.Logger.Warn().Err(err).Str("workflow", w.Name()).Msg("Failed to close removed workflow")
		}
	}
}

// Close closes every workflow in the set
func (s *Set) Close() error {
	s.mu.Lock()
	workflows := s.workflows
	s.workflows = make(map[string]*Workflow)
	s.mu.Unlock()

	var errs []error
	for _, w := range workflows {
		if err := w.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", w.Name(), err))
		}
	}
	return errors.Join(errs...)
}
