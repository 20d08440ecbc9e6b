package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bryanchriswhite/captain/internal/logger"
	"github.com/google/renameio/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Manager handles loading, mutating and persisting the options file
type Manager struct {
	configPath string
	options    *Options
	mu         sync.RWMutex
}

// DefaultPath returns $HOME/.config/captain/options.yaml
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "captain", "options.yaml"), nil
}

// NewManager loads the options at configFile, or at the default location when
// empty. A missing file is created with default options.
func NewManager(configFile string) (*Manager, error) {
	path := configFile
	if path == "" {
		var err error
		if path, err = DefaultPath(); err != nil {
			return nil, err
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	m := &Manager{configPath: path}
	log := logger.WithComponent("config")

	if err := m.load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		log.Info().Str("path", path).Msg("Options file not found, creating defaults")
		m.options = Defaults()
		if err := m.Save(); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	}

	log.Info().
		Str("path", m.configPath).
		Int("workflows", len(m.options.Workflows)).
		Msg("Options loaded")

	return m, nil
}

// load reads and validates the options file
func (m *Manager) load() error {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return err
	}

	opts := Defaults()
	opts.Workflows = nil
	if err := yaml.Unmarshal(data, opts); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if opts.Workflows == nil {
		opts.Workflows = []Workflow{}
	}

	seen := make(map[string]bool, len(opts.Workflows))
	for _, w := range opts.Workflows {
		if err := w.Validate(); err != nil {
			return err
		}
		if seen[w.Name] {
			return fmt.Errorf("%w: duplicate name %q", ErrInvalidWorkflow, w.Name)
		}
		seen[w.Name] = true
	}

	m.mu.Lock()
	m.options = opts
	m.mu.Unlock()
	return nil
}

// Reload re-reads the options file
func (m *Manager) Reload() error {
	return m.load()
}

// Save atomically writes the options to disk
func (m *Manager) Save() error {
	m.mu.RLock()
	data, err := yaml.Marshal(m.options)
	m.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := renameio.WriteFile(m.configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	logger.WithComponent("config").Debug().Str("path", m.configPath).Msg("Options saved")
	return nil
}

// Get returns a copy of the current options
func (m *Manager) Get() *Options {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.options.clone()
}

// Workflows returns copies of every configured workflow
func (m *Manager) Workflows() []Workflow {
	return m.Get().Workflows
}

// Workflow returns the named workflow
func (m *Manager) Workflow(name string) (Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, w := range m.options.Workflows {
		if w.Name == name {
			return w.Clone(), nil
		}
	}
	return Workflow{}, fmt.Errorf("%w: %q", ErrWorkflowNotFound, name)
}

// SetWorkflow inserts or replaces a workflow by name and saves
func (m *Manager) SetWorkflow(w Workflow) error {
	if err := w.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	replaced := false
	for i := range m.options.Workflows {
		if m.options.Workflows[i].Name == w.Name {
			m.options.Workflows[i] = w.Clone()
			replaced = true
			break
		}
	}
	if !replaced {
		m.options.Workflows = append(m.options.Workflows, w.Clone())
	}
	m.mu.Unlock()

	return m.Save()
}

// RemoveWorkflow deletes a workflow by name and saves
func (m *Manager) RemoveWorkflow(name string) error {
	m.mu.Lock()
	idx := -1
	for i, w := range m.options.Workflows {
		if w.Name == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		m.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrWorkflowNotFound, name)
	}
	m.options.Workflows = append(m.options.Workflows[:idx], m.options.Workflows[idx+1:]...)
	m.mu.Unlock()

	return m.Save()
}

// SetPort sets the server port and saves
func (m *Manager) SetPort(port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("invalid port number: %d", port)
	}
	m.mu.Lock()
	m.options.ServerPort = port
	m.mu.Unlock()
	return m.Save()
}

// SetLogLevel sets the log level and saves
func (m *Manager) SetLogLevel(level string) error {
	switch level {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s (use: trace, debug, info, warn, error)", level)
	}
	m.mu.Lock()
	m.options.LogLevel = level
	m.mu.Unlock()
	return m.Save()
}

// SetCaptureBackend sets the capture backend name and saves
func (m *Manager) SetCaptureBackend(backend string) error {
	m.mu.Lock()
	m.options.CaptureBackend = backend
	m.mu.Unlock()
	return m.Save()
}

// SetStatusPopups toggles status popups and saves
func (m *Manager) SetStatusPopups(enabled bool) error {
	m.mu.Lock()
	m.options.EnableStatusPopups = enabled
	m.mu.Unlock()
	return m.Save()
}

// GetConfigPath returns the options file path
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// GetViper returns a viper instance reading the options file, for dotted key
// lookups such as "workflows" or "server_port"
func (m *Manager) GetViper() (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigFile(m.configPath)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return v, nil
}
