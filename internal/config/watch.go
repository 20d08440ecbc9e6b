package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/bryanchriswhite/captain/internal/logger"
	"github.com/fsnotify/fsnotify"
)

// Watch reloads the options whenever the file changes on disk and passes the
// new options to onChange. It blocks until ctx is done.
func (m *Manager) Watch(ctx context.Context, onChange func(*Options)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// watch the directory so atomic renames are observed
	dir := filepath.Dir(m.configPath)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	log := logger.WithComponent("config")
	target := filepath.Clean(m.configPath)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if err := m.Reload(); err != nil {
				log.Warn().Err(err).Msg("Ignoring invalid options file change")
				continue
			}
			log.Info().Str("path", m.configPath).Msg("Options reloaded")
			if onChange != nil {
				onChange(m.Get())
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("Options watcher error")
		}
	}
}
