package reload

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"leshy/internal/config"
	"leshy/internal/logging"
)

// debounce is how long the watcher waits after the last filesystem
// event before re-parsing, so a batch of edits (e.g. an editor's
// write-then-rename) collapses into a single reload.
const debounce = 200 * time.Millisecond

// Watcher watches the main config file and its config.d directory for
// changes and drives a Coordinator's Apply on every settle.
type Watcher struct {
	configPath  string
	includeDir  string
	coordinator *Coordinator
	log         *logging.Logger
}

// NewWatcher returns a Watcher that re-parses configPath (with
// includes) and applies it through coordinator whenever the file or its
// include directory changes. includeDir is the configured
// server.config_dir; empty means the default <dir of configPath>/config.d.
func NewWatcher(configPath, includeDir string, coordinator *Coordinator) *Watcher {
	return &Watcher{
		configPath:  configPath,
		includeDir:  includeDir,
		coordinator: coordinator,
		log:         logging.WithComponent("reload.watcher"),
	}
}

// Run watches until stop is closed. It never returns an error for a
// missing config.d directory (that's the common case when no
// zone-split files are in use) but does return one if the underlying
// fsnotify watcher cannot be created or cannot watch the config file's
// directory.
func (w *Watcher) Run(stop <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory, not the file: editors typically replace a
	// file via rename-over rather than an in-place write, which a
	// watch on the file's inode would miss entirely.
	configDir := filepath.Dir(w.configPath)
	if err := watcher.Add(configDir); err != nil {
		return err
	}
	w.log.Info("watching config directory", "dir", configDir)

	includeDir := w.includeDir
	if includeDir == "" {
		includeDir = filepath.Join(configDir, "config.d")
	}
	if err := watcher.Add(includeDir); err == nil {
		w.log.Info("watching config.d directory", "dir", includeDir)
	}

	var timer *time.Timer
	reloadCh := make(chan struct{}, 1)

	for {
		select {
		case <-stop:
			return nil
		case err := <-watcher.Errors:
			w.log.Warn("watch error", "error", err)
		case event := <-watcher.Events:
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.AfterFunc(debounce, func() {
					select {
					case reloadCh <- struct{}{}:
					default:
					}
				})
			} else {
				timer.Reset(debounce)
			}
		case <-reloadCh:
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	w.log.Info("config change detected, reloading", "path", w.configPath)
	newCfg, err := config.LoadWithIncludes(w.configPath)
	if err != nil {
		w.log.Warn("failed to reload config, keeping old configuration", "error", err)
		return
	}
	if err := w.coordinator.Apply(newCfg); err != nil {
		w.log.Warn("failed to apply reloaded config, keeping old configuration", "error", err)
	}
}
