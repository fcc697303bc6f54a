package config

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Watcher holds the active configuration and swaps it atomically whenever
// the backing file changes on disk: full reload, atomic pointer swap, no
// partial mutation of a live Config.
type Watcher struct {
	path      string
	ref       *atomicRef
	fsw       *fsnotify.Watcher
	stop      chan struct{}
	overrides map[string]string
}

// NewWatcher loads path once and, if path is non-empty, begins watching its parent
// directory for writes (editors typically replace files via rename, which
// fsnotify only observes on the containing directory).
func NewWatcher(path string) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("config load failed, using defaults")
	}

	w := &Watcher{path: path, ref: newAtomicRef(cfg), stop: make(chan struct{})}

	if path == "" {
		return w, nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warn().Err(err).Msg("config hot-reload unavailable")
		return w, nil
	}
	w.fsw = fsw

	if err := fsw.Add(filepath.Dir(path)); err != nil {
		log.Warn().Err(err).Msg("config hot-reload watch failed")
		return w, nil
	}

	go w.run()
	return w, nil
}

// Current returns the active Config. Safe for concurrent use; the returned
// pointer is never mutated after being published.
func (w *Watcher) Current() *Config {
	return w.ref.load()
}

// SetStoreOverrides installs command_center_config table entries; they are
// applied on top of the current config immediately and re-applied on every
// subsequent reload (table beats file).
func (w *Watcher) SetStoreOverrides(overrides map[string]string) {
	w.overrides = overrides
	w.ref.store(ApplyStoreOverrides(w.ref.load(), overrides))
}

// Reload re-parses the file and atomically publishes the result, ignoring
// failures (the prior Config remains active).
func (w *Watcher) Reload() {
	cfg, err := Load(w.path)
	if err != nil {
		log.Error().Err(err).Str("path", w.path).Msg("config reload failed, keeping previous config")
		return
	}
	w.ref.store(ApplyStoreOverrides(cfg, w.overrides))
	log.Info().Str("path", w.path).Msg("config reloaded")
}

func (w *Watcher) run() {
	base := filepath.Base(w.path)
	for {
		select {
		case <-w.stop:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				w.Reload()
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("config watcher error")
		}
	}
}

// Close stops the watcher goroutine.
func (w *Watcher) Close() {
	close(w.stop)
	if w.fsw != nil {
		_ = w.fsw.Close()
	}
}
