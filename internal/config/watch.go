package config

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces the burst of events editors emit when they
// rewrite a file.
const reloadDebounce = 500 * time.Millisecond

// Watcher reloads a config file when it changes on disk. Only safe
// fields apply live (logging.level); a change to engine fields is
// logged as requiring a restart.
type Watcher struct {
	path     string
	log      *slog.Logger
	onReload func(*Config)

	fsw      *fsnotify.Watcher
	stopCh   chan struct{}
	stopOnce sync.Once
}

// Watch starts watching path and invokes onReload with each valid new
// configuration. Invalid configs are logged and skipped, the previous
// configuration stays in effect.
func Watch(path string, log *slog.Logger, onReload func(*Config)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory, not the file: editors and atomic writers
	// replace the file, which drops a direct file watch.
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	w := &Watcher{
		path:     path,
		log:      log,
		onReload: onReload,
		fsw:      fsw,
		stopCh:   make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Close stops the watcher. Safe to call multiple times.
func (w *Watcher) Close() error {
	w.stopOnce.Do(func() { close(w.stopCh) })
	return w.fsw.Close()
}

func (w *Watcher) run() {
	var timer *time.Timer
	var timerC <-chan time.Time

	base := filepath.Base(w.path)
	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
				timerC = timer.C
			} else {
				timer.Reset(reloadDebounce)
			}

		case <-timerC:
			timer = nil
			timerC = nil
			w.reload()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("config watcher error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := LoadFile(w.path)
	if err != nil {
		w.log.Warn("config reload rejected, keeping previous configuration",
			slog.String("path", w.path),
			slog.String("error", err.Error()))
		return
	}
	w.log.Info("config reloaded", slog.String("path", w.path))
	w.onReload(cfg)
}
