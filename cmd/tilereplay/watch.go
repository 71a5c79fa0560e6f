package main

import (
	"context"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/gogpu/tilereplay"
)

// watcher reports writes to the trace and kernel files of a configuration.
type watcher struct {
	fs      *fsnotify.Watcher
	watched map[string]bool
}

// newWatcher watches the directories holding the files of cfg. Editors
// often replace files instead of writing them, which only the directory
// sees.
func newWatcher(cfg tilereplay.Config) (*watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &watcher{fs: fw, watched: map[string]bool{filepath.Clean(cfg.Trace): true}}
	if cfg.Kernel != "" {
		w.watched[filepath.Clean(cfg.Kernel)] = true
	}
	dirs := make(map[string]bool)
	for path := range w.watched {
		dirs[filepath.Dir(path)] = true
	}
	for dir := range dirs {
		if err := fw.Add(dir); err != nil {
			_ = fw.Close()
			return nil, err
		}
	}
	return w, nil
}

// loop calls changed after each write or creation of a watched file until
// ctx is cancelled or the watcher is closed.
func (w *watcher) loop(ctx context.Context, logger *log.Logger, changed func()) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !w.watched[filepath.Clean(e.Name)] || !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
				continue
			}
			logger.Info("changed, replaying", "file", e.Name)
			changed()
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			logger.Warn("watcher", "err", err)
		}
	}
}

func (w *watcher) Close() error {
	return w.fs.Close()
}
