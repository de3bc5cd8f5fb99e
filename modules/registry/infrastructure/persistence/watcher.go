package persistence

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Watch calls onChange for every write, create, remove or rename of the
// registry until ctx is done. A workbook is watched through its directory so
// that editors replacing the file are still seen; a CSV registry reports
// changes to its .csv sheets only.
func Watch(ctx context.Context, path string, logger *logrus.Entry, onChange func(name string)) error {
	info, err := os.Stat(path)
	if err != nil {
		return errors.Wrapf(err, "watch registry %s", path)
	}
	dir, file := path, ""
	if !info.IsDir() {
		dir, file = filepath.Dir(path), filepath.Clean(path)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "create registry watcher")
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return errors.Wrapf(err, "watch registry %s", dir)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if watched(file, ev) {
				onChange(ev.Name)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			if logger != nil {
				logger.WithError(err).Warn("registry watcher error")
			}
		}
	}
}

func watched(file string, ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return false
	}
	if file != "" {
		return filepath.Clean(ev.Name) == file
	}
	base := filepath.Base(ev.Name)
	return !strings.HasPrefix(base, ".") && strings.EqualFold(filepath.Ext(base), ".csv")
}
