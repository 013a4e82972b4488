package catalog

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/kainult/price-platform/pkg/logger"
	"github.com/kainult/price-platform/pkg/metrics"
)

const reloadDebounce = 100 * time.Millisecond

// Watcher reloads a catalog file into a Store whenever it changes on disk.
// A file that fails to parse is logged and the previous catalog stays.
type Watcher struct {
	path  string
	store *Store
	log   *logger.Logger

	watcher *fsnotify.Watcher
	done    chan struct{}

	debounceMu sync.Mutex
	debounce   *time.Timer
}

// Watch starts watching path. The directory is watched rather than the
// file so that editors replacing the file by rename are picked up.
func Watch(path string, store *Store, log *logger.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{
		path:    path,
		store:   store,
		log:     log.Named("catalog"),
		watcher: fw,
		done:    make(chan struct{}),
	}
	go w.loop()

	w.log.Info("watching catalog file", zap.String("path", path))
	return w, nil
}

// Close stops watching. Pending reloads are cancelled.
func (w *Watcher) Close() error {
	w.debounceMu.Lock()
	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounceMu.Unlock()

	err := w.watcher.Close()
	<-w.done
	return err
}

func (w *Watcher) loop() {
	defer close(w.done)
	name := filepath.Base(w.path)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error("catalog watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.AfterFunc(reloadDebounce, w.reload)
}

func (w *Watcher) reload() {
	c, err := LoadFile(w.path)
	if err != nil {
		metrics.RecordCatalogReload(false, 0)
		w.log.Error("catalog reload failed, keeping previous catalog",
			zap.String("path", w.path),
			zap.Bool("validation", IsValidation(err)),
			zap.Error(err),
		)
		return
	}

	w.store.Replace(c)
	w.log.Info("catalog reloaded", zap.Int("products", c.Len()))
}
