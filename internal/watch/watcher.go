// Package watch reports changes to individual files.
package watch

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDelay is how long a file must stay quiet before a change is reported
const DefaultDelay = 100 * time.Millisecond

// FileWatcher calls onChange once per burst of writes to one of its files.
// Directories are watched instead of the files themselves so that editors
// replacing a file through a rename are still seen.
type FileWatcher struct {
	watcher   *fsnotify.Watcher
	debouncer *Debouncer
	files     map[string]bool
	logger    *zap.Logger
	stopChan  chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// Option configures a FileWatcher
type Option func(*FileWatcher)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(fw *FileWatcher) { fw.logger = logger }
}

// WithDelay sets the debounce delay
func WithDelay(d time.Duration) Option {
	return func(fw *FileWatcher) { fw.debouncer.duration = d }
}

// NewFileWatcher creates a watcher for files. onChange receives the changed
// paths, sorted.
func NewFileWatcher(files []string, onChange func([]string), opts ...Option) (*FileWatcher, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("no files to watch")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	fw := &FileWatcher{
		watcher:   watcher,
		debouncer: NewDebouncer(DefaultDelay),
		files:     make(map[string]bool, len(files)),
		logger:    zap.NewNop(),
		stopChan:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(fw)
	}
	fw.debouncer.SetCallback(onChange)

	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			watcher.Close()
			return nil, fmt.Errorf("resolve %s: %w", f, err)
		}
		fw.files[abs] = true
	}
	return fw, nil
}

// Start begins watching
func (fw *FileWatcher) Start() error {
	dirs := make(map[string]bool)
	for f := range fw.files {
		dirs[filepath.Dir(f)] = true
	}
	for dir := range dirs {
		if err := fw.watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch directory %s: %w", dir, err)
		}
		fw.logger.Debug("watching directory", zap.String("dir", dir))
	}

	fw.wg.Add(1)
	go fw.watch()
	return nil
}

// Stop stops the watcher. Pending changes are dropped.
func (fw *FileWatcher) Stop() error {
	var err error
	fw.stopOnce.Do(func() {
		close(fw.stopChan)
		fw.wg.Wait()
		fw.debouncer.Stop()
		err = fw.watcher.Close()
	})
	return err
}

func (fw *FileWatcher) watch() {
	defer fw.wg.Done()

	for {
		select {
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			name, err := filepath.Abs(event.Name)
			if err != nil || !fw.files[name] {
				continue
			}
			fw.logger.Debug("file changed", zap.String("file", name), zap.Stringer("op", event.Op))
			fw.debouncer.Add(name)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Warn("watch error", zap.Error(err))

		case <-fw.stopChan:
			return
		}
	}
}
