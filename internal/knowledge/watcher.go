package knowledge

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/ShayCichocki/swarm/internal/logging"
)

// Watcher reports note ids whose files are created or written in a notes
// directory on the OS filesystem.
type Watcher struct {
	watcher *fsnotify.Watcher
	notes   chan string
	done    chan struct{}
	logger  *logging.Logger

	closeOnce sync.Once
}

// Watch watches the store's notes directory. The store must live on the
// OS filesystem.
func (s *FileStore) Watch() (*Watcher, error) {
	return NewWatcher(filepath.Join(s.root, NotesDir), s.logger)
}

// NewWatcher starts watching dir.
func NewWatcher(dir string, logger *logging.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	w := &Watcher{
		watcher: fw,
		notes:   make(chan string, 16),
		done:    make(chan struct{}),
		logger:  logger,
	}
	go w.loop()
	return w, nil
}

// Notes delivers the id of each changed note. It is closed by Close.
func (w *Watcher) Notes() <-chan string { return w.notes }

func (w *Watcher) loop() {
	defer close(w.notes)
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			name := filepath.Base(event.Name)
			ext := filepath.Ext(name)
			if (ext != ".md" && ext != ".txt") || strings.HasPrefix(name, ".") {
				continue
			}
			select {
			case w.notes <- strings.TrimSuffix(name, ext):
			case <-w.done:
				return
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Log("watch error: %v", err)
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.watcher.Close()
	})
	return err
}
