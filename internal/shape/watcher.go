package shape

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// TermWatcher hot-reloads a TermList when its backing file changes, so the
// blocked-term list can be tuned without restarting the relay. It watches the
// file's directory rather than the file itself: editors that write via rename
// would otherwise detach the watch.
type TermWatcher struct {
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	terms    *TermList
	log      *zap.Logger
	lastSeen time.Time
	debounce time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
	running  bool
}

// NewTermWatcher creates a watcher for the term list's backing file. The list
// must have been created with LoadTermList.
func NewTermWatcher(terms *TermList, log *zap.Logger) (*TermWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &TermWatcher{
		watcher:  w,
		terms:    terms,
		log:      log,
		debounce: 500 * time.Millisecond,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start begins watching in a background goroutine. Non-blocking.
func (tw *TermWatcher) Start() error {
	tw.mu.Lock()
	if tw.running {
		tw.mu.Unlock()
		return nil
	}
	tw.running = true
	tw.mu.Unlock()

	if err := tw.watcher.Add(filepath.Dir(tw.terms.path)); err != nil {
		// The loop never ran; undo the running mark so a later Stop does not
		// block on doneCh, and release the fsnotify descriptor.
		tw.mu.Lock()
		tw.running = false
		tw.mu.Unlock()
		tw.watcher.Close()
		return err
	}

	go tw.loop()
	return nil
}

func (tw *TermWatcher) loop() {
	defer close(tw.doneCh)
	target := filepath.Clean(tw.terms.path)
	for {
		select {
		case ev, ok := <-tw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			tw.mu.Lock()
			if time.Since(tw.lastSeen) < tw.debounce {
				tw.mu.Unlock()
				continue
			}
			tw.lastSeen = time.Now()
			tw.mu.Unlock()

			if err := tw.terms.Reload(); err != nil {
				tw.log.Warn("blocked terms reload failed", zap.Error(err))
				continue
			}
			tw.log.Info("blocked terms reloaded", zap.Int("terms", tw.terms.Len()))
		case err, ok := <-tw.watcher.Errors:
			if !ok {
				return
			}
			tw.log.Warn("term watcher error", zap.Error(err))
		case <-tw.stopCh:
			return
		}
	}
}

// Stop shuts the watcher down and waits for the loop to exit.
func (tw *TermWatcher) Stop() {
	tw.mu.Lock()
	if !tw.running {
		tw.mu.Unlock()
		return
	}
	tw.running = false
	tw.mu.Unlock()

	close(tw.stopCh)
	tw.watcher.Close()
	<-tw.doneCh
}
