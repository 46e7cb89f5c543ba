// Package watch monitors an inbox directory for new transcript JSON files
// and hands them to the pipeline, as an alternative to one-shot invocation.
package watch

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// HandlerFunc processes one discovered transcript file.
type HandlerFunc func(path string)

// InboxWatcher monitors an inbox directory for new transcript files.
type InboxWatcher struct {
	inboxDir string
	handler  HandlerFunc
	log      zerolog.Logger

	watcher *fsnotify.Watcher
	done    chan struct{}

	// Debounce: coalesce rapid Create+Write events on the same file.
	debounceMu     sync.Mutex
	debounceTimers map[string]*time.Timer

	filesProcessed atomic.Int64
}

func NewInboxWatcher(inboxDir string, handler HandlerFunc, log zerolog.Logger) *InboxWatcher {
	return &InboxWatcher{
		inboxDir:       inboxDir,
		handler:        handler,
		log:            log.With().Str("component", "watcher").Logger(),
		done:           make(chan struct{}),
		debounceTimers: make(map[string]*time.Timer),
	}
}

// Start begins watching. Existing transcript files in the inbox are
// processed first, in name order, so a backlog survives restarts.
func (w *InboxWatcher) Start() error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = fw

	if err := fw.Add(w.inboxDir); err != nil {
		fw.Close()
		return err
	}

	go w.loop()
	go w.backfill()

	w.log.Info().Str("dir", w.inboxDir).Msg("inbox watcher started")
	return nil
}

func (w *InboxWatcher) Stop() {
	close(w.done)
	if w.watcher != nil {
		w.watcher.Close()
	}
	w.log.Info().Int64("files_processed", w.filesProcessed.Load()).Msg("inbox watcher stopped")
}

// FilesProcessed reports how many transcripts have been handled.
func (w *InboxWatcher) FilesProcessed() int64 {
	return w.filesProcessed.Load()
}

func (w *InboxWatcher) backfill() {
	entries, err := os.ReadDir(w.inboxDir)
	if err != nil {
		w.log.Warn().Err(err).Msg("backfill scan failed")
		return
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && isTranscript(e.Name()) {
			files = append(files, filepath.Join(w.inboxDir, e.Name()))
		}
	}
	sort.Strings(files)
	for _, f := range files {
		w.process(f)
	}
}

func (w *InboxWatcher) loop() {
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !isTranscript(ev.Name) {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.debounce(ev.Name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("watcher error")
		case <-w.done:
			return
		}
	}
}

// debounce waits for writes to settle before handing the file off; a fresh
// event on the same path resets the timer.
func (w *InboxWatcher) debounce(path string) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if t, ok := w.debounceTimers[path]; ok {
		t.Stop()
	}
	w.debounceTimers[path] = time.AfterFunc(500*time.Millisecond, func() {
		w.debounceMu.Lock()
		delete(w.debounceTimers, path)
		w.debounceMu.Unlock()
		w.process(path)
	})
}

func (w *InboxWatcher) process(path string) {
	select {
	case <-w.done:
		return
	default:
	}
	w.log.Info().Str("file", filepath.Base(path)).Msg("transcript discovered")
	w.handler(path)
	w.filesProcessed.Add(1)
}

func isTranscript(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".json")
}
