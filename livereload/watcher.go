package livereload

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"nutriserve/logger"
)

type fileStamp struct {
	size    int64
	modTime time.Time
}

// Watcher polls a directory tree and broadcasts a reload message whenever
// a file is added, removed or modified.
type Watcher struct {
	root     string
	interval time.Duration
	target   Broadcaster
	log      *logger.Logger

	mu       sync.Mutex
	last     map[string]fileStamp
	stopOnce sync.Once
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewWatcher(root string, interval time.Duration, target Broadcaster, log *logger.Logger) *Watcher {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Watcher{
		root:     root,
		interval: interval,
		target:   target,
		log:      log,
		stopChan: make(chan struct{}),
	}
}

// Start takes the initial snapshot and begins polling until ctx is done or
// Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	snap, err := snapshot(w.root)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.last = snap
	w.mu.Unlock()

	w.wg.Add(1)
	go w.run(ctx)

	w.log.Info("Live reload watcher started", map[string]interface{}{
		"root":     w.root,
		"interval": w.interval.String(),
		"files":    len(snap),
	})
	return nil
}

// Stop halts polling and waits for the loop to exit
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stopChan) })
	w.wg.Wait()
}

func (w *Watcher) run(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case <-ticker.C:
			if _, err := w.Scan(); err != nil {
				w.log.Error("Live reload scan failed", map[string]interface{}{
					"error": err.Error(),
				})
			}
		}
	}
}

// Scan compares the tree against the previous snapshot and broadcasts when
// anything differs. It returns the number of changed paths.
func (w *Watcher) Scan() (int, error) {
	snap, err := snapshot(w.root)
	if err != nil {
		return 0, err
	}

	w.mu.Lock()
	changed := diff(w.last, snap)
	w.last = snap
	w.mu.Unlock()

	if changed > 0 {
		w.log.Debug("Files changed, notifying browsers", map[string]interface{}{
			"changed": changed,
		})
		w.target.Broadcast(Message{Type: "reload", Changed: changed})
	}
	return changed, nil
}

// snapshot walks root, skipping dot directories such as .git
func snapshot(root string) (map[string]fileStamp, error) {
	snap := make(map[string]fileStamp)
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			// Files may vanish between listing and stat; the root may not.
			if errors.Is(err, fs.ErrNotExist) && p != root {
				return nil
			}
			return err
		}
		if d.IsDir() {
			if p != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		snap[p] = fileStamp{size: info.Size(), modTime: info.ModTime()}
		return nil
	})
	return snap, err
}

func diff(prev, next map[string]fileStamp) int {
	changed := 0
	for p, stamp := range next {
		old, ok := prev[p]
		if !ok || old.size != stamp.size || !old.modTime.Equal(stamp.modTime) {
			changed++
		}
	}
	for p := range prev {
		if _, ok := next[p]; !ok {
			changed++
		}
	}
	return changed
}
