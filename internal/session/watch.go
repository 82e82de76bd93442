package session

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watcher monitors the token file for external changes so a login or logout
// performed by another process on the same machine is reflected in this
// session. Stop must be called to release filesystem resources.
type Watcher struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Stop halts the watcher and waits for the underlying goroutine to exit.
func (w *Watcher) Stop() {
	if w == nil {
		return
	}
	w.once.Do(func() {
		w.cancel()
		<-w.done
	})
}

// Watch wires fsnotify around the token file's directory and reconciles the
// in-memory credential whenever the file is created, rewritten, or removed.
// Only file-backed stores can be watched.
func (m *Manager) Watch(ctx context.Context) (*Watcher, error) {
	fileStore, ok := m.store.(*FileStore)
	if !ok {
		return nil, fmt.Errorf("session: watch requires a file-backed store")
	}
	path := fileStore.Path()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("session: watch credential: %w", err)
	}
	// Watch the directory, not the file: editors and this store itself
	// replace the file, which drops a direct file watch.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		if closeErr := watcher.Close(); closeErr != nil {
			m.logger.Warn("credential watcher close failed", slog.Any("error", closeErr))
		}
		return nil, fmt.Errorf("session: watch credential dir: %w", err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer func() {
			if err := watcher.Close(); err != nil {
				m.logger.Warn("credential watcher close failed", slog.Any("error", err))
			}
		}()

		// Small debounce so a remove+create rename pair is handled once.
		var pending *time.Timer
		var pendingC <-chan time.Time
		trigger := func() {
			if pending == nil {
				pending = time.NewTimer(100 * time.Millisecond)
				pendingC = pending.C
				return
			}
			pending.Reset(100 * time.Millisecond)
		}

		for {
			select {
			case <-watchCtx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
					trigger()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				m.logger.Warn("credential watcher error", slog.Any("error", err))
			case <-pendingC:
				m.reconcile()
			}
		}
	}()

	return &Watcher{cancel: cancel, done: done}, nil
}

// reconcile re-reads the store and adopts its state when it differs from the
// in-memory credential.
func (m *Manager) reconcile() {
	token, err := m.store.Load()
	if err != nil {
		m.logger.Warn("credential reload failed", slog.Any("error", err))
		return
	}
	current, _ := m.Credential()
	if token == current {
		return
	}
	m.logger.Info("credential changed on disk, adopting")
	m.adopt(token)
}
