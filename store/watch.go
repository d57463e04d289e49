package store

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const rescanDebounce = 2 * time.Second

// Watcher keeps the project set fresh by rescanning when directories under
// the registered roots change. Events are debounced so a burst of filesystem
// activity triggers one rescan, not hundreds.
type Watcher struct {
	store  *Store
	logger *zap.Logger
}

// NewWatcher creates a watcher over the store's current roots.
func NewWatcher(s *Store, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{store: s, logger: logger}
}

// Run watches until ctx is cancelled. Roots registered after Run starts are
// picked up on the next restart; the /project rescan command covers the gap.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	for _, root := range w.store.ListRoots() {
		if err := fsw.Add(root); err != nil {
			w.logger.Warn("could not watch root", zap.String("root", root), zap.Error(err))
		}
	}

	var pending *time.Timer
	defer func() {
		if pending != nil {
			pending.Stop()
		}
	}()
	rescans := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(rescanDebounce, func() {
				select {
				case rescans <- struct{}{}:
				default:
				}
			})
		case <-rescans:
			count, err := w.store.Rescan()
			if err != nil {
				w.logger.Warn("automatic rescan failed", zap.Error(err))
				continue
			}
			w.logger.Info("projects rescanned", zap.Int("count", count))
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("filesystem watch error", zap.Error(err))
		}
	}
}
