package loader

import (
	"context"
	"fmt"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"formagent/internal/domain"
)

// Handler receives every page of a created or modified document. For a
// removed or renamed document pages is nil.
type Handler func(ctx context.Context, source string, pages []domain.Page)

// Watcher reloads documents in a directory when they change.
type Watcher struct {
	loader  *Loader
	watcher *fsnotify.Watcher
	dir     string
}

// Watch starts watching dir. Events are delivered once Run is called.
func (l *Loader) Watch(dir string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	return &Watcher{loader: l, watcher: fw, dir: dir}, nil
}

// Run dispatches changes to handle until ctx is done.
func (w *Watcher) Run(ctx context.Context, handle Handler) error {
	defer w.watcher.Close()
	log := w.loader.logger.With(zap.String("dir", w.dir))
	log.Info("watching directory")
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !Supported(event.Name) {
				continue
			}
			switch {
			case event.Has(fsnotify.Write) || event.Has(fsnotify.Create):
				pages, err := w.loader.LoadFile(event.Name)
				if err != nil {
					log.Warn("reload failed", zap.String("path", event.Name), zap.Error(err))
					continue
				}
				log.Info("document changed", zap.String("path", event.Name), zap.Int("pages", len(pages)))
				handle(ctx, event.Name, pages)
			case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
				log.Info("document removed", zap.String("path", event.Name))
				handle(ctx, event.Name, nil)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("watcher error", zap.Error(err))
		}
	}
}
