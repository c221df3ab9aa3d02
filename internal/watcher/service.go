package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Service reports changes to a fixed set of files. It watches their parent
// directories so files replaced by rename (as most editors do) keep being tracked.
type Service struct {
	files    map[string]struct{}
	dirs     []string
	logger   *slog.Logger
	onChange func(context.Context, string)
	watcher  *fsnotify.Watcher
}

func New(files []string, logger *slog.Logger, onChange func(context.Context, string)) (*Service, error) {
	fileWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	tracked := map[string]struct{}{}
	seenDirs := map[string]struct{}{}
	dirs := []string{}
	for _, file := range files {
		file = strings.TrimSpace(file)
		if file == "" {
			continue
		}
		absolute, err := filepath.Abs(file)
		if err != nil {
			fileWatcher.Close()
			return nil, fmt.Errorf("resolve watched file %s: %w", file, err)
		}
		tracked[absolute] = struct{}{}
		dir := filepath.Dir(absolute)
		if _, ok := seenDirs[dir]; !ok {
			seenDirs[dir] = struct{}{}
			dirs = append(dirs, dir)
		}
	}
	return &Service{
		files:    tracked,
		dirs:     dirs,
		logger:   logger,
		onChange: onChange,
		watcher:  fileWatcher,
	}, nil
}

func (s *Service) Start(ctx context.Context) error {
	defer s.watcher.Close()

	for _, dir := range s.dirs {
		if err := s.watcher.Add(dir); err != nil {
			return fmt.Errorf("watch path %s: %w", dir, err)
		}
	}
	s.logger.Info("file watcher started", "dirs", strings.Join(s.dirs, ","))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("file watcher stopped")
			return nil
		case event, ok := <-s.watcher.Events:
			if !ok {
				return nil
			}
			s.handleEvent(ctx, event)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return nil
			}
			if err != nil {
				s.logger.Error("file watcher error", "error", err)
			}
		}
	}
}

func (s *Service) handleEvent(ctx context.Context, event fsnotify.Event) {
	name, err := filepath.Abs(event.Name)
	if err != nil {
		return
	}
	if _, ok := s.files[name]; !ok {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
		return
	}
	s.logger.Info("watched file changed", "path", name, "op", event.Op.String())
	if s.onChange != nil {
		s.onChange(ctx, name)
	}
}
