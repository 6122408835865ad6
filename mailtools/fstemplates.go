package mailtools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// FSTemplateSource serves email templates from a local directory of
// <name>.json files instead of the backend. It is meant for development and
// offline use: the directory is loaded eagerly and reloaded whenever
// fsnotify reports a change under it.
type FSTemplateSource struct {
	dir string
	log *slog.Logger

	mu        sync.RWMutex
	templates map[string]json.RawMessage

	watcher *fsnotify.Watcher
	done    chan struct{}
	once    sync.Once
}

// NewFSTemplateSource loads every *.json template under dir and starts
// watching for changes. A watcher that cannot be created degrades to the
// initial snapshot rather than failing construction.
func NewFSTemplateSource(dir string, log *slog.Logger) (*FSTemplateSource, error) {
	if log == nil {
		log = slog.Default()
	}
	s := &FSTemplateSource{
		dir:  dir,
		log:  log,
		done: make(chan struct{}),
	}
	if err := s.reload(); err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warn("templates.watch.unavailable", slog.String("err", err.Error()))
		return s, nil
	}
	if err := w.Add(dir); err != nil {
		log.Warn("templates.watch.add.fail", slog.String("err", err.Error()))
		_ = w.Close()
		return s, nil
	}
	s.watcher = w
	go s.watch()
	return s, nil
}

// reload replaces the template snapshot from disk.
func (s *FSTemplateSource) reload() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to read template dir %s: %w", s.dir, err)
	}

	templates := make(map[string]json.RawMessage)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".json")
		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			s.log.Warn("templates.read.fail", slog.String("file", entry.Name()), slog.String("err", err.Error()))
			continue
		}
		if !json.Valid(data) {
			s.log.Warn("templates.invalid_json", slog.String("file", entry.Name()))
			continue
		}
		templates[name] = json.RawMessage(data)
	}

	s.mu.Lock()
	s.templates = templates
	s.mu.Unlock()
	return nil
}

// watch reloads the snapshot on any relevant filesystem event. The template
// set is small so a full reload is simpler than tracking individual files.
func (s *FSTemplateSource) watch() {
	for {
		select {
		case <-s.done:
			return
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if err := s.reload(); err != nil {
				s.log.Warn("templates.reload.fail", slog.String("err", err.Error()))
			} else {
				s.log.Debug("templates.reload", slog.String("trigger", ev.Name))
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.log.Debug("templates.watch.err", slog.String("err", err.Error()))
		}
	}
}

// List returns all templates as a JSON array of {name, template} objects,
// ordered by name.
func (s *FSTemplateSource) List(ctx context.Context) (json.RawMessage, error) {
	s.mu.RLock()
	names := make([]string, 0, len(s.templates))
	for name := range s.templates {
		names = append(names, name)
	}
	sort.Strings(names)

	type listed struct {
		Name     string          `json:"name"`
		Template json.RawMessage `json:"template"`
	}
	out := make([]listed, 0, len(names))
	for _, name := range names {
		out = append(out, listed{Name: name, Template: s.templates[name]})
	}
	s.mu.RUnlock()

	return json.Marshal(out)
}

// Get returns the template stored under name.
func (s *FSTemplateSource) Get(ctx context.Context, name string) (json.RawMessage, error) {
	s.mu.RLock()
	tmpl, ok := s.templates[name]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("template not found: %s", name)
	}
	return tmpl, nil
}

// Close stops the watcher.
func (s *FSTemplateSource) Close() error {
	s.once.Do(func() { close(s.done) })
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

var _ TemplateSource = (*FSTemplateSource)(nil)
