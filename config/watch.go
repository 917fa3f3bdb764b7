package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/gogpu/gridframe/graph"
)

// Loader loads and validates a graph source file.
type Loader func(path string) (*graph.Graph, error)

// Watcher reinstalls the graph at Path into Registry whenever the file is
// written, created or renamed into place. A graph that fails to load or
// install is logged and the previous snapshot stays active.
type Watcher struct {
	Path     string
	Registry *Registry

	// Load defaults to graph.ParseFile.
	Load Loader

	// Overrides are applied over the graph settings on every install.
	Overrides map[string]string

	// OnReload, if set, is called after every reload attempt.
	OnReload func(error)
}

// Watch runs a Watcher with default options until ctx is done.
func Watch(ctx context.Context, path string, reg *Registry, load Loader) error {
	w := &Watcher{Path: path, Registry: reg, Load: load}
	return w.Run(ctx)
}

// Run blocks until ctx is done or the underlying watcher fails to start.
// The parent directory is watched so that editors that replace the file
// by renaming are observed.
func (w *Watcher) Run(ctx context.Context) error {
	path, err := filepath.Abs(w.Path)
	if err != nil {
		return fmt.Errorf("config: resolve %s: %w", w.Path, err)
	}
	load := w.Load
	if load == nil {
		load = graph.ParseFile
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("config: watch %s: %w", filepath.Dir(path), err)
	}
	slogger().Info("config: watching graph", "path", path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			w.reload(path, load)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			slogger().Warn("config: watcher error", "err", err)
		}
	}
}

func (w *Watcher) reload(path string, load Loader) {
	g, err := load(path)
	if err == nil {
		err = w.Registry.Install(g, w.Overrides)
	}
	if err != nil {
		slogger().Warn("config: graph reload failed, keeping previous configuration",
			"path", path, "err", err)
	} else {
		slogger().Info("config: graph reloaded", "path", path,
			"fingerprint", w.Registry.Load().Plan.Fingerprint())
	}
	if w.OnReload != nil {
		w.OnReload(err)
	}
}
