package registry

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/tombee/conduit/pkg/definition"
	"github.com/tombee/conduit/pkg/errors"
)

// FSProvider serves workflow definitions from a directory of YAML files.
// Definitions are loaded lazily and cached; an fsnotify watcher invalidates
// the cache when files in the directory change, so edits are picked up on
// the next List call without restarting the host.
type FSProvider struct {
	dir    string
	logger *slog.Logger

	mu      sync.Mutex
	cache   []*definition.WorkflowDefinition
	dirty   bool
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewFSProvider creates a provider over the given directory. The directory
// must exist. A file watcher is started; call Close to release it.
func NewFSProvider(dir string, logger *slog.Logger) (*FSProvider, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, &errors.ConfigError{Key: "workflows.dir", Reason: "cannot access workflow directory", Cause: err}
	}
	if !info.IsDir() {
		return nil, &errors.ConfigError{Key: "workflows.dir", Reason: dir + " is not a directory"}
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &FSProvider{
		dir:    dir,
		logger: logger,
		dirty:  true,
		done:   make(chan struct{}),
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "creating workflow directory watcher")
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, errors.Wrap(err, "watching workflow directory")
	}
	p.watcher = watcher
	go p.watch()

	return p, nil
}

// List returns the definitions currently on disk, reloading if the
// directory changed since the last call.
func (p *FSProvider) List(ctx context.Context) ([]*definition.WorkflowDefinition, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.dirty {
		defs, err := p.load()
		if err != nil {
			return nil, err
		}
		p.cache = defs
		p.dirty = false
	}

	defs := make([]*definition.WorkflowDefinition, len(p.cache))
	copy(defs, p.cache)
	return defs, nil
}

// Close stops the file watcher.
func (p *FSProvider) Close() error {
	close(p.done)
	return p.watcher.Close()
}

// watch marks the cache dirty on any change in the directory.
func (p *FSProvider) watch() {
	for {
		select {
		case <-p.done:
			return
		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if !isWorkflowFile(event.Name) {
				continue
			}
			p.mu.Lock()
			p.dirty = true
			p.mu.Unlock()
			p.logger.Debug("workflow directory changed", slog.String("file", event.Name))
		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			p.logger.Warn("workflow directory watcher error", "error", err)
		}
	}
}

// load parses every workflow file in the directory. A file that fails to
// parse is skipped with a warning so one bad definition does not take the
// whole directory offline.
func (p *FSProvider) load() ([]*definition.WorkflowDefinition, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return nil, errors.Wrapf(err, "reading workflow directory %s", p.dir)
	}

	var defs []*definition.WorkflowDefinition
	for _, entry := range entries {
		if entry.IsDir() || !isWorkflowFile(entry.Name()) {
			continue
		}
		path := filepath.Join(p.dir, entry.Name())
		def, err := definition.ParseFile(path)
		if err != nil {
			p.logger.Warn("skipping invalid workflow file",
				slog.String("file", path), "error", err)
			continue
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func isWorkflowFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
