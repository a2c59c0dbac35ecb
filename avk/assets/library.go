package assets

import (
	"context"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/cg-tuwien/auto-vk/avk/core"
)

// ShaderLibrary indexes the SPIR-V modules below a directory by their
// slash separated path without extension, e.g. "deferred/lighting.frag".
type ShaderLibrary struct {
	dir     string
	shaders map[string]*Shader
	mutex   sync.RWMutex
}

func NewShaderLibrary(dir string) *ShaderLibrary {
	return &ShaderLibrary{
		dir:     dir,
		shaders: make(map[string]*Shader),
	}
}

func (l *ShaderLibrary) Dir() string {
	return l.dir
}

func (l *ShaderLibrary) nameOf(path string) string {
	rel, err := filepath.Rel(l.dir, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	return strings.TrimSuffix(filepath.ToSlash(rel), filepath.Ext(rel))
}

// LoadDir loads every .spv file below the library directory.
func (l *ShaderLibrary) LoadDir(ctx context.Context) (int, error) {
	var paths []string
	err := filepath.WalkDir(l.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && IsSPIRVFile(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return 0, errors.Wrapf(err, "scanning %s", l.dir)
	}

	shaders, err := LoadAll(ctx, paths)
	if err != nil {
		return 0, err
	}

	l.mutex.Lock()
	defer l.mutex.Unlock()
	for _, s := range shaders {
		s.Name = l.nameOf(s.Path)
		l.shaders[s.Name] = s
	}
	core.LogInfo("Loaded %d shaders from %s", len(shaders), l.dir)
	return len(shaders), nil
}

func (l *ShaderLibrary) Get(name string) (*Shader, bool) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	s, ok := l.shaders[name]
	return s, ok
}

func (l *ShaderLibrary) Names() []string {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	names := make([]string, 0, len(l.shaders))
	for name := range l.shaders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reload replaces the shader at path. The previous version stays in place
// when the file cannot be loaded.
func (l *ShaderLibrary) Reload(path string) (*Shader, error) {
	s, err := LoadSPIRV(path)
	if err != nil {
		return nil, err
	}
	s.Name = l.nameOf(path)

	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.shaders[s.Name] = s
	return s, nil
}

func (l *ShaderLibrary) Remove(path string) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	delete(l.shaders, l.nameOf(path))
}

// Watch applies watcher events to the library until ctx is done or the
// watcher is closed. onReload, if set, sees every successfully reloaded
// shader. Files that fail to load are logged and skipped; compilers often
// write in several steps.
func (l *ShaderLibrary) Watch(ctx context.Context, w *ShaderWatcher, onReload func(*Shader)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events():
			if !ok {
				return nil
			}
			if ev.Removed {
				l.Remove(ev.Path)
				core.LogDebug("Shader %s removed", l.nameOf(ev.Path))
				continue
			}
			s, err := l.Reload(ev.Path)
			if err != nil {
				core.LogWarn("Reloading %s: %s", ev.Path, err)
				continue
			}
			core.LogInfo("Shader %s reloaded", s.Name)
			if onReload != nil {
				onReload(s)
			}
		}
	}
}
