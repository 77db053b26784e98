// Package mappings implements the Mesh's C10 Mappings Loader: a
// hot-reloadable brand/style/token-class dictionary loaded from a JSON
// file, grounded on original_source's MappingsLoader/MappingsFileHandler
// (watchdog directory watcher, mtime short-circuit, reentrant lock,
// lowercase-normalized getters) with fsnotify in place of watchdog.
package mappings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/rapidaai/mesh/internal/commons"
)

// Loader loads and hot-reloads a mappings file, exposing read-only
// lowercase-normalized getters over the current snapshot.
type Loader struct {
	path   string
	logger commons.Logger

	mu           sync.RWMutex
	data         *Data
	lastModTime  int64
	watcher      *fsnotify.Watcher
	watcherDone  chan struct{}
}

// New builds a Loader, performing the initial load synchronously. If
// enableHotReload is true, a background fsnotify watcher is started on
// the file's parent directory.
func New(path string, enableHotReload bool, logger commons.Logger) (*Loader, error) {
	l := &Loader{path: path, logger: logger}

	if err := l.reload(); err != nil {
		return nil, fmt.Errorf("mappings: initial load: %w", err)
	}

	if enableHotReload {
		if err := l.startWatcher(); err != nil {
			logger.Warnf("mappings: failed to set up file watcher: %v", err)
		}
	} else {
		logger.Infof("mappings: hot reload disabled, file will not be automatically reloaded")
	}

	return l, nil
}

func (l *Loader) startWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	dir := filepath.Dir(l.path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return err
	}

	l.watcher = watcher
	l.watcherDone = make(chan struct{})
	go l.watch()
	l.logger.Infof("mappings: watching %s for changes", l.path)
	return nil
}

func (l *Loader) watch() {
	absPath, err := filepath.Abs(l.path)
	if err != nil {
		absPath = l.path
	}
	for {
		select {
		case <-l.watcherDone:
			return
		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			eventAbs, err := filepath.Abs(event.Name)
			if err != nil {
				eventAbs = event.Name
			}
			if eventAbs != absPath {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			l.logger.Infof("mappings: detected change to %s", l.path)
			if err := l.reload(); err != nil {
				l.logger.Warnf("mappings: reload failed: %v", err)
			}
		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.logger.Warnf("mappings: watcher error: %v", err)
		}
	}
}

// Reload re-reads the mappings file if its modification time has
// advanced since the last successful load. Exposed for the `POST
// /v1/reload` collaborator REST endpoint in addition to the automatic
// fsnotify-triggered path.
func (l *Loader) Reload() error {
	return l.reload()
}

func (l *Loader) reload() error {
	info, err := os.Stat(l.path)
	if err != nil {
		return fmt.Errorf("mappings file not found: %s: %w", l.path, err)
	}

	modTime := info.ModTime().UnixNano()

	l.mu.RLock()
	unchanged := l.data != nil && modTime <= l.lastModTime
	l.mu.RUnlock()
	if unchanged {
		return nil
	}

	raw, err := os.ReadFile(l.path)
	if err != nil {
		return fmt.Errorf("mappings: read %s: %w", l.path, err)
	}

	var parsed Data
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("mappings: parse %s: %w", l.path, err)
	}
	normalizeKeys(&parsed)

	l.mu.Lock()
	l.data = &parsed
	l.lastModTime = modTime
	l.mu.Unlock()

	l.logger.Infof("mappings: loaded %d brands, %d styles, %d token mappings",
		len(parsed.Brands), len(parsed.Styles), len(parsed.TailwindTokenMap))
	return nil
}

func normalizeKeys(d *Data) {
	d.Brands = lowercaseKeys(d.Brands)
	d.Styles = lowercaseKeys(d.Styles)
}

func lowercaseKeys(m map[string]map[string]interface{}) map[string]map[string]interface{} {
	out := make(map[string]map[string]interface{}, len(m))
	for k, v := range m {
		out[strings.ToLower(k)] = v
	}
	return out
}

// BrandProperties returns the property bag for brandID, or nil if the
// brand is unknown. Lookups are case-insensitive.
func (l *Loader) BrandProperties(brandID string) map[string]interface{} {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.data == nil {
		return nil
	}
	return l.data.Brands[strings.ToLower(brandID)]
}

// StyleProperties returns the property bag for styleID, or nil if the
// style is unknown. Lookups are case-insensitive.
func (l *Loader) StyleProperties(styleID string) map[string]interface{} {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.data == nil {
		return nil
	}
	return l.data.Styles[strings.ToLower(styleID)]
}

// TailwindClass returns the Tailwind class mapped to token, or token
// itself if no mapping exists.
func (l *Loader) TailwindClass(token string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.data == nil {
		return token, false
	}
	class, ok := l.data.TailwindTokenMap[token]
	if !ok {
		return token, false
	}
	return class, true
}

// Snapshot returns a pointer to the currently loaded Data (shared, not
// copied), or nil if nothing has been loaded yet.
func (l *Loader) Snapshot() *Data {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.data
}

// Close stops the background file watcher, if any.
func (l *Loader) Close() error {
	if l.watcherDone != nil {
		close(l.watcherDone)
	}
	if l.watcher != nil {
		return l.watcher.Close()
	}
	return nil
}
