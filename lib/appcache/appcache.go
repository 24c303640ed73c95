/*
Copyright 2026 The Activity Tracker Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package appcache maps executable paths to the stable application ids the
// server assigns, backed by a JSON file in the per-user data directory.
package appcache

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/google/renameio/v2"
	"github.com/gravitational/trace"

	tracker "github.com/nkpatro/activity-tracker"
	"github.com/nkpatro/activity-tracker/lib/defaults"
	"github.com/nkpatro/activity-tracker/lib/events"
)

// Detector resolves an executable to its server-side application record.
// Implemented by lib/client.
type Detector interface {
	DetectApplication(ctx context.Context, name, path string) (*events.Application, error)
}

// Config configures an application cache.
type Config struct {
	// Dir is the data directory holding the cache file. Defaults to the
	// platform per-user data directory.
	Dir string
	// Detector is called on cache misses.
	Detector Detector
	// Logger emits persistence warnings.
	Logger *slog.Logger
}

// CheckAndSetDefaults validates the configuration and fills in defaults.
func (c *Config) CheckAndSetDefaults() error {
	if c.Detector == nil {
		return trace.BadParameter("missing parameter Detector")
	}
	if c.Dir == "" {
		c.Dir = defaults.DataDir()
	}
	if c.Logger == nil {
		c.Logger = slog.With(tracker.ComponentKey, tracker.ComponentCache)
	}
	return nil
}

// cacheFile is the on-disk format; the file is rewritten in full on every
// mutation.
type cacheFile struct {
	Applications []events.Application `json:"applications"`
}

// Cache remembers which application ids the server assigned to executable
// paths. Lookups are keyed by the normalized path. Map and file access are
// serialized by one lock; the detect HTTP call runs with the lock released.
type Cache struct {
	detector Detector
	logger   *slog.Logger
	path     string

	mu   sync.Mutex
	apps map[string]events.Application
}

// New loads the cache file if present and returns the cache. A missing file
// starts an empty cache; an unreadable file is logged and treated as empty.
func New(cfg Config) (*Cache, error) {
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	c := &Cache{
		detector: cfg.Detector,
		logger:   cfg.Logger,
		path:     filepath.Join(cfg.Dir, defaults.AppCacheFileName),
		apps:     make(map[string]events.Application),
	}
	c.load()
	return c, nil
}

// NormalizePath lowercases a path and unifies its separators so that the
// same executable always maps to the same cache key. The function is
// idempotent.
func NormalizePath(path string) string {
	return strings.ToLower(filepath.ToSlash(strings.TrimSpace(path)))
}

// Lookup returns the cached record for the path, if any.
func (c *Cache) Lookup(path string) (events.Application, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	app, ok := c.apps[NormalizePath(path)]
	return app, ok
}

// Len returns the number of cached applications.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.apps)
}

// RegisterApplication returns the application id for an executable. A
// cache hit answers locally; a miss asks the server and persists the
// answer. On a detect failure the id is empty and the error is returned;
// nothing negative is cached, so the next call asks again. A persistence
// failure is logged only: memory stays authoritative and the id is still
// returned.
func (c *Cache) RegisterApplication(ctx context.Context, name, path string) (string, error) {
	key := NormalizePath(path)
	if key == "" {
		return "", trace.BadParameter("missing parameter path")
	}

	c.mu.Lock()
	if app, ok := c.apps[key]; ok {
		c.mu.Unlock()
		return app.ID, nil
	}
	c.mu.Unlock()

	app, err := c.detector.DetectApplication(ctx, name, path)
	if err != nil {
		return "", trace.Wrap(err)
	}

	c.mu.Lock()
	// A concurrent register for the same path got the same server answer,
	// so last writer wins without a conflict.
	c.apps[key] = *app
	if err := c.persistLocked(); err != nil {
		c.logger.WarnContext(ctx, "Cannot persist application cache.", "path", c.path, "error", err)
	}
	c.mu.Unlock()

	return app.ID, nil
}

// Clear truncates the in-memory map and the cache file.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.apps = make(map[string]events.Application)
	return trace.Wrap(c.persistLocked())
}

func (c *Cache) load() {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			c.logger.Warn("Cannot read application cache, starting empty.", "path", c.path, "error", err)
		}
		return
	}
	var file cacheFile
	if err := json.Unmarshal(data, &file); err != nil {
		c.logger.Warn("Malformed application cache, starting empty.", "path", c.path, "error", err)
		return
	}
	for _, app := range file.Applications {
		c.apps[NormalizePath(app.Path)] = app
	}
}

// persistLocked rewrites the cache file in full. Callers must hold c.mu.
func (c *Cache) persistLocked() error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return trace.ConvertSystemError(err)
	}
	file := cacheFile{Applications: make([]events.Application, 0, len(c.apps))}
	for _, app := range c.apps {
		file.Applications = append(file.Applications, app)
	}
	slices.SortFunc(file.Applications, func(a, b events.Application) int {
		return strings.Compare(a.Path, b.Path)
	})
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return trace.Wrap(err)
	}
	if err := renameio.WriteFile(c.path, data, 0o600); err != nil {
		return trace.ConvertSystemError(err)
	}
	return nil
}
