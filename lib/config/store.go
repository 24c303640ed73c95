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

package config

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/google/renameio/v2"
	"github.com/gravitational/trace"
	"gopkg.in/ini.v1"

	tracker "github.com/nkpatro/activity-tracker"
	"github.com/nkpatro/activity-tracker/lib/defaults"
)

// StoreConfig configures a settings store.
type StoreConfig struct {
	// Dir is the data directory holding the config file. Defaults to the
	// platform per-user data directory.
	Dir string
	// Logger emits load and clamp warnings.
	Logger *slog.Logger
}

// CheckAndSetDefaults validates the configuration and fills in defaults.
func (c *StoreConfig) CheckAndSetDefaults() error {
	if c.Dir == "" {
		c.Dir = defaults.DataDir()
	}
	if c.Logger == nil {
		c.Logger = slog.With(tracker.ComponentKey, tracker.ComponentConfig)
	}
	return nil
}

// Store owns the config file: it loads settings at startup, persists
// programmatic changes atomically, and notifies subscribers whenever the
// effective settings change, from either a Set or an external file edit.
type Store struct {
	logger *slog.Logger
	path   string

	mu      sync.Mutex
	current Config
	nextSub int
	subs    map[int]func(Config)
}

// NewStore loads the settings and returns the store. A missing file yields
// defaults silently; an unreadable or malformed file yields defaults with a
// warning. Neither is an error: the agent always starts.
func NewStore(cfg StoreConfig) (*Store, error) {
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	s := &Store{
		logger: cfg.Logger,
		path:   filepath.Join(cfg.Dir, defaults.ConfigFileName),
		subs:   make(map[int]func(Config)),
	}
	s.current = s.load()
	return s, nil
}

// Path returns the location of the config file.
func (s *Store) Path() string {
	return s.path
}

// Get returns a snapshot of the current settings.
func (s *Store) Get() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Set applies a mutation to the settings, persists the result and notifies
// subscribers. The mutation sees a copy; clamping rules are applied after
// it runs. On a persistence failure the in-memory settings are still
// updated and the error is returned for the caller to log.
func (s *Store) Set(mutate func(*Config)) error {
	s.mu.Lock()
	next := s.current
	mutate(&next)
	normalize(&next, s.logger)
	changed := next != s.current
	s.current = next
	subs := s.subscribers()
	s.mu.Unlock()

	err := s.persist(next)
	if changed {
		for _, fn := range subs {
			fn(next)
		}
	}
	return trace.Wrap(err)
}

// SetMachineID persists a generated machine identifier.
func (s *Store) SetMachineID(id string) error {
	return trace.Wrap(s.Set(func(c *Config) {
		c.MachineID = id
	}))
}

// Save writes the full recognized key set to disk.
func (s *Store) Save() error {
	s.mu.Lock()
	snapshot := s.current
	s.mu.Unlock()
	return trace.Wrap(s.persist(snapshot))
}

// Subscribe registers a callback invoked with the new settings after every
// effective change. The returned function removes the subscription.
func (s *Store) Subscribe(fn func(Config)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// Reload re-reads the config file and notifies subscribers if the effective
// settings changed.
func (s *Store) Reload() {
	next := s.load()

	s.mu.Lock()
	if next == s.current {
		s.mu.Unlock()
		return
	}
	s.current = next
	subs := s.subscribers()
	s.mu.Unlock()

	s.logger.Info("Configuration reloaded.", "path", s.path)
	for _, fn := range subs {
		fn(next)
	}
}

// Watch blocks watching the config directory and reloads the settings when
// the config file is modified externally. It returns when ctx is canceled.
// The directory is watched rather than the file so that atomic
// write-and-rename updates keep being observed.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return trace.Wrap(err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return trace.Wrap(err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != defaults.ConfigFileName {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			s.Reload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.WarnContext(ctx, "Config watcher error.", "error", err)
		}
	}
}

// subscribers snapshots the callback set. Callers must hold s.mu.
func (s *Store) subscribers() []func(Config) {
	out := make([]func(Config), 0, len(s.subs))
	for _, fn := range s.subs {
		out = append(out, fn)
	}
	return out
}

func (s *Store) load() Config {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Debug("No config file, using defaults.", "path", s.path)
		} else {
			s.logger.Warn("Cannot read config file, using defaults.", "path", s.path, "error", err)
		}
		return Default()
	}
	file, err := ini.Load(data)
	if err != nil {
		s.logger.Warn("Malformed config file, using defaults.", "path", s.path, "error", err)
		return Default()
	}
	return decode(file, s.logger)
}

func (s *Store) persist(cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return trace.ConvertSystemError(err)
	}
	var buf bytes.Buffer
	if _, err := encode(cfg).WriteTo(&buf); err != nil {
		return trace.Wrap(err)
	}
	if err := renameio.WriteFile(s.path, buf.Bytes(), 0o600); err != nil {
		s.logger.Warn("Cannot persist config file.", "path", s.path, "error", err)
		return trace.ConvertSystemError(err)
	}
	return nil
}
