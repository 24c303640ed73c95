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

package appcache

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/gravitational/trace"
	"github.com/stretchr/testify/require"

	"github.com/nkpatro/activity-tracker/lib/defaults"
	"github.com/nkpatro/activity-tracker/lib/events"
	"github.com/nkpatro/activity-tracker/lib/utils"
)

func TestMain(m *testing.M) {
	utils.InitLoggerForTests()
	os.Exit(m.Run())
}

// fakeDetector hands out sequential ids and can be switched to fail.
type fakeDetector struct {
	mu    sync.Mutex
	calls int
	fail  error
}

func (d *fakeDetector) DetectApplication(ctx context.Context, name, path string) (*events.Application, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.fail != nil {
		return nil, d.fail
	}
	return &events.Application{
		ID:              "app-" + name,
		Name:            name,
		Path:            NormalizePath(path),
		TrackingEnabled: true,
	}, nil
}

func (d *fakeDetector) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func newTestCache(t *testing.T, dir string, detector Detector) *Cache {
	t.Helper()
	cache, err := New(Config{Dir: dir, Detector: detector})
	require.NoError(t, err)
	return cache
}

func TestNormalizePathIdempotent(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: `C:/Program Files/Editor/EDITOR.EXE`, want: `c:/program files/editor/editor.exe`},
		{in: ` /usr/bin/Code `, want: `/usr/bin/code`},
	}
	for _, tt := range tests {
		got := NormalizePath(tt.in)
		require.Equal(t, tt.want, got)
		require.Equal(t, got, NormalizePath(got), "normalization must be idempotent")
	}
}

func TestRegisterLookupRoundTrip(t *testing.T) {
	ctx := context.Background()
	detector := &fakeDetector{}
	cache := newTestCache(t, t.TempDir(), detector)

	id, err := cache.RegisterApplication(ctx, "editor", "/usr/bin/Editor")
	require.NoError(t, err)
	require.Equal(t, "app-editor", id)
	require.Equal(t, 1, detector.callCount())

	// Same path in different case hits the cache, not the server.
	id2, err := cache.RegisterApplication(ctx, "editor", "/USR/BIN/EDITOR")
	require.NoError(t, err)
	require.Equal(t, id, id2)
	require.Equal(t, 1, detector.callCount())

	app, ok := cache.Lookup("/usr/bin/editor")
	require.True(t, ok)
	require.Equal(t, "app-editor", app.ID)
}

func TestDetectFailureIsRetriedNextCall(t *testing.T) {
	ctx := context.Background()
	detector := &fakeDetector{fail: trace.ConnectionProblem(nil, "server down")}
	cache := newTestCache(t, t.TempDir(), detector)

	id, err := cache.RegisterApplication(ctx, "editor", "/usr/bin/editor")
	require.Error(t, err)
	require.Empty(t, id)
	require.Equal(t, 0, cache.Len(), "failures must not be cached")

	// Server recovers; the next call asks again and succeeds.
	detector.mu.Lock()
	detector.fail = nil
	detector.mu.Unlock()

	id, err = cache.RegisterApplication(ctx, "editor", "/usr/bin/editor")
	require.NoError(t, err)
	require.Equal(t, "app-editor", id)
	require.Equal(t, 2, detector.callCount())
}

func TestPersistenceAcrossInstances(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	detector := &fakeDetector{}

	cache := newTestCache(t, dir, detector)
	_, err := cache.RegisterApplication(ctx, "editor", "/usr/bin/editor")
	require.NoError(t, err)
	_, err = cache.RegisterApplication(ctx, "browser", "/usr/bin/browser")
	require.NoError(t, err)

	// A second instance reads the same file and answers without the server.
	reloaded := newTestCache(t, dir, detector)
	require.Equal(t, 2, reloaded.Len())
	id, err := reloaded.RegisterApplication(ctx, "editor", "/usr/bin/editor")
	require.NoError(t, err)
	require.Equal(t, "app-editor", id)
	require.Equal(t, 2, detector.callCount())
}

func TestCacheFileFormat(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cache := newTestCache(t, dir, &fakeDetector{})
	_, err := cache.RegisterApplication(ctx, "editor", "/usr/bin/editor")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, defaults.AppCacheFileName))
	require.NoError(t, err)

	var file struct {
		Applications []map[string]any `json:"applications"`
	}
	require.NoError(t, json.Unmarshal(data, &file))
	require.Len(t, file.Applications, 1)
	require.Equal(t, "app-editor", file.Applications[0]["id"])
	require.Equal(t, "/usr/bin/editor", file.Applications[0]["path"])
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	detector := &fakeDetector{}
	cache := newTestCache(t, dir, detector)

	_, err := cache.RegisterApplication(ctx, "editor", "/usr/bin/editor")
	require.NoError(t, err)
	require.NoError(t, cache.Clear())
	require.Equal(t, 0, cache.Len())

	// The file is truncated too: a fresh instance starts empty.
	require.Equal(t, 0, newTestCache(t, dir, detector).Len())

	// Registration after clear asks the server again.
	_, err = cache.RegisterApplication(ctx, "editor", "/usr/bin/editor")
	require.NoError(t, err)
	require.Equal(t, 2, detector.callCount())
}

func TestMalformedCacheFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, defaults.AppCacheFileName), []byte("{not json"), 0o600))

	cache := newTestCache(t, dir, &fakeDetector{})
	require.Equal(t, 0, cache.Len())
}
