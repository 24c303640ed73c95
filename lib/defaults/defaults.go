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

// Package defaults gathers the default values and limits used across the
// activity tracker so the numeric policy of the agent lives in one place.
package defaults

import (
	"os"
	"path/filepath"
	"runtime"
	"time"
)

const (
	// FlushInterval is how often the sync manager delivers queued telemetry
	// to the server when no interval is configured.
	FlushInterval = 60 * time.Second

	// ProbeInterval is how often the sync manager probes server
	// connectivity to decide between online and offline operation.
	ProbeInterval = 30 * time.Second

	// ProbeTimeout bounds a single connectivity probe. It is deliberately
	// shorter than CallTimeout so a dead server flips the agent offline
	// quickly instead of stalling a flush cycle.
	ProbeTimeout = 5 * time.Second

	// CallTimeout bounds a single HTTP call to the tracking server.
	CallTimeout = 15 * time.Second

	// ShutdownFlushTimeout bounds the final flush attempted while the agent
	// is stopping. Items still queued when it expires are dropped.
	ShutdownFlushTimeout = 5 * time.Second

	// BatchInterval is how often the input batcher folds accumulated mouse,
	// keyboard and focus activity into telemetry events.
	BatchInterval = time.Second

	// IdleThreshold is how long input must be absent before the agent
	// considers the user away from keyboard.
	IdleThreshold = 5 * time.Minute

	// MinIdleThreshold is the floor for the configured idle threshold.
	// Values below it are clamped, not rejected.
	MinIdleThreshold = time.Second

	// IdlePollInterval is how often the idle watcher samples the idle time
	// reported by the OS.
	IdlePollInterval = time.Second

	// MetricsInterval is how often system metrics are sampled while
	// metrics tracking is enabled.
	MetricsInterval = 30 * time.Second

	// SystemAlertThreshold is the CPU or memory utilization percentage at
	// or above which the agent emits a system_alert activity event.
	SystemAlertThreshold = 95.0

	// MaxQueueSize is the queue depth at which the sync manager triggers an
	// early flush instead of waiting for the next interval tick.
	MaxQueueSize = 500

	// RolloverCheckInterval is how often the agent compares the active
	// session's date with the local calendar date to detect day rollover.
	RolloverCheckInterval = time.Hour
)

const (
	// AppDirName is the name of the per-user directory holding the agent's
	// configuration and state files.
	AppDirName = "activity-tracker"

	// ConfigFileName is the INI configuration file read on startup.
	ConfigFileName = "activity_tracker.conf"

	// AppCacheFileName is the JSON file persisting the application
	// identity cache between runs.
	AppCacheFileName = "app_cache.json"

	// MachineIDFileName persists the generated machine identifier.
	MachineIDFileName = "machine_id"

	// LogFileName is the default log file used when --logfile names a
	// directory or the service installer sets up logging.
	LogFileName = "activity-tracker.log"

	// ServiceName is the name of the OS service unit registered by
	// --install.
	ServiceName = "activity-tracker"

	// APIPrefix is the version prefix every server endpoint is mounted
	// under.
	APIPrefix = "api"
)

// DataDir returns the per-user data directory for the current platform,
// creating nothing. Callers that need the directory present use EnsureDataDir.
func DataDir() string {
	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".", AppDirName)
		}
		return filepath.Join(home, "Library", "Application Support", AppDirName)
	case "windows":
		if dir := os.Getenv("LOCALAPPDATA"); dir != "" {
			return filepath.Join(dir, AppDirName)
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".", AppDirName)
		}
		return filepath.Join(home, "AppData", "Local", AppDirName)
	default:
		if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
			return filepath.Join(dir, AppDirName)
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".", AppDirName)
		}
		return filepath.Join(home, ".local", "share", AppDirName)
	}
}

// EnsureDataDir creates the data directory if needed and returns its path.
func EnsureDataDir(dir string) (string, error) {
	if dir == "" {
		dir = DataDir()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}
