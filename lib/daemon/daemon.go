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

// Package daemon installs the agent as an OS service and drives its
// lifecycle. Only systemd is supported: Install writes and enables a unit
// file, Start and Stop run the matching systemd jobs and wait for their
// result. On platforms without systemd every operation returns
// trace.NotImplemented.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gravitational/trace"

	tracker "github.com/nkpatro/activity-tracker"
	"github.com/nkpatro/activity-tracker/lib/defaults"
)

// unitName is the systemd unit the agent runs under.
const unitName = defaults.ServiceName + ".service"

// systemdUnitDir is where administrator-managed unit files live.
const systemdUnitDir = "/etc/systemd/system"

const unitTemplate = `[Unit]
Description=Workstation activity tracking agent
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
ExecStart=%v
Restart=on-failure
RestartSec=5

[Install]
WantedBy=multi-user.target
`

// Config ties a control operation to a concrete unit file and binary.
type Config struct {
	// ExecPath is the binary the service runs. Empty means the currently
	// running executable.
	ExecPath string
	// DataDir, when set, is passed to the service with --data-dir.
	DataDir string
	// UnitDir is the directory the unit file is written to. Empty means
	// the system unit directory.
	UnitDir string
	// Logger emits control operation logs.
	Logger *slog.Logger
}

// CheckAndSetDefaults resolves the running binary and validates paths.
func (c *Config) CheckAndSetDefaults() error {
	if c.ExecPath == "" {
		path, err := os.Executable()
		if err != nil {
			return trace.ConvertSystemError(err)
		}
		c.ExecPath = path
	}
	if !filepath.IsAbs(c.ExecPath) {
		return trace.BadParameter("service executable path %q is not absolute", c.ExecPath)
	}
	if c.DataDir != "" && !filepath.IsAbs(c.DataDir) {
		return trace.BadParameter("service data directory %q is not absolute", c.DataDir)
	}
	if c.UnitDir == "" {
		c.UnitDir = systemdUnitDir
	}
	if c.Logger == nil {
		c.Logger = slog.With(tracker.ComponentKey, tracker.ComponentDaemon)
	}
	return nil
}

// unitPath returns the absolute path of the unit file.
func (c *Config) unitPath() string {
	return filepath.Join(c.UnitDir, unitName)
}

// unitFile renders the systemd unit for the configured binary.
func (c *Config) unitFile() string {
	exec := c.ExecPath
	if c.DataDir != "" {
		exec += " --data-dir=" + c.DataDir
	}
	return fmt.Sprintf(unitTemplate, exec)
}

// Install writes the unit file and enables it so the agent starts at boot.
// The service is not started; use Start.
func Install(ctx context.Context, cfg Config) error {
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return trace.Wrap(err)
	}
	return trace.Wrap(install(ctx, &cfg))
}

// Uninstall stops the service if it is running, disables it and removes the
// unit file.
func Uninstall(ctx context.Context, cfg Config) error {
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return trace.Wrap(err)
	}
	return trace.Wrap(uninstall(ctx, &cfg))
}

// Start asks systemd to start the service and waits for the job result.
func Start(ctx context.Context, cfg Config) error {
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return trace.Wrap(err)
	}
	return trace.Wrap(start(ctx, &cfg))
}

// Stop asks systemd to stop the service and waits for the job result.
func Stop(ctx context.Context, cfg Config) error {
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return trace.Wrap(err)
	}
	return trace.Wrap(stop(ctx, &cfg))
}
