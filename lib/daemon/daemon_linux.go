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

//go:build linux

package daemon

import (
	"context"
	"os"

	"github.com/coreos/go-systemd/v22/dbus"
	"github.com/google/renameio/v2"
	"github.com/gravitational/trace"
)

func install(ctx context.Context, cfg *Config) error {
	if err := renameio.WriteFile(cfg.unitPath(), []byte(cfg.unitFile()), 0o644); err != nil {
		return trace.ConvertSystemError(err)
	}
	conn, err := dbus.NewWithContext(ctx)
	if err != nil {
		return trace.ConnectionProblem(err, "connecting to systemd")
	}
	defer conn.Close()
	if err := conn.ReloadContext(ctx); err != nil {
		return trace.Wrap(err)
	}
	if _, _, err := conn.EnableUnitFilesContext(ctx, []string{cfg.unitPath()}, false, true); err != nil {
		return trace.Wrap(err)
	}
	cfg.Logger.InfoContext(ctx, "Service installed.", "unit", unitName, "path", cfg.unitPath())
	return nil
}

func uninstall(ctx context.Context, cfg *Config) error {
	conn, err := dbus.NewWithContext(ctx)
	if err != nil {
		return trace.ConnectionProblem(err, "connecting to systemd")
	}
	defer conn.Close()
	// The unit may have never been started, or may already be gone. Either
	// way the uninstall should still remove what remains.
	if err := waitForJob(ctx, conn.StopUnitContext, unitName); err != nil {
		cfg.Logger.DebugContext(ctx, "Service was not running.", "unit", unitName, "error", err)
	}
	if _, err := conn.DisableUnitFilesContext(ctx, []string{unitName}, false); err != nil {
		cfg.Logger.WarnContext(ctx, "Could not disable service.", "unit", unitName, "error", err)
	}
	if err := os.Remove(cfg.unitPath()); err != nil && !os.IsNotExist(err) {
		return trace.ConvertSystemError(err)
	}
	if err := conn.ReloadContext(ctx); err != nil {
		return trace.Wrap(err)
	}
	cfg.Logger.InfoContext(ctx, "Service uninstalled.", "unit", unitName)
	return nil
}

func start(ctx context.Context, cfg *Config) error {
	conn, err := dbus.NewWithContext(ctx)
	if err != nil {
		return trace.ConnectionProblem(err, "connecting to systemd")
	}
	defer conn.Close()
	if err := waitForJob(ctx, conn.StartUnitContext, unitName); err != nil {
		return trace.Wrap(err)
	}
	cfg.Logger.InfoContext(ctx, "Service started.", "unit", unitName)
	return nil
}

func stop(ctx context.Context, cfg *Config) error {
	conn, err := dbus.NewWithContext(ctx)
	if err != nil {
		return trace.ConnectionProblem(err, "connecting to systemd")
	}
	defer conn.Close()
	if err := waitForJob(ctx, conn.StopUnitContext, unitName); err != nil {
		return trace.Wrap(err)
	}
	cfg.Logger.InfoContext(ctx, "Service stopped.", "unit", unitName)
	return nil
}

// jobFunc matches the shape of the systemd unit job starters.
type jobFunc func(ctx context.Context, name, mode string, results chan<- string) (int, error)

// waitForJob runs a systemd job and waits until systemd reports its result.
// Any result other than "done" is an error.
func waitForJob(ctx context.Context, run jobFunc, name string) error {
	results := make(chan string, 1)
	if _, err := run(ctx, name, "replace", results); err != nil {
		return trace.Wrap(err)
	}
	select {
	case result := <-results:
		if result != "done" {
			return trace.Errorf("systemd job for %v finished with result %q", name, result)
		}
		return nil
	case <-ctx.Done():
		return trace.Wrap(ctx.Err())
	}
}
