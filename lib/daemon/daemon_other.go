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

//go:build !linux

package daemon

import (
	"context"

	"github.com/gravitational/trace"
)

func install(ctx context.Context, cfg *Config) error {
	return trace.NotImplemented("service installation requires systemd and is only supported on linux")
}

func uninstall(ctx context.Context, cfg *Config) error {
	return trace.NotImplemented("service removal requires systemd and is only supported on linux")
}

func start(ctx context.Context, cfg *Config) error {
	return trace.NotImplemented("service control requires systemd and is only supported on linux")
}

func stop(ctx context.Context, cfg *Config) error {
	return trace.NotImplemented("service control requires systemd and is only supported on linux")
}
