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

// Package monitor is the boundary between the agent core and the OS signal
// sources. Input hooks, session notifications and idle probes are platform
// code that lives outside this module and plugs in behind the interfaces
// here; the package ships the pieces that are portable: the gopsutil-backed
// metrics sampler and the idle watcher that turns raw idle durations into
// AFK edges.
package monitor

import (
	"context"
	"time"

	"github.com/nkpatro/activity-tracker/lib/events"
)

// InputSink receives raw input and focus signals from an InputMonitor. The
// batcher implements it; monitors never talk to the rest of the agent
// directly.
type InputSink interface {
	// RecordMouseMove captures a cursor position.
	RecordMouseMove(x, y int)
	// RecordMouseClick captures a button press position.
	RecordMouseClick(x, y int)
	// RecordKeyPress counts a key press. Key identity is never delivered.
	RecordKeyPress()
	// RecordFocus reports the application owning the foreground window.
	RecordFocus(appName, windowTitle, executablePath string)
}

// InputMonitor is an OS input hook. Start delivers signals to the sink until
// Close; both are called at most once.
type InputMonitor interface {
	Start(sink InputSink) error
	Close() error
}

// SessionChange is one OS session lifecycle notification.
type SessionChange struct {
	// Kind is the lifecycle event observed: lock, unlock, login, logout,
	// switch_user, remote_connect or remote_disconnect.
	Kind events.SessionEventType
	// Username identifies the affected user for login, logout and
	// switch_user notifications, when the platform exposes it.
	Username string
	// Time is when the OS reported the change.
	Time time.Time
}

// SessionEventSource delivers OS session lifecycle notifications (console
// lock and unlock, logins, fast user switching, remote desktop attach).
type SessionEventSource interface {
	Start(fn func(SessionChange)) error
	Close() error
}

// IdleProber reports how long the workstation has gone without any input.
// Platform adapters read this from the OS; tests script it.
type IdleProber interface {
	IdleDuration() (time.Duration, error)
}

// Sample is one point-in-time system utilization reading. All values are
// percentages in [0, 100].
type Sample struct {
	CPU    float64
	GPU    float64
	Memory float64
}

// MetricsSampler reads system utilization for the metrics loop.
type MetricsSampler interface {
	Sample(ctx context.Context) (Sample, error)
}
