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

package monitor

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"

	tracker "github.com/nkpatro/activity-tracker"
	"github.com/nkpatro/activity-tracker/lib/defaults"
)

// IdleWatcherConfig configures an IdleWatcher.
type IdleWatcherConfig struct {
	// Prober reads the current idle duration from the OS. Required.
	Prober IdleProber
	// OnAFK receives presence edges: start true when the idle threshold is
	// crossed, start false on the first activity after it. Required.
	OnAFK func(start bool, at time.Time)
	// Threshold is the no-input duration that begins an AFK period.
	// Defaults to defaults.IdleThreshold; values below the minimum are
	// clamped, not rejected.
	Threshold time.Duration
	// PollInterval is how often the prober is read.
	PollInterval time.Duration
	// Clock defaults to the real clock.
	Clock clockwork.Clock
	// Logger is used for lifecycle and probe failure messages.
	Logger *slog.Logger
}

// CheckAndSetDefaults validates the configuration and fills in defaults.
func (c *IdleWatcherConfig) CheckAndSetDefaults() error {
	if c.Prober == nil {
		return trace.BadParameter("missing parameter Prober")
	}
	if c.OnAFK == nil {
		return trace.BadParameter("missing parameter OnAFK")
	}
	if c.Threshold == 0 {
		c.Threshold = defaults.IdleThreshold
	}
	if c.Threshold < defaults.MinIdleThreshold {
		c.Threshold = defaults.MinIdleThreshold
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaults.IdlePollInterval
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Logger == nil {
		c.Logger = slog.With(tracker.ComponentKey, tracker.ComponentMonitor)
	}
	return nil
}

// IdleWatcher turns the raw idle duration reported by an IdleProber into AFK
// edges. It emits exactly one start edge per AFK period, with the start time
// backdated to the last observed input, and one end edge on the first poll
// that sees activity again.
type IdleWatcher struct {
	cfg IdleWatcherConfig

	mu        sync.Mutex
	running   bool
	afk       bool
	threshold time.Duration
	done      chan struct{}

	wg sync.WaitGroup
}

// NewIdleWatcher returns a stopped watcher; call Start to begin polling.
func NewIdleWatcher(cfg IdleWatcherConfig) (*IdleWatcher, error) {
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	return &IdleWatcher{cfg: cfg, threshold: cfg.Threshold}, nil
}

// Start begins polling the prober. Starting a running watcher is a no-op.
func (w *IdleWatcher) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	w.running = true
	w.done = make(chan struct{})
	w.wg.Add(1)
	go w.loop(w.done)
	w.cfg.Logger.Debug("Idle watcher started.",
		"threshold", w.threshold, "poll_interval", w.cfg.PollInterval)
}

// Stop shuts the watcher down. After Stop returns no edge is emitted. An AFK
// period left open is not closed here; session teardown owns that. Stopping
// a stopped watcher is a no-op.
func (w *IdleWatcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	done := w.done
	w.done = nil
	w.mu.Unlock()

	close(done)
	w.wg.Wait()
	w.cfg.Logger.Debug("Idle watcher stopped.")
}

// SetThreshold adjusts the AFK threshold, clamped to the minimum. Takes
// effect on the next poll; a user already counted AFK under the old
// threshold stays AFK until activity.
func (w *IdleWatcher) SetThreshold(d time.Duration) {
	if d < defaults.MinIdleThreshold {
		w.cfg.Logger.Warn("Clamping idle threshold to minimum.",
			"requested", d, "minimum", defaults.MinIdleThreshold)
		d = defaults.MinIdleThreshold
	}
	w.mu.Lock()
	w.threshold = d
	w.mu.Unlock()
}

func (w *IdleWatcher) loop(done chan struct{}) {
	defer w.wg.Done()
	ticker := w.cfg.Clock.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.Chan():
			w.poll()
		case <-done:
			return
		}
	}
}

// poll reads the prober and emits an edge when presence flipped since the
// previous poll.
func (w *IdleWatcher) poll() {
	idle, err := w.cfg.Prober.IdleDuration()
	if err != nil {
		w.cfg.Logger.Warn("Failed to read idle duration.", "error", err)
		return
	}
	now := w.cfg.Clock.Now()

	w.mu.Lock()
	wasAFK := w.afk
	isAFK := idle >= w.threshold
	w.afk = isAFK
	w.mu.Unlock()

	switch {
	case isAFK && !wasAFK:
		// The period began when input stopped, not when the poll noticed.
		w.cfg.OnAFK(true, now.Add(-idle))
	case !isAFK && wasAFK:
		w.cfg.OnAFK(false, now)
	}
}
