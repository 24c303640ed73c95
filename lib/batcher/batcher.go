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

// Package batcher collapses high-frequency raw input events into periodic
// summaries so the outbound data rate stays bounded no matter how fast the
// user types or moves the mouse.
package batcher

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"

	tracker "github.com/nkpatro/activity-tracker"
)

// MousePosition is one observed cursor position.
type MousePosition struct {
	X int
	Y int
}

// Focus describes the application holding the foreground window over a
// batch interval, with the number of focus changes observed in it.
type Focus struct {
	AppName        string
	WindowTitle    string
	ExecutablePath string
	Changes        int
}

// Config configures a Batcher.
type Config struct {
	// Interval is the aggregation period. Zero turns the batcher into a
	// synchronous passthrough that emits every event immediately.
	Interval time.Duration
	// OnMouse receives the positions captured on any mouse event during
	// the interval plus the move and click counts.
	OnMouse func(positions []MousePosition, moves, clicks int)
	// OnKeys receives the number of key presses during the interval. Key
	// identities are never captured.
	OnKeys func(count int)
	// OnFocus receives the foreground application at the end of an
	// interval in which focus changed.
	OnFocus func(focus Focus)
	// Clock defaults to the real clock.
	Clock clockwork.Clock
	// Logger is used for lifecycle messages.
	Logger *slog.Logger
}

// CheckAndSetDefaults validates the configuration and fills in defaults.
func (c *Config) CheckAndSetDefaults() error {
	if c.Interval < 0 {
		return trace.BadParameter("negative batch interval %v", c.Interval)
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Logger == nil {
		c.Logger = slog.With(tracker.ComponentKey, tracker.ComponentBatcher)
	}
	return nil
}

// Batcher accumulates mouse, keyboard and focus activity under one lock and
// emits summaries on a ticker, or immediately when the interval is zero.
// Emission always happens with the lock released.
type Batcher struct {
	cfg Config

	mu           sync.Mutex
	running      bool
	positions    []MousePosition
	moves        int
	clicks       int
	keys         int
	focus        Focus
	pendingFocus bool
	done         chan struct{}

	wg sync.WaitGroup
}

// New returns a stopped batcher; call Start to begin aggregation.
func New(cfg Config) (*Batcher, error) {
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	return &Batcher{cfg: cfg}, nil
}

// Start begins aggregation. Calling Start on a running batcher is a no-op.
func (b *Batcher) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return
	}
	b.running = true
	if b.cfg.Interval > 0 {
		b.done = make(chan struct{})
		b.wg.Add(1)
		go b.loop(b.done)
	}
	b.cfg.Logger.Debug("Batcher started.", "interval", b.cfg.Interval)
}

// Stop drains the accumulators once and disables the batcher. After Stop
// returns no further emissions are observed. Stopping a stopped batcher is
// a no-op.
func (b *Batcher) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	done := b.done
	b.done = nil
	b.mu.Unlock()

	if done != nil {
		// The loop performs the final drain before exiting so that a
		// concurrent tick and the shutdown drain cannot interleave.
		close(done)
		b.wg.Wait()
	} else {
		b.drain()
	}
	b.cfg.Logger.Debug("Batcher stopped.")
}

// RecordMouseMove captures a cursor position. Events on a stopped batcher
// are dropped.
func (b *Batcher) RecordMouseMove(x, y int) {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	if b.cfg.Interval == 0 {
		b.mu.Unlock()
		b.emitMouse([]MousePosition{{X: x, Y: y}}, 1, 0)
		return
	}
	b.positions = append(b.positions, MousePosition{X: x, Y: y})
	b.moves++
	b.mu.Unlock()
}

// RecordMouseClick captures a click and its position.
func (b *Batcher) RecordMouseClick(x, y int) {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	if b.cfg.Interval == 0 {
		b.mu.Unlock()
		b.emitMouse([]MousePosition{{X: x, Y: y}}, 0, 1)
		return
	}
	b.positions = append(b.positions, MousePosition{X: x, Y: y})
	b.clicks++
	b.mu.Unlock()
}

// RecordKeyPress counts a key press. Only the count is kept.
func (b *Batcher) RecordKeyPress() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	if b.cfg.Interval == 0 {
		b.mu.Unlock()
		b.emitKeys(1)
		return
	}
	b.keys++
	b.mu.Unlock()
}

// RecordFocus notes the foreground application. A report identical to the
// current one is not a change and does nothing.
func (b *Batcher) RecordFocus(appName, windowTitle, executablePath string) {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	if b.focus.AppName == appName && b.focus.WindowTitle == windowTitle && b.focus.ExecutablePath == executablePath {
		b.mu.Unlock()
		return
	}
	next := Focus{
		AppName:        appName,
		WindowTitle:    windowTitle,
		ExecutablePath: executablePath,
	}
	if b.cfg.Interval == 0 {
		b.focus = next
		b.mu.Unlock()
		next.Changes = 1
		b.emitFocus(next)
		return
	}
	next.Changes = b.focus.Changes + 1
	b.focus = next
	b.pendingFocus = true
	b.mu.Unlock()
}

func (b *Batcher) loop(done chan struct{}) {
	defer b.wg.Done()
	ticker := b.cfg.Clock.NewTicker(b.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.Chan():
			b.drain()
		case <-done:
			b.drain()
			return
		}
	}
}

// drain snapshots and resets the accumulators under the lock, then emits
// whatever was collected with the lock released.
func (b *Batcher) drain() {
	b.mu.Lock()
	positions, moves, clicks := b.positions, b.moves, b.clicks
	keys := b.keys
	focus, pendingFocus := b.focus, b.pendingFocus

	b.positions = nil
	b.moves, b.clicks, b.keys = 0, 0, 0
	b.focus = Focus{}
	b.pendingFocus = false
	b.mu.Unlock()

	if len(positions) > 0 {
		b.emitMouse(positions, moves, clicks)
	}
	if keys > 0 {
		b.emitKeys(keys)
	}
	if pendingFocus {
		b.emitFocus(focus)
	}
}

func (b *Batcher) emitMouse(positions []MousePosition, moves, clicks int) {
	if b.cfg.OnMouse != nil {
		b.cfg.OnMouse(positions, moves, clicks)
	}
}

func (b *Batcher) emitKeys(count int) {
	if b.cfg.OnKeys != nil {
		b.cfg.OnKeys(count)
	}
}

func (b *Batcher) emitFocus(focus Focus) {
	if b.cfg.OnFocus != nil {
		b.cfg.OnFocus(focus)
	}
}
