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

package batcher

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/nkpatro/activity-tracker/lib/utils"
)

func TestMain(m *testing.M) {
	utils.InitLoggerForTests()
	os.Exit(m.Run())
}

type mouseEmission struct {
	positions []MousePosition
	moves     int
	clicks    int
}

// sink records everything a batcher emits.
type sink struct {
	mu      sync.Mutex
	mouse   []mouseEmission
	keys    []int
	focuses []Focus
}

func (s *sink) config(interval time.Duration, clock clockwork.Clock) Config {
	return Config{
		Interval: interval,
		Clock:    clock,
		OnMouse: func(positions []MousePosition, moves, clicks int) {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.mouse = append(s.mouse, mouseEmission{positions: positions, moves: moves, clicks: clicks})
		},
		OnKeys: func(count int) {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.keys = append(s.keys, count)
		},
		OnFocus: func(focus Focus) {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.focuses = append(s.focuses, focus)
		},
	}
}

func (s *sink) counts() (mouse, keys, focuses int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.mouse), len(s.keys), len(s.focuses)
}

func TestPassthroughEmitsPerEvent(t *testing.T) {
	s := &sink{}
	b, err := New(s.config(0, clockwork.NewFakeClock()))
	require.NoError(t, err)
	b.Start()
	defer b.Stop()

	b.RecordMouseMove(1, 1)
	b.RecordMouseMove(2, 2)
	b.RecordMouseClick(3, 3)
	b.RecordKeyPress()
	b.RecordKeyPress()
	b.RecordFocus("editor", "main.go", "/usr/bin/editor")
	// An identical focus report is not a change.
	b.RecordFocus("editor", "main.go", "/usr/bin/editor")

	mouse, keys, focuses := s.counts()
	require.Equal(t, 3, mouse, "each mouse event emits once in passthrough")
	require.Equal(t, 2, keys)
	require.Equal(t, 1, focuses)

	s.mu.Lock()
	defer s.mu.Unlock()
	require.Equal(t, mouseEmission{positions: []MousePosition{{X: 1, Y: 1}}, moves: 1, clicks: 0}, s.mouse[0])
	require.Equal(t, mouseEmission{positions: []MousePosition{{X: 3, Y: 3}}, moves: 0, clicks: 1}, s.mouse[2])
	require.Equal(t, Focus{AppName: "editor", WindowTitle: "main.go", ExecutablePath: "/usr/bin/editor", Changes: 1}, s.focuses[0])
}

func TestBurstAggregation(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := &sink{}
	b, err := New(s.config(time.Second, clock))
	require.NoError(t, err)
	b.Start()
	defer b.Stop()

	// 250 moves, 40 clicks, 120 key presses within one interval, no focus
	// change: exactly one mouse and one key emission, no focus emission.
	for i := 0; i < 250; i++ {
		b.RecordMouseMove(i, i)
	}
	for i := 0; i < 40; i++ {
		b.RecordMouseClick(500, 500)
	}
	for i := 0; i < 120; i++ {
		b.RecordKeyPress()
	}

	clock.BlockUntil(1)
	clock.Advance(time.Second)

	require.Eventually(t, func() bool {
		mouse, keys, _ := s.counts()
		return mouse == 1 && keys == 1
	}, time.Second, time.Millisecond)

	s.mu.Lock()
	defer s.mu.Unlock()
	require.Len(t, s.mouse[0].positions, 290, "clicks contribute positions too")
	require.Equal(t, 250, s.mouse[0].moves)
	require.Equal(t, 40, s.mouse[0].clicks)
	require.Equal(t, MousePosition{X: 500, Y: 500}, s.mouse[0].positions[289])
	require.Equal(t, []int{120}, s.keys)
	require.Empty(t, s.focuses)
}

func TestEmptyTickEmitsNothing(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := &sink{}
	b, err := New(s.config(time.Second, clock))
	require.NoError(t, err)
	b.Start()
	defer b.Stop()

	// First tick with nothing accumulated.
	clock.BlockUntil(1)
	clock.Advance(time.Second)

	// Now accumulate and tick again: only the second tick emits.
	clock.BlockUntil(1)
	b.RecordKeyPress()
	clock.Advance(time.Second)

	require.Eventually(t, func() bool {
		_, keys, _ := s.counts()
		return keys == 1
	}, time.Second, time.Millisecond)

	mouse, keys, focuses := s.counts()
	require.Zero(t, mouse)
	require.Equal(t, 1, keys)
	require.Zero(t, focuses)
}

func TestFocusAccumulation(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := &sink{}
	b, err := New(s.config(time.Second, clock))
	require.NoError(t, err)
	b.Start()
	defer b.Stop()

	b.RecordFocus("editor", "main.go", "/usr/bin/editor")
	b.RecordFocus("editor", "main.go", "/usr/bin/editor") // no change
	b.RecordFocus("browser", "docs", "/usr/bin/browser")

	clock.BlockUntil(1)
	clock.Advance(time.Second)

	require.Eventually(t, func() bool {
		_, _, focuses := s.counts()
		return focuses == 1
	}, time.Second, time.Millisecond)

	s.mu.Lock()
	last := s.focuses[0]
	s.mu.Unlock()
	require.Equal(t, "browser", last.AppName)
	require.Equal(t, 2, last.Changes, "two distinct focus changes in the interval")
}

func TestStopDrainsOnceAndDisables(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := &sink{}
	b, err := New(s.config(time.Second, clock))
	require.NoError(t, err)
	b.Start()

	b.RecordKeyPress()
	b.RecordMouseMove(1, 2)
	b.Stop()

	// The shutdown drain ran before Stop returned.
	mouse, keys, _ := s.counts()
	require.Equal(t, 1, mouse)
	require.Equal(t, 1, keys)

	// Records after Stop are dropped and no timer can fire again.
	b.RecordKeyPress()
	b.RecordMouseClick(3, 4)
	mouse, keys, _ = s.counts()
	require.Equal(t, 1, mouse)
	require.Equal(t, 1, keys)

	// Stopping again is a no-op.
	b.Stop()
}

func TestStartStopIdempotent(t *testing.T) {
	s := &sink{}
	b, err := New(s.config(0, clockwork.NewFakeClock()))
	require.NoError(t, err)

	// Events before Start are dropped.
	b.RecordKeyPress()
	_, keys, _ := s.counts()
	require.Zero(t, keys)

	b.Start()
	b.Start()
	b.RecordKeyPress()
	b.Stop()
	b.Stop()

	_, keys, _ = s.counts()
	require.Equal(t, 1, keys)
}

func TestNegativeIntervalRejected(t *testing.T) {
	_, err := New(Config{Interval: -time.Second})
	require.Error(t, err)
}
