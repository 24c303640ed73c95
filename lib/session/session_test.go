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

package session

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/nkpatro/activity-tracker/lib/events"
	"github.com/nkpatro/activity-tracker/lib/utils"
)

func TestMain(m *testing.M) {
	utils.InitLoggerForTests()
	os.Exit(m.Run())
}

// fakeRecorder captures everything the machine derives, in call order.
type fakeRecorder struct {
	mu            sync.Mutex
	sessionEvents []events.SessionEvent
	activity      []events.ActivityEvent
	usages        []events.AppUsage
	afk           []events.AFKPeriod
}

func (r *fakeRecorder) RecordSessionEvent(ev events.SessionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessionEvents = append(r.sessionEvents, ev)
}

func (r *fakeRecorder) RecordActivityEvent(ev events.ActivityEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activity = append(r.activity, ev)
}

func (r *fakeRecorder) RecordAppUsage(usage events.AppUsage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.usages = append(r.usages, usage)
}

func (r *fakeRecorder) RecordAFKPeriod(period events.AFKPeriod) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.afk = append(r.afk, period)
}

func (r *fakeRecorder) snapshot() fakeRecorder {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fakeRecorder{
		sessionEvents: append([]events.SessionEvent(nil), r.sessionEvents...),
		activity:      append([]events.ActivityEvent(nil), r.activity...),
		usages:        append([]events.AppUsage(nil), r.usages...),
		afk:           append([]events.AFKPeriod(nil), r.afk...),
	}
}

func newTestMachine(t *testing.T) (*StateMachine, *fakeRecorder) {
	t.Helper()
	rec := &fakeRecorder{}
	m, err := New(Config{Recorder: rec})
	require.NoError(t, err)
	t.Cleanup(m.Stop)
	return m, rec
}

// waitState blocks until the machine reaches want. Side effects of a
// transition complete before the new state becomes visible, so this doubles
// as a barrier for recorder assertions.
func waitState(t *testing.T, m *StateMachine, want State) {
	t.Helper()
	require.Eventually(t, func() bool {
		return m.State() == want
	}, time.Second, time.Millisecond, "waiting for state %v", want)
}

func at(hour, minute int) time.Time {
	return time.Date(2024, 1, 15, hour, minute, 0, 0, time.UTC)
}

func TestInitialState(t *testing.T) {
	m, _ := newTestMachine(t)
	require.Equal(t, StateInactive, m.State())
	_, ok := m.CurrentSessionID()
	require.False(t, ok)
}

func TestSessionStartRecordsLogin(t *testing.T) {
	m, rec := newTestMachine(t)
	sid := uuid.New()

	m.SessionStarted(sid, at(9, 0))
	waitState(t, m, StateActive)

	got, ok := m.CurrentSessionID()
	require.True(t, ok)
	require.Equal(t, sid, got)

	snap := rec.snapshot()
	require.Len(t, snap.sessionEvents, 1)
	require.Equal(t, events.SessionLogin, snap.sessionEvents[0].Type)
	require.Equal(t, sid, snap.sessionEvents[0].SessionID)
	require.Equal(t, at(9, 0), snap.sessionEvents[0].Time.Time)
}

func TestAFKCycleClosesUsage(t *testing.T) {
	m, rec := newTestMachine(t)
	sid := uuid.New()
	m.SessionStarted(sid, at(9, 0))
	m.ReportFocus("app-editor", "editor", "main.go", at(9, 5))
	m.UserWentAFK(at(9, 30))
	waitState(t, m, StateAFK)

	_, usageActive := m.CurrentAppUsage()
	require.False(t, usageActive, "going AFK must close the app usage interval")
	afk, afkActive := m.CurrentAFK()
	require.True(t, afkActive)
	require.Equal(t, at(9, 30), afk.StartTime.Time)

	snap := rec.snapshot()
	require.Len(t, snap.usages, 2, "one start, one end")
	require.Equal(t, events.ActionStart, snap.usages[0].Action)
	require.Equal(t, events.ActionEnd, snap.usages[1].Action)
	require.Equal(t, snap.usages[0].ID, snap.usages[1].ID)
	require.Equal(t, at(9, 30), snap.usages[1].EndTime.Time)
	require.Len(t, snap.afk, 1)
	require.Equal(t, events.ActionStart, snap.afk[0].Action)
	require.Equal(t, sid, snap.afk[0].SessionID)
	require.Len(t, snap.activity, 1)
	require.Equal(t, events.ActivityAFKStart, snap.activity[0].Type)

	// Returning ends the AFK period but does not reopen a usage interval:
	// that waits for the next focus report.
	m.UserReturned(at(9, 45))
	waitState(t, m, StateActive)
	_, usageActive = m.CurrentAppUsage()
	require.False(t, usageActive)
	_, afkActive = m.CurrentAFK()
	require.False(t, afkActive)

	snap = rec.snapshot()
	require.Len(t, snap.afk, 2)
	require.Equal(t, events.ActionEnd, snap.afk[1].Action)
	require.Equal(t, snap.afk[0].ID, snap.afk[1].ID)
	require.Equal(t, at(9, 45), snap.afk[1].EndTime.Time)
	require.Equal(t, events.ActivityAFKEnd, snap.activity[1].Type)

	m.ReportFocus("app-editor", "editor", "main.go", at(9, 46))
	m.Stop()
	usage, usageActive := m.CurrentAppUsage()
	require.True(t, usageActive)
	require.Equal(t, at(9, 46), usage.StartTime.Time)
}

func TestFocusChangeClosesPriorAtSameInstant(t *testing.T) {
	m, rec := newTestMachine(t)
	sid := uuid.New()
	m.SessionStarted(sid, at(9, 0))
	m.ReportFocus("app-editor", "editor", "main.go", at(9, 1))
	m.ReportFocus("app-browser", "browser", "docs", at(9, 20))
	// Same app and title again is continuous focus, not a new interval.
	m.ReportFocus("app-browser", "browser", "docs", at(9, 25))
	m.Stop()

	snap := rec.snapshot()
	require.Len(t, snap.usages, 3)
	require.Equal(t, events.ActionStart, snap.usages[0].Action)
	require.Equal(t, "app-editor", snap.usages[0].AppID)
	require.Equal(t, sid, snap.usages[0].SessionID)
	require.Equal(t, events.ActionEnd, snap.usages[1].Action)
	require.Equal(t, events.ActionStart, snap.usages[2].Action)
	require.Equal(t, "app-browser", snap.usages[2].AppID)
	require.Equal(t, at(9, 20), snap.usages[1].EndTime.Time)
	require.Equal(t, at(9, 20), snap.usages[2].StartTime.Time,
		"prior interval closes at the new interval's start time")
}

func TestWindowTitleChangeIsNewInterval(t *testing.T) {
	m, rec := newTestMachine(t)
	m.SessionStarted(uuid.New(), at(9, 0))
	m.ReportFocus("app-editor", "editor", "main.go", at(9, 1))
	m.ReportFocus("app-editor", "editor", "main_test.go", at(9, 10))
	m.Stop()

	snap := rec.snapshot()
	require.Len(t, snap.usages, 3)
	require.Equal(t, "main_test.go", snap.usages[2].WindowTitle)
	require.NotEqual(t, snap.usages[0].ID, snap.usages[2].ID)
}

func TestSuspendResumeCycle(t *testing.T) {
	m, rec := newTestMachine(t)
	m.SessionStarted(uuid.New(), at(9, 0))
	m.ReportFocus("app-editor", "editor", "main.go", at(9, 1))
	m.SystemSuspending(at(12, 0))
	waitState(t, m, StateSuspended)

	_, usageActive := m.CurrentAppUsage()
	require.False(t, usageActive, "suspend closes the app usage interval")

	snap := rec.snapshot()
	require.Len(t, snap.sessionEvents, 2)
	require.Equal(t, events.SessionLock, snap.sessionEvents[1].Type)
	require.Equal(t, at(12, 0), snap.sessionEvents[1].Time.Time)

	m.SystemResuming(at(13, 0))
	waitState(t, m, StateActive)
	snap = rec.snapshot()
	require.Len(t, snap.sessionEvents, 3)
	require.Equal(t, events.SessionUnlock, snap.sessionEvents[2].Type)
}

func TestSuspendDuringAFKClosesPeriod(t *testing.T) {
	m, rec := newTestMachine(t)
	m.SessionStarted(uuid.New(), at(9, 0))
	m.UserWentAFK(at(9, 30))
	m.SystemSuspending(at(9, 40))
	waitState(t, m, StateSuspended)

	_, afkActive := m.CurrentAFK()
	require.False(t, afkActive)

	snap := rec.snapshot()
	require.Len(t, snap.afk, 2)
	require.Equal(t, events.ActionEnd, snap.afk[1].Action)
	require.Equal(t, at(9, 40), snap.afk[1].EndTime.Time)
	// The user never came back, so no afk_end activity event fires.
	require.Len(t, snap.activity, 1)
	require.Equal(t, events.ActivityAFKStart, snap.activity[0].Type)

	// A fresh AFK cycle after resume opens exactly one new period.
	m.SystemResuming(at(10, 0))
	m.UserWentAFK(at(10, 30))
	waitState(t, m, StateAFK)
	require.Len(t, rec.snapshot().afk, 3)
}

func TestReconnectingTracksFocus(t *testing.T) {
	m, _ := newTestMachine(t)
	m.SessionStarted(uuid.New(), at(9, 0))
	m.ConnectionLost(at(9, 10))
	waitState(t, m, StateReconnecting)

	// Focus is still tracked while reconnecting: connectivity does not
	// pause the user.
	m.ReportFocus("app-editor", "editor", "main.go", at(9, 11))
	m.ConnectionRestored(at(9, 20))
	waitState(t, m, StateActive)

	usage, usageActive := m.CurrentAppUsage()
	require.True(t, usageActive)
	require.Equal(t, at(9, 11), usage.StartTime.Time)
}

func TestSessionEndTeardown(t *testing.T) {
	m, rec := newTestMachine(t)
	sid := uuid.New()

	closedC := make(chan uuid.UUID, 1)
	m.SubscribeSessionClosed(func(id uuid.UUID) {
		closedC <- id
	})

	m.SessionStarted(sid, at(9, 0))
	m.ReportFocus("app-editor", "editor", "main.go", at(9, 1))
	m.UserWentAFK(at(17, 0))
	m.SessionEnded(at(17, 30))

	select {
	case id := <-closedC:
		require.Equal(t, sid, id)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for session close")
	}

	waitState(t, m, StateInactive)
	_, ok := m.CurrentSessionID()
	require.False(t, ok, "session id clears on teardown")

	m.Stop()
	snap := rec.snapshot()
	last := snap.sessionEvents[len(snap.sessionEvents)-1]
	require.Equal(t, events.SessionLogout, last.Type)
	require.Equal(t, sid, last.SessionID)
	require.Equal(t, at(17, 30), last.Time.Time)
	require.Equal(t, events.ActionEnd, snap.usages[len(snap.usages)-1].Action)
	require.Equal(t, events.ActionEnd, snap.afk[len(snap.afk)-1].Action)
}

func TestStateChangedObserverOrder(t *testing.T) {
	m, _ := newTestMachine(t)

	var mu sync.Mutex
	var seen [][2]State
	unsubscribe := m.SubscribeStateChanged(func(old, next State) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, [2]State{old, next})
	})

	m.SessionStarted(uuid.New(), at(9, 0))
	m.UserWentAFK(at(9, 30))
	m.UserReturned(at(9, 45))
	m.SessionEnded(at(17, 0))
	m.Stop()

	mu.Lock()
	require.Equal(t, [][2]State{
		{StateInactive, StateActive},
		{StateActive, StateAFK},
		{StateAFK, StateActive},
		{StateActive, StateEnding},
		{StateEnding, StateInactive},
	}, seen)
	mu.Unlock()

	unsubscribe()
}

func TestUnknownEventsIgnored(t *testing.T) {
	m, rec := newTestMachine(t)

	// None of these have a transition from Inactive.
	m.UserWentAFK(at(9, 0))
	m.UserReturned(at(9, 1))
	m.SystemResuming(at(9, 2))
	m.SessionEnded(at(9, 3))

	m.SessionStarted(uuid.New(), at(9, 10))
	waitState(t, m, StateActive)
	snap := rec.snapshot()
	require.Len(t, snap.sessionEvents, 1, "ignored events record nothing")
	require.Empty(t, snap.afk)

	// Double AFK: the second event has no transition from AFK, so at most
	// one AFK period is ever active.
	m.UserWentAFK(at(9, 30))
	m.UserWentAFK(at(9, 31))
	m.UserReturned(at(9, 45))
	m.Stop()

	snap = rec.snapshot()
	require.Len(t, snap.afk, 2, "one start, one end")
	require.Equal(t, snap.afk[0].ID, snap.afk[1].ID)
	require.Equal(t, at(9, 30), snap.afk[0].StartTime.Time)
	require.Equal(t, at(9, 45), snap.afk[1].EndTime.Time)
}

func TestFocusIgnoredWhileAFKAndSuspended(t *testing.T) {
	m, rec := newTestMachine(t)
	m.SessionStarted(uuid.New(), at(9, 0))
	m.UserWentAFK(at(9, 30))
	m.ReportFocus("app-editor", "editor", "main.go", at(9, 31))
	m.SystemSuspending(at(9, 40))
	m.ReportFocus("app-editor", "editor", "main.go", at(9, 41))
	m.Stop()

	require.Empty(t, rec.snapshot().usages)
}

func TestStopDrainsQueueAndSilences(t *testing.T) {
	rec := &fakeRecorder{}
	m, err := New(Config{Recorder: rec})
	require.NoError(t, err)

	m.SessionStarted(uuid.New(), at(9, 0))
	m.UserWentAFK(at(9, 30))
	m.Stop()

	// Queued signals were processed before Stop returned.
	snap := rec.snapshot()
	require.Len(t, snap.sessionEvents, 1)
	require.Len(t, snap.afk, 1)
	require.Equal(t, StateAFK, m.State())

	// Signals after Stop are dropped.
	m.UserReturned(at(9, 45))
	m.SessionEnded(at(17, 0))
	time.Sleep(10 * time.Millisecond)
	require.Len(t, rec.snapshot().afk, 1)
	require.Equal(t, StateAFK, m.State())

	// Stop is idempotent.
	m.Stop()
}

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		from  State
		event EventType
		want  State
		ok    bool
	}{
		{StateInactive, EventSessionStarted, StateActive, true},
		{StateInactive, EventUserWentAFK, StateInactive, false},
		{StateInactive, EventSessionEnded, StateInactive, false},
		{StateActive, EventUserWentAFK, StateAFK, true},
		{StateActive, EventSystemSuspending, StateSuspended, true},
		{StateActive, EventConnectionLost, StateReconnecting, true},
		{StateActive, EventSessionEnded, StateEnding, true},
		{StateActive, EventUserReturned, StateActive, false},
		{StateAFK, EventUserReturned, StateActive, true},
		{StateAFK, EventSystemSuspending, StateSuspended, true},
		{StateAFK, EventConnectionLost, StateReconnecting, true},
		{StateAFK, EventSessionEnded, StateEnding, true},
		{StateAFK, EventUserWentAFK, StateAFK, false},
		{StateSuspended, EventSystemResuming, StateActive, true},
		{StateSuspended, EventConnectionLost, StateReconnecting, true},
		{StateSuspended, EventSessionEnded, StateEnding, true},
		{StateSuspended, EventUserWentAFK, StateSuspended, false},
		{StateReconnecting, EventConnectionRestored, StateActive, true},
		{StateReconnecting, EventSessionEnded, StateEnding, true},
		{StateReconnecting, EventUserWentAFK, StateReconnecting, false},
	}
	for _, tt := range tests {
		got, ok := transition(tt.from, tt.event)
		require.Equal(t, tt.ok, ok, "%v + %v", tt.from, tt.event)
		require.Equal(t, tt.want, got, "%v + %v", tt.from, tt.event)
	}
}
