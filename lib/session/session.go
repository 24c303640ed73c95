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

// Package session models the logical state of the observed workstation
// session and owns the lifetimes of the AFK and app usage intervals derived
// from it. External signals are serialized through a single queue so the
// side effects of one transition complete before the next is evaluated.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"

	tracker "github.com/nkpatro/activity-tracker"
	"github.com/nkpatro/activity-tracker/lib/events"
	"github.com/nkpatro/activity-tracker/lib/utils"
)

// Recorder receives the telemetry the state machine derives from
// transitions. Implementations must not block: the record calls run on the
// transition goroutine, and a slow recorder stalls every later transition.
// HTTP delivery belongs to the sync manager, never here.
type Recorder interface {
	// RecordSessionEvent records a session lifecycle event.
	RecordSessionEvent(ev events.SessionEvent)
	// RecordActivityEvent records a state-machine-derived activity event.
	RecordActivityEvent(ev events.ActivityEvent)
	// RecordAppUsage records an app usage interval boundary.
	RecordAppUsage(usage events.AppUsage)
	// RecordAFKPeriod records an away-from-keyboard interval boundary.
	RecordAFKPeriod(period events.AFKPeriod)
}

// Config configures a StateMachine.
type Config struct {
	// Recorder receives derived telemetry. Required.
	Recorder Recorder
	// QueueSize bounds the pending signal queue. Defaults to 256.
	QueueSize int
	// Clock defaults to the real clock.
	Clock clockwork.Clock
	// Logger is used for transition diagnostics.
	Logger *slog.Logger
}

// CheckAndSetDefaults validates the configuration and fills in defaults.
func (c *Config) CheckAndSetDefaults() error {
	if c.Recorder == nil {
		return trace.BadParameter("missing parameter Recorder")
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Logger == nil {
		c.Logger = slog.With(tracker.ComponentKey, tracker.ComponentSession)
	}
	return nil
}

// signal is one queued input. Exactly one of event or focus is meaningful:
// focus reports share the queue so interval mutations stay ordered with
// transitions.
type signal struct {
	event   EventType
	at      time.Time
	session uuid.UUID
	focus   *focusReport
}

type focusReport struct {
	appID       string
	appName     string
	windowTitle string
}

// StateMachine tracks the logical session state and the active AFK and app
// usage intervals. Per session at most one app usage interval and one AFK
// period are active at any instant.
type StateMachine struct {
	cfg Config

	signals chan signal
	quit    chan struct{}
	wg      sync.WaitGroup
	stopped sync.Once

	mu         sync.Mutex
	state      State
	sessionID  uuid.UUID
	usage      *events.AppUsage
	afk        *events.AFKPeriod
	nextSub    int
	stateSubs  map[int]func(old, next State)
	closedSubs map[int]func(sessionID uuid.UUID)
}

// New returns a state machine in the Inactive state and starts its
// transition queue.
func New(cfg Config) (*StateMachine, error) {
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	if err := utils.RegisterPrometheusCollectors(stateGauge); err != nil {
		return nil, trace.Wrap(err)
	}
	m := &StateMachine{
		cfg:        cfg,
		signals:    make(chan signal, cfg.QueueSize),
		quit:       make(chan struct{}),
		state:      StateInactive,
		stateSubs:  make(map[int]func(State, State)),
		closedSubs: make(map[int]func(uuid.UUID)),
	}
	stateGauge.Set(float64(StateInactive))
	m.wg.Add(1)
	go m.loop()
	return m, nil
}

// Stop drains the pending signal queue and shuts the machine down. After
// Stop returns no observer is invoked again. Stop is idempotent and does not
// end the session; callers that want a clean session end signal SessionEnded
// first.
func (m *StateMachine) Stop() {
	m.stopped.Do(func() {
		close(m.quit)
		m.wg.Wait()
	})
}

// State returns the current state.
func (m *StateMachine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// CurrentSessionID returns the session under observation, if any.
func (m *StateMachine) CurrentSessionID() (uuid.UUID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionID, m.sessionID != uuid.Nil
}

// CurrentAppUsage returns a copy of the active app usage interval, if any.
func (m *StateMachine) CurrentAppUsage() (events.AppUsage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.usage == nil {
		return events.AppUsage{}, false
	}
	return *m.usage, true
}

// CurrentAFK returns a copy of the active AFK period, if any.
func (m *StateMachine) CurrentAFK() (events.AFKPeriod, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.afk == nil {
		return events.AFKPeriod{}, false
	}
	return *m.afk, true
}

// SubscribeStateChanged registers an observer invoked synchronously after
// every completed transition, in transition order. The returned function
// removes the subscription.
func (m *StateMachine) SubscribeStateChanged(fn func(old, next State)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextSub
	m.nextSub++
	m.stateSubs[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.stateSubs, id)
	}
}

// SubscribeSessionClosed registers an observer invoked with the session id
// when session teardown completes.
func (m *StateMachine) SubscribeSessionClosed(fn func(sessionID uuid.UUID)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextSub
	m.nextSub++
	m.closedSubs[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.closedSubs, id)
	}
}

// SessionStarted signals that a session was created or reopened.
func (m *StateMachine) SessionStarted(sessionID uuid.UUID, at time.Time) {
	m.send(signal{event: EventSessionStarted, session: sessionID, at: at})
}

// UserWentAFK signals that input has been absent past the idle threshold.
func (m *StateMachine) UserWentAFK(at time.Time) {
	m.send(signal{event: EventUserWentAFK, at: at})
}

// UserReturned signals the first input after an AFK period.
func (m *StateMachine) UserReturned(at time.Time) {
	m.send(signal{event: EventUserReturned, at: at})
}

// SystemSuspending signals OS lock or sleep.
func (m *StateMachine) SystemSuspending(at time.Time) {
	m.send(signal{event: EventSystemSuspending, at: at})
}

// SystemResuming signals OS unlock or wake.
func (m *StateMachine) SystemResuming(at time.Time) {
	m.send(signal{event: EventSystemResuming, at: at})
}

// ConnectionLost signals that the connectivity probe went offline.
func (m *StateMachine) ConnectionLost(at time.Time) {
	m.send(signal{event: EventConnectionLost, at: at})
}

// ConnectionRestored signals that the connectivity probe came back online.
func (m *StateMachine) ConnectionRestored(at time.Time) {
	m.send(signal{event: EventConnectionRestored, at: at})
}

// SessionEnded requests session teardown. The machine closes any open
// intervals, records the logout event, notifies session_closed observers and
// settles in Inactive.
func (m *StateMachine) SessionEnded(at time.Time) {
	m.send(signal{event: EventSessionEnded, at: at})
}

// ReportFocus tells the machine which application holds the foreground
// focus. While the user is present this opens an app usage interval, closing
// the previous one at the same instant. Reports for the application already
// in focus are ignored.
func (m *StateMachine) ReportFocus(appID, appName, windowTitle string, at time.Time) {
	m.send(signal{
		at: at,
		focus: &focusReport{
			appID:       appID,
			appName:     appName,
			windowTitle: windowTitle,
		},
	})
}

// send queues a signal unless the machine has stopped.
func (m *StateMachine) send(sig signal) {
	select {
	case <-m.quit:
	case m.signals <- sig:
	}
}

// loop is the single consumer of the signal queue. On shutdown it drains
// what is already queued, then exits; that ordering makes "no signals after
// Stop returns" hold without a second lock.
func (m *StateMachine) loop() {
	defer m.wg.Done()
	for {
		select {
		case sig := <-m.signals:
			m.process(sig)
		case <-m.quit:
			for {
				select {
				case sig := <-m.signals:
					m.process(sig)
				default:
					return
				}
			}
		}
	}
}

func (m *StateMachine) process(sig signal) {
	if sig.focus != nil {
		m.handleFocus(sig.at, sig.focus)
		return
	}

	m.mu.Lock()
	from := m.state
	m.mu.Unlock()

	next, ok := transition(from, sig.event)
	if !ok {
		// Not an error: callers fire events without knowing the state.
		m.cfg.Logger.Debug("Ignoring event without transition.",
			"state", from, "event", string(sig.event))
		return
	}

	switch sig.event {
	case EventSessionStarted:
		m.enterActiveSession(sig.session, sig.at)
	case EventUserWentAFK:
		m.enterAFK(sig.at)
	case EventUserReturned:
		m.exitAFK(sig.at)
	case EventSystemSuspending:
		m.enterSuspended(sig.at)
	case EventSystemResuming:
		m.recordSessionEvent(events.SessionUnlock, sig.at, nil)
	case EventConnectionLost, EventConnectionRestored:
		// Connectivity transitions carry no side effects; the sync manager
		// already queues everything that happens while reconnecting.
	}

	m.setState(from, next)
	m.cfg.Logger.Info("Session state changed.",
		"from", from, "to", next, "event", string(sig.event))

	if next == StateEnding {
		m.finishEnding(sig.at)
	}
}

// enterActiveSession installs the session id and records the login event.
func (m *StateMachine) enterActiveSession(sessionID uuid.UUID, at time.Time) {
	m.mu.Lock()
	m.sessionID = sessionID
	m.mu.Unlock()
	m.recordSessionEvent(events.SessionLogin, at, nil)
}

// enterAFK closes the active app usage interval and opens the AFK period.
func (m *StateMachine) enterAFK(at time.Time) {
	m.closeUsage(at)

	m.mu.Lock()
	sessionID := m.sessionID
	period := &events.AFKPeriod{
		ID:        uuid.New(),
		SessionID: sessionID,
		StartTime: events.At(at),
	}
	m.afk = period
	m.mu.Unlock()

	start := *period
	start.Action = events.ActionStart
	m.cfg.Recorder.RecordAFKPeriod(start)
	m.cfg.Recorder.RecordActivityEvent(events.ActivityEvent{
		SessionID: sessionID,
		Type:      events.ActivityAFKStart,
		Time:      events.At(at),
	})
}

// exitAFK closes the AFK period. No app usage interval opens here: that
// waits for the next focus report.
func (m *StateMachine) exitAFK(at time.Time) {
	m.mu.Lock()
	period := m.afk
	m.afk = nil
	sessionID := m.sessionID
	m.mu.Unlock()

	if period == nil {
		// End without a start is a state error: log and swallow.
		m.cfg.Logger.Warn("User returned with no active AFK period.")
		return
	}
	end := *period
	ended := events.At(at)
	end.EndTime = &ended
	end.Action = events.ActionEnd
	m.cfg.Recorder.RecordAFKPeriod(end)
	m.cfg.Recorder.RecordActivityEvent(events.ActivityEvent{
		SessionID: sessionID,
		Type:      events.ActivityAFKEnd,
		Time:      ended,
	})
}

// enterSuspended closes open intervals and records the lock event. A
// suspend during AFK ends the AFK period: resume always lands in Active, and
// leaving the period open would let a later AFK violate the one-active
// invariant.
func (m *StateMachine) enterSuspended(at time.Time) {
	m.closeUsage(at)
	m.closeAFK(at)
	m.recordSessionEvent(events.SessionLock, at, nil)
}

// finishEnding runs session teardown: close intervals, record logout, then
// take the automatic Ending to Inactive transition, clear the session id and
// notify session_closed observers.
func (m *StateMachine) finishEnding(at time.Time) {
	m.closeUsage(at)
	m.closeAFK(at)
	m.recordSessionEvent(events.SessionLogout, at, nil)

	m.mu.Lock()
	sessionID := m.sessionID
	m.sessionID = uuid.Nil
	m.mu.Unlock()

	m.setState(StateEnding, StateInactive)
	m.cfg.Logger.Info("Session closed.", "session_id", sessionID)

	m.mu.Lock()
	subs := make([]func(uuid.UUID), 0, len(m.closedSubs))
	for _, fn := range m.closedSubs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()
	for _, fn := range subs {
		fn(sessionID)
	}
}

// closeUsage ends the active app usage interval, if any.
func (m *StateMachine) closeUsage(at time.Time) {
	m.mu.Lock()
	usage := m.usage
	m.usage = nil
	m.mu.Unlock()

	if usage == nil {
		return
	}
	end := *usage
	ended := events.At(at)
	end.EndTime = &ended
	end.Action = events.ActionEnd
	m.cfg.Recorder.RecordAppUsage(end)
}

// closeAFK ends the active AFK period, if any, without an afk_end activity
// event: the user did not return, the session moved on without them.
func (m *StateMachine) closeAFK(at time.Time) {
	m.mu.Lock()
	period := m.afk
	m.afk = nil
	m.mu.Unlock()

	if period == nil {
		return
	}
	end := *period
	ended := events.At(at)
	end.EndTime = &ended
	end.Action = events.ActionEnd
	m.cfg.Recorder.RecordAFKPeriod(end)
}

// handleFocus opens a new app usage interval while the user is present.
// Reconnecting counts as present: connectivity does not pause the user.
func (m *StateMachine) handleFocus(at time.Time, focus *focusReport) {
	m.mu.Lock()
	state := m.state
	current := m.usage
	sessionID := m.sessionID
	m.mu.Unlock()

	if state != StateActive && state != StateReconnecting {
		m.cfg.Logger.Debug("Ignoring focus report.",
			"state", state, "app_name", focus.appName)
		return
	}
	if current != nil && current.AppID == focus.appID && current.WindowTitle == focus.windowTitle {
		return
	}

	m.closeUsage(at)

	usage := &events.AppUsage{
		ID:          uuid.New(),
		SessionID:   sessionID,
		AppID:       focus.appID,
		AppName:     focus.appName,
		WindowTitle: focus.windowTitle,
		StartTime:   events.At(at),
	}
	m.mu.Lock()
	m.usage = usage
	m.mu.Unlock()

	start := *usage
	start.Action = events.ActionStart
	m.cfg.Recorder.RecordAppUsage(start)
}

func (m *StateMachine) recordSessionEvent(eventType events.SessionEventType, at time.Time, data map[string]any) {
	m.mu.Lock()
	sessionID := m.sessionID
	m.mu.Unlock()
	m.cfg.Recorder.RecordSessionEvent(events.SessionEvent{
		SessionID: sessionID,
		Type:      eventType,
		Time:      events.At(at),
		Data:      data,
	})
}

// setState commits a transition and notifies observers in order.
func (m *StateMachine) setState(from, next State) {
	m.mu.Lock()
	m.state = next
	subs := make([]func(State, State), 0, len(m.stateSubs))
	for _, fn := range m.stateSubs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	stateGauge.Set(float64(next))
	for _, fn := range subs {
		fn(from, next)
	}
}
