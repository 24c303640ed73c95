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
	"github.com/prometheus/client_golang/prometheus"
)

// State is the logical state of the observed session.
type State int

const (
	// StateInactive means no session is open.
	StateInactive State = iota
	// StateActive means the user is present and working.
	StateActive
	// StateAFK means the user has been away from keyboard past the idle
	// threshold. The session timeline continues.
	StateAFK
	// StateSuspended means the OS session is locked or the machine is
	// sleeping.
	StateSuspended
	// StateReconnecting means the server is unreachable while the session
	// continues locally.
	StateReconnecting
	// StateEnding is the transient state while session teardown side
	// effects run; it resolves to StateInactive automatically.
	StateEnding
)

// String returns the state name used in logs and metrics.
func (s State) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateActive:
		return "active"
	case StateAFK:
		return "afk"
	case StateSuspended:
		return "suspended"
	case StateReconnecting:
		return "reconnecting"
	case StateEnding:
		return "ending"
	default:
		return "unknown"
	}
}

// EventType is an external signal driving the state machine.
type EventType string

const (
	// EventSessionStarted carries the id of a freshly created or reopened
	// session.
	EventSessionStarted EventType = "session_started"
	// EventUserWentAFK fires when input has been absent past the idle
	// threshold.
	EventUserWentAFK EventType = "user_went_afk"
	// EventUserReturned fires on the first input after an AFK period.
	EventUserReturned EventType = "user_returned"
	// EventSystemSuspending fires on OS lock or sleep.
	EventSystemSuspending EventType = "system_suspending"
	// EventSystemResuming fires on OS unlock or wake.
	EventSystemResuming EventType = "system_resuming"
	// EventConnectionLost fires when the connectivity probe goes offline.
	EventConnectionLost EventType = "connection_lost"
	// EventConnectionRestored fires when the probe goes back online.
	EventConnectionRestored EventType = "connection_restored"
	// EventSessionEnded requests session teardown.
	EventSessionEnded EventType = "session_ended"
)

// transition returns the target state for an event, or false when the event
// is not meaningful in the current state. Unknown combinations are ignored
// by the caller, never treated as errors.
func transition(from State, ev EventType) (State, bool) {
	switch from {
	case StateInactive:
		if ev == EventSessionStarted {
			return StateActive, true
		}
	case StateActive:
		switch ev {
		case EventUserWentAFK:
			return StateAFK, true
		case EventSystemSuspending:
			return StateSuspended, true
		case EventConnectionLost:
			return StateReconnecting, true
		case EventSessionEnded:
			return StateEnding, true
		}
	case StateAFK:
		switch ev {
		case EventUserReturned:
			return StateActive, true
		case EventSystemSuspending:
			return StateSuspended, true
		case EventConnectionLost:
			return StateReconnecting, true
		case EventSessionEnded:
			return StateEnding, true
		}
	case StateSuspended:
		switch ev {
		case EventSystemResuming:
			return StateActive, true
		case EventConnectionLost:
			return StateReconnecting, true
		case EventSessionEnded:
			return StateEnding, true
		}
	case StateReconnecting:
		switch ev {
		case EventConnectionRestored:
			return StateActive, true
		case EventSessionEnded:
			return StateEnding, true
		}
	}
	return from, false
}

var stateGauge = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "tracker_session_state",
	Help: "Current session state, by lib/session state enum value.",
})
