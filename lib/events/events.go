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

// Package events defines the telemetry records the agent collects and the
// wire representation the tracking server expects.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Kind discriminates queued telemetry items. The sync manager switches over
// it exhaustively when grouping a flush, so adding a kind without extending
// the flush logic is a compile-visible change, not a silent drop.
type Kind int

const (
	// KindUnknown is the zero value and never valid on a queued item.
	KindUnknown Kind = iota
	// KindSessionEvent is a session lifecycle event.
	KindSessionEvent
	// KindActivityEvent is a batched or direct activity observation.
	KindActivityEvent
	// KindAppUsage is an application focus interval boundary.
	KindAppUsage
	// KindSystemMetrics is a CPU/GPU/memory sample.
	KindSystemMetrics
	// KindAFKPeriod is an away-from-keyboard interval boundary.
	KindAFKPeriod
)

// String returns the kind name used in logs and metrics labels.
func (k Kind) String() string {
	switch k {
	case KindSessionEvent:
		return "session_event"
	case KindActivityEvent:
		return "activity_event"
	case KindAppUsage:
		return "app_usage"
	case KindSystemMetrics:
		return "system_metrics"
	case KindAFKPeriod:
		return "afk_period"
	default:
		return "unknown"
	}
}

// SessionEventType enumerates session lifecycle events.
type SessionEventType string

const (
	SessionLogin            SessionEventType = "login"
	SessionLogout           SessionEventType = "logout"
	SessionLock             SessionEventType = "lock"
	SessionUnlock           SessionEventType = "unlock"
	SessionRemoteConnect    SessionEventType = "remote_connect"
	SessionRemoteDisconnect SessionEventType = "remote_disconnect"
	SessionSwitchUser       SessionEventType = "switch_user"
	SessionStateChange      SessionEventType = "state_change"
)

// ActivityEventType enumerates activity observations.
type ActivityEventType string

const (
	ActivityMouseClick  ActivityEventType = "mouse_click"
	ActivityMouseMove   ActivityEventType = "mouse_move"
	ActivityKeyboard    ActivityEventType = "keyboard"
	ActivityAppFocus    ActivityEventType = "app_focus"
	ActivityAppUnfocus  ActivityEventType = "app_unfocus"
	ActivityAFKStart    ActivityEventType = "afk_start"
	ActivityAFKEnd      ActivityEventType = "afk_end"
	ActivitySystemAlert ActivityEventType = "system_alert"
)

// IntervalAction routes an interval item to the start or the end endpoint
// during a flush.
type IntervalAction string

const (
	ActionStart IntervalAction = "start"
	ActionEnd   IntervalAction = "end"
)

// Session is one logical workday on one machine for one user.
type Session struct {
	ID                   uuid.UUID      `json:"session_id"`
	UserID               string         `json:"user_id,omitempty"`
	Username             string         `json:"username,omitempty"`
	MachineID            string         `json:"machine_id"`
	LoginTime            Timestamp      `json:"login_time"`
	LogoutTime           *Timestamp     `json:"logout_time,omitempty"`
	IPAddress            string         `json:"ip_address,omitempty"`
	SessionData          map[string]any `json:"session_data,omitempty"`
	ContinuedFromSession string         `json:"continued_from_session,omitempty"`
	ContinuedBySession   string         `json:"continued_by_session,omitempty"`
	IsRemote             bool           `json:"is_remote"`
}

// IsActive reports whether the session is still open.
func (s *Session) IsActive() bool {
	return s.LogoutTime == nil
}

// SessionEvent is a lifecycle event belonging to a session.
type SessionEvent struct {
	SessionID uuid.UUID        `json:"session_id"`
	Type      SessionEventType `json:"event_type"`
	Time      Timestamp        `json:"event_time"`
	Data      map[string]any   `json:"event_data,omitempty"`
}

// ActivityEvent is a batched or direct activity observation.
type ActivityEvent struct {
	SessionID uuid.UUID         `json:"session_id"`
	AppID     string            `json:"app_id,omitempty"`
	Type      ActivityEventType `json:"event_type"`
	Time      Timestamp         `json:"event_time"`
	Data      map[string]any    `json:"event_data,omitempty"`
}

// AppUsage is one continuous focus interval of one application. The agent
// mints the usage id when the interval opens so that the closing item can
// reference it even when the opening item was delivered later, or never.
type AppUsage struct {
	ID          uuid.UUID      `json:"usage_id"`
	SessionID   uuid.UUID      `json:"session_id"`
	AppID       string         `json:"app_id,omitempty"`
	AppName     string         `json:"app_name,omitempty"`
	WindowTitle string         `json:"window_title,omitempty"`
	StartTime   Timestamp      `json:"start_time"`
	EndTime     *Timestamp     `json:"end_time,omitempty"`
	Action      IntervalAction `json:"action"`
}

// IsActive reports whether the interval is still open.
func (u *AppUsage) IsActive() bool {
	return u.EndTime == nil
}

// Duration returns the interval length, zero while the interval is open.
func (u *AppUsage) Duration() time.Duration {
	if u.EndTime == nil {
		return 0
	}
	return u.EndTime.Sub(u.StartTime.Time)
}

// AFKPeriod is one continuous away-from-keyboard interval.
type AFKPeriod struct {
	ID        uuid.UUID      `json:"afk_id"`
	SessionID uuid.UUID      `json:"session_id"`
	StartTime Timestamp      `json:"start_time"`
	EndTime   *Timestamp     `json:"end_time,omitempty"`
	Action    IntervalAction `json:"action"`
}

// IsActive reports whether the period is still open.
func (p *AFKPeriod) IsActive() bool {
	return p.EndTime == nil
}

// SystemMetrics is a utilization sample. Percentages are in [0, 100].
type SystemMetrics struct {
	SessionID   uuid.UUID `json:"session_id"`
	CPUUsage    float64   `json:"cpu_usage"`
	GPUUsage    float64   `json:"gpu_usage"`
	MemoryUsage float64   `json:"memory_usage"`
	MeasuredAt  Timestamp `json:"measurement_time"`
}

// Application is the locally cached projection of a server-owned
// application record. The JSON tags are the app cache file format.
type Application struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Path            string `json:"path"`
	Hash            string `json:"hash,omitempty"`
	IsRestricted    bool   `json:"is_restricted"`
	TrackingEnabled bool   `json:"tracking_enabled"`
}

// Item is one queued telemetry record. RetryCount is carried for a future
// redelivery policy and is not incremented by the current flush logic.
type Item struct {
	Kind       Kind
	SessionID  uuid.UUID
	Payload    any
	EnqueuedAt time.Time
	RetryCount int
}

// NewMouseMoveEvent summarizes a run of mouse movement. The event carries
// the sample count and the last observed position.
func NewMouseMoveEvent(sessionID uuid.UUID, count, x, y int, t time.Time) ActivityEvent {
	return ActivityEvent{
		SessionID: sessionID,
		Type:      ActivityMouseMove,
		Time:      At(t),
		Data:      map[string]any{"count": count, "x": x, "y": y},
	}
}

// NewMouseClickEvent summarizes a run of mouse clicks.
func NewMouseClickEvent(sessionID uuid.UUID, count int, t time.Time) ActivityEvent {
	return ActivityEvent{
		SessionID: sessionID,
		Type:      ActivityMouseClick,
		Time:      At(t),
		Data:      map[string]any{"count": count},
	}
}

// NewKeyboardEvent summarizes a run of key presses. Only the count is
// reported, never key identities.
func NewKeyboardEvent(sessionID uuid.UUID, count int, t time.Time) ActivityEvent {
	return ActivityEvent{
		SessionID: sessionID,
		Type:      ActivityKeyboard,
		Time:      At(t),
		Data:      map[string]any{"count": count},
	}
}

// NewAppFocusEvent records that an application gained or held focus over a
// batch interval.
func NewAppFocusEvent(sessionID uuid.UUID, appID, appName, windowTitle string, focusChanges int, t time.Time) ActivityEvent {
	return ActivityEvent{
		SessionID: sessionID,
		AppID:     appID,
		Type:      ActivityAppFocus,
		Time:      At(t),
		Data: map[string]any{
			"app_name":      appName,
			"window_title":  windowTitle,
			"focus_changes": focusChanges,
		},
	}
}

// NewSystemAlertEvent records a resource utilization alert.
func NewSystemAlertEvent(sessionID uuid.UUID, message string, t time.Time) ActivityEvent {
	return ActivityEvent{
		SessionID: sessionID,
		Type:      ActivitySystemAlert,
		Time:      At(t),
		Data:      map[string]any{"message": message},
	}
}
