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

package client

import (
	"context"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/gravitational/roundtrip"
	"github.com/gravitational/trace"

	"github.com/nkpatro/activity-tracker/lib/events"
)

// serviceName identifies this agent to the auth endpoint.
const serviceName = "activity-tracker"

type serviceTokenRequest struct {
	Service   string `json:"service"`
	MachineID string `json:"machine_id"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
}

// ObtainServiceToken authenticates the agent and stores the issued tokens
// for subsequent bearer calls.
func (c *Client) ObtainServiceToken(ctx context.Context, machineID string) error {
	re, err := convertResponse(c.base.PostJSON(ctx, c.base.Endpoint("auth", "service-token"), serviceTokenRequest{
		Service:   serviceName,
		MachineID: machineID,
	}))
	if err != nil {
		return trace.Wrap(err)
	}
	var tokens tokenResponse
	if err := decodeJSON(re, &tokens); err != nil {
		return trace.Wrap(err)
	}
	if tokens.Token == "" {
		return trace.BadParameter("server returned an empty service token")
	}
	return trace.Wrap(c.setTokens(tokens.Token, tokens.RefreshToken))
}

// Refresh exchanges the stored refresh token for a new service token.
func (c *Client) Refresh(ctx context.Context) error {
	c.mu.Lock()
	refreshToken := c.refreshToken
	c.mu.Unlock()
	if refreshToken == "" {
		return trace.AccessDenied("no refresh token held")
	}
	re, err := convertResponse(c.base.PostJSON(ctx, c.base.Endpoint("auth", "refresh"), refreshRequest{
		RefreshToken: refreshToken,
	}))
	if err != nil {
		return trace.Wrap(err)
	}
	var tokens tokenResponse
	if err := decodeJSON(re, &tokens); err != nil {
		return trace.Wrap(err)
	}
	if tokens.Token == "" {
		return trace.BadParameter("server returned an empty service token")
	}
	return trace.Wrap(c.setTokens(tokens.Token, tokens.RefreshToken))
}

// Ping probes server connectivity with the short probe timeout. A nil
// return means the server answered; any error means it did not, and the
// sync manager flips offline on it.
func (c *Client) Ping(ctx context.Context) error {
	_, err := convertResponse(c.probe.Get(ctx, c.probe.Endpoint("status", "ping"), url.Values{}))
	return trace.Wrap(err)
}

// RegisterMachineRequest introduces this machine to the server.
type RegisterMachineRequest struct {
	MachineID   string `json:"machine_id"`
	Hostname    string `json:"hostname,omitempty"`
	OS          string `json:"os,omitempty"`
	Arch        string `json:"arch,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

// RegisterMachine registers the machine. The server deduplicates on the
// fingerprint, so registering an already known machine is not an error.
func (c *Client) RegisterMachine(ctx context.Context, req RegisterMachineRequest) error {
	if req.MachineID == "" {
		return trace.BadParameter("missing parameter MachineID")
	}
	_, err := convertResponse(c.base.PostJSON(ctx, c.base.Endpoint("machines", "register"), req))
	return trace.Wrap(err)
}

// CreateSessionRequest opens a session for one user, machine and day.
type CreateSessionRequest struct {
	Username             string           `json:"username"`
	MachineID            string           `json:"machine_id"`
	IPAddress            string           `json:"ip_address,omitempty"`
	IsRemote             bool             `json:"is_remote"`
	TerminalSessionID    string           `json:"terminal_session_id,omitempty"`
	SessionData          map[string]any   `json:"session_data,omitempty"`
	LoginTime            events.Timestamp `json:"login_time,omitzero"`
	ContinuedFromSession string           `json:"continued_from_session,omitempty"`
}

// CreateSession creates a session, or reopens the server's existing session
// for this machine and date. Both outcomes return the session.
func (c *Client) CreateSession(ctx context.Context, req CreateSessionRequest) (*events.Session, error) {
	if req.MachineID == "" {
		return nil, trace.BadParameter("missing parameter MachineID")
	}
	re, err := c.callAuth(ctx, func(clt *roundtrip.Client) (*roundtrip.Response, error) {
		return clt.PostJSON(ctx, clt.Endpoint("sessions"), req)
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}
	var session events.Session
	if err := decodeJSON(re, &session); err != nil {
		return nil, trace.Wrap(err)
	}
	return &session, nil
}

// EndSession closes a session at the given instant.
func (c *Client) EndSession(ctx context.Context, sessionID uuid.UUID, at time.Time) error {
	payload := struct {
		LogoutTime events.Timestamp `json:"logout_time"`
	}{LogoutTime: events.At(at)}
	_, err := c.callAuth(ctx, func(clt *roundtrip.Client) (*roundtrip.Response, error) {
		return clt.PostJSON(ctx, clt.Endpoint("sessions", sessionID.String(), "end"), payload)
	})
	return trace.Wrap(err)
}

// GetActiveSession fetches the open session for the machine, if any.
// trace.NotFound means no session is open today.
func (c *Client) GetActiveSession(ctx context.Context, machineID string) (*events.Session, error) {
	re, err := c.callAuth(ctx, func(clt *roundtrip.Client) (*roundtrip.Response, error) {
		return clt.Get(ctx, clt.Endpoint("sessions", "active"), url.Values{"machine_id": []string{machineID}})
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}
	var session events.Session
	if err := decodeJSON(re, &session); err != nil {
		return nil, trace.Wrap(err)
	}
	return &session, nil
}

// SessionBatch is the mixed batch envelope. Any of the three arrays may be
// empty and is then omitted; the server accepts partial envelopes.
type SessionBatch struct {
	SessionID      uuid.UUID              `json:"session_id"`
	SessionEvents  []events.SessionEvent  `json:"session_events,omitempty"`
	ActivityEvents []events.ActivityEvent `json:"activity_events,omitempty"`
	SystemMetrics  []events.SystemMetrics `json:"system_metrics,omitempty"`
}

// Empty reports whether the batch carries nothing.
func (b *SessionBatch) Empty() bool {
	return len(b.SessionEvents) == 0 && len(b.ActivityEvents) == 0 && len(b.SystemMetrics) == 0
}

// PostSessionBatch delivers a mixed batch for one session.
func (c *Client) PostSessionBatch(ctx context.Context, batch *SessionBatch) error {
	if batch.SessionID == uuid.Nil {
		return trace.BadParameter("missing parameter SessionID")
	}
	if batch.Empty() {
		return nil
	}
	_, err := c.callAuth(ctx, func(clt *roundtrip.Client) (*roundtrip.Response, error) {
		return clt.PostJSON(ctx, clt.Endpoint("sessions", batch.SessionID.String(), "batch"), batch)
	})
	return trace.Wrap(err)
}

// PostSessionEvents delivers a single-type batch of session events.
func (c *Client) PostSessionEvents(ctx context.Context, sessionID uuid.UUID, evs []events.SessionEvent) error {
	return trace.Wrap(c.PostSessionBatch(ctx, &SessionBatch{SessionID: sessionID, SessionEvents: evs}))
}

// PostActivityEvents delivers a single-type batch of activity events.
func (c *Client) PostActivityEvents(ctx context.Context, sessionID uuid.UUID, evs []events.ActivityEvent) error {
	return trace.Wrap(c.PostSessionBatch(ctx, &SessionBatch{SessionID: sessionID, ActivityEvents: evs}))
}

// PostSystemMetrics delivers a single-type batch of metric samples.
func (c *Client) PostSystemMetrics(ctx context.Context, sessionID uuid.UUID, samples []events.SystemMetrics) error {
	return trace.Wrap(c.PostSessionBatch(ctx, &SessionBatch{SessionID: sessionID, SystemMetrics: samples}))
}

// StartAppUsage reports an application focus interval opening.
func (c *Client) StartAppUsage(ctx context.Context, usage *events.AppUsage) error {
	_, err := c.callAuth(ctx, func(clt *roundtrip.Client) (*roundtrip.Response, error) {
		return clt.PostJSON(ctx, clt.Endpoint("app-usages"), usage)
	})
	return trace.Wrap(err)
}

// EndAppUsage reports an application focus interval closing.
func (c *Client) EndAppUsage(ctx context.Context, usage *events.AppUsage) error {
	_, err := c.callAuth(ctx, func(clt *roundtrip.Client) (*roundtrip.Response, error) {
		return clt.PostJSON(ctx, clt.Endpoint("app-usages", usage.ID.String(), "end"), usage)
	})
	return trace.Wrap(err)
}

// StartAFK reports an away-from-keyboard period opening.
func (c *Client) StartAFK(ctx context.Context, period *events.AFKPeriod) error {
	_, err := c.callAuth(ctx, func(clt *roundtrip.Client) (*roundtrip.Response, error) {
		return clt.PostJSON(ctx, clt.Endpoint("sessions", period.SessionID.String(), "afk", "start"), period)
	})
	return trace.Wrap(err)
}

// EndAFK reports an away-from-keyboard period closing.
func (c *Client) EndAFK(ctx context.Context, period *events.AFKPeriod) error {
	_, err := c.callAuth(ctx, func(clt *roundtrip.Client) (*roundtrip.Response, error) {
		return clt.PostJSON(ctx, clt.Endpoint("sessions", period.SessionID.String(), "afk", "end"), period)
	})
	return trace.Wrap(err)
}

type detectApplicationRequest struct {
	AppName string `json:"app_name"`
	AppPath string `json:"app_path"`
}

type detectApplicationResponse struct {
	AppID           string `json:"app_id"`
	AppName         string `json:"app_name"`
	AppPath         string `json:"app_path"`
	AppHash         string `json:"app_hash,omitempty"`
	IsRestricted    bool   `json:"is_restricted"`
	TrackingEnabled bool   `json:"tracking_enabled"`
}

// DetectApplication asks the server for the stable identity of an
// executable. The server creates the application record on first sight.
func (c *Client) DetectApplication(ctx context.Context, name, path string) (*events.Application, error) {
	if path == "" {
		return nil, trace.BadParameter("missing parameter path")
	}
	re, err := c.callAuth(ctx, func(clt *roundtrip.Client) (*roundtrip.Response, error) {
		return clt.PostJSON(ctx, clt.Endpoint("applications", "detect"), detectApplicationRequest{
			AppName: name,
			AppPath: path,
		})
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}
	var resp detectApplicationResponse
	if err := decodeJSON(re, &resp); err != nil {
		return nil, trace.Wrap(err)
	}
	if resp.AppID == "" {
		return nil, trace.BadParameter("server returned an empty application id")
	}
	return &events.Application{
		ID:              resp.AppID,
		Name:            resp.AppName,
		Path:            resp.AppPath,
		Hash:            resp.AppHash,
		IsRestricted:    resp.IsRestricted,
		TrackingEnabled: resp.TrackingEnabled,
	}, nil
}

// callAuth performs one authenticated call. On access denied it refreshes
// the token once and retries once; the retry result is final. This retry
// never reorders telemetry because the call itself is a single item or an
// already ordered batch.
func (c *Client) callAuth(ctx context.Context, call func(*roundtrip.Client) (*roundtrip.Response, error)) (*roundtrip.Response, error) {
	re, err := convertResponse(call(c.current()))
	if err == nil || !trace.IsAccessDenied(err) {
		return re, trace.Wrap(err)
	}
	if refreshErr := c.Refresh(ctx); refreshErr != nil {
		c.cfg.Logger.WarnContext(ctx, "Token refresh failed.", "error", refreshErr)
		return nil, trace.Wrap(err)
	}
	re, err = convertResponse(call(c.current()))
	return re, trace.Wrap(err)
}
