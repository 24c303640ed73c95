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

// Package client implements the typed HTTP facade over the tracking server.
// Every operation is synchronous, carries a context and returns a typed
// response plus an error from the trace taxonomy.
package client

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gravitational/roundtrip"
	"github.com/gravitational/trace"

	tracker "github.com/nkpatro/activity-tracker"
	"github.com/nkpatro/activity-tracker/lib/defaults"
)

// Config configures a tracking server client.
type Config struct {
	// ServerURL is the base URL of the tracking server, without the API
	// version prefix.
	ServerURL string
	// CallTimeout bounds one regular HTTP call. Defaults to
	// defaults.CallTimeout.
	CallTimeout time.Duration
	// ProbeTimeout bounds one connectivity probe. It must stay shorter
	// than CallTimeout so probes never starve behind stuck calls.
	// Defaults to defaults.ProbeTimeout.
	ProbeTimeout time.Duration
	// HTTPClient overrides the underlying transport, used by tests.
	HTTPClient *http.Client
	// Logger emits refresh and retry diagnostics.
	Logger *slog.Logger
}

// CheckAndSetDefaults validates the configuration and fills in defaults.
func (c *Config) CheckAndSetDefaults() error {
	if c.ServerURL == "" {
		return trace.BadParameter("missing parameter ServerURL")
	}
	if _, err := url.Parse(c.ServerURL); err != nil {
		return trace.BadParameter("invalid ServerURL %q: %v", c.ServerURL, err)
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = defaults.CallTimeout
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = defaults.ProbeTimeout
	}
	if c.ProbeTimeout >= c.CallTimeout {
		return trace.BadParameter("ProbeTimeout %v must be shorter than CallTimeout %v", c.ProbeTimeout, c.CallTimeout)
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.CallTimeout}
	}
	if c.Logger == nil {
		c.Logger = slog.With(tracker.ComponentKey, tracker.ComponentClient)
	}
	return nil
}

// Client talks to the tracking server. It is safe for concurrent use; the
// bearer token lives behind a lock and a stale token causes at most one
// refresh plus one retry per call.
type Client struct {
	cfg Config

	// base carries no credential; the auth and machine registration
	// endpoints are unauthenticated.
	base *roundtrip.Client
	// probe is a dedicated short-timeout client used only by Ping.
	probe *roundtrip.Client

	mu           sync.Mutex
	token        string
	refreshToken string
	// clt is rebuilt whenever the token changes because roundtrip scopes
	// a client to one credential. Before the first token it equals base.
	clt *roundtrip.Client
}

// New returns a client for the tracking server.
func New(cfg Config) (*Client, error) {
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	base, err := roundtrip.NewClient(cfg.ServerURL, defaults.APIPrefix,
		roundtrip.HTTPClient(cfg.HTTPClient))
	if err != nil {
		return nil, trace.Wrap(err)
	}
	probeHTTP := &http.Client{
		Transport: cfg.HTTPClient.Transport,
		Timeout:   cfg.ProbeTimeout,
	}
	probe, err := roundtrip.NewClient(cfg.ServerURL, defaults.APIPrefix,
		roundtrip.HTTPClient(probeHTTP))
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return &Client{
		cfg:   cfg,
		base:  base,
		clt:   base,
		probe: probe,
	}, nil
}

// setTokens installs fresh credentials and rebuilds the authenticated
// client around them.
func (c *Client) setTokens(token, refreshToken string) error {
	clt, err := roundtrip.NewClient(c.cfg.ServerURL, defaults.APIPrefix,
		roundtrip.HTTPClient(c.cfg.HTTPClient),
		roundtrip.BearerAuth(token))
	if err != nil {
		return trace.Wrap(err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
	if refreshToken != "" {
		c.refreshToken = refreshToken
	}
	c.clt = clt
	return nil
}

// current returns the client to use for the next authenticated call.
func (c *Client) current() *roundtrip.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clt
}

// HasToken reports whether the client holds a service token.
func (c *Client) HasToken() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token != ""
}

// errorEnvelope is the error body the tracking server returns; when Error
// is set the call failed regardless of the HTTP status code.
type errorEnvelope struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// convertResponse turns a transport error or an error-carrying response
// into an error from the trace taxonomy. The body is authoritative for the
// message when the server sent the error envelope.
func convertResponse(re *roundtrip.Response, err error) (*roundtrip.Response, error) {
	if err != nil {
		var uerr *url.Error
		if errors.As(err, &uerr) && uerr.Err != nil {
			return nil, trace.ConnectionProblem(uerr.Err, "failed to reach tracking server")
		}
		return nil, trace.ConvertSystemError(err)
	}
	return re, responseError(re.Code(), re.Bytes())
}

func responseError(code int, body []byte) error {
	var env errorEnvelope
	if len(body) > 0 {
		// A non-JSON body is not an envelope; status alone decides then.
		_ = json.Unmarshal(body, &env)
	}
	message := env.Message
	if message == "" {
		message = http.StatusText(code)
	}

	switch {
	case code >= http.StatusOK && code < http.StatusMultipleChoices:
		if env.Error {
			return trace.ConnectionProblem(nil, "server rejected request: %s", message)
		}
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return trace.AccessDenied("%s", message)
	case code == http.StatusNotFound:
		return trace.NotFound("%s", message)
	case code == http.StatusConflict:
		return trace.AlreadyExists("%s", message)
	case code == http.StatusTooManyRequests:
		return trace.LimitExceeded("%s", message)
	case code >= http.StatusInternalServerError:
		return trace.ConnectionProblem(nil, "server failure: %s", message)
	default:
		return trace.BadParameter("%s", message)
	}
}

// decodeJSON unmarshals a successful response body.
func decodeJSON(re *roundtrip.Response, out any) error {
	if err := json.Unmarshal(re.Bytes(), out); err != nil {
		return trace.BadParameter("invalid server response: %v", err)
	}
	return nil
}
