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

// Package service assembles the agent from its parts: settings store, HTTP
// client, application cache, input batcher, session state machine, sync
// manager and the OS monitors. The Agent owns startup and shutdown order
// and the handful of translation callbacks between components; everything
// with actual logic lives in the component packages.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/user"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"

	tracker "github.com/nkpatro/activity-tracker"
	"github.com/nkpatro/activity-tracker/lib/appcache"
	"github.com/nkpatro/activity-tracker/lib/batcher"
	"github.com/nkpatro/activity-tracker/lib/client"
	"github.com/nkpatro/activity-tracker/lib/config"
	"github.com/nkpatro/activity-tracker/lib/defaults"
	"github.com/nkpatro/activity-tracker/lib/events"
	"github.com/nkpatro/activity-tracker/lib/machineid"
	"github.com/nkpatro/activity-tracker/lib/monitor"
	"github.com/nkpatro/activity-tracker/lib/session"
	"github.com/nkpatro/activity-tracker/lib/syncer"
	"github.com/nkpatro/activity-tracker/lib/utils"
)

// Config configures an Agent. The monitor fields are the platform adapters;
// any of them may be nil, which disables the corresponding signal source
// while the rest of the agent runs normally.
type Config struct {
	// DataDir overrides the platform per-user data directory.
	DataDir string
	// InputMonitor is the OS input hook feeding the batcher.
	InputMonitor monitor.InputMonitor
	// SessionSource delivers OS session lifecycle notifications.
	SessionSource monitor.SessionEventSource
	// IdleProber reads system idle time for AFK detection.
	IdleProber monitor.IdleProber
	// Sampler reads system utilization. Defaults to the gopsutil-backed
	// sampler.
	Sampler monitor.MetricsSampler
	// HTTPClient overrides the transport used for server calls.
	HTTPClient *http.Client
	// Clock defaults to the real clock.
	Clock clockwork.Clock
	// Logger defaults to the agent component logger.
	Logger *slog.Logger
}

// CheckAndSetDefaults validates the configuration and fills in defaults.
func (c *Config) CheckAndSetDefaults() error {
	if c.DataDir == "" {
		c.DataDir = defaults.DataDir()
	}
	if c.Sampler == nil {
		c.Sampler = monitor.SystemSampler{}
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Logger == nil {
		c.Logger = slog.With(tracker.ComponentKey, tracker.ComponentAgent)
	}
	return nil
}

// Agent is the running tracker process. Start brings the components up in
// dependency order and opens the day's session; Close tears everything
// down in reverse order, delivering what it can before the shutdown
// deadline.
type Agent struct {
	cfg    Config
	logger *slog.Logger

	closeContext context.Context
	closeCancel  context.CancelFunc
	watchContext context.Context
	watchCancel  context.CancelFunc

	store   *config.Store
	client  *client.Client
	cache   *appcache.Cache
	syncer  *syncer.Syncer
	batcher *batcher.Batcher
	sm      *session.StateMachine
	idle    *monitor.IdleWatcher

	machineID   string
	fingerprint string
	ipAddress   string

	mu              sync.Mutex
	started         bool
	session         *events.Session
	unsubs          []func()
	inputStarted    bool
	sessionSourceOn bool

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New returns an unstarted agent.
func New(cfg Config) (*Agent, error) {
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	closeContext, closeCancel := context.WithCancel(context.Background())
	watchContext, watchCancel := context.WithCancel(closeContext)
	return &Agent{
		cfg:          cfg,
		logger:       cfg.Logger,
		closeContext: closeContext,
		closeCancel:  closeCancel,
		watchContext: watchContext,
		watchCancel:  watchCancel,
	}, nil
}

// Start loads settings, connects the components and opens today's session.
// An unreachable server is not fatal: the agent starts offline and the
// sync manager delivers the backlog when connectivity returns.
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return trace.BadParameter("agent already started")
	}
	a.started = true
	a.mu.Unlock()

	dataDir, err := defaults.EnsureDataDir(a.cfg.DataDir)
	if err != nil {
		return trace.ConvertSystemError(err)
	}

	a.store, err = config.NewStore(config.StoreConfig{Dir: dataDir})
	if err != nil {
		return trace.Wrap(err)
	}
	settings := a.store.Get()

	minted, err := a.resolveMachineID(dataDir, settings.MachineID)
	if err != nil {
		return trace.Wrap(err)
	}

	a.client, err = client.New(client.Config{
		ServerURL:  settings.ServerURL,
		HTTPClient: a.cfg.HTTPClient,
	})
	if err != nil {
		return trace.Wrap(err)
	}
	if minted {
		hostname, _ := os.Hostname()
		if err := a.registerMachine(ctx, hostname); err != nil {
			a.logger.Warn("Machine registration failed.", "error", err)
		}
	}
	if err := a.client.ObtainServiceToken(ctx, a.machineID); err != nil {
		a.logger.Warn("Could not obtain a service token, starting unauthenticated.", "error", err)
	}
	if ip, err := utils.OutboundIP(settings.ServerURL); err == nil {
		a.ipAddress = ip
	}

	a.cache, err = appcache.New(appcache.Config{Dir: dataDir, Detector: a.client})
	if err != nil {
		return trace.Wrap(err)
	}
	a.syncer, err = syncer.New(syncer.Config{
		Client:        a.client,
		FlushInterval: settings.DataSendInterval,
		Clock:         a.cfg.Clock,
	})
	if err != nil {
		return trace.Wrap(err)
	}
	a.sm, err = session.New(session.Config{
		Recorder: &queueRecorder{syncer: a.syncer, logger: a.logger},
		Clock:    a.cfg.Clock,
	})
	if err != nil {
		return trace.Wrap(err)
	}
	a.batcher, err = batcher.New(batcher.Config{
		Interval: defaults.BatchInterval,
		OnMouse:  a.handleMouse,
		OnKeys:   a.handleKeys,
		OnFocus:  a.handleFocus,
		Clock:    a.cfg.Clock,
	})
	if err != nil {
		return trace.Wrap(err)
	}
	if a.cfg.IdleProber != nil {
		a.idle, err = monitor.NewIdleWatcher(monitor.IdleWatcherConfig{
			Prober:    a.cfg.IdleProber,
			OnAFK:     a.handleAFK,
			Threshold: settings.IdleTimeThreshold,
			Clock:     a.cfg.Clock,
		})
		if err != nil {
			return trace.Wrap(err)
		}
	}

	a.mu.Lock()
	a.unsubs = append(a.unsubs,
		a.syncer.SubscribeConnectionState(a.handleConnectionChange),
		a.store.Subscribe(a.applySettings))
	a.mu.Unlock()

	a.syncer.Start()
	a.batcher.Start()
	if a.idle != nil {
		a.idle.Start()
	}
	if a.cfg.InputMonitor != nil && (settings.TrackKeyboardMouse || settings.TrackApplications) {
		if err := a.cfg.InputMonitor.Start(a.batcher); err != nil {
			a.logger.Warn("Input monitor failed to start, input tracking disabled.", "error", err)
		} else {
			a.mu.Lock()
			a.inputStarted = true
			a.mu.Unlock()
		}
	}
	if a.cfg.SessionSource != nil {
		if err := a.cfg.SessionSource.Start(a.handleSessionChange); err != nil {
			a.logger.Warn("Session monitor failed to start, OS session events disabled.", "error", err)
		} else {
			a.mu.Lock()
			a.sessionSourceOn = true
			a.mu.Unlock()
		}
	}

	now := a.cfg.Clock.Now()
	sess, err := a.openSession(ctx, now, a.username(), "")
	if err != nil {
		return trace.Wrap(err)
	}

	a.done = make(chan struct{})
	a.wg.Add(1)
	go a.rolloverLoop(a.done)
	if settings.TrackSystemMetrics {
		a.wg.Add(1)
		go a.metricsLoop(a.done)
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.store.Watch(a.watchContext); err != nil {
			a.logger.Debug("Config watcher exited.", "error", err)
		}
	}()

	a.logger.Info("Agent started.",
		"machine_id", a.machineID,
		"session_id", sess.ID,
		"server", settings.ServerURL,
		"mode", a.syncer.Mode())
	return nil
}

// Close shuts the agent down in reverse dependency order: signal sources
// first so nothing new arrives, then the batcher's final drain, session
// teardown, the sync manager's final flush, and last the server-side
// session close. Close is idempotent.
func (a *Agent) Close(ctx context.Context) error {
	a.closeOnce.Do(func() { a.close(ctx) })
	return nil
}

func (a *Agent) close(ctx context.Context) {
	a.logger.Info("Agent shutting down.")

	a.mu.Lock()
	inputStarted := a.inputStarted
	sessionSourceOn := a.sessionSourceOn
	unsubs := a.unsubs
	a.unsubs = nil
	a.mu.Unlock()

	if inputStarted {
		if err := a.cfg.InputMonitor.Close(); err != nil {
			a.logger.Warn("Input monitor close failed.", "error", err)
		}
	}
	if sessionSourceOn {
		if err := a.cfg.SessionSource.Close(); err != nil {
			a.logger.Warn("Session monitor close failed.", "error", err)
		}
	}
	if a.idle != nil {
		a.idle.Stop()
	}

	a.watchCancel()
	if a.done != nil {
		close(a.done)
		a.wg.Wait()
	}
	for _, unsubscribe := range unsubs {
		unsubscribe()
	}

	if a.batcher != nil {
		a.batcher.Stop()
	}

	now := a.cfg.Clock.Now()
	sess := a.currentSession()
	if a.sm != nil {
		if sess != nil {
			a.sm.SessionEnded(now)
		}
		// Stop drains the signal queue, so the logout and interval close
		// items are all enqueued when it returns.
		a.sm.Stop()
	}
	if a.syncer != nil {
		a.syncer.Stop()
	}
	if sess != nil && a.client != nil {
		endCtx, cancel := context.WithTimeout(ctx, defaults.CallTimeout)
		defer cancel()
		if err := a.client.EndSession(endCtx, sess.ID, now); err != nil {
			a.logger.Warn("Could not close session on server.", "session_id", sess.ID, "error", err)
		}
	}
	a.closeCancel()
	a.logger.Info("Agent stopped.")
}

// Session returns a copy of the session currently under observation.
func (a *Agent) Session() (events.Session, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session == nil {
		return events.Session{}, false
	}
	return *a.session, true
}

func (a *Agent) currentSession() *events.Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session
}

func (a *Agent) setSession(sess *events.Session) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.session = sess
}

// resolveMachineID settles the machine identity: the configured id wins,
// otherwise the persisted or freshly generated fingerprint-derived id is
// used and written back to the settings. Returns whether the id had to be
// resolved outside the settings, which is the cue to introduce the machine
// to the server.
func (a *Agent) resolveMachineID(dataDir, configured string) (minted bool, err error) {
	if fp, err := machineid.Fingerprint(); err == nil {
		a.fingerprint = fp
	}
	if configured != "" {
		a.machineID = configured
		return false, nil
	}
	id, err := machineid.ID(dataDir)
	if err != nil {
		return false, trace.Wrap(err)
	}
	a.machineID = id.String()
	if err := a.store.SetMachineID(a.machineID); err != nil {
		a.logger.Warn("Could not persist machine id to settings.", "error", err)
	}
	return true, nil
}

func (a *Agent) registerMachine(ctx context.Context, hostname string) error {
	regCtx, cancel := context.WithTimeout(ctx, defaults.CallTimeout)
	defer cancel()
	return trace.Wrap(a.client.RegisterMachine(regCtx, client.RegisterMachineRequest{
		MachineID:   a.machineID,
		Hostname:    hostname,
		OS:          runtime.GOOS,
		Arch:        runtime.GOARCH,
		Fingerprint: a.fingerprint,
	}))
}

// username resolves the account to report sessions under: the configured
// override, then the OS account with any domain prefix stripped.
func (a *Agent) username() string {
	if s := a.store.Get().DefaultUsername; s != "" {
		return s
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		name := u.Username
		if i := strings.LastIndexByte(name, '\\'); i >= 0 {
			name = name[i+1:]
		}
		return name
	}
	if name := os.Getenv("USER"); name != "" {
		return name
	}
	return "unknown"
}

// openSession acquires a session from the sync manager and feeds it into
// the state machine, which records the login event.
func (a *Agent) openSession(ctx context.Context, at time.Time, username, continuedFrom string) (*events.Session, error) {
	sess, err := a.syncer.CreateOrReopenSession(ctx, at, client.CreateSessionRequest{
		Username:             username,
		MachineID:            a.machineID,
		IPAddress:            a.ipAddress,
		LoginTime:            events.At(at),
		ContinuedFromSession: continuedFrom,
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}
	a.setSession(sess)
	a.sm.SessionStarted(sess.ID, at)
	return sess, nil
}

// closeSession tears the active session down: the state machine closes the
// open intervals and records the logout, the queue is flushed, and the
// server is told the logout time. Blocks until teardown completes or the
// grace period expires.
func (a *Agent) closeSession(sess *events.Session, at time.Time) {
	closed := make(chan struct{}, 1)
	unsubscribe := a.sm.SubscribeSessionClosed(func(uuid.UUID) {
		select {
		case closed <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	a.sm.SessionEnded(at)
	select {
	case <-closed:
	case <-a.closeContext.Done():
	case <-time.After(defaults.ShutdownFlushTimeout):
		a.logger.Warn("Timed out waiting for session teardown.", "session_id", sess.ID)
	}

	a.syncer.Flush(a.closeContext)
	endCtx, cancel := context.WithTimeout(a.closeContext, defaults.CallTimeout)
	defer cancel()
	if err := a.client.EndSession(endCtx, sess.ID, at); err != nil {
		a.logger.Warn("Could not close session on server.", "session_id", sess.ID, "error", err)
	}
	a.setSession(nil)
}

// rolloverLoop watches for the local date leaving the active session's
// date. The ticker is monotonic but the comparison is wall clock, so a
// sleep across midnight rolls over on the first tick after wake.
func (a *Agent) rolloverLoop(done chan struct{}) {
	defer a.wg.Done()
	ticker := a.cfg.Clock.NewTicker(defaults.RolloverCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.Chan():
			a.checkRollover()
		case <-done:
			return
		}
	}
}

func (a *Agent) checkRollover() {
	sess := a.currentSession()
	if sess == nil {
		return
	}
	now := a.cfg.Clock.Now()
	if events.SameDay(now, sess.LoginTime.Time) {
		return
	}
	a.rollover(sess, now)
}

// rollover closes the running session at the end of its own day and opens
// the new day's session continuing from it. While offline both halves take
// the local path: the close is queued and the new session id is minted
// locally.
func (a *Agent) rollover(old *events.Session, now time.Time) {
	a.logger.Info("Day rollover, rotating session.", "old_session", old.ID)
	a.closeSession(old, events.EndOfDay(old.LoginTime.Time))
	if _, err := a.openSession(a.closeContext, events.StartOfDay(now), a.username(), old.ID.String()); err != nil {
		a.logger.Error("Could not open the rollover session.", "error", err)
	}
}

// metricsLoop samples utilization and queues a metrics item per tick, plus
// a system alert activity event when CPU or memory crosses the alert
// threshold.
func (a *Agent) metricsLoop(done chan struct{}) {
	defer a.wg.Done()
	ticker := a.cfg.Clock.NewTicker(defaults.MetricsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.Chan():
			a.sampleMetrics()
		case <-done:
			return
		}
	}
}

func (a *Agent) sampleMetrics() {
	sessionID, ok := a.sm.CurrentSessionID()
	if !ok {
		return
	}
	sample, err := a.cfg.Sampler.Sample(a.closeContext)
	if err != nil {
		a.logger.Warn("System metrics sampling failed.", "error", err)
		return
	}
	now := a.cfg.Clock.Now()
	a.enqueue(events.Item{
		Kind:      events.KindSystemMetrics,
		SessionID: sessionID,
		Payload: events.SystemMetrics{
			SessionID:   sessionID,
			CPUUsage:    sample.CPU,
			GPUUsage:    sample.GPU,
			MemoryUsage: sample.Memory,
			MeasuredAt:  events.At(now),
		},
	})
	if sample.CPU >= defaults.SystemAlertThreshold {
		a.alert(sessionID, "cpu", sample.CPU, now)
	}
	if sample.Memory >= defaults.SystemAlertThreshold {
		a.alert(sessionID, "memory", sample.Memory, now)
	}
}

func (a *Agent) alert(sessionID uuid.UUID, resource string, value float64, at time.Time) {
	a.logger.Warn("Resource utilization above alert threshold.", "resource", resource, "percent", value)
	ev := events.NewSystemAlertEvent(sessionID, fmt.Sprintf("%s usage at %.1f%%", resource, value), at)
	a.enqueue(events.Item{Kind: events.KindActivityEvent, SessionID: sessionID, Payload: ev})
}

// handleMouse translates a batch of mouse activity into activity events.
// The move event carries the sample count and the last observed position.
func (a *Agent) handleMouse(positions []batcher.MousePosition, moves, clicks int) {
	if !a.store.Get().TrackKeyboardMouse {
		return
	}
	sessionID, ok := a.sm.CurrentSessionID()
	if !ok {
		return
	}
	now := a.cfg.Clock.Now()
	if moves > 0 {
		var x, y int
		if len(positions) > 0 {
			last := positions[len(positions)-1]
			x, y = last.X, last.Y
		}
		ev := events.NewMouseMoveEvent(sessionID, moves, x, y, now)
		a.enqueue(events.Item{Kind: events.KindActivityEvent, SessionID: sessionID, Payload: ev})
	}
	if clicks > 0 {
		ev := events.NewMouseClickEvent(sessionID, clicks, now)
		a.enqueue(events.Item{Kind: events.KindActivityEvent, SessionID: sessionID, Payload: ev})
	}
}

func (a *Agent) handleKeys(count int) {
	if !a.store.Get().TrackKeyboardMouse {
		return
	}
	sessionID, ok := a.sm.CurrentSessionID()
	if !ok {
		return
	}
	ev := events.NewKeyboardEvent(sessionID, count, a.cfg.Clock.Now())
	a.enqueue(events.Item{Kind: events.KindActivityEvent, SessionID: sessionID, Payload: ev})
}

// handleFocus resolves the application identity through the cache and
// reports the focus change to the state machine, which opens and closes
// the usage intervals. A failed detect leaves the app id empty; the usage
// still runs under the window title.
func (a *Agent) handleFocus(focus batcher.Focus) {
	if !a.store.Get().TrackApplications {
		return
	}
	sessionID, ok := a.sm.CurrentSessionID()
	if !ok {
		return
	}
	var appID string
	if focus.ExecutablePath != "" {
		id, err := a.cache.RegisterApplication(a.closeContext, focus.AppName, focus.ExecutablePath)
		if err != nil {
			a.logger.Warn("Application detection failed, tracking by window title.",
				"app", focus.AppName, "error", err)
		} else {
			appID = id
		}
	}
	now := a.cfg.Clock.Now()
	a.sm.ReportFocus(appID, focus.AppName, focus.WindowTitle, now)
	ev := events.NewAppFocusEvent(sessionID, appID, focus.AppName, focus.WindowTitle, focus.Changes, now)
	a.enqueue(events.Item{Kind: events.KindActivityEvent, SessionID: sessionID, Payload: ev})
}

func (a *Agent) handleAFK(start bool, at time.Time) {
	if start {
		a.sm.UserWentAFK(at)
	} else {
		a.sm.UserReturned(at)
	}
}

// handleConnectionChange runs synchronously on the mode flip, before the
// flush that a recovery triggers, so the state_change event joins the
// backlog it describes.
func (a *Agent) handleConnectionChange(online bool) {
	now := a.cfg.Clock.Now()
	if online {
		a.sm.ConnectionRestored(now)
	} else {
		a.sm.ConnectionLost(now)
	}
	sessionID, ok := a.sm.CurrentSessionID()
	if !ok {
		return
	}
	state := "offline"
	if online {
		state = "online"
	}
	a.enqueue(events.Item{
		Kind:      events.KindSessionEvent,
		SessionID: sessionID,
		Payload: events.SessionEvent{
			SessionID: sessionID,
			Type:      events.SessionStateChange,
			Time:      events.At(now),
			Data:      map[string]any{"connection": state},
		},
	})
}

// handleSessionChange translates OS session notifications into state
// machine events. Lock, unlock, login and logout reach the server through
// the state machine's own recording; user switching and remote attach are
// recorded here because the state machine has no transitions for them.
func (a *Agent) handleSessionChange(change monitor.SessionChange) {
	at := change.Time
	if at.IsZero() {
		at = a.cfg.Clock.Now()
	}
	switch change.Kind {
	case events.SessionLock:
		a.sm.SystemSuspending(at)
	case events.SessionUnlock:
		a.sm.SystemResuming(at)
	case events.SessionLogout:
		if sess := a.currentSession(); sess != nil {
			a.closeSession(sess, at)
		}
	case events.SessionLogin:
		if a.currentSession() != nil {
			return
		}
		username := change.Username
		if username == "" {
			username = a.username()
		}
		if _, err := a.openSession(a.closeContext, at, username, ""); err != nil {
			a.logger.Warn("Could not open session on OS login.", "error", err)
		}
	case events.SessionSwitchUser:
		a.handleSwitchUser(change, at)
	case events.SessionRemoteConnect, events.SessionRemoteDisconnect:
		sessionID, ok := a.sm.CurrentSessionID()
		if !ok {
			return
		}
		a.enqueue(events.Item{
			Kind:      events.KindSessionEvent,
			SessionID: sessionID,
			Payload: events.SessionEvent{
				SessionID: sessionID,
				Type:      change.Kind,
				Time:      events.At(at),
				Data:      map[string]any{"username": change.Username},
			},
		})
	default:
		a.logger.Debug("Ignoring unknown session notification.", "kind", change.Kind)
	}
}

// handleSwitchUser records the switch on the outgoing session and, in
// multi-user mode, rotates to a session owned by the incoming user. The
// new session is not a continuation: the day did not change, the user did.
func (a *Agent) handleSwitchUser(change monitor.SessionChange, at time.Time) {
	sess := a.currentSession()
	if sess != nil {
		a.enqueue(events.Item{
			Kind:      events.KindSessionEvent,
			SessionID: sess.ID,
			Payload: events.SessionEvent{
				SessionID: sess.ID,
				Type:      events.SessionSwitchUser,
				Time:      events.At(at),
				Data:      map[string]any{"username": change.Username},
			},
		})
	}
	if !a.store.Get().MultiUserMode {
		return
	}
	if sess != nil {
		a.closeSession(sess, at)
	}
	username := change.Username
	if username == "" {
		username = a.username()
	}
	if _, err := a.openSession(a.closeContext, at, username, ""); err != nil {
		a.logger.Warn("Could not open session for switched user.", "error", err)
	}
}

// applySettings reacts to settings changes that are safe to apply live.
// Interval and server changes take effect on the next agent start.
func (a *Agent) applySettings(settings config.Config) {
	if a.idle != nil {
		a.idle.SetThreshold(settings.IdleTimeThreshold)
	}
}

func (a *Agent) enqueue(item events.Item) {
	if err := a.syncer.Enqueue(item); err != nil {
		a.logger.Debug("Dropping telemetry item.", "kind", item.Kind, "error", err)
	}
}

// queueRecorder forwards state machine telemetry into the sync queue.
type queueRecorder struct {
	syncer *syncer.Syncer
	logger *slog.Logger
}

func (r *queueRecorder) RecordSessionEvent(ev events.SessionEvent) {
	r.enqueue(events.Item{Kind: events.KindSessionEvent, SessionID: ev.SessionID, Payload: ev})
}

func (r *queueRecorder) RecordActivityEvent(ev events.ActivityEvent) {
	r.enqueue(events.Item{Kind: events.KindActivityEvent, SessionID: ev.SessionID, Payload: ev})
}

func (r *queueRecorder) RecordAppUsage(usage events.AppUsage) {
	r.enqueue(events.Item{Kind: events.KindAppUsage, SessionID: usage.SessionID, Payload: usage})
}

func (r *queueRecorder) RecordAFKPeriod(period events.AFKPeriod) {
	r.enqueue(events.Item{Kind: events.KindAFKPeriod, SessionID: period.SessionID, Payload: period})
}

func (r *queueRecorder) enqueue(item events.Item) {
	if err := r.syncer.Enqueue(item); err != nil {
		r.logger.Debug("Dropping state machine telemetry.", "kind", item.Kind, "error", err)
	}
}
