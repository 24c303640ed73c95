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

// Package syncer owns the outbound telemetry path: an ordered in-memory
// queue, the online/offline mode driven by connectivity probes, and the
// flush passes that turn queued items into server calls. Everything the
// agent observes funnels through here on its way to the tracking server;
// nothing here blocks the components producing it.
package syncer

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"

	tracker "github.com/nkpatro/activity-tracker"
	"github.com/nkpatro/activity-tracker/lib/client"
	"github.com/nkpatro/activity-tracker/lib/defaults"
	"github.com/nkpatro/activity-tracker/lib/events"
	"github.com/nkpatro/activity-tracker/lib/utils"
)

// Client is the server surface the syncer drives. *client.Client implements
// it; tests substitute a fake. Ping must enforce its own short timeout so a
// dead server flips the mode quickly instead of stalling the probe loop.
type Client interface {
	Ping(ctx context.Context) error
	CreateSession(ctx context.Context, req client.CreateSessionRequest) (*events.Session, error)
	GetActiveSession(ctx context.Context, machineID string) (*events.Session, error)
	PostSessionBatch(ctx context.Context, batch *client.SessionBatch) error
	StartAppUsage(ctx context.Context, usage *events.AppUsage) error
	EndAppUsage(ctx context.Context, usage *events.AppUsage) error
	StartAFK(ctx context.Context, period *events.AFKPeriod) error
	EndAFK(ctx context.Context, period *events.AFKPeriod) error
}

// Mode is the connectivity mode of the syncer.
type Mode int

const (
	// Offline means probes are failing; the queue accumulates and no flush
	// drains it.
	Offline Mode = iota
	// Online means the server is reachable and flushes deliver the queue.
	Online
)

// String returns the mode name used in logs.
func (m Mode) String() string {
	if m == Online {
		return "online"
	}
	return "offline"
}

// Config configures a Syncer.
type Config struct {
	// Client performs the server calls. Required.
	Client Client
	// FlushInterval is the delivery period. Zero is immediate mode: every
	// enqueue while online performs a flush attempt before returning.
	FlushInterval time.Duration
	// MaxQueueSize triggers an early flush when the queue reaches it while
	// online. Defaults to defaults.MaxQueueSize.
	MaxQueueSize int
	// MaxFlushItems caps how many items one flush pass drains. Zero means
	// the whole queue.
	MaxFlushItems int
	// ProbeInterval is how often connectivity is probed. Defaults to
	// defaults.ProbeInterval.
	ProbeInterval time.Duration
	// ShutdownTimeout bounds the final flush during Stop. Defaults to
	// defaults.ShutdownFlushTimeout.
	ShutdownTimeout time.Duration
	// Clock defaults to the real clock.
	Clock clockwork.Clock
	// Logger is used for mode flips and delivery diagnostics.
	Logger *slog.Logger
}

// CheckAndSetDefaults validates the configuration and fills in defaults.
func (c *Config) CheckAndSetDefaults() error {
	if c.Client == nil {
		return trace.BadParameter("missing parameter Client")
	}
	if c.FlushInterval < 0 {
		return trace.BadParameter("negative flush interval %v", c.FlushInterval)
	}
	if c.MaxFlushItems < 0 {
		return trace.BadParameter("negative flush item cap %d", c.MaxFlushItems)
	}
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = defaults.MaxQueueSize
	}
	if c.ProbeInterval <= 0 {
		c.ProbeInterval = defaults.ProbeInterval
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = defaults.ShutdownFlushTimeout
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Logger == nil {
		c.Logger = slog.With(tracker.ComponentKey, tracker.ComponentSyncer)
	}
	return nil
}

// Syncer is the sync manager. Producers enqueue telemetry items from any
// goroutine; one flush pass at a time drains them to the server while the
// connectivity probe decides whether draining is worth attempting.
//
// The syncer starts in Online mode on the theory that the common case is a
// reachable server; the first probe and the first failing call both correct
// it. While Offline the queue grows without bound, deliberately: bounding
// it would trade memory for data loss on exactly the outages the agent is
// supposed to survive.
type Syncer struct {
	cfg Config

	closeContext context.Context
	closeCancel  context.CancelFunc

	mu      sync.Mutex
	queue   []events.Item
	mode    Mode
	running bool
	stopped bool
	done    chan struct{}
	nextSub int
	subs    map[int]func(online bool)

	// flushMu is the at-most-one-flush-in-flight token. Triggers contend
	// with TryLock and skip when a pass is already draining; only the
	// final pass in Stop waits on it.
	flushMu sync.Mutex

	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New returns a syncer with idle loops; call Start to begin probing and
// periodic delivery. Enqueue works immediately, items accumulate until the
// loops run.
func New(cfg Config) (*Syncer, error) {
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	if err := utils.RegisterPrometheusCollectors(syncerCollectors...); err != nil {
		return nil, trace.Wrap(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Syncer{
		cfg:          cfg,
		closeContext: ctx,
		closeCancel:  cancel,
		mode:         Online,
		subs:         make(map[int]func(bool)),
	}
	onlineGauge.Set(1)
	return s, nil
}

// Start launches the probe loop and, in periodic mode, the flush loop.
// Calling Start again is a no-op.
func (s *Syncer) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running || s.stopped {
		return
	}
	s.running = true
	s.done = make(chan struct{})

	s.wg.Add(1)
	go s.probeLoop(s.done)
	if s.cfg.FlushInterval > 0 {
		s.wg.Add(1)
		go s.flushLoop(s.done)
	}
	s.cfg.Logger.Info("Sync manager started.",
		"flush_interval", s.cfg.FlushInterval,
		"probe_interval", s.cfg.ProbeInterval,
		"max_queue_size", s.cfg.MaxQueueSize)
}

// Stop shuts the syncer down: loops exit, one final delivery pass runs with
// the shutdown deadline, and whatever it could not deliver is dropped with
// a logged count. Stop is idempotent.
func (s *Syncer) Stop() {
	s.stopOnce.Do(s.stop)
}

func (s *Syncer) stop() {
	s.mu.Lock()
	wasRunning := s.running
	s.running = false
	s.stopped = true
	done := s.done
	s.done = nil
	s.mu.Unlock()

	if done != nil {
		close(done)
		s.wg.Wait()
	}

	if wasRunning {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		// Lock, not TryLock: wait out an in-flight pass so the final one
		// sees everything still queued.
		s.flushMu.Lock()
		s.flush(ctx)
		s.flushMu.Unlock()
	}
	s.closeCancel()

	if n := s.QueueLen(); n > 0 {
		itemsDropped.Add(float64(n))
		s.cfg.Logger.Warn("Dropping undelivered telemetry at shutdown.", "count", n)
	}
	s.cfg.Logger.Info("Sync manager stopped.")
}

// Mode returns the current connectivity mode.
func (s *Syncer) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// QueueLen returns the number of queued items.
func (s *Syncer) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// SubscribeConnectionState registers an observer of mode flips. Observers
// run synchronously on the flipping goroutine, before any flush the flip
// triggers. The returned function removes the subscription.
func (s *Syncer) SubscribeConnectionState(fn func(online bool)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// Enqueue appends one telemetry item to the delivery queue. In immediate
// mode, and when the queue reaches the size threshold, the call performs a
// flush attempt before returning, provided the syncer is running and
// online. Items enqueued after Stop are dropped.
func (s *Syncer) Enqueue(item events.Item) error {
	if item.SessionID == uuid.Nil {
		return trace.BadParameter("queued %v item without a session id", item.Kind)
	}
	if item.Kind == events.KindUnknown {
		return trace.BadParameter("queued item without a kind")
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		s.cfg.Logger.Debug("Dropping item enqueued after stop.", "kind", item.Kind)
		return nil
	}
	if item.EnqueuedAt.IsZero() {
		item.EnqueuedAt = s.cfg.Clock.Now()
	}
	s.queue = append(s.queue, item)
	size := len(s.queue)
	trigger := s.running && s.mode == Online &&
		(s.cfg.FlushInterval == 0 || size >= s.cfg.MaxQueueSize)
	s.mu.Unlock()

	itemsEnqueued.Inc()
	queueDepth.Set(float64(size))

	if trigger {
		s.Flush(s.closeContext)
	}
	return nil
}

// Flush performs one delivery pass unless another is already in flight, in
// which case it returns immediately; the in-flight pass or the next trigger
// picks up whatever this one would have. Safe to call from any goroutine.
func (s *Syncer) Flush(ctx context.Context) {
	if !s.flushMu.TryLock() {
		return
	}
	defer s.flushMu.Unlock()
	s.flush(ctx)
}

// flush drains and delivers with the flush token held. Offline passes do
// nothing: the probe owns the decision to start draining again.
func (s *Syncer) flush(ctx context.Context) {
	s.mu.Lock()
	if s.mode != Online || len(s.queue) == 0 {
		s.mu.Unlock()
		return
	}
	n := len(s.queue)
	if s.cfg.MaxFlushItems > 0 && n > s.cfg.MaxFlushItems {
		n = s.cfg.MaxFlushItems
	}
	items := s.queue[:n:n]
	s.queue = s.queue[n:]
	remaining := len(s.queue)
	s.mu.Unlock()

	queueDepth.Set(float64(remaining))

	start := s.cfg.Clock.Now()
	delivered, dropped := s.deliver(ctx, items)
	flushSeconds.Observe(s.cfg.Clock.Since(start).Seconds())

	s.cfg.Logger.Debug("Flush pass finished.",
		"drained", n, "delivered", delivered, "dropped", dropped, "remaining", remaining)
}

// deliver posts one drained slice. AppUsage and AFKPeriod items go to their
// individual endpoints in drain order and are consumed whether or not the
// server accepts them; everything else groups into one mixed batch per
// session, posted after the pass, arrays in drain order. Single attempt
// throughout, nothing is re-enqueued: retrying out of order would be worse
// for the server than a gap, and gaps are what the offline queue already
// protects against.
func (s *Syncer) deliver(ctx context.Context, items []events.Item) (delivered, dropped int) {
	batches := make(map[uuid.UUID]*client.SessionBatch)
	var order []uuid.UUID
	batchFor := func(sessionID uuid.UUID) *client.SessionBatch {
		if b, ok := batches[sessionID]; ok {
			return b
		}
		b := &client.SessionBatch{SessionID: sessionID}
		batches[sessionID] = b
		order = append(order, sessionID)
		return b
	}
	// Tracks how many queue items each pending batch carries so the
	// counters stay truthful when a batch call fails.
	counts := make(map[uuid.UUID]int)

	for _, item := range items {
		switch item.Kind {
		case events.KindSessionEvent:
			ev, ok := item.Payload.(events.SessionEvent)
			if !ok {
				dropped += s.dropMalformed(item)
				continue
			}
			b := batchFor(item.SessionID)
			b.SessionEvents = append(b.SessionEvents, ev)
			counts[item.SessionID]++
		case events.KindActivityEvent:
			ev, ok := item.Payload.(events.ActivityEvent)
			if !ok {
				dropped += s.dropMalformed(item)
				continue
			}
			b := batchFor(item.SessionID)
			b.ActivityEvents = append(b.ActivityEvents, ev)
			counts[item.SessionID]++
		case events.KindSystemMetrics:
			sample, ok := item.Payload.(events.SystemMetrics)
			if !ok {
				dropped += s.dropMalformed(item)
				continue
			}
			b := batchFor(item.SessionID)
			b.SystemMetrics = append(b.SystemMetrics, sample)
			counts[item.SessionID]++
		case events.KindAppUsage:
			usage, ok := item.Payload.(events.AppUsage)
			if !ok {
				dropped += s.dropMalformed(item)
				continue
			}
			if err := s.postAppUsage(ctx, usage); err != nil {
				dropped++
				itemsDropped.Inc()
				s.cfg.Logger.Warn("App usage call failed, item dropped.",
					"usage_id", usage.ID, "action", usage.Action, "error", err)
				continue
			}
			delivered++
			itemsDelivered.Inc()
		case events.KindAFKPeriod:
			period, ok := item.Payload.(events.AFKPeriod)
			if !ok {
				dropped += s.dropMalformed(item)
				continue
			}
			if err := s.postAFK(ctx, period); err != nil {
				dropped++
				itemsDropped.Inc()
				s.cfg.Logger.Warn("AFK call failed, item dropped.",
					"afk_id", period.ID, "action", period.Action, "error", err)
				continue
			}
			delivered++
			itemsDelivered.Inc()
		default:
			dropped += s.dropMalformed(item)
		}
	}

	for _, sessionID := range order {
		batch := batches[sessionID]
		if batch.Empty() {
			continue
		}
		batchesSubmitted.Inc()
		if err := s.cfg.Client.PostSessionBatch(ctx, batch); err != nil {
			batchesFailed.Inc()
			dropped += counts[sessionID]
			itemsDropped.Add(float64(counts[sessionID]))
			s.cfg.Logger.Warn("Session batch failed, items dropped.",
				"session_id", sessionID, "items", counts[sessionID], "error", err)
			continue
		}
		delivered += counts[sessionID]
		itemsDelivered.Add(float64(counts[sessionID]))
	}
	return delivered, dropped
}

func (s *Syncer) dropMalformed(item events.Item) int {
	itemsDropped.Inc()
	s.cfg.Logger.Warn("Dropping malformed queue item.",
		"kind", item.Kind, "session_id", item.SessionID)
	return 1
}

// postAppUsage routes an interval item by its action field.
func (s *Syncer) postAppUsage(ctx context.Context, usage events.AppUsage) error {
	if usage.Action == events.ActionEnd {
		return trace.Wrap(s.cfg.Client.EndAppUsage(ctx, &usage))
	}
	return trace.Wrap(s.cfg.Client.StartAppUsage(ctx, &usage))
}

func (s *Syncer) postAFK(ctx context.Context, period events.AFKPeriod) error {
	if period.Action == events.ActionEnd {
		return trace.Wrap(s.cfg.Client.EndAFK(ctx, &period))
	}
	return trace.Wrap(s.cfg.Client.StartAFK(ctx, &period))
}

// CreateOrReopenSession acquires the session to record under for the given
// local date. Online it defers to the server, preferring the machine's open
// session when it belongs to the same date; offline, or when the server is
// unreachable, it mints a local session id and forces Offline mode so that
// telemetry queues under the local id until connectivity returns. The
// server reconciles local ids at the next rollover's create call.
func (s *Syncer) CreateOrReopenSession(ctx context.Context, date time.Time, req client.CreateSessionRequest) (*events.Session, error) {
	if req.MachineID == "" {
		return nil, trace.BadParameter("missing parameter MachineID")
	}
	if s.Mode() == Online {
		session, err := s.reopenOrCreate(ctx, date, req)
		if err == nil {
			return session, nil
		}
		if !trace.IsConnectionProblem(err) {
			return nil, trace.Wrap(err)
		}
		s.cfg.Logger.Warn("Session acquisition failed, continuing with a local session.", "error", err)
		s.setMode(false)
	}

	session := &events.Session{
		ID:                   uuid.New(),
		Username:             req.Username,
		MachineID:            req.MachineID,
		LoginTime:            req.LoginTime,
		IPAddress:            req.IPAddress,
		IsRemote:             req.IsRemote,
		SessionData:          req.SessionData,
		ContinuedFromSession: req.ContinuedFromSession,
	}
	if session.LoginTime.IsZero() {
		session.LoginTime = events.At(s.cfg.Clock.Now())
	}
	s.cfg.Logger.Info("Minted local session while offline.",
		"session_id", session.ID, "username", session.Username)
	return session, nil
}

// reopenOrCreate prefers the server's open session for this machine when it
// falls on the requested date; a stale open session from an earlier date is
// left for the server to close and a fresh one is created.
func (s *Syncer) reopenOrCreate(ctx context.Context, date time.Time, req client.CreateSessionRequest) (*events.Session, error) {
	existing, err := s.cfg.Client.GetActiveSession(ctx, req.MachineID)
	switch {
	case err == nil:
		if events.SameDay(date, existing.LoginTime.Time) {
			s.cfg.Logger.Info("Reopened server session.", "session_id", existing.ID)
			return existing, nil
		}
	case trace.IsNotFound(err):
	default:
		return nil, trace.Wrap(err)
	}

	session, err := s.cfg.Client.CreateSession(ctx, req)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	s.cfg.Logger.Info("Created server session.", "session_id", session.ID)
	return session, nil
}

func (s *Syncer) probeLoop(done chan struct{}) {
	defer s.wg.Done()
	// Correct the optimistic initial mode before the first interval ticks.
	s.probe()
	ticker := s.cfg.Clock.NewTicker(s.cfg.ProbeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.Chan():
			s.probe()
		case <-done:
			return
		}
	}
}

func (s *Syncer) flushLoop(done chan struct{}) {
	defer s.wg.Done()
	ticker := s.cfg.Clock.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.Chan():
			s.Flush(s.closeContext)
		case <-done:
			return
		}
	}
}

// probe pings the server and flips the mode on a change. Going online
// triggers a flush of everything that accumulated, after subscribers heard
// about the flip.
func (s *Syncer) probe() {
	err := s.cfg.Client.Ping(s.closeContext)
	online := err == nil
	if !s.setMode(online) {
		return
	}
	if online {
		s.cfg.Logger.Info("Server reachable, going online.", "queued", s.QueueLen())
		s.Flush(s.closeContext)
	} else {
		s.cfg.Logger.Warn("Server unreachable, going offline.", "error", err)
	}
}

// setMode commits a mode flip and notifies subscribers in subscription
// order. Returns false when the mode did not change.
func (s *Syncer) setMode(online bool) bool {
	next := Offline
	if online {
		next = Online
	}
	s.mu.Lock()
	if s.mode == next {
		s.mu.Unlock()
		return false
	}
	s.mode = next
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	subs := make([]func(bool), 0, len(ids))
	for _, id := range ids {
		subs = append(subs, s.subs[id])
	}
	s.mu.Unlock()

	if online {
		onlineGauge.Set(1)
	} else {
		onlineGauge.Set(0)
	}
	for _, fn := range subs {
		fn(online)
	}
	return true
}
