// Package lifecycle starts and stops interception sessions. A session is one
// virtual interface plus the loop goroutine reading from it; the Controller
// makes sure at most one exists at a time and keeps the blocked-query
// statistics across sessions and restarts.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/haukened/rr-shield/internal/dns/common/log"
	"github.com/haukened/rr-shield/internal/dns/common/metrics"
	"github.com/haukened/rr-shield/internal/dns/domain"
	"github.com/haukened/rr-shield/internal/dns/gateways/tun"
	"github.com/haukened/rr-shield/internal/dns/repos/blocklist"
	"github.com/haukened/rr-shield/internal/dns/repos/state"
	"github.com/haukened/rr-shield/internal/dns/services/interceptor"
)

// Options configures a Controller. Only Establisher is needed to start;
// Store is optional and disables persistence when nil.
type Options struct {
	Establisher tun.Establisher
	Tun         tun.Config
	Blocklist   blocklist.Blocklist
	Store       state.Store
	Logger      log.Logger
	Metrics     metrics.Observer
	BufferSize  int
}

// Controller owns the interception lifecycle.
type Controller struct {
	// mu serialises Start, Stop and every field below it.
	mu      sync.Mutex
	est     tun.Establisher
	cfg     tun.Config
	list    blocklist.Blocklist
	store   state.Store
	logger  log.Logger
	metrics metrics.Observer
	bufSize int
	lastErr error

	state   atomic.Uint32
	current atomic.Pointer[session]
	last    atomic.Uint64 // blocked count of the most recent finished session
	base    atomic.Uint64 // cumulative blocked count, current session excluded
}

type session struct {
	id     string
	iface  string
	loop   *interceptor.Loop
	cancel context.CancelFunc
	done   chan struct{}
	err    error // written before done closes

	// offset is subtracted from the loop counter after ResetStatistics.
	offset atomic.Uint64
}

// count loads offset before the loop counter. offset only ever takes a
// value the counter has already reached, so the difference cannot wrap.
func (s *session) count() uint64 {
	offset := s.offset.Load()
	return s.loop.BlockedCount() - offset
}

// Snapshot is a point-in-time view of the controller for host glue.
type Snapshot struct {
	State        State
	SessionID    string
	Interface    string
	BlockedCount uint64
	TotalBlocked uint64
	BytesSaved   uint64
}

// New builds a Stopped controller. The persisted blocked count, when a
// Store is configured, seeds TotalBlocked.
func New(opts Options) *Controller {
	c := &Controller{
		est:     opts.Establisher,
		cfg:     opts.Tun,
		list:    opts.Blocklist,
		store:   opts.Store,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		bufSize: opts.BufferSize,
	}
	if c.list == nil {
		c.list = blocklist.NoopBlocklist{}
	}
	if c.logger == nil {
		c.logger = log.NewNoopLogger()
	}
	if c.metrics == nil {
		c.metrics = metrics.Nop{}
	}
	if c.store != nil {
		prefs, err := c.store.Load()
		if err != nil {
			c.logger.Warn(map[string]any{"error": err.Error()}, "Failed to load persisted statistics")
		} else {
			c.base.Store(prefs.BlockedCount)
		}
	}
	return c
}

// Start establishes the virtual interface and launches the interception
// loop. It returns nil without doing anything when a session is already
// running. On failure the controller stays Stopped and the returned error
// is a *StartError.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current.Load() != nil {
		return nil
	}
	if c.est == nil {
		c.lastErr = &StartError{Err: ErrNoEstablisher}
		return c.lastErr
	}

	c.state.Store(uint32(Starting))
	dev, err := c.est.Establish(ctx, c.cfg)
	if err != nil {
		c.state.Store(uint32(Stopped))
		c.lastErr = &StartError{Err: err}
		c.logger.Error(map[string]any{"error": err.Error()}, "Failed to establish virtual interface")
		return c.lastErr
	}

	id := uuid.NewString()
	logger := log.With(c.logger, map[string]any{"session": id, "iface": dev.Name()})
	s := &session{
		id:    id,
		iface: dev.Name(),
		loop: interceptor.New(interceptor.Options{
			Device:     dev,
			Blocklist:  c.list,
			Logger:     logger,
			Metrics:    c.metrics,
			BufferSize: c.bufSize,
		}),
		done: make(chan struct{}),
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	c.current.Store(s)
	c.lastErr = nil
	go c.run(runCtx, s)
	c.state.Store(uint32(Running))

	logger.Info(map[string]any{"patterns": len(c.list.Patterns())}, "Interception started")
	return nil
}

// Stop ends the current session and waits for its loop to exit. It is a
// no-op when nothing is running. The returned error only reports a failure
// to persist statistics; the session is stopped either way.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.current.Load()
	if s == nil {
		return nil
	}
	c.state.Store(uint32(Stopping))
	s.cancel()
	if err := s.loop.Halt(); err != nil {
		c.logger.Warn(map[string]any{"session": s.id, "error": err.Error()}, "Failed to close virtual interface")
	}
	<-s.done

	err := c.retire(s)
	c.logger.Info(map[string]any{
		"session": s.id,
		"blocked": c.last.Load(),
		"packets": s.loop.Packets(),
	}, "Interception stopped")
	return err
}

func (c *Controller) run(ctx context.Context, s *session) {
	s.err = s.loop.Run(ctx)
	close(s.done)
	c.finish(s)
}

// finish handles a loop that exited on its own.
func (c *Controller) finish(s *session) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current.Load() != s {
		return
	}
	if err := c.retire(s); err != nil {
		c.logger.Warn(map[string]any{"session": s.id, "error": err.Error()}, "Failed to persist statistics")
	}
	if s.err != nil {
		c.lastErr = s.err
		c.logger.Error(map[string]any{"session": s.id, "error": s.err.Error()}, "Interception loop failed")
		return
	}
	c.logger.Info(map[string]any{"session": s.id}, "Interception loop exited")
}

// retire folds the session into the totals and moves to Stopped. mu must
// be held.
func (c *Controller) retire(s *session) error {
	n := s.count()
	c.base.Add(n)
	c.last.Store(n)
	c.current.Store(nil)
	s.cancel()
	c.state.Store(uint32(Stopped))
	return c.flushLocked()
}

// State returns the current lifecycle state.
func (c *Controller) State() State { return State(c.state.Load()) }

// IsRunning reports whether a session is Running.
func (c *Controller) IsRunning() bool { return c.State() == Running }

// BlockedCount returns the blocked-query count of the current session, or
// of the last one when stopped.
func (c *Controller) BlockedCount() uint64 {
	if s := c.current.Load(); s != nil {
		return s.count()
	}
	return c.last.Load()
}

// TotalBlocked returns the cumulative blocked-query count across sessions
// and restarts.
func (c *Controller) TotalBlocked() uint64 {
	total := c.base.Load()
	if s := c.current.Load(); s != nil {
		total += s.count()
	}
	return total
}

// LastError returns the error that ended the most recent session or start
// attempt, or nil.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Snapshot reports the controller's state and counters.
func (c *Controller) Snapshot() Snapshot {
	snap := Snapshot{
		State:        c.State(),
		BlockedCount: c.BlockedCount(),
		TotalBlocked: c.TotalBlocked(),
	}
	if s := c.current.Load(); s != nil {
		snap.SessionID = s.id
		snap.Interface = s.iface
	}
	snap.BytesSaved = domain.EstimatedBytesSaved(snap.TotalBlocked)
	return snap
}

// Flush persists the cumulative blocked count.
func (c *Controller) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushLocked()
}

func (c *Controller) flushLocked() error {
	if c.store == nil {
		return nil
	}
	if err := c.store.SetBlockedCount(c.TotalBlocked()); err != nil {
		return fmt.Errorf("persist blocked count: %w", err)
	}
	return nil
}

// ResetStatistics zeroes the persisted and in-memory blocked counts,
// including the running session's.
func (c *Controller) ResetStatistics() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s := c.current.Load(); s != nil {
		s.offset.Store(s.loop.BlockedCount())
	}
	c.base.Store(0)
	c.last.Store(0)
	c.logger.Info(nil, "Statistics reset")
	if c.store == nil {
		return nil
	}
	if err := c.store.SetBlockedCount(0); err != nil {
		return fmt.Errorf("reset blocked count: %w", err)
	}
	return nil
}

// HandleTrigger reacts to a host event. Boot and package-replaced triggers
// only start interception if it was enabled before; a manual trigger
// always starts it.
func (c *Controller) HandleTrigger(ctx context.Context, t Trigger) error {
	switch {
	case t == TriggerManual:
		return c.Start(ctx)
	case t.restoresState():
		if !c.enabled() {
			c.logger.Info(map[string]any{"trigger": string(t)}, "Service disabled, ignoring trigger")
			return nil
		}
		c.logger.Info(map[string]any{"trigger": string(t)}, "Restoring enabled service")
		return c.Start(ctx)
	default:
		return fmt.Errorf("unknown trigger %q", string(t))
	}
}

// Enable starts interception and persists the enabled flag. A failed start
// persists the service as disabled.
func (c *Controller) Enable(ctx context.Context) error {
	err := c.Start(ctx)
	if perr := c.setEnabled(err == nil); perr != nil {
		return errors.Join(err, perr)
	}
	return err
}

// Disable stops interception and persists the service as disabled.
func (c *Controller) Disable() error {
	return errors.Join(c.Stop(), c.setEnabled(false))
}

func (c *Controller) enabled() bool {
	if c.store == nil {
		return false
	}
	prefs, err := c.store.Load()
	if err != nil {
		c.logger.Warn(map[string]any{"error": err.Error()}, "Failed to load service state")
		return false
	}
	return prefs.ServiceEnabled
}

func (c *Controller) setEnabled(enabled bool) error {
	if c.store == nil {
		return nil
	}
	if err := c.store.SetServiceEnabled(enabled); err != nil {
		return fmt.Errorf("persist service enabled: %w", err)
	}
	return nil
}
