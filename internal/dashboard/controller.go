// Package dashboard owns the dashboard state: the test list, the analytics
// summary and the background refresh that keeps them current.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"go-recon-dashboard/internal/connectors/reconapi"
	"go-recon-dashboard/internal/logging"
	"go-recon-dashboard/internal/metrics"
	"go-recon-dashboard/internal/recon"
)

type State string

const (
	StateLoading    State = "loading"
	StateIdle       State = "idle"
	StateRefreshing State = "refreshing"
	StateError      State = "error"
)

// View is the screen the dashboard is on. Polling only runs on the list.
type View string

const (
	ViewList          View = "list"
	ViewInvestigation View = "investigation"
)

// Refresh modes.
const (
	ModeInitial = "initial"
	ModeManual  = "manual"
	ModeSilent  = "silent"
)

const DefaultInterval = 60 * time.Second

// Source is the slice of the backend API the controller reads.
type Source interface {
	ListRecons(ctx context.Context) ([]reconapi.ReconWithLatestExecution, error)
	GetAnalyticsSummary(ctx context.Context) (*reconapi.AnalyticsSummary, error)
}

// Snapshot is a consistent copy of the dashboard state.
type Snapshot struct {
	State        State                      `json:"state"`
	View         View                       `json:"view"`
	Tests        []recon.ReconciliationTest `json:"tests"`
	Analytics    *reconapi.AnalyticsSummary `json:"analytics"`
	KPIs         recon.KPIs                 `json:"kpis"`
	LastSyncedAt *time.Time                 `json:"lastSyncedAt"`
	Error        string                     `json:"error,omitempty"`
}

// HasData reports whether at least one fetch has succeeded.
func (s Snapshot) HasData() bool {
	return s.LastSyncedAt != nil
}

type Options struct {
	Interval        time.Duration
	BreakerFailures uint32
	BreakerCooldown time.Duration
	Now             func() time.Time
}

// Controller fetches and holds the dashboard data. Loads and refreshes share
// one fetch path; a failed fetch never discards data already shown.
type Controller struct {
	source   Source
	logger   *logging.Logger
	interval time.Duration
	breaker  *gobreaker.CircuitBreaker
	now      func() time.Time

	inFlight atomic.Int32
	seq      atomic.Uint64

	mu           sync.RWMutex
	baseCtx      context.Context
	state        State
	view         View
	tests        []recon.ReconciliationTest
	analytics    *reconapi.AnalyticsSummary
	lastSyncedAt *time.Time
	lastErr      string
	applied      uint64
	pollCancel   context.CancelFunc
	pollDone     chan struct{}

	subsMu      sync.RWMutex
	subscribers []func(Snapshot)
}

func NewController(source Source, logger *logging.Logger, opts Options) *Controller {
	if logger == nil {
		logger = logging.NewNop()
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 5
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	c := &Controller{
		source:   source,
		logger:   logger.Named("dashboard"),
		interval: opts.Interval,
		now:      opts.Now,
		baseCtx:  context.Background(),
		state:    StateLoading,
		view:     ViewList,
		tests:    []recon.ReconciliationTest{},
	}

	failures := opts.BreakerFailures
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "background-refresh",
		Timeout: opts.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			metrics.BreakerState.Set(float64(to))
		},
	})
	return c
}

// Subscribe registers fn to receive a snapshot after every completed fetch.
func (c *Controller) Subscribe(fn func(Snapshot)) {
	c.subsMu.Lock()
	c.subscribers = append(c.subscribers, fn)
	c.subsMu.Unlock()
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	tests := make([]recon.ReconciliationTest, len(c.tests))
	copy(tests, c.tests)
	return Snapshot{
		State:        c.state,
		View:         c.view,
		Tests:        tests,
		Analytics:    c.analytics,
		KPIs:         recon.SummarizeKPIs(c.analytics, tests),
		LastSyncedAt: c.lastSyncedAt,
		Error:        c.lastErr,
	}
}

// Test looks up a test of the current list by id.
func (c *Controller) Test(id string) (recon.ReconciliationTest, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, t := range c.tests {
		if t.ID == id {
			return t, true
		}
	}
	return recon.ReconciliationTest{}, false
}

// Start performs the initial load and starts background polling. Fetches
// started later run on ctx, so leaving the list view never aborts them.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	c.baseCtx = ctx
	c.mu.Unlock()

	err := c.Load(ctx)

	c.mu.Lock()
	if c.view == ViewList {
		c.startPollerLocked()
	}
	c.mu.Unlock()
	return err
}

// Stop halts background polling and waits for the poll loop to exit.
func (c *Controller) Stop() {
	c.mu.Lock()
	done := c.stopPollerLocked()
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Load is the initial fetch. With no data yet a failure leaves the
// dashboard in the error state.
func (c *Controller) Load(ctx context.Context) error {
	return c.run(ctx, ModeInitial)
}

// Refresh re-fetches everything. Manual refreshes return their error to the
// caller; silent ones only log it, skip when a fetch is already running and
// go through the circuit breaker.
func (c *Controller) Refresh(ctx context.Context, mode string) error {
	if mode != ModeSilent {
		return c.run(ctx, mode)
	}

	if c.inFlight.Load() > 0 {
		metrics.RefreshesSkippedTotal.WithLabelValues("in_flight").Inc()
		c.logger.Debug("background refresh skipped, fetch in flight")
		return nil
	}
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.run(ctx, ModeSilent)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		metrics.RefreshesSkippedTotal.WithLabelValues("breaker_open").Inc()
		c.logger.Debug("background refresh skipped, breaker open")
		return nil
	}
	if err != nil {
		c.logger.Warn("background refresh failed", zap.Error(err))
	}
	return nil
}

// run performs one fetch. Each fetch is numbered when it starts; a result
// that finishes after a newer fetch has been applied is dropped.
func (c *Controller) run(ctx context.Context, mode string) error {
	c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	id := c.seq.Add(1)

	c.mu.Lock()
	if mode != ModeSilent {
		if c.lastSyncedAt == nil {
			c.state = StateLoading
		} else {
			c.state = StateRefreshing
		}
	}
	c.mu.Unlock()

	tests, summary, err := c.fetch(ctx)
	metrics.RecordRefresh(mode, err)

	c.mu.Lock()
	if id < c.applied {
		c.mu.Unlock()
		metrics.RefreshesSkippedTotal.WithLabelValues("stale").Inc()
		c.logger.Debug("dropping stale fetch result",
			zap.String("mode", mode), zap.Uint64("fetch", id), zap.Uint64("applied", c.applied), zap.Error(err))
		return err
	}
	if err != nil {
		if mode != ModeSilent {
			c.lastErr = err.Error()
		}
		if c.lastSyncedAt == nil {
			c.state = StateError
		} else {
			c.state = StateIdle
		}
	} else {
		now := c.now()
		c.applied = id
		c.tests = tests
		c.analytics = summary
		c.lastSyncedAt = &now
		c.lastErr = ""
		c.state = StateIdle
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if err == nil {
		metrics.LastSyncTimestamp.Set(float64(snap.LastSyncedAt.Unix()))
		metrics.OpenExceptions.Set(float64(snap.KPIs.OpenExceptions))
		c.logger.Debug("dashboard refreshed", zap.String("mode", mode), zap.Int("tests", len(snap.Tests)))
	} else if mode != ModeSilent {
		c.logger.Warn("dashboard fetch failed", zap.String("mode", mode), zap.Error(err))
	}
	c.publish(snap)
	return err
}

// fetch loads tests and analytics concurrently. Either failing fails both.
func (c *Controller) fetch(ctx context.Context) ([]recon.ReconciliationTest, *reconapi.AnalyticsSummary, error) {
	var (
		recons  []reconapi.ReconWithLatestExecution
		summary *reconapi.AnalyticsSummary
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := c.source.ListRecons(gctx)
		if err != nil {
			return fmt.Errorf("list recons: %w", err)
		}
		recons = r
		return nil
	})
	g.Go(func() error {
		s, err := c.source.GetAnalyticsSummary(gctx)
		if err != nil {
			return fmt.Errorf("analytics summary: %w", err)
		}
		summary = s
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return recon.ToReconciliationTests(recons, c.now()), summary, nil
}

func (c *Controller) publish(snap Snapshot) {
	c.subsMu.RLock()
	subs := make([]func(Snapshot), len(c.subscribers))
	copy(subs, c.subscribers)
	c.subsMu.RUnlock()
	for _, fn := range subs {
		fn(snap)
	}
}

func (c *Controller) View() View {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.view
}

// EnterInvestigation suspends background polling.
func (c *Controller) EnterInvestigation() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.view = ViewInvestigation
	c.stopPollerLocked()
}

// EnterList resumes polling with a fresh interval. Ticks missed while away
// are not replayed.
func (c *Controller) EnterList() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.view = ViewList
	c.stopPollerLocked()
	c.startPollerLocked()
}

func (c *Controller) startPollerLocked() {
	if c.pollCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(c.baseCtx)
	done := make(chan struct{})
	c.pollCancel = cancel
	c.pollDone = done
	go c.poll(ctx, done)
}

func (c *Controller) stopPollerLocked() chan struct{} {
	if c.pollCancel == nil {
		return nil
	}
	c.pollCancel()
	done := c.pollDone
	c.pollCancel = nil
	c.pollDone = nil
	return done
}

func (c *Controller) poll(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			c.mu.RLock()
			base := c.baseCtx
			c.mu.RUnlock()
			_ = c.Refresh(base, ModeSilent)
		}
	}
}

// Polling reports whether the background poller is running.
func (c *Controller) Polling() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pollCancel != nil
}
