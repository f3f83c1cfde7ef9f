package dashboard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-recon-dashboard/internal/connectors/reconapi"
	"go-recon-dashboard/internal/logging"
	"go-recon-dashboard/internal/recon"
)

type fakeSource struct {
	mu         sync.Mutex
	recons     []reconapi.ReconWithLatestExecution
	summary    *reconapi.AnalyticsSummary
	listErr    error
	summaryErr error
	calls      int
	block      chan struct{}
	entered    chan struct{}
}

func (f *fakeSource) ListRecons(ctx context.Context) ([]reconapi.ReconWithLatestExecution, error) {
	f.mu.Lock()
	f.calls++
	block, entered := f.block, f.entered
	recons, err := f.recons, f.listErr
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return recons, err
}

func (f *fakeSource) GetAnalyticsSummary(context.Context) (*reconapi.AnalyticsSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.summary, f.summaryErr
}

func (f *fakeSource) set(fn func(f *fakeSource)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func strPtr(s string) *string { return &s }

var fixedNow = time.Date(2026, 2, 5, 12, 0, 0, 0, time.UTC)

func sampleRecons() []reconapi.ReconWithLatestExecution {
	return []reconapi.ReconWithLatestExecution{
		{ID: "stp-001", Name: "STP", StakeholderEmail: "a@example.com", UpdatedAt: "2026-02-01T00:00:00Z"},
		{
			ID: "bp-005", Name: "Arcus File vs Bank Statement", StakeholderEmail: "ops@example.com", Category: strPtr("Bill Pay"),
			LatestExecution: &reconapi.LatestExecution{
				ID: "ex-1", ExecutedAt: "2026-01-24T09:00:00Z", Status: reconapi.ExecutionFailed,
				Delta: decimal.NewNullDecimal(decimal.NewFromInt(-42500)),
			},
		},
	}
}

func newController(src Source, opts Options) *Controller {
	if opts.Now == nil {
		opts.Now = func() time.Time { return fixedNow }
	}
	return NewController(src, logging.NewNop(), opts)
}

func TestController_LoadSuccess(t *testing.T) {
	src := &fakeSource{recons: sampleRecons()}
	c := newController(src, Options{})

	require.NoError(t, c.Load(context.Background()))

	snap := c.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	require.Len(t, snap.Tests, 2)
	assert.Equal(t, recon.StatusFailedUnresolved, snap.Tests[1].Status)
	assert.Equal(t, 12, snap.Tests[1].DaysFailing)
	assert.Nil(t, snap.Analytics)
	assert.Equal(t, recon.KPISourceLocal, snap.KPIs.Source)
	assert.Equal(t, 1, snap.KPIs.OpenExceptions)
	require.NotNil(t, snap.LastSyncedAt)
	assert.Equal(t, fixedNow, *snap.LastSyncedAt)
	assert.Empty(t, snap.Error)
}

func TestController_InitialFailureIsErrorState(t *testing.T) {
	src := &fakeSource{listErr: &reconapi.APIError{Status: 500, Message: "boom"}}
	c := newController(src, Options{})

	err := c.Load(context.Background())

	var apiErr *reconapi.APIError
	require.True(t, errors.As(err, &apiErr))
	snap := c.Snapshot()
	assert.Equal(t, StateError, snap.State)
	assert.Contains(t, snap.Error, "boom")
	assert.False(t, snap.HasData())
	assert.Empty(t, snap.Tests)
}

func TestController_FailedManualRefreshKeepsData(t *testing.T) {
	src := &fakeSource{recons: sampleRecons()}
	c := newController(src, Options{})
	require.NoError(t, c.Load(context.Background()))
	before := c.Snapshot()

	src.set(func(f *fakeSource) {
		f.recons = nil
		f.listErr = errors.New("connection refused")
	})
	err := c.Refresh(context.Background(), ModeManual)

	require.Error(t, err)
	after := c.Snapshot()
	assert.Equal(t, StateIdle, after.State)
	assert.Equal(t, before.Tests, after.Tests)
	assert.Equal(t, before.LastSyncedAt, after.LastSyncedAt)
	assert.Contains(t, after.Error, "connection refused")
}

func TestController_AnalyticsFailureFailsWholeFetch(t *testing.T) {
	src := &fakeSource{recons: sampleRecons()}
	c := newController(src, Options{})
	require.NoError(t, c.Load(context.Background()))

	src.set(func(f *fakeSource) {
		f.recons = sampleRecons()[:1]
		f.summaryErr = errors.New("analytics down")
	})
	require.Error(t, c.Refresh(context.Background(), ModeManual))

	assert.Len(t, c.Snapshot().Tests, 2)
}

func TestController_SuccessClearsError(t *testing.T) {
	src := &fakeSource{listErr: errors.New("down")}
	c := newController(src, Options{})
	require.Error(t, c.Load(context.Background()))

	hours := 3.5
	src.set(func(f *fakeSource) {
		f.listErr = nil
		f.recons = sampleRecons()
		f.summary = &reconapi.AnalyticsSummary{CoverageRate: 90, OpenExceptions: 4, AvgTimeToResolveHours: &hours}
	})
	require.NoError(t, c.Refresh(context.Background(), ModeManual))

	snap := c.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.Empty(t, snap.Error)
	assert.Equal(t, recon.KPISourceBackend, snap.KPIs.Source)
	assert.Equal(t, 4, snap.KPIs.OpenExceptions)
}

func TestController_SilentFailureIsNotSurfaced(t *testing.T) {
	src := &fakeSource{recons: sampleRecons()}
	c := newController(src, Options{})
	require.NoError(t, c.Load(context.Background()))

	src.set(func(f *fakeSource) { f.listErr = errors.New("timeout") })
	require.NoError(t, c.Refresh(context.Background(), ModeSilent))

	snap := c.Snapshot()
	assert.Empty(t, snap.Error)
	assert.Len(t, snap.Tests, 2)
	assert.Equal(t, StateIdle, snap.State)
}

func TestController_SilentSkipsWhileFetchInFlight(t *testing.T) {
	src := &fakeSource{recons: sampleRecons(), block: make(chan struct{}), entered: make(chan struct{}, 1)}
	c := newController(src, Options{})

	errCh := make(chan error, 1)
	go func() { errCh <- c.Refresh(context.Background(), ModeManual) }()
	<-src.entered

	assert.Equal(t, StateLoading, c.Snapshot().State)
	require.NoError(t, c.Refresh(context.Background(), ModeSilent))
	assert.Equal(t, 1, src.callCount())

	close(src.block)
	require.NoError(t, <-errCh)
	assert.Equal(t, StateIdle, c.Snapshot().State)
}

func TestController_SlowSilentFetchDoesNotOverwriteNewerManual(t *testing.T) {
	older := sampleRecons()[:1]
	src := &fakeSource{recons: older, block: make(chan struct{}), entered: make(chan struct{}, 1)}
	c := newController(src, Options{})

	var published []Snapshot
	var pubMu sync.Mutex
	c.Subscribe(func(s Snapshot) {
		pubMu.Lock()
		defer pubMu.Unlock()
		published = append(published, s)
	})

	silentDone := make(chan error, 1)
	go func() { silentDone <- c.Refresh(context.Background(), ModeSilent) }()
	<-src.entered

	block := src.block
	src.set(func(f *fakeSource) {
		f.recons = sampleRecons()
		f.block, f.entered = nil, nil
	})
	require.NoError(t, c.Refresh(context.Background(), ModeManual))
	require.Len(t, c.Snapshot().Tests, 2)

	close(block)
	require.NoError(t, <-silentDone)

	snap := c.Snapshot()
	assert.Len(t, snap.Tests, 2)
	assert.Equal(t, "bp-005", snap.Tests[1].ID)
	pubMu.Lock()
	assert.Len(t, published, 1)
	pubMu.Unlock()
}

func TestController_OlderFailureDoesNotSurfaceAfterNewerSuccess(t *testing.T) {
	src := &fakeSource{listErr: errors.New("slow and failing"), block: make(chan struct{}), entered: make(chan struct{}, 1)}
	c := newController(src, Options{})

	firstDone := make(chan error, 1)
	go func() { firstDone <- c.Refresh(context.Background(), ModeManual) }()
	<-src.entered

	block := src.block
	src.set(func(f *fakeSource) {
		f.recons, f.listErr = sampleRecons(), nil
		f.block, f.entered = nil, nil
	})
	require.NoError(t, c.Refresh(context.Background(), ModeManual))

	close(block)
	require.Error(t, <-firstDone)

	snap := c.Snapshot()
	assert.Empty(t, snap.Error)
	assert.Equal(t, StateIdle, snap.State)
	assert.Len(t, snap.Tests, 2)
}

func TestController_BreakerStopsBackgroundButNotManual(t *testing.T) {
	src := &fakeSource{listErr: errors.New("down")}
	c := newController(src, Options{BreakerFailures: 2, BreakerCooldown: time.Hour})

	require.NoError(t, c.Refresh(context.Background(), ModeSilent))
	require.NoError(t, c.Refresh(context.Background(), ModeSilent))
	require.Equal(t, 2, src.callCount())

	require.NoError(t, c.Refresh(context.Background(), ModeSilent))
	assert.Equal(t, 2, src.callCount(), "open breaker rejects background refresh")

	require.Error(t, c.Refresh(context.Background(), ModeManual))
	assert.Equal(t, 3, src.callCount())
}

func TestController_SubscribersReceiveSnapshots(t *testing.T) {
	src := &fakeSource{recons: sampleRecons()}
	c := newController(src, Options{})

	var got []Snapshot
	c.Subscribe(func(s Snapshot) { got = append(got, s) })

	require.NoError(t, c.Load(context.Background()))
	src.set(func(f *fakeSource) { f.listErr = errors.New("down") })
	_ = c.Refresh(context.Background(), ModeManual)

	require.Len(t, got, 2)
	assert.Equal(t, StateIdle, got[0].State)
	assert.Len(t, got[1].Tests, 2)
	assert.NotEmpty(t, got[1].Error)
}

func TestController_PollingFollowsView(t *testing.T) {
	src := &fakeSource{recons: sampleRecons()}
	c := newController(src, Options{Interval: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, c.Start(ctx))
	defer c.Stop()
	assert.True(t, c.Polling())

	assert.Eventually(t, func() bool { return src.callCount() >= 3 }, time.Second, 5*time.Millisecond)

	c.EnterInvestigation()
	assert.Equal(t, ViewInvestigation, c.View())
	assert.False(t, c.Polling())
	time.Sleep(30 * time.Millisecond)
	paused := src.callCount()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, paused, src.callCount())

	c.EnterList()
	assert.True(t, c.Polling())
	assert.Eventually(t, func() bool { return src.callCount() > paused }, time.Second, 5*time.Millisecond)
}

func TestController_TestLookup(t *testing.T) {
	c := newController(&fakeSource{recons: sampleRecons()}, Options{})
	require.NoError(t, c.Load(context.Background()))

	test, ok := c.Test("bp-005")
	require.True(t, ok)
	assert.Equal(t, "ex-1", test.ExecutionID)

	_, ok = c.Test("missing")
	assert.False(t, ok)
}
