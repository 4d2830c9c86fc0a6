package refresh

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"aamonitor/internal/api"
	"aamonitor/internal/dashboard"
	"aamonitor/internal/tree"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func pct(v float64) *float64 { return &v }

type fakeStatus struct {
	connected bool
	aa        api.AutoAcceptStatus
	aaErr     error
	quota     api.QuotaSummary
	quotaErr  error
}

func (f *fakeStatus) CheckConnection(context.Context) bool { return f.connected }

func (f *fakeStatus) AutoAccept(context.Context) (api.AutoAcceptStatus, error) {
	return f.aa, f.aaErr
}

func (f *fakeStatus) QuotaSummary(context.Context) (api.QuotaSummary, error) {
	return f.quota, f.quotaErr
}

func TestFormatStatusLevels(t *testing.T) {
	cases := []struct {
		usage *float64
		auto  bool
		text  string
		level Level
	}{
		{nil, false, "📈 Quota: 0% | ⊘ AA: Manual", LevelNormal},
		{pct(15.4), true, "📈 Quota: 15% | ✔ AA: Auto", LevelNormal},
		{pct(80), true, "📈 Quota: 80% | ✔ AA: Auto", LevelNormal},
		{pct(80.6), true, "📈 Quota: 81% | ✔ AA: Auto", LevelWarning},
		{pct(96), false, "📈 Quota: 96% | ⊘ AA: Manual", LevelError},
		{pct(150), true, "📈 Quota: 100% | ✔ AA: Auto", LevelError},
		{pct(-5), true, "📈 Quota: 0% | ✔ AA: Auto", LevelNormal},
	}
	for _, tc := range cases {
		got := FormatStatus(tc.auto, tc.usage)
		assert.Equal(t, tc.text, got.Text)
		assert.Equal(t, tc.level, got.Level)
		assert.True(t, got.Connected)
	}
}

func TestComputeStatusPaths(t *testing.T) {
	ctx := context.Background()

	offline, err := ComputeStatus(ctx, &fakeStatus{})
	require.NoError(t, err)
	assert.Equal(t, OfflineStatus(), offline)

	ready, err := ComputeStatus(ctx, &fakeStatus{connected: true, quotaErr: errors.New("boom")})
	require.Error(t, err)
	assert.Equal(t, "ℹ AA: Ready", ready.Text)

	ok, err := ComputeStatus(ctx, &fakeStatus{
		connected: true,
		aa:        api.AutoAcceptStatus{Enabled: true},
		quota:     api.QuotaSummary{Summary: &api.QuotaTotals{MaxPercentage: pct(97)}},
	})
	require.NoError(t, err)
	assert.Equal(t, LevelError, ok.Level)
}

type countingProvider struct {
	tree.Provider
	calls atomic.Int32
	err   error
}

func (c *countingProvider) UpdateData(context.Context) error {
	c.calls.Add(1)
	return c.err
}

func TestRefreshAllUpdatesEveryProvider(t *testing.T) {
	a := &countingProvider{}
	b := &countingProvider{err: errors.New("cache down")}
	r := NewRefresher(&fakeStatus{}, nil, a, b)
	assert.Equal(t, StartingStatus(), r.Status())

	status, err := r.RefreshAll(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "cache down")
	assert.Equal(t, OfflineStatus(), status)
	assert.Equal(t, status, r.Status())
	assert.EqualValues(t, 1, a.calls.Load())
	assert.EqualValues(t, 1, b.calls.Load())
}

type seqCollector struct {
	seq atomic.Uint64
}

func (c *seqCollector) Collect(context.Context) *dashboard.Snapshot {
	return &dashboard.Snapshot{Seq: c.seq.Add(1), Connected: true}
}

func TestLoopRunsBothPathsAndStops(t *testing.T) {
	var (
		mu       sync.Mutex
		updates  []dashboard.Message
		statuses []StatusBar
	)
	provider := &countingProvider{}
	loop := NewLoop(LoopConfig{
		Collector:         &seqCollector{},
		Refresher:         NewRefresher(&fakeStatus{}, nil, provider),
		DashboardInterval: time.Second,
		RefreshInterval:   time.Second,
		OnUpdate: func(m dashboard.Message) {
			mu.Lock()
			updates = append(updates, m)
			mu.Unlock()
		},
		OnStatus: func(s StatusBar) {
			mu.Lock()
			statuses = append(statuses, s)
			mu.Unlock()
		},
	})
	require.NoError(t, loop.Start(context.Background()))
	require.NoError(t, loop.Start(context.Background()), "second start is a no-op")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(updates) >= 2 && len(statuses) >= 2
	}, 5*time.Second, 20*time.Millisecond)
	loop.Stop()
	loop.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, dashboard.MessageUpdate, updates[0].Type)
	assert.True(t, updates[0].Data.Connected)
	assert.Equal(t, "⚠ AA: Offline", statuses[0].Text)
	assert.GreaterOrEqual(t, provider.calls.Load(), int32(2))
}

func TestRunDashboardDropsStaleSnapshot(t *testing.T) {
	latest := &dashboard.Latest{}
	latest.Apply(&dashboard.Snapshot{Seq: 10})
	var delivered int
	loop := NewLoop(LoopConfig{
		Collector: &seqCollector{},
		Latest:    latest,
		OnUpdate:  func(dashboard.Message) { delivered++ },
	})
	loop.RunDashboard(context.Background())
	assert.Zero(t, delivered)
	assert.EqualValues(t, 10, latest.Get().Seq)
}
