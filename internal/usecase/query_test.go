package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestQueryClient(clock *fakeClock) *QueryClient {
	c := NewQueryClient(RetryPolicy{MaxRetries: 1}, NewSyncMetrics(prometheus.NewRegistry()), zap.NewNop())
	if clock != nil {
		c.timeNow = clock.Now
	}
	return c
}

var testPolicy = QueryPolicy{Interval: 5 * time.Second, StaleTime: 3 * time.Second}

func countingFetch(calls *atomic.Int32) FetchFunc[int] {
	return func(ctx context.Context) (int, error) {
		return int(calls.Add(1)), nil
	}
}

func TestQuery_GetWithinStaleWindowHitsNetworkOnce(t *testing.T) {
	clock := newFakeClock()
	c := newTestQueryClient(clock)
	var calls atomic.Int32
	q := NewQuery(c, QueryStatus, testPolicy, countingFetch(&calls))
	ctx := context.Background()

	v, err := q.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	clock.Advance(2 * time.Second)
	v, err = q.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, int32(1), calls.Load())

	clock.Advance(time.Second)
	v, err = q.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.Equal(t, int32(2), calls.Load())
}

func TestQuery_ConcurrentGetsShareOneRequest(t *testing.T) {
	c := newTestQueryClient(newFakeClock())
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	q := NewQuery(c, QueryTrades, testPolicy, func(ctx context.Context) (int, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return 7, nil
	})

	var wg sync.WaitGroup
	results := make([]int, 3)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _ = q.Get(context.Background())
	}()
	<-started
	require.True(t, q.State().Fetching)

	for i := 1; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = q.Get(context.Background())
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, []int{7, 7, 7}, results)
}

func TestQuery_FailureKeepsLastGoodValue(t *testing.T) {
	clock := newFakeClock()
	c := newTestQueryClient(clock)
	var calls atomic.Int32
	var fail atomic.Bool
	q := NewQuery(c, QueryMetrics, testPolicy, func(ctx context.Context) (int, error) {
		n := calls.Add(1)
		if fail.Load() {
			return 0, errors.New("backend down")
		}
		return int(n), nil
	})
	ctx := context.Background()

	st := q.State()
	assert.Equal(t, FetchPending, st.Status)
	assert.False(t, st.HasData)

	_, err := q.Get(ctx)
	require.NoError(t, err)

	fail.Store(true)
	clock.Advance(4 * time.Second)
	_, err = q.Get(ctx)
	require.Error(t, err)

	// One immediate retry, then give up until the next poll.
	assert.Equal(t, int32(3), calls.Load())

	data, ok := q.Data()
	require.True(t, ok)
	assert.Equal(t, 1, data)

	st = q.State()
	assert.Equal(t, FetchError, st.Status)
	assert.True(t, st.HasData)
	assert.True(t, st.Stale)
	assert.Equal(t, 1, st.FailureCount)
	assert.Equal(t, "backend down", st.ErrorMessage())
}

func TestQuery_NeverLoadedFailureIsDistinct(t *testing.T) {
	c := newTestQueryClient(newFakeClock())
	q := NewQuery(c, QueryVolume, testPolicy, func(ctx context.Context) (int, error) {
		return 0, errors.New("unreachable")
	})

	_, err := q.Get(context.Background())
	require.Error(t, err)
	st := q.State()
	assert.Equal(t, FetchError, st.Status)
	assert.False(t, st.HasData)
}

func TestQuery_RetryDisabled(t *testing.T) {
	c := NewQueryClient(RetryPolicy{MaxRetries: 0}, nil, zap.NewNop())
	var calls atomic.Int32
	q := NewQuery(c, QueryChart, testPolicy, func(ctx context.Context) (int, error) {
		calls.Add(1)
		return 0, errors.New("nope")
	})

	_, err := q.Refetch(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestQuery_SupersededResultIsDiscarded(t *testing.T) {
	metrics := NewSyncMetrics(prometheus.NewRegistry())
	c := NewQueryClient(RetryPolicy{}, metrics, zap.NewNop())
	c.timeNow = newFakeClock().Now

	firstStarted := make(chan struct{})
	releaseFirst := make(chan struct{})
	var calls atomic.Int32
	q := NewQuery(c, QueryStatus, testPolicy, func(ctx context.Context) (string, error) {
		if calls.Add(1) == 1 {
			close(firstStarted)
			<-releaseFirst
			return "old", nil
		}
		return "new", nil
	})
	ctx := context.Background()

	firstResult := make(chan string, 1)
	go func() {
		v, _ := q.Refetch(ctx)
		firstResult <- v
	}()
	<-firstStarted

	require.NoError(t, c.Invalidate(ctx, QueryStatus))
	v, err := q.Refetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "new", v)

	close(releaseFirst)
	assert.Equal(t, "new", <-firstResult)

	data, _ := q.Data()
	assert.Equal(t, "new", data)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.discarded.WithLabelValues(string(QueryStatus))))
}

func TestQuery_DisableDropsInFlightResult(t *testing.T) {
	c := newTestQueryClient(newFakeClock())
	started := make(chan struct{})
	release := make(chan struct{})
	q := NewQuery(c, QuerySignals, testPolicy, func(ctx context.Context) (int, error) {
		close(started)
		<-release
		return 42, nil
	})

	errCh := make(chan error, 1)
	go func() {
		_, err := q.Refetch(context.Background())
		errCh <- err
	}()
	<-started

	q.SetEnabled(false)
	close(release)

	assert.ErrorIs(t, <-errCh, ErrQueryDisabled)
	_, ok := q.Data()
	assert.False(t, ok)

	_, err := q.Get(context.Background())
	assert.ErrorIs(t, err, ErrQueryDisabled)
}

func TestQuery_LiveOffDropsInFlightResult(t *testing.T) {
	c := newTestQueryClient(newFakeClock())
	started := make(chan struct{})
	release := make(chan struct{})
	q := NewQuery(c, QueryStatus, testPolicy, func(ctx context.Context) (int, error) {
		close(started)
		<-release
		return 42, nil
	})

	done := make(chan struct{})
	go func() {
		q.poll(context.Background())
		close(done)
	}()
	<-started

	c.SetLive(false)
	close(release)
	<-done

	_, ok := q.Data()
	assert.False(t, ok)
	st := q.State()
	assert.False(t, st.Fetching)
	assert.Equal(t, FetchPending, st.Status)
	assert.Equal(t, PhaseAwaitingFirstLoad, c.Phase())
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.discarded.WithLabelValues(string(QueryStatus))))
}

func TestQuery_ExplicitRefetchWhileLiveOff(t *testing.T) {
	c := newTestQueryClient(newFakeClock())
	var calls atomic.Int32
	q := NewQuery(c, QueryStatus, testPolicy, countingFetch(&calls))
	c.SetLive(false)

	v, err := q.Refetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, PhaseSteady, c.Phase())
}

func TestQueryClient_ResetDuringGateFetchKeepsAwaitingPhase(t *testing.T) {
	c := newTestQueryClient(newFakeClock())
	started := make(chan struct{})
	release := make(chan struct{})
	q := NewQuery(c, QueryStatus, testPolicy, func(ctx context.Context) (int, error) {
		close(started)
		<-release
		return 1, nil
	})

	done := make(chan struct{})
	go func() {
		q.poll(context.Background())
		close(done)
	}()
	<-started

	c.Reset()
	close(release)
	<-done

	assert.Equal(t, PhaseAwaitingFirstLoad, c.Phase())
	assert.False(t, q.State().HasData)
	assert.False(t, c.ShowFetching(QueryStatus))
}

func TestQuery_PollSkipsFreshAndPausedQueries(t *testing.T) {
	clock := newFakeClock()
	c := newTestQueryClient(clock)
	var calls atomic.Int32
	q := NewQuery(c, QueryStatus, testPolicy, countingFetch(&calls))
	ctx := context.Background()

	q.poll(ctx)
	assert.Equal(t, int32(1), calls.Load())

	q.poll(ctx)
	assert.Equal(t, int32(1), calls.Load(), "fresh data must not be refetched")

	clock.Advance(5 * time.Second)
	c.SetLive(false)
	q.poll(ctx)
	assert.Equal(t, int32(1), calls.Load(), "live updates off")

	c.SetLive(true)
	assert.Equal(t, int32(1), calls.Load(), "re-enabling does not force a fetch")
	q.poll(ctx)
	assert.Equal(t, int32(2), calls.Load())
}

func TestQueryClient_FirstLoadGate(t *testing.T) {
	c := newTestQueryClient(newFakeClock())
	var statusFail atomic.Bool
	statusFail.Store(true)
	status := NewQuery(c, QueryStatus, testPolicy, func(ctx context.Context) (int, error) {
		if statusFail.Load() {
			return 0, errors.New("not yet")
		}
		return 1, nil
	})

	tradesStarted := make(chan struct{})
	tradesRelease := make(chan struct{})
	trades := NewQuery(c, QueryTrades, testPolicy, func(ctx context.Context) (int, error) {
		close(tradesStarted)
		<-tradesRelease
		return 1, nil
	})
	ctx := context.Background()

	go func() {
		_, _ = trades.Refetch(ctx)
	}()
	<-tradesStarted

	require.Eventually(t, func() bool {
		st, _ := c.State(QueryTrades)
		return st.Fetching
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, PhaseAwaitingFirstLoad, c.Phase())
	assert.False(t, c.ShowFetching(QueryTrades))

	_, err := status.Refetch(ctx)
	require.Error(t, err)
	assert.Equal(t, PhaseAwaitingFirstLoad, c.Phase(), "failure must not open the gate")

	statusFail.Store(false)
	_, err = status.Refetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, PhaseSteady, c.Phase())
	assert.True(t, c.ShowFetching(QueryTrades))

	close(tradesRelease)
	require.Eventually(t, func() bool { return !c.ShowFetching(QueryTrades) }, time.Second, 5*time.Millisecond)
}

func TestQueryClient_StartPollsUntilStopped(t *testing.T) {
	c := newTestQueryClient(nil)
	var calls atomic.Int32
	NewQuery(c, QueryStatus, QueryPolicy{Interval: 10 * time.Millisecond, StaleTime: time.Millisecond}, countingFetch(&calls))

	c.Start(context.Background())
	require.True(t, c.Running())
	require.Eventually(t, func() bool { return calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)

	c.Stop()
	assert.False(t, c.Running())
	after := calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, calls.Load())
}

func TestQueryClient_InvalidateRefetchesWhileRunning(t *testing.T) {
	c := newTestQueryClient(newFakeClock())
	var calls atomic.Int32
	q := NewQuery(c, QueryPositions, QueryPolicy{Interval: time.Hour, StaleTime: time.Hour}, countingFetch(&calls))
	ctx := context.Background()

	c.Start(ctx)
	defer c.Stop()
	require.Eventually(t, func() bool { return q.State().HasData }, time.Second, 5*time.Millisecond)

	require.NoError(t, c.Invalidate(ctx, QueryPositions))
	assert.Equal(t, int32(2), calls.Load())
	st := q.State()
	assert.False(t, st.Invalidated)
	assert.False(t, st.Stale)
}

func TestQueryClient_InvalidateUnknownQuery(t *testing.T) {
	c := newTestQueryClient(nil)
	err := c.Invalidate(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnknownQuery)
}

func TestQueryClient_DuplicateKeyPanics(t *testing.T) {
	c := newTestQueryClient(nil)
	var calls atomic.Int32
	NewQuery(c, QueryStatus, testPolicy, countingFetch(&calls))
	assert.Panics(t, func() {
		NewQuery(c, QueryStatus, testPolicy, countingFetch(&calls))
	})
}

func TestQueryClient_ResetDropsCacheAndPhase(t *testing.T) {
	c := newTestQueryClient(newFakeClock())
	var calls atomic.Int32
	q := NewQuery(c, QueryStatus, testPolicy, countingFetch(&calls))

	_, err := q.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, PhaseSteady, c.Phase())

	c.Reset()
	assert.Equal(t, PhaseAwaitingFirstLoad, c.Phase())
	_, ok := q.Data()
	assert.False(t, ok)
}

func TestQueryClient_SubscribeSignalsChanges(t *testing.T) {
	c := newTestQueryClient(newFakeClock())
	ch, cancel := c.Subscribe()
	defer cancel()

	c.SetLive(false)
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("expected change signal")
	}
}
