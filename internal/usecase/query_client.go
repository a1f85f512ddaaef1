package usecase

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// LoadPhase gates user-visible fetching indicators. The client starts in
// PhaseAwaitingFirstLoad and moves to PhaseSteady exactly once, on the first
// successful fetch of the gate query.
type LoadPhase int

const (
	PhaseAwaitingFirstLoad LoadPhase = iota
	PhaseSteady
)

func (p LoadPhase) String() string {
	if p == PhaseSteady {
		return "steady"
	}
	return "awaiting_first_load"
}

// RetryPolicy bounds immediate retries of a failed fetch before falling back
// to the next scheduled poll.
type RetryPolicy struct {
	MaxRetries int           `yaml:"max_retries"`
	Delay      time.Duration `yaml:"delay"`
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 1, Delay: time.Second}
}

type queryHandle interface {
	Key() QueryKey
	Policy() QueryPolicy
	State() QueryState
	SetEnabled(enabled bool)
	supersede()
	invalidate()
	reset()
	isEnabled() bool
	isFetching() bool
	refetch(ctx context.Context) error
	loop(ctx context.Context)
}

// QueryClient owns every cached query result. Nothing else writes into query
// state; mutations go through Invalidate.
type QueryClient struct {
	logger  *zap.Logger
	metrics *SyncMetrics
	retry   RetryPolicy
	gateKey QueryKey
	live    atomic.Bool

	timeNow func() time.Time

	mu      sync.RWMutex
	queries map[QueryKey]queryHandle
	order   []QueryKey
	phase   LoadPhase

	subMu   sync.Mutex
	subs    map[int]chan struct{}
	nextSub int

	runMu   sync.Mutex
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewQueryClient(retry RetryPolicy, metrics *SyncMetrics, logger *zap.Logger) *QueryClient {
	if retry.MaxRetries < 0 {
		retry.MaxRetries = 0
	}
	c := &QueryClient{
		logger:  logger.Named("sync"),
		metrics: metrics,
		retry:   retry,
		gateKey: QueryStatus,
		timeNow: time.Now,
		queries: make(map[QueryKey]queryHandle),
		subs:    make(map[int]chan struct{}),
		baseCtx: context.Background(),
	}
	c.live.Store(true)
	metrics.setLive(true)
	return c
}

func (c *QueryClient) now() time.Time {
	return c.timeNow()
}

func (c *QueryClient) register(h queryHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.queries[h.Key()]; dup {
		panic(fmt.Sprintf("usecase: query %q registered twice", h.Key()))
	}
	c.queries[h.Key()] = h
	c.order = append(c.order, h.Key())
}

func (c *QueryClient) handles() []queryHandle {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]queryHandle, 0, len(c.order))
	for _, k := range c.order {
		out = append(out, c.queries[k])
	}
	return out
}

func (c *QueryClient) lookup(keys []QueryKey) ([]queryHandle, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]queryHandle, 0, len(keys))
	for _, k := range keys {
		h, ok := c.queries[k]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownQuery, k)
		}
		out = append(out, h)
	}
	return out, nil
}

func (c *QueryClient) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(c.retry.Delay), uint64(c.retry.MaxRetries))
	return backoff.WithContext(b, ctx)
}

func (c *QueryClient) fetchContext() context.Context {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	return c.baseCtx
}

// Start begins polling every registered query, each on its own goroutine.
func (c *QueryClient) Start(ctx context.Context) {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.cancel != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.baseCtx, c.cancel = runCtx, cancel

	hs := c.handles()
	for _, h := range hs {
		c.wg.Add(1)
		go func(h queryHandle) {
			defer c.wg.Done()
			h.loop(runCtx)
		}(h)
	}
	c.logger.Info("Sync layer started", zap.Int("queries", len(hs)))
}

// Stop cancels polling and in-flight fetches and waits for the pollers.
func (c *QueryClient) Stop() {
	c.runMu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.runMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	c.wg.Wait()

	c.runMu.Lock()
	c.baseCtx = context.Background()
	c.runMu.Unlock()
	c.logger.Info("Sync layer stopped")
}

func (c *QueryClient) Running() bool {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	return c.cancel != nil
}

// Reset drops every cached result and returns to PhaseAwaitingFirstLoad.
func (c *QueryClient) Reset() {
	for _, h := range c.handles() {
		h.reset()
	}
	c.mu.Lock()
	c.phase = PhaseAwaitingFirstLoad
	c.mu.Unlock()
	c.notify()
}

// SetLive is the global live-updates switch. Turning it off drops the result
// of every fetch still in flight. Turning it back on does not force a
// refetch; each query resumes on its next tick.
func (c *QueryClient) SetLive(on bool) {
	if c.live.Swap(on) == on {
		return
	}
	if !on {
		for _, h := range c.handles() {
			h.supersede()
		}
	}
	c.metrics.setLive(on)
	c.logger.Info("Live updates toggled", zap.Bool("live", on))
	c.notify()
}

func (c *QueryClient) Live() bool {
	return c.live.Load()
}

func (c *QueryClient) SetEnabled(key QueryKey, enabled bool) error {
	hs, err := c.lookup([]QueryKey{key})
	if err != nil {
		return err
	}
	hs[0].SetEnabled(enabled)
	return nil
}

// Invalidate marks the queries untrusted, drops their in-flight results and,
// while the client is running, refetches the enabled ones in parallel. It
// returns once those refetches settle; fetch failures are recorded on the
// query, not returned.
func (c *QueryClient) Invalidate(ctx context.Context, keys ...QueryKey) error {
	hs, err := c.markInvalid(keys)
	if err != nil {
		return err
	}
	if !c.Running() {
		return nil
	}
	c.refetchEnabled(ctx, hs)
	return ctx.Err()
}

func (c *QueryClient) markInvalid(keys []QueryKey) ([]queryHandle, error) {
	hs, err := c.lookup(keys)
	if err != nil {
		return nil, err
	}
	for _, h := range hs {
		h.invalidate()
	}
	c.notify()
	return hs, nil
}

func (c *QueryClient) refetchEnabled(ctx context.Context, hs []queryHandle) {
	g, gctx := errgroup.WithContext(ctx)
	for _, h := range hs {
		if !h.isEnabled() {
			continue
		}
		g.Go(func() error {
			_ = h.refetch(gctx)
			return nil
		})
	}
	_ = g.Wait()
}

func (c *QueryClient) InvalidateAll(ctx context.Context) error {
	return c.Invalidate(ctx, c.Keys()...)
}

// Prefetch loads every enabled query in parallel, honoring staleness.
func (c *QueryClient) Prefetch(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, h := range c.handles() {
		if !h.isEnabled() {
			continue
		}
		g.Go(func() error {
			st := h.State()
			if st.HasData && !st.Stale {
				return nil
			}
			return h.refetch(gctx)
		})
	}
	return g.Wait()
}

func (c *QueryClient) Keys() []QueryKey {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]QueryKey(nil), c.order...)
}

func (c *QueryClient) State(key QueryKey) (QueryState, error) {
	hs, err := c.lookup([]QueryKey{key})
	if err != nil {
		return QueryState{}, err
	}
	return hs[0].State(), nil
}

func (c *QueryClient) States() []QueryState {
	hs := c.handles()
	out := make([]QueryState, 0, len(hs))
	for _, h := range hs {
		out = append(out, h.State())
	}
	return out
}

func (c *QueryClient) Phase() LoadPhase {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.phase
}

// ShowFetching reports whether a fetching indicator may be shown for key.
// Always false until the gate query has loaded once.
func (c *QueryClient) ShowFetching(key QueryKey) bool {
	if c.Phase() != PhaseSteady {
		return false
	}
	hs, err := c.lookup([]QueryKey{key})
	if err != nil {
		return false
	}
	return hs[0].isFetching()
}

// fetchSucceeded is called with the query's lock held.
func (c *QueryClient) fetchSucceeded(key QueryKey) {
	if key != c.gateKey {
		return
	}
	c.mu.Lock()
	if c.phase != PhaseAwaitingFirstLoad {
		c.mu.Unlock()
		return
	}
	c.phase = PhaseSteady
	c.mu.Unlock()
	c.logger.Info("First load complete", zap.String("gate", string(key)))
}

// Subscribe returns a channel signalled (coalesced) whenever any query state,
// the phase or the live switch changes.
func (c *QueryClient) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.subMu.Unlock()

	return ch, func() {
		c.subMu.Lock()
		delete(c.subs, id)
		c.subMu.Unlock()
	}
}

func (c *QueryClient) notify() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
