package usecase

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type QueryKey string

const (
	QueryStatus    QueryKey = "status"
	QueryTrades    QueryKey = "trades"
	QueryPositions QueryKey = "positions"
	QueryMetrics   QueryKey = "metrics"
	QueryChart     QueryKey = "chart"
	QueryHealth    QueryKey = "health"
	QuerySignals   QueryKey = "signals"
	QueryVolume    QueryKey = "volume"
)

// DashboardQueries lists every dashboard query in display order.
var DashboardQueries = []QueryKey{
	QueryStatus, QueryTrades, QueryPositions, QueryMetrics,
	QueryChart, QueryHealth, QuerySignals, QueryVolume,
}

var (
	ErrQueryDisabled = errors.New("query disabled")
	ErrUnknownQuery  = errors.New("unknown query")

	errSuperseded = errors.New("fetch superseded")
)

// QueryPolicy is the refresh cadence of one query. StaleTime must be shorter
// than Interval.
type QueryPolicy struct {
	Interval  time.Duration `yaml:"interval" json:"interval"`
	StaleTime time.Duration `yaml:"stale_time" json:"staleTime"`
}

func DefaultPolicies() map[QueryKey]QueryPolicy {
	return map[QueryKey]QueryPolicy{
		QueryStatus:    {Interval: 5 * time.Second, StaleTime: 3 * time.Second},
		QueryTrades:    {Interval: 10 * time.Second, StaleTime: 8 * time.Second},
		QueryPositions: {Interval: 10 * time.Second, StaleTime: 8 * time.Second},
		QueryMetrics:   {Interval: 30 * time.Second, StaleTime: 25 * time.Second},
		QueryChart:     {Interval: 60 * time.Second, StaleTime: 50 * time.Second},
		QueryHealth:    {Interval: 15 * time.Second, StaleTime: 12 * time.Second},
		QuerySignals:   {Interval: 5 * time.Second, StaleTime: 3 * time.Second},
		QueryVolume:    {Interval: 30 * time.Second, StaleTime: 25 * time.Second},
	}
}

type FetchStatus string

const (
	FetchPending FetchStatus = "pending"
	FetchSuccess FetchStatus = "success"
	FetchError   FetchStatus = "error"
)

// QueryState describes a query without its data. HasData with Status
// FetchError means the last good value is still being shown.
type QueryState struct {
	Key          QueryKey    `json:"key"`
	Status       FetchStatus `json:"status"`
	HasData      bool        `json:"hasData"`
	Fetching     bool        `json:"fetching"`
	Stale        bool        `json:"stale"`
	Invalidated  bool        `json:"invalidated"`
	Enabled      bool        `json:"enabled"`
	UpdatedAt    time.Time   `json:"updatedAt"`
	Err          error       `json:"-"`
	FailureCount int         `json:"failureCount"`
	Version      uint64      `json:"version"`
}

func (s QueryState) ErrorMessage() string {
	if s.Err == nil {
		return ""
	}
	return s.Err.Error()
}

type FetchFunc[T any] func(ctx context.Context) (T, error)

// Query is a named, independently polled read. Each result is tagged with the
// generation it was issued under; a result whose generation is no longer
// current (after invalidation, disable or reset) is dropped.
type Query[T any] struct {
	key     QueryKey
	policy  QueryPolicy
	fetch   FetchFunc[T]
	client  *QueryClient
	flights singleflight.Group

	mu        sync.Mutex
	data      T
	hasData   bool
	updatedAt time.Time
	err       error
	failures  int
	inFlight  int
	enabled   bool
	invalid   bool
	gen       uint64
	version   uint64
}

// NewQuery registers a query with the client. Keys must be unique.
func NewQuery[T any](c *QueryClient, key QueryKey, policy QueryPolicy, fetch FetchFunc[T]) *Query[T] {
	q := &Query[T]{
		key:     key,
		policy:  policy,
		fetch:   fetch,
		client:  c,
		enabled: true,
	}
	c.register(q)
	return q
}

func (q *Query[T]) Key() QueryKey       { return q.key }
func (q *Query[T]) Policy() QueryPolicy { return q.policy }

// Get serves the cached value while it is fresh and fetches otherwise.
// Concurrent callers share one in-flight request.
func (q *Query[T]) Get(ctx context.Context) (T, error) {
	q.mu.Lock()
	if q.freshLocked(q.client.now()) {
		data := q.data
		q.mu.Unlock()
		return data, nil
	}
	if !q.enabled {
		data, has := q.data, q.hasData
		q.mu.Unlock()
		if has {
			return data, nil
		}
		return data, ErrQueryDisabled
	}
	q.mu.Unlock()
	return q.Refetch(ctx)
}

// Refetch fetches regardless of staleness. It joins a fetch already in flight
// for the current generation and follows a superseded one with a new request.
func (q *Query[T]) Refetch(ctx context.Context) (T, error) {
	return q.fetchCurrent(ctx, true)
}

// fetchCurrent runs or joins the fetch for the current generation. With
// follow unset a superseded result ends the call with errSuperseded.
func (q *Query[T]) fetchCurrent(ctx context.Context, follow bool) (T, error) {
	var zero T
	for {
		q.mu.Lock()
		if !q.enabled {
			q.mu.Unlock()
			return zero, ErrQueryDisabled
		}
		gen := q.gen
		q.mu.Unlock()

		ch := q.flights.DoChan(strconv.FormatUint(gen, 10), func() (any, error) {
			return q.run(gen)
		})

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case res := <-ch:
			if errors.Is(res.Err, errSuperseded) && follow {
				continue
			}
			if res.Err != nil {
				return zero, res.Err
			}
			return res.Val.(T), nil
		}
	}
}

func (q *Query[T]) run(gen uint64) (any, error) {
	q.mu.Lock()
	q.inFlight++
	q.mu.Unlock()
	q.client.notify()

	ctx := q.client.fetchContext()
	start := time.Now()
	attempts := 0
	var data T
	op := func() error {
		attempts++
		d, err := q.fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		data = d
		return nil
	}
	err := backoff.Retry(op, q.client.backOff(ctx))
	q.client.metrics.observeFetch(q.key, err, attempts, time.Since(start))

	q.mu.Lock()
	q.inFlight--
	if gen != q.gen {
		q.mu.Unlock()
		q.client.metrics.observeDiscard(q.key)
		q.client.logger.Debug("Discarded superseded result", zap.String("query", string(q.key)))
		q.client.notify()
		return nil, errSuperseded
	}
	if err != nil {
		q.err = err
		q.failures++
		failures := q.failures
		q.mu.Unlock()
		q.client.logger.Warn("Query fetch failed",
			zap.String("query", string(q.key)),
			zap.Int("attempts", attempts),
			zap.Int("failures", failures),
			zap.Error(err))
		q.client.notify()
		return nil, err
	}
	q.data = data
	q.hasData = true
	q.updatedAt = q.client.now()
	q.err = nil
	q.failures = 0
	q.invalid = false
	q.version++
	// Phase moves before q.mu is released so a Reset cannot slip in between.
	q.client.fetchSucceeded(q.key)
	q.mu.Unlock()

	q.client.notify()
	return data, nil
}

func (q *Query[T]) freshLocked(now time.Time) bool {
	return q.hasData && !q.invalid && now.Sub(q.updatedAt) < q.policy.StaleTime
}

// Data returns the last successful result, stale or not.
func (q *Query[T]) Data() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.data, q.hasData
}

func (q *Query[T]) State() QueryState {
	_, st := q.Snapshot()
	return st
}

// Snapshot returns data and state read under one lock.
func (q *Query[T]) Snapshot() (T, QueryState) {
	now := q.client.now()
	q.mu.Lock()
	defer q.mu.Unlock()

	st := QueryState{
		Key:          q.key,
		HasData:      q.hasData,
		Fetching:     q.inFlight > 0,
		Stale:        !q.freshLocked(now),
		Invalidated:  q.invalid,
		Enabled:      q.enabled,
		UpdatedAt:    q.updatedAt,
		Err:          q.err,
		FailureCount: q.failures,
		Version:      q.version,
	}
	switch {
	case q.err != nil:
		st.Status = FetchError
	case q.hasData:
		st.Status = FetchSuccess
	default:
		st.Status = FetchPending
	}
	return q.data, st
}

// SetEnabled turns scheduled polling on or off. Disabling drops the result of
// any fetch still in flight.
func (q *Query[T]) SetEnabled(enabled bool) {
	q.mu.Lock()
	if q.enabled && !enabled {
		q.gen++
	}
	q.enabled = enabled
	q.mu.Unlock()
	q.client.notify()
}

// supersede drops the result of any fetch in flight without touching the
// cached value.
func (q *Query[T]) supersede() {
	q.mu.Lock()
	q.gen++
	q.mu.Unlock()
}

func (q *Query[T]) invalidate() {
	q.mu.Lock()
	q.gen++
	q.invalid = true
	q.mu.Unlock()
}

func (q *Query[T]) reset() {
	var zero T
	q.mu.Lock()
	q.gen++
	q.data = zero
	q.hasData = false
	q.updatedAt = time.Time{}
	q.err = nil
	q.failures = 0
	q.invalid = false
	q.version++
	q.mu.Unlock()
}

func (q *Query[T]) isEnabled() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.enabled
}

func (q *Query[T]) isFetching() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.inFlight > 0
}

func (q *Query[T]) refetch(ctx context.Context) error {
	_, err := q.Refetch(ctx)
	return err
}

// poll is one scheduling tick.
func (q *Query[T]) poll(ctx context.Context) {
	if !q.client.Live() {
		return
	}
	q.scheduled(ctx)
}

// scheduled fetches a stale enabled query on behalf of the poller. A result
// dropped by live-off, disable or invalidation is not chased with a new request.
func (q *Query[T]) scheduled(ctx context.Context) {
	q.mu.Lock()
	skip := !q.enabled || q.freshLocked(q.client.now())
	q.mu.Unlock()
	if skip {
		return
	}
	_, _ = q.fetchCurrent(ctx, false)
}

// loop loads the query once, then polls on its own interval until ctx ends.
func (q *Query[T]) loop(ctx context.Context) {
	q.scheduled(ctx)

	if q.policy.Interval <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(q.policy.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.poll(ctx)
		}
	}
}
