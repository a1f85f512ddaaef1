package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/vitos/loki_dashboard/internal/domain"
	"go.uber.org/zap"
)

type MutationName string

const (
	MutationPause               MutationName = "pause"
	MutationResume              MutationName = "resume"
	MutationEmergencyStop       MutationName = "emergency-stop"
	MutationClearQueue          MutationName = "clear-queue"
	MutationClearDatabase       MutationName = "clear-database"
	MutationClosePosition       MutationName = "close-position"
	MutationDownloadDatabase    MutationName = "download-database"
	MutationResetCircuitBreaker MutationName = "reset-circuit-breaker"
	MutationTripCircuitBreaker  MutationName = "trip-circuit-breaker"
)

const GenericFailureMessage = "Something went wrong. Please try again."

type mutationDef struct {
	invalidates []QueryKey
	all         bool
	success     string
	failure     string
}

var mutationDefs = map[MutationName]mutationDef{
	MutationPause:         {invalidates: []QueryKey{QueryStatus}, success: "Bot paused", failure: "Failed to pause bot"},
	MutationResume:        {invalidates: []QueryKey{QueryStatus}, success: "Bot resumed", failure: "Failed to resume bot"},
	MutationEmergencyStop: {invalidates: []QueryKey{QueryStatus}, success: "Emergency stop engaged", failure: "Emergency stop failed"},
	MutationClearQueue:    {invalidates: []QueryKey{QueryStatus}, success: "Trade queue cleared", failure: "Failed to clear queue"},
	MutationClearDatabase: {all: true, success: "Database cleared", failure: "Failed to clear database"},
	MutationClosePosition: {
		invalidates: []QueryKey{QueryPositions, QueryStatus, QueryMetrics},
		success:     "Position closed",
		failure:     "Failed to close position",
	},
	MutationDownloadDatabase:    {success: "Database export ready", failure: "Failed to download database"},
	MutationResetCircuitBreaker: {invalidates: []QueryKey{QueryStatus, QueryHealth}, success: "Circuit breaker reset", failure: "Failed to reset circuit breaker"},
	MutationTripCircuitBreaker:  {invalidates: []QueryKey{QueryStatus, QueryHealth}, success: "Circuit breaker tripped", failure: "Failed to trip circuit breaker"},
}

// Invalidates returns the queries a successful mutation refreshes.
func Invalidates(name MutationName, all []QueryKey) []QueryKey {
	def := mutationDefs[name]
	if def.all {
		return append([]QueryKey(nil), all...)
	}
	return append([]QueryKey(nil), def.invalidates...)
}

// Controls issues control actions against the bot. A success invalidates the
// affected queries; a failure invalidates nothing and is published as a toast.
type Controls struct {
	api      domain.BotAPI
	client   *QueryClient
	notifier *Notifier
	metrics  *SyncMetrics
	logger   *zap.Logger

	mu      sync.Mutex
	pending map[MutationName]int

	refreshTimeout time.Duration
	refreshes      sync.WaitGroup
}

// DefaultRefreshTimeout bounds the background refetch that follows a
// successful mutation.
const DefaultRefreshTimeout = 15 * time.Second

func NewControls(api domain.BotAPI, client *QueryClient, notifier *Notifier, metrics *SyncMetrics, logger *zap.Logger) *Controls {
	return &Controls{
		api:      api,
		client:   client,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger.Named("controls"),
		pending:  make(map[MutationName]int),

		refreshTimeout: DefaultRefreshTimeout,
	}
}

// Pending reports whether a mutation of that name is in progress.
func (c *Controls) Pending(name MutationName) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending[name] > 0
}

func (c *Controls) PendingSet() map[MutationName]bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[MutationName]bool, len(c.pending))
	for name, n := range c.pending {
		if n > 0 {
			out[name] = true
		}
	}
	return out
}

func (c *Controls) Pause(ctx context.Context) error {
	_, err := mutate(ctx, c, MutationPause, "", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.api.Pause(ctx)
	})
	return err
}

func (c *Controls) Resume(ctx context.Context) error {
	_, err := mutate(ctx, c, MutationResume, "", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.api.Resume(ctx)
	})
	return err
}

func (c *Controls) EmergencyStop(ctx context.Context) error {
	_, err := mutate(ctx, c, MutationEmergencyStop, "", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.api.EmergencyStop(ctx)
	})
	return err
}

func (c *Controls) ClearQueue(ctx context.Context) error {
	_, err := mutate(ctx, c, MutationClearQueue, "", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.api.ClearQueue(ctx)
	})
	return err
}

// ClearDatabase wipes all bot data. confirm must equal
// domain.ClearDatabaseConfirmation; otherwise nothing is sent.
func (c *Controls) ClearDatabase(ctx context.Context, confirm string) error {
	if confirm != domain.ClearDatabaseConfirmation {
		return domain.ErrConfirmationRequired
	}
	_, err := mutate(ctx, c, MutationClearDatabase, "All trading data has been removed.", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.api.ClearDatabase(ctx, confirm)
	})
	return err
}

func (c *Controls) ClosePosition(ctx context.Context, token, reason string) (*domain.ClosePositionResult, error) {
	if token == "" {
		return nil, errors.New("token address is required")
	}
	return mutate(ctx, c, MutationClosePosition, "", func(ctx context.Context) (*domain.ClosePositionResult, error) {
		return c.api.ClosePosition(ctx, token, reason)
	})
}

func (c *Controls) DownloadDatabase(ctx context.Context, hours int) (*domain.DatabaseArchive, error) {
	return mutate(ctx, c, MutationDownloadDatabase, "", func(ctx context.Context) (*domain.DatabaseArchive, error) {
		return c.api.DownloadDatabase(ctx, hours)
	})
}

func (c *Controls) ResetCircuitBreaker(ctx context.Context) error {
	_, err := mutate(ctx, c, MutationResetCircuitBreaker, "", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.api.ResetCircuitBreaker(ctx)
	})
	return err
}

func (c *Controls) TripCircuitBreaker(ctx context.Context, reason string) error {
	if strings.TrimSpace(reason) == "" {
		return errors.New("trip reason is required")
	}
	_, err := mutate(ctx, c, MutationTripCircuitBreaker, reason, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.api.TripCircuitBreaker(ctx, reason)
	})
	return err
}

func mutate[R any](ctx context.Context, c *Controls, name MutationName, detail string, fn func(context.Context) (R, error)) (R, error) {
	def := mutationDefs[name]

	c.mu.Lock()
	c.pending[name]++
	c.mu.Unlock()
	c.client.notify()
	defer func() {
		c.mu.Lock()
		c.pending[name]--
		c.mu.Unlock()
		c.client.notify()
	}()

	res, err := fn(ctx)
	c.metrics.observeMutation(name, err)
	if err != nil {
		msg := FailureMessage(err)
		c.logger.Warn("Mutation failed", zap.String("mutation", string(name)), zap.Error(err))
		c.notifier.Notify(Toast{Title: def.failure, Description: msg, Variant: ToastDestructive})
		return res, err
	}

	c.logger.Info("Mutation succeeded", zap.String("mutation", string(name)))
	if keys := c.registered(Invalidates(name, c.client.Keys())); len(keys) > 0 {
		c.refresh(name, keys)
	}

	if detail == "" {
		detail = successDetail(res)
	}
	c.notifier.Notify(Toast{Title: def.success, Description: detail, Variant: ToastSuccess})
	return res, nil
}

// refresh marks keys invalid before returning, so no later read serves the
// pre-mutation value as fresh. The refetch itself runs off the request path,
// bounded by refreshTimeout and cut short by QueryClient.Stop.
func (c *Controls) refresh(name MutationName, keys []QueryKey) {
	hs, err := c.client.markInvalid(keys)
	if err != nil {
		c.logger.Warn("Invalidation failed", zap.String("mutation", string(name)), zap.Error(err))
		return
	}
	if !c.client.Running() {
		return
	}

	ctx, cancel := context.WithTimeout(c.client.fetchContext(), c.refreshTimeout)
	c.refreshes.Add(1)
	go func() {
		defer c.refreshes.Done()
		defer cancel()
		c.client.refetchEnabled(ctx, hs)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			c.logger.Warn("Refresh after mutation timed out",
				zap.String("mutation", string(name)),
				zap.Duration("timeout", c.refreshTimeout))
		}
	}()
}

// Wait blocks until the refreshes started by earlier mutations settle.
func (c *Controls) Wait() {
	c.refreshes.Wait()
}

func (c *Controls) registered(keys []QueryKey) []QueryKey {
	known := make(map[QueryKey]bool)
	for _, k := range c.client.Keys() {
		known[k] = true
	}
	out := keys[:0]
	for _, k := range keys {
		if known[k] {
			out = append(out, k)
		}
	}
	return out
}

func successDetail(res any) string {
	switch r := res.(type) {
	case *domain.ClosePositionResult:
		if r == nil {
			return ""
		}
		if r.Message != "" {
			return r.Message
		}
		return fmt.Sprintf("Received %.4f SOL", r.SOLReceived)
	case *domain.DatabaseArchive:
		if r == nil {
			return ""
		}
		return fmt.Sprintf("%s (%d bytes)", r.Filename, len(r.Data))
	}
	return ""
}

// FailureMessage turns a mutation error into user-facing text: the backend's
// error detail when it sent one, otherwise a generic message.
func FailureMessage(err error) string {
	var te *domain.TransportError
	if errors.As(err, &te) {
		if detail := errorDetail(te.Body); detail != "" {
			return detail
		}
	}
	if errors.Is(err, domain.ErrConfirmationRequired) {
		return "Confirmation is required for this action."
	}
	return GenericFailureMessage
}

func errorDetail(body []byte) string {
	body = []byte(strings.TrimSpace(string(body)))
	if len(body) == 0 {
		return ""
	}
	var payload struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
		Detail  string          `json:"detail"`
	}
	if body[0] == '{' {
		if json.Unmarshal(body, &payload) != nil {
			return ""
		}
		var s string
		if json.Unmarshal(payload.Error, &s) == nil && s != "" {
			return s
		}
		var nested struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(payload.Error, &nested) == nil && nested.Message != "" {
			return nested.Message
		}
		if payload.Message != "" {
			return payload.Message
		}
		return payload.Detail
	}
	if body[0] == '<' || !utf8.Valid(body) || len(body) > 200 {
		return ""
	}
	return string(body)
}
