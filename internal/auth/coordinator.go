package auth

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/connectly/connectly-client/internal/credentials"
	"github.com/connectly/connectly-client/internal/logger"
	"github.com/connectly/connectly-client/internal/metrics"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// DefaultRefreshTimeout matches the ordinary call timeout.
const DefaultRefreshTimeout = 90 * time.Second

const flightKey = "refresh"

// State is the coordinator's observable state.
type State int32

const (
	StateIdle State = iota
	StateRefreshing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRefreshing:
		return "refreshing"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Coordinator makes sure at most one refresh exchange is in flight. Callers
// that need a new access token while an exchange is running join it and get
// its outcome.
//
// The exchange is detached from the context of the caller that started it:
// a caller that gives up stops waiting, the exchange keeps going for everyone
// else and is bounded by the refresh timeout instead.
type Coordinator struct {
	store     credentials.Store
	exchanger TokenExchanger
	timeout   time.Duration
	logger    *zerolog.Logger
	metrics   *metrics.Metrics

	group   singleflight.Group
	state   atomic.Int32
	waiters atomic.Int64
}

type Option func(*Coordinator)

// WithTimeout bounds each exchange. Expiry counts as a failed refresh.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithLogger(l *zerolog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

func NewCoordinator(store credentials.Store, exchanger TokenExchanger, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:     store,
		exchanger: exchanger,
		timeout:   DefaultRefreshTimeout,
		logger:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State reports whether an exchange is currently in flight.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// Waiters is the number of callers currently waiting in Refresh.
func (c *Coordinator) Waiters() int64 {
	return c.waiters.Load()
}

// Refresh returns an access token newer than stale, the token the caller's
// rejected request carried. If another exchange already replaced stale, the
// stored token is returned without a network call.
//
// Errors matching ErrRefreshFailed are terminal: the store has been cleared.
// Any other error is the caller's own context ending.
func (c *Coordinator) Refresh(ctx context.Context, stale string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if current := credentials.AccessToken(ctx, c.store); current != "" && current != stale {
		c.metrics.Refresh(metrics.OutcomeReused)
		return current, nil
	}

	c.metrics.SetWaiters(c.waiters.Add(1))
	defer func() { c.metrics.SetWaiters(c.waiters.Add(-1)) }()

	ch := c.group.DoChan(flightKey, func() (interface{}, error) {
		return c.exchange(context.WithoutCancel(ctx), stale)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		c.logger.Debug().Err(ctx.Err()).Msg("Caller stopped waiting for token refresh")
		return "", ctx.Err()
	}
}

func (c *Coordinator) exchange(ctx context.Context, stale string) (string, error) {
	c.state.Store(int32(StateRefreshing))
	defer c.state.Store(int32(StateIdle))

	pair, ok := c.store.Read(ctx)
	if ok && pair.Access != "" && pair.Access != stale {
		c.metrics.Refresh(metrics.OutcomeReused)
		return pair.Access, nil
	}
	if !ok || pair.Refresh == "" {
		return "", c.fail(ctx, ErrNoRefreshToken)
	}

	c.logger.Info().
		Str("access_token", logger.Preview(stale)).
		Msg("🔄 Access token rejected, refreshing...")

	exchangeCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	started := time.Now()
	newTokens, err := c.exchanger.Exchange(exchangeCtx, pair.Refresh)
	if err != nil {
		return "", c.fail(ctx, err)
	}

	rotated := newTokens.Refresh != ""
	err = c.store.Update(ctx, func(cur credentials.Pair) credentials.Pair {
		cur.Access = newTokens.Access
		if rotated {
			cur.Refresh = newTokens.Refresh
		}
		return cur
	})
	if err != nil {
		// The new token is still good for the waiting callers.
		c.logger.Error().Err(err).Msg("❌ Failed to update tokens in storage")
	}

	c.metrics.Refresh(metrics.OutcomeSuccess)
	c.logger.Info().
		Bool("rotated", rotated).
		Dur("duration", time.Since(started)).
		Msg("✅ Access token refreshed successfully")

	return newTokens.Access, nil
}

// fail clears the session so every waiter, and every later call, sees an
// anonymous store.
func (c *Coordinator) fail(ctx context.Context, cause error) error {
	if err := c.store.Clear(ctx); err != nil {
		c.logger.Error().Err(err).Msg("❌ Failed to clear credentials after refresh failure")
	}
	c.metrics.Refresh(metrics.OutcomeFailure)
	c.logger.Error().Err(cause).Msg("❌ Failed to refresh access token, session cleared")
	return fmt.Errorf("%w: %w", ErrRefreshFailed, cause)
}
