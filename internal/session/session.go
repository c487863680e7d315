// Package session turns the stored credential pair into an observable
// session state.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/connectly/connectly-client/internal/credentials"
	"github.com/connectly/connectly-client/internal/logger"
	"github.com/connectly/connectly-client/internal/token"
	"github.com/rs/zerolog"
)

// State is a snapshot of the session. The zero value is an anonymous session.
type State struct {
	Authenticated bool
	// SubjectID and ExpiresAt come from the access token's claims and are
	// empty when the token cannot be decoded.
	SubjectID string
	ExpiresAt time.Time
	// CanRefresh reports whether a refresh token is stored.
	CanRefresh bool
}

// Expired reports whether the access token has a known expiry before now.
func (s State) Expired(now time.Time) bool {
	return s.Authenticated && !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Controller wraps a credentials.Store and publishes a new State to
// subscribers after every successful write or clear, including the ones the
// refresh coordinator performs.
//
// Listeners run synchronously, one notification at a time, and must not
// write to the Controller.
type Controller struct {
	store  credentials.Store
	logger *zerolog.Logger

	notifyMu sync.Mutex
	last     State

	mu        sync.Mutex
	nextID    int
	listeners map[int]func(State)
	order     []int
}

var _ credentials.Store = (*Controller)(nil)

func NewController(store credentials.Store, l *zerolog.Logger) *Controller {
	if l == nil {
		l = logger.Nop()
	}
	c := &Controller{
		store:     store,
		logger:    l,
		listeners: make(map[int]func(State)),
	}
	c.last = c.State(context.Background())
	return c
}

// State derives the current session state from the store.
func (c *Controller) State(ctx context.Context) State {
	p, ok := c.store.Read(ctx)
	if !ok {
		return State{}
	}
	return stateOf(p)
}

func stateOf(p credentials.Pair) State {
	s := State{
		Authenticated: p.Access != "",
		CanRefresh:    p.Refresh != "",
	}
	if p.Access == "" {
		return s
	}
	if claims, err := token.Parse(p.Access); err == nil {
		s.SubjectID = claims.SubjectID
		s.ExpiresAt = claims.ExpiresAt
	}
	return s
}

// Subscribe registers fn for state changes and returns a func that removes
// it. fn is not called with the current state; use State for that.
func (c *Controller) Subscribe(fn func(State)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.order = append(c.order, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			delete(c.listeners, id)
			for i, v := range c.order {
				if v == id {
					c.order = append(c.order[:i], c.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Login stores a freshly issued pair.
func (c *Controller) Login(ctx context.Context, p credentials.Pair) error {
	if err := c.Write(ctx, p); err != nil {
		return err
	}
	s := c.State(ctx)
	c.logger.Info().
		Str("subject_id", s.SubjectID).
		Time("expires_at", s.ExpiresAt).
		Msg("✅ Logged in")
	return nil
}

// Logout drops the stored pair.
func (c *Controller) Logout(ctx context.Context) error {
	if err := c.Clear(ctx); err != nil {
		return err
	}
	c.logger.Info().Msg("👋 Logged out")
	return nil
}

func (c *Controller) Read(ctx context.Context) (credentials.Pair, bool) {
	return c.store.Read(ctx)
}

func (c *Controller) Write(ctx context.Context, p credentials.Pair) error {
	if err := c.store.Write(ctx, p); err != nil {
		return err
	}
	c.publish(ctx)
	return nil
}

func (c *Controller) Update(ctx context.Context, fn func(credentials.Pair) credentials.Pair) error {
	if err := c.store.Update(ctx, fn); err != nil {
		return err
	}
	c.publish(ctx)
	return nil
}

func (c *Controller) Clear(ctx context.Context) error {
	if err := c.store.Clear(ctx); err != nil {
		return err
	}
	c.publish(ctx)
	return nil
}

func (c *Controller) Expiry(ctx context.Context) (time.Time, bool) {
	return c.store.Expiry(ctx)
}

// publish notifies listeners when the derived state differs from the last
// one published.
func (c *Controller) publish(ctx context.Context) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	s := c.State(ctx)
	if s == c.last {
		return
	}
	c.last = s

	c.mu.Lock()
	fns := make([]func(State), 0, len(c.order))
	for _, id := range c.order {
		fns = append(fns, c.listeners[id])
	}
	c.mu.Unlock()

	c.logger.Debug().
		Bool("authenticated", s.Authenticated).
		Str("subject_id", s.SubjectID).
		Int("listeners", len(fns)).
		Msg("Session state changed")

	for _, fn := range fns {
		fn(s)
	}
}
