// Package events listens to the backend's change feed and turns pushed
// events into sync nudges. Missing an event is harmless: the periodic
// pass catches up.
package events

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/geocapsule/internal/api"
	"github.com/dmitrijs2005/geocapsule/internal/client/syncer"
	"github.com/dmitrijs2005/geocapsule/internal/clock"
	"github.com/dmitrijs2005/geocapsule/internal/logging"
	"github.com/gorilla/websocket"
)

// TokenSource yields the bearer token presented when dialing.
type TokenSource interface {
	AccessToken() string
}

// Handler receives every decoded event.
type Handler func(ctx context.Context, ev api.ChangeEvent)

const (
	defaultBackoffBase = time.Second
	defaultBackoffMax  = time.Minute
)

// Subscriber keeps one websocket to the events endpoint open, redialing
// with capped exponential backoff.
type Subscriber struct {
	url    string
	tokens TokenSource
	dialer *websocket.Dialer
	clock  clock.Clock
	log    logging.Logger

	backoffBase time.Duration
	backoffMax  time.Duration
}

type Option func(*Subscriber)

func WithBackoff(base, limit time.Duration) Option {
	return func(s *Subscriber) {
		s.backoffBase = base
		s.backoffMax = limit
	}
}

func WithDialer(d *websocket.Dialer) Option {
	return func(s *Subscriber) { s.dialer = d }
}

// NewSubscriber derives the websocket URL from the REST base URL.
func NewSubscriber(baseURL string, tokens TokenSource, clk clock.Clock, log logging.Logger, opts ...Option) *Subscriber {
	s := &Subscriber{
		url:         WebsocketURL(baseURL),
		tokens:      tokens,
		dialer:      websocket.DefaultDialer,
		clock:       clk,
		log:         log,
		backoffBase: defaultBackoffBase,
		backoffMax:  defaultBackoffMax,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// WebsocketURL maps http(s)://host/... to ws(s)://host/api/events.
func WebsocketURL(baseURL string) string {
	u := strings.TrimRight(baseURL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + api.PathEvents
}

// Run delivers events to h until ctx is done.
func (s *Subscriber) Run(ctx context.Context, h Handler) error {
	attempts := 0
	for {
		delivered, err := s.session(ctx, h)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if delivered {
			attempts = 0
		}
		attempts++

		wait := syncer.Backoff(attempts, s.backoffBase, s.backoffMax)
		s.log.Debug(ctx, "events stream closed", "error", err, "retry_in", wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.clock.After(wait):
		}
	}
}

// session runs one connection. delivered reports whether at least one
// event got through, which resets the backoff.
func (s *Subscriber) session(ctx context.Context, h Handler) (delivered bool, err error) {
	header := http.Header{}
	if tok := s.tokens.AccessToken(); tok != "" {
		header.Set("Authorization", "Bearer "+tok)
	}

	conn, resp, err := s.dialer.DialContext(ctx, s.url, header)
	if err != nil {
		if resp != nil {
			return false, fmt.Errorf("dial %s: status %d: %w", s.url, resp.StatusCode, err)
		}
		return false, fmt.Errorf("dial %s: %w", s.url, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		var ev api.ChangeEvent
		if err := conn.ReadJSON(&ev); err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) && closeErr.Code == websocket.CloseNormalClosure {
				return delivered, nil
			}
			return delivered, err
		}
		delivered = true
		h(ctx, ev)
	}
}

// TriggerOn returns a handler that nudges e for every event.
func TriggerOn(e interface{ Trigger() }) Handler {
	return func(context.Context, api.ChangeEvent) { e.Trigger() }
}
