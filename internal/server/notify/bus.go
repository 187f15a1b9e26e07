// Package notify carries capsule change events from the service layer to
// connected websocket clients, across server instances when Redis is
// configured.
package notify

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/geocapsule/internal/api"
)

// Publisher is what the service layer needs.
type Publisher interface {
	Publish(ctx context.Context, ev api.ChangeEvent) error
}

// Bus fans change events out to every subscriber. The returned channel is
// closed once ctx is done.
type Bus interface {
	Publisher
	Subscribe(ctx context.Context) (<-chan api.ChangeEvent, error)
}

// subscriberBuffer bounds how far a slow subscriber may lag before events
// are dropped for it.
const subscriberBuffer = 64

// MemoryBus is a Bus for a single server instance.
type MemoryBus struct {
	mu   sync.RWMutex
	subs map[chan api.ChangeEvent]struct{}
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[chan api.ChangeEvent]struct{})}
}

func (b *MemoryBus) Publish(_ context.Context, ev api.ChangeEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context) (<-chan api.ChangeEvent, error) {
	ch := make(chan api.ChangeEvent, subscriberBuffer)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, ch)
		close(ch)
		b.mu.Unlock()
	}()
	return ch, nil
}
