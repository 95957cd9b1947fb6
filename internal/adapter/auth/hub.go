package auth

import (
	"sync"

	"github.com/arturoeanton/bookverse/internal/domain"
	"github.com/arturoeanton/bookverse/internal/port"
)

const subscriberBuffer = 16

// Hub fans identity-change events out to subscribers. Every subscriber
// receives every event in publish order; a full subscriber blocks the
// publisher until it reads or closes.
type Hub struct {
	mu   sync.Mutex
	subs map[*subscription]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[*subscription]struct{})}
}

// Subscribe opens a new subscription.
func (h *Hub) Subscribe() port.Subscription {
	s := &subscription{
		hub:  h,
		ch:   make(chan domain.AuthEvent, subscriberBuffer),
		done: make(chan struct{}),
	}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	return s
}

// Publish delivers evt to every open subscription.
func (h *Hub) Publish(evt domain.AuthEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		select {
		case s.ch <- evt:
		case <-s.done:
		}
	}
}

// Len returns the number of open subscriptions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

type subscription struct {
	hub  *Hub
	ch   chan domain.AuthEvent
	done chan struct{}
	once sync.Once
}

func (s *subscription) Events() <-chan domain.AuthEvent { return s.ch }

func (s *subscription) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.hub.mu.Lock()
		delete(s.hub.subs, s)
		close(s.ch)
		s.hub.mu.Unlock()
	})
	return nil
}
