package auth

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arturoeanton/bookverse/internal/domain"
)

func TestHub_DeliversInOrderToEverySubscriber(t *testing.T) {
	h := NewHub()
	a := h.Subscribe()
	b := h.Subscribe()
	defer a.Close()
	defer b.Close()

	kinds := []domain.AuthEventKind{
		domain.AuthEventSignedIn,
		domain.AuthEventTokenRefreshed,
		domain.AuthEventSignedOut,
	}
	for _, k := range kinds {
		h.Publish(domain.AuthEvent{Kind: k})
	}

	for _, sub := range []interface {
		Events() <-chan domain.AuthEvent
	}{a, b} {
		for _, want := range kinds {
			select {
			case got := <-sub.Events():
				assert.Equal(t, want, got.Kind)
			case <-time.After(time.Second):
				t.Fatal("event not delivered")
			}
		}
	}
}

func TestHub_CloseUnblocksPublisher(t *testing.T) {
	h := NewHub()
	sub := h.Subscribe()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		// More than the buffer holds; nobody reads.
		for i := 0; i < subscriberBuffer*2; i++ {
			h.Publish(domain.AuthEvent{Kind: domain.AuthEventTokenRefreshed})
		}
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher still blocked after close")
	}
	assert.Equal(t, 0, h.Len())

	// Channel is closed once drained.
	for range sub.Events() {
	}
}
