package notify

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Broker fans notification payloads out to the live streams of each recipient.
type Broker struct {
	subscribers map[uuid.UUID]map[chan string]bool // userID -> set of subscriber channels
	mu          sync.RWMutex
}

// NewBroker creates a new notification broker
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[uuid.UUID]map[chan string]bool),
	}
}

// Subscribe creates a new subscription for a user's notifications
func (b *Broker) Subscribe(userID uuid.UUID) chan string {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan string, 32)

	if b.subscribers[userID] == nil {
		b.subscribers[userID] = make(map[chan string]bool)
	}
	b.subscribers[userID][ch] = true

	return ch
}

// Unsubscribe removes a subscription
func (b *Broker) Unsubscribe(userID uuid.UUID, ch chan string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subs, exists := b.subscribers[userID]; exists {
		if !subs[ch] {
			return
		}
		delete(subs, ch)
		close(ch)

		if len(subs) == 0 {
			delete(b.subscribers, userID)
		}
	}
}

// Deliver sends a payload to all subscribers of a user. Slow subscribers
// miss payloads rather than block the sender.
func (b *Broker) Deliver(userID uuid.UUID, payload string) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers[userID] {
		select {
		case ch <- payload:
		default:
		}
	}
}

// Publish implements Publisher for single-instance deployments.
func (b *Broker) Publish(_ context.Context, userID uuid.UUID, payload string) error {
	b.Deliver(userID, payload)
	return nil
}

// HasSubscribers returns true if there are active subscribers for a user
func (b *Broker) HasSubscribers(userID uuid.UUID) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.subscribers[userID]) > 0
}
