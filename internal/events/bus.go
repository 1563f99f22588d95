// Package events provides an in-process publish/subscribe bus used to push
// enforcement activity to live UI observers.
package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Event is one published notification.
type Event struct {
	Name    string    `json:"name"`
	Payload any       `json:"payload,omitempty"`
	Time    time.Time `json:"time"`
}

// Bus fans published events out to all subscribers. Publishing never
// blocks: a subscriber that falls behind has events dropped.
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Event
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Publish delivers an event to all current subscribers.
func (b *Bus) Publish(name string, payload any) {
	evt := Event{Name: name, Payload: payload, Time: time.Now()}

	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subs {
		select {
		case ch <- evt:
		default:
			log.Warn().Int("subscriber", id).Str("event", name).
				Msg("events: subscriber channel full, dropping event")
		}
	}
}

// Subscribe registers a new subscriber. The returned cancel function must
// be called to release the subscription.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, 16)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
