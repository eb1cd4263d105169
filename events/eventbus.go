package events

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/meshpay/meshledger/logx"
)

const subscriberBuffer = 64

type SubscriberID string

// Subscriber receives the events whose type is in Types, or every event
// when Types is empty.
type Subscriber struct {
	ID      SubscriberID
	Types   map[EventType]struct{}
	Channel chan LedgerEvent
	dropped int
}

func (s *Subscriber) wants(t EventType) bool {
	if len(s.Types) == 0 {
		return true
	}
	_, ok := s.Types[t]
	return ok
}

// EventBus fans ledger events out to subscribers. Publishing never blocks:
// a subscriber whose buffer is full misses the event.
type EventBus struct {
	subscribers map[SubscriberID]*Subscriber
	mu          sync.RWMutex
}

func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[SubscriberID]*Subscriber),
	}
}

// Subscribe registers a subscriber for the given event types; no types
// means all of them.
func (eb *EventBus) Subscribe(types ...EventType) (SubscriberID, chan LedgerEvent) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	sub := &Subscriber{
		ID:      SubscriberID(uuid.Must(uuid.NewV7()).String()),
		Types:   make(map[EventType]struct{}, len(types)),
		Channel: make(chan LedgerEvent, subscriberBuffer),
	}
	for _, t := range types {
		sub.Types[t] = struct{}{}
	}
	eb.subscribers[sub.ID] = sub

	logx.Info("EVENTBUS", fmt.Sprintf("Subscribed | subscriber_id=%s | types=%v | total_subscribers=%d", sub.ID, types, len(eb.subscribers)))
	return sub.ID, sub.Channel
}

// Unsubscribe removes a subscription by ID and closes its channel
func (eb *EventBus) Unsubscribe(id SubscriberID) bool {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	sub, exists := eb.subscribers[id]
	if !exists {
		return false
	}
	delete(eb.subscribers, id)
	close(sub.Channel)

	logx.Info("EVENTBUS", fmt.Sprintf("Unsubscribed | subscriber_id=%s | dropped=%d | remaining_subscribers=%d", id, sub.dropped, len(eb.subscribers)))
	return true
}

func (eb *EventBus) Publish(event LedgerEvent) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	for id, sub := range eb.subscribers {
		if !sub.wants(event.Type()) {
			continue
		}
		select {
		case sub.Channel <- event:
		default:
			sub.dropped++
			logx.Warn("EVENTBUS", fmt.Sprintf("Subscriber channel full | subscriber_id=%s | event_type=%s | tx_id=%s", id, event.Type(), event.TxID()))
		}
	}
}

func (eb *EventBus) GetTotalSubscriptions() int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.subscribers)
}

func (eb *EventBus) HasSubscriber(id SubscriberID) bool {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	_, exists := eb.subscribers[id]
	return exists
}

// Dropped returns how many events id missed because its buffer was full.
func (eb *EventBus) Dropped(id SubscriberID) int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	if sub, ok := eb.subscribers[id]; ok {
		return sub.dropped
	}
	return 0
}
