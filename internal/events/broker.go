package events

import (
	"slices"
	"sync"
)

// subscriberBufferSize is the channel buffer for each event subscriber.
// Events are dropped if a subscriber falls this far behind.
const subscriberBufferSize = 64

// Broker fans engine events out to subscribers, one topic per engine. A
// subscription may be restricted to a set of event types.
// It is safe for concurrent use.
//
// Closed topics are retained as markers so that subscribers arriving after
// shutdown receive a closed channel instead of blocking forever.
type Broker struct {
	mu     sync.Mutex
	topics map[string]*topic
}

type topic struct {
	subs   map[int]*subscription
	nextID int
	closed bool
}

// subscription is one subscriber of a topic. An empty types list accepts
// every event type.
type subscription struct {
	ch    chan Event
	types []string
}

func (s *subscription) accepts(e Event) bool {
	return len(s.types) == 0 || slices.Contains(s.types, e.Type)
}

// NewBroker creates a new event broker.
func NewBroker() *Broker {
	return &Broker{
		topics: make(map[string]*topic),
	}
}

// Subscribe returns a channel that receives the events published on the given
// topic and an unsubscribe function. When types are given, only events of
// those types are delivered. If the topic has been closed, the returned
// channel is immediately closed.
func (b *Broker) Subscribe(name string, types ...string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.topic(name)
	ch := make(chan Event, subscriberBufferSize)
	if t.closed {
		close(ch)
		return ch, func() {}
	}

	id := t.nextID
	t.nextID++
	t.subs[id] = &subscription{ch: ch, types: slices.Clone(types)}

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(t.subs, id)
	}
}

func (b *Broker) topic(name string) *topic {
	t, ok := b.topics[name]
	if !ok {
		t = &topic{subs: make(map[int]*subscription)}
		b.topics[name] = t
	}
	return t
}

// Publish sends an event to the subscribers of the topic that accept its
// type. Subscribers whose buffers are full miss the event, which is counted
// in showcase_events_dropped_total.
func (b *Broker) Publish(name string, e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[name]
	if !ok || t.closed {
		return
	}

	for _, s := range t.subs {
		if !s.accepts(e) {
			continue
		}
		select {
		case s.ch <- e:
		default:
			eventsDropped.WithLabelValues(name).Inc()
		}
	}
}

// Close signals that no more events will be published on the topic.
// All subscriber channels are closed and future Subscribe calls return a
// closed channel.
func (b *Broker) Close(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.topic(name)
	t.closed = true
	for id, s := range t.subs {
		close(s.ch)
		delete(t.subs, id)
	}
}
