package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// EventType classifies messages emitted by the controller.
type EventType string

const (
	// EventTypeState follows every state transition.
	EventTypeState EventType = "state"
	// EventTypeProgress reports a progress change without a transition.
	EventTypeProgress EventType = "progress"
)

// Event is a sequenced notification consumed by presentation layers,
// history journals and publishers.
type Event struct {
	Seq       int64     `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	State     State     `json:"state"`
	Progress  int       `json:"progress"`
	Error     *Failure  `json:"error,omitempty"`

	// Session is a snapshot taken when the event was published.
	Session Session `json:"session"`
}

// EventBus stores recent events for incremental reads and fans them out to
// channel subscribers.
type EventBus struct {
	mu        sync.RWMutex
	nextSeq   int64
	maxEvents int
	events    []Event

	nextSub int
	subs    map[int]subscriber
}

// terminalReserve is the number of extra slots each subscription keeps for
// terminal state events, which are never dropped in favour of progress.
const terminalReserve = 4

type subscriber struct {
	ch chan Event
	// soft is the fill level above which only terminal events are queued.
	soft int
}

// NewEventBus creates a bounded in-memory event buffer.
func NewEventBus(maxEvents int) *EventBus {
	if maxEvents <= 0 {
		maxEvents = 500
	}

	return &EventBus{
		maxEvents: maxEvents,
		events:    make([]Event, 0, maxEvents),
		subs:      make(map[int]subscriber),
	}
}

// Publish appends one event, assigns sequence and timestamp and delivers
// it to subscribers. A subscriber whose buffer is full misses the event,
// except for terminal state events, which go into the reserved slots.
func (b *EventBus) Publish(event Event) Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSeq++
	event.Seq = b.nextSeq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.events = append(b.events, event)
	if len(b.events) > b.maxEvents {
		trim := len(b.events) - b.maxEvents
		b.events = append([]Event(nil), b.events[trim:]...)
	}

	terminal := event.Type == EventTypeState && event.State.Terminal()
	for id, sub := range b.subs {
		// Only Publish sends, under b.mu, so len cannot grow underneath us.
		if !terminal && len(sub.ch) >= sub.soft {
			log.Warn().Int("subscriber", id).Int64("seq", event.Seq).Msg("Event subscriber full, dropping event")
			continue
		}
		select {
		case sub.ch <- event:
		default:
			log.Error().Int("subscriber", id).Int64("seq", event.Seq).Str("state", string(event.State)).
				Msg("Event subscriber reserve exhausted, dropping terminal event")
		}
	}

	return event
}

// Since returns events with sequence strictly greater than seq.
func (b *EventBus) Since(seq int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.events) == 0 {
		return nil
	}

	out := make([]Event, 0, len(b.events))
	for _, event := range b.events {
		if event.Seq > seq {
			out = append(out, event)
		}
	}
	return out
}

// Subscribe returns a channel receiving every event published from now on
// and a function that unsubscribes and closes the channel. Progress and
// non-terminal events beyond buffer are dropped; terminal state events get
// a few reserved slots on top.
func (b *EventBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer+terminalReserve)

	b.mu.Lock()
	id := b.nextSub
	b.nextSub++
	b.subs[id] = subscriber{ch: ch, soft: buffer}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// WaitTerminal drains events until a session reaches Completed or Failed
// and returns that event. A closed channel or cancelled ctx ends the wait
// with an error.
func WaitTerminal(ctx context.Context, events <-chan Event) (Event, error) {
	for {
		select {
		case <-ctx.Done():
			return Event{}, ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return Event{}, ErrEventsClosed
			}
			if ev.Type == EventTypeState && ev.State.Terminal() {
				return ev, nil
			}
		}
	}
}
