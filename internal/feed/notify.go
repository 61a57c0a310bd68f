package feed

import (
	"encoding/json"
	"sync"

	"github.com/renix-codex/feedsync/internal/logger"
)

// Notifier receives engine state changes. Calls for one engine are
// serialized and arrive in completion order. Implementations must not call
// back into the Engine synchronously.
type Notifier interface {
	OnDataUpdated()
	OnError(err error)
	OnLoadingStateChanged(loading bool)
}

// NotifierFuncs adapts plain functions to Notifier. Nil fields are skipped.
type NotifierFuncs struct {
	DataUpdated         func()
	Error               func(error)
	LoadingStateChanged func(bool)
}

func (n NotifierFuncs) OnDataUpdated() {
	if n.DataUpdated != nil {
		n.DataUpdated()
	}
}

func (n NotifierFuncs) OnError(err error) {
	if n.Error != nil {
		n.Error(err)
	}
}

func (n NotifierFuncs) OnLoadingStateChanged(loading bool) {
	if n.LoadingStateChanged != nil {
		n.LoadingStateChanged(loading)
	}
}

type nopNotifier struct{}

func (nopNotifier) OnDataUpdated()             {}
func (nopNotifier) OnError(error)              {}
func (nopNotifier) OnLoadingStateChanged(bool) {}

type EventType string

const (
	EventDataUpdated EventType = "data_updated"
	EventError       EventType = "error"
	EventLoading     EventType = "loading"
)

// Event is a Notifier call in value form.
type Event struct {
	Type    EventType
	Loading bool
	Err     error
}

func (ev Event) MarshalJSON() ([]byte, error) {
	out := struct {
		Type    EventType `json:"type"`
		Loading *bool     `json:"loading,omitempty"`
		Error   string    `json:"error,omitempty"`
		Kind    string    `json:"kind,omitempty"`
	}{Type: ev.Type}

	switch ev.Type {
	case EventLoading:
		out.Loading = &ev.Loading
	case EventError:
		if ev.Err != nil {
			out.Error = ev.Err.Error()
			if k := KindOf(ev.Err); k != 0 {
				out.Kind = k.String()
			}
		}
	}
	return json.Marshal(out)
}

// Broadcaster is a Notifier that fans events out to channel subscribers so
// each consumer reads them on its own goroutine. A subscriber whose buffer
// is full misses the event rather than stalling the engine.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[uint64]chan Event
	nextID uint64
}

var _ Notifier = (*Broadcaster)(nil)

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[uint64]chan Event)}
}

// Subscribe registers a subscriber. The returned cancel func unregisters it
// and closes the channel.
func (b *Broadcaster) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
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

// Subscribers returns the number of live subscribers.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Broadcaster) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			logger.Warn("dropping event for slow subscriber", "subscriber", id, "event", string(ev.Type))
		}
	}
}

func (b *Broadcaster) OnDataUpdated() { b.publish(Event{Type: EventDataUpdated}) }

func (b *Broadcaster) OnError(err error) { b.publish(Event{Type: EventError, Err: err}) }

func (b *Broadcaster) OnLoadingStateChanged(loading bool) {
	b.publish(Event{Type: EventLoading, Loading: loading})
}
