package hub

import (
	"sync"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

const subscriberBuffer = 64

type subscriber struct {
	room domain.RoomID
	ch   chan core.MembershipEvent
}

// Broker fans membership events out to subscribers.
// A subscriber that does not keep up loses events; publishers never block.
type Broker struct {
	mu   sync.RWMutex
	next int
	subs map[int]*subscriber
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[int]*subscriber)}
}

func (b *Broker) Subscribe(room domain.RoomID) (<-chan core.MembershipEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	s := &subscriber{room: room, ch: make(chan core.MembershipEvent, subscriberBuffer)}
	b.subs[id] = s

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(s.ch)
		})
	}
	return s.ch, cancel
}

func (b *Broker) Publish(ev core.MembershipEvent) {
	if ev.At.IsZero() {
		ev.At = timeNow()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if s.room != "" && s.room != ev.RoomID {
			continue
		}
		select {
		case s.ch <- ev:
		default:
		}
	}
}

// Len is the number of live subscriptions.
func (b *Broker) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
