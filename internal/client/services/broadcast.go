package services

import (
	"sync"

	"github.com/vmarchenko/signon/internal/client/models"
)

// StateBroadcaster fans the latest SignInState out to any number of
// subscribers. Single producer (the session service), multiple consumers.
//
// Semantics:
//   - a new subscriber immediately receives the most recently published
//     state (replay of one);
//   - each subscriber channel buffers exactly one value; when a subscriber
//     is slow the older unconsumed state is dropped in favor of the newest
//     (freshness over completeness);
//   - states arrive in publish order.
type StateBroadcaster struct {
	mu      sync.Mutex
	current models.SignInState
	primed  bool
	subs    map[int]chan models.SignInState
	nextID  int
}

func NewStateBroadcaster() *StateBroadcaster {
	return &StateBroadcaster{subs: make(map[int]chan models.SignInState)}
}

// Publish records s as the current state and delivers it to every
// subscriber, displacing an undelivered older value if needed.
func (b *StateBroadcaster) Publish(s models.SignInState) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.current = s
	b.primed = true

	for _, ch := range b.subs {
		select {
		case ch <- s:
		default:
			// Buffer full: drop the stale value. Only Publish sends on
			// subscriber channels and it runs under the lock, so after the
			// drain the send cannot block.
			select {
			case <-ch:
			default:
			}
			ch <- s
		}
	}
}

// Subscribe registers a new consumer. The returned cancel func must be
// called to release the subscription; the channel is closed afterwards.
func (b *StateBroadcaster) Subscribe() (<-chan models.SignInState, func()) {
	ch := make(chan models.SignInState, 1)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	if b.primed {
		ch <- b.current
	}
	b.mu.Unlock()

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

// Current returns the latest published state without blocking. The second
// result is false until the first Publish.
func (b *StateBroadcaster) Current() (models.SignInState, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current, b.primed
}
