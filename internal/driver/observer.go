// internal/driver/observer.go

package driver

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/xkilldash9x/pagedriver/api/schemas"
)

// broadcaster fans out out-of-band notifications (attachment status,
// recording passthrough) to observers. Sends never block: a subscriber that
// stops draining its channel loses notifications instead of stalling the
// dispatcher, so a slow observer cannot delay command processing.
type broadcaster struct {
	mu      sync.Mutex
	subs    map[int]chan schemas.Notification
	nextID  int
	buffer  int
	limiter *rate.Limiter
}

// newBroadcaster builds a fanout with per-subscriber buffers of the given
// size. Recording passthrough is throttled to perSecond events; status
// transitions are never throttled.
func newBroadcaster(buffer int, perSecond float64) *broadcaster {
	if buffer <= 0 {
		buffer = 32
	}
	if perSecond <= 0 {
		perSecond = 20
	}
	return &broadcaster{
		subs:    make(map[int]chan schemas.Notification),
		buffer:  buffer,
		limiter: rate.NewLimiter(rate.Limit(perSecond), int(perSecond)),
	}
}

// Subscribe registers an observer and returns its id and channel.
func (b *broadcaster) Subscribe() (int, <-chan schemas.Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	ch := make(chan schemas.Notification, b.buffer)
	b.subs[id] = ch
	return id, ch
}

// Unsubscribe removes an observer and closes its channel.
func (b *broadcaster) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Publish delivers a notification to every observer without blocking.
func (b *broadcaster) Publish(n schemas.Notification) {
	if n.Type == schemas.NotifyRecording && !b.limiter.Allow() {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- n:
		default:
		}
	}
}

// Close unsubscribes everyone.
func (b *broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
