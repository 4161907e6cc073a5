// internal/driver/pending.go

package driver

import (
	"sync"

	"github.com/xkilldash9x/pagedriver/api/schemas"
)

// pendingTable maps correlation ids to awaited completions. It enforces
// at-most-once per id: whichever of success, failure or timeout lands first
// resolves the waiter, and later arrivals for the same id are discarded.
type pendingTable struct {
	mu      sync.Mutex
	waiters map[string]chan schemas.Response
}

func newPendingTable() *pendingTable {
	return &pendingTable{waiters: make(map[string]chan schemas.Response)}
}

// Add registers a waiter for the given correlation id and returns the
// channel its single response will arrive on.
func (t *pendingTable) Add(id string) <-chan schemas.Response {
	ch := make(chan schemas.Response, 1)
	t.mu.Lock()
	t.waiters[id] = ch
	t.mu.Unlock()
	return ch
}

// Complete resolves the waiter for resp.ID, if one is still registered.
// Returns false when the id was already resolved or never existed.
func (t *pendingTable) Complete(resp schemas.Response) bool {
	t.mu.Lock()
	ch, ok := t.waiters[resp.ID]
	if ok {
		delete(t.waiters, resp.ID)
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	ch <- resp // buffered, never blocks
	return true
}

// Fail resolves a waiter with a failure response.
func (t *pendingTable) Fail(id, code, message string) bool {
	return t.Complete(schemas.FailResponse(id, code, message))
}

// Drop removes a waiter without resolving it. Used when the caller stopped
// listening on its own.
func (t *pendingTable) Drop(id string) {
	t.mu.Lock()
	delete(t.waiters, id)
	t.mu.Unlock()
}

// Len reports outstanding waiters.
func (t *pendingTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.waiters)
}
