// internal/driver/observer_test.go
package driver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/pagedriver/api/schemas"
)

func TestBroadcastReachesAllSubscribers(t *testing.T) {
	b := newBroadcaster(4, 100)
	_, ch1 := b.Subscribe()
	_, ch2 := b.Subscribe()

	b.Publish(schemas.Notification{Type: schemas.NotifyStatus, State: schemas.StateAttached})

	for _, ch := range []<-chan schemas.Notification{ch1, ch2} {
		select {
		case n := <-ch:
			assert.Equal(t, schemas.StateAttached, n.State)
		default:
			t.Fatal("subscriber missed a status notification")
		}
	}
}

func TestBroadcastNeverBlocksOnFullSubscriber(t *testing.T) {
	b := newBroadcaster(1, 100)
	_, ch := b.Subscribe()

	// Publish past the buffer; the extra notifications drop.
	for i := 0; i < 5; i++ {
		b.Publish(schemas.Notification{Type: schemas.NotifyStatus, State: schemas.StateAttaching})
	}
	assert.Len(t, ch, 1)
}

func TestRecordingNotificationsAreThrottled(t *testing.T) {
	b := newBroadcaster(64, 2)
	_, ch := b.Subscribe()

	ev := schemas.RecordedEvent{Type: schemas.EventClick}
	for i := 0; i < 50; i++ {
		b.Publish(schemas.Notification{Type: schemas.NotifyRecording, Event: &ev})
	}
	assert.LessOrEqual(t, len(ch), 3, "recording passthrough respects the rate cap")

	// Status transitions bypass the limiter entirely.
	for i := 0; i < 10; i++ {
		b.Publish(schemas.Notification{Type: schemas.NotifyStatus, State: schemas.StateDetached})
	}
	assert.GreaterOrEqual(t, len(ch), 10)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := newBroadcaster(4, 100)
	id, ch := b.Subscribe()
	b.Unsubscribe(id)

	_, open := <-ch
	require.False(t, open)

	// Publishing after unsubscribe must not panic.
	b.Publish(schemas.Notification{Type: schemas.NotifyStatus})
}

func TestCloseUnsubscribesEveryone(t *testing.T) {
	b := newBroadcaster(4, 100)
	_, ch1 := b.Subscribe()
	_, ch2 := b.Subscribe()
	b.Close()

	_, open := <-ch1
	assert.False(t, open)
	_, open = <-ch2
	assert.False(t, open)
}
