// internal/page/record/record_test.go
package record

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/pagedriver/api/schemas"
)

type collector struct {
	events []schemas.RecordedEvent
}

func (c *collector) sink(ev schemas.RecordedEvent) {
	c.events = append(c.events, ev)
}

func newTestRecorder(cfg Config) (*Recorder, *collector) {
	c := &collector{}
	return NewRecorder(cfg, c.sink), c
}

func TestClickEmitsSingleEvent(t *testing.T) {
	r, c := newTestRecorder(DefaultConfig())

	r.handle(schemas.RawEvent{Kind: "click", Selector: "#save", Tag: "button", Text: "Save", X: 40, Y: 200})
	r.flush()

	require.Len(t, c.events, 1)
	ev := c.events[0]
	assert.Equal(t, schemas.EventClick, ev.Type)
	assert.Equal(t, "#save", ev.Selector)
	assert.Equal(t, "button", ev.Tag)
	assert.Equal(t, 40, ev.X)
	assert.Equal(t, 200, ev.Y)
}

func TestModifierClickBecomesExtract(t *testing.T) {
	r, c := newTestRecorder(DefaultConfig())

	r.handle(schemas.RawEvent{Kind: "click", Selector: ".headline", Tag: "h2", Text: "Top story", Modifier: true})
	r.flush()

	require.Len(t, c.events, 1)
	assert.Equal(t, schemas.EventExtract, c.events[0].Type)
	assert.Equal(t, ".headline", c.events[0].Selector)
	assert.Equal(t, "Top story", c.events[0].Text)
}

func TestTypingCoalescesUntilChange(t *testing.T) {
	r, c := newTestRecorder(DefaultConfig())

	for _, v := range []string{"h", "he", "hel", "hello"} {
		r.handle(schemas.RawEvent{Kind: "input", Selector: "#q", Tag: "input", Value: v})
	}
	assert.Empty(t, c.events, "keystrokes buffer until the field commits")

	r.handle(schemas.RawEvent{Kind: "change", Selector: "#q", Tag: "input", Value: "hello"})
	require.Len(t, c.events, 1)
	assert.Equal(t, schemas.EventInput, c.events[0].Type)
	assert.Equal(t, "hello", c.events[0].Value)

	// The commit clears the buffer; flushing finds nothing left.
	r.flush()
	assert.Len(t, c.events, 1)
}

func TestChangeWithEmptyValueFallsBackToBuffer(t *testing.T) {
	r, c := newTestRecorder(DefaultConfig())

	r.handle(schemas.RawEvent{Kind: "input", Selector: "#q", Tag: "input", Value: "draft"})
	r.handle(schemas.RawEvent{Kind: "change", Selector: "#q", Tag: "input", Value: ""})

	require.Len(t, c.events, 1)
	assert.Equal(t, "draft", c.events[0].Value)
}

func TestClickCommitsBufferedFields(t *testing.T) {
	r, c := newTestRecorder(DefaultConfig())

	r.handle(schemas.RawEvent{Kind: "input", Selector: "#user", Tag: "input", Value: "ana"})
	r.handle(schemas.RawEvent{Kind: "input", Selector: "#pass", Tag: "input", Value: "s3cret"})
	r.handle(schemas.RawEvent{Kind: "click", Selector: "#login", Tag: "button"})

	require.Len(t, c.events, 3)
	assert.Equal(t, schemas.EventInput, c.events[0].Type)
	assert.Equal(t, "#user", c.events[0].Selector)
	assert.Equal(t, schemas.EventInput, c.events[1].Type)
	assert.Equal(t, "#pass", c.events[1].Selector)
	assert.Equal(t, schemas.EventClick, c.events[2].Type)
}

func TestChangeWithoutBufferEmitsDirectly(t *testing.T) {
	r, c := newTestRecorder(DefaultConfig())

	r.handle(schemas.RawEvent{Kind: "change", Selector: "#country", Tag: "select", Value: "NZ"})

	require.Len(t, c.events, 1)
	assert.Equal(t, schemas.EventInput, c.events[0].Type)
	assert.Equal(t, "NZ", c.events[0].Value)
}

func TestScrollDebounceEmitsNetMovement(t *testing.T) {
	cfg := Config{ScrollQuietPeriod: 20 * time.Millisecond, ScrollMinDistance: 50}
	done := make(chan struct{})
	events := make(chan schemas.RecordedEvent, 8)
	r := NewRecorder(cfg, func(ev schemas.RecordedEvent) { events <- ev })

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		defer close(done)
		r.Run(ctx)
	}()

	for _, y := range []float64{0, 120, 340, 600} {
		r.Feed(schemas.RawEvent{Kind: "scroll", ScrollX: 0, ScrollY: y})
		time.Sleep(2 * time.Millisecond)
	}

	select {
	case ev := <-events:
		assert.Equal(t, schemas.EventScroll, ev.Type)
		assert.Equal(t, 600, ev.DeltaY)
		assert.Equal(t, 0, ev.DeltaX)
	case <-time.After(time.Second):
		t.Fatal("debounced scroll never emitted")
	}

	cancel()
	<-done
	select {
	case ev := <-events:
		t.Fatalf("unexpected extra event after stop: %+v", ev)
	default:
	}
}

func TestStopDeliversEventsFedJustBefore(t *testing.T) {
	// Cancellation races the inbound channel; an event accepted by Feed
	// must still come out exactly once, however the race falls.
	for i := 0; i < 100; i++ {
		c := &collector{}
		r := NewRecorder(DefaultConfig(), c.sink)

		ctx, cancel := context.WithCancel(context.Background())
		go r.Run(ctx)

		r.Feed(schemas.RawEvent{Kind: "click", Selector: "#go", Tag: "button"})
		cancel()
		<-r.Done()

		require.Len(t, c.events, 1, "iteration %d", i)
		assert.Equal(t, schemas.EventClick, c.events[0].Type)
	}
}

func TestScrollBelowMinDistanceIsDropped(t *testing.T) {
	cfg := Config{ScrollQuietPeriod: 10 * time.Millisecond, ScrollMinDistance: 50}
	r, c := newTestRecorder(cfg)

	r.handle(schemas.RawEvent{Kind: "scroll", ScrollY: 0})
	r.handle(schemas.RawEvent{Kind: "scroll", ScrollY: 30})
	r.stopScrollTimer()
	r.emitScroll()

	assert.Empty(t, c.events, "jitter under the distance floor is discarded")
}

func TestStopFlushesPendingState(t *testing.T) {
	cfg := Config{ScrollQuietPeriod: time.Hour, ScrollMinDistance: 50}
	events := make(chan schemas.RecordedEvent, 8)
	r := NewRecorder(cfg, func(ev schemas.RecordedEvent) { events <- ev })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(ctx)
	}()

	r.Feed(schemas.RawEvent{Kind: "input", Selector: "#note", Tag: "textarea", Value: "half-typed"})
	r.Feed(schemas.RawEvent{Kind: "scroll", ScrollY: 0})
	r.Feed(schemas.RawEvent{Kind: "scroll", ScrollY: 400})
	time.Sleep(20 * time.Millisecond)

	cancel()
	<-done

	got := map[string]schemas.RecordedEvent{}
	for len(events) > 0 {
		ev := <-events
		got[ev.Type] = ev
	}
	require.Contains(t, got, schemas.EventInput)
	assert.Equal(t, "half-typed", got[schemas.EventInput].Value)
	require.Contains(t, got, schemas.EventScroll)
	assert.Equal(t, 400, got[schemas.EventScroll].DeltaY)
}
