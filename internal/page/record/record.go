// internal/page/record/record.go

// Package record normalizes the raw DOM event stream from the in-page
// listener into a compact recording: one entry per meaningful user action,
// with typing coalesced per field and scrolling debounced into net movements.
package record

import (
	"context"
	"time"

	"github.com/xkilldash9x/pagedriver/api/schemas"
)

// Config tunes the scroll debouncer.
type Config struct {
	// ScrollQuietPeriod is how long the scroll position must hold still
	// before the accumulated movement is emitted.
	ScrollQuietPeriod time.Duration
	// ScrollMinDistance is the minimum net displacement, in pixels on
	// either axis, for a scroll to be recorded at all.
	ScrollMinDistance int
}

// DefaultConfig mirrors the driver's configuration defaults.
func DefaultConfig() Config {
	return Config{ScrollQuietPeriod: 350 * time.Millisecond, ScrollMinDistance: 50}
}

// Recorder consumes raw in-page events and emits normalized recorded
// events through a sink callback. All processing happens on a single
// goroutine owned by Run, so the sink is never called concurrently.
type Recorder struct {
	cfg  Config
	in   chan schemas.RawEvent
	sink func(schemas.RecordedEvent)
	done chan struct{}

	// Pending state, touched only by the Run goroutine.
	inputs      map[string]pendingInput
	inputOrder  []string
	scroll      *pendingScroll
	scrollTimer *time.Timer
}

type pendingInput struct {
	tag   string
	value string
	ts    time.Time
}

type pendingScroll struct {
	startX, startY float64
	lastX, lastY   float64
	ts             time.Time
}

// NewRecorder builds a recorder delivering normalized events to sink.
func NewRecorder(cfg Config, sink func(schemas.RecordedEvent)) *Recorder {
	return &Recorder{
		cfg:    cfg,
		in:     make(chan schemas.RawEvent, 64),
		sink:   sink,
		done:   make(chan struct{}),
		inputs: make(map[string]pendingInput),
	}
}

// Feed hands a raw event to the recorder. It never blocks the caller: if
// the recorder is saturated the event is dropped, which only loses
// intermediate keystrokes or scroll samples.
func (r *Recorder) Feed(ev schemas.RawEvent) {
	select {
	case r.in <- ev:
	default:
	}
}

// Run processes events until ctx is canceled, then drains whatever was fed
// before the stop and flushes buffered input values and pending scroll
// movement so in-progress actions are not lost.
func (r *Recorder) Run(ctx context.Context) {
	defer close(r.done)
	var never <-chan time.Time
	for {
		timerC := never
		if r.scrollTimer != nil {
			timerC = r.scrollTimer.C
		}
		select {
		case <-ctx.Done():
			r.drain()
			r.stopScrollTimer()
			r.flush()
			return
		case ev := <-r.in:
			r.handle(ev)
		case <-timerC:
			r.scrollTimer = nil
			r.emitScroll()
		}
	}
}

// Done is closed once Run has finished its final flush. Callers stopping a
// recording wait on it so the stop orders after the flushed events.
func (r *Recorder) Done() <-chan struct{} { return r.done }

// drain consumes events accepted by Feed but not yet handled when the stop
// arrived. Cancellation races the inbound channel in Run's select, so events
// can still be queued here.
func (r *Recorder) drain() {
	for {
		select {
		case ev := <-r.in:
			r.handle(ev)
		default:
			return
		}
	}
}

func (r *Recorder) handle(ev schemas.RawEvent) {
	switch ev.Kind {
	case "click":
		// A click elsewhere commits any field the user was typing in.
		r.flushInputs()
		if ev.Modifier {
			r.sink(schemas.RecordedEvent{
				Type:      schemas.EventExtract,
				Selector:  ev.Selector,
				Tag:       ev.Tag,
				Text:      ev.Text,
				Timestamp: ev.Timestamp,
			})
			return
		}
		r.sink(schemas.RecordedEvent{
			Type:      schemas.EventClick,
			Selector:  ev.Selector,
			Tag:       ev.Tag,
			Text:      ev.Text,
			X:         int(ev.X),
			Y:         int(ev.Y),
			Timestamp: ev.Timestamp,
		})
	case "input":
		// Keystrokes only update the buffer; nothing is emitted until the
		// field commits.
		if _, seen := r.inputs[ev.Selector]; !seen {
			r.inputOrder = append(r.inputOrder, ev.Selector)
		}
		r.inputs[ev.Selector] = pendingInput{tag: ev.Tag, value: ev.Value, ts: ev.Timestamp}
	case "change":
		if p, ok := r.inputs[ev.Selector]; ok {
			delete(r.inputs, ev.Selector)
			r.dropFromOrder(ev.Selector)
			value := ev.Value
			if value == "" {
				value = p.value
			}
			r.emitInput(ev.Selector, p.tag, value, ev.Timestamp)
			return
		}
		// Change without buffered keystrokes: select menus, checkboxes.
		r.emitInput(ev.Selector, ev.Tag, ev.Value, ev.Timestamp)
	case "scroll":
		r.bufferScroll(ev)
	}
}

func (r *Recorder) bufferScroll(ev schemas.RawEvent) {
	if r.scroll == nil {
		r.scroll = &pendingScroll{startX: ev.ScrollX, startY: ev.ScrollY}
	}
	r.scroll.lastX = ev.ScrollX
	r.scroll.lastY = ev.ScrollY
	r.scroll.ts = ev.Timestamp

	r.stopScrollTimer()
	r.scrollTimer = time.NewTimer(r.cfg.ScrollQuietPeriod)
}

// emitScroll flushes the accumulated scroll if the net displacement clears
// the minimum distance on either axis. Jitter below the threshold is
// discarded silently.
func (r *Recorder) emitScroll() {
	s := r.scroll
	r.scroll = nil
	if s == nil {
		return
	}
	dx := int(s.lastX - s.startX)
	dy := int(s.lastY - s.startY)
	if abs(dx) < r.cfg.ScrollMinDistance && abs(dy) < r.cfg.ScrollMinDistance {
		return
	}
	r.sink(schemas.RecordedEvent{
		Type:      schemas.EventScroll,
		DeltaX:    dx,
		DeltaY:    dy,
		Timestamp: s.ts,
	})
}

func (r *Recorder) emitInput(selector, tag, value string, ts time.Time) {
	r.sink(schemas.RecordedEvent{
		Type:      schemas.EventInput,
		Selector:  selector,
		Tag:       tag,
		Value:     value,
		Timestamp: ts,
	})
}

// flushInputs commits every buffered field in arrival order.
func (r *Recorder) flushInputs() {
	for _, sel := range r.inputOrder {
		if p, ok := r.inputs[sel]; ok {
			r.emitInput(sel, p.tag, p.value, p.ts)
		}
	}
	r.inputs = make(map[string]pendingInput)
	r.inputOrder = nil
}

// flush drains everything pending at stop time.
func (r *Recorder) flush() {
	r.flushInputs()
	r.emitScroll()
}

func (r *Recorder) stopScrollTimer() {
	if r.scrollTimer != nil {
		if !r.scrollTimer.Stop() {
			select {
			case <-r.scrollTimer.C:
			default:
			}
		}
		r.scrollTimer = nil
	}
}

func (r *Recorder) dropFromOrder(sel string) {
	for i, s := range r.inputOrder {
		if s == sel {
			r.inputOrder = append(r.inputOrder[:i], r.inputOrder[i+1:]...)
			return
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
