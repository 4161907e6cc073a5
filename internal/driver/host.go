// internal/driver/host.go

package driver

import (
	"context"

	"github.com/xkilldash9x/pagedriver/api/schemas"
	"github.com/xkilldash9x/pagedriver/internal/page"
)

// Host is the browser coupling the dispatcher drives. The production
// implementation speaks the DevTools protocol; tests substitute a fake.
type Host interface {
	// Attach binds to a target. A hint may name a target id or a URL
	// substring; empty means the most recently active page.
	Attach(ctx context.Context, hint string) (targetID string, err error)
	// Detach releases the current target. Idempotent.
	Detach(ctx context.Context) error
	// Navigate drives the target to url and returns once the load event
	// fires or ctx expires.
	Navigate(ctx context.Context, url string) error
	// CurrentURL reports the target's current location.
	CurrentURL(ctx context.Context) (string, error)
	// CaptureDOM serializes the live DOM for agent injection, together
	// with the page URL it was captured from.
	CaptureDOM(ctx context.Context) (htmlText, pageURL string, err error)
	// Geometry exposes live layout queries for the captured DOM.
	Geometry() page.Geometry
	// Screenshot captures the visual viewport as PNG bytes.
	Screenshot(ctx context.Context) ([]byte, error)
	// Focus moves document focus to the element at the given selector
	// path; an empty path focuses the body.
	Focus(ctx context.Context, path string) error
	// Input returns the low-level input-injection primitive.
	Input() InputSimulator
	// RawEvents streams user-generated DOM events from the in-page
	// listener while recording is active. May return nil if the host
	// cannot record.
	RawEvents() <-chan schemas.RawEvent
	// Detached delivers a reason string when the host loses the
	// attachment (tab closed, crash, manual devtools detach).
	Detached() <-chan string
}

// InputSimulator is the privileged input-injection capability. Events it
// dispatches are indistinguishable from user input at the page's level;
// everything above the dispatcher stays ignorant of how that is achieved.
type InputSimulator interface {
	MoveMouse(ctx context.Context, x, y int) error
	Click(ctx context.Context, x, y int) error
	// TypeText emits per-character key events for text.
	TypeText(ctx context.Context, text string) error
	// Press dispatches a named key or chord, e.g. "Enter", "ctrl+a".
	Press(ctx context.Context, key string) error
}
