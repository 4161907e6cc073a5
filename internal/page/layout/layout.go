// internal/page/layout/layout.go

// Package layout turns resolved elements into stable interaction
// coordinates. Pointer input against a layout that is still animating or
// reflowing lands in the wrong place, so the locator waits for an element's
// bounding box to stop moving before reporting its center.
package layout

import (
	"context"
	"errors"
	"time"

	"golang.org/x/net/html"

	"github.com/xkilldash9x/pagedriver/internal/page"
)

// ErrNoGeometry means the host could not produce a bounding box for the
// element, typically because it is detached from layout.
var ErrNoGeometry = errors.New("element has no bounding box")

// Config tunes the stabilization loop.
type Config struct {
	// SettleDelay runs after a scroll-into-view, before the first sample.
	SettleDelay time.Duration
	// PollInterval separates successive bounding box samples.
	PollInterval time.Duration
	// Window bounds the whole stabilization wait. Elapsing it is not an
	// error: the last sample wins.
	Window time.Duration
	// TolerancePx is the per-edge drift treated as "did not move".
	TolerancePx float64
}

// DefaultConfig mirrors the driver's configuration defaults.
func DefaultConfig() Config {
	return Config{
		SettleDelay:  150 * time.Millisecond,
		PollInterval: 100 * time.Millisecond,
		Window:       1500 * time.Millisecond,
		TolerancePx:  1.0,
	}
}

// Locator computes stable center coordinates for elements through a
// Geometry capability.
type Locator struct {
	geo page.Geometry
	cfg Config
}

func NewLocator(geo page.Geometry, cfg Config) *Locator {
	return &Locator{geo: geo, cfg: cfg}
}

// Point is a viewport-relative interaction coordinate.
type Point struct {
	X int
	Y int
}

// Center scrolls n into view if needed, waits for its bounding box to
// stabilize, and returns the box center. Calling it again on an
// already-visible, already-stable element returns the same point.
func (l *Locator) Center(ctx context.Context, n *html.Node) (Point, error) {
	box, ok := l.geo.BoundingBox(n)
	if !ok {
		return Point{}, ErrNoGeometry
	}

	if !box.Within(l.geo.Viewport()) {
		if err := l.geo.ScrollIntoView(n); err != nil {
			return Point{}, err
		}
		if err := sleep(ctx, l.cfg.SettleDelay); err != nil {
			return Point{}, err
		}
		if box, ok = l.geo.BoundingBox(n); !ok {
			return Point{}, ErrNoGeometry
		}
	}

	box, err := l.stabilize(ctx, n, box)
	if err != nil {
		return Point{}, err
	}
	x, y := box.Center()
	return Point{X: x, Y: y}, nil
}

// stabilize polls the bounding box until two consecutive samples agree
// within tolerance, or the window elapses. The window elapsing means the
// element is continuously animating; the last observed box is still the
// best available answer, so it is returned without error.
func (l *Locator) stabilize(ctx context.Context, n *html.Node, last page.Rect) (page.Rect, error) {
	deadline := time.Now().Add(l.cfg.Window)
	for time.Now().Before(deadline) {
		if err := sleep(ctx, l.cfg.PollInterval); err != nil {
			return page.Rect{}, err
		}
		box, ok := l.geo.BoundingBox(n)
		if !ok {
			return page.Rect{}, ErrNoGeometry
		}
		if box.ApproxEqual(last, l.cfg.TolerancePx) {
			return box, nil
		}
		last = box
	}
	return last, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
