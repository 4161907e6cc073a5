// internal/page/geometry.go
package page

import (
	"math"
	"sync"

	"golang.org/x/net/html"
)

// Rect is an element bounding box in viewport coordinates.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the geometric center rounded to the nearest integer, in the
// same coordinate space the input-simulation primitive accepts.
func (r Rect) Center() (int, int) {
	return int(math.Round(r.X + r.Width/2)), int(math.Round(r.Y + r.Height/2))
}

// Within reports whether r lies fully inside outer.
func (r Rect) Within(outer Rect) bool {
	return r.X >= outer.X && r.Y >= outer.Y &&
		r.X+r.Width <= outer.X+outer.Width &&
		r.Y+r.Height <= outer.Y+outer.Height
}

// ApproxEqual compares two boxes within a per-dimension tolerance.
func (r Rect) ApproxEqual(other Rect, tolerance float64) bool {
	return math.Abs(r.X-other.X) <= tolerance &&
		math.Abs(r.Y-other.Y) <= tolerance &&
		math.Abs(r.Width-other.Width) <= tolerance &&
		math.Abs(r.Height-other.Height) <= tolerance
}

// Geometry is the rendering capability the host exposes to the in-page
// engines: bounding boxes, viewport, scrolling and computed visibility.
// Implementations must be safe for use from the agent goroutine only.
type Geometry interface {
	// BoundingBox returns the current box of the element, if the host can
	// produce one.
	BoundingBox(n *html.Node) (Rect, bool)
	// Viewport returns the current visual viewport.
	Viewport() Rect
	// ScrollIntoView scrolls the element to the viewport center.
	ScrollIntoView(n *html.Node) error
	// ScrollBy scrolls the page by the given deltas.
	ScrollBy(dx, dy float64) error
	// Visible reports computed visibility. Implementations should fold in
	// StaticHidden; hosts with style information refine it.
	Visible(n *html.Node) bool
}

// BulkVisibility is an optional Geometry refinement for hosts where each
// visibility probe is a round trip to the page. Engines that need visibility
// for many nodes at once go through VisibleSet instead of per-node calls.
type BulkVisibility interface {
	VisibleSet(nodes []*html.Node) map[*html.Node]bool
}

// VisibleSet reports visibility per node, using the geometry's batched form
// when it offers one.
func VisibleSet(g Geometry, nodes []*html.Node) map[*html.Node]bool {
	if bv, ok := g.(BulkVisibility); ok {
		return bv.VisibleSet(nodes)
	}
	out := make(map[*html.Node]bool, len(nodes))
	for _, n := range nodes {
		out[n] = g.Visible(n)
	}
	return out
}

// StaticGeometry is a Geometry over explicitly registered boxes. It backs
// parsed documents with no live renderer and doubles as the test double for
// the stability calculator.
type StaticGeometry struct {
	mu       sync.Mutex
	boxes    map[*html.Node]Rect
	viewport Rect
}

// NewStaticGeometry returns an empty StaticGeometry with a 1280x720 viewport.
func NewStaticGeometry() *StaticGeometry {
	return &StaticGeometry{
		boxes:    make(map[*html.Node]Rect),
		viewport: Rect{Width: 1280, Height: 720},
	}
}

// SetBox registers (or moves) an element's bounding box.
func (g *StaticGeometry) SetBox(n *html.Node, box Rect) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.boxes[n] = box
}

// SetViewport replaces the viewport rectangle.
func (g *StaticGeometry) SetViewport(v Rect) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.viewport = v
}

func (g *StaticGeometry) BoundingBox(n *html.Node) (Rect, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	box, ok := g.boxes[n]
	return box, ok
}

func (g *StaticGeometry) Viewport() Rect {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.viewport
}

// ScrollIntoView recenters the element's registered box in the viewport,
// approximating what a real scroll would do.
func (g *StaticGeometry) ScrollIntoView(n *html.Node) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	box, ok := g.boxes[n]
	if !ok {
		return nil
	}
	box.X = g.viewport.X + (g.viewport.Width-box.Width)/2
	box.Y = g.viewport.Y + (g.viewport.Height-box.Height)/2
	g.boxes[n] = box
	return nil
}

func (g *StaticGeometry) ScrollBy(dx, dy float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for n, box := range g.boxes {
		box.X -= dx
		box.Y -= dy
		g.boxes[n] = box
	}
	return nil
}

// Visible defers to static markup checks; a StaticGeometry has no computed
// styles to consult.
func (g *StaticGeometry) Visible(n *html.Node) bool {
	return !StaticHidden(n)
}
