// internal/driver/cdp/geometry.go

package cdp

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"golang.org/x/net/html"

	pagedom "github.com/xkilldash9x/pagedriver/internal/page"
)

// geometryTimeout bounds each individual layout query against the page.
const geometryTimeout = 5 * time.Second

// liveGeometry answers layout questions by evaluating against the live page.
// Elements from the agent's parsed capture are located in the live DOM by
// their structural path; if the page has mutated enough that the path no
// longer resolves, the query reports absence and the caller surfaces it as a
// missing element.
type liveGeometry struct {
	host *Host
}

type jsRect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Found  bool    `json:"found"`
}

func (g *liveGeometry) eval(expr string, out interface{}) error {
	ctx, cancel := context.WithTimeout(context.Background(), geometryTimeout)
	defer cancel()
	return g.host.run(ctx, chromedp.Evaluate(expr, out))
}

func (g *liveGeometry) BoundingBox(n *html.Node) (pagedom.Rect, bool) {
	expr := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		if (!el) return {found: false};
		const r = el.getBoundingClientRect();
		return {x: r.x, y: r.y, width: r.width, height: r.height, found: true};
	})()`, pagedom.NodePath(n))
	var r jsRect
	if err := g.eval(expr, &r); err != nil || !r.Found {
		return pagedom.Rect{}, false
	}
	return pagedom.Rect{X: r.X, Y: r.Y, Width: r.Width, Height: r.Height}, true
}

func (g *liveGeometry) Viewport() pagedom.Rect {
	var r jsRect
	if err := g.eval(`({x: 0, y: 0, width: window.innerWidth, height: window.innerHeight, found: true})`, &r); err != nil {
		return pagedom.Rect{Width: 1280, Height: 720}
	}
	return pagedom.Rect{Width: r.Width, Height: r.Height}
}

func (g *liveGeometry) ScrollIntoView(n *html.Node) error {
	expr := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		if (el) el.scrollIntoView({block: "center", inline: "center"});
		return true;
	})()`, pagedom.NodePath(n))
	var ok bool
	return g.eval(expr, &ok)
}

func (g *liveGeometry) ScrollBy(dx, dy float64) error {
	var ok bool
	return g.eval(fmt.Sprintf(`(window.scrollBy(%f, %f), true)`, dx, dy), &ok)
}

// Visible folds static markup checks with the page's computed style. When
// the live query fails, the static answer stands.
func (g *liveGeometry) Visible(n *html.Node) bool {
	if pagedom.StaticHidden(n) {
		return false
	}
	expr := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		if (!el) return true;
		const s = window.getComputedStyle(el);
		return s.display !== "none" && s.visibility !== "hidden" && s.opacity !== "0";
	})()`, pagedom.NodePath(n))
	var visible bool
	if err := g.eval(expr, &visible); err != nil {
		return true
	}
	return visible
}

// VisibleSet answers visibility for many nodes in one evaluation instead of
// one round trip per node. Nodes already hidden by markup never reach the
// page.
func (g *liveGeometry) VisibleSet(nodes []*html.Node) map[*html.Node]bool {
	out := make(map[*html.Node]bool, len(nodes))
	live := make([]*html.Node, 0, len(nodes))
	paths := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if pagedom.StaticHidden(n) {
			out[n] = false
			continue
		}
		out[n] = true
		live = append(live, n)
		paths = append(paths, pagedom.NodePath(n))
	}
	if len(live) == 0 {
		return out
	}

	encoded, err := fastjson.Marshal(paths)
	if err != nil {
		return out
	}
	expr := fmt.Sprintf(`(%s).map(p => {
		const el = document.querySelector(p);
		if (!el) return true;
		const s = window.getComputedStyle(el);
		return s.display !== "none" && s.visibility !== "hidden" && s.opacity !== "0";
	})`, encoded)
	var visible []bool
	if err := g.eval(expr, &visible); err != nil || len(visible) != len(live) {
		return out
	}
	for i, n := range live {
		out[n] = visible[i]
	}
	return out
}
