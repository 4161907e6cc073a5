// internal/page/document.go
package page

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// Document is the in-page view of one loaded page: a parsed DOM plus the
// geometry capability of the host rendering it. Engines in the subpackages
// operate on a Document and own no state of their own beyond one command.
type Document struct {
	root *html.Node
	url  *url.URL
	geo  Geometry
}

// Parse builds a Document from serialized HTML. A nil geometry falls back to
// static visibility checks with no box information.
func Parse(r io.Reader, pageURL string, geo Geometry) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page HTML: %w", err)
	}
	var u *url.URL
	if pageURL != "" {
		if parsed, err := url.Parse(pageURL); err == nil {
			u = parsed
		}
	}
	if geo == nil {
		geo = NewStaticGeometry()
	}
	return &Document{root: root, url: u, geo: geo}, nil
}

// ParseString is Parse over an in-memory HTML string.
func ParseString(htmlText, pageURL string, geo Geometry) (*Document, error) {
	return Parse(strings.NewReader(htmlText), pageURL, geo)
}

// Root returns the document root node.
func (d *Document) Root() *html.Node { return d.root }

// URL returns the page URL, or nil when unknown.
func (d *Document) URL() *url.URL { return d.url }

// Geometry returns the host geometry capability.
func (d *Document) Geometry() Geometry { return d.geo }

// Body returns the body element, or the root when the document has none.
func (d *Document) Body() *html.Node {
	if body := findFirst(d.root, "body"); body != nil {
		return body
	}
	return d.root
}

func findFirst(root *html.Node, tag string) *html.Node {
	var found *html.Node
	WalkElements(root, func(n *html.Node) bool {
		if n.Data == tag {
			found = n
			return false
		}
		return true
	})
	return found
}

// WalkElements visits element nodes depth-first in document order. Returning
// false from fn stops the walk.
func WalkElements(root *html.Node, fn func(n *html.Node) bool) {
	var walk func(n *html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode {
			if !fn(n) {
				return false
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if !walk(c) {
				return false
			}
		}
		return true
	}
	walk(root)
}

// Attr returns the value of an attribute, or "" when absent.
func Attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// HasAttr reports whether the attribute is present, regardless of value.
func HasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

// DirectText returns the concatenated text of the element's own text-node
// children, whitespace-normalized. Descendant element text is excluded.
func DirectText(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	}
	return NormalizeSpace(sb.String())
}

// FullText returns the rendered text of the element and all descendants,
// whitespace-normalized.
func FullText(n *html.Node) string {
	var sb strings.Builder
	var walk func(x *html.Node)
	walk = func(x *html.Node) {
		if x.Type == html.TextNode {
			sb.WriteString(x.Data)
			sb.WriteString(" ")
			return
		}
		if x.Type == html.ElementNode {
			switch x.Data {
			case "script", "style", "noscript", "template":
				return
			}
		}
		for c := x.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return NormalizeSpace(sb.String())
}

// NormalizeSpace collapses runs of whitespace to single spaces and trims.
func NormalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// StaticHidden reports whether static markup alone already hides an element:
// the hidden attribute, aria-hidden, an inline display/visibility style, or a
// hidden input, on the element or any ancestor. Computed styles are the
// geometry capability's concern.
func StaticHidden(n *html.Node) bool {
	for cur := n; cur != nil && cur.Type == html.ElementNode; cur = cur.Parent {
		if staticHiddenSelf(cur) {
			return true
		}
	}
	return false
}

func staticHiddenSelf(n *html.Node) bool {
	if HasAttr(n, "hidden") {
		return true
	}
	if strings.EqualFold(Attr(n, "aria-hidden"), "true") {
		return true
	}
	if n.Data == "input" && strings.EqualFold(Attr(n, "type"), "hidden") {
		return true
	}
	style := strings.ToLower(strings.ReplaceAll(Attr(n, "style"), " ", ""))
	if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
		return true
	}
	return false
}

// NodePath builds a CSS path uniquely addressing the node from the document
// root, preferring an id hop where one exists. The host geometry uses these
// paths to address live elements.
func NodePath(n *html.Node) string {
	if n == nil || n.Type != html.ElementNode {
		return ""
	}
	var parts []string
	for cur := n; cur != nil && cur.Type == html.ElementNode; cur = cur.Parent {
		if id := Attr(cur, "id"); id != "" && !strings.ContainsAny(id, " \t\"'") {
			parts = append(parts, fmt.Sprintf("#%s", id))
			break
		}
		idx := 1
		for sib := cur.PrevSibling; sib != nil; sib = sib.PrevSibling {
			if sib.Type == html.ElementNode && sib.Data == cur.Data {
				idx++
			}
		}
		parts = append(parts, fmt.Sprintf("%s:nth-of-type(%d)", cur.Data, idx))
	}
	// Reverse into document order.
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, " > ")
}
