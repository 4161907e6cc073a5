// internal/page/snapshot/capture.go

package snapshot

import (
	"golang.org/x/net/html"

	"github.com/xkilldash9x/pagedriver/api/schemas"
	"github.com/xkilldash9x/pagedriver/internal/page"
)

// CaptureElements collects the page's visible interactive elements, each
// with the most stable selector available for replaying actions against it.
func CaptureElements(doc *page.Document) []schemas.CapturedElement {
	b := &builder{
		doc:      doc,
		byID:     make(map[string]*html.Node),
		labelFor: make(map[string]*html.Node),
	}
	b.indexDocument()
	b.visible = visibilityIndex(doc)

	var out []schemas.CapturedElement
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type != html.ElementNode {
			return
		}
		if skipTags[n.Data] || !b.visible[n] {
			return
		}
		role := roleOf(n)
		if isInteractive(n, role) {
			out = append(out, schemas.CapturedElement{
				Selector: page.SuggestedSelector(n),
				Tag:      n.Data,
				Text:     truncateName(page.NormalizeSpace(page.FullText(n))),
				Role:     role,
				Label:    b.accessibleName(n),
			})
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for c := doc.Body().FirstChild; c != nil; c = c.NextSibling {
		walk(c)
	}
	return out
}
