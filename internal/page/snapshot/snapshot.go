// internal/page/snapshot/snapshot.go

// Package snapshot builds accessibility snapshots: a depth-first walk of the
// visible DOM that assigns monotonic reference ids to elements with semantic
// meaning and serializes them as an indented tree.
package snapshot

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/xkilldash9x/pagedriver/api/schemas"
	"github.com/xkilldash9x/pagedriver/internal/page"
)

// RefMap resolves snapshot reference ids back to DOM nodes. A RefMap is valid
// only until the next snapshot of the same page; builders always produce a
// fresh map, never merge into an old one.
type RefMap struct {
	nodes map[int]*html.Node
}

// Get returns the node a ref points at.
func (m *RefMap) Get(ref int) (*html.Node, bool) {
	if m == nil {
		return nil, false
	}
	n, ok := m.nodes[ref]
	return n, ok
}

// Len returns the number of assigned refs.
func (m *RefMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.nodes)
}

// Result is one complete snapshot.
type Result struct {
	Tree     string
	RefCount int
	Nodes    []*schemas.AXNode
	Refs     *RefMap
}

type builder struct {
	doc            *page.Document
	includeContent bool
	nextRef        int
	refs           *RefMap
	byID           map[string]*html.Node
	labelFor       map[string]*html.Node
	visible        map[*html.Node]bool
}

// Build walks the document and produces a snapshot. Reference ids restart
// from 1 on every call.
func Build(doc *page.Document, includeContent bool) *Result {
	b := &builder{
		doc:            doc,
		includeContent: includeContent,
		refs:           &RefMap{nodes: make(map[int]*html.Node)},
		byID:           make(map[string]*html.Node),
		labelFor:       make(map[string]*html.Node),
	}
	b.indexDocument()
	b.visible = visibilityIndex(doc)

	var roots []*schemas.AXNode
	for c := doc.Body().FirstChild; c != nil; c = c.NextSibling {
		b.walk(c, &roots)
	}

	res := &Result{
		RefCount: b.nextRef,
		Nodes:    roots,
		Refs:     b.refs,
	}
	var sb strings.Builder
	serialize(&sb, roots, 0)
	res.Tree = strings.TrimRight(sb.String(), "\n")
	return res
}

// visibilityIndex resolves visibility for every element up front. Against a
// live page each probe is a round trip, so the whole walk is answered in one
// batched query.
func visibilityIndex(doc *page.Document) map[*html.Node]bool {
	var all []*html.Node
	page.WalkElements(doc.Root(), func(n *html.Node) bool {
		all = append(all, n)
		return true
	})
	return page.VisibleSet(doc.Geometry(), all)
}

// indexDocument prepares the id and label lookups used by accessible-name
// resolution.
func (b *builder) indexDocument() {
	page.WalkElements(b.doc.Root(), func(n *html.Node) bool {
		if id := page.Attr(n, "id"); id != "" {
			if _, exists := b.byID[id]; !exists {
				b.byID[id] = n
			}
		}
		if n.Data == "label" {
			if target := page.Attr(n, "for"); target != "" {
				if _, exists := b.labelFor[target]; !exists {
					b.labelFor[target] = n
				}
			}
		}
		return true
	})
}

// walk emits the element as a node, or treats it as a transparent container
// and promotes its children to the current level.
func (b *builder) walk(n *html.Node, siblings *[]*schemas.AXNode) {
	if n.Type == html.TextNode {
		if b.includeContent {
			if text := page.NormalizeSpace(n.Data); text != "" {
				*siblings = append(*siblings, &schemas.AXNode{Role: "text", Name: truncateName(text)})
			}
		}
		return
	}
	if n.Type != html.ElementNode {
		return
	}
	if skipTags[n.Data] {
		return
	}
	if !b.visible[n] {
		return
	}

	role := roleOf(n)
	interactive := isInteractive(n, role)
	name := b.accessibleName(n)

	if role == "" && name == "" && !interactive {
		// Transparent container: children surface at this level.
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			b.walk(c, siblings)
		}
		return
	}

	b.nextRef++
	node := &schemas.AXNode{
		Role:        role,
		Name:        name,
		Ref:         b.nextRef,
		Interactive: interactive,
	}
	if role == "" {
		node.Role = "generic"
	}
	b.refs.nodes[b.nextRef] = n
	b.applyStates(n, node)

	// Text-bearing elements already carry their text as the name; walking
	// into them would duplicate it as content lines.
	descend := !textBearing[n.Data] && n.Data != "input" && n.Data != "textarea" && n.Data != "select"
	if descend {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			b.walk(c, &node.Children)
		}
	}
	*siblings = append(*siblings, node)
}

// applyStates records form-control state flags and the current value.
func (b *builder) applyStates(n *html.Node, node *schemas.AXNode) {
	if page.HasAttr(n, "disabled") || strings.EqualFold(page.Attr(n, "aria-disabled"), "true") {
		node.Disabled = true
	}

	switch n.Data {
	case "input":
		t := strings.ToLower(page.Attr(n, "type"))
		if t == "checkbox" || t == "radio" {
			checked := page.HasAttr(n, "checked")
			node.Checked = &checked
		} else {
			node.Value = page.Attr(n, "value")
		}
	case "textarea":
		node.Value = page.FullText(n)
	case "select":
		node.Value = selectedOptionText(n)
	case "option":
		node.Selected = page.HasAttr(n, "selected")
	case "details":
		expanded := page.HasAttr(n, "open")
		node.Expanded = &expanded
	}

	if v := strings.ToLower(page.Attr(n, "aria-checked")); v == "true" || v == "false" {
		checked := v == "true"
		node.Checked = &checked
	}
	if v := strings.ToLower(page.Attr(n, "aria-expanded")); v == "true" || v == "false" {
		expanded := v == "true"
		node.Expanded = &expanded
	}
	if strings.EqualFold(page.Attr(n, "aria-selected"), "true") {
		node.Selected = true
	}
}

func selectedOptionText(sel *html.Node) string {
	var first, selected *html.Node
	page.WalkElements(sel, func(n *html.Node) bool {
		if n.Data != "option" {
			return true
		}
		if first == nil {
			first = n
		}
		if page.HasAttr(n, "selected") && selected == nil {
			selected = n
		}
		return true
	})
	if selected == nil {
		selected = first
	}
	if selected == nil {
		return ""
	}
	return page.FullText(selected)
}

// serialize writes the line-oriented tree: two-space indent per depth, role,
// quoted name, ref marker for interactive or named nodes, then bracketed
// state annotations and a quoted value.
func serialize(sb *strings.Builder, nodes []*schemas.AXNode, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, node := range nodes {
		sb.WriteString(indent)
		sb.WriteString(node.Role)
		if node.Name != "" {
			fmt.Fprintf(sb, " %q", node.Name)
		}
		if node.Ref > 0 && (node.Interactive || node.Name != "") {
			fmt.Fprintf(sb, " [ref=%d]", node.Ref)
		}
		if node.Checked != nil {
			if *node.Checked {
				sb.WriteString(" [checked]")
			} else {
				sb.WriteString(" [unchecked]")
			}
		}
		if node.Disabled {
			sb.WriteString(" [disabled]")
		}
		if node.Expanded != nil {
			if *node.Expanded {
				sb.WriteString(" [expanded]")
			} else {
				sb.WriteString(" [collapsed]")
			}
		}
		if node.Selected {
			sb.WriteString(" [selected]")
		}
		if node.Value != "" {
			fmt.Fprintf(sb, " %q", node.Value)
		}
		sb.WriteString("\n")
		serialize(sb, node.Children, depth+1)
	}
}
