// internal/page/snapshot/roles.go
package snapshot

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/xkilldash9x/pagedriver/internal/page"
)

// skipTags are never emitted and their subtrees are not descended into.
var skipTags = map[string]bool{
	"script": true, "style": true, "noscript": true, "template": true,
	"svg": true, "path": true, "head": true, "meta": true, "link": true,
	"base": true, "br": true,
}

// tagRoles maps HTML tags to their implicit ARIA role.
var tagRoles = map[string]string{
	"button":   "button",
	"select":   "combobox",
	"textarea": "textbox",
	"img":      "img",
	"nav":      "navigation",
	"main":     "main",
	"header":   "banner",
	"footer":   "contentinfo",
	"aside":    "complementary",
	"form":     "form",
	"table":    "table",
	"tr":       "row",
	"td":       "cell",
	"th":       "columnheader",
	"ul":       "list",
	"ol":       "list",
	"li":       "listitem",
	"option":   "option",
	"summary":  "button",
	"details":  "group",
	"dialog":   "dialog",
	"fieldset": "group",
	"h1":       "heading",
	"h2":       "heading",
	"h3":       "heading",
	"h4":       "heading",
	"h5":       "heading",
	"h6":       "heading",
}

// inputRoles maps input types to roles. Hidden inputs never get here; static
// hiding removes them during the walk.
var inputRoles = map[string]string{
	"text": "textbox", "email": "textbox", "url": "textbox", "tel": "textbox",
	"password": "textbox", "search": "searchbox",
	"checkbox": "checkbox", "radio": "radio",
	"button": "button", "submit": "button", "reset": "button", "image": "button",
	"range": "slider", "number": "spinbutton", "file": "button",
	"date": "textbox", "time": "textbox", "datetime-local": "textbox",
	"color": "button",
}

var interactiveRoles = map[string]bool{
	"button": true, "link": true, "checkbox": true, "radio": true,
	"textbox": true, "searchbox": true, "combobox": true, "listbox": true,
	"menuitem": true, "menuitemcheckbox": true, "menuitemradio": true,
	"option": true, "slider": true, "spinbutton": true, "switch": true,
	"tab": true, "treeitem": true,
}

// textBearing lists tags whose rendered text supplies their accessible name.
var textBearing = map[string]bool{
	"a": true, "button": true, "summary": true, "option": true,
	"legend": true, "label": true, "th": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

// roleOf returns the element's explicit or inferred role, or "".
func roleOf(n *html.Node) string {
	if role := strings.ToLower(strings.TrimSpace(page.Attr(n, "role"))); role != "" {
		// Multiple fallback roles may be listed; the first wins.
		return strings.Fields(role)[0]
	}
	switch n.Data {
	case "a":
		if page.HasAttr(n, "href") {
			return "link"
		}
		return ""
	case "input":
		t := strings.ToLower(page.Attr(n, "type"))
		if t == "" {
			t = "text"
		}
		return inputRoles[t]
	}
	return tagRoles[n.Data]
}

// isInteractive classifies an element as accepting user input.
func isInteractive(n *html.Node, role string) bool {
	switch n.Data {
	case "button", "select", "textarea", "input", "summary":
		return !page.HasAttr(n, "disabled")
	case "a":
		return page.HasAttr(n, "href")
	}
	if interactiveRoles[role] {
		return true
	}
	if page.HasAttr(n, "onclick") {
		return true
	}
	if strings.EqualFold(page.Attr(n, "contenteditable"), "true") {
		return true
	}
	if ti := page.Attr(n, "tabindex"); ti != "" {
		if v, err := strconv.Atoi(ti); err == nil && v >= 0 {
			return true
		}
	}
	return false
}

// accessibleName resolves an element's name. Resolution order: aria-label,
// aria-labelledby targets, associated form label, element text for
// text-bearing tags, title, placeholder, alt, then heading text. First
// non-empty wins.
func (b *builder) accessibleName(n *html.Node) string {
	if label := page.NormalizeSpace(page.Attr(n, "aria-label")); label != "" {
		return label
	}
	if ids := strings.Fields(page.Attr(n, "aria-labelledby")); len(ids) > 0 {
		var parts []string
		for _, id := range ids {
			if ref, ok := b.byID[id]; ok {
				if text := page.FullText(ref); text != "" {
					parts = append(parts, text)
				}
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, " ")
		}
	}
	if name := b.formLabelText(n); name != "" {
		return name
	}
	if textBearing[n.Data] {
		if text := page.FullText(n); text != "" {
			return truncateName(text)
		}
	}
	if title := page.NormalizeSpace(page.Attr(n, "title")); title != "" {
		return title
	}
	if ph := page.NormalizeSpace(page.Attr(n, "placeholder")); ph != "" {
		return ph
	}
	if alt := page.NormalizeSpace(page.Attr(n, "alt")); alt != "" {
		return alt
	}
	if strings.HasPrefix(n.Data, "h") && len(n.Data) == 2 {
		if text := page.FullText(n); text != "" {
			return truncateName(text)
		}
	}
	return ""
}

// formLabelText finds a <label for=id> pointing at the element, or a label
// wrapping it.
func (b *builder) formLabelText(n *html.Node) string {
	switch n.Data {
	case "input", "select", "textarea":
	default:
		return ""
	}
	if id := page.Attr(n, "id"); id != "" {
		if label, ok := b.labelFor[id]; ok {
			if text := page.FullText(label); text != "" {
				return text
			}
		}
	}
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && p.Data == "label" {
			if text := page.FullText(p); text != "" {
				return text
			}
		}
	}
	return ""
}

const maxNameLength = 120

func truncateName(s string) string {
	if len(s) <= maxNameLength {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxNameLength {
		return s
	}
	return string(runes[:maxNameLength]) + "…"
}
