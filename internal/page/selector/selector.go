// internal/page/selector/selector.go

// Package selector resolves logical element references against a parsed page:
// standard CSS, XPath, and the text-predicate pseudo-selectors
// (:has-text / :contains) used by recorded workflows.
package selector

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/pagedriver/internal/page"
)

// ErrNotFound indicates the selector matched no element.
var ErrNotFound = errors.New("no element matches selector")

// textPredicateRe captures `base:has-text('t')` and `base:contains("t")`.
// The base may be empty, meaning any element. RE2 has no backreferences, so
// the two quote styles are separate alternatives.
var textPredicateRe = regexp.MustCompile(`^(.*?):(?:has-text|contains)\(\s*(?:'([^']*)'|"([^"]*)")\s*\)$`)

// textPredicate is a parsed text pseudo-selector.
type textPredicate struct {
	base string
	text string
}

// parseTextPredicate returns the predicate and true when the selector uses
// the text-match syntax.
func parseTextPredicate(sel string) (textPredicate, bool) {
	m := textPredicateRe.FindStringSubmatch(strings.TrimSpace(sel))
	if m == nil {
		return textPredicate{}, false
	}
	text := m[2]
	if text == "" {
		text = m[3]
	}
	return textPredicate{base: strings.TrimSpace(m[1]), text: text}, true
}

// isXPath reports whether the selector should be handed to the XPath engine.
// CSS selectors cannot begin with a slash, so the prefix check is safe.
func isXPath(sel string) bool {
	return strings.HasPrefix(sel, "/") || strings.HasPrefix(sel, "xpath=")
}

// Resolve returns the first element matching the selector.
//
// Text predicates are special-cased before structural matching because their
// syntax is not valid CSS, and they never fall through to the generic path.
// Within the predicate scan, direct text is compared before descendant text
// so a container does not win merely because a nested element carries the
// match.
func Resolve(doc *page.Document, sel string) (*html.Node, error) {
	nodes, err := resolve(doc, sel, true)
	if err != nil {
		return nil, err
	}
	return nodes[0], nil
}

// ResolveAll returns every element matching the selector, in document order.
func ResolveAll(doc *page.Document, sel string) ([]*html.Node, error) {
	return resolve(doc, sel, false)
}

func resolve(doc *page.Document, sel string, firstOnly bool) ([]*html.Node, error) {
	sel = strings.TrimSpace(sel)
	if sel == "" {
		return nil, fmt.Errorf("%w: empty selector", ErrNotFound)
	}

	if pred, ok := parseTextPredicate(sel); ok {
		return resolveByText(doc, pred, firstOnly)
	}

	if isXPath(sel) {
		return resolveXPath(doc, strings.TrimPrefix(sel, "xpath="), firstOnly)
	}

	matcher, err := cascadia.Compile(sel)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid selector %q: %v", ErrNotFound, sel, err)
	}
	var out []*html.Node
	page.WalkElements(doc.Root(), func(n *html.Node) bool {
		if matcher.Match(n) {
			out = append(out, n)
			if firstOnly {
				return false
			}
		}
		return true
	})
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, sel)
	}
	return out, nil
}

// resolveByText scans candidates for the predicate text, case-insensitively.
// Direct text matches win over descendant text matches.
func resolveByText(doc *page.Document, pred textPredicate, firstOnly bool) ([]*html.Node, error) {
	candidates, err := textCandidates(doc, pred.base)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(pred.text)
	visible := page.VisibleSet(doc.Geometry(), candidates)
	var direct, descendant []*html.Node
	for _, n := range candidates {
		if !visible[n] {
			continue
		}
		if strings.Contains(strings.ToLower(page.DirectText(n)), needle) {
			direct = append(direct, n)
			continue
		}
		if strings.Contains(strings.ToLower(page.FullText(n)), needle) {
			descendant = append(descendant, n)
		}
	}

	matched := direct
	if len(matched) == 0 {
		matched = descendant
	}
	if len(matched) == 0 {
		return nil, fmt.Errorf("%w: no element with text %q under base %q", ErrNotFound, pred.text, pred.base)
	}
	if firstOnly {
		return matched[:1], nil
	}
	return matched, nil
}

// textCandidates returns the elements the text scan may consider: matches of
// the base selector, or every element when the base is empty.
func textCandidates(doc *page.Document, base string) ([]*html.Node, error) {
	var out []*html.Node
	if base == "" || base == "*" {
		page.WalkElements(doc.Root(), func(n *html.Node) bool {
			switch n.Data {
			case "html", "head", "script", "style", "noscript", "template":
				return true
			}
			out = append(out, n)
			return true
		})
		return out, nil
	}

	matcher, err := cascadia.Compile(base)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base selector %q: %v", ErrNotFound, base, err)
	}
	page.WalkElements(doc.Root(), func(n *html.Node) bool {
		if matcher.Match(n) {
			out = append(out, n)
		}
		return true
	})
	return out, nil
}

func resolveXPath(doc *page.Document, expr string, firstOnly bool) ([]*html.Node, error) {
	if firstOnly {
		n, err := htmlquery.Query(doc.Root(), expr)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid xpath %q: %v", ErrNotFound, expr, err)
		}
		if n == nil {
			return nil, fmt.Errorf("%w: %q", ErrNotFound, expr)
		}
		return []*html.Node{n}, nil
	}
	nodes, err := htmlquery.QueryAll(doc.Root(), expr)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid xpath %q: %v", ErrNotFound, expr, err)
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, expr)
	}
	return nodes, nil
}
