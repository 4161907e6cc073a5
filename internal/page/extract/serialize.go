// internal/page/extract/serialize.go

package extract

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/xkilldash9x/pagedriver/internal/page"
)

var blankRunsRe = regexp.MustCompile(`\n{3,}`)

// Serialize renders an element subtree as structured text: headings get #
// prefixes, list items get bullets, blockquotes get > prefixes, code blocks
// are fenced, links keep their destinations, images contribute alt text.
// Output longer than maxLen is cut at maxLen with a truncation marker.
func Serialize(n *html.Node, maxLen int) string {
	var r renderer
	r.child(n)
	r.flushPara()
	out := blankRunsRe.ReplaceAllString(r.sb.String(), "\n\n")
	out = strings.TrimSpace(out)
	if maxLen > 0 && len(out) > maxLen {
		out = out[:maxLen] + TruncationMarker
	}
	return out
}

type renderer struct {
	sb   strings.Builder
	para strings.Builder
}

// flushPara emits any accumulated inline text as a paragraph.
func (r *renderer) flushPara() {
	text := page.NormalizeSpace(r.para.String())
	r.para.Reset()
	if text != "" {
		r.sb.WriteString(text)
		r.sb.WriteString("\n\n")
	}
}

func (r *renderer) block(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		r.child(c)
	}
	r.flushPara()
}

func (r *renderer) child(n *html.Node) {
	if n.Type == html.TextNode {
		r.para.WriteString(n.Data)
		return
	}
	if n.Type != html.ElementNode {
		return
	}
	switch n.Data {
	case "script", "style", "noscript", "template":
		return
	case "h1", "h2", "h3", "h4", "h5", "h6":
		r.flushPara()
		level := int(n.Data[1] - '0')
		text := page.NormalizeSpace(r.inline(n))
		if text != "" {
			r.sb.WriteString(strings.Repeat("#", level))
			r.sb.WriteString(" ")
			r.sb.WriteString(text)
			r.sb.WriteString("\n\n")
		}
	case "p":
		r.flushPara()
		r.para.WriteString(r.inline(n))
		r.flushPara()
	case "ul", "ol":
		r.flushPara()
		for li := n.FirstChild; li != nil; li = li.NextSibling {
			if li.Type == html.ElementNode && li.Data == "li" {
				text := page.NormalizeSpace(r.inline(li))
				if text != "" {
					r.sb.WriteString("- ")
					r.sb.WriteString(text)
					r.sb.WriteString("\n")
				}
			}
		}
		r.sb.WriteString("\n")
	case "blockquote":
		r.flushPara()
		var inner renderer
		inner.block(n)
		quoted := strings.TrimSpace(inner.sb.String())
		if quoted != "" {
			for _, line := range strings.Split(quoted, "\n") {
				r.sb.WriteString("> ")
				r.sb.WriteString(line)
				r.sb.WriteString("\n")
			}
			r.sb.WriteString("\n")
		}
	case "pre":
		r.flushPara()
		code := strings.Trim(page.FullText(n), "\n")
		if code != "" {
			r.sb.WriteString("```\n")
			r.sb.WriteString(code)
			r.sb.WriteString("\n```\n\n")
		}
	case "br":
		r.para.WriteString("\n")
	case "hr":
		r.flushPara()
		r.sb.WriteString("---\n\n")
	case "table", "thead", "tbody", "tfoot", "tr":
		r.flushPara()
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			r.child(c)
		}
		r.flushPara()
	case "td", "th":
		text := page.NormalizeSpace(r.inline(n))
		if text != "" {
			r.para.WriteString(text)
			r.para.WriteString(" | ")
		}
	case "body", "div", "section", "article", "main", "figure", "figcaption",
		"dl", "dt", "dd", "details", "summary":
		r.flushPara()
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			r.child(c)
		}
		r.flushPara()
	default:
		// Inline elements accumulate into the open paragraph.
		r.para.WriteString(r.inlineSelf(n))
	}
}

// inline renders a node's content on one logical line, preserving link
// destinations, inline code ticks and image alt text.
func (r *renderer) inline(n *html.Node) string {
	return r.renderInline(n, false)
}

// inlineSelf is inline but treats n itself as part of the output, so a bare
// <a> or <img> sitting directly under a block keeps its destination or alt.
func (r *renderer) inlineSelf(n *html.Node) string {
	return r.renderInline(n, true)
}

func (r *renderer) renderInline(n *html.Node, includeSelf bool) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(c *html.Node) {
		switch c.Type {
		case html.TextNode:
			sb.WriteString(c.Data)
			return
		case html.ElementNode:
		default:
			return
		}
		switch c.Data {
		case "script", "style", "noscript", "template":
			return
		case "a":
			text := page.NormalizeSpace(page.FullText(c))
			href := page.Attr(c, "href")
			switch {
			case text == "":
			case href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:"):
				sb.WriteString(text)
			default:
				sb.WriteString("[")
				sb.WriteString(text)
				sb.WriteString("](")
				sb.WriteString(href)
				sb.WriteString(")")
			}
			return
		case "code":
			text := page.NormalizeSpace(page.FullText(c))
			if text != "" {
				sb.WriteString("`")
				sb.WriteString(text)
				sb.WriteString("`")
			}
			return
		case "img":
			if alt := strings.TrimSpace(page.Attr(c, "alt")); alt != "" {
				sb.WriteString(alt)
			}
			return
		case "br":
			sb.WriteString(" ")
			return
		}
		for gc := c.FirstChild; gc != nil; gc = gc.NextSibling {
			walk(gc)
		}
	}
	if includeSelf {
		walk(n)
	} else {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	return sb.String()
}
