// internal/page/extract/extract.go

// Package extract finds a page's main content and serializes it as
// structured prose, with boilerplate regions (navigation, sidebars, ads)
// stripped.
package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/pagedriver/internal/page"
)

// Config carries the extraction tuning knobs. The score floor and density
// ceilings are empirically tuned; see the driver configuration.
type Config struct {
	MinWords     int
	MaxLinkRatio float64
	MinScore     float64
	MaxOutput    int
}

// DefaultConfig mirrors the driver's configuration defaults.
func DefaultConfig() Config {
	return Config{MinWords: 100, MaxLinkRatio: 0.3, MinScore: 30, MaxOutput: 20000}
}

// TruncationMarker is appended when output exceeds Config.MaxOutput.
const TruncationMarker = "...[truncated]"

// commonContainers are content-container patterns tried after the semantic
// elements, in order.
var commonContainers = []string{
	"#content", "#main-content", "#main", "#article",
	".main-content", ".post-content", ".article-content", ".entry-content",
	".article-body", ".post-body", ".story-body", ".content-body", ".page-content",
}

var (
	semanticNameRe    = regexp.MustCompile(`(?i)article|content|post|body|main|story|entry|text`)
	boilerplateNameRe = regexp.MustCompile(`(?i)nav|menu|sidebar|footer|header|comment|promo|advert|banner|widget|share|social|sponsor|related|breadcrumb|\bad\b|\bads\b`)
)

// boilerplateSelectors are stripped from the body fallback and from chosen
// candidates before serialization.
var boilerplateSelectors = "nav, header, footer, aside, form, iframe, " +
	"[role=navigation], [role=banner], [role=contentinfo], [role=complementary]"

// MainContent returns the page's main content as structured text. Candidate
// selection order: semantic containers, common container patterns, heuristic
// scoring over generic blocks, then a cleaned copy of the whole body.
func MainContent(doc *page.Document, cfg Config) string {
	gq := goquery.NewDocumentFromNode(doc.Root())

	if n := firstSubstantial(gq, "main, article, [role=main]", cfg); n != nil {
		return serializeCandidate(n, cfg)
	}
	for _, sel := range commonContainers {
		if n := firstSubstantial(gq, sel, cfg); n != nil {
			return serializeCandidate(n, cfg)
		}
	}
	if n := bestScored(gq, cfg); n != nil {
		return serializeCandidate(n, cfg)
	}

	// Last resort: the whole body with known boilerplate removed.
	body := gq.Find("body")
	if body.Length() == 0 {
		return ""
	}
	cleaned := cleanClone(body.Nodes[0])
	return Serialize(cleaned, cfg.MaxOutput)
}

// firstSubstantial returns the first match of sel passing the substantiality
// test: enough words, low enough link density.
func firstSubstantial(gq *goquery.Document, sel string, cfg Config) *html.Node {
	var found *html.Node
	gq.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		n := s.Nodes[0]
		if substantial(n, cfg) {
			found = n
			return false
		}
		return true
	})
	return found
}

func substantial(n *html.Node, cfg Config) bool {
	words := wordCount(n)
	if words < cfg.MinWords {
		return false
	}
	return linkDensity(n) < cfg.MaxLinkRatio
}

// bestScored runs the heuristic scorer over generic block containers and
// returns the best candidate above the score floor.
func bestScored(gq *goquery.Document, cfg Config) *html.Node {
	var best *html.Node
	var bestScore float64
	gq.Find("div, section, td").Each(func(_ int, s *goquery.Selection) {
		n := s.Nodes[0]
		score := scoreCandidate(n)
		if score > bestScore {
			best = n
			bestScore = score
		}
	})
	if bestScore < cfg.MinScore {
		return nil
	}
	return best
}

// scoreCandidate rewards prose signals (words, paragraphs, headings) and
// penalizes link and form-control density, with a multiplicative bonus for
// semantic class/id naming and a penalty for boilerplate naming.
func scoreCandidate(n *html.Node) float64 {
	words := wordCount(n)
	if words == 0 {
		return 0
	}
	scoredWords := words
	if scoredWords > 1000 {
		scoredWords = 1000
	}

	paragraphs := countTags(n, "p")
	headings := countTags(n, "h1", "h2", "h3", "h4", "h5", "h6")
	controls := countTags(n, "input", "select", "textarea", "button")

	score := float64(scoredWords)/10 + float64(paragraphs)*5 + float64(headings)*3
	score -= linkDensity(n) * 50
	score -= float64(controls*100) / float64(words) * 2

	naming := page.Attr(n, "class") + " " + page.Attr(n, "id")
	if boilerplateNameRe.MatchString(naming) {
		score *= 0.3
	} else if semanticNameRe.MatchString(naming) {
		score *= 1.5
	}
	return score
}

func wordCount(n *html.Node) int {
	return len(strings.Fields(page.FullText(n)))
}

// linkDensity is the fraction of the candidate's words living inside links.
func linkDensity(n *html.Node) float64 {
	words := wordCount(n)
	if words == 0 {
		return 0
	}
	linkWords := 0
	page.WalkElements(n, func(e *html.Node) bool {
		if e.Data == "a" {
			linkWords += len(strings.Fields(page.FullText(e)))
		}
		return true
	})
	return float64(linkWords) / float64(words)
}

func countTags(n *html.Node, tags ...string) int {
	want := make(map[string]bool, len(tags))
	for _, t := range tags {
		want[t] = true
	}
	count := 0
	page.WalkElements(n, func(e *html.Node) bool {
		if want[e.Data] {
			count++
		}
		return true
	})
	return count
}

func serializeCandidate(n *html.Node, cfg Config) string {
	return Serialize(cleanClone(n), cfg.MaxOutput)
}

// cleanClone deep-copies the subtree and removes boilerplate regions from the
// copy; callers must not mutate the live document.
func cleanClone(n *html.Node) *html.Node {
	clone := cloneTree(n)
	matcher := goquery.NewDocumentFromNode(clone)
	matcher.Find(boilerplateSelectors).Each(func(_ int, s *goquery.Selection) {
		removeNode(s.Nodes[0])
	})
	// Strip elements whose class/id naming marks them as boilerplate.
	var doomed []*html.Node
	page.WalkElements(clone, func(e *html.Node) bool {
		if e == clone {
			return true
		}
		naming := page.Attr(e, "class") + " " + page.Attr(e, "id")
		if strings.TrimSpace(naming) != "" && boilerplateNameRe.MatchString(naming) {
			doomed = append(doomed, e)
		}
		return true
	})
	for _, e := range doomed {
		removeNode(e)
	}
	return clone
}

func cloneTree(n *html.Node) *html.Node {
	clone := &html.Node{
		Type:     n.Type,
		DataAtom: n.DataAtom,
		Data:     n.Data,
		Attr:     append([]html.Attribute(nil), n.Attr...),
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		clone.AppendChild(cloneTree(c))
	}
	return clone
}

func removeNode(n *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}
