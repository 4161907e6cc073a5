// internal/page/suggest.go

package page

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var validTokenRe = regexp.MustCompile(`^[A-Za-z_][\w-]*$`)

// SuggestedSelector returns the most stable selector available for an
// element, preferring attributes that survive page redesigns: id, then
// data-testid, then name, then an aria-label qualified tag, then a single
// class, falling back to a structural path.
func SuggestedSelector(n *html.Node) string {
	if id := Attr(n, "id"); validTokenRe.MatchString(id) {
		return "#" + id
	}
	if tid := Attr(n, "data-testid"); tid != "" {
		return fmt.Sprintf(`[data-testid=%q]`, tid)
	}
	if name := Attr(n, "name"); name != "" {
		return fmt.Sprintf(`%s[name=%q]`, n.Data, name)
	}
	if label := Attr(n, "aria-label"); label != "" {
		return fmt.Sprintf(`%s[aria-label=%q]`, n.Data, label)
	}
	for _, class := range strings.Fields(Attr(n, "class")) {
		if validTokenRe.MatchString(class) {
			return n.Data + "." + class
		}
	}
	return NodePath(n)
}
