// internal/page/selector/selector_test.go
package selector

import (
	"errors"
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/pagedriver/internal/page"
)

func mustDoc(t *testing.T, htmlText string) *page.Document {
	t.Helper()
	doc, err := page.ParseString(htmlText, "https://example.test/page", page.NewStaticGeometry())
	require.NoError(t, err)
	return doc
}

const fixture = `<!DOCTYPE html>
<html><head><title>t</title></head><body>
  <div id="wrapper" class="outer">
    <button id="go" class="btn primary">Go</button>
    <button class="btn">Cancel</button>
    <a href="/about">About Us</a>
    <span>deep <b>nested go
</b></span>
  </div>
  <div hidden><button>Go</button></div>
  <ul>
    <li class="item">one</li>
    <li class="item">two</li>
    <li class="item">three</li>
  </ul>
</body></html>`

func TestResolveCSS(t *testing.T) {
	doc := mustDoc(t, fixture)

	n, err := Resolve(doc, "#go")
	require.NoError(t, err)
	assert.Equal(t, "button", n.Data)
	assert.Equal(t, "Go", page.DirectText(n))

	n, err = Resolve(doc, ".btn")
	require.NoError(t, err)
	assert.Equal(t, "Go", page.DirectText(n), "first match wins")

	_, err = Resolve(doc, "#missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveTextPredicate(t *testing.T) {
	doc := mustDoc(t, fixture)

	tests := []struct {
		name     string
		selector string
		wantTag  string
		wantText string
	}{
		{"has-text with base", "button:has-text('Go')", "button", "Go"},
		{"contains alias", `button:contains("Cancel")`, "button", "Cancel"},
		{"case insensitive", "button:has-text('gO')", "button", "Go"},
		{"bare predicate", ":has-text('About Us')", "a", "About Us"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			n, err := Resolve(doc, tc.selector)
			require.NoError(t, err)
			assert.Equal(t, tc.wantTag, n.Data)
			assert.Equal(t, tc.wantText, page.NormalizeSpace(page.DirectText(n)))
		})
	}

	_, err := Resolve(doc, "button:has-text('no such label')")
	assert.ErrorIs(t, err, ErrNotFound)
}

// A container whose descendant carries the text must lose to the element
// holding the text directly.
func TestResolveDirectTextBeatsDescendant(t *testing.T) {
	doc := mustDoc(t, fixture)

	n, err := Resolve(doc, ":has-text('nested go')")
	require.NoError(t, err)
	assert.Equal(t, "b", n.Data, "the element holding the text directly beats its ancestors")
}

func TestResolveSkipsHiddenForTextMatch(t *testing.T) {
	doc := mustDoc(t, `<html><body>
	  <div hidden><button>Save</button></div>
	  <button>Save</button>
	</body></html>`)

	n, err := Resolve(doc, "button:has-text('Save')")
	require.NoError(t, err)
	assert.False(t, page.StaticHidden(n.Parent), "visible button must win")
}

func TestResolveXPath(t *testing.T) {
	doc := mustDoc(t, fixture)

	n, err := Resolve(doc, "//button[@id='go']")
	require.NoError(t, err)
	assert.Equal(t, "button", n.Data)

	n, err = Resolve(doc, "xpath=//a")
	require.NoError(t, err)
	assert.Equal(t, "a", n.Data)

	_, err = Resolve(doc, "//article")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveAll(t *testing.T) {
	doc := mustDoc(t, fixture)

	nodes, err := ResolveAll(doc, "li.item")
	require.NoError(t, err)
	require.Len(t, nodes, 3)
	assert.Equal(t, "one", page.DirectText(nodes[0]))
	assert.Equal(t, "three", page.DirectText(nodes[2]))

	nodes, err = ResolveAll(doc, ":has-text('Go')")
	require.NoError(t, err)
	assert.NotEmpty(t, nodes)
}

func TestResolveEmptyAndInvalid(t *testing.T) {
	doc := mustDoc(t, fixture)

	_, err := Resolve(doc, "")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = Resolve(doc, "   ")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = Resolve(doc, "div[[")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestParseTextPredicate(t *testing.T) {
	pred, ok := parseTextPredicate("div.card:has-text('hello world')")
	require.True(t, ok)
	assert.Equal(t, "div.card", pred.base)
	assert.Equal(t, "hello world", pred.text)

	pred, ok = parseTextPredicate(`:contains("x")`)
	require.True(t, ok)
	assert.Empty(t, pred.base)
	assert.Equal(t, "x", pred.text)

	_, ok = parseTextPredicate("div.card")
	assert.False(t, ok)

	// Unbalanced quotes are not predicate syntax.
	_, ok = parseTextPredicate(`div:has-text('x")`)
	assert.False(t, ok)
}

// FuzzResolve asserts resolution never panics and every failure stays inside
// the NotFound taxonomy, whatever the selector looks like.
func FuzzResolve(f *testing.F) {
	f.Add([]byte("#go"))
	f.Add([]byte("button:has-text('Go')"))
	f.Add([]byte("//button"))
	f.Add([]byte("div[["))
	f.Fuzz(func(t *testing.T, data []byte) {
		fz := fuzz.NewConsumer(data)
		sel, err := fz.GetString()
		if err != nil {
			return
		}
		doc := mustDoc(t, fixture)
		if _, err := Resolve(doc, sel); err != nil {
			if !errors.Is(err, ErrNotFound) {
				t.Fatalf("resolve error outside taxonomy: %v", err)
			}
		}
	})
}
