// internal/driver/cdp/input.go

package cdp

import (
	"context"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

// Input dispatches trusted input events over the DevTools Input domain.
// Events injected this way are indistinguishable from user input as far as
// the page can observe.
type Input struct {
	host *Host
}

func (i *Input) MoveMouse(ctx context.Context, x, y int) error {
	return i.host.run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		return input.DispatchMouseEvent(input.MouseMoved, float64(x), float64(y)).Do(c)
	}))
}

func (i *Input) Click(ctx context.Context, x, y int) error {
	return i.host.run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		press := input.DispatchMouseEvent(input.MousePressed, float64(x), float64(y)).
			WithButton(input.Left).
			WithClickCount(1)
		if err := press.Do(c); err != nil {
			return fmt.Errorf("mouse press: %w", err)
		}
		release := input.DispatchMouseEvent(input.MouseReleased, float64(x), float64(y)).
			WithButton(input.Left).
			WithClickCount(1)
		if err := release.Do(c); err != nil {
			return fmt.Errorf("mouse release: %w", err)
		}
		return nil
	}))
}

// TypeText emits per-character key events into the focused element.
func (i *Input) TypeText(ctx context.Context, text string) error {
	return i.host.run(ctx, chromedp.KeyEvent(text))
}

// Press dispatches a named key or a ctrl chord, e.g. "Enter", "Backspace",
// "ctrl+a".
func (i *Input) Press(ctx context.Context, key string) error {
	if chord, found := strings.CutPrefix(strings.ToLower(key), "ctrl+"); found {
		return i.host.run(ctx, chromedp.KeyEvent(chord, chromedp.KeyModifiers(input.ModifierCtrl)))
	}
	if encoded, ok := namedKeys[key]; ok {
		return i.host.run(ctx, chromedp.KeyEvent(encoded))
	}
	return i.host.run(ctx, chromedp.KeyEvent(key))
}

// namedKeys maps the dispatcher's key names onto the kb control runes.
var namedKeys = map[string]string{
	"Enter":     kb.Enter,
	"Tab":       kb.Tab,
	"Backspace": kb.Backspace,
	"Delete":    kb.Delete,
	"Escape":    kb.Escape,
	"ArrowDown": kb.ArrowDown,
	"ArrowUp":   kb.ArrowUp,
}
