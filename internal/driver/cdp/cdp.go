// internal/driver/cdp/cdp.go

// Package cdp couples the dispatcher to a real browser over the DevTools
// protocol via chromedp. It implements driver.Host, the input simulator and
// the live geometry capability, and feeds raw recording events from an
// injected page listener back to the agent.
package cdp

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/inspector"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pagedriver/api/schemas"
	"github.com/xkilldash9x/pagedriver/internal/config"
	"github.com/xkilldash9x/pagedriver/internal/driver"
	pagedom "github.com/xkilldash9x/pagedriver/internal/page"
)

const recordBinding = "__pagedriverRecord"

var fastjson = jsoniter.ConfigCompatibleWithStandardLibrary

// Host drives one browser tab. It satisfies driver.Host.
type Host struct {
	log *zap.Logger
	cfg config.BrowserConfig

	allocCtx    context.Context
	allocCancel context.CancelFunc

	mu            sync.Mutex
	browserCtx    context.Context
	browserCancel context.CancelFunc
	tabCtx        context.Context
	tabCancel     context.CancelFunc
	targetID      string

	geo      *liveGeometry
	input    *Input
	raw      chan schemas.RawEvent
	detached chan string
}

// NewHost prepares an allocator per the browser config: a remote DevTools
// endpoint when one is given, otherwise a locally launched instance.
func NewHost(ctx context.Context, cfg config.BrowserConfig, log *zap.Logger) *Host {
	h := &Host{
		log:      log.Named("cdp"),
		cfg:      cfg,
		raw:      make(chan schemas.RawEvent, 256),
		detached: make(chan string, 4),
	}
	if cfg.RemoteURL != "" {
		h.allocCtx, h.allocCancel = chromedp.NewRemoteAllocator(ctx, cfg.RemoteURL)
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.NoSandbox,
			chromedp.Flag("disable-dev-shm-usage", true),
		)
		if cfg.Headless {
			opts = append(opts, chromedp.Headless)
		}
		for _, arg := range cfg.Args {
			if !strings.HasPrefix(arg, "--") {
				arg = "--" + arg
			}
			if key, val, found := strings.Cut(strings.TrimPrefix(arg, "--"), "="); found {
				opts = append(opts, chromedp.Flag(key, val))
			} else {
				opts = append(opts, chromedp.Flag(key, true))
			}
		}
		h.allocCtx, h.allocCancel = chromedp.NewExecAllocator(ctx, opts...)
	}
	h.geo = &liveGeometry{host: h}
	h.input = &Input{host: h}
	return h
}

// Close releases the allocator, the browser and any attached tab.
func (h *Host) Close() {
	h.mu.Lock()
	if h.tabCancel != nil {
		h.tabCancel()
		h.tabCtx, h.tabCancel = nil, nil
	}
	if h.browserCancel != nil {
		h.browserCancel()
		h.browserCtx, h.browserCancel = nil, nil
	}
	h.mu.Unlock()
	if h.allocCancel != nil {
		h.allocCancel()
	}
}

// ensureBrowser returns the shared browser context every tab derives from,
// starting it on first use.
func (h *Host) ensureBrowser() context.Context {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.browserCtx == nil {
		h.browserCtx, h.browserCancel = chromedp.NewContext(h.allocCtx,
			chromedp.WithLogf(func(string, ...interface{}) {}))
	}
	return h.browserCtx
}

// Attach binds to a tab. A non-empty hint is matched against the browser's
// open pages first, as an exact target id or a URL/title substring; a hint
// matching nothing is treated as a URL to open in a fresh tab. An empty hint
// takes the most recently reported page, or a fresh blank tab when the
// browser has none. Re-attaching drops the previous tab context first.
func (h *Host) Attach(ctx context.Context, hint string) (string, error) {
	h.mu.Lock()
	if h.tabCancel != nil {
		h.tabCancel()
		h.tabCtx, h.tabCancel = nil, nil
	}
	h.mu.Unlock()

	browserCtx := h.ensureBrowser()
	infos, err := chromedp.Targets(browserCtx)
	if err != nil {
		return "", fmt.Errorf("listing targets: %w", err)
	}
	matched, ok := matchTarget(infos, hint)
	openURL := ""
	if !ok && hint != "" {
		openURL = hint
	}

	opts := []chromedp.ContextOption{chromedp.WithLogf(func(string, ...interface{}) {})}
	if ok {
		opts = append(opts, chromedp.WithTargetID(matched))
	}
	tabCtx, cancel := chromedp.NewContext(browserCtx, opts...)

	// Materialize the tab and install the recording binding before any page
	// script runs.
	if err := chromedp.Run(tabCtx,
		runtime.AddBinding(recordBinding),
		chromedp.ActionFunc(func(c context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(listenerScript).Do(c)
			return err
		}),
	); err != nil {
		cancel()
		return "", fmt.Errorf("starting tab: %w", err)
	}
	switch {
	case openURL != "":
		if err := chromedp.Run(tabCtx, chromedp.Navigate(openURL)); err != nil {
			cancel()
			return "", fmt.Errorf("opening %q: %w", openURL, err)
		}
	case ok:
		// The matched page already loaded its documents; inject the
		// recording listener into the current one directly.
		if err := chromedp.Run(tabCtx, chromedp.Evaluate(listenerScript, nil)); err != nil {
			h.log.Debug("listener injection into existing page failed", zap.Error(err))
		}
	}

	chromedp.ListenTarget(tabCtx, h.handleTargetEvent)

	targetID := ""
	if info := chromedp.FromContext(tabCtx).Target; info != nil {
		targetID = string(info.TargetID)
	}

	h.mu.Lock()
	h.tabCtx = tabCtx
	h.tabCancel = cancel
	h.targetID = targetID
	h.mu.Unlock()
	h.log.Info("attached to target", zap.String("target", targetID))
	return targetID, nil
}

// matchTarget picks the page target a hint refers to: exact target id first,
// then case-insensitive URL or title substring. An empty hint takes the first
// page target reported.
func matchTarget(infos []*target.Info, hint string) (target.ID, bool) {
	pages := make([]*target.Info, 0, len(infos))
	for _, info := range infos {
		if info.Type == "page" {
			pages = append(pages, info)
		}
	}
	if hint == "" {
		if len(pages) > 0 {
			return pages[0].TargetID, true
		}
		return "", false
	}
	for _, info := range pages {
		if string(info.TargetID) == hint {
			return info.TargetID, true
		}
	}
	needle := strings.ToLower(hint)
	for _, info := range pages {
		if strings.Contains(strings.ToLower(info.URL), needle) ||
			strings.Contains(strings.ToLower(info.Title), needle) {
			return info.TargetID, true
		}
	}
	return "", false
}

// handleTargetEvent fans DevTools events into the host's channels.
func (h *Host) handleTargetEvent(ev interface{}) {
	switch e := ev.(type) {
	case *runtime.EventBindingCalled:
		if e.Name != recordBinding {
			return
		}
		var raw schemas.RawEvent
		if err := fastjson.Unmarshal([]byte(e.Payload), &raw); err != nil {
			h.log.Debug("bad recording payload", zap.Error(err))
			return
		}
		select {
		case h.raw <- raw:
		default:
			// Recording is lossy under pressure by design of the debouncer.
		}
	case *inspector.EventDetached:
		select {
		case h.detached <- string(e.Reason):
		default:
		}
	}
}

// Detach drops the current tab. Idempotent.
func (h *Host) Detach(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.tabCancel != nil {
		h.tabCancel()
		h.tabCtx, h.tabCancel = nil, nil
		h.targetID = ""
	}
	return nil
}

// tab returns the attached tab context.
func (h *Host) tab() (context.Context, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.tabCtx == nil {
		return nil, fmt.Errorf("no attached tab")
	}
	return h.tabCtx, nil
}

// run executes chromedp actions against the attached tab, bounded by the
// caller's context.
func (h *Host) run(ctx context.Context, actions ...chromedp.Action) error {
	tabCtx, err := h.tab()
	if err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(tabCtx, actions...) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Navigate drives the tab to url and waits for the load to settle or ctx
// to expire.
func (h *Host) Navigate(ctx context.Context, url string) error {
	return h.run(ctx, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery))
}

func (h *Host) CurrentURL(ctx context.Context) (string, error) {
	var loc string
	if err := h.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", err
	}
	return loc, nil
}

// CaptureDOM serializes the full live DOM. The agent parses this capture;
// geometry queries against it go back through the live page.
func (h *Host) CaptureDOM(ctx context.Context) (string, string, error) {
	var htmlText, loc string
	err := h.run(ctx,
		chromedp.Location(&loc),
		chromedp.ActionFunc(func(c context.Context) error {
			root, err := dom.GetDocument().Do(c)
			if err != nil {
				return err
			}
			htmlText, err = dom.GetOuterHTML().WithNodeID(root.NodeID).Do(c)
			return err
		}),
	)
	if err != nil {
		return "", "", fmt.Errorf("capturing DOM: %w", err)
	}
	return htmlText, loc, nil
}

// Geometry exposes live layout queries against the attached tab.
func (h *Host) Geometry() pagedom.Geometry { return h.geo }

// Input returns the raw input-injection primitive.
func (h *Host) Input() driver.InputSimulator { return h.input }

func (h *Host) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := h.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("capturing screenshot: %w", err)
	}
	return buf, nil
}

// Focus moves document focus to the element at path; empty focuses the body.
func (h *Host) Focus(ctx context.Context, path string) error {
	if path == "" {
		path = "body"
	}
	return h.run(ctx, chromedp.Focus(path, chromedp.ByQuery))
}

func (h *Host) RawEvents() <-chan schemas.RawEvent { return h.raw }

func (h *Host) Detached() <-chan string { return h.detached }
