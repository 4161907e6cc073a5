// internal/agent/agent.go

// Package agent hosts the in-page engine side of the driver. An Agent owns
// exactly one parsed document and serves introspection requests from the
// dispatcher over an asynchronous envelope channel, mirroring the process
// boundary between the dispatcher and the page's script context. All
// document access happens on the Run goroutine, so the engines need no
// locking of their own.
package agent

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/pagedriver/api/schemas"
	"github.com/xkilldash9x/pagedriver/internal/page"
	"github.com/xkilldash9x/pagedriver/internal/page/extract"
	"github.com/xkilldash9x/pagedriver/internal/page/layout"
	"github.com/xkilldash9x/pagedriver/internal/page/record"
	"github.com/xkilldash9x/pagedriver/internal/page/selector"
	"github.com/xkilldash9x/pagedriver/internal/page/snapshot"
)

// Operations served by the agent. These travel dispatcher→agent only and are
// never part of the caller-facing command surface.
const (
	OpLocate      = "agent.locate"
	OpExists      = "agent.exists"
	OpExtract     = "agent.extract"
	OpExtractAll  = "agent.extractAll"
	OpSnapshot    = "agent.snapshot"
	OpCapture     = "agent.captureSelectors"
	OpResolve     = "agent.resolve"
	OpScroll      = "agent.scroll"
	OpRefresh     = "agent.refresh"
	OpRecordStart = "agent.recordStart"
	OpRecordStop  = "agent.recordStop"
)

// LocateParams asks for stable center coordinates of one element,
// identified by selector or by a ref from the agent's last snapshot.
type LocateParams struct {
	Selector string `json:"selector,omitempty"`
	Ref      int    `json:"ref,omitempty"`
}

type LocateResult struct {
	X    int    `json:"x"`
	Y    int    `json:"y"`
	Path string `json:"path"`
	Tag  string `json:"tag"`
}

type ExistsParams struct {
	Selector string `json:"selector"`
}

type ExistsResult struct {
	Exists bool `json:"exists"`
}

// ExtractParams with an empty selector extracts the page's main content.
type ExtractParams struct {
	Selector string `json:"selector,omitempty"`
}

type ExtractAllParams struct {
	Selector  string `json:"selector"`
	Separator string `json:"separator,omitempty"`
}

type SnapshotParams struct {
	IncludeContent bool `json:"includeContent,omitempty"`
}

type SnapshotResult struct {
	Tree     string `json:"tree"`
	RefCount int    `json:"refCount"`
}

type CaptureResult struct {
	Elements []schemas.CapturedElement `json:"elements"`
}

// ResolveParams asks for an element's identity without touching geometry.
type ResolveParams struct {
	Selector string `json:"selector,omitempty"`
	Ref      int    `json:"ref,omitempty"`
}

type ResolveResult struct {
	Path  string `json:"path"`
	Tag   string `json:"tag"`
	Text  string `json:"text,omitempty"`
	Value string `json:"value,omitempty"`
}

// ScrollParams scrolls the page by deltas, or scrolls an element into view
// when a selector is given.
type ScrollParams struct {
	Selector string  `json:"selector,omitempty"`
	DX       float64 `json:"dx,omitempty"`
	DY       float64 `json:"dy,omitempty"`
}

// RefreshParams replaces the agent's document with a fresh capture of the
// same page. Snapshot refs are kept.
type RefreshParams struct {
	HTML string `json:"html"`
	URL  string `json:"url"`
}

// Options carries the engine configurations the dispatcher resolved from
// the driver config.
type Options struct {
	Layout  layout.Config
	Extract extract.Config
	Record  record.Config
}

// Agent serves one document until its context is canceled. A navigation
// discards the agent; the dispatcher injects a fresh one over the new
// document, which also invalidates all snapshot refs.
type Agent struct {
	log *zap.Logger
	doc *page.Document
	loc *layout.Locator
	opt Options

	in  chan schemas.Envelope
	out chan schemas.Response

	// Snapshot ref state, replaced wholesale on every snapshot. The only
	// engine state that outlives a single request.
	refs *snapshot.RefMap

	// Recording, active between recordStart and recordStop.
	recorder   *record.Recorder
	recordStop context.CancelFunc
	rawEvents  <-chan schemas.RawEvent
	sink       func(schemas.RecordedEvent)
}

// New builds an agent over one parsed document. rawEvents is the host's
// in-page listener feed; sink receives normalized recording events. Both may
// be nil when the host cannot record.
func New(doc *page.Document, opt Options, rawEvents <-chan schemas.RawEvent, sink func(schemas.RecordedEvent), log *zap.Logger) *Agent {
	return &Agent{
		log:       log.Named("agent"),
		doc:       doc,
		loc:       layout.NewLocator(doc.Geometry(), opt.Layout),
		opt:       opt,
		in:        make(chan schemas.Envelope, 16),
		out:       make(chan schemas.Response, 16),
		rawEvents: rawEvents,
		sink:      sink,
	}
}

// Requests is the dispatcher-side send channel.
func (a *Agent) Requests() chan<- schemas.Envelope { return a.in }

// Replies is the dispatcher-side receive channel.
func (a *Agent) Replies() <-chan schemas.Response { return a.out }

// Run serves requests until ctx is canceled. Each request produces exactly
// one correlated reply.
func (a *Agent) Run(ctx context.Context) {
	defer a.stopRecording()
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-a.in:
			resp := a.handle(ctx, env)
			select {
			case a.out <- resp:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (a *Agent) handle(ctx context.Context, env schemas.Envelope) schemas.Response {
	a.log.Debug("handling request", zap.String("op", env.Command), zap.String("id", env.ID))
	switch env.Command {
	case OpLocate:
		return a.locate(ctx, env)
	case OpExists:
		return a.exists(env)
	case OpExtract:
		return a.extract(env)
	case OpExtractAll:
		return a.extractAll(env)
	case OpSnapshot:
		return a.snapshot(env)
	case OpCapture:
		return schemas.OKResponse(env.ID, CaptureResult{Elements: snapshot.CaptureElements(a.doc)})
	case OpResolve:
		return a.resolve(env)
	case OpScroll:
		return a.scroll(ctx, env)
	case OpRefresh:
		return a.refresh(env)
	case OpRecordStart:
		return a.startRecording(ctx, env)
	case OpRecordStop:
		a.stopRecording()
		return schemas.OKResponse(env.ID, nil)
	default:
		return schemas.FailResponse(env.ID, schemas.CodeUnknownCommand, fmt.Sprintf("unknown agent operation %q", env.Command))
	}
}

// element resolves a selector-or-ref to a node. Refs go through the last
// snapshot's map and fail if no snapshot produced them.
func (a *Agent) element(sel string, ref int) (*html.Node, error) {
	if ref > 0 {
		n, ok := a.refs.Get(ref)
		if !ok {
			return nil, fmt.Errorf("ref %d not in current snapshot: %w", ref, selector.ErrNotFound)
		}
		return n, nil
	}
	return selector.Resolve(a.doc, sel)
}

func (a *Agent) locate(ctx context.Context, env schemas.Envelope) schemas.Response {
	var p LocateParams
	if err := env.DecodeParams(&p); err != nil {
		return schemas.FailResponse(env.ID, schemas.CodeDispatchFailure, err.Error())
	}
	n, err := a.element(p.Selector, p.Ref)
	if err != nil {
		return failFor(env.ID, err)
	}
	pt, err := a.loc.Center(ctx, n)
	if err != nil {
		return failFor(env.ID, err)
	}
	return schemas.OKResponse(env.ID, LocateResult{X: pt.X, Y: pt.Y, Path: page.NodePath(n), Tag: n.Data})
}

func (a *Agent) exists(env schemas.Envelope) schemas.Response {
	var p ExistsParams
	if err := env.DecodeParams(&p); err != nil {
		return schemas.FailResponse(env.ID, schemas.CodeDispatchFailure, err.Error())
	}
	_, err := selector.Resolve(a.doc, p.Selector)
	return schemas.OKResponse(env.ID, ExistsResult{Exists: err == nil})
}

func (a *Agent) extract(env schemas.Envelope) schemas.Response {
	var p ExtractParams
	if err := env.DecodeParams(&p); err != nil {
		return schemas.FailResponse(env.ID, schemas.CodeDispatchFailure, err.Error())
	}
	if p.Selector == "" {
		text := extract.MainContent(a.doc, a.opt.Extract)
		return schemas.OKResponse(env.ID, schemas.ExtractResult{Text: text})
	}
	n, err := selector.Resolve(a.doc, p.Selector)
	if err != nil {
		return failFor(env.ID, err)
	}
	text := extract.Serialize(n, a.opt.Extract.MaxOutput)
	return schemas.OKResponse(env.ID, schemas.ExtractResult{Text: text})
}

func (a *Agent) extractAll(env schemas.Envelope) schemas.Response {
	var p ExtractAllParams
	if err := env.DecodeParams(&p); err != nil {
		return schemas.FailResponse(env.ID, schemas.CodeDispatchFailure, err.Error())
	}
	nodes, err := selector.ResolveAll(a.doc, p.Selector)
	if err != nil {
		return failFor(env.ID, err)
	}
	sep := p.Separator
	if sep == "" {
		sep = "\n"
	}
	parts := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if text := page.NormalizeSpace(page.FullText(n)); text != "" {
			parts = append(parts, text)
		}
	}
	return schemas.OKResponse(env.ID, schemas.ExtractAllResult{Text: joinCapped(parts, sep, a.opt.Extract.MaxOutput), Count: len(nodes)})
}

func (a *Agent) snapshot(env schemas.Envelope) schemas.Response {
	var p SnapshotParams
	if err := env.DecodeParams(&p); err != nil {
		return schemas.FailResponse(env.ID, schemas.CodeDispatchFailure, err.Error())
	}
	res := snapshot.Build(a.doc, p.IncludeContent)
	a.refs = res.Refs
	return schemas.OKResponse(env.ID, SnapshotResult{Tree: res.Tree, RefCount: res.RefCount})
}

func (a *Agent) resolve(env schemas.Envelope) schemas.Response {
	var p ResolveParams
	if err := env.DecodeParams(&p); err != nil {
		return schemas.FailResponse(env.ID, schemas.CodeDispatchFailure, err.Error())
	}
	n, err := a.element(p.Selector, p.Ref)
	if err != nil {
		return failFor(env.ID, err)
	}
	res := ResolveResult{
		Path: page.NodePath(n),
		Tag:  n.Data,
		Text: page.NormalizeSpace(page.FullText(n)),
	}
	if v := page.Attr(n, "value"); v != "" {
		res.Value = v
	}
	return schemas.OKResponse(env.ID, res)
}

func (a *Agent) scroll(ctx context.Context, env schemas.Envelope) schemas.Response {
	var p ScrollParams
	if err := env.DecodeParams(&p); err != nil {
		return schemas.FailResponse(env.ID, schemas.CodeDispatchFailure, err.Error())
	}
	if p.Selector != "" {
		n, err := selector.Resolve(a.doc, p.Selector)
		if err != nil {
			return failFor(env.ID, err)
		}
		if _, err := a.loc.Center(ctx, n); err != nil {
			return failFor(env.ID, err)
		}
		return schemas.OKResponse(env.ID, nil)
	}
	if err := a.doc.Geometry().ScrollBy(p.DX, p.DY); err != nil {
		return failFor(env.ID, err)
	}
	return schemas.OKResponse(env.ID, nil)
}

// refresh re-parses the page from a fresh capture. The ref map is untouched:
// refs keep pointing into the old tree, and ref-based targeting still lands
// on the live page through structural paths, so they stay usable until the
// next snapshot or a navigation tears the agent down.
func (a *Agent) refresh(env schemas.Envelope) schemas.Response {
	var p RefreshParams
	if err := env.DecodeParams(&p); err != nil {
		return schemas.FailResponse(env.ID, schemas.CodeDispatchFailure, err.Error())
	}
	doc, err := page.ParseString(p.HTML, p.URL, a.doc.Geometry())
	if err != nil {
		return schemas.FailResponse(env.ID, schemas.CodeDispatchFailure, fmt.Sprintf("reparsing page: %v", err))
	}
	a.doc = doc
	a.log.Debug("document refreshed", zap.String("url", p.URL))
	return schemas.OKResponse(env.ID, nil)
}

func (a *Agent) startRecording(ctx context.Context, env schemas.Envelope) schemas.Response {
	if a.rawEvents == nil || a.sink == nil {
		return schemas.FailResponse(env.ID, schemas.CodeDispatchFailure, "host does not expose a recording event source")
	}
	if a.recorder != nil {
		return schemas.OKResponse(env.ID, nil) // already recording
	}
	a.recorder = record.NewRecorder(a.opt.Record, a.sink)
	recCtx, cancel := context.WithCancel(ctx)
	a.recordStop = cancel
	rec := a.recorder
	go rec.Run(recCtx)
	go func() {
		for {
			select {
			case <-recCtx.Done():
				return
			case ev, ok := <-a.rawEvents:
				if !ok {
					return
				}
				rec.Feed(ev)
			}
		}
	}()
	a.log.Info("recording started")
	return schemas.OKResponse(env.ID, nil)
}

func (a *Agent) stopRecording() {
	if a.recorder == nil {
		return
	}
	rec := a.recorder
	// Hand the recorder anything still queued from the page, then wait out
	// its final flush so the stop reply orders after every recorded event.
	queued := true
	for queued {
		select {
		case ev := <-a.rawEvents:
			rec.Feed(ev)
		default:
			queued = false
		}
	}
	a.recordStop()
	<-rec.Done()
	a.recorder = nil
	a.recordStop = nil
	a.log.Info("recording stopped")
}

// failFor maps engine errors onto the wire error taxonomy.
func failFor(id string, err error) schemas.Response {
	code := schemas.CodeDispatchFailure
	switch {
	case errors.Is(err, selector.ErrNotFound), errors.Is(err, layout.ErrNoGeometry):
		code = schemas.CodeNotFound
	case errors.Is(err, context.DeadlineExceeded):
		code = schemas.CodeTimeout
	}
	return schemas.FailResponse(id, code, err.Error())
}

func joinCapped(parts []string, sep string, max int) string {
	joined := ""
	for i, p := range parts {
		if i > 0 {
			joined += sep
		}
		joined += p
		if max > 0 && len(joined) > max {
			return joined[:max] + extract.TruncationMarker
		}
	}
	return joined
}
