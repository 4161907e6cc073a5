// internal/driver/dispatcher.go

// Package driver implements the session/command dispatcher: the outward
// facing component that owns the attach/detach lifecycle for a single page,
// receives command envelopes, routes them to the in-page engines or to
// low-level input simulation, and returns correlated results.
package driver

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/pagedriver/api/schemas"
	"github.com/xkilldash9x/pagedriver/internal/agent"
	"github.com/xkilldash9x/pagedriver/internal/config"
	"github.com/xkilldash9x/pagedriver/internal/page"
	"github.com/xkilldash9x/pagedriver/internal/page/extract"
	"github.com/xkilldash9x/pagedriver/internal/page/layout"
	"github.com/xkilldash9x/pagedriver/internal/page/record"
)

// Dispatcher processes command envelopes against one attached page. Commands
// are executed by a single worker in arrival order; status broadcasts travel
// a separate fanout so a slow command never delays them.
type Dispatcher struct {
	cfg  *config.Config
	log  *zap.Logger
	host Host

	pending *pendingTable
	bcast   *broadcaster
	domains *DomainCache
	embeds  *EmbedRegistry

	queue chan schemas.Envelope

	// runCtx is the lifetime of Run; agents are children of it.
	runCtx context.Context

	mu        sync.Mutex
	state     schemas.SessionState
	targetID  string
	cursorX   int
	cursorY   int
	agent     *agentHandle
	dirty     bool
	recording bool
}

type agentHandle struct {
	a       *agent.Agent
	cancel  context.CancelFunc
	pageURL string
}

// New builds a dispatcher over the given host.
func New(cfg *config.Config, host Host, log *zap.Logger) (*Dispatcher, error) {
	domains, err := NewDomainCache(cfg.Driver.DomainCacheSize)
	if err != nil {
		return nil, fmt.Errorf("domain cache: %w", err)
	}
	embeds, err := NewEmbedRegistry(cfg.Driver.DomainCacheSize)
	if err != nil {
		return nil, fmt.Errorf("embed registry: %w", err)
	}
	queueSize := cfg.Driver.QueueSize
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Dispatcher{
		cfg:     cfg,
		log:     log.Named("driver"),
		host:    host,
		pending: newPendingTable(),
		bcast:   newBroadcaster(cfg.Driver.ObserverBuffer, cfg.Driver.BroadcastRate),
		domains: domains,
		embeds:  embeds,
		queue:   make(chan schemas.Envelope, queueSize),
		state:   schemas.StateDetached,
	}, nil
}

// Run drives the command worker and the host detach watcher until ctx is
// canceled. It always detaches cleanly on the way out.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.runCtx = ctx
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { d.worker(gctx); return nil })
	g.Go(func() error { d.watchDetach(gctx); return nil })
	err := g.Wait()

	d.mu.Lock()
	d.dropAgentLocked()
	d.mu.Unlock()
	detachCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = d.host.Detach(detachCtx)
	d.bcast.Close()
	return err
}

// Submit enqueues an envelope and returns the channel its single correlated
// response arrives on. Responses preserve envelope ids, so callers can match
// them even across interleaved submissions.
func (d *Dispatcher) Submit(env schemas.Envelope) <-chan schemas.Response {
	ch := d.pending.Add(env.ID)
	select {
	case d.queue <- env:
	default:
		d.pending.Fail(env.ID, schemas.CodeDispatchFailure, "command queue full")
	}
	return ch
}

// Dispatch is the synchronous convenience wrapper: build an envelope, submit
// it, await the response.
func (d *Dispatcher) Dispatch(ctx context.Context, command string, params interface{}) (schemas.Response, error) {
	env, err := schemas.NewEnvelope(command, params)
	if err != nil {
		return schemas.Response{}, err
	}
	ch := d.Submit(env)
	select {
	case resp := <-ch:
		return resp, nil
	case <-ctx.Done():
		d.pending.Drop(env.ID)
		return schemas.Response{}, ctx.Err()
	}
}

// Subscribe registers an observer for out-of-band notifications.
func (d *Dispatcher) Subscribe() (int, <-chan schemas.Notification) { return d.bcast.Subscribe() }

// Unsubscribe removes an observer.
func (d *Dispatcher) Unsubscribe(id int) { d.bcast.Unsubscribe(id) }

// Domains exposes the per-domain settings cache.
func (d *Dispatcher) Domains() *DomainCache { return d.domains }

// Embeds exposes the captured-element registry.
func (d *Dispatcher) Embeds() *EmbedRegistry { return d.embeds }

// State reports the current attachment state.
func (d *Dispatcher) State() schemas.SessionState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// worker drains the queue one command at a time, preserving arrival order.
func (d *Dispatcher) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-d.queue:
			resp := d.execute(ctx, env)
			if !d.pending.Complete(resp) {
				d.log.Debug("discarding response for abandoned command",
					zap.String("id", env.ID), zap.String("command", env.Command))
			}
		}
	}
}

// watchDetach turns host-side attachment loss into an asynchronous state
// transition. Outstanding correlated requests are not auto-failed; they
// resolve through their own timeouts.
func (d *Dispatcher) watchDetach(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case reason, ok := <-d.host.Detached():
			if !ok {
				return
			}
			d.log.Warn("attachment lost", zap.String("reason", reason))
			d.mu.Lock()
			d.dropAgentLocked()
			d.targetID = ""
			d.recording = false
			d.setStateLocked(schemas.StateDetached, reason)
			d.mu.Unlock()
		}
	}
}

// setStateLocked transitions the session state and broadcasts it. Callers
// hold d.mu.
func (d *Dispatcher) setStateLocked(s schemas.SessionState, reason string) {
	d.state = s
	d.bcast.Publish(schemas.Notification{
		Type:     schemas.NotifyStatus,
		State:    s,
		TargetID: d.targetID,
		Reason:   reason,
	})
}

// ensureAgent returns the live in-page agent, injecting one over a fresh DOM
// capture if absent. Fails when no session is attached.
func (d *Dispatcher) ensureAgent(ctx context.Context) (*agentHandle, error) {
	d.mu.Lock()
	if d.state != schemas.StateAttached {
		d.mu.Unlock()
		return nil, ErrNotAttached
	}
	if d.agent != nil {
		h := d.agent
		d.mu.Unlock()
		return h, nil
	}
	wasRecording := d.recording
	d.mu.Unlock()

	htmlText, pageURL, err := d.host.CaptureDOM(ctx)
	if err != nil {
		return nil, fmt.Errorf("capturing page DOM: %w", err)
	}
	doc, err := page.ParseString(htmlText, pageURL, d.host.Geometry())
	if err != nil {
		return nil, fmt.Errorf("parsing page DOM: %w", err)
	}

	sink := func(ev schemas.RecordedEvent) {
		event := ev
		d.bcast.Publish(schemas.Notification{Type: schemas.NotifyRecording, Event: &event})
	}
	a := agent.New(doc, d.agentOptions(pageURL), d.host.RawEvents(), sink, d.log)

	agentCtx, cancel := context.WithCancel(d.runCtx)
	h := &agentHandle{a: a, cancel: cancel, pageURL: pageURL}
	go a.Run(agentCtx)
	go d.pumpReplies(agentCtx, a)

	d.mu.Lock()
	d.agent = h
	d.mu.Unlock()
	d.log.Debug("agent injected", zap.String("url", pageURL))

	if wasRecording {
		// Recording spans navigations; rearm the fresh agent.
		if _, err := d.agentCall(ctx, agent.OpRecordStart, nil); err != nil {
			d.log.Warn("failed to resume recording after injection", zap.Error(err))
		}
	}
	return h, nil
}

// agentOptions folds the static engine configuration with any per-domain
// overrides for the page being injected.
func (d *Dispatcher) agentOptions(pageURL string) agent.Options {
	opts := agent.Options{
		Layout: layout.Config{
			SettleDelay:  d.cfg.Stability.SettleDelay,
			PollInterval: d.cfg.Stability.PollInterval,
			Window:       d.cfg.Stability.Window,
			TolerancePx:  d.cfg.Stability.TolerancePx,
		},
		Extract: extract.Config{
			MinWords:     d.cfg.Extraction.MinWords,
			MaxLinkRatio: d.cfg.Extraction.MaxLinkRatio,
			MinScore:     d.cfg.Extraction.MinScore,
			MaxOutput:    d.cfg.Extraction.MaxOutput,
		},
		Record: record.Config{
			ScrollQuietPeriod: d.cfg.Recording.ScrollQuietPeriod,
			ScrollMinDistance: int(d.cfg.Recording.ScrollMinDistance),
		},
	}
	if settings, ok := d.domains.Get(hostOf(pageURL)); ok {
		opts.Layout.SettleDelay += settings.ExtraSettle
	}
	return opts
}

// dropAgentLocked tears down the current agent (if any). Refs from its
// snapshots die with it. Callers hold d.mu.
func (d *Dispatcher) dropAgentLocked() {
	if d.agent != nil {
		d.agent.cancel()
		d.agent = nil
	}
}

func (d *Dispatcher) invalidateAgent() {
	d.mu.Lock()
	d.dropAgentLocked()
	d.dirty = false
	d.mu.Unlock()
}

// markDirty notes that input may have mutated the live DOM since the agent's
// capture. Content reads recapture; ref-based targeting does not, so refs
// keep their snapshot-scoped lifetime.
func (d *Dispatcher) markDirty() {
	d.mu.Lock()
	d.dirty = true
	d.mu.Unlock()
}

// refreshIfDirty re-captures the document before a content read when input
// has happened since the last capture. The agent itself stays alive, so the
// refs its last snapshot issued keep their snapshot-scoped lifetime.
func (d *Dispatcher) refreshIfDirty(ctx context.Context) {
	d.mu.Lock()
	dirty := d.dirty
	hasAgent := d.agent != nil
	d.dirty = false
	d.mu.Unlock()
	if !dirty || !hasAgent {
		return
	}

	htmlText, pageURL, err := d.host.CaptureDOM(ctx)
	if err != nil {
		d.log.Warn("recapture failed, re-injecting agent", zap.Error(err))
		d.invalidateAgent()
		return
	}
	resp, err := d.agentCall(ctx, agent.OpRefresh, agent.RefreshParams{HTML: htmlText, URL: pageURL})
	if err != nil || !resp.OK {
		d.log.Warn("in-place refresh failed, re-injecting agent", zap.Error(err))
		d.invalidateAgent()
		return
	}
	d.mu.Lock()
	if d.agent != nil {
		d.agent.pageURL = pageURL
	}
	d.mu.Unlock()
}

// pumpReplies forwards agent replies into the pending table. Replies whose
// waiter already resolved (timeout won the race) are discarded, upholding
// at-most-once completion.
func (d *Dispatcher) pumpReplies(ctx context.Context, a *agent.Agent) {
	for {
		select {
		case <-ctx.Done():
			return
		case resp := <-a.Replies():
			if !d.pending.Complete(resp) {
				d.log.Debug("discarding late agent reply", zap.String("id", resp.ID))
			}
		}
	}
}

// agentCall sends one operation into the page context and awaits its
// correlated reply, bounded by the agent timeout.
func (d *Dispatcher) agentCall(ctx context.Context, op string, params interface{}) (schemas.Response, error) {
	h, err := d.ensureAgent(ctx)
	if err != nil {
		return schemas.Response{}, err
	}
	env, err := schemas.NewEnvelope(op, params)
	if err != nil {
		return schemas.Response{}, err
	}
	ch := d.pending.Add(env.ID)

	timeout := d.cfg.Driver.AgentTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case h.a.Requests() <- env:
	case <-timer.C:
		d.pending.Drop(env.ID)
		return schemas.Response{}, fmt.Errorf("%w: agent busy", ErrTimeout)
	case <-ctx.Done():
		d.pending.Drop(env.ID)
		return schemas.Response{}, ctx.Err()
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-timer.C:
		// The reply may still race in; Fail resolves the waiter only if it
		// has not, so exactly one response lands in ch either way.
		d.pending.Fail(env.ID, schemas.CodeTimeout,
			fmt.Sprintf("agent did not answer %s within %s", op, timeout))
		return <-ch, nil
	case <-ctx.Done():
		d.pending.Drop(env.ID)
		return schemas.Response{}, ctx.Err()
	}
}

// restricted reports whether a destination is a privileged page the driver
// refuses to attach to or inject into.
func (d *Dispatcher) restricted(dest string) bool {
	if dest == "" {
		return false
	}
	lower := strings.ToLower(strings.TrimSpace(dest))
	for _, prefix := range d.cfg.Driver.RestrictedPrefixes {
		if strings.HasPrefix(lower, strings.ToLower(prefix)) {
			return true
		}
	}
	return strings.Contains(lower, "chrome.google.com/webstore") ||
		strings.Contains(lower, "chromewebstore.google.com")
}

func hostOf(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil || u.Host == "" {
		return pageURL
	}
	return u.Host
}
