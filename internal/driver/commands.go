// internal/driver/commands.go

package driver

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pagedriver/api/schemas"
	"github.com/xkilldash9x/pagedriver/internal/agent"
)

// execute routes one command envelope. Failures are returned to the caller
// and never tear down the attachment.
func (d *Dispatcher) execute(ctx context.Context, env schemas.Envelope) schemas.Response {
	start := time.Now()
	defer func() {
		d.log.Debug("command executed",
			zap.String("command", env.Command),
			zap.String("id", env.ID),
			zap.Duration("took", time.Since(start)))
	}()

	switch env.Command {
	case schemas.CmdConnect:
		return d.cmdConnect(ctx, env)
	case schemas.CmdDisconnect:
		return d.cmdDisconnect(ctx, env)
	case schemas.CmdNavigate:
		return d.cmdNavigate(ctx, env)
	case schemas.CmdClick:
		var p schemas.ClickParams
		if err := env.DecodeParams(&p); err != nil {
			return fail(env.ID, err)
		}
		return d.cmdClick(ctx, env.ID, agent.LocateParams{Selector: p.Selector})
	case schemas.CmdClickRef:
		var p schemas.ClickRefParams
		if err := env.DecodeParams(&p); err != nil {
			return fail(env.ID, err)
		}
		return d.cmdClick(ctx, env.ID, agent.LocateParams{Ref: p.Ref})
	case schemas.CmdType:
		var p schemas.TypeParams
		if err := env.DecodeParams(&p); err != nil {
			return fail(env.ID, err)
		}
		return d.cmdType(ctx, env.ID, agent.LocateParams{Selector: p.Selector}, p.Text, p.Clear, p.Submit)
	case schemas.CmdTypeRef:
		var p schemas.TypeRefParams
		if err := env.DecodeParams(&p); err != nil {
			return fail(env.ID, err)
		}
		return d.cmdType(ctx, env.ID, agent.LocateParams{Ref: p.Ref}, p.Text, p.Clear, p.Submit)
	case schemas.CmdHover:
		return d.cmdHover(ctx, env)
	case schemas.CmdScroll:
		return d.cmdScroll(ctx, env)
	case schemas.CmdWait:
		return d.cmdWait(ctx, env)
	case schemas.CmdExists:
		return d.cmdExists(ctx, env)
	case schemas.CmdExtract:
		return d.cmdExtract(ctx, env)
	case schemas.CmdExtractAll:
		return d.cmdExtractAll(ctx, env)
	case schemas.CmdScreenshot:
		return d.cmdScreenshot(ctx, env)
	case schemas.CmdSnapshot:
		return d.cmdSnapshot(ctx, env.ID, agent.SnapshotParams{IncludeContent: true})
	case schemas.CmdAriaSnapshot:
		var p schemas.AriaSnapshotParams
		if err := env.DecodeParams(&p); err != nil {
			return fail(env.ID, err)
		}
		return d.cmdSnapshot(ctx, env.ID, agent.SnapshotParams{IncludeContent: p.IncludeContent})
	case schemas.CmdCaptureSelectors:
		return d.cmdCaptureSelectors(ctx, env)
	case schemas.CmdFocus:
		return d.cmdFocus(ctx, env)
	case schemas.CmdStartRecording:
		return d.cmdRecording(ctx, env, true)
	case schemas.CmdStopRecording:
		return d.cmdRecording(ctx, env, false)
	default:
		return fail(env.ID, fmt.Errorf("%w: %q", ErrUnknownCommand, env.Command))
	}
}

func (d *Dispatcher) cmdConnect(ctx context.Context, env schemas.Envelope) schemas.Response {
	var p schemas.ConnectParams
	if err := env.DecodeParams(&p); err != nil {
		return fail(env.ID, err)
	}
	if d.restricted(p.TargetHint) {
		return fail(env.ID, fmt.Errorf("%w: refusing to attach to %q", ErrRestrictedTarget, p.TargetHint))
	}

	// Attaching to a new target implicitly releases the previous one.
	d.mu.Lock()
	if d.state == schemas.StateAttached {
		d.dropAgentLocked()
		d.targetID = ""
	}
	d.setStateLocked(schemas.StateAttaching, "")
	d.mu.Unlock()
	_ = d.host.Detach(ctx)

	targetID, err := d.host.Attach(ctx, p.TargetHint)
	if err != nil {
		d.mu.Lock()
		d.setStateLocked(schemas.StateDetached, err.Error())
		d.mu.Unlock()
		return fail(env.ID, fmt.Errorf("attaching to target: %w", err))
	}

	d.mu.Lock()
	d.targetID = targetID
	d.setStateLocked(schemas.StateAttached, "")
	d.mu.Unlock()
	d.log.Info("attached", zap.String("target", targetID))
	return schemas.OKResponse(env.ID, schemas.ConnectResult{TargetID: targetID})
}

// cmdDisconnect always succeeds, even with nothing attached.
func (d *Dispatcher) cmdDisconnect(ctx context.Context, env schemas.Envelope) schemas.Response {
	d.mu.Lock()
	d.dropAgentLocked()
	d.targetID = ""
	d.recording = false
	d.setStateLocked(schemas.StateDetached, "disconnect")
	d.mu.Unlock()
	if err := d.host.Detach(ctx); err != nil {
		d.log.Debug("detach reported error on disconnect", zap.Error(err))
	}
	return schemas.OKResponse(env.ID, nil)
}

func (d *Dispatcher) cmdNavigate(ctx context.Context, env schemas.Envelope) schemas.Response {
	var p schemas.NavigateParams
	if err := env.DecodeParams(&p); err != nil {
		return fail(env.ID, err)
	}
	if d.restricted(p.URL) {
		return fail(env.ID, fmt.Errorf("%w: refusing to navigate to %q", ErrRestrictedTarget, p.URL))
	}
	d.mu.Lock()
	attached := d.state == schemas.StateAttached
	d.mu.Unlock()
	if !attached {
		return fail(env.ID, ErrNotAttached)
	}

	timeout := d.cfg.Driver.NavigationTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := d.host.Navigate(navCtx, p.URL)
	timedOut := navCtx.Err() == context.DeadlineExceeded
	if err != nil && !timedOut {
		return fail(env.ID, fmt.Errorf("navigating: %w", err))
	}

	// The old DOM is gone either way; any refs the agent issued die here.
	d.invalidateAgent()

	current, curErr := d.host.CurrentURL(ctx)
	if curErr != nil {
		current = p.URL
	}
	if timedOut {
		d.log.Warn("navigation exceeded load deadline", zap.String("url", p.URL), zap.Duration("deadline", timeout))
	}
	return schemas.OKResponse(env.ID, schemas.NavigateResult{
		URL:      current,
		Loaded:   !timedOut,
		TimedOut: timedOut,
	})
}

func (d *Dispatcher) cmdClick(ctx context.Context, id string, target agent.LocateParams) schemas.Response {
	loc, resp := d.locate(ctx, id, target)
	if loc == nil {
		return resp
	}
	in := d.host.Input()
	if err := in.MoveMouse(ctx, loc.X, loc.Y); err != nil {
		return fail(id, fmt.Errorf("moving cursor: %w", err))
	}
	if err := in.Click(ctx, loc.X, loc.Y); err != nil {
		return fail(id, fmt.Errorf("clicking: %w", err))
	}
	d.setCursor(loc.X, loc.Y)
	// The click may mutate the DOM; content reads will recapture. Snapshot
	// refs stay valid until the next snapshot or navigation.
	d.markDirty()
	return schemas.OKResponse(id, schemas.ClickResult{X: loc.X, Y: loc.Y})
}

func (d *Dispatcher) cmdType(ctx context.Context, id string, target agent.LocateParams, text string, clear, submit bool) schemas.Response {
	loc, resp := d.locate(ctx, id, target)
	if loc == nil {
		return resp
	}
	in := d.host.Input()
	if err := in.Click(ctx, loc.X, loc.Y); err != nil {
		return fail(id, fmt.Errorf("focusing field: %w", err))
	}
	d.setCursor(loc.X, loc.Y)
	if clear {
		if err := in.Press(ctx, "ctrl+a"); err != nil {
			return fail(id, fmt.Errorf("selecting field text: %w", err))
		}
		if err := in.Press(ctx, "Backspace"); err != nil {
			return fail(id, fmt.Errorf("clearing field: %w", err))
		}
	}
	if err := in.TypeText(ctx, text); err != nil {
		return fail(id, fmt.Errorf("typing: %w", err))
	}
	d.markDirty()
	if submit {
		if err := in.Press(ctx, "Enter"); err != nil {
			return fail(id, fmt.Errorf("submitting: %w", err))
		}
		// Submit usually navigates.
		d.invalidateAgent()
	}
	return schemas.OKResponse(id, schemas.ClickResult{X: loc.X, Y: loc.Y})
}

func (d *Dispatcher) cmdHover(ctx context.Context, env schemas.Envelope) schemas.Response {
	var p schemas.HoverParams
	if err := env.DecodeParams(&p); err != nil {
		return fail(env.ID, err)
	}
	loc, resp := d.locate(ctx, env.ID, agent.LocateParams{Selector: p.Selector})
	if loc == nil {
		return resp
	}
	if err := d.host.Input().MoveMouse(ctx, loc.X, loc.Y); err != nil {
		return fail(env.ID, fmt.Errorf("moving cursor: %w", err))
	}
	d.setCursor(loc.X, loc.Y)
	return schemas.OKResponse(env.ID, schemas.ClickResult{X: loc.X, Y: loc.Y})
}

func (d *Dispatcher) cmdScroll(ctx context.Context, env schemas.Envelope) schemas.Response {
	var p schemas.ScrollParams
	if err := env.DecodeParams(&p); err != nil {
		return fail(env.ID, err)
	}
	params := agent.ScrollParams{Selector: p.Selector}
	if p.Selector == "" {
		amount := float64(p.Amount)
		if amount == 0 {
			amount = 600
		}
		switch p.Direction {
		case "up":
			params.DY = -amount
		case "down", "":
			params.DY = amount
		case "left":
			params.DX = -amount
		case "right":
			params.DX = amount
		case "top":
			params.DY = -1e7
		case "bottom":
			params.DY = 1e7
		default:
			return fail(env.ID, fmt.Errorf("unknown scroll direction %q", p.Direction))
		}
	}
	resp, err := d.agentCall(ctx, agent.OpScroll, params)
	if err != nil {
		return fail(env.ID, err)
	}
	return reID(resp, env.ID)
}

// cmdWait sleeps for a fixed duration, or polls for a selector until its
// deadline. The selector form retries across intervening navigations: every
// attempt recaptures the page, so a navigation mid-wait just means the next
// attempt sees the new document instead of surfacing an error.
func (d *Dispatcher) cmdWait(ctx context.Context, env schemas.Envelope) schemas.Response {
	var p schemas.WaitParams
	if err := env.DecodeParams(&p); err != nil {
		return fail(env.ID, err)
	}

	if p.Selector == "" {
		ms := p.Ms
		if ms <= 0 {
			ms = 0
		}
		select {
		case <-time.After(time.Duration(ms) * time.Millisecond):
			return schemas.OKResponse(env.ID, schemas.WaitResult{Found: true})
		case <-ctx.Done():
			return fail(env.ID, ctx.Err())
		}
	}

	found, err := d.pollSelector(ctx, p.Selector, d.waitDeadline(p.TimeoutMs))
	if err != nil {
		return fail(env.ID, err)
	}
	if !found {
		return fail(env.ID, fmt.Errorf("%w waiting for %q", ErrTimeout, p.Selector))
	}
	return schemas.OKResponse(env.ID, schemas.WaitResult{Found: true})
}

// cmdExists never fails: every internal error counts as "not there".
func (d *Dispatcher) cmdExists(ctx context.Context, env schemas.Envelope) schemas.Response {
	var p schemas.ExistsParams
	if err := env.DecodeParams(&p); err != nil {
		return fail(env.ID, err)
	}
	found, err := d.pollSelector(ctx, p.Selector, d.waitDeadline(p.TimeoutMs))
	if err != nil {
		d.log.Debug("exists poll error treated as absence", zap.String("selector", p.Selector), zap.Error(err))
		found = false
	}
	return schemas.OKResponse(env.ID, schemas.ExistsResult{Exists: found})
}

// waitDeadline resolves the effective deadline for wait/exists, honoring any
// per-domain override.
func (d *Dispatcher) waitDeadline(timeoutMs int) time.Duration {
	if timeoutMs > 0 {
		return time.Duration(timeoutMs) * time.Millisecond
	}
	d.mu.Lock()
	pageURL := ""
	if d.agent != nil {
		pageURL = d.agent.pageURL
	}
	d.mu.Unlock()
	if settings, ok := d.domains.Get(hostOf(pageURL)); ok && settings.WaitTimeout > 0 {
		return settings.WaitTimeout
	}
	if d.cfg.Driver.DefaultWaitTimeout > 0 {
		return d.cfg.Driver.DefaultWaitTimeout
	}
	return 5 * time.Second
}

// pollSelector repeatedly checks for the selector until the deadline,
// recapturing the page before each attempt. Transient failures (navigation
// tearing the agent down mid-check) are retried, not surfaced.
func (d *Dispatcher) pollSelector(ctx context.Context, sel string, deadline time.Duration) (bool, error) {
	interval := d.cfg.Driver.WaitPollInterval
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	end := time.Now().Add(deadline)
	for {
		// Fresh capture each attempt so a navigated page is re-read.
		d.invalidateAgent()
		resp, err := d.agentCall(ctx, agent.OpExists, agent.ExistsParams{Selector: sel})
		if err == nil && resp.OK {
			var res agent.ExistsResult
			if decodeErr := resp.DecodeResult(&res); decodeErr == nil && res.Exists {
				return true, nil
			}
		} else if err != nil && ctx.Err() != nil {
			return false, ctx.Err()
		}

		if time.Now().After(end) {
			return false, nil
		}
		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
}

func (d *Dispatcher) cmdExtract(ctx context.Context, env schemas.Envelope) schemas.Response {
	var p schemas.ExtractParams
	if err := env.DecodeParams(&p); err != nil {
		return fail(env.ID, err)
	}
	sel := p.Selector
	if sel == "" {
		// A per-domain container override beats the heuristic scorer.
		d.mu.Lock()
		pageURL := ""
		if d.agent != nil {
			pageURL = d.agent.pageURL
		}
		d.mu.Unlock()
		if settings, ok := d.domains.Get(hostOf(pageURL)); ok && settings.ContentSelector != "" {
			sel = settings.ContentSelector
		}
	}
	d.refreshIfDirty(ctx)
	resp, err := d.agentCall(ctx, agent.OpExtract, agent.ExtractParams{Selector: sel})
	if err != nil {
		return fail(env.ID, err)
	}
	return reID(resp, env.ID)
}

func (d *Dispatcher) cmdExtractAll(ctx context.Context, env schemas.Envelope) schemas.Response {
	var p schemas.ExtractAllParams
	if err := env.DecodeParams(&p); err != nil {
		return fail(env.ID, err)
	}
	d.refreshIfDirty(ctx)
	resp, err := d.agentCall(ctx, agent.OpExtractAll, agent.ExtractAllParams{
		Selector:  p.Selector,
		Separator: p.Separator,
	})
	if err != nil {
		return fail(env.ID, err)
	}
	return reID(resp, env.ID)
}

func (d *Dispatcher) cmdScreenshot(ctx context.Context, env schemas.Envelope) schemas.Response {
	d.mu.Lock()
	attached := d.state == schemas.StateAttached
	d.mu.Unlock()
	if !attached {
		return fail(env.ID, ErrNotAttached)
	}
	data, err := d.host.Screenshot(ctx)
	if err != nil {
		return fail(env.ID, fmt.Errorf("capturing screenshot: %w", err))
	}
	return schemas.OKResponse(env.ID, schemas.ScreenshotResult{Data: data})
}

func (d *Dispatcher) cmdSnapshot(ctx context.Context, id string, params agent.SnapshotParams) schemas.Response {
	d.refreshIfDirty(ctx)
	resp, err := d.agentCall(ctx, agent.OpSnapshot, params)
	if err != nil {
		return fail(id, err)
	}
	return reID(resp, id)
}

// cmdCaptureSelectors scans the page for interactive elements and remembers
// the result per host for later replay.
func (d *Dispatcher) cmdCaptureSelectors(ctx context.Context, env schemas.Envelope) schemas.Response {
	d.refreshIfDirty(ctx)
	resp, err := d.agentCall(ctx, agent.OpCapture, nil)
	if err != nil {
		return fail(env.ID, err)
	}
	if resp.OK {
		var res agent.CaptureResult
		if decodeErr := resp.DecodeResult(&res); decodeErr == nil {
			d.mu.Lock()
			pageURL := ""
			if d.agent != nil {
				pageURL = d.agent.pageURL
			}
			d.mu.Unlock()
			if host := hostOf(pageURL); host != "" {
				d.embeds.Set(host, res.Elements)
			}
		}
	}
	return reID(resp, env.ID)
}

func (d *Dispatcher) cmdFocus(ctx context.Context, env schemas.Envelope) schemas.Response {
	var p schemas.FocusParams
	if err := env.DecodeParams(&p); err != nil {
		return fail(env.ID, err)
	}
	path := ""
	if p.Selector != "" {
		resp, err := d.agentCall(ctx, agent.OpResolve, agent.ResolveParams{Selector: p.Selector})
		if err != nil {
			return fail(env.ID, err)
		}
		var res agent.ResolveResult
		if err := resp.DecodeResult(&res); err != nil {
			return reID(resp, env.ID)
		}
		path = res.Path
	}
	if err := d.host.Focus(ctx, path); err != nil {
		return fail(env.ID, fmt.Errorf("focusing: %w", err))
	}
	return schemas.OKResponse(env.ID, schemas.FocusResult{Focused: path})
}

func (d *Dispatcher) cmdRecording(ctx context.Context, env schemas.Envelope, start bool) schemas.Response {
	op := agent.OpRecordStop
	if start {
		op = agent.OpRecordStart
	}
	resp, err := d.agentCall(ctx, op, nil)
	if err != nil {
		return fail(env.ID, err)
	}
	if resp.OK {
		d.mu.Lock()
		d.recording = start
		d.mu.Unlock()
	}
	return reID(resp, env.ID)
}

// locate asks the agent for stable center coordinates. On failure the second
// return value carries the ready-to-send response.
func (d *Dispatcher) locate(ctx context.Context, id string, params agent.LocateParams) (*agent.LocateResult, schemas.Response) {
	resp, err := d.agentCall(ctx, agent.OpLocate, params)
	if err != nil {
		return nil, fail(id, err)
	}
	var res agent.LocateResult
	if err := resp.DecodeResult(&res); err != nil {
		return nil, reID(resp, id)
	}
	return &res, schemas.Response{}
}

func (d *Dispatcher) setCursor(x, y int) {
	d.mu.Lock()
	d.cursorX, d.cursorY = x, y
	d.mu.Unlock()
}

// reID rebinds an agent reply to the caller's correlation id before it
// leaves the dispatcher.
func reID(resp schemas.Response, id string) schemas.Response {
	resp.ID = id
	return resp
}
