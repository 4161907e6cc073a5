// internal/agent/agent_test.go
package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/pagedriver/api/schemas"
	"github.com/xkilldash9x/pagedriver/internal/page"
	"github.com/xkilldash9x/pagedriver/internal/page/extract"
	"github.com/xkilldash9x/pagedriver/internal/page/layout"
	"github.com/xkilldash9x/pagedriver/internal/page/record"
	"github.com/xkilldash9x/pagedriver/internal/page/selector"
)

const pageFixture = `<html><body>
  <main>
    <h1>Orders</h1>
    <p>Open orders are listed below.</p>
    <ul class="orders">
      <li class="order">Order 1001</li>
      <li class="order">Order 1002</li>
    </ul>
    <button id="refresh">Refresh</button>
    <input id="filter" type="text" value="pending">
  </main>
</body></html>`

func testOptions() Options {
	return Options{
		Layout: layout.Config{
			SettleDelay:  time.Millisecond,
			PollInterval: time.Millisecond,
			Window:       20 * time.Millisecond,
			TolerancePx:  1.0,
		},
		Extract: extract.DefaultConfig(),
		Record:  record.DefaultConfig(),
	}
}

func testAgent(t *testing.T) (*Agent, *page.StaticGeometry) {
	t.Helper()
	geo := page.NewStaticGeometry()
	doc, err := page.ParseString(pageFixture, "https://example.test/orders", geo)
	require.NoError(t, err)
	return New(doc, testOptions(), nil, nil, zap.NewNop()), geo
}

// call runs one request through the running agent and returns the reply.
func call(t *testing.T, a *Agent, op string, params interface{}) schemas.Response {
	t.Helper()
	env, err := schemas.NewEnvelope(op, params)
	require.NoError(t, err)
	a.Requests() <- env
	select {
	case resp := <-a.Replies():
		assert.Equal(t, env.ID, resp.ID, "reply carries the request's correlation id")
		return resp
	case <-time.After(2 * time.Second):
		t.Fatalf("no reply for %s", op)
		return schemas.Response{}
	}
}

func startAgent(t *testing.T, a *Agent) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		a.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestLocateBySelector(t *testing.T) {
	a, geo := testAgent(t)
	startAgent(t, a)

	// Give the button a box so the locator has geometry to report.
	resp := call(t, a, OpResolve, ResolveParams{Selector: "#refresh"})
	require.True(t, resp.OK)
	var rr ResolveResult
	require.NoError(t, resp.DecodeResult(&rr))
	assert.Equal(t, "button", rr.Tag)

	n, err := findByPath(a, rr.Path)
	require.NoError(t, err)
	geo.SetBox(n, page.Rect{X: 10, Y: 20, Width: 100, Height: 40})

	resp = call(t, a, OpLocate, LocateParams{Selector: "#refresh"})
	require.True(t, resp.OK)
	var lr LocateResult
	require.NoError(t, resp.DecodeResult(&lr))
	assert.Equal(t, 60, lr.X)
	assert.Equal(t, 40, lr.Y)
	assert.Equal(t, "button", lr.Tag)
}

// findByPath resolves a reported node path back to a node so the test can
// register geometry for it.
func findByPath(a *Agent, path string) (*html.Node, error) {
	return selector.Resolve(a.doc, path)
}

func TestLocateMissingSelector(t *testing.T) {
	a, _ := testAgent(t)
	startAgent(t, a)

	resp := call(t, a, OpLocate, LocateParams{Selector: "#nope"})
	require.False(t, resp.OK)
	require.NotNil(t, resp.Error)
	assert.Equal(t, schemas.CodeNotFound, resp.Error.Code)
}

func TestLocateElementWithoutBox(t *testing.T) {
	a, _ := testAgent(t)
	startAgent(t, a)

	resp := call(t, a, OpLocate, LocateParams{Selector: "#refresh"})
	require.False(t, resp.OK)
	assert.Equal(t, schemas.CodeNotFound, resp.Error.Code)
}

func TestExistsNeverFails(t *testing.T) {
	a, _ := testAgent(t)
	startAgent(t, a)

	resp := call(t, a, OpExists, ExistsParams{Selector: "#refresh"})
	require.True(t, resp.OK)
	var er ExistsResult
	require.NoError(t, resp.DecodeResult(&er))
	assert.True(t, er.Exists)

	resp = call(t, a, OpExists, ExistsParams{Selector: "#missing"})
	require.True(t, resp.OK)
	require.NoError(t, resp.DecodeResult(&er))
	assert.False(t, er.Exists)
}

func TestExtractMainContent(t *testing.T) {
	a, _ := testAgent(t)
	startAgent(t, a)

	resp := call(t, a, OpExtract, ExtractParams{})
	require.True(t, resp.OK)
	var xr schemas.ExtractResult
	require.NoError(t, resp.DecodeResult(&xr))
	assert.Contains(t, xr.Text, "# Orders")
	assert.Contains(t, xr.Text, "Open orders are listed below.")
}

func TestExtractBySelector(t *testing.T) {
	a, _ := testAgent(t)
	startAgent(t, a)

	resp := call(t, a, OpExtract, ExtractParams{Selector: ".orders"})
	require.True(t, resp.OK)
	var xr schemas.ExtractResult
	require.NoError(t, resp.DecodeResult(&xr))
	assert.Contains(t, xr.Text, "- Order 1001")
	assert.Contains(t, xr.Text, "- Order 1002")
}

func TestExtractAllJoinsMatches(t *testing.T) {
	a, _ := testAgent(t)
	startAgent(t, a)

	resp := call(t, a, OpExtractAll, ExtractAllParams{Selector: ".order", Separator: " | "})
	require.True(t, resp.OK)
	var xr schemas.ExtractAllResult
	require.NoError(t, resp.DecodeResult(&xr))
	assert.Equal(t, "Order 1001 | Order 1002", xr.Text)
	assert.Equal(t, 2, xr.Count)
}

func TestSnapshotThenLocateByRef(t *testing.T) {
	a, geo := testAgent(t)
	startAgent(t, a)

	resp := call(t, a, OpSnapshot, SnapshotParams{})
	require.True(t, resp.OK)
	var sr SnapshotResult
	require.NoError(t, resp.DecodeResult(&sr))
	assert.Contains(t, sr.Tree, `button "Refresh"`)
	assert.Greater(t, sr.RefCount, 0)

	// Resolve every ref until we find the button, then locate it by ref.
	buttonRef := 0
	for ref := 1; ref <= sr.RefCount; ref++ {
		r := call(t, a, OpResolve, ResolveParams{Ref: ref})
		if !r.OK {
			continue
		}
		var rr ResolveResult
		require.NoError(t, r.DecodeResult(&rr))
		if rr.Tag == "button" {
			buttonRef = ref
			n, err := findByPath(a, rr.Path)
			require.NoError(t, err)
			geo.SetBox(n, page.Rect{X: 0, Y: 0, Width: 50, Height: 50})
		}
	}
	require.NotZero(t, buttonRef, "snapshot assigned the button a ref")

	r := call(t, a, OpLocate, LocateParams{Ref: buttonRef})
	require.True(t, r.OK)
	var lr LocateResult
	require.NoError(t, r.DecodeResult(&lr))
	assert.Equal(t, 25, lr.X)
	assert.Equal(t, 25, lr.Y)
}

func TestRefreshKeepsSnapshotRefs(t *testing.T) {
	a, geo := testAgent(t)
	startAgent(t, a)

	resp := call(t, a, OpSnapshot, SnapshotParams{})
	require.True(t, resp.OK)
	var sr SnapshotResult
	require.NoError(t, resp.DecodeResult(&sr))

	buttonRef := 0
	for ref := 1; ref <= sr.RefCount; ref++ {
		r := call(t, a, OpResolve, ResolveParams{Ref: ref})
		if !r.OK {
			continue
		}
		var rr ResolveResult
		require.NoError(t, r.DecodeResult(&rr))
		if rr.Tag == "button" {
			buttonRef = ref
			n, err := findByPath(a, rr.Path)
			require.NoError(t, err)
			geo.SetBox(n, page.Rect{X: 30, Y: 30, Width: 20, Height: 20})
		}
	}
	require.NotZero(t, buttonRef)

	refreshed := `<html><body><main>
	  <h1>Orders</h1>
	  <p id="status">Refresh queued.</p>
	  <button id="refresh">Refresh</button>
	</main></body></html>`
	resp = call(t, a, OpRefresh, RefreshParams{HTML: refreshed, URL: "https://example.test/orders"})
	require.True(t, resp.OK)

	// Content reads see the new document.
	resp = call(t, a, OpExtract, ExtractParams{Selector: "#status"})
	require.True(t, resp.OK)
	var xr schemas.ExtractResult
	require.NoError(t, resp.DecodeResult(&xr))
	assert.Contains(t, xr.Text, "Refresh queued.")

	// The ref issued before the refresh still targets the button.
	resp = call(t, a, OpLocate, LocateParams{Ref: buttonRef})
	require.True(t, resp.OK, "ref survived the refresh: %+v", resp.Error)
	var lr LocateResult
	require.NoError(t, resp.DecodeResult(&lr))
	assert.Equal(t, 40, lr.X)
	assert.Equal(t, 40, lr.Y)
}

func TestRefWithoutSnapshotFails(t *testing.T) {
	a, _ := testAgent(t)
	startAgent(t, a)

	resp := call(t, a, OpResolve, ResolveParams{Ref: 3})
	require.False(t, resp.OK)
	assert.Equal(t, schemas.CodeNotFound, resp.Error.Code)
}

func TestResolveReportsValue(t *testing.T) {
	a, _ := testAgent(t)
	startAgent(t, a)

	resp := call(t, a, OpResolve, ResolveParams{Selector: "#filter"})
	require.True(t, resp.OK)
	var rr ResolveResult
	require.NoError(t, resp.DecodeResult(&rr))
	assert.Equal(t, "input", rr.Tag)
	assert.Equal(t, "pending", rr.Value)
}

func TestScrollByDeltas(t *testing.T) {
	a, geo := testAgent(t)
	startAgent(t, a)

	resp := call(t, a, OpResolve, ResolveParams{Selector: "#refresh"})
	require.True(t, resp.OK)
	var rr ResolveResult
	require.NoError(t, resp.DecodeResult(&rr))
	n, err := findByPath(a, rr.Path)
	require.NoError(t, err)
	geo.SetBox(n, page.Rect{X: 100, Y: 900, Width: 10, Height: 10})

	resp = call(t, a, OpScroll, ScrollParams{DY: 600})
	require.True(t, resp.OK)

	box, ok := geo.BoundingBox(n)
	require.True(t, ok)
	assert.Equal(t, 300.0, box.Y)
}

func TestUnknownOperation(t *testing.T) {
	a, _ := testAgent(t)
	startAgent(t, a)

	resp := call(t, a, "agent.bogus", nil)
	require.False(t, resp.OK)
	assert.Equal(t, schemas.CodeUnknownCommand, resp.Error.Code)
}

func TestRecordStartWithoutEventSourceFails(t *testing.T) {
	a, _ := testAgent(t)
	startAgent(t, a)

	resp := call(t, a, OpRecordStart, nil)
	require.False(t, resp.OK)
	assert.Equal(t, schemas.CodeDispatchFailure, resp.Error.Code)
}

func TestRecordingRoundTrip(t *testing.T) {
	geo := page.NewStaticGeometry()
	doc, err := page.ParseString(pageFixture, "https://example.test/orders", geo)
	require.NoError(t, err)

	raw := make(chan schemas.RawEvent, 8)
	recorded := make(chan schemas.RecordedEvent, 8)
	a := New(doc, testOptions(), raw, func(ev schemas.RecordedEvent) { recorded <- ev }, zap.NewNop())
	startAgent(t, a)

	resp := call(t, a, OpRecordStart, nil)
	require.True(t, resp.OK)

	raw <- schemas.RawEvent{Kind: "click", Selector: "#refresh", Tag: "button"}
	select {
	case ev := <-recorded:
		assert.Equal(t, schemas.EventClick, ev.Type)
		assert.Equal(t, "#refresh", ev.Selector)
	case <-time.After(2 * time.Second):
		t.Fatal("recorded event never arrived")
	}

	resp = call(t, a, OpRecordStop, nil)
	require.True(t, resp.OK)
}
