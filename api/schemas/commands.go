// api/schemas/commands.go
package schemas

// -- Command Parameters --

// ConnectParams optionally names the target to attach to. An empty hint means
// "the currently active page".
type ConnectParams struct {
	TargetHint string `json:"targetHint,omitempty"`
}

type NavigateParams struct {
	URL string `json:"url"`
}

type ClickParams struct {
	Selector string `json:"selector"`
}

type ClickRefParams struct {
	Ref int `json:"ref"`
}

type TypeParams struct {
	Selector string `json:"selector"`
	Text     string `json:"text"`
	Clear    bool   `json:"clear,omitempty"`
	Submit   bool   `json:"submit,omitempty"`
}

type TypeRefParams struct {
	Ref    int    `json:"ref"`
	Text   string `json:"text"`
	Clear  bool   `json:"clear,omitempty"`
	Submit bool   `json:"submit,omitempty"`
}

type HoverParams struct {
	Selector string `json:"selector"`
}

type ScrollParams struct {
	Direction string `json:"direction"` // up, down, top, bottom
	Amount    int    `json:"amount,omitempty"`
	Selector  string `json:"selector,omitempty"`
}

type WaitParams struct {
	Selector  string `json:"selector,omitempty"`
	Ms        int    `json:"ms,omitempty"`
	TimeoutMs int    `json:"timeout,omitempty"`
}

type ExistsParams struct {
	Selector  string `json:"selector"`
	TimeoutMs int    `json:"timeout,omitempty"`
}

type ExtractParams struct {
	Selector string `json:"selector,omitempty"`
}

type ExtractAllParams struct {
	Selector  string `json:"selector"`
	Separator string `json:"separator,omitempty"`
}

type AriaSnapshotParams struct {
	IncludeContent bool `json:"includeContent,omitempty"`
}

type FocusParams struct {
	Selector string `json:"selector,omitempty"`
}

// -- Command Results --

type ConnectResult struct {
	TargetID string `json:"targetId"`
}

// NavigateResult reports load completion. A navigation that exceeds the load
// deadline is flagged, not failed: the page may still be usable.
type NavigateResult struct {
	URL      string `json:"url"`
	Loaded   bool   `json:"loaded"`
	TimedOut bool   `json:"timedOut,omitempty"`
}

type ClickResult struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type WaitResult struct {
	Found bool `json:"found"`
}

type ExistsResult struct {
	Exists bool `json:"exists"`
}

type ExtractResult struct {
	Text string `json:"text"`
}

type ExtractAllResult struct {
	Text  string `json:"text"`
	Count int    `json:"count"`
}

type ScreenshotResult struct {
	// Data is the PNG capture, base64-encoded by the JSON codec.
	Data []byte `json:"data"`
}

type SnapshotResult struct {
	Tree     string `json:"tree"`
	RefCount int    `json:"refCount"`
}

// CapturedElement is one interactive element with a suggested stable selector,
// as returned by captureSelectors.
type CapturedElement struct {
	Selector string `json:"selector"`
	Tag      string `json:"tag"`
	Text     string `json:"text,omitempty"`
	Role     string `json:"role,omitempty"`
	Label    string `json:"label,omitempty"`
}

type CaptureSelectorsResult struct {
	Elements []CapturedElement `json:"elements"`
}

type FocusResult struct {
	Focused string `json:"focused,omitempty"`
}
