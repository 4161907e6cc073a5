// api/schemas/envelope.go
package schemas

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

// fastjson is the codec used for all envelope traffic. Command dispatch is a
// hot path during recording playback, so we avoid encoding/json here.
var fastjson = jsoniter.ConfigCompatibleWithStandardLibrary

// Command names accepted by the dispatcher.
const (
	CmdConnect          = "connect"
	CmdDisconnect       = "disconnect"
	CmdNavigate         = "navigate"
	CmdClick            = "click"
	CmdClickRef         = "clickRef"
	CmdType             = "type"
	CmdTypeRef          = "typeRef"
	CmdHover            = "hover"
	CmdScroll           = "scroll"
	CmdWait             = "wait"
	CmdExists           = "exists"
	CmdExtract          = "extract"
	CmdExtractAll       = "extractAll"
	CmdScreenshot       = "screenshot"
	CmdSnapshot         = "snapshot"
	CmdAriaSnapshot     = "ariaSnapshot"
	CmdCaptureSelectors = "captureSelectors"
	CmdFocus            = "focus"
	CmdStartRecording   = "startRecording"
	CmdStopRecording    = "stopRecording"
)

// Error codes carried on failed responses. These are stable identifiers;
// callers branch on them, so they are part of the wire contract.
const (
	CodeRestrictedTarget = "RESTRICTED_TARGET"
	CodeNotFound         = "NOT_FOUND"
	CodeTimeout          = "TIMEOUT"
	CodeDispatchFailure  = "DISPATCH_FAILURE"
	CodeUnknownCommand   = "UNKNOWN_COMMAND"
)

// Envelope is a single outbound command: a correlation id, a command name and
// an opaque parameter payload.
type Envelope struct {
	ID      string          `json:"id"`
	Command string          `json:"command"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// CommandError describes a failed command in caller-consumable form.
type CommandError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Response is the exactly-once reply correlated to an Envelope.
type Response struct {
	ID     string          `json:"id"`
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *CommandError   `json:"error,omitempty"`
}

// NewEnvelope builds an envelope with a fresh correlation id. The params value
// is encoded immediately so encode failures surface at the call site.
func NewEnvelope(command string, params interface{}) (Envelope, error) {
	env := Envelope{ID: uuid.New().String(), Command: command}
	if params != nil {
		raw, err := fastjson.Marshal(params)
		if err != nil {
			return Envelope{}, fmt.Errorf("failed to encode params for %q: %w", command, err)
		}
		env.Params = raw
	}
	return env, nil
}

// DecodeParams unmarshals an envelope's parameter payload into out.
func (e Envelope) DecodeParams(out interface{}) error {
	if len(e.Params) == 0 {
		return nil
	}
	if err := fastjson.Unmarshal(e.Params, out); err != nil {
		return fmt.Errorf("malformed params for %q: %w", e.Command, err)
	}
	return nil
}

// OKResponse builds a success response carrying the encoded result.
func OKResponse(id string, result interface{}) Response {
	resp := Response{ID: id, OK: true}
	if result != nil {
		raw, err := fastjson.Marshal(result)
		if err != nil {
			return FailResponse(id, CodeDispatchFailure, fmt.Sprintf("failed to encode result: %v", err))
		}
		resp.Result = raw
	}
	return resp
}

// FailResponse builds a failure response with the given code and message.
func FailResponse(id, code, message string) Response {
	return Response{ID: id, OK: false, Error: &CommandError{Code: code, Message: message}}
}

// DecodeResult unmarshals a response's result payload into out. A failed
// response returns its CommandError instead.
func (r Response) DecodeResult(out interface{}) error {
	if !r.OK {
		if r.Error != nil {
			return r.Error
		}
		return fmt.Errorf("response %s failed without error detail", r.ID)
	}
	if len(r.Result) == 0 {
		return nil
	}
	return fastjson.Unmarshal(r.Result, out)
}
