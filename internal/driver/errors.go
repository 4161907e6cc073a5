// internal/driver/errors.go

package driver

import (
	"context"
	"errors"

	"github.com/xkilldash9x/pagedriver/api/schemas"
	"github.com/xkilldash9x/pagedriver/internal/page/layout"
	"github.com/xkilldash9x/pagedriver/internal/page/selector"
)

// Sentinel errors for the command failure taxonomy. Every command failure is
// caller-visible and non-fatal to the session.
var (
	// ErrRestrictedTarget marks privileged destinations. Never retried.
	ErrRestrictedTarget = errors.New("restricted target")
	// ErrNotAttached means a page command arrived with no attached session.
	ErrNotAttached = errors.New("no attached session")
	// ErrTimeout marks a bounded wait that elapsed.
	ErrTimeout = errors.New("timed out")
	// ErrUnknownCommand marks a command name the dispatcher does not route.
	ErrUnknownCommand = errors.New("unknown command")
)

// codeFor maps an internal error onto the wire error code.
func codeFor(err error) string {
	switch {
	case errors.Is(err, ErrRestrictedTarget):
		return schemas.CodeRestrictedTarget
	case errors.Is(err, selector.ErrNotFound), errors.Is(err, layout.ErrNoGeometry):
		return schemas.CodeNotFound
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return schemas.CodeTimeout
	case errors.Is(err, ErrUnknownCommand):
		return schemas.CodeUnknownCommand
	default:
		return schemas.CodeDispatchFailure
	}
}

// fail builds the failure response for env from an internal error.
func fail(id string, err error) schemas.Response {
	return schemas.FailResponse(id, codeFor(err), err.Error())
}
