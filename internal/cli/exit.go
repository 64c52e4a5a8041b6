package cli

import (
	"errors"

	"github.com/stackdock-io/stackdock/internal/decl"
	"github.com/stackdock-io/stackdock/internal/engine"
)

// Exit codes. Declaration problems and execution failures are
// distinguishable so wrapping scripts can tell a bad stack file from a
// provider outage.
const (
	ExitOK          = 0
	ExitExecFailure = 1
	ExitConfigError = 2
)

// ExitCode maps an error from a command run to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var vErr *decl.ValidationError
	if errors.As(err, &vErr) || engine.IsConfigError(err) {
		return ExitConfigError
	}
	return ExitExecFailure
}
