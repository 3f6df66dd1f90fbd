package execmgr

import "errors"

var (
	// ErrManagerDead is returned when an operation is attempted against a
	// manager whose subprocess has already exited.
	ErrManagerDead = errors.New("execmgr: manager is dead")

	// ErrNoHistoryItem is returned by GetHistoryItem for an out-of-range
	// index.
	ErrNoHistoryItem = errors.New("execmgr: no such history item")

	// ErrKernelStartTimeout is returned when a kernel does not report
	// readiness within ReadyTimeout.
	ErrKernelStartTimeout = errors.New("execmgr: kernel startup timed out")

	// ErrKernelCommandFailed is returned by RunUntilComplete's done channel
	// when a command's sentinel reports an error.
	ErrKernelCommandFailed = errors.New("execmgr: kernel command failed")

	// ErrCommandFailed is sent on IssueCommand's status channel when the
	// sentinel reported "error" or the command emitted any stderr, per the
	// spec's exit-status rule for issue_command.
	ErrCommandFailed = errors.New("execmgr: command failed")
)
