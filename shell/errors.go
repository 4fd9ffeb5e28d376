package shell

import "errors"

// Sentinel errors originating in the shell adapter and framing
// protocol. The pool and shellpool packages wrap these with the
// caller-visible error kinds from §7 of the design.
var (
	// ErrShellNotFound means no candidate shell path exists.
	ErrShellNotFound = errors.New("shell: no bash-compatible shell found")
	// ErrSpawnFailed means the OS refused to spawn the shell process.
	ErrSpawnFailed = errors.New("shell: spawn failed")
	// ErrProtocolViolation means a line outside the control grammar was
	// observed where a control line or prefixed output was expected.
	ErrProtocolViolation = errors.New("shell: protocol violation")
)
