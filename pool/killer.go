package pool

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

// allkidsScript defines, in the auxiliary shell, a function that prints
// a PID and every transitive descendant discovered via pgrep -P. It is
// installed once, at auxiliary-shell startup.
const allkidsScript = `allkids() { echo "$1"; for c in $(pgrep -P "$1" 2>/dev/null); do allkids "$c"; done; }
`

// killTree sends SIGKILL to pid and every descendant, via the
// auxiliary shell's allkids helper. It is best-effort: it does not
// confirm termination, matching §4.3 — the caller's recovery drain is
// what actually observes the runner settling back to a sentinel.
//
// As a defense-in-depth fallback independent of the auxiliary shell, it
// also sends SIGKILL to the process group -pid from the Go process
// itself. pid is the driver pipeline's backgrounded subshell, which the
// runner starts without job control, so it normally stays in the
// runner's own process group rather than leading one; the group kill
// then finds no such group and has no effect. A pid of 0 or 1 is never
// used for the group kill, since kill(0) and kill(-1) would signal the
// caller's own group or every process rather than one group.
func (p *Pool) killTree(pid int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.aux == nil || !p.aux.Alive() {
		return newError(KindAuxDead, fmt.Errorf("auxiliary shell unavailable for kill of pid %d", pid))
	}

	if err := p.aux.WriteLine(fmt.Sprintf("kill -9 $(allkids %d)", pid)); err != nil {
		return newError(KindAuxDead, err)
	}

	// Best-effort fallback; ignore errors, the pid may already be gone
	// or, as is usual, may not lead a process group.
	if pid > 1 {
		_ = unix.Kill(-pid, syscall.SIGKILL)
	}

	return nil
}
