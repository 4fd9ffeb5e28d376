package pool

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/shellpool/shellpool/shell"
)

// LineKind distinguishes which stream a callback line came from.
type LineKind int

const (
	LineStdout LineKind = iota
	LineStderr
)

func (k LineKind) String() string {
	if k == LineStderr {
		return "stderr"
	}
	return "stdout"
}

// LineCallback receives one line of output at a time, tagged by the
// stream it arrived on. It is the polymorphic sink described in §9.
type LineCallback func(line string, kind LineKind)

// lineMsg is one line (or its terminal read error) pumped from a shell
// stream by streamPump.
type lineMsg struct {
	line string
	err  error
}

// streamPump becomes the sole reader of a shell stream for the rest of a
// call. bufio.Reader is not safe for concurrent reads, so every consumer
// of the stream during the call — the strict parse loop, and later the
// tolerant recovery drain if cleanup kicks in — receives from the same
// channel instead of calling ReadStdoutLine/ReadStderrLine directly.
// The pump stops issuing further reads once it forwards a read error, a
// DEATH_LINE, or a line whose suffix matches EXIT_LINE, regardless of
// which consumer is currently receiving. That keeps it from reading
// ahead into the next call's output when a cancellation leaves a send
// unclaimed for a while: the pending send simply waits for whichever
// consumer (parse loop or drain) eventually receives it.
func streamPump(read func() (string, error)) <-chan lineMsg {
	ch := make(chan lineMsg)
	go func() {
		for {
			line, err := read()
			ch <- lineMsg{line, err}
			if err != nil || line == shell.DeathLine || shell.HasExitSuffix(line) {
				return
			}
		}
	}()
	return ch
}

// recv waits for the pump's next line, or for ctx to be canceled first.
func recv(ctx context.Context, ch <-chan lineMsg) (lineMsg, error) {
	select {
	case <-ctx.Done():
		return lineMsg{}, ctx.Err()
	case m := <-ch:
		return m, nil
	}
}

// pumpTerminal reports whether m is one of the messages after which
// streamPump stops reading — a read error, DEATH_LINE, or a line whose
// suffix matches EXIT_LINE. A parse loop that consumes such a message
// itself must not ask protectedCleanup to drain that same channel
// afterward: nothing more will ever arrive on it.
func pumpTerminal(m lineMsg) bool {
	return m.err != nil || m.line == shell.DeathLine || shell.HasExitSuffix(m.line)
}

// Run is the Execution Engine (C5): it checks out a runner, drives the
// framing protocol for cmd, delivers tagged lines to cb, and returns the
// command's true exit status.
//
// ctx governs cancellation of this call only (§5): if it is canceled
// while the user command is running, Run aborts the command via the
// Process-Tree Killer and returns an error, exactly as an internal
// protocol failure would. The checked-out runner survives the abort and
// is reinstated if the recovery drain settles cleanly, or permanently
// evicted if it observes a DEATH_LINE — Run's own error report is
// independent of the runner's fate. A nil ctx behaves as
// context.Background().
func (p *Pool) Run(ctx context.Context, cmd string, cb LineCallback) (int, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	callID := uuid.NewString()

	scriptPath, cleanup, err := writeTempScript(cmd)
	if err != nil {
		return 0, newError(KindSpawnFailed, err)
	}
	defer cleanup()

	var status int
	runErr := p.withRunner(func(r *Runner) error {
		p.logf("call %s: checked out runner %s", callID, r.ID)
		status, err = p.runOnRunner(ctx, callID, r, scriptPath, cb)
		return err
	})

	return status, runErr
}

// writeTempScript creates the per-run temporary script file F (§6:
// "shellpool-%.tmp") containing the interrupt trap and the user
// command, and returns a cleanup func that removes it on every exit
// path.
func writeTempScript(cmd string) (path string, cleanup func(), err error) {
	f, err := os.CreateTemp("", "shellpool-*.tmp")
	if err != nil {
		return "", nil, fmt.Errorf("pool: create temp script: %w", err)
	}
	name := f.Name()
	cleanup = func() { _ = os.Remove(name) }

	if _, err := f.WriteString(shell.ScriptFile(cmd)); err != nil {
		_ = f.Close()
		cleanup()
		return "", nil, fmt.Errorf("pool: write temp script: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("pool: close temp script: %w", err)
	}
	return name, cleanup, nil
}

// runOnRunner implements §4.5 step 2: ping check, driver dispatch, the
// two parse loops, and protected cleanup on an incomplete or canceled
// exchange.
func (p *Pool) runOnRunner(ctx context.Context, callID string, r *Runner, scriptPath string, cb LineCallback) (int, error) {
	if err := p.pingCheck(r); err != nil {
		return 0, err
	}

	if err := r.shell.WriteScript(shell.DriverScript(scriptPath)); err != nil {
		r.errored = true
		return 0, newError(KindRunnerDied, err)
	}

	stdoutCh := streamPump(r.shell.ReadStdoutLine)
	stderrCh := streamPump(r.shell.ReadStderrLine)

	pidMsg, err := recv(ctx, stderrCh)
	if err != nil {
		// Canceled before the pid was even announced: there is nothing
		// known to hand the Process-Tree Killer, so the runner's state
		// afterward is unknown. Evict rather than risk reinstating it.
		r.errored = true
		return 0, newError(KindIncomplete, fmt.Errorf("run canceled before pid observed: %w", err))
	}
	if pidMsg.err != nil {
		r.errored = true
		return 0, newError(KindRunnerDied, pidMsg.err)
	}
	pid, err := shell.ParsePIDLine(pidMsg.line)
	if err != nil {
		r.errored = true
		return 0, newError(KindProtocolViolation, err)
	}
	p.logf("call %s: runner %s driving pid %d", callID, r.ID, pid)

	status := -1
	sawOut, outDrainable, outErr := p.parseStdoutLoop(ctx, r, stdoutCh, cb, &status)

	if !sawOut {
		// The stdout loop ended without EXIT_LINE — protocol violation,
		// runner death, or an outside cancellation — with the user
		// command possibly still running. Kill its process tree and
		// drain both streams through the tolerant recovery path before
		// ever touching the strict stderr grammar, per §4.5.2.e. If the
		// loop itself already consumed stdoutCh's one terminal message
		// (a read error, a death line, or a line ending in EXIT_LINE),
		// that pump has stopped for good
		// and must not be drained again.
		var drainStdout <-chan lineMsg
		if outDrainable {
			drainStdout = stdoutCh
		}
		p.protectedCleanup(callID, r, pid, drainStdout, stderrCh)
		switch {
		case outErr != nil:
			return 0, outErr
		case ctx.Err() != nil:
			return 0, newError(KindIncomplete, fmt.Errorf("run canceled: %w", ctx.Err()))
		default:
			r.errored = true
			return 0, newError(KindIncomplete, errors.New("sentinels not observed"))
		}
	}

	sawErr, errDrainable, errErr := p.parseStderrLoop(ctx, r, stderrCh)
	if !sawErr {
		var drainStderr <-chan lineMsg
		if errDrainable {
			drainStderr = stderrCh
		}
		p.protectedCleanup(callID, r, pid, nil, drainStderr)
	}

	if errErr != nil {
		return 0, errErr
	}
	if !sawErr {
		if ctx.Err() != nil {
			return 0, newError(KindIncomplete, fmt.Errorf("run canceled: %w", ctx.Err()))
		}
		r.errored = true
		return 0, newError(KindIncomplete, errors.New("sentinels not observed"))
	}
	if status < 0 {
		r.errored = true
		return 0, newError(KindIncomplete, errors.New("status not observed"))
	}

	return status, nil
}

func (p *Pool) pingCheck(r *Runner) error {
	if err := r.shell.WriteLine("echo ping"); err != nil {
		r.errored = true
		return newError(KindRunnerDied, err)
	}
	line, err := r.shell.ReadStdoutLine()
	if err != nil || strings.TrimSpace(line) != "ping" {
		r.errored = true
		if err == nil {
			err = fmt.Errorf("got %q", line)
		}
		return newError(KindRunnerCorrupted, err)
	}
	return nil
}

// parseStdoutLoop implements the stdout loop of §4.2's parsing rules. It
// returns whether EXIT_LINE was reached, whether ch is still safe to hand
// to protectedCleanup for further draining, and any protocol error. ch
// stops being drainable exactly when this loop itself consumed the one
// terminal message streamPump will ever send on it (a read error, a death
// line, or a line ending in EXIT_LINE) — see pumpTerminal. A false sawExit with a nil error means ctx
// was canceled before EXIT_LINE arrived; the caller checks ctx.Err().
func (p *Pool) parseStdoutLoop(ctx context.Context, r *Runner, ch <-chan lineMsg, cb LineCallback, status *int) (sawExit, drainable bool, err error) {
	for {
		m, cerr := recv(ctx, ch)
		if cerr != nil {
			return false, true, nil
		}
		if m.err != nil {
			r.errored = true
			return false, false, newError(KindRunnerDied, m.err)
		}
		line := m.line
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "+"):
			if cb != nil {
				cb(line[1:], LineStdout)
			}
		case strings.HasPrefix(line, "-"):
			if cb != nil {
				cb(line[1:], LineStderr)
			}
		case strings.HasPrefix(line, shell.StatusLine+" "):
			n, perr := shell.ParseStatusLine(line)
			if perr != nil {
				r.errored = true
				return false, !pumpTerminal(m), newError(KindProtocolViolation, perr)
			}
			*status = n
		case line == shell.DeathLine:
			r.errored = true
			return false, false, newError(KindRunnerDied, errors.New("death line observed on stdout"))
		case line == shell.ExitLine:
			return true, false, nil
		default:
			r.errored = true
			return false, !pumpTerminal(m), newError(KindProtocolViolation, fmt.Errorf("unexpected stdout line %q", line))
		}
	}
}

// parseStderrLoop implements the stderr loop of §4.2's parsing rules, with
// the same drainable contract as parseStdoutLoop.
func (p *Pool) parseStderrLoop(ctx context.Context, r *Runner, ch <-chan lineMsg) (sawExit, drainable bool, err error) {
	for {
		m, cerr := recv(ctx, ch)
		if cerr != nil {
			return false, true, nil
		}
		if m.err != nil {
			r.errored = true
			return false, false, newError(KindRunnerDied, m.err)
		}
		switch {
		case m.line == "":
			continue
		case m.line == shell.ExitLine:
			return true, false, nil
		case m.line == shell.DeathLine:
			r.errored = true
			return false, false, newError(KindRunnerDied, errors.New("death line observed on stderr"))
		default:
			r.errored = true
			return false, !pumpTerminal(m), newError(KindProtocolViolation, fmt.Errorf("unexpected stderr line %q", m.line))
		}
	}
}

// protectedCleanup runs whenever at least one stream did not reach its
// sentinel — including because ctx was canceled: it best-effort kills
// the process tree rooted at pid, then drains whichever of
// stdoutCh/stderrCh is non-nil until a line whose suffix (not equality —
// a partial final line may lack a trailing newline) matches EXIT_LINE.
func (p *Pool) protectedCleanup(callID string, r *Runner, pid int, stdoutCh, stderrCh <-chan lineMsg) {
	p.logf("call %s: incomplete exchange, killing pid %d", callID, pid)

	if err := p.killTree(pid); err != nil {
		p.logf("call %s: kill tree failed: %v", callID, err)
	}

	if stdoutCh != nil {
		p.drain(r, stdoutCh)
	}
	if stderrCh != nil {
		p.drain(r, stderrCh)
	}
}

func (p *Pool) drain(r *Runner, ch <-chan lineMsg) {
	for {
		m := <-ch
		if m.err != nil {
			r.errored = true
			return
		}
		if m.line == shell.DeathLine {
			r.errored = true
			return
		}
		if shell.HasExitSuffix(m.line) {
			return
		}
	}
}
