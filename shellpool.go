// Package shellpool is a shell command execution pool embedded inside a
// host application: a bounded set of pre-forked worker shells that run
// commands with line-by-line stdout/stderr delivery, exact exit status
// reporting, and forced termination of an in-flight command's entire
// process subtree.
//
// The package-level Start/Run/RunBackground wrap a lazily constructed
// default *pool.Pool for convenience; callers that want more than one
// independent pool, or that want to inject a ShellFactory for testing,
// should construct their own pool.Pool with pool.New instead.
package shellpool

import (
	"context"
	"sync"

	"github.com/shellpool/shellpool/pool"
)

var (
	defaultOnce sync.Once
	defaultPool *pool.Pool
)

func def() *pool.Pool {
	defaultOnce.Do(func() {
		defaultPool = pool.New(pool.DefaultConfig())
	})
	return defaultPool
}

// LineKind distinguishes which stream a callback line came from.
type LineKind = pool.LineKind

const (
	LineStdout = pool.LineStdout
	LineStderr = pool.LineStderr
)

// LineCallback receives one line of output at a time, tagged by stream.
type LineCallback = pool.LineCallback

// DefaultLineCallback writes stdout-kind lines to the host's stdout and
// stderr-kind lines to the host's stderr, flushing after each line.
func DefaultLineCallback(line string, kind LineKind) { pool.DefaultLineCallback(line, kind) }

// Start ensures the auxiliary shell exists and adds n runners to the
// default pool. n defaults to 1 if not positive.
func Start(n int) error { return def().Start(n) }

// Run executes cmd on the default pool, delivering output to cb, and
// returns the command's true exit status. Canceling ctx aborts cmd via
// the process-tree killer instead of waiting for it to finish; see
// pool.Pool.Run.
func Run(ctx context.Context, cmd string, cb LineCallback) (int, error) {
	return def().Run(ctx, cmd, cb)
}

// RunBackground submits cmd as a detached, unmonitored job.
func RunBackground(cmd string) error { return def().RunBackground(cmd) }

// Kind and the Err* sentinels re-export pool's §7 error taxonomy so
// callers of the package-level API do not need to import pool directly
// just to call errors.Is.
type Kind = pool.Kind

const (
	KindShellNotFound     = pool.KindShellNotFound
	KindSpawnFailed       = pool.KindSpawnFailed
	KindInsane            = pool.KindInsane
	KindRunnerCorrupted   = pool.KindRunnerCorrupted
	KindRunnerDied        = pool.KindRunnerDied
	KindProtocolViolation = pool.KindProtocolViolation
	KindAuxDead           = pool.KindAuxDead
	KindIncomplete        = pool.KindIncomplete
)

var (
	ErrShellNotFound     = pool.ErrShellNotFound
	ErrSpawnFailed       = pool.ErrSpawnFailed
	ErrInsane            = pool.ErrInsane
	ErrRunnerCorrupted   = pool.ErrRunnerCorrupted
	ErrRunnerDied        = pool.ErrRunnerDied
	ErrProtocolViolation = pool.ErrProtocolViolation
	ErrAuxDead           = pool.ErrAuxDead
	ErrIncomplete        = pool.ErrIncomplete
)
