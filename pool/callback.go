package pool

import (
	"bufio"
	"fmt"
	"os"
	"sync"
)

var (
	stdoutMu sync.Mutex
	stdoutW  = bufio.NewWriter(os.Stdout)
	stderrMu sync.Mutex
	stderrW  = bufio.NewWriter(os.Stderr)
)

// DefaultLineCallback writes stdout-kind lines to the host's stdout and
// stderr-kind lines to the host's stderr, flushing after each line, the
// way the teacher's RenderIncremental writes each event as it arrives.
// Concurrent Run calls may invoke this callback from different
// goroutines at once (§5, §8 scenario 5), so each stream's writer is
// guarded by its own mutex.
func DefaultLineCallback(line string, kind LineKind) {
	switch kind {
	case LineStderr:
		stderrMu.Lock()
		defer stderrMu.Unlock()
		fmt.Fprintln(stderrW, line)
		_ = stderrW.Flush()
	default:
		stdoutMu.Lock()
		defer stdoutMu.Unlock()
		fmt.Fprintln(stdoutW, line)
		_ = stdoutW.Flush()
	}
}
