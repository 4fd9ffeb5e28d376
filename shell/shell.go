// Package shell adapts an OS shell subprocess into a line-oriented
// stdin/stdout/stderr handle (the Shell Adapter, C1) and builds the
// sentinel-framed driver scripts that drive it (the Framing Protocol, C2).
package shell

import (
	"bufio"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// Interface is the handle an owner (the runner pool, the auxiliary shell)
// holds on a spawned shell process. It is satisfied by *Shell and by test
// doubles that never fork a real process.
type Interface interface {
	// WriteLine writes s followed by a newline to the shell's stdin and
	// flushes immediately.
	WriteLine(s string) error
	// WriteScript writes s verbatim (already newline-terminated) and
	// flushes immediately. Used for multi-line driver scripts.
	WriteScript(s string) error
	// ReadStdoutLine reads one newline-terminated line from stdout, with
	// the trailing newline stripped. If the stream reaches EOF with a
	// non-empty partial line still buffered, that partial line is
	// returned together with io.EOF.
	ReadStdoutLine() (string, error)
	// ReadStderrLine is ReadStdoutLine for the stderr stream.
	ReadStderrLine() (string, error)
	// Alive reports whether the process appears to still be running.
	// A conservative implementation may return true unconditionally;
	// death is detected by the framing protocol via DeathLine.
	Alive() bool
	// PID returns the OS process id of the shell.
	PID() int
	// Close terminates the shell process and releases its streams.
	Close() error
}

var (
	shellPathMu      sync.Mutex
	cachedShellPaths = map[string]string{}
)

// DefaultShellPaths is the ordered list of candidate Bourne-Again shell
// binaries searched by Spawn when no explicit path list is given.
var DefaultShellPaths = []string{"/bin/bash", "/usr/bin/bash", "/usr/local/bin/bash"}

// locate finds the first executable candidate in paths, caching the
// winner per candidate list so repeated pool expansion does not re-stat
// the filesystem.
func locate(paths []string) (string, error) {
	shellPathMu.Lock()
	defer shellPathMu.Unlock()

	key := strings.Join(paths, "\x00")
	if cached, ok := cachedShellPaths[key]; ok {
		return cached, nil
	}

	for _, candidate := range paths {
		if err := unix.Access(candidate, unix.X_OK); err == nil {
			cachedShellPaths[key] = candidate
			return candidate, nil
		}
	}
	return "", ErrShellNotFound
}

// Shell is a spawned Bourne-Again shell process with piped, line-oriented
// standard streams. It is the concrete Interface implementation used
// outside of tests.
type Shell struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdinW *bufio.Writer
	stdout *bufio.Reader
	stderr *bufio.Reader

	closeOnce sync.Once
}

// Spawn locates a Bourne-Again shell from paths (DefaultShellPaths if nil)
// and starts it with piped stdin/stdout/stderr. It does not wait for exit.
func Spawn(paths []string) (*Shell, error) {
	if paths == nil {
		paths = DefaultShellPaths
	}

	path, err := locate(paths)
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(path)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("shell: stdin pipe: %w: %w", ErrSpawnFailed, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("shell: stdout pipe: %w: %w", ErrSpawnFailed, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("shell: stderr pipe: %w: %w", ErrSpawnFailed, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("shell: start %s: %w: %w", path, ErrSpawnFailed, err)
	}

	s := &Shell{
		cmd:    cmd,
		stdin:  stdin,
		stdinW: bufio.NewWriter(stdin),
		stdout: bufio.NewReader(stdout),
		stderr: bufio.NewReader(stderr),
	}

	if err := s.initialize(); err != nil {
		_ = s.Close()
		return nil, err
	}

	return s, nil
}

// initialize installs the death trap and the driver protocol's
// long-lived shell state: pipeline exit-status propagation and the two
// line prefixer functions the driver script reuses on every run.
func (s *Shell) initialize() error {
	return s.WriteScript(initScript)
}

func (s *Shell) WriteLine(line string) error {
	return s.WriteScript(line + "\n")
}

func (s *Shell) WriteScript(script string) error {
	if _, err := s.stdinW.WriteString(script); err != nil {
		return fmt.Errorf("shell: write: %w", err)
	}
	if err := s.stdinW.Flush(); err != nil {
		return fmt.Errorf("shell: flush: %w", err)
	}
	return nil
}

func (s *Shell) ReadStdoutLine() (string, error) {
	return readLine(s.stdout)
}

func (s *Shell) ReadStderrLine() (string, error) {
	return readLine(s.stderr)
}

// readLine reads one line, stripping the trailing newline. A partial
// final line at EOF is returned along with io.EOF rather than discarded.
func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		if len(line) > 0 {
			return line, err
		}
		return "", err
	}
	if n := len(line); n > 0 && line[n-1] == '\n' {
		line = line[:n-1]
	}
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return line, nil
}

// Alive performs a conservative liveness check by sending the null
// signal to the process. A false positive here is expected and caught
// downstream by the framing protocol (ProtocolViolation, RunnerDied).
func (s *Shell) Alive() bool {
	if s.cmd.Process == nil {
		return false
	}
	return s.cmd.Process.Signal(syscall.Signal(0)) == nil
}

func (s *Shell) PID() int {
	if s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

// Close closes the shell's stdin (which alone is often enough for a
// well-behaved shell to exit) and kills the process directly, since a
// runner being closed is being discarded and no longer needs the
// courtesy of a graceful shutdown extended to user commands.
func (s *Shell) Close() error {
	var closeErr error
	s.closeOnce.Do(func() {
		_ = s.stdin.Close()
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
		closeErr = s.cmd.Wait()
	})
	return closeErr
}
