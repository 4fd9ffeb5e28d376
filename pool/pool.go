// Package pool owns the runner pool lifecycle (C4), the auxiliary
// shell's process-tree killer (C3) and background launcher (C6), and
// the execution engine (C5) that drives a single run through a
// checked-out runner.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shellpool/shellpool/shell"
)

// ShellFactory spawns a new worker or auxiliary shell. Tests substitute
// a factory that returns an in-memory double instead of forking bash,
// mirroring the teacher's CommandFactory dependency-injection pattern.
type ShellFactory func() (shell.Interface, error)

// Pool is the process-wide (or per-caller, if constructed directly)
// runner pool state described in §3. The zero value is not usable; use
// New.
type Pool struct {
	// ShellFactory is exposed for test injection; it defaults to a
	// factory built from Config.ShellPaths in New. It must not be
	// mutated concurrently with pool use.
	ShellFactory ShellFactory

	logger *log.Logger

	mu        sync.Mutex
	cfg       Config
	started   bool
	aux       shell.Interface
	sem       chan struct{}
	available []*Runner
}

// New constructs a Pool with the given configuration. It does not spawn
// anything; call Start to bring up the auxiliary shell and runners.
func New(cfg Config) *Pool {
	cfg = cfg.withDefaults()
	p := &Pool{
		cfg:    cfg,
		logger: log.New(os.Stderr, "shellpool: ", log.LstdFlags),
	}
	paths := cfg.shellPaths()
	p.ShellFactory = func() (shell.Interface, error) {
		s, err := shell.Spawn(paths)
		if err != nil {
			return nil, wrapSpawnError(err)
		}
		return s, nil
	}
	return p
}

func wrapSpawnError(err error) error {
	switch {
	case errors.Is(err, shell.ErrShellNotFound):
		return newError(KindShellNotFound, err)
	default:
		return newError(KindSpawnFailed, err)
	}
}

func (p *Pool) logf(format string, args ...any) {
	if p.cfg.Debug {
		p.logger.Printf(format, args...)
	}
}

// Debug reports the pool's current DEBUG knob, which WatchConfig may
// have hot-reloaded since New.
func (p *Pool) Debug() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg.Debug
}

func (p *Pool) currentConfig() Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg
}

// applyConfig hot-reloads Debug and, if it grew, MaxShells. It never
// shrinks the live pool: fewer available runners than before is out of
// scope, matching spec.md's non-goal on pool resizing.
func (p *Pool) applyConfig(cfg Config) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg.Debug = cfg.Debug
	if cfg.MaxShells > p.cfg.MaxShells {
		p.cfg.MaxShells = cfg.MaxShells
	}
}

// Start idempotently ensures the auxiliary shell exists, then adds n
// runners to the pool. It rejects n >= MaxShells with Insane.
func (p *Pool) Start(n int) error {
	if n <= 0 {
		n = 1
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if n >= p.cfg.MaxShells {
		return newError(KindInsane, fmt.Errorf("start(%d) >= MaxShells(%d)", n, p.cfg.MaxShells))
	}

	if err := p.ensureAuxLocked(); err != nil {
		return err
	}

	if err := p.addRunnersLocked(n); err != nil {
		return err
	}

	p.started = true
	return nil
}

// addRunnersLocked spawns n shells, installs each into the available
// list, and increments the semaphore by n. Must be called with p.mu
// held.
func (p *Pool) addRunnersLocked(n int) error {
	if p.sem == nil {
		// Sized generously: the semaphore only ever needs to hold as
		// many permits as MaxShells allows runners to exist.
		p.sem = make(chan struct{}, p.cfg.MaxShells)
	}

	for i := 0; i < n; i++ {
		s, err := p.ShellFactory()
		if err != nil {
			return err
		}
		r := &Runner{ID: uuid.NewString(), shell: s}
		p.available = append(p.available, r)
		p.sem <- struct{}{}
		p.logf("runner %s started (pid=%d)", r.ID, s.PID())
	}
	return nil
}

// withRunner acquires one permit (blocking), checks out a runner, runs
// body, and on every exit path either reinstates the runner (signalling
// the semaphore again) or, if body marked it errored, drops it
// permanently — never repaying the semaphore, per Invariant (I1).
func (p *Pool) withRunner(body func(r *Runner) error) error {
	p.mu.Lock()
	sem := p.sem
	p.mu.Unlock()
	if sem == nil {
		return newError(KindAuxDead, errors.New("pool not started"))
	}

	<-sem

	p.mu.Lock()
	if len(p.available) == 0 {
		p.mu.Unlock()
		// A permit without a runner would violate (I1); this should be
		// unreachable given addRunnersLocked's bookkeeping.
		return newError(KindAuxDead, errors.New("pool: semaphore/available mismatch"))
	}
	last := len(p.available) - 1
	r := p.available[last]
	p.available = p.available[:last]
	p.mu.Unlock()

	if !r.shell.Alive() {
		r.errored = true
		p.dropRunner(r)
		return newError(KindRunnerCorrupted, errors.New("runner not alive at checkout"))
	}

	err := body(r)

	if r.errored {
		p.dropRunner(r)
		return err
	}

	p.mu.Lock()
	p.available = append(p.available, r)
	p.mu.Unlock()
	p.sem <- struct{}{}

	return err
}

func (p *Pool) dropRunner(r *Runner) {
	p.logf("runner %s evicted", r.ID)
	_ = r.shell.Close()
}

// ensureAuxLocked spawns the auxiliary shell and installs allkids, if
// it has not already been started. Must be called with p.mu held.
func (p *Pool) ensureAuxLocked() error {
	if p.aux != nil {
		return nil
	}
	s, err := p.ShellFactory()
	if err != nil {
		return err
	}
	if err := s.WriteScript(allkidsScript); err != nil {
		_ = s.Close()
		return newError(KindAuxDead, err)
	}
	p.aux = s
	p.logf("auxiliary shell started (pid=%d)", s.PID())
	return nil
}

// Shutdown tears down every available runner and the auxiliary shell
// concurrently, each bounded by ShutdownTimeout. A runner checked out by
// an in-flight Run is not closed; it rejoins the pool when that call
// returns. Adapted from the teacher's
// handleGracefulShutdown, which escalates from a courtesy signal to a
// forced kill after a deadline; here every shell.Interface.Close is
// already a direct kill (see shell.Shell.Close), so the bound only
// caps how long Shutdown waits for that kill and Wait to finish before
// moving on, it does not add its own signal escalation.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	runners := p.available
	p.available = nil
	aux := p.aux
	p.aux = nil
	p.mu.Unlock()

	var wg sync.WaitGroup
	for _, r := range runners {
		wg.Add(1)
		go func(r *Runner) {
			defer wg.Done()
			p.closeWithTimeout(ctx, r.shell)
		}(r)
	}
	if aux != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.closeWithTimeout(ctx, aux)
		}()
	}
	wg.Wait()
	return nil
}

func (p *Pool) closeWithTimeout(ctx context.Context, s shell.Interface) {
	done := make(chan struct{})
	go func() {
		_ = s.Close()
		close(done)
	}()

	timeout := time.NewTimer(p.cfg.ShutdownTimeout)
	defer timeout.Stop()

	select {
	case <-done:
	case <-timeout.C:
	case <-ctx.Done():
	}
}
