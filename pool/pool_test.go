package pool_test

import (
	"errors"
	"testing"

	"github.com/shellpool/shellpool/internal/shellpooltest"
	"github.com/shellpool/shellpool/pool"
	"github.com/shellpool/shellpool/shell"
)

func fakeFactory() pool.ShellFactory {
	pid := 0
	return func() (shell.Interface, error) {
		pid++
		return shellpooltest.New(pid), nil
	}
}

func TestStartRejectsInsane(t *testing.T) {
	cfg := pool.DefaultConfig()
	cfg.MaxShells = 2
	p := pool.New(cfg)
	p.ShellFactory = fakeFactory()

	err := p.Start(2)
	if !errors.Is(err, pool.ErrInsane) {
		t.Fatalf("Start(2) with MaxShells=2 = %v, want ErrInsane", err)
	}
}

func TestStartAddsRunners(t *testing.T) {
	p := pool.New(pool.DefaultConfig())
	p.ShellFactory = fakeFactory()

	if err := p.Start(3); err != nil {
		t.Fatalf("Start: %v", err)
	}
}

func TestStartIsIdempotentForAux(t *testing.T) {
	var spawned int
	p := pool.New(pool.DefaultConfig())
	p.ShellFactory = func() (shell.Interface, error) {
		spawned++
		return shellpooltest.New(spawned), nil
	}

	if err := p.Start(1); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := p.Start(1); err != nil {
		t.Fatalf("second Start: %v", err)
	}

	// One auxiliary shell plus two runners (one per Start call) = 3.
	if spawned != 3 {
		t.Errorf("spawned = %d, want 3 (1 aux + 2 runners)", spawned)
	}
}
