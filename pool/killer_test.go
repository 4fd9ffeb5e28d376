package pool_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shellpool/shellpool/internal/shellpooltest"
	"github.com/shellpool/shellpool/pool"
	"github.com/shellpool/shellpool/shell"
)

func TestBackgroundRequiresAuxAlive(t *testing.T) {
	factory, shells := recordingFactory()
	p := pool.New(pool.DefaultConfig())
	p.ShellFactory = factory

	if err := p.RunBackground("echo hi"); err != nil {
		t.Fatalf("RunBackground: %v", err)
	}
	if len(*shells) != 1 {
		t.Fatalf("spawned %d shells, want 1 (aux only)", len(*shells))
	}
	aux := (*shells)[0]
	if len(aux.Writes) != 2 {
		t.Fatalf("aux.Writes = %v, want allkids install + background line", aux.Writes)
	}
	if aux.Writes[1] != "(echo hi) &" {
		t.Errorf("aux background write = %q", aux.Writes[1])
	}

	aux.SetAlive(false)
	if err := p.RunBackground("echo again"); !errors.Is(err, pool.ErrAuxDead) {
		t.Fatalf("RunBackground with dead aux = %v, want ErrAuxDead", err)
	}
}

func TestRunOnUnstartedPoolIsAuxDead(t *testing.T) {
	p := pool.New(pool.DefaultConfig())
	p.ShellFactory = func() (shell.Interface, error) { return shellpooltest.New(1), nil }

	// Never started: no auxiliary shell exists yet.
	_, err := p.Run(context.Background(), "echo hi", nil)
	if !errors.Is(err, pool.ErrAuxDead) {
		t.Fatalf("Run against unstarted pool = %v, want ErrAuxDead", err)
	}
}
