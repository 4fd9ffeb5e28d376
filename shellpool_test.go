package shellpool_test

import (
	"context"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/shellpool/shellpool"
	"github.com/shellpool/shellpool/pool"
)

func requireBash(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not available")
	}
}

func newPool(t *testing.T, n int) *pool.Pool {
	t.Helper()
	requireBash(t)
	p := pool.New(pool.DefaultConfig())
	if err := p.Start(n); err != nil {
		t.Fatalf("Start(%d): %v", n, err)
	}
	return p
}

// Scenario 1 from §8.
func TestRunEchoHello(t *testing.T) {
	p := newPool(t, 1)

	var got []struct {
		line string
		kind pool.LineKind
	}
	status, err := p.Run(context.Background(), "echo hello", func(line string, kind pool.LineKind) {
		got = append(got, struct {
			line string
			kind pool.LineKind
		}{line, kind})
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if status != 0 {
		t.Errorf("status = %d, want 0", status)
	}
	if len(got) != 1 || got[0].line != "hello" || got[0].kind != pool.LineStdout {
		t.Errorf("callback = %+v, want one (hello, stdout)", got)
	}
}

// Scenario 3 from §8.
func TestRunMixedStreamsAndExitCode(t *testing.T) {
	p := newPool(t, 1)

	var sawOut, sawErr bool
	status, err := p.Run(context.Background(), "echo out; echo err 1>&2; exit 7", func(line string, kind pool.LineKind) {
		switch {
		case line == "out" && kind == pool.LineStdout:
			sawOut = true
		case line == "err" && kind == pool.LineStderr:
			sawErr = true
		}
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if status != 7 {
		t.Errorf("status = %d, want 7", status)
	}
	if !sawOut || !sawErr {
		t.Errorf("sawOut=%v sawErr=%v, want both true", sawOut, sawErr)
	}
}

// Scenario 4 from §8: a command that writes without a trailing newline.
func TestRunNoTrailingNewline(t *testing.T) {
	p := newPool(t, 1)

	var got string
	status, err := p.Run(context.Background(), "printf 'no-newline'", func(line string, kind pool.LineKind) {
		if kind == pool.LineStdout {
			got = line
		}
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if status != 0 {
		t.Errorf("status = %d, want 0", status)
	}
	if got != "no-newline" {
		t.Errorf("got %q, want %q", got, "no-newline")
	}
}

// Scenario 5 from §8: concurrent calls against a small pool, each seeing
// only its own output.
func TestRunConcurrentIsolation(t *testing.T) {
	p := newPool(t, 2)

	const n = 4
	var wg sync.WaitGroup
	errs := make([]error, n)
	oks := make([]bool, n)

	start := time.Now()
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			want := "t" + string(rune('1'+i))
			var seen string
			_, err := p.Run(context.Background(), "sleep 0.2; echo "+want, func(line string, kind pool.LineKind) {
				if kind == pool.LineStdout {
					seen = line
				}
			})
			errs[i] = err
			oks[i] = seen == want
		}(i)
	}
	wg.Wait()
	elapsed := time.Since(start)

	for i, err := range errs {
		if err != nil {
			t.Errorf("call %d: %v", i, err)
		}
		if !oks[i] {
			t.Errorf("call %d did not see its own output", i)
		}
	}
	if elapsed < 400*time.Millisecond {
		t.Errorf("elapsed = %v, want >= 400ms given pool size 2", elapsed)
	}
}

// Scenario 6 from §8: an outside cancellation aborts an in-flight
// command via the process-tree killer, and a healthy runner survives it.
func TestRunCancellationKillsProcessTree(t *testing.T) {
	p := newPool(t, 1)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(150 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := p.Run(ctx, "sleep 60 & sleep 60 & wait", pool.DefaultLineCallback)
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("Run: want error after cancellation")
	}
	if elapsed > 5*time.Second {
		t.Errorf("elapsed = %v, want well under 5s once canceled", elapsed)
	}

	// The runner's recovery drain should have settled cleanly (no
	// DEATH_LINE), so it is reinstated and usable by the next call.
	status, err := p.Run(context.Background(), "echo still-alive", func(line string, kind pool.LineKind) {})
	if err != nil {
		t.Fatalf("Run after cancellation: %v", err)
	}
	if status != 0 {
		t.Errorf("status = %d, want 0", status)
	}
}

func TestRunBackgroundDoesNotBlock(t *testing.T) {
	p := newPool(t, 1)
	if err := p.RunBackground("sleep 0.1"); err != nil {
		t.Fatalf("RunBackground: %v", err)
	}
}

func TestPackageLevelDefaultPool(t *testing.T) {
	requireBash(t)
	if err := shellpool.Start(1); err != nil {
		t.Fatalf("Start: %v", err)
	}
	status, err := shellpool.Run(context.Background(), "exit 0", shellpool.DefaultLineCallback)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if status != 0 {
		t.Errorf("status = %d, want 0", status)
	}
}
