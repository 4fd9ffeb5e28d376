// Command shellpool is a small demonstration binary for the shellpool
// library: it starts a pool, runs the command given on the command
// line through it, streams tagged output to the terminal, and exits
// with the command's real exit status.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/shellpool/shellpool/pool"
)

func printHelp() {
	fmt.Fprintf(os.Stderr, `shellpool - Shell Command Execution Pool

DESCRIPTION:
  Runs a shell command through a pool of pre-forked worker shells,
  streaming stdout/stderr line-by-line and reporting the command's
  real exit status.

USAGE:
  shellpool [OPTIONS] -- COMMAND

OPTIONS:
`)
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
EXAMPLES:
  # Run a command through a pool of one runner
  shellpool -- echo hello

  # Run with a larger pool and debug tracing
  shellpool -runners=4 -debug=1 -- 'sleep 1; echo done'

  # Fire a background job and exit immediately
  shellpool -background -- 'sleep 5; echo done' &

  # Load pool tunables from a TOML file
  shellpool -config=shellpool.toml -- echo hi

EXIT CODES:
  The command's own exit status, or 1 if shellpool itself failed to
  run it (spawn failure, protocol violation, and so on).
`)
}

func run() int {
	runners := flag.Int("runners", 1, "Number of pre-forked worker shells")
	debug := flag.Int("debug", 0, "Emit trace lines to stderr when nonzero")
	configPath := flag.String("config", "", "Optional TOML file overriding pool tunables")
	background := flag.Bool("background", false, "Launch the command detached and exit immediately")
	help := flag.Bool("help", false, "Show this help message")

	flag.Parse()

	if *help {
		printHelp()
		return 0
	}

	cmd := strings.Join(flag.Args(), " ")
	if cmd == "" {
		printHelp()
		return 2
	}

	cfg := pool.DefaultConfig()
	cfg.Debug = *debug != 0
	if *configPath != "" {
		loaded, err := pool.LoadConfig(*configPath, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "shellpool: %v\n", err)
			return 1
		}
		cfg = loaded
	}

	p := pool.New(cfg)
	if err := p.Start(*runners); err != nil {
		fmt.Fprintf(os.Stderr, "shellpool: start: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		cancel(fmt.Errorf("received signal: %v", sig))
	}()
	defer signal.Stop(sigCh)

	if *background {
		if err := p.RunBackground(cmd); err != nil {
			fmt.Fprintf(os.Stderr, "shellpool: run_background: %v\n", err)
			return 1
		}
		return 0
	}

	// ctx is the in-flight call's own cancellation token: a signal aborts
	// cmd via the process-tree killer instead of merely tearing down the
	// pool around it.
	status, err := p.Run(ctx, cmd, pool.DefaultLineCallback)
	_ = p.Shutdown(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "shellpool: run: %v\n", err)
		return 1
	}
	return status
}

func main() {
	os.Exit(run())
}
