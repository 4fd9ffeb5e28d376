package pool

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/shellpool/shellpool/shell"
)

// defaultMaxShells is MAX_SHELLS from §6.
const defaultMaxShells = 1000

// Config holds the pool's tunables. DefaultConfig mirrors the teacher's
// DefaultConfig()-plus-zero-value-fallback shape: a Config assembled by
// hand with some fields left at their zero value still behaves sanely
// once passed through New.
type Config struct {
	// MaxShells rejects Start(n) with Insane once n >= MaxShells.
	MaxShells int
	// Debug enables human-readable trace lines on the pool's stderr
	// logger.
	Debug bool
	// ShellPaths overrides shell.DefaultShellPaths when non-empty.
	ShellPaths []string
	// ShutdownTimeout bounds how long Shutdown waits for each shell's
	// Close (which closes stdin and kills the process at once) to return
	// before moving on.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns the pool's default tunables.
func DefaultConfig() Config {
	return Config{
		MaxShells:       defaultMaxShells,
		Debug:           false,
		ShellPaths:      nil,
		ShutdownTimeout: 5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxShells <= 0 {
		c.MaxShells = defaultMaxShells
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
	return c
}

// fileConfig mirrors the subset of Config a shellpool.toml file may
// override. Only these fields are meaningful in a config file; a live
// pool's runner accounting is not persisted.
type fileConfig struct {
	MaxShells       int      `toml:"max_shells"`
	Debug           *bool    `toml:"debug"`
	ShellPaths      []string `toml:"shell_paths"`
	ShutdownTimeout string   `toml:"shutdown_timeout"`
}

// LoadConfig reads a TOML file (see fileConfig for the accepted keys)
// and merges it onto base, returning the result. A missing file is not
// an error: base is returned unchanged, so callers can pass an optional
// config path without special-casing "doesn't exist".
func LoadConfig(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return base, nil
		}
		return base, fmt.Errorf("pool: read config %s: %w", path, err)
	}
	return applyFileConfig(data, base)
}

func applyFileConfig(data []byte, base Config) (Config, error) {
	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return base, fmt.Errorf("pool: parse config: %w", err)
	}

	cfg := base
	if fc.MaxShells > 0 {
		cfg.MaxShells = fc.MaxShells
	}
	if fc.Debug != nil {
		cfg.Debug = *fc.Debug
	}
	if len(fc.ShellPaths) > 0 {
		cfg.ShellPaths = fc.ShellPaths
	}
	if fc.ShutdownTimeout != "" {
		d, err := time.ParseDuration(fc.ShutdownTimeout)
		if err != nil {
			return base, fmt.Errorf("pool: parse shutdown_timeout %q: %w", fc.ShutdownTimeout, err)
		}
		cfg.ShutdownTimeout = d
	}
	return cfg, nil
}

// shellPaths returns cfg.ShellPaths, falling back to shell.DefaultShellPaths.
func (c Config) shellPaths() []string {
	if len(c.ShellPaths) > 0 {
		return c.ShellPaths
	}
	return shell.DefaultShellPaths
}
