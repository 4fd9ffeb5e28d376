package pool_test

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/shellpool/shellpool/pool"
)

func TestDefaultConfig(t *testing.T) {
	cfg := pool.DefaultConfig()
	if cfg.MaxShells != 1000 {
		t.Errorf("MaxShells = %d, want 1000", cfg.MaxShells)
	}
	if cfg.Debug {
		t.Error("Debug should default to false")
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 5s", cfg.ShutdownTimeout)
	}
}

func TestLoadConfigMissingFileIsNoop(t *testing.T) {
	base := pool.DefaultConfig()
	cfg, err := pool.LoadConfig(filepath.Join(t.TempDir(), "missing.toml"), base)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if !reflect.DeepEqual(cfg, base) {
		t.Errorf("cfg = %+v, want unchanged base %+v", cfg, base)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shellpool.toml")
	content := "max_shells = 42\ndebug = true\nshell_paths = [\"/bin/bash\"]\nshutdown_timeout = \"2s\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := pool.LoadConfig(path, pool.DefaultConfig())
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.MaxShells != 42 {
		t.Errorf("MaxShells = %d, want 42", cfg.MaxShells)
	}
	if !cfg.Debug {
		t.Error("Debug = false, want true")
	}
	if len(cfg.ShellPaths) != 1 || cfg.ShellPaths[0] != "/bin/bash" {
		t.Errorf("ShellPaths = %v", cfg.ShellPaths)
	}
	if cfg.ShutdownTimeout != 2*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 2s", cfg.ShutdownTimeout)
	}
}
