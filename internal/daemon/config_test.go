package daemon

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigMissingFileIsZeroValue(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Debug || cfg.MixerCacheRows != 0 {
		t.Fatalf("expected zero-value config, got %+v", cfg)
	}
}

func TestLoadConfigParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fcpd.yaml")
	if err := os.WriteFile(path, []byte("debug: true\nmixer_cache_rows: 8\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if !cfg.Debug || cfg.MixerCacheRows != 8 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestDebugEnabledEnvOverridesConfig(t *testing.T) {
	t.Setenv("FCP_DEBUG", "1")
	cfg := Config{Debug: false}
	if !cfg.DebugEnabled() {
		t.Fatalf("expected env override to enable debug")
	}
}

func TestSocketPathPrefersRuntimeDirectory(t *testing.T) {
	t.Setenv("RUNTIME_DIRECTORY", "/run/fcp")
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
	if got, want := SocketPath(2), "/run/fcp/fcp-2.sock"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSocketPathFallsBackToTmp(t *testing.T) {
	t.Setenv("RUNTIME_DIRECTORY", "")
	t.Setenv("XDG_RUNTIME_DIR", "")
	if got, want := SocketPath(0), "/tmp/fcp-0.sock"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
