package daemon

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"
)

// Config is the daemon's optional on-disk configuration, layered under the
// environment variables of spec §6. Every field has a sane zero value so a
// missing config file is not an error.
type Config struct {
	// MixerCacheRows is parsed from the config file but not read anywhere;
	// mixer cache rows are always loaded lazily on first touch.
	MixerCacheRows int `yaml:"mixer_cache_rows"`
	// Debug is the config-file counterpart of FCP_DEBUG (spec §6); the env
	// var always takes precedence when set. When enabled, fcp-server only
	// logs a warning: no raw DATA read/write/notify command surface exists.
	Debug bool `yaml:"debug"`
}

// LoadConfig reads an optional YAML config file; a missing file returns the
// zero Config, not an error.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("daemon: read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("daemon: parse config %s: %w", path, err)
	}
	return cfg, nil
}

// SetupLogging configures the package-level charmbracelet/log logger per
// spec §6: LOG_LEVEL selects verbosity; the presence of JOURNAL_STREAM
// switches between journald-friendly structured output and a human-readable
// TTY format, the same "detect the invoking environment, switch output
// modes" shape the teacher uses for its own plain/interactive output
// switch.
func SetupLogging() {
	level := log.InfoLevel
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "error":
		level = log.ErrorLevel
	case "warning", "warn":
		level = log.WarnLevel
	case "info":
		level = log.InfoLevel
	case "debug":
		level = log.DebugLevel
	}
	log.SetLevel(level)

	if os.Getenv("JOURNAL_STREAM") != "" {
		log.SetFormatter(log.LogfmtFormatter)
		log.SetReportTimestamp(false)
		return
	}
	log.SetFormatter(log.TextFormatter)
	log.SetReportTimestamp(true)
}

// DebugEnabled reports whether the raw DATA command surface should be
// unlocked, honoring FCP_DEBUG over the config file's Debug flag.
func (c Config) DebugEnabled() bool {
	if v := os.Getenv("FCP_DEBUG"); v != "" {
		return v == "1"
	}
	return c.Debug
}

// SocketPath resolves the client socket path for a card number, per spec
// §6: RUNTIME_DIRECTORY, then XDG_RUNTIME_DIR, then /tmp.
func SocketPath(cardNum int) string {
	dir := os.Getenv("RUNTIME_DIRECTORY")
	if dir == "" {
		dir = os.Getenv("XDG_RUNTIME_DIR")
	}
	if dir == "" {
		dir = "/tmp"
	}
	return fmt.Sprintf("%s/fcp-%d.sock", dir, cardNum)
}
