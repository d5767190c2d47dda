package devmap

import (
	"bytes"
	"compress/flate"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fcp-project/fcpd/internal/transport"
)

// SystemDataDir is the final fallback search directory.
const SystemDataDir = "/usr/share/fcp"

// envOverrideVar names the environment variable that overrides the search
// root (spec §6).
const envOverrideVar = "FCP_SERVER_DATA_DIR"

// inflateExpansionFactor is the headroom the spec calls for ("expect a
// ×16 expansion headroom") when sizing the inflate output buffer.
const inflateExpansionFactor = 16

// Loader obtains the device-description document and the per-product
// control map, preferring an on-disk cache and falling back to reading the
// device itself over the kernel transport.
type Loader struct {
	searchDirs     []string
	lastDecodedPath string
}

// NewLoader builds the prioritized search path: override dir (if set),
// current directory, system data directory.
func NewLoader() *Loader {
	var dirs []string
	if override := os.Getenv(envOverrideVar); override != "" {
		dirs = append(dirs, override)
	}
	if cwd, err := os.Getwd(); err == nil {
		dirs = append(dirs, cwd)
	}
	dirs = append(dirs, SystemDataDir)
	return &Loader{searchDirs: dirs}
}

func devmapFileName(pid uint16) string {
	return fmt.Sprintf("devmap-%04x.json", pid)
}

func mappingFileName(productID uint16) string {
	return fmt.Sprintf("mapping-%04x.json", productID)
}

func (l *Loader) find(name string) (string, bool) {
	for _, dir := range l.searchDirs {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p, true
		}
	}
	return "", false
}

// LoadDeviceMap obtains the device map for pid, from cache if present,
// otherwise fetched over tr and decoded.
func (l *Loader) LoadDeviceMap(tr *transport.Transport, pid uint16) (*Document, error) {
	if path, ok := l.find(devmapFileName(pid)); ok {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("devmap: read cache %s: %w", path, err)
		}
		return Parse(raw)
	}

	raw, err := fetchFromDevice(tr)
	if err != nil {
		return nil, fmt.Errorf("devmap: fetch from device: %w", err)
	}

	l.writeDiagnosticsCopy(pid, raw)

	return Parse(raw)
}

// LoadProductMap obtains the per-product control-mapping document, from the
// same prioritized search list.
func (l *Loader) LoadProductMap(productID uint16) ([]byte, error) {
	path, ok := l.find(mappingFileName(productID))
	if !ok {
		return nil, fmt.Errorf("devmap: product map for %04x not found in search path", productID)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("devmap: read product map %s: %w", path, err)
	}
	return raw, nil
}

// fetchFromDevice reads the device-map-info total size, loops devmap-read
// blocks until that many bytes are collected, base64-decodes, and inflates
// the result.
func fetchFromDevice(tr *transport.Transport) ([]byte, error) {
	totalSize, err := tr.DevmapInfo()
	if err != nil {
		return nil, fmt.Errorf("devmap-info: %w", err)
	}

	var encoded bytes.Buffer
	var block uint32
	for encoded.Len() < int(totalSize) {
		chunk, err := tr.DevmapRead(block)
		if err != nil {
			return nil, fmt.Errorf("devmap-read block %d: %w", block, err)
		}
		remaining := int(totalSize) - encoded.Len()
		if remaining < len(chunk) {
			chunk = chunk[:remaining]
		}
		encoded.Write(chunk)
		block++
	}

	decoded, err := base64.StdEncoding.DecodeString(encoded.String())
	if err != nil {
		return nil, fmt.Errorf("devmap: base64 decode: %w", err)
	}

	return inflate(decoded)
}

func inflate(compressed []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(compressed))
	defer r.Close()

	out := bytes.NewBuffer(make([]byte, 0, len(compressed)*inflateExpansionFactor))
	if _, err := io.Copy(out, r); err != nil {
		return nil, fmt.Errorf("devmap: inflate: %w", err)
	}
	return out.Bytes(), nil
}

// writeDiagnosticsCopy writes the decoded JSON to a transient path so it
// can be inspected after the fact; failures here are non-fatal.
func (l *Loader) writeDiagnosticsCopy(pid uint16, raw []byte) {
	path := filepath.Join(os.TempDir(), devmapFileName(pid))
	if err := os.WriteFile(path, raw, 0o644); err == nil {
		l.lastDecodedPath = path
	}
}

// LastDecodedPath returns the transient diagnostics path written by the
// most recent device-fetched LoadDeviceMap call, or "" if the map came from
// cache or no fetch has happened yet.
func (l *Loader) LastDecodedPath() string { return l.lastDecodedPath }
