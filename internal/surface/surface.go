// Package surface provides the daemon's binding to the abstract
// audio-control surface. Spec §1 deliberately scopes out "the standard
// audio-control library used to expose controls; this spec defines the
// abstract control model" — this package is that abstract model's
// in-process home: a real binding (e.g. a cgo wrapper over the platform's
// mixer-control library) would satisfy the same reconcile.Surface and
// daemon.Surface interfaces and replace InMemory wholesale without any
// other package changing.
package surface

import (
	"fmt"
	"sync"

	"github.com/fcp-project/fcpd/internal/control"
	"github.com/fcp-project/fcpd/internal/socktlv"
)

// firmwareVersionControlName is the well-known element the socket-path TLV
// rides on (spec §4.9, §6).
const firmwareVersionControlName = "Firmware Version"

// InMemory is a minimal audio-control surface good enough to drive the
// daemon's event loop and testing: it tracks each control's last-pushed
// value vector and a lock flag on the Firmware Version element.
type InMemory struct {
	mu     sync.Mutex
	values map[string][]int64
	tlv    []byte
	locked bool
}

// New returns an empty InMemory surface.
func New() *InMemory {
	return &InMemory{values: map[string][]int64{}}
}

func surfaceKey(iface control.Interface, name string) string {
	return fmt.Sprintf("%d:%s", iface, name)
}

// GetValues implements reconcile.Surface.
func (s *InMemory) GetValues(iface control.Interface, name string) ([]int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[surfaceKey(iface, name)]
	return v, ok
}

// SetValues implements reconcile.Surface.
func (s *InMemory) SetValues(iface control.Interface, name string, values []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]int64, len(values))
	copy(cp, values)
	s.values[surfaceKey(iface, name)] = cp
	return nil
}

// SocketTLV builds the discovery TLV blob for a given socket path (spec
// §4.9, §6).
func (s *InMemory) SocketTLV(socketPath string) []byte {
	return socktlv.Encode(socketPath)
}

// PublishSocketTLV attaches blob to the Firmware Version element's TLV and
// marks that element locked, signaling "daemon present" (spec §4.9).
func (s *InMemory) PublishSocketTLV(blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tlv = blob
	s.locked = true
	return nil
}

// SocketTLVBlob and Locked let a test (or a client-side fake in the same
// process) observe the published discovery state.
func (s *InMemory) SocketTLVBlob() []byte { return s.tlv }
func (s *InMemory) Locked() bool          { return s.locked }
