// Package control models C3: the in-memory collection of synthesized
// audio-control-surface controls, keyed by (interface, name), each carrying
// read/write dispatch and enough metadata to drive notification
// reconciliation (C6).
package control

import (
	"fmt"

	"github.com/fcp-project/fcpd/internal/transport"
)

// Kind is the audio-control-surface element type a control is projected
// as.
type Kind int

const (
	KindBoolean Kind = iota
	KindInteger
	KindEnumerated
	KindBytes
)

// Interface distinguishes the two audio-control-surface interfaces a
// control can live on.
type Interface int

const (
	InterfaceMixer Interface = iota
	InterfaceCard
)

// Category is the semantic grouping used by the notification reconciler
// and by documentation/debugging; it has no behavioral effect beyond
// classification.
type Category int

const (
	CategoryData Category = iota
	CategorySync
	CategoryMix
	CategoryMux
)

// Component is one element of a composite (multi-component) control: a
// device-map path resolved down to an absolute byte offset, with its own
// width (possibly overriding the device map's natural width for that
// primitive) and primitive type.
type Component struct {
	Offset    int
	Width     int
	Primitive transport.Primitive
	Signed    bool
}

// ReadFunc reads a control's current device-side value(s) into a vector
// sized to len(component)-or-1 values.
type ReadFunc func() ([]int64, error)

// WriteFunc writes a new value vector to the device.
type WriteFunc func(values []int64) error

// Control is one synthesized control record (spec §3 "Control record").
type Control struct {
	Name      string
	Interface Interface
	Kind      Kind
	Primitive transport.Primitive
	Category  Category

	Min, Max, Step int64

	TLV []byte

	// EnumLabels and EnumValues are parallel; EnumValues is nil for
	// directly-indexed enums (no explicit value map) and non-nil when the
	// mapping is indirect (index -> device value).
	EnumLabels []string
	EnumValues []int

	ReadOnly bool

	// NotifyDevice is the opcode to send to the device after a write, or 0
	// for none. NotifyClient is the bitmask of device notification bits
	// that should trigger a re-read of this control.
	NotifyDevice uint32
	NotifyClient uint32

	Offset     int
	ArrayIndex int

	// Components is non-empty only for composite controls.
	Components []Component

	// LinkedIndex is the control-vector index of this control's paired
	// linked output (spec §4.3 "Linked outputs"), or -1 if none. Indices,
	// never pointers, per the teacher's design note on cyclic references.
	LinkedIndex int

	// Value is the cached current value vector; its length is
	// len(Components) or 1.
	Value []int64

	Read  ReadFunc
	Write WriteFunc
}

// componentCount is how many scalar values this control's Value vector
// holds.
func (c *Control) componentCount() int {
	if len(c.Components) > 0 {
		return len(c.Components)
	}
	return 1
}

// key identifies a control by the invariant uniqueness constraint (spec §3:
// "No two synthesized controls share the same (interface, name)").
type key struct {
	Interface Interface
	Name      string
}

// Set is the stable-indexed, append-only container of synthesized
// controls. Controls are referred to by integer index (for linked-output
// pairing) rather than by pointer, per the teacher's design note on
// avoiding cyclic pointer references.
type Set struct {
	controls []*Control
	byKey    map[key]int
}

// NewSet returns an empty control set.
func NewSet() *Set {
	return &Set{byKey: map[key]int{}}
}

// Add appends c and returns its stable index. It is an error to add two
// controls with the same (Interface, Name).
func (s *Set) Add(c *Control) (int, error) {
	k := key{c.Interface, c.Name}
	if _, exists := s.byKey[k]; exists {
		return -1, fmt.Errorf("control: duplicate control (interface=%v, name=%q)", c.Interface, c.Name)
	}
	if c.Value == nil {
		c.Value = make([]int64, c.componentCount())
	}
	idx := len(s.controls)
	s.controls = append(s.controls, c)
	s.byKey[k] = idx
	return idx, nil
}

// Get looks up a control by its surface identity.
func (s *Set) Get(iface Interface, name string) (*Control, int, bool) {
	idx, ok := s.byKey[key{iface, name}]
	if !ok {
		return nil, -1, false
	}
	return s.controls[idx], idx, true
}

// At returns the control at a stable index.
func (s *Set) At(idx int) *Control {
	if idx < 0 || idx >= len(s.controls) {
		return nil
	}
	return s.controls[idx]
}

// Len returns the number of synthesized controls.
func (s *Set) Len() int { return len(s.controls) }

// All returns every control in synthesis order. Callers must not mutate the
// returned slice's backing array's length.
func (s *Set) All() []*Control { return s.controls }

// ByNotifyMask returns every control whose NotifyClient bitmask intersects
// mask, in synthesis order (spec §4.4 step 1; spec §8 "the set of controls
// re-read is exactly {c : c.notify_client & N != 0}").
func (s *Set) ByNotifyMask(mask uint32) []*Control {
	var out []*Control
	for _, c := range s.controls {
		if c.NotifyClient&mask != 0 {
			out = append(out, c)
		}
	}
	return out
}
