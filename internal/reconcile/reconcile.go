// Package reconcile is C6: on a device-originated notification bitmask,
// re-read any control whose mask intersects and push changes into the
// audio-control surface; in the other direction, dispatch surface-side
// control writes to the device.
package reconcile

import (
	"github.com/fcp-project/fcpd/internal/control"
)

// Surface is the abstract audio-control surface (the real library is out
// of scope; spec §1 says only its abstract control model is specified
// here). It holds the surface's own notion of each control's current
// value(s) and lets the reconciler push updates into it.
type Surface interface {
	// GetValues returns the surface's current cached value vector for a
	// control, and whether the control is known to the surface.
	GetValues(iface control.Interface, name string) ([]int64, bool)
	// SetValues pushes a new value vector to the surface.
	SetValues(iface control.Interface, name string, values []int64) error
}

// Notifier issues a DATA/notify back to the device after a surface-side
// write, when the written control declares a notify-device opcode.
type Notifier interface {
	DataNotify(event uint32) error
}

// Reconciler is C6.
type Reconciler struct {
	set     *control.Set
	surface Surface
	notify  Notifier
}

// New builds a Reconciler over a synthesized control set.
func New(set *control.Set, surface Surface, notify Notifier) *Reconciler {
	return &Reconciler{set: set, surface: surface, notify: notify}
}

// OnDeviceNotification handles a device-originated notification word:
// every control whose NotifyClient mask intersects n is re-read, and any
// index whose freshly-read value differs from the surface's cached value
// is pushed to the surface. A notification that intersects no control's
// mask is a silent no-op (spec §7 "notification storms are absorbed").
func (r *Reconciler) OnDeviceNotification(n uint32) error {
	for _, c := range r.set.ByNotifyMask(n) {
		if err := r.rereadAndPush(c); err != nil {
			return err
		}
	}
	return nil
}

// rereadAndPush reads one control's current device value(s) and, when any
// index differs from the surface's copy, pushes the whole fresh vector
// (spec §4.4 steps 1-4).
func (r *Reconciler) rereadAndPush(c *control.Control) error {
	fresh, err := c.Read()
	if err != nil {
		return err
	}

	old, known := r.surface.GetValues(c.Interface, c.Name)
	changed := !known || len(old) != len(fresh)
	if !changed {
		for i := range fresh {
			if old[i] != fresh[i] {
				changed = true
				break
			}
		}
	}

	copy(c.Value, fresh)
	if !changed {
		return nil
	}
	return r.surface.SetValues(c.Interface, c.Name, fresh)
}

// OnSurfaceWrite handles a write arriving from the surface's own event
// channel (spec §4.4 second half): look up the control by name; if
// unknown, read-only, or the value is unchanged, no-op. Otherwise cache the
// new value, invoke the control's write function, and if it declares a
// device notification opcode, issue it. A linked output additionally
// writes the same value to its paired control and re-reads both.
func (r *Reconciler) OnSurfaceWrite(iface control.Interface, name string, value int64) error {
	c, idx, ok := r.set.Get(iface, name)
	if !ok || c.ReadOnly {
		return nil
	}
	if len(c.Value) > 0 && c.Value[0] == value {
		return nil
	}

	c.Value[0] = value
	if err := c.Write([]int64{value}); err != nil {
		return err
	}
	if c.NotifyDevice != 0 && r.notify != nil {
		if err := r.notify.DataNotify(c.NotifyDevice); err != nil {
			return err
		}
	}

	if c.LinkedIndex >= 0 {
		paired := r.set.At(c.LinkedIndex)
		if paired != nil {
			paired.Value[0] = value
			if err := paired.Write([]int64{value}); err != nil {
				return err
			}
			if err := r.rereadAndPush(c); err != nil {
				return err
			}
			if err := r.rereadAndPush(paired); err != nil {
				return err
			}
		}
		_ = idx
	}

	return nil
}
