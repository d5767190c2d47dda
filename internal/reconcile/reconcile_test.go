package reconcile

import (
	"testing"

	"github.com/fcp-project/fcpd/internal/control"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSurface struct {
	values map[string][]int64
	pushed []string
}

func newFakeSurface() *fakeSurface {
	return &fakeSurface{values: map[string][]int64{}}
}

func surfKey(iface control.Interface, name string) string {
	if iface == control.InterfaceMixer {
		return "mixer:" + name
	}
	return "card:" + name
}

func (f *fakeSurface) GetValues(iface control.Interface, name string) ([]int64, bool) {
	v, ok := f.values[surfKey(iface, name)]
	return v, ok
}

func (f *fakeSurface) SetValues(iface control.Interface, name string, values []int64) error {
	f.values[surfKey(iface, name)] = append([]int64(nil), values...)
	f.pushed = append(f.pushed, name)
	return nil
}

type fakeNotifier struct {
	events []uint32
}

func (f *fakeNotifier) DataNotify(event uint32) error {
	f.events = append(f.events, event)
	return nil
}

func newControl(name string, mask uint32, value int64) *control.Control {
	c := &control.Control{
		Name:         name,
		Interface:    control.InterfaceCard,
		Kind:         control.KindInteger,
		NotifyClient: mask,
		LinkedIndex:  -1,
		Value:        []int64{value},
	}
	deviceValue := value
	c.Read = func() ([]int64, error) { return []int64{deviceValue}, nil }
	c.Write = func(values []int64) error { deviceValue = values[0]; return nil }
	return c
}

func TestDeviceNotificationRereadsOnlyIntersectingControls(t *testing.T) {
	set := control.NewSet()
	a, _ := set.Add(newControl("A", 0x4, 10))
	b, _ := set.Add(newControl("B", 0x6, 20))
	c, _ := set.Add(newControl("C", 0x14, 30))
	d, _ := set.Add(newControl("D", 0x8, 40))

	surf := newFakeSurface()
	r := New(set, surf, nil)
	require.NoError(t, r.OnDeviceNotification(0x4))

	assert.ElementsMatch(t, []string{"A", "B", "C"}, surf.pushed)
	_ = a
	_ = b
	_ = c
	_ = d
}

func TestDeviceNotificationSkipsUnchangedValues(t *testing.T) {
	set := control.NewSet()
	_, _ = set.Add(newControl("A", 0x4, 10))
	surf := newFakeSurface()
	surf.values["card:A"] = []int64{10}

	r := New(set, surf, nil)
	require.NoError(t, r.OnDeviceNotification(0x4))
	assert.Empty(t, surf.pushed, "value unchanged from surface's cache must not be pushed")
}

func TestSurfaceWriteIsIdempotentOnSecondIdenticalValue(t *testing.T) {
	set := control.NewSet()
	c := newControl("Vol", 0, 0)
	c.NotifyDevice = 7
	_, _ = set.Add(c)

	surf := newFakeSurface()
	notifier := &fakeNotifier{}
	r := New(set, surf, notifier)

	require.NoError(t, r.OnSurfaceWrite(control.InterfaceCard, "Vol", 5))
	require.NoError(t, r.OnSurfaceWrite(control.InterfaceCard, "Vol", 5))

	assert.Equal(t, []uint32{7}, notifier.events, "second identical write must be a no-op")
}

func TestSurfaceWriteIgnoresUnknownControl(t *testing.T) {
	set := control.NewSet()
	surf := newFakeSurface()
	r := New(set, surf, nil)
	assert.NoError(t, r.OnSurfaceWrite(control.InterfaceCard, "Nope", 1))
}

func TestSurfaceWriteIgnoresReadOnly(t *testing.T) {
	set := control.NewSet()
	c := newControl("RO", 0, 0)
	c.ReadOnly = true
	_, _ = set.Add(c)
	surf := newFakeSurface()
	r := New(set, surf, nil)
	assert.NoError(t, r.OnSurfaceWrite(control.InterfaceCard, "RO", 99))
	assert.Equal(t, int64(0), c.Value[0])
}

func TestLinkedOutputWritesPairAndRereadsBoth(t *testing.T) {
	set := control.NewSet()
	a := newControl("Mix A Playback Volume", 0, 0)
	b := newControl("Mix B Playback Volume", 0, 0)
	idxA, _ := set.Add(a)
	idxB, _ := set.Add(b)
	a.LinkedIndex = idxB
	b.LinkedIndex = idxA

	surf := newFakeSurface()
	r := New(set, surf, nil)
	require.NoError(t, r.OnSurfaceWrite(control.InterfaceCard, "Mix A Playback Volume", 42))

	assert.Equal(t, int64(42), a.Value[0])
	assert.Equal(t, int64(42), b.Value[0])
	assert.Contains(t, surf.pushed, "Mix B Playback Volume")
}
