package cache

import (
	"testing"

	"github.com/fcp-project/fcpd/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDev is a minimal transport.KernelDevice scripted to answer MIX/MUX
// opcodes so the cache layer can be exercised without a real device.
type fakeDev struct {
	mixRow     []uint16
	mixWrites  int
	mixReads   int
	muxTables  [3][]uint32
	muxWrites  [3]int
	muxReads   [3]int
}

func (f *fakeDev) VersionIoctl() (uint32, error) { return 0x00020000, nil }
func (f *fakeDev) InitIoctl(buf []byte) error    { return nil }
func (f *fakeDev) ReadNotification() (uint32, error) {
	return 0, nil
}
func (f *fakeDev) Fd() int { return -1 }

func (f *fakeDev) CommandIoctl(opcode uint32, reqSize, respSize uint32, data []byte) error {
	switch opcode {
	case transport.OpMixRead:
		f.mixReads++
		for i, v := range f.mixRow {
			data[i*2] = byte(v)
			data[i*2+1] = byte(v >> 8)
		}
		return nil
	case transport.OpMixWrite:
		f.mixWrites++
		count := (int(reqSize) - 2) / 2
		row := make([]uint16, count)
		for i := range row {
			row[i] = uint16(data[2+2*i]) | uint16(data[3+2*i])<<8
		}
		f.mixRow = row
		return nil
	case transport.OpMuxRead:
		rate := int(data[3])
		f.muxReads[rate]++
		for i, v := range f.muxTables[rate] {
			data[i*4] = byte(v)
			data[i*4+1] = byte(v >> 8)
			data[i*4+2] = byte(v >> 16)
			data[i*4+3] = byte(v >> 24)
		}
		return nil
	case transport.OpMuxWrite:
		rate := int(data[2]) | int(data[3])<<8
		f.muxWrites[rate]++
		table := make([]uint32, len(f.muxTables[rate]))
		for i := range table {
			off := 4 + 4*i
			table[i] = uint32(data[off]) | uint32(data[off+1])<<8 | uint32(data[off+2])<<16 | uint32(data[off+3])<<24
		}
		f.muxTables[rate] = table
		return nil
	}
	return nil
}

func newTestMixer(t *testing.T, outputs, inputs int) (*Mixer, *fakeDev) {
	t.Helper()
	dev := &fakeDev{mixRow: make([]uint16, inputs)}
	tr, err := transport.New(dev)
	require.NoError(t, err)
	return NewMixer(tr, outputs, inputs), dev
}

func TestMixerLazyLoadsOnFirstRead(t *testing.T) {
	m, dev := newTestMixer(t, 2, 4)
	_, err := m.Read(0, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, dev.mixReads)
	_, err = m.Read(0, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, dev.mixReads, "second read of same row must not re-fetch")
}

func TestMixerWriteFlushesRowOnce(t *testing.T) {
	m, dev := newTestMixer(t, 2, 4)
	require.NoError(t, m.Write(0, 3, 24000))
	assert.Equal(t, 1, dev.mixWrites)
	v, err := m.Read(0, 3)
	require.NoError(t, err)
	assert.Equal(t, uint16(24000), v, "read after write must return the written value without a device round-trip")
	assert.Equal(t, 1, dev.mixReads, "write must not trigger a separate device read")
}

func TestMixerInvalidateForcesRefetch(t *testing.T) {
	m, dev := newTestMixer(t, 2, 4)
	_, err := m.Read(0, 0)
	require.NoError(t, err)
	m.Invalidate(0)
	_, err = m.Read(0, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, dev.mixReads)
}

func newTestRouter(t *testing.T, sizes [3]int) (*Router, *fakeDev) {
	t.Helper()
	dev := &fakeDev{}
	for i, sz := range sizes {
		dev.muxTables[i] = make([]uint32, sz)
	}
	tr, err := transport.New(dev)
	require.NoError(t, err)
	return NewRouter(tr, sizes), dev
}

func TestRouterWriteAcrossRatesSkipsAbsent(t *testing.T) {
	r, dev := newTestRouter(t, [3]int{8, 8, 0})
	slots := [RateGroupCount]int{7, 5, -1}
	require.NoError(t, r.WriteAcrossRates(slots, 0x010, 0x203))

	assert.Equal(t, 1, dev.muxWrites[0])
	assert.Equal(t, 1, dev.muxWrites[1])
	assert.Equal(t, 0, dev.muxWrites[2])

	v0, err := r.Read(0, 7)
	require.NoError(t, err)
	assert.Equal(t, EncodeSlot(0x010, 0x203), v0)
	v1, err := r.Read(1, 5)
	require.NoError(t, err)
	assert.Equal(t, EncodeSlot(0x010, 0x203), v1)
}

func TestEncodeDecodeSlotRoundTrip(t *testing.T) {
	slot := EncodeSlot(0x010, 0x203)
	dest, src := DecodeSlot(slot)
	assert.Equal(t, 0x010, dest)
	assert.Equal(t, 0x203, src)
}

func TestFindSlotForPin(t *testing.T) {
	r, dev := newTestRouter(t, [3]int{8, 8, 8})
	dev.muxTables[0][7] = EncodeSlot(0x010, 0x000)
	dev.muxTables[1][5] = EncodeSlot(0x010, 0x000)

	slots, err := r.FindSlotForPin(0x010)
	require.NoError(t, err)
	assert.Equal(t, 7, slots[0])
	assert.Equal(t, 5, slots[1])
	assert.Equal(t, -1, slots[2])
}
