package dfu

import (
	"context"
	"crypto/md5" //nolint:gosec
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/fcp-project/fcpd/internal/transport"
	"github.com/stretchr/testify/require"
)

// scriptedDevice is a minimal transport.KernelDevice fake that behaves like
// a cooperative device: each relevant command synchronously updates state
// or the notify slot and queues a change notification, mirroring the way
// transport's own fakeKernelDevice scripts responses.
type scriptedDevice struct {
	mu sync.Mutex

	version      uint32
	state        uint32
	notifyChange chan uint32
	dataMem      map[uint32][]byte

	slots         Slots
	blocksWritten int
	totalBlocks   int

	writtenBlocks [][]byte
}

func newScriptedDevice(slots Slots, totalBlocks int) *scriptedDevice {
	return &scriptedDevice{
		version:      0x00020000,
		notifyChange: make(chan uint32, 64),
		dataMem:      map[uint32][]byte{},
		slots:        slots,
		totalBlocks:  totalBlocks,
	}
}

func (d *scriptedDevice) VersionIoctl() (uint32, error) { return d.version, nil }
func (d *scriptedDevice) InitIoctl(buf []byte) error    { return nil }
func (d *scriptedDevice) Fd() int                       { return 0 }

func (d *scriptedDevice) ReadNotification() (uint32, error) {
	return <-d.notifyChange, nil
}

func (d *scriptedDevice) fire() { d.notifyChange <- d.slots.ChangeBit }

func (d *scriptedDevice) CommandIoctl(opcode uint32, reqSize, respSize uint32, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch opcode {
	case transport.OpAuxDFUStart:
		d.state = uint32(d.slots.StateDFU)
		d.fire()
		// The device signals readiness for the first block immediately
		// after confirming DFU mode (spec §4.8 steps 6-7).
		d.dataMem[d.slots.DFUNotifyOffset] = le32(uint32(d.slots.NotifyNextBlock))
		d.fire()

	case transport.OpAuxDFUWrite:
		if reqSize == 0 {
			d.dataMem[d.slots.DFUNotifyOffset] = le32(uint32(d.slots.NotifyFinish))
			d.fire()
			return nil
		}
		d.writtenBlocks = append(d.writtenBlocks, append([]byte(nil), data[:reqSize]...))
		d.blocksWritten++
		d.dataMem[d.slots.DFUNotifyOffset] = le32(uint32(d.slots.NotifyNextBlock))
		d.fire()

	case transport.OpDataRead:
		off := binary.LittleEndian.Uint32(data[0:4])
		size := binary.LittleEndian.Uint32(data[4:8])
		if off == d.slots.StateOffset {
			data[0] = byte(d.state)
			break
		}
		copy(data[:size], d.dataMem[off])

	case transport.OpDataWrite:
		off := binary.LittleEndian.Uint32(data[0:4])
		size := reqSize - 8
		payload := append([]byte(nil), data[8:8+size]...)
		d.dataMem[off] = payload

		if off == d.slots.BootModeOffset {
			d.state = binary.LittleEndian.Uint32(payload)
			d.fire()
		}
	}
	return nil
}

func le32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func testSlots() Slots {
	return Slots{
		StateOff: 1, StateDFU: 2, StateNormal: 3,
		NotifyClear: 0, NotifyNextBlock: 1, NotifyFinish: 2, NotifyError: 3,
		StateOffset: 0x08, BootModeOffset: 0x10, DFUNotifyOffset: 0x20, ChangeBit: 0x1,
	}
}

func TestDFUHappyPath(t *testing.T) {
	slots := testSlots()
	dev := newScriptedDevice(slots, 4)
	dev.state = uint32(slots.StateNormal)

	tr, err := transport.New(dev)
	require.NoError(t, err)

	var progress []uint8
	eng := New(tr, slots, func(p uint8) { progress = append(progress, p) })

	payload := make([]byte, 4*blockSize)
	for i := range payload {
		payload[i] = byte(i)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = eng.Run(ctx, 0x1235, 0x821D, 0x1235, 0x821D, payload)
	require.NoError(t, err)

	require.NotEmpty(t, progress)
	require.Equal(t, uint8(100), progress[len(progress)-1])
	for i := 1; i < len(progress); i++ {
		require.GreaterOrEqual(t, progress[i], progress[i-1], "progress must be monotonically non-decreasing")
	}

	require.Len(t, dev.writtenBlocks, 4)
	reassembled := make([]byte, 0, len(payload))
	for _, b := range dev.writtenBlocks {
		reassembled = append(reassembled, b...)
	}
	require.Equal(t, payload, reassembled)
	require.Equal(t, uint32(slots.StateNormal), dev.state)
}

func TestDFURejectsWrongUSBID(t *testing.T) {
	slots := testSlots()
	dev := newScriptedDevice(slots, 1)
	tr, err := transport.New(dev)
	require.NoError(t, err)

	eng := New(tr, slots, nil)
	err = eng.Run(context.Background(), 0x1111, 0x2222, 0x1235, 0x821D, []byte{1})
	require.Error(t, err)
}

func TestDFURejectsStateZero(t *testing.T) {
	slots := testSlots()
	dev := newScriptedDevice(slots, 1)
	dev.state = 0
	tr, err := transport.New(dev)
	require.NoError(t, err)

	eng := New(tr, slots, nil)
	err = eng.Run(context.Background(), 1, 2, 1, 2, []byte{1})
	require.Error(t, err)
}

func TestMD5OfEmptyPayloadIsStable(t *testing.T) {
	sum := md5.Sum(nil) //nolint:gosec
	require.Len(t, sum, 16)
}
