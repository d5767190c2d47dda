package socket

import (
	"encoding/binary"
	"sync"

	"github.com/fcp-project/fcpd/internal/transport"
)

// fakeDevice is a transport.KernelDevice fake scripting flash operations
// for the socket package's own tests, in the style of transport's own
// fakeKernelDevice.
type fakeDevice struct {
	mu sync.Mutex

	version uint32

	segments []transport.FlashSegment
	erasing  map[uint8]bool
	eraseAt  map[uint8]uint8 // current block count reported

	written map[uint32][]byte // segment index -> concatenated bytes written
}

func newFakeDevice(segments []transport.FlashSegment) *fakeDevice {
	return &fakeDevice{
		version:  0x00020000,
		segments: segments,
		erasing:  map[uint8]bool{},
		eraseAt:  map[uint8]uint8{},
		written:  map[uint32][]byte{},
	}
}

func (d *fakeDevice) VersionIoctl() (uint32, error)    { return d.version, nil }
func (d *fakeDevice) InitIoctl(buf []byte) error       { return nil }
func (d *fakeDevice) ReadNotification() (uint32, error) { return 0, nil }
func (d *fakeDevice) Fd() int                           { return 0 }

func (d *fakeDevice) CommandIoctl(opcode uint32, reqSize, respSize uint32, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch opcode {
	case transport.OpFlashInfo:
		binary.LittleEndian.PutUint32(data[0:4], 1<<20)
		binary.LittleEndian.PutUint32(data[4:8], uint32(len(d.segments)))

	case transport.OpFlashSegmentInfo:
		num := binary.LittleEndian.Uint32(data[0:4])
		seg := d.segments[num]
		binary.LittleEndian.PutUint32(data[0:4], seg.Size)
		binary.LittleEndian.PutUint32(data[4:8], seg.Flags)
		name := make([]byte, 16)
		copy(name, seg.Name)
		copy(data[8:24], name)

	case transport.OpFlashErase:
		num := data[0]
		d.erasing[num] = true
		d.eraseAt[num] = 0

	case transport.OpFlashEraseProgress:
		num := uint8(binary.LittleEndian.Uint32(data[0:4]))
		cur := d.eraseAt[num]
		total := uint8(d.segments[num].Size / 4096)
		if cur >= total {
			data[0] = 255
			return nil
		}
		cur++
		d.eraseAt[num] = cur
		if cur >= total {
			data[0] = 255
		} else {
			data[0] = cur
		}

	case transport.OpFlashWrite:
		num := binary.LittleEndian.Uint32(data[0:4])
		offset := binary.LittleEndian.Uint32(data[4:8])
		payload := append([]byte(nil), data[12:reqSize]...)
		buf := d.written[num]
		if need := int(offset) + len(payload); len(buf) < need {
			grown := make([]byte, need)
			copy(grown, buf)
			buf = grown
		}
		copy(buf[offset:], payload)
		d.written[num] = buf

	case transport.OpInitVersion:
		// unused by this package's tests
	}
	return nil
}
