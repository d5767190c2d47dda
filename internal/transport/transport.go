package transport

import (
	"fmt"
)

// Opcode categories, packed as category<<12 | subcode (spec §4.1: "category
// in high 4 nibbles of a u16, sub-code in low nibbles" — we carry the
// packed value in a uint32 opcode field on the wire, as the command header
// requires, but only the low 16 bits are ever non-zero).
type category uint32

const (
	catInit category = 0x1 << 12
	catMeter category = 0x2 << 12
	catMix   category = 0x3 << 12
	catMux   category = 0x4 << 12
	catFlash category = 0x5 << 12
	catSync  category = 0x6 << 12
	catAux   category = 0x7 << 12
	catData  category = 0x8 << 12
)

// Opcode is the full catalog from spec §4.1.
const (
	OpInitVersion uint32 = uint32(catInit) | 0x0
	OpInit1       uint32 = uint32(catInit) | 0x1
	OpInit2       uint32 = uint32(catInit) | 0x2
	OpCapRead     uint32 = uint32(catInit) | 0x3
	OpReboot      uint32 = uint32(catInit) | 0x4

	OpMeterInfo uint32 = uint32(catMeter) | 0x0
	OpMeterRead uint32 = uint32(catMeter) | 0x1

	OpMixInfo  uint32 = uint32(catMix) | 0x0
	OpMixRead  uint32 = uint32(catMix) | 0x1
	OpMixWrite uint32 = uint32(catMix) | 0x2

	OpMuxInfo  uint32 = uint32(catMux) | 0x0
	OpMuxRead  uint32 = uint32(catMux) | 0x1
	OpMuxWrite uint32 = uint32(catMux) | 0x2

	OpFlashInfo          uint32 = uint32(catFlash) | 0x0
	OpFlashSegmentInfo   uint32 = uint32(catFlash) | 0x1
	OpFlashErase         uint32 = uint32(catFlash) | 0x2
	OpFlashEraseProgress uint32 = uint32(catFlash) | 0x3
	OpFlashWrite         uint32 = uint32(catFlash) | 0x4

	OpSyncRead uint32 = uint32(catSync) | 0x0

	OpAuxDFUStart uint32 = uint32(catAux) | 0x0
	OpAuxDFUWrite uint32 = uint32(catAux) | 0x1

	OpDataRead       uint32 = uint32(catData) | 0x0
	OpDataWrite      uint32 = uint32(catData) | 0x1
	OpDataNotify     uint32 = uint32(catData) | 0x2
	OpDevmapInfo     uint32 = uint32(catData) | 0x3
	OpDevmapRead     uint32 = uint32(catData) | 0x4
)

// DevmapBlockSize is the fixed chunk size devmap-read returns per call
// (spec §4.1: "loops blocks of 1024 bytes").
const DevmapBlockSize = 1024

// MaxFlashWritePayload is the largest byte payload a single flash.write may
// carry: 1024 minus the three leading u32 fields (num, offset, pad).
const MaxFlashWritePayload = 1024 - 3*4

// Transport is C1: one method per opcode, each synchronous, each converting
// between native Go values and the little-endian wire representation.
type Transport struct {
	dev KernelDevice
}

// New wraps a KernelDevice and performs the protocol-version handshake
// required before any other call is issued.
func New(dev KernelDevice) (*Transport, error) {
	t := &Transport{dev: dev}
	if err := t.handshake(); err != nil {
		return nil, err
	}
	return t, nil
}

// ErrWrongDriver is returned (non-fatally) when the handshake observes
// protocol major version 1: spec §4.1 says that means a different
// driver/utility owns the device and the caller should exit silently.
var ErrWrongDriver = fmt.Errorf("transport: protocol major version 1, not our driver")

func (t *Transport) handshake() error {
	packed, err := t.dev.VersionIoctl()
	if err != nil {
		return fmt.Errorf("transport: version handshake: %w", err)
	}
	major := (packed >> 16) & 0xFF
	minor := (packed >> 8) & 0xFF
	switch {
	case major == 1:
		return ErrWrongDriver
	case major == 2 && minor == 0:
		return nil
	default:
		return fmt.Errorf("transport: unsupported protocol version %d.%d", major, minor)
	}
}

func (t *Transport) command(opcode uint32, req []byte, respSize int) ([]byte, error) {
	shared := len(req)
	if respSize > shared {
		shared = respSize
	}
	data := make([]byte, shared)
	copy(data, req)
	if err := t.dev.CommandIoctl(opcode, uint32(len(req)), uint32(respSize), data); err != nil {
		return nil, err
	}
	return data[:respSize], nil
}

// Init1 and Init2 are opaque handshake steps; their request/response
// contents are driver-private.
func (t *Transport) Init1(req []byte) ([]byte, error) { return t.command(OpInit1, req, len(req)) }
func (t *Transport) Init2(req []byte) ([]byte, error) { return t.command(OpInit2, req, len(req)) }

// CapRead reports whether the device implements a control category.
func (t *Transport) CapRead(categoryID uint16) (uint8, error) {
	req := make([]byte, 2)
	putLeUint16(req, categoryID)
	resp, err := t.command(OpCapRead, req, 1)
	if err != nil {
		return 0, err
	}
	return resp[0], nil
}

// Reboot asks the device to restart.
func (t *Transport) Reboot() error {
	_, err := t.command(OpReboot, nil, 0)
	return err
}

// MeterInfo returns the number of peak-meter slots (first byte of a 4-byte
// response).
func (t *Transport) MeterInfo() (slotCount uint8, err error) {
	resp, err := t.command(OpMeterInfo, nil, 4)
	if err != nil {
		return 0, err
	}
	return resp[0], nil
}

// MeterRead reads count consecutive u32 peak values starting at offset.
func (t *Transport) MeterRead(offset, count uint16) ([]uint32, error) {
	req := make([]byte, 8)
	putLeUint16(req[0:2], offset)
	putLeUint16(req[2:4], count)
	resp, err := t.command(OpMeterRead, req, int(count)*4)
	if err != nil {
		return nil, err
	}
	return decodeU32Slice(resp), nil
}

// MixInfo returns the output and input counts of the mixer matrix.
func (t *Transport) MixInfo() (outCount, inCount uint8, err error) {
	resp, err := t.command(OpMixInfo, nil, 8)
	if err != nil {
		return 0, 0, err
	}
	return resp[0], resp[1], nil
}

// MixRead reads count consecutive mixer coefficients for output row mix.
func (t *Transport) MixRead(mix, count uint16) ([]uint16, error) {
	req := make([]byte, 4)
	putLeUint16(req[0:2], mix)
	putLeUint16(req[2:4], count)
	resp, err := t.command(OpMixRead, req, int(count)*2)
	if err != nil {
		return nil, err
	}
	return decodeU16Slice(resp), nil
}

// MixWrite writes a full row of mixer coefficients.
func (t *Transport) MixWrite(mix uint16, coeffs []uint16) error {
	req := make([]byte, 2+2*len(coeffs))
	putLeUint16(req[0:2], mix)
	for i, c := range coeffs {
		putLeUint16(req[2+2*i:], c)
	}
	_, err := t.command(OpMixWrite, req, 0)
	return err
}

// MuxInfo returns the three per-rate-group router table sizes.
func (t *Transport) MuxInfo() ([3]uint16, error) {
	var sizes [3]uint16
	resp, err := t.command(OpMuxInfo, nil, 12)
	if err != nil {
		return sizes, err
	}
	for i := range sizes {
		sizes[i] = leUint16(resp[i*2:])
	}
	return sizes, nil
}

// MuxRead reads count router slots from rate-table mux.
func (t *Transport) MuxRead(mux uint8, count uint8) ([]uint32, error) {
	req := []byte{0, 0, count, mux}
	resp, err := t.command(OpMuxRead, req, int(count)*4)
	if err != nil {
		return nil, err
	}
	return decodeU32Slice(resp), nil
}

// MuxWrite writes count router slots into rate-table mux.
func (t *Transport) MuxWrite(mux uint16, slots []uint32) error {
	req := make([]byte, 4+4*len(slots))
	putLeUint16(req[2:4], mux)
	for i, s := range slots {
		putLeUint32(req[4+4*i:], s)
	}
	_, err := t.command(OpMuxWrite, req, 0)
	return err
}

// FlashInfo reports the overall flash size and segment count.
func (t *Transport) FlashInfo() (size, count uint32, err error) {
	resp, err := t.command(OpFlashInfo, nil, 16)
	if err != nil {
		return 0, 0, err
	}
	return leUint32(resp[0:4]), leUint32(resp[4:8]), nil
}

// FlashSegment describes one named flash region (spec §4.7).
type FlashSegment struct {
	Size  uint32
	Flags uint32
	Name  string
}

// FlashSegmentInfo reports the name/size/flags of segment number num.
func (t *Transport) FlashSegmentInfo(num uint32) (FlashSegment, error) {
	req := make([]byte, 4)
	putLeUint32(req, num)
	resp, err := t.command(OpFlashSegmentInfo, req, 4+4+16)
	if err != nil {
		return FlashSegment{}, err
	}
	name := resp[8:24]
	if i := indexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	return FlashSegment{
		Size:  leUint32(resp[0:4]),
		Flags: leUint32(resp[4:8]),
		Name:  string(name),
	}, nil
}

// FlashErase starts erasing segment num.
func (t *Transport) FlashErase(num uint8) error {
	req := make([]byte, 8)
	req[0] = num
	_, err := t.command(OpFlashErase, req, 0)
	return err
}

// FlashEraseProgress polls erase progress for segment num: 0..N block
// count, 255 meaning done.
func (t *Transport) FlashEraseProgress(num uint32) (uint8, error) {
	req := make([]byte, 8)
	putLeUint32(req[0:4], num)
	resp, err := t.command(OpFlashEraseProgress, req, 1)
	if err != nil {
		return 0, err
	}
	return resp[0], nil
}

// FlashWrite writes a chunk of firmware payload at offset in segment num.
// Callers must keep len(data) <= MaxFlashWritePayload.
func (t *Transport) FlashWrite(num, offset uint32, data []byte) error {
	if len(data) > MaxFlashWritePayload {
		return fmt.Errorf("transport: flash write chunk too large: %d > %d", len(data), MaxFlashWritePayload)
	}
	req := make([]byte, 12+len(data))
	putLeUint32(req[0:4], num)
	putLeUint32(req[4:8], offset)
	copy(req[12:], data)
	_, err := t.command(OpFlashWrite, req, 0)
	return err
}

// SyncRead reports whether the device's clock is locked (non-zero) or not.
func (t *Transport) SyncRead() (uint32, error) {
	resp, err := t.command(OpSyncRead, nil, 4)
	if err != nil {
		return 0, err
	}
	return leUint32(resp), nil
}

// AuxDFUStart begins the auxiliary-MCU DFU sequence.
func (t *Transport) AuxDFUStart(length uint32, md5 [16]byte) error {
	req := make([]byte, 4+4+16)
	putLeUint32(req[4:8], length)
	copy(req[8:], md5[:])
	_, err := t.command(OpAuxDFUStart, req, 0)
	return err
}

// AuxDFUWrite streams one block (possibly empty, to finalize) of DFU
// payload.
func (t *Transport) AuxDFUWrite(block []byte) error {
	_, err := t.command(OpAuxDFUWrite, block, 0)
	return err
}

// DataRead reads size bytes at offset from APP_SPACE. size must be > 0.
func (t *Transport) DataRead(offset, size uint32) ([]byte, error) {
	if size == 0 {
		return nil, fmt.Errorf("transport: data.read size must be > 0")
	}
	req := make([]byte, 8)
	putLeUint32(req[0:4], offset)
	putLeUint32(req[4:8], size)
	return t.command(OpDataRead, req, int(size))
}

// DataWrite writes data at offset within APP_SPACE.
func (t *Transport) DataWrite(offset uint32, data []byte) error {
	req := make([]byte, 8+len(data))
	putLeUint32(req[0:4], offset)
	putLeUint32(req[4:8], uint32(len(data)))
	copy(req[8:], data)
	_, err := t.command(OpDataWrite, req, 0)
	return err
}

// DataNotify tells the device a control write happened, using its declared
// notify-device opcode.
func (t *Transport) DataNotify(event uint32) error {
	req := make([]byte, 4)
	putLeUint32(req, event)
	_, err := t.command(OpDataNotify, req, 0)
	return err
}

// DevmapInfo returns the total byte size of the device-supplied device map.
func (t *Transport) DevmapInfo() (totalSize uint16, err error) {
	resp, err := t.command(OpDevmapInfo, nil, 4)
	if err != nil {
		return 0, err
	}
	return leUint16(resp[2:4]), nil
}

// DevmapRead reads one 1024-byte block of the device map by block number.
// The final block of a device map may be shorter than 1024 bytes on the
// wire; callers are expected to truncate using the total size from
// DevmapInfo, not the length of this return value, since the device always
// returns a full 1024-byte buffer.
func (t *Transport) DevmapRead(blockNum uint32) ([]byte, error) {
	req := make([]byte, 4)
	putLeUint32(req, blockNum)
	return t.command(OpDevmapRead, req, DevmapBlockSize)
}

// ReadNotification blocks for the device's next notification word.
func (t *Transport) ReadNotification() (uint32, error) {
	return t.dev.ReadNotification()
}

// Fd exposes the underlying descriptor for select-based waits.
func (t *Transport) Fd() int { return t.dev.Fd() }

func decodeU32Slice(b []byte) []uint32 {
	out := make([]uint32, len(b)/4)
	for i := range out {
		out[i] = leUint32(b[i*4:])
	}
	return out
}

func decodeU16Slice(b []byte) []uint16 {
	out := make([]uint16, len(b)/2)
	for i := range out {
		out[i] = leUint16(b[i*2:])
	}
	return out
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}
