package transport

import (
	"encoding/binary"
	"unsafe"
)

// All transport wire values are little-endian (spec §4.1, §9 "endian
// discipline"). Every field is decoded individually rather than by casting
// a byte slice onto a struct, so width/signedness overrides stay explicit.

func leUint16(b []byte) uint16 { return binary.LittleEndian.Uint16(b) }
func leUint32(b []byte) uint32 { return binary.LittleEndian.Uint32(b) }

func putLeUint16(b []byte, v uint16) { binary.LittleEndian.PutUint16(b, v) }
func putLeUint32(b []byte, v uint32) { binary.LittleEndian.PutUint32(b, v) }

func putHeader(buf []byte, hdr commandHeader) {
	putLeUint32(buf[0:4], hdr.Opcode)
	putLeUint32(buf[4:8], hdr.ReqSize)
	putLeUint32(buf[8:12], hdr.RespSize)
}

// ptr exists solely to hand a byte's address to the ioctl syscall; it never
// outlives the call that uses it.
func ptr(b *byte) unsafe.Pointer { return unsafe.Pointer(b) }
