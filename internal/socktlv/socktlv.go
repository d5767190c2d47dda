// Package socktlv encodes and decodes the TLV blob a daemon attaches to the
// "Firmware Version" audio-control element to advertise its client socket
// path out-of-band (spec §4.9, §6 "Socket-path discovery"). The control
// element itself is held locked while the daemon runs; the TLV's presence
// plus the lock together signal "daemon present" to a client.
package socktlv

import (
	"encoding/binary"
	"fmt"
)

// Tag is the four-character magic opening the TLV payload, 0x53434B54
// little-endian ("SCKT").
const Tag = "SCKT"

// tagLE is Tag's characters packed most-significant-first into a uint32
// ("(0x53434B54 little-endian)" in spec §6); stored little-endian, the
// payload's first four bytes are therefore "TKCS".
const tagLE uint32 = 0x53434B54

// headerLen is {tag u32, total_size u32}.
const headerLen = 8

// Encode builds the TLV payload: tag, total size, NUL-terminated path,
// zero-padded to a 4-byte boundary (spec §6).
func Encode(socketPath string) []byte {
	pathField := append([]byte(socketPath), 0)
	total := headerLen + len(pathField)
	if pad := total % 4; pad != 0 {
		total += 4 - pad
	}
	buf := make([]byte, total)
	binary.LittleEndian.PutUint32(buf[0:4], tagLE)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(total))
	copy(buf[headerLen:], pathField)
	return buf
}

// Decode extracts the socket path from a TLV blob, validating the magic
// tag. A client uses this (plus the control's locked state) to distinguish
// a daemon-managed card from one with no daemon running (spec §4.9).
func Decode(blob []byte) (string, error) {
	if len(blob) < headerLen {
		return "", fmt.Errorf("socktlv: blob too short")
	}
	tag := binary.LittleEndian.Uint32(blob[0:4])
	if tag != tagLE {
		return "", fmt.Errorf("socktlv: not a daemon-managed card (missing %q tag)", Tag)
	}
	total := binary.LittleEndian.Uint32(blob[4:8])
	if total < headerLen || int(total) > len(blob) {
		return "", fmt.Errorf("socktlv: declared size %d out of range for blob length %d", total, len(blob))
	}
	path := blob[headerLen:total]
	if i := indexZero(path); i >= 0 {
		path = path[:i]
	}
	if len(path) == 0 {
		return "", fmt.Errorf("socktlv: empty socket path")
	}
	return string(path), nil
}

func indexZero(b []byte) int {
	for i, c := range b {
		if c == 0 {
			return i
		}
	}
	return -1
}
