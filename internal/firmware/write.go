package firmware

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

func sectionMagic(kind SectionKind) (string, error) {
	switch kind {
	case SectionMain:
		return MagicMain, nil
	case SectionAux:
		return MagicAux, nil
	case SectionLeapfrog:
		return MagicLeapfrog, nil
	default:
		return "", fmt.Errorf("firmware: unknown section kind %d", kind)
	}
}

// WriteSection builds one section's on-disk bytes (magic + header +
// payload), computing its SHA-256 digest. It is the encoding counterpart of
// Read and is used by this package's tests.
func WriteSection(kind SectionKind, vid, pid uint16, version [4]uint32, payload []byte) ([]byte, error) {
	magic, err := sectionMagic(kind)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteString(magic)

	var hdr [2 + 2 + 16 + 4]byte
	binary.BigEndian.PutUint16(hdr[0:2], vid)
	binary.BigEndian.PutUint16(hdr[2:4], pid)
	for i, v := range version {
		binary.BigEndian.PutUint32(hdr[4+4*i:], v)
	}
	binary.BigEndian.PutUint32(hdr[20:24], uint32(len(payload)))
	buf.Write(hdr[:])

	sum := sha256.Sum256(payload)
	buf.Write(sum[:])
	buf.Write(payload)

	return buf.Bytes(), nil
}

// WriteContainer assembles a multi-section container file.
func WriteContainer(vid, pid uint16, version [4]uint32, sections [][]byte) ([]byte, error) {
	if len(sections) < minSectionCount || len(sections) > maxSectionCount {
		return nil, fmt.Errorf("firmware: section count %d out of range [%d,%d]", len(sections), minSectionCount, maxSectionCount)
	}
	var buf bytes.Buffer
	buf.WriteString(MagicContainer)

	var hdr [2 + 2 + 16 + 4]byte
	binary.BigEndian.PutUint16(hdr[0:2], vid)
	binary.BigEndian.PutUint16(hdr[2:4], pid)
	for i, v := range version {
		binary.BigEndian.PutUint32(hdr[4+4*i:], v)
	}
	binary.BigEndian.PutUint32(hdr[20:24], uint32(len(sections)))
	buf.Write(hdr[:])

	for _, s := range sections {
		buf.Write(s)
	}
	return buf.Bytes(), nil
}
