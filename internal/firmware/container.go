// Package firmware implements C7: parsing, validating, and digesting the
// multi-section firmware file container format. All multi-byte integers on
// disk are big-endian (spec §3, §9 "endian discipline").
package firmware

import (
	"crypto/md5" //nolint:gosec // required to match the on-wire auxiliary-MCU digest
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
)

const (
	magicLen = 8

	MagicContainer = "SCARLBOX"
	MagicMain      = "SCARLET4"
	MagicAux       = "SCARLESP"
	MagicLeapfrog  = "SCARLEAP"
)

const (
	sha256Len = 32
	md5Len    = 16
)

// SectionKind distinguishes the three recognized section magics.
type SectionKind int

const (
	SectionMain SectionKind = iota
	SectionAux
	SectionLeapfrog
)

func sectionKindFromMagic(magic string) (SectionKind, error) {
	switch magic {
	case MagicMain:
		return SectionMain, nil
	case MagicAux:
		return SectionAux, nil
	case MagicLeapfrog:
		return SectionLeapfrog, nil
	default:
		return 0, fmt.Errorf("firmware: unknown section magic %q", magic)
	}
}

// SectionHeader is the fixed per-section header.
type SectionHeader struct {
	VID     uint16
	PID     uint16
	Version [4]uint32
	Length  uint32
	SHA256  [sha256Len]byte
}

// Section is one parsed firmware section.
type Section struct {
	Kind    SectionKind
	Header  SectionHeader
	Payload []byte

	// MD5 is populated only for SectionAux, per spec §3.
	MD5 [md5Len]byte
}

// ContainerHeader is the top-level container header.
type ContainerHeader struct {
	VID         uint16
	PID         uint16
	Version     [4]uint32
	NumSections uint32
}

// Container is a fully-parsed, fully-validated firmware file.
type Container struct {
	Header   ContainerHeader
	Sections []Section
}

// minSectionCount and maxSectionCount bound a container's section count
// (spec §3 invariant: "Fail fast on ... section count outside 1..3").
const (
	minSectionCount = 1
	maxSectionCount = 3
)

// Read parses a complete firmware file, validating every section's SHA-256
// and computing an MD5 for any auxiliary-MCU section.
func Read(r io.Reader) (*Container, error) {
	return read(r, false)
}

// ReadHeader parses only headers, skipping payload digests, for fast
// enumeration of available firmware files (spec §4.6 "Read header only").
func ReadHeader(r io.Reader) (*Container, error) {
	return read(r, true)
}

func read(r io.Reader, headerOnly bool) (*Container, error) {
	magic, err := readMagic(r)
	if err != nil {
		return nil, err
	}

	if magic == MagicContainer {
		return readContainerBody(r, headerOnly)
	}

	// Legacy single-section file: the magic we just read is a section
	// magic, not the container magic.
	section, err := readSectionBody(r, magic, headerOnly)
	if err != nil {
		return nil, err
	}
	return &Container{
		Header:   ContainerHeader{NumSections: 1},
		Sections: []Section{*section},
	}, nil
}

func readContainerBody(r io.Reader, headerOnly bool) (*Container, error) {
	var hdr ContainerHeader
	buf := make([]byte, 2+2+16+4)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("firmware: short container header: %w", err)
	}
	hdr.VID = binary.BigEndian.Uint16(buf[0:2])
	hdr.PID = binary.BigEndian.Uint16(buf[2:4])
	for i := 0; i < 4; i++ {
		hdr.Version[i] = binary.BigEndian.Uint32(buf[4+4*i:])
	}
	hdr.NumSections = binary.BigEndian.Uint32(buf[20:24])

	if hdr.NumSections < minSectionCount || hdr.NumSections > maxSectionCount {
		return nil, fmt.Errorf("firmware: section count %d out of range [%d,%d]", hdr.NumSections, minSectionCount, maxSectionCount)
	}

	sections := make([]Section, 0, hdr.NumSections)
	for i := uint32(0); i < hdr.NumSections; i++ {
		magic, err := readMagic(r)
		if err != nil {
			return nil, fmt.Errorf("firmware: section %d magic: %w", i, err)
		}
		s, err := readSectionBody(r, magic, headerOnly)
		if err != nil {
			return nil, fmt.Errorf("firmware: section %d: %w", i, err)
		}
		sections = append(sections, *s)
	}

	return &Container{Header: hdr, Sections: sections}, nil
}

func readMagic(r io.Reader) (string, error) {
	buf := make([]byte, magicLen)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("firmware: short magic read: %w", err)
	}
	return string(buf), nil
}

func readSectionBody(r io.Reader, magic string, headerOnly bool) (*Section, error) {
	kind, err := sectionKindFromMagic(magic)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, 2+2+16+4+sha256Len)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("firmware: short section header: %w", err)
	}
	var hdr SectionHeader
	hdr.VID = binary.BigEndian.Uint16(buf[0:2])
	hdr.PID = binary.BigEndian.Uint16(buf[2:4])
	for i := 0; i < 4; i++ {
		hdr.Version[i] = binary.BigEndian.Uint32(buf[4+4*i:])
	}
	hdr.Length = binary.BigEndian.Uint32(buf[20:24])
	copy(hdr.SHA256[:], buf[24:24+sha256Len])

	section := &Section{Kind: kind, Header: hdr}

	if headerOnly {
		if seeker, ok := r.(io.Seeker); ok {
			if _, err := seeker.Seek(int64(hdr.Length), io.SeekCurrent); err != nil {
				return nil, fmt.Errorf("firmware: seek past payload: %w", err)
			}
		} else if _, err := io.CopyN(io.Discard, r, int64(hdr.Length)); err != nil {
			return nil, fmt.Errorf("firmware: skip payload: %w", err)
		}
		return section, nil
	}

	payload := make([]byte, hdr.Length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("firmware: short section payload (want %d bytes): %w", hdr.Length, err)
	}
	section.Payload = payload

	sum := sha256.Sum256(payload)
	if sum != hdr.SHA256 {
		return nil, fmt.Errorf("firmware: section %s: sha256 mismatch", magic)
	}

	if kind == SectionAux {
		section.MD5 = md5.Sum(payload) //nolint:gosec
	}

	return section, nil
}
