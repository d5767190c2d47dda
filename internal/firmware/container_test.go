package firmware

import (
	"bytes"
	"crypto/md5" //nolint:gosec
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContainerRoundTrip(t *testing.T) {
	version := [4]uint32{1, 2, 3, 4}
	appPayload := bytes.Repeat([]byte{0xAB}, 128)
	espPayload := bytes.Repeat([]byte{0xCD}, 64)

	appSection, err := WriteSection(SectionMain, 0x1235, 0x821D, version, appPayload)
	require.NoError(t, err)
	espSection, err := WriteSection(SectionAux, 0x1235, 0x821D, version, espPayload)
	require.NoError(t, err)

	file, err := WriteContainer(0x1235, 0x821D, version, [][]byte{appSection, espSection})
	require.NoError(t, err)

	container, err := Read(bytes.NewReader(file))
	require.NoError(t, err)

	require.Len(t, container.Sections, 2)
	assert.Equal(t, SectionMain, container.Sections[0].Kind)
	assert.Equal(t, SectionAux, container.Sections[1].Kind)

	appSum := sha256.Sum256(appPayload)
	assert.Equal(t, appSum, container.Sections[0].Header.SHA256)

	espSum := sha256.Sum256(espPayload)
	assert.Equal(t, espSum, container.Sections[1].Header.SHA256)

	espMD5 := md5.Sum(espPayload) //nolint:gosec
	assert.Equal(t, espMD5, container.Sections[1].MD5)

	assert.Equal(t, uint32(2), container.Header.NumSections)
}

func TestLegacySingleSectionFile(t *testing.T) {
	payload := bytes.Repeat([]byte{0x11}, 32)
	section, err := WriteSection(SectionMain, 1, 2, [4]uint32{}, payload)
	require.NoError(t, err)

	container, err := Read(bytes.NewReader(section))
	require.NoError(t, err)
	require.Len(t, container.Sections, 1)
	assert.Equal(t, uint32(1), container.Header.NumSections)
}

func TestShaMismatchIsRejected(t *testing.T) {
	payload := bytes.Repeat([]byte{0x22}, 16)
	section, err := WriteSection(SectionMain, 1, 2, [4]uint32{}, payload)
	require.NoError(t, err)
	// Corrupt one payload byte after the digest was computed.
	section[len(section)-1] ^= 0xFF

	_, err = Read(bytes.NewReader(section))
	assert.Error(t, err)
}

func TestSectionCountOutOfRangeRejected(t *testing.T) {
	payload := []byte{0x00}
	section, err := WriteSection(SectionMain, 1, 2, [4]uint32{}, payload)
	require.NoError(t, err)

	file, err := WriteContainer(1, 2, [4]uint32{}, [][]byte{section})
	require.NoError(t, err)
	// Force num_sections to 0 in the header (bytes 20:24 of the container
	// header, after the 8-byte magic).
	file[8+20+3] = 0

	_, err = Read(bytes.NewReader(file))
	assert.Error(t, err)
}

func TestShortReadIsAnError(t *testing.T) {
	_, err := Read(bytes.NewReader([]byte("SCAR")))
	assert.Error(t, err)
}

func TestUnknownMagicIsAnError(t *testing.T) {
	_, err := Read(bytes.NewReader([]byte("NOTAMAGIC" + string(make([]byte, 32)))))
	assert.Error(t, err)
}

func TestReadHeaderSkipsPayload(t *testing.T) {
	payload := bytes.Repeat([]byte{0x33}, 1000)
	section, err := WriteSection(SectionMain, 1, 2, [4]uint32{}, payload)
	require.NoError(t, err)

	container, err := ReadHeader(bytes.NewReader(section))
	require.NoError(t, err)
	assert.Empty(t, container.Sections[0].Payload)
	assert.Equal(t, uint32(len(payload)), container.Sections[0].Header.Length)
}
