package mtk

import (
	"bytes"
	"encoding/hex"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bootimg "github.com/squidonik/DualBootPatcher"
	"github.com/squidonik/DualBootPatcher/stream"
)

func tempStream(t *testing.T) (stream.Stream, *os.File) {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "mtk-test-")
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return stream.New(f), f
}

func writeEntry(t *testing.T, w *Writer, s stream.Stream, payload []byte) {
	t.Helper()
	var e bootimg.Entry
	require.NoError(t, w.GetEntry(s, &e))
	require.NoError(t, w.WriteEntry(e))
	if len(payload) > 0 {
		_, err := w.WriteData(s, payload)
		require.NoError(t, err)
	}
	require.NoError(t, w.FinishEntry(s))
}

// TestMinimalMTKWrite drives the writer through the literal scenario: a
// 2048-byte page size, an empty board name and cmdline, a 4096-byte kernel
// of 0xAA, a 1024-byte ramdisk of 0xBB, and no secondboot/device-tree.
func TestMinimalMTKWrite(t *testing.T) {
	s, f := tempStream(t)
	w := NewWriter()

	hdr := w.GetHeader()
	require.True(t, hdr.SetPageSize(2048))
	require.NoError(t, w.WriteHeader(s, hdr))

	writeEntry(t, w, s, KernelSubHeader())
	writeEntry(t, w, s, bytes.Repeat([]byte{0xAA}, 4096))
	writeEntry(t, w, s, RamdiskSubHeader())
	writeEntry(t, w, s, bytes.Repeat([]byte{0xBB}, 1024))
	writeEntry(t, w, s, nil) // secondboot, empty
	writeEntry(t, w, s, nil) // device tree, empty

	require.NoError(t, w.Close(s))

	info, err := f.Stat()
	require.NoError(t, err)
	// header page (2048) + sub_hdr_k (512) + kernel (4096, page-aligned to
	// 8192) + sub_hdr_r (512) + ramdisk (1024, page-aligned to 2048 more).
	assert.EqualValues(t, 2048+2048*3+2048, info.Size())

	assert.EqualValues(t, 512+4096, w.hdr.kernelSize)
	assert.EqualValues(t, 512+1024, w.hdr.ramdiskSize)

	// Computed independently: sub_hdr_k | kernel | LE32(4608) | sub_hdr_r |
	// ramdisk | LE32(1536) | LE32(0) for the empty secondboot entry (its
	// size field is hashed unconditionally, unlike device tree's).
	wantDigest, err := hex.DecodeString("16dc6e6b738875fab1c76471b73828a202fff3b4")
	require.NoError(t, err)
	assert.Equal(t, wantDigest, w.hdr.id[:len(wantDigest)])

	// The kernel sub-header's size field must hold the payload size alone
	// (not including the 512-byte sub-header itself).
	subHeaderBuf := make([]byte, 8)
	n, err := s.ReadAt(subHeaderBuf, 2048)
	require.NoError(t, err)
	require.Equal(t, 8, n)
	assert.EqualValues(t, mtkKernelMagic, leUint32(subHeaderBuf[0:4]))
	assert.EqualValues(t, 4096, leUint32(subHeaderBuf[4:8]))
}

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func TestWriteHeaderRejectsInvalidPageSize(t *testing.T) {
	s, _ := tempStream(t)
	w := NewWriter()
	hdr := w.GetHeader()
	assert.False(t, hdr.SetPageSize(1024), "1024 is not an allowed page size")

	// page_size was never set, so write_header must reject it before
	// touching the stream.
	err := w.WriteHeader(s, hdr)
	assert.Error(t, err)
}

func TestBoardNameLengthBoundary(t *testing.T) {
	s, _ := tempStream(t)
	w := NewWriter()
	hdr := w.GetHeader()
	require.True(t, hdr.SetPageSize(2048))

	name16 := "0123456789012345"
	assert.False(t, hdr.SetBoardName(name16), "16 bytes leaves no room for the NUL terminator")
	assert.True(t, hdr.SetBoardName(name16[:15]), "15 bytes fits")
	require.NoError(t, w.WriteHeader(s, hdr))
}
