package android

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bootimg "github.com/squidonik/DualBootPatcher"
	"github.com/squidonik/DualBootPatcher/internal/binle"
	"github.com/squidonik/DualBootPatcher/stream"
)

// buildHeader encodes a minimal valid Android header at byte offset 0,
// mirroring decodeHeader's field layout.
func buildHeader(t *testing.T, pageSize, kernelSize, ramdiskSize, secondSize, dtSize uint32) []byte {
	t.Helper()
	buf := make([]byte, headerSize)
	copy(buf[0:8], []byte(BootMagic))
	le32 := func(v uint32) []byte {
		b := binle.ToLE32(v)
		return b[:]
	}
	copy(buf[8:12], le32(kernelSize))
	copy(buf[16:20], le32(ramdiskSize))
	copy(buf[24:28], le32(secondSize))
	copy(buf[36:40], le32(pageSize))
	copy(buf[40:44], le32(dtSize))
	return buf
}

func tempStreamWith(t *testing.T, data []byte) stream.Stream {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "android-test-")
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	_, err = f.Write(data)
	require.NoError(t, err)
	return stream.New(f)
}

func TestFindHeaderAtOffsetZero(t *testing.T) {
	buf := buildHeader(t, 2048, 4096, 1024, 0, 0)
	s := tempStreamWith(t, buf)

	hdr, off, err := FindHeader(s)
	require.NoError(t, err)
	assert.EqualValues(t, 0, off)
	assert.EqualValues(t, 2048, hdr.pageSize)
	assert.EqualValues(t, 4096, hdr.kernelSize)
	assert.EqualValues(t, 1024, hdr.ramdiskSize)
}

func TestFindHeaderAtNonZeroOffset(t *testing.T) {
	prefix := make([]byte, 256)
	buf := append(prefix, buildHeader(t, 2048, 4096, 1024, 0, 0)...)
	s := tempStreamWith(t, buf)

	_, off, err := FindHeader(s)
	require.NoError(t, err)
	assert.EqualValues(t, 256, off)
}

func TestFindHeaderBeyondMaxOffsetFails(t *testing.T) {
	prefix := make([]byte, MaxHeaderOffset+1)
	buf := append(prefix, buildHeader(t, 2048, 4096, 1024, 0, 0)...)
	s := tempStreamWith(t, buf)

	_, _, err := FindHeader(s)
	assert.Error(t, err)
}

func TestBidSEAndroidBonus(t *testing.T) {
	hdr := buildHeader(t, 2048, 4096, 1024, 0, 0)
	image := append([]byte{}, hdr...)
	image = append(image, make([]byte, int(trailingMagicOffset(decodeHeader(hdr)))-len(image))...)
	image = append(image, []byte(SamsungSEAndroidMagic)...)
	s := tempStreamWith(t, image)

	r := NewReader(VariantPlain)
	bid, err := r.Bid(s, 0)
	require.NoError(t, err)
	assert.Equal(t, (BootMagicSize+len(SamsungSEAndroidMagic))*8, bid)
}

func TestBidPlainWithoutTrailingMagic(t *testing.T) {
	hdr := buildHeader(t, 2048, 4096, 1024, 0, 0)
	s := tempStreamWith(t, hdr)

	r := NewReader(VariantPlain)
	bid, err := r.Bid(s, 0)
	require.NoError(t, err)
	assert.Equal(t, BootMagicSize*8, bid)
}

func TestBidBumpVariant(t *testing.T) {
	hdr := buildHeader(t, 2048, 4096, 1024, 0, 0)
	image := append([]byte{}, hdr...)
	image = append(image, make([]byte, int(trailingMagicOffset(decodeHeader(hdr)))-len(image))...)
	image = append(image, []byte(BumpMagic)...)
	s := tempStreamWith(t, image)

	r := NewReader(VariantBump)
	bid, err := r.Bid(s, 0)
	require.NoError(t, err)
	assert.Equal(t, (BootMagicSize+len(BumpMagic))*8, bid)
}

func TestBidShortCircuitsWhenCannotWin(t *testing.T) {
	hdr := buildHeader(t, 2048, 4096, 1024, 0, 0)
	s := tempStreamWith(t, hdr)

	r := NewReader(VariantBump)
	ceiling := (BootMagicSize + len(SamsungSEAndroidMagic)) * 8
	_, err := r.Bid(s, ceiling)
	assert.Equal(t, ErrCannotWin(), err)
}

func TestReadHeaderSkipsDeviceTreeWhenEmpty(t *testing.T) {
	const pageSize = 2048
	hdr := buildHeader(t, pageSize, 16, 16, 0, 0)

	image := make([]byte, pageSize) // header page
	copy(image, hdr)
	image = append(image, make([]byte, pageSize)...) // kernel region (16 bytes + padding)
	image = append(image, make([]byte, pageSize)...) // ramdisk region
	s := tempStreamWith(t, image)

	r := NewReader(VariantPlain)
	out := bootimg.NewHeader()
	require.NoError(t, r.ReadHeader(s, out))

	var e bootimg.Entry
	require.NoError(t, r.ReadEntry(s, &e))
	assert.Equal(t, bootimg.EntryKernel, e.Type)
	buf := make([]byte, e.Size)
	r.ReadData(s, buf)
	require.NoError(t, r.FinishEntry(s))

	require.NoError(t, r.ReadEntry(s, &e))
	assert.Equal(t, bootimg.EntryRamdisk, e.Type)
	buf = make([]byte, e.Size)
	r.ReadData(s, buf)
	require.NoError(t, r.FinishEntry(s))

	// No secondboot, no device tree: the pipeline must be exhausted now.
	err := r.ReadEntry(s, &e)
	assert.Error(t, err)
}

func TestDeviceTreeTruncationLenientByDefault(t *testing.T) {
	hdr := buildHeader(t, 2048, 0, 0, 0, 4096)
	// Only write the header page; the DT region (4096 bytes) is entirely
	// missing from the backing file.
	padded := make([]byte, 2048)
	copy(padded, hdr)
	s := tempStreamWith(t, padded)

	r := NewReader(VariantPlain)
	out := bootimg.NewHeader()
	require.NoError(t, r.ReadHeader(s, out))

	var e bootimg.Entry
	require.NoError(t, r.ReadEntry(s, &e)) // kernel (empty)
	require.NoError(t, r.FinishEntry(s))
	require.NoError(t, r.ReadEntry(s, &e)) // ramdisk (empty)
	require.NoError(t, r.FinishEntry(s))
	require.NoError(t, r.ReadEntry(s, &e)) // dt
	assert.Equal(t, bootimg.EntryDeviceTree, e.Type)
	buf := make([]byte, e.Size)
	r.ReadData(s, buf)
	assert.NoError(t, r.FinishEntry(s), "lenient mode must tolerate a short device-tree read")
}

func TestDeviceTreeTruncationStrictRejectsShortRead(t *testing.T) {
	hdr := buildHeader(t, 2048, 0, 0, 0, 4096)
	padded := make([]byte, 2048)
	copy(padded, hdr)
	s := tempStreamWith(t, padded)

	r := NewReader(VariantPlain)
	r.SetOption("strict", "true")
	out := bootimg.NewHeader()
	require.NoError(t, r.ReadHeader(s, out))

	var e bootimg.Entry
	require.NoError(t, r.ReadEntry(s, &e))
	require.NoError(t, r.FinishEntry(s))
	require.NoError(t, r.ReadEntry(s, &e))
	require.NoError(t, r.FinishEntry(s))
	require.NoError(t, r.ReadEntry(s, &e))
	buf := make([]byte, e.Size)
	r.ReadData(s, buf)
	assert.Error(t, r.FinishEntry(s), "strict mode must reject a short device-tree read")
}
