package segment

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bootimg "github.com/squidonik/DualBootPatcher"
	"github.com/squidonik/DualBootPatcher/stream"
)

func tempStream(t *testing.T) stream.Stream {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "pipeline-test-")
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return stream.New(f)
}

func TestAddRejectsDuplicateType(t *testing.T) {
	var p Pipeline
	require.NoError(t, p.Add(bootimg.EntryKernel, 0, 0, false, false, 2048))
	err := p.Add(bootimg.EntryKernel, 100, 0, false, false, 2048)
	assert.Error(t, err)
}

func TestWriteDataBeforeWriteEntryIsSequencingError(t *testing.T) {
	var p Pipeline
	require.NoError(t, p.Add(bootimg.EntryKernel, 0, 0, false, false, 2048))
	s := tempStream(t)

	_, err := p.WriteData(s, []byte("x"))
	assert.Error(t, err)
}

func TestFinishEntryWithNoCurrentEntryIsError(t *testing.T) {
	var p Pipeline
	s := tempStream(t)
	err := p.FinishEntry(s, true)
	assert.Error(t, err)
}

func TestWriteSequenceAlignsAndAdvances(t *testing.T) {
	var p Pipeline
	require.NoError(t, p.Add(bootimg.EntryKernel, 0, 0, false, false, 2048))
	require.NoError(t, p.Add(bootimg.EntryRamdisk, 0, 0, false, false, 2048))
	s := tempStream(t)

	var e bootimg.Entry
	require.NoError(t, p.GetEntry(&e))
	require.NoError(t, p.WriteEntry(e))
	payload := make([]byte, 10)
	n, err := p.WriteData(s, payload)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	require.NoError(t, p.FinishEntry(s, true))

	finished := p.LastFinished()
	require.NotNil(t, finished)
	assert.Equal(t, bootimg.EntryKernel, finished.Type)
	assert.EqualValues(t, 10, finished.Size)

	off, err := s.Offset()
	require.NoError(t, err)
	assert.EqualValues(t, 2048, off, "write should pad to the next page boundary")

	require.NoError(t, p.GetEntry(&e))
	assert.Equal(t, bootimg.EntryRamdisk, e.Type)
}

func TestReadSideTruncationTolerance(t *testing.T) {
	var p Pipeline
	require.NoError(t, p.Add(bootimg.EntryDeviceTree, 0, 100, true, true, 2048))
	s := tempStream(t)
	_, err := s.WriteFull(make([]byte, 40))
	require.NoError(t, err)

	var e bootimg.Entry
	require.NoError(t, p.ReadEntry(s, &e))
	buf := make([]byte, 100)
	n, _ := p.ReadData(s, buf)
	assert.Equal(t, 40, n)

	// CanBeTruncated is true: a short read must not fail finish_entry.
	assert.NoError(t, p.FinishEntry(s, false))
}

func TestReadSideRejectsShortReadWhenNotTruncatable(t *testing.T) {
	var p Pipeline
	require.NoError(t, p.Add(bootimg.EntryKernel, 0, 100, true, false, 2048))
	s := tempStream(t)
	_, err := s.WriteFull(make([]byte, 40))
	require.NoError(t, err)

	var e bootimg.Entry
	require.NoError(t, p.ReadEntry(s, &e))
	buf := make([]byte, 100)
	p.ReadData(s, buf)

	assert.Error(t, p.FinishEntry(s, false))
}
