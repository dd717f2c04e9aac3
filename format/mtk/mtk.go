// Package mtk implements the writer adapter for MTK-variant Android boot
// images: each of the kernel and ramdisk payloads is preceded by a
// 512-byte MTK sub-header, and the image's aggregate SHA-1 is computed
// over a specific interleaving of payload bytes and little-endian size
// fields, mirroring libmbbootimg's mtk_writer.
package mtk

import (
	"crypto/sha1"

	bootimg "github.com/squidonik/DualBootPatcher"
	"github.com/squidonik/DualBootPatcher/format/android"
	"github.com/squidonik/DualBootPatcher/internal/binle"
	"github.com/squidonik/DualBootPatcher/internal/segment"
	"github.com/squidonik/DualBootPatcher/stream"
)

// SubHeaderSize is the fixed on-disk size of an MTK sub-header: a magic
// (4), a size field (4), a name (32), and padding to 512 bytes total.
const SubHeaderSize = 512

// sizeFieldOffset is the byte offset of the size field within the
// sub-header, used to back-patch it at close.
const sizeFieldOffset = 4

const boardNameSize = 16
const cmdlineSize = 512

// rawHeader mirrors format/android's Android top-level header layout;
// MTK images use the same 1636-byte top-level header (including the
// 1024-byte extra cmdline), differing only in
// what kernel_size/ramdisk_size mean (sub-header + payload, not payload
// alone) and in the sub-headers preceding each payload.
type rawHeader struct {
	kernelSize, kernelAddr   uint32
	ramdiskSize, ramdiskAddr uint32
	secondSize, secondAddr   uint32
	tagsAddr                 uint32
	pageSize                 uint32
	dtSize                   uint32
	unused0, unused1         uint32
	name                     [boardNameSize]byte
	cmdline                  [cmdlineSize]byte
	id                       [32]byte
	extraCmdline             [1024]byte
}

func le32(v uint32) []byte {
	b := binle.ToLE32(v)
	return b[:]
}

func (h rawHeader) encode() []byte {
	out := make([]byte, 8+8+8+8+4+4+4+8+boardNameSize+cmdlineSize+32+1024)
	copy(out[0:8], []byte(android.BootMagic))
	copy(out[8:12], le32(h.kernelSize))
	copy(out[12:16], le32(h.kernelAddr))
	copy(out[16:20], le32(h.ramdiskSize))
	copy(out[20:24], le32(h.ramdiskAddr))
	copy(out[24:28], le32(h.secondSize))
	copy(out[28:32], le32(h.secondAddr))
	copy(out[32:36], le32(h.tagsAddr))
	copy(out[36:40], le32(h.pageSize))
	copy(out[40:44], le32(h.dtSize))
	copy(out[44:48], le32(h.unused0))
	copy(out[48:52], le32(h.unused1))
	off := 52
	copy(out[off:off+boardNameSize], h.name[:])
	off += boardNameSize
	copy(out[off:off+cmdlineSize], h.cmdline[:])
	off += cmdlineSize
	copy(out[off:off+32], h.id[:])
	off += 32
	copy(out[off:off+1024], h.extraCmdline[:])
	return out
}

// encodeSubHeader builds the 512-byte record preceding an MTK kernel/ramdisk
// payload: the magic and size field, with the name and padding left zeroed.
func encodeSubHeader(magic uint32, size uint32) []byte {
	buf := make([]byte, SubHeaderSize)
	copy(buf[0:4], le32(magic))
	copy(buf[4:8], le32(size))
	return buf
}

const (
	mtkKernelMagic  = 0x58881688
	mtkRamdiskMagic = 0x58891689
)

// KernelSubHeader returns a fresh 512-byte MTK kernel sub-header with the
// magic set and the size field zeroed; Close back-patches the size field
// once the real payload size is known, so callers needn't fill it in.
func KernelSubHeader() []byte { return encodeSubHeader(mtkKernelMagic, 0) }

// RamdiskSubHeader is KernelSubHeader's ramdisk counterpart.
func RamdiskSubHeader() []byte { return encodeSubHeader(mtkRamdiskMagic, 0) }

// Writer is the MTK writer adapter: get_header, write_header, get_entry,
// write_entry, write_data, finish_entry, close, free, matching
// libmbbootimg's writer vtable.
type Writer struct {
	hdr rawHeader
	seg segment.Pipeline

	fileSize     int64
	haveFileSize bool
}

func NewWriter() *Writer {
	return &Writer{}
}

func (w *Writer) Name() string { return "mtk" }

// GetHeader reports which fields this format supports, before the caller
// populates a Header to pass to WriteHeader.
func (w *Writer) GetHeader() *bootimg.Header {
	h := bootimg.NewHeader()
	h.SetSupportedFields(bootimg.FieldsBase)
	return h
}

// WriteHeader builds the on-disk header struct from the caller-supplied
// Header, seeds the pipeline in MTK_KERNEL_HEADER, KERNEL,
// MTK_RAMDISK_HEADER, RAMDISK, SECONDBOOT, DEVICE_TREE order, and seeks
// past the first page so the header area is reserved as a hole until
// Close.
func (w *Writer) WriteHeader(s stream.Stream, header *bootimg.Header) error {
	w.hdr = rawHeader{}

	if a := header.KernelAddress(); a != nil {
		w.hdr.kernelAddr = *a
	}
	if a := header.RamdiskAddress(); a != nil {
		w.hdr.ramdiskAddr = *a
	}
	if a := header.SecondbootAddress(); a != nil {
		w.hdr.secondAddr = *a
	}
	if a := header.KernelTagsAddress(); a != nil {
		w.hdr.tagsAddr = *a
	}

	ps := header.PageSize()
	if ps == nil {
		return bootimg.NewErrorf(bootimg.KindFormat, false, "write_header", "page size field is required")
	}
	if !bootimg.IsAllowedPageSize(*ps) {
		return bootimg.NewErrorf(bootimg.KindFormat, false, "write_header", "invalid page size: %d", *ps)
	}
	w.hdr.pageSize = *ps

	if b := header.BoardName(); b != nil {
		if len(*b) >= boardNameSize {
			return bootimg.NewErrorf(bootimg.KindFormat, false, "write_header", "board name too long")
		}
		copy(w.hdr.name[:], *b)
	}
	if c := header.KernelCmdline(); c != nil {
		if len(*c) >= cmdlineSize {
			return bootimg.NewErrorf(bootimg.KindFormat, false, "write_header", "kernel cmdline too long")
		}
		copy(w.hdr.cmdline[:], *c)
	}

	// UNUSED and ID (pre-SHA) fields are left zeroed: the original writer
	// never populates them either.

	w.seg.Clear()
	if err := w.seg.Add(bootimg.EntryMtkKernelHeader, 0, 0, false, false, 0); err != nil {
		return err
	}
	if err := w.seg.Add(bootimg.EntryKernel, 0, 0, false, false, w.hdr.pageSize); err != nil {
		return err
	}
	if err := w.seg.Add(bootimg.EntryMtkRamdiskHeader, 0, 0, false, false, 0); err != nil {
		return err
	}
	if err := w.seg.Add(bootimg.EntryRamdisk, 0, 0, false, false, w.hdr.pageSize); err != nil {
		return err
	}
	if err := w.seg.Add(bootimg.EntrySecondboot, 0, 0, false, false, w.hdr.pageSize); err != nil {
		return err
	}
	if err := w.seg.Add(bootimg.EntryDeviceTree, 0, 0, false, false, w.hdr.pageSize); err != nil {
		return err
	}

	if err := s.SeekAbs(int64(w.hdr.pageSize)); err != nil {
		return bootimg.NewError(bootimg.KindIO, stream.IsFatal(err), "seek to first page", err)
	}

	w.haveFileSize = false
	return nil
}

// GetEntry advances to the next entry and records its real stream offset,
// which a writer entry doesn't know until the stream position reaches it.
// Every entry's offset is tracked this way, not just the MTK sub-headers,
// since the SHA-1 pass in Close re-reads every entry's payload by offset.
func (w *Writer) GetEntry(s stream.Stream, out *bootimg.Entry) error {
	if err := w.seg.GetEntry(out); err != nil {
		return err
	}
	off, err := s.Offset()
	if err != nil {
		return bootimg.NewError(bootimg.KindIO, stream.IsFatal(err), "query offset", err)
	}
	w.seg.SetOffset(uint64(off))
	out.Offset = uint64(off)
	return nil
}

func (w *Writer) WriteEntry(entry bootimg.Entry) error {
	return w.seg.WriteEntry(entry)
}

func (w *Writer) WriteData(s stream.Stream, buf []byte) (int, error) {
	return w.seg.WriteData(s, buf)
}

// FinishEntry finalizes the current entry and validates per-type
// invariants: MTK sub-headers must be exactly SubHeaderSize; kernel/
// ramdisk payloads must leave room for their sub-header in a uint32 size
// field. It then rolls the size into the on-disk header.
func (w *Writer) FinishEntry(s stream.Stream) error {
	if err := w.seg.FinishEntry(s, true); err != nil {
		return err
	}

	finished := w.seg.LastFinished()
	if finished == nil {
		return nil
	}

	switch finished.Type {
	case bootimg.EntryKernel, bootimg.EntryRamdisk:
		if finished.Size > (1<<32 - 1 - SubHeaderSize) {
			return bootimg.NewErrorf(bootimg.KindFormat, true, "finish_entry",
				"entry size too large to accommodate MTK header")
		}
	case bootimg.EntryMtkKernelHeader, bootimg.EntryMtkRamdiskHeader:
		if finished.Size != SubHeaderSize {
			return bootimg.NewErrorf(bootimg.KindFormat, true, "finish_entry",
				"invalid size for MTK header entry")
		}
	}

	switch finished.Type {
	case bootimg.EntryKernel:
		w.hdr.kernelSize = uint32(finished.Size) + SubHeaderSize
	case bootimg.EntryRamdisk:
		w.hdr.ramdiskSize = uint32(finished.Size) + SubHeaderSize
	case bootimg.EntrySecondboot:
		w.hdr.secondSize = uint32(finished.Size)
	case bootimg.EntryDeviceTree:
		w.hdr.dtSize = uint32(finished.Size)
	}

	return nil
}

// Close finalizes the image once every entry has been written: truncate
// to the final length, back-patch both MTK sub-header size fields,
// compute the aggregate SHA-1, and rewrite the top-level header at
// offset 0. The SHA-1 can only be computed here, in a second pass, since
// the sub-header sizes aren't known until every payload has been written.
func (w *Writer) Close(s stream.Stream) error {
	if !w.haveFileSize {
		off, err := s.Offset()
		if err != nil {
			return bootimg.NewError(bootimg.KindIO, stream.IsFatal(err), "get file offset", err)
		}
		w.fileSize = off
		w.haveFileSize = true
	}

	if w.seg.Current() != nil {
		// Still mid-write; nothing to finalize yet.
		return nil
	}

	if err := s.Truncate(w.fileSize); err != nil {
		return bootimg.NewError(bootimg.KindIO, stream.IsFatal(err), "truncate file", err)
	}

	for _, e := range w.seg.Entries() {
		var regionSize uint32
		switch e.Type {
		case bootimg.EntryMtkKernelHeader:
			regionSize = w.hdr.kernelSize
		case bootimg.EntryMtkRamdiskHeader:
			regionSize = w.hdr.ramdiskSize
		default:
			continue
		}
		if err := updateSubHeaderSize(s, e.Offset, regionSize-SubHeaderSize); err != nil {
			return err
		}
	}

	digest, err := computeSHA1(s, w.seg.Entries())
	if err != nil {
		return err
	}
	copy(w.hdr.id[:], digest[:])

	if err := s.SeekAbs(0); err != nil {
		return bootimg.NewError(bootimg.KindIO, stream.IsFatal(err), "seek to beginning", err)
	}
	if _, err := s.WriteFull(w.hdr.encode()); err != nil {
		return bootimg.NewError(bootimg.KindIO, stream.IsFatal(err), "write header", err)
	}

	return nil
}

func updateSubHeaderSize(s stream.Stream, offset uint64, size uint32) error {
	if err := s.SeekAbs(int64(offset) + sizeFieldOffset); err != nil {
		return bootimg.NewError(bootimg.KindIO, stream.IsFatal(err), "seek to MTK size field", err)
	}
	le := binle.ToLE32(size)
	if _, err := s.WriteFull(le[:]); err != nil {
		return bootimg.NewError(bootimg.KindIO, stream.IsFatal(err), "write MTK size field", err)
	}
	return nil
}

// computeSHA1 walks the entry list in order, re-reading payload bytes from
// the stream, and feeds the digest the same contributions libmbbootimg's
// mtk_writer does per entry type. The ordering is load-bearing: consumers
// validate images by recomputing this exact sequence.
func computeSHA1(s stream.Stream, entries []bootimg.Entry) ([sha1.Size]byte, error) {
	h := sha1.New()
	buf := make([]byte, 10240)

	var kernelSubSize, ramdiskSubSize uint32

	for _, e := range entries {
		remain := e.Size
		if err := s.SeekAbs(int64(e.Offset)); err != nil {
			return [sha1.Size]byte{}, bootimg.NewError(bootimg.KindIO, stream.IsFatal(err), "seek to entry", err)
		}
		for remain > 0 {
			want := remain
			if want > uint64(len(buf)) {
				want = uint64(len(buf))
			}
			n, err := s.ReadFull(buf[:want])
			if err != nil && uint64(n) != want {
				return [sha1.Size]byte{}, bootimg.NewError(bootimg.KindIO, stream.IsFatal(err), "read entry", err)
			}
			h.Write(buf[:n])
			remain -= uint64(n)
		}

		switch e.Type {
		case bootimg.EntryMtkKernelHeader:
			kernelSubSize = uint32(e.Size)
			continue
		case bootimg.EntryMtkRamdiskHeader:
			ramdiskSubSize = uint32(e.Size)
			continue
		case bootimg.EntryKernel:
			le := binle.ToLE32(uint32(e.Size) + kernelSubSize)
			h.Write(le[:])
		case bootimg.EntryRamdisk:
			le := binle.ToLE32(uint32(e.Size) + ramdiskSubSize)
			h.Write(le[:])
		case bootimg.EntrySecondboot:
			le := binle.ToLE32(uint32(e.Size))
			h.Write(le[:])
		case bootimg.EntryDeviceTree:
			if e.Size == 0 {
				continue
			}
			le := binle.ToLE32(uint32(e.Size))
			h.Write(le[:])
		default:
			continue
		}
	}

	var out [sha1.Size]byte
	copy(out[:], h.Sum(nil))
	return out, nil
}
