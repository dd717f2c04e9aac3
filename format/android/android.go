// Package android implements the reader adapter for the plain Android
// boot image format and its two trailing-magic variants (Samsung
// SEAndroid, Bump), mirroring libmbbootimg's android_reader.
package android

import (
	"bytes"
	"strings"

	bootimg "github.com/squidonik/DualBootPatcher"
	"github.com/squidonik/DualBootPatcher/internal/align"
	"github.com/squidonik/DualBootPatcher/internal/binle"
	"github.com/squidonik/DualBootPatcher/internal/segment"
	"github.com/squidonik/DualBootPatcher/stream"
)

const (
	BootMagic     = "ANDROID!"
	BootMagicSize = 8

	boardNameSize = 16
	cmdlineSize   = 512
	extraCmdline  = 1024
	idSize        = 32

	// MaxHeaderOffset bounds how far into the stream the magic may be
	// found; matches libmbbootimg's MAX_HEADER_OFFSET.
	MaxHeaderOffset = 512

	SamsungSEAndroidMagic = "SEANDROID!"
	BumpMagic             = "bump"
)

// headerSize is the on-disk size of the Android top-level header:
// magic(8) + kernel_size/addr(8) + ramdisk_size/addr(8) + second_size/
// addr(8) + tags_addr(4) + page_size(4) + dt_size(4) + 2 reserved(8) +
// name(16) + cmdline(512) + id(32) + extra_cmdline(1024).
const headerSize = 8 + 8 + 8 + 8 + 4 + 4 + 4 + 8 + boardNameSize + cmdlineSize + idSize + extraCmdline

// rawHeader is the Android top-level header, kept in host byte order in
// memory and converted to/from little-endian only at the points it
// touches the stream.
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
	id                       [idSize]byte
	extraCmdline             [extraCmdline]byte
}

func decodeHeader(buf []byte) rawHeader {
	var h rawHeader
	h.kernelSize = binle.FromLE32(buf[8:12])
	h.kernelAddr = binle.FromLE32(buf[12:16])
	h.ramdiskSize = binle.FromLE32(buf[16:20])
	h.ramdiskAddr = binle.FromLE32(buf[20:24])
	h.secondSize = binle.FromLE32(buf[24:28])
	h.secondAddr = binle.FromLE32(buf[28:32])
	h.tagsAddr = binle.FromLE32(buf[32:36])
	h.pageSize = binle.FromLE32(buf[36:40])
	h.dtSize = binle.FromLE32(buf[40:44])
	h.unused0 = binle.FromLE32(buf[44:48])
	h.unused1 = binle.FromLE32(buf[48:52])
	off := 52
	copy(h.name[:], buf[off:off+boardNameSize])
	off += boardNameSize
	copy(h.cmdline[:], buf[off:off+cmdlineSize])
	off += cmdlineSize
	copy(h.id[:], buf[off:off+idSize])
	off += idSize
	copy(h.extraCmdline[:], buf[off:off+extraCmdline])
	return h
}

func nulTerminated(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}

// FindHeader scans the first MaxHeaderOffset+headerSize bytes of s for the
// Android magic and decodes the header at the first match. Returns the
// header and its absolute offset. A bounded, first-match search mirrors
// find_android_header.
func FindHeader(s stream.Stream) (rawHeader, uint64, error) {
	buf := make([]byte, MaxHeaderOffset+headerSize)
	if err := s.SeekAbs(0); err != nil {
		return rawHeader{}, 0, bootimg.NewError(bootimg.KindIO, stream.IsFatal(err), "seek to beginning", err)
	}
	n, err := s.ReadFull(buf)
	if err != nil && n < BootMagicSize {
		return rawHeader{}, 0, bootimg.NewError(bootimg.KindIO, stream.IsFatal(err), "read header", err)
	}
	buf = buf[:n]

	idx := bytes.Index(buf, []byte(BootMagic))
	if idx < 0 || idx > MaxHeaderOffset {
		return rawHeader{}, 0, bootimg.NewErrorf(bootimg.KindFormat, false, "find header",
			"Android magic not found in first %d bytes", MaxHeaderOffset)
	}
	if len(buf)-idx < headerSize {
		return rawHeader{}, 0, bootimg.NewErrorf(bootimg.KindFormat, false, "find header",
			"Android header at %d exceeds file size", idx)
	}

	return decodeHeader(buf[idx : idx+headerSize]), uint64(idx), nil
}

// trailingMagicOffset computes the offset immediately following the
// page-aligned device-tree region, where a trailing magic (SEAndroid or
// Bump) would begin.
func trailingMagicOffset(h rawHeader) uint64 {
	var pos uint64
	pos += uint64(h.pageSize)
	pos += uint64(h.kernelSize)
	pos += align.Page(pos, h.pageSize)
	pos += uint64(h.ramdiskSize)
	pos += align.Page(pos, h.pageSize)
	pos += uint64(h.secondSize)
	pos += align.Page(pos, h.pageSize)
	pos += uint64(h.dtSize)
	pos += align.Page(pos, h.pageSize)
	return pos
}

// findTrailingMagic seeks to the expected trailing-magic offset and
// compares; RET_WARN-equivalent (found=false, err=nil) when the bytes
// there simply don't match, vs. a real I/O error.
func findTrailingMagic(s stream.Stream, h rawHeader, magic string) (found bool, offset uint64, err error) {
	offset = trailingMagicOffset(h)
	if serr := s.SeekAbs(int64(offset)); serr != nil {
		return false, 0, bootimg.NewError(bootimg.KindIO, stream.IsFatal(serr), "seek to trailing magic", serr)
	}
	buf := make([]byte, len(magic))
	n, rerr := s.ReadFull(buf)
	if rerr != nil && n < len(magic) {
		// EOF before the magic could possibly be there: not found, not fatal.
		return false, offset, nil
	}
	return string(buf[:n]) == magic, offset, nil
}

func setHeaderFields(h rawHeader, out *bootimg.Header) bootimg.Status {
	out.SetSupportedFields(bootimg.FieldsBase)

	ok := out.SetBoardName(nulTerminated(h.name[:])) &&
		out.SetKernelCmdline(nulTerminated(h.cmdline[:])) &&
		out.SetPageSize(h.pageSize) &&
		out.SetKernelAddress(h.kernelAddr) &&
		out.SetRamdiskAddress(h.ramdiskAddr) &&
		out.SetSecondbootAddress(h.secondAddr) &&
		out.SetKernelTagsAddress(h.tagsAddr)
	if !ok {
		return bootimg.StatusUnsupported
	}
	return bootimg.StatusOK
}

// Variant distinguishes the two reader bidders that share this file's
// header-discovery/entry-layout code. VariantPlain probes for the
// trailing Samsung SEAndroid magic as a bonus bid on top of the base
// Android magic (mirroring android_reader.cpp, which has no separate
// "seandroid" format); VariantBump probes for the trailing Bump magic
// instead.
type Variant int

const (
	VariantPlain Variant = iota
	VariantBump
)

// Reader is the reader adapter: bid, set_option, read_header, read_entry,
// go_to_entry, read_data, matching libmbbootimg's reader vtable.
type Reader struct {
	variant Variant

	allowTruncatedDT bool // default true: lenient mode

	haveHeaderOffset bool
	headerOffset     uint64
	hdr              rawHeader

	seg segment.Pipeline
}

// NewReader constructs a reader adapter for the given variant. Lenient
// (truncatable device tree) is the default, matching
// mb_bi_reader_enable_format_android.
func NewReader(v Variant) *Reader {
	return &Reader{variant: v, allowTruncatedDT: true}
}

func (r *Reader) Name() string {
	switch r.variant {
	case VariantBump:
		return "android_bump"
	default:
		return "android"
	}
}

// SetOption recognizes "strict"; any other key yields StatusWarn, not an
// error, so callers can probe for support without failing outright.
func (r *Reader) SetOption(key, value string) bootimg.Status {
	if key != "strict" {
		return bootimg.StatusWarn
	}
	lv := strings.ToLower(value)
	strict := lv == "true" || lv == "yes" || lv == "y" || value == "1"
	r.allowTruncatedDT = !strict
	return bootimg.StatusOK
}

// Bid reports bits of evidence this reader has that s is its format. It
// short-circuits with errCannotWin (see ErrCannotWin) if bestBid is already
// at or above the most this bidder could ever offer.
func (r *Reader) Bid(s stream.Stream, bestBid int) (int, error) {
	var ceiling int
	switch r.variant {
	case VariantBump:
		ceiling = (BootMagicSize + len(BumpMagic)) * 8
	default:
		ceiling = (BootMagicSize + len(SamsungSEAndroidMagic)) * 8
	}
	if bestBid >= ceiling {
		return 0, errCannotWin
	}

	hdr, off, err := FindHeader(s)
	if err != nil {
		if e, ok := err.(*bootimg.Error); ok && e.Kind == bootimg.KindFormat {
			return 0, nil
		}
		return 0, err
	}
	r.hdr = hdr
	r.headerOffset = off
	r.haveHeaderOffset = true

	bid := BootMagicSize * 8

	if r.variant == VariantBump {
		found, _, ferr := findTrailingMagic(s, hdr, BumpMagic)
		if ferr != nil {
			return 0, ferr
		}
		if found {
			bid += len(BumpMagic) * 8
		}
	} else {
		found, _, ferr := findTrailingMagic(s, hdr, SamsungSEAndroidMagic)
		if ferr != nil {
			return 0, ferr
		}
		if found {
			bid += len(SamsungSEAndroidMagic) * 8
		}
	}

	return bid, nil
}

// errCannotWin is the sentinel a bidder returns (as the error) when it
// abstains because it can't possibly beat best_bid. Dispatch callers
// should treat this identically to a bid of 0.
var errCannotWin = bootimg.NewErrorf(bootimg.KindArgument, false, "bid", "cannot win")

// ErrCannotWin exposes the sentinel for the reader-dispatch package.
func ErrCannotWin() error { return errCannotWin }

// ReadHeader parses the Android header (re-finding it if Bid was never
// called, e.g. the format was forced) and seeds the pipeline's entry
// table in KERNEL, RAMDISK, [SECONDBOOT], [DEVICE_TREE] order.
func (r *Reader) ReadHeader(s stream.Stream, out *bootimg.Header) error {
	if !r.haveHeaderOffset {
		hdr, off, err := FindHeader(s)
		if err != nil {
			return err
		}
		r.hdr = hdr
		r.headerOffset = off
		r.haveHeaderOffset = true
	}

	if status := setHeaderFields(r.hdr, out); status != bootimg.StatusOK {
		return bootimg.NewErrorf(bootimg.KindInternal, true, "read_header", "failed to set header fields")
	}

	pageSize := r.hdr.pageSize

	pos := r.headerOffset + headerSize
	pos += align.Page(pos, pageSize)

	kernelOffset := pos
	pos += uint64(r.hdr.kernelSize)
	pos += align.Page(pos, pageSize)

	ramdiskOffset := pos
	pos += uint64(r.hdr.ramdiskSize)
	pos += align.Page(pos, pageSize)

	secondOffset := pos
	pos += uint64(r.hdr.secondSize)
	pos += align.Page(pos, pageSize)

	dtOffset := pos
	pos += uint64(r.hdr.dtSize)
	pos += align.Page(pos, pageSize)

	r.seg.Clear()

	if err := r.seg.Add(bootimg.EntryKernel, kernelOffset, uint64(r.hdr.kernelSize), true, false, pageSize); err != nil {
		return err
	}
	if err := r.seg.Add(bootimg.EntryRamdisk, ramdiskOffset, uint64(r.hdr.ramdiskSize), true, false, pageSize); err != nil {
		return err
	}
	if r.hdr.secondSize > 0 {
		if err := r.seg.Add(bootimg.EntrySecondboot, secondOffset, uint64(r.hdr.secondSize), true, false, pageSize); err != nil {
			return err
		}
	}
	if r.hdr.dtSize > 0 {
		if err := r.seg.Add(bootimg.EntryDeviceTree, dtOffset, uint64(r.hdr.dtSize), true, r.allowTruncatedDT, pageSize); err != nil {
			return err
		}
	}

	return nil
}

func (r *Reader) ReadEntry(s stream.Stream, out *bootimg.Entry) error {
	return r.seg.ReadEntry(s, out)
}

func (r *Reader) GoToEntry(s stream.Stream, out *bootimg.Entry, typ bootimg.EntryType) error {
	return r.seg.GoToEntry(s, out, typ)
}

func (r *Reader) ReadData(s stream.Stream, buf []byte) (int, error) {
	return r.seg.ReadData(s, buf)
}

// FinishEntry is not part of libmbbootimg's reader vtable, but is exposed
// so the dispatch/CLI layer can apply truncation tolerance and advance the
// cursor after each ReadData pass.
func (r *Reader) FinishEntry(s stream.Stream) error {
	return r.seg.FinishEntry(s, false)
}

func (r *Reader) HeaderOffset() uint64 { return r.headerOffset }
