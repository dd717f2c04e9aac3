// Package segment implements the shared segment pipeline: the ordered
// sequence of typed payload regions that every format adapter in
// format/android and format/mtk drives identically for reading and
// writing, the same entry-table abstraction libmbbootimg's segment writer
// and reader share across formats.
package segment

import (
	"io"

	bootimg "github.com/squidonik/DualBootPatcher"
	"github.com/squidonik/DualBootPatcher/internal/align"
	"github.com/squidonik/DualBootPatcher/stream"
)

// Pipeline holds the ordered entry table, the traversal cursor, and the
// per-entry read/write accumulators. It is composed by value into both the
// Android reader context and the MTK writer context: no inheritance
// required to share it across formats.
type Pipeline struct {
	entries []bootimg.Entry
	cursor  int

	// writeAccum counts bytes written so far into the entry currently
	// being written; readRemain counts bytes left to read from the
	// entry currently being read.
	writeAccum uint64
	readRemain uint64

	// started marks whether write_entry/read_entry has been called for
	// the entry at cursor yet (vs. only having been advanced to).
	started bool
}

// Clear resets the pipeline to empty. Called at the top of every
// read_header/write_header so retries after a recoverable failure are
// safe.
func (p *Pipeline) Clear() {
	p.entries = nil
	p.cursor = 0
	p.writeAccum = 0
	p.readRemain = 0
	p.started = false
}

// Size returns the number of registered entries.
func (p *Pipeline) Size() int { return len(p.entries) }

// Get returns a copy of the entry at index i.
func (p *Pipeline) Get(i int) bootimg.Entry { return p.entries[i] }

// Entries returns the full entry table, for callers (e.g. the MTK SHA-1
// pass) that need to walk it directly.
func (p *Pipeline) Entries() []bootimg.Entry { return p.entries }

// Current returns the entry the cursor currently points at, or nil once
// every entry has been finished.
func (p *Pipeline) Current() *bootimg.Entry {
	if p.cursor >= len(p.entries) {
		return nil
	}
	return &p.entries[p.cursor]
}

// SetOffset records the absolute stream offset the current entry starts
// at. Writers call this right after GetEntry, since a writer entry's
// offset isn't known until the stream position reaches it.
func (p *Pipeline) SetOffset(off uint64) {
	if cur := p.Current(); cur != nil {
		cur.Offset = off
	}
}

// LastFinished returns the entry FinishEntry most recently advanced past,
// or nil if none has finished yet. Used by writers that need to fold the
// just-finished entry's size into a format header after finalizing it.
func (p *Pipeline) LastFinished() *bootimg.Entry {
	if p.cursor == 0 {
		return nil
	}
	return &p.entries[p.cursor-1]
}

// Add appends an entry to the table. Duplicate types are rejected (fatal
// format error), matching the source's entries_add.
func (p *Pipeline) Add(typ bootimg.EntryType, offset, size uint64, sizeSet bool, canTruncate bool, alignment uint32) error {
	for _, e := range p.entries {
		if e.Type == typ {
			return bootimg.NewErrorf(bootimg.KindFormat, true, "entries_add",
				"duplicate entry type %s", typ)
		}
	}
	p.entries = append(p.entries, bootimg.Entry{
		Type:           typ,
		Offset:         offset,
		Size:           size,
		SizeSet:        sizeSet,
		CanBeTruncated: canTruncate,
		Alignment:      alignment,
	})
	return nil
}

// GetEntry materializes the entry at the cursor (the next one to write),
// without touching the stream or moving the cursor; only FinishEntry
// advances it. Used on the write side, where the caller
// seeks implicitly by virtue of sequential writes.
func (p *Pipeline) GetEntry(out *bootimg.Entry) error {
	if p.cursor >= len(p.entries) {
		return bootimg.NewErrorf(bootimg.KindFormat, false, "get_entry", "no more entries")
	}
	*out = p.entries[p.cursor]
	p.writeAccum = 0
	p.started = false
	return nil
}

// ReadEntry materializes the entry at the cursor (the next one to read)
// and seeks s to its offset, so a caller can start reading immediately.
// The cursor itself only moves on FinishEntry.
func (p *Pipeline) ReadEntry(s stream.Stream, out *bootimg.Entry) error {
	if p.cursor >= len(p.entries) {
		return bootimg.NewErrorf(bootimg.KindFormat, false, "read_entry", "no more entries")
	}
	e := p.entries[p.cursor]
	if err := s.SeekAbs(int64(e.Offset)); err != nil {
		return bootimg.NewError(bootimg.KindIO, stream.IsFatal(err), "seek to entry", err)
	}
	*out = e
	p.readRemain = e.Size
	p.started = true
	return nil
}

// GoToEntry is the random-access read variant: seek directly to the entry
// of the given type, wherever the cursor currently sits.
func (p *Pipeline) GoToEntry(s stream.Stream, out *bootimg.Entry, typ bootimg.EntryType) error {
	for i, e := range p.entries {
		if e.Type == typ {
			if err := s.SeekAbs(int64(e.Offset)); err != nil {
				return bootimg.NewError(bootimg.KindIO, stream.IsFatal(err), "seek to entry", err)
			}
			p.cursor = i
			p.readRemain = e.Size
			p.started = true
			*out = e
			return nil
		}
	}
	return bootimg.NewErrorf(bootimg.KindFormat, false, "go_to_entry", "no entry of type %s", typ)
}

// WriteEntry begins writing the current entry. The passed-in entry is
// informational only (size-unknown entries are streamed via WriteData and
// finalized by FinishEntry); it must name the same type as the current
// entry, or this is a sequencing error.
func (p *Pipeline) WriteEntry(e bootimg.Entry) error {
	cur := p.Current()
	if cur == nil {
		return bootimg.NewErrorf(bootimg.KindFormat, true, "write_entry", "no current entry")
	}
	if cur.Type != e.Type {
		return bootimg.NewErrorf(bootimg.KindFormat, true, "write_entry",
			"entry type mismatch: current %s, got %s", cur.Type, e.Type)
	}
	p.writeAccum = 0
	p.started = true
	return nil
}

// WriteData appends payload bytes into the current entry, advancing the
// per-entry write accumulator. Writing to an entry other than the current
// one is a sequencing error.
func (p *Pipeline) WriteData(s stream.Stream, buf []byte) (int, error) {
	if p.Current() == nil || !p.started {
		return 0, bootimg.NewErrorf(bootimg.KindFormat, true, "write_data", "no entry is being written")
	}
	n, err := s.WriteFull(buf)
	if err != nil {
		return n, bootimg.NewError(bootimg.KindIO, stream.IsFatal(err), "write data", err)
	}
	p.writeAccum += uint64(n)
	return n, nil
}

// ReadData reads up to min(len(buf), remaining) bytes from the current
// entry. A short read is returned verbatim so the caller (format adapter)
// can apply its own truncation tolerance.
func (p *Pipeline) ReadData(s stream.Stream, buf []byte) (int, error) {
	if p.Current() == nil || !p.started {
		return 0, bootimg.NewErrorf(bootimg.KindFormat, true, "read_data", "no entry is being read")
	}
	want := uint64(len(buf))
	if want > p.readRemain {
		want = p.readRemain
	}
	if want == 0 {
		return 0, nil
	}
	n, err := s.ReadFull(buf[:want])
	p.readRemain -= uint64(n)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return n, bootimg.NewError(bootimg.KindIO, stream.IsFatal(err), "read data", err)
	}
	return n, nil
}

// FinishEntry finalizes the current entry: records its size, pads to the
// next alignment boundary (write side only - padding is skipped, not
// validated, on the read side), and advances the cursor. Only a
// successful FinishEntry advances the pipeline.
//
// Padding is computed from the stream's actual absolute position, not
// from the entry's own byte count: a format like MTK interleaves
// unaligned sub-headers (alignment 0) between page-aligned payloads, so
// an entry does not always begin at a multiple of its own alignment.
func (p *Pipeline) FinishEntry(s stream.Stream, write bool) error {
	cur := p.Current()
	if cur == nil {
		return bootimg.NewErrorf(bootimg.KindFormat, true, "finish_entry", "no current entry")
	}

	if write {
		cur.Size = p.writeAccum
		cur.SizeSet = true
		p.entries[p.cursor] = *cur

		pos, err := s.Offset()
		if err != nil {
			return bootimg.NewError(bootimg.KindIO, stream.IsFatal(err), "query offset", err)
		}
		pad := align.Page(uint64(pos), cur.Alignment)
		if pad > 0 {
			if _, err := s.WriteFull(make([]byte, pad)); err != nil {
				return bootimg.NewError(bootimg.KindIO, stream.IsFatal(err), "write padding", err)
			}
		}
	} else {
		if p.readRemain > 0 {
			if cur.CanBeTruncated {
				// Short read already surfaced and tolerated by
				// the caller; nothing further to validate.
			} else {
				return bootimg.NewErrorf(bootimg.KindFormat, false, "finish_entry",
					"short read of entry %s: %d bytes remaining", cur.Type, p.readRemain)
			}
		}
		pos, err := s.Offset()
		if err != nil {
			return bootimg.NewError(bootimg.KindIO, stream.IsFatal(err), "query offset", err)
		}
		pad := align.Page(uint64(pos), cur.Alignment)
		if pad > 0 {
			if err := s.SeekRel(int64(pad)); err != nil {
				return bootimg.NewError(bootimg.KindIO, stream.IsFatal(err), "skip padding", err)
			}
		}
	}

	p.cursor++
	p.started = false
	p.writeAccum = 0
	p.readRemain = 0
	return nil
}
