// Package ramdisk holds CLI-only ramdisk compression helpers. They live
// outside the core codec engine (format/android, format/mtk) and are
// never called by it: the engine passes ramdisk payloads through
// untouched, per spec's non-goal that it does not re-encode them. This
// package exists only so cmd/bootimg can report what a ramdisk is and,
// for gzip, round-trip it. Adapted from the teacher's compress.go/
// unpack.go.
package ramdisk

import (
	"bytes"
	"fmt"
	"io"

	"github.com/cavaliergopher/cpio"
	gzip "github.com/klauspost/pgzip"
)

// CompressionKind identifies a ramdisk payload's compression format.
type CompressionKind int

const (
	Gzip CompressionKind = iota
	Lz4
	Lzo
	Xz
	Bzip2
	Lzma
	Unknown
)

func (k CompressionKind) String() string {
	switch k {
	case Gzip:
		return "gzip"
	case Lz4:
		return "lz4"
	case Lzo:
		return "lzo"
	case Xz:
		return "xz"
	case Bzip2:
		return "bzip2"
	case Lzma:
		return "lzma"
	default:
		return "unknown"
	}
}

// Detect identifies the compression format of a ramdisk from its leading
// magic bytes, same cases as the teacher's DetectCompressor.
func Detect(payload []byte) CompressionKind {
	if len(payload) < 2 {
		return Unknown
	}
	switch fmt.Sprintf("%02x%02x", payload[0], payload[1]) {
	case "425a":
		return Bzip2
	case "1f8b", "1f9e":
		return Gzip
	case "0422":
		return Lz4
	case "894c":
		return Lzo
	case "5d00":
		return Lzma
	case "fd37":
		return Xz
	default:
		return Unknown
	}
}

// Decompress extracts a gzip-compressed ramdisk. Other compression kinds
// are reported as unsupported, same as the teacher's CompressRamdisk did
// for its non-gzip branches.
func Decompress(payload []byte, kind CompressionKind) ([]byte, error) {
	if kind != Gzip {
		return nil, fmt.Errorf("ramdisk compression format %s is not supported", kind)
	}

	r, err := gzip.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("preparing to extract ramdisk: %w", err)
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("extracting ramdisk: %w", err)
	}
	return out, nil
}

// ListEntries reads the names of every file in a cpio-archive ramdisk
// (an Android ramdisk's actual on-disk format, once decompressed). Entries
// are returned in archive order; the cpio trailer record is consumed by
// the reader and never appears in the result.
func ListEntries(cpioPayload []byte) ([]string, error) {
	r := cpio.NewReader(bytes.NewReader(cpioPayload))
	var names []string
	for {
		hdr, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("listing ramdisk entries: %w", err)
		}
		names = append(names, hdr.Name)
	}
	return names, nil
}

// Compress re-compresses a ramdisk as gzip at best compression, same as
// the teacher's CompressRamdisk gzip branch.
func Compress(payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("preparing to compress ramdisk: %w", err)
	}

	if _, err := w.Write(payload); err != nil {
		return nil, fmt.Errorf("compressing ramdisk: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("cleaning up ramdisk compression: %w", err)
	}

	return buf.Bytes(), nil
}
