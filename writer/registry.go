// Package writer is the writer-side counterpart to package reader: formats
// are selected by name rather than bid, since a writer's output format is
// always an explicit choice, never detected.
package writer

import (
	bootimg "github.com/squidonik/DualBootPatcher"
	"github.com/squidonik/DualBootPatcher/format/mtk"
	"github.com/squidonik/DualBootPatcher/stream"
)

// Format is the writer capability set: get_header, write_header,
// get_entry, write_entry, write_data, finish_entry, close.
type Format interface {
	Name() string
	GetHeader() *bootimg.Header
	WriteHeader(s stream.Stream, header *bootimg.Header) error
	GetEntry(s stream.Stream, out *bootimg.Entry) error
	WriteEntry(entry bootimg.Entry) error
	WriteData(s stream.Stream, buf []byte) (int, error)
	FinishEntry(s stream.Stream) error
	Close(s stream.Stream) error
}

// Registry is a name -> constructor map of enabled writer formats.
type Registry struct {
	ctors map[string]func() Format
}

// NewDefaultRegistry returns a registry with the MTK writer registered
// under the name "mtk".
func NewDefaultRegistry() *Registry {
	r := &Registry{ctors: map[string]func() Format{}}
	r.Register("mtk", func() Format { return mtk.NewWriter() })
	return r
}

func (r *Registry) Register(name string, ctor func() Format) {
	r.ctors[name] = ctor
}

// New instantiates a fresh Format for the named writer, or an error if the
// format isn't registered.
func (r *Registry) New(name string) (Format, error) {
	ctor, ok := r.ctors[name]
	if !ok {
		return nil, bootimg.NewErrorf(bootimg.KindArgument, false, "writer.New", "unknown writer format %q", name)
	}
	return ctor(), nil
}
