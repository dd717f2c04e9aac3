// Package reader implements the reader-dispatch ("bidding") protocol: when
// the caller hasn't forced a format, every enabled reader adapter bids on
// the stream and the highest bid wins, the same way libmbbootimg picks a
// boot image format automatically.
package reader

import (
	bootimg "github.com/squidonik/DualBootPatcher"
	"github.com/squidonik/DualBootPatcher/format/android"
	"github.com/squidonik/DualBootPatcher/stream"
)

// Format is the capability set a reader adapter exposes to dispatch and to
// callers once a format has won (or been forced). Mirrors libmbbootimg's
// reader vtable.
type Format interface {
	Name() string
	Bid(s stream.Stream, bestBid int) (int, error)
	SetOption(key, value string) bootimg.Status
	ReadHeader(s stream.Stream, out *bootimg.Header) error
	ReadEntry(s stream.Stream, out *bootimg.Entry) error
	GoToEntry(s stream.Stream, out *bootimg.Entry, typ bootimg.EntryType) error
	ReadData(s stream.Stream, buf []byte) (int, error)
	FinishEntry(s stream.Stream) error
}

// Registry holds an ordered collection of reader adapters. On a tie, the
// earlier-registered adapter wins.
type Registry struct {
	formats []Format
}

// NewDefaultRegistry returns a registry with the plain Android bidder
// (which already folds in the SEAndroid trailing-magic bonus bid) and
// the Bump bidder registered, in that order.
func NewDefaultRegistry() *Registry {
	reg := &Registry{}
	reg.Register(android.NewReader(android.VariantPlain))
	reg.Register(android.NewReader(android.VariantBump))
	return reg
}

// Register appends a reader adapter to the registry.
func (r *Registry) Register(f Format) {
	r.formats = append(r.formats, f)
}

// ErrNoFormatMatched is returned when every bidder returns a bid of 0.
var ErrNoFormatMatched = bootimg.NewErrorf(bootimg.KindFormat, false, "bid", "no format matched")

// Bid runs every registered adapter against s and returns the winner. No
// partial state persists if dispatch fails: either exactly one bidder
// wins with a bid > 0, or ErrNoFormatMatched is returned. A bidder error
// other than ErrCannotWin stops dispatch and is returned as-is.
func (r *Registry) Bid(s stream.Stream) (Format, error) {
	var best Format
	bestBid := 0

	for _, f := range r.formats {
		bid, err := f.Bid(s, bestBid)
		if err != nil {
			if err == android.ErrCannotWin() {
				continue
			}
			return nil, err
		}
		if bid > bestBid {
			bestBid = bid
			best = f
		}
	}

	if bestBid <= 0 || best == nil {
		return nil, ErrNoFormatMatched
	}
	return best, nil
}
