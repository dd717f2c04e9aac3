package reader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bootimg "github.com/squidonik/DualBootPatcher"
	"github.com/squidonik/DualBootPatcher/format/android"
	"github.com/squidonik/DualBootPatcher/stream"
)

// fakeFormat is a minimal Format stub so bidding logic can be exercised
// without constructing real on-disk images for every case.
type fakeFormat struct {
	name string
	bid  int
	err  error
}

func (f *fakeFormat) Name() string { return f.name }
func (f *fakeFormat) Bid(s stream.Stream, bestBid int) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.bid, nil
}
func (f *fakeFormat) SetOption(key, value string) bootimg.Status { return bootimg.StatusOK }
func (f *fakeFormat) ReadHeader(s stream.Stream, out *bootimg.Header) error { return nil }
func (f *fakeFormat) ReadEntry(s stream.Stream, out *bootimg.Entry) error   { return nil }
func (f *fakeFormat) GoToEntry(s stream.Stream, out *bootimg.Entry, typ bootimg.EntryType) error {
	return nil
}
func (f *fakeFormat) ReadData(s stream.Stream, buf []byte) (int, error) { return 0, nil }
func (f *fakeFormat) FinishEntry(s stream.Stream) error                { return nil }

func TestBidExactlyOneWinner(t *testing.T) {
	r := &Registry{}
	r.Register(&fakeFormat{name: "low", bid: 5})
	r.Register(&fakeFormat{name: "high", bid: 10})
	r.Register(&fakeFormat{name: "mid", bid: 3})

	winner, err := r.Bid(nil)
	require.NoError(t, err)
	assert.Equal(t, "high", winner.Name())
}

func TestBidNoFormatMatched(t *testing.T) {
	r := &Registry{}
	r.Register(&fakeFormat{name: "a", bid: 0})
	r.Register(&fakeFormat{name: "b", bid: 0})

	_, err := r.Bid(nil)
	assert.Equal(t, ErrNoFormatMatched, err)
}

func TestBidTieGoesToEarlierRegistration(t *testing.T) {
	r := &Registry{}
	r.Register(&fakeFormat{name: "first", bid: 7})
	r.Register(&fakeFormat{name: "second", bid: 7})

	winner, err := r.Bid(nil)
	require.NoError(t, err)
	assert.Equal(t, "first", winner.Name())
}

func TestBidCannotWinIsSkippedNotFatal(t *testing.T) {
	r := &Registry{}
	r.Register(&fakeFormat{name: "abstains", err: android.ErrCannotWin()})
	r.Register(&fakeFormat{name: "wins", bid: 4})

	winner, err := r.Bid(nil)
	require.NoError(t, err)
	assert.Equal(t, "wins", winner.Name())
}

func TestBidPropagatesOtherErrors(t *testing.T) {
	wantErr := bootimg.NewErrorf(bootimg.KindIO, true, "bid", "disk on fire")
	r := &Registry{}
	r.Register(&fakeFormat{name: "broken", err: wantErr})

	_, err := r.Bid(nil)
	assert.Equal(t, wantErr, err)
}

func TestNewDefaultRegistryRegistersPlainAndBump(t *testing.T) {
	reg := NewDefaultRegistry()
	require.Len(t, reg.formats, 2)
	assert.Equal(t, "android", reg.formats[0].Name())
	assert.Equal(t, "android_bump", reg.formats[1].Name())
}
