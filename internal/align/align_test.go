package align

import "testing"

func TestPage(t *testing.T) {
	cases := []struct {
		pos  uint64
		page uint32
		want uint64
	}{
		{0, 2048, 0},
		{1, 2048, 2047},
		{2048, 2048, 0},
		{2049, 2048, 2047},
		{4096, 2048, 0},
		{10, 0, 0},
	}
	for _, c := range cases {
		if got := Page(c.pos, c.page); got != c.want {
			t.Errorf("Page(%d, %d) = %d, want %d", c.pos, c.page, got, c.want)
		}
	}
}
