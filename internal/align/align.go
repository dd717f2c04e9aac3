// Package align provides the alignment helper the segment pipeline and
// format adapters use to pad entries to a page boundary.
package align

// Page computes the padding length needed to bring pos up to the next
// multiple of page: (-pos) mod page, in 64-bit arithmetic. page of 0 means
// "not aligned" and always yields 0 padding.
func Page(pos uint64, page uint32) uint64 {
	if page == 0 {
		return 0
	}
	p := uint64(page)
	rem := pos % p
	if rem == 0 {
		return 0
	}
	return p - rem
}
