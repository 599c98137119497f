package extract

import "fmt"

// PageRange is an inclusive [First, Last] interval of 1-indexed pages.
type PageRange struct {
	First int
	Last  int
}

func (r PageRange) String() string {
	return fmt.Sprintf("[%d,%d]", r.First, r.Last)
}

// Valid reports whether the range is well-formed on its own terms.
func (r PageRange) Valid() bool {
	return r.First >= 1 && r.Last >= r.First
}

// Pages is the number of pages the range spans.
func (r PageRange) Pages() int {
	return r.Last - r.First + 1
}

// Clamp bounds the range to a document of totalPages pages. A range
// that starts past the end collapses onto the last page.
func (r PageRange) Clamp(totalPages int) PageRange {
	if totalPages < 1 {
		totalPages = 1
	}
	if r.First < 1 {
		r.First = 1
	}
	if r.First > totalPages {
		r.First = totalPages
	}
	if r.Last > totalPages {
		r.Last = totalPages
	}
	if r.Last < r.First {
		r.Last = r.First
	}
	return r
}

// ChunkRanges splits a document into consecutive windows of size pages:
// [1,size], [size+1, 2*size], ... up to totalPages.
func ChunkRanges(totalPages, size int) []PageRange {
	if totalPages < 1 || size < 1 {
		return nil
	}
	ranges := make([]PageRange, 0, (totalPages+size-1)/size)
	for first := 1; first <= totalPages; first += size {
		last := first + size - 1
		if last > totalPages {
			last = totalPages
		}
		ranges = append(ranges, PageRange{First: first, Last: last})
	}
	return ranges
}
