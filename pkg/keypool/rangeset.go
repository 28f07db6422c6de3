package keypool

import (
	"fmt"
	"math"
	"slices"
	"sort"
)

// Handle is a non-negative integer identifying an allocated slot.
type Handle int64

// Unbounded is the default ceiling of a domain.
const Unbounded Handle = math.MaxInt64

// Range is an inclusive interval [Start, End] of free handles.
type Range struct {
	Start Handle `json:"start"`
	End   Handle `json:"end"`
}

// Contains reports whether h lies within the range.
func (r Range) Contains(h Handle) bool {
	return h >= r.Start && h <= r.End
}

func (r Range) String() string {
	if r.Start == r.End {
		return fmt.Sprintf("[%d]", r.Start)
	}
	return fmt.Sprintf("[%d,%d]", r.Start, r.End)
}

// RangeSet holds the free handles of a domain [0, ceiling] as ranges sorted
// by Start. Ranges never overlap and never touch: two ranges with
// End+1 == Start are always merged.
type RangeSet struct {
	ranges  []Range
	ceiling Handle
}

// NewRangeSet returns a set in which every handle of [0, ceiling] is free.
// A negative ceiling yields an empty domain.
func NewRangeSet(ceiling Handle) *RangeSet {
	s := &RangeSet{ceiling: ceiling}
	if ceiling >= 0 {
		s.ranges = []Range{{Start: 0, End: ceiling}}
	}
	return s
}

// Ceiling returns the highest handle of the domain.
func (s *RangeSet) Ceiling() Handle {
	return s.ceiling
}

// Len returns the number of stored ranges.
func (s *RangeSet) Len() int {
	return len(s.ranges)
}

// Ranges returns a copy of the stored ranges in ascending order.
func (s *RangeSet) Ranges() []Range {
	return slices.Clone(s.ranges)
}

// search returns the index of the first range ending at or after h.
// When h is not free that index is also where a singleton [h,h] belongs.
func (s *RangeSet) search(h Handle) int {
	return sort.Search(len(s.ranges), func(i int) bool {
		return s.ranges[i].End >= h
	})
}

func (s *RangeSet) inDomain(h Handle) bool {
	return h >= 0 && h <= s.ceiling
}

// IsFree reports whether h is covered by one of the ranges.
func (s *RangeSet) IsFree(h Handle) bool {
	i := s.search(h)
	return i < len(s.ranges) && s.ranges[i].Start <= h
}

// LowestFree returns the lowest free handle without taking it.
func (s *RangeSet) LowestFree() (Handle, bool) {
	if len(s.ranges) == 0 {
		return 0, false
	}
	return s.ranges[0].Start, true
}

// TakeLowest removes and returns the lowest free handle.
func (s *RangeSet) TakeLowest() (Handle, error) {
	if len(s.ranges) == 0 {
		return 0, ErrPoolExhausted
	}
	first := &s.ranges[0]
	h := first.Start
	if first.Start == first.End {
		s.ranges = slices.Delete(s.ranges, 0, 1)
	} else {
		first.Start++
	}
	return h, nil
}

// GiveBack marks h as free again, merging it with the neighbouring ranges
// when they are contiguous. Giving back a handle that is already free, or
// that lies outside the domain, fails with ErrInvalidKey and leaves the set
// untouched.
func (s *RangeSet) GiveBack(h Handle) error {
	if !s.inDomain(h) {
		return keyErr("give back", h, ErrInvalidKey)
	}
	i := s.search(h)
	if i < len(s.ranges) && s.ranges[i].Start <= h {
		return keyErr("give back", h, ErrInvalidKey)
	}
	// ranges[i-1].End < h < ranges[i].Start
	joinPrev := i > 0 && s.ranges[i-1].End+1 == h
	joinNext := i < len(s.ranges) && s.ranges[i].Start-1 == h
	switch {
	case joinPrev && joinNext:
		s.ranges[i-1].End = s.ranges[i].End
		s.ranges = slices.Delete(s.ranges, i, i+1)
	case joinPrev:
		s.ranges[i-1].End = h
	case joinNext:
		s.ranges[i].Start = h
	default:
		s.ranges = slices.Insert(s.ranges, i, Range{Start: h, End: h})
	}
	return nil
}

// Reserve removes a single free handle from the set, splitting its range
// if needed. It fails with ErrInvalidKey when h is not free.
func (s *RangeSet) Reserve(h Handle) error {
	return s.ReserveRange(h, h)
}

// ReserveRange removes every handle of [lo, hi] from the set. All of them
// must currently be free; since free ranges are maximal they then belong to
// a single stored range.
func (s *RangeSet) ReserveRange(lo, hi Handle) error {
	if lo > hi || !s.inDomain(lo) || !s.inDomain(hi) {
		return keyErr("reserve", lo, ErrInvalidKey)
	}
	i := s.search(lo)
	if i >= len(s.ranges) || s.ranges[i].Start > lo || s.ranges[i].End < hi {
		return keyErr("reserve", lo, ErrInvalidKey)
	}
	r := s.ranges[i]
	switch {
	case r.Start == lo && r.End == hi:
		s.ranges = slices.Delete(s.ranges, i, i+1)
	case r.Start == lo:
		s.ranges[i].Start = hi + 1
	case r.End == hi:
		s.ranges[i].End = lo - 1
	default:
		s.ranges[i].End = lo - 1
		s.ranges = slices.Insert(s.ranges, i+1, Range{Start: hi + 1, End: r.End})
	}
	return nil
}
