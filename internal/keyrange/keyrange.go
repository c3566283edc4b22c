// Package keyrange implements the per-connection key acceptance filter
// (component C5): a set of inclusive intervals over the 64-bit key-code
// space supporting add, remove and membership test.
//
// The set is a sorted, non-overlapping slice of intervals rather than an
// interval tree: nothing in the retrieved pack reaches for an interval
// tree library, and the teacher's own small stateful types (e.g.
// internal/pty/turn.go's pending-request slice) favor a plain sorted
// slice over a specialized structure.
package keyrange

import (
	"sort"

	"github.com/brlapi/brlapi-core/internal/wire"
)

// Interval is an inclusive [First, Last] range of key codes, matching the
// wire shape of IGNOREKEYRANGES/ACCEPTKEYRANGES pairs.
type Interval struct {
	First uint64
	Last  uint64
}

// Set is a sorted, coalesced collection of accepted intervals.
type Set struct {
	ranges []Interval
}

// NewEmpty returns a set that accepts nothing.
func NewEmpty() *Set {
	return &Set{}
}

// NewFull returns a set that accepts the entire 64-bit key-code space.
func NewFull() *Set {
	return &Set{ranges: []Interval{{First: 0, Last: ^uint64(0)}}}
}

// Contains reports whether code falls within any accepted interval.
func (s *Set) Contains(code wire.KeyCode) bool {
	c := uint64(code)
	i := sort.Search(len(s.ranges), func(i int) bool {
		return s.ranges[i].Last >= c
	})
	return i < len(s.ranges) && s.ranges[i].First <= c
}

// Accept adds an interval to the set, merging with any overlapping or
// adjacent existing intervals.
func (s *Set) Accept(first, last uint64) {
	s.ranges = merge(append(s.ranges, Interval{First: first, Last: last}))
}

// Ignore removes an interval from the set, splitting any existing
// interval that straddles it.
func (s *Set) Ignore(first, last uint64) {
	var out []Interval
	for _, r := range s.ranges {
		if last < r.First || first > r.Last {
			out = append(out, r)
			continue
		}
		if first > r.First {
			out = append(out, Interval{First: r.First, Last: first - 1})
		}
		if last < r.Last && last != ^uint64(0) {
			out = append(out, Interval{First: last + 1, Last: r.Last})
		}
	}
	s.ranges = out
}

// Ranges returns a copy of the accepted intervals, sorted ascending.
func (s *Set) Ranges() []Interval {
	out := make([]Interval, len(s.ranges))
	copy(out, s.ranges)
	return out
}

func merge(ranges []Interval) []Interval {
	if len(ranges) == 0 {
		return nil
	}
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].First < ranges[j].First })
	out := []Interval{ranges[0]}
	for _, r := range ranges[1:] {
		last := &out[len(out)-1]
		if r.First <= last.Last+1 || r.First <= last.Last {
			if r.Last > last.Last {
				last.Last = r.Last
			}
			continue
		}
		out = append(out, r)
	}
	return out
}
