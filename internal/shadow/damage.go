/*
MIT License

Copyright (c) 2020 Nicolas JUHEL

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in all
copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
SOFTWARE.
*/

package shadow

import "sort"

// Interval is a half-open byte range [Start, End) within a shadow's address
// space.
type Interval struct {
	Start int64
	End   int64
}

// Damage is the union of byte intervals known to differ from the peer's
// copy, plus a whole-object sentinel (spec.md §3). Grounded on
// original_source's damage_everything flag: collapsing "the whole resource
// changed" into one bool avoids letting a long run of small intervals (e.g.
// a full repaint issued one scanline at a time) dominate a collection pass
// with per-interval bookkeeping. Inserts are coalesced eagerly, not lazily
// at collection time, matching the original's sorted-interval merge.
type Damage struct {
	whole  bool
	ranges []Interval
}

// MarkWhole sets the whole-object sentinel, discarding any partial ranges:
// a whole-object mark supersedes all partial damage.
func (d *Damage) MarkWhole() {
	d.whole = true
	d.ranges = nil
}

// IsWhole reports whether the whole-object sentinel is set.
func (d *Damage) IsWhole() bool {
	return d.whole
}

// Empty reports whether the damage set carries no information at all.
func (d *Damage) Empty() bool {
	return !d.whole && len(d.ranges) == 0
}

// Add inserts [start, end) into the set, merging with any overlapping or
// adjacent interval. A no-op once the whole-object sentinel is set.
func (d *Damage) Add(start, end int64) {
	if d.whole || start >= end {
		return
	}

	i := sort.Search(len(d.ranges), func(i int) bool {
		return d.ranges[i].Start > start
	})

	lo, hi := i, i
	if i > 0 && d.ranges[i-1].End >= start {
		lo = i - 1
	}
	for hi < len(d.ranges) && d.ranges[hi].Start <= end {
		hi++
	}

	merged := Interval{Start: start, End: end}
	if lo < len(d.ranges) && lo < hi {
		if d.ranges[lo].Start < merged.Start {
			merged.Start = d.ranges[lo].Start
		}
	}
	for k := lo; k < hi; k++ {
		if d.ranges[k].End > merged.End {
			merged.End = d.ranges[k].End
		}
	}

	out := make([]Interval, 0, len(d.ranges)-(hi-lo)+1)
	out = append(out, d.ranges[:lo]...)
	out = append(out, merged)
	out = append(out, d.ranges[hi:]...)
	d.ranges = out
}

// Ranges returns the partial-damage intervals in ascending order. Returns
// nil if the whole-object sentinel is set (callers must check IsWhole
// first).
func (d *Damage) Ranges() []Interval {
	if d.whole {
		return nil
	}
	return d.ranges
}

// Clear empties the damage set, as finish_update does after a successful
// collection pass (spec.md §3 invariant: "after finish_update the set is
// empty").
func (d *Damage) Clear() {
	d.whole = false
	d.ranges = nil
}
