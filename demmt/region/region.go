// Copyright (C) 2017 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package region tracks the byte ranges of a buffer written since the last
// flush.
//
// A Set keeps its regions sorted by start. Regions never overlap and never
// touch: a write that reaches or overlaps a neighbour is merged into it.
package region

import (
	"fmt"

	"github.com/envytools/demmt/core/fault"
	"github.com/envytools/demmt/core/math/interval"
	"github.com/pkg/errors"
)

// ErrCorrupt is returned when a Set no longer holds its ordering invariant
// after an insertion.
const ErrCorrupt = fault.Const("Region set corrupted")

// Region is a half open byte range [Start, End).
type Region = interval.U64Span

// Set is an ordered list of non-overlapping, non-adjacent regions.
// The zero value is an empty set.
type Set struct {
	list interval.U64SpanList
}

// Insert adds the range [start, start+length) to the set, merging it with
// any region it overlaps or touches. Inserting an empty range does nothing.
func (s *Set) Insert(start, length uint64) error {
	if length == 0 {
		return nil
	}
	span := Region{Start: start, End: start + length}
	if span.End < span.Start {
		return errors.Wrapf(ErrCorrupt, "range 0x%x+0x%x overflows", start, length)
	}
	n := len(s.list)
	switch {
	case n == 0:
		s.list = append(s.list, span)
	case span.Start == s.list[n-1].End:
		// Sequential writes land here.
		s.list[n-1].End = span.End
	case span.Start > s.list[n-1].End:
		s.list = append(s.list, span)
	default:
		interval.Merge(&s.list, span, true)
	}
	return s.check(span)
}

func (s *Set) check(inserted Region) error {
	for i, r := range s.list {
		if r.Start >= r.End {
			return errors.Wrapf(ErrCorrupt, "empty region %s", format(r))
		}
		if i > 0 && s.list[i-1].End >= r.Start {
			return errors.Wrapf(ErrCorrupt, "region %s does not follow %s", format(r), format(s.list[i-1]))
		}
	}
	if !interval.Contains(s.list, inserted) {
		return errors.Wrapf(ErrCorrupt, "range %s not covered", format(inserted))
	}
	return nil
}

// Check verifies the ordering invariant of the whole set.
func (s *Set) Check() error {
	if len(s.list) == 0 {
		return nil
	}
	return s.check(s.list[0])
}

// Empty returns true if no writes are pending.
func (s *Set) Empty() bool { return len(s.list) == 0 }

// Len returns the number of regions in the set.
func (s *Set) Len() int { return len(s.list) }

// Regions returns the regions in ascending order. The slice is owned by the
// set and is only valid until the next Insert or Clear.
func (s *Set) Regions() []Region { return s.list }

// Clear removes every region.
func (s *Set) Clear() { s.list = s.list[:0] }

// Contains returns true if every byte of [start, start+length) is covered.
func (s *Set) Contains(start, length uint64) bool {
	return interval.Contains(s.list, Region{Start: start, End: start + length})
}

func (s *Set) String() string {
	out := ""
	for i, r := range s.list {
		if i > 0 {
			out += " "
		}
		out += format(r)
	}
	return out
}

func format(r Region) string { return fmt.Sprintf("[0x%x, 0x%x)", r.Start, r.End) }
