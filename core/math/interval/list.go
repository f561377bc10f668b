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

// Package interval provides sorted lists of half open uint64 intervals and
// the algorithms that keep them sorted and non-overlapping.
package interval

import "sort"

// List is the interface to an object that can be used as an interval list by
// the algorithms in this package.
type List interface {
	// Length returns the number of intervals in the list.
	Length() int
	// GetSpan returns the span of the interval at index.
	GetSpan(index int) U64Span
}

// MutableList is a List that the algorithms in this package can modify.
type MutableList interface {
	List
	// SetSpan replaces the span of the interval at index.
	SetSpan(index int, span U64Span)
	// Copy moves count intervals from index from to index to.
	Copy(to, from, count int)
	// Resize changes the number of intervals in the list.
	Resize(length int)
}

// Predicate is used as the condition for a Search.
type Predicate func(test U64Span) bool

// Merge adds span to the list, joining it with any intervals it overlaps.
// If joinAdj is true, intervals that only touch span are joined too.
// Merge returns the index of the interval that now holds span.
func Merge(l MutableList, span U64Span, joinAdj bool) int {
	first, last := overlapping(l, span, joinAdj)
	if first < last {
		if lo := l.GetSpan(first); lo.Start < span.Start {
			span.Start = lo.Start
		}
		if hi := l.GetSpan(last - 1); span.End < hi.End {
			span.End = hi.End
		}
	}
	splice(l, first, last-first, 1)
	l.SetSpan(first, span)
	return first
}

// IndexOf returns the index of the interval that contains value, or -1.
func IndexOf(l List, value uint64) int {
	i := sort.Search(l.Length(), func(i int) bool { return value < l.GetSpan(i).Start }) - 1
	if i >= 0 && value < l.GetSpan(i).End {
		return i
	}
	return -1
}

// Search returns the index of the first interval for which t is true. The
// predicate must be false for a prefix of the list and true for the rest.
// If no interval matches, Search returns the list length.
func Search(l List, t Predicate) int {
	return sort.Search(l.Length(), func(i int) bool { return t(l.GetSpan(i)) })
}

// Contains returns true if a single interval of the list covers all of span.
func Contains(l List, span U64Span) bool {
	i := IndexOf(l, span.Start)
	return i >= 0 && span.End <= l.GetSpan(i).End
}

// overlapping returns the index range [first, last) of the intervals that
// share a value with span. With adjacent set, intervals that end where span
// starts or start where it ends are included.
func overlapping(l List, span U64Span, adjacent bool) (first, last int) {
	if adjacent {
		first = Search(l, func(s U64Span) bool { return span.Start <= s.End })
		last = Search(l, func(s U64Span) bool { return span.End < s.Start })
	} else {
		first = Search(l, func(s U64Span) bool { return span.Start < s.End })
		last = Search(l, func(s U64Span) bool { return span.End <= s.Start })
	}
	if last < first {
		first, last = last, first
	}
	return first, last
}

// splice replaces the n intervals at index at with m intervals whose spans
// are left for the caller to set.
func splice(l MutableList, at, n, m int) {
	if n == m {
		return
	}
	size := l.Length()
	tail := size - at - n
	if m > n {
		l.Resize(size + m - n)
	}
	l.Copy(at+m, at+n, tail)
	if m < n {
		l.Resize(size + m - n)
	}
}
