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

package interval

// ValueSpan is an interval that carries a value.
type ValueSpan[V comparable] struct {
	Span  U64Span
	Value V
}

// ValueSpanList is a sorted list of non-overlapping intervals, each carrying
// a value. It implements List.
type ValueSpanList[V comparable] []ValueSpan[V]

func (l *ValueSpanList[V]) Length() int               { return len(*l) }
func (l *ValueSpanList[V]) GetSpan(index int) U64Span { return (*l)[index].Span }

func (l *ValueSpanList[V]) insert(index int, count int) {
	*l = append(*l, make(ValueSpanList[V], count)...)
	copy((*l)[index+count:], (*l)[index:])
}

func (l *ValueSpanList[V]) delete(index int, count int) {
	copy((*l)[index:], (*l)[index+count:])
	*l = (*l)[:len(*l)-count]
}

// Find returns the value and span of the interval that contains v.
func (l *ValueSpanList[V]) Find(v uint64) (V, U64Span, bool) {
	if i := IndexOf(l, v); i >= 0 {
		e := (*l)[i]
		return e.Value, e.Span, true
	}
	var zero V
	return zero, U64Span{}, false
}

// Set assigns value to every point of span, replacing whatever was there.
func (l *ValueSpanList[V]) Set(span U64Span, value V) {
	Update(l, span, func(V, bool) (V, bool) { return value, true })
}

// Clear removes every point of span from the list.
func (l *ValueSpanList[V]) Clear(span U64Span) {
	Update(l, span, func(V, bool) (V, bool) {
		var zero V
		return zero, false
	})
}

// Update modifies the values in `span` by applying the function `f`.
//   - f is called with ok false for the parts of `span` that are outside the
//     intervals in `l`.
//   - If `f` returns ok false, the corresponding span is removed.
//   - Adjacent intervals with the same value are merged.
func Update[V comparable](l *ValueSpanList[V], span U64Span, f func(old V, ok bool) (V, bool)) {
	var none V
	k := Search(l, func(test U64Span) bool {
		return span.Start < test.End
	})
	elems := ValueSpanList[V]{}

	add := func(val V, ok bool, start, end uint64) {
		if start >= end {
			return
		}
		span.Start = end
		if !ok {
			return
		}
		if n := len(elems); n > 0 {
			e := &elems[n-1]
			if e.Value == val && e.Span.End == start {
				e.Span.End = end
				return
			}
		}
		elems = append(elems, ValueSpan[V]{U64Span{start, end}, val})
	}

	i := k
	if i < len(*l) {
		// The part of the first interval before `span`.
		add((*l)[i].Value, true, (*l)[i].Span.Start, span.Start)
	}
	for ; i < len(*l); i++ {
		cur := (*l)[i]
		if cur.Span.Start >= span.End {
			break
		}
		v, ok := f(none, false)
		add(v, ok, span.Start, cur.Span.Start)
		v, ok = f(cur.Value, true)
		add(v, ok, span.Start, min(cur.Span.End, span.End))
		if cur.Span.End > span.End {
			add(cur.Value, true, span.End, cur.Span.End)
		}
	}
	v, ok := f(none, false)
	add(v, ok, span.Start, span.End)

	if k > 0 && len(elems) > 0 {
		prev, e := &(*l)[k-1], elems[0]
		if prev.Span.End == e.Span.Start && prev.Value == e.Value {
			prev.Span.End = e.Span.End
			elems = elems[1:]
		}
	}
	if i < len(*l) && len(elems) > 0 {
		next, e := &(*l)[i], elems[len(elems)-1]
		if next.Span.Start == e.Span.End && next.Value == e.Value {
			next.Span.Start = e.Span.Start
			elems = elems[:len(elems)-1]
		}
	}
	if len(elems) == 0 && k > 0 && i < len(*l) {
		prev, next := &(*l)[k-1], (*l)[i]
		if prev.Span.End == next.Span.Start && prev.Value == next.Value {
			prev.Span.End = next.Span.End
			i++
		}
	}

	// Elements [k,i) are replaced by elems.
	switch removed := i - k; {
	case len(elems) > removed:
		l.insert(k, len(elems)-removed)
	case len(elems) < removed:
		l.delete(k, removed-len(elems))
	}
	copy((*l)[k:], elems)
}
