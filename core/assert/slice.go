// Copyright (C) 2019 Google Inc.
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

package assert

import "reflect"

// OnSlice holds a slice or array under test. The other checks panic if it
// is neither.
type OnSlice struct {
	Assertion
	slice interface{}
}

// ThatSlice starts a test of a slice or array.
func (a Assertion) ThatSlice(slice interface{}) OnSlice {
	return OnSlice{Assertion: a, slice: slice}
}

func (o OnSlice) length() int { return reflect.ValueOf(o.slice).Len() }

// IsEmpty checks that there are no elements.
func (o OnSlice) IsEmpty() bool {
	n := o.length()
	return o.CompareRaw(n, "is", "empty").Test(n == 0)
}

// IsLength checks the number of elements.
func (o OnSlice) IsLength(length int) bool {
	n := o.length()
	return o.Compare(n, "length ==", length).Test(n == length)
}

// Equals compares the elements with ==. The elements must be comparable.
func (o OnSlice) Equals(expect interface{}) bool {
	return o.elements(expect, func(a, b interface{}) bool { return a == b })
}

// DeepEquals compares the elements with reflect.DeepEqual.
func (o OnSlice) DeepEquals(expect interface{}) bool {
	return o.elements(expect, reflect.DeepEqual)
}

// elements lists every element. Missing ones are marked with -, extra ones
// with + and mismatches with *.
func (o OnSlice) elements(expect interface{}, same func(a, b interface{}) bool) bool {
	got, want := reflect.ValueOf(o.slice), reflect.ValueOf(expect)
	ok := true
	for i := 0; i < max(got.Len(), want.Len()); i++ {
		switch {
		case i >= got.Len():
			w := want.Index(i).Interface()
			o.Printf("-\t%d\t\t\t==>\t%T\t", i, w).Println(w)
			ok = false
		case i >= want.Len():
			g := got.Index(i).Interface()
			o.Printf("+\t%d\t%T\t", i, g).Print(g).Rawln("\t;")
			ok = false
		default:
			g, w := got.Index(i).Interface(), want.Index(i).Interface()
			if same(g, w) {
				o.Printf("\t%d\t%T\t", i, g).Print(g).Rawln("\t;")
				continue
			}
			o.Printf("*\t%d\t%T\t", i, g).Print(g).Printf("\t==>\t%T\t", w).Println(w)
			ok = false
		}
	}
	return o.Test(ok)
}
