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

// OnInteger holds an int under test. Counts, lengths and indices are
// checked this way, while register values go through ThatWord.
type OnInteger struct {
	Assertion
	value int
}

// ThatInteger starts a test of an int.
func (a Assertion) ThatInteger(value int) OnInteger {
	return OnInteger{Assertion: a, value: value}
}

// Equals checks that the int is expect.
func (o OnInteger) Equals(expect int) bool {
	return o.Compare(o.value, "==", expect).Test(o.value == expect)
}

// IsBetween checks that lo <= value <= hi.
func (o OnInteger) IsBetween(lo, hi int) bool {
	return o.CompareRaw(o.value, "in", lo, "to", hi).Test(lo <= o.value && o.value <= hi)
}
