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

import "fmt"

// OnWord holds a register value, method offset or address under test. Words
// are reported in hex.
type OnWord struct {
	Assertion
	value uint64
}

// Word is the set of unsigned types accepted by ThatWord.
type Word interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uint
}

// ThatWord starts a test of a word.
func ThatWord[T Word](a *Assertion, value T) OnWord {
	return OnWord{Assertion: *a, value: uint64(value)}
}

func hex(v uint64) string { return fmt.Sprintf("0x%x", v) }

// Equals checks that the word is expect.
func (o OnWord) Equals(expect uint64) bool {
	return o.CompareRaw(hex(o.value), "==", hex(expect)).Test(o.value == expect)
}

// IsWithin checks that the word lies in [start, end).
func (o OnWord) IsWithin(start, end uint64) bool {
	return o.CompareRaw(hex(o.value), "in", hex(start), "to", hex(end)).
		Test(start <= o.value && o.value < end)
}
