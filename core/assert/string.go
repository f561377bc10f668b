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

import (
	"fmt"
	"strings"
)

// OnString holds the text under test.
type OnString struct {
	Assertion
	value string
}

// ThatString starts a test of text. Byte slices are taken as text and any
// other value is formatted with fmt.Sprint.
func (a Assertion) ThatString(value interface{}) OnString {
	var s string
	switch v := value.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		s = fmt.Sprint(v)
	}
	return OnString{Assertion: a, value: s}
}

// Equals checks that the text is expect. On a mismatch the report shows the
// text from the first byte that differs.
func (o OnString) Equals(expect string) bool {
	o.Compare(o.value, "==", expect)
	if o.value == expect {
		return true
	}
	i := 0
	for i < len(o.value) && i < len(expect) && o.value[i] == expect[i] {
		i++
	}
	switch {
	case i == len(expect):
		o.Printf("Longer\tby\t").Println(o.value[i:])
	case i == len(o.value):
		o.Printf("Shorter\tby\t").Println(expect[i:])
	default:
		o.Printf("Differs\tfrom\t").Println(o.value[i:])
	}
	return o.Test(false)
}

func (o OnString) check(op, arg string, ok func(s, arg string) bool) bool {
	return o.Compare(o.value, op, arg).Test(ok(o.value, arg))
}

// Contains checks that substr occurs in the text.
func (o OnString) Contains(substr string) bool {
	return o.check("contains", substr, strings.Contains)
}

// HasPrefix checks that the text starts with prefix.
func (o OnString) HasPrefix(prefix string) bool {
	return o.check("starts with", prefix, strings.HasPrefix)
}

// HasSuffix checks that the text ends with suffix.
func (o OnString) HasSuffix(suffix string) bool {
	return o.check("ends with", suffix, strings.HasSuffix)
}
