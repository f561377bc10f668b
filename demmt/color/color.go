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

// Package color holds the escape sequences used to highlight decoded output.
package color

// Palette is a set of escape sequences, one per kind of token.
// The zero Palette prints plain text.
type Palette struct {
	Reg     string
	Num     string
	Name    string
	Mod     string
	Comment string
	Err     string
	Target  string
	Reset   string
}

// Plain prints no escape sequences.
var Plain = Palette{}

// ANSI is the default terminal palette.
var ANSI = Palette{
	Reg:     "\x1b[0;31m",
	Num:     "\x1b[0;36m",
	Name:    "\x1b[0;32m",
	Mod:     "\x1b[0;35m",
	Comment: "\x1b[0;34m",
	Err:     "\x1b[1;31m",
	Target:  "\x1b[0;33m",
	Reset:   "\x1b[0m",
}

// For returns ANSI if enabled is true, otherwise Plain.
func For(enabled bool) Palette {
	if enabled {
		return ANSI
	}
	return Plain
}

// Wrap surrounds s with the escape sequence start and the reset sequence.
func (p Palette) Wrap(start, s string) string {
	if start == "" {
		return s
	}
	return start + s + p.Reset
}

// VisibleLen returns the length of s without escape sequences.
func VisibleLen(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\x1b' {
			for i < len(s) && s[i] != 'm' {
				i++
			}
			continue
		}
		n++
	}
	return n
}
