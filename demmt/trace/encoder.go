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

package trace

import (
	eb "encoding/binary"
	"io"

	"github.com/envytools/demmt/core/data/binary"
	"github.com/envytools/demmt/core/data/endian"
)

// Encoder writes records in the trace format.
type Encoder struct {
	w binary.Writer
}

// NewEncoder returns an Encoder that writes to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: endian.Writer(w, eb.LittleEndian)}
}

// Encode writes a single record, including any dumps it carries.
// Once a write fails every later call returns the same error.
func (e *Encoder) Encode(rec Record) error {
	rec.encode(e.w)
	return e.w.Error()
}
